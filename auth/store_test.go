package auth_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lectio/lectio/auth"
	"github.com/lectio/lectio/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLStore(t *testing.T) auth.TokenStore {
	t.Helper()
	gormDB, err := db.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gormDB) })
	return auth.NewSQLStore(db.NewCredentialRepository(gormDB))
}

// testStoreContract runs the behaviour every TokenStore must share.
func testStoreContract(t *testing.T, newStore func(t *testing.T) auth.TokenStore) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		cred, err := newStore(t).Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("set get clear", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "A", "R"))

		cred, err := store.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, cred)
		assert.Equal(t, "A", cred.AccessToken)
		assert.Equal(t, "R", cred.RefreshToken)

		require.NoError(t, store.Clear(ctx))
		cred, err = store.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("set replaces both", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "A1", "R1"))
		require.NoError(t, store.Set(ctx, "A2", "R2"))
		cred, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, &auth.Credential{AccessToken: "A2", RefreshToken: "R2"}, cred)
	})

	t.Run("rejects half pair", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "A", "R"))
		assert.ErrorIs(t, store.Set(ctx, "", "R2"), auth.ErrIncompleteCredential)
		assert.ErrorIs(t, store.Set(ctx, "A2", ""), auth.ErrIncompleteCredential)

		cred, err := store.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, "A", cred.AccessToken)
	})

	t.Run("clear when empty", func(t *testing.T) {
		assert.NoError(t, newStore(t).Clear(ctx))
	})

	t.Run("readers never see mixed pairs", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Set(ctx, "A0", "R0"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s := string(rune('a' + i%26))
				_ = store.Set(ctx, "A"+s, "R"+s)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				cred, err := store.Get(ctx)
				if err != nil || cred == nil {
					continue
				}
				assert.Equal(t, cred.AccessToken[1:], cred.RefreshToken[1:])
			}
		}()
		wg.Wait()
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, func(t *testing.T) auth.TokenStore { return auth.NewMemoryStore() })
}

func TestSQLStore(t *testing.T) {
	testStoreContract(t, newSQLStore)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := auth.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "A", "R"))

	cred, err := store.Get(ctx)
	require.NoError(t, err)
	cred.AccessToken = "mutated"

	again, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A", again.AccessToken)
}

func TestCredential_Complete(t *testing.T) {
	var nilCred *auth.Credential
	assert.False(t, nilCred.Complete())
	assert.False(t, (&auth.Credential{AccessToken: "A"}).Complete())
	assert.True(t, (&auth.Credential{AccessToken: "A", RefreshToken: "R"}).Complete())
}
