//go:build integration

package auth_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/lectio/lectio/auth"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("LECTIO_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LECTIO_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	testStoreContract(t, func(t *testing.T) auth.TokenStore {
		store := auth.NewRedisStore(rdb, "lectio-test:"+uuid.NewString()+":")
		t.Cleanup(func() { _ = store.Clear(context.Background()) })
		return store
	})
}
