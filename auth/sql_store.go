package auth

import (
	"context"
	"fmt"

	"github.com/lectio/lectio/db"
)

// SQLStore persists the pair in the local SQLite database so the session
// survives restarts.
type SQLStore struct {
	repo db.CredentialRepository
}

// NewSQLStore wraps a credential repository.
func NewSQLStore(repo db.CredentialRepository) *SQLStore {
	return &SQLStore{repo: repo}
}

func (s *SQLStore) Get(ctx context.Context) (*Credential, error) {
	row, err := s.repo.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored credentials: %w", err)
	}
	if row == nil {
		return nil, nil
	}
	return &Credential{AccessToken: row.AccessToken, RefreshToken: row.RefreshToken}, nil
}

func (s *SQLStore) Set(ctx context.Context, accessToken, refreshToken string) error {
	if err := validatePair(accessToken, refreshToken); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, accessToken, refreshToken); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if err := s.repo.Delete(ctx); err != nil {
		return fmt.Errorf("failed to clear stored credentials: %w", err)
	}
	return nil
}
