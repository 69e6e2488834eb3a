// Package chain resolves the API token from the environment first and keeps
// the persistent copy in the file store.
package chain

import (
	"context"
	"errors"

	envstore "github.com/bnema/giveaway-cli/internal/adapters/secrets/env"
	filestore "github.com/bnema/giveaway-cli/internal/adapters/secrets/file"
	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
)

// Store reads env then files. Writes and deletes only reach the files since
// the environment is read-only.
type Store struct {
	env   ports.SecretStore
	files ports.SecretStore
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore(env, files ports.SecretStore) *Store {
	return &Store{env: env, files: files}
}

func NewEnvFirstWithFileFallback(fileRoot string) *Store {
	return NewStore(envstore.NewStore(), filestore.NewStore(fileRoot))
}

// Get falls back to the files only when the variable is unset. A malformed
// variable is reported rather than silently ignored.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	value, err := s.env.Get(ctx, key)
	if err == nil || !errors.Is(err, domain.ErrSecretNotFound) {
		return value, err
	}

	return s.files.Get(ctx, key)
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	return s.files.Put(ctx, key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.files.Delete(ctx, key)
}

// Override names the environment variable that currently takes precedence
// over the stored token for key, if any.
func (s *Store) Override(ctx context.Context, key string) (string, bool) {
	if _, err := s.env.Get(ctx, key); err != nil {
		return "", false
	}

	name, err := envstore.VariableName(key)
	if err != nil {
		return "", false
	}

	return name, true
}
