// Package env reads secrets from process environment variables.
package env

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/bnema/giveaway-cli/internal/domain"
	"github.com/bnema/giveaway-cli/internal/ports"
)

var ErrReadOnly = errors.New("environment secret store is read-only")

const variablePrefix = "GIVEAWAY_"

type lookupFunc func(key string) (string, bool)

// Store maps "giveaway/api_token" to GIVEAWAY_API_TOKEN. It never writes the
// environment.
type Store struct {
	lookup lookupFunc
}

var _ ports.SecretStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{lookup: os.LookupEnv}
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name, err := VariableName(key)
	if err != nil {
		return "", err
	}

	value, ok := s.lookup(name)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("env secret %s: %w", name, domain.ErrSecretNotFound)
	}

	token, err := domain.NormalizeToken(value)
	if err != nil {
		return "", fmt.Errorf("env secret %s: %w", name, err)
	}

	return token, nil
}

func (s *Store) Put(ctx context.Context, key string, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("put %q: %w", key, ErrReadOnly)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return fmt.Errorf("delete %q: %w", key, ErrReadOnly)
}

// VariableName returns the environment variable consulted for key.
func VariableName(key string) (string, error) {
	name, err := domain.SecretName(key)
	if err != nil {
		return "", err
	}

	return variablePrefix + strings.ToUpper(name), nil
}
