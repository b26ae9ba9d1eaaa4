// Package secrets resolves credentials for the external backends.
// Production uses the environment-backed store; tests use the static
// store.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrSecretNotFound indicates the key resolves to no value.
var ErrSecretNotFound = errors.New("secret not found")

// Store resolves a secret value by key.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
}

// EnvStore resolves secrets from environment variables. Keys are
// upper-cased, dashes and dots become underscores, and the configured
// prefix is prepended: "qdrant.api-key" -> "DOCIDX_QDRANT_API_KEY".
type EnvStore struct {
	Prefix string
}

var _ Store = (*EnvStore)(nil)

// NewEnvStore creates an environment-backed store with the prefix.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix}
}

// Get resolves the key from the environment.
func (s *EnvStore) Get(_ context.Context, key string) (string, error) {
	name := s.envName(key)
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

func (s *EnvStore) envName(key string) string {
	name := strings.ToUpper(key)
	name = strings.NewReplacer("-", "_", ".", "_").Replace(name)
	if s.Prefix != "" {
		name = strings.ToUpper(s.Prefix) + "_" + name
	}
	return name
}

// StaticStore resolves secrets from a fixed map. Used by tests.
type StaticStore struct {
	Values map[string]string
}

var _ Store = (*StaticStore)(nil)

// NewStaticStore creates a store over a fixed map.
func NewStaticStore(values map[string]string) *StaticStore {
	return &StaticStore{Values: values}
}

// Get resolves the key from the map.
func (s *StaticStore) Get(_ context.Context, key string) (string, error) {
	value, ok := s.Values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, key)
	}
	return value, nil
}
