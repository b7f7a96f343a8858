package tokenstore

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvStore provides read-only access to tokens stored in environment variables.
// Key "refresh:alice@example.com" with prefix "PHOTOLALA_" reads
// PHOTOLALA_REFRESH_ALICE_EXAMPLE_COM.
type EnvStore struct {
	prefix string
	lookup func(string) (string, bool)
}

// Compile-time check to ensure EnvStore implements TokenStore
var _ TokenStore = (*EnvStore)(nil)

// NewEnvStore creates an EnvStore that maps keys onto variables starting with prefix.
func NewEnvStore(prefix string) (*EnvStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("environment prefix cannot be empty")
	}

	return &EnvStore{
		prefix: prefix,
		lookup: os.LookupEnv,
	}, nil
}

// VarName returns the environment variable consulted for key.
func (e *EnvStore) VarName(key string) string {
	var sb strings.Builder
	sb.WriteString(e.prefix)

	for _, r := range strings.ToUpper(key) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}

	return sb.String()
}

// Read returns the token from the environment variable. Returns ErrNotFound if unset or empty.
func (e *EnvStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := e.VarName(key)

	token, _ := e.lookup(name)
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("environment variable %s: %w", name, ErrNotFound)
	}
	return token, nil
}

// Write is not supported for environment variables (they are read-only).
func (e *EnvStore) Write(ctx context.Context, _, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return ErrReadOnly
}

// Delete is not supported for environment variables (they are read-only).
func (e *EnvStore) Delete(ctx context.Context, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return ErrReadOnly
}
