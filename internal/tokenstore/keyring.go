package tokenstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps each key as its own entry in the OS credential manager
// (Keychain, Credential Manager, Secret Service) under a single service name.
// Refresh tokens, the signed-in account and serialized resource grants can
// share one service because their keys never collide.
type KeyringStore struct {
	service string
}

var _ TokenStore = (*KeyringStore)(nil)

// NewKeyringStore returns a store for the given keyring service.
func NewKeyringStore(service string) (*KeyringStore, error) {
	if service == "" {
		return nil, errors.New("keyring service is required")
	}

	return &KeyringStore{service: service}, nil
}

// Read returns the value for key. Missing and empty entries both report ErrNotFound.
func (k *KeyringStore) Read(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	value, err := keyring.Get(k.service, key)
	switch {
	case errors.Is(err, keyring.ErrNotFound):
		return "", fmt.Errorf("keyring %s/%s: %w", k.service, key, ErrNotFound)
	case err != nil:
		return "", fmt.Errorf("reading keyring %s/%s: %w", k.service, key, err)
	case value == "":
		return "", fmt.Errorf("keyring %s/%s is empty: %w", k.service, key, ErrNotFound)
	}

	return value, nil
}

// Write stores value under key, replacing any previous entry.
func (k *KeyringStore) Write(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := keyring.Set(k.service, key, value); err != nil {
		return fmt.Errorf("writing keyring %s/%s: %w", k.service, key, err)
	}

	return nil
}

// Delete removes key. Deleting a missing entry succeeds.
func (k *KeyringStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := keyring.Delete(k.service, key)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("deleting keyring %s/%s: %w", k.service, key, err)
	}

	return nil
}
