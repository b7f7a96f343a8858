package tokenstore

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Read when no value is stored under the key.
	ErrNotFound = errors.New("tokenstore: not found")

	// ErrReadOnly is returned by Write and Delete on read-only backends.
	ErrReadOnly = errors.New("tokenstore: storage is read-only")
)

// TokenStore reads and writes opaque values to persistent storage, by key.
type TokenStore interface {
	// Read returns the stored value. Returns ErrNotFound if the key is missing or empty.
	Read(ctx context.Context, key string) (string, error)

	// Write persists the value, replacing any previous one. Returns ErrReadOnly
	// if the storage backend is read-only (e.g., environment variables).
	Write(ctx context.Context, key, value string) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
