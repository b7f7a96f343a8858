package grants

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/photolala/photolala-access/internal/tokenstore"
)

// keyPrefix namespaces grants inside a token store shared with other tokens.
const keyPrefix = "grant:"

// TokenStoreRepository stores grants JSON-encoded in a tokenstore.TokenStore.
type TokenStoreRepository struct {
	store tokenstore.TokenStore
}

// Compile-time check to ensure TokenStoreRepository implements Repository
var _ Repository = (*TokenStoreRepository)(nil)

// NewTokenStoreRepository creates a Repository backed by store.
func NewTokenStoreRepository(store tokenstore.TokenStore) (*TokenStoreRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	return &TokenStoreRepository{store: store}, nil
}

func (r *TokenStoreRepository) Get(ctx context.Context, key string) (*ResourceGrant, error) {
	raw, err := r.store.Read(ctx, keyPrefix+key)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, nil //nolint:nilnil // absent grant is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("reading grant: %w", err)
	}

	var grant ResourceGrant
	if err := json.Unmarshal([]byte(raw), &grant); err != nil {
		return nil, fmt.Errorf("decoding grant for %s: %w", key, err)
	}

	return &grant, nil
}

func (r *TokenStoreRepository) Put(ctx context.Context, key string, grant ResourceGrant) error {
	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("encoding grant: %w", err)
	}

	if err := r.store.Write(ctx, keyPrefix+key, string(data)); err != nil {
		return fmt.Errorf("writing grant: %w", err)
	}

	return nil
}

func (r *TokenStoreRepository) Delete(ctx context.Context, key string) error {
	if err := r.store.Delete(ctx, keyPrefix+key); err != nil {
		return fmt.Errorf("deleting grant: %w", err)
	}

	return nil
}
