// Package identity provides account registries: where the broker learns which
// account, if any, is signed in.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/tokenstore"
)

// AccountKey is the token store key holding the signed-in account.
const AccountKey = "account"

// StoreRegistry keeps the signed-in account in a token store, written by
// SignIn and removed by SignOut.
type StoreRegistry struct {
	store tokenstore.TokenStore
}

var _ broker.AccountRegistry = (*StoreRegistry)(nil)

// NewStoreRegistry creates a StoreRegistry over store.
func NewStoreRegistry(store tokenstore.TokenStore) (*StoreRegistry, error) {
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	return &StoreRegistry{store: store}, nil
}

// CurrentIdentity returns nil, nil when nobody is signed in.
func (r *StoreRegistry) CurrentIdentity(ctx context.Context) (*broker.Identity, error) {
	account, err := r.store.Read(ctx, AccountKey)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, nil //nolint:nilnil // signed out
	}
	if err != nil {
		return nil, fmt.Errorf("reading signed-in account: %w", err)
	}

	return newIdentity(account), nil
}

// SignIn records account as the signed-in identity.
func (r *StoreRegistry) SignIn(ctx context.Context, account string) (*broker.Identity, error) {
	id := newIdentity(account)
	if id == nil {
		return nil, fmt.Errorf("account cannot be empty")
	}

	if err := r.store.Write(ctx, AccountKey, id.AccountID); err != nil {
		return nil, fmt.Errorf("saving signed-in account: %w", err)
	}

	return id, nil
}

// SignOut forgets the signed-in identity. Signing out twice is fine.
func (r *StoreRegistry) SignOut(ctx context.Context) error {
	return r.store.Delete(ctx, AccountKey)
}

// EnvRegistry reads the signed-in account from an environment variable.
// Suitable for headless runs where credentials are provisioned externally.
type EnvRegistry struct {
	envKey string
}

var _ broker.AccountRegistry = (*EnvRegistry)(nil)

// NewEnvRegistry creates an EnvRegistry for the given variable name.
func NewEnvRegistry(envKey string) (*EnvRegistry, error) {
	if envKey == "" {
		return nil, fmt.Errorf("environment key cannot be empty")
	}

	return &EnvRegistry{envKey: envKey}, nil
}

// CurrentIdentity returns nil, nil when the variable is unset or empty.
func (r *EnvRegistry) CurrentIdentity(ctx context.Context) (*broker.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return newIdentity(os.Getenv(r.envKey)), nil
}

// StaticRegistry always reports the configured account.
type StaticRegistry struct {
	id *broker.Identity
}

var _ broker.AccountRegistry = (*StaticRegistry)(nil)

// NewStaticRegistry creates a StaticRegistry; an empty account means signed out.
func NewStaticRegistry(account string) *StaticRegistry {
	return &StaticRegistry{id: newIdentity(account)}
}

func (r *StaticRegistry) CurrentIdentity(context.Context) (*broker.Identity, error) {
	if r.id == nil {
		return nil, nil //nolint:nilnil // signed out
	}

	id := *r.id

	return &id, nil
}

func newIdentity(account string) *broker.Identity {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil
	}

	id := &broker.Identity{AccountID: account}
	if strings.Contains(account, "@") {
		id.Email = account
	}

	return id
}
