package broker

import "context"

// Identity references the platform-level signed-in account.
type Identity struct {
	AccountID string
	Email     string
}

// AccountRegistry reports the currently signed-in account.
type AccountRegistry interface {
	// CurrentIdentity returns nil, nil when nobody is signed in; that is a
	// normal state, not an error.
	CurrentIdentity(ctx context.Context) (*Identity, error)
}

// Authenticator is the platform authentication service.
//
// Implementations wrap capability.ErrCredentialRejected when the token they
// hold is known to be invalid, capability.ErrPermanentAuth when the account or
// scope is revoked, and anything else is treated as transient.
type Authenticator interface {
	// GetToken returns a bearer token for scope, refreshing silently if needed.
	GetToken(ctx context.Context, id Identity, scope string) (string, error)

	// ClearToken drops any cached token for scope. Clearing an empty cache is a no-op.
	ClearToken(ctx context.Context, id Identity, scope string) error
}
