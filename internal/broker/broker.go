package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/photolala/photolala-access/internal/capability"
)

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) {
		b.logger = logger
	}
}

// WithClock overrides the time source used for Credential.ObtainedAt.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) {
		b.now = now
	}
}

// Broker hands out credentials per scope and revokes them on request.
// Safe for concurrent use.
type Broker struct {
	registry AccountRegistry
	auth     Authenticator
	logger   *slog.Logger
	now      func() time.Time

	locks capability.KeyedMutex

	mu      sync.Mutex
	current map[string]Credential // last credential handed out per scope
}

// New creates a Broker. No I/O is performed until the first Acquire.
func New(registry AccountRegistry, auth Authenticator, opts ...Option) (*Broker, error) {
	if registry == nil {
		return nil, fmt.Errorf("missing account registry")
	}
	if auth == nil {
		return nil, fmt.Errorf("missing authenticator")
	}

	b := &Broker{
		registry: registry,
		auth:     auth,
		logger:   slog.Default(),
		now:      time.Now,
		current:  make(map[string]Credential),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}

	return b, nil
}

// Acquire returns a credential for scope from the authentication service.
// It may block on network I/O; never call it where blocking is prohibited.
//
// Without a signed-in identity it fails with capability.ErrNoIdentity and the
// authentication service is not contacted.
func (b *Broker) Acquire(ctx context.Context, scope string) (Credential, error) {
	if err := validateScope(scope); err != nil {
		return Credential{}, capability.Wrap("acquire", capability.KindToken, scope, err)
	}

	unlock, err := b.locks.Lock(ctx, scope)
	if err != nil {
		return Credential{}, capability.Wrap("acquire", capability.KindToken, scope, err)
	}
	defer unlock()

	cred, err := b.acquireLocked(ctx, scope)

	return cred, capability.Wrap("acquire", capability.KindToken, scope, err)
}

// Invalidate drops any cached token for scope, both locally and in the
// authentication service. Invalidating an already-clear scope is a no-op.
func (b *Broker) Invalidate(ctx context.Context, scope string) error {
	if err := validateScope(scope); err != nil {
		return capability.Wrap("invalidate", capability.KindToken, scope, err)
	}

	unlock, err := b.locks.Lock(ctx, scope)
	if err != nil {
		return capability.Wrap("invalidate", capability.KindToken, scope, err)
	}
	defer unlock()

	return capability.Wrap("invalidate", capability.KindToken, scope, b.invalidateLocked(ctx, scope))
}

// Renew replaces a credential the remote API rejected. Invalidate and the
// following acquire happen atomically for scope. If another caller already
// renewed past rejected, the newer credential is returned without touching
// the authentication service.
func (b *Broker) Renew(ctx context.Context, scope string, rejected Credential) (Credential, error) {
	if err := validateScope(scope); err != nil {
		return Credential{}, capability.Wrap("renew", capability.KindToken, scope, err)
	}

	unlock, err := b.locks.Lock(ctx, scope)
	if err != nil {
		return Credential{}, capability.Wrap("renew", capability.KindToken, scope, err)
	}
	defer unlock()

	if cur, ok := b.cached(scope); ok && cur.Token != rejected.Token {
		b.logger.DebugContext(ctx, "credential already renewed by another caller",
			slog.String("scope", scope),
		)

		return cur, nil
	}

	if err := b.invalidateLocked(ctx, scope); err != nil {
		return Credential{}, capability.Wrap("renew", capability.KindToken, scope, err)
	}

	cred, err := b.acquireLocked(ctx, scope)

	return cred, capability.Wrap("renew", capability.KindToken, scope, err)
}

// acquireLocked must be called with the scope lock held.
func (b *Broker) acquireLocked(ctx context.Context, scope string) (Credential, error) {
	if err := ctx.Err(); err != nil {
		return Credential{}, capability.Canceled(ctx, err)
	}

	id, err := b.identity(ctx)
	if err != nil {
		return Credential{}, err
	}
	if id == nil {
		b.logger.DebugContext(ctx, "no signed-in identity", slog.String("scope", scope))
		return Credential{}, capability.ErrNoIdentity
	}

	token, err := b.auth.GetToken(ctx, *id, scope)
	if err != nil {
		if errors.Is(err, capability.ErrCredentialRejected) {
			// The service handed out a token it knows is bad; make sure the
			// next attempt by any caller starts from a clean cache.
			b.forget(scope)
			if clearErr := b.auth.ClearToken(ctx, *id, scope); clearErr != nil {
				b.logger.WarnContext(ctx, "failed to clear rejected token",
					slog.String("scope", scope),
					slog.String("error", clearErr.Error()),
				)
			}
		}

		b.logger.WarnContext(ctx, "token acquisition failed",
			slog.String("scope", scope),
			slog.String("error", err.Error()),
		)

		return Credential{}, classify(ctx, err)
	}

	if token == "" {
		return Credential{}, fmt.Errorf("%w: authentication service returned an empty token", capability.ErrTransientAuth)
	}

	cred := Credential{
		Scope:      scope,
		Token:      token,
		AccountID:  id.AccountID,
		ObtainedAt: b.now().UTC(),
	}

	b.mu.Lock()
	b.current[scope] = cred
	b.mu.Unlock()

	b.logger.DebugContext(ctx, "credential acquired", slog.Any("credential", cred))

	return cred, nil
}

// invalidateLocked must be called with the scope lock held.
func (b *Broker) invalidateLocked(ctx context.Context, scope string) error {
	b.forget(scope)

	id, err := b.identity(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		// Nothing can be cached for an absent identity.
		return nil
	}

	if err := b.auth.ClearToken(ctx, *id, scope); err != nil {
		return classify(ctx, fmt.Errorf("clearing token: %w", err))
	}

	b.logger.InfoContext(ctx, "credential invalidated", slog.String("scope", scope))

	return nil
}

func (b *Broker) identity(ctx context.Context) (*Identity, error) {
	id, err := b.registry.CurrentIdentity(ctx)
	if err != nil {
		return nil, classify(ctx, fmt.Errorf("resolving identity: %w", err))
	}

	return id, nil
}

func (b *Broker) cached(scope string) (Credential, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cred, ok := b.current[scope]

	return cred, ok
}

func (b *Broker) forget(scope string) {
	b.mu.Lock()
	delete(b.current, scope)
	b.mu.Unlock()
}

// classify maps an authentication service error onto the capability taxonomy.
func classify(ctx context.Context, err error) error {
	if canceled := capability.Canceled(ctx, err); errors.Is(canceled, capability.ErrCanceled) {
		return canceled
	}

	switch {
	case errors.Is(err, capability.ErrPermanentAuth),
		errors.Is(err, capability.ErrNoIdentity),
		errors.Is(err, capability.ErrTransientAuth):
		return err
	default:
		// Includes ErrCredentialRejected during acquire: the cache was
		// cleared above, so a later attempt can succeed.
		return fmt.Errorf("%w: %w", capability.ErrTransientAuth, err)
	}
}

func validateScope(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return fmt.Errorf("scope cannot be empty")
	}

	return nil
}
