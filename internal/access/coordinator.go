package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/grants"
)

// TokenBroker is the subset of *broker.Broker the coordinator drives.
type TokenBroker interface {
	Acquire(ctx context.Context, scope string) (broker.Credential, error)
	Invalidate(ctx context.Context, scope string) error
	Renew(ctx context.Context, scope string, rejected broker.Credential) (broker.Credential, error)
}

// GrantStore is the subset of *grants.Store the coordinator drives.
type GrantStore interface {
	Restore(ctx context.Context, path string) (grants.Handle, error)
	Capture(ctx context.Context, path string) (grants.ResourceGrant, error)
	Forget(ctx context.Context, path string) error
	Release(h grants.Handle) error
}

// TokenOperation is a remote call made with a credential. It returns an error
// wrapping capability.ErrCredentialRejected when the service refused it.
type TokenOperation func(ctx context.Context, cred broker.Credential) error

// ResourceOperation works inside an activated resource grant. The handle is
// released after it returns and must not be retained.
type ResourceOperation func(ctx context.Context, h grants.Handle) error

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// Coordinator runs operations with a valid token or resource grant.
// Safe for concurrent use.
type Coordinator struct {
	tokens TokenBroker
	grants GrantStore
	logger *slog.Logger

	mu     sync.Mutex
	states map[stateKey]State
}

type stateKey struct {
	kind capability.Kind
	key  string
}

// New creates a Coordinator over the given leaves.
func New(tokens TokenBroker, grantStore GrantStore, opts ...Option) (*Coordinator, error) {
	if tokens == nil {
		return nil, fmt.Errorf("missing token broker")
	}
	if grantStore == nil {
		return nil, fmt.Errorf("missing grant store")
	}

	c := &Coordinator{
		tokens: tokens,
		grants: grantStore,
		logger: slog.Default(),
		states: make(map[stateKey]State),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

// WithToken acquires a credential for scope and passes it to op. A rejected
// credential is renewed and op runs once more; a second rejection fails with
// capability.ErrPermanentAuth and no third attempt is made.
func (c *Coordinator) WithToken(ctx context.Context, scope string, op TokenOperation) error {
	k := stateKey{kind: capability.KindToken, key: scope}
	logger := c.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.String("scope", scope),
	)

	// A denied scope is still tried live: the user may have signed in again
	// from another process since the denial was recorded here.
	cred, err := c.tokens.Acquire(ctx, scope)
	if err != nil {
		c.observeFailure(k, err)
		return err
	}
	c.markValid(k)

	err = op(ctx, cred)
	if err == nil {
		c.setState(k, StateValid)
		return nil
	}
	if !errors.Is(err, capability.ErrCredentialRejected) {
		return err
	}

	logger.InfoContext(ctx, "credential rejected, renewing", slog.Any("credential", cred))
	c.setState(k, StateInvalidating)

	renewed, err := c.tokens.Renew(ctx, scope, cred)
	if err != nil {
		if !c.observeFailure(k, err) {
			c.setState(k, StateUninitialized)
		}

		return err
	}
	c.setState(k, StateValid)

	err = op(ctx, renewed)
	if err == nil {
		logger.DebugContext(ctx, "operation succeeded with renewed credential")
		return nil
	}
	if !errors.Is(err, capability.ErrCredentialRejected) {
		return err
	}

	c.setState(k, StatePermanentlyDenied)
	logger.WarnContext(ctx, "renewed credential rejected, scope denied", slog.String("error", err.Error()))

	// The rejection is reported as text only so callers further up do not
	// treat it as another chance to renew.
	return capability.Wrap("with_token", capability.KindToken, scope,
		fmt.Errorf("%w: renewed credential rejected: %v", capability.ErrPermanentAuth, err))
}

// WithResource restores the grant for path and passes the live handle to op.
// The handle is released on every exit path. A missing or stale grant fails
// with capability.ErrRegrantRequired alongside ErrNotFound or ErrStale. Every
// call restores live, so a grant captured by another process is picked up.
func (c *Coordinator) WithResource(ctx context.Context, path string, op ResourceOperation) (err error) {
	key, err := grants.NormalizePath(path)
	if err != nil {
		return capability.Wrap("with_resource", capability.KindResourceGrant, path, err)
	}

	k := stateKey{kind: capability.KindResourceGrant, key: key}
	logger := c.logger.With(
		slog.String("op_id", uuid.NewString()),
		slog.String("path", key),
	)

	h, err := c.grants.Restore(ctx, key)
	if err != nil {
		if errors.Is(err, capability.ErrNotFound) || errors.Is(err, capability.ErrStale) {
			c.setState(k, StatePermanentlyDenied)
			logger.InfoContext(ctx, "resource grant unusable, re-grant required", slog.String("error", err.Error()))

			return fmt.Errorf("%w: %w", capability.ErrRegrantRequired, err)
		}

		return err
	}

	defer func() {
		if relErr := c.grants.Release(h); relErr != nil {
			logger.WarnContext(ctx, "failed to release resource handle", slog.String("error", relErr.Error()))
			err = errors.Join(err, relErr)
		}
	}()

	// A live restore is proof the grant works, whoever captured it.
	c.setState(k, StateValid)

	return op(ctx, h)
}

// Authorize is called after the user re-authenticated interactively. It drops
// any cached token for scope, acquires a fresh one and clears a denial.
func (c *Coordinator) Authorize(ctx context.Context, scope string) (broker.Credential, error) {
	k := stateKey{kind: capability.KindToken, key: scope}

	if err := c.tokens.Invalidate(ctx, scope); err != nil {
		return broker.Credential{}, err
	}

	cred, err := c.tokens.Acquire(ctx, scope)
	if err != nil {
		c.observeFailure(k, err)
		return broker.Credential{}, err
	}

	c.setState(k, StateValid)
	c.logger.InfoContext(ctx, "scope authorized", slog.String("scope", scope))

	return cred, nil
}

// Grant captures a grant for path after the user picked it interactively and
// clears a denial for the path.
func (c *Coordinator) Grant(ctx context.Context, path string) (grants.ResourceGrant, error) {
	grant, err := c.grants.Capture(ctx, path)
	if err != nil {
		return grants.ResourceGrant{}, err
	}

	c.setState(stateKey{kind: capability.KindResourceGrant, key: grant.Path}, StateValid)

	return grant, nil
}

// Revoke forgets the grant for path and resets its state.
func (c *Coordinator) Revoke(ctx context.Context, path string) error {
	key, err := grants.NormalizePath(path)
	if err != nil {
		return capability.Wrap("revoke", capability.KindResourceGrant, path, err)
	}

	if err := c.grants.Forget(ctx, key); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.states, stateKey{kind: capability.KindResourceGrant, key: key})
	c.mu.Unlock()

	return nil
}

// State reports the lifecycle state for a scope (KindToken) or a path
// (KindResourceGrant). Paths are normalized the same way the store keys them.
func (c *Coordinator) State(kind capability.Kind, key string) State {
	if kind == capability.KindResourceGrant {
		if norm, err := grants.NormalizePath(key); err == nil {
			key = norm
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.states[stateKey{kind: kind, key: key}]
}

func (c *Coordinator) setState(k stateKey, s State) {
	c.mu.Lock()
	c.states[k] = s
	c.mu.Unlock()
}

// markValid records a successful acquire unless the key is denied. Only an
// accepted credential clears a denial.
func (c *Coordinator) markValid(k stateKey) {
	c.mu.Lock()
	if c.states[k] != StatePermanentlyDenied {
		c.states[k] = StateValid
	}
	c.mu.Unlock()
}

// observeFailure denies the key on a permanent failure and reports whether it did.
func (c *Coordinator) observeFailure(k stateKey, err error) bool {
	if !errors.Is(err, capability.ErrPermanentAuth) {
		return false
	}

	c.setState(k, StatePermanentlyDenied)

	return true
}
