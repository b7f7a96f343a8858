package grants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/photolala/photolala-access/internal/capability"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for ResourceGrant.CreatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store restores, captures and forgets resource grants. Operations on the
// same path are serialized; different paths proceed in parallel.
type Store struct {
	repo   Repository
	scope  ScopeAPI
	logger *slog.Logger
	now    func() time.Time

	locks capability.KeyedMutex
}

// New creates a Store.
func New(repo Repository, scope ScopeAPI, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, fmt.Errorf("missing grant repository")
	}
	if scope == nil {
		return nil, fmt.Errorf("missing security-scope API")
	}

	s := &Store{
		repo:   repo,
		scope:  scope,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Restore re-activates the persisted grant for path and returns a live handle
// the caller must Release. The stored blob is refreshed on success.
//
// Fails with capability.ErrNotFound when nothing was captured for path and
// with capability.ErrStale when the OS no longer honors the grant; a stale
// grant is removed from the repository before returning.
func (s *Store) Restore(ctx context.Context, path string) (Handle, error) {
	key, err := NormalizePath(path)
	if err != nil {
		return nil, capability.Wrap("restore", capability.KindResourceGrant, path, err)
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, capability.Wrap("restore", capability.KindResourceGrant, key, err)
	}
	defer unlock()

	h, err := s.restoreLocked(ctx, key)

	return h, capability.Wrap("restore", capability.KindResourceGrant, key, err)
}

func (s *Store) restoreLocked(ctx context.Context, key string) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, capability.Canceled(ctx, err)
	}

	grant, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, capability.Canceled(ctx, err)
	}
	if grant == nil {
		return nil, capability.ErrNotFound
	}

	act, err := s.scope.Activate(ctx, grant.Blob)
	if err != nil {
		if errors.Is(err, capability.ErrStale) {
			s.logger.WarnContext(ctx, "resource grant is stale, removing",
				slog.String("path", key),
				slog.String("error", err.Error()),
			)

			if delErr := s.repo.Delete(context.WithoutCancel(ctx), key); delErr != nil {
				s.logger.ErrorContext(ctx, "failed to remove stale grant",
					slog.String("path", key),
					slog.String("error", delErr.Error()),
				)
			}

			return nil, err
		}

		return nil, capability.Canceled(ctx, fmt.Errorf("activating grant: %w", err))
	}

	// The caller is gone; do not leak the OS handle.
	if ctxErr := ctx.Err(); ctxErr != nil {
		s.release(ctx, act.Handle)
		return nil, capability.Canceled(ctx, ctxErr)
	}

	s.refreshLocked(ctx, key, act.NeedsRefresh)

	return act.Handle, nil
}

// refreshLocked re-mints and stores the blob for key. A failed refresh keeps
// the old blob; it only shortens the grant's validity window.
func (s *Store) refreshLocked(ctx context.Context, key string, requested bool) {
	blob, err := s.scope.Mint(ctx, key)
	if err == nil {
		err = s.repo.Put(ctx, key, ResourceGrant{Path: key, Blob: blob, CreatedAt: s.now().UTC()})
	}

	if err != nil {
		level := slog.LevelDebug
		if requested {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "failed to refresh resource grant",
			slog.String("path", key),
			slog.Bool("refresh_requested", requested),
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.DebugContext(ctx, "resource grant refreshed", slog.String("path", key))
}

// Capture mints and persists a grant for path after the user granted access
// interactively, replacing any previous grant for the same path.
func (s *Store) Capture(ctx context.Context, path string) (ResourceGrant, error) {
	key, err := NormalizePath(path)
	if err != nil {
		return ResourceGrant{}, capability.Wrap("capture", capability.KindResourceGrant, path, err)
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return ResourceGrant{}, capability.Wrap("capture", capability.KindResourceGrant, key, err)
	}
	defer unlock()

	blob, err := s.scope.Mint(ctx, key)
	if err != nil {
		return ResourceGrant{}, capability.Wrap("capture", capability.KindResourceGrant, key,
			capability.Canceled(ctx, fmt.Errorf("minting grant: %w", err)))
	}

	grant := ResourceGrant{Path: key, Blob: blob, CreatedAt: s.now().UTC()}
	if err := s.repo.Put(ctx, key, grant); err != nil {
		return ResourceGrant{}, capability.Wrap("capture", capability.KindResourceGrant, key, capability.Canceled(ctx, err))
	}

	s.logger.InfoContext(ctx, "resource grant captured", slog.Any("grant", grant))

	return grant, nil
}

// Forget removes the persisted grant for path. Forgetting an unknown path is a no-op.
func (s *Store) Forget(ctx context.Context, path string) error {
	key, err := NormalizePath(path)
	if err != nil {
		return capability.Wrap("forget", capability.KindResourceGrant, path, err)
	}

	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return capability.Wrap("forget", capability.KindResourceGrant, key, err)
	}
	defer unlock()

	if err := s.repo.Delete(ctx, key); err != nil {
		return capability.Wrap("forget", capability.KindResourceGrant, key, capability.Canceled(ctx, err))
	}

	s.logger.InfoContext(ctx, "resource grant forgotten", slog.String("path", key))

	return nil
}

// Release hands an activated handle back to the OS.
func (s *Store) Release(h Handle) error {
	if h == nil {
		return nil
	}

	if err := s.scope.Release(h); err != nil {
		return capability.Wrap("release", capability.KindResourceGrant, h.Path(), err)
	}

	return nil
}

func (s *Store) release(ctx context.Context, h Handle) {
	if err := s.Release(h); err != nil {
		s.logger.WarnContext(ctx, "failed to release handle", slog.String("error", err.Error()))
	}
}
