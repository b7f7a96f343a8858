package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/photolala/photolala-access/internal/access"
	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/grants"
	"github.com/photolala/photolala-access/internal/identity"
	"github.com/photolala/photolala-access/internal/photos"
	"github.com/photolala/photolala-access/internal/proxy"
	"github.com/photolala/photolala-access/internal/secscope"
	"github.com/photolala/photolala-access/internal/tokensource"
	"github.com/photolala/photolala-access/internal/tokenstore"
)

// maxTransientTries bounds caller-side retries of transient failures.
const maxTransientTries = 3

// App wires the access coordinator to its configured collaborators.
type App struct {
	cfg    *Config
	logger *slog.Logger

	registry    broker.AccountRegistry
	auth        *tokensource.Authenticator
	broker      *broker.Broker
	grants      *grants.Store
	coordinator *access.Coordinator
	photos      *photos.Client
	gateway     *proxy.Proxy

	closers []io.Closer
}

// New creates a new App instance. Stores are opened but no network I/O is
// performed.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{cfg: cfg, logger: slog.Default()}

	credentials, err := cfg.Credentials.NewTokenStore()
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials store: %w", err)
	}

	a.registry, err = newRegistry(cfg.Account, credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to create account registry: %w", err)
	}

	a.auth, err = tokensource.New(cfg.OAuth.ClientID, cfg.OAuth.ClientSecret, credentials,
		tokensource.WithEndpoint(cfg.OAuth.endpoint()),
		tokensource.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	a.broker, err = broker.New(a.registry, a.auth, broker.WithLogger(a.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create token broker: %w", err)
	}

	grantStore, err := cfg.Grants.NewTokenStore(ctx, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create grants store: %w", err)
	}
	if c, ok := grantStore.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	repo, err := grants.NewTokenStoreRepository(grantStore)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create grant repository: %w", err), a.Close())
	}

	a.grants, err = grants.New(repo, secscope.New(cfg.Grants.MaxAge), grants.WithLogger(a.logger))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create grant store: %w", err), a.Close())
	}

	a.coordinator, err = access.New(a.broker, a.grants, access.WithLogger(a.logger))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create access coordinator: %w", err), a.Close())
	}

	a.photos = photos.NewClient(cfg.Library.BaseURL, nil, a.logger)

	if cfg.Gateway.Enabled {
		a.gateway, err = proxy.New(a.coordinator, cfg.OAuth.Scope, cfg.Library.BaseURL, proxy.WithLogger(a.logger))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create gateway: %w", err), a.Close())
		}
	}

	return a, nil
}

func newRegistry(cfg AccountConfig, store tokenstore.TokenStore) (broker.AccountRegistry, error) {
	switch cfg.Source {
	case AccountSourceStore:
		return identity.NewStoreRegistry(store)
	case AccountSourceEnv:
		return identity.NewEnvRegistry(cfg.EnvKey)
	case AccountSourceStatic:
		return identity.NewStaticRegistry(cfg.Email), nil
	default:
		return nil, fmt.Errorf("unsupported account source: %s", cfg.Source)
	}
}

// endpoint applies URL overrides to the Google endpoint.
func (o OAuthConfig) endpoint() oauth2.Endpoint {
	ep := tokensource.Endpoint
	if o.TokenURL != "" {
		ep.TokenURL = o.TokenURL
	}
	if o.AuthURL != "" {
		ep.AuthURL = o.AuthURL
	}
	return ep
}

// Coordinator exposes the access coordinator.
func (a *App) Coordinator() *access.Coordinator {
	return a.coordinator
}

// Scope is the configured token scope.
func (a *App) Scope() string {
	return a.cfg.OAuth.Scope
}

// CurrentIdentity reports the signed-in account, nil when signed out.
func (a *App) CurrentIdentity(ctx context.Context) (*broker.Identity, error) {
	return a.registry.CurrentIdentity(ctx)
}

// AuthCodeURL returns the consent page for signing in.
func (a *App) AuthCodeURL(state, verifier string) string {
	return a.auth.AuthCodeURL(a.cfg.OAuth.Scope, state, verifier)
}

// SignIn exchanges an authorization code, records account as signed in and
// verifies a token can be acquired. It clears a previous denial of the scope.
func (a *App) SignIn(ctx context.Context, account, code, verifier string) (broker.Credential, error) {
	reg, ok := a.registry.(*identity.StoreRegistry)
	if !ok {
		return broker.Credential{}, fmt.Errorf("sign-in requires account source %q, configured %q", AccountSourceStore, a.cfg.Account.Source)
	}

	if err := a.auth.Exchange(ctx, account, a.cfg.OAuth.Scope, code, verifier); err != nil {
		return broker.Credential{}, err
	}

	if _, err := reg.SignIn(ctx, account); err != nil {
		return broker.Credential{}, err
	}

	return a.coordinator.Authorize(ctx, a.cfg.OAuth.Scope)
}

// SignOut drops the signed-in account, its refresh token and cached tokens.
// Signing out while signed out is a no-op.
func (a *App) SignOut(ctx context.Context) error {
	reg, ok := a.registry.(*identity.StoreRegistry)
	if !ok {
		return fmt.Errorf("sign-out requires account source %q, configured %q", AccountSourceStore, a.cfg.Account.Source)
	}

	id, err := reg.CurrentIdentity(ctx)
	if err != nil {
		return err
	}
	if id == nil {
		return nil
	}

	if err := a.broker.Invalidate(ctx, a.cfg.OAuth.Scope); err != nil {
		a.logger.WarnContext(ctx, "failed to invalidate token on sign-out", "error", err)
	}
	if err := a.auth.DeleteRefreshToken(ctx, id.AccountID); err != nil {
		return err
	}

	return reg.SignOut(ctx)
}

// InvalidateToken drops cached tokens for the configured scope.
func (a *App) InvalidateToken(ctx context.Context) error {
	return a.broker.Invalidate(ctx, a.cfg.OAuth.Scope)
}

// ListAlbums fetches one page of albums with the configured scope. Transient
// failures are retried with exponential backoff a bounded number of times.
func (a *App) ListAlbums(ctx context.Context, pageSize int, pageToken string) (photos.AlbumPage, error) {
	var page photos.AlbumPage

	err := a.retryTransient(ctx, func(ctx context.Context) error {
		return a.coordinator.WithToken(ctx, a.cfg.OAuth.Scope, func(ctx context.Context, cred broker.Credential) error {
			var err error
			page, err = a.photos.ListAlbums(ctx, cred.Token, pageSize, pageToken)
			return err
		})
	})

	return page, err
}

// retryTransient runs op until it succeeds, fails with a non-transient error,
// or maxTransientTries is reached.
func (a *App) retryTransient(ctx context.Context, op func(context.Context) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if capability.Retryable(err) || photos.IsRetryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxTransientTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.InfoContext(ctx, "transient failure, retrying", "error", err, "retry_in", next)
		}),
	)

	return err
}

// Start runs the background refresher and, when enabled, the local gateway,
// and blocks until ctx is canceled or a service fails.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Refresh.Interval <= 0 && a.gateway == nil {
		return errors.New("nothing to run: refresh.interval is not positive and the gateway is disabled")
	}

	g, gCtx := errgroup.WithContext(ctx)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	if a.gateway != nil {
		address := a.cfg.Gateway.Host + ":" + strconv.FormatUint(uint64(a.cfg.Gateway.Port), 10)

		a.logger.InfoContext(gCtx, "starting gateway", "address", address)
		gatewayErrCh, err := a.gateway.Start(gCtx, address)
		if err != nil {
			return errors.Join(fmt.Errorf("gateway startup failed: %w", err), a.Close())
		}
		shutdownFuncs = append(shutdownFuncs, a.gateway.Shutdown)

		// Monitor runtime errors - errgroup cancels context on first error
		g.Go(func() error {
			select {
			case err := <-gatewayErrCh:
				if err != nil {
					a.logger.ErrorContext(gCtx, "gateway runtime error", "error", err)
					return fmt.Errorf("gateway: %w", err)
				}
				return nil
			case <-gCtx.Done():
				return nil
			}
		})
	}

	if a.cfg.Refresh.Interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(a.cfg.Refresh.Interval)
			defer ticker.Stop()

			for {
				a.RefreshOnce(gCtx)

				select {
				case <-gCtx.Done():
					return nil
				case <-ticker.C:
				}
			}
		})
	}

	a.logger.InfoContext(gCtx, "application ready",
		"refresh_interval", a.cfg.Refresh.Interval,
		"roots", len(a.cfg.Library.Roots),
		"gateway", a.gateway != nil,
	)

	runtimeErr := g.Wait()

	a.logger.InfoContext(ctx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	shutdownFuncs = append([]func(context.Context) error{func(context.Context) error { return a.Close() }}, shutdownFuncs...)
	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			a.logger.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	a.logger.Info("application stopped")
	return nil
}

// RefreshOnce re-validates every configured library root and the configured
// scope with bounded concurrency. Restoring a root refreshes its grant.
// Failures are logged; the ones needing user action at Warn.
func (a *App) RefreshOnce(ctx context.Context) {
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Refresh.Concurrency)

	for _, root := range a.cfg.Library.Roots {
		g.Go(func() error {
			err := a.coordinator.WithResource(gCtx, root, func(_ context.Context, h grants.Handle) error {
				_, err := fs.Stat(h.FS(), ".")
				return err
			})
			a.logRefresh(gCtx, "root", root, err)
			return nil
		})
	}

	g.Go(func() error {
		err := a.retryTransient(gCtx, func(ctx context.Context) error {
			return a.coordinator.WithToken(ctx, a.cfg.OAuth.Scope, func(ctx context.Context, cred broker.Credential) error {
				_, err := a.photos.ListAlbums(ctx, cred.Token, 1, "")
				return err
			})
		})
		a.logRefresh(gCtx, "scope", a.cfg.OAuth.Scope, err)
		return nil
	})

	_ = g.Wait()
}

func (a *App) logRefresh(ctx context.Context, kind, key string, err error) {
	switch {
	case err == nil:
		a.logger.DebugContext(ctx, "refreshed", kind, key)
	case errors.Is(err, capability.ErrCanceled) || errors.Is(err, context.Canceled):
		// shutting down
	case capability.NeedsUserAction(err):
		a.logger.WarnContext(ctx, "refresh needs user action", kind, key, "error", err)
	default:
		a.logger.ErrorContext(ctx, "refresh failed", kind, key, "error", err)
	}
}

// Close releases the stores opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}
