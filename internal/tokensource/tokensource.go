package tokensource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/photolala/photolala-access/internal/broker"
	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/tokenstore"
)

const userAgent = "photolala-access/1.0"

// refreshKeyPrefix namespaces refresh tokens in the shared token store.
const refreshKeyPrefix = "refresh:"

// RefreshTokenKey is the token store key of account's refresh token.
func RefreshTokenKey(account string) string {
	return refreshKeyPrefix + account
}

// Option configures an Authenticator.
type Option func(*authConfig)

// authConfig holds configuration for New.
type authConfig struct {
	baseTransport http.RoundTripper
	endpoint      oauth2.Endpoint
	redirectURL   string
	timeout       time.Duration
	logger        *slog.Logger
}

// WithTransport sets a custom base transport for token refresh requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *authConfig) {
		c.baseTransport = transport
	}
}

// WithEndpoint overrides the OAuth2 endpoint (tests, alternative tenants).
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(c *authConfig) {
		c.endpoint = endpoint
	}
}

// WithRedirectURL sets the redirect URL registered for interactive sign-in.
// Defaults to the loopback address accepted for installed applications.
func WithRedirectURL(redirectURL string) Option {
	return func(c *authConfig) {
		c.redirectURL = redirectURL
	}
}

// WithTimeout bounds each token refresh request. Defaults to 30s.
func WithTimeout(timeout time.Duration) Option {
	return func(c *authConfig) {
		c.timeout = timeout
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *authConfig) {
		c.logger = logger
	}
}

type sourceKey struct {
	account string
	scope   string
}

// Authenticator implements broker.Authenticator over OAuth2 refresh tokens.
type Authenticator struct {
	clientID     string
	clientSecret string
	endpoint     oauth2.Endpoint
	redirectURL  string
	httpClient   *http.Client
	store        tokenstore.TokenStore
	logger       *slog.Logger

	// oauthCtx carries the HTTP client; oauth2.TokenSource.Token() takes no context.
	oauthCtx context.Context

	mu      sync.Mutex
	sources map[sourceKey]*persistentSource
}

// Compile-time check to ensure Authenticator implements broker.Authenticator
var _ broker.Authenticator = (*Authenticator)(nil)

// New creates an Authenticator reading refresh tokens from store.
// No I/O is performed until the first GetToken call.
func New(clientID, clientSecret string, store tokenstore.TokenStore, opts ...Option) (*Authenticator, error) {
	if clientID == "" {
		return nil, fmt.Errorf("missing OAuth client id")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	cfg := &authConfig{
		baseTransport: http.DefaultTransport,
		endpoint:      Endpoint,
		redirectURL:   DefaultRedirectURL,
		timeout:       30 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	httpClient := &http.Client{
		// Bounds refreshes that outlive an abandoned caller (see GetToken).
		Timeout: cfg.timeout,
		Transport: &userAgentTransport{
			base: cfg.baseTransport,
		},
	}

	return &Authenticator{
		clientID:     clientID,
		clientSecret: clientSecret,
		endpoint:     cfg.endpoint,
		redirectURL:  cfg.redirectURL,
		httpClient:   httpClient,
		store:        store,
		logger:       cfg.logger,
		oauthCtx:     context.WithValue(context.Background(), oauth2.HTTPClient, httpClient),
		sources:      make(map[sourceKey]*persistentSource),
	}, nil
}

// GetToken returns an access token for scope, refreshing silently when the
// cached one expired. Cancelling ctx returns immediately; an in-flight
// refresh still completes and its result stays cached.
func (a *Authenticator) GetToken(ctx context.Context, id broker.Identity, scope string) (string, error) {
	src, err := a.source(ctx, id, scope)
	if err != nil {
		return "", err
	}

	type result struct {
		tok *oauth2.Token
		err error
	}

	done := make(chan result, 1)
	go func() {
		tok, err := src.Token()
		done <- result{tok: tok, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for token refresh: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", classify(r.err)
		}

		return r.tok.AccessToken, nil
	}
}

// ClearToken drops the cached token source for (account, scope). The next
// GetToken re-reads the refresh token and performs a fresh refresh.
func (a *Authenticator) ClearToken(ctx context.Context, id broker.Identity, scope string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	a.mu.Lock()
	delete(a.sources, sourceKey{account: id.AccountID, scope: scope})
	a.mu.Unlock()

	return nil
}

// SaveRefreshToken persists a refresh token obtained by an interactive sign-in
// and drops every cached source of the account.
func (a *Authenticator) SaveRefreshToken(ctx context.Context, account, refreshToken string) error {
	if refreshToken == "" {
		return fmt.Errorf("refresh token cannot be empty")
	}

	if err := a.store.Write(ctx, RefreshTokenKey(account), refreshToken); err != nil {
		return fmt.Errorf("saving refresh token: %w", err)
	}

	a.dropAccount(account)

	return nil
}

// DeleteRefreshToken removes the account's refresh token and cached sources.
func (a *Authenticator) DeleteRefreshToken(ctx context.Context, account string) error {
	a.dropAccount(account)

	if err := a.store.Delete(ctx, RefreshTokenKey(account)); err != nil {
		return fmt.Errorf("deleting refresh token: %w", err)
	}

	return nil
}

func (a *Authenticator) dropAccount(account string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for k := range a.sources {
		if k.account == account {
			delete(a.sources, k)
		}
	}
}

// source returns the cached token source for (account, scope), creating it
// from the persisted refresh token on first use.
func (a *Authenticator) source(ctx context.Context, id broker.Identity, scope string) (*persistentSource, error) {
	key := sourceKey{account: id.AccountID, scope: scope}

	a.mu.Lock()
	src, ok := a.sources[key]
	a.mu.Unlock()
	if ok {
		return src, nil
	}

	refreshToken, err := a.store.Read(ctx, RefreshTokenKey(id.AccountID))
	if errors.Is(err, tokenstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: no refresh token stored for %s, sign in again", capability.ErrPermanentAuth, id.AccountID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading refresh token: %w", err)
	}

	initialToken := &oauth2.Token{
		RefreshToken: refreshToken,
		// AccessToken populated by first Token() call
	}

	src = &persistentSource{
		account:  id.AccountID,
		store:    a.store,
		logger:   a.logger,
		upstream: a.oauthConfig(scope).TokenSource(a.oauthCtx, initialToken),
	}
	src.lastRefreshToken.Store(&refreshToken)

	a.mu.Lock()
	// Another caller may have raced us; keep the first source.
	if existing, ok := a.sources[key]; ok {
		src = existing
	} else {
		a.sources[key] = src
	}
	a.mu.Unlock()

	return src, nil
}

func (a *Authenticator) oauthConfig(scope string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     a.clientID,
		ClientSecret: a.clientSecret,
		RedirectURL:  a.redirectURL,
		Scopes:       []string{ResolveScope(scope)},
		Endpoint:     a.endpoint,
	}
}

// classify maps oauth2 refresh failures onto the capability taxonomy.
func classify(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		// Network failures, timeouts.
		return fmt.Errorf("%w: %w", capability.ErrTransientAuth, err)
	}

	switch re.ErrorCode {
	case "invalid_grant":
		// Refresh token expired or revoked: the cached source is useless.
		return fmt.Errorf("%w: %w: %w", capability.ErrPermanentAuth, capability.ErrCredentialRejected, err)
	case "invalid_client", "unauthorized_client", "invalid_scope", "access_denied":
		return fmt.Errorf("%w: %w", capability.ErrPermanentAuth, err)
	}

	if re.Response != nil {
		switch code := re.Response.StatusCode; {
		case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %w", capability.ErrTransientAuth, err)
		case code == http.StatusUnauthorized:
			return fmt.Errorf("%w: %w: %w", capability.ErrPermanentAuth, capability.ErrCredentialRejected, err)
		}
	}

	return fmt.Errorf("%w: %w", capability.ErrPermanentAuth, err)
}

// userAgentTransport stamps token requests with the client's user agent.
type userAgentTransport struct {
	base http.RoundTripper
}

// Compile-time check that userAgentTransport implements http.RoundTripper.
var _ http.RoundTripper = (*userAgentTransport)(nil)

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	newReq := req.Clone(req.Context())
	newReq.Header.Set("User-Agent", userAgent)

	return t.base.RoundTrip(newReq)
}
