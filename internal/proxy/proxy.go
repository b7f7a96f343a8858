package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/photolala/photolala-access/internal/capability"
)

// Proxy represents the local gateway server
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
	addr   string
	logger *slog.Logger
}

// Compile-time check that Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*config)

type config struct {
	transport http.RoundTripper
	logger    *slog.Logger
}

// WithTransport sets the base transport for upstream requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// New creates a gateway forwarding every request to baseURL with a credential
// for scope.
func New(runner TokenRunner, scope, baseURL string, opts ...Option) (*Proxy, error) {
	if runner == nil {
		return nil, fmt.Errorf("missing token runner")
	}

	upstream, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL: %q", baseURL)
	}

	cfg := &config{
		transport: http.DefaultTransport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	p := &Proxy{logger: cfg.logger}

	reverseProxyHandler := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
			// Local callers never choose the credential.
			pr.Out.Header.Del("Authorization")
		},
		// FlushInterval: -1 disables automatic periodic flushing, flushing only when the backend flushes.
		FlushInterval: -1,
		Transport: &credentialTransport{
			runner: runner,
			scope:  scope,
			base:   cfg.transport,
		},
		ErrorHandler: p.handleError,
	}

	mux := http.NewServeMux()

	mux.Handle("/", applyMiddlewares(reverseProxyHandler,
		Logging(cfg.logger),
		Recovery,
		LoopbackOnly,
	))

	p.mux = mux

	return p, nil
}

// ServeHTTP implements http.Handler interface
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// handleError maps coordinator failures onto HTTP responses.
func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	status, rpcStatus := http.StatusBadGateway, "UNAVAILABLE"
	switch {
	case errors.Is(err, capability.ErrNoIdentity):
		status, rpcStatus = http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, capability.ErrPermanentAuth):
		status, rpcStatus = http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, capability.ErrCanceled), errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		p.logger.DebugContext(ctx, "request canceled", "path", r.URL.Path)
		return
	case errors.Is(err, errBodyTooLarge):
		status, rpcStatus = http.StatusRequestEntityTooLarge, "INVALID_ARGUMENT"
	case errors.Is(err, context.DeadlineExceeded):
		status, rpcStatus = http.StatusGatewayTimeout, "DEADLINE_EXCEEDED"
	}

	p.logger.WarnContext(ctx, "gateway request failed",
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)

	writeJSONError(ctx, w, err.Error(), rpcStatus, status)
}

// Start starts the HTTP server in the background and returns immediately.
// Returns a channel for runtime errors and a startup error if any.
//
// Startup errors (port in use, permission denied) are returned immediately.
// Runtime errors (network failures during operation) are sent to the error channel.
//
// The caller is responsible for calling Shutdown() to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	// Startup phase: Create listener synchronously to catch port-in-use errors immediately
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	p.addr = listener.Addr().String()
	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second, // Inbound: Read entire client request
		WriteTimeout: 5 * time.Minute,  // Inbound: Write entire response, bounds large media downloads
		IdleTimeout:  90 * time.Second, // Inbound: Keep-alive wait for next request from client
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)

	go func() {
		err := p.server.Serve(listener)
		// Only report error if not from graceful shutdown
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Addr returns the listening address once Start succeeded.
func (p *Proxy) Addr() string {
	return p.addr
}

// Shutdown performs graceful shutdown of the HTTP server.
// Returns error if shutdown fails or times out.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}

	if err := p.server.Shutdown(ctx); err != nil {
		// Graceful shutdown failed - force close
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
