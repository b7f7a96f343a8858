package tokensource

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/oauth2"

	"github.com/photolala/photolala-access/internal/tokenstore"
)

// persistentSource wraps an oauth2.TokenSource and writes rotated refresh
// tokens back to the token store.
type persistentSource struct {
	account  string
	store    tokenstore.TokenStore
	logger   *slog.Logger
	upstream oauth2.TokenSource

	lastRefreshToken atomic.Pointer[string]
	writeMu          sync.Mutex
}

// Compile-time check to ensure persistentSource implements oauth2.TokenSource
var _ oauth2.TokenSource = (*persistentSource)(nil)

// Token returns a valid token, refreshing if necessary and persisting refresh tokens.
func (p *persistentSource) Token() (*oauth2.Token, error) {
	freshToken, err := p.upstream.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token from token source: %w", err)
	}

	// Hot path: lock-free atomic read for minimal contention
	last := ""
	if lastPtr := p.lastRefreshToken.Load(); lastPtr != nil {
		last = *lastPtr
	}

	// oauth2 keeps the previous refresh token when the server does not rotate
	// it, so an unchanged value skips the write.
	if freshToken.RefreshToken != "" && freshToken.RefreshToken != last {
		p.writeMu.Lock()
		// oauth2.TokenSource has no context parameter; the write-back must
		// finish even if the caller has moved on.
		ctx := context.Background()
		if err := p.store.Write(ctx, RefreshTokenKey(p.account), freshToken.RefreshToken); err != nil {
			// The access token is still valid, but the next refresh after a
			// restart will fail without the rotated refresh token.
			p.logger.ErrorContext(ctx, "failed to persist refresh token",
				slog.String("account", p.account),
				slog.String("error", err.Error()),
			)
		} else {
			// Update cached token only on success - allows retry on next call
			newToken := freshToken.RefreshToken
			p.lastRefreshToken.Store(&newToken)
			p.logger.InfoContext(ctx, "persisted rotated refresh token", slog.String("account", p.account))
		}
		p.writeMu.Unlock()
	}

	return freshToken, nil
}
