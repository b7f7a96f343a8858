// Package tokensource is the platform authentication service for the Google
// Photos Library API, built on golang.org/x/oauth2.
//
// An Authenticator keeps one reuse-token-source per (account, scope), seeded
// from the refresh token persisted for the account. ClearToken drops that
// source so the next GetToken performs a real refresh instead of handing back
// a cached access token. Rotated refresh tokens are written back to storage.
//
//	auth, err := tokensource.New(clientID, clientSecret, store)
//	tok, err := auth.GetToken(ctx, broker.Identity{AccountID: "alice@example.com"}, tokensource.ScopePhotosReadOnly)
//
// # Custom Base Transport
//
// Configure a custom base transport for token refresh requests (e.g., for proxies or custom timeouts):
//
//	auth, err := tokensource.New(
//		clientID, clientSecret, store,
//		tokensource.WithTransport(customTransport),
//	)
package tokensource
