package tokensource

import (
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Photos Library API scopes.
const (
	ScopePhotosReadOnly   = "https://www.googleapis.com/auth/photoslibrary.readonly"
	ScopePhotosAppendOnly = "https://www.googleapis.com/auth/photoslibrary.appendonly"
)

// scopeAliases lets configuration and the CLI use short scope names.
var scopeAliases = map[string]string{
	"photos.readonly":   ScopePhotosReadOnly,
	"photos.appendonly": ScopePhotosAppendOnly,
}

// ResolveScope expands a short alias such as "photos.readonly"; other values pass through.
func ResolveScope(scope string) string {
	if full, ok := scopeAliases[scope]; ok {
		return full
	}

	return scope
}

// Endpoint defines the OAuth2 endpoints for Google accounts.
var Endpoint = oauth2.Endpoint{
	AuthURL:   google.Endpoint.AuthURL,
	TokenURL:  google.Endpoint.TokenURL,
	AuthStyle: oauth2.AuthStyleInParams,
}
