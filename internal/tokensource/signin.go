package tokensource

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/photolala/photolala-access/internal/capability"
)

// DefaultRedirectURL is the loopback redirect for installed applications. The
// browser fails to load it after consent; the code is read from its address bar.
const DefaultRedirectURL = "http://127.0.0.1"

// AuthCodeURL returns the consent page for an interactive sign-in. verifier is
// a PKCE verifier from oauth2.GenerateVerifier and must be passed to Exchange.
func (a *Authenticator) AuthCodeURL(scope, state, verifier string) string {
	return a.oauthConfig(scope).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)
}

// Exchange trades an authorization code for tokens and stores the refresh
// token for account, replacing any previous one.
func (a *Authenticator) Exchange(ctx context.Context, account, scope, code, verifier string) error {
	if code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := a.oauthConfig(scope).Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return capability.Canceled(ctx, ctxErr)
		}
		return classify(err)
	}

	if tok.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token issued, revoke the app's access and sign in again", capability.ErrPermanentAuth)
	}

	if err := a.SaveRefreshToken(ctx, account, tok.RefreshToken); err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "signed in", "account", account)

	return nil
}
