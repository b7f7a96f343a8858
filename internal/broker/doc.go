// Package broker owns the lifecycle of short-lived bearer credentials for the
// remote photo library, one per scope.
//
// The broker never trusts an expiry on the client side: a credential is valid
// until the remote API rejects it. Tokens come from an Authenticator (the
// platform authentication service, which may silently refresh) for the
// identity an AccountRegistry reports as signed in.
//
// Acquire, Invalidate and Renew for one scope are serialized, so a
// rejection-triggered invalidate-and-reacquire cannot interleave with a
// concurrent acquire on the same scope:
//
//	cred, err := b.Acquire(ctx, scope)
//	// ... remote call rejects cred ...
//	cred, err = b.Renew(ctx, scope, cred)
package broker
