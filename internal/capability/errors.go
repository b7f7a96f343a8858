package capability

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is(err, capability.ErrStale) to check.
var (
	// ErrNoIdentity means no account is signed in. Expected state, never retried.
	ErrNoIdentity = errors.New("capability: no signed-in identity")

	// ErrTransientAuth covers network and service failures. Callers may retry with their own backoff.
	ErrTransientAuth = errors.New("capability: transient authentication failure")

	// ErrPermanentAuth means the account was revoked or the scope denied; re-authentication is required.
	ErrPermanentAuth = errors.New("capability: permanent authentication failure")

	// ErrNotFound means no resource grant is persisted for the path.
	ErrNotFound = errors.New("capability: resource grant not found")

	// ErrStale means the OS no longer honors the persisted resource grant.
	ErrStale = errors.New("capability: resource grant stale")

	// ErrCanceled means the owning operation was abandoned.
	ErrCanceled = errors.New("capability: cancellation requested")

	// ErrCredentialRejected is the structured signal a remote-call layer returns
	// when the presented credential is no longer accepted (e.g. HTTP 401).
	ErrCredentialRejected = errors.New("capability: credential rejected")

	// ErrRegrantRequired is attached to NotFound and Stale results of the
	// coordinator: the user must grant access to the path again.
	ErrRegrantRequired = errors.New("capability: interactive re-grant required")
)

// Kind names the capability family an operation works on.
type Kind string

const (
	KindToken         Kind = "token"
	KindResourceGrant Kind = "resource_grant"
)

// Error wraps a sentinel with the operation and key it happened on.
type Error struct {
	Op   string // e.g. "acquire", "restore"
	Kind Kind
	Key  string // scope or normalized path
	Err  error  // chain containing a sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}

	return fmt.Sprintf("%s %s %q: %v", e.Kind, e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns nil for a nil err, otherwise an *Error around it.
func Wrap(op string, kind Kind, key string, err error) error {
	if err == nil {
		return nil
	}

	return &Error{Op: op, Kind: kind, Key: key, Err: err}
}

// Canceled maps context cancellation to ErrCanceled. The original context
// error stays reachable through errors.Is. Other errors pass through untouched.
func Canceled(ctx context.Context, err error) error {
	if err == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrCanceled, ctxErr)
		}

		return nil
	}

	if errors.Is(err, ErrCanceled) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	return err
}

// NeedsUserAction reports whether err can only be resolved by the user
// (sign-in, re-authentication or re-granting a folder).
func NeedsUserAction(err error) bool {
	return errors.Is(err, ErrNoIdentity) ||
		errors.Is(err, ErrPermanentAuth) ||
		errors.Is(err, ErrRegrantRequired) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrStale)
}

// Retryable reports whether a caller may retry err with backoff.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientAuth) && !NeedsUserAction(err) && !errors.Is(err, ErrCanceled)
}
