// Package capability holds the vocabulary shared by the credential and
// resource-grant lifecycle: the error taxonomy surfaced to callers and the
// per-key lock that serializes acquire and invalidate for one scope or path.
//
// Every failure returned by the broker, the grant store and the coordinator
// unwraps to exactly one of the sentinel errors below, so callers branch with
// errors.Is:
//
//	switch {
//	case errors.Is(err, capability.ErrNoIdentity):
//		// prompt sign-in
//	case errors.Is(err, capability.ErrRegrantRequired):
//		// prompt the user to pick the folder again
//	case errors.Is(err, capability.ErrTransientAuth):
//		// retry later with backoff
//	}
package capability
