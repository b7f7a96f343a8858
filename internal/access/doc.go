// Package access composes the token broker and the resource grant store.
//
// A Coordinator hands a currently valid capability to an operation, and when
// the operation reports capability.ErrCredentialRejected it renews the
// credential and runs the operation one more time. Nothing here loops: a
// second rejection becomes capability.ErrPermanentAuth and the key is
// reported denied. Denial is not cached: later calls still go to the broker
// or the grant store, so a sign-in or grant made by another process is seen
// on the next call, and Authorize or Grant clear it in this one.
package access
