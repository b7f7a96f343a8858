// Package grants persists scoped filesystem access grants so the process can
// re-open a user-chosen location after a restart without prompting again.
//
// A grant's blob is minted by the OS (ScopeAPI) and is opaque here. Every
// Restore is a live check against the OS, never a cache hit on faith: a
// successful restore refreshes the stored blob, a stale one is removed.
package grants
