// Package tokenstore provides small persistent key-value storage for opaque
// tokens: refresh tokens, the signed-in account and encoded resource grants.
//
// Supports four storage backends with different security and deployment tradeoffs:
//   - File: one file per key with atomic writes and secure permissions
//   - Env: Read-only environment variable access (requires external secret management)
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - SQLite: a single local database, suited to many resource grants
//
// Resource grants and OAuth refresh tokens require writable storage (file,
// keyring or sqlite); env storage only serves pre-provisioned credentials.
package tokenstore
