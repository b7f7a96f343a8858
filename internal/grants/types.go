package grants

import (
	"context"
	"io/fs"
	"log/slog"
	"time"
)

// ResourceGrant is the persisted permission to re-open Path.
type ResourceGrant struct {
	Path      string    `json:"path"`
	Blob      []byte    `json:"blob"`
	CreatedAt time.Time `json:"created_at"`
}

// LogValue implements slog.LogValuer; the blob itself is never logged.
func (g ResourceGrant) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", g.Path),
		slog.Int("blob_bytes", len(g.Blob)),
		slog.Time("created_at", g.CreatedAt),
	)
}

// Handle is a live, OS-activated access to a granted location.
// It must be handed back to the ScopeAPI that produced it via Release.
type Handle interface {
	// Path is the location the handle grants access to.
	Path() string

	// FS exposes the location as a read-only file system.
	FS() fs.FS
}

// Activation is the result of re-activating a grant blob.
type Activation struct {
	Handle Handle

	// NeedsRefresh reports that the OS still honored the blob but wants a
	// freshly minted one stored.
	NeedsRefresh bool
}

// ScopeAPI is the OS security-scope facility.
type ScopeAPI interface {
	// Activate re-opens the location encoded in blob. Errors wrapping
	// capability.ErrStale mean the blob will never work again.
	Activate(ctx context.Context, blob []byte) (Activation, error)

	// Mint creates a new blob for path. The caller must already have access.
	Mint(ctx context.Context, path string) ([]byte, error)

	// Release gives up an activated handle.
	Release(h Handle) error
}

// Repository is the persisted key-value store of grants, keyed by normalized path.
type Repository interface {
	// Get returns nil, nil when no grant is stored for key.
	Get(ctx context.Context, key string) (*ResourceGrant, error)
	Put(ctx context.Context, key string, grant ResourceGrant) error
	Delete(ctx context.Context, key string) error
}
