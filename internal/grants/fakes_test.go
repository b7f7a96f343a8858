package grants

import (
	"context"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"testing/fstest"

	"github.com/photolala/photolala-access/internal/capability"
)

type fakeHandle struct {
	path string
}

func (h *fakeHandle) Path() string { return h.path }
func (h *fakeHandle) FS() fs.FS    { return fstest.MapFS{} }

// fakeScope mints "path|n" blobs. Paths in revoked are stale.
type fakeScope struct {
	mu       sync.Mutex
	minted   int
	open     map[*fakeHandle]bool
	revoked  map[string]bool
	refresh  bool
	onActive func() // runs after a successful activation
}

func newFakeScope() *fakeScope {
	return &fakeScope{open: make(map[*fakeHandle]bool), revoked: make(map[string]bool)}
}

func (f *fakeScope) Activate(_ context.Context, blob []byte) (Activation, error) {
	path, _, ok := strings.Cut(string(blob), "|")
	if !ok {
		return Activation{}, fmt.Errorf("corrupt blob: %w", capability.ErrStale)
	}

	f.mu.Lock()
	if f.revoked[path] {
		f.mu.Unlock()
		return Activation{}, fmt.Errorf("bookmark for %s: %w", path, capability.ErrStale)
	}

	h := &fakeHandle{path: path}
	f.open[h] = true
	f.mu.Unlock()

	if f.onActive != nil {
		f.onActive()
	}

	return Activation{Handle: h, NeedsRefresh: f.refresh}, nil
}

func (f *fakeScope) Mint(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.minted++

	return fmt.Appendf(nil, "%s|%d", path, f.minted), nil
}

func (f *fakeScope) Release(h Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fh, ok := h.(*fakeHandle)
	if !ok || !f.open[fh] {
		return fmt.Errorf("unknown handle")
	}
	delete(f.open, fh)

	return nil
}

func (f *fakeScope) openHandles() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.open)
}

// memRepo is an in-memory Repository.
type memRepo struct {
	mu     sync.Mutex
	grants map[string]ResourceGrant
}

func newMemRepo() *memRepo {
	return &memRepo{grants: make(map[string]ResourceGrant)}
}

func (r *memRepo) Get(_ context.Context, key string) (*ResourceGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.grants[key]
	if !ok {
		return nil, nil //nolint:nilnil
	}

	return &g, nil
}

func (r *memRepo) Put(_ context.Context, key string, grant ResourceGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.grants[key] = grant

	return nil
}

func (r *memRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.grants, key)

	return nil
}
