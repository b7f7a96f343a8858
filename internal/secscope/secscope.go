// Package secscope implements the OS security-scope API for platforms without
// sandbox bookmarks. A grant blob records the directory path and its file
// identity (device and inode); activation re-opens the directory as an
// os.Root confined to it and checks the identity still matches, so a path
// that was moved, replaced, unmounted or made unreadable reports stale.
package secscope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/photolala/photolala-access/internal/capability"
	"github.com/photolala/photolala-access/internal/grants"
)

const blobVersion = 1

// DefaultMaxAge is how old a blob may get before activation asks for a refresh.
const DefaultMaxAge = 7 * 24 * time.Hour

// blob is the minted grant payload.
type blob struct {
	Version  int       `json:"v"`
	Path     string    `json:"path"`
	Device   uint64    `json:"dev,omitempty"`
	Inode    uint64    `json:"ino,omitempty"`
	MintedAt time.Time `json:"minted_at"`
}

// Handle is an activated grant: an os.Root confined to the granted directory.
type Handle struct {
	path string
	root *os.Root
}

func (h *Handle) Path() string { return h.path }

func (h *Handle) FS() fs.FS { return h.root.FS() }

// Root exposes the confined directory for writes.
func (h *Handle) Root() *os.Root { return h.root }

// Scope is the portable grants.ScopeAPI.
type Scope struct {
	maxAge time.Duration
	now    func() time.Time
}

// Compile-time check to ensure Scope implements grants.ScopeAPI
var _ grants.ScopeAPI = (*Scope)(nil)

// New creates a Scope. maxAge <= 0 selects DefaultMaxAge.
func New(maxAge time.Duration) *Scope {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	return &Scope{maxAge: maxAge, now: time.Now}
}

// Mint records the identity of the directory at path.
func (s *Scope) Mint(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("secscope: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("secscope: %s is not a directory", path)
	}

	dev, ino, _ := fileIdentity(info)

	data, err := json.Marshal(blob{
		Version:  blobVersion,
		Path:     path,
		Device:   dev,
		Inode:    ino,
		MintedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("secscope: encoding blob: %w", err)
	}

	return data, nil
}

// Activate opens the directory recorded in raw. Missing, replaced or
// unreadable directories and undecodable blobs are reported as
// capability.ErrStale.
func (s *Scope) Activate(ctx context.Context, raw []byte) (grants.Activation, error) {
	if err := ctx.Err(); err != nil {
		return grants.Activation{}, err
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		return grants.Activation{}, fmt.Errorf("secscope: decoding blob: %w: %w", capability.ErrStale, err)
	}
	if b.Version != blobVersion || b.Path == "" {
		return grants.Activation{}, fmt.Errorf("secscope: unsupported blob version %d: %w", b.Version, capability.ErrStale)
	}

	root, err := os.OpenRoot(b.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || !isDir(b.Path) {
			return grants.Activation{}, fmt.Errorf("secscope: %w: %w", capability.ErrStale, err)
		}

		return grants.Activation{}, fmt.Errorf("secscope: opening %s: %w", b.Path, err)
	}

	info, err := root.Stat(".")
	if err != nil {
		root.Close()
		return grants.Activation{}, fmt.Errorf("secscope: %w: %w", capability.ErrStale, err)
	}

	if dev, ino, ok := fileIdentity(info); ok && b.Inode != 0 && (dev != b.Device || ino != b.Inode) {
		root.Close()
		return grants.Activation{}, fmt.Errorf("secscope: %s was replaced: %w", b.Path, capability.ErrStale)
	}

	return grants.Activation{
		Handle:       &Handle{path: b.Path, root: root},
		NeedsRefresh: s.now().Sub(b.MintedAt) > s.maxAge,
	}, nil
}

// Release closes the handle's root.
func (s *Scope) Release(h grants.Handle) error {
	sh, ok := h.(*Handle)
	if !ok {
		return fmt.Errorf("secscope: foreign handle %T", h)
	}

	return sh.root.Close()
}

// isDir reports whether path still names a directory. A folder replaced by a
// file fails os.OpenRoot with ENOTDIR, which no fs sentinel covers.
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
