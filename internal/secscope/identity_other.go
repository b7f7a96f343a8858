//go:build !unix

package secscope

import "io/fs"

// fileIdentity is unavailable; grants fall back to path-only checks.
func fileIdentity(fs.FileInfo) (dev, ino uint64, ok bool) {
	return 0, 0, false
}
