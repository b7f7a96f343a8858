//go:build unix

package secscope

import (
	"io/fs"
	"syscall"
)

// fileIdentity returns the device and inode numbers of info.
func fileIdentity(info fs.FileInfo) (dev, ino uint64, ok bool) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, 0, false
	}

	return uint64(st.Dev), st.Ino, true //nolint:unconvert // Dev is int32 on darwin
}
