//go:build linux

package linker

import (
	"os"

	"golang.org/x/sys/unix"
)

// The FICLONE ioctl does not support directories, so the clone strategy
// recurses file by file.
const canCloneDirectories = false

// reflinkFile clones from into to via the FICLONE ioctl. Only some
// filesystems (btrfs, xfs, ...) support it, and never across filesystem
// boundaries. The destination must not exist.
func reflinkFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}

	if err := unix.IoctlFileClone(int(dst.Fd()), int(src.Fd())); err != nil {
		_ = dst.Close()
		_ = os.Remove(to)
		return &os.LinkError{Op: "reflink", Old: from, New: to, Err: err}
	}
	return dst.Close()
}
