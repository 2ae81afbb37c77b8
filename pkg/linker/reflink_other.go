//go:build !darwin && !linux

package linker

import (
	"errors"
	"os"
)

const canCloneDirectories = false

// reflinkFile is unsupported on this platform; the clone strategy degrades
// to plain copy on the first entry.
func reflinkFile(from, to string) error {
	if _, err := os.Lstat(to); err == nil {
		return &os.LinkError{Op: "reflink", Old: from, New: to, Err: os.ErrExist}
	}
	return &os.LinkError{Op: "reflink", Old: from, New: to, Err: errors.ErrUnsupported}
}
