//go:build darwin

package linker

import (
	"os"

	"golang.org/x/sys/unix"
)

// clonefile(2) clones directories recursively in a single call, so the clone
// strategy only needs to walk the top level of the wheel.
const canCloneDirectories = true

// reflinkFile clones from into to via clonefile(2). The destination must not
// exist; EEXIST surfaces as fs.ErrExist through the returned LinkError.
func reflinkFile(from, to string) error {
	if err := unix.Clonefile(from, to, 0); err != nil {
		return &os.LinkError{Op: "clonefile", Old: from, New: to, Err: err}
	}
	return nil
}
