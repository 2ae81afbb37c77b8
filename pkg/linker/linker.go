// Package linker materializes an unpacked wheel's file tree into a target
// directory using one of four strategies: copy-on-write clone, plain copy,
// hard link, or symlink. Strategies that depend on filesystem capabilities
// degrade to plain copy when the capability turns out to be missing.
package linker

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	wherrors "github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
)

// Syscall indirection points, swappable in tests to exercise the fallback
// ladders on filesystems that do support the capability.
var (
	hardLink = os.Link
	symlink  = os.Symlink
	reflink  = reflinkFile
)

// LinkMode selects the file materialization strategy.
type LinkMode int

const (
	// Clone duplicates files via copy-on-write reflinks.
	Clone LinkMode = iota
	// Copy performs plain byte copies. Works everywhere; the universal
	// fallback for the other modes.
	Copy
	// Hardlink links destination paths to the wheel's inodes.
	Hardlink
	// Symlink points destination paths at the wheel's files. Discouraged:
	// deleting or mutating the cached wheel retroactively breaks every
	// environment that symlinked into it.
	Symlink
)

// Default returns the platform default: Clone on macOS-family systems,
// Hardlink elsewhere.
func Default() LinkMode {
	if runtime.GOOS == "darwin" || runtime.GOOS == "ios" {
		return Clone
	}
	return Hardlink
}

// ParseMode parses a link mode name. The empty string means the platform
// default.
func ParseMode(s string) (LinkMode, error) {
	switch s {
	case "":
		return Default(), nil
	case "clone":
		return Clone, nil
	case "copy":
		return Copy, nil
	case "hardlink":
		return Hardlink, nil
	case "symlink":
		return Symlink, nil
	default:
		return Copy, wherrors.Newf(wherrors.ErrInvalidInput, "unknown link mode %q", s)
	}
}

func (m LinkMode) String() string {
	switch m {
	case Clone:
		return "clone"
	case Copy:
		return "copy"
	case Hardlink:
		return "hardlink"
	case Symlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// IsSymlink reports whether the mode is Symlink.
func (m LinkMode) IsSymlink() bool {
	return m == Symlink
}

// LinkWheelFiles materializes all files of the unpacked wheel at wheelDir
// into sitePackages, returning the number of entries processed.
func (m LinkMode) LinkWheelFiles(sitePackages, wheelDir string, locks *Locks) (int, error) {
	switch m {
	case Clone:
		return cloneWheelFiles(sitePackages, wheelDir, locks)
	case Copy:
		return copyWheelFiles(sitePackages, wheelDir, locks)
	case Hardlink:
		return linkWheelFiles(sitePackages, wheelDir, locks, Hardlink, func(from, to string) error {
			return hardLink(from, to)
		})
	case Symlink:
		return linkWheelFiles(sitePackages, wheelDir, locks, Symlink, func(from, to string) error {
			return symlink(from, to)
		})
	default:
		return 0, wherrors.Newf(wherrors.ErrInternal, "unknown link mode %d", m)
	}
}

// job carries the per-installation state of one strategy invocation. It is
// never shared between wheels: each installation owns its own attempt state.
type job struct {
	sitePackages string
	wheel        string
	locks        *Locks
	mode         LinkMode
	attempt      attempt
	warned       bool
	logger       zerolog.Logger
}

func newJob(sitePackages, wheelDir string, locks *Locks, mode LinkMode) *job {
	return &job{
		sitePackages: sitePackages,
		wheel:        wheelDir,
		locks:        locks,
		mode:         mode,
		logger:       logging.GetLogger("linker"),
	}
}

// outPath maps a path inside the wheel to its destination.
func (j *job) outPath(from string) (string, error) {
	rel, err := filepath.Rel(j.wheel, from)
	if err != nil {
		return "", err
	}
	return filepath.Join(j.sitePackages, rel), nil
}

// fallbackToCopy makes the degradation sticky and emits the one user-visible
// warning for this installation.
func (j *job) fallbackToCopy() {
	j.attempt = attemptUseCopyFallback
	if j.warned {
		return
	}
	j.warned = true
	j.logger.Warn().
		Str("mode", j.mode.String()).
		Msgf("Failed to %s files; falling back to full copy. This may lead to degraded performance. "+
			"If the cache and target directories are on different filesystems, %sing may not be supported. "+
			"If this is intentional, use --link-mode=copy to suppress this warning.",
			j.mode, j.mode)
}

// cloneWheelFiles extracts a wheel by cloning all of its files into site
// packages via copy-on-write. Uses clonefile on macOS and the FICLONE ioctl
// on Linux.
func cloneWheelFiles(sitePackages, wheelDir string, locks *Locks) (int, error) {
	j := newJob(sitePackages, wheelDir, locks, Clone)

	entries, err := os.ReadDir(wheelDir)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, entry := range entries {
		if err := j.cloneRecursive(filepath.Join(wheelDir, entry.Name())); err != nil {
			return count, err
		}
		count++
	}

	// Cloning does not update the destination directory's mtime, but CPython
	// uses directory mtimes to decide whether to rescan for new packages.
	// Force the update so cloned installs are importable without manual
	// cache invalidation.
	now := time.Now()
	if err := os.Chtimes(sitePackages, now, now); err != nil {
		j.logger.Debug().Err(err).Str("path", sitePackages).Msg("Failed to update mtime")
	}

	return count, nil
}

// cloneRecursive clones one entry, merging into already-existing destination
// directories and falling back to copy when the filesystem does not support
// reflinks.
func (j *job) cloneRecursive(from string) error {
	to, err := j.outPath(from)
	if err != nil {
		return err
	}

	j.logger.Trace().Str("from", from).Str("to", to).Msg("Cloning")

	info, err := os.Lstat(from)
	if err != nil {
		return err
	}
	isDir := info.IsDir()

	if !canCloneDirectories && isDir {
		if err := os.MkdirAll(to, 0755); err != nil {
			return err
		}
		return j.cloneChildren(from)
	}

	switch j.attempt {
	case attemptInitial:
		if err := reflink(from, to); err != nil {
			if errors.Is(err, fs.ErrExist) {
				if isDir {
					// The destination directory exists already, e.g. from a
					// previous partial install; merge into it recursively.
					if err := j.cloneChildren(from); err != nil {
						return err
					}
				} else {
					linkFailed, err := j.linkOverExisting(from, to, reflink)
					if linkFailed {
						j.logger.Debug().Err(err).Str("from", from).
							Msg("Failed to clone to temporary location, attempting to copy files as a fallback")
						j.fallbackToCopy()
						if err := synchronizedCopy(from, to, j.locks); err != nil {
							return err
						}
					} else if err != nil {
						return err
					}
				}
			} else {
				j.logger.Debug().Err(err).Str("from", from).Str("to", to).
					Msg("Failed to clone, attempting to copy files as a fallback")
				j.fallbackToCopy()
				return j.cloneRecursive(from)
			}
		}
	case attemptSubsequent:
		if err := reflink(from, to); err != nil {
			if errors.Is(err, fs.ErrExist) {
				if isDir {
					return j.cloneChildren(from)
				}
				// Capability is proven, so failures here are genuine.
				if _, err := j.linkOverExisting(from, to, reflink); err != nil {
					return wherrors.Wrapf(err, wherrors.ErrReflink, "failed to clone %s to %s", from, to)
				}
			} else {
				return wherrors.Wrapf(err, wherrors.ErrReflink, "failed to clone %s to %s", from, to)
			}
		}
	case attemptUseCopyFallback:
		if isDir {
			if err := os.MkdirAll(to, 0755); err != nil {
				return err
			}
			return j.cloneChildren(from)
		}
		return synchronizedCopy(from, to, j.locks)
	}

	if j.attempt == attemptInitial {
		j.attempt = attemptSubsequent
	}
	return nil
}

func (j *job) cloneChildren(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := j.cloneRecursive(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyWheelFiles extracts a wheel by copying all of its files into site
// packages. No fallback ladder: this is itself the universal fallback.
func copyWheelFiles(sitePackages, wheelDir string, locks *Locks) (int, error) {
	count := 0
	err := filepath.WalkDir(wheelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(wheelDir, path)
		if err != nil {
			return err
		}
		outPath := filepath.Join(sitePackages, rel)

		if d.IsDir() {
			return os.MkdirAll(outPath, 0755)
		}

		if err := synchronizedCopy(path, outPath, locks); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// linkWheelFiles extracts a wheel by hard-linking or symlinking each of its
// files into site packages.
func linkWheelFiles(sitePackages, wheelDir string, locks *Locks, mode LinkMode, link func(from, to string) error) (int, error) {
	j := newJob(sitePackages, wheelDir, locks, mode)

	count := 0
	err := filepath.WalkDir(wheelDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		outPath, err := j.outPath(path)
		if err != nil {
			return err
		}

		if d.IsDir() {
			return os.MkdirAll(outPath, 0755)
		}

		// RECORD is rewritten during installation, so it is copied instead of
		// linked; a link would corrupt the wheel's cached copy.
		if filepath.Base(path) == "RECORD" {
			if err := synchronizedCopy(path, outPath, locks); err != nil {
				return err
			}
			count++
			return nil
		}

		if err := j.linkFile(path, outPath, link); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// linkFile links a single file, applying the capability probing and fallback
// ladder described on the attempt type.
func (j *job) linkFile(from, to string, link func(from, to string) error) error {
	switch j.attempt {
	case attemptInitial:
		j.attempt = attemptSubsequent
		if err := link(from, to); err != nil {
			if errors.Is(err, fs.ErrExist) {
				j.logger.Debug().Str("path", to).Msg("File already exists (initial attempt), overwriting")
				linkFailed, err := j.linkOverExisting(from, to, link)
				if linkFailed {
					j.logger.Debug().Err(err).Str("from", from).Str("to", to).
						Msg("Failed to link, attempting to copy files as a fallback")
					j.fallbackToCopy()
					return synchronizedCopy(from, to, j.locks)
				}
				return err
			}
			j.logger.Debug().Err(err).Str("from", from).Str("to", to).
				Msg("Failed to link, attempting to copy files as a fallback")
			j.fallbackToCopy()
			return synchronizedCopy(from, to, j.locks)
		}
	case attemptSubsequent:
		if err := link(from, to); err != nil {
			if errors.Is(err, fs.ErrExist) {
				j.logger.Debug().Str("path", to).Msg("File already exists (subsequent attempt), overwriting")
				if _, err := j.linkOverExisting(from, to, link); err != nil {
					return err
				}
				return nil
			}
			// Capability was proven on an earlier file; this is a genuine
			// I/O error, not a capability gap.
			return err
		}
	case attemptUseCopyFallback:
		return synchronizedCopy(from, to, j.locks)
	}
	return nil
}

// linkOverExisting replaces an existing destination by linking into a fresh
// temporary file and renaming it over the destination, so the destination is
// never briefly absent. The first return value reports whether the link
// operation itself failed (as opposed to the temp-dir or rename plumbing).
func (j *job) linkOverExisting(from, to string, link func(from, to string) error) (bool, error) {
	tempDir, err := os.MkdirTemp(j.sitePackages, ".wheelhouse-")
	if err != nil {
		return false, err
	}
	defer func() { _ = os.RemoveAll(tempDir) }()

	tempFile := filepath.Join(tempDir, filepath.Base(to))
	if err := link(from, tempFile); err != nil {
		return true, err
	}
	if err := os.Rename(tempFile, to); err != nil {
		return false, err
	}
	return false, nil
}

// synchronizedCopy copies from into to while holding the lock for the
// destination's parent directory. Concurrent unsynchronized writes into one
// directory corrupt files on certain filesystems and under some antivirus
// software; the lock removes that risk at the cost of one short-lived mutex
// acquisition per file.
func synchronizedCopy(from, to string, locks *Locks) error {
	release := locks.AcquireFor(filepath.Dir(to))
	defer release()

	return copyFile(from, to)
}

// copyFile copies file contents and permissions.
func copyFile(from, to string) error {
	src, err := os.Open(from)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	// The open mode only applies to newly created files; a pre-existing
	// destination keeps its old permissions unless we set them explicitly.
	return os.Chmod(to, info.Mode().Perm())
}
