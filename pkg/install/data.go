package install

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
	"github.com/arthur-debert/wheelhouse/pkg/record"
	"github.com/arthur-debert/wheelhouse/pkg/scripts"
)

// installData folds the wheel's `.data` directory into the environment. Each
// known subdirectory maps to a scheme directory; anything else is a malformed
// wheel.
func installData(layout *Layout, relocatable bool, sitePackages, dataDir, distName string, console, gui []scripts.Script, entries []record.Entry) error {
	subdirs, err := os.ReadDir(dataDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to read %s", dataDir)
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dataDir, subdir.Name())
		switch subdir.Name() {
		case "data":
			if err := moveFolderRecorded(path, layout.Scheme.Data, sitePackages, entries); err != nil {
				return err
			}
		case "scripts":
			if err := installDataScripts(layout, relocatable, sitePackages, path, console, gui, entries); err != nil {
				return err
			}
		case "headers":
			target := filepath.Join(layout.Scheme.Include, distName)
			if err := moveFolderRecorded(path, target, sitePackages, entries); err != nil {
				return err
			}
		case "purelib":
			if err := moveFolderRecorded(path, layout.Scheme.Purelib, sitePackages, entries); err != nil {
				return err
			}
		case "platlib":
			if err := moveFolderRecorded(path, layout.Scheme.Platlib, sitePackages, entries); err != nil {
				return err
			}
		default:
			return errors.Newf(errors.ErrInvalidWheel, "unknown wheel data type: %q", subdir.Name())
		}
	}
	return nil
}

// moveFolderRecorded moves the contents of srcDir under destDir, updating the
// RECORD entry of every moved file to its new location.
func moveFolderRecorded(srcDir, destDir, sitePackages string, entries []record.Entry) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create %s", destDir)
	}

	mover := &renameOrCopy{}
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, errors.ErrIO, "failed to walk %s", srcDir)
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", path)
		}
		target := filepath.Join(destDir, rel)

		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return errors.Wrapf(err, errors.ErrIO, "failed to create %s", target)
			}
			return nil
		}

		entry, err := findRecorded(entries, sitePackages, path)
		if err != nil {
			return err
		}
		if err := mover.move(path, target); err != nil {
			return err
		}
		newRel, err := filepath.Rel(sitePackages, target)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", target)
		}
		entry.Path = filepath.ToSlash(newRel)
		return nil
	})
}

// findRecorded locates the RECORD entry for a file currently at path.
func findRecorded(entries []record.Entry, sitePackages, path string) (*record.Entry, error) {
	rel, err := filepath.Rel(sitePackages, path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", path)
	}
	recorded := filepath.ToSlash(rel)
	for i := range entries {
		if entries[i].Path == recorded {
			return &entries[i], nil
		}
	}
	return nil, errors.Newf(errors.ErrRecordFile, "RECORD file is missing path %s", recorded)
}

// installDataScripts installs the wheel's prebuilt scripts into the scripts
// directory, rewriting `#!python` shebangs to point at the environment's
// interpreter. Scripts whose name collides with a generated entry-point
// launcher are skipped; the launcher wins.
func installDataScripts(layout *Layout, relocatable bool, sitePackages, scriptsDir string, console, gui []scripts.Script, entries []record.Entry) error {
	if err := os.MkdirAll(layout.Scheme.Scripts, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create %s", layout.Scheme.Scripts)
	}

	files, err := os.ReadDir(scriptsDir)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to read %s", scriptsDir)
	}

	mover := &renameOrCopy{}
	for _, file := range files {
		if isEntrypointScript(file.Name(), console, gui) {
			continue
		}
		if err := installScript(layout, relocatable, sitePackages, scriptsDir, file, mover, entries); err != nil {
			return err
		}
	}
	return nil
}

// isEntrypointScript reports whether a data script duplicates a generated
// entry-point launcher. The comparison strips the wrapper suffixes setuptools
// historically emits.
func isEntrypointScript(filename string, console, gui []scripts.Script) bool {
	name := filename
	name = strings.TrimSuffix(name, ".exe")
	name = strings.TrimSuffix(name, "-script.py")
	name = strings.TrimSuffix(name, ".pya")
	for _, script := range console {
		if script.Name == name {
			return true
		}
	}
	for _, script := range gui {
		if script.Name == name {
			return true
		}
	}
	return false
}

// installScript moves a single prebuilt script into place. A `#!python` or
// `#!pythonw` placeholder on the first line is replaced with a shebang for the
// environment's interpreter, which also changes the file's hash and size in
// RECORD.
func installScript(layout *Layout, relocatable bool, sitePackages, scriptsDir string, file fs.DirEntry, mover *renameOrCopy, entries []record.Entry) error {
	logger := logging.GetLogger("install")
	path := filepath.Join(scriptsDir, file.Name())

	if !file.Type().IsRegular() {
		// Tolerate symlinks to regular files; everything else is malformed.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return errors.Newf(errors.ErrInvalidWheel,
				"wheel contains entry in scripts directory that is not a file: %s", path)
		}
	}

	target := filepath.Join(layout.Scheme.Scripts, file.Name())
	targetRel, err := filepath.Rel(sitePackages, target)
	if err != nil {
		return errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", target)
	}
	entry, err := findRecorded(entries, sitePackages, path)
	if err != nil {
		return err
	}

	src, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to open %s", path)
	}

	placeholder := make([]byte, len("#!pythonw"))
	n, err := io.ReadFull(src, placeholder)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		_ = src.Close()
		return errors.Wrapf(err, errors.ErrIO, "failed to read %s", path)
	}
	placeholder = placeholder[:n]

	var start int64
	var isGUI bool
	switch {
	case bytes.HasPrefix(placeholder, []byte("#!pythonw")):
		start, isGUI = int64(len("#!pythonw")), true
	case bytes.HasPrefix(placeholder, []byte("#!python")):
		start, isGUI = int64(len("#!python")), false
	default:
		// No placeholder: move the file as-is, keeping its hash.
		_ = src.Close()
		if err := mover.move(path, target); err != nil {
			return err
		}
		if layout.OSName == "posix" {
			if err := markScriptExecutable(target, logger); err != nil {
				return err
			}
		}
		entry.Path = filepath.ToSlash(targetRel)
		return nil
	}

	if _, err := src.Seek(start, io.SeekStart); err != nil {
		_ = src.Close()
		return errors.Wrapf(err, errors.ErrIO, "failed to seek in %s", path)
	}

	executable, err := scriptExecutable(layout, relocatable, isGUI)
	if err != nil {
		_ = src.Close()
		return err
	}
	shebang := scripts.FormatShebang(executable, layout.OSName, relocatable)

	size, hash, err := writeRewrittenScript(target, shebang, src)
	_ = src.Close()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to remove %s", path)
	}
	if layout.OSName == "posix" {
		if err := markExecutable(target); err != nil {
			return err
		}
	}

	entry.Path = filepath.ToSlash(targetRel)
	entry.Hash = hash
	entry.Size = record.FormatSize(size)
	return nil
}

// writeRewrittenScript writes shebang plus the remainder of src to target via
// a temp file in the same directory, returning the size and hash of the new
// content.
func writeRewrittenScript(target, shebang string, src io.Reader) (int64, string, error) {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".script-")
	if err != nil {
		return 0, "", errors.Wrapf(err, errors.ErrIO, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	size, hash, err := record.CopyAndHash(tmp, io.MultiReader(strings.NewReader(shebang+"\n"), src))
	if err != nil {
		cleanup()
		return 0, "", errors.Wrapf(err, errors.ErrIO, "failed to write %s", target)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return 0, "", errors.Wrapf(err, errors.ErrIO, "failed to close %s", tmpName)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return 0, "", errors.Wrapf(err, errors.ErrIO, "failed to rename %s to %s", tmpName, target)
	}
	return size, hash, nil
}

// markScriptExecutable ensures a moved data script is executable, warning when
// the wheel forgot the bit.
func markScriptExecutable(path string, logger zerolog.Logger) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to stat %s", path)
	}
	if info.Mode().Perm()&0o111 == 0 {
		logger.Warn().Str("script", path).Msg("Script missing the executable bit")
		if err := os.Chmod(path, info.Mode().Perm()|0o111); err != nil {
			return errors.Wrapf(err, errors.ErrIO, "failed to chmod %s", path)
		}
	}
	return nil
}

// renameOrCopy moves files with os.Rename, degrading permanently to copying
// after the first cross-device failure. The source tree is removed wholesale
// afterwards, so copies never need to delete their source.
type renameOrCopy struct {
	copy bool
}

func (r *renameOrCopy) move(from, to string) error {
	if !r.copy {
		if err := os.Rename(from, to); err == nil {
			return nil
		}
		r.copy = true
	}

	src, err := os.Open(from)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to open %s", from)
	}
	defer func() { _ = src.Close() }()
	info, err := src.Stat()
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to stat %s", from)
	}
	dst, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create %s", to)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return errors.Wrapf(err, errors.ErrIO, "failed to copy %s to %s", from, to)
	}
	return dst.Close()
}
