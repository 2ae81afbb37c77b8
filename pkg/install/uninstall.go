package install

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
	"github.com/arthur-debert/wheelhouse/pkg/record"
	"github.com/arthur-debert/wheelhouse/pkg/wheel"
)

// UninstallReport summarizes what an uninstallation removed.
type UninstallReport struct {
	FileCount int
	DirCount  int
}

// FindInstalled locates the dist-info directory for a package in
// site-packages, matching on the PEP 503 normalized name. Returns "" when the
// package is not installed.
func FindInstalled(sitePackages, name string) (string, error) {
	dirEntries, err := os.ReadDir(sitePackages)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrIO, "failed to read %s", sitePackages)
	}

	normalized := wheel.NormalizeName(name)
	for _, entry := range dirEntries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dist-info") {
			continue
		}
		prefix := strings.TrimSuffix(entry.Name(), ".dist-info")
		distName, _, found := strings.Cut(prefix, "-")
		// The dist-info prefix is `<name>-<version>`, with the name escaped so
		// it contains no dashes.
		if !found {
			continue
		}
		if wheel.NormalizeName(distName) == normalized {
			return filepath.Join(sitePackages, entry.Name()), nil
		}
	}
	return "", nil
}

// Uninstall removes every file the RECORD of the given dist-info directory
// lists, then sweeps newly empty directories. Stray `__pycache__` directories
// inside swept directories are removed too, since Python creates them behind
// RECORD's back.
func Uninstall(distInfoDir string) (*UninstallReport, error) {
	logger := logging.GetLogger("uninstall")
	sitePackages := filepath.Dir(distInfoDir)

	recordPath := filepath.Join(distInfoDir, "RECORD")
	f, err := os.Open(recordPath)
	if os.IsNotExist(err) {
		return nil, errors.Newf(errors.ErrMissingRecord, "RECORD file not found at %s", recordPath)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "failed to open %s", recordPath)
	}
	entries, err := record.Read(f)
	_ = f.Close()
	if err != nil {
		return nil, err
	}

	report := &UninstallReport{}
	visited := make(map[string]bool)

	for _, entry := range entries {
		path := filepath.Join(sitePackages, filepath.FromSlash(entry.Path))

		// Everything between the file and site-packages is a removal
		// candidate once the files are gone.
		for dir := filepath.Dir(path); strings.HasPrefix(dir, sitePackages) && dir != sitePackages; dir = filepath.Dir(dir) {
			visited[dir] = true
		}

		err := os.Remove(path)
		if os.IsNotExist(err) {
			logger.Debug().Str("path", path).Msg("Recorded file already gone")
			continue
		}
		if err != nil {
			// RECORD occasionally lists directories (pip does this for some
			// editable installs); take the whole subtree.
			if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
				if err := os.RemoveAll(path); err != nil {
					return nil, errors.Wrapf(err, errors.ErrIO, "failed to remove %s", path)
				}
				report.DirCount++
				continue
			}
			return nil, errors.Wrapf(err, errors.ErrIO, "failed to remove %s", path)
		}
		report.FileCount++
	}

	// Deepest directories first, so emptiness propagates upward.
	dirs := make([]string, 0, len(visited))
	for dir := range visited {
		dirs = append(dirs, dir)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	for _, dir := range dirs {
		removed, pycacheCount, err := removeIfEmpty(dir)
		if err != nil {
			return nil, err
		}
		report.DirCount += pycacheCount
		if removed {
			report.DirCount++
		}
	}

	return report, nil
}

// removeIfEmpty removes dir when it holds nothing, or nothing but a
// `__pycache__` directory. Returns whether dir itself was removed and how
// many pycache subtrees went with it.
func removeIfEmpty(dir string) (bool, int, error) {
	dirEntries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, errors.Wrapf(err, errors.ErrIO, "failed to read %s", dir)
	}

	pycacheCount := 0
	if len(dirEntries) == 1 && dirEntries[0].Name() == "__pycache__" && dirEntries[0].IsDir() {
		if err := os.RemoveAll(filepath.Join(dir, "__pycache__")); err != nil {
			return false, 0, errors.Wrapf(err, errors.ErrIO, "failed to remove %s", dir)
		}
		pycacheCount = 1
		dirEntries = nil
	}
	if len(dirEntries) > 0 {
		return false, pycacheCount, nil
	}

	if err := os.Remove(dir); err != nil {
		if os.IsNotExist(err) {
			return false, pycacheCount, nil
		}
		return false, pycacheCount, errors.Wrapf(err, errors.ErrIO, "failed to remove %s", dir)
	}
	return true, pycacheCount, nil
}
