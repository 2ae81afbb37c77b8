package install

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/record"
)

// writeFileRecorded writes content to relPath (relative to site-packages,
// forward or native slashes) through a temp file in the destination directory
// and appends a RECORD entry for it.
func writeFileRecorded(sitePackages, relPath string, content []byte, entries *[]record.Entry) error {
	path := filepath.Join(sitePackages, filepath.FromSlash(relPath))
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".recorded-")
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to create temp file in %s", dir)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrIO, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrIO, "failed to close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(err, errors.ErrIO, "failed to rename %s to %s", tmpName, path)
	}

	*entries = append(*entries, record.Entry{
		Path: filepath.ToSlash(relPath),
		Hash: record.Digest(content),
		Size: record.FormatSize(int64(len(content))),
	})
	return nil
}

// writeInstallerMetadata writes the provenance files of PEP 376 and PEP 610
// into the installed dist-info: REQUESTED, direct_url.json and INSTALLER.
func writeInstallerMetadata(sitePackages, distInfoPrefix string, opts Options, entries *[]record.Entry) error {
	distInfo := distInfoPrefix + ".dist-info"

	if opts.Requested {
		if err := writeFileRecorded(sitePackages, distInfo+"/REQUESTED", nil, entries); err != nil {
			return err
		}
	}
	if opts.DirectURL != nil {
		payload, err := json.Marshal(opts.DirectURL)
		if err != nil {
			return errors.Wrap(err, errors.ErrInternal, "failed to serialize direct_url.json")
		}
		if err := writeFileRecorded(sitePackages, distInfo+"/direct_url.json", payload, entries); err != nil {
			return err
		}
	}
	if opts.Installer != "" {
		content := []byte(opts.Installer + "\n")
		if err := writeFileRecorded(sitePackages, distInfo+"/INSTALLER", content, entries); err != nil {
			return err
		}
	}
	return nil
}
