package install

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/linker"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
	"github.com/arthur-debert/wheelhouse/pkg/record"
	"github.com/arthur-debert/wheelhouse/pkg/scripts"
	"github.com/arthur-debert/wheelhouse/pkg/wheel"
)

// Options configures a single wheel installation.
type Options struct {
	// LinkMode selects the file materialization strategy.
	LinkMode linker.LinkMode
	// Locks serializes copies into shared directories. Pass the same registry
	// to every concurrent installation; nil allocates a private one.
	Locks *linker.Locks
	// DirectURL, when set, is written to direct_url.json (PEP 610).
	DirectURL *DirectURL
	// Installer is recorded in the INSTALLER file.
	Installer string
	// Requested marks the package as directly requested (PEP 376 REQUESTED).
	Requested bool
}

// DirectURL is the PEP 610 provenance payload written to direct_url.json.
type DirectURL struct {
	URL         string       `json:"url"`
	ArchiveInfo *ArchiveInfo `json:"archive_info,omitempty"`
	VCSInfo     *VCSInfo     `json:"vcs_info,omitempty"`
	DirInfo     *DirInfo     `json:"dir_info,omitempty"`
}

// ArchiveInfo describes a wheel installed from an archive URL.
type ArchiveInfo struct {
	Hash   string            `json:"hash,omitempty"`
	Hashes map[string]string `json:"hashes,omitempty"`
}

// VCSInfo describes a wheel built from a version control checkout.
type VCSInfo struct {
	VCS               string `json:"vcs"`
	CommitID          string `json:"commit_id,omitempty"`
	RequestedRevision string `json:"requested_revision,omitempty"`
}

// DirInfo describes a wheel built from a local directory.
type DirInfo struct {
	Editable bool `json:"editable,omitempty"`
}

// Wheel installs the unpacked wheel at wheelDir into the environment described
// by layout. filename is the wheel's original on-disk name; its name and
// version must agree with the METADATA inside the wheel.
//
// The files land in site-packages according to opts.LinkMode, entry points
// become launcher scripts, the .data directory is folded into the environment,
// and the dist-info RECORD is rewritten to cover everything installed.
func Wheel(layout *Layout, relocatable bool, wheelDir, filename string, opts Options) error {
	logger := logging.GetLogger("install")

	parsed, err := wheel.ParseFilename(filename)
	if err != nil {
		return err
	}

	distInfoPrefix, err := wheel.FindDistInfo(wheelDir)
	if err != nil {
		return err
	}
	meta, err := wheel.ReadMetadata(wheelDir, distInfoPrefix)
	if err != nil {
		return err
	}
	if wheel.NormalizeName(meta.Name) != wheel.NormalizeName(parsed.Name) {
		return errors.Newf(errors.ErrMismatchedName,
			"name mismatch: filename says %q, METADATA says %q", parsed.Name, meta.Name)
	}
	if !wheel.VersionMatches(meta.Version, parsed.Version) {
		return errors.Newf(errors.ErrMismatchedVersion,
			"version mismatch: filename says %q, METADATA says %q", parsed.Version, meta.Version)
	}

	libKind, err := wheel.ReadWheelFile(wheelDir, distInfoPrefix)
	if err != nil {
		return err
	}
	sitePackages := layout.Scheme.Purelib
	if libKind == wheel.Plat {
		sitePackages = layout.Scheme.Platlib
	}
	if info, err := os.Stat(sitePackages); err != nil || !info.IsDir() {
		return errors.Newf(errors.ErrBrokenEnv,
			"site-packages directory does not exist: %s", sitePackages)
	}

	locks := opts.Locks
	if locks == nil {
		locks = linker.NewLocks()
	}

	numUnpacked, err := opts.LinkMode.LinkWheelFiles(sitePackages, wheelDir, locks)
	if err != nil {
		return err
	}
	logger.Debug().
		Str("name", meta.Name).
		Str("version", meta.Version).
		Int("files", numUnpacked).
		Str("libKind", libKind.String()).
		Msg("Linked wheel contents")

	entries, err := readWheelRecord(wheelDir, distInfoPrefix)
	if err != nil {
		return err
	}

	console, gui, err := parseScripts(wheelDir, distInfoPrefix, nil, layout.PythonMinor)
	if err != nil {
		return err
	}
	if err := writeScriptEntrypoints(layout, relocatable, sitePackages, console, &entries, false); err != nil {
		return err
	}
	if err := writeScriptEntrypoints(layout, relocatable, sitePackages, gui, &entries, true); err != nil {
		return err
	}

	dataDir := filepath.Join(sitePackages, distInfoPrefix+".data")
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		if err := installData(layout, relocatable, sitePackages, dataDir, meta.Name, console, gui, entries); err != nil {
			return err
		}
		if err := os.RemoveAll(dataDir); err != nil {
			return errors.Wrap(err, errors.ErrIO, "failed to remove .data directory")
		}
	}

	linksEntries, err := readLinksFile(sitePackages, distInfoPrefix)
	if err != nil {
		return err
	}
	if len(linksEntries) > 0 {
		if err := validateLinks(linksEntries, entries); err != nil {
			return err
		}
		if err := installLinks(sitePackages, linksEntries, &entries); err != nil {
			return err
		}
	}

	if err := writeInstallerMetadata(sitePackages, distInfoPrefix, opts, &entries); err != nil {
		return err
	}

	return writeRecord(sitePackages, distInfoPrefix, entries)
}

// readWheelRecord reads the RECORD shipped inside the unpacked wheel.
func readWheelRecord(wheelDir, distInfoPrefix string) ([]record.Entry, error) {
	path := filepath.Join(wheelDir, distInfoPrefix+".dist-info", "RECORD")
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrRecordFile, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()
	return record.Read(f)
}

// writeRecord sorts the entries and rewrites the installed RECORD. The RECORD
// row for RECORD itself carries no hash or size.
func writeRecord(sitePackages, distInfoPrefix string, entries []record.Entry) error {
	record.Sort(entries)

	path := filepath.Join(sitePackages, distInfoPrefix+".dist-info", "RECORD")
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrRecordFile, "failed to create %s", path)
	}
	if err := record.Write(f, entries); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// parseScripts reads the wheel's entry_points.txt. An absent file means no
// entry points, not an error.
func parseScripts(wheelDir, distInfoPrefix string, extras []string, pythonMinor int) ([]scripts.Script, []scripts.Script, error) {
	path := filepath.Join(wheelDir, distInfoPrefix+".dist-info", "entry_points.txt")
	text, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, errors.ErrIO, "failed to read %s", path)
	}
	return scripts.FromIni(extras, pythonMinor, string(text))
}

// writeScriptEntrypoints generates one launcher script per entry point in the
// scripts directory and records it.
func writeScriptEntrypoints(layout *Layout, relocatable bool, sitePackages string, entrypoints []scripts.Script, entries *[]record.Entry, isGUI bool) error {
	for _, ep := range entrypoints {
		if ep.Name == "" || strings.ContainsAny(ep.Name, "/\\") {
			return errors.Newf(errors.ErrInvalidWheel, "invalid entry point name %q", ep.Name)
		}

		scriptPath := filepath.Join(layout.Scheme.Scripts, ep.Name)
		scriptRel, err := filepath.Rel(sitePackages, scriptPath)
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal,
				"failed to relativize %s against %s", scriptPath, sitePackages)
		}

		executable, err := scriptExecutable(layout, relocatable, isGUI)
		if err != nil {
			return err
		}
		shebang := scripts.FormatShebang(executable, layout.OSName, relocatable)
		launcher := scripts.Launcher(ep, shebang)

		if err := writeFileRecorded(sitePackages, scriptRel, []byte(launcher), entries); err != nil {
			return err
		}
		if layout.OSName == "posix" {
			if err := markExecutable(scriptPath); err != nil {
				return err
			}
		}
	}
	return nil
}

// scriptExecutable resolves the interpreter a launcher's shebang points at.
// GUI scripts on Windows use pythonw.exe when it exists next to python.exe so
// that launching them does not open a console window.
func scriptExecutable(layout *Layout, relocatable bool, isGUI bool) (string, error) {
	executable := layout.SysExecutable

	if isGUI && runtime.GOOS == "windows" {
		dir := filepath.Dir(executable)
		base := filepath.Base(executable)
		pythonw := filepath.Join(dir, "pythonw"+strings.TrimPrefix(base, "python"))
		if _, err := os.Stat(pythonw); err == nil {
			executable = pythonw
		}
	}

	if relocatable {
		rel, err := filepath.Rel(layout.Scheme.Scripts, executable)
		if err != nil {
			return "", errors.Wrapf(err, errors.ErrInternal,
				"failed to relativize %s against %s", executable, layout.Scheme.Scripts)
		}
		return filepath.ToSlash(rel), nil
	}
	return executable, nil
}

func markExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to stat %s", path)
	}
	if err := os.Chmod(path, info.Mode().Perm()|0o755); err != nil {
		return errors.Wrapf(err, errors.ErrIO, "failed to chmod %s", path)
	}
	return nil
}
