package install

import (
	"encoding/csv"
	"io"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/record"
)

// Link is one row of the dist-info LINKS file: a symlink to create at Source
// pointing at Target, both relative to site-packages.
type Link struct {
	Source string
	Target string
}

// readLinksFile reads `<prefix>.dist-info/LINKS` from the installed
// dist-info. An absent file means the wheel ships no symlinks.
func readLinksFile(sitePackages, distInfoPrefix string) ([]Link, error) {
	path := filepath.Join(sitePackages, distInfoPrefix+".dist-info", "LINKS")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrIO, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var links []Link
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrLinksFormat, "failed to parse LINKS")
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		if len(row) < 2 {
			return nil, errors.Newf(errors.ErrLinksFormat,
				"LINKS row must have at least 2 fields, got %d", len(row))
		}
		links = append(links, Link{Source: row[0], Target: row[1]})
	}
	return links, nil
}

// validateLinks rejects a LINKS file whose entries escape site-packages, form
// a cycle, or point at files the wheel does not install.
func validateLinks(links []Link, entries []record.Entry) error {
	for _, link := range links {
		if pathEscapesNamespace(link.Source) {
			return errors.Newf(errors.ErrLinksPathEscape,
				"link source escapes the installation directory: %s", link.Source)
		}
		if pathEscapesNamespace(link.Target) {
			return errors.Newf(errors.ErrLinksPathEscape,
				"link target escapes the installation directory: %s", link.Target)
		}
	}

	targets := make(map[string]string, len(links))
	sources := make([]string, 0, len(links))
	for _, link := range links {
		source := normalizeLinkPath(link.Source)
		targets[source] = normalizeLinkPath(link.Target)
		sources = append(sources, source)
	}
	sort.Strings(sources)

	// A chain of links must bottom out at a real file; follow each source
	// until the target is no longer itself a link.
	for _, start := range sources {
		seen := map[string]bool{start: true}
		current := start
		for {
			next, ok := targets[current]
			if !ok {
				break
			}
			if seen[next] {
				return errors.Newf(errors.ErrLinksCycle, "link cycle involving %s", start)
			}
			seen[next] = true
			current = next
		}
	}

	installed := make(map[string]bool, len(entries))
	for _, entry := range entries {
		installed[normalizeLinkPath(entry.Path)] = true
	}
	for _, link := range links {
		target := normalizeLinkPath(link.Target)
		if !installed[target] {
			if _, isLink := targets[target]; !isLink {
				return errors.Newf(errors.ErrLinksDangling,
					"link target is not installed by this wheel: %s", link.Target)
			}
		}
	}
	return nil
}

// pathEscapesNamespace reports whether a relative slash path can point outside
// the directory it is anchored in. Absolute paths always escape.
func pathEscapesNamespace(p string) bool {
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) {
		return true
	}
	depth := 0
	for _, component := range strings.Split(p, "/") {
		switch component {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

// normalizeLinkPath resolves `.` and `..` components lexically.
func normalizeLinkPath(p string) string {
	return path.Clean(p)
}

// installLinks materializes validated LINKS entries as relative symlinks and
// records them. Symlink rows carry no hash or size in RECORD.
func installLinks(sitePackages string, links []Link, entries *[]record.Entry) error {
	if runtime.GOOS == "windows" {
		return errors.New(errors.ErrLinksUnsupported,
			"wheel contains symlinks, which are not supported on this platform")
	}

	for _, link := range links {
		source := filepath.Join(sitePackages, filepath.FromSlash(link.Source))
		dir := filepath.Dir(source)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrIO, "failed to create %s", dir)
		}

		// Relative target so the environment stays relocatable.
		target, err := filepath.Rel(dir, filepath.Join(sitePackages, filepath.FromSlash(link.Target)))
		if err != nil {
			return errors.Wrapf(err, errors.ErrInternal, "failed to relativize %s", link.Target)
		}
		if err := os.Symlink(target, source); err != nil {
			return errors.Wrapf(err, errors.ErrIO, "failed to create symlink %s", source)
		}

		*entries = append(*entries, record.Entry{Path: path.Clean(filepath.ToSlash(link.Source))})
	}
	return nil
}
