// Package wheel parses and validates the metadata of an unpacked wheel: the
// on-disk filename, the dist-info directory, and the METADATA and WHEEL
// control files.
package wheel

import (
	"regexp"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
)

// Filename is the parsed form of a wheel's on-disk name, e.g.
// "foo-1.0.0-py3-none-any.whl". Immutable once parsed; used only for
// cross-validation against the wheel's internal metadata.
type Filename struct {
	Name        string
	Version     string
	BuildTag    string
	PythonTag   string
	AbiTag      string
	PlatformTag string
}

// ParseFilename parses a wheel filename of the form
// {name}-{version}(-{build})?-{python}-{abi}-{platform}.whl.
func ParseFilename(filename string) (*Filename, error) {
	stem, ok := strings.CutSuffix(filename, ".whl")
	if !ok {
		return nil, errors.Newf(errors.ErrInvalidFilename, "wheel filename must end in .whl: %q", filename)
	}

	parts := strings.Split(stem, "-")
	switch len(parts) {
	case 5:
		return &Filename{
			Name:        parts[0],
			Version:     parts[1],
			PythonTag:   parts[2],
			AbiTag:      parts[3],
			PlatformTag: parts[4],
		}, nil
	case 6:
		return &Filename{
			Name:        parts[0],
			Version:     parts[1],
			BuildTag:    parts[2],
			PythonTag:   parts[3],
			AbiTag:      parts[4],
			PlatformTag: parts[5],
		}, nil
	default:
		return nil, errors.Newf(errors.ErrInvalidFilename,
			"wheel filename must have 5 or 6 dash-separated fields, got %d: %q", len(parts), filename)
	}
}

var normalizeRe = regexp.MustCompile(`[-_.]+`)

// NormalizeName applies PEP 503 normalization: lowercase, with runs of
// `-`, `_` and `.` collapsed to a single `-`.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllString(name, "-"))
}

// VersionMatches reports whether the version declared in METADATA matches the
// filename's version, either exactly or after stripping the metadata
// version's local segment (`1.0.0+local` matches `1.0.0`).
func VersionMatches(metadataVersion, filenameVersion string) bool {
	if metadataVersion == filenameVersion {
		return true
	}
	stripped, _, found := strings.Cut(metadataVersion, "+")
	return found && stripped == filenameVersion
}
