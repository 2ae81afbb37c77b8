package wheel

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/logging"
)

// LibKind selects the installation root for a wheel.
type LibKind int

const (
	// Pure wheels install into the purelib directory.
	Pure LibKind = iota
	// Plat wheels install into the platlib directory.
	Plat
)

func (k LibKind) String() string {
	if k == Pure {
		return "purelib"
	}
	return "platlib"
}

// ParseWheelFile interprets the WHEEL control file: the Root-Is-Purelib field
// decides purelib vs platlib, and Wheel-Version is checked for compatibility
// (abort on a newer major version, warn on a newer minor version).
func ParseWheelFile(text string) (LibKind, error) {
	logger := logging.GetLogger("wheel")

	headers, err := ParseEmailMessage(strings.NewReader(text))
	if err != nil {
		return Pure, errors.Wrap(err, errors.ErrInvalidWheel, "failed to parse WHEEL file")
	}

	kind := Plat
	if headers.Get("Root-Is-Purelib") == "true" {
		kind = Pure
	}

	wheelVersion := headers.Get("Wheel-Version")
	major, minor, found := strings.Cut(wheelVersion, ".")
	if !found {
		return kind, errors.Newf(errors.ErrInvalidWheel, "invalid Wheel-Version in WHEEL file: %q", wheelVersion)
	}
	// pip ships test wheels with this ancient version; accept it like pip does.
	if major == "0" && minor == "1" {
		logger.Warn().Msg("Ancient wheel version 0.1 (expected is 1.0)")
		return kind, nil
	}
	if major != "1" {
		return kind, errors.Newf(errors.ErrInvalidWheel,
			"unsupported wheel major version (expected 1, got %s)", major)
	}
	minorVersion, err := strconv.Atoi(minor)
	if err != nil {
		return kind, errors.Newf(errors.ErrInvalidWheel, "invalid Wheel-Version in WHEEL file: %q", wheelVersion)
	}
	if minorVersion > 0 {
		logger.Warn().Str("wheelVersion", wheelVersion).Msg("Unsupported wheel minor version (expected 0)")
	}
	return kind, nil
}

// ReadWheelFile reads and parses `<prefix>.dist-info/WHEEL`.
func ReadWheelFile(wheelDir, distInfoPrefix string) (LibKind, error) {
	path := filepath.Join(wheelDir, distInfoPrefix+".dist-info", "WHEEL")
	text, err := os.ReadFile(path)
	if err != nil {
		return Pure, errors.Wrapf(err, errors.ErrInvalidWheel, "failed to read %s", path)
	}
	return ParseWheelFile(string(text))
}
