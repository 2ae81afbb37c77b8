package wheel

import (
	"bufio"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
)

// Metadata is the subset of the METADATA control file this installer needs.
type Metadata struct {
	Name    string
	Version string
}

// FindDistInfo scans the top level of an unpacked wheel for its `.dist-info`
// directory and returns the dist-info prefix (e.g. "mypkg-1.0.0"). Exactly
// one such directory must exist.
func FindDistInfo(wheelDir string) (string, error) {
	entries, err := os.ReadDir(wheelDir)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrIO, "failed to read unpacked wheel")
	}

	var prefix string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasSuffix(entry.Name(), ".dist-info") {
			continue
		}
		if prefix != "" {
			return "", errors.New(errors.ErrInvalidWheel, "multiple .dist-info directories")
		}
		prefix = strings.TrimSuffix(entry.Name(), ".dist-info")
	}
	if prefix == "" {
		return "", errors.New(errors.ErrInvalidWheel, "missing .dist-info directory")
	}
	return prefix, nil
}

// ReadMetadata parses `<prefix>.dist-info/METADATA` and validates its
// Metadata-Version field.
func ReadMetadata(wheelDir, distInfoPrefix string) (*Metadata, error) {
	path := filepath.Join(wheelDir, distInfoPrefix+".dist-info", "METADATA")
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidWheel, "failed to open %s", path)
	}
	defer func() { _ = f.Close() }()

	headers, err := ParseEmailMessage(f)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrInvalidWheel, "invalid %s", path)
	}

	metadataVersion := headers.Get("Metadata-Version")
	if metadataVersion == "" {
		return nil, errors.Newf(errors.ErrInvalidWheel, "no Metadata-Version field in %s", path)
	}
	// Legal values at time of writing are 1.x and 2.x.
	if !strings.HasPrefix(metadataVersion, "1.") && !strings.HasPrefix(metadataVersion, "2.") {
		return nil, errors.Newf(errors.ErrInvalidWheel,
			"Metadata-Version field has unsupported value %q", metadataVersion)
	}

	name := headers.Get("Name")
	if name == "" {
		return nil, errors.Newf(errors.ErrInvalidWheel, "no Name field in %s", path)
	}
	version := headers.Get("Version")
	if version == "" {
		return nil, errors.Newf(errors.ErrInvalidWheel, "no Version field in %s", path)
	}

	return &Metadata{Name: name, Version: version}, nil
}

// ParseEmailMessage parses an RFC-822 style header block, the format shared
// by METADATA and WHEEL. The message body, if any, is ignored.
func ParseEmailMessage(r io.Reader) (textproto.MIMEHeader, error) {
	reader := textproto.NewReader(bufio.NewReader(r))
	headers, err := reader.ReadMIMEHeader()
	// A control file without a trailing body ends at EOF rather than at a
	// blank line; the headers read up to that point are still valid.
	if err != nil && err != io.EOF {
		return nil, err
	}
	if len(headers) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return headers, nil
}
