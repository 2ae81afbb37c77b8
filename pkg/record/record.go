// Package record models the RECORD manifest shipped in a wheel's dist-info
// directory: one CSV row per installed file with its hash and size.
//
// Format: no header row, fields quoted with `"` and escaped by doubling,
// sorted by path before the final write.
package record

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
)

// Entry is a single RECORD row.
type Entry struct {
	// Path is relative to site-packages, with forward slashes.
	Path string
	// Hash is "sha256=<urlsafe-base64-nopad>". Empty for files that are not
	// hashed, such as RECORD itself and symlinks.
	Hash string
	// Size is the decimal byte count. Empty when unrecorded.
	Size string
}

// Read parses a RECORD file.
func Read(r io.Reader) ([]Entry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var entries []Entry
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrRecordFile, "failed to parse RECORD")
		}
		if len(row) == 0 || (len(row) == 1 && row[0] == "") {
			continue
		}
		entry := Entry{}
		// selenium ships absolute paths for some reason
		entry.Path = strings.TrimPrefix(row[0], "/")
		if len(row) > 1 {
			entry.Hash = row[1]
		}
		if len(row) > 2 {
			entry.Size = row[2]
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Write serializes the entries as CSV. It does not sort; call Sort first for
// the final on-disk manifest.
func Write(w io.Writer, entries []Entry) error {
	writer := csv.NewWriter(w)
	for _, entry := range entries {
		if err := writer.Write([]string{entry.Path, entry.Hash, entry.Size}); err != nil {
			return errors.Wrap(err, errors.ErrRecordFile, "failed to write RECORD")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.Wrap(err, errors.ErrRecordFile, "failed to flush RECORD")
	}
	return nil
}

// Sort orders entries by path, then hash, then size.
func Sort(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		if entries[i].Hash != entries[j].Hash {
			return entries[i].Hash < entries[j].Hash
		}
		return entries[i].Size < entries[j].Size
	})
}

// Digest returns the RECORD hash field for the given content.
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256=" + base64.RawURLEncoding.EncodeToString(sum[:])
}

// CopyAndHash copies r to w, returning the byte count and the RECORD hash
// field of the copied bytes.
func CopyAndHash(w io.Writer, r io.Reader) (int64, string, error) {
	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(w, hasher), r)
	if err != nil {
		return written, "", err
	}
	hash := "sha256=" + base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
	return written, hash, nil
}

// FormatSize renders a byte count as a RECORD size field.
func FormatSize(n int64) string {
	return fmt.Sprintf("%d", n)
}
