// Package testutil builds fake unpacked wheels and target environments on a
// real temp filesystem for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/arthur-debert/wheelhouse/pkg/record"
)

// WheelBuilder assembles an unpacked wheel directory. Files added through the
// builder are hashed into the RECORD manifest the same way a real build
// backend would.
type WheelBuilder struct {
	// Name and Version go into METADATA and the dist-info prefix.
	Name    string
	Version string
	// RootIsPurelib sets the WHEEL Root-Is-Purelib field. Defaults to true.
	Platlib bool
	// EntryPoints is the raw entry_points.txt content; empty omits the file.
	EntryPoints string
	// Links is the raw LINKS content; empty omits the file.
	Links string

	files map[string]string
}

// NewWheel starts a builder for a wheel named name at version.
func NewWheel(name, version string) *WheelBuilder {
	return &WheelBuilder{
		Name:    name,
		Version: version,
		files:   map[string]string{},
	}
}

// File adds a payload file, path relative to the wheel root with forward
// slashes.
func (b *WheelBuilder) File(path, content string) *WheelBuilder {
	b.files[path] = content
	return b
}

// DistInfoPrefix returns the wheel's dist-info prefix, e.g. "foo-1.0.0".
func (b *WheelBuilder) DistInfoPrefix() string {
	return fmt.Sprintf("%s-%s", strings.ReplaceAll(b.Name, "-", "_"), b.Version)
}

// Filename returns a plausible wheel filename for the builder.
func (b *WheelBuilder) Filename() string {
	return fmt.Sprintf("%s-%s-py3-none-any.whl", strings.ReplaceAll(b.Name, "-", "_"), b.Version)
}

// Build writes the wheel tree under a fresh temp directory and returns its
// root.
func (b *WheelBuilder) Build(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	distInfo := b.DistInfoPrefix() + ".dist-info"

	rootIsPurelib := "true"
	if b.Platlib {
		rootIsPurelib = "false"
	}
	metadata := fmt.Sprintf("Metadata-Version: 2.3\nName: %s\nVersion: %s\n", b.Name, b.Version)
	wheelFile := fmt.Sprintf("Wheel-Version: 1.0\nGenerator: testutil\nRoot-Is-Purelib: %s\nTag: py3-none-any\n", rootIsPurelib)

	all := map[string]string{
		distInfo + "/METADATA": metadata,
		distInfo + "/WHEEL":    wheelFile,
	}
	if b.EntryPoints != "" {
		all[distInfo+"/entry_points.txt"] = b.EntryPoints
	}
	if b.Links != "" {
		all[distInfo+"/LINKS"] = b.Links
	}
	for path, content := range b.files {
		all[path] = content
	}

	var entries []record.Entry
	for path, content := range all {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(path)), content)
		entries = append(entries, record.Entry{
			Path: path,
			Hash: record.Digest([]byte(content)),
			Size: record.FormatSize(int64(len(content))),
		})
	}
	entries = append(entries, record.Entry{Path: distInfo + "/RECORD"})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	recordPath := filepath.Join(root, distInfo, "RECORD")
	f, err := os.Create(recordPath)
	if err != nil {
		t.Fatalf("failed to create RECORD: %v", err)
	}
	if err := record.Write(f, entries); err != nil {
		t.Fatalf("failed to write RECORD: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close RECORD: %v", err)
	}

	return root
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// ReadFile reads path, failing the test on error.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(content)
}

// Exists reports whether path exists.
func Exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		t.Fatalf("failed to stat %s: %v", path, err)
	}
	return true
}
