package install

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/wheelhouse/pkg/errors"
	"github.com/arthur-debert/wheelhouse/pkg/linker"
	"github.com/arthur-debert/wheelhouse/pkg/record"
	"github.com/arthur-debert/wheelhouse/pkg/testutil"
)

func testLayout(t *testing.T) *Layout {
	t.Helper()
	layout := NewVenvLayout(t.TempDir(), 3, 12)
	require.NoError(t, os.MkdirAll(layout.Scheme.Purelib, 0o755))
	require.NoError(t, os.MkdirAll(layout.Scheme.Scripts, 0o755))
	return layout
}

func readRecord(t *testing.T, layout *Layout, distInfoPrefix string) []record.Entry {
	t.Helper()
	path := filepath.Join(layout.Scheme.Purelib, distInfoPrefix+".dist-info", "RECORD")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	entries, err := record.Read(f)
	require.NoError(t, err)
	return entries
}

func recordPaths(entries []record.Entry) []string {
	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		paths = append(paths, entry.Path)
	}
	return paths
}

func TestWheel(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").
		File("foo/__init__.py", "print('hi')").
		File("foo/util.py", "x = 1")
	wheel.EntryPoints = "[console_scripts]\nfoo = foo:main\n"
	wheelDir := wheel.Build(t)
	layout := testLayout(t)

	err := Wheel(layout, false, wheelDir, wheel.Filename(), Options{
		LinkMode:  linker.Copy,
		Installer: "wheelhouse",
		Requested: true,
	})
	require.NoError(t, err)

	// Payload landed in site-packages.
	content := testutil.ReadFile(t, filepath.Join(layout.Scheme.Purelib, "foo", "__init__.py"))
	assert.Equal(t, "print('hi')", content)

	// The entry point became a launcher script.
	launcherPath := filepath.Join(layout.Scheme.Scripts, "foo")
	launcher := testutil.ReadFile(t, launcherPath)
	assert.True(t, strings.HasPrefix(launcher, "#!"+layout.SysExecutable))
	assert.Contains(t, launcher, "from foo import main")
	if runtime.GOOS != "windows" {
		info, err := os.Stat(launcherPath)
		require.NoError(t, err)
		assert.NotZero(t, info.Mode().Perm()&0o111, "launcher must be executable")
	}

	// Provenance files exist and made it into RECORD.
	distInfo := wheel.DistInfoPrefix() + ".dist-info"
	assert.Equal(t, "wheelhouse\n",
		testutil.ReadFile(t, filepath.Join(layout.Scheme.Purelib, distInfo, "INSTALLER")))
	assert.True(t, testutil.Exists(t, filepath.Join(layout.Scheme.Purelib, distInfo, "REQUESTED")))

	entries := readRecord(t, layout, wheel.DistInfoPrefix())
	paths := recordPaths(entries)
	assert.Contains(t, paths, "foo/__init__.py")
	assert.Contains(t, paths, distInfo+"/INSTALLER")
	assert.Contains(t, paths, distInfo+"/REQUESTED")
	assert.Contains(t, paths, "../../../bin/foo")

	// The final RECORD is sorted by path.
	sorted := append([]string(nil), paths...)
	record.Sort(entries)
	assert.Equal(t, recordPaths(entries), sorted)
}

func TestWheelNameMismatch(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").File("foo/__init__.py", "")
	wheelDir := wheel.Build(t)
	layout := testLayout(t)

	err := Wheel(layout, false, wheelDir, "bar-1.0.0-py3-none-any.whl", Options{LinkMode: linker.Copy})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrMismatchedName))
}

func TestWheelVersionMismatch(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").File("foo/__init__.py", "")
	wheelDir := wheel.Build(t)
	layout := testLayout(t)

	err := Wheel(layout, false, wheelDir, "foo-2.0.0-py3-none-any.whl", Options{LinkMode: linker.Copy})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrMismatchedVersion))
}

func TestWheelBrokenEnvironment(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").File("foo/__init__.py", "")
	wheelDir := wheel.Build(t)
	layout := NewVenvLayout(filepath.Join(t.TempDir(), "missing"), 3, 12)

	err := Wheel(layout, false, wheelDir, wheel.Filename(), Options{LinkMode: linker.Copy})
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrBrokenEnv))
}

func TestWheelLocalVersionSegment(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0+cpu").File("foo/__init__.py", "")
	wheelDir := wheel.Build(t)
	layout := testLayout(t)

	// The filename may omit the local segment the METADATA carries.
	err := Wheel(layout, false, wheelDir, "foo-1.0.0-py3-none-any.whl", Options{LinkMode: linker.Copy})
	require.NoError(t, err)
}

func TestWheelDataDirectory(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").
		File("foo/__init__.py", "")
	prefix := wheel.DistInfoPrefix()
	wheel.File(prefix+".data/scripts/tool", "#!python\nimport sys\n")
	wheel.File(prefix+".data/data/etc/foo.cfg", "key = value\n")
	wheelDir := wheel.Build(t)
	layout := testLayout(t)

	err := Wheel(layout, false, wheelDir, wheel.Filename(), Options{LinkMode: linker.Copy})
	require.NoError(t, err)

	// The data script moved into the scripts directory with its placeholder
	// shebang rewritten.
	tool := testutil.ReadFile(t, filepath.Join(layout.Scheme.Scripts, "tool"))
	assert.True(t, strings.HasPrefix(tool, "#!"+layout.SysExecutable+"\n"))
	assert.Contains(t, tool, "import sys")

	// The data file moved to the environment root.
	assert.Equal(t, "key = value\n",
		testutil.ReadFile(t, filepath.Join(layout.Scheme.Data, "etc", "foo.cfg")))

	// The .data directory itself is gone.
	assert.False(t, testutil.Exists(t, filepath.Join(layout.Scheme.Purelib, prefix+".data")))

	// RECORD points at the relocated paths, and the rewritten script's hash
	// covers the new content.
	entries := readRecord(t, layout, prefix)
	paths := recordPaths(entries)
	assert.Contains(t, paths, "../../../bin/tool")
	assert.Contains(t, paths, "../../../etc/foo.cfg")
	assert.NotContains(t, paths, prefix+".data/scripts/tool")
	for _, entry := range entries {
		if entry.Path == "../../../bin/tool" {
			assert.Equal(t, record.Digest([]byte(tool)), entry.Hash)
			assert.Equal(t, record.FormatSize(int64(len(tool))), entry.Size)
		}
	}
}

func TestWheelPlatlib(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").File("foo/__init__.py", "")
	wheel.Platlib = true
	wheelDir := wheel.Build(t)

	root := t.TempDir()
	layout := NewVenvLayout(root, 3, 12)
	layout.Scheme.Platlib = filepath.Join(root, "lib64", "python3.12", "site-packages")
	require.NoError(t, os.MkdirAll(layout.Scheme.Purelib, 0o755))
	require.NoError(t, os.MkdirAll(layout.Scheme.Platlib, 0o755))

	err := Wheel(layout, false, wheelDir, wheel.Filename(), Options{LinkMode: linker.Copy})
	require.NoError(t, err)

	assert.True(t, testutil.Exists(t, filepath.Join(layout.Scheme.Platlib, "foo", "__init__.py")))
	assert.False(t, testutil.Exists(t, filepath.Join(layout.Scheme.Purelib, "foo", "__init__.py")))
}

func TestWheelRelocatable(t *testing.T) {
	wheel := testutil.NewWheel("foo", "1.0.0").File("foo/__init__.py", "")
	wheel.EntryPoints = "[console_scripts]\nfoo = foo:main\n"
	wheelDir := wheel.Build(t)
	layout := testLayout(t)

	err := Wheel(layout, true, wheelDir, wheel.Filename(), Options{LinkMode: linker.Copy})
	require.NoError(t, err)

	launcher := testutil.ReadFile(t, filepath.Join(layout.Scheme.Scripts, "foo"))
	assert.True(t, strings.HasPrefix(launcher, "#!/bin/sh\n"))
	assert.Contains(t, launcher, `"$(dirname -- "$(realpath -- "$0")")"/'python'`)
	assert.NotContains(t, launcher, layout.SysExecutable)
}

func TestParallelInstalls(t *testing.T) {
	layout := testLayout(t)

	var requests []Request
	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		wheel := testutil.NewWheel(name, "1.0.0").
			File(name+"/__init__.py", "# "+name).
			File("shared_ns/"+name+".py", "x = 1")
		requests = append(requests, Request{
			WheelDir: wheel.Build(t),
			Filename: wheel.Filename(),
			Options:  Options{LinkMode: linker.Copy, Installer: "wheelhouse"},
		})
	}

	require.NoError(t, All(layout, false, requests, 4))

	for _, name := range []string{"alpha", "beta", "gamma", "delta"} {
		assert.True(t, testutil.Exists(t, filepath.Join(layout.Scheme.Purelib, name, "__init__.py")))
		assert.True(t, testutil.Exists(t, filepath.Join(layout.Scheme.Purelib, "shared_ns", name+".py")))
	}
}
