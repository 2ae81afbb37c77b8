package linker

import (
	goerrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func wheelAndSite(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	wheelDir := filepath.Join(root, "wheel")
	sitePackages := filepath.Join(root, "site-packages")
	require.NoError(t, os.MkdirAll(wheelDir, 0o755))
	require.NoError(t, os.MkdirAll(sitePackages, 0o755))
	return wheelDir, sitePackages
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected LinkMode
		wantErr  bool
	}{
		{input: "", expected: Default()},
		{input: "clone", expected: Clone},
		{input: "copy", expected: Copy},
		{input: "hardlink", expected: Hardlink},
		{input: "symlink", expected: Symlink},
		{input: "reflink", wantErr: true},
	}

	for _, tt := range tests {
		mode, err := ParseMode(tt.input)
		if tt.wantErr {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, mode, tt.input)
	}
}

func TestCopyWheelFiles(t *testing.T) {
	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{
		"foo/__init__.py":            "print('hi')",
		"foo/sub/mod.py":             "x = 1",
		"foo-1.0.dist-info/METADATA": "Name: foo",
	})

	count, err := Copy.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	content, err := os.ReadFile(filepath.Join(sitePackages, "foo", "sub", "mod.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1", string(content))
}

func TestHardlinkWheelFiles(t *testing.T) {
	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{
		"foo/__init__.py":          "print('hi')",
		"foo-1.0.dist-info/RECORD": "foo/__init__.py,sha256=abc,11\n",
	})

	count, err := Hardlink.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	srcInfo, err := os.Stat(filepath.Join(wheelDir, "foo", "__init__.py"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(sitePackages, "foo", "__init__.py"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo), "payload files should share an inode")

	// RECORD gets rewritten after installation, so it must be a copy, never a
	// link back into the wheel.
	srcRecord, err := os.Stat(filepath.Join(wheelDir, "foo-1.0.dist-info", "RECORD"))
	require.NoError(t, err)
	dstRecord, err := os.Stat(filepath.Join(sitePackages, "foo-1.0.dist-info", "RECORD"))
	require.NoError(t, err)
	assert.False(t, os.SameFile(srcRecord, dstRecord), "RECORD must not share an inode")
}

func TestHardlinkOverwritesExisting(t *testing.T) {
	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{"foo/mod.py": "new"})
	writeTree(t, sitePackages, map[string]string{"foo/mod.py": "stale"})

	_, err := Hardlink.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(sitePackages, "foo", "mod.py"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestHardlinkFallsBackToCopy(t *testing.T) {
	orig := hardLink
	hardLink = func(from, to string) error {
		return &os.LinkError{Op: "link", Old: from, New: to, Err: goerrors.New("operation not permitted")}
	}
	defer func() { hardLink = orig }()

	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{
		"foo/a.py": "a",
		"foo/b.py": "b",
	})

	count, err := Hardlink.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, name := range []string{"a.py", "b.py"} {
		content, err := os.ReadFile(filepath.Join(sitePackages, "foo", name))
		require.NoError(t, err)
		assert.Equal(t, string(name[0]), string(content))
	}
}

func TestSymlinkWheelFiles(t *testing.T) {
	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{"foo/mod.py": "x = 1"})

	_, err := Symlink.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)

	info, err := os.Lstat(filepath.Join(sitePackages, "foo", "mod.py"))
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode()&os.ModeSymlink)
}

// fakeReflink emulates a filesystem with working copy-on-write clones,
// including the EEXIST behavior the clone strategy depends on.
func fakeReflink(from, to string) error {
	if _, err := os.Lstat(to); err == nil {
		return &os.LinkError{Op: "reflink", Old: from, New: to, Err: fs.ErrExist}
	}
	info, err := os.Lstat(from)
	if err != nil {
		return err
	}
	if info.IsDir() {
		if err := os.Mkdir(to, 0o755); err != nil {
			return err
		}
		entries, err := os.ReadDir(from)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := fakeReflink(filepath.Join(from, entry.Name()), filepath.Join(to, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}
	return copyFile(from, to)
}

func TestCloneWheelFiles(t *testing.T) {
	orig := reflink
	reflink = fakeReflink
	defer func() { reflink = orig }()

	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{
		"foo/__init__.py":            "print('hi')",
		"foo-1.0.dist-info/METADATA": "Name: foo",
	})

	count, err := Clone.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	content, err := os.ReadFile(filepath.Join(sitePackages, "foo", "__init__.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", string(content))
}

func TestCloneMergesIntoExistingDirectory(t *testing.T) {
	orig := reflink
	reflink = fakeReflink
	defer func() { reflink = orig }()

	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{"ns/new.py": "new"})
	writeTree(t, sitePackages, map[string]string{"ns/existing.py": "existing"})

	_, err := Clone.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)

	// The destination directory ends up as the union of both trees.
	newContent, err := os.ReadFile(filepath.Join(sitePackages, "ns", "new.py"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(newContent))
	existing, err := os.ReadFile(filepath.Join(sitePackages, "ns", "existing.py"))
	require.NoError(t, err)
	assert.Equal(t, "existing", string(existing))
}

func TestCloneFallsBackToCopy(t *testing.T) {
	orig := reflink
	reflink = func(from, to string) error {
		return &os.LinkError{Op: "reflink", Old: from, New: to, Err: goerrors.New("operation not supported")}
	}
	defer func() { reflink = orig }()

	wheelDir, sitePackages := wheelAndSite(t)
	writeTree(t, wheelDir, map[string]string{"foo/mod.py": "x = 1"})

	_, err := Clone.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(sitePackages, "foo", "mod.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1", string(content))
}

func TestCopyPreservesPermissions(t *testing.T) {
	wheelDir, sitePackages := wheelAndSite(t)
	script := filepath.Join(wheelDir, "bin.py")
	require.NoError(t, os.WriteFile(script, []byte("#!x"), 0o755))

	_, err := Copy.LinkWheelFiles(sitePackages, wheelDir, NewLocks())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(sitePackages, "bin.py"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}
