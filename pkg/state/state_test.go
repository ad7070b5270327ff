package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootDefaults(t *testing.T) {
	root, err := NewRoot(RootOptions{})
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".launcher"), root.StateDir())
	assert.Equal(t, filepath.Join(root.StateDir(), "cache"), root.CacheDir())
}

func TestNewRootOverrides(t *testing.T) {
	stateDir := t.TempDir()
	cacheDir := t.TempDir()

	root, err := NewRoot(RootOptions{StateDir: stateDir, CacheDir: cacheDir})
	require.NoError(t, err)
	assert.Equal(t, stateDir, root.StateDir())
	assert.Equal(t, cacheDir, root.CacheDir())
}

func TestInitCreatesTree(t *testing.T) {
	root, err := NewRoot(RootOptions{StateDir: filepath.Join(t.TempDir(), "launcher")})
	require.NoError(t, err)
	require.NoError(t, root.Init())

	for _, dir := range []string{root.StateDir(), root.ConfigsDir(), root.AppsDir(), root.SSLDir(), root.CacheDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err, "missing %s", dir)
		require.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm(), "wrong perms on %s", dir)
	}

	// Init is idempotent
	require.NoError(t, root.Init())
}

func TestPathAccessors(t *testing.T) {
	stateDir := t.TempDir()
	root, err := NewRoot(RootOptions{StateDir: stateDir})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(stateDir, "configs", "idea"), root.ConfigDir("idea"))
	assert.Equal(t, filepath.Join(stateDir, "configs", "idea", "cert"), root.CertDir("idea"))
	assert.Equal(t, filepath.Join(stateDir, "defaults.ini"), root.DefaultsFile())
	assert.Equal(t, filepath.Join(stateDir, "compatible.yaml"), root.CatalogFile())
}

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.ini")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0600))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(content))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// Overwrite replaces the content in one step
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0600))
	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))

	// No temporary files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileAtomicMissingDirectory(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "absent", "file"), []byte("x"), 0600)
	require.Error(t, err)
}

func TestDefaultsRoundTrip(t *testing.T) {
	root, err := NewRoot(RootOptions{StateDir: t.TempDir()})
	require.NoError(t, err)

	// Missing file yields zero defaults
	defaults, err := root.LoadDefaults()
	require.NoError(t, err)
	assert.Empty(t, defaults.Host)

	require.NoError(t, root.SaveDefaults(Defaults{Host: "192.0.2.10"}))

	defaults, err = root.LoadDefaults()
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.10", defaults.Host)
}

func TestResolveHost(t *testing.T) {
	assert.Equal(t, "explicit", Defaults{Host: "stored"}.ResolveHost("explicit"))
	assert.Equal(t, "stored", Defaults{Host: "stored"}.ResolveHost(""))
	assert.Equal(t, DefaultBindHost, Defaults{}.ResolveHost(""))
}
