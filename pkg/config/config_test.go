package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

// ConfigMockLogger is a simple mock implementation of Logger for testing
type ConfigMockLogger struct{}

func (m *ConfigMockLogger) Debugf(format string, args ...interface{})               {}
func (m *ConfigMockLogger) Infof(format string, args ...interface{})                {}
func (m *ConfigMockLogger) Warnf(format string, args ...interface{})                {}
func (m *ConfigMockLogger) Errorf(format string, args ...interface{})               {}

func newTestStore(t *testing.T) (*Store, *state.Root) {
	t.Helper()

	root, err := state.NewRoot(state.RootOptions{StateDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, root.Init())

	return NewStore(root, &ConfigMockLogger{}), root
}

func testRunConfig(t *testing.T, name string) *RunConfig {
	t.Helper()

	return &RunConfig{
		Name:          name,
		AppPath:       t.TempDir(),
		Port:          10345,
		Host:          "0.0.0.0",
		Token:         "abcDEF0123456789abcd",
		Password:      "rw-secret",
		ROPassword:    "ro-secret",
		CustomNames:   []string{"box.example.org", "box.internal"},
		UpdateChannel: UpdateChannelTested,
		LastVersion:   "2024.2.1",
	}
}

func TestStoreCreateLoadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	original := testRunConfig(t, "workbench")

	require.NoError(t, store.Create(original, false))

	loaded, err := store.Load("workbench")
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestStoreCreateConflict(t *testing.T) {
	store, _ := newTestStore(t)
	rc := testRunConfig(t, "workbench")

	require.NoError(t, store.Create(rc, false))

	err := store.Create(rc, false)
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))

	ersatz := testRunConfig(t, "workbench")
	ersatz.Port = 10500
	require.NoError(t, store.Create(ersatz, true))

	loaded, err := store.Load("workbench")
	require.NoError(t, err)
	assert.Equal(t, 10500, loaded.Port)
}

func TestStoreLoadNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Load("missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreUpdateRequiresExisting(t *testing.T) {
	store, _ := newTestStore(t)
	rc := testRunConfig(t, "workbench")

	err := store.Update(rc)
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	require.NoError(t, store.Create(rc, false))
	rc.Host = "127.0.0.1"
	require.NoError(t, store.Update(rc))

	loaded, err := store.Load("workbench")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", loaded.Host)
}

func TestStoreRenameMovesSubtree(t *testing.T) {
	store, _ := newTestStore(t)
	rc := testRunConfig(t, "old-name")
	require.NoError(t, store.Create(rc, false))

	// Certificate material must travel with the config
	certDir := store.CertDir("old-name")
	require.NoError(t, os.MkdirAll(certDir, 0700))
	require.NoError(t, os.WriteFile(filepath.Join(certDir, "server.crt"), []byte("cert"), 0600))

	require.NoError(t, store.Rename("old-name", "new-name"))

	assert.False(t, store.Exists("old-name"))
	assert.True(t, store.Exists("new-name"))

	moved, err := os.ReadFile(filepath.Join(store.CertDir("new-name"), "server.crt"))
	require.NoError(t, err)
	assert.Equal(t, "cert", string(moved))
}

func TestStoreRenameConflicts(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Create(testRunConfig(t, "alpha"), false))
	require.NoError(t, store.Create(testRunConfig(t, "beta"), false))

	err := store.Rename("missing", "gamma")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	err = store.Rename("alpha", "beta")
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))

	// The failed rename must leave both configs intact
	assert.True(t, store.Exists("alpha"))
	assert.True(t, store.Exists("beta"))
}

func TestStoreDelete(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Create(testRunConfig(t, "alpha"), false))

	require.NoError(t, store.Delete("alpha"))
	assert.False(t, store.Exists("alpha"))

	err := store.Delete("alpha")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStoreListPatternMatching(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Create(testRunConfig(t, "idea"), false))
	require.NoError(t, store.Create(testRunConfig(t, "idea-eap"), false))
	require.NoError(t, store.Create(testRunConfig(t, "goland"), false))

	all, err := store.Names("")
	require.NoError(t, err)
	assert.Equal(t, []string{"goland", "idea", "idea-eap"}, all)

	substr, err := store.Names("IDEA")
	require.NoError(t, err)
	assert.Equal(t, []string{"idea", "idea-eap"}, substr)

	// An exact name match wins over substring matches
	exact, err := store.Names("idea")
	require.NoError(t, err)
	assert.Equal(t, []string{"idea"}, exact)
}

func TestStoreUsedPorts(t *testing.T) {
	store, _ := newTestStore(t)

	first := testRunConfig(t, "first")
	first.Port = 10501
	second := testRunConfig(t, "second")
	second.Port = 10344
	require.NoError(t, store.Create(first, false))
	require.NoError(t, store.Create(second, false))

	ports, err := store.UsedPorts()
	require.NoError(t, err)
	assert.Equal(t, []int{10344, 10501}, ports)
}

func TestStoreConfigsWithApp(t *testing.T) {
	store, _ := newTestStore(t)
	appDir := t.TempDir()

	shared := testRunConfig(t, "shared-a")
	shared.AppPath = appDir
	sharedB := testRunConfig(t, "shared-b")
	sharedB.AppPath = appDir + string(filepath.Separator)
	other := testRunConfig(t, "other")

	require.NoError(t, store.Create(shared, false))
	require.NoError(t, store.Create(sharedB, false))
	require.NoError(t, store.Create(other, false))

	names, err := store.ConfigsWithApp(appDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"shared-a", "shared-b"}, names)
}

func TestDecodeRunConfigToleratesMissingKeys(t *testing.T) {
	rc, err := decodeRunConfig("bare", []byte("[APP]\nPATH = /opt/app\n\n[SERVER]\nPORT = 9999\n"))
	require.NoError(t, err)

	assert.Equal(t, "bare", rc.Name)
	assert.Equal(t, "/opt/app", rc.AppPath)
	assert.Equal(t, 9999, rc.Port)
	assert.False(t, rc.IsSecure())
	assert.False(t, rc.IsPasswordProtected())
	assert.Equal(t, UpdateChannelUnknown, rc.UpdateChannel)
}

func TestDecodeRunConfigRejectsMalformedPort(t *testing.T) {
	_, err := decodeRunConfig("bad", []byte("[SERVER]\nPORT = definitely-not-a-port\n"))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
}

func TestRunScriptRebuildIdempotency(t *testing.T) {
	store, _ := newTestStore(t)
	rc := testRunConfig(t, "workbench")
	require.NoError(t, store.Create(rc, false))

	launcher := "/opt/app/bin/launcher.sh"
	assert.False(t, store.RunScriptMatches(rc, launcher))

	require.NoError(t, store.WriteRunScript(rc, launcher))
	assert.True(t, store.RunScriptMatches(rc, launcher))

	info, err := os.Stat(store.RunScriptPath(rc.Name))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), info.Mode().Perm())

	// Changing an attribute invalidates the script
	rc.Port = 10999
	assert.False(t, store.RunScriptMatches(rc, launcher))
}

func TestBuildRunScriptConditionalSections(t *testing.T) {
	rc := testRunConfig(t, "secure")
	script := string(BuildRunScript(rc, "/opt/app/bin/launcher.sh", "/state/configs/secure"))

	assert.Contains(t, script, "#!/bin/sh")
	assert.Contains(t, script, "LAUNCHER_ACCESS_TOKEN='abcDEF0123456789abcd'")
	assert.Contains(t, script, "LAUNCHER_PASSWORD='rw-secret'")
	assert.Contains(t, script, "exec '/opt/app/bin/launcher.sh'")

	plain := testRunConfig(t, "plain")
	plain.Token = ""
	plain.Password = ""
	plain.ROPassword = ""
	plainScript := string(BuildRunScript(plain, "/opt/app/bin/launcher.sh", "/state/configs/plain"))

	assert.NotContains(t, plainScript, "LAUNCHER_ACCESS_TOKEN")
	assert.NotContains(t, plainScript, "LAUNCHER_PASSWORD")
}

func TestRunLockLifecycle(t *testing.T) {
	dir := t.TempDir()
	logger := &ConfigMockLogger{}

	lock := NewRunLock(dir, logger)
	require.NoError(t, lock.Acquire())

	// A live holder blocks a second acquisition
	second := NewRunLock(dir, logger)
	err := second.Acquire()
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))

	lock.Release()
	require.NoError(t, second.Acquire())
	second.Release()
}

func TestRunLockReclaimsStaleLock(t *testing.T) {
	dir := t.TempDir()
	lock := NewRunLock(dir, &ConfigMockLogger{})

	// PID 0 can never be a live holder
	require.NoError(t, os.WriteFile(lock.Path(), []byte("0\n"), 0600))

	require.NoError(t, lock.Acquire())
	lock.Release()
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(DefaultTokenLength)
	require.NoError(t, err)
	assert.Len(t, token, DefaultTokenLength)

	other, err := GenerateToken(DefaultTokenLength)
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestValidateRunConfig(t *testing.T) {
	valid := testRunConfig(t, "valid")
	assert.NoError(t, ValidateRunConfig(valid))

	badName := testRunConfig(t, "-leading-dash")
	assert.True(t, errors.IsValidationError(ValidateRunConfig(badName)))

	badPort := testRunConfig(t, "bad-port")
	badPort.Port = 0
	assert.True(t, errors.IsValidationError(ValidateRunConfig(badPort)))

	badApp := testRunConfig(t, "bad-app")
	badApp.AppPath = filepath.Join(t.TempDir(), "does-not-exist")
	assert.True(t, errors.IsValidationError(ValidateRunConfig(badApp)))

	roOnly := testRunConfig(t, "ro-only")
	roOnly.Password = ""
	assert.True(t, errors.IsValidationError(ValidateRunConfig(roOnly)))
}

func TestMakeConfigName(t *testing.T) {
	assert.Equal(t, "IntelliJ", MakeConfigName("IntelliJ IDEA 2024.2"))
	assert.Equal(t, "goland", MakeConfigName("goland"))
}
