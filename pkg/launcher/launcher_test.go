package launcher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-launcher/pkg/certs"
	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

// LauncherMockLogger is a simple mock implementation of Logger for testing
type LauncherMockLogger struct{}

func (m *LauncherMockLogger) Debugf(format string, args ...interface{})               {}
func (m *LauncherMockLogger) Infof(format string, args ...interface{})                {}
func (m *LauncherMockLogger) Warnf(format string, args ...interface{})                {}
func (m *LauncherMockLogger) Errorf(format string, args ...interface{})               {}

func newTestLauncher(t *testing.T) *Launcher {
	t.Helper()

	root, err := state.NewRoot(state.RootOptions{StateDir: t.TempDir()})
	require.NoError(t, err)

	l, err := New(root, &LauncherMockLogger{})
	require.NoError(t, err)
	return l
}

func installTestApp(t *testing.T, l *Launcher) string {
	t.Helper()

	appPath := filepath.Join(l.root.AppsDir(), "workbench-2024.2")
	require.NoError(t, os.MkdirAll(filepath.Join(appPath, "bin"), 0700))
	descriptor := `{"name": "Workbench Pro", "version": "2024.2.1", "buildNumber": "242.1", "launcherPath": "bin/workbench.sh"}`
	require.NoError(t, os.WriteFile(filepath.Join(appPath, "product-info.json"), []byte(descriptor), 0644))
	script := "#!/bin/sh\nexit 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(appPath, "bin", "workbench.sh"), []byte(script), 0700))
	return appPath
}

func TestAddFillsDefaults(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	rc, err := l.Add(AddOptions{AppPath: appPath})
	require.NoError(t, err)

	// Name comes from the product descriptor, first word only
	assert.Equal(t, "Workbench", rc.Name)
	assert.Equal(t, defaultPort, rc.Port)
	assert.Equal(t, state.DefaultBindHost, rc.Host)
	assert.Equal(t, "2024.2.1", rc.LastVersion)
	assert.False(t, rc.IsSecure())

	// The launcher script exists and references the app launcher
	script, err := os.ReadFile(l.store.RunScriptPath(rc.Name))
	require.NoError(t, err)
	assert.Contains(t, string(script), "workbench.sh")

	// The next config gets the next free port
	second, err := l.Add(AddOptions{Name: "second", AppPath: appPath})
	require.NoError(t, err)
	assert.Equal(t, defaultPort+1, second.Port)
}

func TestAddSecureIssuesCertificate(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	rc, err := l.Add(AddOptions{Name: "secure", AppPath: appPath, Host: "localhost", Secure: true})
	require.NoError(t, err)

	assert.True(t, rc.IsSecure())
	assert.Len(t, rc.Token, config.DefaultTokenLength)

	certDir := l.store.CertDir("secure")
	assert.FileExists(t, filepath.Join(certDir, "server.crt"))
	assert.FileExists(t, filepath.Join(certDir, "server.key"))
	assert.FileExists(t, config.SSLPropertiesPath(l.store.Dir("secure")))

	// The state root CA backs the leaf
	assert.FileExists(t, filepath.Join(l.root.SSLDir(), "ca.crt"))
}

func TestAddSecureReusesAuthority(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{Name: "first", AppPath: appPath, Host: "localhost", Secure: true})
	require.NoError(t, err)

	caPath := filepath.Join(l.root.SSLDir(), "ca.crt")
	before, err := os.ReadFile(caPath)
	require.NoError(t, err)

	_, err = l.Add(AddOptions{Name: "second", AppPath: appPath, Host: "localhost", Secure: true})
	require.NoError(t, err)

	after, err := os.ReadFile(caPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestEditRegeneratesScript(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	rc, err := l.Add(AddOptions{Name: "workbench", AppPath: appPath, Host: "localhost"})
	require.NoError(t, err)

	newPort := rc.Port + 100
	edited, err := l.Edit("workbench", EditOptions{Port: &newPort})
	require.NoError(t, err)
	assert.Equal(t, newPort, edited.Port)

	loaded, err := l.Show("workbench")
	require.NoError(t, err)
	assert.Equal(t, newPort, loaded.Port)

	script, err := os.ReadFile(l.store.RunScriptPath("workbench"))
	require.NoError(t, err)
	assert.Contains(t, string(script), "LAUNCHER_PORT")
}

func TestEditCustomNamesReissuesCertificate(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{Name: "workbench", AppPath: appPath, Host: "localhost", Secure: true})
	require.NoError(t, err)

	names := []string{"extra.example.org"}
	edited, err := l.Edit("workbench", EditOptions{CustomNames: &names})
	require.NoError(t, err)
	assert.Equal(t, names, edited.CustomNames)

	certPEM, err := os.ReadFile(filepath.Join(l.store.CertDir("workbench"), "server.crt"))
	require.NoError(t, err)
	leaf, err := certs.ParseCertificatePEM(certPEM)
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "extra.example.org")
}

func TestEditUnknownConfig(t *testing.T) {
	l := newTestLauncher(t)

	_, err := l.Edit("missing", EditOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestRenameRegeneratesMaterial(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{Name: "before", AppPath: appPath, Host: "localhost", Secure: true})
	require.NoError(t, err)

	require.NoError(t, l.Rename("before", "after"))

	_, err = l.Show("before")
	assert.True(t, errors.IsNotFoundError(err))

	rc, err := l.Show("after")
	require.NoError(t, err)
	assert.True(t, rc.IsSecure())

	// SSL properties must point into the renamed directory
	properties, err := os.ReadFile(config.SSLPropertiesPath(l.store.Dir("after")))
	require.NoError(t, err)
	assert.Contains(t, string(properties), l.store.CertDir("after"))
}

func TestRemoveCascade(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{Name: "keeper", AppPath: appPath, Host: "localhost"})
	require.NoError(t, err)
	_, err = l.Add(AddOptions{Name: "goner", AppPath: appPath, Host: "localhost"})
	require.NoError(t, err)

	// Another config still references the tree, so it stays
	require.NoError(t, l.Remove("goner", true))
	assert.DirExists(t, appPath)

	require.NoError(t, l.Remove("keeper", true))
	assert.NoDirExists(t, appPath)
}

func TestRebuildKeepsCoveringCertificate(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{Name: "stable", AppPath: appPath, Host: "localhost", Secure: true})
	require.NoError(t, err)

	certPath := filepath.Join(l.store.CertDir("stable"), "server.crt")
	before, err := os.ReadFile(certPath)
	require.NoError(t, err)

	require.NoError(t, l.Rebuild("stable"))

	after, err := os.ReadFile(certPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCheckUpdate(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	catalog := "products:\n" +
		"  - name: Workbench Pro\n    version: 2024.2.1\n" +
		"  - name: Workbench Pro\n    version: 2024.3.0\n"
	require.NoError(t, os.WriteFile(l.root.CatalogFile(), []byte(catalog), 0644))

	_, err := l.Add(AddOptions{Name: "workbench", AppPath: appPath, Host: "localhost", Channel: config.UpdateChannelTested})
	require.NoError(t, err)

	version, ok, err := l.CheckUpdate("workbench")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024.3.0", version)
}

func TestInstallCertificateSecuresConfig(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	rc, err := l.Add(AddOptions{Name: "plain", AppPath: appPath, Host: "localhost"})
	require.NoError(t, err)
	require.False(t, rc.IsSecure())

	// Use material from a second launcher's own issuer as the "external" input
	donor := newTestLauncher(t)
	donorApp := installTestApp(t, donor)
	_, err = donor.Add(AddOptions{Name: "donor", AppPath: donorApp, Host: "localhost", Secure: true})
	require.NoError(t, err)
	donorCertDir := donor.store.CertDir("donor")

	err = l.InstallCertificate("plain",
		filepath.Join(donorCertDir, "server.crt"),
		filepath.Join(donorCertDir, "server.key"),
		filepath.Join(donorCertDir, "chain.pem"))
	require.NoError(t, err)

	secured, err := l.Show("plain")
	require.NoError(t, err)
	assert.True(t, secured.IsSecure())
	assert.True(t, secured.HasImportedCertificate())
	assert.FileExists(t, filepath.Join(l.store.CertDir("plain"), "server.crt"))
}

func TestInstallCertificateWithoutFilesIssuesLeaf(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	rc, err := l.Add(AddOptions{Name: "demo", AppPath: appPath, Host: "localhost"})
	require.NoError(t, err)
	require.False(t, rc.IsSecure())

	require.NoError(t, l.InstallCertificate("demo", "", "", ""))

	secured, err := l.Show("demo")
	require.NoError(t, err)
	assert.True(t, secured.IsSecure())
	assert.Len(t, secured.Token, config.DefaultTokenLength)
	assert.False(t, secured.HasImportedCertificate())

	certFile := filepath.Join(l.store.CertDir("demo"), "server.crt")
	certPEM, err := os.ReadFile(certFile)
	require.NoError(t, err)
	leaf, err := certs.ParseCertificatePEM(certPEM)
	require.NoError(t, err)
	assert.Contains(t, leaf.DNSNames, "localhost")
	assert.FileExists(t, config.SSLPropertiesPath(l.store.Dir("demo")))

	// A second call keeps the covering certificate instead of reissuing
	require.NoError(t, l.InstallCertificate("demo", "", "", ""))
	unchanged, err := os.ReadFile(certFile)
	require.NoError(t, err)
	assert.Equal(t, certPEM, unchanged)
}

func TestInstallCertificateRejectsLoneFile(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{Name: "demo", AppPath: appPath})
	require.NoError(t, err)

	err = l.InstallCertificate("demo", "", "orphan.key", "")
	assert.True(t, errors.IsValidationError(err))

	err = l.InstallCertificate("demo", "orphan.crt", "", "")
	assert.True(t, errors.IsValidationError(err))
}

func TestAddDiscardsConfigOnCertificateFailure(t *testing.T) {
	l := newTestLauncher(t)
	appPath := installTestApp(t, l)

	_, err := l.Add(AddOptions{
		Name:            "broken",
		AppPath:         appPath,
		CertificateFile: filepath.Join(t.TempDir(), "missing.crt"),
		KeyFile:         filepath.Join(t.TempDir(), "missing.key"),
	})
	require.Error(t, err)

	// No secure record without certificate material survives the failure
	assert.False(t, l.store.Exists("broken"))
}

func TestAccessURLs(t *testing.T) {
	l := newTestLauncher(t)

	plain := &config.RunConfig{Name: "plain", Host: "localhost", Port: 9999}
	urls := AccessURLs(plain, l.resolver)
	require.Len(t, urls, 1)
	assert.Equal(t, "http://localhost:9999/", urls[0])

	secure := &config.RunConfig{Name: "secure", Host: "box.example.org", Port: 9999, Token: "se cret"}
	urls = AccessURLs(secure, l.resolver)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://box.example.org:9999/?token=se+cret", urls[0])
}

func TestRunLogSessionMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	runLog, err := OpenRunLog(path, &LauncherMockLogger{})
	require.NoError(t, err)
	runLog.Append("server listening")
	runLog.Close()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "===== session started at ")
	assert.Contains(t, string(content), "server listening")

	// A second session appends below the first
	runLog, err = OpenRunLog(path, &LauncherMockLogger{})
	require.NoError(t, err)
	runLog.Close()

	content, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(content), "===== session started at "))
}

func TestRunLogShrinksOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	line := strings.Repeat("x", 1023) + "\n"
	var oversized strings.Builder
	for oversized.Len() <= maxRunLogSize {
		oversized.WriteString(line)
	}
	require.NoError(t, os.WriteFile(path, []byte(oversized.String()), 0600))

	runLog, err := OpenRunLog(path, &LauncherMockLogger{})
	require.NoError(t, err)
	runLog.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(maxRunLogSize))
}
