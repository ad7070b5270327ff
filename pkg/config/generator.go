package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

const sslPropertiesName = "ssl.properties"

// SSLPropertiesPath returns the server-side TLS properties file of a config
func SSLPropertiesPath(configDir string) string {
	return filepath.Join(configDir, sslPropertiesName)
}

// BuildRunScript renders the launcher script for a run config. The script is
// a deterministic function of the config attributes, which makes the
// rebuild check a plain byte comparison.
func BuildRunScript(rc *RunConfig, appLauncherPath, configDir string) []byte {
	var buf bytes.Buffer

	buf.WriteString("#!/bin/sh\n")
	fmt.Fprintf(&buf, "# Generated for run config %q. Do not edit, changes are overwritten on rebuild.\n\n", rc.Name)

	fmt.Fprintf(&buf, "LAUNCHER_HOST=%s\n", shQuote(rc.Host))
	fmt.Fprintf(&buf, "LAUNCHER_PORT=%s\n", shQuote(strconv.Itoa(rc.Port)))
	if rc.IsSecure() {
		fmt.Fprintf(&buf, "LAUNCHER_ACCESS_TOKEN=%s\n", shQuote(rc.Token))
		fmt.Fprintf(&buf, "LAUNCHER_SSL_PROPERTIES=%s\n", shQuote(SSLPropertiesPath(configDir)))
	}
	if rc.IsPasswordProtected() {
		fmt.Fprintf(&buf, "LAUNCHER_PASSWORD=%s\n", shQuote(rc.Password))
		fmt.Fprintf(&buf, "LAUNCHER_RO_PASSWORD=%s\n", shQuote(rc.ROPassword))
	}
	if rc.SeparateConfig {
		fmt.Fprintf(&buf, "LAUNCHER_DATA_DIR=%s\n", shQuote(filepath.Join(configDir, DataSubtreeName)))
	}
	buf.WriteString("export LAUNCHER_HOST LAUNCHER_PORT\n")
	if rc.IsSecure() {
		buf.WriteString("export LAUNCHER_ACCESS_TOKEN LAUNCHER_SSL_PROPERTIES\n")
	}
	if rc.IsPasswordProtected() {
		buf.WriteString("export LAUNCHER_PASSWORD LAUNCHER_RO_PASSWORD\n")
	}
	if rc.SeparateConfig {
		buf.WriteString("export LAUNCHER_DATA_DIR\n")
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "exec %s\n", shQuote(appLauncherPath))

	return buf.Bytes()
}

// BuildSSLProperties renders the TLS material pointers consumed by the
// server side of a secure config.
func BuildSSLProperties(certFile, keyFile, chainFile string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "CERTIFICATE_FILE=%s\n", certFile)
	fmt.Fprintf(&buf, "KEY_FILE=%s\n", keyFile)
	if chainFile != "" {
		fmt.Fprintf(&buf, "CHAIN_FILE=%s\n", chainFile)
	}
	return buf.Bytes()
}

// WriteRunScript persists the launcher script for a run config, replacing
// whatever was there before
func (s *Store) WriteRunScript(rc *RunConfig, appLauncherPath string) error {
	content := BuildRunScript(rc, appLauncherPath, s.Dir(rc.Name))
	if err := state.WriteFileAtomic(s.RunScriptPath(rc.Name), content, 0700); err != nil {
		return errors.NewIOError("failed to write run script", err).WithContext("name", rc.Name)
	}
	return nil
}

// RunScriptMatches reports whether the on-disk launcher script of a config
// is exactly what would be generated for it now. A missing script does not
// match.
func (s *Store) RunScriptMatches(rc *RunConfig, appLauncherPath string) bool {
	existing, err := os.ReadFile(s.RunScriptPath(rc.Name))
	if err != nil {
		return false
	}
	return bytes.Equal(existing, BuildRunScript(rc, appLauncherPath, s.Dir(rc.Name)))
}

// shQuote wraps a value in single quotes for POSIX sh, escaping embedded
// single quotes
func shQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
