package config

import (
	"path/filepath"
	"strings"
)

// UpdateChannel classifies which application versions are offered for update
type UpdateChannel string

const (
	// UpdateChannelTested restricts update candidates to the vetted catalog
	UpdateChannelTested UpdateChannel = "tested"

	// UpdateChannelNotTested allows the full upstream version list
	UpdateChannelNotTested UpdateChannel = "not_tested"

	// UpdateChannelUnknown resolves by catalog membership of the installed version
	UpdateChannelUnknown UpdateChannel = "unknown"
)

const (
	ConfigININame   = "config.ini"
	RunScriptName   = "run.sh"
	RunLogName      = "run.log"
	LockFileName    = "run.lock"
	certificateDir  = "cert"
	DataSubtreeName = "data"
)

// RunConfig is the closed, versioned record describing one way to launch the
// managed server pair. The name doubles as the directory name under the
// state root's configs/ tree, so it is case-sensitive and unique.
type RunConfig struct {
	Name string

	// Application installation this configuration launches
	AppPath string

	// Network parameters
	Port int
	Host string

	// Access secret; presence marks the configuration secure
	Token string

	// Opaque passwords, empty meaning "no password"
	Password   string
	ROPassword string

	// SeparateConfig isolates application user data under the config's own
	// subtree instead of the shared global one
	SeparateConfig bool

	// Extra user-specified certificate names (DNS or IP)
	CustomNames []string

	// Update channel and last version seen by an update check
	UpdateChannel UpdateChannel
	LastVersion   string

	// Imported certificate material, file names within the cert slot;
	// empty when the certificate was issued by the local authority
	Certificate      string
	CertificateKey   string
	CertificateChain string
}

// IsSecure reports whether the configuration carries certificate material
func (rc *RunConfig) IsSecure() bool {
	return rc.Token != ""
}

// IsPasswordProtected reports whether connecting requires a password token
func (rc *RunConfig) IsPasswordProtected() bool {
	return rc.Password != ""
}

// HasImportedCertificate reports whether the operator supplied the
// certificate instead of the local authority issuing one
func (rc *RunConfig) HasImportedCertificate() bool {
	return rc.Certificate != ""
}

// Dir returns the configuration's subtree under the given configs directory
func (rc *RunConfig) Dir(configsDir string) string {
	return filepath.Join(configsDir, rc.Name)
}

// CertDir returns the configuration's certificate slot
func (rc *RunConfig) CertDir(configsDir string) string {
	return filepath.Join(rc.Dir(configsDir), certificateDir)
}

// CustomNamesValue renders the custom SAN list for storage
func (rc *RunConfig) CustomNamesValue() string {
	return strings.Join(rc.CustomNames, ",")
}

// ParseCustomNames splits a stored comma-separated SAN list
func ParseCustomNames(value string) []string {
	if value == "" {
		return nil
	}
	var names []string
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}
