package state

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

// Default directory name under the user's home directory
const DefaultDirName = ".launcher"

const (
	configsDirName = "configs"
	appsDirName    = "apps"
	sslDirName     = "ssl"
	cacheDirName   = "cache"
	certDirName    = "cert"
)

// Root is the process-scoped registry of state directories. It is created
// once at startup and passed by reference into the components that need it;
// there is no module-level mutable state.
type Root struct {
	stateDir string
	cacheDir string
}

// RootOptions carry the directory overrides accepted by the CLI
type RootOptions struct {
	StateDir string // empty means ~/.launcher
	CacheDir string // empty means <state>/cache
}

func NewRoot(options RootOptions) (*Root, error) {
	stateDir := options.StateDir
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.NewIOError("failed to resolve user home directory", err)
		}
		stateDir = filepath.Join(home, DefaultDirName)
	}

	cacheDir := options.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(stateDir, cacheDirName)
	}

	return &Root{
		stateDir: stateDir,
		cacheDir: cacheDir,
	}, nil
}

// Init creates the state directory tree. Both the state root and the cache
// root must exist or be creatable before any operation proceeds.
func (r *Root) Init() error {
	for _, dir := range []string{r.stateDir, r.ConfigsDir(), r.AppsDir(), r.SSLDir(), r.cacheDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.NewIOError("failed to create state directory", err).WithContext("dir", dir)
		}
	}
	return nil
}

func (r *Root) StateDir() string {
	return r.stateDir
}

func (r *Root) CacheDir() string {
	return r.cacheDir
}

// ConfigsDir returns the directory holding one subtree per run configuration
func (r *Root) ConfigsDir() string {
	return filepath.Join(r.stateDir, configsDirName)
}

// AppsDir returns the directory holding installed application trees
func (r *Root) AppsDir() string {
	return filepath.Join(r.stateDir, appsDirName)
}

// SSLDir returns the directory holding the shared certificate authority
func (r *Root) SSLDir() string {
	return filepath.Join(r.stateDir, sslDirName)
}

// ConfigDir returns the subtree owned by the named run configuration
func (r *Root) ConfigDir(name string) string {
	return filepath.Join(r.ConfigsDir(), name)
}

// CertDir returns the certificate slot of the named run configuration
func (r *Root) CertDir(name string) string {
	return filepath.Join(r.ConfigDir(name), certDirName)
}

// DefaultsFile returns the path to the global defaults file
func (r *Root) DefaultsFile() string {
	return filepath.Join(r.stateDir, "defaults.ini")
}

// CatalogFile returns the path to the vetted compatible-version catalog
func (r *Root) CatalogFile() string {
	return filepath.Join(r.stateDir, "compatible.yaml")
}
