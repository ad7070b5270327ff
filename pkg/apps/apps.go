package apps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

const productInfoName = "product-info.json"

// ProductInfo describes an installed application tree
type ProductInfo struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	BuildNumber  string `json:"buildNumber"`
	LauncherPath string `json:"launcherPath"`
}

// Manager resolves installed application trees and owns their removal.
// Removal is reference counted through the config store so a tree shared
// by several run configs survives until its last config goes away.
type Manager struct {
	root   *state.Root
	store  *config.Store
	logger logging.Logger
}

func NewManager(root *state.Root, store *config.Store, logger logging.Logger) *Manager {
	return &Manager{
		root:   root,
		store:  store,
		logger: logger,
	}
}

// InstalledApps returns the sorted names of application trees under the
// state root
func (m *Manager) InstalledApps() ([]string, error) {
	entries, err := os.ReadDir(m.root.AppsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.NewIOError("failed to read apps directory", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// AppPath resolves an application name to its tree under the state root
func (m *Manager) AppPath(name string) string {
	return filepath.Join(m.root.AppsDir(), name)
}

// ReadProductInfo loads the product descriptor of an application tree
func ReadProductInfo(appPath string) (*ProductInfo, error) {
	data, err := os.ReadFile(filepath.Join(appPath, productInfoName))
	if err != nil {
		return nil, errors.NewNotFoundError("application has no product descriptor", err).WithContext("app_path", appPath)
	}

	var info ProductInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, errors.NewValidationError("malformed product descriptor", err).WithContext("app_path", appPath)
	}
	return &info, nil
}

// LauncherPath returns the absolute launch script of an application tree.
// Falls back to the conventional bin/launcher.sh when the descriptor does
// not name one.
func LauncherPath(appPath string, info *ProductInfo) string {
	launcher := "bin/launcher.sh"
	if info != nil && info.LauncherPath != "" {
		launcher = info.LauncherPath
	}
	return filepath.Join(appPath, filepath.FromSlash(launcher))
}

// IsPackageManagerPath reports whether an application tree is owned by an
// external package manager. Such trees live under an "apps" directory with
// a channel component and must never be updated or removed here.
func IsPackageManagerPath(path string) bool {
	var hasAppsDir, hasChannelDir bool
	for _, component := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if component == "apps" {
			hasAppsDir = true
		}
		if strings.HasPrefix(component, "ch-") {
			hasChannelDir = true
		}
	}
	return hasAppsDir && hasChannelDir
}

// DataDir returns the per-run data directory of a config: a private subtree
// of the config when it keeps separate state, the shared tree otherwise
func (m *Manager) DataDir(rc *config.RunConfig) string {
	if rc.SeparateConfig {
		return filepath.Join(m.store.Dir(rc.Name), config.DataSubtreeName)
	}
	return filepath.Join(m.root.StateDir(), config.DataSubtreeName)
}

// RemoveIfUnreferenced deletes an application tree once no remaining run
// config references it. Trees outside the state root and package manager
// trees are never touched.
func (m *Manager) RemoveIfUnreferenced(appPath string) error {
	cleaned := filepath.Clean(appPath)

	if IsPackageManagerPath(cleaned) {
		m.logger.Debugf("Keeping package manager application, path: %s", cleaned)
		return nil
	}

	appsDir := filepath.Clean(m.root.AppsDir())
	if !strings.HasPrefix(cleaned, appsDir+string(filepath.Separator)) {
		m.logger.Debugf("Keeping application outside the state root, path: %s", cleaned)
		return nil
	}

	holders, err := m.store.ConfigsWithApp(cleaned)
	if err != nil {
		return err
	}
	if len(holders) > 0 {
		m.logger.Infof("Keeping shared application, path: %s, referenced by: %s", cleaned, strings.Join(holders, ", "))
		return nil
	}

	m.logger.Infof("Removing unreferenced application, path: %s", cleaned)
	if err := os.RemoveAll(cleaned); err != nil {
		return errors.NewIOError("failed to remove application tree", err).WithContext("app_path", cleaned)
	}
	return nil
}
