package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
	"github.com/core-tools/hsu-launcher/pkg/state"
)

// Store provides durable run-config records under the state root. Mutating
// operations on the same name are linearized by the store mutex; writes go
// through write-to-temporary-then-atomic-rename so a concurrent reader never
// observes a half-written config.
type Store struct {
	root   *state.Root
	logger logging.Logger
	mutex  sync.Mutex
}

func NewStore(root *state.Root, logger logging.Logger) *Store {
	return &Store{
		root:   root,
		logger: logger,
	}
}

// Dir returns the subtree owned by the named config
func (s *Store) Dir(name string) string {
	return s.root.ConfigDir(name)
}

// CertDir returns the certificate slot of the named config
func (s *Store) CertDir(name string) string {
	return s.root.CertDir(name)
}

// RunScriptPath returns the generated launcher script of the named config
func (s *Store) RunScriptPath(name string) string {
	return filepath.Join(s.Dir(name), RunScriptName)
}

// RunLogPath returns the per-config log file
func (s *Store) RunLogPath(name string) string {
	return filepath.Join(s.Dir(name), RunLogName)
}

// Exists reports whether a config with the given name is on disk
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.Dir(name), ConfigININame))
	return err == nil
}

// Create persists a new run config. Without force an existing name is a
// conflict; with force the existing record is overwritten in place.
func (s *Store) Create(rc *RunConfig, force bool) error {
	if err := ValidateRunConfig(rc); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.Exists(rc.Name) && !force {
		return errors.NewConflictError("run config already exists", nil).WithContext("name", rc.Name)
	}

	s.logger.Infof("Creating run config, name: %s, port: %d, host: %s, secure: %t",
		rc.Name, rc.Port, rc.Host, rc.IsSecure())

	return s.save(rc)
}

// Load reads the named run config from disk
func (s *Store) Load(name string) (*RunConfig, error) {
	path := filepath.Join(s.Dir(name), ConfigININame)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("run config not found", err).WithContext("name", name)
		}
		return nil, errors.NewIOError("failed to read run config", err).WithContext("name", name)
	}

	return decodeRunConfig(name, data)
}

// Update persists changes to an existing run config
func (s *Store) Update(rc *RunConfig) error {
	if err := ValidateRunConfig(rc); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.Exists(rc.Name) {
		return errors.NewNotFoundError("run config not found", nil).WithContext("name", rc.Name)
	}

	s.logger.Infof("Updating run config, name: %s", rc.Name)

	return s.save(rc)
}

func (s *Store) save(rc *RunConfig) error {
	dir := s.Dir(rc.Name)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewIOError("failed to create run config directory", err).WithContext("name", rc.Name)
	}

	data, err := encodeRunConfig(rc)
	if err != nil {
		return err
	}

	return state.WriteFileAtomic(filepath.Join(dir, ConfigININame), data, 0600)
}

// Rename moves a run config, including its certificate material, to a new
// name. The move is a single directory rename: if it fails partway the
// original subtree remains intact and readable under the old name.
func (s *Store) Rename(oldName, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.Exists(oldName) {
		return errors.NewNotFoundError("run config not found", nil).WithContext("name", oldName)
	}
	if s.Exists(newName) {
		return errors.NewConflictError("run config already exists", nil).WithContext("name", newName)
	}

	s.logger.Infof("Renaming run config, from: %s, to: %s", oldName, newName)

	if err := os.Rename(s.Dir(oldName), s.Dir(newName)); err != nil {
		return errors.NewIOError("failed to rename run config directory", err).
			WithContext("from", oldName).WithContext("to", newName)
	}

	return nil
}

// Delete removes the named run config's subtree
func (s *Store) Delete(name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.Exists(name) {
		return errors.NewNotFoundError("run config not found", nil).WithContext("name", name)
	}

	s.logger.Infof("Deleting run config, name: %s", name)

	if err := os.RemoveAll(s.Dir(name)); err != nil {
		return errors.NewIOError("failed to remove run config directory", err).WithContext("name", name)
	}

	return nil
}

// List loads the run configs whose names contain the given pattern
// (case-insensitive). An exact name match returns just that config. An empty
// pattern returns everything.
func (s *Store) List(pattern string) (map[string]*RunConfig, error) {
	entries, err := os.ReadDir(s.root.ConfigsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*RunConfig{}, nil
		}
		return nil, errors.NewIOError("failed to read configs directory", err)
	}

	result := make(map[string]*RunConfig)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()

		if pattern != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(pattern)) {
			continue
		}

		rc, err := s.Load(name)
		if err != nil {
			s.logger.Warnf("Skipping unreadable run config, name: %s, error: %v", name, err)
			continue
		}

		if pattern == name {
			return map[string]*RunConfig{name: rc}, nil
		}

		result[name] = rc
	}

	return result, nil
}

// Names returns the sorted config names matching the given pattern
func (s *Store) Names(pattern string) ([]string, error) {
	configs, err := s.List(pattern)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UsedPorts returns the ports referenced by existing run configs
func (s *Store) UsedPorts() ([]int, error) {
	configs, err := s.List("")
	if err != nil {
		return nil, err
	}

	ports := make([]int, 0, len(configs))
	for _, rc := range configs {
		ports = append(ports, rc.Port)
	}
	sort.Ints(ports)
	return ports, nil
}

// ConfigsWithApp returns the names of configs referencing the given
// application installation path
func (s *Store) ConfigsWithApp(appPath string) ([]string, error) {
	configs, err := s.List("")
	if err != nil {
		return nil, err
	}

	cleaned := filepath.Clean(appPath)

	var names []string
	for name, rc := range configs {
		if filepath.Clean(rc.AppPath) == cleaned {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
