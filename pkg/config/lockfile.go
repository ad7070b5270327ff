package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
)

// RunLock is an exclusive per-config lock held for the lifetime of a run.
// The lock file records the holder PID so a lock left behind by a dead
// process can be reclaimed instead of blocking the config forever.
type RunLock struct {
	path   string
	logger logging.Logger
}

func NewRunLock(configDir string, logger logging.Logger) *RunLock {
	return &RunLock{
		path:   filepath.Join(configDir, LockFileName),
		logger: logger,
	}
}

func (l *RunLock) Path() string {
	return l.path
}

// Acquire takes the lock for the current process. A lock held by a live
// process is a conflict; a stale lock is reclaimed.
func (l *RunLock) Acquire() error {
	for attempt := 0; attempt < 2; attempt++ {
		file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
		if err == nil {
			_, writeErr := file.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			closeErr := file.Close()
			if writeErr != nil || closeErr != nil {
				os.Remove(l.path)
				return errors.NewIOError("failed to write run lock", writeErr).WithContext("path", l.path)
			}
			l.logger.Debugf("Run lock acquired, path: %s, pid: %d", l.path, os.Getpid())
			return nil
		}
		if !os.IsExist(err) {
			return errors.NewIOError("failed to create run lock", err).WithContext("path", l.path)
		}

		holder, readErr := l.holderPID()
		if readErr == nil && processAlive(holder) {
			return errors.NewConflictError("run config is already running", nil).
				WithContext("path", l.path).WithContext("pid", holder)
		}

		l.logger.Warnf("Reclaiming stale run lock, path: %s, holder: %d", l.path, holder)
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return errors.NewIOError("failed to remove stale run lock", err).WithContext("path", l.path)
		}
	}

	return errors.NewConflictError("run config is already running", nil).WithContext("path", l.path)
}

// Release drops the lock. Releasing a lock that is not held is not an error.
func (l *RunLock) Release() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warnf("Failed to remove run lock, path: %s, error: %v", l.path, err)
		return
	}
	l.logger.Debugf("Run lock released, path: %s", l.path)
}

func (l *RunLock) holderPID() (int, error) {
	content, err := os.ReadFile(l.path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(content)))
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
