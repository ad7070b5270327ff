package supervisor

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
)

// ExecutionConfig describes how to spawn one server process
type ExecutionConfig struct {
	ExecutablePath   string
	Args             []string
	Environment      []string
	WorkingDirectory string
}

// ExecuteCmd spawns a process and returns it together with its merged
// stdout/stderr stream
type ExecuteCmd func(ctx context.Context) (*os.Process, io.ReadCloser, error)

// NewExecuteCmd builds the execution closure for one server of the pair.
// The child gets its own process group so termination reaches its whole
// process tree.
func NewExecuteCmd(execution ExecutionConfig, id string, logger logging.Logger) ExecuteCmd {
	return func(ctx context.Context) (*os.Process, io.ReadCloser, error) {
		if execution.ExecutablePath == "" {
			return nil, nil, errors.NewValidationError("executable path cannot be empty", nil).WithContext("id", id)
		}

		if err := ensureExecutable(execution.ExecutablePath); err != nil {
			return nil, nil, errors.NewPermissionError("failed to ensure process is executable", err).
				WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
		}

		workDir := execution.WorkingDirectory
		if workDir == "" {
			absPath, err := filepath.Abs(execution.ExecutablePath)
			if err != nil {
				return nil, nil, errors.NewIOError("failed to get absolute path", err).
					WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
			}
			workDir = filepath.Dir(absPath)
		}

		logger.Debugf("Executing process, id: %s, executable path: '%s', args: %v, working directory: '%s'",
			id, execution.ExecutablePath, execution.Args, workDir)

		cmd := exec.Command(execution.ExecutablePath, execution.Args...)
		cmd.Dir = workDir
		cmd.Env = append(os.Environ(), execution.Environment...)

		// Platform-specific setup is handled in execute_unix.go or execute_windows.go
		setupProcessAttributes(cmd)

		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, nil, errors.NewProcessError("failed to create stdout pipe", err).
				WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
		}
		cmd.Stderr = cmd.Stdout

		if err := cmd.Start(); err != nil {
			return nil, nil, errors.NewProcessError("failed to start the process", err).
				WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
		}

		logger.Infof("Process started, id: %s, PID: %d", id, cmd.Process.Pid)

		return cmd.Process, stdout, nil
	}
}

// ensureExecutable makes the target executable when the install step left
// the bit unset
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if err := os.Chmod(path, mode|0111); err != nil {
		return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
	}
	return nil
}
