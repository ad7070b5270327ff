//go:build !windows

package supervisor

import (
	"syscall"
)

// sendTerminationSignal sends SIGTERM to the process group so the whole
// tree under the server gets a chance to shut down
func sendTerminationSignal(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}

// forceKill sends SIGKILL to the process group
func forceKill(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
