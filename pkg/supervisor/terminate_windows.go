//go:build windows

package supervisor

import (
	"fmt"
	"os"
	"syscall"
)

// sendTerminationSignal sends a Ctrl-Break event to the child's process
// group. Console applications treat it as the graceful shutdown request.
func sendTerminationSignal(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	dll, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return fmt.Errorf("failed to load kernel32.dll: %v", err)
	}
	defer dll.Release()

	proc, err := dll.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return fmt.Errorf("failed to find GenerateConsoleCtrlEvent: %v", err)
	}

	result, _, err := proc.Call(syscall.CTRL_BREAK_EVENT, uintptr(pid))
	if result == 0 {
		return fmt.Errorf("GenerateConsoleCtrlEvent failed: %v", err)
	}
	return nil
}

// forceKill terminates the process outright
func forceKill(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}
