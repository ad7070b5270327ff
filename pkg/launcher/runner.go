package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/apps"
	"github.com/core-tools/hsu-launcher/pkg/config"
	"github.com/core-tools/hsu-launcher/pkg/supervisor"
)

const accessServerScript = "access.sh"

// RunOptions tunes a run invocation
type RunOptions struct {
	// Stdout receives the access URLs; defaults to os.Stdout
	Stdout io.Writer

	ReadinessTimeout time.Duration
	GracefulTimeout  time.Duration
}

// Run executes a configured server pair until interrupted. It holds the
// config's run lock, appends child output to the per-config log, and
// returns the process exit code for the invocation.
func (l *Launcher) Run(ctx context.Context, name string, options RunOptions) (int, error) {
	rc, err := l.store.Load(name)
	if err != nil {
		return 1, err
	}

	info, err := apps.ReadProductInfo(rc.AppPath)
	if err != nil {
		info = nil
	}
	launcherPath := apps.LauncherPath(rc.AppPath, info)

	if !l.store.RunScriptMatches(rc, launcherPath) {
		l.logger.Warnf("Launcher script out of date, regenerating, name: %s", name)
		if err := l.rebuildMaterial(rc); err != nil {
			return 1, err
		}
	}

	lock := config.NewRunLock(l.store.Dir(name), l.logger)
	if err := lock.Acquire(); err != nil {
		return 1, err
	}
	defer lock.Release()

	runLog, err := OpenRunLog(l.store.RunLogPath(name), l.logger)
	if err != nil {
		return 1, err
	}
	defer runLog.Close()

	stdout := options.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	for _, accessURL := range AccessURLs(rc, l.resolver) {
		fmt.Fprintln(stdout, accessURL)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		received, ok := <-sig
		if !ok {
			return
		}
		l.logger.Infof("Received signal: %v, shutting down", received)
		cancel()
	}()

	spec := supervisor.Spec{
		AppServer: supervisor.ProcessSpec{
			ID: name + "-app",
			Execution: supervisor.ExecutionConfig{
				ExecutablePath:   l.store.RunScriptPath(name),
				WorkingDirectory: rc.AppPath,
			},
		},
		Host:             rc.Host,
		Port:             rc.Port,
		ReadinessTimeout: options.ReadinessTimeout,
		GracefulTimeout:  options.GracefulTimeout,
		OutputSink:       runLog.Append,
	}

	// An access server script is optional in the application tree
	accessPath := filepath.Join(rc.AppPath, "bin", accessServerScript)
	if _, err := os.Stat(accessPath); err == nil {
		spec.AccessServer = &supervisor.ProcessSpec{
			ID: name + "-access",
			Execution: supervisor.ExecutionConfig{
				ExecutablePath:   accessPath,
				WorkingDirectory: rc.AppPath,
				Environment: []string{
					fmt.Sprintf("LAUNCHER_HOST=%s", rc.Host),
					fmt.Sprintf("LAUNCHER_PORT=%d", rc.Port),
				},
			},
		}
	}

	result, err := supervisor.NewSupervisor(l.logger).Run(ctx, spec)
	if err != nil {
		return 1, err
	}

	switch result.State {
	case supervisor.StateStopped:
		l.logger.Infof("Run finished, name: %s", name)
		return 0, nil
	default:
		l.logger.Errorf("Run crashed, name: %s, exit code: %d", name, result.ExitCode)
		if result.ExitCode > 0 {
			return result.ExitCode, nil
		}
		return 1, nil
	}
}
