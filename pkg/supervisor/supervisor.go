package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
)

const (
	defaultGracefulTimeout = 20 * time.Second
	forcedExitTimeout      = 5 * time.Second
)

// ProcessSpec describes one server of the supervised pair
type ProcessSpec struct {
	ID        string
	Execution ExecutionConfig
}

// Spec describes a full supervised run
type Spec struct {
	// AppServer is the application server; it must open Port before the
	// access server is started
	AppServer ProcessSpec

	// AccessServer is the remote access server, started once the app
	// server is reachable. Optional.
	AccessServer *ProcessSpec

	// Host and Port locate the app server's listener for readiness probing
	Host string
	Port int

	ReadinessTimeout time.Duration
	GracefulTimeout  time.Duration

	// OutputSink receives every child output line as it arrives. Optional.
	OutputSink func(line string)

	// OutputLines bounds the retained output tail
	OutputLines int
}

// Result is the outcome of a finished run
type Result struct {
	State    State
	ExitCode int

	// Output is the retained tail of the children's merged output, kept
	// for crash diagnostics
	Output string
}

type exitStatus struct {
	code int
	err  error
}

type child struct {
	id      string
	pid     int
	done    chan exitStatus
	stopped bool
}

// Supervisor runs an application server together with its remote access
// server and guarantees both are reaped before Run returns, whatever the
// exit path. A supervisor is single-use.
type Supervisor struct {
	logger logging.Logger

	mutex sync.Mutex
	state State

	processes map[string]*child
}

func NewSupervisor(logger logging.Logger) *Supervisor {
	return &Supervisor{
		logger:    logger,
		state:     StateIdle,
		processes: make(map[string]*child),
	}
}

// State returns the current lifecycle phase
func (s *Supervisor) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.state
}

func (s *Supervisor) setState(state State) {
	s.mutex.Lock()
	s.logger.Debugf("Supervisor state transition, from: %s, to: %s", s.state, state)
	s.state = state
	s.mutex.Unlock()
}

// Run executes the supervised pair until the context is cancelled or a
// child exits. It blocks for the whole run and always reaps both children
// before returning. Cancellation performs an ordered shutdown: access
// server first, then the app server.
func (s *Supervisor) Run(ctx context.Context, spec Spec) (*Result, error) {
	s.mutex.Lock()
	if !canStartFromState(s.state) {
		state := s.state
		s.mutex.Unlock()
		return nil, errors.NewValidationError(
			fmt.Sprintf("cannot start in state '%s'", state),
			nil).WithContext("state", string(state))
	}
	s.state = StateStarting
	s.mutex.Unlock()

	gracefulTimeout := spec.GracefulTimeout
	if gracefulTimeout <= 0 {
		gracefulTimeout = defaultGracefulTimeout
	}

	buffer := newOutputBuffer(spec.OutputLines, spec.OutputSink)

	app, err := s.startChild(ctx, spec.AppServer, buffer)
	if err != nil {
		s.setState(StateCrashed)
		return nil, err
	}

	s.logger.Infof("Waiting for app server readiness, id: %s, host: %s, port: %d",
		app.id, probeHost(spec.Host), spec.Port)

	readiness := make(chan error, 1)
	go func() {
		readiness <- waitForPort(ctx, probeHost(spec.Host), spec.Port, spec.ReadinessTimeout)
	}()

	select {
	case status := <-app.done:
		s.logger.Errorf("App server exited during startup, id: %s, exit code: %d", app.id, status.code)
		s.setState(StateCrashed)
		return &Result{State: StateCrashed, ExitCode: status.code, Output: buffer.Tail()}, nil

	case err := <-readiness:
		if err != nil {
			status := s.terminate(app, gracefulTimeout)
			if errors.IsCancelledError(err) {
				s.logger.Infof("Startup cancelled, id: %s", app.id)
				s.setState(StateStopped)
				return &Result{State: StateStopped, ExitCode: status.code, Output: buffer.Tail()}, nil
			}
			s.logger.Errorf("App server not reachable, id: %s, error: %v", app.id, err)
			s.setState(StateCrashed)
			return &Result{State: StateCrashed, ExitCode: status.code, Output: buffer.Tail()}, nil
		}
	}

	s.logger.Infof("App server ready, id: %s, port: %d", app.id, spec.Port)

	var access *child
	var accessDone chan exitStatus
	if spec.AccessServer != nil {
		access, err = s.startChild(ctx, *spec.AccessServer, buffer)
		if err != nil {
			s.terminate(app, gracefulTimeout)
			s.setState(StateCrashed)
			return nil, err
		}
		accessDone = access.done
	}

	s.setState(StateRunning)

	select {
	case <-ctx.Done():
		s.logger.Infof("Shutdown requested")
		s.setState(StateStopping)
		if access != nil {
			s.terminate(access, gracefulTimeout)
		}
		status := s.terminate(app, gracefulTimeout)
		s.setState(StateStopped)
		return &Result{State: StateStopped, ExitCode: status.code, Output: buffer.Tail()}, nil

	case status := <-app.done:
		s.logger.Errorf("App server exited unexpectedly, id: %s, exit code: %d", app.id, status.code)
		s.setState(StateStopping)
		if access != nil {
			s.terminate(access, gracefulTimeout)
		}
		s.setState(StateCrashed)
		return &Result{State: StateCrashed, ExitCode: status.code, Output: buffer.Tail()}, nil

	case status := <-accessDone:
		s.logger.Errorf("Access server exited unexpectedly, id: %s, exit code: %d", access.id, status.code)
		s.setState(StateStopping)
		s.terminate(app, gracefulTimeout)
		s.setState(StateCrashed)
		return &Result{State: StateCrashed, ExitCode: status.code, Output: buffer.Tail()}, nil
	}
}

func (s *Supervisor) startChild(ctx context.Context, spec ProcessSpec, buffer *outputBuffer) (*child, error) {
	executeCmd := NewExecuteCmd(spec.Execution, spec.ID, s.logger)

	process, stdout, err := executeCmd(ctx)
	if err != nil {
		return nil, err
	}

	go buffer.collect(stdout)

	done := make(chan exitStatus, 1)
	go func() {
		state, err := process.Wait()
		if err != nil {
			s.logger.Warnf("Process wait failed, id: %s, PID: %d, error: %v", spec.ID, process.Pid, err)
			done <- exitStatus{code: -1, err: err}
			return
		}
		s.logger.Infof("Process exited, id: %s, PID: %d, status: %v", spec.ID, process.Pid, state)
		done <- exitStatus{code: state.ExitCode()}
	}()

	c := &child{
		id:   spec.ID,
		pid:  process.Pid,
		done: done,
	}
	s.mutex.Lock()
	s.processes[spec.ID] = c
	s.mutex.Unlock()

	return c, nil
}

// terminate shuts one child down: graceful signal to its process group,
// escalation to a kill after the grace period, and a bounded wait for the
// reaper goroutine in every case
func (s *Supervisor) terminate(c *child, gracefulTimeout time.Duration) exitStatus {
	// Fast path for a child that is already gone
	select {
	case status := <-c.done:
		return status
	default:
	}

	s.logger.Infof("Terminating process, id: %s, PID: %d", c.id, c.pid)

	if err := sendTerminationSignal(c.pid); err != nil {
		s.logger.Warnf("Failed to send termination signal, id: %s, PID: %d, error: %v", c.id, c.pid, err)
	}

	select {
	case status := <-c.done:
		s.logger.Infof("Process terminated gracefully, id: %s, PID: %d", c.id, c.pid)
		return status
	case <-time.After(gracefulTimeout):
		s.logger.Warnf("Process did not terminate within %v, forcing, id: %s, PID: %d", gracefulTimeout, c.id, c.pid)
	}

	if err := forceKill(c.pid); err != nil {
		s.logger.Warnf("Failed to kill process, id: %s, PID: %d, error: %v", c.id, c.pid, err)
	}

	select {
	case status := <-c.done:
		s.logger.Infof("Process force terminated, id: %s, PID: %d", c.id, c.pid)
		return status
	case <-time.After(forcedExitTimeout):
		s.logger.Errorf("Process did not exit even after kill, id: %s, PID: %d", c.id, c.pid)
		return exitStatus{code: -1, err: errors.NewTimeoutError("process did not exit after kill", nil).WithContext("pid", c.pid)}
	}
}
