package supervisor

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

const (
	defaultReadinessTimeout = 30 * time.Second
	readinessProbeInterval  = 200 * time.Millisecond
	readinessProbeTimeout   = readinessProbeInterval
)

// waitForPort polls a TCP connect to the server port until it accepts,
// the timeout elapses, or the context is cancelled
func waitForPort(ctx context.Context, host string, port int, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}

	address := net.JoinHostPort(host, strconv.Itoa(port))
	deadline := time.Now().Add(timeout)

	ticker := time.NewTicker(readinessProbeInterval)
	defer ticker.Stop()

	for {
		conn, err := net.DialTimeout("tcp", address, readinessProbeTimeout)
		if err == nil {
			conn.Close()
			return nil
		}

		if time.Now().After(deadline) {
			return errors.NewTimeoutError("server did not accept connections in time", err).
				WithContext("address", address).WithContext("timeout", timeout)
		}

		select {
		case <-ctx.Done():
			return errors.NewCancelledError("readiness wait cancelled", ctx.Err()).WithContext("address", address)
		case <-ticker.C:
		}
	}
}

// probeHost maps a wildcard bind address to a connectable loopback one
func probeHost(host string) string {
	if host == "0.0.0.0" || host == "::" || host == "" {
		return "127.0.0.1"
	}
	return host
}
