package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var hostnamePattern = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,62}[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]{0,62}[A-Za-z0-9])?)*$`)

// ValidateName checks that a configuration name is usable as a directory name
func ValidateName(name string) error {
	if name == "" {
		return errors.NewValidationError("run config name cannot be empty", nil)
	}
	if !namePattern.MatchString(name) {
		return errors.NewValidationError(
			fmt.Sprintf("run config name '%s' contains characters not allowed in a directory name", name),
			nil).WithContext("name", name)
	}
	return nil
}

// ValidatePort checks listening port range
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return errors.NewValidationError(
			fmt.Sprintf("port must be between 1 and 65535, got %d", port),
			nil).WithContext("port", port)
	}
	return nil
}

// ValidateHost checks that the bind address is an IP address or a hostname
func ValidateHost(host string) error {
	if host == "" {
		return errors.NewValidationError("hostname cannot be empty", nil)
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnamePattern.MatchString(host) {
		return errors.NewValidationError(
			fmt.Sprintf("malformed hostname: %s", host),
			nil).WithContext("host", host)
	}
	return nil
}

// ValidateRunConfig checks the full attribute set before persisting
func ValidateRunConfig(rc *RunConfig) error {
	if err := ValidateName(rc.Name); err != nil {
		return err
	}
	if err := ValidatePort(rc.Port); err != nil {
		return err
	}
	if err := ValidateHost(rc.Host); err != nil {
		return err
	}

	if rc.AppPath == "" {
		return errors.NewValidationError("application path cannot be empty", nil).WithContext("name", rc.Name)
	}
	info, err := os.Stat(rc.AppPath)
	if err != nil || !info.IsDir() {
		return errors.NewValidationError(
			fmt.Sprintf("application path does not exist: %s", rc.AppPath),
			err).WithContext("name", rc.Name)
	}

	for _, custom := range rc.CustomNames {
		if net.ParseIP(custom) != nil {
			continue
		}
		if !hostnamePattern.MatchString(custom) {
			return errors.NewValidationError(
				fmt.Sprintf("malformed custom certificate name: %s", custom),
				nil).WithContext("name", rc.Name)
		}
	}

	if rc.ROPassword != "" && rc.Password == "" {
		return errors.NewValidationError("read-only password requires a read-write password", nil).WithContext("name", rc.Name)
	}

	return nil
}

// MakeConfigName derives a config name from an application name, taking the
// part before the first space
func MakeConfigName(appName string) string {
	if pos := strings.IndexByte(appName, ' '); pos != -1 {
		return appName[:pos]
	}
	return appName
}
