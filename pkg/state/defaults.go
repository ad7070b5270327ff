package state

import (
	"bytes"
	"os"

	"gopkg.in/ini.v1"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

// DefaultBindHost is used when neither the CLI nor defaults.ini provide one
const DefaultBindHost = "0.0.0.0"

// Defaults holds the global settings shared by all run configurations
type Defaults struct {
	Host string
}

// ResolveHost returns the effective bind host for a new configuration
func (d Defaults) ResolveHost(host string) string {
	if host != "" {
		return host
	}
	if d.Host != "" {
		return d.Host
	}
	return DefaultBindHost
}

// LoadDefaults reads defaults.ini; a missing file yields zero defaults
func (r *Root) LoadDefaults() (Defaults, error) {
	path := r.DefaultsFile()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Defaults{}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return Defaults{}, errors.NewIOError("failed to read defaults file", err).WithContext("path", path)
	}

	return Defaults{
		Host: file.Section("LAUNCHER").Key("HOST").String(),
	}, nil
}

// SaveDefaults writes defaults.ini atomically
func (r *Root) SaveDefaults(defaults Defaults) error {
	file := ini.Empty()
	file.Section("LAUNCHER").Key("HOST").SetValue(defaults.Host)

	data, err := marshalINI(file)
	if err != nil {
		return errors.NewIOError("failed to encode defaults file", err)
	}

	return WriteFileAtomic(r.DefaultsFile(), data, 0600)
}

func marshalINI(file *ini.File) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := file.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
