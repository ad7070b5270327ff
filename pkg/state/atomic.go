package state

import (
	"os"
	"path/filepath"

	"github.com/core-tools/hsu-launcher/pkg/errors"
)

// WriteFileAtomic writes data to a temporary file in the target directory and
// renames it into place, so a concurrent reader never observes a half-written
// file. On any failure the temporary file is removed and the previous content
// of path, if any, is left untouched.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewIOError("failed to create temporary file", err).WithContext("path", path)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.NewIOError("failed to write temporary file", err).WithContext("path", path)
	}

	if err := tmp.Chmod(perm); err != nil {
		cleanup()
		return errors.NewIOError("failed to set file permissions", err).WithContext("path", path)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("failed to close temporary file", err).WithContext("path", path)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("atomic rename failed", err).WithContext("path", path)
	}

	return nil
}
