package launcher

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-launcher/pkg/errors"
	"github.com/core-tools/hsu-launcher/pkg/logging"
)

const (
	maxRunLogSize = 5 * 1024 * 1024
	sessionMarker = "===== session started at %s ====="
)

// RunLog is the per-config append log of child server output. Sessions are
// separated by timestamp markers; the file is shrunk to its newer half
// once it outgrows the size cap, so long-lived configs cannot fill the disk.
type RunLog struct {
	path   string
	logger logging.Logger

	mutex sync.Mutex
	file  *os.File
}

// OpenRunLog opens the log for a new run session, applying the size cap and
// writing the session marker
func OpenRunLog(path string, logger logging.Logger) (*RunLog, error) {
	if err := shrinkIfOversized(path, maxRunLogSize); err != nil {
		logger.Warnf("Failed to shrink run log, path: %s, error: %v", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, errors.NewIOError("failed to open run log", err).WithContext("path", path)
	}

	runLog := &RunLog{
		path:   path,
		logger: logger,
		file:   file,
	}
	runLog.Append(fmt.Sprintf(sessionMarker, time.Now().Format(time.RFC3339)))
	return runLog, nil
}

// Append writes one line to the session log. Write failures are logged and
// swallowed so a full disk cannot take the run down.
func (l *RunLog) Append(line string) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file == nil {
		return
	}
	if _, err := l.file.WriteString(line + "\n"); err != nil {
		l.logger.Warnf("Failed to append to run log, path: %s, error: %v", l.path, err)
	}
}

// Close ends the session log
func (l *RunLog) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}

// shrinkIfOversized keeps the newer half of the log, cut at a line boundary
func shrinkIfOversized(path string, maxSize int64) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	tail := data[len(data)/2:]
	if pos := bytes.IndexByte(tail, '\n'); pos >= 0 && pos+1 < len(tail) {
		tail = tail[pos+1:]
	}

	return os.WriteFile(path, tail, 0600)
}
