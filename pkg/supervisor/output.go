package supervisor

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

const defaultOutputLines = 200

// outputBuffer keeps the most recent child output lines for crash
// diagnostics. Old lines are dropped once the bound is reached.
type outputBuffer struct {
	mutex sync.Mutex
	lines []string
	max   int
	sink  func(line string)
}

func newOutputBuffer(maxLines int, sink func(line string)) *outputBuffer {
	if maxLines <= 0 {
		maxLines = defaultOutputLines
	}
	return &outputBuffer{
		max:  maxLines,
		sink: sink,
	}
}

// collect drains a child output stream line by line until EOF. Runs on its
// own goroutine; returning means the pipe is closed and the child is gone
// or has closed its output.
func (b *outputBuffer) collect(reader io.ReadCloser) {
	defer reader.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		b.append(scanner.Text())
	}
}

func (b *outputBuffer) append(line string) {
	b.mutex.Lock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.max {
		b.lines = b.lines[len(b.lines)-b.max:]
	}
	sink := b.sink
	b.mutex.Unlock()

	if sink != nil {
		sink(line)
	}
}

// Tail returns the retained output as one string
func (b *outputBuffer) Tail() string {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return strings.Join(b.lines, "\n")
}
