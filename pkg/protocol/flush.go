package protocol

import (
	"bufio"
	"io"
	"sync"
)

// FlushWriter buffers each write and flushes it immediately, so a response line
// reaches the peer as one write even over pipes.
type FlushWriter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewFlushWriter(w io.Writer) *FlushWriter {
	return &FlushWriter{w: bufio.NewWriter(w)}
}

func (f *FlushWriter) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n, err := f.w.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.w.Flush()
}
