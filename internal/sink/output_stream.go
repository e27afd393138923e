// Package sink implements the append-only destination of an image.
package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// OutputStream owns a monotonically advancing write cursor. Every unit is
// written whole or the stream reports a WriteError; there is no partial
// advance.
type OutputStream struct {
	mu     sync.Mutex
	w      io.Writer
	buf    *bufio.Writer
	file   *os.File
	path   string
	offset int64
	closed bool
}

// Create creates or truncates the destination file. A positive bufferSize
// buffers writes until Close; zero writes every unit straight through.
func Create(path string, bufferSize int) (*OutputStream, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create destination: %w", err)
	}
	s := New(f, bufferSize)
	s.file = f
	s.path = path
	return s, nil
}

// New wraps an arbitrary writer.
func New(w io.Writer, bufferSize int) *OutputStream {
	s := &OutputStream{w: w}
	if bufferSize > 0 {
		s.buf = bufio.NewWriterSize(w, bufferSize)
		s.w = s.buf
	}
	return s
}

// Path returns the destination path, if the stream owns a file.
func (s *OutputStream) Path() string {
	return s.path
}

// WriteUnit appends p. A short write is reported as a WriteError.
func (s *OutputStream) WriteUnit(unit types.SectorUnit, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &types.WriteError{Unit: unit, Offset: s.offset, Cause: os.ErrClosed}
	}
	n, err := s.w.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return &types.WriteError{Unit: unit, Offset: s.offset, Cause: err}
	}
	s.offset += int64(n)
	return nil
}

// Offset returns the number of bytes accepted so far.
func (s *OutputStream) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// Close flushes buffered data, syncs and closes an owned file. It is safe to
// call more than once.
func (s *OutputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.buf != nil {
		if err := s.buf.Flush(); err != nil {
			firstErr = fmt.Errorf("flush destination: %w", err)
		}
	}
	if s.file != nil {
		if err := s.file.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sync destination: %w", err)
		}
		if err := s.file.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close destination: %w", err)
		}
	}
	return firstErr
}
