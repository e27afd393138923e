// Package oplog writes and parses the per-unit operation log. Every record
// is written with one write call and optionally fsync'd, so the log on disk
// never runs behind the copy position.
package oplog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// TimeLayout is the timestamp format of session lines.
const TimeLayout = time.RFC3339

const (
	tagOK      = "OK"
	tagRetry   = "RETRY"
	tagErr     = "ERR"
	tagAborted = "ABORTED"

	phraseStarted  = " copy started at "
	phraseFinished = " copy finished at "
	phraseFailed   = " copy failed at "
)

// Log is an append-only operation log.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	file   *os.File
	sync   bool
	closed bool
}

// Open opens path in append mode, creating it when missing. With syncEach
// every record is fsync'd before Record returns.
func Open(path string, syncEach bool) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	l := New(f)
	l.file = f
	l.sync = syncEach
	return l, nil
}

// New wraps any writer. Nothing is buffered.
func New(w io.Writer) *Log {
	return &Log{w: w}
}

// Begin writes the session header.
func (l *Log) Begin(dest string, handle types.DeviceHandle, g types.Geometry, session string, at time.Time) error {
	header := fmt.Sprintf("\n%s%s%s session %s\nDrive %d CHS: %s device %s\n",
		dest, phraseStarted, at.Format(TimeLayout), session, handle.Ordinal, g, handle)
	return l.writeLine(header)
}

// Record appends one unit outcome. A zero sector denotes the whole track.
func (l *Log) Record(unit types.SectorUnit, outcome types.Outcome) error {
	return l.writeLine(FormatRecord(unit, outcome) + "\n")
}

// Aborted appends the abort record naming the first unread unit.
func (l *Log) Aborted(next types.SectorUnit) error {
	return l.writeLine(fmt.Sprintf("%s: %s\n", tagAborted, next))
}

// Finish writes the session trailer.
func (l *Log) Finish(dest string, at time.Time, cause error) error {
	if cause != nil {
		return l.writeLine(fmt.Sprintf("%s%s%s: %v\n", dest, phraseFailed, at.Format(TimeLayout), cause))
	}
	return l.writeLine(fmt.Sprintf("%s%s%s\n", dest, phraseFinished, at.Format(TimeLayout)))
}

// Close syncs and closes an owned file. Safe to call more than once.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		l.file.Close()
		return fmt.Errorf("sync log: %w", err)
	}
	return l.file.Close()
}

// FormatRecord renders one record line without the newline.
func FormatRecord(unit types.SectorUnit, outcome types.Outcome) string {
	switch outcome.Kind {
	case types.OutcomeSuccessAfterRetry:
		return fmt.Sprintf("%s %d: %s", tagRetry, outcome.Retries, unit)
	case types.OutcomeHardFailure:
		return fmt.Sprintf("%s: %s", tagErr, unit)
	default:
		return fmt.Sprintf("%s: %s", tagOK, unit)
	}
}

func (l *Log) writeLine(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return fmt.Errorf("write log: %w", os.ErrClosed)
	}
	if _, err := io.WriteString(l.w, s); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if l.sync && l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("sync log: %w", err)
		}
	}
	return nil
}
