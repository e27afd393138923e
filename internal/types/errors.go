package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the imaging error taxonomy.
var (
	// ErrGeometry means no valid geometry could be produced.
	ErrGeometry = errors.New("geometry unavailable")
	// ErrRead means a device read failed. It never escapes the copy engine.
	ErrRead = errors.New("device read failed")
	// ErrWrite means the destination rejected a write.
	ErrWrite = errors.New("destination write failed")
	// ErrAborted means the operator cancelled the run.
	ErrAborted = errors.New("aborted by operator")
	// ErrUnsupported means the platform does not expose a primitive.
	ErrUnsupported = errors.New("operation not supported on this platform")
)

// GeometryError reports why reconciliation or validation failed.
type GeometryError struct {
	Geometry Geometry
	Missing  []string
	Exceeds  []string
	Cause    error
}

func (e *GeometryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("geometry unavailable: %v", e.Cause)
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("geometry unavailable: CHS %s has zero %s", e.Geometry, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("geometry unavailable: CHS %s exceeds the addressable %s", e.Geometry, strings.Join(e.Exceeds, ", "))
}

func (e *GeometryError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrGeometry, e.Cause}
	}
	return []error{ErrGeometry}
}

// ReadError reports a failed read of one unit.
type ReadError struct {
	Unit  SectorUnit
	Cause error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read CHS %s: %v", e.Unit, e.Cause)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrRead, e.Cause}
}

// WriteError reports a failed write to the destination at a given offset.
type WriteError struct {
	Unit   SectorUnit
	Offset int64
	Cause  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write CHS %s at offset %d: %v", e.Unit, e.Offset, e.Cause)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWrite, e.Cause}
}

// AbortError records where the copy stopped after cancellation. Next is the
// first unit that was not read.
type AbortError struct {
	Next SectorUnit
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborted by operator before CHS %s", e.Next)
}

func (e *AbortError) Unwrap() error {
	return ErrAborted
}
