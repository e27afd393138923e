package interfaces

import (
	"time"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Sink is the append-only destination of the image.
type Sink interface {
	// WriteUnit appends one unit's buffer. The cursor advances by len(p)
	// on success
	WriteUnit(unit types.SectorUnit, p []byte) error

	// Offset returns the current write cursor
	Offset() int64

	// Close flushes buffered data and releases the destination
	Close() error
}

// OperationLog is the per-unit audit trail of a session.
type OperationLog interface {
	// Begin writes the session header
	Begin(dest string, handle types.DeviceHandle, g types.Geometry, session string, at time.Time) error

	// Record appends the outcome of one unit
	Record(unit types.SectorUnit, outcome types.Outcome) error

	// Aborted appends the final abort record naming the first unread unit
	Aborted(next types.SectorUnit) error

	// Finish writes the session trailer. A nil cause marks success
	Finish(dest string, at time.Time, cause error) error

	// Close releases the log
	Close() error
}

// ProgressObserver receives non-authoritative progress events from the engine.
type ProgressObserver interface {
	// Start is called once with the number of tracks to copy
	Start(tracks int64)

	// Retry is called before every retry attempt of a sector
	Retry(unit types.SectorUnit, attempt int)

	// Unit is called after each unit outcome is recorded
	Unit(unit types.SectorUnit, outcome types.Outcome)

	// TrackDone is called after the last unit of a track
	TrackDone(track types.TrackUnit)

	// Finish is called once when the copy stops
	Finish()
}
