// File: internal/interfaces/block_device.go
package interfaces

import (
	"io"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// GeometryTable reads the firmware-maintained drive parameter table.
// It is authoritative for cylinder and head counts.
type GeometryTable interface {
	// TableGeometry returns the table's cylinder and head counts
	TableGeometry() (types.RawGeometry, error)
}

// DeviceIdentifier queries the device directly for its layout.
// It is authoritative for sectors per track.
type DeviceIdentifier interface {
	// IdentifyGeometry returns the device-reported cylinders, heads and sectors
	IdentifyGeometry() (types.RawGeometry, error)
}

// SectorReader wraps the low-level CHS read and controller reset primitives.
// Reads never retry internally.
type SectorReader interface {
	// ReadTrack reads every sector of one track into buf, which must hold
	// SectorsPerTrack*512 bytes
	ReadTrack(head, cylinder uint32, buf []byte) error

	// ReadSector reads exactly one 512-byte sector. sector is 1-based
	ReadSector(head, cylinder, sector uint32, buf []byte) error

	// ResetController reinitializes the controller before a retry
	ResetController() error
}

// Device is a complete imaging source: both geometry channels plus reads.
type Device interface {
	GeometryTable
	DeviceIdentifier
	SectorReader
	io.Closer

	// Handle returns the selector the device was opened with
	Handle() types.DeviceHandle
}

// GeometryAware is implemented by readers that must know the reconciled
// geometry to translate CHS addresses into byte offsets.
type GeometryAware interface {
	SetGeometry(g types.Geometry)
}
