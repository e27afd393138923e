// Package device provides the sector read primitives: a raw block device
// backed by the host's disk nodes and a deterministic fixture with fault
// injection for tests and emulated runs.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// BlockDevice is a CHS view over a raw block device. Addresses are translated
// to byte offsets with the geometry set by SetGeometry.
type BlockDevice struct {
	r      io.ReaderAt
	closer io.Closer
	handle types.DeviceHandle
	geom   types.Geometry

	table func() (types.RawGeometry, error)
	ident func() (types.RawGeometry, error)
	reset func() error

	stats ReadStats
}

// ReadStats counts primitive calls made against a device.
type ReadStats struct {
	TrackReads   int64 `json:"track_reads" yaml:"track_reads"`
	SectorReads  int64 `json:"sector_reads" yaml:"sector_reads"`
	Failures     int64 `json:"failures" yaml:"failures"`
	Resets       int64 `json:"resets" yaml:"resets"`
	BytesRead    int64 `json:"bytes_read" yaml:"bytes_read"`
	ResetFailure int64 `json:"reset_failures" yaml:"reset_failures"`
}

// NewBlockDevice wraps r. Both geometry channels report ErrUnsupported and
// resets are no-ops until platform probes are attached.
func NewBlockDevice(r io.ReaderAt, handle types.DeviceHandle) *BlockDevice {
	unsupported := func() (types.RawGeometry, error) {
		return types.RawGeometry{}, types.ErrUnsupported
	}
	return &BlockDevice{
		r:      r,
		handle: handle,
		table:  unsupported,
		ident:  unsupported,
		reset:  func() error { return nil },
	}
}

// Open opens the device at handle.Path read-only and attaches the platform
// geometry and reset primitives.
func Open(handle types.DeviceHandle) (*BlockDevice, error) {
	if handle.Path == "" {
		return nil, fmt.Errorf("no device path for %s", handle)
	}
	f, err := os.OpenFile(handle.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	d := NewBlockDevice(f, handle)
	d.closer = f
	attachPlatform(d, f)
	return d, nil
}

// Handle returns the selector the device was opened with.
func (d *BlockDevice) Handle() types.DeviceHandle {
	return d.handle
}

// SetGeometry sets the layout used to translate CHS addresses.
func (d *BlockDevice) SetGeometry(g types.Geometry) {
	d.geom = g
}

// TableGeometry reads the drive parameter table channel.
func (d *BlockDevice) TableGeometry() (types.RawGeometry, error) {
	return d.table()
}

// IdentifyGeometry runs the device identify query.
func (d *BlockDevice) IdentifyGeometry() (types.RawGeometry, error) {
	return d.ident()
}

// ReadTrack reads a whole track at (cylinder, head) into buf.
func (d *BlockDevice) ReadTrack(head, cylinder uint32, buf []byte) error {
	unit := types.SectorUnit{Cylinder: cylinder, Head: head}
	d.stats.TrackReads++
	if err := d.checkTrack(unit.Track(), len(buf)); err != nil {
		d.stats.Failures++
		return &types.ReadError{Unit: unit, Cause: err}
	}
	return d.readAt(unit, buf[:d.geom.TrackBytes()], d.geom.TrackOffset(unit.Track()))
}

// ReadSector reads one sector at (cylinder, head, sector) into buf.
func (d *BlockDevice) ReadSector(head, cylinder, sector uint32, buf []byte) error {
	unit := types.SectorUnit{Cylinder: cylinder, Head: head, Sector: sector}
	d.stats.SectorReads++
	if err := d.checkTrack(unit.Track(), len(buf)); err != nil && !errors.Is(err, errShortBuffer) {
		d.stats.Failures++
		return &types.ReadError{Unit: unit, Cause: err}
	}
	if sector < 1 || sector > d.geom.SectorsPerTrack {
		d.stats.Failures++
		return &types.ReadError{Unit: unit, Cause: fmt.Errorf("sector %d outside 1..%d", sector, d.geom.SectorsPerTrack)}
	}
	if len(buf) < types.SectorSize {
		d.stats.Failures++
		return &types.ReadError{Unit: unit, Cause: errShortBuffer}
	}
	return d.readAt(unit, buf[:types.SectorSize], d.geom.SectorOffset(unit))
}

// ResetController reinitializes the device before a retry.
func (d *BlockDevice) ResetController() error {
	d.stats.Resets++
	if err := d.reset(); err != nil {
		d.stats.ResetFailure++
		return fmt.Errorf("reset controller: %w", err)
	}
	return nil
}

// Stats returns the primitive call counters.
func (d *BlockDevice) Stats() ReadStats {
	return d.stats
}

// Close releases the underlying device.
func (d *BlockDevice) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}

var errShortBuffer = errors.New("buffer smaller than unit")

func (d *BlockDevice) checkTrack(t types.TrackUnit, bufLen int) error {
	if !d.geom.Valid() {
		return fmt.Errorf("geometry not set")
	}
	if t.Cylinder >= d.geom.Cylinders || t.Head >= d.geom.Heads {
		return fmt.Errorf("track %s outside geometry %s", t, d.geom)
	}
	if bufLen < d.geom.TrackBytes() {
		return errShortBuffer
	}
	return nil
}

func (d *BlockDevice) readAt(unit types.SectorUnit, p []byte, off int64) error {
	n, err := d.r.ReadAt(p, off)
	d.stats.BytesRead += int64(n)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	d.stats.Failures++
	return &types.ReadError{Unit: unit, Cause: err}
}
