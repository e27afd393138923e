package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

var (
	errInjected = errors.New("injected media error")
	errNotReset = errors.New("controller not reset")
)

// FixtureSpec describes an emulated device. It is loaded from configuration
// for --emulate runs and built directly in tests.
type FixtureSpec struct {
	Cylinders       uint32        `mapstructure:"cylinders" yaml:"cylinders"`
	Heads           uint32        `mapstructure:"heads" yaml:"heads"`
	SectorsPerTrack uint32        `mapstructure:"sectors" yaml:"sectors"`
	TableCylinders  uint32        `mapstructure:"table_cylinders" yaml:"table_cylinders"`
	TableHeads      uint32        `mapstructure:"table_heads" yaml:"table_heads"`
	IdentifyFails   bool          `mapstructure:"identify_fails" yaml:"identify_fails"`
	Strict          bool          `mapstructure:"strict" yaml:"strict"`
	BadTracks       []TrackFault  `mapstructure:"bad_tracks" yaml:"bad_tracks"`
	BadSectors      []SectorFault `mapstructure:"bad_sectors" yaml:"bad_sectors"`
}

// TrackFault fails every bulk read of one track.
type TrackFault struct {
	Cylinder uint32 `mapstructure:"cylinder" yaml:"cylinder"`
	Head     uint32 `mapstructure:"head" yaml:"head"`
}

// SectorFault fails the first Failures reads of one sector. A negative
// Failures fails every read.
type SectorFault struct {
	Cylinder uint32 `mapstructure:"cylinder" yaml:"cylinder"`
	Head     uint32 `mapstructure:"head" yaml:"head"`
	Sector   uint32 `mapstructure:"sector" yaml:"sector"`
	Failures int    `mapstructure:"failures" yaml:"failures"`
}

// FixtureDevice is a deterministic in-memory medium with fault injection.
// Sector contents are a pure function of the CHS address, so repeated runs
// read identical data.
type FixtureDevice struct {
	mu     sync.Mutex
	handle types.DeviceHandle
	geom   types.Geometry

	table    types.RawGeometry
	tableErr error
	ident    types.RawGeometry
	identErr error

	badTracks map[types.TrackUnit]bool
	faults    map[types.SectorUnit]int
	strict    bool
	wedged    bool

	attempts    map[types.SectorUnit]int
	resets      int
	trackReads  int
	sectorReads int
	failures    int
	bytesRead   int
	events      []string
}

// NewFixture returns a healthy fixture whose two geometry channels agree.
func NewFixture(g types.Geometry) *FixtureDevice {
	return &FixtureDevice{
		handle:    types.DeviceHandle{Ordinal: 0, Path: "fixture"},
		geom:      g,
		table:     types.RawGeometry{Source: "parameter table", Cylinders: g.Cylinders, Heads: g.Heads},
		ident:     types.RawGeometry{Source: "identify", Cylinders: g.Cylinders, Heads: g.Heads, SectorsPerTrack: g.SectorsPerTrack},
		badTracks: make(map[types.TrackUnit]bool),
		faults:    make(map[types.SectorUnit]int),
		attempts:  make(map[types.SectorUnit]int),
	}
}

// NewFixtureFromSpec builds a fixture from a configuration description.
func NewFixtureFromSpec(spec FixtureSpec) *FixtureDevice {
	f := NewFixture(types.Geometry{
		Cylinders:       spec.Cylinders,
		Heads:           spec.Heads,
		SectorsPerTrack: spec.SectorsPerTrack,
	})
	f.handle.Path = "emulated"
	if spec.TableCylinders != 0 {
		f.table.Cylinders = spec.TableCylinders
	}
	if spec.TableHeads != 0 {
		f.table.Heads = spec.TableHeads
	}
	if spec.IdentifyFails {
		f.identErr = errInjected
	}
	f.strict = spec.Strict
	for _, t := range spec.BadTracks {
		f.FailTrack(types.TrackUnit{Cylinder: t.Cylinder, Head: t.Head})
	}
	for _, s := range spec.BadSectors {
		f.FailSector(types.SectorUnit{Cylinder: s.Cylinder, Head: s.Head, Sector: s.Sector}, s.Failures)
	}
	return f
}

// SetTable replaces the parameter table reading.
func (f *FixtureDevice) SetTable(g types.RawGeometry, err error) {
	f.table, f.tableErr = g, err
}

// SetIdentify replaces the identify reading.
func (f *FixtureDevice) SetIdentify(g types.RawGeometry, err error) {
	f.ident, f.identErr = g, err
}

// SetStrict makes the controller refuse every read after a sector failure
// until ResetController is called.
func (f *FixtureDevice) SetStrict(strict bool) {
	f.strict = strict
}

// FailTrack makes every bulk read of t fail.
func (f *FixtureDevice) FailTrack(t types.TrackUnit) {
	f.badTracks[t] = true
}

// FailSector fails the first n reads of s, or every read when n < 0. The
// containing track's bulk read fails while s is still failing.
func (f *FixtureDevice) FailSector(s types.SectorUnit, n int) {
	f.faults[s] = n
}

// SetHandle replaces the selector reported by Handle.
func (f *FixtureDevice) SetHandle(h types.DeviceHandle) {
	f.handle = h
}

// Handle returns the fixture's selector.
func (f *FixtureDevice) Handle() types.DeviceHandle {
	return f.handle
}

// Geometry returns the medium's true layout.
func (f *FixtureDevice) Geometry() types.Geometry {
	return f.geom
}

// TableGeometry returns the configured parameter table reading.
func (f *FixtureDevice) TableGeometry() (types.RawGeometry, error) {
	return f.table, f.tableErr
}

// IdentifyGeometry returns the configured identify reading.
func (f *FixtureDevice) IdentifyGeometry() (types.RawGeometry, error) {
	return f.ident, f.identErr
}

// ReadTrack fills buf with the track's contents unless the plan fails it.
func (f *FixtureDevice) ReadTrack(head, cylinder uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := types.TrackUnit{Cylinder: cylinder, Head: head}
	unit := types.SectorUnit{Cylinder: cylinder, Head: head}
	f.trackReads++
	f.events = append(f.events, "track "+t.String())

	if err := f.inBounds(unit); err != nil {
		return f.fail(&types.ReadError{Unit: unit, Cause: err})
	}
	if len(buf) < f.geom.TrackBytes() {
		return f.fail(&types.ReadError{Unit: unit, Cause: errShortBuffer})
	}
	if f.wedged || f.badTracks[t] || f.trackHasFault(t) {
		return f.fail(&types.ReadError{Unit: unit, Cause: errInjected})
	}
	for s := uint32(1); s <= f.geom.SectorsPerTrack; s++ {
		off := int(s-1) * types.SectorSize
		FillSector(buf[off:off+types.SectorSize], types.SectorUnit{Cylinder: cylinder, Head: head, Sector: s})
	}
	f.bytesRead += f.geom.TrackBytes()
	return nil
}

// ReadSector fills buf with one sector unless the plan fails it.
func (f *FixtureDevice) ReadSector(head, cylinder, sector uint32, buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	unit := types.SectorUnit{Cylinder: cylinder, Head: head, Sector: sector}
	f.sectorReads++
	f.attempts[unit]++
	f.events = append(f.events, "sector "+unit.String())

	if err := f.inBounds(unit); err != nil {
		return f.fail(&types.ReadError{Unit: unit, Cause: err})
	}
	if sector < 1 || sector > f.geom.SectorsPerTrack {
		return f.fail(&types.ReadError{Unit: unit, Cause: fmt.Errorf("sector %d outside 1..%d", sector, f.geom.SectorsPerTrack)})
	}
	if len(buf) < types.SectorSize {
		return f.fail(&types.ReadError{Unit: unit, Cause: errShortBuffer})
	}
	if f.strict && f.wedged {
		return f.fail(&types.ReadError{Unit: unit, Cause: errNotReset})
	}
	if n, ok := f.faults[unit]; ok && n != 0 {
		if n > 0 {
			f.faults[unit] = n - 1
		}
		f.wedged = f.strict
		return f.fail(&types.ReadError{Unit: unit, Cause: errInjected})
	}
	FillSector(buf[:types.SectorSize], unit)
	f.bytesRead += types.SectorSize
	return nil
}

// ResetController clears a wedged controller.
func (f *FixtureDevice) ResetController() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.wedged = false
	f.events = append(f.events, "reset")
	return nil
}

// Close is a no-op.
func (f *FixtureDevice) Close() error {
	return nil
}

// Resets returns the number of controller resets issued.
func (f *FixtureDevice) Resets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resets
}

// Attempts returns how many times s was read on the sector path.
func (f *FixtureDevice) Attempts(s types.SectorUnit) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[s]
}

// TrackReads returns the number of bulk reads issued.
func (f *FixtureDevice) TrackReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackReads
}

// SectorReads returns the number of single-sector reads issued.
func (f *FixtureDevice) SectorReads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sectorReads
}

// Stats returns the primitive call counters in the same shape as a
// BlockDevice reports them.
func (f *FixtureDevice) Stats() ReadStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ReadStats{
		TrackReads:  int64(f.trackReads),
		SectorReads: int64(f.sectorReads),
		Failures:    int64(f.failures),
		Resets:      int64(f.resets),
		BytesRead:   int64(f.bytesRead),
	}
}

// Events returns the ordered primitive calls, for sequencing assertions.
func (f *FixtureDevice) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *FixtureDevice) fail(err error) error {
	f.failures++
	return err
}

func (f *FixtureDevice) inBounds(u types.SectorUnit) error {
	if u.Cylinder >= f.geom.Cylinders || u.Head >= f.geom.Heads {
		return fmt.Errorf("track %s outside medium %s", u.Track(), f.geom)
	}
	return nil
}

func (f *FixtureDevice) trackHasFault(t types.TrackUnit) bool {
	for s, n := range f.faults {
		if n != 0 && s.Track() == t {
			return true
		}
	}
	return false
}

// FillSector writes the deterministic contents of s into p: the CHS address
// in the first twelve bytes followed by a byte ramp seeded from the address.
func FillSector(p []byte, s types.SectorUnit) {
	binary.LittleEndian.PutUint32(p[0:4], s.Cylinder)
	binary.LittleEndian.PutUint32(p[4:8], s.Head)
	binary.LittleEndian.PutUint32(p[8:12], s.Sector)
	seed := byte(s.Cylinder*31 + s.Head*7 + s.Sector)
	for i := 12; i < len(p); i++ {
		p[i] = seed + byte(i)
	}
}
