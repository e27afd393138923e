// Package types holds the data model shared by the imaging components:
// device geometry, CHS unit addresses, per-unit outcomes and the typed
// errors that cross package boundaries.
package types

import "fmt"

// SectorSize is the fixed size of one CHS-addressed sector in bytes.
const SectorSize = 512

// DefaultMaxAttempts is the total number of reads allowed for one sector on
// the fallback path, the first read included.
const DefaultMaxAttempts = 10

// Upper bounds of the CHS address fields. Heads and sectors are 8-bit
// fields in both the parameter table and the int13 register layout.
const (
	MaxHeads           = 255
	MaxSectorsPerTrack = 255
)

// Geometry is the authoritative cylinder/head/sector layout of a device.
// All three fields must be non-zero before any copy begins, and heads and
// sectors must fit their address fields.
type Geometry struct {
	Cylinders       uint32 `json:"cylinders" yaml:"cylinders"`
	Heads           uint32 `json:"heads" yaml:"heads"`
	SectorsPerTrack uint32 `json:"sectors_per_track" yaml:"sectors_per_track"`
}

// Valid reports whether every field of the geometry is non-zero.
func (g Geometry) Valid() bool {
	return g.Cylinders > 0 && g.Heads > 0 && g.SectorsPerTrack > 0
}

// TrackBytes returns the size of one bulk-readable track.
func (g Geometry) TrackBytes() int {
	return int(g.SectorsPerTrack) * SectorSize
}

// Tracks returns the number of (cylinder, head) units.
func (g Geometry) Tracks() int64 {
	return int64(g.Cylinders) * int64(g.Heads)
}

// TotalBytes returns the size of a complete image of the device.
func (g Geometry) TotalBytes() int64 {
	return g.Tracks() * int64(g.TrackBytes())
}

// TrackOffset returns the byte offset of a track within the image.
func (g Geometry) TrackOffset(t TrackUnit) int64 {
	index := int64(t.Cylinder)*int64(g.Heads) + int64(t.Head)
	return index * int64(g.TrackBytes())
}

// SectorOffset returns the byte offset of a sector within the image.
// Sector numbers are 1-based.
func (g Geometry) SectorOffset(s SectorUnit) int64 {
	return g.TrackOffset(s.Track()) + int64(s.Sector-1)*SectorSize
}

// UnitAt returns the unit whose bytes start at off. An offset on a track
// boundary yields the whole-track unit.
func (g Geometry) UnitAt(off int64) SectorUnit {
	tb := int64(g.TrackBytes())
	if tb == 0 || g.Heads == 0 {
		return SectorUnit{}
	}
	index := off / tb
	within := off % tb
	u := SectorUnit{
		Cylinder: uint32(index / int64(g.Heads)),
		Head:     uint32(index % int64(g.Heads)),
	}
	if within != 0 {
		u.Sector = uint32(within/SectorSize) + 1
	}
	return u
}

// String renders the geometry as C,H,S.
func (g Geometry) String() string {
	return fmt.Sprintf("%d,%d,%d", g.Cylinders, g.Heads, g.SectorsPerTrack)
}

// RawGeometry is one channel's reading of the device layout before
// reconciliation. A channel that does not report a field leaves it zero.
type RawGeometry struct {
	Source          string `json:"source" yaml:"source"`
	Cylinders       uint32 `json:"cylinders" yaml:"cylinders"`
	Heads           uint32 `json:"heads" yaml:"heads"`
	SectorsPerTrack uint32 `json:"sectors_per_track" yaml:"sectors_per_track"`
}

// DeviceHandle identifies the physical unit being imaged. It is resolved
// once and never changes for the lifetime of a session.
type DeviceHandle struct {
	Ordinal int    `json:"ordinal" yaml:"ordinal"`
	Path    string `json:"path" yaml:"path"`
}

// String returns the device path, or the ordinal when no path is known.
func (d DeviceHandle) String() string {
	if d.Path != "" {
		return d.Path
	}
	return fmt.Sprintf("drive %d", d.Ordinal)
}

// TrackUnit addresses all sectors under one head at one cylinder.
type TrackUnit struct {
	Cylinder uint32
	Head     uint32
}

// String renders the track as C,H.
func (t TrackUnit) String() string {
	return fmt.Sprintf("%d,%d", t.Cylinder, t.Head)
}

// SectorUnit addresses exactly one 512-byte sector. Sector is 1-based.
// A zero Sector denotes the whole track.
type SectorUnit struct {
	Cylinder uint32
	Head     uint32
	Sector   uint32
}

// Track returns the track that contains the sector.
func (s SectorUnit) Track() TrackUnit {
	return TrackUnit{Cylinder: s.Cylinder, Head: s.Head}
}

// String renders the sector as C,H,S, using * for a whole track.
func (s SectorUnit) String() string {
	if s.Sector == 0 {
		return fmt.Sprintf("%d,%d,*", s.Cylinder, s.Head)
	}
	return fmt.Sprintf("%d,%d,%d", s.Cylinder, s.Head, s.Sector)
}
