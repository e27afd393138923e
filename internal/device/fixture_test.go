package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

func TestFixtureHealthyReads(t *testing.T) {
	g := types.Geometry{Cylinders: 2, Heads: 2, SectorsPerTrack: 3}
	f := NewFixture(g)

	track := make([]byte, g.TrackBytes())
	require.NoError(t, f.ReadTrack(1, 0, track))

	sector := make([]byte, types.SectorSize)
	require.NoError(t, f.ReadSector(1, 0, 2, sector))
	assert.Equal(t, track[types.SectorSize:2*types.SectorSize], sector)

	table, err := f.TableGeometry()
	require.NoError(t, err)
	ident, err := f.IdentifyGeometry()
	require.NoError(t, err)
	assert.Equal(t, g.Cylinders, table.Cylinders)
	assert.Equal(t, g.SectorsPerTrack, ident.SectorsPerTrack)
}

func TestFixtureSectorFaultCountsDown(t *testing.T) {
	g := types.Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 4}
	f := NewFixture(g)
	bad := types.SectorUnit{Cylinder: 0, Head: 0, Sector: 2}
	f.FailSector(bad, 2)

	track := make([]byte, g.TrackBytes())
	assert.ErrorIs(t, f.ReadTrack(0, 0, track), types.ErrRead, "bulk read fails while a sector is failing")

	sector := make([]byte, types.SectorSize)
	assert.Error(t, f.ReadSector(0, 0, 2, sector))
	assert.Error(t, f.ReadSector(0, 0, 2, sector))
	assert.NoError(t, f.ReadSector(0, 0, 2, sector))
	assert.Equal(t, 3, f.Attempts(bad))

	assert.NoError(t, f.ReadTrack(0, 0, track))
}

func TestFixtureStats(t *testing.T) {
	g := types.Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 4}
	f := NewFixture(g)
	f.FailSector(types.SectorUnit{Cylinder: 0, Head: 0, Sector: 2}, 1)

	track := make([]byte, g.TrackBytes())
	sector := make([]byte, types.SectorSize)
	assert.Error(t, f.ReadTrack(0, 0, track))
	assert.Error(t, f.ReadSector(0, 0, 2, sector))
	require.NoError(t, f.ResetController())
	assert.NoError(t, f.ReadSector(0, 0, 2, sector))
	assert.NoError(t, f.ReadTrack(0, 0, track))

	assert.Equal(t, ReadStats{
		TrackReads:  2,
		SectorReads: 2,
		Failures:    2,
		Resets:      1,
		BytesRead:   int64(types.SectorSize + g.TrackBytes()),
	}, f.Stats())
}

func TestFixtureFailedReadLeavesBuffer(t *testing.T) {
	f := NewFixture(types.Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 2})
	f.FailSector(types.SectorUnit{Sector: 1}, -1)

	sector := make([]byte, types.SectorSize)
	for i := range sector {
		sector[i] = 0xEE
	}
	for i := 0; i < 5; i++ {
		require.Error(t, f.ReadSector(0, 0, 1, sector))
	}
	for _, b := range sector {
		require.Equal(t, byte(0xEE), b)
	}
}

func TestFixtureStrictNeedsReset(t *testing.T) {
	f := NewFixture(types.Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 3})
	f.SetStrict(true)
	f.FailSector(types.SectorUnit{Sector: 1}, 1)

	buf := make([]byte, types.SectorSize)
	require.Error(t, f.ReadSector(0, 0, 1, buf))
	assert.Error(t, f.ReadSector(0, 0, 2, buf), "wedged until reset")

	require.NoError(t, f.ResetController())
	assert.NoError(t, f.ReadSector(0, 0, 2, buf))
	assert.Equal(t, 1, f.Resets())
	assert.Equal(t, []string{"sector 0,0,1", "sector 0,0,2", "reset", "sector 0,0,2"}, f.Events())
}

func TestFixtureFromSpec(t *testing.T) {
	f := NewFixtureFromSpec(FixtureSpec{
		Cylinders:       10,
		Heads:           2,
		SectorsPerTrack: 17,
		TableCylinders:  11,
		IdentifyFails:   true,
		BadTracks:       []TrackFault{{Cylinder: 3, Head: 1}},
		BadSectors:      []SectorFault{{Cylinder: 4, Head: 0, Sector: 5, Failures: -1}},
	})

	table, err := f.TableGeometry()
	require.NoError(t, err)
	assert.Equal(t, uint32(11), table.Cylinders)
	assert.Equal(t, uint32(2), table.Heads)

	_, err = f.IdentifyGeometry()
	assert.Error(t, err)

	track := make([]byte, f.Geometry().TrackBytes())
	assert.Error(t, f.ReadTrack(1, 3, track))
	assert.Error(t, f.ReadTrack(0, 4, track))
	assert.NoError(t, f.ReadTrack(0, 3, track))
	assert.Equal(t, "emulated", f.Handle().Path)
}

func TestFillSectorIsDeterministic(t *testing.T) {
	a := make([]byte, types.SectorSize)
	b := make([]byte, types.SectorSize)
	FillSector(a, types.SectorUnit{Cylinder: 5, Head: 1, Sector: 9})
	FillSector(b, types.SectorUnit{Cylinder: 5, Head: 1, Sector: 9})
	assert.Equal(t, a, b)

	FillSector(b, types.SectorUnit{Cylinder: 5, Head: 1, Sector: 10})
	assert.NotEqual(t, a, b)
}
