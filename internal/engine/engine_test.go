package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/deploymenttheory/go-rawimage/internal/device"
	"github.com/deploymenttheory/go-rawimage/internal/oplog"
	"github.com/deploymenttheory/go-rawimage/internal/sink"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

var smallDisk = types.Geometry{Cylinders: 3, Heads: 2, SectorsPerTrack: 4}

type harness struct {
	dev  *device.FixtureDevice
	out  *bytes.Buffer
	log  *bytes.Buffer
	sess *Session
}

func newHarness(t *testing.T, g types.Geometry) *harness {
	t.Helper()
	h := &harness{
		dev: device.NewFixture(g),
		out: &bytes.Buffer{},
		log: &bytes.Buffer{},
	}
	h.sess = NewSession(h.dev.Handle(), g, h.dev, sink.New(h.out, 0), oplog.New(h.log))
	return h
}

func (h *harness) run(t *testing.T, ctx context.Context, maxAttempts int) (Stats, error) {
	t.Helper()
	return New(maxAttempts, zaptest.NewLogger(t)).Run(ctx, h.sess)
}

func (h *harness) records() []string {
	return strings.Split(strings.TrimSuffix(h.log.String(), "\n"), "\n")
}

// expectedImage is a perfect image of a fixture medium.
func expectedImage(g types.Geometry) []byte {
	img := make([]byte, g.TotalBytes())
	for c := uint32(0); c < g.Cylinders; c++ {
		for hd := uint32(0); hd < g.Heads; hd++ {
			for s := uint32(1); s <= g.SectorsPerTrack; s++ {
				u := types.SectorUnit{Cylinder: c, Head: hd, Sector: s}
				off := g.SectorOffset(u)
				device.FillSector(img[off:off+types.SectorSize], u)
			}
		}
	}
	return img
}

func sectorAt(img []byte, g types.Geometry, u types.SectorUnit) []byte {
	off := g.SectorOffset(u)
	return img[off : off+types.SectorSize]
}

func TestRunHealthyDevice(t *testing.T) {
	h := newHarness(t, smallDisk)

	stats, err := h.run(t, context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, smallDisk.TotalBytes(), int64(h.out.Len()))
	assert.Equal(t, expectedImage(smallDisk), h.out.Bytes())
	assert.Equal(t, smallDisk.Tracks(), stats.Tracks)
	assert.Zero(t, stats.TrackFallbacks)
	assert.Zero(t, h.dev.SectorReads())
	assert.Equal(t, []string{
		"OK: 0,0,*", "OK: 0,1,*",
		"OK: 1,0,*", "OK: 1,1,*",
		"OK: 2,0,*", "OK: 2,1,*",
	}, h.records())
}

func TestRunKeepsOffsetsAlignedOnHardFailure(t *testing.T) {
	h := newHarness(t, smallDisk)
	bad := types.SectorUnit{Cylinder: 1, Head: 1, Sector: 2}
	h.dev.FailSector(bad, -1)

	stats, err := h.run(t, context.Background(), 0)
	require.NoError(t, err)

	img := h.out.Bytes()
	require.Equal(t, smallDisk.TotalBytes(), int64(len(img)))

	want := expectedImage(smallDisk)
	for s := uint32(1); s <= smallDisk.SectorsPerTrack; s++ {
		u := types.SectorUnit{Cylinder: 1, Head: 1, Sector: s}
		if u == bad {
			// the previous sector's bytes are still in the buffer
			assert.Equal(t, sectorAt(want, smallDisk, types.SectorUnit{Cylinder: 1, Head: 1, Sector: 1}), sectorAt(img, smallDisk, u))
			continue
		}
		assert.Equal(t, sectorAt(want, smallDisk, u), sectorAt(img, smallDisk, u), "sector %s", u)
	}
	next := smallDisk.TrackOffset(types.TrackUnit{Cylinder: 2, Head: 0})
	assert.Equal(t, want[next:], img[next:], "tracks after the failure are unaffected")

	assert.Equal(t, int64(1), stats.HardFailures)
	assert.Equal(t, int64(1), stats.TrackFallbacks)
	assert.Equal(t, types.DefaultMaxAttempts, h.dev.Attempts(bad))
	assert.Equal(t, types.DefaultMaxAttempts-1, h.dev.Resets())
	assert.Equal(t, []string{
		"OK: 0,0,*", "OK: 0,1,*", "OK: 1,0,*",
		"OK: 1,1,1", "ERR: 1,1,2", "OK: 1,1,3", "OK: 1,1,4",
		"OK: 2,0,*", "OK: 2,1,*",
	}, h.records())
}

func TestRunRetryOutcomes(t *testing.T) {
	unit := types.SectorUnit{Cylinder: 0, Head: 1, Sector: 3}
	tests := []struct {
		name        string
		failures    int
		maxAttempts int
		record      string
		attempts    int
		ok          bool
	}{
		{name: "first read succeeds", failures: 0, record: "OK: 0,1,3", attempts: 1, ok: true},
		{name: "one retry", failures: 1, record: "RETRY 1: 0,1,3", attempts: 2, ok: true},
		{name: "succeeds on last attempt", failures: 9, record: "RETRY 9: 0,1,3", attempts: 10, ok: true},
		{name: "all attempts fail", failures: 10, record: "ERR: 0,1,3", attempts: 10},
		{name: "never readable", failures: -1, record: "ERR: 0,1,3", attempts: 10},
		{name: "custom bound", failures: -1, maxAttempts: 3, record: "ERR: 0,1,3", attempts: 3},
		{name: "custom bound recovers", failures: 2, maxAttempts: 3, record: "RETRY 2: 0,1,3", attempts: 3, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, smallDisk)
			h.dev.FailTrack(unit.Track())
			h.dev.FailSector(unit, tt.failures)

			_, err := h.run(t, context.Background(), tt.maxAttempts)
			require.NoError(t, err)

			assert.Contains(t, h.records(), tt.record)
			assert.Equal(t, tt.attempts, h.dev.Attempts(unit))
			assert.Equal(t, tt.attempts-1, h.dev.Resets())
			assert.Equal(t, smallDisk.TotalBytes(), int64(h.out.Len()))
			if tt.ok {
				assert.Equal(t, expectedImage(smallDisk), h.out.Bytes())
			}
		})
	}
}

func TestRunResetsBeforeEveryRetry(t *testing.T) {
	g := types.Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 3}
	h := newHarness(t, g)
	h.dev.FailSector(types.SectorUnit{Sector: 2}, 2)

	_, err := h.run(t, context.Background(), 0)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"track 0,0",
		"sector 0,0,1",
		"sector 0,0,2", "reset", "sector 0,0,2", "reset", "sector 0,0,2",
		"sector 0,0,3",
	}, h.dev.Events())
	assert.Equal(t, []string{"OK: 0,0,1", "RETRY 2: 0,0,2", "OK: 0,0,3"}, h.records())
}

func TestRunRecoversWedgedController(t *testing.T) {
	g := types.Geometry{Cylinders: 1, Heads: 1, SectorsPerTrack: 3}
	h := newHarness(t, g)
	h.dev.SetStrict(true)
	h.dev.FailSector(types.SectorUnit{Sector: 2}, -1)

	_, err := h.run(t, context.Background(), 0)
	require.NoError(t, err)

	// the controller stays wedged after the last failed attempt
	assert.Equal(t, []string{"OK: 0,0,1", "ERR: 0,0,2", "RETRY 1: 0,0,3"}, h.records())
	assert.Equal(t, g.TotalBytes(), int64(h.out.Len()))
}

func TestRunIsDeterministic(t *testing.T) {
	run := func() []byte {
		h := newHarness(t, smallDisk)
		h.dev.FailSector(types.SectorUnit{Cylinder: 0, Head: 1, Sector: 2}, -1)
		h.dev.FailSector(types.SectorUnit{Cylinder: 2, Head: 0, Sector: 4}, 4)
		h.dev.FailTrack(types.TrackUnit{Cylinder: 1, Head: 0})
		_, err := h.run(t, context.Background(), 0)
		require.NoError(t, err)
		return h.out.Bytes()
	}
	assert.Equal(t, run(), run())
}

type failingWriter struct {
	limit int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errors.New("no space left on device")
	}
	w.n += len(p)
	return len(p), nil
}

func TestRunStopsOnWriteFailure(t *testing.T) {
	dev := device.NewFixture(smallDisk)
	var logBuf bytes.Buffer
	out := sink.New(&failingWriter{limit: 2 * smallDisk.TrackBytes()}, 0)
	sess := NewSession(dev.Handle(), smallDisk, dev, out, oplog.New(&logBuf))

	stats, err := New(0, zaptest.NewLogger(t)).Run(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrWrite)

	var werr *types.WriteError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, types.SectorUnit{Cylinder: 1, Head: 0}, werr.Unit)
	assert.Equal(t, int64(2*smallDisk.TrackBytes()), werr.Offset)

	assert.Equal(t, 3, dev.TrackReads(), "no reads after the failed write")
	assert.Equal(t, int64(2), stats.Tracks)
	assert.Equal(t, "OK: 0,0,*\nOK: 0,1,*\n", logBuf.String(), "the failed unit is never logged")
}

func TestRunStopsOnLogFailure(t *testing.T) {
	dev := device.NewFixture(smallDisk)
	var out bytes.Buffer
	log := oplog.New(&failingWriter{limit: len("OK: 0,0,*\n")})
	sess := NewSession(dev.Handle(), smallDisk, dev, sink.New(&out, 0), log)

	_, err := New(0, zaptest.NewLogger(t)).Run(context.Background(), sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrWrite)
	assert.Equal(t, 2*smallDisk.TrackBytes(), out.Len(), "data is written before its record")
}

func TestRunRejectsInvalidGeometry(t *testing.T) {
	h := newHarness(t, types.Geometry{Cylinders: 3, Heads: 0, SectorsPerTrack: 4})

	_, err := h.run(t, context.Background(), 0)
	assert.ErrorIs(t, err, types.ErrGeometry)
	assert.Zero(t, h.out.Len())
	assert.Zero(t, h.dev.TrackReads())
}

// cancelAfter cancels when the observer sees the given unit.
type cancelAfter struct {
	unit   types.SectorUnit
	cancel context.CancelFunc
}

func (c *cancelAfter) Start(int64) {}
func (c *cancelAfter) Retry(types.SectorUnit, int) {}
func (c *cancelAfter) TrackDone(types.TrackUnit) {}
func (c *cancelAfter) Finish() {}

func (c *cancelAfter) Unit(u types.SectorUnit, _ types.Outcome) {
	if u == c.unit {
		c.cancel()
	}
}

func TestRunAbortsBetweenUnits(t *testing.T) {
	tests := []struct {
		name  string
		after types.SectorUnit
		next  types.SectorUnit
		fail  *types.TrackUnit
	}{
		{
			name:  "between tracks",
			after: types.SectorUnit{Cylinder: 1, Head: 0},
			next:  types.SectorUnit{Cylinder: 1, Head: 1},
		},
		{
			name:  "between cylinders",
			after: types.SectorUnit{Cylinder: 0, Head: 1},
			next:  types.SectorUnit{Cylinder: 1, Head: 0},
		},
		{
			name:  "between sectors",
			after: types.SectorUnit{Cylinder: 1, Head: 1, Sector: 2},
			next:  types.SectorUnit{Cylinder: 1, Head: 1, Sector: 3},
			fail:  &types.TrackUnit{Cylinder: 1, Head: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, smallDisk)
			if tt.fail != nil {
				h.dev.FailTrack(*tt.fail)
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			h.sess.Progress = &cancelAfter{unit: tt.after, cancel: cancel}

			_, err := h.run(t, ctx, 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrAborted)

			var aerr *types.AbortError
			require.ErrorAs(t, err, &aerr)
			assert.Equal(t, tt.next, aerr.Next)

			// the image is a valid prefix ending where the next unit starts
			want := expectedImage(smallDisk)
			assert.Equal(t, smallDisk.SectorOffset(unitStart(tt.next)), int64(h.out.Len()))
			assert.Equal(t, want[:h.out.Len()], h.out.Bytes())
			assert.Equal(t, tt.next, smallDisk.UnitAt(int64(h.out.Len())))
		})
	}
}

func TestRunAbortsBeforeFirstUnit(t *testing.T) {
	h := newHarness(t, smallDisk)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.run(t, ctx, 0)
	var aerr *types.AbortError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, types.SectorUnit{}, aerr.Next)
	assert.Zero(t, h.out.Len())
	assert.Zero(t, h.dev.TrackReads())
}

// haltAfter halts the session when the observer sees the given unit.
type haltAfter struct {
	sess *Session
	unit types.SectorUnit
	next types.SectorUnit
}

func (a *haltAfter) Start(int64) {}
func (a *haltAfter) Retry(types.SectorUnit, int) {}
func (a *haltAfter) TrackDone(types.TrackUnit) {}
func (a *haltAfter) Finish() {}

func (a *haltAfter) Unit(u types.SectorUnit, _ types.Outcome) {
	if u == a.unit {
		a.next = a.sess.Halt()
	}
}

func TestHaltRefusesLaterUnits(t *testing.T) {
	tests := []struct {
		name  string
		after types.SectorUnit
		next  types.SectorUnit
		fail  *types.TrackUnit
	}{
		{
			name:  "after a track",
			after: types.SectorUnit{Cylinder: 0, Head: 1},
			next:  types.SectorUnit{Cylinder: 1, Head: 0},
		},
		{
			name:  "after a sector",
			after: types.SectorUnit{Cylinder: 1, Head: 0, Sector: 2},
			next:  types.SectorUnit{Cylinder: 1, Head: 0, Sector: 3},
			fail:  &types.TrackUnit{Cylinder: 1, Head: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, smallDisk)
			if tt.fail != nil {
				h.dev.FailTrack(*tt.fail)
			}
			obs := &haltAfter{sess: h.sess, unit: tt.after}
			h.sess.Progress = obs

			_, err := h.run(t, context.Background(), 0)
			assert.ErrorIs(t, err, types.ErrAborted)
			assert.True(t, h.sess.Halted())
			assert.Equal(t, tt.next, obs.next)

			records := h.records()
			assert.Equal(t, oplog.FormatRecord(tt.after, types.Success()), records[len(records)-1])
			assert.Equal(t, smallDisk.SectorOffset(unitStart(tt.next)), int64(h.out.Len()))
		})
	}
}

func TestHaltFromAnotherGoroutineKeepsLogAndImageInStep(t *testing.T) {
	g := types.Geometry{Cylinders: 200, Heads: 4, SectorsPerTrack: 4}
	h := newHarness(t, g)

	halted := make(chan types.SectorUnit, 1)
	go func() {
		halted <- h.sess.Halt()
	}()
	_, err := h.run(t, context.Background(), 0)
	next := <-halted

	// every byte in the image has a record and nothing past next was written
	units := int64(h.out.Len()) / int64(g.TrackBytes())
	assert.Equal(t, int64(strings.Count(h.log.String(), "\n")), units)
	assert.Equal(t, next, g.UnitAt(int64(h.out.Len())))
	if err != nil {
		assert.ErrorIs(t, err, types.ErrAborted)
	}
}

func TestRunUsesSessionBuffer(t *testing.T) {
	h := newHarness(t, smallDisk)
	h.sess.Buffer = make([]byte, smallDisk.TrackBytes())
	first := &h.sess.Buffer[0]

	_, err := h.run(t, context.Background(), 0)
	require.NoError(t, err)
	assert.Same(t, first, &h.sess.Buffer[0])
	assert.Equal(t, expectedImage(smallDisk), h.out.Bytes())
}

func unitStart(u types.SectorUnit) types.SectorUnit {
	if u.Sector == 0 {
		u.Sector = 1
	}
	return u
}

func TestNewSession(t *testing.T) {
	dev := device.NewBlockDevice(bytes.NewReader(nil), types.DeviceHandle{})
	a := NewSession(dev.Handle(), smallDisk, dev, sink.New(&bytes.Buffer{}, 0), nil)
	b := NewSession(dev.Handle(), smallDisk, dev, sink.New(&bytes.Buffer{}, 0), nil)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, types.DefaultMaxAttempts, New(0, nil).MaxAttempts())
	assert.Equal(t, 4, New(4, nil).MaxAttempts())

	// the block device was told the geometry
	buf := make([]byte, smallDisk.TrackBytes())
	assert.ErrorIs(t, dev.ReadTrack(0, 0, buf), types.ErrRead)
	assert.NotContains(t, dev.ReadTrack(0, 0, buf).Error(), "geometry not set")
}
