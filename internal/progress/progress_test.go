package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deploymenttheory/go-rawimage/internal/types"
)

func TestMarkersTrace(t *testing.T) {
	var buf bytes.Buffer
	m := NewMarkers(&buf)

	m.Start(2)
	m.Unit(types.SectorUnit{Cylinder: 0, Head: 0}, types.Success())
	m.TrackDone(types.TrackUnit{Cylinder: 0, Head: 0})

	m.Unit(types.SectorUnit{Cylinder: 0, Head: 1, Sector: 1}, types.Success())
	m.Retry(types.SectorUnit{Cylinder: 0, Head: 1, Sector: 2}, 2)
	m.Retry(types.SectorUnit{Cylinder: 0, Head: 1, Sector: 2}, 3)
	m.Unit(types.SectorUnit{Cylinder: 0, Head: 1, Sector: 2}, types.SuccessAfterRetry(2))
	m.Unit(types.SectorUnit{Cylinder: 0, Head: 1, Sector: 3}, types.HardFailure(9))
	m.TrackDone(types.TrackUnit{Cylinder: 0, Head: 1})
	m.Finish()

	assert.Equal(t, "CH 0,0 OK\n.**.Error reading CHS 0,1,3 \n", buf.String())
}

func TestBarCountsTracks(t *testing.T) {
	var buf bytes.Buffer
	b := NewBar(&buf)

	b.Start(3)
	for h := uint32(0); h < 3; h++ {
		b.TrackDone(types.TrackUnit{Head: h})
	}
	b.Retry(types.SectorUnit{Sector: 1}, 2)
	b.Unit(types.SectorUnit{Sector: 1}, types.HardFailure(9))
	b.Finish()

	assert.Equal(t, 1, b.retries)
	assert.Equal(t, 1, b.failures)
	assert.Contains(t, buf.String(), "3/3")
}

func TestBarWithoutStart(t *testing.T) {
	b := NewBar(&bytes.Buffer{})
	assert.NotPanics(t, func() {
		b.Retry(types.SectorUnit{}, 2)
		b.TrackDone(types.TrackUnit{})
		b.Finish()
	})
}

func TestForMode(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, &Bar{}, ForMode("bar", &buf))
	assert.IsType(t, &Markers{}, ForMode("markers", &buf))
	assert.IsType(t, None{}, ForMode("none", &buf))
	assert.IsType(t, &Bar{}, ForMode("", &buf))
}

func TestCallbackReportsWholePercents(t *testing.T) {
	var got []int
	var last string
	c := NewCallback(func(msg string, pct int) {
		got = append(got, pct)
		last = msg
	})

	c.Start(8)
	for i := uint32(0); i < 8; i++ {
		if i == 3 {
			c.Unit(types.SectorUnit{Head: i, Sector: 1}, types.HardFailure(9))
		}
		c.TrackDone(types.TrackUnit{Head: i})
	}
	c.Finish()

	assert.Equal(t, []int{0, 12, 25, 37, 50, 62, 75, 87, 100}, got)
	assert.Equal(t, "imaged 8 of 8 tracks, 1 unreadable sectors", last)
}

func TestCallbackSkipsRepeatedPercent(t *testing.T) {
	calls := 0
	c := NewCallback(func(string, int) { calls++ })
	c.Start(1000)
	for i := 0; i < 5; i++ {
		c.TrackDone(types.TrackUnit{})
	}
	assert.Equal(t, 1, calls, "only the initial 0% fits in five of a thousand tracks")
}

func TestMultiFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := Multi{NewMarkers(&a), NewMarkers(&b)}
	m.Start(1)
	m.Unit(types.SectorUnit{}, types.Success())
	m.TrackDone(types.TrackUnit{})
	m.Finish()

	assert.Equal(t, "CH 0,0 OK\n", a.String())
	assert.Equal(t, a.String(), b.String())
}
