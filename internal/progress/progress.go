// Package progress renders engine progress for an operator. Observers are
// informational only; nothing here affects what is copied.
package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/deploymenttheory/go-rawimage/internal/interfaces"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Bar shows a track-count progress bar with running retry and error counts.
type Bar struct {
	w        io.Writer
	bar      *progressbar.ProgressBar
	retries  int
	failures int
}

// NewBar returns a bar observer writing to w.
func NewBar(w io.Writer) *Bar {
	return &Bar{w: w}
}

// Start creates the bar for the given number of tracks.
func (b *Bar) Start(tracks int64) {
	b.bar = progressbar.NewOptions64(tracks,
		progressbar.OptionSetDescription("imaging"),
		progressbar.OptionSetWriter(b.w),
		progressbar.OptionSetItsString("tracks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(b.w)
		}),
	)
}

// Retry counts a retry attempt.
func (b *Bar) Retry(types.SectorUnit, int) {
	b.retries++
	b.describe()
}

// Unit counts hard failures.
func (b *Bar) Unit(_ types.SectorUnit, outcome types.Outcome) {
	if outcome.Kind == types.OutcomeHardFailure {
		b.failures++
		b.describe()
	}
}

// TrackDone advances the bar.
func (b *Bar) TrackDone(types.TrackUnit) {
	if b.bar != nil {
		_ = b.bar.Add(1)
	}
}

// Finish completes the bar.
func (b *Bar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}

func (b *Bar) describe() {
	if b.bar == nil {
		return
	}
	b.bar.Describe(fmt.Sprintf("imaging (retries %d, errors %d)", b.retries, b.failures))
}

// Markers prints the classic line-oriented trace: one line per good track,
// a dot per sector read on the fallback path and a star per retry.
type Markers struct {
	w    io.Writer
	dots bool
}

// NewMarkers returns a marker observer writing to w.
func NewMarkers(w io.Writer) *Markers {
	return &Markers{w: w}
}

// Start prints nothing.
func (m *Markers) Start(int64) {}

// Retry prints one star per failed read.
func (m *Markers) Retry(types.SectorUnit, int) {
	fmt.Fprint(m.w, "*")
}

// Unit prints the per-unit marker.
func (m *Markers) Unit(unit types.SectorUnit, outcome types.Outcome) {
	switch {
	case unit.Sector == 0:
		fmt.Fprintf(m.w, "CH %s OK\n", unit.Track())
	case outcome.Kind == types.OutcomeHardFailure:
		fmt.Fprintf(m.w, "Error reading CHS %s ", unit)
	default:
		fmt.Fprint(m.w, ".")
	}
	if unit.Sector != 0 {
		m.dots = true
	}
}

// TrackDone ends a fallback track's dot line.
func (m *Markers) TrackDone(types.TrackUnit) {
	if m.dots {
		fmt.Fprintln(m.w)
		m.dots = false
	}
}

// Finish prints nothing.
func (m *Markers) Finish() {}

// None discards all events.
type None struct{}

func (None) Start(int64) {}
func (None) Retry(types.SectorUnit, int) {}
func (None) Unit(types.SectorUnit, types.Outcome) {}
func (None) TrackDone(types.TrackUnit) {}
func (None) Finish() {}

// Callback reports overall completion through fn, once per whole percent.
type Callback struct {
	fn     func(message string, percent int)
	total  int64
	done   int64
	last   int
	failed int
}

// NewCallback returns a callback observer.
func NewCallback(fn func(message string, percent int)) *Callback {
	return &Callback{fn: fn, last: -1}
}

// Start records the track count and reports 0%.
func (c *Callback) Start(tracks int64) {
	c.total = tracks
	c.report()
}

// Retry is ignored.
func (c *Callback) Retry(types.SectorUnit, int) {}

// Unit counts hard failures for the message.
func (c *Callback) Unit(_ types.SectorUnit, outcome types.Outcome) {
	if outcome.Kind == types.OutcomeHardFailure {
		c.failed++
	}
}

// TrackDone advances the percentage.
func (c *Callback) TrackDone(types.TrackUnit) {
	c.done++
	c.report()
}

// Finish is a no-op; the last track already reported.
func (c *Callback) Finish() {}

func (c *Callback) report() {
	if c.total <= 0 {
		return
	}
	pct := int(c.done * 100 / c.total)
	if pct == c.last {
		return
	}
	c.last = pct
	c.fn(fmt.Sprintf("imaged %d of %d tracks, %d unreadable sectors", c.done, c.total, c.failed), pct)
}

// Multi fans every event out to each observer in order.
type Multi []interfaces.ProgressObserver

func (m Multi) Start(tracks int64) {
	for _, o := range m {
		o.Start(tracks)
	}
}

func (m Multi) Retry(unit types.SectorUnit, attempt int) {
	for _, o := range m {
		o.Retry(unit, attempt)
	}
}

func (m Multi) Unit(unit types.SectorUnit, outcome types.Outcome) {
	for _, o := range m {
		o.Unit(unit, outcome)
	}
}

func (m Multi) TrackDone(track types.TrackUnit) {
	for _, o := range m {
		o.TrackDone(track)
	}
}

func (m Multi) Finish() {
	for _, o := range m {
		o.Finish()
	}
}

// ForMode returns the observer for a configured mode name.
func ForMode(mode string, w io.Writer) interfaces.ProgressObserver {
	switch mode {
	case "markers":
		return NewMarkers(w)
	case "none":
		return None{}
	default:
		return NewBar(w)
	}
}
