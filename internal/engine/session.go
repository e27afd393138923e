package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/deploymenttheory/go-rawimage/internal/interfaces"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Session carries everything one imaging run owns. It replaces process-wide
// state: the engine reads only what is passed in here.
type Session struct {
	ID       string
	Handle   types.DeviceHandle
	Geometry types.Geometry
	Reader   interfaces.SectorReader
	Sink     interfaces.Sink
	Log      interfaces.OperationLog
	Progress interfaces.ProgressObserver

	// Buffer is the track buffer. It is allocated here when nil or short.
	Buffer []byte

	mu     sync.Mutex
	halted bool
}

// NewSession builds a session with a fresh ID. Readers that translate CHS to
// byte offsets are told the geometry.
func NewSession(handle types.DeviceHandle, g types.Geometry, r interfaces.SectorReader, sink interfaces.Sink, log interfaces.OperationLog) *Session {
	if ga, ok := r.(interfaces.GeometryAware); ok {
		ga.SetGeometry(g)
	}
	return &Session{
		ID:       uuid.NewString(),
		Handle:   handle,
		Geometry: g,
		Reader:   r,
		Sink:     sink,
		Log:      log,
	}
}

// Halt stops the session from another goroutine. It waits for a unit that
// is being emitted to be both written and recorded, then refuses every later
// unit. The returned unit is the first one not in the destination.
func (s *Session) Halt() types.SectorUnit {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	return s.Geometry.UnitAt(s.Sink.Offset())
}

// Halted reports whether Halt has been called.
func (s *Session) Halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.halted
}

func (s *Session) trackBuffer() []byte {
	n := s.Geometry.TrackBytes()
	if len(s.Buffer) < n {
		s.Buffer = make([]byte, n)
	}
	return s.Buffer[:n]
}

func (s *Session) progress() interfaces.ProgressObserver {
	if s.Progress == nil {
		return nopProgress{}
	}
	return s.Progress
}

type nopProgress struct{}

func (nopProgress) Start(int64) {}
func (nopProgress) Retry(types.SectorUnit, int) {}
func (nopProgress) Unit(types.SectorUnit, types.Outcome) {}
func (nopProgress) TrackDone(types.TrackUnit) {}
func (nopProgress) Finish() {}
