package image

import (
	"time"

	"github.com/deploymenttheory/go-rawimage/internal/device"
	"github.com/deploymenttheory/go-rawimage/internal/engine"
	"github.com/deploymenttheory/go-rawimage/internal/geometry"
	"github.com/deploymenttheory/go-rawimage/internal/interfaces"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Run status values
const (
	StatusFinished = "finished"
	StatusFailed   = "failed"
	StatusAborted  = "aborted"
)

// Opener opens the device named by a resolved handle.
type Opener func(handle types.DeviceHandle) (interfaces.Device, error)

// Request represents one imaging run
type Request struct {
	// Destination image path
	Destination string

	// Device selection
	Drive         int
	DevicePath    string
	DevicePattern string

	// Operator geometry overrides, applied per field after reconciliation
	Overrides geometry.Overrides

	// Operation log
	LogFile string
	SyncLog bool

	// Copy tuning
	SinkBuffer  int
	MaxAttempts int
	Progress    string

	// AssumeYes skips the confirmation prompt
	AssumeYes bool

	// Emulate images a fixture device built from Fixture
	Emulate bool
	Fixture device.FixtureSpec

	// Open replaces device opening; nil uses the platform device or fixture
	Open Opener
}

// ProbeRequest selects a device whose geometry is reported without copying
type ProbeRequest struct {
	Drive         int
	DevicePath    string
	DevicePattern string
	Overrides     geometry.Overrides
	Emulate       bool
	Fixture       device.FixtureSpec
	Open          Opener
}

// ProbeResponse is the reconciled geometry of a device
type ProbeResponse struct {
	Device           types.DeviceHandle `json:"device" yaml:"device"`
	Probe            *geometry.Result   `json:"probe" yaml:"probe"`
	Geometry         types.Geometry     `json:"geometry" yaml:"geometry"`
	OverridesApplied bool               `json:"overrides_applied" yaml:"overrides_applied"`
	TotalBytes       int64              `json:"total_bytes" yaml:"total_bytes"`
	Valid            bool               `json:"valid" yaml:"valid"`
}

// Response represents the result of an imaging run
type Response struct {
	SessionID        string             `json:"session_id" yaml:"session_id"`
	Destination      string             `json:"destination" yaml:"destination"`
	LogFile          string             `json:"log_file" yaml:"log_file"`
	Device           types.DeviceHandle `json:"device" yaml:"device"`
	Probe            *geometry.Result   `json:"probe" yaml:"probe"`
	Geometry         types.Geometry     `json:"geometry" yaml:"geometry"`
	OverridesApplied bool               `json:"overrides_applied" yaml:"overrides_applied"`
	Stats            engine.Stats       `json:"stats" yaml:"stats"`
	DeviceStats      *device.ReadStats  `json:"device_stats,omitempty" yaml:"device_stats,omitempty"`
	Status           string             `json:"status" yaml:"status"`
	AbortedAt        string             `json:"aborted_at,omitempty" yaml:"aborted_at,omitempty"`
	Failure          string             `json:"failure,omitempty" yaml:"failure,omitempty"`
	StartedAt        time.Time          `json:"started_at" yaml:"started_at"`
	Duration         time.Duration      `json:"duration" yaml:"duration"`
}

// Complete reports whether every byte of the device geometry was written
func (r *Response) Complete() bool {
	return r.Status == StatusFinished && r.Stats.BytesWritten == r.Geometry.TotalBytes()
}
