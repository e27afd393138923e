package audit

import (
	"time"

	"github.com/deploymenttheory/go-rawimage/internal/oplog"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// Request represents an audit of one operation log
type Request struct {
	LogFile string

	// Session restricts the report to sessions whose ID starts with this prefix
	Session string

	// Latest reports only the last session in the log
	Latest bool

	// IncludeRetried lists units that were recovered after retries
	IncludeRetried bool
}

// Response represents the audit results
type Response struct {
	LogFile  string           `json:"log_file" yaml:"log_file"`
	Sessions []SessionSummary `json:"sessions" yaml:"sessions"`
}

// SessionSummary describes one imaging run found in the log
type SessionSummary struct {
	ID           string         `json:"id" yaml:"id"`
	Destination  string         `json:"destination" yaml:"destination"`
	Drive        int            `json:"drive" yaml:"drive"`
	Device       string         `json:"device" yaml:"device"`
	Geometry     types.Geometry `json:"geometry" yaml:"geometry"`
	Started      time.Time      `json:"started" yaml:"started"`
	Ended        time.Time      `json:"ended,omitempty" yaml:"ended,omitempty"`
	Status       string         `json:"status" yaml:"status"`
	Failure      string         `json:"failure,omitempty" yaml:"failure,omitempty"`
	Tracks       int            `json:"tracks" yaml:"tracks"`
	Sectors      int            `json:"sectors" yaml:"sectors"`
	Retried      int            `json:"retried" yaml:"retried"`
	HardFailures int            `json:"hard_failures" yaml:"hard_failures"`
	BytesCovered int64          `json:"bytes_covered" yaml:"bytes_covered"`
	AbortedAt    string         `json:"aborted_at,omitempty" yaml:"aborted_at,omitempty"`
	Units        []UnitReport   `json:"units,omitempty" yaml:"units,omitempty"`
}

// UnitReport is one unit that was not read cleanly
type UnitReport struct {
	Unit    string `json:"unit" yaml:"unit"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Retries int    `json:"retries,omitempty" yaml:"retries,omitempty"`
	// Offset is the unit's position in the image, -1 when the geometry is unknown
	Offset int64 `json:"offset" yaml:"offset"`
	Line   int   `json:"line" yaml:"line"`
}

// Clean reports whether the session finished with every unit recovered
func (s *SessionSummary) Clean() bool {
	return s.HardFailures == 0 && s.Status == oplog.StatusFinished
}
