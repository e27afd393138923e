package image

import (
	"path/filepath"

	"github.com/deploymenttheory/go-rawimage/pkg/app"
)

var progressModes = map[string]bool{"": true, "bar": true, "markers": true, "none": true}

// Validate validates an imaging request
func (r *Request) Validate() error {
	// Destination is required
	if r.Destination == "" {
		return app.NewError(app.ErrCodeInvalidInput, "destination file is required", nil)
	}

	if r.Drive < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "drive ordinal must not be negative", nil)
	}

	if r.LogFile == "" {
		return app.NewError(app.ErrCodeInvalidInput, "log file is required", nil)
	}

	// Destination must not clobber the log or the source
	if samePath(r.Destination, r.LogFile) {
		return app.NewError(app.ErrCodeInvalidInput, "destination and log file must differ", nil)
	}
	if r.DevicePath != "" && samePath(r.Destination, r.DevicePath) {
		return app.NewError(app.ErrCodeInvalidInput, "destination must not be the source device", nil)
	}

	if r.MaxAttempts < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "max attempts must not be negative", nil)
	}
	if r.SinkBuffer < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "sink buffer must not be negative", nil)
	}
	if !progressModes[r.Progress] {
		return app.NewError(app.ErrCodeInvalidInput, "progress must be bar, markers or none", nil)
	}

	return nil
}

// Validate validates a probe request
func (r *ProbeRequest) Validate() error {
	if r.Drive < 0 {
		return app.NewError(app.ErrCodeInvalidInput, "drive ordinal must not be negative", nil)
	}
	return nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
