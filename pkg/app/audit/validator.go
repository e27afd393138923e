package audit

import (
	"github.com/deploymenttheory/go-rawimage/pkg/app"
)

// Validate validates an audit request
func (r *Request) Validate() error {
	if r.LogFile == "" {
		return app.NewError(app.ErrCodeInvalidInput, "log file is required", nil)
	}
	if r.Latest && r.Session != "" {
		return app.NewError(app.ErrCodeInvalidInput, "cannot specify both latest and session", nil)
	}
	return nil
}
