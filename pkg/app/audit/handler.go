package audit

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawimage/internal/oplog"
	"github.com/deploymenttheory/go-rawimage/internal/types"
	"github.com/deploymenttheory/go-rawimage/pkg/app"
)

// Handle parses an operation log and summarizes every selected session
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	f, err := os.Open(req.LogFile)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "cannot open log file", err)
	}
	defer f.Close()

	sessions, err := oplog.Parse(f)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "cannot parse log file", err)
	}
	ctx.Log("log parsed", zap.String("file", req.LogFile), zap.Int("sessions", len(sessions)))

	sessions, err = selectSessions(sessions, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{LogFile: req.LogFile, Sessions: make([]SessionSummary, 0, len(sessions))}
	for _, s := range sessions {
		resp.Sessions = append(resp.Sessions, summarize(s, req.IncludeRetried))
	}
	return resp, nil
}

func selectSessions(sessions []*oplog.Session, req *Request) ([]*oplog.Session, error) {
	switch {
	case req.Latest:
		if len(sessions) == 0 {
			return nil, nil
		}
		return sessions[len(sessions)-1:], nil
	case req.Session != "":
		var out []*oplog.Session
		for _, s := range sessions {
			if strings.HasPrefix(s.ID, req.Session) {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, app.NewError(app.ErrCodeInvalidInput, fmt.Sprintf("no session matching %q", req.Session), nil)
		}
		return out, nil
	default:
		return sessions, nil
	}
}

func summarize(s *oplog.Session, includeRetried bool) SessionSummary {
	sum := SessionSummary{
		ID:          s.ID,
		Destination: s.Destination,
		Drive:       s.Drive,
		Device:      s.Device,
		Geometry:    s.Geometry,
		Started:     s.Started,
		Ended:       s.Ended,
		Status:      s.Status,
		Failure:     s.Failure,
	}

	for _, rec := range s.Records {
		if rec.Aborted {
			sum.AbortedAt = rec.Unit.String()
			continue
		}
		if rec.Unit.Sector == 0 {
			sum.Tracks++
			sum.BytesCovered += int64(s.Geometry.TrackBytes())
			continue
		}
		sum.Sectors++
		sum.BytesCovered += types.SectorSize

		switch rec.Outcome.Kind {
		case types.OutcomeHardFailure:
			sum.HardFailures++
		case types.OutcomeSuccessAfterRetry:
			sum.Retried++
			if !includeRetried {
				continue
			}
		default:
			continue
		}
		sum.Units = append(sum.Units, UnitReport{
			Unit:    rec.Unit.String(),
			Outcome: rec.Outcome.Kind.String(),
			Retries: rec.Outcome.Retries,
			Offset:  unitOffset(s.Geometry, rec.Unit),
			Line:    rec.Line,
		})
	}
	return sum
}

func unitOffset(g types.Geometry, u types.SectorUnit) int64 {
	if !g.Valid() {
		return -1
	}
	return g.SectorOffset(u)
}
