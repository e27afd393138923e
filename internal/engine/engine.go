// Package engine drives the two-tier copy: a bulk read per track and, when
// that fails, a sector-by-sector read with bounded retries. Every attempted
// unit is written to the sink so destination offsets stay aligned with
// physical addresses.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawimage/internal/geometry"
	"github.com/deploymenttheory/go-rawimage/internal/types"
)

// unitState is the per-track state machine position.
type unitState int

const (
	stateAttemptBulk unitState = iota
	stateAttemptSector
	stateRecorded
)

// Stats summarizes a copy.
type Stats struct {
	Tracks         int64 `json:"tracks" yaml:"tracks"`
	TrackFallbacks int64 `json:"track_fallbacks" yaml:"track_fallbacks"`
	Sectors        int64 `json:"sectors" yaml:"sectors"`
	Retried        int64 `json:"retried" yaml:"retried"`
	Retries        int64 `json:"retries" yaml:"retries"`
	HardFailures   int64 `json:"hard_failures" yaml:"hard_failures"`
	BytesWritten   int64 `json:"bytes_written" yaml:"bytes_written"`
}

// Engine copies every track of a session's geometry.
type Engine struct {
	maxAttempts int
	logger      *zap.Logger
}

// New returns an engine allowing maxAttempts reads per sector. Values below
// one fall back to types.DefaultMaxAttempts.
func New(maxAttempts int, logger *zap.Logger) *Engine {
	if maxAttempts < 1 {
		maxAttempts = types.DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{maxAttempts: maxAttempts, logger: logger}
}

// MaxAttempts returns the per-sector attempt bound.
func (e *Engine) MaxAttempts() int {
	return e.maxAttempts
}

// Run copies cylinder-major, head-minor. It returns a WriteError as soon as
// the sink rejects a write, a log error if the audit trail cannot be
// appended, and an AbortError when ctx is cancelled between units.
func (e *Engine) Run(ctx context.Context, s *Session) (Stats, error) {
	var stats Stats
	g := s.Geometry
	if err := geometry.Validate(g); err != nil {
		return stats, err
	}

	buf := s.trackBuffer()
	s.progress().Start(g.Tracks())
	defer s.progress().Finish()

	for c := uint32(0); c < g.Cylinders; c++ {
		for h := uint32(0); h < g.Heads; h++ {
			track := types.TrackUnit{Cylinder: c, Head: h}
			if err := ctx.Err(); err != nil {
				return stats, &types.AbortError{Next: types.SectorUnit{Cylinder: c, Head: h}}
			}
			if err := e.copyTrack(ctx, s, track, buf, &stats); err != nil {
				return stats, err
			}
			stats.Tracks++
			s.progress().TrackDone(track)
		}
	}
	return stats, nil
}

// copyTrack runs one track through AttemptBulk, AttemptSector and Recorded.
func (e *Engine) copyTrack(ctx context.Context, s *Session, t types.TrackUnit, buf []byte, stats *Stats) error {
	state := stateAttemptBulk
	for state != stateRecorded {
		switch state {
		case stateAttemptBulk:
			err := s.Reader.ReadTrack(t.Head, t.Cylinder, buf)
			if err != nil {
				e.logger.Debug("bulk read failed, falling back to sectors",
					zap.Stringer("track", t), zap.Error(err))
				stats.TrackFallbacks++
				state = stateAttemptSector
				continue
			}
			unit := types.SectorUnit{Cylinder: t.Cylinder, Head: t.Head}
			if err := e.emit(s, unit, buf, types.Success(), stats); err != nil {
				return err
			}
			state = stateRecorded

		case stateAttemptSector:
			sector := buf[:types.SectorSize]
			for i := uint32(1); i <= s.Geometry.SectorsPerTrack; i++ {
				unit := types.SectorUnit{Cylinder: t.Cylinder, Head: t.Head, Sector: i}
				if err := ctx.Err(); err != nil {
					return &types.AbortError{Next: unit}
				}
				outcome := e.readSector(s, unit, sector)
				if err := e.emit(s, unit, sector, outcome, stats); err != nil {
					return err
				}
			}
			state = stateRecorded
		}
	}
	return nil
}

// readSector makes up to maxAttempts reads, resetting the controller before
// every read after the first.
func (e *Engine) readSector(s *Session, unit types.SectorUnit, buf []byte) types.Outcome {
	err := s.Reader.ReadSector(unit.Head, unit.Cylinder, unit.Sector, buf)
	if err == nil {
		return types.Success()
	}

	for attempt := 2; attempt <= e.maxAttempts; attempt++ {
		s.progress().Retry(unit, attempt)
		if rerr := s.Reader.ResetController(); rerr != nil {
			e.logger.Debug("controller reset failed", zap.Stringer("unit", unit), zap.Error(rerr))
		}
		err = s.Reader.ReadSector(unit.Head, unit.Cylinder, unit.Sector, buf)
		if err == nil {
			return types.SuccessAfterRetry(attempt - 1)
		}
		e.logger.Debug("sector retry failed",
			zap.Stringer("unit", unit), zap.Int("attempt", attempt), zap.Error(err))
	}

	e.logger.Warn("sector unreadable, writing stale buffer to keep alignment",
		zap.Stringer("unit", unit), zap.Int("attempts", e.maxAttempts), zap.Error(err))
	return types.HardFailure(e.maxAttempts - 1)
}

// emit writes the unit, then records it. The write comes first so a logged
// unit is always present in the destination. Both happen under the session
// lock so a concurrent Halt never sees one without the other.
func (e *Engine) emit(s *Session, unit types.SectorUnit, p []byte, outcome types.Outcome, stats *Stats) error {
	s.mu.Lock()
	if s.halted {
		s.mu.Unlock()
		return &types.AbortError{Next: unit}
	}
	err := e.commit(s, unit, p, outcome, stats)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.progress().Unit(unit, outcome)
	return nil
}

func (e *Engine) commit(s *Session, unit types.SectorUnit, p []byte, outcome types.Outcome, stats *Stats) error {
	if err := s.Sink.WriteUnit(unit, p); err != nil {
		e.logger.Error("destination write failed", zap.Stringer("unit", unit), zap.Error(err))
		var werr *types.WriteError
		if !errors.As(err, &werr) {
			err = &types.WriteError{Unit: unit, Offset: s.Sink.Offset(), Cause: err}
		}
		return err
	}
	stats.BytesWritten += int64(len(p))

	if unit.Sector != 0 {
		stats.Sectors++
		switch outcome.Kind {
		case types.OutcomeSuccessAfterRetry:
			stats.Retried++
		case types.OutcomeHardFailure:
			stats.HardFailures++
		}
		stats.Retries += int64(outcome.Retries)
	}

	if s.Log != nil {
		if err := s.Log.Record(unit, outcome); err != nil {
			return fmt.Errorf("%w: operation log at CHS %s: %w", types.ErrWrite, unit, err)
		}
	}
	return nil
}
