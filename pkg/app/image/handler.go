package image

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-rawimage/internal/abort"
	"github.com/deploymenttheory/go-rawimage/internal/device"
	"github.com/deploymenttheory/go-rawimage/internal/engine"
	"github.com/deploymenttheory/go-rawimage/internal/geometry"
	"github.com/deploymenttheory/go-rawimage/internal/interfaces"
	"github.com/deploymenttheory/go-rawimage/internal/oplog"
	"github.com/deploymenttheory/go-rawimage/internal/progress"
	"github.com/deploymenttheory/go-rawimage/internal/prompt"
	"github.com/deploymenttheory/go-rawimage/internal/sink"
	"github.com/deploymenttheory/go-rawimage/internal/types"
	"github.com/deploymenttheory/go-rawimage/pkg/app"
)

// Handle processes an imaging request. Nothing is created on disk until the
// geometry has been reconciled, validated and confirmed.
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	// 1. Validate request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	guard := abort.NewGuard()
	defer guard.Release()

	// 2. Open the source device
	dev, err := openDevice(req.Drive, req.DevicePath, req.DevicePattern, req.Emulate, req.Fixture, req.Open)
	if err != nil {
		return nil, err
	}
	guard.Register("device", dev.Close)
	ctx.Log("device opened", zap.Stringer("device", dev.Handle()))

	// 3. Reconcile, override and validate geometry
	probe, g, err := resolveGeometry(ctx, dev, req.Overrides)
	if err != nil {
		return nil, err
	}

	// The track buffer is the only large allocation; it must succeed before
	// anything on disk is touched.
	buf := make([]byte, g.TrackBytes())

	resp := &Response{
		Destination:      req.Destination,
		LogFile:          req.LogFile,
		Device:           dev.Handle(),
		Probe:            probe,
		Geometry:         g,
		OverridesApplied: req.Overrides.Any(),
		StartedAt:        startTime,
	}

	// 4. Confirm with the operator
	if !req.AssumeYes {
		msg := fmt.Sprintf("Imaging drive %d (%s) CHS %s, %d bytes, to %s.\nPress Enter to continue, any other key to cancel: ",
			dev.Handle().Ordinal, dev.Handle(), g, g.TotalBytes(), req.Destination)
		if err := prompt.Confirm(ctx.In, ctx.ErrOut, msg); err != nil {
			return nil, app.NewError(app.ErrCodeDeclined, "imaging cancelled", err)
		}
	}

	// 5. Create destination and open the log
	out, err := sink.Create(req.Destination, req.SinkBuffer)
	if err != nil {
		return nil, app.NewError(app.ErrCodeWriteFailed, "cannot create destination", err)
	}
	guard.Register("destination", out.Close)

	log, err := oplog.Open(req.LogFile, req.SyncLog)
	if err != nil {
		return nil, app.NewError(app.ErrCodeWriteFailed, "cannot open operation log", err)
	}
	guard.Register("operation log", log.Close)

	sess := engine.NewSession(dev.Handle(), g, dev, out, log)
	sess.Buffer = buf
	sess.Progress = observers(ctx, req.Progress)
	resp.SessionID = sess.ID

	// 6. Arm the abort handler
	watcher := abort.NewWatcher(ctx.Logger, guard)
	watcher.OnForce = func() {
		next := sess.Halt()
		_ = log.Aborted(next)
		_ = log.Finish(req.Destination, time.Now(), types.ErrAborted)
	}
	runCtx, stop := watcher.Watch(ctx.Context)
	defer stop()

	if err := log.Begin(req.Destination, dev.Handle(), g, sess.ID, time.Now()); err != nil {
		return nil, app.NewError(app.ErrCodeWriteFailed, "cannot write operation log", err)
	}

	// 7. Copy
	eng := engine.New(req.MaxAttempts, ctx.Logger)
	stats, runErr := eng.Run(runCtx, sess)
	resp.Stats = stats
	if rs, ok := dev.(readStatser); ok {
		ds := rs.Stats()
		resp.DeviceStats = &ds
	}

	// A forced abort has already closed the log.
	forced := sess.Halted()
	var abortErr *types.AbortError
	aborted := errors.As(runErr, &abortErr)
	if aborted {
		resp.AbortedAt = abortErr.Next.String()
		if !forced {
			if err := log.Aborted(abortErr.Next); err != nil {
				ctx.Error("cannot record abort", zap.Error(err))
			}
		}
	}
	if !forced {
		if err := log.Finish(req.Destination, time.Now(), runErr); err != nil {
			ctx.Error("cannot write log trailer", zap.Error(err))
		}
	}

	stop()
	releaseErr := guard.Release()
	resp.Duration = time.Since(startTime)

	switch {
	case aborted:
		resp.Status = StatusAborted
		resp.Failure = runErr.Error()
		return resp, app.NewError(app.ErrCodeUserAbort, "imaging aborted", runErr)
	case runErr != nil:
		resp.Status = StatusFailed
		resp.Failure = runErr.Error()
		return resp, app.NewError(app.ErrCodeWriteFailed, "imaging failed", runErr)
	case releaseErr != nil:
		resp.Status = StatusFailed
		resp.Failure = releaseErr.Error()
		return resp, app.NewError(app.ErrCodeWriteFailed, "cannot close destination", releaseErr)
	}

	resp.Status = StatusFinished
	ctx.Log("imaging completed",
		zap.String("session", resp.SessionID),
		zap.Int64("bytes", stats.BytesWritten),
		zap.Int64("hard_failures", stats.HardFailures),
		zap.Duration("elapsed", resp.Duration))
	return resp, nil
}

// Probe reports the reconciled geometry of a device without creating any file.
func Probe(ctx *app.Context, req *ProbeRequest) (*ProbeResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	dev, err := openDevice(req.Drive, req.DevicePath, req.DevicePattern, req.Emulate, req.Fixture, req.Open)
	if err != nil {
		return nil, err
	}
	defer dev.Close()

	res, err := geometry.Reconcile(dev, dev)
	if err != nil {
		return nil, app.NewError(app.ErrCodeGeometry, "cannot determine drive geometry", err)
	}
	warnDisagreement(ctx, res)

	g := req.Overrides.Apply(res.Geometry)
	return &ProbeResponse{
		Device:           dev.Handle(),
		Probe:            res,
		Geometry:         g,
		OverridesApplied: req.Overrides.Any(),
		TotalBytes:       g.TotalBytes(),
		Valid:            geometry.Validate(g) == nil,
	}, nil
}

type readStatser interface {
	Stats() device.ReadStats
}

// observers builds the engine progress fan-out: the terminal display unless
// quiet, and the context callback when one is set.
func observers(ctx *app.Context, mode string) interfaces.ProgressObserver {
	var m progress.Multi
	if !ctx.Quiet {
		m = append(m, progress.ForMode(mode, ctx.ErrOut))
	}
	if ctx.ProgressCallback != nil {
		m = append(m, progress.NewCallback(ctx.Progress))
	}
	return m
}

func openDevice(drive int, path, pattern string, emulate bool, spec device.FixtureSpec, open Opener) (interfaces.Device, error) {
	handle, err := device.Resolve(drive, path, pattern)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "invalid drive selection", err)
	}

	switch {
	case open != nil:
		dev, err := open(handle)
		if err != nil {
			return nil, app.NewError(app.ErrCodeDeviceAccess, "cannot open device", err)
		}
		return dev, nil
	case emulate:
		f := device.NewFixtureFromSpec(spec)
		f.SetHandle(types.DeviceHandle{Ordinal: drive, Path: "emulated"})
		return f, nil
	default:
		dev, err := device.Open(handle)
		if err != nil {
			return nil, app.NewError(app.ErrCodeDeviceAccess, "cannot open device", err)
		}
		return dev, nil
	}
}

func resolveGeometry(ctx *app.Context, dev interfaces.Device, o geometry.Overrides) (*geometry.Result, types.Geometry, error) {
	res, err := geometry.Reconcile(dev, dev)
	if err != nil {
		return nil, types.Geometry{}, app.NewError(app.ErrCodeGeometry, "cannot determine drive geometry", err)
	}
	warnDisagreement(ctx, res)

	g := o.Apply(res.Geometry)
	if o.Any() {
		ctx.Log("geometry overridden", zap.Stringer("reconciled", res.Geometry), zap.Stringer("effective", g))
	}
	if err := geometry.Validate(g); err != nil {
		return res, g, app.NewError(app.ErrCodeGeometry, "invalid drive geometry", err)
	}
	return res, g, nil
}

func warnDisagreement(ctx *app.Context, res *geometry.Result) {
	for _, w := range res.Warnings {
		ctx.Warn("geometry sources disagree", zap.String("detail", w))
	}
	if res.Disagreement {
		ctx.Warn("using parameter table CHS, override with --cylinders/--heads/--sectors if wrong",
			zap.Stringer("geometry", res.Geometry))
	}
}
