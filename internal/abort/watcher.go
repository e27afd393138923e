package abort

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// ExitCode is the process status after a forced abort.
const ExitCode = 130

// Watcher converts interrupts into cancellation. The first signal cancels the
// returned context so the engine stops at the next unit boundary. A second
// signal runs OnForce, releases the guard and exits.
type Watcher struct {
	Logger  *zap.Logger
	Guard   *Guard
	OnForce func()
	Exit    func(code int)
	Signals []os.Signal
}

// NewWatcher returns a watcher for SIGINT and SIGTERM that exits through os.Exit.
func NewWatcher(logger *zap.Logger, guard *Guard) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		Logger:  logger,
		Guard:   guard,
		Exit:    os.Exit,
		Signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
	}
}

// Watch starts listening for the watcher's signals. The stop function must
// be called when the run ends; it unregisters the signals.
func (w *Watcher) Watch(parent context.Context) (context.Context, func()) {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, w.Signals...)
	ctx, stop := w.WatchChannel(parent, ch)
	return ctx, func() {
		signal.Stop(ch)
		stop()
	}
}

// WatchChannel is Watch over an arbitrary signal source.
func (w *Watcher) WatchChannel(parent context.Context, ch <-chan os.Signal) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			w.Logger.Warn("cancellation requested, stopping after the current unit",
				zap.Stringer("signal", sig))
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-ch:
			w.Logger.Error("second interrupt, forcing abort", zap.Stringer("signal", sig))
			w.force()
		case <-done:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(done) })
		cancel()
	}
}

func (w *Watcher) force() {
	if w.OnForce != nil {
		w.OnForce()
	}
	if w.Guard != nil {
		if err := w.Guard.Release(); err != nil {
			w.Logger.Error("releasing resources", zap.Error(err))
		}
	}
	if w.Exit != nil {
		w.Exit(ExitCode)
	}
}
