// Package abort turns operator interrupts into cancellation of the copy and
// guarantees that destination and log are released on every exit path.
package abort

import (
	"errors"
	"fmt"
	"sync"
)

type finalizer struct {
	name string
	fn   func() error
}

// Guard owns the release of a run's resources. Finalizers run once, in
// reverse registration order, whichever path calls Release first.
type Guard struct {
	mu         sync.Mutex
	finalizers []finalizer
	released   bool
	err        error
}

// NewGuard returns an empty guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Register adds a finalizer. Registering after Release runs fn immediately.
func (g *Guard) Register(name string, fn func() error) {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		if err := fn(); err != nil {
			g.mu.Lock()
			g.err = errors.Join(g.err, fmt.Errorf("%s: %w", name, err))
			g.mu.Unlock()
		}
		return
	}
	g.finalizers = append(g.finalizers, finalizer{name: name, fn: fn})
	g.mu.Unlock()
}

// Release runs every finalizer and returns their joined errors. Later calls
// return the same result without running anything.
func (g *Guard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return g.err
	}
	g.released = true

	var errs []error
	for i := len(g.finalizers) - 1; i >= 0; i-- {
		f := g.finalizers[i]
		if err := f.fn(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
		}
	}
	g.finalizers = nil
	g.err = errors.Join(errs...)
	return g.err
}

// Released reports whether Release has run.
func (g *Guard) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}
