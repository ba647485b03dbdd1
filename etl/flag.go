package etl

import "sync"

// Flag is a binary latch shared across every worker goroutine in a run. The
// engine uses two of them: stop (raised on a fatal node error or a
// termination signal) and pause (raised to suspend work at batch
// boundaries).
//
// Python's cupyd backs this with a multiprocessing/threading Event whose
// truth value is inverted relative to the flag, and whose Set() method
// toggles the underlying event depending on current state. Go collapses that
// into two plainly-named methods, Raise and Lower, instead of one ambiguous
// toggle (see DESIGN.md, Open Question 5).
type Flag struct {
	mu      sync.Mutex
	raised  bool
	waiters []chan struct{}
}

// NewFlag returns a flag that starts lowered.
func NewFlag() *Flag { return &Flag{} }

// Raised reports whether the flag is currently raised.
func (f *Flag) Raised() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raised
}

// Raise sets the flag. Idempotent: raising an already-raised flag is a no-op.
func (f *Flag) Raise() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.raised = true
}

// Lower clears the flag and wakes any goroutine blocked in WaitLowered.
func (f *Flag) Lower() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.raised {
		return
	}
	f.raised = false
	for _, w := range f.waiters {
		close(w)
	}
	f.waiters = nil
}

// WaitLowered blocks until the flag is lowered. If it is already lowered it
// returns immediately. Used by node workers to implement the pause flag at
// batch boundaries (see nodeworker.go).
func (f *Flag) WaitLowered() {
	f.mu.Lock()
	if !f.raised {
		f.mu.Unlock()
		return
	}
	ch := make(chan struct{})
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()
	<-ch
}
