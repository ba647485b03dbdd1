package etl

import "sync"

// Counter is a mutex-protected integer. The engine creates one per terminal
// Loader and, after each batch that loads without error, increases it by
// the number of items in that batch; the Progress observer
// (observe/progress.go) reads counters on a timer.
type Counter struct {
	mu    sync.Mutex
	value int64
	name  string
}

// NewCounter returns a zeroed counter labeled name (the owning Loader's
// node name), used by observers to identify it in log lines and metrics.
func NewCounter(name string) *Counter {
	return &Counter{name: name}
}

// Name returns the label the counter was created with.
func (c *Counter) Name() string { return c.name }

// Add increments the counter by delta (the item count of one loaded batch).
func (c *Counter) Add(delta int64) {
	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}

// Value returns the counter's current total.
func (c *Counter) Value() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}
