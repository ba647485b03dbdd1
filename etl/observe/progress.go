package observe

import (
	"context"
	"sort"
	"time"
)

// CounterSnapshot is a read-only view a Progress observer polls; etl.Counter
// satisfies it.
type CounterSnapshot interface {
	Name() string
	Value() int64
}

// ProgressDefaultInterval is cupyd's progress_thread.py refresh interval.
const ProgressDefaultInterval = 2500 * time.Millisecond

// Progress periodically logs the totals of every terminal Loader's counter,
// but only when at least one total changed since the previous tick —
// grounded on cupyd's core/stats/progress_thread.py.
type Progress struct {
	log      *Logger
	counters []CounterSnapshot
	interval time.Duration
	start    time.Time

	last map[string]int64
}

// NewProgress builds a Progress observer over counters, logging through log.
// A zero interval defaults to ProgressDefaultInterval.
func NewProgress(log *Logger, counters []CounterSnapshot, interval time.Duration) *Progress {
	if interval <= 0 {
		interval = ProgressDefaultInterval
	}
	return &Progress{log: log.WithComponent("progress"), counters: counters, interval: interval, last: make(map[string]int64)}
}

// Run blocks, logging on every tick until ctx is done (engine stop) or done
// is closed (clean finish, no stop). On a clean finish it logs one final
// "[FINISHED]" line with the latest totals.
func (p *Progress) Run(ctx context.Context, done <-chan struct{}) {
	p.start = time.Now()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.tick(false)
		case <-done:
			p.tick(true)
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Progress) tick(final bool) {
	changed := false
	names := make([]string, 0, len(p.counters))
	for _, c := range p.counters {
		names = append(names, c.Name())
		if v, seen := p.last[c.Name()]; !seen || v != c.Value() {
			changed = true
		}
	}
	sort.Strings(names)
	if !changed && !final {
		return
	}
	fields := make([]any, 0, len(p.counters)*2+2)
	for _, c := range p.counters {
		p.last[c.Name()] = c.Value()
		fields = append(fields, c.Name(), c.Value())
	}
	fields = append(fields, "elapsed", Elapsed(time.Since(p.start)))
	if final {
		p.log.Info("[FINISHED]", fields...)
		return
	}
	p.log.Info("progress", fields...)
}
