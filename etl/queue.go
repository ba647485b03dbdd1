package etl

import (
	"context"

	"github.com/dshills/etlgraph-go/etl/observe"
)

// Batch is the unit of transport between node workers. A nil Batch read from
// a Connector is never a real payload — it is reserved to mean "this
// producer is done" (see FinishProducing), mirroring cupyd's dedicated
// sentinel object.
type Batch []any

// semValueMax mirrors the ceiling cupyd's InterProcessConnector applies
// (Python's multiprocessing.synchronize.SEM_VALUE_MAX on the host platform).
// Go channels have no such OS-imposed ceiling, but Connector still honors it
// for cross-segment queues so that a misconfigured QueueMaxSize cannot
// silently request an unbounded amount of goroutine-parked capacity.
const semValueMax = 32767

// ConnectorScope distinguishes a queue usable only within one segment's
// goroutine group (InGroup) from one shared across segment replicas
// (CrossGroup). The distinction only affects capacity capping (see
// NewConnector); the channel-based implementation underneath is identical,
// because Go workers never need the process-boundary serialization Python's
// multiprocessing.Queue required.
type ConnectorScope int

const (
	InGroup ConnectorScope = iota
	CrossGroup
)

// Connector is a bounded, batched, sentinel-terminated FIFO between one
// producer side and one or more consumers. It is the Go realization of
// cupyd's core/communication/connector.py.
type Connector struct {
	ch    chan Batch
	scope ConnectorScope
}

// NewConnector creates a Connector with capacity maxSize, capped at
// semValueMax for CrossGroup scope (logging a warning on capping, matching
// cupyd's InterProcessConnector).
func NewConnector(scope ConnectorScope, maxSize int, log *observe.Logger) *Connector {
	if maxSize <= 0 {
		maxSize = DefaultQueueMaxSize
	}
	if scope == CrossGroup && maxSize > semValueMax {
		if log != nil {
			log.Warn("requested queue_max_size exceeds platform ceiling, capping",
				"requested", maxSize, "ceiling", semValueMax)
		}
		maxSize = semValueMax
	}
	return &Connector{ch: make(chan Batch, maxSize), scope: scope}
}

// Produce enqueues a batch, blocking while the connector is at capacity.
// Returns ctx.Err() if ctx is cancelled first.
func (c *Connector) Produce(ctx context.Context, b Batch) error {
	select {
	case c.ch <- b:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume dequeues the next batch. ok is false when the value returned is the
// end-of-stream sentinel, not a real batch — callers must stop consuming at
// that point, exactly once per sentinel received.
func (c *Connector) Consume(ctx context.Context) (b Batch, ok bool, err error) {
	select {
	case v := <-c.ch:
		return v, v != nil, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// FinishProducing enqueues exactly one sentinel per expected consumer. The
// Planner records, for every producer, how many consumers its output
// connector(s) feed (1 for an in-group queue with a single downstream, or the
// downstream segment's replica count for a cross-group queue) so the engine
// can call this exactly once per producer, per connector, at end of stream.
func (c *Connector) FinishProducing(ctx context.Context, numConsumers int) {
	for i := 0; i < numConsumers; i++ {
		select {
		case c.ch <- nil:
		case <-ctx.Done():
			return
		}
	}
}

// Len reports the number of batches currently queued, for observe/metrics.go
// gauges.
func (c *Connector) Len() int { return len(c.ch) }
