package etl

import (
	"context"

	"github.com/dshills/etlgraph-go/etl/observe"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// segmentCompletion is what a segmentWorker reports to the engine's central
// completion channel once every one of its node workers has returned.
type segmentCompletion struct {
	segment *Segment
	errors  map[string]*NodeException // keyed by node name
}

// segmentWorker hosts one replica of one Segment: it builds that replica's
// own in-group connectors (never shared with sibling replicas), starts one
// nodeWorker per node via an errgroup, and reports back when they all finish.
// Grounded on cupyd's core/computing/etl_worker.py; the in-process/
// out-of-process split that file implements collapses here to a single
// goroutine-group mechanism (see DESIGN.md, Open Question 6).
type segmentWorker struct {
	plan    *Plan
	segment *Segment

	stop, pause *Flag
	counters    map[string]*Counter // by terminal-Loader node name
	timings     chan<- observe.TimingSample
	metrics     *observe.Metrics
	log         *observe.Logger
	tracer      trace.Tracer
}

// run builds this replica's local connectors, launches one nodeWorker per
// segment node, waits for all of them, and returns the completion report.
func (sw *segmentWorker) run(ctx context.Context) segmentCompletion {
	local := make(map[[2]*Node]*Connector)
	inSeg := sw.segment.nodeSet()
	for _, n := range sw.segment.Nodes {
		for _, d := range n.downstreams {
			if inSeg[d] {
				local[[2]*Node{n, d}] = NewConnector(InGroup, queueMaxSizeOf(d), sw.log)
			}
		}
	}

	workers := make([]*nodeWorker, len(sw.segment.Nodes))
	for i, n := range sw.segment.Nodes {
		workers[i] = sw.buildWorker(n, local, inSeg)
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]*NodeException, len(workers))
	for i, w := range workers {
		i, w := i, w
		g.Go(func() error {
			results[i] = w.run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	errs := make(map[string]*NodeException)
	for i, n := range sw.segment.Nodes {
		if results[i] != nil {
			errs[n.Name] = results[i]
		}
	}
	return segmentCompletion{segment: sw.segment, errors: errs}
}

func (sw *segmentWorker) buildWorker(n *Node, local map[[2]*Node]*Connector, inSeg map[*Node]bool) *nodeWorker {
	w := &nodeWorker{
		node:    n,
		stop:    sw.stop,
		pause:   sw.pause,
		timings: sw.timings,
		metrics: sw.metrics,
		log:     sw.log,
		tracer:  sw.tracer,
	}
	if n.upstream != nil {
		if inSeg[n.upstream] {
			w.input = local[[2]*Node{n.upstream, n}]
		} else {
			w.input = sw.plan.ConnectorFor(n.upstream, n)
		}
	}
	skipCopy := disableSafeCopyOf(n)
	for idx, d := range n.downstreams {
		var conn *Connector
		isLocal := inSeg[d]
		if isLocal {
			conn = local[[2]*Node{n, d}]
		} else {
			conn = sw.plan.ConnectorFor(n, d)
		}
		w.outputs = append(w.outputs, outputSink{conn: conn, needCopy: idx > 0 && !skipCopy, local: isLocal})
	}
	if n.Kind() == KindLoader {
		w.counter = sw.counters[n.Name]
	}
	return w
}
