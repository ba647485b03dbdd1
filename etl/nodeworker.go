package etl

import (
	"context"
	"time"

	"github.com/dshills/etlgraph-go/etl/observe"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// outputSink is one output connector of a node worker, with its safe-copy
// setting. At end of stream a node worker only ever calls FinishProducing
// (with one sentinel) on in-group connectors it owns outright; cross-group
// fan-out is the engine's job, driven by Segment.sinks — see engine.go.
type outputSink struct {
	conn     *Connector
	needCopy bool
	// local is true when conn is an in-group connector owned exclusively by
	// this replica: the node that produces into it is solely responsible for
	// its sentinel. Cross-group connectors are *not* finished here — the
	// engine does that once every replica of the producing segment has
	// finished, fanning out exactly one sentinel per downstream replica
	// (see Segment.sinks and engine.go's completion loop).
	local bool
}

// nodeWorker runs one Node's full lifecycle inside its segment's goroutine
// group: Start, the kind-specific loop, Finalize/HandleException, then a
// report back to the segment worker. Grounded on cupyd's
// core/computing/node_worker.py.
type nodeWorker struct {
	node    *Node
	input   *Connector // nil for Extractor
	outputs []outputSink

	stop, pause *Flag
	counter     *Counter // non-nil only for a terminal Loader
	timings     chan<- observe.TimingSample
	metrics     *observe.Metrics
	log         *observe.Logger
	tracer      trace.Tracer

	// captured is the first exception this node raised, across every phase
	// of its lifecycle; first-wins, matching _handle_exception's precedence.
	captured *NodeException
}

// run executes the full lifecycle and returns the (possibly nil) captured
// exception, for the segment worker to forward to the engine.
func (w *nodeWorker) run(ctx context.Context) *NodeException {
	if w.node.Kind() != KindBulker && w.node.Kind() != KindDeBulker {
		if s, ok := w.node.impl.(Starter); ok {
			if err := s.Start(ctx); err != nil {
				w.fail(ActionStart, err)
			}
		}
	}

	if w.captured == nil {
		switch w.node.Kind() {
		case KindExtractor:
			w.runExtractor(ctx)
		case KindTransformer, KindFilter, KindLoader:
			w.runProcessor(ctx)
		case KindBulker:
			w.runBulker(ctx)
		case KindDeBulker:
			w.runDeBulker(ctx)
		}
	} else {
		// Start failed: still drain and forward sentinels downstream so
		// siblings relying on this node's output don't block forever, but
		// skip any processing.
		w.drainAndForwardSentinel(ctx)
	}

	if w.node.Kind() != KindBulker && w.node.Kind() != KindDeBulker {
		prevCaptured := w.captured
		if prevCaptured != nil {
			if h, ok := w.node.impl.(ExceptionHandler); ok {
				if err := h.HandleException(ctx, prevCaptured.Cause); err != nil {
					w.fail(ActionFinalize, err)
				}
			} else if f, ok := w.node.impl.(Finalizer); ok {
				_ = f.Finalize(ctx)
			}
		} else if f, ok := w.node.impl.(Finalizer); ok {
			if err := f.Finalize(ctx); err != nil {
				w.fail(ActionFinalize, err)
			}
		}
	}

	return w.captured
}

// fail records the first exception only; subsequent calls are dropped so the
// original cause survives, matching cupyd's first-wins precedence. It also
// raises the shared stop flag so every other worker begins winding down.
func (w *nodeWorker) fail(action Action, err error) {
	if w.captured == nil {
		w.captured = &NodeException{NodeName: w.node.Name, Action: action, Cause: err}
		if w.metrics != nil {
			w.metrics.NodeErrors.WithLabelValues(w.node.Name, string(action)).Inc()
		}
		if w.log != nil {
			w.log.Error("node failed", err, "node", w.node.Name, "action", string(action))
		}
	}
	w.stop.Raise()
}

// drainAndForwardSentinel is used when a node fails before its loop can run
// at all (e.g. Start failed): it consumes and discards its input until the
// sentinel (so the upstream is never left blocked in Produce), then forwards
// end-of-stream to its own in-group outputs so downstream siblings waiting
// on this node unblock.
func (w *nodeWorker) drainAndForwardSentinel(ctx context.Context) {
	if w.input != nil {
		for {
			_, ok, err := w.input.Consume(ctx)
			if err != nil || !ok {
				break
			}
		}
	}
	for _, out := range w.outputs {
		if out.local {
			out.conn.FinishProducing(ctx, 1)
		}
	}
}

func (w *nodeWorker) checkPause() bool {
	w.pause.WaitLowered()
	return w.stop.Raised()
}

// produce sends batch b to every output, giving the original reference to
// the first and a clone to every additional one (safe-copy policy, §4.3).
func (w *nodeWorker) produce(ctx context.Context, b Batch) {
	for i, out := range w.outputs {
		payload := b
		if i > 0 && out.needCopy {
			payload = make(Batch, len(b))
			for j, item := range b {
				payload[j] = cloneItem(item)
			}
		}
		if err := out.conn.Produce(ctx, payload); err != nil {
			w.fail(ActionProduceBatch, err)
			return
		}
	}
}

// startSpan opens a "node.process" span for the given action when a real
// tracer was supplied via WithTracer; with no tracer (nil, the default) it
// starts no span and returns a nil span, which endSpan ignores.
func (w *nodeWorker) startSpan(ctx context.Context, action Action) (context.Context, trace.Span) {
	if w.tracer == nil {
		return ctx, nil
	}
	return w.tracer.Start(ctx, "node.process", trace.WithAttributes(
		attribute.String("node.name", w.node.Name),
		attribute.String("node.action", string(action)),
	))
}

func endSpan(span trace.Span) {
	if span != nil {
		span.End()
	}
}

func (w *nodeWorker) recordTiming(start time.Time, itemCount int) {
	if w.timings == nil || itemCount == 0 {
		return
	}
	perItem := time.Since(start).Seconds() / float64(itemCount)
	select {
	case w.timings <- observe.TimingSample{NodeName: w.node.Name, SecondsPerItem: perItem}:
	default:
	}
}

// runExtractor accumulates items from the user Extractor into batches of
// BatchSize, flushing a final partial batch at exhaustion.
func (w *nodeWorker) runExtractor(ctx context.Context) {
	ext := w.node.impl.(Extractor)
	cfg := w.node.cfg.(ExtractorConfig)
	batch := make(Batch, 0, cfg.BatchSize)
	for {
		if w.stop.Raised() {
			break
		}
		if w.checkPause() {
			break
		}
		item, ok, err := ext.Next(ctx)
		if err != nil {
			w.fail(ActionGenerateBatch, err)
			break
		}
		if !ok {
			break
		}
		batch = append(batch, item)
		if len(batch) >= cfg.BatchSize {
			start := time.Now()
			w.produce(ctx, batch)
			w.recordTiming(start, len(batch))
			batch = make(Batch, 0, cfg.BatchSize)
		}
	}
	if w.captured == nil && len(batch) > 0 {
		start := time.Now()
		w.produce(ctx, batch)
		w.recordTiming(start, len(batch))
	}
	for _, out := range w.outputs {
		if out.local {
			out.conn.FinishProducing(ctx, 1)
		}
	}
}

// runProcessor is the shared loop for Transformer, Filter, and Loader: pull a
// batch, process every item, optionally produce a batch downstream (Filter
// drops some items; Loader forwards its input batch unchanged), update the
// terminal counter.
//
// Once this node has captured an exception (its own, or the stop flag raised
// by another node elsewhere in the run), it stops processing and producing
// but keeps calling Consume, discarding every batch, until the upstream
// sentinel arrives. Breaking out early here would leave the upstream blocked
// forever inside Connector.Produce on a bounded queue; draining to sentinel
// is what lets that Produce return and the run unwind. Matches
// ProcessorWorker._run's while-True/continue-after-_handle_exception shape.
func (w *nodeWorker) runProcessor(ctx context.Context) {
	inputKey := processorInputKey(w.node)
	for {
		in, ok, err := w.input.Consume(ctx)
		if err != nil {
			w.fail(ActionConsumeBatch, err)
			continue
		}
		if !ok {
			break
		}
		if w.captured != nil || w.stop.Raised() {
			continue
		}
		w.pause.WaitLowered()
		start := time.Now()
		spanCtx, span := w.startSpan(ctx, ActionProcessBatch)
		out, loaded := w.processBatch(spanCtx, in, inputKey)
		endSpan(span)
		if w.captured != nil {
			continue
		}
		if len(w.outputs) > 0 && len(out) > 0 {
			w.produce(ctx, out)
		}
		w.recordTiming(start, len(in))
		if w.counter != nil && loaded > 0 {
			w.counter.Add(int64(loaded))
			if w.metrics != nil {
				w.metrics.ItemsLoaded.WithLabelValues(w.node.Name).Add(float64(loaded))
			}
		}
	}
	for _, out := range w.outputs {
		if out.local {
			out.conn.FinishProducing(ctx, 1)
		}
	}
}

func processorInputKey(n *Node) string {
	switch cfg := n.cfg.(type) {
	case TransformerConfig:
		return cfg.InputKey
	case FilterConfig:
		return cfg.InputKey
	case LoaderConfig:
		return cfg.InputKey
	default:
		return ""
	}
}

// processBatch applies this node's per-item logic over in, returning the
// batch to forward downstream (the input batch itself for Loader, filtered
// for Filter) and
// how many items were successfully loaded (non-zero only for a Loader).
func (w *nodeWorker) processBatch(ctx context.Context, in Batch, inputKey string) (Batch, int) {
	switch impl := w.node.impl.(type) {
	case Transformer:
		out := make(Batch, 0, len(in))
		for _, item := range in {
			v, ok := fieldOf(item, inputKey)
			if !ok {
				w.fail(ActionProcessBatch, errFieldNotFound(inputKey))
				return nil, 0
			}
			res, err := impl.Transform(ctx, v)
			if err != nil {
				w.fail(ActionProcessBatch, err)
				return nil, 0
			}
			out = append(out, res)
		}
		return out, 0
	case Filter:
		cfg := w.node.cfg.(FilterConfig)
		out := make(Batch, 0, len(in))
		for _, item := range in {
			v, ok := fieldOf(item, inputKey)
			if !ok {
				w.fail(ActionProcessBatch, errFieldNotFound(inputKey))
				return nil, 0
			}
			res, err := impl.Check(ctx, v)
			if err != nil {
				w.fail(ActionProcessBatch, err)
				return nil, 0
			}
			if res == cfg.FilterValue {
				continue
			}
			out = append(out, item)
		}
		return out, 0
	case Loader:
		loaded := 0
		for _, item := range in {
			v, ok := fieldOf(item, inputKey)
			if !ok {
				w.fail(ActionProcessBatch, errFieldNotFound(inputKey))
				return nil, loaded
			}
			if err := impl.Load(ctx, v); err != nil {
				w.fail(ActionProcessBatch, err)
				return nil, loaded
			}
			loaded++
		}
		return in, loaded
	default:
		return nil, 0
	}
}

// runBulker accumulates items across incoming batches into chunks of exactly
// TargetBulkSize, carrying a remainder across batch boundaries and flushing
// it (only if no error occurred) once the upstream is exhausted.
//
// Same drain-to-sentinel rule as runProcessor: once captured is set, this
// loop stops chunking and producing but keeps consuming and discarding
// batches until the sentinel arrives, matching BulkerWorker._run.
func (w *nodeWorker) runBulker(ctx context.Context) {
	cfg := w.node.cfg.(BulkerConfig)
	var remainder []any
	for {
		in, ok, err := w.input.Consume(ctx)
		if err != nil {
			w.fail(ActionConsumeBatch, err)
			continue
		}
		if !ok {
			break
		}
		if w.captured != nil {
			continue
		}
		w.pause.WaitLowered()
		remainder = append(remainder, in...)
		for len(remainder) >= cfg.TargetBulkSize {
			chunk := make([]any, cfg.TargetBulkSize)
			copy(chunk, remainder[:cfg.TargetBulkSize])
			remainder = remainder[cfg.TargetBulkSize:]
			w.produce(ctx, Batch{chunk})
			if w.captured != nil {
				break
			}
		}
	}
	if w.captured == nil && len(remainder) > 0 {
		w.produce(ctx, Batch{append([]any(nil), remainder...)})
	}
	for _, out := range w.outputs {
		if out.local {
			out.conn.FinishProducing(ctx, 1)
		}
	}
}

// runDeBulker fans each incoming bulk (a single []any item) back out as
// individual single-item batches.
//
// Same drain-to-sentinel rule as runProcessor: once captured is set (by a
// malformed bulk or a downstream produce failure), this loop stops fanning
// out items but keeps consuming and discarding batches until the sentinel
// arrives, matching DeBulkerWorker._run.
func (w *nodeWorker) runDeBulker(ctx context.Context) {
	for {
		in, ok, err := w.input.Consume(ctx)
		if err != nil {
			w.fail(ActionConsumeBatch, err)
			continue
		}
		if !ok {
			break
		}
		if w.captured != nil {
			continue
		}
		w.pause.WaitLowered()
		for _, bulkItem := range in {
			bulk, ok := bulkItem.([]any)
			if !ok {
				w.fail(ActionProcessBatch, errNotABulk)
				break
			}
			for _, single := range bulk {
				w.produce(ctx, Batch{single})
				if w.captured != nil {
					break
				}
			}
			if w.captured != nil {
				break
			}
		}
	}
	for _, out := range w.outputs {
		if out.local {
			out.conn.FinishProducing(ctx, 1)
		}
	}
}
