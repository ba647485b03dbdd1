package etl

import (
	"context"
	"testing"
	"time"
)

func drainBatches(t *testing.T, ctx context.Context, c *Connector) []Batch {
	t.Helper()
	var out []Batch
	for {
		b, ok, err := c.Consume(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

// TestBulkerChunksAndFlushesRemainder covers the boundary case where
// TargetBulkSize does not evenly divide the total item count: the final,
// shorter bulk must still be flushed once the upstream is exhausted.
func TestBulkerChunksAndFlushesRemainder(t *testing.T) {
	node, err := NewBulker(BulkerConfig{TargetBulkSize: 3})
	if err != nil {
		t.Fatal(err)
	}
	in := NewConnector(InGroup, 10, nil)
	out := NewConnector(InGroup, 10, nil)
	w := &nodeWorker{
		node: node, input: in,
		outputs: []outputSink{{conn: out, local: true}},
		stop:    NewFlag(), pause: NewFlag(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { w.runBulker(ctx); close(done) }()

	if err := in.Produce(ctx, Batch{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	in.FinishProducing(ctx, 1)
	<-done

	if w.captured != nil {
		t.Fatalf("unexpected worker error: %v", w.captured)
	}

	batches := drainBatches(t, ctx, out)
	if len(batches) != 2 {
		t.Fatalf("expected 2 bulks (one full, one remainder), got %d", len(batches))
	}
	first := batches[0][0].([]any)
	second := batches[1][0].([]any)
	if len(first) != 3 {
		t.Fatalf("first bulk should have TargetBulkSize=3 items, got %d", len(first))
	}
	if len(second) != 2 {
		t.Fatalf("remainder bulk should have 2 items, got %d", len(second))
	}
}

// TestDeBulkerFansOutBulkItems covers a DeBulker receiving a well-formed bulk
// ([]any) and fanning it back out as individual single-item batches.
func TestDeBulkerFansOutBulkItems(t *testing.T) {
	node, err := NewDeBulker(DeBulkerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	in := NewConnector(InGroup, 10, nil)
	out := NewConnector(InGroup, 10, nil)
	w := &nodeWorker{
		node: node, input: in,
		outputs: []outputSink{{conn: out, local: true}},
		stop:    NewFlag(), pause: NewFlag(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { w.runDeBulker(ctx); close(done) }()

	if err := in.Produce(ctx, Batch{[]any{10, 20, 30}}); err != nil {
		t.Fatal(err)
	}
	in.FinishProducing(ctx, 1)
	<-done

	if w.captured != nil {
		t.Fatalf("unexpected worker error: %v", w.captured)
	}

	batches := drainBatches(t, ctx, out)
	if len(batches) != 3 {
		t.Fatalf("expected 3 single-item batches, got %d", len(batches))
	}
	for i, b := range batches {
		if len(b) != 1 {
			t.Fatalf("batch %d: expected exactly 1 item, got %d", i, len(b))
		}
	}
}

// TestDeBulkerRejectsNonBulkItem covers a DeBulker receiving an item that
// isn't a []any bulk: it must fail the node rather than panic.
func TestDeBulkerRejectsNonBulkItem(t *testing.T) {
	node, err := NewDeBulker(DeBulkerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	in := NewConnector(InGroup, 10, nil)
	out := NewConnector(InGroup, 10, nil)
	w := &nodeWorker{
		node: node, input: in,
		outputs: []outputSink{{conn: out, local: true}},
		stop:    NewFlag(), pause: NewFlag(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { w.runDeBulker(ctx); close(done) }()

	if err := in.Produce(ctx, Batch{"not a bulk"}); err != nil {
		t.Fatal(err)
	}
	in.FinishProducing(ctx, 1)
	<-done

	if w.captured == nil {
		t.Fatal("expected a captured NodeException for a non-bulk item")
	}
}

// TestDeBulkerDrainsRemainingBatchesAfterFailure reproduces the deadlock
// scenario from the maintainer review: with a small input queue and an
// upstream still pushing batches, a worker that stops consuming the instant
// it captures a failure would leave that upstream blocked forever inside
// Connector.Produce. The fix requires the worker to keep draining (and
// discarding) batches until the sentinel arrives.
func TestDeBulkerDrainsRemainingBatchesAfterFailure(t *testing.T) {
	node, err := NewDeBulker(DeBulkerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	in := NewConnector(InGroup, 1, nil)
	out := NewConnector(InGroup, 10, nil)
	w := &nodeWorker{
		node: node, input: in,
		outputs: []outputSink{{conn: out, local: true}},
		stop:    NewFlag(), pause: NewFlag(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { w.runDeBulker(ctx); close(done) }()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		if err := in.Produce(ctx, Batch{"not a bulk"}); err != nil {
			return
		}
		for i := 0; i < 5; i++ {
			if err := in.Produce(ctx, Batch{[]any{i}}); err != nil {
				return
			}
		}
		in.FinishProducing(ctx, 1)
	}()

	select {
	case <-produced:
	case <-ctx.Done():
		t.Fatal("producer blocked: worker stopped draining after capturing its failure")
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("worker never exited after sentinel: drain-until-sentinel loop is broken")
	}

	if w.captured == nil {
		t.Fatal("expected a captured NodeException for the malformed bulk item")
	}

	batches := drainBatches(t, ctx, out)
	if len(batches) != 0 {
		t.Fatalf("expected no output downstream of a captured failure, got %d batches", len(batches))
	}
}

type erroringTransformer struct{}

var errBoom = errNotABulk // reuse an existing sentinel-shaped error, any error works here

func (erroringTransformer) Transform(ctx context.Context, item any) (any, error) {
	if item.(int) == 0 {
		return nil, errBoom
	}
	return item, nil
}

// TestProcessorDrainsRemainingBatchesAfterFailure is runProcessor's analogue
// of TestDeBulkerDrainsRemainingBatchesAfterFailure: a Transform failure on
// one batch must not stop the worker from draining subsequent batches until
// the sentinel, or the upstream would block forever on a full queue.
func TestProcessorDrainsRemainingBatchesAfterFailure(t *testing.T) {
	node, err := NewTransformer(erroringTransformer{}, TransformerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	in := NewConnector(InGroup, 1, nil)
	out := NewConnector(InGroup, 10, nil)
	w := &nodeWorker{
		node: node, input: in,
		outputs: []outputSink{{conn: out, local: true}},
		stop:    NewFlag(), pause: NewFlag(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { w.runProcessor(ctx); close(done) }()

	produced := make(chan struct{})
	go func() {
		defer close(produced)
		if err := in.Produce(ctx, Batch{0}); err != nil {
			return
		}
		for i := 1; i <= 5; i++ {
			if err := in.Produce(ctx, Batch{i}); err != nil {
				return
			}
		}
		in.FinishProducing(ctx, 1)
	}()

	select {
	case <-produced:
	case <-ctx.Done():
		t.Fatal("producer blocked: worker stopped draining after capturing its failure")
	}

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("worker never exited after sentinel: drain-until-sentinel loop is broken")
	}

	if w.captured == nil {
		t.Fatal("expected a captured NodeException from the failing Transform call")
	}

	batches := drainBatches(t, ctx, out)
	if len(batches) != 0 {
		t.Fatalf("expected no output downstream of a captured failure, got %d batches", len(batches))
	}
}

type isOddFilter struct{}

func (isOddFilter) Check(ctx context.Context, item any) (any, error) {
	return item.(int)%2 != 0, nil
}

// TestFilterDropsMatchingValue covers Filter's FilterValue semantics: items
// whose Check result equals FilterValue are dropped, all others pass.
func TestFilterDropsMatchingValue(t *testing.T) {
	node, err := NewFilter(isOddFilter{}, FilterConfig{FilterValue: true})
	if err != nil {
		t.Fatal(err)
	}
	in := NewConnector(InGroup, 10, nil)
	out := NewConnector(InGroup, 10, nil)
	w := &nodeWorker{
		node: node, input: in,
		outputs: []outputSink{{conn: out, local: true}},
		stop:    NewFlag(), pause: NewFlag(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() { w.runProcessor(ctx); close(done) }()

	if err := in.Produce(ctx, Batch{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	in.FinishProducing(ctx, 1)
	<-done

	if w.captured != nil {
		t.Fatalf("unexpected worker error: %v", w.captured)
	}

	batches := drainBatches(t, ctx, out)
	var survivors []any
	for _, b := range batches {
		survivors = append(survivors, b...)
	}
	if len(survivors) != 2 || survivors[0] != 2 || survivors[1] != 4 {
		t.Fatalf("expected only even values to survive, got %v", survivors)
	}
}

type sliceItem struct {
	values []int
}

// TestProduceClonesForAdditionalConsumers covers the safe-copy policy: the
// first output gets the original batch reference; every additional output
// gets a copy made by cloneItem, unless needCopy is false (DisableSafeCopy).
func TestProduceClonesForAdditionalConsumers(t *testing.T) {
	first := NewConnector(InGroup, 4, nil)
	second := NewConnector(InGroup, 4, nil)
	w := &nodeWorker{
		outputs: []outputSink{
			{conn: first, needCopy: false},
			{conn: second, needCopy: true},
		},
	}

	original := &sliceItem{values: []int{1, 2, 3}}
	ctx := context.Background()
	w.produce(ctx, Batch{original})

	b1, _, _ := first.Consume(ctx)
	b2, _, _ := second.Consume(ctx)

	if b1[0].(*sliceItem) != original {
		t.Fatal("first output should receive the original reference")
	}
	if b2[0].(*sliceItem) == original {
		t.Fatal("second output should receive a distinct clone, not the original reference")
	}
	if b2[0].(*sliceItem).values[0] != original.values[0] {
		t.Fatal("clone should carry the same field values")
	}
}

// TestProduceSharesReferenceWhenCopyDisabled covers DisableSafeCopy: when
// needCopy is false even for an additional output, the same reference is
// handed to every consumer.
func TestProduceSharesReferenceWhenCopyDisabled(t *testing.T) {
	first := NewConnector(InGroup, 4, nil)
	second := NewConnector(InGroup, 4, nil)
	w := &nodeWorker{
		outputs: []outputSink{
			{conn: first, needCopy: false},
			{conn: second, needCopy: false},
		},
	}

	original := &sliceItem{values: []int{9}}
	ctx := context.Background()
	w.produce(ctx, Batch{original})

	b1, _, _ := first.Consume(ctx)
	b2, _, _ := second.Consume(ctx)

	if b1[0].(*sliceItem) != original || b2[0].(*sliceItem) != original {
		t.Fatal("both outputs should share the original reference when copy is disabled")
	}
}
