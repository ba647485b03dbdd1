package etl

import (
	"context"
	"errors"
	"testing"
	"time"
)

// numberExtractor yields 0..n-1.
type numberExtractor struct {
	n, i int
}

func (e *numberExtractor) Next(ctx context.Context) (any, bool, error) {
	if e.i >= e.n {
		return nil, false, nil
	}
	v := e.i
	e.i++
	return v, true, nil
}

type doubler struct{}

func (doubler) Transform(ctx context.Context, item any) (any, error) {
	return item.(int) * 2, nil
}

type collectLoader struct {
	items []any
}

func (l *collectLoader) Load(ctx context.Context, item any) error {
	l.items = append(l.items, item)
	return nil
}

// TestEngineSimpleChainEndToEnd covers a canonical extract -> transform ->
// load chain over a small, exact set of numbers (a single-worker,
// single-segment-per-kind run, so output order is deterministic).
func TestEngineSimpleChainEndToEnd(t *testing.T) {
	ext, err := NewExtractor(&numberExtractor{n: 10}, ExtractorConfig{BatchSize: 3, MainProcessAffinity: true})
	if err != nil {
		t.Fatal(err)
	}
	tr, err := NewTransformer(doubler{}, TransformerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	loaderImpl := &collectLoader{}
	ld, err := NewLoader(loaderImpl, LoaderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ext.To(tr); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.To(ld); err != nil {
		t.Fatal(err)
	}

	eng, err := New(ext)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := DefaultRunOptions()
	opts.ShowProgress = false
	if err := eng.Run(ctx, opts); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(loaderImpl.items) != 10 {
		t.Fatalf("expected 10 loaded items, got %d", len(loaderImpl.items))
	}
	seen := make(map[int]bool)
	for _, it := range loaderImpl.items {
		seen[it.(int)] = true
	}
	for i := 0; i < 10; i++ {
		if !seen[i*2] {
			t.Errorf("missing expected loaded value %d", i*2)
		}
	}
}

// failingExtractor errors on its second pull.
type failingExtractor struct {
	calls int
}

func (e *failingExtractor) Next(ctx context.Context) (any, bool, error) {
	e.calls++
	if e.calls == 2 {
		return nil, false, errors.New("boom")
	}
	return e.calls, true, nil
}

func TestEngineExtractorFailureReturnsETLExecutionError(t *testing.T) {
	ext, err := NewExtractor(&failingExtractor{}, ExtractorConfig{BatchSize: 1, MainProcessAffinity: true})
	if err != nil {
		t.Fatal(err)
	}
	ld, err := NewLoader(&collectLoader{}, LoaderConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ext.To(ld); err != nil {
		t.Fatal(err)
	}
	eng, err := New(ext)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := DefaultRunOptions()
	opts.ShowProgress = false
	err = eng.Run(ctx, opts)
	var execErr *ETLExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *ETLExecutionError, got %v (%T)", err, err)
	}
}
