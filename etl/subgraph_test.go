package etl

import (
	"context"
	"testing"
)

type fakeExtractor struct {
	items []any
	i     int
}

func (f *fakeExtractor) Next(ctx context.Context) (any, bool, error) {
	if f.i >= len(f.items) {
		return nil, false, nil
	}
	v := f.items[f.i]
	f.i++
	return v, true, nil
}

type fakeTransformer struct{}

func (fakeTransformer) Transform(ctx context.Context, item any) (any, error) { return item, nil }

type fakeLoader struct{ loaded []any }

func (f *fakeLoader) Load(ctx context.Context, item any) error {
	f.loaded = append(f.loaded, item)
	return nil
}

func mustExtractor(t *testing.T) *Node {
	t.Helper()
	n, err := NewExtractor(&fakeExtractor{}, DefaultExtractorConfig())
	if err != nil {
		t.Fatalf("NewExtractor: %v", err)
	}
	return n
}

func mustTransformer(t *testing.T) *Node {
	t.Helper()
	n, err := NewTransformer(fakeTransformer{}, TransformerConfig{})
	if err != nil {
		t.Fatalf("NewTransformer: %v", err)
	}
	return n
}

func mustLoader(t *testing.T) *Node {
	t.Helper()
	n, err := NewLoader(&fakeLoader{}, LoaderConfig{})
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	return n
}

func TestSimpleChain(t *testing.T) {
	ext := mustExtractor(t)
	tr := mustTransformer(t)
	ld := mustLoader(t)

	if _, err := ext.To(tr); err != nil {
		t.Fatalf("ext.To(tr): %v", err)
	}
	sg, err := tr.To(ld)
	if err != nil {
		t.Fatalf("tr.To(ld): %v", err)
	}
	if len(sg.Leaves()) != 1 || sg.Leaves()[0] != ld {
		t.Fatalf("expected single leaf %v, got %v", ld, sg.Leaves())
	}
	if ld.Upstream() != tr || tr.Upstream() != ext {
		t.Fatalf("upstream chain not wired correctly")
	}
}

func TestFanOut(t *testing.T) {
	ext := mustExtractor(t)
	ld1 := mustLoader(t)
	ld2 := mustLoader(t)

	sg, err := ext.To(ld1, ld2)
	if err != nil {
		t.Fatalf("ext.To(ld1, ld2): %v", err)
	}
	if len(sg.Leaves()) != 2 {
		t.Fatalf("expected 2 leaves, got %d", len(sg.Leaves()))
	}
	if len(ext.Downstreams()) != 2 {
		t.Fatalf("expected extractor to have 2 downstreams, got %d", len(ext.Downstreams()))
	}
}

func TestChainingMultiLeafSubGraphFails(t *testing.T) {
	ext := mustExtractor(t)
	ld1 := mustLoader(t)
	ld2 := mustLoader(t)
	sg, err := ext.To(ld1, ld2)
	if err != nil {
		t.Fatalf("ext.To: %v", err)
	}
	if _, err := sg.To(mustLoader(t)); err != ErrNodeConnection {
		t.Fatalf("expected ErrNodeConnection chaining a 2-leaf subgraph, got %v", err)
	}
}

func TestSelfConnectionFails(t *testing.T) {
	ext := mustExtractor(t)
	if _, err := ext.To(ext); err != ErrCyclicNode {
		t.Fatalf("expected ErrCyclicNode, got %v", err)
	}
}

func TestDuplicateConnectionFails(t *testing.T) {
	ext := mustExtractor(t)
	tr := mustTransformer(t)
	if _, err := ext.To(tr); err != nil {
		t.Fatalf("ext.To(tr): %v", err)
	}
	if _, err := ext.To(tr); err != ErrAlreadyConnected {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
}

func TestReconnectingTargetWithExistingUpstreamFails(t *testing.T) {
	ext1 := mustExtractor(t)
	ext2, err := NewExtractor(&fakeExtractor{}, DefaultExtractorConfig())
	if err != nil {
		t.Fatal(err)
	}
	tr := mustTransformer(t)
	if _, err := ext1.To(tr); err != nil {
		t.Fatalf("ext1.To(tr): %v", err)
	}
	if _, err := ext2.To(tr); err != ErrNodeConnection {
		t.Fatalf("expected ErrNodeConnection, got %v", err)
	}
}
