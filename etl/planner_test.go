package etl

import (
	"testing"

	"github.com/dshills/etlgraph-go/etl/observe"
)

func testLogger() *observe.Logger {
	return observe.NewLogger(nil, 0)
}

func TestPlanSimpleChainSeparatesMainProcessExtractor(t *testing.T) {
	ext := mustExtractor(t)
	tr := mustTransformer(t)
	ld := mustLoader(t)
	if _, err := ext.To(tr); err != nil {
		t.Fatal(err)
	}
	if _, err := tr.To(ld); err != nil {
		t.Fatal(err)
	}

	plan, err := BuildPlan(ext, 4, testLogger())
	if err != nil {
		t.Fatalf("BuildPlan: %v", err)
	}
	if len(plan.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(plan.Nodes))
	}
	if plan.Nodes[0] != ext || plan.Nodes[1] != tr || plan.Nodes[2] != ld {
		t.Fatalf("expected discovery order ext, tr, ld")
	}
	// ext lands in its own segment because it is the only main-process node
	// (DefaultExtractorConfig sets MainProcessAffinity true; the non-main
	// Extractor rule does not apply), tr/ld share affinity=false and are
	// mutually connected so they land in one segment together.
	if plan.SegmentOf(ext) == plan.SegmentOf(tr) {
		t.Fatalf("extractor (main-process) and transformer (not) must not share a segment")
	}
	if plan.SegmentOf(tr) != plan.SegmentOf(ld) {
		t.Fatalf("transformer and loader should share a segment")
	}
	if plan.SegmentOf(tr).Replicas != 4 {
		t.Fatalf("expected 4 replicas for the non-main segment, got %d", plan.SegmentOf(tr).Replicas)
	}
}

func TestPlanForcesNonMainExtractorSingleton(t *testing.T) {
	impl := &fakeExtractor{}
	ext, err := NewExtractor(impl, ExtractorConfig{BatchSize: 10, MainProcessAffinity: false})
	if err != nil {
		t.Fatal(err)
	}
	tr := mustTransformer(t)
	if _, err := ext.To(tr); err != nil {
		t.Fatal(err)
	}

	plan, err := BuildPlan(ext, 8, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	seg := plan.SegmentOf(ext)
	if seg.Replicas != 1 || len(seg.Nodes) != 1 {
		t.Fatalf("expected non-main extractor forced into a 1-replica singleton segment, got replicas=%d nodes=%d", seg.Replicas, len(seg.Nodes))
	}
}

func TestAssignNamesDeduplicates(t *testing.T) {
	ext := mustExtractor(t)
	tr1 := mustTransformer(t)
	tr2 := mustTransformer(t)
	if _, err := ext.To(tr1, tr2); err != nil {
		t.Fatal(err)
	}
	assignNamesAndIDs([]*Node{ext, tr1, tr2})
	if tr1.Name == tr2.Name {
		t.Fatalf("expected de-duplicated names, got %q and %q", tr1.Name, tr2.Name)
	}
}

func TestDeriveNameCamelCase(t *testing.T) {
	cases := map[string]string{
		"CSVExtractor": "csv_extractor",
		"JSONLoader":   "json_loader",
		"Transformer":  "transformer",
	}
	for in, want := range cases {
		if got := deriveName(in); got != want {
			t.Errorf("deriveName(%q) = %q, want %q", in, got, want)
		}
	}
}
