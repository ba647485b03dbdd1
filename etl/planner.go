package etl

import (
	"fmt"
	"sort"

	"github.com/dshills/etlgraph-go/etl/observe"
)

// Plan is the output of BuildPlan: every discovered node (named and
// identified), every discovered edge, the segments they were grouped into,
// and the connectors wired between them. Engine.Run consumes a Plan
// directly; nothing about it is exported as part of the package's stable
// surface beyond what engine.go needs.
type Plan struct {
	Nodes    []*Node
	edges    []edge
	Segments []*Segment

	// connectorOf maps an edge (by node identity pair) to the Connector the
	// planner built for it.
	connectorOf map[[2]*Node]*Connector
	segmentOf   map[*Node]*Segment
}

// affinityOf reads a node's configured main-process affinity regardless of
// its concrete Kind, defaulting to false (cupyd's default for every kind
// except Extractor, which sets it true in DefaultExtractorConfig).
func affinityOf(n *Node) bool {
	switch cfg := n.cfg.(type) {
	case ExtractorConfig:
		return cfg.MainProcessAffinity
	case TransformerConfig:
		return cfg.MainProcessAffinity
	case FilterConfig:
		return cfg.MainProcessAffinity
	case LoaderConfig:
		return cfg.MainProcessAffinity
	case BulkerConfig:
		return cfg.MainProcessAffinity
	case DeBulkerConfig:
		return cfg.MainProcessAffinity
	default:
		return false
	}
}

// disableSafeCopyOf reports whether a node's configuration opts out of the
// per-item copy (cloneItem) otherwise made for every downstream beyond the
// first (§4.3).
// Only Filter and Loader expose the knob in cupyd's original configuration
// model; every other kind keeps the safe default (copy).
func disableSafeCopyOf(n *Node) bool {
	switch cfg := n.cfg.(type) {
	case FilterConfig:
		return cfg.DisableSafeCopy
	case LoaderConfig:
		return cfg.DisableSafeCopy
	default:
		return false
	}
}

func queueMaxSizeOf(n *Node) int {
	switch cfg := n.cfg.(type) {
	case TransformerConfig:
		return cfg.toProcessor().effectiveQueueMaxSize()
	case FilterConfig:
		return cfg.toProcessor().effectiveQueueMaxSize()
	case LoaderConfig:
		return cfg.toProcessor().effectiveQueueMaxSize()
	case BulkerConfig:
		if cfg.QueueMaxSize <= 0 {
			return DefaultQueueMaxSize
		}
		return cfg.QueueMaxSize
	case DeBulkerConfig:
		if cfg.QueueMaxSize <= 0 {
			return DefaultQueueMaxSize
		}
		return cfg.QueueMaxSize
	default:
		return DefaultQueueMaxSize
	}
}

// BuildPlan builds the full execution plan rooted at root, requesting workers
// parallel replicas for every segment eligible for replication. It
// implements cupyd's core/graph/algorithms.py end to end: discovery, naming,
// segmentation, and (beyond the original, per SPEC_FULL.md §9) queue wiring
// sized from each node's QueueMaxSize.
func BuildPlan(root *Node, workers int, log *observe.Logger) (*Plan, error) {
	if workers < 1 {
		workers = 1
	}
	nodes, edges := discover(root)
	assignNamesAndIDs(nodes)

	segments, segmentOf := segmentGraph(nodes, workers)

	p := &Plan{
		Nodes:       nodes,
		edges:       edges,
		Segments:    segments,
		connectorOf: make(map[[2]*Node]*Connector),
		segmentOf:   segmentOf,
	}

	// Only cross-segment edges get a Plan-level connector: the same shared
	// queue must be visible to every replica of both the producing and
	// consuming segments. In-group edges (both endpoints in the same
	// segment) are instead built fresh, per replica, by segmentWorker itself
	// — each replica runs its own independent copy of that segment's local
	// mini-pipeline and must not share queues with its siblings.
	for _, e := range edges {
		from, to := segmentOf[e.from], segmentOf[e.to]
		if from == to {
			continue
		}
		c := NewConnector(CrossGroup, queueMaxSizeOf(e.to), log)
		p.connectorOf[[2]*Node{e.from, e.to}] = c
		from.sinks = append(from.sinks, segmentSink{connector: c, downstreamReplicas: to.Replicas})
	}
	return p, nil
}

// discover walks the graph depth-first from root, recording each node and
// edge exactly once, in first-visit order — the same order cupyd's
// topological_sort produces, since traversal only ever follows downstream
// edges out of a DAG.
func discover(root *Node) ([]*Node, []edge) {
	var nodes []*Node
	var edges []edge
	seenNode := make(map[*Node]bool)
	seenEdge := make(map[[2]*Node]bool)

	var walk func(n *Node)
	walk = func(n *Node) {
		if !seenNode[n] {
			seenNode[n] = true
			nodes = append(nodes, n)
		}
		for _, d := range n.downstreams {
			key := [2]*Node{n, d}
			if !seenEdge[key] {
				seenEdge[key] = true
				edges = append(edges, edge{from: n, to: d})
			}
			walk(d)
		}
	}
	walk(root)
	return nodes, edges
}

// assignNamesAndIDs gives every node a stable id (node_1, node_2, ...) in
// discovery order, and a Name: the user-supplied one if set, else a
// CamelCase-derived one, de-duplicated by appending a 1-based index when two
// or more auto-derived names collide — matching cupyd's
// assign_names_and_ids_to_nodes.
func assignNamesAndIDs(nodes []*Node) {
	seenCount := make(map[string]int)
	finalCount := make(map[string]int)
	derived := make([]string, len(nodes))
	for i, n := range nodes {
		if n.userName != "" {
			derived[i] = n.userName
		} else {
			derived[i] = n.resolveName()
			seenCount[derived[i]]++
		}
	}
	for i, n := range nodes {
		n.ID = fmt.Sprintf("node_%d", i+1)
		name := derived[i]
		if n.userName == "" && seenCount[name] > 1 {
			finalCount[name]++
			name = fmt.Sprintf("%s_%d", name, finalCount[name])
		}
		n.Name = name
	}
}

// segmentGraph implements algorithms.py's get_etl_segments: group by
// main-process affinity, split each group into maximally connected
// components restricted to that group's own node set, then force any
// non-main-process Extractor found in a multi-node group into its own
// singleton segment (a source must never be replicated).
func segmentGraph(nodes []*Node, workers int) ([]*Segment, map[*Node]*Segment) {
	var mainGroup, otherGroup []*Node
	for _, n := range nodes {
		if affinityOf(n) {
			mainGroup = append(mainGroup, n)
		} else {
			otherGroup = append(otherGroup, n)
		}
	}

	var groups [][]*Node
	groups = append(groups, splitConnected(mainGroup)...)
	groups = append(groups, splitConnected(otherGroup)...)

	// Force every non-main-process Extractor found alongside other nodes
	// into its own singleton group: a data source must never be replicated,
	// and a non-main Extractor only shares main-process affinity=false, so
	// it can end up grouped with downstream nodes it's merely connected to.
	var finalGroups [][]*Node
	for _, g := range groups {
		if len(g) == 1 {
			finalGroups = append(finalGroups, g)
			continue
		}
		var rest []*Node
		for _, n := range g {
			if n.Kind() == KindExtractor && !affinityOf(n) {
				finalGroups = append(finalGroups, []*Node{n})
			} else {
				rest = append(rest, n)
			}
		}
		if len(rest) > 0 {
			finalGroups = append(finalGroups, rest)
		}
	}

	var final []*Segment
	for i, g := range finalGroups {
		final = append(final, &Segment{ID: fmt.Sprintf("segment_%d", i+1), Nodes: g, Replicas: replicaCountFor(g, workers)})
	}

	segmentOf := make(map[*Node]*Segment)
	for _, seg := range final {
		for _, n := range seg.Nodes {
			segmentOf[n] = seg
		}
	}
	return final, segmentOf
}

// replicaCountFor implements algorithms.py's replica rule: a segment with
// main-process affinity, or containing an Extractor, always runs as a single
// unreplicated instance; every other segment runs one replica per requested
// worker.
func replicaCountFor(nodes []*Node, workers int) int {
	for _, n := range nodes {
		if affinityOf(n) || n.Kind() == KindExtractor {
			return 1
		}
	}
	return workers
}

// splitConnected groups nodes into maximally connected components, where
// "connected" means reachable from one another via a directed path that
// stays entirely within nodes (ascendant or descendant, either direction).
func splitConnected(nodes []*Node) [][]*Node {
	if len(nodes) == 0 {
		return nil
	}
	inSet := make(map[*Node]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}
	visited := make(map[*Node]bool)
	var groups [][]*Node

	var component func(n *Node, acc *[]*Node)
	component = func(n *Node, acc *[]*Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		*acc = append(*acc, n)
		if n.upstream != nil && inSet[n.upstream] {
			component(n.upstream, acc)
		}
		for _, d := range n.downstreams {
			if inSet[d] {
				component(d, acc)
			}
		}
	}

	for _, n := range nodes {
		if visited[n] {
			continue
		}
		var acc []*Node
		component(n, &acc)
		sort.Slice(acc, func(i, j int) bool { return nodeOrder(nodes, acc[i]) < nodeOrder(nodes, acc[j]) })
		groups = append(groups, acc)
	}
	return groups
}

func nodeOrder(universe []*Node, n *Node) int {
	for i, m := range universe {
		if m == n {
			return i
		}
	}
	return -1
}

// ConnectorFor returns the connector the plan wired for the edge (from, to),
// or nil if no such edge exists.
func (p *Plan) ConnectorFor(from, to *Node) *Connector {
	return p.connectorOf[[2]*Node{from, to}]
}

// SegmentOf returns the segment a node was placed in.
func (p *Plan) SegmentOf(n *Node) *Segment {
	return p.segmentOf[n]
}

// CrossGroupConnectors returns every cross-segment connector the plan wired,
// keyed by (from, to) node identity. Used only by the metrics sampler in
// engine.go to expose observe.Metrics.QueueDepth — in-group connectors are
// segment-local and not sampled, since they're rebuilt fresh per replica and
// carry no cross-replica backpressure signal worth exporting.
func (p *Plan) CrossGroupConnectors() map[[2]*Node]*Connector {
	return p.connectorOf
}
