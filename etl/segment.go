package etl

// segmentSink records where a segment's end-of-stream sentinels must be
// fanned out to once its last replica finishes: a downstream segment reached
// only through a cross-group connector, and how many of that segment's
// replicas are waiting for a sentinel.
type segmentSink struct {
	connector        *Connector
	downstreamReplicas int
}

// Segment is a maximal group of nodes sharing main-process affinity and
// mutual connectivity, as produced by BuildPlan (see planner.go). Each
// Segment is hosted by one or more segmentWorker replicas (segmentworker.go).
type Segment struct {
	ID       string
	Nodes    []*Node
	Replicas int

	// sinks lists the cross-group connectors this segment's nodes produce
	// into, paired with how many sentinels each needs once this segment's
	// last replica finishes.
	sinks []segmentSink
}

// nodeSet returns this segment's node identities as a lookup set, used by
// segmentWorker to tell in-group edges from cross-group ones (see
// segmentworker.go).
func (s *Segment) nodeSet() map[*Node]bool {
	set := make(map[*Node]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		set[n] = true
	}
	return set
}
