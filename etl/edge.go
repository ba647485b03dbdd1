package etl

// edge is an ordered (origin, target) pair discovered while walking the
// graph from its root. Edges are deduplicated by the Planner during
// discovery (see planner.go's discover); the exported Plan only needs the
// node list and segment assignment, so edge stays unexported.
type edge struct {
	from *Node
	to   *Node
}
