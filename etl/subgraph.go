package etl

// SubGraph is the handle returned by To: it remembers the root of the chain
// it was built from and the current set of open leaves, so that further
// calls to To extend the graph at those leaves.
//
// A SubGraph with more than one leaf (a fan-out that has not yet converged)
// cannot itself be used as the origin of a further To call — there is no
// single node to attach the new edge's "From" to. Passing it as a *target*
// is always fine: its root gains the origin as upstream, and its leaves
// become leaves of the resulting SubGraph.
type SubGraph struct {
	root       *Node
	leafNodes  []*Node
}

func (g *SubGraph) roots() []*Node  { return []*Node{g.root} }
func (g *SubGraph) leaves() []*Node { return g.leafNodes }

// Root returns the node the SubGraph's chain started from.
func (g *SubGraph) Root() *Node { return g.root }

// Leaves returns the current open ends of the SubGraph.
func (g *SubGraph) Leaves() []*Node { return g.leafNodes }

// To extends the SubGraph at its leaves, exactly like Node.To, but first
// requires the SubGraph to have exactly one leaf (ErrNodeConnection
// otherwise) — a multi-leaf fan-out cannot be chained further.
func (g *SubGraph) To(targets ...Connectable) (*SubGraph, error) {
	if len(g.leafNodes) != 1 {
		return nil, ErrNodeConnection
	}
	return connect(g.root, g.leafNodes[0], targets)
}

// connect implements the shared connection algebra used by both Node.To and
// SubGraph.To: it attaches every target's root(s) as a downstream of origin,
// rejecting a self-connection (ErrCyclicNode), a repeated (origin, target)
// pair (ErrAlreadyConnected), and a target that already has an upstream
// (ErrNodeConnection), and returns a SubGraph
// rooted at chainRoot whose leaves are the concatenation of each target's own
// leaves.
func connect(chainRoot, origin *Node, targets []Connectable) (*SubGraph, error) {
	var newLeaves []*Node
	for _, target := range targets {
		for _, root := range target.roots() {
			if root == origin {
				return nil, ErrCyclicNode
			}
			for _, existing := range origin.downstreams {
				if existing == root {
					return nil, ErrAlreadyConnected
				}
			}
			if root.upstream != nil {
				return nil, ErrNodeConnection
			}
			root.upstream = origin
			origin.downstreams = append(origin.downstreams, root)
		}
		newLeaves = append(newLeaves, target.leaves()...)
	}
	return &SubGraph{root: chainRoot, leafNodes: newLeaves}, nil
}
