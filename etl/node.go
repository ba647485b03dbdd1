package etl

import (
	"context"
	"regexp"
	"strings"
)

// Kind identifies which of the six node shapes a Node wraps. The shape
// determines which interface its Impl must satisfy and which worker loop
// etl/nodeworker.go runs for it.
type Kind int

const (
	KindExtractor Kind = iota
	KindTransformer
	KindFilter
	KindLoader
	KindBulker
	KindDeBulker
)

func (k Kind) String() string {
	switch k {
	case KindExtractor:
		return "extractor"
	case KindTransformer:
		return "transformer"
	case KindFilter:
		return "filter"
	case KindLoader:
		return "loader"
	case KindBulker:
		return "bulker"
	case KindDeBulker:
		return "debulker"
	default:
		return "unknown"
	}
}

// Node is one vertex of an ETL graph. Values are produced by the kind-specific
// constructors in kinds.go (NewExtractor, NewTransformer, ...) and composed
// with To; Node itself is never constructed directly by callers outside the
// package.
type Node struct {
	// ID is assigned by the Planner during discovery (node_1, node_2, ...)
	// and is stable only within one Plan call.
	ID string
	// Name is either user-supplied (via WithName) or derived from the
	// underlying Impl's type name (see deriveName).
	Name string

	kind Kind
	impl any
	cfg  any

	upstream    *Node
	downstreams []*Node

	userName string // set by WithName; empty means "derive one"
}

// Kind reports which of the six node shapes this node wraps.
func (n *Node) Kind() Kind { return n.kind }

// Config returns the node's configuration record (one of ExtractorConfig,
// TransformerConfig, FilterConfig, LoaderConfig, BulkerConfig, DeBulkerConfig).
func (n *Node) Config() any { return n.cfg }

// Upstream returns the single node feeding this one, or nil for a root.
func (n *Node) Upstream() *Node { return n.upstream }

// Downstreams returns the nodes this node feeds, in connection order.
func (n *Node) Downstreams() []*Node { return n.downstreams }

// roots/leaves make Node satisfy Connectable: a bare node is both its own
// root and its own leaf until it is connected to something.
func (n *Node) roots() []*Node  { return []*Node{n} }
func (n *Node) leaves() []*Node { return []*Node{n} }

// To connects this node to one or more downstream targets and returns a
// SubGraph rooted at n, whose leaves are the concatenation of each target's
// own leaves. Each element of targets may be a *Node or a *SubGraph; passing
// several targets fans this node out to all of them.
//
// To is the idiomatic replacement for the operator-overload composition
// (origin >> target) that the original Python implementation used — Go has
// no operator overloading, so the same algebra is expressed as a method that
// any Connectable can call.
func (n *Node) To(targets ...Connectable) (*SubGraph, error) {
	return connect(n, n, targets)
}

// Connectable is implemented by *Node and *SubGraph: anything that can sit on
// either side of To.
type Connectable interface {
	roots() []*Node
	leaves() []*Node
}

var (
	matchFirstCap = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	matchAllCap   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// deriveName converts a Go type name such as "CSVExtractor" into
// "csv_extractor", matching cupyd's CamelCase-to-snake_case auto-naming.
func deriveName(typeName string) string {
	s := matchFirstCap.ReplaceAllString(typeName, "${1}_${2}")
	s = matchAllCap.ReplaceAllString(s, "${1}_${2}")
	return strings.ToLower(s)
}

// nodeNameRegex matches the set of characters a valid node name may contain,
// mirroring cupyd's NODE_NAME_REGEX. Names passed to WithName are not
// checked against it.
var nodeNameRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ctxKey is unexported; it namespaces values this package reads from a
// context.Context (currently just a run ID under runIDKey). Engine.Run does
// not store its run ID on the context; it attaches it to loggers instead.
type ctxKey struct{ name string }

var runIDKey = ctxKey{"etl.run_id"}

func runIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}
