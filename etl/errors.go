package etl

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the graph-construction algebra (Node.To /
// SubGraph.To). They are synchronous and fatal only to the build call that
// produced them — no worker has been launched yet when one of these is
// returned.
var (
	// ErrCyclicNode is returned when a node is connected to itself.
	ErrCyclicNode = errors.New("etl: node cannot connect to itself")

	// ErrAlreadyConnected is returned when the same (origin, target) pair is
	// connected more than once.
	ErrAlreadyConnected = errors.New("etl: nodes are already connected")

	// ErrNodeConnection covers every other illegal connection: a target that
	// already has an upstream, or chaining further off a SubGraph with more
	// than one leaf.
	ErrNodeConnection = errors.New("etl: invalid node connection")
)

// errFieldNotFound is raised when a Transformer/Filter/Loader configured
// with InputKey receives an item that does not expose that key (see
// kinds.go's fieldOf).
func errFieldNotFound(key string) error {
	return fmt.Errorf("etl: input_key %q not found on item", key)
}

// errNotABulk is raised by a DeBulker when an incoming item is not the []any
// bulk shape a Bulker produces.
var errNotABulk = errors.New("etl: debulker received an item that is not a bulk")

// ETLExecutionError is returned by Engine.Run when one or more node workers
// captured an exception, whether or not a signal was also received (node
// failures take precedence over InterruptedETL). It wraps the first captured
// failure in discovery order — later failures from other nodes are logged
// but not chained, matching the engine's first-wins precedence (see
// Engine.Run).
type ETLExecutionError struct {
	// FailedNodes lists the names of every node that reported an error,
	// sorted by name.
	FailedNodes []string
	// Cause is the first captured NodeException's underlying error.
	Cause error
}

func (e *ETLExecutionError) Error() string {
	return fmt.Sprintf("etl: run failed in node(s) %s: %v", strings.Join(e.FailedNodes, ", "), e.Cause)
}

func (e *ETLExecutionError) Unwrap() error { return e.Cause }

// InterruptedETL is returned by Engine.Run when a termination signal was
// received and no node reported an error. It is only returned when the run
// was built with RaiseExceptionIfInterrupted (the default).
type InterruptedETL struct {
	Signal string
}

func (e *InterruptedETL) Error() string {
	return fmt.Sprintf("etl: run interrupted by signal %s", e.Signal)
}

// ConfigurationError wraps a node configuration validation failure, raised
// synchronously from the kind-specific constructor (NewExtractor,
// NewTransformer, ...) before the node ever reaches BuildPlan.
type ConfigurationError struct {
	NodeName string
	Cause    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("etl: invalid configuration for node %q: %v", e.NodeName, e.Cause)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }
