package etl

import "fmt"

// Action identifies which phase of a node worker's lifecycle produced a
// NodeException, matching cupyd's node_exception.py action tags.
type Action string

const (
	ActionStart         Action = "start"
	ActionFinalize      Action = "finalize"
	ActionGenerateBatch Action = "generate_batch"
	ActionProduceBatch  Action = "produce_batch"
	ActionProduceTiming Action = "produce_timing"
	ActionProcessBatch  Action = "process_batch"
	ActionConsumeBatch  Action = "consume_batch"
	ActionUpdateCounter Action = "update_counter"
)

// NodeException records one node worker failure: the underlying error, which
// lifecycle phase produced it, and the node it came from. The engine keeps
// only the first NodeException per node (see nodeworker.go) and the first
// overall across all nodes when building the final ETLExecutionError.
type NodeException struct {
	NodeName string
	Action   Action
	Cause    error
}

func (e *NodeException) Error() string {
	return fmt.Sprintf("node %q failed during %s: %v", e.NodeName, e.Action, e.Cause)
}

func (e *NodeException) Unwrap() error { return e.Cause }
