package ir

import "fmt"

// InternalError reports an internal consistency failure: a dead-node
// reference, a broken edge invariant, or similar. It is fatal to the current
// compilation only; the pipeline recovers it at its boundary and discards
// the graph.
type InternalError struct {
	Msg   string
	Node  Node
	Graph *Graph
}

func (e *InternalError) Error() string {
	if e.Node != nil {
		return fmt.Sprintf("ir: internal error: %s (node %s %d)", e.Msg, e.Node.Op(), e.Node.ID())
	}
	return "ir: internal error: " + e.Msg
}

// Fatalf raises an InternalError via panic. Only the compilation driver may
// recover it.
func Fatalf(g *Graph, n Node, format string, args ...interface{}) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...), Node: n, Graph: g})
}
