// Package ir defines the graph-based SSA intermediate representation.
// The IR is a "sea of nodes": every computation and control point is a Node,
// value dependencies are input edges, and control flow is a chain of fixed
// nodes linked by successor edges. Usage edges are the derived inverse of
// input edges and are maintained by the Graph mutation primitives; all edge
// writes must go through those primitives.
package ir

// NodeID identifies a node within its owning graph. IDs are assigned
// monotonically and never reused, so a dead node's slot in the registry
// stays valid for diagnostics.
type NodeID int

// Node is implemented by every IR node. Concrete node types embed NodeBase
// and add their own attributes; passes dispatch on capability interfaces
// (Canonicalizable, Lowerable, Guarding) rather than concrete types.
type Node interface {
	ID() NodeID
	Graph() *Graph
	Op() string
	// Fixed reports whether the node has a position in the control-flow
	// skeleton. Floating nodes are scheduled freely subject to dominance
	// of their inputs.
	Fixed() bool
	Alive() bool
	Inputs() []Node
	// In returns the input in the given slot, or nil when the slot is
	// empty or out of range.
	In(slot int) Node
	InputCount() int
	Usages() []Node
	UsageCount() int
	Successors() []Node
	// Successor returns the successor in the given slot, or nil.
	Successor(slot int) Node
	Predecessor() Node
	Stamp() Stamp

	base() *NodeBase
}

// NodeBase carries the bookkeeping shared by all nodes: identity, the owning
// graph, the input edge list, the derived usage list, the successor edge
// list for fixed nodes, and the single control predecessor.
type NodeBase struct {
	id    NodeID
	graph *Graph
	alive bool

	inputs     []Node
	usages     []Node
	successors []Node
	pred       Node

	stamp Stamp
}

func (b *NodeBase) base() *NodeBase { return b }

// ID returns the node's identity within its graph.
func (b *NodeBase) ID() NodeID { return b.id }

// Graph returns the owning graph, or nil before the node is added.
func (b *NodeBase) Graph() *Graph { return b.graph }

// Alive reports whether the node has not been deleted.
func (b *NodeBase) Alive() bool { return b.alive }

// Inputs returns the ordered input edge list. Callers must not mutate it;
// edge writes go through the Graph primitives.
func (b *NodeBase) Inputs() []Node { return b.inputs }

// Usages returns the nodes that consume this node as an input. The list is
// a multiset: a node using this node in two slots appears twice.
func (b *NodeBase) Usages() []Node { return b.usages }

// Successors returns the ordered control successor list (fixed nodes only).
func (b *NodeBase) Successors() []Node { return b.successors }

// Predecessor returns the single fixed node whose successor edge points
// here, or nil.
func (b *NodeBase) Predecessor() Node { return b.pred }

// Stamp returns the value stamp. Control nodes carry VoidStamp.
func (b *NodeBase) Stamp() Stamp { return b.stamp }

// Fixed defaults to false; fixed node types override it.
func (b *NodeBase) Fixed() bool { return false }

// In returns the input in the given slot, or nil.
func (b *NodeBase) In(slot int) Node {
	if slot < 0 || slot >= len(b.inputs) {
		return nil
	}
	return b.inputs[slot]
}

// InputCount returns the number of input slots (including nil slots).
func (b *NodeBase) InputCount() int { return len(b.inputs) }

// UsageCount returns the number of usage edges.
func (b *NodeBase) UsageCount() int { return len(b.usages) }

// HasUsages reports whether any node consumes this one.
func (b *NodeBase) HasUsages() bool { return len(b.usages) > 0 }

// Successor returns the successor in the given slot, or nil.
func (b *NodeBase) Successor(slot int) Node {
	if slot < 0 || slot >= len(b.successors) {
		return nil
	}
	return b.successors[slot]
}

// --- Capability interfaces ---

// CanonTool gives Canonicalizable nodes access to the graph and constant
// construction during canonicalization.
type CanonTool interface {
	Graph() *Graph
	// Const returns a constant node for the value in the given kind,
	// adding it to the graph if needed.
	Const(kind Kind, value int64) Node
}

// Canonicalizable is implemented by nodes that can simplify themselves.
// Canonical returns the replacement node (possibly a new or existing node),
// or the receiver itself when no simplification applies.
type Canonicalizable interface {
	Node
	Canonical(tool CanonTool) Node
}

// LoweringTool is handed to Lowerable nodes. It is bound to the block being
// lowered: the anchor is the nearest preceding fixed node, and active guards
// are the guards proven to hold on entry to the block.
type LoweringTool interface {
	Graph() *Graph
	// Anchor returns the fixed node after which newly created fixed nodes
	// must be inserted.
	Anchor() Node
	// CreateGuard returns a guard for the condition, reusing an active
	// guard with equal (condition, negated) when one exists.
	CreateGuard(condition Node, negated bool, reason DeoptReason, action DeoptAction) Node
}

// Lowerable is implemented by high-level nodes that must be rewritten into
// low-level nodes before code generation.
type Lowerable interface {
	Node
	Lower(tool LoweringTool)
}

// Guarding is implemented by nodes that establish a deoptimization
// condition (GuardNode, and anything anchoring a proven condition).
type Guarding interface {
	Node
	Condition() Node
	Negated() bool
}
