package ir

import "fmt"

// Mark is a watermark over the node-creation sequence. Passes take a mark
// before creating nodes and later revisit only nodes created since; inlining
// and lowering use this for incremental re-canonicalization.
type Mark int

// Graph owns the node registry. Every node ever added stays in the registry
// (dead nodes keep their slot) so NodeIDs remain stable for diagnostics.
type Graph struct {
	Name string

	nodes     []Node // indexed by NodeID
	liveCount int
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{Name: name}
}

// Add assigns an identity to n and registers it. It is an internal error to
// add a node twice or to add a node owned by another graph.
func (g *Graph) Add(n Node) Node {
	b := n.base()
	if b.graph != nil {
		Fatalf(g, n, "node already belongs to graph %q", b.graph.Name)
	}
	b.graph = g
	b.id = NodeID(len(g.nodes))
	b.alive = true
	g.nodes = append(g.nodes, n)
	g.liveCount++
	// Inputs hooked up by the constructor before Add are not allowed;
	// edges must be created through the graph primitives below.
	if len(b.inputs) != 0 || len(b.successors) != 0 {
		Fatalf(g, n, "node added with pre-wired edges")
	}
	return n
}

// Node returns the node with the given id, dead or alive, or nil.
func (g *Graph) Node(id NodeID) Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// NodeCount returns the registry size, including dead placeholders.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// LiveCount returns the number of alive nodes.
func (g *Graph) LiveCount() int { return g.liveCount }

// Nodes returns the alive nodes in id order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, g.liveCount)
	for _, n := range g.nodes {
		if n.Alive() {
			out = append(out, n)
		}
	}
	return out
}

// Mark returns a watermark covering every node created so far.
func (g *Graph) Mark() Mark { return Mark(len(g.nodes)) }

// NodesSince returns the alive nodes created after the mark was taken.
func (g *Graph) NodesSince(m Mark) []Node {
	var out []Node
	for i := int(m); i < len(g.nodes); i++ {
		if g.nodes[i].Alive() {
			out = append(out, g.nodes[i])
		}
	}
	return out
}

// NodesOf returns the alive nodes of a concrete type, in id order.
func NodesOf[T Node](g *Graph) []T {
	var out []T
	for _, n := range g.nodes {
		if !n.Alive() {
			continue
		}
		if t, ok := n.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func (g *Graph) checkAlive(n Node, what string) {
	if n == nil {
		return
	}
	b := n.base()
	if b.graph != g {
		Fatalf(g, n, "%s belongs to a different graph", what)
	}
	if !b.alive {
		Fatalf(g, n, "%s references dead node", what)
	}
}

// --- Edge mutation primitives ---
//
// These are the only functions that write input, usage, successor or
// predecessor edges. Usage lists are the exact inverse of input lists
// graph-wide; predecessors are the inverse of successor edges.

func removeUsage(target, user Node) {
	u := target.base()
	for i, n := range u.usages {
		if n == user {
			last := len(u.usages) - 1
			u.usages[i] = u.usages[last]
			u.usages[last] = nil
			u.usages = u.usages[:last]
			return
		}
	}
	Fatalf(target.Graph(), target, "usage of %s %d not found", user.Op(), user.ID())
}

// SetInput sets input slot of n to target (nil clears the slot), updating
// the usage lists of both the old and the new target atomically.
func (g *Graph) SetInput(n Node, slot int, target Node) {
	g.checkAlive(n, "node")
	g.checkAlive(target, "input target")
	b := n.base()
	if slot < 0 || slot >= len(b.inputs) {
		Fatalf(g, n, "input slot %d out of range [0,%d)", slot, len(b.inputs))
	}
	old := b.inputs[slot]
	if old == target {
		return
	}
	if old != nil {
		removeUsage(old, n)
	}
	b.inputs[slot] = target
	if target != nil {
		t := target.base()
		t.usages = append(t.usages, n)
	}
}

// AppendInput adds a new input slot pointing at target and returns the slot
// index.
func (g *Graph) AppendInput(n Node, target Node) int {
	g.checkAlive(n, "node")
	b := n.base()
	b.inputs = append(b.inputs, nil)
	slot := len(b.inputs) - 1
	if target != nil {
		g.SetInput(n, slot, target)
	}
	return slot
}

// RemoveInput deletes input slot entirely, shrinking the input list.
func (g *Graph) RemoveInput(n Node, slot int) {
	g.checkAlive(n, "node")
	b := n.base()
	if slot < 0 || slot >= len(b.inputs) {
		Fatalf(g, n, "input slot %d out of range [0,%d)", slot, len(b.inputs))
	}
	if b.inputs[slot] != nil {
		removeUsage(b.inputs[slot], n)
	}
	b.inputs = append(b.inputs[:slot], b.inputs[slot+1:]...)
}

// ClearInputs drops every input edge of n.
func (g *Graph) ClearInputs(n Node) {
	b := n.base()
	for i, in := range b.inputs {
		if in != nil {
			removeUsage(in, n)
			b.inputs[i] = nil
		}
	}
}

// SetSuccessor sets control successor slot of n to target, maintaining the
// single-predecessor invariant on both the old and new target.
func (g *Graph) SetSuccessor(n Node, slot int, target Node) {
	g.checkAlive(n, "node")
	g.checkAlive(target, "successor target")
	b := n.base()
	if slot < 0 || slot >= len(b.successors) {
		Fatalf(g, n, "successor slot %d out of range [0,%d)", slot, len(b.successors))
	}
	old := b.successors[slot]
	if old == target {
		return
	}
	if old != nil {
		old.base().pred = nil
	}
	if target != nil {
		t := target.base()
		if t.pred != nil && t.pred != n {
			Fatalf(g, target, "node already has predecessor %s %d", t.pred.Op(), t.pred.ID())
		}
		t.pred = n
	}
	b.successors[slot] = target
}

// AppendSuccessor adds a successor slot pointing at target; returns the slot.
func (g *Graph) AppendSuccessor(n Node, target Node) int {
	g.checkAlive(n, "node")
	b := n.base()
	b.successors = append(b.successors, nil)
	slot := len(b.successors) - 1
	if target != nil {
		g.SetSuccessor(n, slot, target)
	}
	return slot
}

// ClearSuccessors drops every successor edge of n.
func (g *Graph) ClearSuccessors(n Node) {
	b := n.base()
	for i, s := range b.successors {
		if s != nil {
			s.base().pred = nil
			b.successors[i] = nil
		}
	}
}

// ReplaceAtUsages redirects every usage of old to point at new instead.
func (g *Graph) ReplaceAtUsages(old, new Node) {
	g.checkAlive(old, "node")
	g.checkAlive(new, "replacement")
	for old.base().HasUsages() {
		user := old.base().usages[0]
		ub := user.base()
		replaced := false
		for slot, in := range ub.inputs {
			if in == old {
				g.SetInput(user, slot, new)
				replaced = true
				break
			}
		}
		if !replaced {
			Fatalf(g, old, "usage list out of sync with %s %d", user.Op(), user.ID())
		}
	}
}

// ReplaceAtPredecessor redirects the predecessor's successor edge from old
// to new.
func (g *Graph) ReplaceAtPredecessor(old, new Node) {
	g.checkAlive(old, "node")
	pred := old.base().pred
	if pred == nil {
		return
	}
	pb := pred.base()
	for slot, s := range pb.successors {
		if s == old {
			g.SetSuccessor(pred, slot, nil)
			g.SetSuccessor(pred, slot, new)
			return
		}
	}
	Fatalf(g, old, "predecessor edge out of sync")
}

// ReplaceAndDelete redirects all usages of old to new and deletes old. It
// is an error to call it while old still sits in the control-flow skeleton
// (has a predecessor or live successors that were not redirected first).
func (g *Graph) ReplaceAndDelete(old, new Node) error {
	g.checkAlive(old, "node")
	g.checkAlive(new, "replacement")
	if old == new {
		return fmt.Errorf("ir: replacing node %d with itself", old.ID())
	}
	if old.Predecessor() != nil {
		return fmt.Errorf("ir: node %s %d still has a control predecessor", old.Op(), old.ID())
	}
	for _, s := range old.Successors() {
		if s != nil {
			return fmt.Errorf("ir: node %s %d still has control successors", old.Op(), old.ID())
		}
	}
	g.ReplaceAtUsages(old, new)
	g.Delete(old)
	return nil
}

// Delete marks n dead and removes its edges. Usages of n must be gone; a
// remaining usage is an internal consistency failure.
func (g *Graph) Delete(n Node) {
	g.checkAlive(n, "node")
	b := n.base()
	if b.HasUsages() {
		Fatalf(g, n, "deleting node with %d usages", b.UsageCount())
	}
	if b.pred != nil {
		Fatalf(g, n, "deleting node with a control predecessor")
	}
	g.ClearInputs(n)
	g.ClearSuccessors(n)
	b.alive = false
	g.liveCount--
}

// InsertAfter splices newFixed into the control chain directly after pos:
// pos's first successor becomes newFixed's successor, and pos now flows to
// newFixed. Both nodes must be fixed with a single successor slot.
func (g *Graph) InsertAfter(pos, newFixed Node) {
	g.checkAlive(pos, "position")
	g.checkAlive(newFixed, "inserted node")
	if !pos.Fixed() || !newFixed.Fixed() {
		Fatalf(g, newFixed, "InsertAfter requires fixed nodes")
	}
	if len(pos.Successors()) != 1 || len(newFixed.Successors()) != 1 {
		Fatalf(g, newFixed, "InsertAfter requires single-successor nodes")
	}
	next := pos.Successor(0)
	g.SetSuccessor(pos, 0, nil)
	if next != nil {
		g.SetSuccessor(newFixed, 0, next)
	}
	g.SetSuccessor(pos, 0, newFixed)
}

// RemoveFixed unlinks a single-successor fixed node from the control chain,
// reconnecting its predecessor to its successor. Value usages of n must
// already be redirected.
func (g *Graph) RemoveFixed(n Node) {
	g.checkAlive(n, "node")
	if len(n.Successors()) != 1 {
		Fatalf(g, n, "RemoveFixed requires a single-successor node")
	}
	next := n.Successor(0)
	g.SetSuccessor(n, 0, nil)
	if pred := n.Predecessor(); pred != nil {
		pb := pred.base()
		for slot, s := range pb.successors {
			if s == n {
				g.SetSuccessor(pred, slot, nil)
				g.SetSuccessor(pred, slot, next)
				break
			}
		}
	}
	if n.base().HasUsages() {
		Fatalf(g, n, "removing fixed node with remaining usages")
	}
	g.Delete(n)
}
