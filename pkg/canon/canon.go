// Package canon runs the canonicalizer: a worklist pass that asks each
// Canonicalizable node for its simplified form, folds constant branches,
// and sweeps dead floating nodes. ApplySince restricts the work to nodes
// created after a mark, which inlining and lowering use for incremental
// re-canonicalization.
package canon

import (
	"github.com/seaofnodes/sea/pkg/ir"
)

type constKey struct {
	kind  ir.Kind
	value int64
}

// tool implements ir.CanonTool with constant deduplication.
type tool struct {
	g      *ir.Graph
	consts map[constKey]*ir.ConstNode
}

func newTool(g *ir.Graph) *tool {
	t := &tool{g: g, consts: make(map[constKey]*ir.ConstNode)}
	for _, c := range ir.NodesOf[*ir.ConstNode](g) {
		t.consts[constKey{c.Stamp().Kind, c.Value}] = c
	}
	return t
}

func (t *tool) Graph() *ir.Graph { return t.g }

func (t *tool) Const(kind ir.Kind, value int64) ir.Node {
	k := constKey{kind, value}
	if c, ok := t.consts[k]; ok && c.Alive() {
		return c
	}
	c := ir.NewConst(t.g, kind, value)
	t.consts[k] = c
	return c
}

// Apply canonicalizes the whole graph to a fixed point. Returns the number
// of graph changes.
func Apply(g *ir.Graph) int {
	return run(g, g.Nodes())
}

// ApplySince canonicalizes only nodes created after the mark (plus the
// transitive usages of anything it changes).
func ApplySince(g *ir.Graph, mark ir.Mark) int {
	return run(g, g.NodesSince(mark))
}

func run(g *ir.Graph, seed []ir.Node) int {
	t := newTool(g)
	changes := 0

	work := make([]ir.Node, len(seed))
	copy(work, seed)
	queued := make(map[ir.NodeID]bool, len(seed))
	for _, n := range seed {
		queued[n.ID()] = true
	}
	push := func(n ir.Node) {
		if n != nil && n.Alive() && !queued[n.ID()] {
			queued[n.ID()] = true
			work = append(work, n)
		}
	}

	for len(work) > 0 {
		n := work[len(work)-1]
		work = work[:len(work)-1]
		delete(queued, n.ID())
		if !n.Alive() {
			continue
		}

		if branch, ok := n.(*ir.IfNode); ok {
			if foldIf(g, branch, push) {
				changes++
			}
			continue
		}

		c, ok := n.(ir.Canonicalizable)
		if !ok {
			continue
		}
		repl := c.Canonical(t)
		if repl == nil || repl == ir.Node(n) {
			continue
		}
		// Usages of the replaced node may now simplify further.
		for _, u := range n.Usages() {
			push(u)
		}
		push(repl)
		if err := g.ReplaceAndDelete(n, repl); err != nil {
			// Fixed canonicalizable nodes are left to their passes.
			continue
		}
		changes++
	}

	changes += sweepDead(g)
	return changes
}

// sweepDead deletes floating nodes with no remaining usages.
func sweepDead(g *ir.Graph) int {
	removed := 0
	for {
		any := false
		for _, n := range g.Nodes() {
			if n.Fixed() || len(n.Usages()) > 0 {
				continue
			}
			if _, isParam := n.(*ir.ParamNode); isParam {
				continue // params stay for the register allocator's sake
			}
			g.Delete(n)
			removed++
			any = true
		}
		if !any {
			return removed
		}
	}
}
