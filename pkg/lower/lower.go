// Package lower drives the iterative rewrite of high-level nodes into
// explicit low-level form. Each round computes a fresh schedule, walks the
// dominator tree, and lowers every high-level node it meets with a tool
// bound to the nearest preceding fixed node and the guards already proven
// on the path from the entry. Nodes whose insertion point was deleted
// earlier in the same round are deferred to the next one; the phase stops
// when a round lowers nothing and defers nothing.
package lower

import (
	"github.com/seaofnodes/sea/pkg/canon"
	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/schedule"
)

// maxRounds bounds the fixed-point loop; a graph that keeps producing new
// high-level nodes is malformed.
const maxRounds = 100

// Apply lowers the graph to a fixed point and returns the number of nodes
// rewritten.
func Apply(g *ir.Graph) int {
	total := 0
	for round := 0; ; round++ {
		if round >= maxRounds {
			ir.Fatalf(g, nil, "lowering still finds high-level nodes after %d rounds", maxRounds)
		}
		mark := g.Mark()
		s := schedule.Compute(g)
		w := &walker{
			g:        g,
			active:   make(map[guardKey]ir.Node),
			conds:    make(map[condKey]ir.Node),
			children: domChildren(s.CFG),
		}
		w.visit(s.CFG.Entry())
		canon.ApplySince(g, mark)
		total += w.lowered
		if w.lowered == 0 && w.deferred == 0 {
			return total
		}
	}
}

type guardKey struct {
	condition ir.NodeID
	negated   bool
}

// condKey identifies a floating condition by shape, so the fresh condition
// nodes each lowering builds unify with equal ones seen earlier in the
// round.
type condKey struct {
	op   string
	x, y ir.NodeID
}

func condKeyOf(cond ir.Node) condKey {
	k := condKey{op: cond.Op()}
	ins := cond.Inputs()
	if len(ins) > 0 && ins[0] != nil {
		k.x = ins[0].ID()
	}
	if len(ins) > 1 && ins[1] != nil {
		k.y = ins[1].ID()
	}
	return k
}

// walker lowers one round. It doubles as the ir.LoweringTool handed to the
// nodes, bound to the current block position.
type walker struct {
	g        *ir.Graph
	anchor   ir.Node
	active   map[guardKey]ir.Node
	added    []guardKey // registration order, for block-scoped retraction
	conds    map[condKey]ir.Node
	children map[*cfg.Block][]*cfg.Block

	lowered  int
	deferred int
}

func (w *walker) Graph() *ir.Graph { return w.g }
func (w *walker) Anchor() ir.Node  { return w.anchor }

// CreateGuard reuses an active guard with equal condition and negation, or
// creates one anchored at the current position. Conditions unify by shape,
// so the fresh condition a lowering builds matches an equal one from
// earlier; the orphaned duplicate is swept by the round's canonicalization.
func (w *walker) CreateGuard(condition ir.Node, negated bool, reason ir.DeoptReason, action ir.DeoptAction) ir.Node {
	condition = w.intern(condition)
	key := guardKey{condition.ID(), negated}
	if g, ok := w.active[key]; ok && g.Alive() {
		return g
	}
	guard := ir.NewGuard(w.g, condition, w.anchor, negated, reason, action)
	w.register(key, guard)
	return guard
}

func (w *walker) intern(cond ir.Node) ir.Node {
	k := condKeyOf(cond)
	if c, ok := w.conds[k]; ok && c.Alive() {
		return c
	}
	w.conds[k] = cond
	return cond
}

func (w *walker) register(key guardKey, guard ir.Node) {
	if _, exists := w.active[key]; exists {
		return
	}
	w.active[key] = guard
	w.added = append(w.added, key)
}

// visit lowers one block, then its dominator-tree children. Guards proven
// in this block stay active below it and are retracted on the way out.
func (w *walker) visit(b *cfg.Block) {
	mark := len(w.added)
	anchor := ir.Node(nil)

	for _, n := range b.Fixed {
		if !n.Alive() {
			// Deleted earlier this round.
			continue
		}
		// Guards anchored here become available to everything after.
		for _, u := range n.Usages() {
			if gd, ok := u.(*ir.GuardNode); ok && gd.Anchor() == n {
				w.register(guardKey{w.intern(gd.Condition()).ID(), gd.Negated()}, gd)
			}
		}
		hl, ok := n.(ir.Lowerable)
		if !ok {
			anchor = n
			continue
		}
		if anchor == nil || !anchor.Alive() {
			// The insertion point vanished; retry after rescheduling.
			w.deferred++
			continue
		}
		w.anchor = anchor
		hl.Lower(w)
		w.lowered++
		if n.Alive() {
			anchor = n
		}
	}

	for _, child := range w.children[b] {
		w.visit(child)
	}
	for _, key := range w.added[mark:] {
		delete(w.active, key)
	}
	w.added = w.added[:mark]
}

func domChildren(c *cfg.ControlFlowGraph) map[*cfg.Block][]*cfg.Block {
	out := make(map[*cfg.Block][]*cfg.Block)
	for _, b := range c.Blocks {
		if b.Dom != nil {
			out[b.Dom] = append(out[b.Dom], b)
		}
	}
	return out
}
