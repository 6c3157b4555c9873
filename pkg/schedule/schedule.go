// Package schedule assigns every node to exactly one basic block and orders
// the nodes within each block. Fixed nodes keep their skeleton positions;
// floating nodes are scheduled by global code motion: an earliest block from
// their inputs, a latest block from their usages, and a final position on
// the dominator path between the two at the shallowest loop depth.
package schedule

import (
	"fmt"
	"strings"

	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/ir"
)

// Schedule is the result of placing and ordering a graph.
type Schedule struct {
	CFG *cfg.ControlFlowGraph

	blockOf map[ir.NodeID]*cfg.Block
	early   map[ir.NodeID]*cfg.Block
	ordered map[*cfg.Block][]ir.Node

	// LinearScanOrder numbers blocks for interval construction; the
	// emission order may differ for branch-friendly layout.
	LinearScanOrder []*cfg.Block
	EmissionOrder   []*cfg.Block
}

// Block returns the block a node was scheduled into.
func (s *Schedule) Block(n ir.Node) *cfg.Block { return s.blockOf[n.ID()] }

// Nodes returns the ordered nodes of a block (inputs before users).
func (s *Schedule) Nodes(b *cfg.Block) []ir.Node { return s.ordered[b] }

// Compute builds a fresh schedule for the graph's current state.
func Compute(g *ir.Graph) *Schedule {
	c := cfg.Compute(g)
	s := &Schedule{
		CFG:     c,
		blockOf: make(map[ir.NodeID]*cfg.Block),
		early:   make(map[ir.NodeID]*cfg.Block),
		ordered: make(map[*cfg.Block][]ir.Node),
	}

	for _, n := range g.Nodes() {
		s.scheduleEarly(n)
	}
	for _, n := range g.Nodes() {
		s.scheduleLate(n)
	}
	for _, b := range c.Blocks {
		s.orderBlock(b)
	}

	s.LinearScanOrder = c.Blocks
	s.EmissionOrder = emissionOrder(c)
	return s
}

// pinnedBlock returns the fixed position of nodes that are not free to
// move: fixed nodes, phis (their merge) and guards (their anchor).
func (s *Schedule) pinnedBlock(n ir.Node) *cfg.Block {
	switch t := n.(type) {
	case *ir.PhiNode:
		return s.pinnedBlock(t.Merge())
	case *ir.GuardNode:
		return s.pinnedBlock(t.Anchor())
	default:
		if n.Fixed() {
			if b := s.CFG.BlockFor(n); b != nil {
				return b
			}
			ir.Fatalf(n.Graph(), n, "fixed node outside the control skeleton")
		}
	}
	return nil
}

// scheduleEarly computes the earliest legal block: the deepest of the
// inputs' earliest blocks. Input-only recursion; value cycles always pass
// through a phi, which is pinned.
func (s *Schedule) scheduleEarly(n ir.Node) *cfg.Block {
	if b, ok := s.early[n.ID()]; ok {
		return b
	}
	if b := s.pinnedBlock(n); b != nil {
		s.early[n.ID()] = b
		return b
	}
	best := s.CFG.Entry()
	s.early[n.ID()] = best // breaks degenerate self-references
	for _, in := range n.Inputs() {
		if in == nil {
			continue
		}
		ib := s.scheduleEarly(in)
		if ib.DomDepth > best.DomDepth {
			best = ib
		}
	}
	s.early[n.ID()] = best
	return best
}

// scheduleLate computes the final block: the latest common dominator of all
// usage positions, hoisted toward the earliest block while that lowers the
// loop depth.
func (s *Schedule) scheduleLate(n ir.Node) *cfg.Block {
	if b, ok := s.blockOf[n.ID()]; ok {
		return b
	}
	if b := s.pinnedBlock(n); b != nil {
		s.blockOf[n.ID()] = b
		return b
	}

	var latest *cfg.Block
	for _, u := range n.Usages() {
		ub := s.useBlock(n, u)
		if ub == nil {
			continue
		}
		if latest == nil {
			latest = ub
		} else {
			latest = commonDominator(latest, ub)
		}
	}
	earliest := s.early[n.ID()]
	if latest == nil {
		latest = earliest
	}

	best := latest
	for b := latest; b != nil; b = b.Dom {
		if b.LoopDepth() < best.LoopDepth() {
			best = b
		}
		if b == earliest || b.DomDepth <= earliest.DomDepth {
			break
		}
	}
	s.blockOf[n.ID()] = best
	return best
}

// useBlock returns the block where a usage consumes n: phis consume their
// per-predecessor inputs at the end of the predecessor block. The edge is
// resolved through the merge's End input for that slot, not by position in
// Block.Preds, whose order follows leader node ids.
func (s *Schedule) useBlock(n ir.Node, user ir.Node) *cfg.Block {
	if phi, ok := user.(*ir.PhiNode); ok {
		mb := s.pinnedBlock(phi)
		merge := phi.Merge()
		var use *cfg.Block
		for i := 0; i < phi.ValueCount(); i++ {
			if phi.ValueAt(i) != n {
				continue
			}
			pb := s.CFG.BlockFor(merge.In(i))
			if pb == nil {
				pb = mb
			}
			if use == nil {
				use = pb
			} else {
				use = commonDominator(use, pb)
			}
		}
		if use == nil {
			return mb
		}
		return use
	}
	return s.scheduleLate(user)
}

func commonDominator(a, b *cfg.Block) *cfg.Block {
	for a != b {
		for a.DomDepth > b.DomDepth {
			a = a.Dom
		}
		for b.DomDepth > a.DomDepth {
			b = b.Dom
		}
		if a == b {
			break
		}
		a = a.Dom
		b = b.Dom
	}
	return a
}

// orderBlock lists a block's nodes with every input preceding its users.
// The fixed chain is the backbone; floating nodes are emitted before their
// first fixed consumer.
func (s *Schedule) orderBlock(b *cfg.Block) {
	var order []ir.Node
	emitted := make(map[ir.NodeID]bool)

	var emitDeps func(n ir.Node)
	emitDeps = func(n ir.Node) {
		for _, in := range n.Inputs() {
			if in == nil || in.Fixed() || emitted[in.ID()] {
				continue
			}
			if _, isPhi := in.(*ir.PhiNode); isPhi {
				continue // phis are emitted at the block head
			}
			if s.blockOf[in.ID()] != b {
				continue
			}
			emitted[in.ID()] = true
			emitDeps(in)
			order = append(order, in)
		}
	}

	// Phis first: they are live at block entry.
	for _, n := range s.CFG.Graph.Nodes() {
		if phi, ok := n.(*ir.PhiNode); ok && s.blockOf[phi.ID()] == b {
			emitted[phi.ID()] = true
			order = append(order, phi)
		}
	}
	for _, f := range b.Fixed {
		emitDeps(f)
		emitted[f.ID()] = true
		order = append(order, f)
	}
	// Remaining floating nodes of this block (used only downstream or by
	// phi inputs at block ends).
	for _, n := range s.CFG.Graph.Nodes() {
		if n.Fixed() || emitted[n.ID()] || s.blockOf[n.ID()] != b {
			continue
		}
		emitDeps(n)
		emitted[n.ID()] = true
		order = append(order, n)
	}
	s.ordered[b] = order
}

// emissionOrder lays blocks out for code emission: depth-first, following
// the likelier successor of each split so it becomes the fall-through.
func emissionOrder(c *cfg.ControlFlowGraph) []*cfg.Block {
	var order []*cfg.Block
	seen := make(map[*cfg.Block]bool)
	var worklist []*cfg.Block

	push := func(b *cfg.Block) {
		if b != nil && !seen[b] {
			worklist = append(worklist, b)
		}
	}
	push(c.Entry())
	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if seen[b] {
			continue
		}
		seen[b] = true
		order = append(order, b)

		if branch, ok := b.End.(*ir.IfNode); ok && len(b.Succs) == 2 {
			likely, unlikely := b.Succs[0], b.Succs[1]
			if branch.TrueProbability < 0.5 {
				likely, unlikely = unlikely, likely
			}
			// The likely successor is popped first.
			push(unlikely)
			push(likely)
			continue
		}
		for i := len(b.Succs) - 1; i >= 0; i-- {
			push(b.Succs[i])
		}
	}
	return order
}

// Dump renders the schedule for debug output.
func (s *Schedule) Dump() string {
	var sb strings.Builder
	for _, b := range s.LinearScanOrder {
		fmt.Fprintf(&sb, "%s:\n", b)
		for _, n := range s.ordered[b] {
			fmt.Fprintf(&sb, "  %s@%d\n", n.Op(), n.ID())
		}
	}
	return sb.String()
}
