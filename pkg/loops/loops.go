// Package loops analyzes the structured loops of a graph: it discovers
// induction variables rooted at loop-header phis, derives follow-on
// variables through the arithmetic that uses them, and recognizes counted
// loops with a computable trip count.
package loops

import (
	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/ir"
)

// Data is the loop analysis over one control flow graph.
type Data struct {
	CFG   *cfg.ControlFlowGraph
	Loops []*Loop
}

// Loop is the analysis view of one structured loop.
type Loop struct {
	data    *Data
	cfgLoop *cfg.Loop

	Begin *ir.LoopBeginNode

	// ivs maps a value node to the induction variable it represents.
	ivs map[ir.NodeID]InductionVariable

	counted   *CountedLoopInfo
	invariant map[ir.NodeID]bool
}

// Analyze computes loop data for every loop in the control flow graph.
func Analyze(c *cfg.ControlFlowGraph) *Data {
	d := &Data{CFG: c}
	for _, cl := range c.Loops {
		l := &Loop{
			data:      d,
			cfgLoop:   cl,
			Begin:     cl.Begin,
			ivs:       make(map[ir.NodeID]InductionVariable),
			invariant: make(map[ir.NodeID]bool),
		}
		l.findBasicInductionVariables()
		l.deriveInductionVariables()
		l.counted = detectCountedLoop(l)
		d.Loops = append(d.Loops, l)
	}
	return d
}

// LoopFor returns the analysis for the loop rooted at lb, or nil.
func (d *Data) LoopFor(lb *ir.LoopBeginNode) *Loop {
	for _, l := range d.Loops {
		if l.Begin == lb {
			return l
		}
	}
	return nil
}

// InductionVariable returns the induction variable represented by n, or nil.
func (l *Loop) InductionVariable(n ir.Node) InductionVariable {
	return l.ivs[n.ID()]
}

// InductionVariables returns all tracked variables of the loop.
func (l *Loop) InductionVariables() []InductionVariable {
	out := make([]InductionVariable, 0, len(l.ivs))
	for _, iv := range l.ivs {
		out = append(out, iv)
	}
	return out
}

// Counted returns the counted-loop view, or nil if the loop is not counted.
func (l *Loop) Counted() *CountedLoopInfo { return l.counted }

// IsInvariant reports whether n produces the same value on every iteration.
// Fixed nodes are invariant iff they sit outside the loop's blocks; floating
// nodes are invariant iff all their inputs are. Phis of this loop's header
// are never invariant.
func (l *Loop) IsInvariant(n ir.Node) bool {
	if n == nil {
		return true
	}
	if v, ok := l.invariant[n.ID()]; ok {
		return v
	}
	if n.Fixed() {
		v := !l.cfgLoop.ContainsNode(l.data.CFG, n)
		l.invariant[n.ID()] = v
		return v
	}
	if phi, ok := n.(*ir.PhiNode); ok && phi.Merge() == ir.Node(l.Begin) {
		l.invariant[n.ID()] = false
		return false
	}
	// Mark in-progress nodes variant so cyclic shapes stay conservative.
	l.invariant[n.ID()] = false
	v := true
	for _, in := range n.Inputs() {
		if !l.IsInvariant(in) {
			v = false
			break
		}
	}
	l.invariant[n.ID()] = v
	return v
}
