package lsra

import (
	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/schedule"
)

// builder numbers the scheduled operations and constructs one interval per
// value-producing node, walking blocks in reverse linear-scan order.
type builder struct {
	sched *schedule.Schedule

	posOf     map[ir.NodeID]int
	blockFrom map[*cfg.Block]int
	blockTo   map[*cfg.Block]int

	intervals map[ir.NodeID]*Interval
	liveIn    map[*cfg.Block]map[ir.NodeID]ir.Node
}

// hasValue reports whether a node produces a register-allocatable value.
func hasValue(n ir.Node) bool {
	return n != nil && n.Stamp().Kind != ir.KindVoid
}

func newBuilder(s *schedule.Schedule) *builder {
	b := &builder{
		sched:     s,
		posOf:     make(map[ir.NodeID]int),
		blockFrom: make(map[*cfg.Block]int),
		blockTo:   make(map[*cfg.Block]int),
		intervals: make(map[ir.NodeID]*Interval),
		liveIn:    make(map[*cfg.Block]map[ir.NodeID]ir.Node),
	}
	b.number()
	b.build()
	return b
}

// number assigns even operation numbers in linear-scan block order; odd
// positions are reserved for moves inserted between operations.
func (b *builder) number() {
	pos := 0
	for _, blk := range b.sched.LinearScanOrder {
		b.blockFrom[blk] = pos
		for _, n := range b.sched.Nodes(blk) {
			b.posOf[n.ID()] = pos
			pos += 2
		}
		b.blockTo[blk] = pos
	}
}

func (b *builder) intervalOf(n ir.Node) *Interval {
	it, ok := b.intervals[n.ID()]
	if !ok {
		it = &Interval{Value: n}
		b.intervals[n.ID()] = it
	}
	return it
}

func (b *builder) build() {
	order := b.sched.LinearScanOrder
	for i := len(order) - 1; i >= 0; i-- {
		blk := order[i]
		bf, bt := b.blockFrom[blk], b.blockTo[blk]

		// Everything live into a successor (or consumed by one of its
		// phis over our edge) is live out of this block.
		live := make(map[ir.NodeID]ir.Node)
		for _, succ := range blk.Succs {
			for id, v := range b.liveIn[succ] {
				live[id] = v
			}
			for _, phi := range b.phisOf(succ) {
				in := phi.ValueAt(predIndex(succ, blk))
				if hasValue(in) {
					live[in.ID()] = in
				}
			}
		}
		for _, v := range live {
			b.intervalOf(v).addRange(bf, bt)
		}

		nodes := b.sched.Nodes(blk)
		for j := len(nodes) - 1; j >= 0; j-- {
			n := nodes[j]
			if phi, ok := n.(*ir.PhiNode); ok && phi.Merge() == blk.Begin {
				continue
			}
			pos := b.posOf[n.ID()]
			if hasValue(n) {
				it := b.intervalOf(n)
				it.setFrom(pos)
				it.addUse(pos)
				delete(live, n.ID())
			}
			for _, in := range n.Inputs() {
				if !hasValue(in) {
					continue
				}
				it := b.intervalOf(in)
				it.addRange(bf, pos)
				it.addUse(pos)
				live[in.ID()] = in
			}
		}

		// Phis define their value at the block entry; their inputs were
		// consumed at the predecessors' ends.
		for _, phi := range b.phisOf(blk) {
			if hasValue(phi) {
				b.intervalOf(phi).setFrom(bf)
				delete(live, phi.ID())
			}
		}

		// Values live at a loop header stay live through the whole loop.
		if blk.Loop != nil && blk.Loop.Header == blk {
			end := bt
			for _, lb := range blk.Loop.Blocks {
				if t, ok := b.blockTo[lb]; ok && t > end {
					end = t
				}
			}
			for _, v := range live {
				b.intervalOf(v).addRange(bf, end)
			}
		}

		b.liveIn[blk] = live
	}
}

func (b *builder) phisOf(blk *cfg.Block) []*ir.PhiNode {
	var out []*ir.PhiNode
	for _, u := range blk.Begin.Usages() {
		if phi, ok := u.(*ir.PhiNode); ok && phi.Alive() && phi.Merge() == blk.Begin {
			out = append(out, phi)
		}
	}
	return out
}

// predIndex returns which incoming edge of blk the predecessor pred is:
// the position of pred's closing End (or LoopEnd) in the merge's inputs.
func predIndex(blk, pred *cfg.Block) int {
	merge := blk.Begin
	for i, in := range merge.Inputs() {
		if in != nil && in == pred.End {
			return i
		}
	}
	ir.Fatalf(merge.Graph(), merge, "block %s is not a predecessor of %s", pred, blk)
	return -1
}
