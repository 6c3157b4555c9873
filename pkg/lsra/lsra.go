package lsra

import (
	"sort"

	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/schedule"
	"github.com/seaofnodes/sea/pkg/target"
)

// Edge is one control-flow edge between scheduled blocks.
type Edge struct {
	From, To *cfg.Block
}

// Allocation is the completed register allocation: every value interval
// (and each split child) carries a register or stack slot, and each block
// edge carries the resolution moves connecting the two sides.
type Allocation struct {
	Variant  Variant
	Schedule *schedule.Schedule

	intervals map[ir.NodeID]*Interval

	Moves map[Edge][]Move
	// PhiMoves, populated under VariantPreserveSSA, records each edge's
	// phi-input mappings as their own group so later SSA-form passes can
	// still attribute them to phis. The mappings are sequenced into
	// Moves together with the live-range moves either way.
	PhiMoves map[Edge][]Move

	SpillSlots int
}

// IntervalFor returns the parent interval of a value, or nil.
func (a *Allocation) IntervalFor(n ir.Node) *Interval { return a.intervals[n.ID()] }

// LocationOf returns the location assigned at the value's definition.
func (a *Allocation) LocationOf(n ir.Node) Location {
	it := a.intervals[n.ID()]
	if it == nil {
		return NoLocation
	}
	return it.location
}

// Run allocates registers for a scheduled graph.
func Run(s *schedule.Schedule, d *target.Description, variant Variant) *Allocation {
	b := newBuilder(s)

	w := &walker{numRegs: d.NumRegisters(), firstSlot: d.IncomingArgSlots}
	all := make([]*Interval, 0, len(b.intervals))
	for _, it := range b.intervals {
		all = append(all, it)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].From() != all[j].From() {
			return all[i].From() < all[j].From()
		}
		return all[i].Value.ID() < all[j].Value.ID()
	})
	for _, it := range all {
		w.enqueue(it)
	}
	w.walk()

	a := &Allocation{
		Variant:   variant,
		Schedule:  s,
		intervals: b.intervals,
		Moves:     make(map[Edge][]Move),
		PhiMoves:  make(map[Edge][]Move),
	}
	readOnly := func(l Location) bool {
		return l.IsStack() && l.Num() < d.IncomingArgSlots
	}
	a.resolveDataFlow(b, w, readOnly)
	a.SpillSlots = w.spillSlots
	return a
}

// resolveDataFlow connects the two sides of every block edge: each value
// live across the edge (and each phi of the successor) moves from its
// location at the predecessor's end to its location at the successor's
// start.
func (a *Allocation) resolveDataFlow(b *builder, w *walker, readOnly func(Location) bool) {
	for _, blk := range b.sched.LinearScanOrder {
		endPos := b.blockTo[blk] - 1
		for _, succ := range blk.Succs {
			startPos := b.blockFrom[succ]
			r := NewMoveResolver(a.Variant, w.newSpillSlot, readOnly)

			for _, v := range sortedValues(b.liveIn[succ]) {
				it := b.intervals[v.ID()]
				if it == nil {
					continue
				}
				src := it.childAt(endPos).Location()
				dst := it.childAt(startPos).Location()
				if src.IsNone() || dst.IsNone() {
					continue
				}
				r.Add(src, dst)
			}
			for _, phi := range b.phisOf(succ) {
				if !hasValue(phi) {
					continue
				}
				in := phi.ValueAt(predIndex(succ, blk))
				if !hasValue(in) {
					continue
				}
				src := b.intervals[in.ID()].childAt(endPos).Location()
				dst := b.intervals[phi.ID()].childAt(startPos).Location()
				if src.IsNone() || dst.IsNone() {
					continue
				}
				r.Add(src, dst)
				if a.Variant == VariantPreserveSSA {
					e := Edge{From: blk, To: succ}
					a.PhiMoves[e] = append(a.PhiMoves[e], Move{From: src, To: dst})
				}
			}

			if moves := r.Resolve(); len(moves) > 0 {
				a.Moves[Edge{From: blk, To: succ}] = moves
			}
		}
	}
}

func sortedValues(set map[ir.NodeID]ir.Node) []ir.Node {
	out := make([]ir.Node, 0, len(set))
	for _, v := range set {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
