package lsra

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/schedule"
	"github.com/seaofnodes/sea/pkg/target"
)

// moveDiff compares move lists, looking through Location's private fields.
func moveDiff(want, got []Move) string {
	return cmp.Diff(want, got, cmp.AllowUnexported(Location{}))
}

func miniTarget(regs int) *target.Description {
	d := &target.Description{Name: "test", WordSize: 8}
	for i := 0; i < regs; i++ {
		d.Registers = append(d.Registers, target.Register{Num: i, Name: fmt.Sprintf("t%d", i)})
	}
	return d
}

func TestSplitAtDividesRangesAndUses(t *testing.T) {
	it := &Interval{}
	it.addRange(20, 30)
	it.addRange(4, 12)
	it.addUse(24)
	it.addUse(10)
	it.addUse(4)

	child := it.SplitAt(10)

	if it.From() != 4 || it.To() != 10 {
		t.Errorf("parent covers [%d,%d), want [4,10)", it.From(), it.To())
	}
	if child.From() != 10 || child.To() != 30 {
		t.Errorf("child covers [%d,%d), want [10,30)", child.From(), child.To())
	}
	if child.Parent() != it {
		t.Errorf("child parent = %v, want the split interval", child.Parent())
	}
	if got := it.NextUseAfter(0); got != 4 {
		t.Errorf("parent first use %d, want 4", got)
	}
	if got := child.NextUseAfter(0); got != 10 {
		t.Errorf("child first use %d, want 10", got)
	}
	if it.Covers(10) {
		t.Errorf("parent still covers the split position")
	}
	if !child.Covers(24) {
		t.Errorf("child lost coverage of 24")
	}
}

func TestChildAtFindsCoveringMember(t *testing.T) {
	it := &Interval{}
	it.addRange(0, 40)
	child := it.SplitAt(16)

	if got := it.childAt(8); got != it {
		t.Errorf("childAt(8) = %v, want the parent", got)
	}
	if got := it.childAt(16); got != child {
		t.Errorf("childAt(16) did not find the child")
	}
	// Past the end the last member starting before the position wins.
	if got := it.childAt(100); got != child {
		t.Errorf("childAt(100) = %v, want the child", got)
	}
}

func TestAddRangeCoalesces(t *testing.T) {
	it := &Interval{}
	it.addRange(20, 30)
	it.addRange(10, 14)
	// Extending across the gap must fold the two ranges into one.
	it.addRange(4, 22)

	if len(it.ranges) != 1 {
		t.Fatalf("%d ranges after coalescing, want 1", len(it.ranges))
	}
	if it.From() != 4 || it.To() != 30 {
		t.Errorf("coverage [%d,%d), want [4,30)", it.From(), it.To())
	}
}

func TestMoveChainEmitsInDependencyOrder(t *testing.T) {
	r := NewMoveResolver(VariantSSA, nil, nil)
	r.Add(Reg(0), Reg(1))
	r.Add(Reg(1), Reg(2))

	moves := r.Resolve()
	want := []Move{{Reg(1), Reg(2)}, {Reg(0), Reg(1)}}
	if diff := moveDiff(want, moves); diff != "" {
		t.Errorf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestSwapCycleBrokenByOneSpill(t *testing.T) {
	slots := 0
	newSlot := func() Location {
		s := Slot(slots)
		slots++
		return s
	}
	r := NewMoveResolver(VariantSSA, newSlot, nil)
	r.Add(Reg(0), Reg(1))
	r.Add(Reg(1), Reg(0))

	moves := r.Resolve()
	if slots != 1 {
		t.Errorf("%d spill slots used, want 1", slots)
	}
	want := []Move{{Reg(0), Slot(0)}, {Reg(1), Reg(0)}, {Slot(0), Reg(1)}}
	if diff := moveDiff(want, moves); diff != "" {
		t.Errorf("moves mismatch (-want +got):\n%s", diff)
	}
}

func TestSelfMoveElided(t *testing.T) {
	r := NewMoveResolver(VariantSSA, nil, nil)
	r.Add(Reg(3), Reg(3))
	if moves := r.Resolve(); len(moves) != 0 {
		t.Errorf("self-move emitted: %v", moves)
	}
}

func TestDuplicateTargetIsInternalError(t *testing.T) {
	r := NewMoveResolver(VariantSSA, nil, nil)
	r.Add(Reg(0), Reg(2))

	defer func() {
		v := recover()
		if v == nil {
			t.Fatalf("second move onto r2 accepted")
		}
		if _, ok := v.(*ir.InternalError); !ok {
			t.Fatalf("panic value %T, want *InternalError", v)
		}
	}()
	r.Add(Reg(1), Reg(2))
}

func TestReadOnlyTargetIsInternalError(t *testing.T) {
	readOnly := func(l Location) bool { return l.IsStack() && l.Num() == 0 }
	r := NewMoveResolver(VariantSSA, nil, readOnly)

	defer func() {
		if recover() == nil {
			t.Fatalf("move onto an incoming-argument slot accepted")
		}
	}()
	r.Add(Reg(0), Slot(0))
}

func TestDuplicateSourceDependsOnVariant(t *testing.T) {
	r := NewMoveResolver(VariantSSA, nil, nil)
	r.Add(Reg(0), Reg(1))
	r.Add(Reg(0), Reg(2))
	if moves := r.Resolve(); len(moves) != 2 {
		t.Errorf("duplicated source under ssa: %v", moves)
	}

	r = NewMoveResolver(VariantSSI, nil, nil)
	r.Add(Reg(0), Reg(1))
	defer func() {
		if recover() == nil {
			t.Fatalf("duplicate source accepted under ssi")
		}
	}()
	r.Add(Reg(0), Reg(2))
}

func straightLine(g *ir.Graph) ir.Node {
	start := ir.NewStart(g)
	p0 := ir.NewParam(g, 0, ir.KindI64)
	p1 := ir.NewParam(g, 1, ir.KindI64)
	sum := ir.NewAdd(g, p0, p1)
	ret := ir.NewReturn(g, sum)
	g.SetSuccessor(start, 0, ret)
	return sum
}

// checkNoRegisterOverlap fails if two interval chain members holding the
// same register cover a common position.
func checkNoRegisterOverlap(t *testing.T, a *Allocation) {
	t.Helper()
	var members []*Interval
	seen := make(map[*Interval]bool)
	for _, it := range a.intervals {
		p := it.Parent()
		if seen[p] {
			continue
		}
		seen[p] = true
		members = append(members, p)
		members = append(members, p.Children()...)
	}
	for i, x := range members {
		if !x.Location().IsRegister() {
			continue
		}
		for _, y := range members[i+1:] {
			if y.Location() != x.Location() {
				continue
			}
			if x.NextIntersectionAfter(y, 0) != posInfinity {
				t.Errorf("%s held by overlapping intervals of v%d and v%d",
					x.Location(), x.Value.ID(), y.Value.ID())
			}
		}
	}
}

func TestStraightLineAllocatesRegisters(t *testing.T) {
	g := ir.NewGraph("line")
	sum := straightLine(g)
	a := Run(schedule.Compute(g), target.AMD64(), VariantSSA)

	if loc := a.LocationOf(sum); !loc.IsRegister() {
		t.Errorf("sum allocated to %s, want a register", loc)
	}
	if a.SpillSlots != 0 {
		t.Errorf("%d spill slots without pressure", a.SpillSlots)
	}
	if len(a.Moves) != 0 {
		t.Errorf("resolution moves in a single block: %v", a.Moves)
	}
	checkNoRegisterOverlap(t, a)
}

func diamondWithPhi(g *ir.Graph) (*ir.PhiNode, *ir.MergeNode) {
	start := ir.NewStart(g)
	p := ir.NewParam(g, 0, ir.KindI64)
	cond := ir.NewLess(g, p, ir.NewConst(g, ir.KindI64, 10))

	tBegin := ir.NewBegin(g)
	fBegin := ir.NewBegin(g)
	branch := ir.NewIf(g, cond, tBegin, fBegin)
	g.SetSuccessor(start, 0, branch)

	tEnd := ir.NewEnd(g)
	g.SetSuccessor(tBegin, 0, tEnd)
	fEnd := ir.NewEnd(g)
	g.SetSuccessor(fBegin, 0, fEnd)

	merge := ir.NewMerge(g, tEnd, fEnd)
	phi := ir.NewPhi(g, merge, ir.KindI64,
		ir.NewAdd(g, p, ir.NewConst(g, ir.KindI64, 1)),
		ir.NewMul(g, p, p))
	ret := ir.NewReturn(g, phi)
	g.SetSuccessor(merge, 0, ret)
	return phi, merge
}

func TestPhiResolvedWithEdgeMoves(t *testing.T) {
	g := ir.NewGraph("diamond")
	phi, merge := diamondWithPhi(g)
	s := schedule.Compute(g)
	a := Run(s, target.AMD64(), VariantSSA)

	mergeBlk := s.Block(merge)
	if mergeBlk == nil {
		t.Fatalf("merge not scheduled")
	}
	dst := a.LocationOf(phi)
	if !dst.IsRegister() {
		t.Fatalf("phi allocated to %s, want a register", dst)
	}
	for _, pred := range mergeBlk.Preds {
		in := phi.ValueAt(predIndex(mergeBlk, pred))
		src := a.LocationOf(in)
		moves := a.Moves[Edge{From: pred, To: mergeBlk}]
		if src == dst {
			if len(moves) != 0 {
				t.Errorf("edge %s->%s: moves %v with matching locations", pred, mergeBlk, moves)
			}
			continue
		}
		if len(moves) != 1 || moves[0] != (Move{From: src, To: dst}) {
			t.Errorf("edge %s->%s: moves %v, want [%s -> %s]", pred, mergeBlk, moves, src, dst)
		}
	}
	checkNoRegisterOverlap(t, a)
}

func TestPreserveSSAStillMaterializesPhiDataFlow(t *testing.T) {
	g := ir.NewGraph("diamond-preserve")
	phi, merge := diamondWithPhi(g)
	s := schedule.Compute(g)
	a := Run(s, target.AMD64(), VariantPreserveSSA)

	mergeBlk := s.Block(merge)
	if mergeBlk == nil {
		t.Fatalf("merge not scheduled")
	}
	dst := a.LocationOf(phi)
	for _, pred := range mergeBlk.Preds {
		in := phi.ValueAt(predIndex(mergeBlk, pred))
		src := a.LocationOf(in)
		edge := Edge{From: pred, To: mergeBlk}

		// The phi's value still travels the edge under this variant.
		if src != dst {
			if diff := moveDiff([]Move{{From: src, To: dst}}, a.Moves[edge]); diff != "" {
				t.Errorf("edge %s->%s moves mismatch (-want +got):\n%s", pred, mergeBlk, diff)
			}
		}
		// And the mapping stays attributable to the phi group.
		if diff := moveDiff([]Move{{From: src, To: dst}}, a.PhiMoves[edge]); diff != "" {
			t.Errorf("edge %s->%s phi group mismatch (-want +got):\n%s", pred, mergeBlk, diff)
		}
	}
	checkNoRegisterOverlap(t, a)
}

// loadsThenSum builds count field loads followed by a sum of all of them,
// so every load stays live until the block's tail.
func loadsThenSum(g *ir.Graph, count int) {
	start := ir.NewStart(g)
	obj := ir.NewParam(g, 0, ir.KindPtr)
	var prev ir.Node = start
	loads := make([]ir.Node, count)
	for i := range loads {
		ld := ir.NewLoadField(g, obj, int64(8*i), ir.KindI64)
		g.SetSuccessor(prev, 0, ld)
		prev = ld
		loads[i] = ld
	}
	acc := loads[0]
	for _, l := range loads[1:] {
		acc = ir.NewAdd(g, acc, l)
	}
	ret := ir.NewReturn(g, acc)
	g.SetSuccessor(prev, 0, ret)
}

func TestRegisterPressureSpills(t *testing.T) {
	g := ir.NewGraph("pressure")
	loadsThenSum(g, 5)

	a := Run(schedule.Compute(g), miniTarget(2), VariantSSA)

	if a.SpillSlots == 0 {
		t.Errorf("six live values in two registers spilled nothing")
	}
	spilled := false
	for _, it := range a.intervals {
		if it.Location().IsStack() {
			spilled = true
		}
		for _, c := range it.Children() {
			if c.Location().IsStack() {
				spilled = true
			}
		}
	}
	if !spilled {
		t.Errorf("no interval ended up on the stack")
	}
	checkNoRegisterOverlap(t, a)
}

func TestSpillSlotsStartPastIncomingArguments(t *testing.T) {
	d := miniTarget(2)
	d.IncomingArgSlots = 3
	g := ir.NewGraph("args")
	loadsThenSum(g, 5)

	a := Run(schedule.Compute(g), d, VariantSSA)

	check := func(it *Interval) {
		if it.Location().IsStack() && it.Location().Num() < d.IncomingArgSlots {
			t.Errorf("v%d spilled into incoming-argument slot %s", it.Value.ID(), it.Location())
		}
	}
	for _, it := range a.intervals {
		check(it)
		for _, c := range it.Children() {
			check(c)
		}
	}
}
