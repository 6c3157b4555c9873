package schedule

import (
	"testing"

	"github.com/seaofnodes/sea/pkg/ir"
)

// branchWithSharedValue builds a diamond where an Add is used only in the
// true branch and a Mul is used after the merge.
func branchWithSharedValue(g *ir.Graph) (add, mul ir.Node) {
	start := ir.NewStart(g)
	p := ir.NewParam(g, 0, ir.KindI64)
	cond := ir.NewLess(g, p, ir.NewConst(g, ir.KindI64, 10))

	tBegin := ir.NewBegin(g)
	fBegin := ir.NewBegin(g)
	branch := ir.NewIf(g, cond, tBegin, fBegin)
	g.SetSuccessor(start, 0, branch)

	add = ir.NewAdd(g, p, ir.NewConst(g, ir.KindI64, 1))
	tStore := ir.NewStoreField(g, ir.NewConst(g, ir.KindPtr, 8), add, 0, ir.KindI64)
	g.SetSuccessor(tBegin, 0, tStore)
	tEnd := ir.NewEnd(g)
	g.SetSuccessor(tStore, 0, tEnd)

	fEnd := ir.NewEnd(g)
	g.SetSuccessor(fBegin, 0, fEnd)

	merge := ir.NewMerge(g, tEnd, fEnd)
	mul = ir.NewMul(g, p, p)
	ret := ir.NewReturn(g, mul)
	g.SetSuccessor(merge, 0, ret)
	return add, mul
}

func TestFloatingNodesSink(t *testing.T) {
	g := ir.NewGraph("sink")
	add, mul := branchWithSharedValue(g)
	s := Compute(g)

	addBlock := s.Block(add)
	if addBlock == nil {
		t.Fatalf("add not scheduled")
	}
	// The add is used only in the true branch and must sink there.
	store := add.Usages()[0]
	if addBlock != s.Block(store) {
		t.Errorf("add scheduled in %s, want the store's block %s", addBlock, s.Block(store))
	}
	// The mul is used by the return after the merge.
	retBlock := s.Block(mul.Usages()[0])
	if s.Block(mul) != retBlock {
		t.Errorf("mul scheduled in %s, want %s", s.Block(mul), retBlock)
	}
}

func TestPhiInputSchedulesInItsEdgeBlock(t *testing.T) {
	g := ir.NewGraph("phiedge")
	start := ir.NewStart(g)
	p := ir.NewParam(g, 0, ir.KindI64)
	obj := ir.NewParam(g, 1, ir.KindPtr)
	cond := ir.NewLess(g, p, ir.NewConst(g, ir.KindI64, 10))

	// The false-side Begin is created first so its leader id is smaller
	// and Block.Preds order disagrees with the merge's End-input order.
	fBegin := ir.NewBegin(g)
	tBegin := ir.NewBegin(g)
	branch := ir.NewIf(g, cond, tBegin, fBegin)
	g.SetSuccessor(start, 0, branch)

	load := ir.NewLoadField(g, obj, 0, ir.KindI64)
	g.SetSuccessor(tBegin, 0, load)
	tEnd := ir.NewEnd(g)
	g.SetSuccessor(load, 0, tEnd)

	fEnd := ir.NewEnd(g)
	g.SetSuccessor(fBegin, 0, fEnd)

	merge := ir.NewMerge(g, tEnd, fEnd)
	inc := ir.NewAdd(g, load, ir.NewConst(g, ir.KindI64, 1))
	phi := ir.NewPhi(g, merge, ir.KindI64, inc, p)
	ret := ir.NewReturn(g, phi)
	g.SetSuccessor(merge, 0, ret)

	s := Compute(g)

	// The inc flows into the phi over the true edge only; it must land
	// in the block of its own operand, not the other predecessor.
	incBlock := s.Block(inc)
	loadBlock := s.Block(load)
	if incBlock != loadBlock {
		t.Errorf("inc scheduled in %s, want its operand's block %s", incBlock, loadBlock)
	}
}

func TestInputsPrecedeUsersInBlockOrder(t *testing.T) {
	g := ir.NewGraph("order")
	branchWithSharedValue(g)
	s := Compute(g)

	for _, b := range s.LinearScanOrder {
		pos := make(map[ir.NodeID]int)
		for i, n := range s.Nodes(b) {
			pos[n.ID()] = i
		}
		for _, n := range s.Nodes(b) {
			if _, isPhi := n.(*ir.PhiNode); isPhi {
				continue
			}
			for _, in := range n.Inputs() {
				if in == nil {
					continue
				}
				if ipos, here := pos[in.ID()]; here && ipos > pos[n.ID()] {
					t.Errorf("%s: input %s@%d ordered after user %s@%d",
						b, in.Op(), in.ID(), n.Op(), n.ID())
				}
			}
		}
	}
}

func TestEveryNodeScheduledExactlyOnce(t *testing.T) {
	g := ir.NewGraph("once")
	branchWithSharedValue(g)
	s := Compute(g)

	count := make(map[ir.NodeID]int)
	for _, b := range s.LinearScanOrder {
		for _, n := range s.Nodes(b) {
			count[n.ID()]++
		}
	}
	for _, n := range g.Nodes() {
		if count[n.ID()] != 1 {
			t.Errorf("%s@%d scheduled %d times", n.Op(), n.ID(), count[n.ID()])
		}
	}
}

func TestLoopInvariantHoisting(t *testing.T) {
	g := ir.NewGraph("hoist")
	start := ir.NewStart(g)
	entryEnd := ir.NewEnd(g)
	g.SetSuccessor(start, 0, entryEnd)

	loop := ir.NewLoopBegin(g, entryEnd)
	p := ir.NewParam(g, 0, ir.KindI64)
	invariant := ir.NewMul(g, p, p)
	phi := ir.NewPhi(g, loop, ir.KindI64, ir.NewConst(g, ir.KindI64, 0))
	cond := ir.NewLess(g, phi, ir.NewConst(g, ir.KindI64, 10))

	body := ir.NewBegin(g)
	exit := ir.NewLoopExit(g, loop)
	branch := ir.NewIf(g, cond, body, exit)
	g.SetSuccessor(loop, 0, branch)

	// The loop body consumes the invariant value each iteration.
	store := ir.NewStoreField(g, ir.NewConst(g, ir.KindPtr, 8), invariant, 0, ir.KindI64)
	g.SetSuccessor(body, 0, store)
	le := ir.NewLoopEnd(g, loop)
	g.SetSuccessor(store, 0, le)
	g.AppendInput(phi, ir.NewAdd(g, phi, ir.NewConst(g, ir.KindI64, 1)))

	ret := ir.NewReturn(g, phi)
	g.SetSuccessor(exit, 0, ret)

	s := Compute(g)
	if d := s.Block(invariant).LoopDepth(); d != 0 {
		t.Errorf("loop-invariant mul scheduled at loop depth %d, want 0", d)
	}
}

func TestEmissionOrderCoversAllBlocks(t *testing.T) {
	g := ir.NewGraph("orders")
	branchWithSharedValue(g)
	s := Compute(g)

	if len(s.EmissionOrder) != len(s.LinearScanOrder) {
		t.Fatalf("emission order has %d blocks, linear scan order %d",
			len(s.EmissionOrder), len(s.LinearScanOrder))
	}
	if s.EmissionOrder[0] != s.CFG.Entry() {
		t.Errorf("emission order does not start at the entry block")
	}
}
