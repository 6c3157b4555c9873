package loops

import (
	"testing"

	"github.com/seaofnodes/sea/pkg/canon"
	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/ir"
)

// upLoop builds `for (i = init; i < limit; i += stride)` and returns the
// counting phi.
func upLoop(g *ir.Graph, init, limit, stride int64) *ir.PhiNode {
	start := ir.NewStart(g)
	entryEnd := ir.NewEnd(g)
	g.SetSuccessor(start, 0, entryEnd)

	loop := ir.NewLoopBegin(g, entryEnd)
	phi := ir.NewPhi(g, loop, ir.KindI64, ir.NewConst(g, ir.KindI64, init))
	cond := ir.NewLess(g, phi, ir.NewConst(g, ir.KindI64, limit))

	body := ir.NewBegin(g)
	exit := ir.NewLoopExit(g, loop)
	branch := ir.NewIf(g, cond, body, exit)
	g.SetSuccessor(loop, 0, branch)

	le := ir.NewLoopEnd(g, loop)
	g.SetSuccessor(body, 0, le)
	g.AppendInput(phi, ir.NewAdd(g, phi, ir.NewConst(g, ir.KindI64, stride)))

	ret := ir.NewReturn(g, phi)
	g.SetSuccessor(exit, 0, ret)
	return phi
}

// downLoopInclusive builds `for (i = init; i >= limit; i--)`: the branch
// exits on i < limit, so the loop continues on the false successor.
func downLoopInclusive(g *ir.Graph, init, limit int64) *ir.PhiNode {
	start := ir.NewStart(g)
	entryEnd := ir.NewEnd(g)
	g.SetSuccessor(start, 0, entryEnd)

	loop := ir.NewLoopBegin(g, entryEnd)
	phi := ir.NewPhi(g, loop, ir.KindI64, ir.NewConst(g, ir.KindI64, init))
	cond := ir.NewLess(g, phi, ir.NewConst(g, ir.KindI64, limit))

	body := ir.NewBegin(g)
	exit := ir.NewLoopExit(g, loop)
	branch := ir.NewIf(g, cond, exit, body)
	g.SetSuccessor(loop, 0, branch)

	le := ir.NewLoopEnd(g, loop)
	g.SetSuccessor(body, 0, le)
	g.AppendInput(phi, ir.NewAdd(g, phi, ir.NewConst(g, ir.KindI64, -1)))

	ret := ir.NewReturn(g, phi)
	g.SetSuccessor(exit, 0, ret)
	return phi
}

func analyze(t *testing.T, g *ir.Graph) *Loop {
	t.Helper()
	d := Analyze(cfg.Compute(g))
	if len(d.Loops) != 1 {
		t.Fatalf("found %d loops, want 1", len(d.Loops))
	}
	return d.Loops[0]
}

func TestBasicInductionVariableUp(t *testing.T) {
	g := ir.NewGraph("up")
	phi := upLoop(g, 0, 10, 1)
	l := analyze(t, g)

	iv, ok := l.InductionVariable(phi).(*BasicInductionVariable)
	if !ok {
		t.Fatalf("counting phi not recognized as a basic induction variable")
	}
	if iv.Direction() != DirectionUp {
		t.Errorf("direction = %v, want up", iv.Direction())
	}
	if v, ok := iv.ConstantInit(); !ok || v != 0 {
		t.Errorf("init = %d (%v), want 0", v, ok)
	}
	if v, ok := iv.ConstantStride(); !ok || v != 1 {
		t.Errorf("stride = %d (%v), want 1", v, ok)
	}
}

func TestSubtractionFlipsDirection(t *testing.T) {
	g := ir.NewGraph("sub")
	start := ir.NewStart(g)
	entryEnd := ir.NewEnd(g)
	g.SetSuccessor(start, 0, entryEnd)

	loop := ir.NewLoopBegin(g, entryEnd)
	phi := ir.NewPhi(g, loop, ir.KindI64, ir.NewConst(g, ir.KindI64, 100))
	cond := ir.NewLess(g, ir.NewConst(g, ir.KindI64, 0), phi)

	body := ir.NewBegin(g)
	exit := ir.NewLoopExit(g, loop)
	branch := ir.NewIf(g, cond, body, exit)
	g.SetSuccessor(loop, 0, branch)
	le := ir.NewLoopEnd(g, loop)
	g.SetSuccessor(body, 0, le)
	// Back edge subtracts a provably positive stride.
	g.AppendInput(phi, ir.NewSub(g, phi, ir.NewConst(g, ir.KindI64, 1)))
	g.SetSuccessor(exit, 0, ir.NewReturn(g, phi))

	l := analyze(t, g)
	iv := l.InductionVariable(phi)
	if iv == nil {
		t.Fatalf("subtracting phi not recognized")
	}
	if iv.Direction() != DirectionDown {
		t.Errorf("direction = %v, want down", iv.Direction())
	}
	if v, ok := iv.(*BasicInductionVariable).ConstantStride(); !ok || v != -1 {
		t.Errorf("effective stride = %d (%v), want -1", v, ok)
	}
}

func TestDerivedInductionVariables(t *testing.T) {
	g := ir.NewGraph("derived")
	phi := upLoop(g, 0, 10, 1)
	offset := ir.NewAdd(g, phi, ir.NewConst(g, ir.KindI64, 4))
	scaled := ir.NewShl(g, phi, ir.NewConst(g, ir.KindI64, 3))
	negated := ir.NewNeg(g, phi)
	chained := ir.NewMul(g, offset, ir.NewConst(g, ir.KindI64, 2))

	l := analyze(t, g)

	if iv, ok := l.InductionVariable(offset).(*DerivedOffsetInductionVariable); !ok {
		t.Errorf("phi+4 not tracked as derived offset variable")
	} else if iv.Direction() != DirectionUp {
		t.Errorf("phi+4 direction = %v, want up", iv.Direction())
	}
	if iv, ok := l.InductionVariable(scaled).(*DerivedScaledInductionVariable); !ok {
		t.Errorf("phi<<3 not tracked as derived scaled variable")
	} else if v, _ := constValue(iv.Scale()); v != 8 {
		t.Errorf("phi<<3 scale = %d, want 8", v)
	}
	if iv, ok := l.InductionVariable(negated).(*DerivedNegatedInductionVariable); !ok {
		t.Errorf("-phi not tracked as negated variable")
	} else if iv.Direction() != DirectionDown {
		t.Errorf("-phi direction = %v, want down", iv.Direction())
	}
	if iv := l.InductionVariable(chained); iv == nil {
		t.Errorf("(phi+4)*2 not tracked through the derived chain")
	} else if iv.Root().Value() != ir.Node(phi) {
		t.Errorf("(phi+4)*2 does not root at the counting phi")
	}
}

func TestCountedLoopExclusiveUp(t *testing.T) {
	g := ir.NewGraph("counted-up")
	upLoop(g, 0, 10, 1)
	l := analyze(t, g)

	c := l.Counted()
	if c == nil {
		t.Fatalf("loop not recognized as counted")
	}
	if c.OneOff {
		t.Errorf("i < limit comparison marked inclusive")
	}
	trips, ok := c.MaxTripCount()
	if !ok || trips != 10 {
		t.Errorf("trip count = %d (%v), want 10", trips, ok)
	}
}

func TestCountedLoopInclusiveDown(t *testing.T) {
	g := ir.NewGraph("counted-down")
	downLoopInclusive(g, 10, 0)
	l := analyze(t, g)

	c := l.Counted()
	if c == nil {
		t.Fatalf("loop not recognized as counted")
	}
	if !c.OneOff {
		t.Errorf("i >= limit comparison not marked inclusive")
	}
	trips, ok := c.MaxTripCount()
	if !ok || trips != 11 {
		t.Errorf("trip count = %d (%v), want 11", trips, ok)
	}
}

func TestTripCountClampsToZero(t *testing.T) {
	g := ir.NewGraph("empty")
	upLoop(g, 20, 10, 1)
	l := analyze(t, g)

	c := l.Counted()
	if c == nil {
		t.Fatalf("loop not recognized as counted")
	}
	if trips, ok := c.MaxTripCount(); !ok || trips != 0 {
		t.Errorf("trip count = %d (%v), want 0", trips, ok)
	}
}

func TestOverflowGuardCreatedOnce(t *testing.T) {
	g := ir.NewGraph("overflow")
	upLoop(g, 0, 10, 1)
	l := analyze(t, g)

	c := l.Counted()
	if c == nil {
		t.Fatalf("loop not recognized as counted")
	}
	first := c.OverflowGuard()
	if first == nil {
		t.Fatalf("no overflow guard constructed")
	}
	if c.OverflowGuard() != first {
		t.Errorf("second query built a new guard instead of reusing the cache")
	}
	if l.Begin.OverflowGuard() != first {
		t.Errorf("guard not cached on the loop header")
	}
	gd, ok := first.(*ir.GuardNode)
	if !ok || gd.Reason != ir.ReasonLoopOverflow {
		t.Errorf("overflow guard carries the wrong reason")
	}
}

func TestOverflowGuardSurvivesDeadNodeSweep(t *testing.T) {
	g := ir.NewGraph("overflow-sweep")
	upLoop(g, 0, 10, 1)
	l := analyze(t, g)

	guard := l.Counted().OverflowGuard()
	if guard == nil {
		t.Fatalf("no overflow guard constructed")
	}

	// Nothing consumes the guard as a value; the header's input edge is
	// what keeps it out of the dead-node sweep.
	canon.Apply(g)
	if !guard.Alive() {
		t.Fatalf("overflow guard swept as dead")
	}
	if l.Begin.OverflowGuard() != guard {
		t.Errorf("guard no longer reachable from the loop header")
	}
}
