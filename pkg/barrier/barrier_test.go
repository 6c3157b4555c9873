package barrier

import (
	"testing"

	"github.com/seaofnodes/sea/pkg/ir"
)

func storeTo(g *ir.Graph, valueKind ir.Kind) *ir.WriteNode {
	start := ir.NewStart(g)
	obj := ir.NewParam(g, 0, ir.KindPtr)
	addr := ir.NewAdd(g, obj, ir.NewConst(g, ir.KindI64, 16))
	val := ir.NewParam(g, 1, valueKind)
	w := ir.NewWrite(g, addr, val, obj, nil)
	g.SetSuccessor(start, 0, w)
	ret := ir.NewReturn(g, nil)
	g.SetSuccessor(w, 0, ret)
	return w
}

func TestPointerStoreGetsBarrier(t *testing.T) {
	g := ir.NewGraph("ptr-store")
	w := storeTo(g, ir.KindPtr)

	if added := Apply(g); added != 1 {
		t.Fatalf("Apply added %d barriers, want 1", added)
	}
	b, ok := w.Successor(0).(*ir.WriteBarrierNode)
	if !ok {
		t.Fatalf("write's successor is %s, want a write barrier", w.Successor(0).Op())
	}
	if b.Object() != w.Object() {
		t.Errorf("barrier records the wrong object")
	}
}

func TestPrimitiveStoreNeedsNoBarrier(t *testing.T) {
	g := ir.NewGraph("int-store")
	storeTo(g, ir.KindI64)

	if added := Apply(g); added != 0 {
		t.Fatalf("Apply added %d barriers to a primitive store, want 0", added)
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	g := ir.NewGraph("idem")
	storeTo(g, ir.KindPtr)

	Apply(g)
	if added := Apply(g); added != 0 {
		t.Fatalf("second Apply added %d barriers, want 0", added)
	}
}
