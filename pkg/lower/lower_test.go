package lower

import (
	"testing"

	"github.com/seaofnodes/sea/pkg/ir"
)

// fieldLoad builds `return obj.f8` with the load still in high-level form.
func fieldLoad(g *ir.Graph) (*ir.LoadFieldNode, *ir.ReturnNode) {
	start := ir.NewStart(g)
	obj := ir.NewParam(g, 0, ir.KindPtr)
	load := ir.NewLoadField(g, obj, 8, ir.KindI64)
	g.SetSuccessor(start, 0, load)
	ret := ir.NewReturn(g, load)
	g.SetSuccessor(load, 0, ret)
	return load, ret
}

func TestLoadFieldLowersToGuardedRead(t *testing.T) {
	g := ir.NewGraph("load")
	load, ret := fieldLoad(g)

	if n := Apply(g); n != 1 {
		t.Fatalf("Apply lowered %d nodes, want 1", n)
	}
	if load.Alive() {
		t.Fatalf("high-level load survived lowering")
	}
	read, ok := ret.Result().(*ir.ReadNode)
	if !ok {
		t.Fatalf("return feeds from %s, want a Read", ret.Result().Op())
	}
	addr, ok := read.Address().(*ir.AddNode)
	if !ok || addr.X().Op() != "Param" {
		t.Errorf("read address is not object plus offset")
	}
	guard, ok := read.In(1).(*ir.GuardNode)
	if !ok {
		t.Fatalf("read carries no guard")
	}
	if guard.Condition().Op() != "IsNull" || !guard.Negated() {
		t.Errorf("guard is not a negated null check")
	}
	if guard.Reason != ir.ReasonNullCheck {
		t.Errorf("guard reason = %v, want null check", guard.Reason)
	}
}

func TestEqualChecksShareOneGuard(t *testing.T) {
	g := ir.NewGraph("reuse")
	start := ir.NewStart(g)
	obj := ir.NewParam(g, 0, ir.KindPtr)
	load1 := ir.NewLoadField(g, obj, 8, ir.KindI64)
	load2 := ir.NewLoadField(g, obj, 16, ir.KindI64)
	g.SetSuccessor(start, 0, load1)
	g.SetSuccessor(load1, 0, load2)
	ret := ir.NewReturn(g, ir.NewAdd(g, load1, load2))
	g.SetSuccessor(load2, 0, ret)

	if n := Apply(g); n != 2 {
		t.Fatalf("Apply lowered %d nodes, want 2", n)
	}
	guards := ir.NodesOf[*ir.GuardNode](g)
	if len(guards) != 1 {
		t.Fatalf("two loads of one object produced %d guards, want 1 shared", len(guards))
	}
	if conds := ir.NodesOf[*ir.IsNullNode](g); len(conds) != 1 {
		t.Errorf("duplicate null-check conditions survived, want 1, got %d", len(conds))
	}
}

func TestStoreFieldLowersToWrite(t *testing.T) {
	g := ir.NewGraph("store")
	start := ir.NewStart(g)
	obj := ir.NewParam(g, 0, ir.KindPtr)
	val := ir.NewParam(g, 1, ir.KindPtr)
	store := ir.NewStoreField(g, obj, val, 24, ir.KindPtr)
	g.SetSuccessor(start, 0, store)
	ret := ir.NewReturn(g, nil)
	g.SetSuccessor(store, 0, ret)

	if n := Apply(g); n != 1 {
		t.Fatalf("Apply lowered %d nodes, want 1", n)
	}
	writes := ir.NodesOf[*ir.WriteNode](g)
	if len(writes) != 1 {
		t.Fatalf("store lowered to %d writes, want 1", len(writes))
	}
	w := writes[0]
	if w.Value() != ir.Node(val) || w.Object() != ir.Node(obj) {
		t.Errorf("write lost the stored value or object")
	}
	if _, ok := w.Successor(0).(*ir.ReturnNode); !ok {
		t.Errorf("write did not splice into the store's control position")
	}
}

func TestApplyReachesFixedPoint(t *testing.T) {
	g := ir.NewGraph("fixed-point")
	fieldLoad(g)

	Apply(g)
	if n := Apply(g); n != 0 {
		t.Fatalf("second Apply lowered %d nodes, want 0", n)
	}
}
