package ir

import "testing"

// buildDiamond constructs start -> if -> (t | f) -> merge -> return phi.
func buildDiamond(g *Graph) []Node {
	start := NewStart(g)
	p := NewParam(g, 0, KindI64)
	ten := NewConst(g, KindI64, 10)
	cond := NewLess(g, p, ten)

	tBegin := NewBegin(g)
	fBegin := NewBegin(g)
	branch := NewIf(g, cond, tBegin, fBegin)
	g.SetSuccessor(start, 0, branch)

	tEnd := NewEnd(g)
	g.SetSuccessor(tBegin, 0, tEnd)
	fEnd := NewEnd(g)
	g.SetSuccessor(fBegin, 0, fEnd)

	merge := NewMerge(g, tEnd, fEnd)
	phi := NewPhi(g, merge, KindI64, p, ten)
	ret := NewReturn(g, phi)
	g.SetSuccessor(merge, 0, ret)

	return []Node{start, p, ten, cond, tBegin, fBegin, branch, tEnd, fEnd, merge, phi, ret}
}

func TestDuplicateIsomorphic(t *testing.T) {
	src := NewGraph("src")
	nodes := buildDiamond(src)

	dst := NewGraph("dst")
	mapping := Duplicate(dst, nodes, nil)

	if len(mapping) != len(nodes) {
		t.Fatalf("mapping has %d entries, want %d", len(mapping), len(nodes))
	}
	for _, n := range nodes {
		clone := mapping[n]
		if clone.Graph() != dst {
			t.Fatalf("clone of %s not in destination graph", n.Op())
		}
		if clone.Op() != n.Op() {
			t.Fatalf("clone op %s, want %s", clone.Op(), n.Op())
		}
		if clone.InputCount() != n.InputCount() {
			t.Fatalf("%s clone has %d inputs, want %d", n.Op(), clone.InputCount(), n.InputCount())
		}
		for i, in := range n.Inputs() {
			want := Node(nil)
			if in != nil {
				want = mapping[in]
			}
			if clone.In(i) != want {
				t.Errorf("%s clone input %d not remapped into the set", n.Op(), i)
			}
		}
		for i, s := range n.Successors() {
			want := Node(nil)
			if s != nil {
				want = mapping[s]
			}
			if clone.Successor(i) != want {
				t.Errorf("%s clone successor %d not remapped into the set", n.Op(), i)
			}
		}
	}
}

func TestDuplicateDoesNotMutateSource(t *testing.T) {
	src := NewGraph("src")
	nodes := buildDiamond(src)
	before := make(map[Node]int)
	for _, n := range nodes {
		before[n] = n.UsageCount()
	}

	Duplicate(NewGraph("dst"), nodes, nil)

	for _, n := range nodes {
		if n.UsageCount() != before[n] {
			t.Errorf("%s usage count changed from %d to %d", n.Op(), before[n], n.UsageCount())
		}
		if !n.Alive() {
			t.Errorf("%s died during duplication", n.Op())
		}
	}
}

func TestDuplicateExternalReplacements(t *testing.T) {
	src := NewGraph("src")
	p := NewParam(src, 0, KindI64)
	one := NewConst(src, KindI64, 1)
	add := NewAdd(src, p, one)
	neg := NewNeg(src, add)

	dst := NewGraph("dst")
	arg := NewConst(dst, KindI64, 42)
	dstOne := NewConst(dst, KindI64, 1)

	mapping := Duplicate(dst, []Node{add, neg}, map[Node]Node{p: arg, one: dstOne})

	addClone := mapping[add]
	if addClone.In(0) != Node(arg) || addClone.In(1) != Node(dstOne) {
		t.Fatalf("external edges not substituted from replacements")
	}
	if mapping[neg].In(0) != addClone {
		t.Fatalf("internal edge not remapped")
	}
}
