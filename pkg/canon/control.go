package canon

import "github.com/seaofnodes/sea/pkg/ir"

// foldIf replaces an If with a constant condition by its taken branch. The
// untaken branch is removed only when it is a straight chain from its Begin
// to an End feeding a merge and nothing outside the chain uses its nodes;
// anything more entangled is left for a later pass iteration.
func foldIf(g *ir.Graph, branch *ir.IfNode, push func(ir.Node)) bool {
	c, ok := branch.Condition().(*ir.ConstNode)
	if !ok {
		return false
	}
	taken, dead := branch.TrueSuccessor(), branch.FalseSuccessor()
	if c.Value == 0 {
		taken, dead = dead, taken
	}

	chain, merge := deadChain(dead)
	if chain == nil {
		return false
	}

	// Detach the dead branch from its merge: drop the End's input slot and
	// the matching per-predecessor phi inputs.
	deadEnd := chain[len(chain)-1].(*ir.EndNode)
	slot := -1
	for i, in := range merge.Inputs() {
		if in == deadEnd {
			slot = i
			break
		}
	}
	if slot < 0 {
		return false
	}
	for _, u := range append([]ir.Node(nil), merge.Usages()...) {
		if phi, ok := u.(*ir.PhiNode); ok && phi.Merge() == ir.Node(merge) {
			g.RemoveInput(phi, slot+1)
			push(phi)
		}
	}
	g.RemoveInput(merge, slot)
	push(merge)

	// Splice the predecessor straight to the taken branch.
	pred := branch.Predecessor()
	g.SetSuccessor(branch, 0, nil)
	g.SetSuccessor(branch, 1, nil)
	if pred != nil {
		g.ReplaceAtPredecessor(branch, taken)
	}
	g.ClearInputs(branch)
	g.Delete(branch)

	// Tear down the dead chain: unlink all control first, then delete.
	for _, n := range chain {
		g.ClearSuccessors(n)
	}
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if len(n.Usages()) > 0 {
			ir.Fatalf(g, n, "dead control node still has usages")
		}
		g.ClearInputs(n)
		g.Delete(n)
	}
	return true
}

// deadChain walks a straight single-successor chain from a Begin to an End
// and returns it plus the merge the End feeds. Returns nil when the branch
// is not a removable straight chain.
func deadChain(begin ir.Node) ([]ir.Node, ir.Node) {
	if _, ok := begin.(*ir.BeginNode); !ok {
		return nil, nil
	}
	var chain []ir.Node
	cur := begin
	for {
		chain = append(chain, cur)
		if end, ok := cur.(*ir.EndNode); ok {
			for _, u := range end.Usages() {
				switch u.(type) {
				case *ir.MergeNode:
					return chain, u
				}
			}
			return nil, nil
		}
		// Nothing outside the chain may reference its nodes.
		if len(cur.Usages()) > 0 {
			return nil, nil
		}
		if len(cur.Successors()) != 1 || cur.Successor(0) == nil {
			return nil, nil
		}
		cur = cur.Successor(0)
	}
}
