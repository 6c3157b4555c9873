// Package guardopt eliminates redundant guards. Two rewrites run to a
// fixed point: at a merge, a guard that is already established on every
// predecessor path collapses into a phi over the predecessor guards; at a
// control split, equal guards on all successors hoist to a single guard
// above the split. Only guards whose sole dependency is their anchor are
// eligible: extra floating inputs pin a condition to its scope and must
// never be hoisted past it.
package guardopt

import "github.com/seaofnodes/sea/pkg/ir"

// Apply runs guard deduplication to a fixed point and returns the number
// of guards eliminated.
func Apply(g *ir.Graph) int {
	eliminated := 0
	for {
		n := eliminateAtMerges(g) + eliminateAtSplits(g)
		if n == 0 {
			return eliminated
		}
		eliminated += n
	}
}

type guardKey struct {
	condition ir.NodeID
	negated   bool
}

func keyOf(gd *ir.GuardNode) guardKey {
	return guardKey{gd.Condition().ID(), gd.Negated()}
}

// guardsAnchoredAt returns the eligible (single-dependency) guards whose
// anchor is the given node.
func guardsAnchoredAt(g *ir.Graph, anchor ir.Node) []*ir.GuardNode {
	var out []*ir.GuardNode
	for _, u := range anchor.Usages() {
		gd, ok := u.(*ir.GuardNode)
		if !ok || !gd.Alive() {
			continue
		}
		if gd.Anchor() == anchor && gd.DependencyCount() == 1 {
			out = append(out, gd)
		}
	}
	return out
}

// eliminateAtMerges handles the merge rule: for each eligible guard
// anchored at a merge, when every predecessor path carries an equivalent
// guard directly before the merge, the merge-side guard is replaced by a
// phi selecting the predecessor guard per incoming edge.
func eliminateAtMerges(g *ir.Graph) int {
	changed := 0
	for _, merge := range ir.NodesOf[*ir.MergeNode](g) {
		for _, gd := range guardsAnchoredAt(g, merge) {
			key := keyOf(gd)
			anchors := make([]ir.Node, 0, merge.PredecessorCount())
			covered := true
			for _, end := range merge.Ends() {
				pg := guardOnPath(g, end, key)
				if pg == nil {
					covered = false
					break
				}
				anchors = append(anchors, pg)
			}
			if !covered {
				continue
			}
			phi := ir.NewGuardPhi(g, merge, anchors...)
			g.ReplaceAtUsages(gd, phi)
			g.ClearInputs(gd)
			g.Delete(gd)
			changed++
		}
	}
	return changed
}

// guardOnPath finds an equivalent eligible guard established directly on
// the predecessor path ending at end: anchored at a fixed node between the
// path's block entry and the end.
func guardOnPath(g *ir.Graph, end ir.Node, key guardKey) *ir.GuardNode {
	for cur := end; cur != nil; cur = cur.Predecessor() {
		for _, gd := range guardsAnchoredAt(g, cur) {
			if keyOf(gd) == key {
				return gd
			}
		}
		// Stop at the path's block entry.
		switch cur.(type) {
		case *ir.BeginNode, *ir.MergeNode, *ir.LoopBeginNode, *ir.StartNode, *ir.LoopExitNode:
			return nil
		}
	}
	return nil
}

// eliminateAtSplits handles the split rule: guards with equal (condition,
// negation) on all successors of a control split hoist to one guard above
// the split. The hoisted guard takes the most conservative action of the
// group and the common reason, or ReasonNone when the reasons disagree.
func eliminateAtSplits(g *ir.Graph) int {
	changed := 0
	for _, branch := range ir.NodesOf[*ir.IfNode](g) {
		succs := branch.Successors()
		groups := make(map[guardKey][]*ir.GuardNode)
		for _, s := range succs {
			if s == nil {
				continue
			}
			for _, gd := range guardsAnchoredAt(g, s) {
				groups[keyOf(gd)] = append(groups[keyOf(gd)], gd)
			}
		}
		pred := branch.Predecessor()
		if pred == nil {
			continue
		}
		for key, group := range groups {
			if !coversAllSuccessors(succs, group) {
				continue
			}
			action := ir.ActionNone
			reason := group[0].Reason
			for _, gd := range group {
				action = ir.MostConservative(action, gd.Action)
				if gd.Reason != reason {
					reason = ir.ReasonNone
				}
			}
			hoisted := ir.NewGuard(g, group[0].Condition(), pred, key.negated, reason, action)
			for _, gd := range group {
				g.ReplaceAtUsages(gd, hoisted)
				g.ClearInputs(gd)
				g.Delete(gd)
				changed++
			}
		}
	}
	return changed
}

// coversAllSuccessors reports whether the group contains a guard anchored
// at every successor of the split.
func coversAllSuccessors(succs []ir.Node, group []*ir.GuardNode) bool {
	for _, s := range succs {
		if s == nil {
			return false
		}
		found := false
		for _, gd := range group {
			if gd.Anchor() == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
