// Package inline explores the call graph below a compilation unit with an
// explicit two-stack state machine and inlines the call sites its policy
// accepts. A graph stack holds callee graphs pending exploration; an
// invocation stack holds the call sites under consideration. The bottom
// invocation is a sentinel for the compilation root and is never itself a
// candidate: the machine stops when the root graph is popped.
package inline

import (
	"github.com/go-logr/logr"

	"github.com/seaofnodes/sea/pkg/canon"
	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/profile"
)

// GraphProvider resolves a callee name to its graph. A nil result leaves
// the call site alone.
type GraphProvider interface {
	GraphFor(callee string) *ir.Graph
}

// Policy bounds the exploration. Exceeding a bound is a bailout, not an
// error: the call site simply stays a call.
type Policy struct {
	// MaxDepth bounds the call-graph exploration depth. Invokes spliced
	// in by an accepted inlining inherit the depth of their expansion,
	// so recursive callees bottom out here instead of growing forever.
	MaxDepth int
	// MaxCalleeNodes is the callee size budget at full probability; the
	// budget shrinks proportionally for colder call sites.
	MaxCalleeNodes int
	// MaxRootNodes bounds the compilation unit's growth: a site is
	// rejected once splicing its callee would push the root graph past
	// this many live nodes. Zero means unbounded.
	MaxRootNodes int
	// MinProbability prunes exploration of call sites colder than this.
	MinProbability float64
}

// DefaultPolicy mirrors the usual production tuning.
func DefaultPolicy() Policy {
	return Policy{MaxDepth: 5, MaxCalleeNodes: 300, MaxRootNodes: 5000, MinProbability: 0.01}
}

// Stats reports what one Run did.
type Stats struct {
	Explored int
	Inlined  int
	Rejected int
}

// Run explores and inlines call sites of g until the exploration stacks
// drain. Accepted sites are replaced by a copy of their callee and the new
// nodes are re-canonicalized incrementally; invokes exposed by an accepted
// inlining are registered for further exploration.
func Run(g *ir.Graph, provider GraphProvider, prof profile.Provider, pol Policy, log logr.Logger) Stats {
	in := &inliner{
		root:     g,
		provider: provider,
		prof:     prof,
		pol:      pol,
		log:      log,
	}
	in.invocations = append(in.invocations, &invocation{probability: 1})
	in.graphs = append(in.graphs, &graphEntry{graph: g, pending: pendingSites(g)})
	in.run()
	return in.stats
}

type inliner struct {
	root     *ir.Graph
	provider GraphProvider
	prof     profile.Provider
	pol      Policy
	log      logr.Logger
	stats    Stats

	graphs      []*graphEntry
	invocations []*invocation
}

// graphEntry is one graph pending exploration: its not-yet-visited invokes.
type graphEntry struct {
	graph   *ir.Graph
	pending []pendingSite
	next    int
}

// pendingSite is an invoke awaiting exploration. Invokes copied in by an
// accepted inlining carry the depth of that expansion so re-exploration
// cannot restart recursive callees from depth zero.
type pendingSite struct {
	invoke *ir.InvokeNode
	depth  int
}

// invocation is one call site under consideration. The root sentinel has a
// nil invoke.
type invocation struct {
	invoke *ir.InvokeNode
	caller *ir.Graph
	callee *ir.Graph

	probability float64
	depth       int
}

func (in *inliner) run() {
	for {
		inv := in.invocations[len(in.invocations)-1]
		ge := in.graphs[len(in.graphs)-1]

		// Backtrack from call sites not worth exploring further.
		if inv.invoke != nil && !in.worthExploring(inv) {
			in.graphs = in.graphs[:len(in.graphs)-1]
			in.invocations = in.invocations[:len(in.invocations)-1]
			in.stats.Rejected++
			continue
		}

		// Descend into the next unexplored invoke of the current graph.
		if ge.next < len(ge.pending) && inv.depth < in.pol.MaxDepth {
			site := ge.pending[ge.next]
			ge.next++
			if !site.invoke.Alive() {
				continue
			}
			callee := in.provider.GraphFor(site.invoke.Callee)
			if callee == nil {
				continue
			}
			in.stats.Explored++
			child := &invocation{
				invoke:      site.invoke,
				caller:      ge.graph,
				callee:      callee,
				probability: inv.probability * in.prof.Query(site.invoke, profile.StatCallProbability),
				depth:       inv.depth + site.depth + 1,
			}
			in.invocations = append(in.invocations, child)
			in.graphs = append(in.graphs, &graphEntry{graph: callee, pending: pendingSites(callee)})
			continue
		}

		// The current graph is fully explored: pop it and decide its
		// invocation.
		in.graphs = in.graphs[:len(in.graphs)-1]
		if inv.invoke == nil {
			return
		}
		in.invocations = in.invocations[:len(in.invocations)-1]
		in.decide(inv)
	}
}

func (in *inliner) worthExploring(inv *invocation) bool {
	return inv.probability >= in.pol.MinProbability && inv.depth <= in.pol.MaxDepth
}

// decide accepts or rejects a fully explored call site. Only sites sitting
// directly in the root graph mutate anything; deeper sites were explored
// for sizing and get re-decided once their caller is itself inlined.
func (in *inliner) decide(inv *invocation) {
	if inv.callee == in.root {
		// A graph cannot be spliced into itself; recursive expansion
		// works on the copies instead.
		in.stats.Rejected++
		return
	}
	budget := int(float64(in.pol.MaxCalleeNodes) * inv.probability)
	tooBig := inv.callee.LiveCount() > budget
	if in.pol.MaxRootNodes > 0 &&
		in.root.LiveCount()+inv.callee.LiveCount() > in.pol.MaxRootNodes {
		tooBig = true
	}
	if inv.caller != in.root || tooBig {
		in.stats.Rejected++
		in.log.V(2).Info("call site rejected",
			"callee", inv.invoke.Callee,
			"calleeNodes", inv.callee.LiveCount(),
			"rootNodes", in.root.LiveCount(),
			"budget", budget)
		return
	}

	mark := in.root.Mark()
	if !inlineCall(in.root, inv.invoke, inv.callee) {
		in.stats.Rejected++
		return
	}
	canon.ApplySince(in.root, mark)

	// Invokes copied in from the callee become root call sites, one
	// expansion deeper than the site they replaced.
	rootEntry := in.graphs[0]
	for _, n := range in.root.NodesSince(mark) {
		if iv, ok := n.(*ir.InvokeNode); ok && iv.Alive() {
			rootEntry.pending = append(rootEntry.pending, pendingSite{invoke: iv, depth: inv.depth})
		}
	}
	in.stats.Inlined++
	in.log.V(1).Info("inlined call",
		"callee", inv.invoke.Callee,
		"probability", inv.probability,
		"depth", inv.depth)
}

// inlineCall duplicates callee into g in place of the invoke: parameters
// become the call arguments, the callee entry splices where the invoke
// stood, returns reconnect to the invoke's successor (merged through a phi
// when the callee returns from several places). Reports false for shapes
// it bails out on.
func inlineCall(g *ir.Graph, invoke *ir.InvokeNode, callee *ir.Graph) bool {
	var start *ir.StartNode
	var returns []*ir.ReturnNode
	args := invoke.Arguments()

	replacements := make(map[ir.Node]ir.Node)
	var body []ir.Node
	for _, n := range callee.Nodes() {
		if n == nil || !n.Alive() {
			continue
		}
		switch t := n.(type) {
		case *ir.StartNode:
			start = t
			replacements[n] = invoke.Predecessor()
		case *ir.ParamNode:
			if t.Index >= len(args) {
				ir.Fatalf(g, invoke, "call to %s lacks argument %d", invoke.Callee, t.Index)
			}
			replacements[n] = args[t.Index]
		default:
			if r, ok := n.(*ir.ReturnNode); ok {
				returns = append(returns, r)
			}
			body = append(body, n)
		}
	}
	if start == nil || len(returns) == 0 {
		// No entry or no way out; leave the call alone.
		return false
	}

	mapping := ir.Duplicate(g, body, replacements)

	pred := invoke.Predecessor()
	slot := successorSlot(pred, invoke)
	next := invoke.Successor(0)
	g.SetSuccessor(invoke, 0, nil)

	// Reconnect the callee's exits to the invoke's successor.
	var result ir.Node
	if len(returns) == 1 {
		ret := mapping[ir.Node(returns[0])].(*ir.ReturnNode)
		result = ret.Result()
		rp := ret.Predecessor()
		if rp != nil {
			rslot := successorSlot(rp, ret)
			g.SetSuccessor(rp, rslot, nil)
			g.ClearInputs(ret)
			g.Delete(ret)
			g.SetSuccessor(rp, rslot, next)
		} else {
			// The callee is a bare return.
			g.ClearInputs(ret)
			g.Delete(ret)
		}
	} else {
		var ends []*ir.EndNode
		var values []ir.Node
		kind := ir.KindVoid
		for _, r := range returns {
			ret := mapping[ir.Node(r)].(*ir.ReturnNode)
			rp := ret.Predecessor()
			rslot := successorSlot(rp, ret)
			end := ir.NewEnd(g)
			g.SetSuccessor(rp, rslot, end)
			if v := ret.Result(); v != nil {
				values = append(values, v)
				kind = v.Stamp().Kind
			}
			g.ClearInputs(ret)
			g.Delete(ret)
			ends = append(ends, end)
		}
		merge := ir.NewMerge(g, ends...)
		g.SetSuccessor(merge, 0, next)
		if len(values) == len(returns) {
			result = ir.NewPhi(g, merge, kind, values...)
		}
	}

	// Splice the callee entry where the invoke stood.
	first := start.Successor(0)
	if dup, ok := mapping[first]; ok && dup.Alive() {
		g.SetSuccessor(pred, slot, dup)
	} else {
		// Bare-return callee: control falls straight through.
		g.SetSuccessor(pred, slot, next)
	}

	if result != nil {
		g.ReplaceAtUsages(invoke, result)
	}
	g.ClearInputs(invoke)
	g.Delete(invoke)
	return true
}

func successorSlot(n, succ ir.Node) int {
	for i, s := range n.Successors() {
		if s == succ {
			return i
		}
	}
	ir.Fatalf(n.Graph(), n, "%s %d is not a successor of %s %d",
		succ.Op(), succ.ID(), n.Op(), n.ID())
	return -1
}

func pendingSites(g *ir.Graph) []pendingSite {
	var out []pendingSite
	for _, iv := range ir.NodesOf[*ir.InvokeNode](g) {
		out = append(out, pendingSite{invoke: iv})
	}
	return out
}
