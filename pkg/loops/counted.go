package loops

import "github.com/seaofnodes/sea/pkg/ir"

// CountedLoopInfo describes a loop whose trip count is governed by a single
// basic induction variable compared against a loop-invariant limit at the
// loop's only exit.
type CountedLoopInfo struct {
	loop *Loop

	IV    *BasicInductionVariable
	Limit ir.Node
	// OneOff marks inclusive comparisons: the variable may reach the
	// limit itself, adding one iteration.
	OneOff bool

	exit *ir.LoopExitNode
}

// Exit returns the loop's single exit.
func (c *CountedLoopInfo) Exit() *ir.LoopExitNode { return c.exit }

// MaxTripCount returns the exact maximum trip count when init, limit and
// stride are all constants: (limit ± 1 - init) / stride, clamped to zero,
// where the ±1 applies only to inclusive comparisons and follows the stride
// sign.
func (c *CountedLoopInfo) MaxTripCount() (int64, bool) {
	init, ok := c.IV.ConstantInit()
	if !ok {
		return 0, false
	}
	stride, ok := c.IV.ConstantStride()
	if !ok || stride == 0 {
		return 0, false
	}
	limit, ok := constValue(c.Limit)
	if !ok {
		return 0, false
	}
	if c.OneOff {
		if stride > 0 {
			limit++
		} else {
			limit--
		}
	}
	trips := (limit - init) / stride
	if trips < 0 {
		trips = 0
	}
	return trips, true
}

// OverflowGuard returns the guard proving the induction arithmetic cannot
// wrap around the loop kind's bound, creating it on first use. The guard is
// anchored on the loop's entry edge and cached on the loop header so
// repeated queries reuse the same node.
func (c *CountedLoopInfo) OverflowGuard() ir.Node {
	lb := c.loop.Begin
	if g := lb.OverflowGuard(); g != nil {
		return g
	}
	graph := c.loop.data.CFG.Graph
	kind := c.IV.phi.Stamp().Kind
	s := c.IV.rawStride.Stamp()

	// The last in-range value the variable may hold before stepping: the
	// kind bound pulled back by the largest possible stride.
	var cond ir.Node
	if c.IV.Direction() == DirectionUp {
		hi := s.Hi
		if c.IV.sub {
			hi = -s.Lo
		}
		extreme := ir.NewConst(graph, kind, kind.Max()-hi)
		cond = ir.NewLess(graph, extreme, c.Limit)
	} else {
		lo := s.Lo
		if c.IV.sub {
			lo = -s.Hi
		}
		extreme := ir.NewConst(graph, kind, kind.Min()-lo)
		cond = ir.NewLess(graph, c.Limit, extreme)
	}
	guard := ir.NewGuard(graph, cond, lb.ForwardEnd(), true,
		ir.ReasonLoopOverflow, ir.ActionInvalidateReprofile)
	lb.SetOverflowGuard(guard)
	return guard
}

// detectCountedLoop recognizes the counted shape: one basic induction
// variable driving the condition of the branch that leads to the loop's
// single exit, with an invariant limit and a direction matching the
// comparison.
func detectCountedLoop(l *Loop) *CountedLoopInfo {
	if len(l.cfgLoop.Exits) != 1 {
		return nil
	}
	exit, ok := l.cfgLoop.Exits[0].Begin.(*ir.LoopExitNode)
	if !ok || exit.LoopBegin() != l.Begin {
		return nil
	}
	branch, ok := exit.Predecessor().(*ir.IfNode)
	if !ok {
		return nil
	}
	less, ok := branch.Condition().(*ir.LessNode)
	if !ok {
		return nil
	}
	// The loop continues on the branch away from the exit.
	continueOnTrue := branch.FalseSuccessor() == ir.Node(exit)
	if !continueOnTrue && branch.TrueSuccessor() != ir.Node(exit) {
		return nil
	}

	x, y := less.In(0), less.In(1)
	var iv *BasicInductionVariable
	var limit ir.Node
	ivLeft := false
	if v, ok := l.ivs[x.ID()].(*BasicInductionVariable); ok && l.IsInvariant(y) {
		iv, limit, ivLeft = v, y, true
	} else if v, ok := l.ivs[y.ID()].(*BasicInductionVariable); ok && l.IsInvariant(x) {
		iv, limit = v, x
	} else {
		return nil
	}

	// Four shapes: iv < limit and limit < iv, each continuing on either
	// branch. Continuing on the false branch makes the comparison
	// inclusive.
	var want Direction
	oneOff := false
	switch {
	case continueOnTrue && ivLeft: // while iv < limit
		want = DirectionUp
	case continueOnTrue && !ivLeft: // while limit < iv
		want = DirectionDown
	case !continueOnTrue && ivLeft: // while iv >= limit
		want, oneOff = DirectionDown, true
	default: // while iv <= limit
		want, oneOff = DirectionUp, true
	}
	if iv.Direction() != want {
		return nil
	}
	return &CountedLoopInfo{loop: l, IV: iv, Limit: limit, OneOff: oneOff, exit: exit}
}
