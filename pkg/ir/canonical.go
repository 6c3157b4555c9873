package ir

// Canonical implementations. A node's Canonical returns its simplified
// replacement, or the node itself when no rule applies. The canonicalizer
// performs the actual usage redirection and deletion.

func asConst(n Node) (int64, bool) {
	if c, ok := n.(*ConstNode); ok {
		return c.Value, true
	}
	return 0, false
}

func foldKind(k Kind, v int64) int64 {
	if k == KindI32 {
		return int64(int32(v))
	}
	return v
}

func (n *AddNode) Canonical(tool CanonTool) Node {
	x, y := n.X(), n.Y()
	cx, okx := asConst(x)
	cy, oky := asConst(y)
	kind := n.Stamp().Kind
	switch {
	case okx && oky:
		return tool.Const(kind, foldKind(kind, cx+cy))
	case oky && cy == 0:
		return x
	case okx && cx == 0:
		return y
	}
	return n
}

func (n *SubNode) Canonical(tool CanonTool) Node {
	x, y := n.X(), n.Y()
	cx, okx := asConst(x)
	cy, oky := asConst(y)
	kind := n.Stamp().Kind
	switch {
	case okx && oky:
		return tool.Const(kind, foldKind(kind, cx-cy))
	case oky && cy == 0:
		return x
	case x == y:
		return tool.Const(kind, 0)
	}
	return n
}

func (n *MulNode) Canonical(tool CanonTool) Node {
	x, y := n.X(), n.Y()
	cx, okx := asConst(x)
	cy, oky := asConst(y)
	kind := n.Stamp().Kind
	// Normalize a constant left operand to the right.
	if okx && !oky {
		x, y = y, x
		cy, oky = cx, true
	}
	if oky {
		if cx, ok := asConst(x); ok {
			return tool.Const(kind, foldKind(kind, cx*cy))
		}
		switch {
		case cy == 0:
			return tool.Const(kind, 0)
		case cy == 1:
			return x
		case cy > 0 && cy&(cy-1) == 0:
			shift := 0
			for v := cy; v > 1; v >>= 1 {
				shift++
			}
			return NewShl(n.Graph(), x, tool.Const(kind, int64(shift)))
		}
	}
	return n
}

func (n *NegNode) Canonical(tool CanonTool) Node {
	kind := n.Stamp().Kind
	if c, ok := asConst(n.X()); ok {
		return tool.Const(kind, foldKind(kind, -c))
	}
	if inner, ok := n.X().(*NegNode); ok {
		return inner.X()
	}
	return n
}

func (n *ShlNode) Canonical(tool CanonTool) Node {
	kind := n.Stamp().Kind
	if cy, ok := asConst(n.Y()); ok {
		if cy == 0 {
			return n.X()
		}
		if cx, ok := asConst(n.X()); ok {
			return tool.Const(kind, foldKind(kind, cx<<uint(cy)))
		}
	}
	return n
}

func (n *LessNode) Canonical(tool CanonTool) Node {
	if n.X() == n.Y() {
		return tool.Const(KindBool, 0)
	}
	xs, ys := n.X().Stamp(), n.Y().Stamp()
	if xs.IsInteger() && ys.IsInteger() {
		if xs.Hi < ys.Lo {
			return tool.Const(KindBool, 1)
		}
		if xs.Lo >= ys.Hi {
			return tool.Const(KindBool, 0)
		}
	}
	return n
}

func (n *EqualsNode) Canonical(tool CanonTool) Node {
	if n.X() == n.Y() {
		return tool.Const(KindBool, 1)
	}
	cx, okx := asConst(n.X())
	cy, oky := asConst(n.Y())
	if okx && oky {
		if cx == cy {
			return tool.Const(KindBool, 1)
		}
		return tool.Const(KindBool, 0)
	}
	return n
}

func (n *IsNullNode) Canonical(tool CanonTool) Node {
	if c, ok := n.Object().(*ConstNode); ok && c.Stamp().Kind == KindPtr {
		if c.Value == 0 {
			return tool.Const(KindBool, 1)
		}
		return tool.Const(KindBool, 0)
	}
	return n
}

func (n *ConditionalNode) Canonical(tool CanonTool) Node {
	if c, ok := asConst(n.Condition()); ok {
		if c != 0 {
			return n.TrueValue()
		}
		return n.FalseValue()
	}
	if n.TrueValue() == n.FalseValue() {
		return n.TrueValue()
	}
	return n
}

func (n *PhiNode) Canonical(tool CanonTool) Node {
	// A phi whose per-predecessor inputs all agree (ignoring itself, for
	// loop phis) reduces to that value.
	var single Node
	for i := 0; i < n.ValueCount(); i++ {
		v := n.ValueAt(i)
		if v == n || v == nil {
			continue
		}
		if single == nil {
			single = v
		} else if single != v {
			return n
		}
	}
	if single != nil {
		return single
	}
	return n
}
