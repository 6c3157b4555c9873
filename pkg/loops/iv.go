package loops

import "github.com/seaofnodes/sea/pkg/ir"

// Direction is the proven movement of an induction variable per iteration.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionUp
	DirectionDown
)

func (d Direction) String() string {
	switch d {
	case DirectionUp:
		return "up"
	case DirectionDown:
		return "down"
	}
	return "unknown"
}

// Opposite flips Up and Down; unknown stays unknown.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	}
	return DirectionUnknown
}

// InductionVariable is a value that changes by a regular amount per loop
// iteration: either a basic phi-rooted variable or one derived from it by
// loop-invariant arithmetic.
type InductionVariable interface {
	// Value is the graph node the variable stands for.
	Value() ir.Node
	// Direction is the proven per-iteration movement.
	Direction() Direction
	// Root is the basic variable this one derives from (itself for basic).
	Root() *BasicInductionVariable
	// Loop is the loop the variable belongs to.
	Loop() *Loop
}

// BasicInductionVariable is a loop-header phi whose back-edge value is the
// phi plus or minus a loop-invariant stride.
type BasicInductionVariable struct {
	loop *Loop
	phi  *ir.PhiNode

	init      ir.Node
	rawStride ir.Node
	// sub is set when the back edge subtracts the stride.
	sub bool
}

func (v *BasicInductionVariable) Value() ir.Node                 { return v.phi }
func (v *BasicInductionVariable) Root() *BasicInductionVariable  { return v }
func (v *BasicInductionVariable) Loop() *Loop                    { return v.loop }

// Init is the value entering the loop on the forward edge.
func (v *BasicInductionVariable) Init() ir.Node { return v.init }

// StrideNode is the invariant amount applied on the back edge. Negated for
// subtracting variables when constant; see ConstantStride.
func (v *BasicInductionVariable) StrideNode() ir.Node { return v.rawStride }

// Direction follows the stride's stamp; subtraction flips it.
func (v *BasicInductionVariable) Direction() Direction {
	s := v.rawStride.Stamp()
	var d Direction
	switch {
	case s.StrictlyPositive():
		d = DirectionUp
	case s.StrictlyNegative():
		d = DirectionDown
	default:
		return DirectionUnknown
	}
	if v.sub {
		d = d.Opposite()
	}
	return d
}

// ConstantInit returns the init value when it is a constant.
func (v *BasicInductionVariable) ConstantInit() (int64, bool) {
	return constValue(v.init)
}

// ConstantStride returns the effective per-iteration delta when the stride
// is a constant (negative for subtracting variables).
func (v *BasicInductionVariable) ConstantStride() (int64, bool) {
	c, ok := constValue(v.rawStride)
	if !ok {
		return 0, false
	}
	if v.sub {
		c = -c
	}
	return c, true
}

// DerivedOffsetInductionVariable is base + offset or base - offset for a
// loop-invariant offset, or offset - base which flips the direction.
type DerivedOffsetInductionVariable struct {
	base   InductionVariable
	value  ir.Node
	offset ir.Node
	// flipped is set for offset - base.
	flipped bool
}

func (v *DerivedOffsetInductionVariable) Value() ir.Node                { return v.value }
func (v *DerivedOffsetInductionVariable) Root() *BasicInductionVariable { return v.base.Root() }
func (v *DerivedOffsetInductionVariable) Loop() *Loop                   { return v.base.Loop() }
func (v *DerivedOffsetInductionVariable) Offset() ir.Node               { return v.offset }

func (v *DerivedOffsetInductionVariable) Direction() Direction {
	d := v.base.Direction()
	if v.flipped {
		d = d.Opposite()
	}
	return d
}

// DerivedScaledInductionVariable is base * scale for a loop-invariant
// scale. Left shifts by a constant fold to a power-of-two scale.
type DerivedScaledInductionVariable struct {
	base  InductionVariable
	value ir.Node
	scale ir.Node
}

func (v *DerivedScaledInductionVariable) Value() ir.Node                { return v.value }
func (v *DerivedScaledInductionVariable) Root() *BasicInductionVariable { return v.base.Root() }
func (v *DerivedScaledInductionVariable) Loop() *Loop                   { return v.base.Loop() }
func (v *DerivedScaledInductionVariable) Scale() ir.Node                { return v.scale }

func (v *DerivedScaledInductionVariable) Direction() Direction {
	s := v.scale.Stamp()
	switch {
	case s.StrictlyPositive():
		return v.base.Direction()
	case s.StrictlyNegative():
		return v.base.Direction().Opposite()
	}
	return DirectionUnknown
}

// DerivedNegatedInductionVariable is -base.
type DerivedNegatedInductionVariable struct {
	base  InductionVariable
	value ir.Node
}

func (v *DerivedNegatedInductionVariable) Value() ir.Node                { return v.value }
func (v *DerivedNegatedInductionVariable) Root() *BasicInductionVariable { return v.base.Root() }
func (v *DerivedNegatedInductionVariable) Loop() *Loop                   { return v.base.Loop() }
func (v *DerivedNegatedInductionVariable) Direction() Direction {
	return v.base.Direction().Opposite()
}

// findBasicInductionVariables records every header phi whose single
// back-edge value is phi ± invariant.
func (l *Loop) findBasicInductionVariables() {
	ends := l.Begin.LoopEnds()
	if len(ends) != 1 {
		return
	}
	for _, u := range l.Begin.Usages() {
		phi, ok := u.(*ir.PhiNode)
		if !ok || phi.Merge() != ir.Node(l.Begin) || phi.Type != ir.PhiValue {
			continue
		}
		if !phi.Stamp().IsInteger() || phi.ValueCount() != 2 {
			continue
		}
		init := phi.ValueAt(0)
		back := phi.ValueAt(1)
		if !l.IsInvariant(init) {
			continue
		}
		var stride ir.Node
		sub := false
		switch op := back.(type) {
		case *ir.AddNode:
			switch {
			case op.In(0) == ir.Node(phi) && l.IsInvariant(op.In(1)):
				stride = op.In(1)
			case op.In(1) == ir.Node(phi) && l.IsInvariant(op.In(0)):
				stride = op.In(0)
			}
		case *ir.SubNode:
			if op.In(0) == ir.Node(phi) && l.IsInvariant(op.In(1)) {
				stride = op.In(1)
				sub = true
			}
		}
		if stride == nil {
			continue
		}
		l.ivs[phi.ID()] = &BasicInductionVariable{
			loop:      l,
			phi:       phi,
			init:      init,
			rawStride: stride,
			sub:       sub,
		}
	}
}

// deriveInductionVariables propagates breadth-first from the basic
// variables through their usages. A usage becomes a derived variable when
// it adds or subtracts an invariant offset, negates, multiplies by an
// invariant scale, or left-shifts by a constant; anything else ends the
// chain.
func (l *Loop) deriveInductionVariables() {
	var queue []InductionVariable
	for _, iv := range l.ivs {
		queue = append(queue, iv)
	}
	for len(queue) > 0 {
		iv := queue[0]
		queue = queue[1:]
		for _, u := range iv.Value().Usages() {
			if _, seen := l.ivs[u.ID()]; seen {
				continue
			}
			d := l.classifyDerived(iv, u)
			if d == nil {
				continue
			}
			l.ivs[u.ID()] = d
			queue = append(queue, d)
		}
	}
}

func (l *Loop) classifyDerived(base InductionVariable, u ir.Node) InductionVariable {
	v := base.Value()
	switch op := u.(type) {
	case *ir.AddNode:
		if op.In(0) == v && l.IsInvariant(op.In(1)) {
			return &DerivedOffsetInductionVariable{base: base, value: op, offset: op.In(1)}
		}
		if op.In(1) == v && l.IsInvariant(op.In(0)) {
			return &DerivedOffsetInductionVariable{base: base, value: op, offset: op.In(0)}
		}
	case *ir.SubNode:
		if op.In(0) == v && l.IsInvariant(op.In(1)) {
			return &DerivedOffsetInductionVariable{base: base, value: op, offset: op.In(1)}
		}
		if op.In(1) == v && l.IsInvariant(op.In(0)) {
			return &DerivedOffsetInductionVariable{base: base, value: op, offset: op.In(0), flipped: true}
		}
	case *ir.NegNode:
		return &DerivedNegatedInductionVariable{base: base, value: op}
	case *ir.MulNode:
		if op.In(0) == v && l.IsInvariant(op.In(1)) {
			return &DerivedScaledInductionVariable{base: base, value: op, scale: op.In(1)}
		}
		if op.In(1) == v && l.IsInvariant(op.In(0)) {
			return &DerivedScaledInductionVariable{base: base, value: op, scale: op.In(0)}
		}
	case *ir.ShlNode:
		if op.In(0) != v {
			return nil
		}
		amt, ok := constValue(op.In(1))
		if !ok || amt < 0 || amt > 62 {
			return nil
		}
		scale := ir.NewConst(l.data.CFG.Graph, op.Stamp().Kind, int64(1)<<uint(amt))
		return &DerivedScaledInductionVariable{base: base, value: op, scale: scale}
	}
	return nil
}

func constValue(n ir.Node) (int64, bool) {
	c, ok := n.(*ir.ConstNode)
	if !ok {
		return 0, false
	}
	return c.Value, true
}
