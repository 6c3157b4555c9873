package ir

// --- Deoptimization metadata ---

// DeoptReason records why a guard may deoptimize.
type DeoptReason int

const (
	ReasonNone DeoptReason = iota
	ReasonNullCheck
	ReasonBoundsCheck
	ReasonTypeCheck
	ReasonLoopOverflow
	ReasonUnreachedCode
)

func (r DeoptReason) String() string {
	switch r {
	case ReasonNone:
		return "None"
	case ReasonNullCheck:
		return "NullCheck"
	case ReasonBoundsCheck:
		return "BoundsCheck"
	case ReasonTypeCheck:
		return "TypeCheck"
	case ReasonLoopOverflow:
		return "LoopOverflow"
	case ReasonUnreachedCode:
		return "UnreachedCode"
	}
	return "?"
}

// DeoptAction tells the runtime what to do about the compiled code after a
// deoptimization. Higher values are more conservative; merging guards takes
// the maximum.
type DeoptAction int

const (
	ActionNone DeoptAction = iota
	ActionRecompileIfTooManyDeopts
	ActionInvalidateReprofile
	ActionInvalidateRecompile
	ActionInvalidateStopCompiling
)

func (a DeoptAction) String() string {
	switch a {
	case ActionNone:
		return "None"
	case ActionRecompileIfTooManyDeopts:
		return "RecompileIfTooManyDeopts"
	case ActionInvalidateReprofile:
		return "InvalidateReprofile"
	case ActionInvalidateRecompile:
		return "InvalidateRecompile"
	case ActionInvalidateStopCompiling:
		return "InvalidateStopCompiling"
	}
	return "?"
}

// MostConservative returns the higher-severity of two actions.
func MostConservative(a, b DeoptAction) DeoptAction {
	if b > a {
		return b
	}
	return a
}

// --- Control skeleton nodes ---

// StartNode is the entry point of a graph. Single successor.
type StartNode struct{ NodeBase }

func (*StartNode) Op() string  { return "Start" }
func (*StartNode) Fixed() bool { return true }

// NewStart creates the graph entry node.
func NewStart(g *Graph) *StartNode {
	n := &StartNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	return n
}

// BeginNode marks a block entry after a control split. Single successor.
type BeginNode struct{ NodeBase }

func (*BeginNode) Op() string  { return "Begin" }
func (*BeginNode) Fixed() bool { return true }

func NewBegin(g *Graph) *BeginNode {
	n := &BeginNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	return n
}

// EndNode terminates a block that flows into a merge. It has no successor
// edge; the merge lists its ends as inputs, in predecessor order.
type EndNode struct{ NodeBase }

func (*EndNode) Op() string  { return "End" }
func (*EndNode) Fixed() bool { return true }

func NewEnd(g *Graph) *EndNode {
	n := &EndNode{}
	g.Add(n)
	return n
}

// MergeNode joins several forward control edges. Inputs are the EndNodes in
// predecessor order; single successor.
type MergeNode struct{ NodeBase }

func (*MergeNode) Op() string  { return "Merge" }
func (*MergeNode) Fixed() bool { return true }

func NewMerge(g *Graph, ends ...*EndNode) *MergeNode {
	n := &MergeNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	for _, e := range ends {
		g.AppendInput(n, e)
	}
	return n
}

// Ends returns the merge's forward ends in predecessor order.
func (n *MergeNode) Ends() []Node { return n.Inputs() }

// PredecessorCount returns the number of merged control edges.
func (n *MergeNode) PredecessorCount() int { return n.InputCount() }

// LoopBeginNode is the loop-header merge. Input 0 is the forward end and
// the LoopEndNodes (back edges) follow; a counted-loop overflow guard, when
// one exists, is held in a trailing input slot so the usage edge keeps it
// alive across dead-node sweeps. Single successor.
type LoopBeginNode struct{ NodeBase }

func (*LoopBeginNode) Op() string  { return "LoopBegin" }
func (*LoopBeginNode) Fixed() bool { return true }

func NewLoopBegin(g *Graph, forward *EndNode) *LoopBeginNode {
	n := &LoopBeginNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, forward)
	return n
}

// ForwardEnd returns the entry edge of the loop.
func (n *LoopBeginNode) ForwardEnd() Node { return n.In(0) }

// LoopEnds returns the back edges of the loop.
func (n *LoopBeginNode) LoopEnds() []*LoopEndNode {
	var out []*LoopEndNode
	for _, in := range n.Inputs()[1:] {
		if le, ok := in.(*LoopEndNode); ok {
			out = append(out, le)
		}
	}
	return out
}

// OverflowGuard returns the trip-count overflow guard held in the input
// list, or nil.
func (n *LoopBeginNode) OverflowGuard() Node {
	for _, in := range n.Inputs() {
		if gd, ok := in.(*GuardNode); ok {
			return gd
		}
	}
	return nil
}

// SetOverflowGuard attaches the trip-count overflow guard as an input edge.
// The guard must be appended after every loop end so back-edge slots keep
// their positions.
func (n *LoopBeginNode) SetOverflowGuard(guard Node) {
	n.graph.AppendInput(n, guard)
}

// LoopEndNode is a back edge. Input 0 is its LoopBeginNode; it also appears
// in the loop begin's input list. No successor edge.
type LoopEndNode struct{ NodeBase }

func (*LoopEndNode) Op() string  { return "LoopEnd" }
func (*LoopEndNode) Fixed() bool { return true }

func NewLoopEnd(g *Graph, loop *LoopBeginNode) *LoopEndNode {
	n := &LoopEndNode{}
	g.Add(n)
	g.AppendInput(n, loop)
	g.AppendInput(loop, n)
	return n
}

// LoopBegin returns the header this back edge belongs to.
func (n *LoopEndNode) LoopBegin() *LoopBeginNode { return n.In(0).(*LoopBeginNode) }

// LoopExitNode marks a control edge leaving a loop. Input 0 associates it
// with its LoopBeginNode. Single successor.
type LoopExitNode struct{ NodeBase }

func (*LoopExitNode) Op() string  { return "LoopExit" }
func (*LoopExitNode) Fixed() bool { return true }

func NewLoopExit(g *Graph, loop *LoopBeginNode) *LoopExitNode {
	n := &LoopExitNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, loop)
	return n
}

// LoopBegin returns the loop this exit leaves.
func (n *LoopExitNode) LoopBegin() *LoopBeginNode { return n.In(0).(*LoopBeginNode) }

// IfNode is the two-way control split. Input 0 is the condition; successor
// 0 is the true branch, successor 1 the false branch.
type IfNode struct {
	NodeBase
	// TrueProbability is the profiled probability of the true successor.
	TrueProbability float64
}

func (*IfNode) Op() string  { return "If" }
func (*IfNode) Fixed() bool { return true }

func NewIf(g *Graph, condition Node, trueSucc, falseSucc Node) *IfNode {
	n := &IfNode{TrueProbability: 0.5}
	g.Add(n)
	g.AppendInput(n, condition)
	g.AppendSuccessor(n, trueSucc)
	g.AppendSuccessor(n, falseSucc)
	return n
}

// Condition returns the branch condition.
func (n *IfNode) Condition() Node { return n.In(0) }

// TrueSuccessor returns the branch taken when the condition holds.
func (n *IfNode) TrueSuccessor() Node { return n.Successor(0) }

// FalseSuccessor returns the branch taken when the condition fails.
func (n *IfNode) FalseSuccessor() Node { return n.Successor(1) }

// ReturnNode ends the compilation unit. Optional input 0 is the result.
type ReturnNode struct{ NodeBase }

func (*ReturnNode) Op() string  { return "Return" }
func (*ReturnNode) Fixed() bool { return true }

func NewReturn(g *Graph, result Node) *ReturnNode {
	n := &ReturnNode{}
	g.Add(n)
	if result != nil {
		g.AppendInput(n, result)
	}
	return n
}

// Result returns the returned value, or nil for a void return.
func (n *ReturnNode) Result() Node { return n.In(0) }

// InvokeNode is a not-yet-inlined call site. Inputs are the arguments.
type InvokeNode struct {
	NodeBase
	Callee string
}

func (*InvokeNode) Op() string  { return "Invoke" }
func (*InvokeNode) Fixed() bool { return true }

func NewInvoke(g *Graph, callee string, kind Kind, args ...Node) *InvokeNode {
	n := &InvokeNode{Callee: callee}
	n.stamp = stampForKind(kind)
	g.Add(n)
	g.AppendSuccessor(n, nil)
	for _, a := range args {
		g.AppendInput(n, a)
	}
	return n
}

// Arguments returns the call arguments in order.
func (n *InvokeNode) Arguments() []Node { return n.Inputs() }

// --- Memory nodes ---

// ReadNode is a lowered memory read. Input 0 is the address; optional input
// 1 is the guard that makes the read safe.
type ReadNode struct{ NodeBase }

func (*ReadNode) Op() string  { return "Read" }
func (*ReadNode) Fixed() bool { return true }

func NewRead(g *Graph, address Node, kind Kind, guard Node) *ReadNode {
	n := &ReadNode{}
	n.stamp = stampForKind(kind)
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, address)
	if guard != nil {
		g.AppendInput(n, guard)
	}
	return n
}

// Address returns the memory address input.
func (n *ReadNode) Address() Node { return n.In(0) }

// WriteNode is a lowered memory write. Input 0 is the address, input 1 the
// value, input 2 the written object (for barrier insertion), optional input
// 3 a guard.
type WriteNode struct{ NodeBase }

func (*WriteNode) Op() string  { return "Write" }
func (*WriteNode) Fixed() bool { return true }

func NewWrite(g *Graph, address, value, object Node, guard Node) *WriteNode {
	n := &WriteNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, address)
	g.AppendInput(n, value)
	g.AppendInput(n, object)
	if guard != nil {
		g.AppendInput(n, guard)
	}
	return n
}

// Address returns the memory address input.
func (n *WriteNode) Address() Node { return n.In(0) }

// Value returns the stored value.
func (n *WriteNode) Value() Node { return n.In(1) }

// Object returns the written-to object, used by barrier insertion.
func (n *WriteNode) Object() Node { return n.In(2) }

// WriteBarrierNode records a pointer store for the garbage collector.
// Input 0 is the written-to object.
type WriteBarrierNode struct{ NodeBase }

func (*WriteBarrierNode) Op() string  { return "WriteBarrier" }
func (*WriteBarrierNode) Fixed() bool { return true }

func NewWriteBarrier(g *Graph, object Node) *WriteBarrierNode {
	n := &WriteBarrierNode{}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, object)
	return n
}

// Object returns the written-to object.
func (n *WriteBarrierNode) Object() Node { return n.In(0) }

// --- High-level (lowerable) nodes ---

// LoadFieldNode reads a field from an object. Lowered to a null-check guard
// plus a ReadNode.
type LoadFieldNode struct {
	NodeBase
	Offset int64
	Kind   Kind
}

func (*LoadFieldNode) Op() string  { return "LoadField" }
func (*LoadFieldNode) Fixed() bool { return true }

func NewLoadField(g *Graph, object Node, offset int64, kind Kind) *LoadFieldNode {
	n := &LoadFieldNode{Offset: offset, Kind: kind}
	n.stamp = stampForKind(kind)
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, object)
	return n
}

// Object returns the loaded-from object.
func (n *LoadFieldNode) Object() Node { return n.In(0) }

// StoreFieldNode writes a field of an object. Lowered to a null-check guard
// plus a WriteNode (and a barrier for pointer stores).
type StoreFieldNode struct {
	NodeBase
	Offset int64
	Kind   Kind
}

func (*StoreFieldNode) Op() string  { return "StoreField" }
func (*StoreFieldNode) Fixed() bool { return true }

func NewStoreField(g *Graph, object, value Node, offset int64, kind Kind) *StoreFieldNode {
	n := &StoreFieldNode{Offset: offset, Kind: kind}
	g.Add(n)
	g.AppendSuccessor(n, nil)
	g.AppendInput(n, object)
	g.AppendInput(n, value)
	return n
}

// Object returns the stored-to object.
func (n *StoreFieldNode) Object() Node { return n.In(0) }

// Value returns the stored value.
func (n *StoreFieldNode) Value() Node { return n.In(1) }

// --- Floating value nodes ---

// ParamNode is a function parameter.
type ParamNode struct {
	NodeBase
	Index int
}

func (*ParamNode) Op() string { return "Param" }

func NewParam(g *Graph, index int, kind Kind) *ParamNode {
	n := &ParamNode{Index: index}
	n.stamp = stampForKind(kind)
	g.Add(n)
	return n
}

// ConstNode is an integer or pointer constant. A zero pointer constant is
// the null literal.
type ConstNode struct {
	NodeBase
	Value int64
}

func (*ConstNode) Op() string { return "Const" }

func NewConst(g *Graph, kind Kind, value int64) *ConstNode {
	n := &ConstNode{Value: value}
	if kind == KindPtr {
		n.stamp = PtrStamp()
	} else {
		n.stamp = ConstStamp(kind, value)
	}
	g.Add(n)
	return n
}

// AddNode is integer addition.
type AddNode struct{ NodeBase }

func (*AddNode) Op() string { return "Add" }

func NewAdd(g *Graph, x, y Node) *AddNode {
	n := &AddNode{}
	n.stamp = IntStamp(x.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, y)
	return n
}

// X returns the left operand.
func (n *AddNode) X() Node { return n.In(0) }

// Y returns the right operand.
func (n *AddNode) Y() Node { return n.In(1) }

// SubNode is integer subtraction.
type SubNode struct{ NodeBase }

func (*SubNode) Op() string { return "Sub" }

func NewSub(g *Graph, x, y Node) *SubNode {
	n := &SubNode{}
	n.stamp = IntStamp(x.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, y)
	return n
}

func (n *SubNode) X() Node { return n.In(0) }
func (n *SubNode) Y() Node { return n.In(1) }

// MulNode is integer multiplication.
type MulNode struct{ NodeBase }

func (*MulNode) Op() string { return "Mul" }

func NewMul(g *Graph, x, y Node) *MulNode {
	n := &MulNode{}
	n.stamp = IntStamp(x.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, y)
	return n
}

func (n *MulNode) X() Node { return n.In(0) }
func (n *MulNode) Y() Node { return n.In(1) }

// NegNode is integer negation.
type NegNode struct{ NodeBase }

func (*NegNode) Op() string { return "Neg" }

func NewNeg(g *Graph, x Node) *NegNode {
	n := &NegNode{}
	n.stamp = IntStamp(x.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, x)
	return n
}

func (n *NegNode) X() Node { return n.In(0) }

// ShlNode is a left shift by a constant or variable amount.
type ShlNode struct{ NodeBase }

func (*ShlNode) Op() string { return "Shl" }

func NewShl(g *Graph, x, amount Node) *ShlNode {
	n := &ShlNode{}
	n.stamp = IntStamp(x.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, amount)
	return n
}

func (n *ShlNode) X() Node { return n.In(0) }
func (n *ShlNode) Y() Node { return n.In(1) }

// IntegerDivNode is a signed integer division. It stays floating; counted
// loop analysis guarantees a non-zero divisor before creating one.
type IntegerDivNode struct{ NodeBase }

func (*IntegerDivNode) Op() string { return "IntegerDiv" }

func NewIntegerDiv(g *Graph, x, y Node) *IntegerDivNode {
	n := &IntegerDivNode{}
	n.stamp = IntStamp(x.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, y)
	return n
}

func (n *IntegerDivNode) X() Node { return n.In(0) }
func (n *IntegerDivNode) Y() Node { return n.In(1) }

// LessNode is the signed comparison x < y.
type LessNode struct{ NodeBase }

func (*LessNode) Op() string { return "Less" }

func NewLess(g *Graph, x, y Node) *LessNode {
	n := &LessNode{}
	n.stamp = BoolStamp()
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, y)
	return n
}

func (n *LessNode) X() Node { return n.In(0) }
func (n *LessNode) Y() Node { return n.In(1) }

// EqualsNode is the comparison x == y.
type EqualsNode struct{ NodeBase }

func (*EqualsNode) Op() string { return "Equals" }

func NewEquals(g *Graph, x, y Node) *EqualsNode {
	n := &EqualsNode{}
	n.stamp = BoolStamp()
	g.Add(n)
	g.AppendInput(n, x)
	g.AppendInput(n, y)
	return n
}

func (n *EqualsNode) X() Node { return n.In(0) }
func (n *EqualsNode) Y() Node { return n.In(1) }

// IsNullNode tests a pointer against null.
type IsNullNode struct{ NodeBase }

func (*IsNullNode) Op() string { return "IsNull" }

func NewIsNull(g *Graph, object Node) *IsNullNode {
	n := &IsNullNode{}
	n.stamp = BoolStamp()
	g.Add(n)
	g.AppendInput(n, object)
	return n
}

func (n *IsNullNode) Object() Node { return n.In(0) }

// ConditionalNode selects between two values based on a condition.
type ConditionalNode struct{ NodeBase }

func (*ConditionalNode) Op() string { return "Conditional" }

func NewConditional(g *Graph, condition, trueValue, falseValue Node) *ConditionalNode {
	n := &ConditionalNode{}
	n.stamp = IntStamp(trueValue.Stamp().Kind)
	g.Add(n)
	g.AppendInput(n, condition)
	g.AppendInput(n, trueValue)
	g.AppendInput(n, falseValue)
	return n
}

func (n *ConditionalNode) Condition() Node  { return n.In(0) }
func (n *ConditionalNode) TrueValue() Node  { return n.In(1) }
func (n *ConditionalNode) FalseValue() Node { return n.In(2) }

// PhiType distinguishes value phis from guard-anchor phis.
type PhiType int

const (
	PhiValue PhiType = iota
	PhiGuard
)

// PhiNode selects among per-predecessor inputs at a merge. Input 0 is the
// merge; inputs 1..n correspond to the merge's predecessor edges in order.
type PhiNode struct {
	NodeBase
	Type PhiType
}

func (*PhiNode) Op() string { return "Phi" }

func NewPhi(g *Graph, merge Node, kind Kind, values ...Node) *PhiNode {
	n := &PhiNode{Type: PhiValue}
	n.stamp = stampForKind(kind)
	g.Add(n)
	g.AppendInput(n, merge)
	for _, v := range values {
		g.AppendInput(n, v)
	}
	return n
}

// NewGuardPhi creates a phi over guard anchors, one per merge predecessor.
func NewGuardPhi(g *Graph, merge Node, anchors ...Node) *PhiNode {
	n := &PhiNode{Type: PhiGuard}
	n.stamp = VoidStamp
	g.Add(n)
	g.AppendInput(n, merge)
	for _, a := range anchors {
		g.AppendInput(n, a)
	}
	return n
}

// Merge returns the merge this phi belongs to.
func (n *PhiNode) Merge() Node { return n.In(0) }

// ValueAt returns the value flowing in over predecessor edge i.
func (n *PhiNode) ValueAt(i int) Node { return n.In(i + 1) }

// ValueCount returns the number of per-predecessor inputs.
func (n *PhiNode) ValueCount() int { return n.InputCount() - 1 }

// GuardNode is a floating deoptimization condition. Input 0 is the
// condition, input 1 the anchor after which the guard's safety is
// established; any further inputs are extra dependencies that make the
// guard ineligible for dedup hoisting.
type GuardNode struct {
	NodeBase
	IsNegated bool
	Reason    DeoptReason
	Action    DeoptAction
}

func (*GuardNode) Op() string { return "Guard" }

func NewGuard(g *Graph, condition Node, anchor Node, negated bool, reason DeoptReason, action DeoptAction) *GuardNode {
	n := &GuardNode{IsNegated: negated, Reason: reason, Action: action}
	g.Add(n)
	g.AppendInput(n, condition)
	g.AppendInput(n, anchor)
	return n
}

// Condition returns the guarded condition.
func (n *GuardNode) Condition() Node { return n.In(0) }

// Negated reports whether the guard deoptimizes when the condition holds.
func (n *GuardNode) Negated() bool { return n.IsNegated }

// Anchor returns the control point after which the guard may float.
func (n *GuardNode) Anchor() Node { return n.In(1) }

// DependencyCount returns the number of non-condition inputs. A guard with
// exactly one dependency (its anchor) is eligible for dedup hoisting.
func (n *GuardNode) DependencyCount() int { return n.InputCount() - 1 }

func stampForKind(kind Kind) Stamp {
	switch kind {
	case KindVoid:
		return VoidStamp
	case KindPtr:
		return PtrStamp()
	case KindBool:
		return BoolStamp()
	default:
		return IntStamp(kind)
	}
}
