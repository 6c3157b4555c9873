package gir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/seaofnodes/sea/pkg/ir"
)

// Reader parses the textual graph form back into graphs. Errors are
// collected rather than aborting the parse; a graph built from a file with
// errors is incomplete and must be discarded.
type Reader struct {
	scanner *bufio.Scanner
	line    int
	errors  []string
}

// NewReader creates a reader over src.
func NewReader(src io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(src)}
}

// Errors returns the list of parse errors.
func (r *Reader) Errors() []string { return r.errors }

func (r *Reader) addError(msg string) {
	r.errors = append(r.errors, fmt.Sprintf("line %d: %s", r.line, msg))
}

// Parse reads every graph in src.
func Parse(src string) ([]*ir.Graph, []string) {
	r := NewReader(strings.NewReader(src))
	graphs := r.ReadGraphs()
	return graphs, r.Errors()
}

// graphState accumulates one graph while its lines are read. Phi values and
// successor edges may reference later lines, so they are wired after the
// last line of the graph.
type graphState struct {
	g     *ir.Graph
	nodes map[string]ir.Node

	phis  []phiPatch
	succs []succPatch
}

type phiPatch struct {
	phi    *ir.PhiNode
	values []string
	line   int
}

type succPatch struct {
	n    ir.Node
	refs []string
	line int
}

// ReadGraphs reads until EOF. Blank lines and '#' comments are skipped; a
// `graph <name>` header starts the next graph.
func (r *Reader) ReadGraphs() []*ir.Graph {
	var graphs []*ir.Graph
	var st *graphState
	for r.scanner.Scan() {
		r.line++
		text := strings.TrimSpace(r.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		tokens := strings.Fields(text)
		if tokens[0] == "graph" {
			if st != nil {
				r.finish(st)
			}
			if len(tokens) != 2 {
				r.addError("graph header wants exactly one name")
				st = nil
				continue
			}
			st = &graphState{g: ir.NewGraph(tokens[1]), nodes: make(map[string]ir.Node)}
			graphs = append(graphs, st.g)
			continue
		}
		if st == nil {
			r.addError("node line before the first graph header")
			continue
		}
		r.parseNode(st, tokens)
	}
	if st != nil {
		r.finish(st)
	}
	return graphs
}

// resolve returns the node a reference names, or nil for the '_' hole.
func (r *Reader) resolve(st *graphState, ref string) ir.Node {
	if ref == "_" {
		return nil
	}
	n, ok := st.nodes[ref]
	if !ok {
		r.addError(fmt.Sprintf("undefined node %s", ref))
	}
	return n
}

// need resolves a reference that may not be a hole.
func (r *Reader) need(st *graphState, ref string) (ir.Node, bool) {
	if ref == "_" {
		r.addError("'_' not allowed here")
		return nil, false
	}
	n := r.resolve(st, ref)
	return n, n != nil
}

func (r *Reader) wantArgs(op string, args []string, min, max int) bool {
	if len(args) >= min && (max < 0 || len(args) <= max) {
		return true
	}
	r.addError(fmt.Sprintf("%s wants %d..%d operands, got %d", op, min, max, len(args)))
	return false
}

func (r *Reader) parseKind(tok string) (ir.Kind, bool) {
	switch tok {
	case "void":
		return ir.KindVoid, true
	case "i32":
		return ir.KindI32, true
	case "i64":
		return ir.KindI64, true
	case "ptr":
		return ir.KindPtr, true
	case "bool":
		return ir.KindBool, true
	}
	r.addError(fmt.Sprintf("unknown kind %q", tok))
	return ir.KindVoid, false
}

func (r *Reader) parseInt(tok string) (int64, bool) {
	v, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		r.addError(fmt.Sprintf("bad integer %q", tok))
		return 0, false
	}
	return v, true
}

func (r *Reader) parseReason(tok string) (ir.DeoptReason, bool) {
	for _, reason := range []ir.DeoptReason{
		ir.ReasonNone, ir.ReasonNullCheck, ir.ReasonBoundsCheck,
		ir.ReasonTypeCheck, ir.ReasonLoopOverflow, ir.ReasonUnreachedCode,
	} {
		if reason.String() == tok {
			return reason, true
		}
	}
	r.addError(fmt.Sprintf("unknown deopt reason %q", tok))
	return ir.ReasonNone, false
}

func (r *Reader) parseAction(tok string) (ir.DeoptAction, bool) {
	for _, action := range []ir.DeoptAction{
		ir.ActionNone, ir.ActionRecompileIfTooManyDeopts,
		ir.ActionInvalidateReprofile, ir.ActionInvalidateRecompile,
		ir.ActionInvalidateStopCompiling,
	} {
		if action.String() == tok {
			return action, true
		}
	}
	r.addError(fmt.Sprintf("unknown deopt action %q", tok))
	return ir.ActionNone, false
}

func (r *Reader) parseNode(st *graphState, tokens []string) {
	if len(tokens) < 3 || tokens[1] != "=" || !strings.HasPrefix(tokens[0], "v") {
		r.addError("node line wants the form `vN = Op ...`")
		return
	}
	name := tokens[0]
	if _, dup := st.nodes[name]; dup {
		r.addError(fmt.Sprintf("node %s defined twice", name))
		return
	}
	op := tokens[2]

	rest := tokens[3:]
	var succRefs []string
	for i, tok := range rest {
		if tok == "->" {
			succRefs = rest[i+1:]
			rest = rest[:i]
			break
		}
	}

	n := r.createNode(st, op, rest)
	if n == nil {
		return
	}
	st.nodes[name] = n
	if len(succRefs) > 0 {
		st.succs = append(st.succs, succPatch{n: n, refs: succRefs, line: r.line})
	}
}

// createNode builds the node for one line. Operand references other than
// phi values must name earlier lines.
func (r *Reader) createNode(st *graphState, op string, args []string) ir.Node {
	g := st.g

	// binary resolves exactly two earlier operands.
	binary := func() (ir.Node, ir.Node, bool) {
		if !r.wantArgs(op, args, 2, 2) {
			return nil, nil, false
		}
		x, okX := r.need(st, args[0])
		y, okY := r.need(st, args[1])
		return x, y, okX && okY
	}

	switch op {
	case "Start":
		if !r.wantArgs(op, args, 0, 0) {
			return nil
		}
		return ir.NewStart(g)
	case "Begin":
		if !r.wantArgs(op, args, 0, 0) {
			return nil
		}
		return ir.NewBegin(g)
	case "End":
		if !r.wantArgs(op, args, 0, 0) {
			return nil
		}
		return ir.NewEnd(g)
	case "Merge":
		ends := make([]*ir.EndNode, 0, len(args))
		for _, ref := range args {
			n, ok := r.need(st, ref)
			if !ok {
				return nil
			}
			end, ok := n.(*ir.EndNode)
			if !ok {
				r.addError(fmt.Sprintf("Merge operand %s is a %s, not an End", ref, n.Op()))
				return nil
			}
			ends = append(ends, end)
		}
		return ir.NewMerge(g, ends...)
	case "LoopBegin":
		if !r.wantArgs(op, args, 1, 1) {
			return nil
		}
		n, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		fwd, ok := n.(*ir.EndNode)
		if !ok {
			r.addError(fmt.Sprintf("LoopBegin forward edge is a %s, not an End", n.Op()))
			return nil
		}
		return ir.NewLoopBegin(g, fwd)
	case "LoopEnd", "LoopExit":
		if !r.wantArgs(op, args, 1, 1) {
			return nil
		}
		n, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		loop, ok := n.(*ir.LoopBeginNode)
		if !ok {
			r.addError(fmt.Sprintf("%s operand is a %s, not a LoopBegin", op, n.Op()))
			return nil
		}
		if op == "LoopEnd" {
			return ir.NewLoopEnd(g, loop)
		}
		return ir.NewLoopExit(g, loop)
	case "If":
		if !r.wantArgs(op, args, 1, 1) {
			return nil
		}
		cond, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		return ir.NewIf(g, cond, nil, nil)
	case "Return":
		if !r.wantArgs(op, args, 0, 1) {
			return nil
		}
		if len(args) == 0 {
			return ir.NewReturn(g, nil)
		}
		result, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		return ir.NewReturn(g, result)
	case "Invoke":
		if !r.wantArgs(op, args, 2, -1) {
			return nil
		}
		kind, ok := r.parseKind(args[0])
		if !ok {
			return nil
		}
		if !strings.HasPrefix(args[1], "@") {
			r.addError("Invoke callee wants an @name")
			return nil
		}
		callArgs := make([]ir.Node, 0, len(args)-2)
		for _, ref := range args[2:] {
			a, ok := r.need(st, ref)
			if !ok {
				return nil
			}
			callArgs = append(callArgs, a)
		}
		return ir.NewInvoke(g, strings.TrimPrefix(args[1], "@"), kind, callArgs...)
	case "Read":
		if !r.wantArgs(op, args, 2, 3) {
			return nil
		}
		kind, ok := r.parseKind(args[0])
		if !ok {
			return nil
		}
		addr, ok := r.need(st, args[1])
		if !ok {
			return nil
		}
		var guard ir.Node
		if len(args) == 3 {
			if guard, ok = r.need(st, args[2]); !ok {
				return nil
			}
		}
		return ir.NewRead(g, addr, kind, guard)
	case "Write":
		if !r.wantArgs(op, args, 3, 4) {
			return nil
		}
		addr, okA := r.need(st, args[0])
		value, okV := r.need(st, args[1])
		object, okO := r.need(st, args[2])
		if !okA || !okV || !okO {
			return nil
		}
		var guard ir.Node
		if len(args) == 4 {
			var ok bool
			if guard, ok = r.need(st, args[3]); !ok {
				return nil
			}
		}
		return ir.NewWrite(g, addr, value, object, guard)
	case "WriteBarrier":
		if !r.wantArgs(op, args, 1, 1) {
			return nil
		}
		object, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		return ir.NewWriteBarrier(g, object)
	case "LoadField", "StoreField":
		min := 3
		if op == "StoreField" {
			min = 4
		}
		if !r.wantArgs(op, args, min, min) {
			return nil
		}
		kind, okK := r.parseKind(args[0])
		offset, okO := r.parseInt(args[1])
		object, okN := r.need(st, args[2])
		if !okK || !okO || !okN {
			return nil
		}
		if op == "LoadField" {
			return ir.NewLoadField(g, object, offset, kind)
		}
		value, ok := r.need(st, args[3])
		if !ok {
			return nil
		}
		return ir.NewStoreField(g, object, value, offset, kind)
	case "Param":
		if !r.wantArgs(op, args, 2, 2) {
			return nil
		}
		kind, okK := r.parseKind(args[0])
		index, okI := r.parseInt(args[1])
		if !okK || !okI {
			return nil
		}
		return ir.NewParam(g, int(index), kind)
	case "Const":
		if !r.wantArgs(op, args, 2, 2) {
			return nil
		}
		kind, okK := r.parseKind(args[0])
		value, okV := r.parseInt(args[1])
		if !okK || !okV {
			return nil
		}
		return ir.NewConst(g, kind, value)
	case "Add":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewAdd(g, x, y)
	case "Sub":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewSub(g, x, y)
	case "Mul":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewMul(g, x, y)
	case "Shl":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewShl(g, x, y)
	case "IntegerDiv":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewIntegerDiv(g, x, y)
	case "Less":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewLess(g, x, y)
	case "Equals":
		x, y, ok := binary()
		if !ok {
			return nil
		}
		return ir.NewEquals(g, x, y)
	case "Neg", "IsNull":
		if !r.wantArgs(op, args, 1, 1) {
			return nil
		}
		x, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		if op == "Neg" {
			return ir.NewNeg(g, x)
		}
		return ir.NewIsNull(g, x)
	case "Conditional":
		if !r.wantArgs(op, args, 3, 3) {
			return nil
		}
		cond, okC := r.need(st, args[0])
		tv, okT := r.need(st, args[1])
		fv, okF := r.need(st, args[2])
		if !okC || !okT || !okF {
			return nil
		}
		return ir.NewConditional(g, cond, tv, fv)
	case "Phi":
		if !r.wantArgs(op, args, 2, -1) {
			return nil
		}
		kind, ok := r.parseKind(args[0])
		if !ok {
			return nil
		}
		merge, ok := r.need(st, args[1])
		if !ok {
			return nil
		}
		phi := ir.NewPhi(g, merge, kind)
		st.phis = append(st.phis, phiPatch{phi: phi, values: args[2:], line: r.line})
		return phi
	case "GuardPhi":
		if !r.wantArgs(op, args, 1, -1) {
			return nil
		}
		merge, ok := r.need(st, args[0])
		if !ok {
			return nil
		}
		phi := ir.NewGuardPhi(g, merge)
		st.phis = append(st.phis, phiPatch{phi: phi, values: args[1:], line: r.line})
		return phi
	case "Guard":
		if !r.wantArgs(op, args, 5, -1) {
			return nil
		}
		var negated bool
		switch args[0] {
		case "negated":
			negated = true
		case "direct":
		default:
			r.addError(fmt.Sprintf("guard polarity %q, want negated or direct", args[0]))
			return nil
		}
		reason, okR := r.parseReason(args[1])
		action, okA := r.parseAction(args[2])
		cond, okC := r.need(st, args[3])
		anchor, okN := r.need(st, args[4])
		if !okR || !okA || !okC || !okN {
			return nil
		}
		guard := ir.NewGuard(g, cond, anchor, negated, reason, action)
		for _, ref := range args[5:] {
			extra, ok := r.need(st, ref)
			if !ok {
				return nil
			}
			g.AppendInput(guard, extra)
		}
		return guard
	}
	r.addError(fmt.Sprintf("unknown operation %q", op))
	return nil
}

// finish wires the deferred edges of one graph: phi values, then control
// successors.
func (r *Reader) finish(st *graphState) {
	for _, p := range st.phis {
		r.line = p.line
		for _, ref := range p.values {
			st.g.AppendInput(p.phi, r.resolve(st, ref))
		}
	}
	for _, sp := range st.succs {
		r.line = sp.line
		have := len(sp.n.Successors())
		for i, ref := range sp.refs {
			target := r.resolve(st, ref)
			if i < have {
				st.g.SetSuccessor(sp.n, i, target)
			} else {
				st.g.AppendSuccessor(sp.n, target)
			}
		}
	}
}
