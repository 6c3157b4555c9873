package comp

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"

	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/target"
)

type mapProvider map[string]*ir.Graph

func (m mapProvider) GraphFor(callee string) *ir.Graph { return m[callee] }

func testContext() *Context {
	return NewContext(logr.Discard(), target.AMD64())
}

func countOp(g *ir.Graph, op string) int {
	n := 0
	for _, node := range g.Nodes() {
		if node.Op() == op {
			n++
		}
	}
	return n
}

func TestCompileStraightLine(t *testing.T) {
	g := ir.NewGraph("line")
	start := ir.NewStart(g)
	sum := ir.NewAdd(g, ir.NewParam(g, 0, ir.KindI64), ir.NewParam(g, 1, ir.KindI64))
	ret := ir.NewReturn(g, sum)
	g.SetSuccessor(start, 0, ret)

	c := testContext()
	res, err := c.Compile(context.Background(), g)
	require.NoError(t, err)
	require.NotNil(t, res.Schedule)
	require.NotNil(t, res.Allocation)
	require.True(t, res.Allocation.LocationOf(sum).IsRegister())
	require.EqualValues(t, 1, c.Metrics.Compilations.Load())
	require.EqualValues(t, 0, c.Metrics.Failures.Load())
}

func TestCompileLowersFieldAccess(t *testing.T) {
	g := ir.NewGraph("fields")
	start := ir.NewStart(g)
	obj := ir.NewParam(g, 0, ir.KindPtr)
	load := ir.NewLoadField(g, obj, 16, ir.KindPtr)
	g.SetSuccessor(start, 0, load)
	store := ir.NewStoreField(g, obj, load, 24, ir.KindPtr)
	g.SetSuccessor(load, 0, store)
	ret := ir.NewReturn(g, nil)
	g.SetSuccessor(store, 0, ret)

	c := testContext()
	res, err := c.Compile(context.Background(), g)
	require.NoError(t, err)

	require.Equal(t, 0, countOp(g, "LoadField"), "field access should be lowered away")
	require.Equal(t, 0, countOp(g, "StoreField"))
	require.Equal(t, 1, countOp(g, "Read"))
	require.Equal(t, 1, countOp(g, "Write"))
	// Storing a pointer must leave a barrier behind the write.
	require.Equal(t, 1, countOp(g, "WriteBarrier"))
	require.EqualValues(t, 1, c.Metrics.Barriers.Load())
	require.NotNil(t, res.Allocation)
}

func TestCompileInlinesKnownCallee(t *testing.T) {
	callee := ir.NewGraph("seven")
	cs := ir.NewStart(callee)
	cret := ir.NewReturn(callee, ir.NewConst(callee, ir.KindI64, 7))
	callee.SetSuccessor(cs, 0, cret)

	g := ir.NewGraph("root")
	start := ir.NewStart(g)
	call := ir.NewInvoke(g, "seven", ir.KindI64)
	ret := ir.NewReturn(g, call)
	g.SetSuccessor(start, 0, call)
	g.SetSuccessor(call, 0, ret)

	c := testContext()
	c.Graphs = mapProvider{"seven": callee}
	_, err := c.Compile(context.Background(), g)
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Metrics.Inlined.Load())
	require.Equal(t, 0, countOp(g, "Invoke"))
}

func TestCompileInsertsLoopOverflowGuard(t *testing.T) {
	g := ir.NewGraph("loop")
	start := ir.NewStart(g)
	entryEnd := ir.NewEnd(g)
	g.SetSuccessor(start, 0, entryEnd)

	loop := ir.NewLoopBegin(g, entryEnd)
	phi := ir.NewPhi(g, loop, ir.KindI64, ir.NewConst(g, ir.KindI64, 0))
	cond := ir.NewLess(g, phi, ir.NewParam(g, 0, ir.KindI64))

	body := ir.NewBegin(g)
	exit := ir.NewLoopExit(g, loop)
	branch := ir.NewIf(g, cond, body, exit)
	g.SetSuccessor(loop, 0, branch)

	le := ir.NewLoopEnd(g, loop)
	g.SetSuccessor(body, 0, le)
	g.AppendInput(phi, ir.NewAdd(g, phi, ir.NewConst(g, ir.KindI64, 1)))

	ret := ir.NewReturn(g, phi)
	g.SetSuccessor(exit, 0, ret)

	c := testContext()
	_, err := c.Compile(context.Background(), g)
	require.NoError(t, err)
	require.EqualValues(t, 1, c.Metrics.OverflowGuards.Load())

	// The guard must survive the dead-node sweeps of the passes that run
	// after loop analysis, not just linger as a stale pointer.
	guard := loop.OverflowGuard()
	require.NotNil(t, guard)
	require.True(t, guard.Alive())
	require.Equal(t, 1, countOp(g, "Guard"))
}

func TestCancelledContextStopsCompilation(t *testing.T) {
	g := ir.NewGraph("cancelled")
	start := ir.NewStart(g)
	ret := ir.NewReturn(g, ir.NewConst(g, ir.KindI64, 1))
	g.SetSuccessor(start, 0, ret)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := testContext().Compile(ctx, g)
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, res)
}

func TestInternalErrorAbortsOnlyThisCompilation(t *testing.T) {
	// The callee reads a parameter the call site never passes; splicing
	// its body is an internal consistency failure.
	callee := ir.NewGraph("broken")
	cs := ir.NewStart(callee)
	p := ir.NewParam(callee, 1, ir.KindI64)
	cret := ir.NewReturn(callee, p)
	callee.SetSuccessor(cs, 0, cret)

	g := ir.NewGraph("root")
	start := ir.NewStart(g)
	call := ir.NewInvoke(g, "broken", ir.KindI64, ir.NewConst(g, ir.KindI64, 3))
	ret := ir.NewReturn(g, call)
	g.SetSuccessor(start, 0, call)
	g.SetSuccessor(call, 0, ret)

	c := testContext()
	c.Graphs = mapProvider{"broken": callee}
	res, err := c.Compile(context.Background(), g)
	require.Error(t, err)
	var fatal *ir.InternalError
	require.ErrorAs(t, err, &fatal)
	require.Nil(t, res)
	require.EqualValues(t, 1, c.Metrics.Failures.Load())

	// The context stays usable for the next compilation.
	g2 := ir.NewGraph("next")
	s2 := ir.NewStart(g2)
	r2 := ir.NewReturn(g2, ir.NewConst(g2, ir.KindI64, 4))
	g2.SetSuccessor(s2, 0, r2)
	_, err = c.Compile(context.Background(), g2)
	require.NoError(t, err)
}
