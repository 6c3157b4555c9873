// Package comp drives one compilation: the optimization passes run in a
// fixed order over a single graph, with cancellation checkpoints between
// passes. A fatal internal inconsistency aborts only the compilation that
// raised it; the error is returned and the partial graph discarded.
package comp

import (
	"context"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/seaofnodes/sea/pkg/barrier"
	"github.com/seaofnodes/sea/pkg/canon"
	"github.com/seaofnodes/sea/pkg/cfg"
	"github.com/seaofnodes/sea/pkg/guardopt"
	"github.com/seaofnodes/sea/pkg/inline"
	"github.com/seaofnodes/sea/pkg/ir"
	"github.com/seaofnodes/sea/pkg/loops"
	"github.com/seaofnodes/sea/pkg/lower"
	"github.com/seaofnodes/sea/pkg/lsra"
	"github.com/seaofnodes/sea/pkg/profile"
	"github.com/seaofnodes/sea/pkg/schedule"
	"github.com/seaofnodes/sea/pkg/target"
)

// Metrics accumulates pass counters. One instance may be shared by
// concurrent compilations.
type Metrics struct {
	Compilations   atomic.Int64
	Failures       atomic.Int64
	Canonicalized  atomic.Int64
	Inlined        atomic.Int64
	GuardsRemoved  atomic.Int64
	OverflowGuards atomic.Int64
	Lowered        atomic.Int64
	Barriers       atomic.Int64
	SpillSlots     atomic.Int64
}

// Context is the shared configuration of a set of compilations. The graph
// under compilation is the only mutable state a pipeline run touches;
// everything here is read-only apart from the metrics.
type Context struct {
	Log     logr.Logger
	Metrics *Metrics
	Target  *target.Description

	// Profile answers profiling queries; nil means no recorded data.
	Profile profile.Provider
	// Graphs resolves callee names for inlining; nil disables inlining.
	Graphs   inline.GraphProvider
	Inlining inline.Policy

	Variant lsra.Variant
}

// NewContext returns a context with the default policy knobs.
func NewContext(log logr.Logger, d *target.Description) *Context {
	return &Context{
		Log:      log,
		Metrics:  &Metrics{},
		Target:   d,
		Inlining: inline.DefaultPolicy(),
	}
}

func (c *Context) profile() profile.Provider {
	if c.Profile != nil {
		return c.Profile
	}
	return profile.Empty{}
}

// Result is a finished compilation.
type Result struct {
	Graph      *ir.Graph
	Schedule   *schedule.Schedule
	Allocation *lsra.Allocation
}

func checkpoint(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Compile runs the pipeline over g, mutating it in place:
// canonicalize, inline, guard deduplication, loop analysis with overflow
// guards, lowering, write barriers, scheduling, register allocation.
func (c *Context) Compile(ctx context.Context, g *ir.Graph) (res *Result, err error) {
	m := c.Metrics
	m.Compilations.Add(1)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fatal, ok := r.(*ir.InternalError)
		if !ok {
			panic(r)
		}
		m.Failures.Add(1)
		c.Log.Error(fatal, "compilation aborted", "graph", g.Name)
		res, err = nil, fatal
	}()
	log := c.Log.WithValues("graph", g.Name)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	m.Canonicalized.Add(int64(canon.Apply(g)))

	if c.Graphs != nil {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		stats := inline.Run(g, c.Graphs, c.profile(), c.Inlining, log)
		m.Inlined.Add(int64(stats.Inlined))
		m.Canonicalized.Add(int64(canon.Apply(g)))
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	m.GuardsRemoved.Add(int64(guardopt.Apply(g)))

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	mark := g.Mark()
	loopData := loops.Analyze(cfg.Compute(g))
	for _, l := range loopData.Loops {
		info := l.Counted()
		if info == nil {
			continue
		}
		info.OverflowGuard()
		m.OverflowGuards.Add(1)
		if trips, ok := info.MaxTripCount(); ok {
			log.V(2).Info("counted loop", "header", l.Begin.ID(), "trips", trips)
		}
	}
	m.Canonicalized.Add(int64(canon.ApplySince(g, mark)))

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	m.Lowered.Add(int64(lower.Apply(g)))

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	m.Barriers.Add(int64(barrier.Apply(g)))

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	sched := schedule.Compute(g)

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}
	alloc := lsra.Run(sched, c.Target, c.Variant)
	m.SpillSlots.Add(int64(alloc.SpillSlots))

	log.V(1).Info("compiled",
		"blocks", len(sched.CFG.Blocks),
		"nodes", g.LiveCount(),
		"spillSlots", alloc.SpillSlots)
	return &Result{Graph: g, Schedule: sched, Allocation: alloc}, nil
}
