// Package profile exposes the profiling information the optimizer consults:
// branch probabilities, call-site frequencies and deoptimization history,
// queried by (site, statistic) and never mutated by the compiler.
package profile

import "github.com/seaofnodes/sea/pkg/ir"

// Stat identifies one profiled statistic.
type Stat int

const (
	// StatBranchTaken is the probability of an If's true successor.
	StatBranchTaken Stat = iota
	// StatCallProbability is the relative execution probability of a
	// call site within its compilation unit.
	StatCallProbability
	// StatDeoptCount is the number of recorded deoptimizations at a site.
	StatDeoptCount
)

// Provider answers profiling queries for one compilation unit.
type Provider interface {
	// Query returns the recorded value for a site, or the statistic's
	// neutral default when nothing was recorded.
	Query(site ir.Node, stat Stat) float64
}

// neutral is the per-statistic value reported for unprofiled sites.
func neutral(stat Stat) float64 {
	switch stat {
	case StatBranchTaken:
		return 0.5
	case StatCallProbability:
		return 1
	}
	return 0
}

// Table is a Provider backed by recorded per-node values.
type Table struct {
	values map[tableKey]float64
}

type tableKey struct {
	node ir.NodeID
	stat Stat
}

// NewTable returns an empty profile table.
func NewTable() *Table {
	return &Table{values: make(map[tableKey]float64)}
}

// Record stores one observation, replacing any previous value.
func (t *Table) Record(site ir.Node, stat Stat, value float64) {
	t.values[tableKey{site.ID(), stat}] = value
}

func (t *Table) Query(site ir.Node, stat Stat) float64 {
	if v, ok := t.values[tableKey{site.ID(), stat}]; ok {
		return v
	}
	return neutral(stat)
}

// Empty is a Provider with no recorded data; every query reports the
// neutral default.
type Empty struct{}

func (Empty) Query(_ ir.Node, stat Stat) float64 { return neutral(stat) }
