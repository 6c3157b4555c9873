package lsra

import "github.com/seaofnodes/sea/pkg/ir"

// posInfinity orders past every real operation number.
const posInfinity = int(^uint(0) >> 1)

// Range is one half-open [From, To) span of operation numbers.
type Range struct {
	From, To int
}

// Interval is the live range of one value: sorted disjoint ranges plus the
// use positions inside them. Splitting produces parent/child chains; the
// children are walked separately and linked for move insertion.
type Interval struct {
	Value ir.Node

	ranges []Range
	uses   []int

	location Location

	parent   *Interval
	children []*Interval // in split order, ascending From
}

// From returns the interval's first covered position.
func (it *Interval) From() int {
	if len(it.ranges) == 0 {
		return posInfinity
	}
	return it.ranges[0].From
}

// To returns the position just past the last covered one.
func (it *Interval) To() int {
	if len(it.ranges) == 0 {
		return 0
	}
	return it.ranges[len(it.ranges)-1].To
}

// Location returns the assigned register or stack slot.
func (it *Interval) Location() Location { return it.location }

// Parent returns the original unsplit interval (itself for parents).
func (it *Interval) Parent() *Interval {
	if it.parent != nil {
		return it.parent
	}
	return it
}

// Children returns the split children in ascending start order.
func (it *Interval) Children() []*Interval { return it.children }

// addRange extends coverage by [from, to). Construction walks blocks
// backwards, so new ranges arrive at or before the current first range and
// merge with it when they touch.
func (it *Interval) addRange(from, to int) {
	if from >= to {
		return
	}
	if len(it.ranges) > 0 && to >= it.ranges[0].From {
		r := &it.ranges[0]
		if from < r.From {
			r.From = from
		}
		if to > r.To {
			r.To = to
		}
		// Coalesce with later ranges the extension now reaches.
		for len(it.ranges) > 1 && it.ranges[1].From <= it.ranges[0].To {
			if it.ranges[1].To > it.ranges[0].To {
				it.ranges[0].To = it.ranges[1].To
			}
			it.ranges = append(it.ranges[:1], it.ranges[2:]...)
		}
		return
	}
	it.ranges = append([]Range{{From: from, To: to}}, it.ranges...)
}

// setFrom trims the first range to start at the definition.
func (it *Interval) setFrom(pos int) {
	if len(it.ranges) == 0 {
		it.ranges = []Range{{From: pos, To: pos + 2}}
		return
	}
	it.ranges[0].From = pos
}

// addUse records a use position (construction order is descending).
func (it *Interval) addUse(pos int) {
	if len(it.uses) > 0 && it.uses[0] == pos {
		return
	}
	it.uses = append([]int{pos}, it.uses...)
}

// Covers reports whether pos lies inside one of the ranges.
func (it *Interval) Covers(pos int) bool {
	for _, r := range it.ranges {
		if pos < r.From {
			return false
		}
		if pos < r.To {
			return true
		}
	}
	return false
}

// NextUseAfter returns the first use at or after pos, or infinity.
func (it *Interval) NextUseAfter(pos int) int {
	for _, u := range it.uses {
		if u >= pos {
			return u
		}
	}
	return posInfinity
}

// FirstUse returns the earliest use, or infinity for use-free intervals.
func (it *Interval) FirstUse() int {
	if len(it.uses) == 0 {
		return posInfinity
	}
	return it.uses[0]
}

// NextIntersectionAfter returns the first position at or after pos covered
// by both intervals, or infinity.
func (it *Interval) NextIntersectionAfter(other *Interval, pos int) int {
	for _, r := range it.ranges {
		if r.To <= pos {
			continue
		}
		for _, o := range other.ranges {
			lo := max(max(r.From, o.From), pos)
			hi := min(r.To, o.To)
			if lo < hi {
				return lo
			}
		}
	}
	return posInfinity
}

// SplitAt cuts the interval at pos. Everything at or past pos moves into a
// new child of the same parent; ranges straddling the cut are divided.
func (it *Interval) SplitAt(pos int) *Interval {
	child := &Interval{Value: it.Value, parent: it.Parent()}

	var keep []Range
	for _, r := range it.ranges {
		switch {
		case r.To <= pos:
			keep = append(keep, r)
		case r.From >= pos:
			child.ranges = append(child.ranges, r)
		default:
			keep = append(keep, Range{From: r.From, To: pos})
			child.ranges = append(child.ranges, Range{From: pos, To: r.To})
		}
	}
	it.ranges = keep

	cut := len(it.uses)
	for i, u := range it.uses {
		if u >= pos {
			cut = i
			break
		}
	}
	child.uses = append(child.uses, it.uses[cut:]...)
	it.uses = it.uses[:cut]

	p := it.Parent()
	p.children = append(p.children, child)
	return child
}

// childAt returns the chain member (parent or child) covering pos, or the
// last one starting before pos when pos falls into a hole.
func (it *Interval) childAt(pos int) *Interval {
	p := it.Parent()
	best := p
	if p.Covers(pos) {
		return p
	}
	for _, c := range p.children {
		if c.Covers(pos) {
			return c
		}
		if c.From() <= pos && c.From() >= best.From() {
			best = c
		}
	}
	return best
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
