package lsra

import "sort"

// walker performs the linear scan: intervals are visited in start order
// while active (covering the position), inactive (in a hole) and handled
// sets are maintained. Register exhaustion spills the interval with the
// furthest next use.
type walker struct {
	numRegs   int
	firstSlot int // spill slots start past the incoming-argument slots

	unhandled []*Interval
	active    []*Interval
	inactive  []*Interval

	spillSlots int
}

func (w *walker) newSpillSlot() Location {
	s := Slot(w.firstSlot + w.spillSlots)
	w.spillSlots++
	return s
}

func (w *walker) enqueue(it *Interval) {
	i := sort.Search(len(w.unhandled), func(i int) bool {
		return w.unhandled[i].From() > it.From()
	})
	w.unhandled = append(w.unhandled, nil)
	copy(w.unhandled[i+1:], w.unhandled[i:])
	w.unhandled[i] = it
}

func (w *walker) walk() {
	for len(w.unhandled) > 0 {
		cur := w.unhandled[0]
		w.unhandled = w.unhandled[1:]
		if len(cur.ranges) == 0 {
			continue
		}
		pos := cur.From()

		w.retire(pos)

		if !w.tryAllocateFree(cur, pos) {
			w.allocateBlocked(cur, pos)
		}
		if cur.location.IsRegister() {
			w.active = append(w.active, cur)
		}
	}
}

// retire moves intervals between the active and inactive sets as the scan
// position advances, dropping the ones that ended.
func (w *walker) retire(pos int) {
	var active, inactive []*Interval
	for _, it := range w.active {
		switch {
		case it.To() <= pos:
			// handled
		case !it.Covers(pos):
			inactive = append(inactive, it)
		default:
			active = append(active, it)
		}
	}
	for _, it := range w.inactive {
		switch {
		case it.To() <= pos:
			// handled
		case it.Covers(pos):
			active = append(active, it)
		default:
			inactive = append(inactive, it)
		}
	}
	w.active, w.inactive = active, inactive
}

// tryAllocateFree assigns a register that is free for the whole interval,
// or free long enough that splitting at the conflict is worthwhile.
func (w *walker) tryAllocateFree(cur *Interval, pos int) bool {
	freeUntil := make([]int, w.numRegs)
	for r := range freeUntil {
		freeUntil[r] = posInfinity
	}
	for _, it := range w.active {
		if it.location.IsRegister() {
			freeUntil[it.location.Num()] = 0
		}
	}
	for _, it := range w.inactive {
		if it.location.IsRegister() {
			r := it.location.Num()
			if x := it.NextIntersectionAfter(cur, pos); x < freeUntil[r] {
				freeUntil[r] = x
			}
		}
	}

	reg, until := -1, 0
	for r, f := range freeUntil {
		if f > until {
			reg, until = r, f
		}
	}
	if reg < 0 || until <= pos {
		return false
	}
	cur.location = Reg(reg)
	if until < cur.To() {
		// Partially free: keep the register while it lasts.
		w.enqueue(cur.SplitAt(until))
	}
	return true
}

// allocateBlocked frees a register by spilling, preferring the interval
// whose next use is furthest away; if that is the current interval itself
// it goes to the stack instead.
func (w *walker) allocateBlocked(cur *Interval, pos int) {
	nextUse := make([]int, w.numRegs)
	for r := range nextUse {
		nextUse[r] = posInfinity
	}
	use := func(it *Interval) {
		if !it.location.IsRegister() {
			return
		}
		r := it.location.Num()
		if u := it.NextUseAfter(pos); u < nextUse[r] {
			nextUse[r] = u
		}
	}
	for _, it := range w.active {
		use(it)
	}
	for _, it := range w.inactive {
		if it.NextIntersectionAfter(cur, pos) < posInfinity {
			use(it)
		}
	}

	reg, furthest := -1, 0
	for r, u := range nextUse {
		if u > furthest {
			reg, furthest = r, u
		}
	}

	if reg < 0 || cur.NextUseAfter(pos) > furthest {
		// Everything else is used sooner; spill the current interval.
		cur.location = w.newSpillSlot()
		return
	}

	// Evict the furthest-used owner(s) of reg from pos on.
	for _, it := range w.active {
		if it.location == Reg(reg) && it.To() > pos {
			child := it.SplitAt(pos)
			child.location = w.newSpillSlot()
		}
	}
	for _, it := range w.inactive {
		if it.location == Reg(reg) && it.NextIntersectionAfter(cur, pos) < posInfinity {
			child := it.SplitAt(pos)
			child.location = w.newSpillSlot()
		}
	}
	cur.location = Reg(reg)
}
