package lsra

import "github.com/seaofnodes/sea/pkg/ir"

// Move copies a value between two physical locations.
type Move struct {
	From, To Location
}

// MoveResolver orders one block boundary's parallel copies into a safe
// sequential list. A mapping is emitted once nothing still reads its
// target; a cycle among register mappings is broken by spilling one source
// to a fresh stack slot and redirecting its readers there.
type MoveResolver struct {
	variant Variant
	newSlot func() Location
	// readOnly marks locations that must never be written, such as
	// incoming-argument stack slots.
	readOnly func(Location) bool

	pending []Move
	blocked map[Location]int // pending mappings reading each location
	targets map[Location]bool
}

// NewMoveResolver returns a resolver drawing cycle-break slots from
// newSlot. readOnly may be nil.
func NewMoveResolver(variant Variant, newSlot func() Location, readOnly func(Location) bool) *MoveResolver {
	if readOnly == nil {
		readOnly = func(Location) bool { return false }
	}
	return &MoveResolver{
		variant: variant,
		newSlot: newSlot,
		readOnly: readOnly,
		blocked: make(map[Location]int),
		targets: make(map[Location]bool),
	}
}

// Add registers one pending mapping. Self-moves are elided. Two mappings
// with the same target, or a read-only target, are internal consistency
// failures; duplicate sources are rejected when the variant forbids them.
func (m *MoveResolver) Add(from, to Location) {
	if from == to {
		return
	}
	if m.targets[to] {
		ir.Fatalf(nil, nil, "two moves target %s", to)
	}
	if m.readOnly(to) {
		ir.Fatalf(nil, nil, "move targets read-only location %s", to)
	}
	if !m.variant.AllowsDuplicateSources() && m.blocked[from] > 0 {
		ir.Fatalf(nil, nil, "duplicate move source %s under variant %s", from, m.variant)
	}
	m.targets[to] = true
	m.blocked[from]++
	m.pending = append(m.pending, Move{From: from, To: to})
}

// Resolve emits the mappings in a safe order and returns the move list.
func (m *MoveResolver) Resolve() []Move {
	var out []Move
	for len(m.pending) > 0 {
		progress := false
		for i := 0; i < len(m.pending); {
			mv := m.pending[i]
			if m.blocked[mv.To] > 0 {
				i++
				continue
			}
			out = append(out, mv)
			m.blocked[mv.From]--
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			progress = true
		}
		if progress {
			continue
		}

		// Every pending target is still read: a cycle. Spill one
		// register source to a fresh slot and read from there instead.
		broke := false
		for i := range m.pending {
			src := m.pending[i].From
			if !src.IsRegister() {
				continue
			}
			slot := m.newSlot()
			out = append(out, Move{From: src, To: slot})
			for j := range m.pending {
				if m.pending[j].From == src {
					m.pending[j].From = slot
					m.blocked[src]--
					m.blocked[slot]++
				}
			}
			broke = true
			break
		}
		if !broke {
			ir.Fatalf(nil, nil, "unresolvable cycle among stack moves")
		}
	}
	return out
}
