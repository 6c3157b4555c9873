// Package lsra implements linear-scan register allocation over a scheduled
// graph: interval construction in reverse block order, a walk over the
// intervals assigning registers or spill slots, and move resolution across
// block boundaries including cycle breaking in parallel move sets.
package lsra

import "fmt"

// Variant selects the graph form the allocator runs on. The common contract
// is identical; the variant only affects move resolution at block ends.
type Variant int

const (
	// VariantSSA allocates directly on SSA with phis resolved to moves.
	VariantSSA Variant = iota
	// VariantPreserveSSA keeps phi groupings intact for later passes.
	VariantPreserveSSA
	// VariantSSI expects single-entry/single-exit value splits and
	// forbids duplicate move sources.
	VariantSSI
)

// AllowsDuplicateSources reports whether several pending moves may read the
// same source location.
func (v Variant) AllowsDuplicateSources() bool { return v != VariantSSI }

func (v Variant) String() string {
	switch v {
	case VariantSSA:
		return "ssa"
	case VariantPreserveSSA:
		return "preserve-ssa"
	case VariantSSI:
		return "ssi"
	}
	return "?"
}

type locKind int

const (
	locNone locKind = iota
	locRegister
	locStack
)

// Location is a physical value position: a register, a stack slot, or
// unassigned. Locations are comparable values.
type Location struct {
	kind locKind
	num  int
}

// NoLocation is the unassigned location.
var NoLocation = Location{}

// Reg returns the location of a physical register.
func Reg(num int) Location { return Location{kind: locRegister, num: num} }

// Slot returns the location of a stack slot.
func Slot(num int) Location { return Location{kind: locStack, num: num} }

func (l Location) IsRegister() bool { return l.kind == locRegister }
func (l Location) IsStack() bool    { return l.kind == locStack }
func (l Location) IsNone() bool     { return l.kind == locNone }

// Num returns the register number or stack slot index.
func (l Location) Num() int { return l.num }

func (l Location) String() string {
	switch l.kind {
	case locRegister:
		return fmt.Sprintf("r%d", l.num)
	case locStack:
		return fmt.Sprintf("s%d", l.num)
	}
	return "none"
}
