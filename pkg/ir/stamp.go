package ir

import "math"

// Kind is the machine-level kind of a value.
type Kind int

const (
	KindVoid Kind = iota
	KindI32
	KindI64
	KindPtr
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindPtr:
		return "ptr"
	case KindBool:
		return "bool"
	}
	return "?"
}

// Min returns the smallest representable value of an integer kind.
func (k Kind) Min() int64 {
	if k == KindI32 {
		return math.MinInt32
	}
	return math.MinInt64
}

// Max returns the largest representable value of an integer kind.
func (k Kind) Max() int64 {
	if k == KindI32 {
		return math.MaxInt32
	}
	return math.MaxInt64
}

// Stamp describes the set of values a node can produce. Integer stamps carry
// a [Lo, Hi] range used for direction proofs in induction-variable analysis
// and for folding in the canonicalizer.
type Stamp struct {
	Kind Kind
	Lo   int64
	Hi   int64
}

// VoidStamp is the stamp of nodes that produce no value.
var VoidStamp = Stamp{Kind: KindVoid}

// IntStamp returns the full-range stamp for an integer kind.
func IntStamp(kind Kind) Stamp {
	return Stamp{Kind: kind, Lo: kind.Min(), Hi: kind.Max()}
}

// RangeStamp returns an integer stamp restricted to [lo, hi].
func RangeStamp(kind Kind, lo, hi int64) Stamp {
	return Stamp{Kind: kind, Lo: lo, Hi: hi}
}

// ConstStamp returns the singleton stamp of a constant.
func ConstStamp(kind Kind, v int64) Stamp {
	return Stamp{Kind: kind, Lo: v, Hi: v}
}

// PtrStamp is the stamp of pointer values.
func PtrStamp() Stamp { return Stamp{Kind: KindPtr} }

// BoolStamp is the stamp of condition values.
func BoolStamp() Stamp { return Stamp{Kind: KindBool, Lo: 0, Hi: 1} }

// IsInteger reports whether the stamp describes an integer value.
func (s Stamp) IsInteger() bool { return s.Kind == KindI32 || s.Kind == KindI64 }

// IsConstant reports whether the stamp pins a single value.
func (s Stamp) IsConstant() bool { return s.IsInteger() && s.Lo == s.Hi }

// StrictlyPositive reports whether every value in the stamp is > 0.
func (s Stamp) StrictlyPositive() bool { return s.IsInteger() && s.Lo > 0 }

// StrictlyNegative reports whether every value in the stamp is < 0.
func (s Stamp) StrictlyNegative() bool { return s.IsInteger() && s.Hi < 0 }

// NonZero reports whether 0 is excluded from the stamp.
func (s Stamp) NonZero() bool { return s.StrictlyPositive() || s.StrictlyNegative() }
