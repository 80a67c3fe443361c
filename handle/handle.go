// Package handle defines the opaque reference word exchanged with the
// host runtime and the per-type classification contracts that decide how
// each Go type crosses the call boundary.
//
// A Handle is a raw 64-bit word. Copying or comparing the bits is always
// safe; using the referent is not, unless the handle is immediate
// (payload embedded in the word) or its storage location is currently
// discoverable by the host's collector. The pin package provides the two
// sanctioned storage locations for managed handles.
package handle

import (
	"fmt"
	"math"
)

// Handle is an opaque host reference using NaN-boxing.
//
// All handles are represented as 64-bit IEEE 754 doubles. Non-float
// handles are encoded in the NaN (Not-a-Number) space using the quiet
// NaN prefix and tag bits to distinguish types.
//
// Encoding scheme:
//   - Float: Native IEEE 754 double (if not a NaN, it's a float)
//   - SmallInt: Quiet NaN + tagInt + 48-bit signed payload
//   - Object: Quiet NaN + tagObject + 48-bit host heap reference (managed)
//   - Symbol: Quiet NaN + tagSymbol + symbol ID
//   - Special: Quiet NaN + tagSpecial + special value ID (nil/true/false)
//
// Object is the only managed tag; every other encoding is immediate.
type Handle uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	// 0x7FF8_0000_0000_0000
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	// 0x0007_0000_0000_0000
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for reference/int/id
	// 0x0000_FFFF_FFFF_FFFF
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position).
	// Once assigned, tag values must NEVER change — they are part of the
	// boundary calling convention shared with the host.
	tagObject  uint64 = 0x0001000000000000 // Host heap reference (managed)
	tagInt     uint64 = 0x0002000000000000 // 48-bit signed integer
	tagSpecial uint64 = 0x0003000000000000 // nil, true, false
	tagSymbol  uint64 = 0x0004000000000000 // Interned symbol ID

	// Sign bit for 48-bit integer sign extension
	intSignBit uint64 = 0x0000800000000000

	// Mask for sign extension
	intSignExtend uint64 = 0xFFFF000000000000
)

// Special value payloads
const (
	specialNil   uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special handles
const (
	Nil   Handle = Handle(nanBits | tagSpecial | specialNil)
	True  Handle = Handle(nanBits | tagSpecial | specialTrue)
	False Handle = Handle(nanBits | tagSpecial | specialFalse)
)

// SmallInt range (48-bit signed)
const (
	MaxSmallInt int64 = (1 << 47) - 1
	MinSmallInt int64 = -(1 << 47)
)

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// IsFloat returns true if h represents a float64 value.
// A handle is a float if it's not one of our tagged NaN values.
// This includes regular numbers, infinities, and "real" NaN values.
func (h Handle) IsFloat() bool {
	bits := uint64(h)

	// Check if it's a NaN or Infinity (exponent all 1s)
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}

	// Exponent is all 1s. Infinity has mantissa == 0 (ignoring sign bit).
	mantissa := bits & 0x000FFFFFFFFFFFFF
	if mantissa == 0 {
		return true
	}

	// It's a NaN. Signaling NaNs and untagged quiet NaNs are floats.
	if (bits & nanBits) != nanBits {
		return true
	}
	return bits&tagMask == 0
}

// IsSmallInt returns true if h represents a small integer.
func (h Handle) IsSmallInt() bool {
	return (uint64(h) & (nanBits | tagMask)) == (nanBits | tagInt)
}

// IsObject returns true if h references a host heap object.
func (h Handle) IsObject() bool {
	return (uint64(h) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsManaged returns true if h points into the host heap and therefore
// must stay discoverable by the collector for as long as it is held.
// Immediate handles carry their payload in the word itself and are
// always safe to hold anywhere.
func (h Handle) IsManaged() bool {
	return h.IsObject()
}

// IsSymbol returns true if h represents an interned symbol.
func (h Handle) IsSymbol() bool {
	return (uint64(h) & (nanBits | tagMask)) == (nanBits | tagSymbol)
}

// IsSpecial returns true if h is nil, true, or false.
func (h Handle) IsSpecial() bool {
	return (uint64(h) & (nanBits | tagMask)) == (nanBits | tagSpecial)
}

// IsNil returns true if h is the nil handle.
func (h Handle) IsNil() bool {
	return h == Nil
}

// IsBool returns true if h is true or false.
func (h Handle) IsBool() bool {
	return h == True || h == False
}

// ---------------------------------------------------------------------------
// Float operations
// ---------------------------------------------------------------------------

// Float64 returns h as a float64.
// Panics if h is not a float.
func (h Handle) Float64() float64 {
	if !h.IsFloat() {
		panic("Handle.Float64: not a float")
	}
	return math.Float64frombits(uint64(h))
}

// FromFloat64 creates a Handle from a float64.
func FromFloat64(f float64) Handle {
	return Handle(math.Float64bits(f))
}

// ---------------------------------------------------------------------------
// SmallInt operations
// ---------------------------------------------------------------------------

// SmallInt returns h as an int64.
// Panics if h is not a small integer.
func (h Handle) SmallInt() int64 {
	if !h.IsSmallInt() {
		panic("Handle.SmallInt: not a small integer")
	}
	payload := uint64(h) & payloadMask

	// Sign extend from 48 bits to 64 bits
	if (payload & intSignBit) != 0 {
		payload |= intSignExtend
	}
	return int64(payload)
}

// FromSmallInt creates a Handle from an int64.
// Panics if n is outside the SmallInt range.
func FromSmallInt(n int64) Handle {
	if n > MaxSmallInt || n < MinSmallInt {
		panic("FromSmallInt: value out of range")
	}
	return Handle(nanBits | tagInt | (uint64(n) & payloadMask))
}

// TryFromSmallInt creates a Handle from an int64, returning false if out
// of range.
func TryFromSmallInt(n int64) (Handle, bool) {
	if n > MaxSmallInt || n < MinSmallInt {
		return Nil, false
	}
	return Handle(nanBits | tagInt | (uint64(n) & payloadMask)), true
}

// ---------------------------------------------------------------------------
// Bool operations
// ---------------------------------------------------------------------------

// Bool returns h as a bool.
// Panics if h is not true or false.
func (h Handle) Bool() bool {
	switch h {
	case True:
		return true
	case False:
		return false
	}
	panic("Handle.Bool: not a boolean")
}

// FromBool creates a Handle from a bool.
func FromBool(b bool) Handle {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Object reference operations
// ---------------------------------------------------------------------------

// ObjectID returns the host heap reference encoded in h.
// Panics if h is not an object.
func (h Handle) ObjectID() uint64 {
	if !h.IsObject() {
		panic("Handle.ObjectID: not an object")
	}
	return uint64(h) & payloadMask
}

// FromObjectID creates a managed Handle from a host heap reference.
// The reference must fit in 48 bits.
func FromObjectID(id uint64) Handle {
	if id&^payloadMask != 0 {
		panic("FromObjectID: reference exceeds 48 bits")
	}
	return Handle(nanBits | tagObject | id)
}

// ---------------------------------------------------------------------------
// Symbol operations
// ---------------------------------------------------------------------------

// SymbolID returns the symbol ID encoded in h.
// Panics if h is not a symbol.
func (h Handle) SymbolID() uint32 {
	if !h.IsSymbol() {
		panic("Handle.SymbolID: not a symbol")
	}
	return uint32(uint64(h) & payloadMask)
}

// FromSymbolID creates a Handle from a symbol ID.
func FromSymbolID(id uint32) Handle {
	return Handle(nanBits | tagSymbol | uint64(id))
}

// String returns a debug representation of the handle.
func (h Handle) String() string {
	switch {
	case h.IsFloat():
		return fmt.Sprintf("float(%g)", h.Float64())
	case h.IsSmallInt():
		return fmt.Sprintf("int(%d)", h.SmallInt())
	case h.IsObject():
		return fmt.Sprintf("object(%#x)", h.ObjectID())
	case h.IsSymbol():
		return fmt.Sprintf("symbol(%d)", h.SymbolID())
	case h == Nil:
		return "nil"
	case h == True:
		return "true"
	case h == False:
		return "false"
	}
	return fmt.Sprintf("handle(%#016x)", uint64(h))
}
