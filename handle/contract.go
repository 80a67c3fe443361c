package handle

// ---------------------------------------------------------------------------
// Classification Contracts
// ---------------------------------------------------------------------------
//
// A Contract is the per-type static descriptor the marshaling layer
// consults to move one Go type across the call boundary: whether the
// type's handle is managed (heap-pointing, must be pinned or registered
// while held) or immediate (self-contained), plus the conversions to and
// from the raw handle word. Contracts are declared once per type, at
// package level, and passed by pointer wherever the type crosses the
// boundary.

// Contract describes how values of type T cross the call boundary.
type Contract[T any] struct {
	// Name identifies the contract in diagnostics and conversion errors.
	Name string

	// Managed reports whether T's handle points into the host heap.
	// Managed values obtained at the boundary must be pinned into the
	// call's arena or copied into a registered box before any control
	// can pass back to the host.
	Managed bool

	// To encodes a value as a raw handle. Must never fail: a T that was
	// decoded by From, or constructed through this package, always has a
	// handle representation.
	To func(T) Handle

	// From decodes a raw handle, failing with *ConversionError if the
	// handle does not carry a T.
	From func(Handle) (T, error)
}

// Object is a typed view of a managed handle. It carries the raw word
// and nothing else; holding an Object does not protect the referent.
// The pin package provides the protected holders.
type Object struct {
	h Handle
}

// ObjectFromHandle wraps a managed handle.
// Panics if h is not an object handle.
func ObjectFromHandle(h Handle) Object {
	if !h.IsObject() {
		panic("ObjectFromHandle: not an object handle")
	}
	return Object{h: h}
}

// Handle returns the raw handle word.
func (o Object) Handle() Handle {
	return o.h
}

// ---------------------------------------------------------------------------
// Stock contracts
// ---------------------------------------------------------------------------

// Float64Contract crosses float64 values. Immediate.
var Float64Contract = &Contract[float64]{
	Name:    "Float64",
	Managed: false,
	To:      FromFloat64,
	From: func(h Handle) (float64, error) {
		if !h.IsFloat() {
			return 0, &ConversionError{Want: "Float64", Got: h}
		}
		return h.Float64(), nil
	},
}

// SmallIntContract crosses int64 values within the 48-bit small integer
// range. Immediate.
var SmallIntContract = &Contract[int64]{
	Name:    "SmallInt",
	Managed: false,
	To: func(n int64) Handle {
		return FromSmallInt(n)
	},
	From: func(h Handle) (int64, error) {
		if !h.IsSmallInt() {
			return 0, &ConversionError{Want: "SmallInt", Got: h}
		}
		return h.SmallInt(), nil
	},
}

// BoolContract crosses bool values. Immediate.
var BoolContract = &Contract[bool]{
	Name:    "Bool",
	Managed: false,
	To:      FromBool,
	From: func(h Handle) (bool, error) {
		if !h.IsBool() {
			return false, &ConversionError{Want: "Bool", Got: h}
		}
		return h.Bool(), nil
	},
}

// SymbolContract crosses interned symbol IDs. Immediate.
var SymbolContract = &Contract[uint32]{
	Name:    "Symbol",
	Managed: false,
	To: func(id uint32) Handle {
		return FromSymbolID(id)
	},
	From: func(h Handle) (uint32, error) {
		if !h.IsSymbol() {
			return 0, &ConversionError{Want: "Symbol", Got: h}
		}
		return h.SymbolID(), nil
	},
}

// ObjectContract crosses managed host heap references. The marshaling
// layer pins every argument decoded through a managed contract into the
// call's arena before core logic sees it.
var ObjectContract = &Contract[Object]{
	Name:    "Object",
	Managed: true,
	To: func(o Object) Handle {
		return o.h
	},
	From: func(h Handle) (Object, error) {
		if !h.IsObject() {
			return Object{}, &ConversionError{Want: "Object", Got: h}
		}
		return Object{h: h}, nil
	},
}

// HandleContract crosses raw handles untouched. Immediate from the
// marshaling layer's point of view: a core function taking raw handles
// assumes full responsibility for pinning anything managed it holds.
var HandleContract = &Contract[Handle]{
	Name:    "Handle",
	Managed: false,
	To: func(h Handle) Handle {
		return h
	},
	From: func(h Handle) (Handle, error) {
		return h, nil
	},
}
