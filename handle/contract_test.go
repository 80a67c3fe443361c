package handle

import (
	"errors"
	"testing"
)

// roundTrip asserts the contract law: To(From(h)) == h whenever From
// succeeds.
func roundTrip[T any](t *testing.T, ct *Contract[T], h Handle) {
	t.Helper()
	v, err := ct.From(h)
	if err != nil {
		t.Fatalf("%s.From(%s) error: %v", ct.Name, h, err)
	}
	if got := ct.To(v); got != h {
		t.Errorf("%s: To(From(%s)) = %s, want %s", ct.Name, h, got, h)
	}
}

func TestContractRoundTripLaw(t *testing.T) {
	roundTrip(t, Float64Contract, FromFloat64(1.25))
	roundTrip(t, Float64Contract, FromFloat64(-0.0))
	roundTrip(t, SmallIntContract, FromSmallInt(-99))
	roundTrip(t, SmallIntContract, FromSmallInt(MaxSmallInt))
	roundTrip(t, BoolContract, True)
	roundTrip(t, BoolContract, False)
	roundTrip(t, SymbolContract, FromSymbolID(17))
	roundTrip(t, ObjectContract, FromObjectID(12345))
	roundTrip(t, HandleContract, Nil)
	roundTrip(t, HandleContract, FromObjectID(7))
}

func TestContractClassification(t *testing.T) {
	if Float64Contract.Managed || SmallIntContract.Managed ||
		BoolContract.Managed || SymbolContract.Managed || HandleContract.Managed {
		t.Error("immediate contracts must not be managed")
	}
	if !ObjectContract.Managed {
		t.Error("ObjectContract must be managed")
	}
}

func TestContractConversionFailure(t *testing.T) {
	tests := []struct {
		name string
		from func(Handle) error
		h    Handle
	}{
		{"Float64", func(h Handle) error { _, err := Float64Contract.From(h); return err }, FromSmallInt(1)},
		{"SmallInt", func(h Handle) error { _, err := SmallIntContract.From(h); return err }, FromFloat64(1.5)},
		{"Bool", func(h Handle) error { _, err := BoolContract.From(h); return err }, Nil},
		{"Symbol", func(h Handle) error { _, err := SymbolContract.From(h); return err }, True},
		{"Object", func(h Handle) error { _, err := ObjectContract.From(h); return err }, FromSmallInt(0)},
	}

	for _, tt := range tests {
		err := tt.from(tt.h)
		if err == nil {
			t.Errorf("%s.From(%s) should fail", tt.name, tt.h)
			continue
		}
		var convErr *ConversionError
		if !errors.As(err, &convErr) {
			t.Errorf("%s.From(%s) error = %T, want *ConversionError", tt.name, tt.h, err)
		} else if convErr.Got != tt.h {
			t.Errorf("%s: ConversionError.Got = %s, want %s", tt.name, convErr.Got, tt.h)
		}
	}
}

func TestObjectFromHandle(t *testing.T) {
	h := FromObjectID(4)
	o := ObjectFromHandle(h)
	if o.Handle() != h {
		t.Errorf("Object.Handle() = %s, want %s", o.Handle(), h)
	}

	defer func() {
		if recover() == nil {
			t.Error("ObjectFromHandle on an immediate handle should panic")
		}
	}()
	ObjectFromHandle(FromSmallInt(1))
}
