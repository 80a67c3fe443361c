package hostsim

import (
	"testing"

	"github.com/chazu/tether/handle"
	"github.com/chazu/tether/host"
)

// stackFrame is a minimal host.Frame for exercising the scanner without
// pulling in the pin package. Frames are identified by pointer, matching
// the comparability PopFrame requires.
type stackFrame struct {
	hs []handle.Handle
}

func newFrame(hs ...handle.Handle) *stackFrame { return &stackFrame{hs: hs} }

func (f *stackFrame) Handles() []handle.Handle { return f.hs }

func TestSweepUnprotected(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("unprotected")

	stats := rt.Collect()
	if stats.Swept != 1 {
		t.Errorf("Swept = %d, want 1", stats.Swept)
	}
	if rt.Live(h) {
		t.Error("unprotected object should be swept")
	}
}

func TestFramePinsObject(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("pinned")
	f := newFrame(h)

	rt.PushFrame(f)
	stats := rt.Collect()
	if stats.Pinned != 1 {
		t.Errorf("Pinned = %d, want 1", stats.Pinned)
	}
	if !rt.Live(h) {
		t.Fatal("frame-pinned object should survive")
	}

	rt.PopFrame(f, handle.Nil)
	rt.Collect()
	if rt.Live(h) {
		t.Error("object should be swept once its frame is popped")
	}
}

func TestRegisteredCellRootsObject(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("registered")
	cell := new(handle.Handle)
	*cell = h

	tok := rt.Register(cell)
	rt.Collect()
	if !rt.Live(h) {
		t.Fatal("registered object should survive")
	}

	rt.Unregister(tok)
	rt.Collect()
	if rt.Live(h) {
		t.Error("object should be swept once its cell is unregistered")
	}
}

func TestCompactionPinnedStaysMovableMoves(t *testing.T) {
	rt := NewRuntime()
	pinned := rt.NewObject("pinned")
	movable := rt.NewObject("movable")

	f := newFrame(pinned)
	rt.PushFrame(f)
	cell := new(handle.Handle)
	*cell = movable
	tok := rt.Register(cell)

	stats := rt.CollectAndCompact()
	if stats.Relocated != 1 {
		t.Fatalf("Relocated = %d, want 1", stats.Relocated)
	}

	// A conservative root pins: the frame-visible object kept its handle.
	if got := rt.Resolve(pinned); got != pinned {
		t.Errorf("pinned object moved: Resolve(%s) = %s", pinned, got)
	}
	// The precisely-rooted object moved, its cell was rewritten, and the
	// stale handle forwards.
	if *cell == movable {
		t.Error("registered cell was not rewritten by compaction")
	}
	if got := rt.Resolve(movable); got != *cell {
		t.Errorf("Resolve(%s) = %s, want %s", movable, got, *cell)
	}
	if data, ok := rt.ObjectData(movable); !ok || data != "movable" {
		t.Errorf("stale handle should still reach the payload; got %v, %v", data, ok)
	}

	rt.PopFrame(f, handle.Nil)
	rt.Unregister(tok)
}

func TestResolveChainsAcrossCompactions(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("wanderer")
	cell := new(handle.Handle)
	*cell = h
	rt.Register(cell)

	rt.CollectAndCompact()
	rt.CollectAndCompact()

	final := *cell
	if got := rt.Resolve(h); got != final {
		t.Errorf("Resolve across two compactions = %s, want %s", got, final)
	}
}

func TestResolveImmediatePassesThrough(t *testing.T) {
	rt := NewRuntime()
	for _, h := range []handle.Handle{handle.Nil, handle.True, handle.FromSmallInt(5), handle.FromFloat64(2.5)} {
		if got := rt.Resolve(h); got != h {
			t.Errorf("Resolve(%s) = %s, want unchanged", h, got)
		}
	}
}

func TestInvokeCapturesRaise(t *testing.T) {
	rt := NewRuntime()

	fn := host.BoundaryFunc(func(r host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		r.Raise("ArgumentError", "no good")
		return handle.Nil
	})

	result, raised := rt.Invoke(fn)
	if raised == nil {
		t.Fatalf("expected exception, got %s", result)
	}
	if raised.Class != "ArgumentError" || raised.Message != "no good" {
		t.Errorf("raised %q/%q, want ArgumentError/no good", raised.Class, raised.Message)
	}
	if last := rt.LastRaised(); last != raised {
		t.Error("LastRaised should record the exception")
	}
}

func TestInvokeRepanicsOnNonException(t *testing.T) {
	rt := NewRuntime()

	fn := host.BoundaryFunc(func(r host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		panic("raw panic crossing the call edge")
	})

	defer func() {
		if recover() == nil {
			t.Error("a non-exception panic must cross Invoke unchanged")
		}
	}()
	rt.Invoke(fn)
}

func TestPopFrameOutOfOrderPanics(t *testing.T) {
	rt := NewRuntime()
	f1 := newFrame()
	f2 := newFrame(handle.Nil)
	rt.PushFrame(f1)
	rt.PushFrame(f2)

	defer func() {
		if recover() == nil {
			t.Error("popping a non-top frame should panic")
		}
	}()
	rt.PopFrame(f1, handle.Nil)
}

func TestPopFrameRootsResultUntilHostReturns(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("in flight")
	f := newFrame(h)
	rt.PushFrame(f)

	got := rt.PopFrame(f, h)
	if got != h {
		t.Fatalf("PopFrame returned %s, want %s", got, h)
	}

	// The frame is gone, but the handed-over result stays rooted until
	// control returns through Invoke.
	stats := rt.Collect()
	if stats.Pinned != 1 {
		t.Errorf("Pinned = %d, want 1 (in-flight result)", stats.Pinned)
	}
	if !rt.Live(h) {
		t.Error("in-flight result should survive collection after its frame is popped")
	}
}

func TestInvokeReleasesInflightResult(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("returned")

	fn := host.BoundaryFunc(func(r host.Runtime, recv handle.Handle, args []handle.Handle) handle.Handle {
		f := newFrame(h)
		r.PushFrame(f)
		return r.PopFrame(f, h)
	})

	result, raised := rt.Invoke(fn)
	if raised != nil {
		t.Fatalf("unexpected exception: %v", raised)
	}
	if result != h {
		t.Fatalf("result = %s, want %s", result, h)
	}

	// Possession passed to the embedder when Invoke returned; a result
	// not re-protected since then is fair game.
	rt.Collect()
	if rt.Live(h) {
		t.Error("unprotected result should be swept once Invoke has returned")
	}
}

func TestUnregisterUnknownTokenPanics(t *testing.T) {
	rt := NewRuntime()
	defer func() {
		if recover() == nil {
			t.Error("unregistering an unknown token should panic")
		}
	}()
	rt.Unregister(host.Token(99))
}

func TestSnapshotRoundTrip(t *testing.T) {
	rt := NewRuntime()
	h := rt.NewObject("snap")
	cell := new(handle.Handle)
	*cell = h
	rt.Register(cell)
	rt.PushFrame(newFrame())
	rt.Collect()

	data, err := rt.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	if snap.HeapSize != 1 {
		t.Errorf("HeapSize = %d, want 1", snap.HeapSize)
	}
	if snap.RegisteredCells != 1 {
		t.Errorf("RegisteredCells = %d, want 1", snap.RegisteredCells)
	}
	if snap.ActiveFrames != 1 {
		t.Errorf("ActiveFrames = %d, want 1", snap.ActiveFrames)
	}
	if snap.Collections != 1 {
		t.Errorf("Collections = %d, want 1", snap.Collections)
	}
	if len(snap.RegisteredHandles) != 1 || snap.RegisteredHandles[0] != uint64(h) {
		t.Errorf("RegisteredHandles = %v, want [%d]", snap.RegisteredHandles, uint64(h))
	}

	// Canonical encoding: identical state encodes byte-equal.
	data2, err := rt.Snapshot()
	if err != nil {
		t.Fatalf("second Snapshot: %v", err)
	}
	if string(data) != string(data2) {
		t.Error("snapshots of identical state should be byte-equal")
	}
}

func TestCollectStats(t *testing.T) {
	rt := NewRuntime()
	rt.NewObject("a")
	rt.NewObject("b")

	stats := rt.Collect()
	if stats.Swept != 2 || stats.Live != 0 {
		t.Errorf("stats = %+v, want 2 swept, 0 live", stats)
	}
	if rt.Collections() != 1 {
		t.Errorf("Collections() = %d, want 1", rt.Collections())
	}
	if rt.LastStats() != stats {
		t.Error("LastStats should return the most recent pass")
	}
}
