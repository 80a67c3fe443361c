package hostsim

import (
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode for deterministic encoding, so
// snapshots of identical runtime states compare byte-equal.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("hostsim: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot is a point-in-time view of the runtime's collector-relevant
// state, for post-mortem diagnosis of registration leaks and pinning
// mistakes.
type Snapshot struct {
	HeapSize          int      `cbor:"heap_size"`
	RegisteredCells   int      `cbor:"registered_cells"`
	ActiveFrames      int      `cbor:"active_frames"`
	Collections       uint64   `cbor:"collections"`
	NextObjectID      uint64   `cbor:"next_object_id"`
	RegisteredHandles []uint64 `cbor:"registered_handles"`
}

// Snapshot serializes the runtime's current state to CBOR bytes.
func (rt *Runtime) Snapshot() ([]byte, error) {
	rt.mu.Lock()

	snap := Snapshot{
		HeapSize:        len(rt.heap),
		RegisteredCells: len(rt.cells),
		ActiveFrames:    len(rt.frames),
		Collections:     rt.collections,
		NextObjectID:    rt.nextID,
	}
	for _, addr := range rt.cells {
		snap.RegisteredHandles = append(snap.RegisteredHandles, uint64(*addr))
	}
	rt.mu.Unlock()

	sort.Slice(snap.RegisteredHandles, func(i, j int) bool {
		return snap.RegisteredHandles[i] < snap.RegisteredHandles[j]
	})
	return cborEncMode.Marshal(&snap)
}

// DecodeSnapshot deserializes a Snapshot from CBOR bytes.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("hostsim: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
