package hostsim

import (
	"time"

	"github.com/chazu/tether/handle"
)

// ---------------------------------------------------------------------------
// Collection and compaction
// ---------------------------------------------------------------------------

// CollectStats holds statistics from a single collection pass.
type CollectStats struct {
	Scanned   int // root handles examined (frame slots, in-flight results, registered cells)
	Pinned    int // live objects found via frames or in-flight results (immovable)
	Live      int // live objects after the pass
	Swept     int // objects reclaimed
	Relocated int // objects moved by compaction (0 for plain Collect)
	Duration  time.Duration
	Timestamp time.Time
}

// Collect performs one mark/sweep pass. Roots are the pushed activation
// frames (pinned), in-flight results taken at PopFrame (pinned), and the
// registered cells. Everything else on the heap
// is reclaimed — that is the point of the simulation: a managed handle
// held anywhere else is invisible here, exactly as it would be to the
// real host.
func (rt *Runtime) Collect() *CollectStats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.collect(false)
}

// CollectAndCompact performs a mark/sweep pass and then relocates every
// live object not pinned by a frame. Registered cells are rewritten in
// place to the new handles; stale handles held elsewhere must go through
// Resolve.
func (rt *Runtime) CollectAndCompact() *CollectStats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.collect(true)
}

// collect runs one pass. Caller holds rt.mu.
func (rt *Runtime) collect(compact bool) *CollectStats {
	start := time.Now()
	stats := &CollectStats{Timestamp: start}

	// Mark. Frame slots pin their referents: a conservative scanner
	// cannot prove a stack word is the only reference, so it must not
	// move what it marks. Registered cells are precise roots; their
	// referents stay movable.
	pinned := make(map[uint64]bool)
	rooted := make(map[uint64]bool)

	for _, f := range rt.frames {
		for _, h := range f.Handles() {
			stats.Scanned++
			if h.IsObject() {
				pinned[rt.chase(h.ObjectID())] = true
			}
		}
	}
	// In-flight results handed over at PopFrame sit on the host's own
	// stack until Invoke returns, so they scan conservatively too.
	for _, h := range rt.inflight {
		stats.Scanned++
		if h.IsObject() {
			pinned[rt.chase(h.ObjectID())] = true
		}
	}
	for _, addr := range rt.cells {
		stats.Scanned++
		if h := *addr; h.IsObject() {
			rooted[rt.chase(h.ObjectID())] = true
		}
	}
	stats.Pinned = len(pinned)

	// Sweep.
	for id := range rt.heap {
		if !pinned[id] && !rooted[id] {
			delete(rt.heap, id)
			stats.Swept++
		}
	}

	// Compact: slide every unpinned survivor to a fresh location and
	// leave a forwarding entry behind.
	if compact {
		for id := range rooted {
			if pinned[id] {
				continue
			}
			obj, ok := rt.heap[id]
			if !ok {
				continue
			}
			newID := rt.nextID
			rt.nextID++
			rt.heap[newID] = obj
			delete(rt.heap, id)
			rt.forward[id] = newID
			stats.Relocated++
		}
		// Rewrite registered cells to the relocated handles.
		for _, addr := range rt.cells {
			if h := *addr; h.IsObject() {
				*addr = handle.FromObjectID(rt.chase(h.ObjectID()))
			}
		}
	}

	stats.Live = len(rt.heap)
	stats.Duration = time.Since(start)

	rt.collections++
	rt.lastStats = stats
	log.Debugf("collection %d: %d scanned, %d pinned, %d swept, %d relocated",
		rt.collections, stats.Scanned, stats.Pinned, stats.Swept, stats.Relocated)
	return stats
}

// Collections returns the total number of collection passes performed.
func (rt *Runtime) Collections() uint64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.collections
}

// LastStats returns statistics from the most recent collection, or nil
// if none has run yet.
func (rt *Runtime) LastStats() *CollectStats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.lastStats
}
