// Package signal implements the fixed-latency, fixed-bandwidth per-cycle
// channel that is the sole inter-stage communication mechanism in the
// simulator (spec Sec 5). A Signal never blocks: writes past its
// per-cycle bandwidth are rejected, and reads before the configured
// latency has elapsed return nothing.
package signal

// Signal is a typed channel between two stages with ItemsPerCycle items
// of bandwidth and LatencyCycles cycles of latency. Item T written
// during cycle c becomes visible to Read at cycle c+LatencyCycles.
type Signal[T any] struct {
	itemsPerCycle int
	latency       int64

	// ring holds one slice of pending writes per cycle offset, sized to
	// the latency so index (cycle % len(ring)) never collides with an
	// in-flight write.
	ring [][]T
}

// New creates a Signal with the given per-cycle bandwidth and latency.
// LatencyCycles must be at least 1; a same-cycle signal isn't
// representable (the minimum latency in the original hardware is always
// at least one pipeline register).
func New[T any](itemsPerCycle int, latencyCycles int64) *Signal[T] {
	if latencyCycles < 1 {
		latencyCycles = 1
	}
	return &Signal[T]{
		itemsPerCycle: itemsPerCycle,
		latency:       latencyCycles,
		ring:          make([][]T, latencyCycles+1),
	}
}

// Write enqueues items for delivery latency cycles after cycle. It
// returns the number of items actually accepted, which is capped at the
// signal's per-cycle bandwidth minus whatever was already written this
// cycle.
func (s *Signal[T]) Write(cycle int64, items []T) int {
	slot := &s.ring[cycle%int64(len(s.ring))]
	room := s.itemsPerCycle - len(*slot)
	if room <= 0 {
		return 0
	}
	n := len(items)
	if n > room {
		n = room
	}
	*slot = append(*slot, items[:n]...)
	return n
}

// Ready reports whether Write at the given cycle still has bandwidth
// left.
func (s *Signal[T]) Ready(cycle int64) bool {
	slot := &s.ring[cycle%int64(len(s.ring))]
	return len(*slot) < s.itemsPerCycle
}

// Read returns (and clears) the items that become visible at the given
// cycle: whatever was written latency cycles earlier. Calling Read twice
// for the same cycle returns the items only once.
func (s *Signal[T]) Read(cycle int64) []T {
	sourceCycle := cycle - s.latency
	if sourceCycle < 0 {
		return nil
	}
	idx := sourceCycle % int64(len(s.ring))
	items := s.ring[idx]
	s.ring[idx] = nil
	return items
}

// Pending reports whether any write is still in flight (not yet
// returned by Read), used by callers that must not declare a draw done
// while a signal still holds undelivered items.
func (s *Signal[T]) Pending() bool {
	for _, slot := range s.ring {
		if len(slot) > 0 {
			return true
		}
	}
	return false
}

// ItemsPerCycle returns the configured bandwidth.
func (s *Signal[T]) ItemsPerCycle() int { return s.itemsPerCycle }

// Latency returns the configured latency in cycles.
func (s *Signal[T]) Latency() int64 { return s.latency }

// Reset clears every pending write, as on a RESET command.
func (s *Signal[T]) Reset() {
	for i := range s.ring {
		s.ring[i] = nil
	}
}
