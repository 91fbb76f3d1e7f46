package signal

import "testing"

func TestWriteBecomesVisibleAfterLatency(t *testing.T) {
	s := New[int](2, 3)

	if n := s.Write(10, []int{1, 2}); n != 2 {
		t.Fatalf("expected both items accepted, got %d", n)
	}
	for c := int64(10); c < 13; c++ {
		if items := s.Read(c); len(items) != 0 {
			t.Fatalf("cycle %d: items visible before the latency elapsed: %v", c, items)
		}
	}
	items := s.Read(13)
	if len(items) != 2 || items[0] != 1 || items[1] != 2 {
		t.Fatalf("cycle 13: expected [1 2], got %v", items)
	}
	if again := s.Read(13); len(again) != 0 {
		t.Fatalf("a second read of the same cycle should return nothing, got %v", again)
	}
}

func TestBandwidthCapsPerCycleWrites(t *testing.T) {
	s := New[int](2, 1)

	if n := s.Write(5, []int{1, 2, 3}); n != 2 {
		t.Fatalf("expected the third item rejected, accepted %d", n)
	}
	if s.Ready(5) {
		t.Fatalf("signal should report no bandwidth left for cycle 5")
	}
	if n := s.Write(5, []int{4}); n != 0 {
		t.Fatalf("a full cycle slot should accept nothing, got %d", n)
	}
	// The next cycle's slot is independent.
	if !s.Ready(6) {
		t.Fatalf("cycle 6 should have fresh bandwidth")
	}
}

func TestPendingAndReset(t *testing.T) {
	s := New[int](1, 2)
	if s.Pending() {
		t.Fatalf("a fresh signal has nothing pending")
	}
	s.Write(0, []int{9})
	if !s.Pending() {
		t.Fatalf("an undelivered write should be pending")
	}
	s.Reset()
	if s.Pending() {
		t.Fatalf("reset should drop every in-flight write")
	}
	if items := s.Read(2); len(items) != 0 {
		t.Fatalf("reset write should never be delivered, got %v", items)
	}
}

func TestMinimumLatencyIsOneCycle(t *testing.T) {
	s := New[int](1, 0)
	if s.Latency() != 1 {
		t.Fatalf("latency should clamp to 1, got %d", s.Latency())
	}
	s.Write(4, []int{7})
	if items := s.Read(4); len(items) != 0 {
		t.Fatalf("same-cycle visibility should be impossible, got %v", items)
	}
	if items := s.Read(5); len(items) != 1 || items[0] != 7 {
		t.Fatalf("expected the write visible one cycle later, got %v", items)
	}
}
