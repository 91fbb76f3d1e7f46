package hz

import "testing"

func TestSearchInsertConsumeCycle(t *testing.T) {
	c := NewCache(4, nil)

	slot, busy := c.Insert(100)
	if busy {
		t.Fatalf("unexpected busy on empty cache")
	}
	if c.Reserves(slot) != 1 {
		t.Fatalf("reserves = %d, want 1 right after insert", c.Reserves(slot))
	}
	if c.ReadComplete(slot) {
		t.Fatalf("line should not be read-complete immediately")
	}

	c.CompleteRead(slot)
	c.SetValue(slot, 0.75)
	if !c.ReadComplete(slot) {
		t.Fatalf("expected read-complete after CompleteRead")
	}
	if c.Value(slot) != 0.75 {
		t.Fatalf("value = %v, want 0.75", c.Value(slot))
	}

	hitSlot, hit := c.Search(100)
	if !hit {
		t.Fatalf("expected hit for previously inserted key")
	}
	if c.Reserves(hitSlot) != 2 {
		t.Fatalf("reserves = %d, want 2 after a second reference", c.Reserves(hitSlot))
	}

	c.Consume(slot)
	c.Consume(hitSlot)
	if c.Reserves(slot) != 0 {
		t.Fatalf("reserves = %d, want 0 after both consumers finished", c.Reserves(slot))
	}
}

func TestInsertBusyWhenFullyReserved(t *testing.T) {
	c := NewCache(2, nil)

	s0, _ := c.Insert(1)
	s1, _ := c.Insert(2)
	_ = s0
	_ = s1

	if _, busy := c.Insert(3); !busy {
		t.Fatalf("expected busy when every line is reserved and none is invalid")
	}
}

func TestInsertEvictsUnreservedLine(t *testing.T) {
	c := NewCache(1, nil)

	s0, _ := c.Insert(1)
	c.CompleteRead(s0)
	c.Consume(s0) // reserves back to 0, line still valid

	s1, busy := c.Insert(2)
	if busy {
		t.Fatalf("expected the unreserved line to be evicted and reused")
	}
	if c.Reserves(s1) != 1 {
		t.Fatalf("reserves = %d, want 1 for freshly inserted line", c.Reserves(s1))
	}
	if _, hit := c.Search(1); hit {
		t.Fatalf("evicted key should no longer hit")
	}
}

func TestReservedLineNeverEvicted(t *testing.T) {
	c := NewCache(1, nil)

	s0, _ := c.Insert(1) // reserves = 1, never consumed
	_ = s0

	if _, busy := c.Insert(2); !busy {
		t.Fatalf("a reserved line must not be evicted")
	}
}
