package hzstage

import (
	"testing"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/hz"
)

func newTestStage(t *testing.T) *Stage {
	t.Helper()
	cache := hz.NewCache(4, nil)
	buffer := hz.NewBuffer(64, 1.0) // far-plane clear value
	cfg := Config{
		QueueSize:        8,
		StampsCycle:      2,
		DepthTest:        true,
		DepthFunc:        gpucore.CompareLessEqual,
		HierarchicalZ:    true,
		Block:            BlockMapper{BlockW: 4, BlockH: 4, BlocksPerRow: 4},
		Viewport:         BBox{0, 0, 64, 64},
		StampFragments:   4,
		ClearBlocksCycle: 1,
	}
	return NewStage(cfg, cache, buffer, nil)
}

func stampAt(x, y int32, z float64) *gpucore.Stamp {
	st := &gpucore.Stamp{}
	for i := range st.Fragments {
		st.Fragments[i] = gpucore.Fragment{X: x + int32(i%2), Y: y + int32(i/2), Inside: true, Z: z}
	}
	return st
}

func TestEnqueueAndDrainCullsFartherStamp(t *testing.T) {
	s := newTestStage(t)

	near := stampAt(0, 0, 0.1)
	far := stampAt(0, 0, 0.9)

	// First cycle: write the near stamp's depth into the HZ buffer by
	// draining it through with depth test disabled won't record, so
	// instead seed the buffer directly to simulate a prior near surface.
	s.buffer.Write(s.cfg.Block.Address(0, 0), 0.1)
	s.cache.Invalidate()

	accepted := s.Enqueue([]*gpucore.Stamp{far})
	if accepted != 1 {
		t.Fatalf("expected 1 accepted stamp, got %d", accepted)
	}

	var out []*gpucore.Stamp
	for cycle := int64(0); cycle < 8 && len(out) == 0 && s.SendCount()+s.TestCount()+s.ReadCount() > 0; cycle++ {
		out = append(out, s.Advance(cycle)...)
	}

	if len(out) != 0 {
		t.Fatalf("expected far stamp to be HZ-culled, got %d stamps through", len(out))
	}
	if s.CullHZ == 0 {
		t.Fatalf("expected CullHZ counter to record the culled fragments")
	}
	_ = near
}

func TestEnqueueSendsStampPassingDepthTest(t *testing.T) {
	s := newTestStage(t)
	s.buffer.Write(s.cfg.Block.Address(0, 0), 0.9)
	s.cache.Invalidate()

	near := stampAt(0, 0, 0.1)
	s.Enqueue([]*gpucore.Stamp{near})

	var out []*gpucore.Stamp
	for cycle := int64(0); cycle < 8 && len(out) == 0; cycle++ {
		out = append(out, s.Advance(cycle)...)
	}
	if len(out) != 1 {
		t.Fatalf("expected the nearer stamp to pass through, got %d", len(out))
	}
}

func TestOutOfViewportStampNeverOccupiesEntry(t *testing.T) {
	s := newTestStage(t)
	outside := stampAt(1000, 1000, 0.5)

	accepted := s.Enqueue([]*gpucore.Stamp{outside})
	if accepted != 0 {
		t.Fatalf("expected 0 accepted, got %d", accepted)
	}
	if s.OutViewport != 1 {
		t.Fatalf("expected OutViewport=1, got %d", s.OutViewport)
	}
	if s.FreeCount() != s.cfg.QueueSize {
		t.Fatalf("expected no entries consumed, free=%d want=%d", s.FreeCount(), s.cfg.QueueSize)
	}
}

func TestReadyBackpressure(t *testing.T) {
	s := newTestStage(t)
	if !s.Ready() {
		t.Fatalf("expected stage ready with a full free list")
	}
	for i := 0; i < s.cfg.QueueSize-1; i++ {
		s.Enqueue([]*gpucore.Stamp{stampAt(int32(i*4), 0, 0.5)})
	}
	if s.Ready() {
		t.Fatalf("expected backpressure once free <= 2*stampsCycle")
	}
}

func TestQueueOccupancyInvariant(t *testing.T) {
	s := newTestStage(t)
	s.Enqueue([]*gpucore.Stamp{stampAt(0, 0, 0.5)})
	total := s.FreeCount() + s.ReadCount() + s.TestCount() + s.SendCount()
	if total != s.cfg.QueueSize {
		t.Fatalf("free+read+test+send = %d, want %d", total, s.cfg.QueueSize)
	}
}
