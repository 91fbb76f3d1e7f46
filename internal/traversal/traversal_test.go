package traversal

import (
	"testing"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/setup"
)

func rightTriangle(pool *setup.Pool, size int32) *setup.Triangle {
	stage := setup.NewStage(setup.Config{
		FaceMode: gpucore.FaceCCW,
		Viewport: setup.BBox{XMin: 0, YMin: 0, XMax: size * 2, YMax: size * 2},
	}, nil)
	v := func(x, y, z float32) *gpucore.Vertex {
		vx := &gpucore.Vertex{}
		vx.Attrs[0] = gpucore.Attr{x, y, z, 1}
		return vx
	}
	res := stage.Setup(pool, v(0, 0, 0.5), v(float32(size), 0, 0.5), v(0, float32(size), 0.5))
	if res.Triangle == nil {
		panic("test setup failed")
	}
	return res.Triangle
}

func TestScanlineEmitsAllStampsAndTerminates(t *testing.T) {
	pool := setup.NewPool(4, nil)
	tri := rightTriangle(pool, 4)

	sc := NewScanline(ScanlineConfig{
		ScanTileW: 16, ScanTileH: 16,
		GenTileW: 2, GenTileH: 2,
		StampW: 2, StampH: 2,
		OverScanW: 2, OverScanH: 2,
	})
	sc.AddTriangle(tri)

	var stamps int
	sawLast := false
	for i := 0; i < 1000; i++ {
		st, status := sc.NextStamp()
		if st != nil {
			stamps++
			if status == StatusLast {
				sawLast = true
				break
			}
		}
		if status == StatusNone {
			break
		}
	}
	if stamps == 0 {
		t.Fatalf("expected at least one stamp emitted")
	}
	if !sawLast {
		t.Fatalf("expected a Last-marked stamp before traversal goes idle")
	}
	if !sc.Done() {
		t.Fatalf("traversal should be done after lastMarker")
	}
}

func TestScanlineStampOrderMonotonic(t *testing.T) {
	pool := setup.NewPool(4, nil)
	first := rightTriangle(pool, 4)
	second := rightTriangle(pool, 6)

	sc := NewScanline(ScanlineConfig{
		ScanTileW: 16, ScanTileH: 16,
		GenTileW: 2, GenTileH: 2,
		StampW: 2, StampH: 2,
		OverScanW: 2, OverScanH: 2,
	})
	sc.AddTriangle(first)
	sc.AddTriangle(second)

	lastTri := -1
	lastPre := int64(-1)
	for i := 0; i < 1000; i++ {
		st, status := sc.NextStamp()
		if st != nil {
			if st.TriangleID < lastTri {
				t.Fatalf("triangle id regressed: %d after %d", st.TriangleID, lastTri)
			}
			if st.SubtilePreorder <= lastPre {
				t.Fatalf("preorder rank regressed: %d after %d", st.SubtilePreorder, lastPre)
			}
			lastTri, lastPre = st.TriangleID, st.SubtilePreorder
		}
		if status == StatusLast || status == StatusNone {
			break
		}
	}
	if lastPre < 0 {
		t.Fatalf("expected stamps emitted")
	}
}

func TestRecursiveEmitsAllStampsAndTerminates(t *testing.T) {
	pool := setup.NewPool(4, nil)
	tri := rightTriangle(pool, 4)

	rc := NewRecursive(RecursiveConfig{
		TileTesters: 4,
		StampW:      2, StampH: 2,
		ScanTileW: 16, ScanTileH: 16,
	})
	rc.SetBatch([]*setup.Triangle{tri})

	var stamps int
	sawLast := false
	for i := 0; i < 1000; i++ {
		st, status := rc.NextStamp()
		if st != nil {
			stamps++
			if status == StatusLast {
				sawLast = true
				break
			}
		}
		if status == StatusNone {
			break
		}
	}
	if stamps == 0 {
		t.Fatalf("expected at least one stamp emitted")
	}
	if !sawLast {
		t.Fatalf("expected a Last-marked stamp before traversal goes idle")
	}
	if !rc.Done() {
		t.Fatalf("traversal should be done after lastMarker")
	}
}
