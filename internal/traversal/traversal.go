// Package traversal implements TriangleTraversal (spec Sec 4.4): two
// interchangeable strategies — scanline with save-stacks, and recursive
// descent over a triangle batch — that both emit gpucore.Stamp values
// through the same nextStamp() contract.
package traversal

import (
	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/setup"
)

// Status is the outcome of one NextStamp call.
type Status uint8

const (
	// StatusStamp means the returned stamp is valid.
	StatusStamp Status = iota
	// StatusNone means the traversal is still working but produced
	// nothing this cycle (backpressure).
	StatusNone
	// StatusLast means the returned stamp (if any) is the final one of
	// the current draw.
	StatusLast
)

// Traversal is the common contract both strategies expose to the HZ
// stage.
type Traversal interface {
	// NextStamp advances the traversal by one cycle's worth of work and
	// returns at most one stamp.
	NextStamp() (*gpucore.Stamp, Status)
	// Done reports whether the traversal has emitted every stamp of the
	// current workload.
	Done() bool
	Reset()
}

func evalEdges(t *setup.Triangle, x, y float64) (e1, e2, e3 float64) {
	return t.Edges[0].Eval(x, y), t.Edges[1].Eval(x, y), t.Edges[2].Eval(x, y)
}

func insideOrCrosses(t *setup.Triangle, xmin, ymin, xmax, ymax float64) bool {
	// A tile is inside-or-crosses the triangle if any of its four
	// corners passes all three edge tests, or if the triangle's own
	// bbox overlaps the tile (catches the case where the triangle is
	// entirely inside the tile without any corner sample passing).
	corners := [4][2]float64{{xmin, ymin}, {xmax, ymin}, {xmin, ymax}, {xmax, ymax}}
	for _, c := range corners {
		e1, e2, e3 := evalEdges(t, c[0], c[1])
		if e1 >= 0 && e2 >= 0 && e3 >= 0 {
			return true
		}
	}
	tb := t.BBox
	return float64(tb.XMin) < xmax && float64(tb.XMax) > xmin &&
		float64(tb.YMin) < ymax && float64(tb.YMax) > ymin
}

// GenerateStamp produces the stamp at origin (sx, sy) for t directly,
// used by the micro-triangle bypass to route a stamp-sized triangle
// straight to the HZ stage without touching either traversal's tile
// machinery.
func GenerateStamp(t *setup.Triangle, sx, sy, stampW, stampH int32) *gpucore.Stamp {
	return generateStamp(t, sx, sy, stampW, stampH, t.ID())
}

func generateStamp(t *setup.Triangle, sx, sy int32, stampW, stampH int32, triID int) *gpucore.Stamp {
	st := &gpucore.Stamp{TriangleID: triID}
	idx := 0
	for dy := int32(0); dy < stampH && idx < 4; dy++ {
		for dx := int32(0); dx < stampW && idx < 4; dx++ {
			x, y := sx+dx, sy+dy
			cx, cy := float64(x)+0.5, float64(y)+0.5
			e1, e2, e3 := evalEdges(t, cx, cy)
			inside := e1 >= 0 && e2 >= 0 && e3 >= 0
			// The Z plane is evaluated here so the HZ stage can compute
			// the stamp's minimum depth before interpolation runs.
			st.Fragments[idx] = gpucore.Fragment{X: x, Y: y, Z: t.Z.Eval(cx, cy), Inside: inside, TriangleID: triID}
			st.Culled[idx] = !inside
			idx++
		}
	}
	return st
}
