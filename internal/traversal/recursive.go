package traversal

import (
	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/setup"
)

// RecursiveConfig configures the recursive-descent batch traversal.
type RecursiveConfig struct {
	// TileTesters is stored but not read by the traversal: every
	// descend() call tests all four quadrant children, and NextStamp
	// keeps descending until a stamp is pending, whatever the value.
	TileTesters          int
	StampW, StampH       int32
	ScanTileW, ScanTileH int32
}

// rtile is one node of the recursive descent's level stack: a square
// region of `size` pixels on a side at pixel-space origin (X, Y).
type rtile struct {
	X, Y, Size int32
}

// Recursive implements spec Sec 4.4.2: one top-level tile covering a
// batch's union bounding box is subdivided depth-first, pruning
// children that prove empty against every triangle in the batch.
type Recursive struct {
	cfg RecursiveConfig

	batch    []*setup.Triangle
	stack    []rtile
	pending  []batchedStamp
	preorder int64
	started  bool
}

type batchedStamp struct {
	X, Y int32
	Tri  *setup.Triangle
}

// NewRecursive creates a Recursive traversal over an (initially empty)
// batch.
func NewRecursive(cfg RecursiveConfig) *Recursive {
	return &Recursive{cfg: cfg}
}

// SetBatch installs the set of triangles to traverse together (spec Sec
// 3 "Batch"). The batch size is not bounded: the orchestrator hands
// over every triangle of the draw as one batch.
func (r *Recursive) SetBatch(triangles []*setup.Triangle) {
	r.batch = triangles
	r.stack = nil
	r.pending = nil
	r.preorder = 0
	r.started = false
}

// Done reports whether the batch has been fully traversed.
func (r *Recursive) Done() bool {
	return r.started && len(r.stack) == 0 && len(r.pending) == 0
}

// Reset clears all traversal state.
func (r *Recursive) Reset() {
	r.batch = nil
	r.stack = nil
	r.pending = nil
	r.preorder = 0
	r.started = false
}

// NextStamp advances the traversal by one cycle.
func (r *Recursive) NextStamp() (*gpucore.Stamp, Status) {
	if !r.started {
		r.start()
	}
	for {
		if len(r.pending) > 0 {
			return r.emitNext()
		}
		if len(r.stack) == 0 {
			return nil, StatusNone
		}
		r.descend()
	}
}

func (r *Recursive) start() {
	r.started = true
	if len(r.batch) == 0 {
		return
	}
	xmin, ymin := r.batch[0].BBox.XMin, r.batch[0].BBox.YMin
	xmax, ymax := r.batch[0].BBox.XMax, r.batch[0].BBox.YMax
	for _, t := range r.batch[1:] {
		if t.BBox.XMin < xmin {
			xmin = t.BBox.XMin
		}
		if t.BBox.YMin < ymin {
			ymin = t.BBox.YMin
		}
		if t.BBox.XMax > xmax {
			xmax = t.BBox.XMax
		}
		if t.BBox.YMax > ymax {
			ymax = t.BBox.YMax
		}
	}
	if xmax <= xmin || ymax <= ymin {
		return
	}
	size := r.cfg.StampW
	if r.cfg.StampH > size {
		size = r.cfg.StampH
	}
	for size < (xmax-xmin) || size < (ymax-ymin) {
		size *= 2
	}
	// Snap the top tile's origin down to a multiple of its own size so
	// every descent divides evenly into stamp-aligned quadrants.
	ox := (xmin / size) * size
	oy := (ymin / size) * size
	r.stack = append(r.stack, rtile{X: ox, Y: oy, Size: size})
}

// descend pops one tile and, for each of its four quadrant children,
// tests whether any batch triangle has a sample
// inside it; kept children are pushed back for further subdivision, and
// stamp-sized kept tiles become pending stamps.
func (r *Recursive) descend() {
	n := len(r.stack)
	top := r.stack[n-1]
	r.stack = r.stack[:n-1]

	if top.Size <= r.cfg.StampW && top.Size <= r.cfg.StampH {
		r.testStampTile(top)
		return
	}

	half := top.Size / 2
	children := [4]rtile{
		{top.X, top.Y, half},
		{top.X + half, top.Y, half},
		{top.X, top.Y + half, half},
		{top.X + half, top.Y + half, half},
	}
	// Push in reverse so the first child is popped (and thus
	// subdivided) first, giving a depth-first preorder traversal.
	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		if r.anyTriangleTouches(c) {
			r.stack = append(r.stack, c)
		}
	}
}

// anyTriangleTouches implements the tester: keep a subtile if any of
// its four corner samples is inside any batch triangle, or (as a
// conservative fallback for triangles entirely inside the subtile) its
// bbox overlaps the triangle's bbox.
func (r *Recursive) anyTriangleTouches(c rtile) bool {
	x0, y0 := float64(c.X), float64(c.Y)
	x1, y1 := float64(c.X+c.Size), float64(c.Y+c.Size)
	for _, t := range r.batch {
		if float64(t.BBox.XMax) <= x0 || float64(t.BBox.XMin) >= x1 ||
			float64(t.BBox.YMax) <= y0 || float64(t.BBox.YMin) >= y1 {
			continue
		}
		if insideOrCrosses(t, x0, y0, x1, y1) {
			return true
		}
	}
	return false
}

func (r *Recursive) testStampTile(c rtile) {
	for _, t := range r.batch {
		x0, y0 := float64(c.X), float64(c.Y)
		x1, y1 := float64(c.X+r.cfg.StampW), float64(c.Y+r.cfg.StampH)
		if float64(t.BBox.XMax) <= x0 || float64(t.BBox.XMin) >= x1 ||
			float64(t.BBox.YMax) <= y0 || float64(t.BBox.YMin) >= y1 {
			continue
		}
		if insideOrCrosses(t, x0, y0, x1, y1) {
			r.pending = append(r.pending, batchedStamp{X: c.X, Y: c.Y, Tri: t})
		}
	}
}

func (r *Recursive) emitNext() (*gpucore.Stamp, Status) {
	bs := r.pending[0]
	r.pending = r.pending[1:]

	stamp := generateStamp(bs.Tri, bs.X, bs.Y, r.cfg.StampW, r.cfg.StampH, bs.Tri.ID())
	stamp.ScanTileX = bs.X / r.cfg.ScanTileW
	stamp.ScanTileY = bs.Y / r.cfg.ScanTileH
	stamp.SubtilePreorder = r.preorder
	r.preorder++

	if len(r.pending) == 0 && len(r.stack) == 0 {
		stamp.Last = true
		return stamp, StatusLast
	}
	return stamp, StatusStamp
}
