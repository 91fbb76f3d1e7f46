// Copyright 2026 The rastersim Authors
// SPDX-License-Identifier: MIT

package setup

import (
	"log/slog"

	"github.com/computegpu/rastersim/gpucore"
)

// Config configures the TriangleSetup stage.
type Config struct {
	FaceMode gpucore.FaceMode
	Culling  gpucore.CullMode

	// D3D9Rules enables the strict top-left tie-break inside rule.
	D3D9Rules bool

	// ThinTriangleBias is the additive subpixel-unit bias applied to
	// every edge equation's C term when the triangle's bbox is thin
	// (width or height <= 1 pixel), preventing gaps on thin diagonals.
	// Grounded on cmTriangleSetup.h's unconditional small constant bias.
	ThinTriangleBias float64

	Viewport BBox
	Scissor  *BBox // nil when scissor test is disabled
}

// Stage computes edge/Z plane equations for incoming triangles and
// allocates them into a Pool.
type Stage struct {
	cfg Config
	log *slog.Logger
}

// NewStage creates a TriangleSetup stage; the pool it allocates from is
// passed to each Setup call.
func NewStage(cfg Config, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Stage{cfg: cfg, log: log}
}

// SetConfig replaces the stage's configuration (REG_WRITE fan-in).
func (s *Stage) SetConfig(cfg Config) { s.cfg = cfg }

// Result is the outcome of a Setup call.
type Result struct {
	// Triangle is nil when the triangle was culled (degenerate or
	// backface-culled) or when the pool was exhausted.
	Triangle *Triangle
	// Culled is true when the triangle was silently dropped for being
	// degenerate or backface-culled under the configured CullMode.
	Culled bool
	// Backpressure is true when the pool was full; the caller must
	// retry the same three vertices on a later cycle.
	Backpressure bool
}

// Setup computes a setup triangle from three vertex records and
// allocates it from pool. v1, v2, v3 carry attribute 0 as the
// post-projection (x, y, z, w) position.
func (s *Stage) Setup(pool *Pool, v1, v2, v3 *gpucore.Vertex) Result {
	p1, p2, p3 := v1.Attrs[0], v2.Attrs[0], v3.Attrs[0]

	// Signed area determinant over 2D screen positions.
	area := float64((p2[0]-p1[0])*(p3[1]-p1[1]) - (p3[0]-p1[0])*(p2[1]-p1[1]))
	if area == 0 {
		s.log.Debug("setup: degenerate triangle culled")
		return Result{Culled: true}
	}

	backFacing := s.isBackFacing(area)
	if backFacing && (s.cfg.Culling == gpucore.CullBack || s.cfg.Culling == gpucore.CullFrontAndBack) {
		return Result{Culled: true}
	}
	if !backFacing && s.cfg.Culling == gpucore.CullFront {
		return Result{Culled: true}
	}
	if !backFacing && s.cfg.Culling == gpucore.CullFrontAndBack {
		return Result{Culled: true}
	}

	t, ok := pool.Allocate()
	if !ok {
		return Result{Backpressure: true}
	}

	edges := [3]Edge{
		edgeFor(p2, p3),
		edgeFor(p3, p1),
		edgeFor(p1, p2),
	}

	// Normalize so "inside" is edge >= 0: edgeFor gives inside-positive
	// edges for a positive signed area, so a triangle that survives
	// culling with a negative area has all edges negated.
	normalizeNegate := s.windingIsBack(area)
	if normalizeNegate {
		for i := range edges {
			edges[i].A, edges[i].B, edges[i].C = -edges[i].A, -edges[i].B, -edges[i].C
		}
	}

	if s.cfg.ThinTriangleBias != 0 {
		bbox := screenBBox(p1, p2, p3)
		w := bbox.XMax - bbox.XMin
		h := bbox.YMax - bbox.YMin
		if w <= 1 || h <= 1 {
			for i := range edges {
				edges[i].C += s.cfg.ThinTriangleBias
			}
		}
	}

	zPlane := zPlaneFor(p1, p2, p3)

	t.V1[0], t.V2[0], t.V3[0] = p1, p2, p3
	copy(t.V1[1:], v1.Attrs[1:])
	copy(t.V2[1:], v2.Attrs[1:])
	copy(t.V3[1:], v3.Attrs[1:])
	t.Edges = edges
	t.Z = zPlane
	t.Area = area
	t.FrontFacing = !backFacing

	bbox := screenBBox(p1, p2, p3)
	bbox = clipBBox(bbox, s.cfg.Viewport)
	if s.cfg.Scissor != nil {
		bbox = clipBBox(bbox, *s.cfg.Scissor)
	}
	t.BBox = bbox

	pool.MarkSetupComplete(t)
	if bbox.Empty() {
		// Fully clipped: still a valid setup triangle (it must exist for
		// bookkeeping), but traversal has nothing to do; mark it done
		// immediately rather than invent a synthetic empty pass.
		pool.MarkDone(t)
		return Result{Triangle: t}
	}
	return Result{Triangle: t}
}

// isBackFacing reports whether the signed area's sign makes the
// triangle back-facing under the configured FaceMode.
func (s *Stage) isBackFacing(area float64) bool {
	if s.cfg.FaceMode == gpucore.FaceCCW {
		return area < 0
	}
	return area > 0
}

// windingIsBack reports the raw winding sign regardless of FaceMode,
// used to decide whether edges need sign-flipping to reach the "inside
// >= 0" normal form.
func (s *Stage) windingIsBack(area float64) bool { return area < 0 }

func edgeFor(a, b gpucore.Attr) Edge {
	// Cross product of homogeneous 2D edge vector (b-a) with the plane
	// normal convention A*x+B*y+C, i.e. the line through a and b.
	A := float64(a[1] - b[1])
	B := float64(b[0] - a[0])
	C := float64(a[0]*b[1] - b[0]*a[1])
	return Edge{A: A, B: B, C: C}
}

func zPlaneFor(p1, p2, p3 gpucore.Attr) Edge {
	// Solve for (Az, Bz, Cz) such that Az*x+Bz*y+Cz == z at each vertex.
	x1, y1, z1 := float64(p1[0]), float64(p1[1]), float64(p1[2])
	x2, y2, z2 := float64(p2[0]), float64(p2[1]), float64(p2[2])
	x3, y3, z3 := float64(p3[0]), float64(p3[1]), float64(p3[2])

	denom := (x2-x1)*(y3-y1) - (x3-x1)*(y2-y1)
	if denom == 0 {
		return Edge{}
	}
	az := ((z2-z1)*(y3-y1) - (z3-z1)*(y2-y1)) / denom
	bz := ((x2-x1)*(z3-z1) - (x3-x1)*(z2-z1)) / denom
	cz := z1 - az*x1 - bz*y1
	return Edge{A: az, B: bz, C: cz}
}

func screenBBox(p1, p2, p3 gpucore.Attr) BBox {
	xmin := minF(p1[0], p2[0], p3[0])
	xmax := maxF(p1[0], p2[0], p3[0])
	ymin := minF(p1[1], p2[1], p3[1])
	ymax := maxF(p1[1], p2[1], p3[1])
	return BBox{
		XMin: int32(floorF(xmin)),
		YMin: int32(floorF(ymin)),
		XMax: int32(ceilF(xmax)),
		YMax: int32(ceilF(ymax)),
	}
}

func clipBBox(b, clip BBox) BBox {
	if b.XMin < clip.XMin {
		b.XMin = clip.XMin
	}
	if b.YMin < clip.YMin {
		b.YMin = clip.YMin
	}
	if b.XMax > clip.XMax {
		b.XMax = clip.XMax
	}
	if b.YMax > clip.YMax {
		b.YMax = clip.YMax
	}
	return b
}

// MicroTriangleLimit selects how aggressively the micro-triangle bypass
// applies (spec Sec 4.2).
type MicroTriangleLimit uint8

const (
	MicroLimitOnePixel MicroTriangleLimit = iota
	MicroLimitOneStamp
	MicroLimitStampGroup2x2
	MicroLimitStampGroup1x4
	MicroLimitStampGroup4x1
)

// IsMicroTriangle reports whether t's bounding box fits within the
// configured limit, and if so returns the adjusted integer bbox and the
// covered pixel/stamp counts per axis.
func IsMicroTriangle(t *Triangle, limit MicroTriangleLimit, stampW, stampH int32) (bbox BBox, coveredX, coveredY int32, ok bool) {
	w := t.BBox.XMax - t.BBox.XMin
	h := t.BBox.YMax - t.BBox.YMin
	switch limit {
	case MicroLimitOnePixel:
		ok = w <= 1 && h <= 1
	case MicroLimitOneStamp:
		ok = w <= stampW && h <= stampH
	case MicroLimitStampGroup2x2:
		ok = w <= 2*stampW && h <= 2*stampH
	case MicroLimitStampGroup1x4:
		ok = w <= stampW && h <= 4*stampH
	case MicroLimitStampGroup4x1:
		ok = w <= 4*stampW && h <= stampH
	}
	if !ok {
		return BBox{}, 0, 0, false
	}
	return t.BBox, w, h, true
}

func minF(a, b, c float32) float32 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func maxF(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func floorF(v float32) float32 {
	i := float32(int32(v))
	if v < 0 && i != v {
		i--
	}
	return i
}

func ceilF(v float32) float32 {
	i := float32(int32(v))
	if v > 0 && i != v {
		i++
	}
	return i
}
