// Package interp implements the FragmentInterpolator (spec Sec 4.5):
// barycentric interpolation of per-vertex attributes and, when MSAA is
// active, per-sample coverage and depth.
package interp

import (
	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/setup"
)

// AttrMode selects how one attribute slot is interpolated.
type AttrMode uint8

const (
	// AttrPerspective scales barycentric weights by per-vertex 1/w.
	AttrPerspective AttrMode = iota
	// AttrLinear interpolates without the perspective correction.
	AttrLinear
	// AttrFlat copies the value from the provoking vertex.
	AttrFlat
)

// Config configures the interpolator.
type Config struct {
	AttrModes       [gpucore.MaxVertexAttributes]AttrMode
	ProvokingVertex int // 0, 1, or 2 — which vertex is "flat"'s source

	// InputEnabled gates which attribute slots are interpolated
	// (FRAGMENT_INPUT_ATTRIBUTES); disabled slots carry their
	// AttrDefaults value instead. The zero value means all enabled.
	InputEnabled [gpucore.MaxVertexAttributes]bool
	AttrDefaults [gpucore.MaxVertexAttributes]gpucore.Attr

	NearDepth, FarDepth float64
	DepthBits           int // typically 24

	// DepthSlopeFactor and DepthUnitOffset implement polygon offset
	// (DEPTH_SLOPE_FACTOR / DEPTH_UNIT_OFFSET): the offset added to
	// every interpolated depth is factor*maxSlope + units*r, where r is
	// one unit of depth-buffer precision.
	DepthSlopeFactor float64
	DepthUnitOffset  float64

	// D3D9PixelCoordinates samples pixel centres at integer coordinates
	// instead of half-integer (D3D9_PIXEL_COORDINATES).
	D3D9PixelCoordinates bool

	MSAASamples   int // 0/1 disables MSAA; else 2/4/6/8
	SamplePattern []Offset
}

// Offset is a subpixel offset (dx, dy) from a pixel's lower-left corner,
// used both as the pixel-centre probe and as one entry of an MSAA
// sample-offset table.
type Offset struct{ DX, DY float64 }

// DefaultSamplePattern returns a fixed sample-offset table for the given
// MSAA sample count, used when Config.SamplePattern is nil. The patterns
// are a standard rotated/staggered grid; exact sub-pixel placement
// doesn't affect correctness, only anti-alias quality, so a single
// canonical table per count is sufficient for the simulator.
func DefaultSamplePattern(samples int) []Offset {
	switch samples {
	case 2:
		return []Offset{{0.25, 0.25}, {0.75, 0.75}}
	case 4:
		return []Offset{{0.375, 0.125}, {0.875, 0.375}, {0.125, 0.625}, {0.625, 0.875}}
	case 6:
		return []Offset{
			{0.166, 0.0}, {0.5, 0.166}, {0.833, 0.333},
			{0.166, 0.666}, {0.5, 0.833}, {0.833, 1.0},
		}
	case 8:
		return []Offset{
			{0.0625, 0.0}, {0.3125, 0.25}, {0.5625, 0.0625}, {0.8125, 0.3125},
			{0.1875, 0.5625}, {0.4375, 0.8125}, {0.6875, 0.6875}, {0.9375, 0.9375},
		}
	default:
		return []Offset{{0.5, 0.5}}
	}
}

// Interpolator produces a fully interpolated Fragment for a pixel
// location known to be inside (or straddling, for MSAA) a setup
// triangle.
type Interpolator struct {
	cfg Config
}

// New creates an Interpolator from the given configuration, filling in
// the default sample pattern when MSAA is enabled and none was given.
func New(cfg Config) *Interpolator {
	normalizeConfig(&cfg)
	return &Interpolator{cfg: cfg}
}

// SetConfig replaces the interpolator's configuration.
func (ip *Interpolator) SetConfig(cfg Config) {
	normalizeConfig(&cfg)
	ip.cfg = cfg
}

func normalizeConfig(cfg *Config) {
	if cfg.MSAASamples > 1 && cfg.SamplePattern == nil {
		cfg.SamplePattern = DefaultSamplePattern(cfg.MSAASamples)
	}
	if cfg.InputEnabled == ([gpucore.MaxVertexAttributes]bool{}) {
		for i := range cfg.InputEnabled {
			cfg.InputEnabled[i] = true
		}
	}
}

// Interpolate fills frag's barycentric weights, interpolated attributes,
// depth, and (when MSAA is enabled) per-sample coverage/depth for pixel
// (x, y) of triangle t.
func (ip *Interpolator) Interpolate(t *setup.Triangle, x, y int32, frag *gpucore.Fragment) {
	frag.X, frag.Y = x, y
	frag.TriangleID = t.ID()

	centre := 0.5
	if ip.cfg.D3D9PixelCoordinates {
		centre = 0.0
	}
	cx, cy := float64(x)+centre, float64(y)+centre
	e1 := t.Edges[0].Eval(cx, cy)
	e2 := t.Edges[1].Eval(cx, cy)
	e3 := t.Edges[2].Eval(cx, cy)
	frag.Inside = e1 >= 0 && e2 >= 0 && e3 >= 0

	total := e1 + e2 + e3
	if total == 0 {
		total = 1
	}
	frag.BaryU, frag.BaryV, frag.BaryW = e1/total, e2/total, e3/total

	z := t.Z.Eval(cx, cy) + ip.polygonOffset(t)
	frag.Z = clampDepth(z, ip.cfg.NearDepth, ip.cfg.FarDepth)

	ip.interpolateAttrs(t, frag.BaryU, frag.BaryV, frag.BaryW, &frag.Attrs)

	if ip.cfg.MSAASamples > 1 {
		ip.sampleMSAA(t, x, y, frag)
	} else {
		frag.SampleMask = 0
	}
}

func (ip *Interpolator) sampleMSAA(t *setup.Triangle, x, y int32, frag *gpucore.Fragment) {
	baseX, baseY := float64(x), float64(y)
	var mask uint8
	minZ := ip.cfg.FarDepth
	any := false

	for i, off := range ip.cfg.SamplePattern {
		if i >= gpucore.MaxMSAASamples {
			break
		}
		sx, sy := baseX+off.DX, baseY+off.DY
		e1 := t.Edges[0].Eval(sx, sy)
		e2 := t.Edges[1].Eval(sx, sy)
		e3 := t.Edges[2].Eval(sx, sy)
		if e1 >= 0 && e2 >= 0 && e3 >= 0 {
			mask |= 1 << uint(i)
			z := clampDepth(t.Z.Eval(sx, sy)+ip.polygonOffset(t), ip.cfg.NearDepth, ip.cfg.FarDepth)
			frag.SampleZ[i] = z
			if !any || z < minZ {
				minZ = z
				any = true
			}
		}
	}
	frag.SampleMask = mask
	if any {
		frag.Z = minZ
		frag.Inside = true
	} else {
		frag.Inside = false
	}
}

func (ip *Interpolator) interpolateAttrs(t *setup.Triangle, u, v, w float64, out *[gpucore.MaxVertexAttributes]gpucore.Attr) {
	verts := [3]*[gpucore.MaxVertexAttributes]gpucore.Attr{&t.V1, &t.V2, &t.V3}
	bary := [3]float64{u, v, w}

	for a := 0; a < gpucore.MaxVertexAttributes; a++ {
		if !ip.cfg.InputEnabled[a] {
			out[a] = ip.cfg.AttrDefaults[a]
			continue
		}
		switch ip.cfg.AttrModes[a] {
		case AttrFlat:
			out[a] = verts[ip.cfg.ProvokingVertex%3][a]
		case AttrPerspective:
			wv := [3]float64{
				float64(verts[0][0][3]),
				float64(verts[1][0][3]),
				float64(verts[2][0][3]),
			}
			var num [4]float64
			denom := 0.0
			for k := 0; k < 3; k++ {
				invW := 1.0
				if wv[k] != 0 {
					invW = 1.0 / wv[k]
				}
				weight := bary[k] * invW
				denom += weight
				attr := verts[k][a]
				for c := 0; c < 4; c++ {
					num[c] += weight * float64(attr[c])
				}
			}
			if denom == 0 {
				denom = 1
			}
			for c := 0; c < 4; c++ {
				out[a][c] = float32(num[c] / denom)
			}
		default: // AttrLinear
			var acc [4]float64
			for k := 0; k < 3; k++ {
				attr := verts[k][a]
				for c := 0; c < 4; c++ {
					acc[c] += bary[k] * float64(attr[c])
				}
			}
			for c := 0; c < 4; c++ {
				out[a][c] = float32(acc[c])
			}
		}
	}
}

// polygonOffset computes the depth bias for triangle t from the
// configured slope factor and unit offset. maxSlope is the larger of
// |dz/dx| and |dz/dy|; one depth unit is a single step of the depth
// buffer's integer precision.
func (ip *Interpolator) polygonOffset(t *setup.Triangle) float64 {
	if ip.cfg.DepthSlopeFactor == 0 && ip.cfg.DepthUnitOffset == 0 {
		return 0
	}
	dzdx, dzdy := t.Z.A, t.Z.B
	if dzdx < 0 {
		dzdx = -dzdx
	}
	if dzdy < 0 {
		dzdy = -dzdy
	}
	maxSlope := dzdx
	if dzdy > maxSlope {
		maxSlope = dzdy
	}
	bits := ip.cfg.DepthBits
	if bits <= 0 {
		bits = 24
	}
	r := 1.0 / float64(uint64(1)<<uint(bits)-1)
	return ip.cfg.DepthSlopeFactor*maxSlope + ip.cfg.DepthUnitOffset*r
}

func clampDepth(z, near, far float64) float64 {
	if z < near {
		return near
	}
	if z > far {
		return far
	}
	return z
}

// QuantizeDepth maps a clamped [nearDepth,farDepth] float depth to the
// configured integer depth-buffer precision (spec Sec 4.5).
func (ip *Interpolator) QuantizeDepth(z float64) uint32 {
	bits := ip.cfg.DepthBits
	if bits <= 0 {
		bits = 24
	}
	maxVal := float64(uint64(1)<<uint(bits) - 1)
	span := ip.cfg.FarDepth - ip.cfg.NearDepth
	if span == 0 {
		return 0
	}
	norm := (z - ip.cfg.NearDepth) / span
	return uint32(norm * maxVal)
}
