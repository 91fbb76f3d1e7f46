package gpucore

// MaxVertexAttributes is the number of 4-lane attribute slots a vertex
// carries. Attribute 0 is always the post-projection position.
const MaxVertexAttributes = 16

// MaxStampBlocks bounds the number of HZ blocks a single stamp can
// straddle. Four covers the worst case of a 2x2 MSAA-sample stamp
// crossing both a horizontal and a vertical block boundary.
const MaxStampBlocks = 4

// Subpixel is a signed fixed-point coordinate with a configured
// fractional-bit count (typically 4-8 bits). Two Subpixel values give a
// pixel centre or MSAA sample position.
type Subpixel int32

// SubpixelConfig carries the fractional-bit count shared by every stage
// that converts between integer pixel coordinates and Subpixel values.
type SubpixelConfig struct {
	// FracBits is the number of fractional bits below the integer pixel
	// grid. 4-8 is typical; 0 disables subpixel precision entirely.
	FracBits uint
}

// ToSubpixel converts an integer pixel coordinate to the fixed-point
// representation at this configuration's precision.
func (c SubpixelConfig) ToSubpixel(pixel int32) Subpixel {
	return Subpixel(pixel << c.FracBits)
}

// PixelCenter returns the subpixel coordinate of the centre of the pixel
// at the given integer coordinate, applying the D3D9 half-texel/half-
// subpixel shift when d3d9 is true.
func (c SubpixelConfig) PixelCenter(pixel int32, d3d9 bool) Subpixel {
	half := Subpixel(1) << (c.FracBits - 1)
	if c.FracBits == 0 {
		half = 0
	}
	base := c.ToSubpixel(pixel) + half
	if d3d9 {
		// D3D9 samples pixel centres at integer coordinates rather than
		// half-integer; shift back by the same half-subpixel unit.
		base -= half
	}
	return base
}

// Attr is a 4-lane vertex attribute (x, y, z, w or r, g, b, a depending
// on semantic). All interpolation and vertex storage operates on Attr
// values so the same record shape serves position, color, texcoord, and
// generic attributes uniformly.
type Attr [4]float32

// Vertex holds the full attribute set for one vertex, indexed by
// attribute slot. Unmapped attributes keep their configured default.
type Vertex struct {
	Attrs [MaxVertexAttributes]Attr
}

// CompareFunc enumerates the depth/stencil comparison functions a
// register can select.
type CompareFunc uint8

const (
	CompareNever CompareFunc = iota
	CompareLess
	CompareLessEqual
	CompareEqual
	CompareGreaterEqual
	CompareGreater
	CompareNotEqual
	CompareAlways
)

// HZAccelerated reports whether this compare function can be evaluated
// conservatively by the hierarchical-Z stage from a single per-block
// maximum, without touching individual fragments.
func (f CompareFunc) HZAccelerated() bool {
	switch f {
	case CompareLess, CompareLessEqual, CompareEqual:
		return true
	default:
		return false
	}
}

// Passes evaluates whether a fragment depth sZ would be accepted against
// a reference depth bZ already present in the buffer.
func (f CompareFunc) Passes(sZ, bZ float64) bool {
	switch f {
	case CompareNever:
		return false
	case CompareLess:
		return sZ < bZ
	case CompareLessEqual:
		return sZ <= bZ
	case CompareEqual:
		return sZ == bZ
	case CompareGreaterEqual:
		return sZ >= bZ
	case CompareGreater:
		return sZ > bZ
	case CompareNotEqual:
		return sZ != bZ
	case CompareAlways:
		return true
	default:
		return false
	}
}

// HZCullsStamp reports whether a stamp whose minimum depth is sZ can be
// proven, conservatively, to fail entirely against a block whose stored
// maximum depth is bZ. EQUAL is deliberately conservative: it culls only
// when sZ could not possibly equal anything up to bZ, i.e. it behaves as
// LESS_EQUAL. See spec Open Question on HZ EQUAL handling.
func (f CompareFunc) HZCullsStamp(sZ, bZ float64) bool {
	switch f {
	case CompareLess:
		return !(sZ < bZ)
	case CompareLessEqual, CompareEqual:
		return !(sZ <= bZ)
	default:
		return false
	}
}

// CullMode enumerates the facing-based primitive cull modes.
type CullMode uint8

const (
	CullNone CullMode = iota
	CullFront
	CullBack
	CullFrontAndBack
)

// FaceMode selects which winding order is considered front-facing.
type FaceMode uint8

const (
	FaceCW FaceMode = iota
	FaceCCW
)

// StencilOp enumerates the stencil buffer update operations.
type StencilOp uint8

const (
	StencilKeep StencilOp = iota
	StencilZero
	StencilReplace
	StencilIncrementClamp
	StencilDecrementClamp
	StencilInvert
	StencilIncrementWrap
	StencilDecrementWrap
)

// Primitive enumerates the primitive topologies a draw can name. Only
// Triangles and TriangleStrip/TriangleFan feed the rasterizer core;
// the point/line topologies are recognized but rejected as a domain
// warning (see orchestrator.DomainWarning).
type Primitive uint8

const (
	PrimitiveTriangles Primitive = iota
	PrimitiveTriangleStrip
	PrimitiveTriangleFan
	PrimitivePoints
	PrimitiveLines
	PrimitiveLineStrip
	PrimitiveLineLoop
)

// IsTriangleTopology reports whether the primitive is one the rasterizer
// core can process.
func (p Primitive) IsTriangleTopology() bool {
	switch p {
	case PrimitiveTriangles, PrimitiveTriangleStrip, PrimitiveTriangleFan:
		return true
	default:
		return false
	}
}

// StreamDataType enumerates the binary encodings a vertex stream element
// can use, per spec Sec 6 "Vertex attribute binary formats".
type StreamDataType uint8

const (
	StreamUnorm8 StreamDataType = iota
	StreamSnorm8
	StreamUnorm16
	StreamSnorm16
	StreamUnorm32
	StreamSnorm32
	StreamFloat16
	StreamFloat32
	StreamUint8
	StreamSint8
	StreamUint16
	StreamSint16
	StreamUint32
	StreamSint32
)

// ByteWidth returns the per-element byte width of the stream encoding.
func (t StreamDataType) ByteWidth() int {
	switch t {
	case StreamUnorm8, StreamSnorm8, StreamUint8, StreamSint8:
		return 1
	case StreamUnorm16, StreamSnorm16, StreamFloat16, StreamUint16, StreamSint16:
		return 2
	default:
		return 4
	}
}

// IsFloatResult reports whether decoding this encoding yields a
// normalized or floating-point value (true) as opposed to a raw
// zero/sign-extended integer passed through unconverted (false).
func (t StreamDataType) IsFloatResult() bool {
	switch t {
	case StreamUint8, StreamSint8, StreamUint16, StreamSint16, StreamUint32, StreamSint32:
		return false
	default:
		return true
	}
}
