package orchestrator

import (
	"github.com/gogpu/gputypes"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/hzstage"
	"github.com/computegpu/rastersim/internal/interp"
	"github.com/computegpu/rastersim/internal/setup"
)

// TraversalStrategy selects which TriangleTraversal implementation
// drives a draw (spec Sec 4.4: both strategies are interchangeable).
type TraversalStrategy uint8

const (
	TraversalScanline TraversalStrategy = iota
	TraversalRecursive
)

// Config is the orchestrator's construction-time configuration: pool
// and cache sizing, pixel-mapping geometry, and the chosen traversal
// strategy. Everything else (viewport, scissor, depth/stencil function,
// culling, interpolation modes, streams) is runtime state set through
// REG_WRITE commands, starting from defaultRegisterState.
type Config struct {
	Strategy TraversalStrategy

	TrianglePoolCapacity int

	// MicroTriangleBypass routes triangles whose bbox fits the limit
	// straight to the HZ stage as a single stamp (spec Sec 4.2's
	// optimisation flag).
	MicroTriangleBypass bool
	MicroTriangleLimit  setup.MicroTriangleLimit

	HZBlockCount  int
	HZCacheLines  int
	HZQueueSize   int
	HZStampsCycle int
	HZBlock       hzstage.BlockMapper
	HZClearValue  float64

	ScanTileW, ScanTileH int32
	GenTileW, GenTileH   int32
	StampW, StampH       int32
	OverScanW, OverScanH int32

	RecursiveTileTesters int

	StreamerLoaderUnits      int
	StreamerOutputCacheLines int
	StreamerTransactionBytes int

	DisplayWidth, DisplayHeight int32
}

// registerState holds every runtime register value the orchestrator
// owns directly (spec Sec 6); stencil registers are recorded but never
// interpreted here since stencil test execution belongs to the
// downstream Z-Stencil/consumer boundary this core doesn't implement.
type registerState struct {
	viewport setup.BBox

	scissorEnabled bool
	scissor        setup.BBox

	depthTest      bool
	depthFunc      gpucore.CompareFunc
	depthMask      bool
	nearDepth      float64
	farDepth       float64
	depthBits      int
	d3d9DepthRange bool
	depthSlope     float64
	depthUnit      float64
	zClear         uint32 // Z_BUFFER_CLEAR, at depth-buffer precision
	stencilClear   uint8

	cullMode        gpucore.CullMode
	faceMode        gpucore.FaceMode
	d3d9Rules       bool
	d3d9PixelCoords bool

	hierarchicalZ bool
	msaaEnabled   bool
	msaaSamples   int

	// colorFormat selects the channel order CLEAR_COLOR payloads are
	// packed in; zstencilFormat derives depthBits. Overridden by
	// COLOR_BUFFER_FORMAT / ZSTENCIL_BUFFER_FORMAT writes or (color
	// only) by the downstream consumer's surface format.
	colorFormat    gpucore.TextureFormat
	zstencilFormat gpucore.TextureFormat
	clearColor     gpucore.Attr

	attrModes       [gpucore.MaxVertexAttributes]interp.AttrMode
	provokingVertex int

	// vertexOutputAttr/fragmentInputAttr gate which attribute slots the
	// shader groups emit and the interpolator consumes; attrMap binds an
	// attribute slot to a stream id (VertexAttributeInactive = unbound)
	// and attrDefault supplies the value for unbound slots.
	vertexOutputAttr  [gpucore.MaxVertexAttributes]bool
	fragmentInputAttr [gpucore.MaxVertexAttributes]bool
	attrMap           [gpucore.MaxVertexAttributes]int
	attrDefault       [gpucore.MaxVertexAttributes]gpucore.Attr

	streams         [8]streamRegister
	indexMode       bool // true = indexed draw
	indexStream     int
	streamStart     uint32
	streamCount     uint32
	streamInstances uint32
	attrLoadBypass  bool
}

type streamRegister struct {
	// Data is the stream's backing bytes, installed either directly
	// (BindStream) or resolved from Address through the orchestrator's
	// bound-memory table at draw time.
	Data         []byte
	Address      uint64
	Stride       int
	Offset       int
	DataType     gpucore.StreamDataType
	Components   int
	AttrSlot     int
	D3D9BGRASwap bool
	PerInstance  bool
}

func defaultRegisterState() registerState {
	rs := registerState{
		viewport:        setup.BBox{XMin: 0, YMin: 0, XMax: 1, YMax: 1},
		depthFunc:       gpucore.CompareLessEqual,
		farDepth:        1,
		depthBits:       24,
		zClear:          1<<24 - 1,
		faceMode:        gpucore.FaceCCW,
		streamInstances: 1,
		colorFormat:     gputypes.TextureFormatRGBA8Unorm,
		zstencilFormat:  gputypes.TextureFormatDepth24PlusStencil8,
	}
	for i := range rs.attrMap {
		rs.attrMap[i] = gpucore.VertexAttributeInactive
		rs.vertexOutputAttr[i] = true
		rs.fragmentInputAttr[i] = true
		rs.attrDefault[i] = gpucore.Attr{0, 0, 0, 1}
	}
	for i := range rs.streams {
		rs.streams[i].AttrSlot = -1
	}
	return rs
}
