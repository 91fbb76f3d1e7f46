package gpucore

// RegisterID names a configuration register recognized by one or more
// stages. Grouping follows spec Sec 6's table; the orchestrator applies
// every write and rejects an ID it does not know with ErrBinding.
type RegisterID uint16

const (
	RegViewportIniX RegisterID = iota
	RegViewportIniY
	RegViewportWidth
	RegViewportHeight

	RegScissorTest
	RegScissorIniX
	RegScissorIniY
	RegScissorWidth
	RegScissorHeight

	RegDepthTest
	RegDepthFunction
	RegDepthMask
	RegDepthRangeNear
	RegDepthRangeFar
	RegD3D9DepthRange
	RegDepthSlopeFactor
	RegDepthUnitOffset
	RegZBufferClear
	RegZBufferBitPrecision

	RegStencilTest
	RegStencilFrontFunction
	RegStencilFrontReference
	RegStencilFrontCompareMask
	RegStencilFrontFailUpdate
	RegStencilFrontDepthFailUpdate
	RegStencilFrontDepthPassUpdate
	RegStencilBackFunction
	RegStencilBackReference
	RegStencilBackCompareMask
	RegStencilBackFailUpdate
	RegStencilBackDepthFailUpdate
	RegStencilBackDepthPassUpdate
	RegStencilUpdateMask
	RegStencilBufferClear

	RegCulling
	RegFaceMode
	RegD3D9RasterizationRules
	RegD3D9PixelCoordinates
	RegHierarchicalZ
	RegMultisampling
	RegMSAASamples

	RegInterpolation       // subreg = attribute index
	RegVertexOutputAttr    // subreg = attribute index
	RegFragmentInputAttr   // subreg = attribute index
	RegVertexAttributeMap  // subreg = attribute index
	RegVertexAttributeDflt // subreg = attribute index

	RegStreamAddress // subreg = stream index
	RegStreamStride
	RegStreamData
	RegStreamElements
	RegStreamFrequency
	RegD3D9ColorStream
	RegIndexMode
	RegIndexStream
	RegStreamStart
	RegStreamCount
	RegStreamInstances
	RegAttributeLoadBypass

	RegDisplayXRes
	RegDisplayYRes

	RegColorBufferFormat
	RegZStencilBufferFormat
)

// VertexAttributeInactive marks a VERTEX_ATTRIBUTE_MAP slot as unbound to
// any stream.
const VertexAttributeInactive = -1

// PayloadKind tags the active field of a RegisterValue.
type PayloadKind uint8

const (
	PayloadUint PayloadKind = iota
	PayloadInt
	PayloadFloat
	PayloadVec4
	PayloadCompareFn
	PayloadCullMode
	PayloadFaceMode
	PayloadStencilOp
	PayloadPrimitive
	PayloadStreamData
	PayloadTexFormat
	PayloadBool
	PayloadAddress
)

// RegisterValue is the tagged union a REG_WRITE payload carries. Exactly
// one field is meaningful, selected by Kind. The orchestrator reads the
// field each RegisterID implies and does not check Kind, so a write
// whose Kind does not match the RegisterID is not rejected.
type RegisterValue struct {
	Kind PayloadKind

	U    uint32
	I    int32
	F    float32
	Vec4 Attr
	Cmp  CompareFunc
	Cull CullMode
	Face FaceMode
	Sop  StencilOp
	Prim Primitive
	SD   StreamDataType
	TF   TextureFormat
	B    bool
	Addr uint64
}

// RegisterWrite is one REG_WRITE command's payload: the register, an
// optional sub-index (for per-attribute/per-stream registers), and the
// tagged value.
type RegisterWrite struct {
	Reg    RegisterID
	Subreg int
	Value  RegisterValue
}
