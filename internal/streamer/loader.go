package streamer

import "github.com/computegpu/rastersim/gpucore"

// StreamBinding describes one bound vertex (or instance) attribute
// stream: its backing bytes, element stride/offset, binary encoding,
// and destination attribute slot (spec Sec 6).
type StreamBinding struct {
	AttrSlot int
	Data     []byte
	Stride   int
	Offset   int
	DataType gpucore.StreamDataType
	// Components is the element's lane count, 1-4.
	Components int
	// D3D9BGRASwap applies the D3D9_COLOR_STREAM byte-order inversion
	// (spec Sec 6) to 4-component 1-byte-lane elements before decode.
	D3D9BGRASwap bool
	// PerInstance selects the instance id rather than the vertex index
	// as the element address, for instance-rate streams.
	PerInstance bool
}

// Loader decodes vertex attribute streams into gpucore.Vertex values,
// distributing work round-robin across a configured number of units.
// The units only affect load accounting here — the simulator doesn't
// model per-unit decode latency, only in-order commit (spec Sec 4.7).
type Loader struct {
	units   int
	next    int
	streams []StreamBinding

	// Defaults seed every decoded vertex's attribute array before any
	// stream is read (VERTEX_ATTRIBUTE_DEFAULT_VALUE); attributes no
	// stream writes keep their default.
	Defaults [gpucore.MaxVertexAttributes]gpucore.Attr

	// Bypass implements ATTRIBUTE_LOAD_BYPASS: no stream is decoded and
	// attribute 0 carries the raw (vertex index, instance) pair for the
	// shader group to resolve itself.
	Bypass bool

	UnitDecodes []int64
}

// NewLoader creates a Loader with the given unit count and stream
// bindings.
func NewLoader(units int, streams []StreamBinding) *Loader {
	if units < 1 {
		units = 1
	}
	return &Loader{units: units, streams: streams, UnitDecodes: make([]int64, units)}
}

// Decode assembles one vertex by reading every bound stream at the
// given vertex/instance address, round-robining the accounting unit.
func (l *Loader) Decode(vertexIndex, instanceIndex int32) gpucore.Vertex {
	unit := l.next
	l.next = (l.next + 1) % l.units
	l.UnitDecodes[unit]++

	var v gpucore.Vertex
	v.Attrs = l.Defaults

	if l.Bypass {
		v.Attrs[0] = gpucore.Attr{float32(vertexIndex), float32(instanceIndex), 0, 1}
		return v
	}

	for _, sb := range l.streams {
		idx := vertexIndex
		if sb.PerInstance {
			idx = instanceIndex
		}
		elemSize := sb.DataType.ByteWidth()
		off := sb.Offset + int(idx)*sb.Stride

		n := sb.Components
		if n > 4 {
			n = 4
		}
		if off < 0 || off+n*elemSize > len(sb.Data) {
			continue // short stream: the attribute keeps its default
		}
		group := make([]byte, n*elemSize)
		copy(group, sb.Data[off:off+n*elemSize])
		if sb.D3D9BGRASwap && n == 4 && elemSize == 1 {
			gpucore.SwapBGRA(group)
		}

		var attr gpucore.Attr
		for c := 0; c < n; c++ {
			raw := group[c*elemSize : (c+1)*elemSize]
			if sb.DataType.IsFloatResult() {
				attr[c] = gpucore.DecodeStreamElement(sb.DataType, raw)
			} else {
				attr[c] = float32(gpucore.DecodeStreamElementInt(sb.DataType, raw))
			}
		}
		v.Attrs[sb.AttrSlot] = attr
	}
	return v
}

// Reset rewinds the round-robin cursor and per-unit counters.
func (l *Loader) Reset() {
	l.next = 0
	for i := range l.UnitDecodes {
		l.UnitDecodes[i] = 0
	}
}
