package gpucore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// TextureFormat re-exports gputypes' pixel format enum for the two
// registers that name a concrete buffer format: COLOR_BUFFER_FORMAT
// selects the channel order CLEAR_COLOR packs its color32 payload in,
// and ZSTENCIL_BUFFER_FORMAT derives the depth-buffer integer
// precision. Reusing the real GPU type enum avoids inventing a parallel
// one and keeps the format tags exchangeable with the downstream
// consumer's SurfaceFormat.
type TextureFormat = gputypes.TextureFormat

// DecodeClearColor unpacks a CLEAR_COLOR command's packed color32 into
// float lanes (r, g, b, a in [0, 1]) according to the configured color
// buffer format's channel order. Formats outside the supported set are
// an unsupported-converter-format binding error.
func DecodeClearColor(color32 uint32, format TextureFormat) (Attr, error) {
	b0 := float32(color32&0xff) / 255
	b1 := float32(color32>>8&0xff) / 255
	b2 := float32(color32>>16&0xff) / 255
	b3 := float32(color32>>24&0xff) / 255

	switch format {
	case gputypes.TextureFormatRGBA8Unorm:
		return Attr{b0, b1, b2, b3}, nil
	case gputypes.TextureFormatBGRA8Unorm:
		return Attr{b2, b1, b0, b3}, nil
	default:
		return Attr{}, fmt.Errorf("%w: color buffer format %v has no clear-color converter", ErrBinding, format)
	}
}

// DepthBitsForFormat returns the depth-buffer integer precision a
// Z/stencil buffer format implies, or an error for formats with no
// depth plane.
func DepthBitsForFormat(format TextureFormat) (int, error) {
	switch format {
	case gputypes.TextureFormatDepth24PlusStencil8:
		return 24, nil
	default:
		return 0, fmt.Errorf("%w: format %v is not a depth/stencil buffer format", ErrBinding, format)
	}
}

// DecodeStreamElement decodes one vertex stream element of the given
// encoding from raw into a float32, applying the exact transform named
// in spec Sec 6. Integer encodings (StreamUint*/StreamSint*) are not
// decoded here and return 0; callers check IsFloatResult and read
// DecodeStreamElementInt instead for those.
func DecodeStreamElement(t StreamDataType, raw []byte) float32 {
	switch t {
	case StreamUnorm8:
		return float32(raw[0]) / 255
	case StreamSnorm8:
		v := float32(int8(raw[0]))
		return maxF32(-1, v/127)
	case StreamUnorm16:
		return float32(binary.LittleEndian.Uint16(raw)) / 65535
	case StreamSnorm16:
		v := float32(int16(binary.LittleEndian.Uint16(raw)))
		return maxF32(-1, v/32767)
	case StreamUnorm32:
		return float32(float64(binary.LittleEndian.Uint32(raw)) / float64(math.MaxUint32))
	case StreamSnorm32:
		v := float64(int32(binary.LittleEndian.Uint32(raw)))
		return float32(math.Max(-1, v/float64(math.MaxInt32)))
	case StreamFloat16:
		return decodeFloat16(binary.LittleEndian.Uint16(raw))
	case StreamFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(raw))
	default:
		return 0
	}
}

// DecodeStreamElementInt decodes an integer-typed stream element
// (StreamUint8/16/32, StreamSint8/16/32), zero- or sign-extending to
// int32 without converting to float, per spec Sec 6.
func DecodeStreamElementInt(t StreamDataType, raw []byte) int32 {
	switch t {
	case StreamUint8:
		return int32(raw[0])
	case StreamSint8:
		return int32(int8(raw[0]))
	case StreamUint16:
		return int32(binary.LittleEndian.Uint16(raw))
	case StreamSint16:
		return int32(int16(binary.LittleEndian.Uint16(raw)))
	case StreamUint32:
		return int32(binary.LittleEndian.Uint32(raw))
	case StreamSint32:
		return int32(binary.LittleEndian.Uint32(raw))
	default:
		return 0
	}
}

// SwapBGRA swaps byte lanes 0 and 2 of a 4-component element in place,
// implementing the D3D9_COLOR_STREAM byte-order inversion flag.
func SwapBGRA(raw []byte) {
	if len(raw) < 3 {
		return
	}
	raw[0], raw[2] = raw[2], raw[0]
}

func decodeFloat16(bits uint16) float32 {
	sign := uint32(bits>>15) & 1
	exp := uint32(bits>>10) & 0x1f
	mant := uint32(bits) & 0x3ff

	var f32bits uint32
	switch {
	case exp == 0 && mant == 0:
		f32bits = sign << 31
	case exp == 0x1f:
		f32bits = sign<<31 | 0xff<<23 | mant<<13
	case exp == 0:
		// Subnormal half: normalize by shifting the mantissa until the
		// implicit leading bit appears, adjusting the exponent to match.
		e := int32(0)
		m := mant
		for m&0x400 == 0 {
			m <<= 1
			e--
		}
		m &= 0x3ff
		f32bits = sign<<31 | uint32(int32(127-15+1+e))<<23 | m<<13
	default:
		f32bits = sign<<31 | (exp-15+127)<<23 | mant<<13
	}
	return math.Float32frombits(f32bits)
}

func maxF32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
