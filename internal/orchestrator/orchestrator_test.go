package orchestrator

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/hzstage"
	"github.com/computegpu/rastersim/internal/setup"
	"github.com/computegpu/rastersim/internal/streamer"
)

// surfaceConsumer implements gpucore.DownstreamConsumer for testing,
// the way ggcanvas's tests mock a DeviceProvider: only SurfaceFormat
// carries information, the device/queue/adapter legs stay nil.
type surfaceConsumer struct {
	format gputypes.TextureFormat
}

func (c surfaceConsumer) Device() gpucontext.Device             { return nil }
func (c surfaceConsumer) Queue() gpucontext.Queue               { return nil }
func (c surfaceConsumer) Adapter() gpucontext.Adapter           { return nil }
func (c surfaceConsumer) SurfaceFormat() gputypes.TextureFormat { return c.format }
func (c surfaceConsumer) AdapterInfo() gpucontext.AdapterInfo   { return gpucontext.AdapterInfo{} }

func testConfig() Config {
	return Config{
		Strategy:             TraversalScanline,
		TrianglePoolCapacity: 16,
		HZBlockCount:         4,
		HZCacheLines:         8,
		HZQueueSize:          8,
		HZStampsCycle:        1,
		HZBlock:              hzstage.BlockMapper{BlockW: 4, BlockH: 4, BlocksPerRow: 2},
		HZClearValue:         1.0,
		ScanTileW:            16, ScanTileH: 16,
		GenTileW: 2, GenTileH: 2,
		StampW: 2, StampH: 2,
		OverScanW: 2, OverScanH: 2,
		RecursiveTileTesters:     4,
		StreamerLoaderUnits:      1,
		StreamerOutputCacheLines: 8,
		StreamerTransactionBytes: 32,
		DisplayWidth:             8,
		DisplayHeight:            8,
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	o := New(testConfig(), nil, nil)
	writeViewport(t, o, 0, 0, 8, 8)
	return o
}

func writeViewport(t *testing.T, o *Orchestrator, x, y int32, w, h uint32) {
	t.Helper()
	writes := []gpucore.RegisterWrite{
		{Reg: gpucore.RegViewportIniX, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: x}},
		{Reg: gpucore.RegViewportIniY, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: y}},
		{Reg: gpucore.RegViewportWidth, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: w}},
		{Reg: gpucore.RegViewportHeight, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: h}},
	}
	for _, wr := range writes {
		if err := o.applyRegisterWrite(wr); err != nil {
			t.Fatalf("applyRegisterWrite: %v", err)
		}
	}
}

func triangleStream(verts [][4]float32) []byte {
	buf := make([]byte, len(verts)*16)
	for i, v := range verts {
		for c := 0; c < 4; c++ {
			binary.LittleEndian.PutUint32(buf[i*16+c*4:], math.Float32bits(v[c]))
		}
	}
	return buf
}

func bindPositionStream(t *testing.T, o *Orchestrator, verts [][4]float32) {
	t.Helper()
	if err := o.BindStream(0, 0, triangleStream(verts), 16, 0, gpucore.StreamFloat32, 4, false, false); err != nil {
		t.Fatalf("BindStream: %v", err)
	}
}

func runDraw(t *testing.T, o *Orchestrator, params DrawParams) *DrawResult {
	t.Helper()
	if err := o.StartDraw(params); err != nil {
		t.Fatalf("StartDraw: %v", err)
	}
	for i := 0; i < 1_000_000; i++ {
		res, err := o.Advance()
		if err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if res != nil {
			return res
		}
		if o.State() == StateReady {
			return nil
		}
	}
	t.Fatalf("draw did not complete")
	return nil
}

func TestStartDrawWhileDrawingIsProtocolError(t *testing.T) {
	o := newTestOrchestrator(t)
	bindPositionStream(t, o, [][4]float32{{0, 0, 0.5, 1}, {4, 0, 0.5, 1}, {0, 4, 0.5, 1}})

	params := DrawParams{Primitive: gpucore.PrimitiveTriangles, VertexCount: 3}
	if err := o.StartDraw(params); err != nil {
		t.Fatalf("first StartDraw: %v", err)
	}
	if err := o.StartDraw(params); !errors.Is(err, gpucore.ErrProtocol) {
		t.Fatalf("expected ErrProtocol for StartDraw while DRAWING, got %v", err)
	}
}

func TestUnsupportedPrimitiveDropsDrawWithWarning(t *testing.T) {
	o := newTestOrchestrator(t)
	if err := o.StartDraw(DrawParams{Primitive: gpucore.PrimitiveLines, VertexCount: 2}); err != nil {
		t.Fatalf("a dropped draw is a warning, not an error: %v", err)
	}
	if o.State() != StateReady {
		t.Fatalf("the pipeline should stay READY after a dropped draw, state=%d", o.State())
	}
	warns := o.Warnings()
	if len(warns) != 1 || warns[0].Kind != WarnUnsupportedPrimitive {
		t.Fatalf("expected exactly one unsupported-primitive warning, got %v", warns)
	}
	if len(o.Warnings()) != 0 {
		t.Fatalf("Warnings should drain")
	}
}

func TestStreamRegisterIndexOutOfRangeIsBindingError(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg:    gpucore.RegStreamStride,
		Subreg: 99,
		Value:  gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 16},
	})
	if !errors.Is(err, gpucore.ErrBinding) {
		t.Fatalf("expected ErrBinding, got %v", err)
	}
}

func TestResetIsIdempotentOverRegisterState(t *testing.T) {
	reset := func(times int) registerState {
		o := newTestOrchestrator(t)
		// Dirty a spread of register groups first.
		writes := []gpucore.RegisterWrite{
			{Reg: gpucore.RegDepthTest, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: true}},
			{Reg: gpucore.RegDepthFunction, Value: gpucore.RegisterValue{Kind: gpucore.PayloadCompareFn, Cmp: gpucore.CompareGreater}},
			{Reg: gpucore.RegCulling, Value: gpucore.RegisterValue{Kind: gpucore.PayloadCullMode, Cull: gpucore.CullBack}},
			{Reg: gpucore.RegMSAASamples, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 4}},
			{Reg: gpucore.RegStreamStart, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 7}},
		}
		for _, w := range writes {
			if err := o.applyRegisterWrite(w); err != nil {
				t.Fatalf("applyRegisterWrite: %v", err)
			}
		}
		for i := 0; i < times; i++ {
			o.Submit(gpucore.Command{Kind: gpucore.CmdReset})
			if _, err := o.Advance(); err != nil { // dispatch RESET
				t.Fatalf("Advance: %v", err)
			}
			if _, err := o.Advance(); err != nil { // RESET -> READY
				t.Fatalf("Advance: %v", err)
			}
		}
		return o.regs
	}

	once := reset(1)
	twice := reset(2)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("register state after two RESETs differs from one:\n%+v\nvs\n%+v", once, twice)
	}
}

func TestFastZClearCyclesAndBufferContents(t *testing.T) {
	o := newTestOrchestrator(t)

	o.Submit(gpucore.Command{Kind: gpucore.CmdClearZStencil, ClearZ: 0.25})
	if _, err := o.Advance(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if o.State() != StateClear {
		t.Fatalf("expected CLEAR state after dispatch, got %d", o.State())
	}

	var cycles int
	for o.State() != StateReady {
		if _, err := o.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		cycles++
		if cycles > 100 {
			t.Fatalf("clear did not complete")
		}
	}

	// 8x8 display, 4 fragments/stamp, 4 stamps/block, 1 block/cycle:
	// ceil(64/16) = 4 cycles in CLEAR, plus the CLEAR_END drain tick.
	if o.ClearCycles() != 4 {
		t.Fatalf("expected 4 modeled clear cycles, got %d", o.ClearCycles())
	}
	for addr := int64(0); addr < int64(o.hzBuffer.Len()); addr++ {
		if got := o.hzBuffer.Read(addr); got != 0.25 {
			t.Fatalf("block %d: expected clear depth 0.25, got %v", addr, got)
		}
	}
}

func TestScissoredClearInvalidatesHZ(t *testing.T) {
	o := newTestOrchestrator(t)
	writes := []gpucore.RegisterWrite{
		{Reg: gpucore.RegScissorTest, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: true}},
		{Reg: gpucore.RegScissorIniX, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: 2}},
		{Reg: gpucore.RegScissorIniY, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: 2}},
		{Reg: gpucore.RegScissorWidth, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 4}},
		{Reg: gpucore.RegScissorHeight, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 4}},
	}
	for _, w := range writes {
		if err := o.applyRegisterWrite(w); err != nil {
			t.Fatalf("applyRegisterWrite: %v", err)
		}
	}

	o.Submit(gpucore.Command{Kind: gpucore.CmdClearZStencil, ClearZ: 1.0})
	if _, err := o.Advance(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if o.State() != StateDrawing {
		t.Fatalf("a scissored clear should run as a quad draw, state=%d", o.State())
	}
	for i := 0; o.State() != StateReady; i++ {
		if _, err := o.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		if i > 1_000_000 {
			t.Fatalf("clear quad did not drain")
		}
	}
	if o.hzValid {
		t.Fatalf("HZ maxima should be marked stale after a partial clear")
	}

	// A full-resolution fast clear revalidates.
	if err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg: gpucore.RegScissorTest, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: false},
	}); err != nil {
		t.Fatalf("applyRegisterWrite: %v", err)
	}
	o.Submit(gpucore.Command{Kind: gpucore.CmdClearZStencil, ClearZ: 1.0})
	if _, err := o.Advance(); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	for o.State() != StateReady {
		if _, err := o.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if !o.hzValid {
		t.Fatalf("a full fast clear should revalidate the HZ maxima")
	}
}

func TestDrawDescribedEntirelyByRegisters(t *testing.T) {
	o := newTestOrchestrator(t)

	pos := triangleStream([][4]float32{
		{0, 0, 0.5, 1},
		{4, 0, 0.5, 1},
		{0, 4, 0.5, 1},
		{4, 4, 0.5, 1},
	})
	idx := make([]byte, 3*2)
	binary.LittleEndian.PutUint16(idx[0:], 0)
	binary.LittleEndian.PutUint16(idx[2:], 1)
	binary.LittleEndian.PutUint16(idx[4:], 2)

	const posAddr, idxAddr = 0x1000, 0x2000
	o.BindMemory(posAddr, pos)
	o.BindMemory(idxAddr, idx)

	writes := []gpucore.RegisterWrite{
		// Stream 0: positions, mapped to attribute 0.
		{Reg: gpucore.RegStreamAddress, Subreg: 0, Value: gpucore.RegisterValue{Kind: gpucore.PayloadAddress, Addr: posAddr}},
		{Reg: gpucore.RegStreamStride, Subreg: 0, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 16}},
		{Reg: gpucore.RegStreamData, Subreg: 0, Value: gpucore.RegisterValue{Kind: gpucore.PayloadStreamData, SD: gpucore.StreamFloat32}},
		{Reg: gpucore.RegStreamElements, Subreg: 0, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 4}},
		{Reg: gpucore.RegVertexAttributeMap, Subreg: 0, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: 0}},
		// Stream 1: the 16-bit index stream.
		{Reg: gpucore.RegStreamAddress, Subreg: 1, Value: gpucore.RegisterValue{Kind: gpucore.PayloadAddress, Addr: idxAddr}},
		{Reg: gpucore.RegStreamData, Subreg: 1, Value: gpucore.RegisterValue{Kind: gpucore.PayloadStreamData, SD: gpucore.StreamUint16}},
		{Reg: gpucore.RegIndexMode, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: true}},
		{Reg: gpucore.RegIndexStream, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 1}},
		// Draw geometry.
		{Reg: gpucore.RegStreamStart, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 0}},
		{Reg: gpucore.RegStreamCount, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 3}},
		{Reg: gpucore.RegStreamInstances, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: 1}},
	}
	for _, w := range writes {
		if err := o.applyRegisterWrite(w); err != nil {
			t.Fatalf("applyRegisterWrite %v: %v", w.Reg, err)
		}
	}

	res := runDraw(t, o, DrawParams{Primitive: gpucore.PrimitiveTriangles})
	if res == nil {
		t.Fatalf("expected a DrawResult")
	}
	if res.Triangles != 1 {
		t.Fatalf("expected 1 triangle from the register-described draw, got %d", res.Triangles)
	}
	if len(res.Fragments) != 10 {
		t.Fatalf("expected 10 fragments, got %d", len(res.Fragments))
	}
}

func TestUnmappedAttributeStreamIsBindingError(t *testing.T) {
	o := newTestOrchestrator(t)
	if err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg: gpucore.RegVertexAttributeMap, Subreg: 0,
		Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: 3}, // stream 3: nothing bound
	}); err != nil {
		t.Fatalf("applyRegisterWrite: %v", err)
	}
	err := o.StartDraw(DrawParams{Primitive: gpucore.PrimitiveTriangles, VertexCount: 3})
	if !errors.Is(err, gpucore.ErrBinding) {
		t.Fatalf("expected ErrBinding for an attribute mapped to a dataless stream, got %v", err)
	}
}

func TestClearColorDecodesPerBufferFormat(t *testing.T) {
	o := newTestOrchestrator(t)

	const packed = 0x80FF4020 // bytes, low to high: 0x20, 0x40, 0xFF, 0x80

	o.Submit(gpucore.Command{Kind: gpucore.CmdClearColor, Color32: packed})
	if _, err := o.Advance(); err != nil {
		t.Fatalf("CLEAR_COLOR (RGBA8): %v", err)
	}
	rgba := o.ClearColor()
	if rgba != (gpucore.Attr{0x20 / 255.0, 0x40 / 255.0, 0xFF / 255.0, 0x80 / 255.0}) {
		t.Fatalf("RGBA8 decode: got %v", rgba)
	}

	if err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg:   gpucore.RegColorBufferFormat,
		Value: gpucore.RegisterValue{Kind: gpucore.PayloadTexFormat, TF: gputypes.TextureFormatBGRA8Unorm},
	}); err != nil {
		t.Fatalf("COLOR_BUFFER_FORMAT: %v", err)
	}
	o.Submit(gpucore.Command{Kind: gpucore.CmdClearColor, Color32: packed})
	if _, err := o.Advance(); err != nil {
		t.Fatalf("CLEAR_COLOR (BGRA8): %v", err)
	}
	bgra := o.ClearColor()
	if bgra != (gpucore.Attr{0xFF / 255.0, 0x40 / 255.0, 0x20 / 255.0, 0x80 / 255.0}) {
		t.Fatalf("BGRA8 decode should swap the red and blue lanes, got %v", bgra)
	}
}

func TestUnsupportedColorFormatIsBindingError(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg:   gpucore.RegColorBufferFormat,
		Value: gpucore.RegisterValue{Kind: gpucore.PayloadTexFormat, TF: gputypes.TextureFormatDepth24PlusStencil8},
	})
	if !errors.Is(err, gpucore.ErrBinding) {
		t.Fatalf("a depth format has no clear-color converter, want ErrBinding, got %v", err)
	}
}

func TestZStencilFormatDerivesDepthBits(t *testing.T) {
	o := newTestOrchestrator(t)
	o.regs.depthBits = 16
	if err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg:   gpucore.RegZStencilBufferFormat,
		Value: gpucore.RegisterValue{Kind: gpucore.PayloadTexFormat, TF: gputypes.TextureFormatDepth24PlusStencil8},
	}); err != nil {
		t.Fatalf("ZSTENCIL_BUFFER_FORMAT: %v", err)
	}
	if o.regs.depthBits != 24 {
		t.Fatalf("D24S8 should derive 24 depth bits, got %d", o.regs.depthBits)
	}

	err := o.applyRegisterWrite(gpucore.RegisterWrite{
		Reg:   gpucore.RegZStencilBufferFormat,
		Value: gpucore.RegisterValue{Kind: gpucore.PayloadTexFormat, TF: gputypes.TextureFormatRGBA8Unorm},
	})
	if !errors.Is(err, gpucore.ErrBinding) {
		t.Fatalf("a color format has no depth plane, want ErrBinding, got %v", err)
	}
}

func TestConsumerSurfaceFormatSeedsColorFormat(t *testing.T) {
	o := New(testConfig(), surfaceConsumer{format: gputypes.TextureFormatBGRA8Unorm}, nil)

	o.Submit(gpucore.Command{Kind: gpucore.CmdClearColor, Color32: 0x000000FF})
	if _, err := o.Advance(); err != nil {
		t.Fatalf("CLEAR_COLOR: %v", err)
	}
	// Byte 0 lands in the blue lane under the consumer's BGRA surface.
	if got := o.ClearColor(); got != (gpucore.Attr{0, 0, 1, 0}) {
		t.Fatalf("expected the consumer's BGRA8 surface format to drive the decode, got %v", got)
	}
}

func TestMicroTriangleBypassEmitsSingleStamp(t *testing.T) {
	cfg := testConfig()
	cfg.MicroTriangleBypass = true
	cfg.MicroTriangleLimit = setup.MicroLimitOneStamp
	o := New(cfg, nil, nil)
	writeViewport(t, o, 0, 0, 8, 8)

	bindPositionStream(t, o, [][4]float32{
		{0, 0, 0.5, 1},
		{2, 0, 0.5, 1},
		{0, 2, 0.5, 1},
	})
	res := runDraw(t, o, DrawParams{Primitive: gpucore.PrimitiveTriangles, VertexCount: 3})
	if res == nil {
		t.Fatalf("expected a DrawResult")
	}
	if res.MicroBypassed != 1 {
		t.Fatalf("expected the stamp-sized triangle to take the bypass, got %d", res.MicroBypassed)
	}
	if len(res.Fragments) != 3 {
		t.Fatalf("expected 3 covered fragments in the single stamp, got %d", len(res.Fragments))
	}
	for _, f := range res.Fragments {
		if f.X >= 2 || f.Y >= 2 {
			t.Fatalf("bypass fragment (%d,%d) escaped the stamp", f.X, f.Y)
		}
	}
}

func TestIndexedInstancedFetchAccounting(t *testing.T) {
	o := newTestOrchestrator(t)
	bindPositionStream(t, o, [][4]float32{
		{0, 0, 0.5, 1},
		{4, 0, 0.5, 1},
		{0, 4, 0.5, 1},
		{4, 4, 0.5, 1},
	})

	idx := make([]byte, 6*2)
	for i, v := range []uint16{0, 1, 2, 2, 1, 3} {
		binary.LittleEndian.PutUint16(idx[i*2:], v)
	}

	if err := o.StartDraw(DrawParams{
		Primitive:     gpucore.PrimitiveTriangles,
		VertexCount:   6,
		InstanceCount: 2,
		Indexed:       true,
		IndexFormat:   streamer.IndexUint16,
		IndexBuffer:   idx,
	}); err != nil {
		t.Fatalf("StartDraw: %v", err)
	}
	fetch := o.curStreamer.Fetch()
	for o.State() != StateReady {
		if _, err := o.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if fetch.BytesRequested != 24 {
		t.Fatalf("expected 12 index bytes per instance x 2, got %d", fetch.BytesRequested)
	}
	if fetch.PaddingBytes != 0 {
		t.Fatalf("an aligned run should skip no padding, got %d", fetch.PaddingBytes)
	}
	if fetch.Instance() != 2 {
		t.Fatalf("expected the fetch instance counter to reach 2, got %d", fetch.Instance())
	}
}
