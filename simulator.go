package rastersim

import (
	"fmt"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/hzstage"
	"github.com/computegpu/rastersim/internal/orchestrator"
	"github.com/computegpu/rastersim/internal/setup"
	"github.com/computegpu/rastersim/pixelmap"
)

// maxAdvanceCycles bounds how many cycles Draw will pump before giving
// up; the simulator itself has no timeout (spec Sec 5 "Cancellation &
// timeouts: None"), but a Go caller blocked forever on a misconfigured
// draw (e.g. a bound stream too short for its declared vertex count) is
// a bug to surface, not hang on.
const maxAdvanceCycles = 50_000_000

// Simulator is the package's façade: construction wires a PixelMapper,
// a SetupTrianglePool, the HZ cache/buffer, the chosen TriangleTraversal
// strategy, and the Streamer front end into one PipelineOrchestrator
// (spec Sec 4.8), and every further interaction goes through this type.
type Simulator struct {
	orch   *orchestrator.Orchestrator
	mapper *pixelmap.Mapper

	displayW, displayH int
}

// New constructs a Simulator for a display of the given pixel
// dimensions. Registers default per spec Sec 6: viewport is set to
// cover the full display, depth test off, culling off, CCW front face,
// as the orchestrator's default register state plus the viewport this
// constructor writes.
func New(displayW, displayH int, opts ...Option) (*Simulator, error) {
	if displayW <= 0 || displayH <= 0 {
		return nil, fmt.Errorf("%w: display dimensions must be positive, got %dx%d", gpucore.ErrConfig, displayW, displayH)
	}

	o := defaultOptions(displayW, displayH)
	for _, opt := range opts {
		opt(&o)
	}
	if o.trianglePoolCapacity <= 0 {
		return nil, fmt.Errorf("%w: triangle pool capacity must be positive", gpucore.ErrConfig)
	}
	if o.hzQueueSize <= 0 || o.hzStampsCycle <= 0 {
		return nil, fmt.Errorf("%w: HZ queue size and stamps-per-cycle must be positive", gpucore.ErrConfig)
	}
	if o.hzQueueSize <= 2*o.hzStampsCycle {
		// The stage's READY threshold is free > 2*stampsCycle; a queue
		// at or under that can never signal READY and the draw stalls.
		return nil, fmt.Errorf("%w: HZ queue size %d must exceed twice the stamps-per-cycle %d", gpucore.ErrConfig, o.hzQueueSize, o.hzStampsCycle)
	}
	if o.hzBlockW <= 0 || o.hzBlockH <= 0 {
		return nil, fmt.Errorf("%w: HZ block dimensions must be positive", gpucore.ErrConfig)
	}

	log := o.logger
	if log == nil {
		log = Logger()
	}

	mapper := pixelmap.New(o.pixelConfig)
	scanW, scanH := mapper.ScanTileSize()
	genW, genH := mapper.GenTileSize()
	stampW, stampH := mapper.StampSize()

	blocksPerRow := (displayW + int(o.hzBlockW) - 1) / int(o.hzBlockW)
	blocksPerCol := (displayH + int(o.hzBlockH) - 1) / int(o.hzBlockH)
	if blocksPerRow < 1 {
		blocksPerRow = 1
	}
	if blocksPerCol < 1 {
		blocksPerCol = 1
	}

	ocfg := orchestrator.Config{
		Strategy:             o.strategy,
		TrianglePoolCapacity: o.trianglePoolCapacity,
		MicroTriangleBypass:  o.microBypass,
		MicroTriangleLimit:   setup.MicroLimitOneStamp,
		HZBlockCount:         blocksPerRow * blocksPerCol,
		HZCacheLines:         o.hzCacheLines,
		HZQueueSize:          o.hzQueueSize,
		HZStampsCycle:        o.hzStampsCycle,
		HZBlock: hzstage.BlockMapper{
			BlockW:       o.hzBlockW,
			BlockH:       o.hzBlockH,
			BlocksPerRow: int32(blocksPerRow),
		},
		HZClearValue:             o.hzClearValue,
		ScanTileW:                int32(scanW),
		ScanTileH:                int32(scanH),
		GenTileW:                 int32(genW),
		GenTileH:                 int32(genH),
		StampW:                   int32(stampW),
		StampH:                   int32(stampH),
		OverScanW:                int32(o.pixelConfig.ScanTile.W),
		OverScanH:                int32(o.pixelConfig.ScanTile.H),
		RecursiveTileTesters:     o.recursiveTileTesters,
		StreamerLoaderUnits:      o.loaderUnits,
		StreamerOutputCacheLines: o.outputCacheLines,
		StreamerTransactionBytes: o.transactionBytes,
		DisplayWidth:             int32(displayW),
		DisplayHeight:            int32(displayH),
	}

	sim := &Simulator{
		orch:     orchestrator.New(ocfg, o.consumer, log),
		mapper:   mapper,
		displayW: displayW,
		displayH: displayH,
	}

	for _, w := range []gpucore.RegisterWrite{
		{Reg: gpucore.RegViewportIniX, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: 0}},
		{Reg: gpucore.RegViewportIniY, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: 0}},
		{Reg: gpucore.RegViewportWidth, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: uint32(displayW)}},
		{Reg: gpucore.RegViewportHeight, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: uint32(displayH)}},
	} {
		if err := sim.WriteRegister(w); err != nil {
			return nil, err
		}
	}
	return sim, nil
}

// PixelMapper returns the Simulator's PixelMapper (spec Sec 4.1),
// shared read-only state constructed once per simulation.
func (s *Simulator) PixelMapper() *pixelmap.Mapper { return s.mapper }

// State returns the orchestrator's top-level pipeline state (spec Sec
// 4.8).
func (s *Simulator) State() orchestrator.State { return s.orch.State() }

// Warnings drains and returns every domain warning raised since the
// last call (spec Sec 7 kind 5).
func (s *Simulator) Warnings() []orchestrator.DomainWarning { return s.orch.Warnings() }

// WriteRegister submits one REG_WRITE command and advances the
// orchestrator by exactly one cycle to dispatch it; the orchestrator
// must be READY.
func (s *Simulator) WriteRegister(w gpucore.RegisterWrite) error {
	s.orch.Submit(gpucore.Command{Kind: gpucore.CmdRegWrite, Write: w})
	_, err := s.orch.Advance()
	return err
}

// SetViewport writes the four VIEWPORT_* registers (spec Sec 6).
func (s *Simulator) SetViewport(x, y int32, width, height uint32) error {
	writes := []gpucore.RegisterWrite{
		{Reg: gpucore.RegViewportIniX, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: x}},
		{Reg: gpucore.RegViewportIniY, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: y}},
		{Reg: gpucore.RegViewportWidth, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: width}},
		{Reg: gpucore.RegViewportHeight, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: height}},
	}
	for _, w := range writes {
		if err := s.WriteRegister(w); err != nil {
			return err
		}
	}
	return nil
}

// SetScissor enables or writes the four SCISSOR_* registers (spec Sec
// 6).
func (s *Simulator) SetScissor(enabled bool, x, y int32, width, height uint32) error {
	writes := []gpucore.RegisterWrite{
		{Reg: gpucore.RegScissorTest, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: enabled}},
		{Reg: gpucore.RegScissorIniX, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: x}},
		{Reg: gpucore.RegScissorIniY, Value: gpucore.RegisterValue{Kind: gpucore.PayloadInt, I: y}},
		{Reg: gpucore.RegScissorWidth, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: width}},
		{Reg: gpucore.RegScissorHeight, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: height}},
	}
	for _, w := range writes {
		if err := s.WriteRegister(w); err != nil {
			return err
		}
	}
	return nil
}

// SetDepthTest writes DEPTH_TEST, DEPTH_FUNCTION and HIERARCHICALZ
// (spec Sec 6).
func (s *Simulator) SetDepthTest(enabled bool, fn gpucore.CompareFunc, hierarchicalZ bool) error {
	writes := []gpucore.RegisterWrite{
		{Reg: gpucore.RegDepthTest, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: enabled}},
		{Reg: gpucore.RegDepthFunction, Value: gpucore.RegisterValue{Kind: gpucore.PayloadCompareFn, Cmp: fn}},
		{Reg: gpucore.RegHierarchicalZ, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: hierarchicalZ}},
	}
	for _, w := range writes {
		if err := s.WriteRegister(w); err != nil {
			return err
		}
	}
	return nil
}

// SetMSAA writes MULTISAMPLING and MSAA_SAMPLES (spec Sec 6).
func (s *Simulator) SetMSAA(enabled bool, samples int) error {
	writes := []gpucore.RegisterWrite{
		{Reg: gpucore.RegMultisampling, Value: gpucore.RegisterValue{Kind: gpucore.PayloadBool, B: enabled}},
		{Reg: gpucore.RegMSAASamples, Value: gpucore.RegisterValue{Kind: gpucore.PayloadUint, U: uint32(samples)}},
	}
	for _, w := range writes {
		if err := s.WriteRegister(w); err != nil {
			return err
		}
	}
	return nil
}

// BindStream installs one vertex/instance attribute stream (the
// host-side analogue of the STREAM_* register group, spec Sec 6).
func (s *Simulator) BindStream(index, attrSlot int, data []byte, stride, offset int, dt gpucore.StreamDataType, components int, d3d9BGRASwap, perInstance bool) error {
	return s.orch.BindStream(index, attrSlot, data, stride, offset, dt, components, d3d9BGRASwap, perInstance)
}

// QueueZStencilWrite forwards a depth-buffer update from the downstream
// Z-Stencil execution unit into the HZ buffer (spec Sec 1's
// out-of-scope collaborator; see orchestrator.Orchestrator.QueueZStencilWrite).
func (s *Simulator) QueueZStencilWrite(x, y int32, z float64) {
	s.orch.QueueZStencilWrite(x, y, z)
}

// ClearColor issues a CLEAR_COLOR command; the packed color32 unpacks
// into float lanes per the bound color buffer format's channel order
// (RGBA8 vs BGRA8), readable back through LastClearColor.
func (s *Simulator) ClearColor(color32 uint32) error {
	s.orch.Submit(gpucore.Command{Kind: gpucore.CmdClearColor, Color32: color32})
	_, err := s.orch.Advance()
	return err
}

// LastClearColor returns the most recent CLEAR_COLOR payload decoded
// through the color buffer format.
func (s *Simulator) LastClearColor() gpucore.Attr { return s.orch.ClearColor() }

// ClearZStencil issues a CLEAR_Z_STENCIL command and pumps the
// orchestrator through the modeled clear (fast block clear, or the
// synthesized quad draw when the scissor test is on) back to READY
// (spec Sec 6, Sec 4.6 "Clear").
func (s *Simulator) ClearZStencil(z float32, stencil uint8) error {
	s.orch.Submit(gpucore.Command{Kind: gpucore.CmdClearZStencil, ClearZ: z, ClearStencil: stencil})
	if _, err := s.orch.Advance(); err != nil {
		return err
	}
	for n := 0; n < maxAdvanceCycles && s.orch.State() != orchestrator.StateReady; n++ {
		if _, err := s.orch.Advance(); err != nil {
			return err
		}
	}
	return nil
}

// BindMemory installs a host byte slice under a GPU address for
// STREAM_ADDRESS register writes to refer to (the memory-descriptor
// contract of the external driver layer).
func (s *Simulator) BindMemory(addr uint64, data []byte) {
	s.orch.BindMemory(addr, data)
}

// Reset issues a RESET command and drives it to completion (spec Sec
// 4.8's RESET -> READY transition).
func (s *Simulator) Reset() error {
	s.orch.Submit(gpucore.Command{Kind: gpucore.CmdReset})
	if _, err := s.orch.Advance(); err != nil {
		return err
	}
	_, err := s.orch.Advance()
	return err
}

// Draw starts a draw call and pumps the orchestrator until it
// completes, returning the accumulated DrawResult (spec Sec 4.8's
// DRAWING -> END transition).
func (s *Simulator) Draw(params orchestrator.DrawParams) (*orchestrator.DrawResult, error) {
	if err := s.orch.StartDraw(params); err != nil {
		return nil, err
	}
	for n := 0; n < maxAdvanceCycles; n++ {
		result, err := s.orch.Advance()
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("%w: draw did not complete within %d cycles", gpucore.ErrProtocol, maxAdvanceCycles)
}
