package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/hz"
	"github.com/computegpu/rastersim/internal/hzstage"
	"github.com/computegpu/rastersim/internal/interp"
	"github.com/computegpu/rastersim/internal/setup"
	"github.com/computegpu/rastersim/internal/signal"
	"github.com/computegpu/rastersim/internal/streamer"
	"github.com/computegpu/rastersim/internal/traversal"
)

// State is the orchestrator's top-level cycle state (spec Sec 4.8).
type State uint8

const (
	StateReset State = iota
	StateReady
	StateDrawing
	StateEnd
	StateClear
	StateClearEnd
)

// DomainWarningKind enumerates the non-fatal conditions spec Sec 7 kind
// 5 names.
type DomainWarningKind uint8

const (
	WarnUnsupportedPrimitive DomainWarningKind = iota
)

// DomainWarning is a non-fatal condition logged rather than returned: the
// draw producing it is dropped and the pipeline returns to READY (spec
// Sec 4.8, resolving the Open Question on unsupported primitives).
type DomainWarning struct {
	Kind   DomainWarningKind
	Detail string
}

// DrawParams is one CmdDraw's payload: the primitive topology and the
// index/instance geometry the Streamer needs, plus a caller-supplied
// index buffer for indexed draws.
type DrawParams struct {
	Primitive     gpucore.Primitive
	VertexCount   int
	InstanceCount int
	BaseVertex    int32
	Indexed       bool
	IndexFormat   streamer.IndexFormat
	IndexBuffer   []byte
}

// DrawResult accumulates everything one draw produced, for inspection
// by the downstream consumer or a test fixture.
type DrawResult struct {
	Fragments     []gpucore.Fragment
	CullHZ        int64
	OutOfView     int64
	Triangles     int64
	MicroBypassed int64
	Cycles        int64
}

// Orchestrator is the PipelineOrchestrator (spec Sec 4.8): the single
// cooperative state machine owning every stage and driving them
// leaf-first, one cycle at a time.
type Orchestrator struct {
	cfg Config
	log *slog.Logger

	consumer gpucore.DownstreamConsumer

	regs  registerState
	state State
	cycle int64

	pool        *setup.Pool
	setupStage  *setup.Stage
	hzCache     *hz.Cache
	hzBuffer    *hz.Buffer
	hzStage     *hzstage.Stage
	interpStage *interp.Interpolator

	// stampSig and outSig are the fixed-latency, fixed-bandwidth Signals
	// (spec Sec 5) carrying stamps from TriangleTraversal to HZStage and
	// from HZStage to the FragmentInterpolator — the sole inter-stage
	// communication mechanism the spec allows; every other stage method
	// call in this file is a same-cycle leaf-first advance, not a data
	// transfer between stages.
	stampSig *signal.Signal[*gpucore.Stamp]
	outSig   *signal.Signal[*gpucore.Stamp]

	commands []gpucore.Command

	// memory is the bound-memory table: GPU addresses named by
	// STREAM_ADDRESS register writes resolve to host byte slices
	// installed through BindMemory (the memory-descriptor contract of
	// the external driver layer).
	memory map[uint64][]byte

	curStreamer  *streamer.Streamer
	curTraversal traversal.Traversal
	curResult    *DrawResult
	drawDone     bool
	pendingBatch []*setup.Triangle
	batchHanded  bool

	// hzValid is false after a partial (scissored) Z clear, which
	// rewrites only part of the depth buffer and leaves the HZ block
	// maxima stale; HZ culling stays disabled until the next full fast
	// clear revalidates them.
	hzValid bool

	// clearQuad marks the in-flight draw as the synthesized quad of a
	// partial Z clear; its fragments are the clear writes themselves and
	// are not surfaced as a DrawResult.
	clearQuad   bool
	clearZValue float64
	clearCycles int64

	warnings []DomainWarning
}

// New creates an Orchestrator. consumer may be nil; when present, its
// surface format becomes the initial color buffer format so CLEAR_COLOR
// payloads unpack in the channel order the consumer's render target
// actually uses (a COLOR_BUFFER_FORMAT write still overrides it).
func New(cfg Config, consumer gpucore.DownstreamConsumer, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	o := &Orchestrator{
		cfg:      cfg,
		log:      log,
		consumer: consumer,
		regs:     defaultRegisterState(),
		state:    StateReady,
		memory:   make(map[uint64][]byte),
		hzValid:  true,
	}
	o.adoptConsumerFormat()
	o.buildStages()
	return o
}

// adoptConsumerFormat queries the downstream consumer's surface format
// and installs it as the color buffer format when it is one the
// clear-color converter supports.
func (o *Orchestrator) adoptConsumerFormat() {
	if o.consumer == nil {
		return
	}
	format := o.consumer.SurfaceFormat()
	if _, err := gpucore.DecodeClearColor(0, format); err != nil {
		o.log.Debug("rastersim: keeping default color format; consumer surface format has no converter", "format", format)
		return
	}
	o.regs.colorFormat = format
}

func (o *Orchestrator) buildStages() {
	o.pool = setup.NewPool(o.cfg.TrianglePoolCapacity, o.log)
	o.setupStage = setup.NewStage(o.setupConfig(), o.log)
	o.hzCache = hz.NewCache(o.cfg.HZCacheLines, o.log)
	o.hzBuffer = hz.NewBuffer(o.cfg.HZBlockCount, o.cfg.HZClearValue)
	o.hzStage = hzstage.NewStage(o.hzStageConfig(), o.hzCache, o.hzBuffer, o.log)
	o.interpStage = interp.New(o.interpConfig())

	stampsCycle := o.cfg.HZStampsCycle
	if stampsCycle < 1 {
		stampsCycle = 1
	}
	o.stampSig = signal.New[*gpucore.Stamp](stampsCycle, 1)
	o.outSig = signal.New[*gpucore.Stamp](stampsCycle, 1)
}

func (o *Orchestrator) setupConfig() setup.Config {
	var scissor *setup.BBox
	if o.regs.scissorEnabled {
		s := o.regs.scissor
		scissor = &s
	}
	return setup.Config{
		FaceMode:         o.regs.faceMode,
		Culling:          o.regs.cullMode,
		D3D9Rules:        o.regs.d3d9Rules,
		ThinTriangleBias: 1.0 / 256.0,
		Viewport:         o.regs.viewport,
		Scissor:          scissor,
	}
}

func (o *Orchestrator) hzStageConfig() hzstage.Config {
	var scissor *hzstage.BBox
	if o.regs.scissorEnabled {
		b := hzstage.BBox(o.regs.scissor)
		scissor = &b
	}
	return hzstage.Config{
		QueueSize:        o.cfg.HZQueueSize,
		StampsCycle:      o.cfg.HZStampsCycle,
		DepthTest:        o.regs.depthTest,
		DepthFunc:        o.regs.depthFunc,
		DepthMask:        o.regs.depthMask,
		Viewport:         hzstage.BBox(o.regs.viewport),
		Scissor:          scissor,
		HierarchicalZ:    o.regs.hierarchicalZ && o.hzValid,
		Block:            o.cfg.HZBlock,
		StampFragments:   4,
		ClearBlocksCycle: 1,
	}
}

func (o *Orchestrator) interpConfig() interp.Config {
	return interp.Config{
		AttrModes:            o.regs.attrModes,
		ProvokingVertex:      o.regs.provokingVertex,
		InputEnabled:         o.regs.fragmentInputAttr,
		AttrDefaults:         o.regs.attrDefault,
		NearDepth:            o.regs.nearDepth,
		FarDepth:             o.regs.farDepth,
		DepthBits:            o.regs.depthBits,
		DepthSlopeFactor:     o.regs.depthSlope,
		DepthUnitOffset:      o.regs.depthUnit,
		D3D9PixelCoordinates: o.regs.d3d9PixelCoords,
		MSAASamples:          o.msaaSamples(),
	}
}

func (o *Orchestrator) msaaSamples() int {
	if !o.regs.msaaEnabled {
		return 0
	}
	return o.regs.msaaSamples
}

// State returns the orchestrator's current pipeline state.
func (o *Orchestrator) State() State { return o.state }

// Warnings drains and returns every domain warning raised since the
// last call.
func (o *Orchestrator) Warnings() []DomainWarning {
	w := o.warnings
	o.warnings = nil
	return w
}

// Submit enqueues one command for dispatch on a later Advance call.
func (o *Orchestrator) Submit(cmd gpucore.Command) {
	o.commands = append(o.commands, cmd)
}

// QueueZStencilWrite records a depth-buffer update for pixel (x, y) from
// the downstream Z-Stencil execution unit (spec Sec 1's out-of-scope
// collaborator; only its contract to the core is modeled here). The
// write is drained into the HZ buffer on a later Advance call (spec Sec
// 4.6 step 1), one per cycle per the shared data bus.
func (o *Orchestrator) QueueZStencilWrite(x, y int32, z float64) {
	addr := o.cfg.HZBlock.Address(x, y)
	o.hzStage.QueueZStencilWrite(hzstage.ZStencilWrite{Addr: addr, Z: z})
}

// Advance runs one cycle of the top-level state machine, dispatching at
// most one queued command while READY, or pumping the active draw one
// cycle while DRAWING/END. It returns the DrawResult once a draw
// completes (END), else nil.
func (o *Orchestrator) Advance() (*DrawResult, error) {
	o.cycle++

	switch o.state {
	case StateReset:
		o.reset()
		o.state = StateReady
		return nil, nil

	case StateReady:
		if len(o.commands) == 0 {
			return nil, nil
		}
		cmd := o.commands[0]
		o.commands = o.commands[1:]
		return o.dispatch(cmd)

	case StateDrawing:
		o.pumpDraw()
		if o.drawDone {
			o.state = StateEnd
		}
		return nil, nil

	case StateEnd:
		result := o.curResult
		result.Cycles = o.cycle
		o.curResult = nil
		o.curTraversal = nil
		o.curStreamer = nil
		o.state = StateReady
		if o.clearQuad {
			// The synthesized partial-clear quad is not a caller draw;
			// its fragments are the clear writes themselves.
			o.clearQuad = false
			return nil, nil
		}
		return result, nil

	case StateClear:
		o.clearCycles++
		o.hzStage.Advance(o.cycle)
		if o.hzStage.State() == hzstage.StateClearEnd {
			o.hzStage.FinishClearZ(o.clearZValue)
			o.hzValid = true
			o.state = StateClearEnd
		}
		return nil, nil

	case StateClearEnd:
		o.hzStage.Advance(o.cycle) // lets the stage return to READY
		o.log.Debug("rastersim: fast Z clear complete", "cycles", o.clearCycles)
		o.state = StateReady
		return nil, nil
	}
	return nil, nil
}

// ClearCycles returns how many cycles the most recent fast Z clear
// spent in the CLEAR state, per the modeled throughput formula.
func (o *Orchestrator) ClearCycles() int64 { return o.clearCycles }

// ClearColor returns the most recent CLEAR_COLOR payload decoded
// through the bound color buffer format's channel order.
func (o *Orchestrator) ClearColor() gpucore.Attr { return o.regs.clearColor }

func (o *Orchestrator) dispatch(cmd gpucore.Command) (*DrawResult, error) {
	switch cmd.Kind {
	case gpucore.CmdReset:
		o.state = StateReset
		return nil, nil
	case gpucore.CmdRegWrite:
		if err := o.applyRegisterWrite(cmd.Write); err != nil {
			return nil, err
		}
		return nil, nil
	case gpucore.CmdDraw:
		return nil, fmt.Errorf("%w: CmdDraw must be started via StartDraw, not the command stream", gpucore.ErrProtocol)
	case gpucore.CmdEnd:
		return nil, nil
	case gpucore.CmdClearZStencil:
		if o.regs.scissorEnabled {
			// A scissored clear can't use the block-granular fast path:
			// it becomes a quad draw over the scissor rect using the
			// default programs, and the HZ maxima go stale.
			o.startClearQuad(float64(cmd.ClearZ))
			return nil, nil
		}
		o.clearZValue = float64(cmd.ClearZ)
		o.clearCycles = 0
		o.hzStage.BeginClearZ(int(o.cfg.DisplayWidth) * int(o.cfg.DisplayHeight))
		o.state = StateClear
		return nil, nil
	case gpucore.CmdClearColor:
		// The packed color32 unpacks per the bound color buffer format;
		// the actual buffer fill happens in the out-of-scope color
		// backend, so the core's work ends at the decoded value.
		c, err := gpucore.DecodeClearColor(cmd.Color32, o.regs.colorFormat)
		if err != nil {
			return nil, err
		}
		o.regs.clearColor = c
		return nil, nil
	case gpucore.CmdFlushColor, gpucore.CmdFlushZStencil,
		gpucore.CmdSaveColorState, gpucore.CmdRestoreColorState,
		gpucore.CmdSaveZStencilState, gpucore.CmdRestoreZStencilState,
		gpucore.CmdResetColorState, gpucore.CmdResetZStencilState,
		gpucore.CmdSwapBuffers, gpucore.CmdLoadVertexProgram, gpucore.CmdLoadFragmentProgram:
		// Backend-state and program-load commands have no effect inside
		// the rasterizer core; they are accepted so a full command
		// stream replays in order, and otherwise ignored (the color and
		// shader backends they would drive are out of scope, spec Sec 1).
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown command kind %d", gpucore.ErrProtocol, cmd.Kind)
	}
}

// StartDraw begins a draw call outside the ordinary command stream
// (mirroring spec Sec 4.8, where DRAW carries out-of-band vertex/stream
// parameters rather than a RegisterValue payload). The orchestrator
// must be READY; returns a DomainWarning (state stays READY) instead of
// an error when the primitive topology isn't one the core rasterizes.
func (o *Orchestrator) StartDraw(params DrawParams) error {
	if o.state != StateReady {
		return fmt.Errorf("%w: StartDraw while not READY", gpucore.ErrProtocol)
	}
	if !params.Primitive.IsTriangleTopology() {
		o.warnings = append(o.warnings, DomainWarning{
			Kind:   WarnUnsupportedPrimitive,
			Detail: fmt.Sprintf("primitive %d is not a triangle topology; draw dropped", params.Primitive),
		})
		o.log.Warn("rastersim: dropping unsupported primitive", "primitive", params.Primitive)
		return nil
	}

	// Parameters left zero fall back to the STREAM_* register group, so
	// a pure command-stream driver can describe the whole draw through
	// REG_WRITEs alone.
	if params.VertexCount == 0 {
		params.VertexCount = int(o.regs.streamCount)
	}
	if params.InstanceCount == 0 {
		params.InstanceCount = int(o.regs.streamInstances)
	}
	if !params.Indexed && o.regs.indexMode {
		params.Indexed = true
	}
	if params.Indexed && params.IndexBuffer == nil {
		buf, format, err := o.resolveIndexStream()
		if err != nil {
			return err
		}
		params.IndexBuffer = buf
		params.IndexFormat = format
	}

	streams, err := o.bindStreams()
	if err != nil {
		return err
	}

	o.curStreamer = streamer.NewStreamer(streamer.Config{
		Fetch: streamer.FetchConfig{
			Indexed:          params.Indexed,
			IndexFormat:      params.IndexFormat,
			IndexBuffer:      params.IndexBuffer,
			BaseVertex:       params.BaseVertex,
			StartIndex:       int(o.regs.streamStart),
			VertexCount:      params.VertexCount,
			InstanceCount:    params.InstanceCount,
			TransactionBytes: o.cfg.StreamerTransactionBytes,
		},
		Streams:             streams,
		LoaderUnits:         o.cfg.StreamerLoaderUnits,
		OutputCacheLines:    o.cfg.StreamerOutputCacheLines,
		Primitive:           params.Primitive,
		AttributeDefaults:   o.regs.attrDefault,
		AttributeLoadBypass: o.regs.attrLoadBypass,
	}, o.log)

	o.curTraversal = o.newTraversal()
	o.curResult = &DrawResult{}
	o.hzStage.OutViewport, o.hzStage.CullHZ, o.hzStage.Sent = 0, 0, 0
	o.drawDone = false
	o.pendingBatch = nil
	o.batchHanded = false
	o.pool.Reset()
	o.state = StateDrawing
	return nil
}

// resolveIndexStream reads the INDEX_STREAM register's backing bytes
// and maps its element type to an index format.
func (o *Orchestrator) resolveIndexStream() ([]byte, streamer.IndexFormat, error) {
	if o.regs.indexStream < 0 || o.regs.indexStream >= len(o.regs.streams) {
		return nil, 0, fmt.Errorf("%w: INDEX_STREAM names stream %d, out of range", gpucore.ErrBinding, o.regs.indexStream)
	}
	sr := o.regs.streams[o.regs.indexStream]
	data := o.resolveStreamData(sr)
	if data == nil {
		return nil, 0, fmt.Errorf("%w: index stream %d has no bound data", gpucore.ErrBinding, o.regs.indexStream)
	}
	switch sr.DataType {
	case gpucore.StreamUint16:
		return data, streamer.IndexUint16, nil
	case gpucore.StreamUint32:
		return data, streamer.IndexUint32, nil
	default:
		return nil, 0, fmt.Errorf("%w: index stream %d has element type %d, want UINT16 or UINT32", gpucore.ErrBinding, o.regs.indexStream, sr.DataType)
	}
}

// resolveStreamData returns a stream's backing bytes: the directly
// installed slice, or the bound-memory range its STREAM_ADDRESS names.
func (o *Orchestrator) resolveStreamData(sr streamRegister) []byte {
	if sr.Data != nil {
		return sr.Data
	}
	if sr.Address != 0 {
		return o.memory[sr.Address]
	}
	return nil
}

// BindMemory installs a host byte slice under a GPU address, the range
// STREAM_ADDRESS register writes refer to.
func (o *Orchestrator) BindMemory(addr uint64, data []byte) {
	o.memory[addr] = data
}

func (o *Orchestrator) bindStreams() ([]streamer.StreamBinding, error) {
	var out []streamer.StreamBinding
	used := make(map[int]bool)

	// Attribute-mapped bindings first: VERTEX_ATTRIBUTE_MAP names which
	// stream feeds each attribute slot. An active map entry with no
	// bound data is an inconsistent binding the moment a draw starts.
	for a, sIdx := range o.regs.attrMap {
		if sIdx == gpucore.VertexAttributeInactive {
			continue
		}
		if sIdx < 0 || sIdx >= len(o.regs.streams) {
			return nil, fmt.Errorf("%w: attribute %d mapped to stream %d, out of range", gpucore.ErrBinding, a, sIdx)
		}
		s := o.regs.streams[sIdx]
		data := o.resolveStreamData(s)
		if data == nil {
			return nil, fmt.Errorf("%w: attribute %d mapped to stream %d, which has no bound data", gpucore.ErrBinding, a, sIdx)
		}
		out = append(out, streamer.StreamBinding{
			AttrSlot:     a,
			Data:         data,
			Stride:       s.Stride,
			Offset:       s.Offset,
			DataType:     s.DataType,
			Components:   s.Components,
			D3D9BGRASwap: s.D3D9BGRASwap,
			PerInstance:  s.PerInstance,
		})
		used[sIdx] = true
	}

	// Directly installed bindings (BindStream) carry their own slot.
	for i, s := range o.regs.streams {
		if used[i] || s.AttrSlot < 0 {
			continue
		}
		data := o.resolveStreamData(s)
		if data == nil {
			continue
		}
		if s.AttrSlot >= gpucore.MaxVertexAttributes {
			return nil, fmt.Errorf("%w: stream %d bound to invalid attribute slot %d", gpucore.ErrBinding, i, s.AttrSlot)
		}
		out = append(out, streamer.StreamBinding{
			AttrSlot:     s.AttrSlot,
			Data:         data,
			Stride:       s.Stride,
			Offset:       s.Offset,
			DataType:     s.DataType,
			Components:   s.Components,
			D3D9BGRASwap: s.D3D9BGRASwap,
			PerInstance:  s.PerInstance,
		})
	}
	return out, nil
}

// startClearQuad synthesizes the partial-clear draw: two triangles
// covering the scissor rectangle at the clear depth, run through the
// ordinary pipeline with the default programs. HZ culling is disabled
// first so the quad's own stamps can't be rejected against the stale
// maxima it is about to overwrite.
func (o *Orchestrator) startClearQuad(clearZ float64) {
	o.hzValid = false
	o.hzStage.SetConfig(o.hzStageConfig())

	sc := o.regs.scissor
	x0, y0 := float32(sc.XMin), float32(sc.YMin)
	x1, y1 := float32(sc.XMax), float32(sc.YMax)
	z := float32(clearZ)

	vert := func(x, y float32) *gpucore.Vertex {
		v := &gpucore.Vertex{}
		v.Attrs[0] = gpucore.Attr{x, y, z, 1}
		return v
	}

	o.curStreamer = nil
	o.curTraversal = o.newTraversal()
	o.curResult = &DrawResult{}
	o.drawDone = false
	o.pendingBatch = nil
	o.batchHanded = false
	o.clearQuad = true
	o.pool.Reset()

	// The clear quad ignores the application's culling state; a
	// dedicated setup configuration guarantees both triangles survive.
	quadCfg := o.setupConfig()
	quadCfg.Culling = gpucore.CullNone
	quadSetup := setup.NewStage(quadCfg, o.log)

	quads := [2][3]*gpucore.Vertex{
		{vert(x0, y0), vert(x1, y0), vert(x0, y1)},
		{vert(x1, y0), vert(x1, y1), vert(x0, y1)},
	}
	for _, q := range quads {
		res := quadSetup.Setup(o.pool, q[0], q[1], q[2])
		if res.Triangle != nil {
			o.addToTraversal(res.Triangle)
		}
	}
	o.state = StateDrawing
}

func (o *Orchestrator) newTraversal() traversal.Traversal {
	switch o.cfg.Strategy {
	case TraversalRecursive:
		return traversal.NewRecursive(traversal.RecursiveConfig{
			TileTesters: o.cfg.RecursiveTileTesters,
			StampW:      o.cfg.StampW, StampH: o.cfg.StampH,
			ScanTileW: o.cfg.ScanTileW, ScanTileH: o.cfg.ScanTileH,
		})
	default:
		return traversal.NewScanline(traversal.ScanlineConfig{
			ScanTileW: o.cfg.ScanTileW, ScanTileH: o.cfg.ScanTileH,
			GenTileW: o.cfg.GenTileW, GenTileH: o.cfg.GenTileH,
			StampW: o.cfg.StampW, StampH: o.cfg.StampH,
			OverScanW: o.cfg.OverScanW, OverScanH: o.cfg.OverScanH,
		})
	}
}

// pumpDraw runs one cycle of the active draw: it feeds newly streamed
// triangles through setup into the traversal, pulls one stamp from
// traversal into the HZ stage, advances the HZ stage, and interpolates
// whatever it emits.
func (o *Orchestrator) pumpDraw() {
	if o.curStreamer != nil && !o.curStreamer.Done() {
		for _, tri := range o.curStreamer.Advance() {
			v1, v2, v3 := tri.V1, tri.V2, tri.V3
			res := o.setupStage.Setup(o.pool, &v1, &v2, &v3)
			if res.Backpressure {
				continue
			}
			if res.Culled || res.Triangle == nil {
				continue
			}
			o.curResult.Triangles++
			if o.tryMicroBypass(res.Triangle) {
				continue
			}
			o.addToTraversal(res.Triangle)
		}
	}

	streamerDone := o.curStreamer == nil || o.curStreamer.Done()
	if streamerDone && !o.batchHanded {
		// The recursive strategy traverses a whole batch at once; it
		// only has something to traverse once every triangle the
		// streamer will ever produce for this draw has reached setup.
		if rec, ok := o.curTraversal.(*traversal.Recursive); ok {
			rec.SetBatch(o.pendingBatch)
		}
		o.batchHanded = true
	}

	// Pull from traversal only while the signal has bandwidth and the
	// HZ stage has queue headroom: NextStamp advances the traversal, so
	// a write that would be rejected here would lose the stamp.
	if o.stampSig.Ready(o.cycle) && o.hzStage.Ready() {
		if stamp, status := o.curTraversal.NextStamp(); status != traversal.StatusNone {
			if stamp != nil {
				o.stampSig.Write(o.cycle, []*gpucore.Stamp{stamp})
			}
		}
	}
	if stamps := o.stampSig.Read(o.cycle); len(stamps) > 0 {
		o.hzStage.Enqueue(stamps)
	}

	for _, stamp := range o.hzStage.Advance(o.cycle) {
		o.outSig.Write(o.cycle, []*gpucore.Stamp{stamp})
	}
	for _, stamp := range o.outSig.Read(o.cycle) {
		o.interpolateStamp(stamp)
	}

	o.curResult.CullHZ = o.hzStage.CullHZ
	o.curResult.OutOfView = o.hzStage.OutViewport

	queueEmpty := o.hzStage.FreeCount() == o.cfg.HZQueueSize
	o.drawDone = streamerDone && o.batchHanded && o.curTraversal.Done() && queueEmpty &&
		!o.stampSig.Pending() && !o.outSig.Pending()
}

// tryMicroBypass routes a stamp-sized triangle straight to the HZ stage
// as a single stamp, skipping the traversal's tile machinery entirely
// (spec Sec 4.2's micro-triangle optimisation). It declines (returns
// false) when the bypass is off, the bbox exceeds one stamp, the bbox
// straddles a stamp boundary, or the stamp signal has no bandwidth left
// this cycle.
func (o *Orchestrator) tryMicroBypass(t *setup.Triangle) bool {
	if !o.cfg.MicroTriangleBypass {
		return false
	}
	if !o.hzStage.Ready() {
		return false
	}
	bbox, _, _, ok := setup.IsMicroTriangle(t, o.cfg.MicroTriangleLimit, o.cfg.StampW, o.cfg.StampH)
	if !ok {
		return false
	}
	sx := (bbox.XMin / o.cfg.StampW) * o.cfg.StampW
	sy := (bbox.YMin / o.cfg.StampH) * o.cfg.StampH
	if bbox.XMax > sx+o.cfg.StampW || bbox.YMax > sy+o.cfg.StampH {
		return false
	}
	st := traversal.GenerateStamp(t, sx, sy, o.cfg.StampW, o.cfg.StampH)
	st.ScanTileX = sx / o.cfg.ScanTileW
	st.ScanTileY = sy / o.cfg.ScanTileH
	if o.stampSig.Write(o.cycle, []*gpucore.Stamp{st}) == 0 {
		return false
	}
	o.curResult.MicroBypassed++
	o.pool.MarkDone(t)
	return true
}

func (o *Orchestrator) addToTraversal(t *setup.Triangle) {
	switch tr := o.curTraversal.(type) {
	case *traversal.Scanline:
		tr.AddTriangle(t)
	case *traversal.Recursive:
		o.pendingBatch = append(o.pendingBatch, t)
	}
}

func (o *Orchestrator) interpolateStamp(stamp *gpucore.Stamp) {
	t := o.pool.Get(stamp.TriangleID)
	if t == nil {
		return
	}
	for i := range stamp.Fragments {
		if stamp.Culled[i] {
			continue
		}
		frag := stamp.Fragments[i]
		o.interpStage.Interpolate(t, frag.X, frag.Y, &frag)
		if !frag.Inside {
			continue
		}
		o.curResult.Fragments = append(o.curResult.Fragments, frag)
	}
}

func (o *Orchestrator) applyRegisterWrite(w gpucore.RegisterWrite) error {
	v := w.Value
	switch w.Reg {
	case gpucore.RegViewportIniX:
		o.regs.viewport.XMin = int32(v.I)
	case gpucore.RegViewportIniY:
		o.regs.viewport.YMin = int32(v.I)
	case gpucore.RegViewportWidth:
		o.regs.viewport.XMax = o.regs.viewport.XMin + int32(v.U)
	case gpucore.RegViewportHeight:
		o.regs.viewport.YMax = o.regs.viewport.YMin + int32(v.U)

	case gpucore.RegScissorTest:
		o.regs.scissorEnabled = v.B
	case gpucore.RegScissorIniX:
		o.regs.scissor.XMin = int32(v.I)
	case gpucore.RegScissorIniY:
		o.regs.scissor.YMin = int32(v.I)
	case gpucore.RegScissorWidth:
		o.regs.scissor.XMax = o.regs.scissor.XMin + int32(v.U)
	case gpucore.RegScissorHeight:
		o.regs.scissor.YMax = o.regs.scissor.YMin + int32(v.U)

	case gpucore.RegDepthTest:
		o.regs.depthTest = v.B
	case gpucore.RegDepthFunction:
		o.regs.depthFunc = v.Cmp
	case gpucore.RegDepthMask:
		o.regs.depthMask = v.B
	case gpucore.RegDepthRangeNear:
		o.regs.nearDepth = float64(v.F)
	case gpucore.RegDepthRangeFar:
		o.regs.farDepth = float64(v.F)
	case gpucore.RegD3D9DepthRange:
		o.regs.d3d9DepthRange = v.B
	case gpucore.RegDepthSlopeFactor:
		o.regs.depthSlope = float64(v.F)
	case gpucore.RegDepthUnitOffset:
		o.regs.depthUnit = float64(v.F)
	case gpucore.RegZBufferClear:
		o.regs.zClear = v.U
	case gpucore.RegZBufferBitPrecision:
		o.regs.depthBits = int(v.U)
	case gpucore.RegStencilBufferClear:
		o.regs.stencilClear = uint8(v.U)

	case gpucore.RegCulling:
		o.regs.cullMode = v.Cull
	case gpucore.RegFaceMode:
		o.regs.faceMode = v.Face
	case gpucore.RegD3D9RasterizationRules:
		o.regs.d3d9Rules = v.B
	case gpucore.RegD3D9PixelCoordinates:
		o.regs.d3d9PixelCoords = v.B
	case gpucore.RegHierarchicalZ:
		o.regs.hierarchicalZ = v.B
	case gpucore.RegMultisampling:
		o.regs.msaaEnabled = v.B
	case gpucore.RegMSAASamples:
		o.regs.msaaSamples = int(v.U)

	case gpucore.RegInterpolation, gpucore.RegVertexOutputAttr, gpucore.RegFragmentInputAttr,
		gpucore.RegVertexAttributeMap, gpucore.RegVertexAttributeDflt:
		return o.applyAttributeRegister(w)

	case gpucore.RegIndexMode:
		o.regs.indexMode = v.B
	case gpucore.RegIndexStream:
		o.regs.indexStream = int(v.U)
	case gpucore.RegStreamStart:
		o.regs.streamStart = v.U
	case gpucore.RegStreamCount:
		o.regs.streamCount = v.U
	case gpucore.RegStreamInstances:
		o.regs.streamInstances = v.U
	case gpucore.RegAttributeLoadBypass:
		o.regs.attrLoadBypass = v.B

	case gpucore.RegStreamAddress, gpucore.RegStreamStride, gpucore.RegStreamData,
		gpucore.RegStreamElements, gpucore.RegStreamFrequency, gpucore.RegD3D9ColorStream:
		return o.applyStreamRegister(w)

	case gpucore.RegDisplayXRes:
		o.cfg.DisplayWidth = int32(v.U)
	case gpucore.RegDisplayYRes:
		o.cfg.DisplayHeight = int32(v.U)

	case gpucore.RegColorBufferFormat:
		if _, err := gpucore.DecodeClearColor(0, v.TF); err != nil {
			return err
		}
		o.regs.colorFormat = v.TF
	case gpucore.RegZStencilBufferFormat:
		bits, err := gpucore.DepthBitsForFormat(v.TF)
		if err != nil {
			return err
		}
		o.regs.zstencilFormat = v.TF
		o.regs.depthBits = bits

	case gpucore.RegStencilTest, gpucore.RegStencilFrontFunction, gpucore.RegStencilFrontReference,
		gpucore.RegStencilFrontCompareMask, gpucore.RegStencilFrontFailUpdate,
		gpucore.RegStencilFrontDepthFailUpdate, gpucore.RegStencilFrontDepthPassUpdate,
		gpucore.RegStencilBackFunction, gpucore.RegStencilBackReference,
		gpucore.RegStencilBackCompareMask, gpucore.RegStencilBackFailUpdate,
		gpucore.RegStencilBackDepthFailUpdate, gpucore.RegStencilBackDepthPassUpdate,
		gpucore.RegStencilUpdateMask:
		// Stencil execution is outside the rasterizer core (spec Sec 1);
		// the writes are accepted and ignored so command streams that
		// configure stencil state still replay cleanly.
		return nil

	default:
		return fmt.Errorf("%w: unknown register id %d", gpucore.ErrBinding, w.Reg)
	}

	o.setupStage.SetConfig(o.setupConfig())
	o.hzStage.SetConfig(o.hzStageConfig())
	o.interpStage.SetConfig(o.interpConfig())
	return nil
}

func (o *Orchestrator) applyStreamRegister(w gpucore.RegisterWrite) error {
	if w.Subreg < 0 || w.Subreg >= len(o.regs.streams) {
		return fmt.Errorf("%w: stream index %d out of range", gpucore.ErrBinding, w.Subreg)
	}
	sr := &o.regs.streams[w.Subreg]
	switch w.Reg {
	case gpucore.RegStreamAddress:
		sr.Address = w.Value.Addr
		sr.Data = nil // resolved through the bound-memory table at draw time
	case gpucore.RegStreamStride:
		sr.Stride = int(w.Value.U)
	case gpucore.RegStreamData:
		sr.DataType = w.Value.SD
	case gpucore.RegStreamElements:
		sr.Components = int(w.Value.U)
	case gpucore.RegStreamFrequency:
		sr.PerInstance = w.Value.U > 0
	case gpucore.RegD3D9ColorStream:
		sr.D3D9BGRASwap = w.Value.B
	}
	return nil
}

func (o *Orchestrator) applyAttributeRegister(w gpucore.RegisterWrite) error {
	if w.Subreg < 0 || w.Subreg >= gpucore.MaxVertexAttributes {
		return fmt.Errorf("%w: attribute subreg %d out of range", gpucore.ErrBinding, w.Subreg)
	}
	v := w.Value
	switch w.Reg {
	case gpucore.RegInterpolation:
		// INTERPOLATION[a] selects linear (true) vs flat; perspective
		// correction is implied for linear attributes with w-varying
		// positions, matching the per-attribute mode triple.
		if v.B {
			o.regs.attrModes[w.Subreg] = interp.AttrPerspective
		} else {
			o.regs.attrModes[w.Subreg] = interp.AttrFlat
		}
	case gpucore.RegVertexOutputAttr:
		o.regs.vertexOutputAttr[w.Subreg] = v.B
	case gpucore.RegFragmentInputAttr:
		o.regs.fragmentInputAttr[w.Subreg] = v.B
	case gpucore.RegVertexAttributeMap:
		o.regs.attrMap[w.Subreg] = int(v.I)
	case gpucore.RegVertexAttributeDflt:
		o.regs.attrDefault[w.Subreg] = v.Vec4
	}
	return nil
}

func (o *Orchestrator) reset() {
	o.commands = nil
	o.warnings = nil
	o.curResult = nil
	o.curTraversal = nil
	o.curStreamer = nil
	o.drawDone = false
	o.pendingBatch = nil
	o.batchHanded = false
	o.clearQuad = false
	o.hzValid = true
	o.regs = defaultRegisterState()
	o.adoptConsumerFormat()
	o.buildStages()
}

// BindStream directly installs one vertex/instance attribute stream,
// the host-side analogue of a sequence of RegisterWrites against the
// RegStream* group, for callers that would rather configure streams
// programmatically than build a REG_WRITE command sequence.
func (o *Orchestrator) BindStream(index int, attrSlot int, data []byte, stride, offset int, dt gpucore.StreamDataType, components int, d3d9Swap, perInstance bool) error {
	if index < 0 || index >= len(o.regs.streams) {
		return fmt.Errorf("%w: stream index %d out of range", gpucore.ErrBinding, index)
	}
	o.regs.streams[index] = streamRegister{
		Data: data, Stride: stride, Offset: offset,
		DataType: dt, Components: components, AttrSlot: attrSlot,
		D3D9BGRASwap: d3d9Swap, PerInstance: perInstance,
	}
	return nil
}
