// Copyright 2026 The rastersim Authors
// SPDX-License-Identifier: MIT

// Package hzstage implements the HZStage early-Z aggregation state
// machine (spec Sec 4.6): a FIFO of stamp queue entries that cycle
// through free -> reading -> testing -> sending -> free while
// negotiating the shared HZ cache and buffer.
package hzstage

import (
	"log/slog"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/hz"
)

// EntryState is a stamp queue entry's lifecycle state (spec Sec 3).
type EntryState uint8

const (
	EntryFree EntryState = iota
	EntryReading
	EntryTesting
	EntrySending
)

// PipelineState is the stage's own RESET/READY/DRAWING/END/CLEAR cycle
// (spec Sec 4.6).
type PipelineState uint8

const (
	StateReset PipelineState = iota
	StateReady
	StateDrawing
	StateEnd
	StateClear
	StateClearEnd
)

// BlockMapper computes the HZ block address covering a pixel, using a
// flat row-major index over blockW x blockH pixel (or MSAA sample)
// groups — the "stamps per block" granularity of spec Sec 3's HZ block.
type BlockMapper struct {
	BlockW, BlockH int32
	BlocksPerRow   int32
}

// Address returns the block address covering pixel (x, y).
func (m BlockMapper) Address(x, y int32) int64 {
	bx := x / m.BlockW
	by := y / m.BlockH
	return int64(by)*int64(m.BlocksPerRow) + int64(bx)
}

// Config configures the HZStage.
type Config struct {
	QueueSize   int
	StampsCycle int // stamps received from traversal per cycle

	DepthTest bool
	DepthFunc gpucore.CompareFunc
	DepthMask bool

	Viewport BBox
	Scissor  *BBox // nil disables the scissor test

	HierarchicalZ bool
	Block         BlockMapper

	// ClearBlocksCycle and the fragment/stamp geometry below model the
	// fast Z-clear throughput formula in spec Sec 4.6.
	StampFragments   int // 4
	ClearBlocksCycle int
}

// BBox is a pixel-space rectangle, structurally identical to
// internal/setup.BBox; a separate exported type here avoids an import
// cycle with internal/setup while staying constructible by any caller.
type BBox struct {
	XMin, YMin, XMax, YMax int32
}

type entry struct {
	state EntryState

	stamp *gpucore.Stamp

	blocks    []int64
	slots     []hz.Slot
	resolved  []bool
	nextBlock int

	blockZ float64
	stampZ float64
	culled bool
}

// ZStencilWrite is one deferred write the downstream Z-Stencil unit has
// queued against the HZ buffer.
type ZStencilWrite struct {
	Addr int64
	Z    float64
}

// Stage is the HZStage state machine.
type Stage struct {
	cfg    Config
	cache  *hz.Cache
	buffer *hz.Buffer
	log    *slog.Logger

	state PipelineState

	entries  []entry
	freeIdx  []int
	readIdx  []int
	testIdx  []int
	sendFIFO []int

	pendingWrites []ZStencilWrite
	dataBusUsed   bool

	clearCyclesRemaining int

	OutViewport int64
	CullHZ      int64
	Sent        int64
}

// NewStage creates an HZStage bound to a shared cache and buffer.
func NewStage(cfg Config, cache *hz.Cache, buffer *hz.Buffer, log *slog.Logger) *Stage {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	s := &Stage{
		cfg:     cfg,
		cache:   cache,
		buffer:  buffer,
		log:     log,
		state:   StateReady,
		entries: make([]entry, cfg.QueueSize),
	}
	for i := range s.entries {
		s.freeIdx = append(s.freeIdx, cfg.QueueSize-1-i)
	}
	return s
}

// SetConfig replaces the stage's configuration (REG_WRITE fan-in).
func (s *Stage) SetConfig(cfg Config) { s.cfg = cfg }

// FreeCount, ReadCount, TestCount, SendCount expose the queue occupancy
// invariant free+read+test+send == queueSize (spec Sec 8).
func (s *Stage) FreeCount() int { return len(s.freeIdx) }
func (s *Stage) ReadCount() int { return len(s.readIdx) }
func (s *Stage) TestCount() int { return len(s.testIdx) }
func (s *Stage) SendCount() int { return len(s.sendFIFO) }

// Ready reports backpressure to the traversal stage: READY iff free
// entries exceed 2*stampsCycle (spec Sec 4.6).
func (s *Stage) Ready() bool {
	return len(s.freeIdx) > 2*s.cfg.StampsCycle
}

// QueueZStencilWrite enqueues a depth-buffer update from the downstream
// Z-Stencil unit for application on a later Advance call.
func (s *Stage) QueueZStencilWrite(w ZStencilWrite) {
	s.pendingWrites = append(s.pendingWrites, w)
}

// Enqueue admits up to cfg.StampsCycle stamps from the traversal stage,
// applying scissor/viewport and triangle-inside fragment tests and
// computing each stamp's covered HZ blocks and minimum depth. Stamps
// that fail entirely (every fragment scissored/outside or not inside)
// are counted in OutViewport and never occupy a queue entry.
func (s *Stage) Enqueue(stamps []*gpucore.Stamp) (accepted int) {
	for _, st := range stamps {
		if accepted >= s.cfg.StampsCycle {
			break
		}
		if len(s.freeIdx) == 0 {
			break
		}
		if !s.admitStamp(st) {
			s.OutViewport++
			continue
		}
		idx := s.freeIdx[len(s.freeIdx)-1]
		s.freeIdx = s.freeIdx[:len(s.freeIdx)-1]

		e := &s.entries[idx]
		*e = entry{state: EntryReading, stamp: st}
		e.blocks, e.stampZ = s.stampCoverage(st)
		e.resolved = make([]bool, len(e.blocks))
		e.slots = make([]hz.Slot, len(e.blocks))

		if !s.cfg.HierarchicalZ || len(e.blocks) == 0 {
			e.state = EntryTesting
			for i := range e.resolved {
				e.resolved[i] = true
			}
		}

		s.readIdx = append(s.readIdx, idx)
		accepted++
	}
	return accepted
}

// admitStamp applies the scissor/viewport and triangle-inside per-
// fragment tests, dropping fragments that fail; returns false if every
// fragment in the stamp fails (the whole stamp is dropped).
func (s *Stage) admitStamp(st *gpucore.Stamp) bool {
	any := false
	for i := range st.Fragments {
		f := &st.Fragments[i]
		if st.Culled[i] || !f.Inside {
			st.Culled[i] = true
			continue
		}
		if !s.inViewportAndScissor(f.X, f.Y) {
			st.Culled[i] = true
			continue
		}
		any = true
	}
	return any
}

func (s *Stage) inViewportAndScissor(x, y int32) bool {
	vp := s.cfg.Viewport
	if x < vp.XMin || x >= vp.XMax || y < vp.YMin || y >= vp.YMax {
		return false
	}
	if s.cfg.Scissor != nil {
		sc := *s.cfg.Scissor
		if x < sc.XMin || x >= sc.XMax || y < sc.YMin || y >= sc.YMax {
			return false
		}
	}
	return true
}

// stampCoverage computes the distinct HZ block addresses a stamp's
// surviving fragments cover, and the stamp's minimum depth (MSAA-aware:
// the minimum across covered samples only, per spec Sec 4.5/4.6).
func (s *Stage) stampCoverage(st *gpucore.Stamp) ([]int64, float64) {
	var blocks []int64
	minZ := 0.0
	first := true

	addBlock := func(addr int64) {
		for _, b := range blocks {
			if b == addr {
				return
			}
		}
		if len(blocks) < gpucore.MaxStampBlocks {
			blocks = append(blocks, addr)
		}
	}

	for i := range st.Fragments {
		if st.Culled[i] {
			continue
		}
		f := &st.Fragments[i]
		addBlock(s.cfg.Block.Address(f.X, f.Y))
		z := f.Z
		if first || z < minZ {
			minZ = z
			first = false
		}
	}
	return blocks, minZ
}

// Advance runs one cycle of the HZStage per spec Sec 4.6's six steps.
// It returns the stamps dequeued to the downstream interpolator this
// cycle (culled stamps are not included but still consumed a slot).
func (s *Stage) Advance(cycle int64) []*gpucore.Stamp {
	switch s.state {
	case StateClear:
		s.clearCyclesRemaining--
		if s.clearCyclesRemaining <= 0 {
			s.state = StateClearEnd
		}
		return nil
	case StateClearEnd:
		s.state = StateReady
		return nil
	}

	s.dataBusUsed = false

	// Step 1+2: drain Z-Stencil writes, one bus access per cycle,
	// writes win ties against a same-cycle read.
	if len(s.pendingWrites) > 0 && !s.dataBusUsed {
		w := s.pendingWrites[0]
		s.pendingWrites = s.pendingWrites[1:]
		s.buffer.Write(w.Addr, w.Z)
		s.cache.UpdateIfPresent(w.Addr, w.Z)
		s.dataBusUsed = true
	}

	// Step 4: service reading entries.
	var stillReading []int
	for _, idx := range s.readIdx {
		e := &s.entries[idx]
		s.advanceReading(e)
		if e.state == EntryReading {
			stillReading = append(stillReading, idx)
		} else {
			s.testIdx = append(s.testIdx, idx)
		}
	}
	s.readIdx = stillReading

	// Step 5: service testing entries whose blocks are all resolved.
	var stillTesting []int
	for _, idx := range s.testIdx {
		e := &s.entries[idx]
		if s.allResolved(e) {
			s.finishTesting(e)
			s.sendFIFO = append(s.sendFIFO, idx)
		} else {
			stillTesting = append(stillTesting, idx)
		}
	}
	s.testIdx = stillTesting

	// Step 6: dequeue FIFO order to downstream. Every entry that
	// finished testing this cycle is handed off (or dropped, if
	// culled) in the order it entered the queue.
	var out []*gpucore.Stamp
	for _, idx := range s.sendFIFO {
		e := &s.entries[idx]
		if !e.culled {
			out = append(out, e.stamp)
			s.Sent++
		} else {
			s.CullHZ += countLive(e.stamp)
		}
		s.freeEntry(idx)
	}
	s.sendFIFO = s.sendFIFO[:0]

	return out
}

func (s *Stage) advanceReading(e *entry) {
	for e.nextBlock < len(e.blocks) {
		addr := e.blocks[e.nextBlock]
		if e.resolved[e.nextBlock] {
			e.nextBlock++
			continue
		}
		if slot, hit := s.cache.Search(addr); hit {
			e.slots[e.nextBlock] = slot
			if s.cache.ReadComplete(slot) {
				e.resolved[e.nextBlock] = true
				e.nextBlock++
				continue
			}
			return // waiting on an in-flight read for this block
		}
		if s.dataBusUsed {
			return // bus taken this cycle by a write; retry next cycle
		}
		slot, busy := s.cache.Insert(addr)
		if busy {
			return
		}
		s.dataBusUsed = true
		e.slots[e.nextBlock] = slot
		// The block read is modelled as returning at once: the line is
		// marked read-complete and filled from the HZ buffer in the same
		// cycle as the Insert.
		s.cache.CompleteRead(slot)
		s.cache.SetValue(slot, s.buffer.Read(addr))
		e.resolved[e.nextBlock] = true
		e.nextBlock++
	}
	e.state = EntryTesting
}

func (s *Stage) allResolved(e *entry) bool {
	for _, r := range e.resolved {
		if !r {
			return false
		}
	}
	return true
}

func (s *Stage) finishTesting(e *entry) {
	blockZ := 0.0
	first := true
	for i, addr := range e.blocks {
		_ = addr
		v := s.cache.Value(e.slots[i])
		if first || v > blockZ {
			blockZ = v
			first = false
		}
	}
	e.blockZ = blockZ

	culled := false
	if s.cfg.DepthTest && s.cfg.HierarchicalZ && len(e.blocks) > 0 && s.cfg.DepthFunc.HZAccelerated() {
		culled = s.cfg.DepthFunc.HZCullsStamp(e.stampZ, blockZ)
	}
	e.culled = culled
	e.state = EntrySending

	for _, slot := range e.slots {
		s.cache.Consume(slot)
	}
}

func (s *Stage) freeEntry(idx int) {
	s.entries[idx] = entry{}
	s.freeIdx = append(s.freeIdx, idx)
}

func countLive(st *gpucore.Stamp) int64 {
	var n int64
	for i := range st.Fragments {
		if !st.Culled[i] {
			n++
		}
	}
	return n
}

// BeginClearZ starts a fast Z-clear, computing clearCycles per spec Sec
// 4.6's throughput formula.
func (s *Stage) BeginClearZ(pixels int) {
	denom := s.cfg.StampFragments * s.cfg.Block.StampsPerBlock() * s.cfg.ClearBlocksCycle
	if denom <= 0 {
		denom = 1
	}
	cycles := (pixels + denom - 1) / denom
	if cycles < 1 {
		cycles = 1
	}
	s.clearCyclesRemaining = cycles
	s.state = StateClear
}

// StampsPerBlock returns the block width in pixels (BlockW, or 1 when
// unset), which BeginClearZ uses as the "stamps per block" factor named
// in spec Sec 3; for the default 4x4 block that is 4, the number of 2x2
// stamps one block holds.
func (m BlockMapper) StampsPerBlock() int {
	if m.BlockW <= 0 {
		return 1
	}
	return int(m.BlockW)
}

// FinishClearZ applies the clear value to every block and invalidates
// the cache, called once clearCyclesRemaining reaches zero.
func (s *Stage) FinishClearZ(clearValue float64) {
	s.buffer.Clear(clearValue)
	s.cache.Invalidate()
}

// State returns the stage's current pipeline state.
func (s *Stage) State() PipelineState { return s.state }

// Reset reinitializes every queue entry and counter.
func (s *Stage) Reset() {
	for i := range s.entries {
		s.entries[i] = entry{}
	}
	s.freeIdx = s.freeIdx[:0]
	for i := 0; i < len(s.entries); i++ {
		s.freeIdx = append(s.freeIdx, len(s.entries)-1-i)
	}
	s.readIdx, s.testIdx, s.sendFIFO = nil, nil, nil
	s.pendingWrites = nil
	s.OutViewport, s.CullHZ, s.Sent = 0, 0, 0
	s.state = StateReady
}
