// Copyright 2026 The rastersim Authors
// SPDX-License-Identifier: MIT

// Package setup implements TriangleSetup and the SetupTrianglePool (spec
// Sec 4.2): a fixed-capacity arena of setup triangles, each with a
// stable integer id. Stamps and fragments carry that id; the traversal
// strategies hold *Triangle pointers for the triangles they traverse.
package setup

import (
	"log/slog"

	"github.com/computegpu/rastersim/gpucore"
)

// State is a setup triangle's lifecycle state (spec Sec 3).
type State uint8

const (
	StateFree State = iota
	StateAllocated
	StateSetupComplete
	StateRasterizing
	StateDone
)

// Edge holds one edge-equation plane (A, B, C); evaluated value at
// (x, y) is A*x + B*y + C.
type Edge struct {
	A, B, C float64
}

// Eval evaluates the edge at a pixel/subpixel coordinate pair.
func (e Edge) Eval(x, y float64) float64 { return e.A*x + e.B*y + e.C }

// BBox is an inclusive-exclusive integer bounding box, already clipped
// to viewport intersect scissor.
type BBox struct {
	XMin, YMin, XMax, YMax int32
}

// Empty reports whether the box covers no pixels.
func (b BBox) Empty() bool { return b.XMax <= b.XMin || b.YMax <= b.YMin }

// Triangle is one setup triangle: precomputed edge and Z-plane
// equations, facing, and bounding box, plus the transient traversal
// state both traversal strategies attach to it.
type Triangle struct {
	id    int
	state State

	V1, V2, V3 [gpucore.MaxVertexAttributes]gpucore.Attr

	Edges [3]Edge
	Z     Edge // Z-plane coefficients (Az, Bz, Cz)

	// Area is the signed setup determinant; sign gives facing under the
	// configured FaceMode before any culling-driven negation.
	Area float64
	// FrontFacing is true once negation/culling decisions are resolved.
	FrontFacing bool

	BBox BBox

	// Traversal holds per-triangle transient state: saved tile
	// positions for the scanline fallback, or the current subtile-level
	// pointer for the recursive traversal. Opaque to this package;
	// traversal implementations type-assert it to their own shape.
	Traversal any
}

// ID returns the triangle's stable pool index.
func (t *Triangle) ID() int { return t.id }

// State returns the triangle's current lifecycle state.
func (t *Triangle) State() State { return t.state }

// Pool is a fixed-capacity arena of Triangle values with a free list.
// Every live triangle has a unique id in [0, capacity); the invariant
// free+live == capacity is checked by TestPoolInvariant.
type Pool struct {
	log     *slog.Logger
	slots   []Triangle
	free    []int // free list, LIFO
	liveCnt int
}

// NewPool creates a pool with the given fixed capacity.
func NewPool(capacity int, log *slog.Logger) *Pool {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Pool{
		log:   log,
		slots: make([]Triangle, capacity),
		free:  make([]int, capacity),
	}
	for i := range p.slots {
		p.slots[i].id = i
		p.free[capacity-1-i] = i
	}
	return p
}

// Capacity returns the pool's fixed capacity.
func (p *Pool) Capacity() int { return len(p.slots) }

// FreeCount returns the number of unallocated slots.
func (p *Pool) FreeCount() int { return len(p.free) }

// LiveCount returns the number of allocated-or-later slots.
func (p *Pool) LiveCount() int { return p.liveCnt }

// Allocate reserves a slot and returns it in StateAllocated, or reports
// ok=false if the pool is full (resource exhaustion, spec Sec 7 kind 3 —
// the caller must apply backpressure rather than treat this as an
// error).
func (p *Pool) Allocate() (*Triangle, bool) {
	if len(p.free) == 0 {
		p.log.Debug("setup: triangle pool exhausted", "capacity", len(p.slots))
		return nil, false
	}
	idx := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	t := &p.slots[idx]
	t.state = StateAllocated
	t.Traversal = nil
	p.liveCnt++
	return t, true
}

// MarkSetupComplete transitions an allocated triangle once its plane
// equations and bbox are valid.
func (p *Pool) MarkSetupComplete(t *Triangle) { t.state = StateSetupComplete }

// MarkRasterizing transitions a triangle into active traversal.
func (p *Pool) MarkRasterizing(t *Triangle) { t.state = StateRasterizing }

// MarkDone transitions a triangle once traversal has emitted its last
// stamp.
func (p *Pool) MarkDone(t *Triangle) { t.state = StateDone }

// Free returns a done triangle's slot to the free list.
func (p *Pool) Free(t *Triangle) {
	if t.state == StateFree {
		return
	}
	t.state = StateFree
	t.Traversal = nil
	p.liveCnt--
	p.free = append(p.free, t.id)
}

// Get returns the triangle at the given stable id, as carried by a
// stamp's TriangleID.
func (p *Pool) Get(id int) *Triangle { return &p.slots[id] }

// Reset returns every slot to the free list, as on a RESET command.
func (p *Pool) Reset() {
	p.free = p.free[:0]
	for i := range p.slots {
		p.slots[i] = Triangle{id: i}
		p.free = append(p.free, len(p.slots)-1-i)
	}
	p.liveCnt = 0
}
