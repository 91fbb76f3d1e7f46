package streamer

import "github.com/computegpu/rastersim/gpucore"

// Triangle3 is one assembled triangle's three vertices, in winding
// order.
type Triangle3 struct {
	V1, V2, V3 gpucore.Vertex
}

// Commit assembles committed (in fetch order) vertices into triangles
// per the draw's primitive topology (spec Sec 4.7 "in-order commit").
// Each instance restarts assembly: a strip or fan never spans an
// instance boundary.
type Commit struct {
	primitive gpucore.Primitive

	listWindow [3]gpucore.Vertex
	window     [2]gpucore.Vertex
	windowed   int

	fanRoot     gpucore.Vertex
	haveFanRoot bool

	triCount int
	instance int32
	started  bool

	pending []Triangle3
}

// NewCommit creates a Commit stage for the given primitive topology.
func NewCommit(primitive gpucore.Primitive) *Commit {
	return &Commit{primitive: primitive}
}

// Submit feeds one committed vertex, in fetch order, optionally
// producing a new pending triangle. instance restarts strip/fan state
// whenever it changes from the previous call.
func (c *Commit) Submit(v gpucore.Vertex, instance int32) {
	if !c.started || instance != c.instance {
		c.windowed = 0
		c.haveFanRoot = false
		c.triCount = 0
		c.instance = instance
		c.started = true
	}

	switch c.primitive {
	case gpucore.PrimitiveTriangles:
		c.submitTriangleList(v)
	case gpucore.PrimitiveTriangleStrip:
		c.submitStrip(v)
	case gpucore.PrimitiveTriangleFan:
		c.submitFan(v)
	}
}

func (c *Commit) submitTriangleList(v gpucore.Vertex) {
	c.listWindow[c.triCount%3] = v
	c.triCount++
	if c.triCount%3 == 0 {
		c.pending = append(c.pending, Triangle3{
			V1: c.listWindow[0], V2: c.listWindow[1], V3: c.listWindow[2],
		})
	}
}

func (c *Commit) submitStrip(v gpucore.Vertex) {
	if c.windowed < 2 {
		c.window[c.windowed] = v
		c.windowed++
		return
	}
	tri := Triangle3{V1: c.window[0], V2: c.window[1], V3: v}
	if c.triCount%2 == 1 {
		// Alternate winding so every strip triangle keeps the draw's
		// original facing direction.
		tri.V1, tri.V2 = tri.V2, tri.V1
	}
	c.pending = append(c.pending, tri)
	c.triCount++
	c.window[0] = c.window[1]
	c.window[1] = v
}

func (c *Commit) submitFan(v gpucore.Vertex) {
	if !c.haveFanRoot {
		c.fanRoot = v
		c.haveFanRoot = true
		return
	}
	if c.windowed < 1 {
		c.window[0] = v
		c.windowed = 1
		return
	}
	c.pending = append(c.pending, Triangle3{V1: c.fanRoot, V2: c.window[0], V3: v})
	c.triCount++
	c.window[0] = v
}

// Pending drains and returns the triangles assembled since the last
// call.
func (c *Commit) Pending() []Triangle3 {
	out := c.pending
	c.pending = nil
	return out
}

// Reset clears all assembly state.
func (c *Commit) Reset() {
	*c = Commit{primitive: c.primitive}
}
