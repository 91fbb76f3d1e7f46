package streamer

import "github.com/computegpu/rastersim/gpucore"

// outLine is one OutputCache line: a decoded vertex keyed by its
// (vertex index, instance) pair, threaded through an LRU eviction list
// — the same doubly-linked-list shape internal/hz.Cache adapts from the
// teacher's internal/cache package, reused here for the working-set
// de-dup spec Sec 4.7 names.
type outLine struct {
	key              int64
	valid            bool
	vertex           gpucore.Vertex
	lruPrev, lruNext int
}

const noOutLine = -1

// OutputCache de-dups repeated (vertex, instance) fetches within a
// working set so the Loader only decodes each distinct vertex once per
// set — triangle strips and fans reference the same vertex from
// multiple triangles in a row.
type OutputCache struct {
	lines            []outLine
	lruHead, lruTail int

	Hits, Misses int64
}

// Key packs a vertex index and instance id into an OutputCache key.
func Key(vertex, instance int32) int64 {
	return int64(instance)<<32 | int64(uint32(vertex))
}

// NewOutputCache creates a cache with the given number of lines.
func NewOutputCache(lineCount int) *OutputCache {
	c := &OutputCache{
		lines:   make([]outLine, lineCount),
		lruHead: noOutLine,
		lruTail: noOutLine,
	}
	for i := range c.lines {
		c.lines[i].lruPrev = noOutLine
		c.lines[i].lruNext = noOutLine
	}
	for i := 0; i < lineCount; i++ {
		c.pushFront(i)
	}
	return c
}

// Lookup returns a cached vertex for key, counting a hit or a miss.
func (c *OutputCache) Lookup(key int64) (gpucore.Vertex, bool) {
	for i := range c.lines {
		if c.lines[i].valid && c.lines[i].key == key {
			c.Hits++
			c.moveToFront(i)
			return c.lines[i].vertex, true
		}
	}
	c.Misses++
	return gpucore.Vertex{}, false
}

// Insert stores a freshly decoded vertex under key, evicting the least-
// recently-used line (or filling the first invalid one).
func (c *OutputCache) Insert(key int64, v gpucore.Vertex) {
	for i := range c.lines {
		if !c.lines[i].valid {
			c.lines[i].key, c.lines[i].valid, c.lines[i].vertex = key, true, v
			c.moveToFront(i)
			return
		}
	}
	victim := c.lruTail
	c.lines[victim].key, c.lines[victim].vertex = key, v
	c.moveToFront(victim)
}

// Reset invalidates every line and zeroes the hit/miss counters.
func (c *OutputCache) Reset() {
	for i := range c.lines {
		c.lines[i].valid = false
	}
	c.Hits, c.Misses = 0, 0
}

func (c *OutputCache) pushFront(i int) {
	c.lines[i].lruPrev = noOutLine
	c.lines[i].lruNext = c.lruHead
	if c.lruHead != noOutLine {
		c.lines[c.lruHead].lruPrev = i
	}
	c.lruHead = i
	if c.lruTail == noOutLine {
		c.lruTail = i
	}
}

func (c *OutputCache) unlink(i int) {
	l := &c.lines[i]
	if l.lruPrev != noOutLine {
		c.lines[l.lruPrev].lruNext = l.lruNext
	} else {
		c.lruHead = l.lruNext
	}
	if l.lruNext != noOutLine {
		c.lines[l.lruNext].lruPrev = l.lruPrev
	} else {
		c.lruTail = l.lruPrev
	}
	l.lruPrev, l.lruNext = noOutLine, noOutLine
}

func (c *OutputCache) moveToFront(i int) {
	if c.lruHead == i {
		return
	}
	c.unlink(i)
	c.pushFront(i)
}
