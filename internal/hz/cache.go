// Copyright 2026 The rastersim Authors
// SPDX-License-Identifier: MIT

package hz

import "log/slog"

// LineWords is the number of block Z values held per cache line — the
// "stamps per block" granularity is folded into a single float64 per
// line here; a line caches exactly one HZ block's current maximum.
const LineWords = 1

// line is one fully-associative cache line: a block-address-aligned
// key, its cached value, validity/read-complete bits, and the reserve
// refcount that protects it from eviction (spec Sec 4.3, Sec 9 "Reserve
// counter").
type line struct {
	key      int64
	value    float64
	valid    bool
	read     bool
	reserves int

	// lruPrev/lruNext thread this line through the eviction order,
	// adapted from a doubly-linked LRU list (most-recently-searched at
	// the front) the way the teacher's internal/cache package threads
	// its eviction list — except eviction here additionally skips any
	// line with reserves > 0, which a plain LRU cache never needs to do.
	lruPrev, lruNext int
}

const noLine = -1

// Slot is an opaque handle to a cache line, returned by Search/Insert.
type Slot int

// Cache is the small fully-associative HZ cache described in spec Sec
// 4.3.
type Cache struct {
	log   *slog.Logger
	lines []line

	lruHead, lruTail int // most-recently-used .. least-recently-used
}

// NewCache creates a cache with the given number of fully-associative
// lines.
func NewCache(lineCount int, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Cache{
		log:     log,
		lines:   make([]line, lineCount),
		lruHead: noLine,
		lruTail: noLine,
	}
	for i := range c.lines {
		c.lines[i].lruPrev = noLine
		c.lines[i].lruNext = noLine
	}
	for i := 0; i < lineCount; i++ {
		c.pushFront(i)
	}
	return c
}

// LineCount returns the number of fully-associative lines.
func (c *Cache) LineCount() int { return len(c.lines) }

// Search looks up block_key. On hit it increments the line's reserve
// count and returns its slot.
func (c *Cache) Search(blockKey int64) (slot Slot, hit bool) {
	for i := range c.lines {
		l := &c.lines[i]
		if l.valid && l.key == blockKey {
			l.reserves++
			c.moveToFront(i)
			return Slot(i), true
		}
	}
	return 0, false
}

// Insert allocates a line for blockKey, preferring an invalid line, else
// the least-recently-used unreserved valid line. Returns busy=true (the
// consumer must retry next cycle) when every line is reserved.
func (c *Cache) Insert(blockKey int64) (slot Slot, busy bool) {
	for i := range c.lines {
		if !c.lines[i].valid {
			c.initLine(i, blockKey)
			return Slot(i), false
		}
	}

	// No invalid line: walk from the LRU tail looking for an unreserved
	// line to evict.
	for i := c.lruTail; i != noLine; i = c.lines[i].lruPrev {
		if c.lines[i].reserves == 0 {
			c.initLine(i, blockKey)
			return Slot(i), false
		}
	}

	c.log.Debug("hz: cache fully reserved", "lines", len(c.lines))
	return 0, true
}

func (c *Cache) initLine(i int, blockKey int64) {
	c.lines[i] = line{
		key:      blockKey,
		valid:    true,
		read:     false,
		reserves: 1,
		lruPrev:  c.lines[i].lruPrev,
		lruNext:  c.lines[i].lruNext,
	}
	c.moveToFront(i)
}

// CompleteRead marks a slot's data as returned from the underlying
// Buffer, invoked by the memory stage on data-return.
func (c *Cache) CompleteRead(slot Slot) {
	c.lines[slot].read = true
}

// SetValue stores the value returned for a slot's block, typically
// called alongside CompleteRead.
func (c *Cache) SetValue(slot Slot, value float64) {
	c.lines[slot].value = value
}

// Value returns a slot's cached block value.
func (c *Cache) Value(slot Slot) float64 { return c.lines[slot].value }

// ReadComplete reports whether a slot's underlying read has returned.
func (c *Cache) ReadComplete(slot Slot) bool { return c.lines[slot].read }

// Consume decrements a slot's reserve count once the waiting stamp has
// used its data.
func (c *Cache) Consume(slot Slot) {
	if c.lines[slot].reserves > 0 {
		c.lines[slot].reserves--
	}
}

// Reserves returns a slot's current reserve count, for invariant
// checking.
func (c *Cache) Reserves(slot Slot) int { return c.lines[slot].reserves }

// UpdateIfPresent refreshes the cached value for blockKey after a
// buffer write, keeping any resident line coherent with the buffer. A
// miss is fine — the next Insert rereads the updated buffer.
func (c *Cache) UpdateIfPresent(blockKey int64, value float64) {
	for i := range c.lines {
		if c.lines[i].valid && c.lines[i].key == blockKey {
			c.lines[i].value = value
			return
		}
	}
}

// Invalidate marks every line invalid with zero reserves, as happens
// after a fast Z-clear completes.
func (c *Cache) Invalidate() {
	for i := range c.lines {
		c.lines[i].valid = false
		c.lines[i].read = false
		c.lines[i].reserves = 0
	}
}

// --- LRU threading (adapted from a doubly linked list; see type line) ---

func (c *Cache) pushFront(i int) {
	c.lines[i].lruPrev = noLine
	c.lines[i].lruNext = c.lruHead
	if c.lruHead != noLine {
		c.lines[c.lruHead].lruPrev = i
	}
	c.lruHead = i
	if c.lruTail == noLine {
		c.lruTail = i
	}
}

func (c *Cache) unlink(i int) {
	l := &c.lines[i]
	if l.lruPrev != noLine {
		c.lines[l.lruPrev].lruNext = l.lruNext
	} else {
		c.lruHead = l.lruNext
	}
	if l.lruNext != noLine {
		c.lines[l.lruNext].lruPrev = l.lruPrev
	} else {
		c.lruTail = l.lruPrev
	}
	l.lruPrev, l.lruNext = noLine, noLine
}

func (c *Cache) moveToFront(i int) {
	if c.lruHead == i {
		return
	}
	c.unlink(i)
	c.pushFront(i)
}
