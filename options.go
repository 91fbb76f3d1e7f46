package rastersim

import (
	"log/slog"

	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/orchestrator"
	"github.com/computegpu/rastersim/pixelmap"
)

// Option configures a Simulator during construction.
//
// Example:
//
//	// Recursive-descent traversal instead of the scanline default
//	sim, err := rastersim.New(256, 256, rastersim.WithTraversalStrategy(rastersim.TraversalRecursive))
type Option func(*simOptions)

// TraversalStrategy selects which TriangleTraversal implementation
// drives every draw (spec Sec 4.4).
type TraversalStrategy = orchestrator.TraversalStrategy

const (
	TraversalScanline  = orchestrator.TraversalScanline
	TraversalRecursive = orchestrator.TraversalRecursive
)

// simOptions holds optional configuration for Simulator creation; the
// zero value of every field below is filled in by defaultOptions.
type simOptions struct {
	strategy TraversalStrategy

	trianglePoolCapacity int

	hzCacheLines  int
	hzQueueSize   int
	hzStampsCycle int
	hzBlockW      int32
	hzBlockH      int32
	hzClearValue  float64

	pixelConfig pixelmap.Config

	recursiveTileTesters int

	loaderUnits      int
	outputCacheLines int
	transactionBytes int

	microBypass bool

	consumer gpucore.DownstreamConsumer
	logger   *slog.Logger
}

func defaultOptions(displayW, displayH int) simOptions {
	return simOptions{
		strategy:             TraversalScanline,
		trianglePoolCapacity: 32,
		hzCacheLines:         16,
		hzQueueSize:          16,
		hzStampsCycle:        1,
		hzBlockW:             4,
		hzBlockH:             4,
		hzClearValue:         1.0,
		pixelConfig:          pixelmap.DefaultConfig(displayW, displayH),
		recursiveTileTesters: 4,
		loaderUnits:          1,
		outputCacheLines:     16,
		transactionBytes:     32,
	}
}

// WithTraversalStrategy selects the scanline or recursive-descent
// traversal (spec Sec 4.4). Scanline is the default.
func WithTraversalStrategy(s TraversalStrategy) Option {
	return func(o *simOptions) { o.strategy = s }
}

// WithTrianglePoolCapacity bounds the SetupTrianglePool's fixed
// capacity (spec Sec 3 "SetupTriangle", Sec 7 kind 3 resource
// exhaustion). Default 32.
func WithTrianglePoolCapacity(n int) Option {
	return func(o *simOptions) { o.trianglePoolCapacity = n }
}

// WithHZCache configures the HZ cache's line count, the HZStage stamp
// queue's size, and how many stamps the stage admits per cycle (spec
// Sec 4.3, Sec 4.6).
func WithHZCache(lines, queueSize, stampsPerCycle int) Option {
	return func(o *simOptions) {
		o.hzCacheLines = lines
		o.hzQueueSize = queueSize
		o.hzStampsCycle = stampsPerCycle
	}
}

// WithHZBlock sets the HZ block granularity in pixels (spec Sec 3 "HZ
// block") and the buffer's clear value (the Z_BUFFER_CLEAR default
// applied at construction, before any CLEAR_Z_STENCIL command).
func WithHZBlock(w, h int32, clearValue float64) Option {
	return func(o *simOptions) {
		o.hzBlockW, o.hzBlockH = w, h
		o.hzClearValue = clearValue
	}
}

// WithPixelMapConfig replaces the default tiling geometry (spec Sec
// 4.1, Sec 6's scan=16x16/over=2x2/gen=2x2/stamp=2x2/sample=1 test
// defaults).
func WithPixelMapConfig(cfg pixelmap.Config) Option {
	return func(o *simOptions) { o.pixelConfig = cfg }
}

// WithRecursiveTileTesters sets the recursive traversal's TileTesters
// value (spec Sec 4.4.2's TILE_TESTERS). Default 4. The traversal does
// not read it: each descend step tests all four quadrant children.
func WithRecursiveTileTesters(n int) Option {
	return func(o *simOptions) { o.recursiveTileTesters = n }
}

// WithStreamerUnits configures the StreamerFetch/Loader/OutputCache
// front end (spec Sec 4.7): the number of loader units, the output
// cache's line count, and the fetch transaction size in bytes
// (MAX_TRANSACTION_SIZE).
func WithStreamerUnits(loaderUnits, outputCacheLines, transactionBytes int) Option {
	return func(o *simOptions) {
		o.loaderUnits = loaderUnits
		o.outputCacheLines = outputCacheLines
		o.transactionBytes = transactionBytes
	}
}

// WithMicroTriangleBypass routes triangles whose bounding box fits in a
// single stamp straight to the HZ stage as one stamp, skipping the
// traversal machinery entirely (spec Sec 4.2's micro-triangle
// optimisation flag). Off by default.
func WithMicroTriangleBypass() Option {
	return func(o *simOptions) { o.microBypass = true }
}

// WithDownstreamConsumer injects the external GAL/HAL boundary (spec
// Sec 1's out-of-scope collaborators). The simulator queries its
// surface format at construction so CLEAR_COLOR payloads unpack in the
// channel order the consumer's render target uses; everything else
// about the consumer (device, queue, texture upload) belongs to the
// embedding application. Nil (the default) is valid.
func WithDownstreamConsumer(c gpucore.DownstreamConsumer) Option {
	return func(o *simOptions) { o.consumer = c }
}

// WithLogger attaches a structured logger; nil (the default) discards
// every log record. See rastersim.SetLogger for the package-level
// equivalent used when a Simulator isn't constructed with this option.
func WithLogger(l *slog.Logger) Option {
	return func(o *simOptions) { o.logger = l }
}
