package gpucore

// MaxMSAASamples bounds the per-fragment coverage/Z arrays; 8x is the
// largest sample count spec Sec 6 names (MSAA_SAMPLES: 2,4,6,8).
const MaxMSAASamples = 8

// Fragment is one shaded sample location inside a setup triangle (spec
// Sec 3): screen position, interpolated depth, barycentric weights,
// per-attribute interpolated values, and (when MSAA is active) per-
// sample coverage and depth.
type Fragment struct {
	X, Y int32

	// Inside reports whether the fragment's pixel-centre sample passed
	// all three edge tests; a fragment can still be present (e.g. in a
	// stamp) with Inside=false when it's a non-covered corner of a
	// partially-covered stamp.
	Inside bool

	// Z is the single representative depth used for non-MSAA and for
	// early HZ culling: the pixel-centre Z, or (MSAA) the minimum Z
	// across covered samples.
	Z float64

	BaryU, BaryV, BaryW float64

	Attrs [MaxVertexAttributes]Attr

	// TriangleID is the owning setup triangle's stable pool id, carried
	// on every fragment so stamp ordering across an interleaved batch
	// stays attributable (spec Sec 8's stamp-order invariant).
	TriangleID int

	// SampleMask has bit i set when MSAA sample i is covered. Unused
	// (0) when MSAA is disabled; fragment coverage is then carried
	// solely by Inside.
	SampleMask uint8
	SampleZ    [MaxMSAASamples]float64
}

// Stamp is the fixed 2x2-fragment atomic unit of traversal output (spec
// Sec 3).
type Stamp struct {
	Fragments [4]Fragment
	Culled    [4]bool

	TriangleID int

	// ScanTileX, ScanTileY locate the stamp's containing scan tile, and
	// SubtilePreorder its emission rank within the traversal: the
	// depth-first preorder of the recursive strategy's level stack, or
	// the running stamp count of the scanline strategy. Together with
	// TriangleID these give the total order spec Sec 8 requires of the
	// emitted stamp sequence.
	ScanTileX, ScanTileY int32
	SubtilePreorder      int64

	// Last marks the final stamp of a draw call (spec Sec 4.4's
	// lastMarker).
	Last bool
}
