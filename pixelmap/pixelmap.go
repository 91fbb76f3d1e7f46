// Package pixelmap implements the PixelMapper component (spec Sec 4.1):
// a pure, stateless mapping from (x, y[, sample]) screen coordinates to a
// linear memory address through a six-level nested tiling.
package pixelmap

// Level names the six nesting levels from smallest to largest.
type Level int

const (
	LevelSample Level = iota
	LevelPixel
	LevelStamp
	LevelGenTile
	LevelScanTile
	LevelOverTile
	levelCount
)

// LevelSize gives the width/height of one level in units of the
// immediately smaller level.
type LevelSize struct {
	W, H int
}

// Config is the tiling configuration supplied at construction. Defaults
// for testing per spec Sec 6: scan=16x16, over=2x2, gen=2x2, stamp=2x2,
// sample=1.
type Config struct {
	// DisplayWidth, DisplayHeight give the configured display
	// resolution in pixels; DisplayWidth sets how many over-tiles make
	// up one row of the address layout. Inputs are not bounds-checked
	// and callers must pre-clip.
	DisplayWidth, DisplayHeight int

	Sample   LevelSize // samples per pixel, as (samplesX, samplesY)
	Pixel    LevelSize // pixels per stamp
	Stamp    LevelSize // stamps per generation tile
	GenTile  LevelSize // generation tiles per scan tile
	ScanTile LevelSize // scan tiles per over-tile
	OverTile LevelSize // over-tiles per display
}

// DefaultConfig returns the scan=16x16, over=2x2, gen=2x2, stamp=2x2,
// sample=1 defaults named in spec Sec 6 for testing.
func DefaultConfig(displayW, displayH int) Config {
	return Config{
		DisplayWidth:  displayW,
		DisplayHeight: displayH,
		Sample:        LevelSize{1, 1},
		Pixel:         LevelSize{2, 2},
		Stamp:         LevelSize{2, 2},
		GenTile:       LevelSize{16, 16},
		ScanTile:      LevelSize{2, 2},
		OverTile:      LevelSize{1, 1},
	}
}

// Mapper converts screen coordinates into linear memory addresses. It is
// immutable after construction and holds no per-draw state, matching
// spec Sec 9's note that the pixel-mapping configuration is one of the
// only two legitimate pieces of global state in the simulator (the other
// being the HZ buffer array) and should be constructed once and shared
// by reference.
type Mapper struct {
	cfg Config

	// precomputed sizes, in pixels, of each level's unit step, and the
	// per-level unit counts.
	stampW, stampH       int // pixels per stamp, in each axis
	genW, genH           int // pixels per generation tile
	scanW, scanH         int // pixels per scan tile
	overW, overH         int // pixels per over-tile
	samplesPerPixel      int
	pixelsPerStamp       int
	stampsPerGenTile     int
	genTilesPerScanTile  int
	scanTilesPerOverTile int
}

// New constructs a Mapper from a tiling configuration.
func New(cfg Config) *Mapper {
	m := &Mapper{cfg: cfg}
	m.stampW, m.stampH = cfg.Pixel.W, cfg.Pixel.H
	m.genW, m.genH = m.stampW*cfg.Stamp.W, m.stampH*cfg.Stamp.H
	m.scanW, m.scanH = m.genW*cfg.GenTile.W, m.genH*cfg.GenTile.H
	m.overW, m.overH = m.scanW*cfg.ScanTile.W, m.scanH*cfg.ScanTile.H
	m.samplesPerPixel = cfg.Sample.W * cfg.Sample.H
	m.pixelsPerStamp = cfg.Pixel.W * cfg.Pixel.H
	m.stampsPerGenTile = cfg.Stamp.W * cfg.Stamp.H
	m.genTilesPerScanTile = cfg.GenTile.W * cfg.GenTile.H
	m.scanTilesPerOverTile = cfg.ScanTile.W * cfg.ScanTile.H
	return m
}

// Config returns the mapper's tiling configuration.
func (m *Mapper) Config() Config { return m.cfg }

// Address returns the linear memory address of pixel (x, y), sample 0.
func (m *Mapper) Address(x, y int) int64 {
	return m.AddressSample(x, y, 0)
}

// AddressSample returns the linear memory address of the given sample
// within pixel (x, y). Coordinates outside the configured display still
// produce a deterministic address; callers are responsible for
// pre-clipping per spec Sec 4.1's edge policy.
func (m *Mapper) AddressSample(x, y, sample int) int64 {
	// Decompose (x, y) into nested tile coordinates, over-tile first,
	// each level contributing its linear index within its parent times
	// the parent's area in units of the next level down, finally scaled
	// by samplesPerPixel and offset by the sample index. This walks the
	// hierarchy exactly as named in spec Sec 4.1: sample < pixel <
	// stamp < gen-tile < scan-tile < over-tile < display.
	overX, overY := x/m.overW, y/m.overH
	rx, ry := x%m.overW, y%m.overH

	scanX, scanY := rx/m.scanW, ry/m.scanH
	rx, ry = rx%m.scanW, ry%m.scanH

	genX, genY := rx/m.genW, ry/m.genH
	rx, ry = rx%m.genW, ry%m.genH

	stampX, stampY := rx/m.stampW, ry/m.stampH
	px, py := rx%m.stampW, ry%m.stampH

	overTilesPerRow := (m.cfg.DisplayWidth + m.overW - 1) / m.overW
	if overTilesPerRow < 1 {
		overTilesPerRow = 1
	}
	overIndex := int64(overY)*int64(overTilesPerRow) + int64(overX)

	scanIndex := int64(scanY*m.cfg.ScanTile.W + scanX)
	genIndex := int64(genY*m.cfg.GenTile.W + genX)
	stampIndex := int64(stampY*m.cfg.Stamp.W + stampX)
	pixelIndex := int64(py*m.cfg.Pixel.W + px)

	addr := overIndex
	addr = addr*int64(m.scanTilesPerOverTile) + scanIndex
	addr = addr*int64(m.genTilesPerScanTile) + genIndex
	addr = addr*int64(m.stampsPerGenTile) + stampIndex
	addr = addr*int64(m.pixelsPerStamp) + pixelIndex
	addr = addr*int64(m.samplesPerPixel) + int64(sample)
	return addr
}

// TileCoord is a (scan-tile x, scan-tile y) pair, in scan-tile units.
type TileCoord struct {
	X, Y int
}

// TileIdentifier returns the scan-tile coordinates containing pixel
// (x, y), floored to the containing tile per spec Sec 4.1.
func (m *Mapper) TileIdentifier(x, y int) TileCoord {
	return TileCoord{X: x / m.scanW, Y: y / m.scanH}
}

// ScanTileSize returns the width and height, in pixels, of one scan
// tile — the unit TileIdentifier addresses.
func (m *Mapper) ScanTileSize() (w, h int) { return m.scanW, m.scanH }

// GenTileSize returns the width and height, in pixels, of one
// generation tile.
func (m *Mapper) GenTileSize() (w, h int) { return m.genW, m.genH }

// StampSize returns the width and height, in pixels, of one stamp.
func (m *Mapper) StampSize() (w, h int) { return m.stampW, m.stampH }
