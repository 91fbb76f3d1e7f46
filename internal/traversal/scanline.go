package traversal

import (
	"github.com/computegpu/rastersim/gpucore"
	"github.com/computegpu/rastersim/internal/setup"
)

// scanTile is a scan-tile coordinate, in scan-tile index units.
type scanTile struct{ X, Y int32 }

// ScanlineConfig configures the scanline-with-save-stacks traversal.
type ScanlineConfig struct {
	ScanTileW, ScanTileH int32 // pixels per scan tile
	GenTileW, GenTileH   int32 // pixels per generation tile
	StampW, StampH       int32 // pixels per stamp
	OverScanW, OverScanH int32 // scan tiles per over-tile, each axis
}

// Scanline implements spec Sec 4.4.1. It rasterizes one setup triangle
// at a time, flood-filling scan tiles outward from the triangle's first
// tile via the save-stack priority `right-scan > up-scan > down-scan >
// tile-saves(L > R > U > D)`; there is deliberately no LEFT scan save
// (spec Sec 4.4.1, Sec 9 Open Question).
type Scanline struct {
	cfg ScanlineConfig

	queue []*setup.Triangle
	cur   *setup.Triangle

	visited map[scanTile]bool

	rightScan, upScan, downScan []scanTile
	tileL, tileR, tileU, tileD  []scanTile

	pendingStamps []stampPos
	preorder      int64
}

type stampPos struct{ X, Y int32 }

// NewScanline creates a Scanline traversal.
func NewScanline(cfg ScanlineConfig) *Scanline {
	return &Scanline{cfg: cfg, visited: make(map[scanTile]bool)}
}

// AddTriangle enqueues a setup-complete triangle for traversal.
func (s *Scanline) AddTriangle(t *setup.Triangle) {
	s.queue = append(s.queue, t)
}

// Done reports whether every enqueued triangle has been fully traversed.
func (s *Scanline) Done() bool {
	return s.cur == nil && len(s.queue) == 0
}

// Reset clears all traversal state, as on a RESET command.
func (s *Scanline) Reset() {
	s.queue = nil
	s.cur = nil
	s.visited = make(map[scanTile]bool)
	s.rightScan, s.upScan, s.downScan = nil, nil, nil
	s.tileL, s.tileR, s.tileU, s.tileD = nil, nil, nil, nil
	s.pendingStamps = nil
	s.preorder = 0
}

// NextStamp advances the traversal by one stamp.
func (s *Scanline) NextStamp() (*gpucore.Stamp, Status) {
	for {
		if len(s.pendingStamps) > 0 {
			return s.emitNext()
		}
		if s.cur == nil {
			if len(s.queue) == 0 {
				return nil, StatusNone
			}
			s.startTriangle(s.queue[0])
			s.queue = s.queue[1:]
			continue
		}
		if !s.advanceTile() {
			// Current triangle fully drained.
			lastOfTriangle := s.cur
			s.cur = nil
			_ = lastOfTriangle
			if len(s.queue) == 0 {
				return nil, StatusNone
			}
			continue
		}
	}
}

func (s *Scanline) startTriangle(t *setup.Triangle) {
	s.cur = t
	s.visited = make(map[scanTile]bool)
	s.rightScan, s.upScan, s.downScan = nil, nil, nil
	s.tileL, s.tileR, s.tileU, s.tileD = nil, nil, nil, nil

	startX := t.BBox.XMin / s.cfg.ScanTileW
	startY := t.BBox.YMin / s.cfg.ScanTileH
	s.visitTile(scanTile{startX, startY})
}

// advanceTile pops the next scan tile by save priority and processes
// it, queuing its stamps if it is inside-or-crosses and terminating
// (returns false) once every stack is drained.
func (s *Scanline) advanceTile() bool {
	next, ok := s.popSave()
	if !ok {
		return false
	}
	s.visitTile(next)
	return true
}

func (s *Scanline) popSave() (scanTile, bool) {
	if n := len(s.rightScan); n > 0 {
		t := s.rightScan[n-1]
		s.rightScan = s.rightScan[:n-1]
		return t, true
	}
	if n := len(s.upScan); n > 0 {
		t := s.upScan[n-1]
		s.upScan = s.upScan[:n-1]
		return t, true
	}
	if n := len(s.downScan); n > 0 {
		t := s.downScan[n-1]
		s.downScan = s.downScan[:n-1]
		return t, true
	}
	if n := len(s.tileL); n > 0 {
		t := s.tileL[n-1]
		s.tileL = s.tileL[:n-1]
		return t, true
	}
	if n := len(s.tileR); n > 0 {
		t := s.tileR[n-1]
		s.tileR = s.tileR[:n-1]
		return t, true
	}
	if n := len(s.tileU); n > 0 {
		t := s.tileU[n-1]
		s.tileU = s.tileU[:n-1]
		return t, true
	}
	if n := len(s.tileD); n > 0 {
		t := s.tileD[n-1]
		s.tileD = s.tileD[:n-1]
		return t, true
	}
	return scanTile{}, false
}

// visitTile evaluates one scan tile: if it is inside-or-crosses the
// triangle and within its bbox, its generation tiles are queued and its
// neighbours are pushed onto the save stacks for later visiting.
func (s *Scanline) visitTile(tile scanTile) {
	if s.visited[tile] {
		return
	}
	s.visited[tile] = true

	px0 := float64(tile.X * s.cfg.ScanTileW)
	py0 := float64(tile.Y * s.cfg.ScanTileH)
	px1 := px0 + float64(s.cfg.ScanTileW)
	py1 := py0 + float64(s.cfg.ScanTileH)

	withinBBox := float64(s.cur.BBox.XMin) < px1 && float64(s.cur.BBox.XMax) > px0 &&
		float64(s.cur.BBox.YMin) < py1 && float64(s.cur.BBox.YMax) > py0

	if !withinBBox || !insideOrCrosses(s.cur, px0, py0, px1, py1) {
		return
	}

	s.queueGenTiles(tile, px0, py0, px1, py1)

	overX0 := (tile.X / s.cfg.OverScanW) * s.cfg.OverScanW
	overY0 := (tile.Y / s.cfg.OverScanH) * s.cfg.OverScanH
	inOver := func(t scanTile) bool {
		return t.X >= overX0 && t.X < overX0+s.cfg.OverScanW &&
			t.Y >= overY0 && t.Y < overY0+s.cfg.OverScanH
	}

	right := scanTile{tile.X + 1, tile.Y}
	up := scanTile{tile.X, tile.Y - 1}
	down := scanTile{tile.X, tile.Y + 1}
	left := scanTile{tile.X - 1, tile.Y}

	if !s.visited[right] {
		if inOver(right) {
			s.rightScan = append(s.rightScan, right)
		} else {
			s.tileR = append(s.tileR, right)
		}
	}
	if !s.visited[up] {
		if inOver(up) {
			s.upScan = append(s.upScan, up)
		} else {
			s.tileU = append(s.tileU, up)
		}
	}
	if !s.visited[down] {
		if inOver(down) {
			s.downScan = append(s.downScan, down)
		} else {
			s.tileD = append(s.tileD, down)
		}
	}
	// LEFT has no scan-save counterpart (spec Sec 4.4.1): a left
	// neighbour is only ever reached via a tile-save.
	if !s.visited[left] {
		s.tileL = append(s.tileL, left)
	}
}

func (s *Scanline) queueGenTiles(tile scanTile, px0, py0, px1, py1 float64) {
	for gy := int32(py0); gy < int32(py1); gy += s.cfg.GenTileH {
		for gx := int32(px0); gx < int32(px1); gx += s.cfg.GenTileW {
			for sy := gy; sy < gy+s.cfg.GenTileH; sy += s.cfg.StampH {
				for sx := gx; sx < gx+s.cfg.GenTileW; sx += s.cfg.StampW {
					s.pendingStamps = append(s.pendingStamps, stampPos{sx, sy})
				}
			}
		}
	}
}

func (s *Scanline) emitNext() (*gpucore.Stamp, Status) {
	p := s.pendingStamps[0]
	s.pendingStamps = s.pendingStamps[1:]

	stamp := generateStamp(s.cur, p.X, p.Y, s.cfg.StampW, s.cfg.StampH, s.cur.ID())
	tileX, tileY := p.X/s.cfg.ScanTileW, p.Y/s.cfg.ScanTileH
	stamp.ScanTileX, stamp.ScanTileY = tileX, tileY
	stamp.SubtilePreorder = s.preorder
	s.preorder++

	// Visit saved tiles until one queues stamps or the saves run out, so
	// the final stamp of the draw is known when it is emitted.
	for len(s.pendingStamps) == 0 && s.hasMoreSaves() {
		s.advanceTile()
	}
	last := len(s.pendingStamps) == 0 && !s.hasMoreSaves() && len(s.queue) == 0
	if last {
		stamp.Last = true
		s.cur = nil
		return stamp, StatusLast
	}
	return stamp, StatusStamp
}

func (s *Scanline) hasMoreSaves() bool {
	return len(s.rightScan) > 0 || len(s.upScan) > 0 || len(s.downScan) > 0 ||
		len(s.tileL) > 0 || len(s.tileR) > 0 || len(s.tileU) > 0 || len(s.tileD) > 0
}
