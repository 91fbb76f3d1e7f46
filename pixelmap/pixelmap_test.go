package pixelmap

import "testing"

func TestTileIdentifierRoundTrip(t *testing.T) {
	m := New(DefaultConfig(64, 64))

	tests := []struct {
		x, y int
	}{
		{0, 0},
		{5, 3},
		{31, 31},
		{32, 0},
		{63, 63},
	}

	for _, tt := range tests {
		tc := m.TileIdentifier(tt.x, tt.y)
		scanW, scanH := m.ScanTileSize()
		wantAddr := m.Address(tc.X*scanW, tc.Y*scanH)
		gotAddr := m.Address((tt.x/scanW)*scanW, (tt.y/scanH)*scanH)
		if wantAddr != gotAddr {
			t.Errorf("TileIdentifier(%d,%d)=%v: address(tile origin)=%d, want %d", tt.x, tt.y, tc, gotAddr, wantAddr)
		}
	}
}

func TestAddressDeterministicAndDistinct(t *testing.T) {
	m := New(DefaultConfig(16, 16))
	seen := make(map[int64]struct{})
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			addr := m.Address(x, y)
			if _, dup := seen[addr]; dup {
				t.Fatalf("address(%d,%d)=%d collides with a previous pixel", x, y, addr)
			}
			seen[addr] = struct{}{}
			if addr != m.Address(x, y) {
				t.Fatalf("address(%d,%d) is not pure", x, y)
			}
		}
	}
}

func TestAddressSampleDistinctPerSample(t *testing.T) {
	cfg := DefaultConfig(16, 16)
	cfg.Sample = LevelSize{2, 2}
	m := New(cfg)

	seen := make(map[int64]struct{})
	for s := 0; s < 4; s++ {
		addr := m.AddressSample(3, 3, s)
		if _, dup := seen[addr]; dup {
			t.Fatalf("sample %d collides with a previous sample at the same pixel", s)
		}
		seen[addr] = struct{}{}
	}
}
