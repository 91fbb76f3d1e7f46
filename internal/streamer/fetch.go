package streamer

import "encoding/binary"

// IndexFormat is the binary width of an index buffer element.
type IndexFormat uint8

const (
	IndexUint16 IndexFormat = iota
	IndexUint32
)

// ByteWidth returns the index format's element size in bytes.
func (f IndexFormat) ByteWidth() int {
	if f == IndexUint16 {
		return 2
	}
	return 4
}

// FetchConfig configures the index/vertex fetch unit.
type FetchConfig struct {
	Indexed     bool
	IndexFormat IndexFormat
	IndexBuffer []byte

	BaseVertex    int32
	StartIndex    int // STREAM_START: first element consumed per instance
	VertexCount   int // vertices consumed per instance
	InstanceCount int

	// TransactionBytes bounds how many index-buffer bytes one fetch
	// transaction reads, modeling the bus-width-aligned burst fetch of
	// spec Sec 4.7. Sequential (non-indexed) draws use it to bound how
	// many vertex indices are synthesized per cycle instead.
	TransactionBytes int
}

// FetchedIndex is one resolved vertex reference in draw order.
type FetchedIndex struct {
	Vertex   int32
	Instance int32
	Slot     int // position within the instance's vertex sequence
}

// Fetch is the index/vertex fetch state machine (spec Sec 4.7). Each
// instance boundary restarts the cursor from the index buffer's base
// offset — the per-instance realignment the original cmStreamerFetch.cpp
// performs rather than carrying a running offset across instances.
type Fetch struct {
	cfg      FetchConfig
	instance int
	cursor   int
	done     bool

	// BytesRequested counts index-buffer bytes consumed by resolved
	// indices; PaddingBytes counts the alignment bytes skipped at the
	// start of each instance's run so the first transaction begins on a
	// TransactionBytes boundary. Together they satisfy the accounting
	// property bytes read == indices * sizeof(indexType) + padding.
	BytesRequested int64
	PaddingBytes   int64
}

// NewFetch creates a Fetch unit. An instance count of zero is treated as
// one instance (non-instanced draw).
func NewFetch(cfg FetchConfig) *Fetch {
	if cfg.InstanceCount <= 0 {
		cfg.InstanceCount = 1
	}
	if cfg.TransactionBytes <= 0 {
		cfg.TransactionBytes = 32
	}
	return &Fetch{cfg: cfg}
}

// Done reports whether every instance's vertex sequence has been fetched.
func (f *Fetch) Done() bool { return f.done }

// Instance returns the number of instances whose runs have been fully
// fetched so far.
func (f *Fetch) Instance() int { return f.instance }

// Reset restarts the fetch unit at instance 0, cursor 0.
func (f *Fetch) Reset() {
	f.instance = 0
	f.cursor = 0
	f.done = false
	f.BytesRequested = 0
	f.PaddingBytes = 0
}

// NextTransaction returns the next bus-aligned burst of resolved vertex
// references, advancing the cursor and (on exhausting an instance)
// realigning to the next instance's base. Returns nil once every
// instance is exhausted.
func (f *Fetch) NextTransaction() []FetchedIndex {
	if f.done {
		return nil
	}
	if f.cfg.VertexCount <= 0 {
		f.done = true
		return nil
	}

	var elemBytes int
	if f.cfg.Indexed {
		elemBytes = f.cfg.IndexFormat.ByteWidth()
	} else {
		elemBytes = 4
	}
	elemsPerTxn := f.cfg.TransactionBytes / elemBytes
	if elemsPerTxn < 1 {
		elemsPerTxn = 1
	}

	if f.cursor == 0 && f.cfg.Indexed {
		// The first transaction of each instance realigns to the burst
		// size: bytes between the aligned transaction start and the
		// run's first index are fetched but skipped as padding.
		startByte := f.cfg.StartIndex * elemBytes
		f.PaddingBytes += int64(startByte % f.cfg.TransactionBytes)
	}

	var out []FetchedIndex
	for i := 0; i < elemsPerTxn && f.cursor < f.cfg.VertexCount; i++ {
		var vertex int32
		if f.cfg.Indexed {
			off := (f.cfg.StartIndex + f.cursor) * elemBytes
			var raw uint32
			if elemBytes == 2 {
				raw = uint32(binary.LittleEndian.Uint16(f.cfg.IndexBuffer[off:]))
			} else {
				raw = binary.LittleEndian.Uint32(f.cfg.IndexBuffer[off:])
			}
			vertex = f.cfg.BaseVertex + int32(raw)
			f.BytesRequested += int64(elemBytes)
		} else {
			vertex = f.cfg.BaseVertex + int32(f.cfg.StartIndex+f.cursor)
		}
		out = append(out, FetchedIndex{Vertex: vertex, Instance: int32(f.instance), Slot: f.cursor})
		f.cursor++
	}

	if f.cursor >= f.cfg.VertexCount {
		f.instance++
		f.cursor = 0 // per-instance realignment: restart from index buffer base
		if f.instance >= f.cfg.InstanceCount {
			f.done = true
		}
	}
	return out
}
