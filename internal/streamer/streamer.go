package streamer

import (
	"log/slog"

	"github.com/computegpu/rastersim/gpucore"
)

// Config configures a complete Streamer front end.
type Config struct {
	Fetch            FetchConfig
	Streams          []StreamBinding
	LoaderUnits      int
	OutputCacheLines int
	Primitive        gpucore.Primitive

	// AttributeDefaults seeds unwritten attribute slots; see
	// Loader.Defaults.
	AttributeDefaults [gpucore.MaxVertexAttributes]gpucore.Attr

	// AttributeLoadBypass skips stream decoding entirely; see
	// Loader.Bypass.
	AttributeLoadBypass bool
}

// Streamer wires Fetch, OutputCache, Loader and Commit into the
// complete vertex front end (spec Sec 4.7): one call to Advance drains
// one fetch transaction, resolves each index against the output cache
// (decoding through the loader on a miss), and submits every resolved
// vertex to Commit in fetch order.
type Streamer struct {
	cfg Config
	log *slog.Logger

	fetch  *Fetch
	cache  *OutputCache
	loader *Loader
	commit *Commit

	IndicesFetched int64
}

// NewStreamer creates a Streamer from cfg.
func NewStreamer(cfg Config, log *slog.Logger) *Streamer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	loader := NewLoader(cfg.LoaderUnits, cfg.Streams)
	loader.Defaults = cfg.AttributeDefaults
	loader.Bypass = cfg.AttributeLoadBypass
	return &Streamer{
		cfg:    cfg,
		log:    log,
		fetch:  NewFetch(cfg.Fetch),
		cache:  NewOutputCache(cfg.OutputCacheLines),
		loader: loader,
		commit: NewCommit(cfg.Primitive),
	}
}

// Fetch exposes the fetch unit's counters (bytes, padding, instance
// progress) for property checks.
func (s *Streamer) Fetch() *Fetch { return s.fetch }

// Done reports whether the draw's entire vertex sequence has been
// fetched and committed.
func (s *Streamer) Done() bool { return s.fetch.Done() }

// Advance drains one fetch transaction and returns every triangle
// assembled as a result (zero, one, or more, depending on the
// primitive topology and transaction size).
func (s *Streamer) Advance() []Triangle3 {
	txn := s.fetch.NextTransaction()
	for _, fi := range txn {
		s.IndicesFetched++
		key := Key(fi.Vertex, fi.Instance)
		v, hit := s.cache.Lookup(key)
		if !hit {
			v = s.loader.Decode(fi.Vertex, fi.Instance)
			s.cache.Insert(key, v)
		}
		s.commit.Submit(v, fi.Instance)
	}
	return s.commit.Pending()
}

// Reset reinitializes every sub-stage, as on a RESET command.
func (s *Streamer) Reset() {
	s.fetch.Reset()
	s.cache.Reset()
	s.loader.Reset()
	s.commit.Reset()
	s.IndicesFetched = 0
}
