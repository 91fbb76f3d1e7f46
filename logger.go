package rastersim

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so SetLogger can
// be called while a simulation is advancing on another goroutine's behalf.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger that New hands to the simulator and every
// internal stage when no WithLogger option is given. By default rastersim
// produces no log output.
//
// Log levels used by rastersim:
//   - [slog.LevelDebug]: stage diagnostics (triangle pool exhausted,
//     degenerate triangle culled, HZ cache fully reserved, fast Z clear
//     complete, color format kept)
//   - [slog.LevelWarn]: domain warnings (unsupported primitive dropped)
//
// Example:
//
//	rastersim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the logger currently in effect. Internal packages that
// cannot import the top-level rastersim package without an import cycle
// take a *slog.Logger explicitly instead; this accessor is for the few
// callers (the façade's New) that sit above all of them.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
