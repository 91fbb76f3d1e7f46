package gpucore

import "errors"

// Fatal error kinds per spec Sec 7. Configuration errors are raised at
// construction; protocol and inconsistent-binding errors halt a running
// simulation. Resource exhaustion (kind 3) is never surfaced as an error
// — it is absorbed by backpressure — and domain warnings (kind 5) are
// logged, not returned, so neither has a sentinel here.
var (
	// ErrConfig marks an illegal construction-time parameter.
	ErrConfig = errors.New("rastersim: configuration error")

	// ErrProtocol marks a command issued while a stage is in the wrong
	// state (e.g. DRAW while already DRAWING).
	ErrProtocol = errors.New("rastersim: protocol error")

	// ErrBinding marks an inconsistent binding: an unmapped vertex
	// attribute at draw time, an unknown register id, an illegal stream
	// buffer id, or an unsupported format in a converter.
	ErrBinding = errors.New("rastersim: inconsistent binding")
)
