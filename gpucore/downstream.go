package gpucore

import "github.com/gogpu/gpucontext"

// DownstreamConsumer is the external GAL/HAL boundary — the
// out-of-scope color/Z-stencil backend and display named in spec Sec
// 1. The simulator RECEIVES this from its host and never creates a
// device of its own; the one thing the core asks of it is
// SurfaceFormat, which seeds the color buffer format CLEAR_COLOR
// payloads unpack through. Forwarding fragments, program loads and swap
// requests to the device is the embedding application's job.
type DownstreamConsumer = gpucontext.DeviceProvider
