// Package rastersim is a cycle-accurate functional and behavioral
// simulator of a programmable GPU's fixed-function front end: the
// Streamer (indexed/sequential vertex fetch, attribute assembly,
// in-order commit) and the Rasterizer core (triangle setup, tile
// traversal, hierarchical-Z early culling, fragment interpolation).
//
// [Simulator] is the package's single entry point, the way
// github.com/gogpu/gg's Context fronts that repository's internal
// raster and tile-compute packages: construct one with [New], drive it
// with register writes and draw calls, and inspect the fragments,
// counters, and domain warnings it produces. Everything else —
// GAL/HAL driver state caching, shader execution, texture sampling,
// blending, and the display itself — is an external collaborator the
// simulator only talks to through gpucore.DownstreamConsumer and the
// Z-Stencil write contract exposed by Simulator.QueueZStencilWrite.
package rastersim
