// Package gpucore holds the types shared by every stage of the simulator:
// the command and register tagged unions accepted from the front end,
// the vertex attribute and fixed-point subpixel primitives of the data
// model, and the small set of enums (compare functions, cull/face modes,
// stream data types) that registers carry as payload.
package gpucore
