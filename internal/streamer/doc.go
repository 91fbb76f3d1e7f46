// Package streamer implements the Streamer front end (spec Sec 4.7):
// indexed or sequential vertex fetch, an output cache that de-dups
// repeated index values within a working set, round-robin attribute
// loader units that decode raw vertex streams, and an in-order commit
// stage that hands assembled vertices to triangle setup in fetch
// order.
package streamer
