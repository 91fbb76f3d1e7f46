// Package orchestrator implements the PipelineOrchestrator (spec Sec
// 4.8): the top-level cooperative state machine that advances every
// stage leaf-first each cycle, dispatches the command stream, and fans
// register writes out to the stage that owns each group.
package orchestrator
