package gpucore

// CommandKind enumerates the command stream's opcodes (spec Sec 6, Sec
// 4.8). Commands are consumed one per cycle by the orchestrator while it
// is in the READY state.
type CommandKind uint8

const (
	CmdReset CommandKind = iota
	CmdDraw
	CmdEnd
	CmdClearColor
	CmdClearZStencil
	CmdFlushColor
	CmdFlushZStencil
	CmdSaveColorState
	CmdRestoreColorState
	CmdSaveZStencilState
	CmdRestoreZStencilState
	CmdResetColorState
	CmdResetZStencilState
	CmdSwapBuffers
	CmdLoadVertexProgram
	CmdLoadFragmentProgram
	CmdRegWrite
)

// Command is one entry of the command stream. Only the fields relevant
// to Kind are populated; the orchestrator's byte-level wire framing, if
// any, is a front-end concern outside this package.
type Command struct {
	Kind CommandKind

	// ClearColor / ClearZStencil payload.
	Color32      uint32
	ClearZ       float32
	ClearStencil uint8

	// RegWrite payload.
	Write RegisterWrite

	// LoadVertexProgram / LoadFragmentProgram payload: an opaque program
	// blob handed to the out-of-scope GAL/HAL shader scheduler; the core
	// only needs to know a program was (re)bound, not its contents.
	ProgramID uint64
}
