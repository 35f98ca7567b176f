package scheduler

import "github.com/gpureshape/gpuvalidate/ir"

// LoadOp is a render-pass attachment's load behavior.
type LoadOp int

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

// RenderPass is the subset of render-pass state pipeline
// reconstruction cares about (spec §4.8 "re-open any suspended render
// pass via a copy whose load-op has been coerced to LOAD").
type RenderPass struct {
	ID     ir.ID
	LoadOp LoadOp
}

// PipelineState is the application-visible state the scheduler must
// restore after interleaving its own abstract commands into a command
// buffer, so draws following the injected work observe no difference
// (spec §4.8 "pipeline state reconstruction").
type PipelineState struct {
	BoundPipeline    ir.ID
	RootConstants    []byte
	ActiveRenderPass *RenderPass
}

// Reconstruct returns the abstract commands that re-bind pipeline and
// root-constant state and, if a render pass was suspended, a
// SetDescriptorData command naming that pass's ID. The command set has
// no render-pass command, so the output does not carry a LoadOp: the
// LoadOpLoad copy Reconstruct makes is not emitted, and the caller's
// RenderPass is left unchanged.
func Reconstruct(state *PipelineState) []Command {
	var cmds []Command
	if state == nil {
		return cmds
	}
	if state.BoundPipeline.IsValid() {
		cmds = append(cmds, SetShaderProgram{Program: state.BoundPipeline})
	}
	if len(state.RootConstants) > 0 {
		cmds = append(cmds, SetEventData{Data: state.RootConstants})
	}
	if state.ActiveRenderPass != nil {
		reopened := *state.ActiveRenderPass
		reopened.LoadOp = LoadOpLoad
		cmds = append(cmds, SetDescriptorData{Set: uint32(reopened.ID)})
	}
	return cmds
}
