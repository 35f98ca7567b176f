// Package scheduler implements the command-stream scheduler (C8): per
// queue submission pooling with fence-based reclamation, tiled-buffer
// sparse binding, timeline-primitive creation, and the abstract
// command set a device's instrumentation layer interleaves into an
// application's command buffer.
package scheduler

import "github.com/gpureshape/gpuvalidate/ir"

// Queue names one of the three submission timelines spec §4.8
// describes: the two application-visible queues, plus the
// layer-private queue initialization/residency transfers run on.
type Queue int

const (
	Graphics Queue = iota
	Compute
	ExclusiveTransfer
)

func (q Queue) String() string {
	switch q {
	case Graphics:
		return "graphics"
	case Compute:
		return "compute"
	case ExclusiveTransfer:
		return "exclusive-transfer"
	default:
		return "queue(?)"
	}
}

// Command is the abstract, device-independent command set the
// scheduler records and a real backend would lower to native command
// buffer calls (spec §4.8).
type Command interface{ isCommand() }

// SetShaderProgram rebinds the active pipeline/shader program.
type SetShaderProgram struct{ Program ir.ID }

// SetEventData pushes inline root-constant/push-constant bytes.
type SetEventData struct {
	Event ir.ID
	Data  []byte
}

// SetDescriptorData rewrites a descriptor set's PRMT offset/length pair.
type SetDescriptorData struct {
	Set    uint32
	Offset uint32
	Length uint32
}

// StageBuffer uploads Data at Offset into Dest, used for PUID-base
// table updates and PRMT writes (spec §4.4 "DrainStageWrites").
type StageBuffer struct {
	Dest   ir.ID
	Offset uint32
	Data   []byte
}

// ClearBuffer zero-fills a word range of Dest, used to initialize a
// freshly allocated texel-mask region (spec §4.4 "Initialize").
type ClearBuffer struct {
	Dest               ir.ID
	BaseWord, WordCount uint32
}

// Dispatch issues a compute dispatch.
type Dispatch struct{ GroupX, GroupY, GroupZ uint32 }

// UAVBarrier orders a resource's UAV writes against subsequent reads.
type UAVBarrier struct{ Resource ir.ID }

func (SetShaderProgram) isCommand()   {}
func (SetEventData) isCommand()       {}
func (SetDescriptorData) isCommand()  {}
func (StageBuffer) isCommand()        {}
func (ClearBuffer) isCommand()        {}
func (Dispatch) isCommand()           {}
func (UAVBarrier) isCommand()         {}
