package ir

// OpCode enumerates every instruction kind the IR models natively.
// Anything the feature set doesn't model round-trips through
// Unexposed instead of being lossily dropped.
type OpCode int

const (
	OpNop OpCode = iota

	// Arithmetic
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg

	// Logical
	OpLogicalAnd
	OpLogicalOr
	OpLogicalNot

	// Bit
	OpBitAnd
	OpBitOr
	OpBitXor
	OpBitNot
	OpShiftLeft
	OpShiftRight

	// Comparison
	OpEqual
	OpNotEqual
	OpLess
	OpLessEqual
	OpGreater
	OpGreaterEqual

	// Selection
	OpSelect

	// Atomics
	OpAtomicIAdd
	OpAtomicOr
	OpAtomicAnd
	OpAtomicExchange

	// Control flow
	OpBranch
	OpBranchConditional
	OpSwitch
	OpPhi
	OpReturn

	// Memory
	OpLoad
	OpStore
	OpAddressOf
	OpAddressChain
	OpExtract
	OpConstruct

	// Resource
	OpLoadBuffer
	OpLoadTexture
	OpStoreBuffer
	OpStoreTexture
	OpSampleTexture
	OpResourceSize
	OpResourceToken

	// Kernel
	OpDispatchThreadID
	OpLocalInvocationID
	OpWaveAllEqual

	// OpExportMessage is the validation layer's own instrumentation
	// primitive: the logical effect of the atomic-increment / UMin-clamp
	// / store sequence spec §4.5/§4.6 describes for appending a record
	// to the GPU-visible export ring, modeled as a single IR node since
	// (unlike the resource/arithmetic opcodes above) it has no analogue
	// in a foreign shader ISA to round-trip byte-for-byte — it is
	// synthesized by feature passes, never parsed from source.
	// Operands: [exportIDConst, schemaIDConst, sguid, tokenWord, coordX, coordY, coordZ, coordMip].
	OpExportMessage

	// Escape hatch for anything not modeled above.
	OpUnexposed
)

// BlockFlag marks a basic block with cross-cutting semantics.
type BlockFlag uint32

const (
	// BlockNoInstrumentation marks a block that must never itself be
	// targeted by feature instrumentation, preventing infinite
	// recursion when a feature emits its own export-message block.
	BlockNoInstrumentation BlockFlag = 1 << iota
)

// SourceFlag is a bit of metadata attached to an instruction beyond
// its SourceSpan, e.g. "produced by pass X, later passes must skip".
type SourceFlag uint32

const (
	// SourceFlagPassEmitted marks an instruction synthesized by a
	// feature pass rather than present in the original program.
	SourceFlagPassEmitted SourceFlag = 1 << iota
	// SourceFlagSkipWaterfall marks a resource access already visited by
	// the Waterfall feature so repeat visits (e.g. after a later pass
	// re-walks the block) don't re-emit its report.
	SourceFlagSkipWaterfall
)

// Instruction is one IR operation. Result is Invalid for instructions
// that produce no value (Store, Branch, ...).
type Instruction struct {
	OpCode   OpCode
	Result   ID
	Type     ID // result type, Invalid if Result is Invalid
	Operands []ID

	Source      SourceSpan
	SourceFlags SourceFlag

	// Foreign carries the original opcode + trailing operand words for
	// OpUnexposed instructions, so Stitch can emit them byte-faithfully.
	Foreign       uint32
	ForeignOperands []uint32

	// Metadata holds pass-attached annotations keyed by a string tag.
	Metadata map[string]interface{}
}

// HasResult reports whether the instruction produces an SSA value.
func (i *Instruction) HasResult() bool { return i.Result.IsValid() }

// SetMetadata attaches an annotation, allocating the map on first use.
func (i *Instruction) SetMetadata(key string, value interface{}) {
	if i.Metadata == nil {
		i.Metadata = make(map[string]interface{})
	}
	i.Metadata[key] = value
}

// GetMetadata retrieves a prior SetMetadata call's value.
func (i *Instruction) GetMetadata(key string) (interface{}, bool) {
	v, ok := i.Metadata[key]
	return v, ok
}

// IsTerminator reports whether the opcode ends a basic block.
func (op OpCode) IsTerminator() bool {
	switch op {
	case OpBranch, OpBranchConditional, OpSwitch, OpReturn:
		return true
	default:
		return false
	}
}
