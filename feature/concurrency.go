package feature

import (
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
)

// concurrency is C5's data-race checker (spec §4.4, §4.5.d): it wraps
// every write access in an acquire/release pair against the same
// texel-mask buffer Initialization reads, using one bit per texel as a
// lock rather than an init flag. If the acquire's atomic-or observes
// the bit already set, another in-flight invocation is writing the same
// texel right now.
type concurrency struct{ base }

func newConcurrency() *concurrency { return &concurrency{} }

func (p *concurrency) Install(exportBase export.ExportID) Info {
	p.info = exportBaseOf("Concurrency", BitResourceDataRace, []string{"DescriptorMismatch", "Waterfall"}, exportBase)
	return p.info
}

func (p *concurrency) Activate(spec *CompileSpec) error  { return nil }
func (p *concurrency) Deactivate()                       {}
func (p *concurrency) PreInject(spec *CompileSpec) error { return nil }

func (p *concurrency) Inject(spec *CompileSpec) error {
	for _, f := range spec.Program.Functions() {
		p.injectFunction(spec, f)
	}
	return nil
}

func (p *concurrency) injectFunction(spec *CompileSpec, f *ir.Function) {
	want := func(i *ir.Instruction) bool {
		if !isWriteAccess(i.OpCode) || len(i.Operands) == 0 {
			return false
		}
		_, ok := spec.Bindings[i.Operands[0]]
		return ok
	}
	walkInstrument(f, want, func(f *ir.Function, blockID ir.ID, at int) (*ir.BasicBlock, bool) {
		block := f.Block(blockID)
		instr := block.Instructions[at]
		binding, ok := spec.Bindings[instr.Operands[0]]
		if !ok {
			return nil, false
		}

		acquire := newBlockEmitterAt(spec, block, at)
		addr, args := resolveAccessAddress(spec, acquire, instr, binding)
		_, globalOffset := maskWordAndBit(spec, acquire, binding, addr)
		mask := acquire.Emit(ir.Instruction{OpCode: ir.OpShiftLeft, Type: spec.U32Type, Operands: []ir.ID{acquire.Const32(1), addr.BitIndex}})
		prev := acquire.Emit(ir.Instruction{OpCode: ir.OpAtomicOr, Type: spec.U32Type, Operands: []ir.ID{spec.TexelMaskBuffer, globalOffset, mask}})
		prevBit := acquire.Emit(ir.Instruction{OpCode: ir.OpBitAnd, Type: spec.U32Type, Operands: []ir.ID{prev, mask}})
		racing := acquire.Emit(ir.Instruction{OpCode: ir.OpNotEqual, Type: spec.BoolType, Operands: []ir.ID{prevBit, acquire.Const32(0)}})

		release := newBlockEmitterAt(spec, block, acquire.At()+1) // +1 to land after the store the acquire block pushed ahead of it
		notMask := release.Emit(ir.Instruction{OpCode: ir.OpBitNot, Type: spec.U32Type, Operands: []ir.ID{mask}})
		release.Emit(ir.Instruction{OpCode: ir.OpAtomicAnd, Type: spec.U32Type, Operands: []ir.ID{spec.TexelMaskBuffer, globalOffset, notMask}})

		continuation := guardAndExport(spec, f, blockID, release.At(), racing,
			export.SchemaResourceRaceCondition, p.info.ExportIDs[0], args)
		return continuation, true
	})
}

var _ Feature = (*concurrency)(nil)
