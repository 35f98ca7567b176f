package feature

import (
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
)

// initialization is C5's uninitialized-read checker (spec §4.4, §4.5.c):
// every resource the allocator tracks starts with its texel-mask bits
// clear (the scheduler's transfer builder zero-fills the region). This
// pass guards every read against the bit still being clear. Writes are
// not instrumented to set the bit, and nothing else in this module sets
// it.
type initialization struct{ base }

func newInitialization() *initialization { return &initialization{} }

func (p *initialization) Install(exportBase export.ExportID) Info {
	p.info = exportBaseOf("Initialization", BitResourceInitialization, []string{"DescriptorMismatch", "Waterfall"}, exportBase)
	return p.info
}

func (p *initialization) Activate(spec *CompileSpec) error  { return nil }
func (p *initialization) Deactivate()                       {}
func (p *initialization) PreInject(spec *CompileSpec) error { return nil }

func (p *initialization) Inject(spec *CompileSpec) error {
	for _, f := range spec.Program.Functions() {
		p.injectFunction(spec, f)
	}
	return nil
}

func isReadAccess(op ir.OpCode) bool {
	switch op {
	case ir.OpLoadBuffer, ir.OpLoadTexture, ir.OpSampleTexture:
		return true
	default:
		return false
	}
}

func isWriteAccess(op ir.OpCode) bool {
	switch op {
	case ir.OpStoreBuffer, ir.OpStoreTexture:
		return true
	default:
		return false
	}
}

func (p *initialization) injectFunction(spec *CompileSpec, f *ir.Function) {
	want := func(i *ir.Instruction) bool {
		if !isReadAccess(i.OpCode) || len(i.Operands) == 0 {
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

		em := newBlockEmitterAt(spec, block, at+1)
		addr, args := resolveAccessAddress(spec, em, instr, binding)
		word, _ := maskWordAndBit(spec, em, binding, addr)
		initialized := maskBitSet(spec, em, word, addr)
		uninitialized := em.Emit(ir.Instruction{OpCode: ir.OpLogicalNot, Type: spec.BoolType, Operands: []ir.ID{initialized}})

		continuation := guardAndExport(spec, f, blockID, em.At(), uninitialized,
			export.SchemaTexelInitialization, p.info.ExportIDs[0], args)
		return continuation, true
	})
}

var _ Feature = (*initialization)(nil)
