package feature

import (
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
)

// descriptorMismatch is the foundational validation pass: every other
// resource-facing feature depends on it, because it is the one pass
// that reads a just-resolved resource token and decides whether the
// descriptor slot actually holds the type the shader's binding
// declared. A mismatch here invalidates any texel address a later pass
// would otherwise compute from stale Dimensions (spec §4.5 "Pass
// ordering rule").
type descriptorMismatch struct {
	base
}

func newDescriptorMismatch() *descriptorMismatch { return &descriptorMismatch{} }

func (p *descriptorMismatch) Install(exportBase export.ExportID) Info {
	p.info = exportBaseOf("DescriptorMismatch", BitDescriptorArrayBounds, nil, exportBase)
	return p.info
}

func (p *descriptorMismatch) Activate(spec *CompileSpec) error  { return nil }
func (p *descriptorMismatch) Deactivate()                       {}
func (p *descriptorMismatch) PreInject(spec *CompileSpec) error { return nil }

func (p *descriptorMismatch) Inject(spec *CompileSpec) error {
	for _, f := range spec.Program.Functions() {
		p.injectFunction(spec, f)
	}
	return nil
}

func (p *descriptorMismatch) injectFunction(spec *CompileSpec, f *ir.Function) {
	want := func(i *ir.Instruction) bool {
		if i.OpCode != ir.OpResourceToken {
			return false
		}
		_, ok := spec.Bindings[i.Result]
		return ok
	}
	walkInstrument(f, want, func(f *ir.Function, blockID ir.ID, at int) (*ir.BasicBlock, bool) {
		block := f.Block(blockID)
		tokenInstr := block.Instructions[at]
		binding, ok := spec.Bindings[tokenInstr.Result]
		if !ok {
			return nil, false
		}

		em := newBlockEmitterAt(spec, block, at+1)
		kindBits := em.Emit(ir.Instruction{OpCode: ir.OpShiftRight, Type: spec.U32Type, Operands: []ir.ID{tokenInstr.Result, em.Const32(30)}})
		expected := em.Const32(uint32(binding.ExpectedKind))
		mismatch := em.Emit(ir.Instruction{OpCode: ir.OpNotEqual, Type: spec.BoolType, Operands: []ir.ID{kindBits, expected}})

		continuation := guardAndExport(spec, f, blockID, em.At(), mismatch,
			export.SchemaDescriptorMismatch, p.info.ExportIDs[0],
			exportArgs{Token: tokenInstr.Result})
		return continuation, true
	})
}

var _ Feature = (*descriptorMismatch)(nil)
