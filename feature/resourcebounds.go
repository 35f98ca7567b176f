package feature

import (
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
)

// resourceBounds is C5's out-of-bounds checker (spec §4.3, §4.5.a): for
// every buffer/texture access whose token resolves to a statically
// known Binding, it computes the texel-mask address via the shared
// texel addressing arithmetic and guards the access on the resulting
// IsOutOfBounds flag. It depends on DescriptorMismatch because an
// address computed from the wrong Dimensions is meaningless.
type resourceBounds struct{ base }

func newResourceBounds() *resourceBounds { return &resourceBounds{} }

func (p *resourceBounds) Install(exportBase export.ExportID) Info {
	p.info = exportBaseOf("ResourceBounds", BitResourceAddressBounds, []string{"DescriptorMismatch", "Waterfall"}, exportBase)
	return p.info
}

func (p *resourceBounds) Activate(spec *CompileSpec) error  { return nil }
func (p *resourceBounds) Deactivate()                       {}
func (p *resourceBounds) PreInject(spec *CompileSpec) error { return nil }

func (p *resourceBounds) Inject(spec *CompileSpec) error {
	for _, f := range spec.Program.Functions() {
		p.injectFunction(spec, f)
	}
	return nil
}

func isResourceAccess(op ir.OpCode) bool {
	switch op {
	case ir.OpLoadBuffer, ir.OpStoreBuffer, ir.OpLoadTexture, ir.OpStoreTexture, ir.OpSampleTexture:
		return true
	default:
		return false
	}
}

func isTextureAccess(op ir.OpCode) bool {
	switch op {
	case ir.OpLoadTexture, ir.OpStoreTexture, ir.OpSampleTexture:
		return true
	default:
		return false
	}
}

func (p *resourceBounds) injectFunction(spec *CompileSpec, f *ir.Function) {
	want := func(i *ir.Instruction) bool {
		if !isResourceAccess(i.OpCode) || len(i.Operands) == 0 {
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

		continuation := guardAndExport(spec, f, blockID, em.At(), addr.IsOutOfBounds,
			export.SchemaResourceIndexOutOfBounds, p.info.ExportIDs[0], args)
		return continuation, true
	})
}

var _ Feature = (*resourceBounds)(nil)
