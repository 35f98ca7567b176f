package feature

import (
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
)

// exportStability is C5's NaN guard (spec §4.5.f): a value a shader
// writes to a UAV or render target that is NaN silently collapses
// comparisons and blending downstream. It flags this with the standard
// self-inequality trick (NaN is the only float that fails to equal
// itself) rather than unpacking the IEEE-754 exponent field, since
// package ir has no float bit-cast opcode to build that out of.
type exportStability struct{ base }

func newExportStability() *exportStability { return &exportStability{} }

func (p *exportStability) Install(exportBase export.ExportID) Info {
	p.info = exportBaseOf("ExportStability", BitExportStability, nil, exportBase)
	return p.info
}

func (p *exportStability) Activate(spec *CompileSpec) error  { return nil }
func (p *exportStability) Deactivate()                       {}
func (p *exportStability) PreInject(spec *CompileSpec) error { return nil }

func (p *exportStability) Inject(spec *CompileSpec) error {
	for _, f := range spec.Program.Functions() {
		p.injectFunction(spec, f)
	}
	return nil
}

func (p *exportStability) injectFunction(spec *CompileSpec, f *ir.Function) {
	want := func(i *ir.Instruction) bool {
		return isWriteAccess(i.OpCode) && len(i.Operands) >= 3
	}
	walkInstrument(f, want, func(f *ir.Function, blockID ir.ID, at int) (*ir.BasicBlock, bool) {
		block := f.Block(blockID)
		instr := block.Instructions[at]
		value := instr.Operands[len(instr.Operands)-1]
		token := instr.Operands[0]

		em := newBlockEmitterAt(spec, block, at+1)
		unstable := em.Emit(ir.Instruction{OpCode: ir.OpNotEqual, Type: spec.BoolType, Operands: []ir.ID{value, value}})

		continuation := guardAndExport(spec, f, blockID, em.At(), unstable,
			export.SchemaExportUnstable, p.info.ExportIDs[0], exportArgs{Token: token})
		return continuation, true
	})
}

var _ Feature = (*exportStability)(nil)
