package feature

import (
	"github.com/gpureshape/gpuvalidate/analysis"
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
)

// waterfall is the pass spec §4.5.e describes separately from the five
// host-exposed bits: it has no bit of its own, so it rides along with
// BitResourceAddressBounds — a build that validates resource address
// bounds gets the divergent-indexing report alongside it, since one is
// largely moot without the other once dynamic (non-uniform) indexing is
// in play. It flags resource accesses whose index the static divergence
// analysis (package analysis) cannot prove uniform across a wave,
// exactly the condition real hardware needs a waterfall loop to resolve
// safely.
//
// Unlike the other passes, the report isn't conditioned on a runtime
// value: divergence is a static property of the call site, so every
// execution of a flagged access unconditionally emits one message.
// The message's X coordinate carries the access index, so downstream
// Dedup (keyed by fingerprint) collapses repeated reports from the same
// call site only when they share the same index.
type waterfall struct{ base }

func newWaterfall() *waterfall { return &waterfall{} }

func (p *waterfall) Install(exportBase export.ExportID) Info {
	p.info = exportBaseOf("Waterfall", BitResourceAddressBounds, []string{"DescriptorMismatch"}, exportBase)
	return p.info
}

func (p *waterfall) Activate(spec *CompileSpec) error  { return nil }
func (p *waterfall) Deactivate()                       {}
func (p *waterfall) PreInject(spec *CompileSpec) error { return nil }

func (p *waterfall) Inject(spec *CompileSpec) error {
	sim := analysis.Simulate(spec.Program)
	for _, f := range spec.Program.Functions() {
		p.injectFunction(spec, f, sim.Divergence[f.ID])
	}
	return nil
}

func (p *waterfall) injectFunction(spec *CompileSpec, f *ir.Function, div *analysis.Result) {
	if div == nil {
		return
	}
	for _, block := range f.Blocks() {
		if block.HasFlag(ir.BlockNoInstrumentation) {
			continue
		}
		for idx := 0; idx < len(block.Instructions); idx++ {
			instr := block.Instructions[idx]
			if !isResourceAccess(instr.OpCode) || len(instr.Operands) < 2 {
				continue
			}
			if instr.SourceFlags&ir.SourceFlagSkipWaterfall != 0 {
				continue
			}
			if _, bound := spec.Bindings[instr.Operands[0]]; !bound {
				continue
			}
			if !analysis.IsDivergent(div, instr.Operands[1]) {
				continue
			}

			block.Instructions[idx].SourceFlags |= ir.SourceFlagSkipWaterfall

			em := newBlockEmitterAt(spec, block, idx+1)
			emitExportMessage(em, export.SchemaWaterfallingCondition, p.info.ExportIDs[0],
				exportArgs{Token: instr.Operands[0], CoordX: instr.Operands[1]})
			idx = em.At() - 1
		}
	}
	f.IndexUsers()
}

var _ Feature = (*waterfall)(nil)
