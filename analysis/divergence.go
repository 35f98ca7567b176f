package analysis

import "github.com/gpureshape/gpuvalidate/ir"

// DivergenceValue is the DivergencePropagator lattice: Uniform <
// Divergent. Every thread in a wave computes the same Uniform value;
// a Divergent value may differ per-thread.
type DivergenceValue struct {
	Divergent bool
}

func (d DivergenceValue) Join(other LatticeValue) LatticeValue {
	o := other.(DivergenceValue)
	return DivergenceValue{Divergent: d.Divergent || o.Divergent}
}

func (d DivergenceValue) Equal(other LatticeValue) bool {
	o, ok := other.(DivergenceValue)
	return ok && o.Divergent == d.Divergent
}

// DivergencePropagator seeds wave-intrinsic / kernel-id sources as
// Divergent and taints any operation with a Divergent operand (spec
// §4.2), feeding the Waterfall feature's static divergent-indexing check.
type DivergencePropagator struct{}

func (dp *DivergencePropagator) Bottom() LatticeValue { return DivergenceValue{Divergent: false} }

func (dp *DivergencePropagator) Seed(instr *ir.Instruction) (LatticeValue, bool) {
	switch instr.OpCode {
	case ir.OpDispatchThreadID, ir.OpLocalInvocationID:
		return DivergenceValue{Divergent: true}, true
	case ir.OpWaveAllEqual:
		// The result of a wave vote is itself uniform: every lane in
		// the wave observes the same boolean.
		return DivergenceValue{Divergent: false}, true
	default:
		return DivergenceValue{}, false
	}
}

func (dp *DivergencePropagator) Eval(instr *ir.Instruction, operands []LatticeValue) LatticeValue {
	for _, v := range operands {
		if dv, ok := v.(DivergenceValue); ok && dv.Divergent {
			return DivergenceValue{Divergent: true}
		}
	}
	return DivergenceValue{Divergent: false}
}

// IsDivergent is a convenience query against a divergence Result.
func IsDivergent(res *Result, id ir.ID) bool {
	v, ok := res.Value(id)
	if !ok {
		return false
	}
	dv, ok := v.(DivergenceValue)
	return ok && dv.Divergent
}

// InterproceduralSimulationAnalysis composes the constant and
// divergence propagators across every function of a program — in the
// absence of indirect calls (not modeled by this IR, see spec §1
// Non-goals: no symbolic execution), "interprocedural" reduces to
// running both propagators per function; call-site argument taint
// would thread divergence across a call graph, added here as the
// extension point a multi-function IR provider plugs into.
type InterproceduralSimulationAnalysis struct {
	Constants  map[ir.ID]*Result
	Divergence map[ir.ID]*Result
}

// Simulate runs both propagators over every function in prog.
func Simulate(prog *ir.Program) *InterproceduralSimulationAnalysis {
	sim := &InterproceduralSimulationAnalysis{
		Constants:  make(map[ir.ID]*Result),
		Divergence: make(map[ir.ID]*Result),
	}
	for _, f := range prog.Functions() {
		cp := &ConstantPropagator{Program: prog}
		sim.Constants[f.ID] = Run(f, cp)
		dp := &DivergencePropagator{}
		sim.Divergence[f.ID] = Run(f, dp)
	}
	return sim
}
