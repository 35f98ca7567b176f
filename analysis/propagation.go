package analysis

import "github.com/gpureshape/gpuvalidate/ir"

// LatticeValue is one propagator's abstract value for an SSA identifier.
type LatticeValue interface {
	// Join merges two lattice values observed at a merge point (a phi
	// with multiple reachable predecessors). Join must be monotonic:
	// joining with itself or a "more precise" value never loses
	// information already established.
	Join(other LatticeValue) LatticeValue
	Equal(other LatticeValue) bool
}

// Propagator plugs a concrete abstract domain into the shared
// propagation engine (spec §4.2).
type Propagator interface {
	// Bottom is the initial, least-informative lattice value assigned
	// to every SSA identifier before anything is known about it.
	Bottom() LatticeValue
	// Seed returns a lattice value for instr if its value is known
	// independent of its operands (e.g. a divergence source
	// instruction), and whether a seed was produced.
	Seed(instr *ir.Instruction) (LatticeValue, bool)
	// Eval computes instr's result lattice value given its operands'
	// current lattice values: operands[i] belongs to instr.Operands[i],
	// and is Bottom for any operand with no assigned value (constants,
	// blocks, Invalid).
	Eval(instr *ir.Instruction, operands []LatticeValue) LatticeValue
}

// BranchFolder is implemented by propagators that can statically
// determine which successor of a conditional branch is reachable
// (constant propagation folding a known branch condition).
type BranchFolder interface {
	FoldBranch(cond LatticeValue) (target int, folded bool) // target: 0 = true edge, 1 = false edge
}

// Result is the fixed point of a propagation run: a lattice value per
// SSA identifier and a reachability bit per block.
type Result struct {
	Values    map[ir.ID]LatticeValue
	Reachable map[ir.ID]bool
}

// Value returns id's lattice value and true, or (nil, false) if id was
// never assigned one (e.g. it names a block, not an SSA value).
func (r *Result) Value(id ir.ID) (LatticeValue, bool) {
	v, ok := r.Values[id]
	return v, ok
}

// Run executes p over f to a fixed point: an SSA sparse conditional
// constant/divergence propagation skeleton (spec §4.2). Dead blocks
// (Reachable == false) are left at Bottom and are skipped by feature
// passes per the "dead-code identification" rule.
func Run(f *ir.Function, p Propagator) *Result {
	res := &Result{
		Values:    make(map[ir.ID]LatticeValue),
		Reachable: make(map[ir.ID]bool),
	}
	entry := f.Entry()
	if entry == nil {
		return res
	}
	res.Reachable[entry.ID] = true

	blocks := f.Blocks()
	changed := true
	for changed {
		changed = false
		for _, b := range blocks {
			if !res.Reachable[b.ID] {
				continue
			}
			for i := range b.Instructions {
				instr := &b.Instructions[i]
				var next LatticeValue
				if seeded, ok := p.Seed(instr); ok {
					next = seeded
				} else if instr.HasResult() {
					operands := make([]LatticeValue, 0, len(instr.Operands))
					for _, opID := range instr.Operands {
						if v, ok := res.Values[opID]; ok {
							operands = append(operands, v)
						} else {
							operands = append(operands, p.Bottom())
						}
					}
					next = p.Eval(instr, operands)
				}
				if next != nil && instr.HasResult() {
					if prev, ok := res.Values[instr.Result]; ok {
						joined := prev.Join(next)
						if !joined.Equal(prev) {
							res.Values[instr.Result] = joined
							changed = true
						}
					} else {
						res.Values[instr.Result] = next
						changed = true
					}
				}
				if instr.OpCode == ir.OpBranchConditional {
					if folder, ok := p.(BranchFolder); ok {
						condVal, hasCond := res.Values[instr.Operands[0]]
						if !hasCond {
							condVal = p.Bottom()
						}
						if target, folded := folder.FoldBranch(condVal); folded {
							var dst ir.ID
							if target == 0 {
								dst = instr.Operands[1]
							} else {
								dst = instr.Operands[2]
							}
							if !res.Reachable[dst] {
								res.Reachable[dst] = true
								changed = true
							}
							continue
						}
					}
				}
				for _, t := range instr.BranchTargets() {
					if !res.Reachable[t] {
						res.Reachable[t] = true
						changed = true
					}
				}
			}
		}
	}
	return res
}
