package analysis

import "github.com/gpureshape/gpuvalidate/ir"

// ConstKind is the ConstantPropagator lattice: Unknown < Constant < Varying.
type ConstKind int

const (
	ConstUnknown ConstKind = iota
	ConstKnown
	ConstVarying
)

// ConstValue is the ConstantPropagator's lattice value.
type ConstValue struct {
	Kind  ConstKind
	Value ir.ID // the interned Constant ID, valid when Kind == ConstKnown
}

func (c ConstValue) Join(other LatticeValue) LatticeValue {
	o := other.(ConstValue)
	if c.Kind == ConstUnknown {
		return o
	}
	if o.Kind == ConstUnknown {
		return c
	}
	if c.Kind == ConstKnown && o.Kind == ConstKnown && c.Value == o.Value {
		return c
	}
	return ConstValue{Kind: ConstVarying}
}

func (c ConstValue) Equal(other LatticeValue) bool {
	o, ok := other.(ConstValue)
	return ok && o.Kind == c.Kind && o.Value == c.Value
}

// ConstantPropagator folds arithmetic and comparisons against the
// program's ConstantMap, and reachability-folds branches whose
// condition is statically known (spec §4.2).
type ConstantPropagator struct {
	Program *ir.Program
}

func (cp *ConstantPropagator) Bottom() LatticeValue { return ConstValue{Kind: ConstUnknown} }

func (cp *ConstantPropagator) Seed(instr *ir.Instruction) (LatticeValue, bool) {
	return ConstValue{}, false
}

func (cp *ConstantPropagator) Eval(instr *ir.Instruction, operands []LatticeValue) LatticeValue {
	switch instr.OpCode {
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv, ir.OpMod,
		ir.OpEqual, ir.OpNotEqual, ir.OpLess, ir.OpLessEqual, ir.OpGreater, ir.OpGreaterEqual:
		if len(operands) != 2 {
			return ConstValue{Kind: ConstVarying}
		}
		a, aok := operands[0].(ConstValue)
		b, bok := operands[1].(ConstValue)
		if !aok || !bok {
			return ConstValue{Kind: ConstVarying}
		}
		// An operand that names a constant directly has no SSA value in
		// the propagation result, so it arrives as Bottom; resolve it here.
		if _, ok := cp.Program.Constants.Lookup(instr.Operands[0]); ok && a.Kind == ConstUnknown {
			a = ConstValue{Kind: ConstKnown, Value: instr.Operands[0]}
		}
		if _, ok := cp.Program.Constants.Lookup(instr.Operands[1]); ok && b.Kind == ConstUnknown {
			b = ConstValue{Kind: ConstKnown, Value: instr.Operands[1]}
		}
		if a.Kind == ConstUnknown || b.Kind == ConstUnknown {
			return ConstValue{Kind: ConstUnknown}
		}
		if a.Kind != ConstKnown || b.Kind != ConstKnown {
			return ConstValue{Kind: ConstVarying}
		}
		ca, ok1 := cp.Program.Constants.Lookup(a.Value)
		cb, ok2 := cp.Program.Constants.Lookup(b.Value)
		if !ok1 || !ok2 || ca.Kind != ir.ConstInt || cb.Kind != ir.ConstInt {
			return ConstValue{Kind: ConstVarying}
		}
		folded, ok := foldIntOp(instr.OpCode, ca.IntVal, cb.IntVal)
		if !ok {
			return ConstValue{Kind: ConstVarying}
		}
		resultID := cp.Program.Constants.Intern(ir.Constant{Type: instr.Type, Kind: ir.ConstInt, IntVal: folded})
		return ConstValue{Kind: ConstKnown, Value: resultID}
	default:
		return ConstValue{Kind: ConstVarying}
	}
}

func foldIntOp(op ir.OpCode, a, b int64) (int64, bool) {
	switch op {
	case ir.OpAdd:
		return a + b, true
	case ir.OpSub:
		return a - b, true
	case ir.OpMul:
		return a * b, true
	case ir.OpDiv:
		if b == 0 {
			return 0, false
		}
		return a / b, true
	case ir.OpMod:
		if b == 0 {
			return 0, false
		}
		return a % b, true
	case ir.OpEqual:
		return boolInt(a == b), true
	case ir.OpNotEqual:
		return boolInt(a != b), true
	case ir.OpLess:
		return boolInt(a < b), true
	case ir.OpLessEqual:
		return boolInt(a <= b), true
	case ir.OpGreater:
		return boolInt(a > b), true
	case ir.OpGreaterEqual:
		return boolInt(a >= b), true
	default:
		return 0, false
	}
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}

// FoldBranch implements BranchFolder: a known-constant boolean
// condition makes exactly one successor reachable.
func (cp *ConstantPropagator) FoldBranch(cond LatticeValue) (int, bool) {
	c, ok := cond.(ConstValue)
	if !ok || c.Kind != ConstKnown {
		return 0, false
	}
	k, ok := cp.Program.Constants.Lookup(c.Value)
	if !ok {
		return 0, false
	}
	truthy := false
	switch k.Kind {
	case ir.ConstBool:
		truthy = k.BoolVal
	case ir.ConstInt:
		truthy = k.IntVal != 0
	default:
		return 0, false
	}
	if truthy {
		return 0, true
	}
	return 1, true
}
