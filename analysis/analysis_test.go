package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/analysis"
	"github.com/gpureshape/gpuvalidate/ir"
)

// buildDiamond builds entry -> {a, b} -> join -> ret, a classic
// control-flow diamond, for dominator testing.
func buildDiamond(t *testing.T) (*ir.Program, *ir.Function, map[string]*ir.BasicBlock) {
	t.Helper()
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)

	entry := f.AppendBlock()
	a := f.AppendBlock()
	b := f.AppendBlock()
	join := f.AppendBlock()

	boolTy := p.Types.Intern(ir.Type{Kind: ir.TypeBool})
	cond := p.Constants.Intern(ir.Constant{Type: boolTy, Kind: ir.ConstBool, BoolVal: true})
	entry.Append(ir.Instruction{OpCode: ir.OpBranchConditional, Operands: []ir.ID{cond, a.ID, b.ID}})
	a.Append(ir.Instruction{OpCode: ir.OpBranch, Operands: []ir.ID{join.ID}})
	b.Append(ir.Instruction{OpCode: ir.OpBranch, Operands: []ir.ID{join.ID}})
	join.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()

	return p, f, map[string]*ir.BasicBlock{"entry": entry, "a": a, "b": b, "join": join}
}

func TestDominatorDiamond(t *testing.T) {
	_, f, blocks := buildDiamond(t)
	dom := analysis.ComputeDominators(f)

	assert.True(t, dom.Dominates(blocks["entry"].ID, blocks["join"].ID))
	assert.True(t, dom.Dominates(blocks["entry"].ID, blocks["a"].ID))
	assert.True(t, dom.Dominates(blocks["entry"].ID, blocks["b"].ID))
	assert.False(t, dom.Dominates(blocks["a"].ID, blocks["b"].ID))
	assert.False(t, dom.Dominates(blocks["a"].ID, blocks["join"].ID))

	for _, b := range blocks {
		assert.True(t, dom.Dominates(b.ID, b.ID))
	}
}

func TestDominatorAllReachableBlocksDominatedByEntry(t *testing.T) {
	_, f, blocks := buildDiamond(t)
	dom := analysis.ComputeDominators(f)
	for name, b := range blocks {
		assert.Truef(t, dom.Dominates(blocks["entry"].ID, b.ID), "entry should dominate %s", name)
	}
}

func TestConstantPropagationFoldsArithmetic(t *testing.T) {
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)
	entry := f.AppendBlock()

	i32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	two := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 2})
	three := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 3})
	sum := p.AllocID()
	entry.Append(ir.Instruction{OpCode: ir.OpAdd, Result: sum, Type: i32, Operands: []ir.ID{two, three}})
	entry.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()

	cp := &analysis.ConstantPropagator{Program: p}
	res := analysis.Run(f, cp)

	v, ok := res.Value(sum)
	require.True(t, ok)
	cv := v.(analysis.ConstValue)
	require.Equal(t, analysis.ConstKnown, cv.Kind)
	c, ok := p.Constants.Lookup(cv.Value)
	require.True(t, ok)
	assert.EqualValues(t, 5, c.IntVal)
}

func TestConstantPropagationFoldsUnreachableBranch(t *testing.T) {
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)

	entry := f.AppendBlock()
	live := f.AppendBlock()
	dead := f.AppendBlock()
	live.Append(ir.Instruction{OpCode: ir.OpReturn})
	dead.Append(ir.Instruction{OpCode: ir.OpReturn})

	boolTy := p.Types.Intern(ir.Type{Kind: ir.TypeBool})
	trueConst := p.Constants.Intern(ir.Constant{Type: boolTy, Kind: ir.ConstBool, BoolVal: true})
	entry.Append(ir.Instruction{OpCode: ir.OpBranchConditional, Operands: []ir.ID{trueConst, live.ID, dead.ID}})
	f.IndexUsers()

	cp := &analysis.ConstantPropagator{Program: p}
	res := analysis.Run(f, cp)

	assert.True(t, res.Reachable[live.ID])
	assert.False(t, res.Reachable[dead.ID])
}

func TestDivergencePropagationTaintsResourceIndexing(t *testing.T) {
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)
	entry := f.AppendBlock()

	i32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	tid := p.AllocID()
	entry.Append(ir.Instruction{OpCode: ir.OpDispatchThreadID, Result: tid, Type: i32})
	idx := p.AllocID()
	entry.Append(ir.Instruction{OpCode: ir.OpAddressChain, Result: idx, Type: i32, Operands: []ir.ID{tid}})
	entry.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()

	dp := &analysis.DivergencePropagator{}
	res := analysis.Run(f, dp)

	assert.True(t, analysis.IsDivergent(res, tid))
	assert.True(t, analysis.IsDivergent(res, idx))
}
