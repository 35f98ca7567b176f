package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/ir"
)

func buildLinearProgram(t *testing.T) (*ir.Program, *ir.Function, *ir.BasicBlock) {
	t.Helper()
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)
	b := f.AppendBlock()
	i32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	one := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 1})
	result := p.AllocID()
	b.Append(ir.Instruction{OpCode: ir.OpAdd, Result: result, Type: i32, Operands: []ir.ID{one, one}})
	b.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()
	return p, f, b
}

func TestSplitPreservesInstructionCountAndTerminators(t *testing.T) {
	_, f, b := buildLinearProgram(t)
	totalBefore := len(b.Instructions)
	require.Equal(t, 2, totalBefore)

	succ := f.Split(b.ID, 1, ir.RedirectBranchUsers)

	require.NotNil(t, b.Terminator())
	assert.Equal(t, ir.OpBranch, b.Terminator().OpCode)
	assert.Equal(t, succ.ID, b.Terminator().Operands[0])

	require.NotNil(t, succ.Terminator())
	assert.Equal(t, ir.OpReturn, succ.Terminator().OpCode)
	assert.Len(t, succ.Instructions, 1)
}

func TestSplitRedirectsBranchUsers(t *testing.T) {
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)

	entry := f.AppendBlock()
	target := f.AppendBlock()
	target.Append(ir.Instruction{OpCode: ir.OpReturn})
	entry.Append(ir.Instruction{OpCode: ir.OpBranch, Operands: []ir.ID{target.ID}})
	f.IndexUsers()

	i32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	one := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 1})
	result := p.AllocID()
	mid := target.Instructions
	target.Instructions = nil
	target.Append(ir.Instruction{OpCode: ir.OpAdd, Result: result, Type: i32, Operands: []ir.ID{one, one}})
	target.Instructions = append(target.Instructions, mid...)
	f.IndexUsers()

	succ := f.Split(target.ID, 1, ir.RedirectBranchUsers)

	// entry's branch to target must still point at target (the
	// instructions that moved belong to succ, but target keeps its
	// identity as the branch destination).
	assert.Equal(t, target.ID, entry.Terminator().Operands[0])
	assert.Equal(t, ir.OpReturn, succ.Terminator().OpCode)
}

func TestPredecessors(t *testing.T) {
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

	preds := f.Predecessors(join.ID)
	require.Len(t, preds, 2)
	assert.Contains(t, preds, a.ID)
	assert.Contains(t, preds, b.ID)
}

func TestProgramCloneIsIndependent(t *testing.T) {
	p, f, b := buildLinearProgram(t)
	clone := p.Clone()

	cf := clone.Function(f.ID)
	require.NotNil(t, cf)
	cb := cf.Block(b.ID)
	require.NotNil(t, cb)
	require.Equal(t, len(b.Instructions), len(cb.Instructions))

	// Mutating the clone must not affect the original.
	cb.Append(ir.Instruction{OpCode: ir.OpNop})
	assert.NotEqual(t, len(b.Instructions), len(cb.Instructions))
}

func TestTypeMapStructuralDedup(t *testing.T) {
	p := ir.NewProgram()
	a := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	b := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	c := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 16, Signed: true})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestConstantMapStructuralDedup(t *testing.T) {
	p := ir.NewProgram()
	i32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: true})
	a := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 42})
	b := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 42})
	c := p.Constants.Intern(ir.Constant{Type: i32, Kind: ir.ConstInt, IntVal: 43})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
