package texel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/resource"
	"github.com/gpureshape/gpuvalidate/texel"
)

type fakeEmitter struct {
	prog  *ir.Program
	block *ir.BasicBlock
	u32   ir.ID
}

func (f *fakeEmitter) Const32(v uint32) ir.ID {
	return f.prog.Constants.Intern(ir.Constant{Type: f.u32, Kind: ir.ConstInt, IntVal: int64(v)})
}

func (f *fakeEmitter) Emit(instr ir.Instruction) ir.ID {
	instr.Result = f.prog.AllocID()
	f.block.Append(instr)
	return instr.Result
}

func newFakeEmitter() *fakeEmitter {
	p := ir.NewProgram()
	u32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: false})
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)
	b := f.AppendBlock()
	return &fakeEmitter{prog: p, block: b, u32: u32}
}

func TestLocalBufferTexelAddressEmitsInstructions(t *testing.T) {
	e := newFakeEmitter()
	dims := resource.DimensionSummary{FormatSize: 4, ViewFormatSize: 4, ViewBaseWidth: 16}
	x := e.Const32(3)
	addr := texel.LocalBufferTexelAddress(e, e.u32, dims, x, 0, 64)

	assert.True(t, addr.TexelOffset.IsValid())
	assert.True(t, addr.IsOutOfBounds.IsValid())
	assert.NotEmpty(t, e.block.Instructions)
}

func TestLocalTextureTexelAddressEmitsInstructions(t *testing.T) {
	e := newFakeEmitter()
	dims := resource.DimensionSummary{Width: 16, Height: 16, Depth: 1, MipCount: 4}
	x, y, z, mip := e.Const32(1), e.Const32(2), e.Const32(0), e.Const32(0)
	addr := texel.LocalTextureTexelAddress(e, e.u32, dims, x, y, z, mip)

	assert.True(t, addr.TexelOffset.IsValid())
	assert.True(t, addr.IsOutOfBounds.IsValid())
}

func TestAllocatorReservesAndFreesWords(t *testing.T) {
	a := texel.NewAllocator(4096)
	alloc, err := a.Allocate(resource.PUID(1), 100)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), alloc.TexelBaseBlock)
	assert.GreaterOrEqual(t, alloc.WordCount, uint32(4)) // ceil(100/32) = 4 words, rounded to a tile

	base, ok := a.BaseOf(resource.PUID(1))
	require.True(t, ok)
	assert.Equal(t, alloc.TexelBaseBlock, base)

	a.Free(resource.PUID(1))
	_, ok = a.BaseOf(resource.PUID(1))
	assert.False(t, ok)

	// Freed space must be reusable.
	alloc2, err := a.Allocate(resource.PUID(2), 100)
	require.NoError(t, err)
	assert.Equal(t, alloc.TexelBaseBlock, alloc2.TexelBaseBlock)
}

func TestAllocatorOutOfMemory(t *testing.T) {
	a := texel.NewAllocator(64) // exactly one tile
	_, err := a.Allocate(resource.PUID(1), 32*64+1)
	assert.Error(t, err)
}

type fakeTransferBuilder struct {
	zeroFills []uint32
	mapped    []resource.PUID
}

func (f *fakeTransferBuilder) ZeroFill(base, words uint32) { f.zeroFills = append(f.zeroFills, base) }
func (f *fakeTransferBuilder) CommitTileMapping(puid resource.PUID, base uint32) {
	f.mapped = append(f.mapped, puid)
}

func TestAllocatorUpdateResidencyDrainsStageWrites(t *testing.T) {
	a := texel.NewAllocator(4096)
	_, err := a.Allocate(resource.PUID(7), 10)
	require.NoError(t, err)

	b := &fakeTransferBuilder{}
	a.UpdateResidency(b)
	require.Len(t, b.mapped, 1)
	assert.Equal(t, resource.PUID(7), b.mapped[0])

	// Second drain should be empty (already consumed).
	b2 := &fakeTransferBuilder{}
	a.UpdateResidency(b2)
	assert.Empty(t, b2.mapped)
}
