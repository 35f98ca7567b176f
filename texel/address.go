// Package texel implements the pure texel-to-memory addressing
// arithmetic (C3) and the allocator that reserves per-resource regions
// in a shared bit-mask buffer (C4), per spec §4.3-§4.4.
package texel

import (
	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/resource"
)

// Emitter is the IR-building side of address generation: given a
// builder (the function/block being instrumented) it emits whatever
// constants/instructions are needed and returns the resulting SSA
// value ID. Feature passes supply the concrete implementation that
// knows how to append to their target block; this package only
// describes what must be emitted.
type Emitter interface {
	// Const32 returns (interning if needed) a 32-bit unsigned constant.
	Const32(v uint32) ir.ID
	// Emit appends instr to the current block and returns its result ID.
	Emit(instr ir.Instruction) ir.ID
}

// Address is the result of texel address generation: the SSA values
// naming an access's mask word, bit, and out-of-bounds flag.
type Address struct {
	// TexelOffset is the word-aligned block index into the resource's
	// texel-mask region (relative to its base, see Allocator).
	TexelOffset ir.ID
	// BitIndex is the texel's bit position within the word TexelOffset
	// names (each mask word packs 32 texels' worth of per-texel state).
	BitIndex ir.ID
	// IsOutOfBounds is a bool-typed SSA value: true if any coordinate
	// was clamped.
	IsOutOfBounds ir.ID
}

func binOp(e Emitter, op ir.OpCode, ty ir.ID, a, b ir.ID) ir.ID {
	return e.Emit(ir.Instruction{OpCode: op, Result: 0, Type: ty, Operands: []ir.ID{a, b}})
}

// clampOp emits clamp(v, 0, max) and a "v > max" comparison, where max
// is the last valid index, returning (clamped, wasOutOfBounds).
func clampOp(e Emitter, u32 ir.ID, v, max ir.ID) (ir.ID, ir.ID) {
	gt := e.Emit(ir.Instruction{OpCode: ir.OpGreater, Type: u32, Operands: []ir.ID{v, max}})
	clampedHigh := e.Emit(ir.Instruction{OpCode: ir.OpSelect, Type: u32, Operands: []ir.ID{gt, max, v}})
	return clampedHigh, gt
}

// LocalBufferTexelAddress computes the word-aligned texel offset and
// out-of-bounds flag for a buffer access at logical index x, per spec
// §4.3. byteOffset/byteCount describe the bound view's byte range
// within the underlying resource; byteCount gives the view's element
// count (viewWidth) only when dims.ViewBaseWidth is zero.
func LocalBufferTexelAddress(e Emitter, u32Type ir.ID, dims resource.DimensionSummary, x ir.ID, byteOffset, byteCount uint32) Address {
	F := dims.FormatSize
	V := dims.ViewFormatSize

	var expansionFactor, contractionFactor uint32
	if F == 0 {
		expansionFactor = V
	} else {
		expansionFactor = V / max1(F)
	}
	if V == 0 {
		contractionFactor = F
	} else {
		contractionFactor = F / max1(V)
	}

	viewWidth := dims.ViewBaseWidth
	if viewWidth == 0 {
		viewWidth = byteCount / max1(F)
	}

	maxIdx := e.Const32(viewWidth - 1)
	clampedX, oob := clampOp(e, u32Type, x, maxIdx)

	var sourceOffset ir.ID
	if V > F {
		sourceOffset = binOp(e, ir.OpMul, u32Type, clampedX, e.Const32(expansionFactor))
	} else {
		sourceOffset = binOp(e, ir.OpDiv, u32Type, clampedX, e.Const32(max1(contractionFactor)))
	}
	byteOffsetTexels := byteOffset / max1(F)
	sourceOffset = binOp(e, ir.OpAdd, u32Type, sourceOffset, e.Const32(byteOffsetTexels))

	wordIndex := binOp(e, ir.OpDiv, u32Type, sourceOffset, e.Const32(32))
	bitIndex := binOp(e, ir.OpMod, u32Type, sourceOffset, e.Const32(32))
	return Address{TexelOffset: wordIndex, BitIndex: bitIndex, IsOutOfBounds: oob}
}

// LocalTextureTexelAddress computes the word-aligned texel offset and
// out-of-bounds flag for a texture access at logical (x, y, z, mip),
// per spec §4.3. The allocator reserves power-of-two-rounded-up
// dimensions, so mip offsets are derived against those, not the
// resource's logical size.
func LocalTextureTexelAddress(e Emitter, u32Type ir.ID, dims resource.DimensionSummary, x, y, z, mip ir.ID) Address {
	pw := e.Const32(nextPow2(dims.Width))
	ph := e.Const32(nextPow2(dims.Height))
	pd := e.Const32(nextPow2(dims.Depth))

	mipW := shiftedDim(e, u32Type, pw, mip)
	mipH := shiftedDim(e, u32Type, ph, mip)

	cx, oobX := clampCoordToMip(e, u32Type, x, pw, mip)
	cy, oobY := clampCoordToMip(e, u32Type, y, ph, mip)

	var cz, oobZ ir.ID
	if dims.Volumetric {
		cz, oobZ = clampCoordToMip(e, u32Type, z, pd, mip)
	} else {
		cz, oobZ = e.Const32(0), e.Const32(0)
	}

	d := uint32(2)
	if dims.Volumetric {
		d = 3
	}
	// mipOffset = (W*H - mipW*mipH) * 2^d / (2^d - 1)
	baseArea := binOp(e, ir.OpMul, u32Type, pw, ph)
	mipArea := binOp(e, ir.OpMul, u32Type, mipW, mipH)
	areaDelta := binOp(e, ir.OpSub, u32Type, baseArea, mipArea)
	numerator := binOp(e, ir.OpMul, u32Type, areaDelta, e.Const32(1<<d))
	mipOffset := binOp(e, ir.OpDiv, u32Type, numerator, e.Const32((1<<d)-1))

	var sliceBase ir.ID
	if !dims.Volumetric {
		sliceSize := binOp(e, ir.OpMul, u32Type, pw, ph)
		sliceBase = binOp(e, ir.OpMul, u32Type, cz, sliceSize)
	} else {
		sliceBase = e.Const32(0)
	}

	rowOffset := binOp(e, ir.OpMul, u32Type, cy, mipW)
	intraMip := binOp(e, ir.OpAdd, u32Type, rowOffset, cx)
	var texelIndex ir.ID
	if dims.Volumetric {
		depthRow := binOp(e, ir.OpMul, u32Type, cz, binOp(e, ir.OpMul, u32Type, mipW, mipH))
		texelIndex = binOp(e, ir.OpAdd, u32Type, depthRow, intraMip)
	} else {
		texelIndex = binOp(e, ir.OpAdd, u32Type, sliceBase, intraMip)
	}
	total := binOp(e, ir.OpAdd, u32Type, mipOffset, texelIndex)
	wordIndex := binOp(e, ir.OpDiv, u32Type, total, e.Const32(32))
	bitIndex := binOp(e, ir.OpMod, u32Type, total, e.Const32(32))

	oob := binOp(e, ir.OpLogicalOr, u32Type, oobX, oobY)
	oob = binOp(e, ir.OpLogicalOr, u32Type, oob, oobZ)

	return Address{TexelOffset: wordIndex, BitIndex: bitIndex, IsOutOfBounds: oob}
}

// clampCoordToMip clamps v against max(1, dim>>mip)-1, per the guard
// policy in spec §4.3, returning (clamped, wasOutOfBounds).
func clampCoordToMip(e Emitter, u32Type ir.ID, v, dim, mip ir.ID) (ir.ID, ir.ID) {
	shifted := binOp(e, ir.OpShiftRight, u32Type, dim, mip)
	one := e.Const32(1)
	geqOne := e.Emit(ir.Instruction{OpCode: ir.OpGreaterEqual, Type: u32Type, Operands: []ir.ID{shifted, one}})
	boundDim := e.Emit(ir.Instruction{OpCode: ir.OpSelect, Type: u32Type, Operands: []ir.ID{geqOne, shifted, one}})
	maxIdx := binOp(e, ir.OpSub, u32Type, boundDim, one)
	return clampOp(e, u32Type, v, maxIdx)
}

func shiftedDim(e Emitter, u32Type, dim, mip ir.ID) ir.ID {
	return binOp(e, ir.OpShiftRight, u32Type, dim, mip)
}

func max1(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	return v
}

func nextPow2(v uint32) uint32 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
