package feature

import (
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/texel"
)

// resolveAccessAddress computes the texel-mask address of a
// buffer/texture access instruction against its static Binding,
// emitting whatever constants/arithmetic that requires via em, and
// returns the coordinate set later folded into an exported diagnostic
// should the access turn out to be invalid. Shared by every feature
// that needs "where in the texel mask does this access land"
// (ResourceBounds, Initialization, Concurrency).
func resolveAccessAddress(spec *CompileSpec, em *blockEmitter, instr ir.Instruction, binding Binding) (texel.Address, exportArgs) {
	if isTextureAccess(instr.OpCode) {
		y, z, mip := em.Const32(0), em.Const32(0), em.Const32(0)
		if len(instr.Operands) > 2 {
			y = instr.Operands[2]
		}
		if len(instr.Operands) > 3 {
			z = instr.Operands[3]
		}
		if len(instr.Operands) > 4 {
			mip = instr.Operands[4]
		}
		addr := texel.LocalTextureTexelAddress(em, spec.U32Type, binding.Dimensions, instr.Operands[1], y, z, mip)
		return addr, exportArgs{Token: instr.Operands[0], CoordX: instr.Operands[1], CoordY: y, CoordZ: z, Mip: mip}
	}
	byteCount := binding.Dimensions.ViewBaseWidth * binding.Dimensions.FormatSize
	addr := texel.LocalBufferTexelAddress(em, spec.U32Type, binding.Dimensions, instr.Operands[1], 0, byteCount)
	return addr, exportArgs{Token: instr.Operands[0], CoordX: instr.Operands[1]}
}

// maskWordAndBit loads the shared texel-mask word that governs instr's
// access — binding.PUID's base word (resolved host-side at compile
// time, since this job is specialized to one bound-resource set) plus
// the local, address-relative word offset addr.TexelOffset computes —
// and returns the global word offset alongside it, for callers doing a
// read-modify-write (atomic lock acquire/release) that need to address
// the same word again.
func maskWordAndBit(spec *CompileSpec, em *blockEmitter, binding Binding, addr texel.Address) (word, globalOffset ir.ID) {
	base, _ := spec.Allocator.BaseWordOf(uint32(binding.PUID))
	globalOffset = em.Emit(ir.Instruction{OpCode: ir.OpAdd, Type: spec.U32Type, Operands: []ir.ID{em.Const32(base), addr.TexelOffset}})
	word = em.Emit(ir.Instruction{OpCode: ir.OpLoadBuffer, Type: spec.U32Type, Operands: []ir.ID{spec.TexelMaskBuffer, globalOffset}})
	return word, globalOffset
}

// maskBitSet tests whether addr.BitIndex is set within word, returning
// a bool-typed SSA value.
func maskBitSet(spec *CompileSpec, em *blockEmitter, word ir.ID, addr texel.Address) ir.ID {
	shifted := em.Emit(ir.Instruction{OpCode: ir.OpShiftRight, Type: spec.U32Type, Operands: []ir.ID{word, addr.BitIndex}})
	bit := em.Emit(ir.Instruction{OpCode: ir.OpBitAnd, Type: spec.U32Type, Operands: []ir.ID{shifted, em.Const32(1)}})
	return em.Emit(ir.Instruction{OpCode: ir.OpNotEqual, Type: spec.BoolType, Operands: []ir.ID{bit, em.Const32(0)}})
}

// blockEmitter adapts a single basic block to texel.Emitter, so the
// address arithmetic in package texel can be shared by every feature
// that needs to resolve a resource access to a texel-mask word without
// each pass re-deriving it.
type blockEmitter struct {
	spec   *CompileSpec
	block  *ir.BasicBlock
	cursor int // next insertion index; equal to len(block.Instructions) behaves as append
}

// newBlockEmitter appends to the end of block (the common case: writing
// into a freshly created, still-empty violation block).
func newBlockEmitter(spec *CompileSpec, block *ir.BasicBlock) *blockEmitter {
	return &blockEmitter{spec: spec, block: block, cursor: len(block.Instructions)}
}

// newBlockEmitterAt splices new instructions into block starting at
// position at, so pure guard-condition computation can be inserted
// immediately after the instruction that produced the value it checks,
// rather than after every instruction already following it in program
// order (which would let a faulting access execute before its guard).
func newBlockEmitterAt(spec *CompileSpec, block *ir.BasicBlock, at int) *blockEmitter {
	return &blockEmitter{spec: spec, block: block, cursor: at}
}

func (e *blockEmitter) Const32(v uint32) ir.ID {
	return e.spec.Program.Constants.Intern(ir.Constant{Type: e.spec.U32Type, Kind: ir.ConstInt, IntVal: int64(v)})
}

func (e *blockEmitter) Emit(instr ir.Instruction) ir.ID {
	if instr.Type.IsValid() {
		instr.Result = e.spec.Program.AllocID()
	}
	instr.SourceFlags |= ir.SourceFlagPassEmitted
	instr.Source.Modified = true
	e.block.InsertAt(e.cursor, instr)
	e.cursor++
	return instr.Result
}

// At returns the index immediately after every instruction emitted so
// far, i.e. the split point for the unmodified remainder of the block.
func (e *blockEmitter) At() int { return e.cursor }

var _ texel.Emitter = (*blockEmitter)(nil)

// split is the generic "split-on-violation" pattern spec §4.5 describes
// every instrumentation pass using: the instruction at index at (and
// everything after it) moves into a fresh continuation block, a new
// BlockNoInstrumentation violation block is spliced in, and the
// original block's fallthrough becomes a conditional branch on cond.
//
// cond must already be computed against the original block (the caller
// appends whatever comparison produces it before calling split). The
// returned violation block is empty and unterminated; the caller fills
// it in (typically via emitExportMessage) and must close it with a
// branch to continuation before the function is otherwise used.
func split(f *ir.Function, blockID ir.ID, at int, cond ir.ID) (violation, continuation *ir.BasicBlock) {
	continuation = f.Split(blockID, at, ir.RedirectBranchUsers|ir.SplitPhiEdges|ir.RedirectLoopBackedge)

	orig := f.Block(blockID)
	violation = f.AppendBlock()
	violation.Flags |= ir.BlockNoInstrumentation

	orig.Instructions[len(orig.Instructions)-1] = ir.Instruction{
		OpCode:      ir.OpBranchConditional,
		Operands:    []ir.ID{cond, violation.ID, continuation.ID},
		Source:      ir.SourceSpan{Modified: true},
		SourceFlags: ir.SourceFlagPassEmitted,
	}

	f.IndexUsers()
	return violation, continuation
}

// closeViolationBlock appends the branch back to continuation that
// every violation block produced by split must end with once the
// caller has finished writing its export message into it.
func closeViolationBlock(f *ir.Function, violation, continuation *ir.BasicBlock) {
	violation.Append(ir.Instruction{
		OpCode:      ir.OpBranch,
		Operands:    []ir.ID{continuation.ID},
		Source:      ir.SourceSpan{Modified: true},
		SourceFlags: ir.SourceFlagPassEmitted,
	})
	f.IndexUsers()
}

// exportArgs is the operand set every exported diagnostic message
// carries, matching OpExportMessage's operand layout. Unset (invalid)
// fields are emitted as the literal zero constant.
type exportArgs struct {
	SGUID          ir.ID
	Token          ir.ID
	CoordX, CoordY ir.ID
	CoordZ, Mip    ir.ID
}

// emitExportMessage emits, at e's current position, the
// OpExportMessage instruction that represents a feature's
// atomic-increment / UMin-clamp / ring-store macro (spec §4.5, §4.6).
// Callers writing into a violation block use newBlockEmitter (append);
// callers emitting inline into a live block (Waterfall's unconditional
// report) use newBlockEmitterAt so later instructions in the block stay
// after it.
func emitExportMessage(e *blockEmitter, schema export.SchemaID, exportID export.ExportID, args exportArgs) {
	zero := e.Const32(0)
	fields := []ir.ID{args.SGUID, args.Token, args.CoordX, args.CoordY, args.CoordZ, args.Mip}
	for i, f := range fields {
		if !f.IsValid() {
			fields[i] = zero
		}
	}
	e.Emit(ir.Instruction{
		OpCode: ir.OpExportMessage,
		Operands: []ir.ID{
			e.Const32(uint32(exportID)),
			e.Const32(uint32(schema)),
			fields[0], fields[1], fields[2], fields[3], fields[4], fields[5],
		},
	})
}

// walkInstrument scans every block of f reachable without crossing a
// BlockNoInstrumentation boundary, calling apply on the first
// instruction matched by want. apply is expected to instrument in
// place via guardAndExport (or leave the program untouched and return
// false to skip), and returns the block instrumentation should resume
// scanning from (normally the continuation guardAndExport produced).
// walkInstrument then restarts its scan from index 0 of that block,
// since a split moved the remainder of the original block there.
//
// This mirrors spec §4.5's description of a pass as a single
// straight-line walk per block: each match can only ever split the
// block it was found in, never reorder prior matches.
func walkInstrument(f *ir.Function, want func(*ir.Instruction) bool, apply func(f *ir.Function, blockID ir.ID, at int) (resume *ir.BasicBlock, ok bool)) {
	// Snapshot block IDs before any mutation: Split only ever appends
	// new blocks after the one it splits, so the original set is a
	// stable starting point to walk from.
	seed := make([]ir.ID, 0, len(f.Blocks()))
	for _, b := range f.Blocks() {
		seed = append(seed, b.ID)
	}
	for _, startID := range seed {
		cur := startID
		idx := 0
		for {
			b := f.Block(cur)
			if b == nil || b.HasFlag(ir.BlockNoInstrumentation) {
				break
			}
			found := -1
			for i := idx; i < len(b.Instructions); i++ {
				if want(&b.Instructions[i]) {
					found = i
					break
				}
			}
			if found == -1 {
				break
			}
			resume, ok := apply(f, cur, found)
			if !ok || resume == nil {
				idx = found + 1
				continue
			}
			cur = resume.ID
			idx = 0
		}
	}
}

// guardAndExport is the convenience every concrete feature pass calls:
// split orig at `at` on cond, write the given export message into the
// resulting violation block, and close it. Returns the continuation
// block instrumentation should resume appending to.
func guardAndExport(spec *CompileSpec, f *ir.Function, blockID ir.ID, at int, cond ir.ID, schema export.SchemaID, exportID export.ExportID, args exportArgs) (continuation *ir.BasicBlock) {
	violation, continuation := split(f, blockID, at, cond)
	emitExportMessage(newBlockEmitter(spec, violation), schema, exportID, args)
	closeViolationBlock(f, violation, continuation)
	return continuation
}
