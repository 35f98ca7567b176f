package ir

// BasicBlock is an ordered instruction sequence ending in exactly one
// terminator (Branch, BranchConditional, Switch, Return).
type BasicBlock struct {
	ID           ID
	Instructions []Instruction
	Flags        BlockFlag

	// dirty is set whenever an instruction within carries a Modified
	// source span; the stitching back-end re-emits a dirty block from
	// the IR instead of reusing its original bytes.
	dirty bool
}

// Dirty reports whether the block must be re-emitted rather than
// reused byte-for-byte from the original shader.
func (b *BasicBlock) Dirty() bool { return b.dirty }

// Terminator returns the block's final instruction, which must always
// be a control-flow opcode per the BasicBlock invariant.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instructions) == 0 {
		return nil
	}
	return &b.Instructions[len(b.Instructions)-1]
}

// Append adds an instruction to the block, marking it dirty if the
// instruction's source span (or the instruction itself, for
// pass-emitted ones) is Modified.
func (b *BasicBlock) Append(i Instruction) {
	if i.Source.Modified || i.SourceFlags&SourceFlagPassEmitted != 0 {
		b.dirty = true
	}
	b.Instructions = append(b.Instructions, i)
}

// InsertAt inserts i at position idx, shifting later instructions down.
func (b *BasicBlock) InsertAt(idx int, i Instruction) {
	if i.Source.Modified || i.SourceFlags&SourceFlagPassEmitted != 0 {
		b.dirty = true
	}
	b.Instructions = append(b.Instructions, Instruction{})
	copy(b.Instructions[idx+1:], b.Instructions[idx:])
	b.Instructions[idx] = i
}

// HasFlag reports whether the block carries flag.
func (b *BasicBlock) HasFlag(flag BlockFlag) bool { return b.Flags&flag != 0 }

// branchTargets returns the block IDs this block's terminator can
// transfer control to.
func (b *BasicBlock) branchTargets() []ID {
	term := b.Terminator()
	if term == nil {
		return nil
	}
	switch term.OpCode {
	case OpBranch:
		return []ID{term.Operands[0]}
	case OpBranchConditional:
		return []ID{term.Operands[1], term.Operands[2]}
	case OpSwitch:
		targets := []ID{term.Operands[1]}
		for i := 3; i < len(term.Operands); i += 2 {
			targets = append(targets, term.Operands[i])
		}
		return targets
	default:
		return nil
	}
}
