package ir

// The Import* methods below reconstruct a program from a previously
// serialized form with its original identifiers intact, the same way
// Clone does internally but through an exported surface an external
// deserializer (textir.Provider.Parse, in particular) can drive.
// Unlike Intern, they never deduplicate: the caller is replaying
// records that were already deduplicated once, at serialization time.

// ImportType inserts t at id into the program's type table.
func (p *Program) ImportType(id ID, t Type) {
	p.Types.byID[id] = t
	p.Types.byKey[t] = id
	p.Types.ids.reserveAtLeast(id)
}

// ImportConstant inserts c at id into the program's constant table.
func (p *Program) ImportConstant(id ID, c Constant) {
	c.ID = id
	p.Constants.byID[id] = c
	p.Constants.byKey[c.key()] = id
	p.Constants.ids.reserveAtLeast(id)
}

// ImportGlobal appends a global variable with its original ID.
func (p *Program) ImportGlobal(gv GlobalVar) {
	p.Globals = append(p.Globals, gv)
	p.ids.reserveAtLeast(gv.ID)
}

// ImportFunction creates a function at id with its original signature
// and ID, without touching the functions slice's append order
// semantics (callers replay functions in original order already).
func (p *Program) ImportFunction(id, signature ID) *Function {
	f := newFunction(id, signature, p.ids)
	p.funcsByID[id] = f
	p.functions = append(p.functions, id)
	p.ids.reserveAtLeast(id)
	return f
}

// ReserveID bumps the program's shared ID allocator so a later
// AllocID call never collides with id, used when a deserializer
// assigns an SSA result ID read from a record directly rather than
// through AllocID.
func (p *Program) ReserveID(id ID) { p.ids.reserveAtLeast(id) }

// ImportParam appends a parameter with its original ID and type.
func (f *Function) ImportParam(id, typ ID) {
	f.Params = append(f.Params, Param{ID: id, Type: typ})
	f.ids.reserveAtLeast(id)
}

// ImportBlock creates and appends a block at id.
func (f *Function) ImportBlock(id ID) *BasicBlock {
	b := &BasicBlock{ID: id}
	f.blocks[id] = b
	f.blockOrder = append(f.blockOrder, id)
	f.ids.reserveAtLeast(id)
	return b
}

// ImportInstruction appends i verbatim, preserving whatever Result ID
// it already carries (the caller is responsible for having reserved
// it via Program.ReserveID).
func (b *BasicBlock) ImportInstruction(i Instruction) {
	if i.Source.Modified || i.SourceFlags&SourceFlagPassEmitted != 0 {
		b.dirty = true
	}
	b.Instructions = append(b.Instructions, i)
}
