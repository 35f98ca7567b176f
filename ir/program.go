package ir

// GlobalVar is a module-scope variable (e.g. a resource binding or a
// feature's shader-data constant).
type GlobalVar struct {
	ID   ID
	Type ID
	Name string
}

// Program is a complete parsed (or synthesized) shader module: its
// functions, globals, and the de-duplicated type/constant tables they
// reference.
type Program struct {
	Types     *TypeMap
	Constants *ConstantMap

	Globals     []GlobalVar
	functions   []ID
	funcsByID   map[ID]*Function

	// ShaderDataMap maps a host-side resource ID to the IR global
	// variable ID that exposes it inside the shader (spec §3 "Program").
	ShaderDataMap map[uint32]ID

	// InstructionSourceBlocks tracks, per result ID, the block that
	// originally produced it. Splits don't update this map, so
	// analyses keyed on "where was this value born" stay valid across
	// splits.
	InstructionSourceBlocks map[ID]ID

	Metadata map[string]interface{}

	ids *idAllocator
}

// NewProgram creates an empty Program with fresh type/constant tables.
// The tables draw their IDs from the program's own allocator, so a type
// or constant ID never collides with a function, block or value ID.
func NewProgram() *Program {
	p := &Program{
		Types:                   NewTypeMap(),
		Constants:               NewConstantMap(),
		funcsByID:               make(map[ID]*Function),
		ShaderDataMap:           make(map[uint32]ID),
		InstructionSourceBlocks: make(map[ID]ID),
		Metadata:                make(map[string]interface{}),
		ids:                     newIDAllocator(),
	}
	p.Types.ids = p.ids
	p.Constants.ids = p.ids
	return p
}

// AllocID hands out a fresh program-unique identifier, e.g. for a
// feature-synthesized SSA value or global.
func (p *Program) AllocID() ID { return p.ids.Allocate() }

// NewFunction creates and registers a new function with the given
// signature type ID.
func (p *Program) NewFunction(signature ID) *Function {
	id := p.ids.Allocate()
	f := newFunction(id, signature, p.ids)
	p.funcsByID[id] = f
	p.functions = append(p.functions, id)
	return f
}

// Functions returns functions in program order.
func (p *Program) Functions() []*Function {
	out := make([]*Function, len(p.functions))
	for i, id := range p.functions {
		out[i] = p.funcsByID[id]
	}
	return out
}

// Function looks up a function by ID.
func (p *Program) Function(id ID) *Function { return p.funcsByID[id] }

// EntryPoint returns the first function flagged FunctionEntryPoint, or
// the first function if none is flagged (a single-function test
// program is its own entry point).
func (p *Program) EntryPoint() *Function {
	for _, id := range p.functions {
		f := p.funcsByID[id]
		if f.Flags&FunctionEntryPoint != 0 {
			return f
		}
	}
	if len(p.functions) > 0 {
		return p.funcsByID[p.functions[0]]
	}
	return nil
}

// AddGlobal appends and returns a new global variable of typ, used by
// features attaching a shader-data dependency (spec §4.5).
func (p *Program) AddGlobal(typ ID, name string) GlobalVar {
	gv := GlobalVar{ID: p.ids.Allocate(), Type: typ, Name: name}
	p.Globals = append(p.Globals, gv)
	return gv
}

// RecordSourceBlock notes that result was originally produced inside
// block, for InstructionSourceBlocks.
func (p *Program) RecordSourceBlock(result, block ID) {
	if _, exists := p.InstructionSourceBlocks[result]; !exists {
		p.InstructionSourceBlocks[result] = block
	}
}

// Clone deep-copies the program, preserving every identifier exactly
// (functions, blocks, instructions, types, constants all keep their
// original IDs). Because every instrumentation job works on its own
// clone, no refcounting of IR nodes is needed on the hot path (spec §9
// "Shared/cloned programs").
func (p *Program) Clone() *Program {
	out := NewProgram()
	out.ids.next = p.ids.next

	for id, t := range p.Types.byID {
		out.Types.byID[id] = t
		out.Types.byKey[t] = id
	}
	for id, c := range p.Constants.byID {
		cc := c
		cc.Members = append([]ID(nil), c.Members...)
		out.Constants.byID[id] = cc
		out.Constants.byKey[cc.key()] = id
	}
	out.Globals = append([]GlobalVar(nil), p.Globals...)
	for k, v := range p.ShaderDataMap {
		out.ShaderDataMap[k] = v
	}
	for k, v := range p.InstructionSourceBlocks {
		out.InstructionSourceBlocks[k] = v
	}
	for k, v := range p.Metadata {
		out.Metadata[k] = v
	}

	for _, fid := range p.functions {
		f := p.funcsByID[fid]
		nf := newFunction(f.ID, f.Signature, out.ids)
		nf.Params = append([]Param(nil), f.Params...)
		nf.Flags = f.Flags
		for _, bid := range f.blockOrder {
			b := f.blocks[bid]
			nb := &BasicBlock{
				ID:           b.ID,
				Flags:        b.Flags,
				Instructions: cloneInstructions(b.Instructions),
				dirty:        b.dirty,
			}
			nf.blocks[bid] = nb
			nf.blockOrder = append(nf.blockOrder, bid)
		}
		nf.IndexUsers()
		out.funcsByID[fid] = nf
		out.functions = append(out.functions, fid)
	}
	return out
}

func cloneInstructions(in []Instruction) []Instruction {
	out := make([]Instruction, len(in))
	for i, instr := range in {
		out[i] = instr
		out[i].Operands = append([]ID(nil), instr.Operands...)
		out[i].ForeignOperands = append([]uint32(nil), instr.ForeignOperands...)
		if instr.Metadata != nil {
			out[i].Metadata = make(map[string]interface{}, len(instr.Metadata))
			for k, v := range instr.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}
