package textir

import (
	"strings"

	"github.com/gpureshape/gpuvalidate/ir"
)

func idsToU32(ids []ir.ID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}

// Stitch serializes p into the provider's canonical line-record text
// format, implementing compiler.IRProvider. Sections are emitted in a
// fixed order (types, constants, globals, shader-data bindings,
// functions with their params/blocks/instructions); types and
// constants are sorted ascending by ID, the rest follow program order,
// so a program built by walking this format back in through Parse
// re-serializes byte-identically.
func (p *Provider) Stitch(prog *ir.Program) ([]byte, error) {
	var b strings.Builder

	for _, id := range prog.Types.IDs() {
		t, _ := prog.Types.Lookup(id)
		b.WriteString(join(recType, u32s(uint32(id)),
			intS(int64(t.Kind)), u32s(t.BitWidth), boolS(t.Signed),
			u32s(uint32(t.Elem)), u32s(t.Dim), u32s(t.Rows),
			encodeText(t.Members), u32s(uint32(t.Pointee)), intS(int64(t.Space)),
			intS(int64(t.SamplerMode)), u32s(t.TexelFormat), intS(int64(t.TexDim)),
			u32s(uint32(t.Return)), encodeText(t.Params), u32s(t.ForeignTag)))
		b.WriteByte('\n')
	}

	for _, id := range prog.Constants.IDs() {
		c, _ := prog.Constants.Lookup(id)
		b.WriteString(join(recConstant, u32s(uint32(id)), u32s(uint32(c.Type)),
			intS(int64(c.Kind)), intS(c.IntVal), floatHex(c.FPVal), boolS(c.BoolVal),
			joinIDs(idsToU32(c.Members))))
		b.WriteByte('\n')
	}

	for _, g := range prog.Globals {
		b.WriteString(join(recGlobal, u32s(uint32(g.ID)), u32s(uint32(g.Type)), encodeText(g.Name)))
		b.WriteByte('\n')
	}

	hostIDs := make([]uint32, 0, len(prog.ShaderDataMap))
	for h := range prog.ShaderDataMap {
		hostIDs = append(hostIDs, h)
	}
	sortU32(hostIDs)
	for _, h := range hostIDs {
		b.WriteString(join(recShaderData, u32s(h), u32s(uint32(prog.ShaderDataMap[h]))))
		b.WriteByte('\n')
	}

	for _, fn := range prog.Functions() {
		b.WriteString(join(recFunction, u32s(uint32(fn.ID)), u32s(uint32(fn.Signature)), u32s(uint32(fn.Flags))))
		b.WriteByte('\n')
		for _, param := range fn.Params {
			b.WriteString(join(recParam, u32s(uint32(param.ID)), u32s(uint32(param.Type))))
			b.WriteByte('\n')
		}
		for _, blk := range fn.Blocks() {
			b.WriteString(join(recBlock, u32s(uint32(blk.ID)), u32s(uint32(blk.Flags))))
			b.WriteByte('\n')
			for _, instr := range blk.Instructions {
				b.WriteString(join(recInstr,
					intS(int64(instr.OpCode)), u32s(uint32(instr.Result)), u32s(uint32(instr.Type)),
					joinIDs(idsToU32(instr.Operands)),
					u32s(instr.Source.FileUID), u32s(instr.Source.Line), u32s(instr.Source.Column), boolS(instr.Source.Modified),
					u32s(uint32(instr.SourceFlags)), u32s(instr.Foreign), joinIDs(instr.ForeignOperands)))
				b.WriteByte('\n')
			}
		}
	}

	for _, d := range p.debug {
		b.WriteString(join(recDebug, u32s(d.SGUID), u32s(d.FileUID), u32s(uint32(d.Line)), u32s(uint32(d.Column)),
			u32s(uint32(d.Block)), u32s(uint32(d.Index)), encodeText(d.Text)))
		b.WriteByte('\n')
	}

	return []byte(b.String()), nil
}
