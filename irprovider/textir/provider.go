package textir

import (
	"fmt"
	"strings"

	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/report"
)

// debugRecord is one source-location record a shader's debug info
// carries, keyed by the shader-source GUID a diagnostic message
// reports (spec §3 SGUID, §4.9 symbolication).
type debugRecord struct {
	SGUID   uint32
	FileUID uint32
	Line    uint32
	Column  uint32
	Block   ir.ID
	Index   uint32
	Text    string
}

// Provider is the default textual IRProvider: it implements
// compiler.IRProvider (Parse/Stitch) and report.Symbolicator (Resolve)
// against the debug records its own Parse call collected, so a report
// opened against a shader compiled through this provider can
// symbolicate without any separate debug-info side channel.
type Provider struct {
	debug   []debugRecord
	bySGUID map[uint32]debugRecord
}

// New creates an empty Provider.
func New() *Provider {
	return &Provider{bySGUID: make(map[uint32]debugRecord)}
}

// addDebug records a source mapping Parse attaches to sguid, consumed
// later by Resolve.
func (p *Provider) addDebug(d debugRecord) {
	p.debug = append(p.debug, d)
	p.bySGUID[d.SGUID] = d
}

// Resolve implements report.Symbolicator.
func (p *Provider) Resolve(sguid uint32) (report.SourceMapping, bool) {
	d, ok := p.bySGUID[sguid]
	if !ok {
		return report.SourceMapping{}, false
	}
	return report.SourceMapping{
		ShaderGUID:       d.SGUID,
		FileUID:          d.FileUID,
		Line:             int(d.Line),
		Column:           int(d.Column),
		BasicBlockID:     d.Block,
		InstructionIndex: int(d.Index),
	}, true
}

// Parse decodes the provider's line-record text format into an
// ir.Program, implementing compiler.IRProvider. Every record carries
// the identifier it was serialized with, and Parse replays them
// through ir's Import* surface rather than re-interning, so the
// reconstructed program's IDs are byte-identical to the program that
// was Stitched: Stitch(Parse(S)) reproduces S exactly (it walks the
// same tables in the same ascending-ID order it was built from).
func (p *Provider) Parse(source []byte) (*ir.Program, error) {
	prog := ir.NewProgram()

	var currentFn *ir.Function
	var currentBlock *ir.BasicBlock

	lines := strings.Split(string(source), "\n")
	for lineNo, line := range lines {
		if line == "" {
			continue
		}
		fields := split(line)
		switch fields[0] {
		case recType:
			id, t, err := parseType(fields)
			if err != nil {
				return nil, fmt.Errorf("textir: line %d: %w", lineNo+1, err)
			}
			prog.ImportType(ir.ID(id), t)

		case recConstant:
			id, c, err := parseConstant(fields)
			if err != nil {
				return nil, fmt.Errorf("textir: line %d: %w", lineNo+1, err)
			}
			prog.ImportConstant(ir.ID(id), c)

		case recGlobal:
			if len(fields) != 4 {
				return nil, fmt.Errorf("textir: line %d: malformed global record", lineNo+1)
			}
			prog.ImportGlobal(ir.GlobalVar{
				ID:   ir.ID(parseU32(fields[1])),
				Type: ir.ID(parseU32(fields[2])),
				Name: decodeText(fields[3]),
			})

		case recShaderData:
			if len(fields) != 3 {
				return nil, fmt.Errorf("textir: line %d: malformed shader-data record", lineNo+1)
			}
			prog.ShaderDataMap[parseU32(fields[1])] = ir.ID(parseU32(fields[2]))

		case recFunction:
			if len(fields) != 4 {
				return nil, fmt.Errorf("textir: line %d: malformed function record", lineNo+1)
			}
			currentFn = prog.ImportFunction(ir.ID(parseU32(fields[1])), ir.ID(parseU32(fields[2])))
			currentFn.Flags = ir.FunctionFlag(parseU32(fields[3]))
			currentBlock = nil

		case recParam:
			if currentFn == nil || len(fields) != 3 {
				return nil, fmt.Errorf("textir: line %d: param record outside a function", lineNo+1)
			}
			currentFn.ImportParam(ir.ID(parseU32(fields[1])), ir.ID(parseU32(fields[2])))

		case recBlock:
			if currentFn == nil || len(fields) != 3 {
				return nil, fmt.Errorf("textir: line %d: block record outside a function", lineNo+1)
			}
			currentBlock = currentFn.ImportBlock(ir.ID(parseU32(fields[1])))
			currentBlock.Flags = ir.BlockFlag(parseU32(fields[2]))

		case recInstr:
			if currentBlock == nil {
				return nil, fmt.Errorf("textir: line %d: instruction outside a block", lineNo+1)
			}
			instr, err := parseInstruction(fields)
			if err != nil {
				return nil, fmt.Errorf("textir: line %d: %w", lineNo+1, err)
			}
			if instr.Result.IsValid() {
				prog.ReserveID(instr.Result)
			}
			currentBlock.ImportInstruction(instr)

		case recDebug:
			d, err := parseDebug(fields)
			if err != nil {
				return nil, fmt.Errorf("textir: line %d: %w", lineNo+1, err)
			}
			p.addDebug(d)

		default:
			return nil, fmt.Errorf("textir: line %d: unknown record type %q", lineNo+1, fields[0])
		}
	}

	for _, fn := range prog.Functions() {
		fn.IndexUsers()
	}
	return prog, nil
}

func parseType(fields []string) (uint32, ir.Type, error) {
	if len(fields) != 17 {
		return 0, ir.Type{}, fmt.Errorf("malformed type record (want 17 fields, got %d)", len(fields))
	}
	id := parseU32(fields[1])
	t := ir.Type{
		Kind:        ir.TypeKind(parseInt(fields[2])),
		BitWidth:    parseU32(fields[3]),
		Signed:      parseBool(fields[4]),
		Elem:        ir.ID(parseU32(fields[5])),
		Dim:         parseU32(fields[6]),
		Rows:        parseU32(fields[7]),
		Members:     decodeText(fields[8]),
		Pointee:     ir.ID(parseU32(fields[9])),
		Space:       ir.StorageSpace(parseInt(fields[10])),
		SamplerMode: ir.SamplerMode(parseInt(fields[11])),
		TexelFormat: parseU32(fields[12]),
		TexDim:      ir.TextureDim(parseInt(fields[13])),
		Return:      ir.ID(parseU32(fields[14])),
		Params:      decodeText(fields[15]),
		ForeignTag:  parseU32(fields[16]),
	}
	return id, t, nil
}

func parseConstant(fields []string) (uint32, ir.Constant, error) {
	if len(fields) != 8 {
		return 0, ir.Constant{}, fmt.Errorf("malformed constant record (want 8 fields, got %d)", len(fields))
	}
	id := parseU32(fields[1])
	members := parseIDs(fields[7])
	resolved := make([]ir.ID, len(members))
	for i, m := range members {
		resolved[i] = ir.ID(m)
	}
	c := ir.Constant{
		Type:    ir.ID(parseU32(fields[2])),
		Kind:    ir.ConstantKind(parseInt(fields[3])),
		IntVal:  parseInt(fields[4]),
		FPVal:   parseFloatHex(fields[5]),
		BoolVal: parseBool(fields[6]),
		Members: resolved,
	}
	return id, c, nil
}

func parseInstruction(fields []string) (ir.Instruction, error) {
	if len(fields) != 12 {
		return ir.Instruction{}, fmt.Errorf("malformed instruction record (want 12 fields, got %d)", len(fields))
	}
	operands := parseIDs(fields[4])
	ids := make([]ir.ID, len(operands))
	for i, o := range operands {
		ids[i] = ir.ID(o)
	}
	return ir.Instruction{
		OpCode:   ir.OpCode(parseInt(fields[1])),
		Result:   ir.ID(parseU32(fields[2])),
		Type:     ir.ID(parseU32(fields[3])),
		Operands: ids,
		Source: ir.SourceSpan{
			FileUID:  parseU32(fields[5]),
			Line:     parseU32(fields[6]),
			Column:   parseU32(fields[7]),
			Modified: parseBool(fields[8]),
		},
		SourceFlags:     ir.SourceFlag(parseU32(fields[9])),
		Foreign:         parseU32(fields[10]),
		ForeignOperands: parseIDs(fields[11]),
	}, nil
}

func parseDebug(fields []string) (debugRecord, error) {
	if len(fields) != 8 {
		return debugRecord{}, fmt.Errorf("malformed debug record (want 8 fields, got %d)", len(fields))
	}
	return debugRecord{
		SGUID:   parseU32(fields[1]),
		FileUID: parseU32(fields[2]),
		Line:    parseU32(fields[3]),
		Column:  parseU32(fields[4]),
		Block:   ir.ID(parseU32(fields[5])),
		Index:   parseU32(fields[6]),
		Text:    decodeText(fields[7]),
	}, nil
}
