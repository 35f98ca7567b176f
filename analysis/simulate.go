package analysis

import (
	"github.com/pkg/errors"

	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/resource"
)

// Buffer is a simulated GPU buffer of signed integer elements, used by
// the Simulator's LoadBuffer/StoreBuffer opcodes. It is intentionally
// tiny: the simulation framework exists to make the testable
// properties in spec §8 and its concrete scenarios executable against
// real generated IR, not to emulate an actual device.
type Buffer struct {
	Elements []int64
}

// Environment supplies a simulated dispatch's inputs: the current
// thread's DispatchThreadID and the buffers its resource bindings
// resolve to.
type Environment struct {
	ThreadID [3]int64
	Buffers  map[ir.ID]*Buffer // keyed by the Load/StoreBuffer instruction's resource operand

	// Ring, if set, receives every OpExportMessage a feature pass
	// emitted into the program the simulator runs: on real hardware
	// that instruction's effect is the atomic-increment/clamp/store
	// sequence spec §4.5/§4.6 describes against the physical ring
	// buffer; here the simulator plays the role of that hardware so the
	// concrete scenarios in spec §8 are exercisable end to end.
	Ring *export.Ring
}

// ErrUnsupportedOpcode is returned when the simulator encounters an
// opcode it does not model.
var ErrUnsupportedOpcode = errors.New("simulate: unsupported opcode")

// Simulator executes a single-function program's straight-line and
// branching control flow against concrete inputs (spec §4.2
// "simulation framework"). It has no call-stack: Non-goals (§1) rule
// out symbolic execution, and nothing in this spec needs interprocedural
// simulation beyond what InterproceduralSimulationAnalysis already does
// with the propagators.
type Simulator struct {
	Program *ir.Program

	// maxSteps bounds execution to guard against an instrumented
	// program containing a pass-introduced infinite loop bug; a
	// well-formed shader never needs more than a few thousand steps for
	// test-sized programs.
	maxSteps int
}

// NewSimulator creates a Simulator with a generous default step bound.
func NewSimulator(p *ir.Program) *Simulator {
	return &Simulator{Program: p, maxSteps: 100000}
}

// Run executes f from its entry block under env, returning the final
// SSA value environment (so callers can inspect results) or an error
// if execution exceeded maxSteps or hit an unsupported opcode.
func (s *Simulator) Run(f *ir.Function, env *Environment) (map[ir.ID]int64, error) {
	values := make(map[ir.ID]int64)
	block := f.Entry()
	var prevBlock ir.ID
	steps := 0
	for block != nil {
		var phiResults map[ir.ID]int64
		for _, instr := range block.Instructions {
			if instr.OpCode == ir.OpPhi {
				if phiResults == nil {
					phiResults = make(map[ir.ID]int64)
				}
				for i := 0; i+1 < len(instr.Operands); i += 2 {
					if instr.Operands[i+1] == prevBlock {
						phiResults[instr.Result] = values[instr.Operands[i]]
					}
				}
				continue
			}
			steps++
			if steps > s.maxSteps {
				return values, errors.New("simulate: step budget exceeded")
			}
			next, term, err := s.eval(&instr, values, env)
			if err != nil {
				return values, err
			}
			if instr.HasResult() {
				values[instr.Result] = next
			}
			if term != nil {
				prevBlock = block.ID
				block = f.Block(*term)
				goto nextBlock
			}
		}
		return values, nil
	nextBlock:
		for k, v := range phiResults {
			values[k] = v
		}
	}
	return values, nil
}

// eval executes one non-phi instruction, returning its result (if any)
// and the block ID to branch to (if it was a terminator).
func (s *Simulator) eval(instr *ir.Instruction, values map[ir.ID]int64, env *Environment) (int64, *ir.ID, error) {
	get := func(i int) int64 { return s.operandValue(instr.Operands[i], values) }

	switch instr.OpCode {
	case ir.OpAdd:
		return get(0) + get(1), nil, nil
	case ir.OpSub:
		return get(0) - get(1), nil, nil
	case ir.OpMul:
		return get(0) * get(1), nil, nil
	case ir.OpDiv:
		if get(1) == 0 {
			return 0, nil, errors.New("simulate: division by zero")
		}
		return get(0) / get(1), nil, nil
	case ir.OpMod:
		if get(1) == 0 {
			return 0, nil, errors.New("simulate: division by zero")
		}
		return get(0) % get(1), nil, nil
	case ir.OpShiftRight:
		return get(0) >> uint64(get(1)), nil, nil
	case ir.OpNeg:
		return -get(0), nil, nil
	case ir.OpEqual:
		return boolInt(get(0) == get(1)), nil, nil
	case ir.OpNotEqual:
		return boolInt(get(0) != get(1)), nil, nil
	case ir.OpLess:
		return boolInt(get(0) < get(1)), nil, nil
	case ir.OpLessEqual:
		return boolInt(get(0) <= get(1)), nil, nil
	case ir.OpGreater:
		return boolInt(get(0) > get(1)), nil, nil
	case ir.OpGreaterEqual:
		return boolInt(get(0) >= get(1)), nil, nil
	case ir.OpLogicalAnd:
		return boolInt(get(0) != 0 && get(1) != 0), nil, nil
	case ir.OpLogicalOr:
		return boolInt(get(0) != 0 || get(1) != 0), nil, nil
	case ir.OpLogicalNot:
		return boolInt(get(0) == 0), nil, nil
	case ir.OpSelect:
		if get(0) != 0 {
			return get(1), nil, nil
		}
		return get(2), nil, nil
	case ir.OpDispatchThreadID:
		return env.ThreadID[0], nil, nil
	case ir.OpLoadBuffer:
		buf := env.Buffers[instr.Operands[0]]
		idx := get(1)
		if buf == nil || idx < 0 || int(idx) >= len(buf.Elements) {
			return 0, nil, nil
		}
		return buf.Elements[idx], nil, nil
	case ir.OpStoreBuffer:
		buf := env.Buffers[instr.Operands[0]]
		idx := get(1)
		val := get(2)
		if buf != nil && idx >= 0 && int(idx) < len(buf.Elements) {
			buf.Elements[idx] = val
		}
		return 0, nil, nil
	case ir.OpBranch:
		t := instr.Operands[0]
		return 0, &t, nil
	case ir.OpBranchConditional:
		var t ir.ID
		if get(0) != 0 {
			t = instr.Operands[1]
		} else {
			t = instr.Operands[2]
		}
		return 0, &t, nil
	case ir.OpReturn:
		return 0, nil, nil
	case ir.OpNop:
		return 0, nil, nil
	case ir.OpResourceToken:
		// A real device resolves this against the bound descriptor
		// table; the simulator has no such table to consult, so it
		// treats the token as already resolved to its first operand
		// (how feature.CompileSpec's test fixtures and the textual IR
		// provider both represent a statically known binding).
		return get(0), nil, nil
	case ir.OpExportMessage:
		if env.Ring != nil {
			kind, puid := resource.Unpack(uint32(get(3)))
			env.Ring.Append(export.Message{
				ExportID: export.ExportID(get(0)),
				Schema:   export.SchemaID(get(1)),
				SGUID:    uint32(get(2)),
				Token:    resource.Token{Type: kind, PUID: puid},
				Coordinate: export.Coordinate{
					X:   uint32(get(4)),
					Y:   uint32(get(5)),
					Z:   uint32(get(6)),
					Mip: uint32(get(7)),
				},
			})
		}
		return 0, nil, nil
	default:
		return 0, nil, errors.Wrapf(ErrUnsupportedOpcode, "opcode %d", instr.OpCode)
	}
}

func (s *Simulator) operandValue(id ir.ID, values map[ir.ID]int64) int64 {
	if v, ok := values[id]; ok {
		return v
	}
	if c, ok := s.Program.Constants.Lookup(id); ok {
		switch c.Kind {
		case ir.ConstInt:
			return c.IntVal
		case ir.ConstBool:
			return boolInt(c.BoolVal)
		}
	}
	return 0
}
