package textir_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/irprovider/textir"
)

// buildFixture creates a tiny one-function program: u32 type, a
// constant zero, one global, and a function that loads the global and
// returns it.
func buildFixture() *ir.Program {
	p := ir.NewProgram()
	u32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32})
	p.Constants.Intern(ir.Constant{Type: u32, Kind: ir.ConstInt, IntVal: 0})
	global := p.AddGlobal(u32, "counter")

	sig := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: u32})
	fn := p.NewFunction(sig)
	blk := fn.AppendBlock()
	loaded := p.AllocID()
	blk.Append(ir.Instruction{OpCode: ir.OpLoad, Result: loaded, Type: u32, Operands: []ir.ID{global.ID}})
	blk.Append(ir.Instruction{OpCode: ir.OpReturn, Operands: []ir.ID{loaded}})
	fn.IndexUsers()
	return p
}

func TestParseStitchRoundTripIsByteIdentical(t *testing.T) {
	provider := textir.New()
	prog := buildFixture()

	s1, err := provider.Stitch(prog)
	require.NoError(t, err)

	p2, err := provider.Parse(s1)
	require.NoError(t, err)

	provider2 := textir.New()
	s2, err := provider2.Stitch(p2)
	require.NoError(t, err)

	assert.Equal(t, string(s1), string(s2))
}

func TestParsePreservesOperandReferences(t *testing.T) {
	provider := textir.New()
	prog := buildFixture()
	s, err := provider.Stitch(prog)
	require.NoError(t, err)

	p2, err := provider.Parse(s)
	require.NoError(t, err)

	fns := p2.Functions()
	require.Len(t, fns, 1)
	blocks := fns[0].Blocks()
	require.Len(t, blocks, 1)
	require.Len(t, blocks[0].Instructions, 2)

	load := blocks[0].Instructions[0]
	ret := blocks[0].Instructions[1]
	assert.Equal(t, load.Result, ret.Operands[0])
}

func TestParseRejectsUnknownRecordType(t *testing.T) {
	provider := textir.New()
	_, err := provider.Parse([]byte("Z|garbage\n"))
	assert.Error(t, err)
}

func TestResolveFindsSymbolAfterParse(t *testing.T) {
	provider := textir.New()
	prog := buildFixture()
	s, err := provider.Stitch(prog)
	require.NoError(t, err)
	s = append(s, []byte("D|7|1|42|3|0|0|"+base64.StdEncoding.EncodeToString([]byte("counter += 1"))+"\n")...)

	_, err = provider.Parse(s)
	require.NoError(t, err)

	mapping, ok := provider.Resolve(7)
	require.True(t, ok)
	assert.Equal(t, 42, mapping.Line)
}
