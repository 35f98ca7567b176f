package feature_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/analysis"
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/feature"
	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/resource"
)

// newTestProgram builds a single-function program with an empty entry
// block the caller fills in, plus the two scalar types every feature
// pass needs.
func newTestProgram(t *testing.T) (*ir.Program, *ir.Function, *ir.BasicBlock, ir.ID, ir.ID) {
	t.Helper()
	p := ir.NewProgram()
	u32 := p.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: false})
	boolTy := p.Types.Intern(ir.Type{Kind: ir.TypeBool})
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)
	f.Flags |= ir.FunctionEntryPoint
	b := f.AppendBlock()
	return p, f, b, u32, boolTy
}

// runAll runs every feature in fs through PreInject then Inject, in the
// order a real compile job would (spec §4.5 "Pass ordering rule").
func runAll(t *testing.T, spec *feature.CompileSpec, fs []feature.Feature) {
	t.Helper()
	for _, ft := range fs {
		require.NoError(t, ft.PreInject(spec))
	}
	for _, ft := range fs {
		require.NoError(t, ft.Inject(spec))
	}
}

func TestResourceBoundsExportsOutOfBoundsMessage(t *testing.T) {
	p, f, b, u32, boolTy := newTestProgram(t)

	token := resource.Token{Type: resource.KindBuffer, PUID: 5}
	tokenConst := p.Constants.Intern(ir.Constant{Type: u32, Kind: ir.ConstInt, IntVal: int64(token.Pack())})
	xConst := p.Constants.Intern(ir.Constant{Type: u32, Kind: ir.ConstInt, IntVal: 10}) // out of [0,3]

	loadResult := p.AllocID()
	b.Append(ir.Instruction{OpCode: ir.OpLoadBuffer, Result: loadResult, Type: u32, Operands: []ir.ID{tokenConst, xConst}})
	b.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()

	dims := resource.DimensionSummary{ViewBaseWidth: 4, FormatSize: 4, ViewFormatSize: 4}
	spec := &feature.CompileSpec{
		Program:  p,
		U32Type:  u32,
		BoolType: boolTy,
		Bindings: map[ir.ID]feature.Binding{
			tokenConst: {ExpectedKind: resource.KindBuffer, Dimensions: dims, PUID: token.PUID},
		},
	}

	r := feature.NewRegistry()
	feature.RegisterDefaults(r, 0)
	fs, err := r.Active(feature.BitResourceAddressBounds)
	require.NoError(t, err)
	runAll(t, spec, fs)

	ring := export.NewRing(16)
	sim := analysis.NewSimulator(p)
	_, err = sim.Run(p.EntryPoint(), &analysis.Environment{Ring: ring})
	require.NoError(t, err)

	pump := export.NewPump(ring)
	var messages []export.Message
	for i := 0; i < 64; i++ {
		pump.Register(export.ExportID(i), export.ListenerFunc(func(m export.Message) {
			messages = append(messages, m)
		}))
	}
	pump.Drain()

	require.Len(t, messages, 1)
	assert.Equal(t, export.SchemaResourceIndexOutOfBounds, messages[0].Schema)
}

func TestDescriptorMismatchExportsOnWrongKind(t *testing.T) {
	p, f, b, u32, boolTy := newTestProgram(t)

	wrongToken := resource.Token{Type: resource.KindTexture, PUID: 9}
	tokenOperand := p.Constants.Intern(ir.Constant{Type: u32, Kind: ir.ConstInt, IntVal: int64(wrongToken.Pack())})

	tokenResult := p.AllocID()
	b.Append(ir.Instruction{OpCode: ir.OpResourceToken, Result: tokenResult, Type: u32, Operands: []ir.ID{tokenOperand}})
	b.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()

	spec := &feature.CompileSpec{
		Program:  p,
		U32Type:  u32,
		BoolType: boolTy,
		Bindings: map[ir.ID]feature.Binding{
			tokenResult: {ExpectedKind: resource.KindBuffer}, // declared buffer, bound texture
		},
	}

	r := feature.NewRegistry()
	feature.RegisterDefaults(r, 0)
	fs, err := r.Active(feature.BitDescriptorArrayBounds)
	require.NoError(t, err)
	runAll(t, spec, fs)

	ring := export.NewRing(16)
	sim := analysis.NewSimulator(p)
	_, err = sim.Run(p.EntryPoint(), &analysis.Environment{Ring: ring})
	require.NoError(t, err)

	pump := export.NewPump(ring)
	var messages []export.Message
	for i := 0; i < 64; i++ {
		pump.Register(export.ExportID(i), export.ListenerFunc(func(m export.Message) {
			messages = append(messages, m)
		}))
	}
	pump.Drain()

	require.Len(t, messages, 1)
	assert.Equal(t, export.SchemaDescriptorMismatch, messages[0].Schema)
}

func TestWaterfallReportsDivergentIndex(t *testing.T) {
	p, f, b, u32, boolTy := newTestProgram(t)

	token := resource.Token{Type: resource.KindBuffer, PUID: 1}
	tokenConst := p.Constants.Intern(ir.Constant{Type: u32, Kind: ir.ConstInt, IntVal: int64(token.Pack())})

	tid := p.AllocID()
	b.Append(ir.Instruction{OpCode: ir.OpDispatchThreadID, Result: tid, Type: u32})
	loadResult := p.AllocID()
	b.Append(ir.Instruction{OpCode: ir.OpLoadBuffer, Result: loadResult, Type: u32, Operands: []ir.ID{tokenConst, tid}})
	b.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()

	dims := resource.DimensionSummary{ViewBaseWidth: 1024, FormatSize: 4, ViewFormatSize: 4}
	spec := &feature.CompileSpec{
		Program:  p,
		U32Type:  u32,
		BoolType: boolTy,
		Bindings: map[ir.ID]feature.Binding{
			tokenConst: {ExpectedKind: resource.KindBuffer, Dimensions: dims, PUID: token.PUID},
		},
	}

	r := feature.NewRegistry()
	feature.RegisterDefaults(r, 0)
	fs, err := r.Active(feature.BitResourceAddressBounds)
	require.NoError(t, err)
	runAll(t, spec, fs)

	ring := export.NewRing(16)
	sim := analysis.NewSimulator(p)
	_, err = sim.Run(p.EntryPoint(), &analysis.Environment{Ring: ring, ThreadID: [3]int64{7, 0, 0}})
	require.NoError(t, err)

	pump := export.NewPump(ring)
	var schemas []export.SchemaID
	for i := 0; i < 64; i++ {
		pump.Register(export.ExportID(i), export.ListenerFunc(func(m export.Message) {
			schemas = append(schemas, m.Schema)
		}))
	}
	pump.Drain()

	assert.Contains(t, schemas, export.SchemaWaterfallingCondition)
}
