package compiler_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gpureshape/gpuvalidate/compiler"
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/feature"
	"github.com/gpureshape/gpuvalidate/internal/gpulog"
	"github.com/gpureshape/gpuvalidate/ir"
)

// identityProvider is a minimal compiler.IRProvider fixture: Parse
// builds a trivial one-function program from the source bytes' length
// (so distinct sources produce distinct cache keys), Stitch re-emits
// the byte count as a 4-byte big-endian marker. It exists purely to
// exercise Pool's pipeline without depending on irprovider/textir.
type identityProvider struct{}

func (identityProvider) Parse(source []byte) (*ir.Program, error) {
	p := ir.NewProgram()
	voidTy := p.Types.Intern(ir.Type{Kind: ir.TypeVoid})
	fnTy := p.Types.Intern(ir.Type{Kind: ir.TypeFunction, Return: voidTy})
	f := p.NewFunction(fnTy)
	f.Flags |= ir.FunctionEntryPoint
	b := f.AppendBlock()
	b.Append(ir.Instruction{OpCode: ir.OpReturn})
	f.IndexUsers()
	return p, nil
}

func (identityProvider) Stitch(p *ir.Program) ([]byte, error) {
	n := 0
	for _, f := range p.Functions() {
		for _, b := range f.Blocks() {
			n += len(b.Instructions)
		}
	}
	return []byte{byte(n)}, nil
}

func newTestPool(t *testing.T) *compiler.Pool {
	t.Helper()
	registry := feature.NewRegistry()
	feature.RegisterDefaults(registry, 0)
	return compiler.NewPool(2, identityProvider{}, registry, compiler.NewCache(), gpulog.Default)
}

func TestCompleteCounterMonotonic(t *testing.T) {
	pool := newTestPool(t)
	defer pool.Stop()

	ring := export.NewRing(16)
	var commits []uint64
	for i := 0; i < 8; i++ {
		shader := compiler.NewShaderState([]byte{byte(i)})
		job := compiler.NewJob(shader, compiler.InstrumentationKey{Mask: feature.BitResourceAddressBounds}, ring, nil)
		commits = append(commits, pool.Submit(job))
		_, err := job.Wait()
		require.NoError(t, err)
	}

	var prev uint64
	for range commits {
		cur := pool.CompleteCounter()
		assert.GreaterOrEqual(t, cur, prev)
		prev = cur
	}
	assert.Equal(t, uint64(8), pool.CompleteCounter())
}

func TestIsCommitPushedReflectsCompletion(t *testing.T) {
	pool := newTestPool(t)
	defer pool.Stop()

	ring := export.NewRing(16)
	shader := compiler.NewShaderState([]byte("shader-a"))
	job := compiler.NewJob(shader, compiler.InstrumentationKey{Mask: feature.BitResourceAddressBounds}, ring, nil)
	commit := pool.Submit(job)

	_, err := job.Wait()
	require.NoError(t, err)

	assert.True(t, pool.IsCommitPushed(commit))
	assert.False(t, pool.IsCommitPushed(commit+1))
}

func TestCacheHitAvoidsReparse(t *testing.T) {
	pool := newTestPool(t)
	defer pool.Stop()

	ring := export.NewRing(16)
	shader := compiler.NewShaderState([]byte("same-bytes"))
	key := compiler.InstrumentationKey{Mask: feature.BitResourceAddressBounds}

	job1 := compiler.NewJob(shader, key, ring, nil)
	pool.Submit(job1)
	b1, err := job1.Wait()
	require.NoError(t, err)

	job2 := compiler.NewJob(shader, key, ring, nil)
	pool.Submit(job2)
	b2, err := job2.Wait()
	require.NoError(t, err)

	assert.Equal(t, b1, b2)
}

func TestParseFailurePreservesFailedJobsCounter(t *testing.T) {
	registry := feature.NewRegistry()
	feature.RegisterDefaults(registry, 0)
	pool := compiler.NewPool(1, failingProvider{}, registry, compiler.NewCache(), gpulog.Default)
	defer pool.Stop()

	ring := export.NewRing(16)
	shader := compiler.NewShaderState([]byte("bad"))
	job := compiler.NewJob(shader, compiler.InstrumentationKey{Mask: feature.BitResourceAddressBounds}, ring, nil)
	pool.Submit(job)
	_, err := job.Wait()
	require.Error(t, err)

	// Give the completion-counter publication a moment in case this
	// ever runs against a provider with genuine async latency.
	time.Sleep(time.Millisecond)
	assert.Equal(t, uint64(1), pool.FailedJobs())
}

type failingProvider struct{}

func (failingProvider) Parse(source []byte) (*ir.Program, error) {
	return nil, assertError{}
}
func (failingProvider) Stitch(p *ir.Program) ([]byte, error) { return nil, nil }

type assertError struct{}

func (assertError) Error() string { return "parse exploded" }
