package compiler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/feature"
	"github.com/gpureshape/gpuvalidate/internal/gpulog"
	"github.com/gpureshape/gpuvalidate/ir"
)

// InstrumentationKey names the (feature mask, resource bindings) a
// compile job specializes a shader against. The cache key is built from
// the mask's featureVersionUID and the source hash only (see CacheKey):
// Bindings are not part of it, so jobs that differ only in Bindings
// share one cache entry.
type InstrumentationKey struct {
	Mask     feature.Bit
	Bindings map[ir.ID]feature.Binding
}

// Job is one shader-compile request.
type Job struct {
	Shader *ShaderState
	Key    InstrumentationKey

	// ExportRing/Allocator/TexelMaskBuffer populate the CompileSpec the
	// instrumented clone runs against. TexelMaskBuffer may be Invalid,
	// in which case run allocates a fresh global for it.
	ExportRing      *export.Ring
	Allocator       feature.TexelBases
	TexelMaskBuffer ir.ID

	result chan jobResult
}

type jobResult struct {
	bytecode []byte
	err      error
}

// NewJob creates a pending Job; call Pool.Submit to enqueue it and
// Job.Wait to block for its result.
func NewJob(shader *ShaderState, key InstrumentationKey, ring *export.Ring, allocator feature.TexelBases) *Job {
	return &Job{
		Shader:     shader,
		Key:        key,
		ExportRing: ring,
		Allocator:  allocator,
		result:     make(chan jobResult, 1),
	}
}

// Wait blocks for the job's compiled bytecode. Safe to call once; the
// result channel is buffered so a worker never blocks on a caller that
// never waits.
func (j *Job) Wait() ([]byte, error) {
	r := <-j.result
	return r.bytecode, r.err
}

// Diagnostic accumulates the compiler's own failure counters (spec §7
// "diagnostic.failedJobs").
type Diagnostic struct {
	failedJobs uint64
}

// FailedJobs returns the running total of jobs that failed to parse or
// instrument.
func (d *Diagnostic) FailedJobs() uint64 { return atomic.LoadUint64(&d.failedJobs) }

func (d *Diagnostic) recordFailure() { atomic.AddUint64(&d.failedJobs, 1) }

// Pool is the C7 worker-pool shader compiler: a fixed set of
// goroutines consuming a condition-variable-signalled queue, gated by
// a semaphore for bounded admission into the actual pipeline work
// (spec §4.7, §5.1 "bounded admission via x/sync/semaphore.Weighted").
type Pool struct {
	provider IRProvider
	registry *feature.Registry
	cache    *Cache
	logger   gpulog.Logger

	admission *semaphore.Weighted

	mu    sync.Mutex
	cond  *sync.Cond
	queue []*Job
	exit  bool

	// commitIndex advances once per Submit (the "push" counter);
	// completeCounter advances once per finished job, strictly after
	// that job's cache entry is visible, forming the publication
	// barrier a report's wait-for-compilation relies on (spec §9
	// "happens-before via CompleteCounter increment").
	commitIndex     uint64
	completeCounter uint64

	// completionLock is acquired and released immediately before the
	// atomic increment of completeCounter, per gapid's
	// ShaderCompiler::JobCompletionStepLock pattern: the lock itself
	// carries no state, its acquire/release pair is what establishes
	// the happens-before edge between a job's writes (cache insert,
	// native module creation) and any goroutine that later observes
	// the bumped counter without holding this lock.
	completionLock sync.Mutex

	diagnostic Diagnostic
}

// NewPool creates a Pool with workerCount goroutines, admitting at
// most workerCount pipeline runs concurrently
// (shaderCompilerWorkerCount, spec §6 configuration).
func NewPool(workerCount int, provider IRProvider, registry *feature.Registry, cache *Cache, logger gpulog.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	p := &Pool{
		provider:  provider,
		registry:  registry,
		cache:     cache,
		logger:    logger,
		admission: semaphore.NewWeighted(int64(workerCount)),
	}
	p.cond = sync.NewCond(&p.mu)
	for i := 0; i < workerCount; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues job and returns the commit index a report's
// CommitSource should wait on.
func (p *Pool) Submit(job *Job) uint64 {
	p.mu.Lock()
	p.commitIndex++
	commit := p.commitIndex
	p.queue = append(p.queue, job)
	p.mu.Unlock()
	p.cond.Signal()
	return commit
}

// Stop poisons the queue; each worker drains whatever is already
// queued, then exits. Stop returns right after signalling the workers;
// it does not wait for them to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.exit = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

// CommitIndex returns the number of jobs pushed so far.
func (p *Pool) CommitIndex() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.commitIndex
}

// CompleteCounter returns the number of jobs that have finished so
// far. Monotonic and non-decreasing for the Pool's lifetime (testable
// property: CompleteCounter never regresses).
func (p *Pool) CompleteCounter() uint64 {
	return atomic.LoadUint64(&p.completeCounter)
}

// IsCommitPushed reports whether the job assigned commit has finished
// compiling.
func (p *Pool) IsCommitPushed(commit uint64) bool {
	return p.CompleteCounter() >= commit
}

// FailedJobs returns the running total of failed compile jobs.
func (p *Pool) FailedJobs() uint64 { return p.diagnostic.FailedJobs() }

func (p *Pool) worker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.exit {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.exit {
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		if err := p.admission.Acquire(context.Background(), 1); err != nil {
			job.result <- jobResult{err: err}
			continue
		}
		bytecode, err := p.run(job)
		p.admission.Release(1)

		if err != nil {
			p.diagnostic.recordFailure()
			p.logger.Logf(gpulog.Error, "instrumentation failed: %v", err)
		}

		// Publication barrier: every write run performed (cache
		// insert) happened before this lock/unlock pair, which
		// happened before the atomic increment below, so any goroutine
		// that later observes the bumped counter (even via a plain
		// atomic load, not this same mutex) also observes those writes.
		p.completionLock.Lock()
		atomic.AddUint64(&p.completeCounter, 1)
		p.completionLock.Unlock()

		job.result <- jobResult{bytecode: bytecode, err: err}
	}
}

// run executes one job's pipeline (spec §4.7 "Per-job pipeline"):
// parse-once, clone, attach shader data, run PreInject/Inject in
// dependency order, emit, cache.
func (p *Pool) run(job *Job) ([]byte, error) {
	parsed, err := job.Shader.Parsed(p.provider)
	if err != nil {
		return nil, err
	}

	features, err := p.registry.Active(job.Key.Mask)
	if err != nil {
		return nil, errors.Wrap(ErrInstrumentFailed, err.Error())
	}

	infos := make([]feature.Info, len(features))
	for i, f := range features {
		infos[i] = f.GetInfo()
	}
	key := CacheKey{
		FeatureVersionUID: FeatureVersionUID(infos),
		SourceHash:        SourceHash(job.Shader.Source),
	}
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	cloned := parsed.Clone()
	u32 := cloned.Types.Intern(ir.Type{Kind: ir.TypeInt, BitWidth: 32, Signed: false})
	boolTy := cloned.Types.Intern(ir.Type{Kind: ir.TypeBool})

	texelMaskBuffer := job.TexelMaskBuffer
	if !texelMaskBuffer.IsValid() {
		texelMaskBuffer = cloned.AddGlobal(u32, "texelMask").ID
	}

	spec := &feature.CompileSpec{
		Program:         cloned,
		U32Type:         u32,
		BoolType:        boolTy,
		Bindings:        job.Key.Bindings,
		ShaderData:      make(map[string]feature.ShaderDataLayout),
		ExportRing:      job.ExportRing,
		Allocator:       job.Allocator,
		TexelMaskBuffer: texelMaskBuffer,
	}

	for _, f := range features {
		if err := f.PreInject(spec); err != nil {
			return nil, errors.Wrapf(ErrInstrumentFailed, "PreInject[%s]: %v", f.GetInfo().Name, err)
		}
	}
	for _, f := range features {
		if err := f.Inject(spec); err != nil {
			return nil, errors.Wrapf(ErrInstrumentFailed, "Inject[%s]: %v", f.GetInfo().Name, err)
		}
	}

	bytecode, err := p.provider.Stitch(cloned)
	if err != nil {
		return nil, errors.Wrapf(ErrInstrumentFailed, "stitch: %v", err)
	}

	p.cache.Put(key, bytecode)
	return bytecode, nil
}
