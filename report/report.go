// Package report implements the report/diagnostic registry (C9): the
// stable host API surface (spec §6) and the
// Idle->Compiling->Recording lifecycle state machine that gates it.
package report

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/feature"
)

// State is one point in a Report's lifecycle (spec §4.9).
type State int

const (
	Idle State = iota
	Compiling
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Compiling:
		return "compiling"
	case Recording:
		return "recording"
	default:
		return "state(?)"
	}
}

// CommitSource is the narrow surface Report needs from a compile/
// submission pool to know whether the work it snapshotted at Begin
// has finished: compiler.Pool satisfies this without report needing
// to import it directly.
type CommitSource interface {
	CommitIndex() uint64
	CompleteCounter() uint64
}

type noopCommitSource struct{}

func (noopCommitSource) CommitIndex() uint64     { return 0 }
func (noopCommitSource) CompleteCounter() uint64 { return 0 }

// NoopCommitSource is the zero-work CommitSource: both counters start
// (and stay) at zero, so a caller with no separate pipeline compiler
// to wait on is trivially "caught up".
var NoopCommitSource CommitSource = noopCommitSource{}

func isPushed(src CommitSource, commit uint64) bool { return src.CompleteCounter() >= commit }

func pendingCount(src CommitSource, commit uint64) int {
	c := src.CompleteCounter()
	if c >= commit {
		return 0
	}
	return int(commit - c)
}

// CreateInfo configures a Report at creation time (spec §6 "CreateReport").
type CreateInfo struct {
	UserData interface{}

	CommandBufferMessageLimit uint32
	ChunkedWorkingSetBytes    uint32

	ShaderCompilerWorkerCount   int
	PipelineCompilerWorkerCount int
}

// BeginInfo configures one BeginReport call (spec §6 "BeginReport").
type BeginInfo struct {
	Features           feature.Bit
	WaitForCompilation bool
	Filter             func(export.Message) bool
}

// Report is the C9 diagnostic registry: a lifecycle state machine plus
// the filtered, symbolicated message store every host API call reads
// from or mutates.
type Report struct {
	mu sync.Mutex

	GUID uuid.UUID
	info CreateInfo

	state    State
	features feature.Bit

	shaderCommit     uint64
	pipelineCommit   uint64
	shaderCompiler   CommitSource
	pipelineCompiler CommitSource

	pump     *export.Pump
	sym      Symbolicator
	filterFn func(export.Message) bool

	beginTime time.Time

	filtered         map[export.FingerPrint]export.Message
	latentOvershoots uint64
	exportedBytes    uint64
}

// CreateReport creates an Idle report (spec §6 "CreateReport").
func CreateReport(info CreateInfo) *Report {
	return &Report{
		GUID:     uuid.New(),
		info:     info,
		state:    Idle,
		filtered: make(map[export.FingerPrint]export.Message),
	}
}

// GetReportInfo returns the CreateInfo this report was opened with.
func (r *Report) GetReportInfo() CreateInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info
}

// Subscribe binds the report as pump's listener for id, so messages
// exported under it flow into the report's filtered store. Call once
// per ExportID a feature was installed with (spec §4.5 Install, §4.6
// CollectExports dispatch).
func (r *Report) Subscribe(pump *export.Pump, id export.ExportID) {
	pump.Register(id, r)
}

// CollectExports implements export.Listener: while recording, it
// applies the report's filter predicate, then stores the message keyed
// by fingerprint (spec §6 "filteredMessages"). Symbolication happens
// later, when PrintReport or ExportReport writes the message out.
func (r *Report) CollectExports(msg export.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Recording {
		return
	}
	if r.filterFn != nil && !r.filterFn(msg) {
		return
	}
	r.filtered[msg.Fingerprint()] = msg
}

// BeginReport transitions Idle->Compiling, snapshotting the compile
// commits pending work must reach, then (optionally blocking until
// both are pushed) Compiling->Recording (spec §4.9, §6 "BeginReport").
func (r *Report) BeginReport(pump *export.Pump, sym Symbolicator, shaderCompiler, pipelineCompiler CommitSource, info BeginInfo) {
	if shaderCompiler == nil {
		shaderCompiler = NoopCommitSource
	}
	if pipelineCompiler == nil {
		pipelineCompiler = NoopCommitSource
	}

	r.mu.Lock()
	r.pump = pump
	r.sym = sym
	r.filterFn = info.Filter
	r.features = info.Features
	r.shaderCompiler = shaderCompiler
	r.pipelineCompiler = pipelineCompiler
	r.shaderCommit = shaderCompiler.CommitIndex()
	r.pipelineCommit = pipelineCompiler.CommitIndex()
	r.state = Compiling
	r.mu.Unlock()

	if info.WaitForCompilation {
		for {
			r.mu.Lock()
			done := isPushed(r.shaderCompiler, r.shaderCommit) && isPushed(r.pipelineCompiler, r.pipelineCommit)
			r.mu.Unlock()
			if done {
				break
			}
			time.Sleep(time.Millisecond)
		}
	}

	r.mu.Lock()
	if isPushed(r.shaderCompiler, r.shaderCommit) && isPushed(r.pipelineCompiler, r.pipelineCommit) {
		r.state = Recording
		r.beginTime = time.Now()
	}
	r.mu.Unlock()
}

// Status is GetReportStatus's return value.
type Status struct {
	State                      State
	PendingShaderCompilation   int
	PendingPipelineCompilation int
	Elapsed                    time.Duration
	FilteredMessages           int
	LatentOvershoots           uint64
	ExportedBytes              uint64
}

// GetReportStatus reports the report's current lifecycle position
// (spec §6 "GetReportStatus"): Idle, a pending-compilation count, or a
// live recording snapshot.
func (r *Report) GetReportStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Idle:
		return Status{State: Idle}
	case Compiling:
		if !isPushed(r.shaderCompiler, r.shaderCommit) {
			return Status{State: Compiling, PendingShaderCompilation: pendingCount(r.shaderCompiler, r.shaderCommit)}
		}
		if !isPushed(r.pipelineCompiler, r.pipelineCommit) {
			return Status{State: Compiling, PendingPipelineCompilation: pendingCount(r.pipelineCompiler, r.pipelineCommit)}
		}
		// Both commits landed after a BeginReport that did not wait (or
		// has not yet noticed): nothing is pending, so recording starts
		// now.
		r.state = Recording
		r.beginTime = time.Now()
		fallthrough
	default:
		return Status{
			State:            Recording,
			Elapsed:          time.Since(r.beginTime),
			FilteredMessages: len(r.filtered),
			LatentOvershoots: r.latentOvershoots,
			ExportedBytes:    r.exportedBytes,
		}
	}
}

// FlushReport drains the pump, merging newly decoded messages into the
// filtered store without ending the recording (spec §6 "FlushReport").
func (r *Report) FlushReport() {
	r.mu.Lock()
	pump := r.pump
	recording := r.state == Recording
	r.mu.Unlock()
	if pump == nil || !recording {
		return
	}
	stats := pump.Drain()
	r.mu.Lock()
	r.latentOvershoots += uint64(stats.LatentOvershoot)
	r.mu.Unlock()
}

// Summary is EndReport's return value.
type Summary struct {
	FilteredMessages int
	LatentOvershoots uint64
	ExportedBytes    uint64
	Elapsed          time.Duration
}

// EndReport drains any remaining messages, transitions back to Idle,
// and returns a summary of the recording (spec §6 "EndReport").
func (r *Report) EndReport() Summary {
	r.FlushReport()

	r.mu.Lock()
	defer r.mu.Unlock()
	summary := Summary{
		FilteredMessages: len(r.filtered),
		LatentOvershoots: r.latentOvershoots,
		ExportedBytes:    r.exportedBytes,
		Elapsed:          time.Since(r.beginTime),
	}
	r.state = Idle
	return summary
}
