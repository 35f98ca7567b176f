// Package device wires one validated GPU device's worth of services
// together: the feature registry first, then the C7 compile cache and
// pool and the C8 scheduler, then the texel allocator and the export
// ring with its pump. Teardown only stops the compile pool.
package device

import (
	"github.com/gpureshape/gpuvalidate/compiler"
	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/feature"
	"github.com/gpureshape/gpuvalidate/internal/gpulog"
	"github.com/gpureshape/gpuvalidate/scheduler"
	"github.com/gpureshape/gpuvalidate/texel"
)

// Config configures a Device at construction time.
type Config struct {
	ShaderCompilerWorkerCount   int
	PipelineCompilerWorkerCount int
	TexelMaskBufferWords        uint32
	ExportRingCapacity          uint32
	Logger                      gpulog.Logger
}

// Device owns one GPU's worth of validation-layer services: the C7
// compile pool, C8 scheduler, the shared texel allocator and export
// ring, and the feature registry they all run against.
type Device struct {
	Registry  *feature.Registry
	Cache     *compiler.Cache
	Pool      *compiler.Pool
	Scheduler *scheduler.Scheduler
	Allocator *texel.Allocator
	Ring      *export.Ring
	Pump      *export.Pump
}

// New brings up a Device: registry install, then cache/pool/scheduler,
// then allocator and ring/pump, in that order.
func New(cfg Config, provider compiler.IRProvider) *Device {
	if cfg.ShaderCompilerWorkerCount < 1 {
		cfg.ShaderCompilerWorkerCount = 1
	}
	if cfg.PipelineCompilerWorkerCount < 1 {
		cfg.PipelineCompilerWorkerCount = 1
	}
	if cfg.ExportRingCapacity == 0 {
		cfg.ExportRingCapacity = 256
	}

	registry := feature.NewRegistry()
	feature.RegisterDefaults(registry, 1)

	cache := compiler.NewCache()
	pool := compiler.NewPool(cfg.ShaderCompilerWorkerCount, provider, registry, cache, cfg.Logger)
	sched := scheduler.NewScheduler(cfg.PipelineCompilerWorkerCount)
	allocator := texel.NewAllocator(cfg.TexelMaskBufferWords)

	ring := export.NewRing(cfg.ExportRingCapacity)
	pump := export.NewPump(ring)

	return &Device{
		Registry:  registry,
		Cache:     cache,
		Pool:      pool,
		Scheduler: sched,
		Allocator: allocator,
		Ring:      ring,
		Pump:      pump,
	}
}

// Close stops the compile pool (see compiler.Pool.Stop); the other
// services hold no goroutines and are left to the garbage collector.
func (d *Device) Close() {
	d.Pool.Stop()
}
