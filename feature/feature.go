// Package feature implements the composable validation feature passes
// (C5): DescriptorMismatch, ResourceBounds, Initialization,
// Concurrency, Waterfall, ExportStability. Each exports messages and
// may depend on others (spec §4.5).
package feature

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/gpureshape/gpuvalidate/export"
	"github.com/gpureshape/gpuvalidate/ir"
	"github.com/gpureshape/gpuvalidate/resource"
)

// Bit is one bit of the host-exposed feature bitset (spec §6
// VkGPUValidationFeatureAVA).
type Bit uint32

const (
	BitResourceAddressBounds Bit = 1 << iota
	BitExportStability
	BitDescriptorArrayBounds
	BitResourceDataRace
	BitResourceInitialization
)

// Info describes a feature's identity and dependency edges.
type Info struct {
	Name         string
	Bit          Bit
	Dependencies []string
	// ExportIDs are the schema export identifiers this feature owns
	// (allocated at Install), used to register C6 pump listeners.
	ExportIDs []export.ExportID
}

// ShaderDataLayout is the per-feature, per-set append-only constant
// buffer region a feature's shader-data dependency occupies (SPEC_FULL
// §3.1, grounded on GPU-Reshape's DescriptorDataSegment /
// DescriptorDataAppendAllocator): the compiler binds one IR global per
// entry as a program variable the feature's Inject can read from.
type ShaderDataLayout struct {
	Name   string
	Type   ir.ID
	Global ir.ID
}

// CompileSpec is the job-scoped context a feature's PreInject/Inject
// runs under: the program being transformed, per-binding resource
// metadata the compiler resolved for this InstrumentationKey, and the
// shared services (texel allocator, export ring) the feature may
// target.
type CompileSpec struct {
	Program     *ir.Program
	U32Type     ir.ID
	BoolType    ir.ID
	Bindings    map[ir.ID]Binding // resource-token-producing global/value -> its compile-time Binding
	ShaderData  map[string]ShaderDataLayout
	ExportRing  *export.Ring
	Allocator   TexelBases

	// TexelMaskBuffer is the resource token value (produced once, at
	// shader entry, by whatever op binds the allocator's shared
	// bit-mask buffer) Initialization and Concurrency both read and
	// read-modify-write per texel (spec §4.4, §4.5.c/d): one bit per
	// texel for "has this texel ever been written", one bit per texel
	// for "is a write to this texel currently in flight".
	TexelMaskBuffer ir.ID
}

// Binding is what the compiler statically knows about a resource
// binding at the point a shader was instrumented: an instrumentation
// job is specialized to one concrete bound-resource set, so the PUID
// the allocator resolved for this slot is itself a compile-time
// constant here, not a runtime value the shader has to look up. The
// compiler's cache key (featureVersionUID + source hash) does not
// include the bindings.
type Binding struct {
	ExpectedKind resource.Kind
	Dimensions   resource.DimensionSummary
	PUID         resource.PUID
}

// TexelBases is the minimal surface Initialization/Concurrency need
// from the texel allocator (C4): the base word index for a PUID,
// independent of importing package texel directly (kept decoupled so
// feature has a single, narrow dependency edge instead of the whole
// allocator).
type TexelBases interface {
	BaseWordOf(puid uint32) (uint32, bool)
}

// Feature is the uniform capability set every validation pass
// implements (spec §4.5, §9 "Dynamic dispatch": tagged variants
// dispatched through a table, hot path iterates only set bits).
type Feature interface {
	Install(exportBase export.ExportID) Info
	GetInfo() Info
	Activate(spec *CompileSpec) error
	Deactivate()
	PreInject(spec *CompileSpec) error
	Inject(spec *CompileSpec) error
	CollectExports(export.Message)
	CollectMessages() []export.Message
}

// Registry holds every installed feature and resolves their
// dependency order for Compile (spec §4.5 "Pass ordering rule").
type Registry struct {
	byName map[string]Feature
	infos  map[string]Info
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Feature), infos: make(map[string]Info)}
}

// Install registers f, assigning it the next export-ID block.
func (r *Registry) Install(f Feature, exportBase export.ExportID) {
	info := f.Install(exportBase)
	r.byName[info.Name] = f
	r.infos[info.Name] = info
}

// Active returns the installed features whose bit is set in mask, plus
// the features they depend on, in dependency order: a pass only ever
// reads instructions authored by a
// pass it depends on, never one that runs later (spec §4.5).
func (r *Registry) Active(mask Bit) ([]Feature, error) {
	var names []string
	for name, info := range r.infos {
		if info.Bit&mask != 0 {
			names = append(names, name)
		}
	}
	ordered, err := r.topoSort(names)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, len(ordered))
	for i, n := range ordered {
		out[i] = r.byName[n]
	}
	return out, nil
}

func (r *Registry) topoSort(requested []string) ([]string, error) {
	want := make(map[string]bool, len(requested))
	for _, n := range requested {
		want[n] = true
	}
	// Pull in dependencies even if their own bit wasn't requested:
	// ResourceBounds depends on DescriptorMismatch's validated
	// descriptor data regardless of whether DescriptorMismatch's own
	// messages were asked for.
	var closure func(string)
	visited := map[string]bool{}
	closure = func(n string) {
		if visited[n] {
			return
		}
		visited[n] = true
		want[n] = true
		for _, dep := range r.infos[n].Dependencies {
			closure(dep)
		}
	}
	for _, n := range requested {
		closure(n)
	}

	var order []string
	state := map[string]int{} // 0=unvisited,1=visiting,2=done
	var visit func(string) error
	visit = func(n string) error {
		switch state[n] {
		case 2:
			return nil
		case 1:
			return errors.Errorf("feature: dependency cycle at %q", n)
		}
		state[n] = 1
		deps := append([]string(nil), r.infos[n].Dependencies...)
		sort.Strings(deps)
		for _, dep := range deps {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[n] = 2
		order = append(order, n)
		return nil
	}
	var names []string
	for n := range want {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// Get returns an installed feature by name.
func (r *Registry) Get(name string) (Feature, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// RegisterDefaults installs every feature this package implements,
// assigning each a disjoint export-ID range starting at base. Device
// wiring (internal/device) calls this once per device at startup.
func RegisterDefaults(r *Registry, base export.ExportID) {
	features := []Feature{
		newDescriptorMismatch(),
		newResourceBounds(),
		newInitialization(),
		newConcurrency(),
		newWaterfall(),
		newExportStability(),
	}
	for i, f := range features {
		r.Install(f, base+export.ExportID(i))
	}
}
