// Package compiler implements the worker-pool JIT shader recompiler
// (C7): parse-once shader state, the dependency-ordered
// PreInject/Inject pipeline over package feature, a compiled-bytecode
// cache, and the monotonic completion counter C9's report status
// queries against.
package compiler

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/gpureshape/gpuvalidate/ir"
)

// IRProvider is the external collaborator boundary (spec §6 "IR
// provider"): Parse decodes a shader's raw bytecode into the shared
// IR, Stitch re-encodes an instrumented program back to bytecode. Any
// type satisfying this structurally (irprovider/textir.Provider in
// this module) can stand behind a Pool without it importing a
// concrete provider package.
type IRProvider interface {
	Parse(source []byte) (*ir.Program, error)
	Stitch(p *ir.Program) ([]byte, error)
}

// ErrParseFailed wraps a shader bytecode decode failure (spec §7
// "parse failure" row: logged, original shader preserved, never
// panics).
var ErrParseFailed = errors.New("compiler: parse failed")

// ErrInstrumentFailed wraps a feature pass failure mid-pipeline (spec
// §7 "instrumentation failure" row).
var ErrInstrumentFailed = errors.New("compiler: instrumentation failed")

// ShaderState is the host-side record of one application shader
// module. Parsing happens at most once regardless of how many compile
// jobs reference it, serialized on mu (spec §4.7: "If the shader's
// parsed module does not exist, parse once, serialized on the
// shader's own mutex").
type ShaderState struct {
	mu sync.Mutex

	// GUID identifies this shader across every report that observes
	// it (spec §3 Shader state; §6 host API references shaders by
	// GUID, not by pointer).
	GUID   uuid.UUID
	Source []byte

	parsed   *ir.Program
	parseErr error
}

// NewShaderState wraps source as an unparsed shader module, minting a
// fresh GUID.
func NewShaderState(source []byte) *ShaderState {
	return &ShaderState{GUID: uuid.New(), Source: source}
}

// Parsed returns the shared parsed module, parsing it via provider on
// first use. A parse failure is cached too, so a shader that cannot
// be parsed isn't retried on every subsequent job against it.
func (s *ShaderState) Parsed(provider IRProvider) (*ir.Program, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.parsed != nil || s.parseErr != nil {
		return s.parsed, s.parseErr
	}
	p, err := provider.Parse(s.Source)
	if err != nil {
		s.parseErr = errors.Wrapf(ErrParseFailed, "shader %s: %v", s.GUID, err)
		return nil, s.parseErr
	}
	s.parsed = p
	return s.parsed, nil
}
