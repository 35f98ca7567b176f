package report

import "github.com/gpureshape/gpuvalidate/ir"

// SourceMapping resolves a shader-source GUID carried on a diagnostic
// message back to a file/line/column and the instruction that produced
// it (spec §4.9 "message filtering/symbolication").
type SourceMapping struct {
	ShaderGUID       uint32
	FileUID          uint32
	Line, Column     int
	BasicBlockID     ir.ID
	InstructionIndex int
}

// Symbolicator resolves a message's SGUID (spec §3) into source
// location information. The textir provider's debug records are one
// concrete implementation; a report works against any implementation.
type Symbolicator interface {
	Resolve(sguid uint32) (SourceMapping, bool)
}

// symbolicate is a convenience a report uses internally when printing
// or exporting: it returns the zero SourceMapping if no symbolicator
// was supplied at BeginReport, rather than forcing every call site to
// nil-check.
func (r *Report) symbolicate(sguid uint32) (SourceMapping, bool) {
	r.mu.Lock()
	sym := r.sym
	r.mu.Unlock()
	if sym == nil {
		return SourceMapping{}, false
	}
	return sym.Resolve(sguid)
}
