package ir

// SourceSpan locates an instruction in original shader source, as
// surfaced by a shader's debug info. A span produced by a feature pass
// (rather than original source) is flagged Modified; exported
// violations are attributed to the nearest non-modified ancestor span,
// so instrumentation never shows up as the "cause" of a diagnostic.
type SourceSpan struct {
	FileUID  uint32
	Line     uint32
	Column   uint32
	Modified bool
}

// Modify returns a copy of s flagged as instrumentation-originated.
// Passes call this when synthesizing instructions so the stitching
// back-end knows the containing block needs re-emission (see
// BasicBlock.dirty) and so diagnostics are attributed to the original
// span, not the synthesized one.
func (s SourceSpan) Modify() SourceSpan {
	s.Modified = true
	return s
}

// Original returns s with the Modified flag cleared, representing the
// span a Modified span was derived from. Feature passes that copy an
// existing instruction's span into a new one call this first, then
// Modify, so later features see a consistent "modified-from-original"
// span rather than a chain of modified spans.
func (s SourceSpan) Original() SourceSpan {
	s.Modified = false
	return s
}
