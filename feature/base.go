package feature

import "github.com/gpureshape/gpuvalidate/export"

// base implements the bookkeeping every concrete Feature shares:
// storing the Info Install assigned it and accumulating messages the
// pump routed back via CollectExports until the report layer (C9)
// drains them with CollectMessages. Concrete features embed base and
// only need to implement the transform-specific methods.
type base struct {
	info     Info
	messages []export.Message
}

func (b *base) GetInfo() Info { return b.info }

func (b *base) CollectExports(m export.Message) {
	b.messages = append(b.messages, m)
}

func (b *base) CollectMessages() []export.Message {
	out := b.messages
	b.messages = nil
	return out
}

// exportBaseOf builds the single-ExportID Info most features need:
// install assigns them exactly one schema's worth of export IDs.
func exportBaseOf(name string, bit Bit, deps []string, base export.ExportID) Info {
	return Info{Name: name, Bit: bit, Dependencies: deps, ExportIDs: []export.ExportID{base}}
}
