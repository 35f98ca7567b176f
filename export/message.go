// Package export implements the GPU-visible diagnostic message ring
// (C6): a lock-free exported-message ring instrumented shaders
// atomically append to, and the host-side pump that drains, decodes,
// deduplicates, and dispatches records to feature listeners.
package export

import "github.com/gpureshape/gpuvalidate/resource"

// SchemaID discriminates a diagnostic message record's payload shape
// (spec §3 "Diagnostic message record", §6 schema ID enumeration).
type SchemaID uint8

const (
	SchemaDescriptorMismatch SchemaID = iota
	SchemaResourceIndexOutOfBounds
	SchemaResourceRaceCondition
	SchemaTexelInitialization
	SchemaExportUnstable
	SchemaDivergentResourceIndexing
	SchemaWaterfallingCondition
)

// schemaByteLength is each schema's fixed payload width in bytes,
// following the header word. Every schema declares a fixed length so
// the host pump can walk the ring without per-record length prefixes.
var schemaByteLength = map[SchemaID]int{
	SchemaDescriptorMismatch:        16,
	SchemaResourceIndexOutOfBounds:  20,
	SchemaResourceRaceCondition:     20,
	SchemaTexelInitialization:       20,
	SchemaExportUnstable:            12,
	SchemaDivergentResourceIndexing: 16,
	SchemaWaterfallingCondition:     12,
}

// PayloadLength returns the fixed byte length of schema's payload.
func PayloadLength(schema SchemaID) (int, bool) {
	n, ok := schemaByteLength[schema]
	return n, ok
}

// ExportID is a host-allocated identifier naming a message schema,
// assigned to a feature at Install time; the low 6 bits of a record's
// header word are its SchemaID/typeID, the remaining high bits its
// ExportID (spec §3, §6: header = (exportID << 6) | typeID).
type ExportID uint32

const typeIDBits = 6
const typeIDMask = 1<<typeIDBits - 1

// PackHeader encodes a record's 32-bit header word.
func PackHeader(exportID ExportID, schema SchemaID) uint32 {
	return uint32(exportID)<<typeIDBits | uint32(schema)&typeIDMask
}

// UnpackHeader decodes a header word into its export/schema components.
func UnpackHeader(header uint32) (ExportID, SchemaID) {
	return ExportID(header >> typeIDBits), SchemaID(header & typeIDMask)
}

// Coordinate is a texel/element coordinate as carried by several
// message schemas.
type Coordinate struct {
	X, Y, Z, Mip uint32
}

// Message is the host-decoded form of one diagnostic record,
// independent of its wire encoding.
type Message struct {
	ExportID ExportID
	Schema   SchemaID

	SGUID      uint32 // shader source GUID, symbolic source location
	Token      resource.Token
	Coordinate Coordinate

	// Schema-specific fields.
	CompileType  resource.Kind // DescriptorMismatch
	RuntimeType  resource.Kind // DescriptorMismatch
	IsUndefined  bool          // DescriptorMismatch
	IsOutOfBounds bool         // DescriptorMismatch / ResourceIndexOutOfBounds

	Value float64 // ExportUnstable (the unstable exported value)
}

// Fingerprint computes the deduplication key spec §4.6 defines:
// (typeID, sguid, token.puid, coordinate).
func (m Message) Fingerprint() FingerPrint {
	return FingerPrint{
		Schema:     m.Schema,
		SGUID:      m.SGUID,
		PUID:       m.Token.PUID,
		Coordinate: m.Coordinate,
	}
}

// FingerPrint is the comparable key Message.Fingerprint produces.
type FingerPrint struct {
	Schema     SchemaID
	SGUID      uint32
	PUID       resource.PUID
	Coordinate Coordinate
}
