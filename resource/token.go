// Package resource implements the physical-resource identifier (PUID)
// scheme, the packed resource token, and the GPU-visible physical
// resource mapping table (PRMT) that descriptor writes keep in sync
// (spec §3, §6).
package resource

// Kind discriminates a ResourceToken's 2-bit type field.
type Kind uint8

const (
	KindBuffer Kind = iota
	KindTexture
	KindSampler
	KindCBV
)

// PUID is a 24-bit physical-resource unique identifier, stable across
// API handle churn.
type PUID uint32

const puidMask = 0x00FFFFFF

// Reserved PUID sentinels. The specification's open question on the
// two historic out-of-bounds schemes is resolved in favor of the
// packed scheme throughout this implementation (SPEC_FULL.md §9).
const (
	PUIDInvalidUndefined    PUID = puidMask - 2
	PUIDInvalidOutOfBounds  PUID = puidMask - 1
	PUIDInvalidTableNotBound PUID = puidMask
	// PUIDInvalidStart is the first reserved value; any PUID at or
	// above this is a sentinel, not a live resource.
	PUIDInvalidStart = PUIDInvalidUndefined
)

// IsReserved reports whether p names a sentinel rather than a live resource.
func (p PUID) IsReserved() bool { return p >= PUIDInvalidStart }

// Token is the packed 32-bit resource token described in spec §3:
// 2 bits type, 24 bits PUID, plus a format id and a dimensions summary
// used by the texel addressing arithmetic (C3).
type Token struct {
	Type       Kind
	PUID       PUID
	FormatID   uint32
	Dimensions DimensionSummary
}

// DimensionSummary carries the subset of a resource's geometry the
// texel address emitter needs without a full Type lookup.
type DimensionSummary struct {
	Width, Height, Depth uint32
	MipCount             uint32
	FormatSize           uint32 // bytes per texel/element in the resource's native format
	ViewFormatSize       uint32 // bytes per texel/element in the bound view (may differ: expansion/contraction)
	ViewBaseWidth        uint32
	ViewBaseMip          uint32
	Volumetric           bool
}

// Pack encodes t into its 32-bit wire representation: bits [31:30] =
// Type, bits [23:0] = PUID. FormatID/Dimensions are host-side only and
// are not part of the packed word (they're looked up from the PRMT
// once the PUID round-trips through the GPU).
func (t Token) Pack() uint32 {
	return uint32(t.Type)<<30 | uint32(t.PUID)&puidMask
}

// Unpack decodes a 32-bit wire word into its type and PUID.
func Unpack(word uint32) (Kind, PUID) {
	return Kind(word >> 30), PUID(word & puidMask)
}

// Undefined reports whether t's PUID is the "undefined" sentinel.
func (t Token) Undefined() bool { return t.PUID == PUIDInvalidUndefined }

// OutOfBounds reports whether t's PUID is the "out of bounds" sentinel.
func (t Token) OutOfBounds() bool { return t.PUID == PUIDInvalidOutOfBounds }

// TableNotBound reports whether t's PUID is the "descriptor table
// unbound" sentinel. Per spec §9, TableNotBound takes precedence over
// OutOfBounds when both conditions could apply to the same access.
func (t Token) TableNotBound() bool { return t.PUID == PUIDInvalidTableNotBound }
