package export

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/gpureshape/gpuvalidate/resource"
)

// Wire field numbers for the hand-written protobuf encoding of
// Message, a versioned, schema-tagged wire format instead of an ad hoc
// byte layout. report.ExportReport does not use it; it writes CSV or
// HTML. Written directly against protowire rather than a
// .proto-generated type, since no protoc invocation is available here
// — but the wire format itself is standard protobuf and decodable by
// any protobuf consumer.
const (
	fieldExportID    = protowire.Number(1)
	fieldSchema      = protowire.Number(2)
	fieldSGUID       = protowire.Number(3)
	fieldTokenPacked = protowire.Number(4)
	fieldTokenFormat = protowire.Number(5)
	fieldCoordX      = protowire.Number(6)
	fieldCoordY      = protowire.Number(7)
	fieldCoordZ      = protowire.Number(8)
	fieldCoordMip    = protowire.Number(9)
	fieldCompileType = protowire.Number(10)
	fieldRuntimeType = protowire.Number(11)
	fieldIsUndefined = protowire.Number(12)
	fieldIsOOB       = protowire.Number(13)
	fieldValue       = protowire.Number(14)
)

// MarshalMessage encodes m as a protobuf wire message.
func MarshalMessage(m Message) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldExportID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.ExportID))
	b = protowire.AppendTag(b, fieldSchema, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Schema))
	b = protowire.AppendTag(b, fieldSGUID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.SGUID))
	b = protowire.AppendTag(b, fieldTokenPacked, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, m.Token.Pack())
	b = protowire.AppendTag(b, fieldTokenFormat, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Token.FormatID))
	b = protowire.AppendTag(b, fieldCoordX, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Coordinate.X))
	b = protowire.AppendTag(b, fieldCoordY, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Coordinate.Y))
	b = protowire.AppendTag(b, fieldCoordZ, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Coordinate.Z))
	b = protowire.AppendTag(b, fieldCoordMip, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.Coordinate.Mip))
	b = protowire.AppendTag(b, fieldCompileType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.CompileType))
	b = protowire.AppendTag(b, fieldRuntimeType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(m.RuntimeType))
	b = protowire.AppendTag(b, fieldIsUndefined, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(m.IsUndefined))
	b = protowire.AppendTag(b, fieldIsOOB, protowire.VarintType)
	b = protowire.AppendVarint(b, boolVarint(m.IsOutOfBounds))
	b = protowire.AppendTag(b, fieldValue, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(m.Value))
	return b
}

// UnmarshalMessage decodes bytes produced by MarshalMessage.
func UnmarshalMessage(data []byte) (Message, error) {
	var m Message
	var tokenWord uint32
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return m, errors.Wrap(protowire.ParseError(n), "export: consume tag")
		}
		data = data[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "export: consume varint")
			}
			data = data[n:]
			switch num {
			case fieldExportID:
				m.ExportID = ExportID(v)
			case fieldSchema:
				m.Schema = SchemaID(v)
			case fieldSGUID:
				m.SGUID = uint32(v)
			case fieldTokenFormat:
				m.Token.FormatID = uint32(v)
			case fieldCoordX:
				m.Coordinate.X = uint32(v)
			case fieldCoordY:
				m.Coordinate.Y = uint32(v)
			case fieldCoordZ:
				m.Coordinate.Z = uint32(v)
			case fieldCoordMip:
				m.Coordinate.Mip = uint32(v)
			case fieldCompileType:
				m.CompileType = resource.Kind(v)
			case fieldRuntimeType:
				m.RuntimeType = resource.Kind(v)
			case fieldIsUndefined:
				m.IsUndefined = v != 0
			case fieldIsOOB:
				m.IsOutOfBounds = v != 0
			}
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "export: consume fixed32")
			}
			data = data[n:]
			if num == fieldTokenPacked {
				tokenWord = v
			}
		case protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "export: consume fixed64")
			}
			data = data[n:]
			if num == fieldValue {
				m.Value = math.Float64frombits(v)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return m, errors.Wrap(protowire.ParseError(n), "export: consume unknown field")
			}
			data = data[n:]
		}
	}
	kind, puid := resource.Unpack(tokenWord)
	m.Token.Type = kind
	m.Token.PUID = puid
	return m, nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
