package ir

import "fmt"

// TypeKind discriminates the Type variant.
type TypeKind int

const (
	TypeBool TypeKind = iota
	TypeInt
	TypeFP
	TypeVector
	TypeMatrix
	TypeArray
	TypeStruct
	TypePointer
	TypeBuffer
	TypeTexture
	TypeSampler
	TypeFunction
	TypeVoid
	TypeUnexposed
)

// SamplerMode distinguishes a resource-typed Buffer/Texture's access mode.
type SamplerMode int

const (
	SamplerNone SamplerMode = iota
	SamplerSampled
	SamplerStorage
)

// TextureDim is the logical dimensionality of a Texture type.
type TextureDim int

const (
	Tex1D TextureDim = iota
	Tex2D
	Tex3D
	TexCube
	Tex1DArray
	Tex2DArray
	TexCubeArray
)

// Type is a structurally de-duplicated, immutable IR type. Two Type
// values with equal Kind and payload fields always compare == once
// interned through a TypeMap; Type itself is a plain value so the
// equality check it receives from a map lookup must be structural,
// which is why every field that participates in identity is a
// comparable Go value (no slices) except Struct/Function members,
// which index through the owning Program's type table by ID instead
// of embedding Type values recursively.
type Type struct {
	Kind TypeKind

	// Int / FP
	BitWidth uint32
	Signed   bool

	// Vector / Matrix / Array element
	Elem ID
	Dim  uint32 // Vector: component count. Matrix: columns. Array: element count (0 = runtime-sized).
	Rows uint32 // Matrix only.

	// Struct
	Members string // canonicalized comma-joined member type IDs, see structKey.

	// Pointer
	Pointee ID
	Space   StorageSpace

	// Buffer / Texture
	SamplerMode SamplerMode
	TexelFormat uint32
	TexDim      TextureDim

	// Function
	Return ID
	Params string // canonicalized comma-joined param type IDs.

	// Unexposed
	ForeignTag uint32
}

// StorageSpace is the IR pointer address space.
type StorageSpace int

const (
	SpaceFunction StorageSpace = iota
	SpacePrivate
	SpaceWorkgroup
	SpaceUniform
	SpaceStorage
	SpacePushConstant
)

func (t Type) String() string {
	switch t.Kind {
	case TypeBool:
		return "bool"
	case TypeInt:
		if t.Signed {
			return fmt.Sprintf("i%d", t.BitWidth)
		}
		return fmt.Sprintf("u%d", t.BitWidth)
	case TypeFP:
		return fmt.Sprintf("f%d", t.BitWidth)
	case TypeVector:
		return fmt.Sprintf("vec%d<%d>", t.Dim, t.Elem)
	case TypeMatrix:
		return fmt.Sprintf("mat%dx%d<%d>", t.Rows, t.Dim, t.Elem)
	case TypeArray:
		return fmt.Sprintf("array<%d,%d>", t.Elem, t.Dim)
	case TypeStruct:
		return fmt.Sprintf("struct{%s}", t.Members)
	case TypePointer:
		return fmt.Sprintf("ptr<%d,%d>", t.Pointee, t.Space)
	case TypeBuffer:
		return fmt.Sprintf("buffer<%d,%d,%d>", t.Elem, t.SamplerMode, t.TexelFormat)
	case TypeTexture:
		return fmt.Sprintf("texture<%d,%d,%d>", t.TexDim, t.Elem, t.SamplerMode)
	case TypeSampler:
		return "sampler"
	case TypeFunction:
		return fmt.Sprintf("fn(%s)->%d", t.Params, t.Return)
	case TypeVoid:
		return "void"
	default:
		return fmt.Sprintf("unexposed(%d)", t.ForeignTag)
	}
}

// TypeMap structurally de-duplicates Type values: types are
// pointer-equal (by ID) iff structurally equal, satisfying the
// invariant in spec §3.
type TypeMap struct {
	ids    *idAllocator
	byKey  map[Type]ID
	byID   map[ID]Type
}

// NewTypeMap creates an empty TypeMap.
func NewTypeMap() *TypeMap {
	return &TypeMap{
		ids:   newIDAllocator(),
		byKey: make(map[Type]ID),
		byID:  make(map[ID]Type),
	}
}

// Intern returns the ID of t, allocating a new one only if an
// equal Type has not already been interned.
func (m *TypeMap) Intern(t Type) ID {
	if id, ok := m.byKey[t]; ok {
		return id
	}
	id := m.ids.Allocate()
	m.byKey[t] = id
	m.byID[id] = t
	return id
}

// Lookup returns the Type for id.
func (m *TypeMap) Lookup(id ID) (Type, bool) {
	t, ok := m.byID[id]
	return t, ok
}

// MustLookup panics-free variant returning the zero Type if id is unknown.
func (m *TypeMap) MustLookup(id ID) Type {
	return m.byID[id]
}

// IDs returns every interned type ID in ascending order, for callers
// (textir's serializer, in particular) that must walk the whole table.
func (m *TypeMap) IDs() []ID {
	out := make([]ID, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}
