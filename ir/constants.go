package ir

// ConstantKind discriminates the Constant variant.
type ConstantKind int

const (
	ConstBool ConstantKind = iota
	ConstInt
	ConstFP
	ConstStruct
	ConstVector
	ConstArray
	ConstNull
	ConstUndef
	ConstUnexposed
)

// constKey is the (Type, payload) identity a ConstantMap de-duplicates on.
type constKey struct {
	typ     ID
	kind    ConstantKind
	intVal  int64
	fpVal   float64
	boolVal bool
	agg     string // canonicalized comma-joined member constant IDs, for Struct/Vector/Array.
}

// Constant is a de-duplicated, typed literal value with its own ID.
type Constant struct {
	ID   ID
	Type ID
	Kind ConstantKind

	IntVal  int64
	FPVal   float64
	BoolVal bool

	// Members holds, for Struct/Vector/Array constants, the element
	// Constant IDs in order.
	Members []ID
}

func (c Constant) key() constKey {
	k := constKey{typ: c.Type, kind: c.Kind, intVal: c.IntVal, fpVal: c.FPVal, boolVal: c.BoolVal}
	if len(c.Members) > 0 {
		k.agg = idsKey(c.Members)
	}
	return k
}

func idsKey(ids []ID) string {
	buf := make([]byte, 0, len(ids)*5)
	for i, id := range ids {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = appendUint32(buf, uint32(id))
	}
	return string(buf)
}

func appendUint32(buf []byte, v uint32) []byte {
	if v == 0 {
		return append(buf, '0')
	}
	var tmp [10]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(buf, tmp[i:]...)
}

// ConstantMap interns Constants keyed by (Type, payload): equal keys
// always resolve to the same ID.
type ConstantMap struct {
	ids   *idAllocator
	byKey map[constKey]ID
	byID  map[ID]Constant
}

// NewConstantMap creates an empty ConstantMap.
func NewConstantMap() *ConstantMap {
	return &ConstantMap{
		ids:   newIDAllocator(),
		byKey: make(map[constKey]ID),
		byID:  make(map[ID]Constant),
	}
}

// Intern returns the ID of c (c.ID is ignored on input and filled on
// output), allocating a new one only if an equal Constant isn't
// already interned.
func (m *ConstantMap) Intern(c Constant) ID {
	key := c.key()
	if id, ok := m.byKey[key]; ok {
		return id
	}
	id := m.ids.Allocate()
	c.ID = id
	m.byKey[key] = id
	m.byID[id] = c
	return id
}

// Lookup returns the Constant for id.
func (m *ConstantMap) Lookup(id ID) (Constant, bool) {
	c, ok := m.byID[id]
	return c, ok
}

// NullOf returns (interning if needed) the Null constant of typ.
func (m *ConstantMap) NullOf(typ ID) ID {
	return m.Intern(Constant{Type: typ, Kind: ConstNull})
}

// IDs returns every interned constant ID in ascending order, for
// callers (textir's serializer, in particular) that must walk the
// whole table.
func (m *ConstantMap) IDs() []ID {
	out := make([]ID, 0, len(m.byID))
	for id := range m.byID {
		out = append(out, id)
	}
	sortIDs(out)
	return out
}
