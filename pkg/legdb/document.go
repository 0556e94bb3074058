package legdb

import (
	"encoding/json"
	"fmt"
	"strings"
)

// emptyStringSentinel is substituted for "" on write and reversed on read,
// so a table backed by storage that treats the empty string as "missing"
// can still round-trip a genuinely empty attribute value.
const emptyStringSentinel = "-"

// attr is one (name, value) pair in a Document. Documents preserve
// insertion order, unlike a Go map, because the original engine's
// dataclass-derived documents are ordered and some templates render
// attributes positionally.
type attr struct {
	Key   string
	Value Value
}

// Document is an ordered attribute map plus the oid storage assigned it.
// It is the unit Save/Get/Range/Seek operate on, before it has been bound
// to an Entity's Go struct fields.
type Document struct {
	OID   uint64
	Bound bool // whether OID has been assigned by storage
	attrs []attr
}

// NewDocument returns an empty, unbound document.
func NewDocument() *Document {
	return &Document{}
}

// Set assigns value to key, appending it if key is new or overwriting it
// in place if it already exists.
func (d *Document) Set(key string, value Value) {
	for i := range d.attrs {
		if d.attrs[i].Key == key {
			d.attrs[i].Value = value
			return
		}
	}
	d.attrs = append(d.attrs, attr{Key: key, Value: value})
}

// Get returns the value stored at key.
func (d *Document) Get(key string) (Value, bool) {
	for _, a := range d.attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return Value{}, false
}

// GetPath resolves a predicate key that may use outer[inner] nested
// syntax (§4.3): outer must hold a KindMap value, and inner is looked up
// within it. Nested paths are never used to pick an index, only to
// evaluate a post-filter residual.
func (d *Document) GetPath(path string) (Value, bool) {
	outer, inner, nested := splitNestedPath(path)
	if !nested {
		return d.Get(path)
	}
	outerVal, ok := d.Get(outer)
	if !ok {
		return Value{}, false
	}
	m, ok := outerVal.Map()
	if !ok {
		return Value{}, false
	}
	v, ok := m[inner]
	return v, ok
}

// splitNestedPath parses "outer[inner]" into ("outer", "inner", true), or
// reports nested=false for a plain attribute name.
func splitNestedPath(path string) (outer, inner string, nested bool) {
	open := strings.IndexByte(path, '[')
	if open < 0 || !strings.HasSuffix(path, "]") {
		return path, "", false
	}
	return path[:open], path[open+1 : len(path)-1], true
}

// Keys returns the attribute names in insertion order.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.attrs))
	for i, a := range d.attrs {
		keys[i] = a.Key
	}
	return keys
}

// Len reports the number of attributes.
func (d *Document) Len() int { return len(d.attrs) }

// Range calls fn for every attribute in order, stopping early if fn
// returns false.
func (d *Document) Range(fn func(key string, value Value) bool) {
	for _, a := range d.attrs {
		if !fn(a.Key, a.Value) {
			return
		}
	}
}

// Matches reports whether every (key, value) pair in predicate is present
// and equal in d. Keys may use outer[inner] nested syntax. This is the
// post-filter residual check the planner falls back to for attributes an
// index cannot satisfy on its own.
func (d *Document) Matches(predicate map[string]Value) bool {
	for k, want := range predicate {
		got, ok := d.GetPath(k)
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// AttrNames returns the set of top-level attribute names used by a
// predicate, stripping any outer[inner] nesting down to "outer" so the
// planner can compare it against an index's declared attribute set.
func AttrNames(predicate map[string]Value) map[string]struct{} {
	names := make(map[string]struct{}, len(predicate))
	for k := range predicate {
		outer, _, _ := splitNestedPath(k)
		names[outer] = struct{}{}
	}
	return names
}

// Clone returns a deep-enough copy of d: a new attribute slice, safe to
// mutate without affecting the original (Value itself is immutable).
func (d *Document) Clone() *Document {
	out := &Document{OID: d.OID, Bound: d.Bound, attrs: make([]attr, len(d.attrs))}
	copy(out.attrs, d.attrs)
	return out
}

// WithoutKeys returns a clone of d with the named attributes removed, used
// to strip start_id/end_id back out of an edge's free-form attribute set.
func (d *Document) WithoutKeys(keys ...string) *Document {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := &Document{OID: d.OID, Bound: d.Bound}
	for _, a := range d.attrs {
		if _, skip := drop[a.Key]; skip {
			continue
		}
		out.attrs = append(out.attrs, a)
	}
	return out
}

// wireDoc is the JSON-serializable form of a Document, used for both
// on-disk storage and debug printing. Field order in Attrs is preserved
// by JSON array encoding, unlike a map.
type wireDoc struct {
	Attrs []wireAttr `json:"attrs"`
}

type wireAttr struct {
	Key   string          `json:"key"`
	Kind  Kind            `json:"kind"`
	Str   string          `json:"str,omitempty"`
	Num   int64           `json:"num,omitempty"`
	Float float64         `json:"float,omitempty"`
	Bool  bool            `json:"bool,omitempty"`
	Bytes []byte          `json:"bytes,omitempty"`
	Map   map[string]wireAttr `json:"map,omitempty"`
}

func valueToWire(v Value) wireAttr {
	w := wireAttr{Kind: v.kind}
	switch v.kind {
	case KindString:
		s, _ := v.String()
		if s == "" {
			s = emptyStringSentinel
		}
		w.Str = s
	case KindInt:
		w.Num, _ = v.Int()
	case KindFloat:
		w.Float, _ = v.Float()
	case KindBool:
		w.Bool, _ = v.Bool()
	case KindBytes:
		w.Bytes, _ = v.Bytes()
	case KindOID:
		oid, _ := v.OID()
		w.Num = int64(oid)
	case KindMap:
		m, _ := v.Map()
		w.Map = make(map[string]wireAttr, len(m))
		for k, mv := range m {
			w.Map[k] = valueToWire(mv)
		}
	}
	return w
}

func wireToValue(w wireAttr) Value {
	switch w.Kind {
	case KindString:
		s := w.Str
		if s == emptyStringSentinel {
			s = ""
		}
		return StringValue(s)
	case KindInt:
		return IntValue(w.Num)
	case KindFloat:
		return FloatValue(w.Float)
	case KindBool:
		return BoolValue(w.Bool)
	case KindBytes:
		return BytesValue(w.Bytes)
	case KindOID:
		return OIDValue(uint64(w.Num))
	case KindMap:
		m := make(map[string]Value, len(w.Map))
		for k, mw := range w.Map {
			m[k] = wireToValue(mw)
		}
		return MapValue(m)
	default:
		return Nil()
	}
}

// MarshalBinary encodes the document's attributes (not its oid, which
// storage tracks separately as the table key) as JSON.
func (d *Document) MarshalBinary() ([]byte, error) {
	w := wireDoc{Attrs: make([]wireAttr, len(d.attrs))}
	for i, a := range d.attrs {
		wa := valueToWire(a.Value)
		wa.Key = a.Key
		w.Attrs[i] = wa
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("legdb: marshal document: %w", err)
	}
	return b, nil
}

// UnmarshalBinary decodes a document previously produced by MarshalBinary.
func (d *Document) UnmarshalBinary(data []byte) error {
	var w wireDoc
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("legdb: unmarshal document: %w", err)
	}
	d.attrs = make([]attr, len(w.Attrs))
	for i, wa := range w.Attrs {
		d.attrs[i] = attr{Key: wa.Key, Value: wireToValue(wa)}
	}
	return nil
}
