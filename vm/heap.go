package vm

import (
	"github.com/nebula-lang/nebula/pkg/bytecode"
)

// Handle identifies a heap object by its index in the VM's arena. Only the
// low 48 bits are used so a handle always fits in a pointer payload.
type Handle uint64

// ObjKind discriminates heap object variants.
type ObjKind uint8

const (
	KindString ObjKind = iota
	KindList
	KindMap
	KindFunction
	KindIterator
)

// String returns the kind name used by stats and trace output.
func (k ObjKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	case KindFunction:
		return "function"
	case KindIterator:
		return "iterator"
	default:
		return "unknown"
	}
}

// Object is the tagged union for all heap-allocated values. Kind selects
// which payload field is meaningful.
type Object struct {
	Kind  ObjKind
	Str   string
	Elems []Value
	Map   *MapObject
	Fn    *bytecode.Function
	Iter  *iterator
}

// ---------------------------------------------------------------------------
// MapObject: insertion-ordered string-keyed map
// ---------------------------------------------------------------------------

// MapObject stores entries keyed by their display string, preserving
// insertion order for iteration and printing.
type MapObject struct {
	keys    []string
	entries map[string]Value
}

// NewMapObject returns an empty ordered map.
func NewMapObject() *MapObject {
	return &MapObject{entries: make(map[string]Value)}
}

// Get looks up a key. The second result reports whether it was present.
func (m *MapObject) Get(key string) (Value, bool) {
	v, ok := m.entries[key]
	return v, ok
}

// Set inserts or updates a key. An existing key keeps its position in the
// insertion order.
func (m *MapObject) Set(key string, v Value) {
	if _, ok := m.entries[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.entries[key] = v
}

// Delete removes a key, reporting whether it was present.
func (m *MapObject) Delete(key string) bool {
	if _, ok := m.entries[key]; !ok {
		return false
	}
	delete(m.entries, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (m *MapObject) Len() int {
	return len(m.entries)
}

// Keys returns the keys in insertion order. The slice is shared; callers
// must not mutate it.
func (m *MapObject) Keys() []string {
	return m.keys
}

// ---------------------------------------------------------------------------
// iterator: internal cursor for each-loops
// ---------------------------------------------------------------------------

// iterator walks a container. Lists are read live through src so appends
// during iteration are visible; strings and maps iterate over a snapshot
// taken at creation (runes as 1-char strings, map keys as interned strings).
type iterator struct {
	src      Handle
	snapshot []Value
	live     bool
	idx      int
}

// ---------------------------------------------------------------------------
// heap: arena of all objects allocated by one VM
// ---------------------------------------------------------------------------

// heap owns every object a VM allocates. Values reference objects by dense
// index; nothing is ever freed (the arena lives as long as the VM).
type heap struct {
	objects  []Object
	interned map[string]Handle
}

func newHeap() *heap {
	return &heap{interned: make(map[string]Handle)}
}

func (h *heap) alloc(o Object) Handle {
	h.objects = append(h.objects, o)
	return Handle(len(h.objects) - 1)
}

// Get resolves a handle. Invalid handles return nil rather than panicking;
// callers surface the access error.
func (h *heap) Get(hd Handle) *Object {
	if int(hd) >= len(h.objects) {
		return nil
	}
	return &h.objects[hd]
}

// object resolves a value to its heap object, or nil if the value is not a
// pointer or the handle is stale.
func (h *heap) object(v Value) *Object {
	if !v.IsPtr() {
		return nil
	}
	return h.Get(v.handle())
}

// AllocString allocates a fresh string object. Runtime-computed strings
// (concatenation, str(), indexing) land here; compile-time strings go
// through Intern instead.
func (h *heap) AllocString(s string) Value {
	return fromHandle(h.alloc(Object{Kind: KindString, Str: s}))
}

// AllocList allocates a list object owning the given elements.
func (h *heap) AllocList(elems []Value) Value {
	return fromHandle(h.alloc(Object{Kind: KindList, Elems: elems}))
}

// AllocMap allocates a map object.
func (h *heap) AllocMap(m *MapObject) Value {
	if m == nil {
		m = NewMapObject()
	}
	return fromHandle(h.alloc(Object{Kind: KindMap, Map: m}))
}

// AllocFunction allocates a function object.
func (h *heap) AllocFunction(fn *bytecode.Function) Value {
	return fromHandle(h.alloc(Object{Kind: KindFunction, Fn: fn}))
}

// AllocIterator allocates an iterator object.
func (h *heap) AllocIterator(it *iterator) Value {
	return fromHandle(h.alloc(Object{Kind: KindIterator, Iter: it}))
}

// Intern returns the canonical value for a string, allocating on first use.
// Equal content always yields the same handle, so interned strings compare
// equal by bits alone.
func (h *heap) Intern(s string) Value {
	if hd, ok := h.interned[s]; ok {
		return fromHandle(hd)
	}
	hd := h.alloc(Object{Kind: KindString, Str: s})
	h.interned[s] = hd
	return fromHandle(hd)
}

// stringContent extracts string content from a value. The second result is
// false when the value is not a string object.
func (h *heap) stringContent(v Value) (string, bool) {
	obj := h.object(v)
	if obj == nil || obj.Kind != KindString {
		return "", false
	}
	return obj.Str, true
}

// Stats returns live object counts by kind plus the interner size.
func (h *heap) Stats() map[string]int {
	stats := map[string]int{
		"strings":   0,
		"lists":     0,
		"maps":      0,
		"functions": 0,
		"iterators": 0,
	}
	for i := range h.objects {
		switch h.objects[i].Kind {
		case KindString:
			stats["strings"]++
		case KindList:
			stats["lists"]++
		case KindMap:
			stats["maps"]++
		case KindFunction:
			stats["functions"]++
		case KindIterator:
			stats["iterators"]++
		}
	}
	stats["interned"] = len(h.interned)
	return stats
}
