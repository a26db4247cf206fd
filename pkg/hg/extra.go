package hg

import (
	"bytes"
	"sort"
)

// Extra is the changeset "extra" dictionary. Keys and values are kept in
// their encoded form and written back in ascending key order.
type Extra struct {
	m map[string]string
}

// NewExtra returns an empty dictionary.
func NewExtra() *Extra {
	return &Extra{m: make(map[string]string)}
}

// ParseExtra parses NUL-separated "key:value" entries. An entry without a
// colon is a key with an empty value; later duplicates win.
func ParseExtra(b []byte) *Extra {
	e := NewExtra()
	if len(b) == 0 {
		return e
	}
	for _, part := range bytes.Split(b, []byte{0}) {
		k, v, _ := bytes.Cut(part, []byte{':'})
		e.m[string(k)] = string(v)
	}
	return e
}

func (e *Extra) Get(key string) (string, bool) {
	v, ok := e.m[key]
	return v, ok
}

func (e *Extra) Set(key, value string) {
	e.m[key] = value
}

func (e *Extra) Unset(key string) {
	delete(e.m, key)
}

func (e *Extra) Len() int {
	return len(e.m)
}

// Keys returns the keys in ascending order.
func (e *Extra) Keys() []string {
	keys := make([]string, 0, len(e.m))
	for k := range e.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Each calls fn for every entry in ascending key order.
func (e *Extra) Each(fn func(key, value string)) {
	for _, k := range e.Keys() {
		fn(k, e.m[k])
	}
}

// DumpInto appends the serialized dictionary to buf.
func (e *Extra) DumpInto(buf *bytes.Buffer) {
	for i, k := range e.Keys() {
		if i > 0 {
			buf.WriteByte(0)
		}
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(e.m[k])
	}
}

// Bytes returns the serialized dictionary.
func (e *Extra) Bytes() []byte {
	var buf bytes.Buffer
	e.DumpInto(&buf)
	return buf.Bytes()
}
