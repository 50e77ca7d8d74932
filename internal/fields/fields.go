// Package fields implements the ordered, string-keyed field collection
// exchanged with the activation service. Values are either plain strings or
// structured property-list values (maps, slices, booleans, byte blobs).
package fields

import (
	"reflect"
	"sort"
)

// Meta carries per-key presentation metadata reported by the server.
type Meta struct {
	RequiresInput bool
	SecureInput   bool
	Label         string
	Placeholder   string
}

// Collection is an insertion-ordered map. Keys are unique; setting an
// existing key replaces the value in place. A Collection is exclusively owned
// by one request or response; use Clone to hand a copy across that boundary.
type Collection struct {
	keys   []string
	values map[string]any
	meta   map[string]Meta
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{
		values: make(map[string]any),
		meta:   make(map[string]Meta),
	}
}

// FromMap builds a collection from a plain map. Keys are inserted in sorted
// order so the result is deterministic.
func FromMap(m map[string]any) *Collection {
	c := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.Set(k, m[k])
	}
	return c
}

// Set inserts or replaces a value. Insertion order is preserved on replace.
func (c *Collection) Set(key string, value any) {
	if _, ok := c.values[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.values[key] = value
}

// SetWithMeta inserts or replaces a value together with its metadata.
func (c *Collection) SetWithMeta(key string, value any, meta Meta) {
	c.Set(key, value)
	c.meta[key] = meta
}

// Get returns the value stored under key.
func (c *Collection) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// String returns the value under key if it is a plain string.
func (c *Collection) String(key string) (string, bool) {
	v, ok := c.values[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Meta returns the metadata recorded for key, or the zero Meta.
func (c *Collection) Meta(key string) Meta {
	return c.meta[key]
}

// Keys returns the keys in insertion order.
func (c *Collection) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of entries.
func (c *Collection) Len() int {
	return len(c.keys)
}

// Delete removes a key if present.
func (c *Collection) Delete(key string) {
	if _, ok := c.values[key]; !ok {
		return
	}
	delete(c.values, key)
	delete(c.meta, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i], c.keys[i+1:]...)
			break
		}
	}
}

// HasNonString reports whether any value is not a plain string.
func (c *Collection) HasNonString() bool {
	for _, v := range c.values {
		if _, ok := v.(string); !ok {
			return true
		}
	}
	return false
}

// Merge copies every entry of other into c, preserving other's order for
// newly inserted keys. Metadata travels with the values.
func (c *Collection) Merge(other *Collection) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		c.Set(k, cloneValue(other.values[k]))
		if m, ok := other.meta[k]; ok {
			c.meta[k] = m
		}
	}
}

// Clone returns a deep copy. Structured values are copied recursively so the
// clone shares no mutable state with the original.
func (c *Collection) Clone() *Collection {
	out := New()
	for _, k := range c.keys {
		out.Set(k, cloneValue(c.values[k]))
		if m, ok := c.meta[k]; ok {
			out.meta[k] = m
		}
	}
	return out
}

// ToMap returns the entries as a plain map with structured values copied.
func (c *Collection) ToMap() map[string]any {
	out := make(map[string]any, len(c.keys))
	for _, k := range c.keys {
		out[k] = cloneValue(c.values[k])
	}
	return out
}

// Equal reports whether two collections hold the same keys, in the same
// order, with deeply equal values. Metadata is not compared.
func (c *Collection) Equal(other *Collection) bool {
	if other == nil || len(c.keys) != len(other.keys) {
		return false
	}
	for i, k := range c.keys {
		if other.keys[i] != k {
			return false
		}
		if !reflect.DeepEqual(c.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}
