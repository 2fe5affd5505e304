// package headers contains the case-insensitive, multi-valued header
// container shared by requests and responses.
//
// unlike [net/http.Header], keys are lower-cased instead of canonicalized
// and the order in which keys were first appended is preserved, since
// that's what a header block read off the wire looks like.
package headers

import (
	"net/http"
	"sort"
	"strings"
)

type Field struct {
	Key, Value string
}

// Headers is a multimap from lower-cased header names to their values.
// The zero value is an empty container ready to use.
type Headers struct {
	keys []string
	m    map[string][]string
}

func New() *Headers {
	return &Headers{}
}

// From builds a container from fields, appending them in order.
func From(fields ...Field) *Headers {
	h := &Headers{}
	for _, f := range fields {
		h.Append(f.Key, f.Value)
	}
	return h
}

// FromHTTP converts a [net/http.Header]. Keys are visited in sorted order
// since map iteration order is not stable.
func FromHTTP(hdr http.Header) *Headers {
	h := &Headers{}
	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range hdr[k] {
			h.Append(k, v)
		}
	}
	return h
}

func (h *Headers) Append(key, value string) {
	key = strings.ToLower(key)
	if h.m == nil {
		h.m = map[string][]string{}
	}
	if _, ok := h.m[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.m[key] = append(h.m[key], value)
}

// Set replaces every value of key with value.
func (h *Headers) Set(key, value string) {
	key = strings.ToLower(key)
	if h.m == nil {
		h.m = map[string][]string{}
	}
	if _, ok := h.m[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.m[key] = []string{value}
}

// Get returns the first value appended for key, or "" if there is none.
func (h *Headers) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

func (h *Headers) Lookup(key string) (string, bool) {
	if h == nil {
		return "", false
	}
	vs := h.m[strings.ToLower(key)]
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

// Values returns a copy of all values of key in append order.
func (h *Headers) Values(key string) []string {
	if h == nil {
		return nil
	}
	vs := h.m[strings.ToLower(key)]
	if vs == nil {
		return nil
	}
	return append([]string(nil), vs...)
}

// GetAll is an alias of [Headers.Values].
func (h *Headers) GetAll(key string) []string {
	return h.Values(key)
}

func (h *Headers) Has(key string) bool {
	if h == nil {
		return false
	}
	_, ok := h.m[strings.ToLower(key)]
	return ok
}

func (h *Headers) Del(key string) {
	if h == nil {
		return
	}
	key = strings.ToLower(key)
	if _, ok := h.m[key]; !ok {
		return
	}
	delete(h.m, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i:i], h.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct keys.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Keys returns the distinct keys in the order they were first appended.
func (h *Headers) Keys() []string {
	if h == nil {
		return nil
	}
	return append([]string(nil), h.keys...)
}

// Range calls fn for every [key, value] pair, keys in insertion order and
// values in append order. Iteration stops when fn returns false.
func (h *Headers) Range(fn func(key, value string) bool) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		for _, v := range h.m[k] {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Entries flattens the container in [Headers.Range] order.
func (h *Headers) Entries() []Field {
	var fields []Field
	h.Range(func(k, v string) bool {
		fields = append(fields, Field{k, v})
		return true
	})
	return fields
}

func (h *Headers) Clone() *Headers {
	c := &Headers{}
	h.Range(func(k, v string) bool {
		c.Append(k, v)
		return true
	})
	return c
}

// HTTP converts the container to a [net/http.Header] with canonical keys.
func (h *Headers) HTTP() http.Header {
	hdr := http.Header{}
	h.Range(func(k, v string) bool {
		hdr.Add(k, v)
		return true
	})
	return hdr
}
