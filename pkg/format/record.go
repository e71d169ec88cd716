package format

import (
	"fmt"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Metadata is an insertion-ordered key/value mapping. Rendering walks the
// keys in the order they were set, which is also the order they appear in
// a decoded JSON or YAML document.
type Metadata = orderedmap.OrderedMap[string, any]

// NewMetadata returns an empty Metadata.
func NewMetadata() *Metadata {
	return orderedmap.New[string, any]()
}

// MetadataOf builds Metadata from alternating key/value arguments.
// It panics on an odd argument count or a non-string key, so it is meant
// for literals in code and tests.
func MetadataOf(kv ...any) *Metadata {
	if len(kv)%2 != 0 {
		panic("format.MetadataOf: odd number of arguments")
	}
	md := NewMetadata()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("format.MetadataOf: key %v is not a string", kv[i]))
		}
		md.Set(key, kv[i+1])
	}
	return md
}

// Record is one supporting source document attached to the end of a run.
type Record struct {
	Metadata    *Metadata `json:"metadata,omitempty"`
	PageContent string    `json:"page_content"`
}

// RenderMetadata renders metadata as newline-joined "key: value" lines in
// key order. A nil or empty mapping renders as "".
func RenderMetadata(md *Metadata) string {
	if md == nil || md.Len() == 0 {
		return ""
	}
	lines := make([]string, 0, md.Len())
	for pair := md.Oldest(); pair != nil; pair = pair.Next() {
		lines = append(lines, fmt.Sprintf("%s: %v", pair.Key, pair.Value))
	}
	return strings.Join(lines, "\n")
}

// KeyOrderField is the plain-map entry that carries the original key order
// of Metadata through APIs that only accept map[string]any.
const KeyOrderField = "_finalstream_key_order"

// MetadataToMap copies md into a plain map, recording its key order under
// KeyOrderField. A nil md gives an empty map.
func MetadataToMap(md *Metadata) map[string]any {
	m := map[string]any{}
	if md == nil || md.Len() == 0 {
		return m
	}
	order := make([]string, 0, md.Len())
	for pair := md.Oldest(); pair != nil; pair = pair.Next() {
		m[pair.Key] = pair.Value
		order = append(order, pair.Key)
	}
	m[KeyOrderField] = order
	return m
}

// MetadataFromMap rebuilds Metadata from a map written by MetadataToMap.
// Keys listed under KeyOrderField come first in that order; keys missing
// from it follow in sorted order.
func MetadataFromMap(m map[string]any) *Metadata {
	md := NewMetadata()
	for _, k := range keyOrder(m[KeyOrderField]) {
		if v, ok := m[k]; ok && k != KeyOrderField {
			md.Set(k, v)
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if _, seen := md.Get(k); !seen && k != KeyOrderField {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		md.Set(k, m[k])
	}
	return md
}

// keyOrder accepts the order as set by MetadataToMap or as decoded from JSON.
func keyOrder(v any) []string {
	switch order := v.(type) {
	case []string:
		return order
	case []any:
		keys := make([]string, 0, len(order))
		for _, k := range order {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	default:
		return nil
	}
}
