package domain

import (
	"fmt"
	"reflect"
	"sort"
)

// RelSnapshot is a point-in-time copy of a ticket's relations rendered
// as strings. Values are either string or []string.
type RelSnapshot map[string]any

// NewRelSnapshot renders rels into a snapshot.
func NewRelSnapshot(rels map[string]any) RelSnapshot {
	snapshot := make(RelSnapshot, len(rels))
	for name, value := range rels {
		snapshot[name] = renderRelation(value)
	}
	return snapshot
}

func renderRelation(value any) any {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []fmt.Stringer:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if isNil(item) {
				continue
			}
			out = append(out, item.String())
		}
		return out
	}

	// Multi-valued relations always render as a list, even when nil.
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item := rv.Index(i).Interface()
			if isNil(item) {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	if isNil(value) {
		return ""
	}
	if v, ok := value.(fmt.Stringer); ok {
		return v.String()
	}
	return fmt.Sprint(value)
}

func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}

// String returns a single-valued relation, or "" if absent.
func (s RelSnapshot) String(name string) string {
	if v, ok := s[name].(string); ok {
		return v
	}
	return ""
}

// Strings returns a multi-valued relation. Values decoded from JSON
// arrive as []any and are converted.
func (s RelSnapshot) Strings(name string) []string {
	switch v := s[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// Keys returns the relation names in sorted order.
func (s RelSnapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
