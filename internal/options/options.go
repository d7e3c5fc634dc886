// Package options models plugin and handler option schemas.
//
// A Schema maps option names to an Option node. A node is either a leaf with
// a default value or a nested Schema (Contains). Defaults and Unpack are
// structural recursions over the schema rather than over free-form maps.
package options

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Option is one node of a Schema.
type Option struct {
	// Default is the leaf default. Ignored when Contains is set.
	Default any
	// Contains makes the option a nested schema.
	Contains Schema
}

// Schema describes the options a plugin understands.
type Schema map[string]Option

// Leaf returns a leaf option with the given default.
func Leaf(def any) Option { return Option{Default: def} }

// Nested returns an option holding a nested schema.
func Nested(s Schema) Option { return Option{Contains: s} }

// Values is a resolved option tree.
type Values map[string]any

// Defaults builds the value tree described by s.
func (s Schema) Defaults() Values {
	out := make(Values, len(s))
	for name, opt := range s {
		if opt.Contains != nil {
			out[name] = map[string]any(opt.Contains.Defaults())
			continue
		}
		out[name] = cloneValue(opt.Default)
	}
	return out
}

// Merge returns a copy of s with every entry of other added, replacing
// entries with the same name.
func (s Schema) Merge(other Schema) Schema {
	out := make(Schema, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Unpack merges in into storage following schema s.
//
// When all is true every key in the input is copied. When false only keys
// known to the schema are kept; a nested input under a known leaf option is
// copied as a whole.
func Unpack(storage Values, in map[string]any, s Schema, all bool) Values {
	if storage == nil {
		storage = Values{}
	}
	for key, value := range in {
		def, known := s[key]
		nested, isMap := asMap(value)
		if !isMap {
			if all || known {
				storage[key] = cloneValue(value)
			}
			continue
		}
		if !all && !known {
			continue
		}
		if !all && known && def.Contains == nil {
			storage[key] = cloneValue(value)
			continue
		}
		sub, ok := asMap(storage[key])
		if !ok {
			sub = map[string]any{}
		}
		storage[key] = map[string]any(Unpack(Values(sub), nested, def.Contains, all))
	}
	return storage
}

// Resolve returns the schema defaults overlaid with in.
func Resolve(s Schema, in map[string]any) Values {
	return Unpack(s.Defaults(), in, s, true)
}

// Get walks the value tree along path.
func (v Values) Get(path ...string) (any, bool) {
	var cur any = map[string]any(v)
	for _, p := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, creating intermediate maps.
func (v Values) Set(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	cur := map[string]any(v)
	for _, p := range path[:len(path)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// String returns the value at path as a string.
func (v Values) String(path ...string) string {
	raw, ok := v.Get(path...)
	if !ok || raw == nil {
		return ""
	}
	switch t := raw.(type) {
	case string:
		return t
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

// Bool returns the value at path interpreted as a flag.
func (v Values) Bool(path ...string) bool {
	raw, _ := v.Get(path...)
	return Truthy(raw)
}

// Int returns the value at path as an int, zero when absent or invalid.
func (v Values) Int(path ...string) int {
	raw, _ := v.Get(path...)
	switch t := raw.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case int32:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	case bool:
		if t {
			return 1
		}
	}
	return 0
}

// Map returns the nested value tree at path.
func (v Values) Map(path ...string) Values {
	raw, _ := v.Get(path...)
	m, ok := asMap(raw)
	if !ok {
		return Values{}
	}
	return Values(m)
}

// Strings returns the value at path as a string list. A map yields its
// keys with truthy values in sorted order.
func (v Values) Strings(path ...string) []string {
	raw, _ := v.Get(path...)
	switch t := raw.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	if m, ok := asMap(raw); ok {
		out := make([]string, 0, len(m))
		for k, e := range m {
			if Truthy(e) {
				out = append(out, k)
			}
		}
		sort.Strings(out)
		return out
	}
	return nil
}

// Clone returns a deep copy of v.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	return Values(cloneValue(map[string]any(v)).(map[string]any))
}

// Truthy reports whether raw counts as an enabled flag.
func Truthy(raw any) bool {
	switch t := raw.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	case Values:
		return len(t) > 0
	}
	return true
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Values:
		return map[string]any(t), true
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = e
		}
		return out, true
	}
	return nil, false
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, e := range m {
			out[k] = cloneValue(e)
		}
		return out
	}
	if l, ok := v.([]any); ok {
		out := make([]any, len(l))
		for i, e := range l {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}
