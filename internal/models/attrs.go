// Shelfwise - Bookstore Recommendation Tracking and Serving Engine
// Copyright 2026 Shelfwise Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/shelfwise/shelfwise

package models

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindFloat
	KindString
	KindList
	KindMap
)

// Value is a tagged variant for open payloads (impression context, feedback
// metadata). Callers attach arbitrary JSON-shaped data; the closed set of
// kinds keeps downstream consumers (trending dwell extraction, trainer
// payloads) type-checked instead of casting through interface{}.
type Value struct {
	kind Kind
	b    bool
	f    float64
	s    string
	l    []Value
	m    map[string]Value
}

// Null returns the null Value.
func Null() Value { return Value{kind: KindNull} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Float wraps a number. JSON numbers always decode to this variant.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// List wraps a list of values.
func List(l []Value) Value { return Value{kind: KindList, l: l} }

// Map wraps a nested attribute map.
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// BoolValue returns the boolean and whether the Value holds one.
func (v Value) BoolValue() (bool, bool) { return v.b, v.kind == KindBool }

// FloatValue returns the number and whether the Value holds one.
func (v Value) FloatValue() (float64, bool) { return v.f, v.kind == KindFloat }

// StringValue returns the string and whether the Value holds one.
func (v Value) StringValue() (string, bool) { return v.s, v.kind == KindString }

// ListValue returns the list and whether the Value holds one.
func (v Value) ListValue() ([]Value, bool) { return v.l, v.kind == KindList }

// MapValue returns the nested map and whether the Value holds one.
func (v Value) MapValue() (map[string]Value, bool) { return v.m, v.kind == KindMap }

// MarshalJSON encodes the underlying variant directly, so Attrs round-trip
// as plain JSON objects on the wire.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindFloat:
		return json.Marshal(v.f)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		return json.Marshal(v.l)
	case KindMap:
		return json.Marshal(v.m)
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.kind)
	}
}

// UnmarshalJSON decodes any JSON value into the matching variant.
// Integers arrive as KindFloat; callers needing integral values truncate.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = fromInterface(raw)
	return nil
}

func fromInterface(raw interface{}) Value {
	switch t := raw.(type) {
	case nil:
		return Null()
	case bool:
		return Bool(t)
	case float64:
		return Float(t)
	case string:
		return String(t)
	case []interface{}:
		l := make([]Value, len(t))
		for i, e := range t {
			l[i] = fromInterface(e)
		}
		return List(l)
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			m[k] = fromInterface(e)
		}
		return Map(m)
	default:
		// json.Unmarshal into interface{} only produces the cases above
		return Null()
	}
}

// Attrs is a string-keyed open attribute map used for impression context and
// feedback metadata payloads.
type Attrs map[string]Value

// GetFloat returns the numeric attribute for key, or def when absent or
// non-numeric. Used by trending to read dwell time out of view metadata.
func (a Attrs) GetFloat(key string, def float64) float64 {
	if v, ok := a[key]; ok {
		if f, isNum := v.FloatValue(); isNum {
			return f
		}
	}
	return def
}

// GetString returns the string attribute for key, or "" when absent.
func (a Attrs) GetString(key string) string {
	if v, ok := a[key]; ok {
		if s, isStr := v.StringValue(); isStr {
			return s
		}
	}
	return ""
}
