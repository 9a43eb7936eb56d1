// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redact

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindSequence
	KindMapping
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is a tagged variant over the shapes log payloads can take.
// The zero Value is Null.
type Value struct {
	kind Kind
	b    bool
	num  any // original numeric value, kept so ints stay ints
	s    string
	seq  []Value
	m    map[string]Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value. n should be one of Go's integer or float types.
func Number(n any) Value { return Value{kind: KindNumber, num: n} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Sequence returns an ordered sequence of values.
func Sequence(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindSequence, seq: items}
}

// Mapping returns a mapping value. The map is used as-is.
func Mapping(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMapping, m: m}
}

// Kind returns the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload and whether v is a String.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Items returns the elements of a Sequence.
func (v Value) Items() []Value { return v.seq }

// Get returns the mapping entry for key.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMapping {
		return Value{}, false
	}
	child, ok := v.m[key]
	return child, ok
}

// Keys returns the mapping keys in sorted order.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Interface converts v back into plain Go values:
// nil, bool, the original number, string, []any or map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.s
	case KindSequence:
		out := make([]any, len(v.seq))
		for i, item := range v.seq {
			out[i] = item.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the plain form of v.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports whether v and other hold the same structure.
func (v Value) Equal(other Value) bool {
	return reflect.DeepEqual(v.Interface(), other.Interface())
}

// Of converts an arbitrary Go value into a Value.
// Header collections and other non-plain objects become mappings.
func Of(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Number(t)
	case json.Number:
		return Number(t)
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case error:
		return String(t.Error())
	case time.Time:
		return String(t.Format(time.RFC3339Nano))
	case time.Duration:
		return Number(t.Milliseconds())
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Of(item)
		}
		return Sequence(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = String(item)
		}
		return Sequence(items...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = Of(item)
		}
		return Mapping(m)
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, item := range t {
			m[k] = String(item)
		}
		return Mapping(m)
	case http.Header:
		return headerMapping(t)
	case url.Values:
		return headerMapping(t)
	case fmt.Stringer:
		return String(t.String())
	}
	return reflectValue(x)
}

func headerMapping(h map[string][]string) Value {
	m := make(map[string]Value, len(h))
	for k, vals := range h {
		m[strings.ToLower(k)] = String(strings.Join(vals, ", "))
	}
	return Mapping(m)
}

// reflectValue handles slices and maps of other element types, and falls
// back to the JSON representation for structs and anything else.
func reflectValue(x any) Value {
	rv := reflect.ValueOf(x)
	if _, ok := x.(json.Marshaler); ok {
		if v, ok := fromJSON(x); ok {
			return v
		}
	}
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8 {
		return String(string(rv.Bytes()))
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null()
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = Of(rv.Index(i).Interface())
		}
		return Sequence(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			m := make(map[string]Value, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				m[iter.Key().String()] = Of(iter.Value().Interface())
			}
			return Mapping(m)
		}
	}

	if v, ok := fromJSON(x); ok {
		return v
	}
	return String(fmt.Sprintf("%v", x))
}

// fromJSON converts x through its JSON encoding.
func fromJSON(x any) (Value, bool) {
	data, err := json.Marshal(x)
	if err != nil {
		return Value{}, false
	}
	var plain any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&plain); err != nil {
		return String(string(data)), true
	}
	return Of(plain), true
}
