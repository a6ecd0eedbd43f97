// Copyright 2025-2026 Patrick J. Scruggs
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

package slogex

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/valyala/fastjson"
)

const rootPath = "@"

var (
	errorType         = reflect.TypeFor[error]()
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
)

// Serialize encodes args as a canonical JSON array. Map keys are sorted, so
// equal inputs always produce equal output. Pointers, maps and non-empty
// slices are tracked by identity; a container reached a second time is
// replaced by "*** circular dependency (<path>) ***", where path names the
// first place it was seen ("@" for the argument list, "@.1.key" below it).
// Serialize never fails.
func Serialize(args []any) string {
	if args == nil {
		args = []any{}
	}
	return encodeTree(newSerializer().root(reflect.ValueOf(args)))
}

// displayValue renders one message argument for the live display.
func displayValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return encodeTree(newSerializer().root(reflect.ValueOf(v)))
}

// Deserialize decodes a message produced by Serialize back into its values.
// Objects decode to map[string]any, arrays to []any and numbers to float64,
// except integers beyond float64's exact range, which decode to int64 or
// uint64.
func Deserialize(msg string) ([]any, error) {
	var p fastjson.Parser
	v, err := p.Parse(msg)
	if err != nil {
		return nil, fmt.Errorf("slogex: parse message: %w", err)
	}
	items, err := v.Array()
	if err != nil {
		return nil, fmt.Errorf("slogex: message is not an argument list: %w", err)
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		decoded, err := fromFastJSON(item)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

// maxExactInt is the largest magnitude float64 holds without rounding.
const maxExactInt = 1 << 53

func decodeNumber(v *fastjson.Value) (any, error) {
	raw := v.String()
	if !strings.ContainsAny(raw, ".eE") {
		if n, err := v.Int64(); err == nil {
			if n > maxExactInt || n < -maxExactInt {
				return n, nil
			}
		} else if u, err := v.Uint64(); err == nil {
			return u, nil
		}
	}
	return v.Float64()
}

// fromFastJSON converts a parsed fastjson value into plain Go values.
func fromFastJSON(v *fastjson.Value) (any, error) {
	switch v.Type() {
	case fastjson.TypeNull:
		return nil, nil
	case fastjson.TypeTrue:
		return true, nil
	case fastjson.TypeFalse:
		return false, nil
	case fastjson.TypeNumber:
		return decodeNumber(v)
	case fastjson.TypeString:
		b, err := v.StringBytes()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case fastjson.TypeArray:
		items, _ := v.Array()
		out := make([]any, 0, len(items))
		for _, item := range items {
			decoded, err := fromFastJSON(item)
			if err != nil {
				return nil, err
			}
			out = append(out, decoded)
		}
		return out, nil
	case fastjson.TypeObject:
		obj, _ := v.Object()
		out := make(map[string]any, obj.Len())
		var visitErr error
		obj.Visit(func(key []byte, child *fastjson.Value) {
			if visitErr != nil {
				return
			}
			decoded, err := fromFastJSON(child)
			if err != nil {
				visitErr = err
				return
			}
			out[string(key)] = decoded
		})
		return out, visitErr
	default:
		return nil, fmt.Errorf("slogex: unsupported json type %s", v.Type())
	}
}

// encodeTree marshals a tree produced by the serializer.
func encodeTree(tree any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tree); err != nil {
		return strconv.Quote(err.Error())
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// ref identifies a reference-typed container.
type ref struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

type serializer struct {
	priors map[ref]string
}

func newSerializer() *serializer {
	return &serializer{priors: make(map[ref]string)}
}

// root walks the top-level value, registering it under "@".
func (s *serializer) root(v reflect.Value) any {
	v = unwrap(v)
	if r, ok := refOf(v); ok {
		s.priors[r] = rootPath
	}
	return s.walk(v, rootPath)
}

// unwrap strips interface layers.
func unwrap(v reflect.Value) reflect.Value {
	for v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// refOf returns the identity of v when v is a tracked container.
func refOf(v reflect.Value) (ref, bool) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return ref{}, false
		}
		return ref{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Map:
		if v.IsNil() {
			return ref{}, false
		}
		return ref{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		if v.Len() == 0 {
			return ref{}, false
		}
		return ref{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, true
	default:
		return ref{}, false
	}
}

// composite reports whether walking v may descend into children.
func composite(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}

// child is one entry of a container pending a walk.
type child struct {
	key   string
	value reflect.Value
}

// walkChildren applies the two-pass rule: every tracked child of the current
// container is registered before any of them is descended into, so siblings
// sharing a reference resolve to the first sibling's path.
func (s *serializer) walkChildren(children []child, path string, set func(key string, value any)) {
	var pending []child
	for _, c := range children {
		v := unwrap(c.value)
		childPath := path + "." + c.key
		if r, ok := refOf(v); ok {
			if prior, seen := s.priors[r]; seen {
				set(c.key, circular(prior))
				continue
			}
			s.priors[r] = childPath
		}
		if composite(v) {
			pending = append(pending, child{key: c.key, value: v})
			continue
		}
		set(c.key, s.walk(v, childPath))
	}
	for _, c := range pending {
		set(c.key, s.walk(c.value, path+"."+c.key))
	}
}

func circular(path string) string {
	return "*** circular dependency (" + path + ") ***"
}

// walk converts v into a tree of JSON-compatible values.
func (s *serializer) walk(v reflect.Value, path string) any {
	v = unwrap(v)
	if !v.IsValid() {
		return nil
	}
	if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Map || v.Kind() == reflect.Slice) && v.IsNil() {
		return nil
	}
	if v.CanInterface() {
		if v.Type().Implements(jsonMarshalerType) {
			return marshaled(v.Interface())
		}
		if v.Type().Implements(errorType) {
			return v.Interface().(error).Error()
		}
	}

	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f
	case reflect.String:
		return v.String()
	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex())
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.Type().String()
	case reflect.Pointer:
		return s.walk(v.Elem(), path)
	case reflect.Map:
		return s.walkMap(v, path)
	case reflect.Slice, reflect.Array:
		return s.walkList(v, path)
	case reflect.Struct:
		return s.walkStruct(v, path)
	default:
		return fmt.Sprint(v)
	}
}

func (s *serializer) walkList(v reflect.Value, path string) any {
	out := make([]any, v.Len())
	children := make([]child, v.Len())
	for i := range v.Len() {
		children[i] = child{key: strconv.Itoa(i), value: v.Index(i)}
	}
	s.walkChildren(children, path, func(key string, value any) {
		i, _ := strconv.Atoi(key)
		out[i] = value
	})
	return out
}

func (s *serializer) walkMap(v reflect.Value, path string) any {
	out := make(map[string]any, v.Len())
	children := make([]child, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		children = append(children, child{key: mapKey(iter.Key()), value: iter.Value()})
	}
	// Registration order decides which path a shared reference reports.
	sortChildren(children)
	s.walkChildren(children, path, func(key string, value any) {
		out[key] = value
	})
	return out
}

func (s *serializer) walkStruct(v reflect.Value, path string) any {
	out := make(map[string]any)
	t := v.Type()
	children := make([]child, 0, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, omitEmpty, skip := fieldName(f)
		if skip {
			continue
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		children = append(children, child{key: name, value: fv})
	}
	s.walkChildren(children, path, func(key string, value any) {
		out[key] = value
	})
	return out
}

// fieldName applies encoding/json tag naming to f.
func fieldName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	for _, opt := range strings.Split(opts, ",") {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return name, omitEmpty, false
}

func mapKey(k reflect.Value) string {
	k = unwrap(k)
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func sortChildren(children []child) {
	slices.SortFunc(children, func(a, b child) int {
		return strings.Compare(a.key, b.key)
	})
}

// marshaled defers to a value's own JSON encoding and decodes the result so it
// nests inside the tree.
func marshaled(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		var unsupported *json.UnsupportedValueError
		if errors.As(err, &unsupported) {
			return unsupported.Str
		}
		return fmt.Sprint(v)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return string(raw)
	}
	return out
}
