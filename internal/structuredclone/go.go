// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package structuredclone

import (
	"fmt"
	"math"
	"reflect"
	"time"
	"unsafe"
)

// Undefined is the Go representation of the JS undefined value.
type Undefined struct{}

// Map is the Go representation of a JS Map, preserving insertion order and
// non-string keys.
type Map struct {
	Entries []Entry
}

// Entry is a single Map entry.
type Entry struct {
	Key   any
	Value any
}

// Get returns the value for the first entry whose key equals key. Only
// comparable keys can match.
func (m *Map) Get(key any) (any, bool) {
	for _, e := range m.Entries {
		if isComparable(e.Key) && isComparable(key) && e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Set is the Go representation of a JS Set, preserving insertion order.
type Set struct {
	Values []any
}

// Error is the Go representation of a cloned JS Error.
type Error struct {
	Name    string
	Message string
}

func (e *Error) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func isComparable(v any) bool {
	return v == nil || reflect.TypeOf(v).Comparable()
}

// Encode serializes a Go value. Supported: nil, [Undefined], bool, numbers,
// string, [time.Time], slices and arrays, maps with string keys, [*Map],
// [*Set], [*Error], and pointers to any of these. Shared maps, slices, and
// [*Map] or [*Set] values are encoded as references.
func Encode(v any) ([]byte, error) {
	e := goEncoder{seen: make(map[goRef]int)}
	root, err := e.encode(reflect.ValueOf(v), 0)
	if err != nil {
		return nil, err
	}
	return marshal(root)
}

// Decode deserializes data into Go values, see [Encode]. Arrays decode as
// []any, objects as map[string]any, and numbers as float64.
func Decode(data []byte) (any, error) {
	root, err := unmarshal(data)
	if err != nil {
		return nil, err
	}
	d := goDecoder{refs: make(map[int]any)}
	return d.decode(root, 0)
}

type goRef struct {
	ptr unsafe.Pointer
	len int
}

type goEncoder struct {
	seen map[goRef]int
	next int
}

func (e *goEncoder) track(ref goRef) (id int, seen bool) {
	if ref.ptr == nil {
		e.next++
		return e.next, false
	}
	if id, ok := e.seen[ref]; ok {
		return id, true
	}
	e.next++
	e.seen[ref] = e.next
	return e.next, false
}

func (e *goEncoder) encode(v reflect.Value, depth int) (*node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrDataClone)
	}
	if !v.IsValid() {
		return &node{Type: tagNull}, nil
	}

	switch x := v.Interface().(type) {
	case Undefined, *Undefined:
		return &node{Type: tagUndefined}, nil
	case time.Time:
		n := numberNode(float64(x.UnixMilli()))
		n.Type = tagDate
		e.next++
		n.ID = e.next
		return n, nil
	case *Map:
		if x == nil {
			return &node{Type: tagNull}, nil
		}
		id, seen := e.track(goRef{ptr: unsafe.Pointer(x)})
		if seen {
			return &node{Type: tagRef, ID: id}, nil
		}
		n := &node{Type: tagMap, ID: id, Items: make([]*node, 0, 2*len(x.Entries))}
		for _, entry := range x.Entries {
			k, err := e.encode(reflect.ValueOf(entry.Key), depth+1)
			if err != nil {
				return nil, err
			}
			val, err := e.encode(reflect.ValueOf(entry.Value), depth+1)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, k, val)
		}
		return n, nil
	case *Set:
		if x == nil {
			return &node{Type: tagNull}, nil
		}
		id, seen := e.track(goRef{ptr: unsafe.Pointer(x)})
		if seen {
			return &node{Type: tagRef, ID: id}, nil
		}
		n := &node{Type: tagSet, ID: id, Items: make([]*node, 0, len(x.Values))}
		for _, val := range x.Values {
			item, err := e.encode(reflect.ValueOf(val), depth+1)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil
	case *Error:
		if x == nil {
			return &node{Type: tagNull}, nil
		}
		e.next++
		return &node{Type: tagError, ID: e.next, Str: x.Message, Keys: []string{x.Name}}, nil
	}

	switch v.Kind() {
	case reflect.Bool:
		return &node{Type: tagBool, Bool: v.Bool()}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &node{Type: tagNumber, Num: float64(v.Int())}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return &node{Type: tagNumber, Num: float64(v.Uint())}, nil
	case reflect.Float32, reflect.Float64:
		return numberNode(v.Float()), nil
	case reflect.String:
		return &node{Type: tagString, Str: v.String()}, nil

	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return &node{Type: tagNull}, nil
		}
		return e.encode(v.Elem(), depth)

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return &node{Type: tagNull}, nil
		}
		var ref goRef
		if v.Kind() == reflect.Slice && v.Len() > 0 {
			ref = goRef{ptr: v.UnsafePointer(), len: v.Len()}
		}
		id, seen := e.track(ref)
		if seen {
			return &node{Type: tagRef, ID: id}, nil
		}
		n := &node{Type: tagArray, ID: id, Items: make([]*node, 0, v.Len())}
		for i := range v.Len() {
			item, err := e.encode(v.Index(i), depth+1)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key type %s", ErrDataClone, v.Type().Key())
		}
		if v.IsNil() {
			return &node{Type: tagNull}, nil
		}
		id, seen := e.track(goRef{ptr: v.UnsafePointer()})
		if seen {
			return &node{Type: tagRef, ID: id}, nil
		}
		n := &node{Type: tagObject, ID: id, Keys: make([]string, 0, v.Len()), Items: make([]*node, 0, v.Len())}
		iter := v.MapRange()
		for iter.Next() {
			item, err := e.encode(iter.Value(), depth+1)
			if err != nil {
				return nil, err
			}
			n.Keys = append(n.Keys, iter.Key().String())
			n.Items = append(n.Items, item)
		}
		return n, nil

	default:
		return nil, fmt.Errorf("%w: unsupported type %s", ErrDataClone, v.Type())
	}
}

type goDecoder struct {
	refs map[int]any
}

func (d *goDecoder) register(id int, v any) {
	if id != 0 {
		d.refs[id] = v
	}
}

func (d *goDecoder) decode(n *node, depth int) (any, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrMalformed)
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrMalformed)
	}

	switch n.Type {
	case tagUndefined:
		return Undefined{}, nil
	case tagNull:
		return nil, nil
	case tagBool:
		return n.Bool, nil
	case tagNumber:
		return n.number()
	case tagString:
		return n.Str, nil

	case tagRef:
		v, ok := d.refs[n.ID]
		if !ok {
			return nil, fmt.Errorf("%w: dangling reference %d", ErrMalformed, n.ID)
		}
		return v, nil

	case tagArray:
		arr := make([]any, len(n.Items))
		d.register(n.ID, arr)
		for i, item := range n.Items {
			v, err := d.decode(item, depth+1)
			if err != nil {
				return nil, err
			}
			arr[i] = v
		}
		return arr, nil

	case tagObject:
		if err := n.fields(); err != nil {
			return nil, err
		}
		obj := make(map[string]any, len(n.Keys))
		d.register(n.ID, obj)
		for i, k := range n.Keys {
			v, err := d.decode(n.Items[i], depth+1)
			if err != nil {
				return nil, err
			}
			obj[k] = v
		}
		return obj, nil

	case tagDate:
		ms, err := n.number()
		if err != nil {
			return nil, err
		}
		var t time.Time
		if !math.IsNaN(ms) && !math.IsInf(ms, 0) {
			t = time.UnixMilli(int64(ms)).UTC()
		}
		d.register(n.ID, t)
		return t, nil

	case tagMap:
		if err := n.entries(); err != nil {
			return nil, err
		}
		m := &Map{Entries: make([]Entry, 0, len(n.Items)/2)}
		d.register(n.ID, m)
		for i := 0; i < len(n.Items); i += 2 {
			k, err := d.decode(n.Items[i], depth+1)
			if err != nil {
				return nil, err
			}
			v, err := d.decode(n.Items[i+1], depth+1)
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, Entry{Key: k, Value: v})
		}
		return m, nil

	case tagSet:
		s := &Set{Values: make([]any, 0, len(n.Items))}
		d.register(n.ID, s)
		for _, item := range n.Items {
			v, err := d.decode(item, depth+1)
			if err != nil {
				return nil, err
			}
			s.Values = append(s.Values, v)
		}
		return s, nil

	case tagError:
		e := &Error{Message: n.Str}
		if len(n.Keys) > 0 {
			e.Name = n.Keys[0]
		}
		d.register(n.ID, e)
		return e, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %q", ErrMalformed, n.Type)
	}
}
