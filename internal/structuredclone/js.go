// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package structuredclone

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/dop251/goja"
)

// Write serializes a value owned by vm. It must be called on the goroutine
// that owns vm.
func Write(vm *goja.Runtime, value goja.Value) ([]byte, error) {
	w := jsWriter{vm: vm, seen: make(map[*goja.Object]int)}
	root, err := w.write(value, 0)
	if err != nil {
		return nil, err
	}
	return marshal(root)
}

// Read deserializes data into a fresh value owned by vm.
func Read(vm *goja.Runtime, data []byte) (goja.Value, error) {
	root, err := unmarshal(data)
	if err != nil {
		return nil, err
	}
	r := jsReader{vm: vm, refs: make(map[int]*goja.Object)}
	return r.read(root, 0)
}

// Clone implements the structuredClone global, a Write followed by a Read
// within the same runtime.
func Clone(vm *goja.Runtime, value goja.Value) (goja.Value, error) {
	data, err := Write(vm, value)
	if err != nil {
		return nil, err
	}
	return Read(vm, data)
}

type jsWriter struct {
	vm        *goja.Runtime
	seen      map[*goja.Object]int
	arrayFrom goja.Callable
	mapCtor   *goja.Object
	setCtor   *goja.Object
	errorCtor *goja.Object
	next      int
}

// kind classifies obj. goja reports "Object" as the class of Map and Set, so
// those (and errors) are identified via their constructors.
func (w *jsWriter) kind(obj *goja.Object) string {
	if w.mapCtor == nil {
		w.mapCtor = w.vm.Get("Map").ToObject(w.vm)
		w.setCtor = w.vm.Get("Set").ToObject(w.vm)
		w.errorCtor = w.vm.Get("Error").ToObject(w.vm)
	}
	switch {
	case w.vm.InstanceOf(obj, w.mapCtor):
		return "Map"
	case w.vm.InstanceOf(obj, w.setCtor):
		return "Set"
	case w.vm.InstanceOf(obj, w.errorCtor):
		return "Error"
	default:
		return obj.ClassName()
	}
}

func (w *jsWriter) write(v goja.Value, depth int) (*node, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrDataClone)
	}
	if v == nil || goja.IsUndefined(v) {
		return &node{Type: tagUndefined}, nil
	}
	if goja.IsNull(v) {
		return &node{Type: tagNull}, nil
	}
	if _, ok := v.(*goja.Symbol); ok {
		return nil, fmt.Errorf("%w: symbol", ErrDataClone)
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return writePrimitive(v)
	}

	if id, ok := w.seen[obj]; ok {
		return &node{Type: tagRef, ID: id}, nil
	}
	if _, ok := goja.AssertFunction(obj); ok {
		return nil, fmt.Errorf("%w: function", ErrDataClone)
	}

	w.next++
	id := w.next
	w.seen[obj] = id

	kind := w.kind(obj)
	switch kind {
	case "Array":
		length := obj.Get("length").ToInteger()
		n := &node{Type: tagArray, ID: id, Items: make([]*node, 0, length)}
		for i := int64(0); i < length; i++ {
			item, err := w.write(obj.Get(strconv.FormatInt(i, 10)), depth+1)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, item)
		}
		return n, nil

	case "Date":
		getTime, ok := goja.AssertFunction(obj.Get("getTime"))
		if !ok {
			return nil, fmt.Errorf("%w: date without getTime", ErrDataClone)
		}
		ms, err := getTime(obj)
		if err != nil {
			return nil, err
		}
		n := numberNode(ms.ToFloat())
		n.Type = tagDate
		n.ID = id
		return n, nil

	case "Map", "Set":
		entries, err := w.from(obj)
		if err != nil {
			return nil, err
		}
		if kind == "Set" {
			n := &node{Type: tagSet, ID: id, Items: make([]*node, 0, len(entries))}
			for _, e := range entries {
				item, err := w.write(e, depth+1)
				if err != nil {
					return nil, err
				}
				n.Items = append(n.Items, item)
			}
			return n, nil
		}
		n := &node{Type: tagMap, ID: id, Items: make([]*node, 0, 2*len(entries))}
		for _, e := range entries {
			pair := e.ToObject(w.vm)
			k, err := w.write(pair.Get("0"), depth+1)
			if err != nil {
				return nil, err
			}
			val, err := w.write(pair.Get("1"), depth+1)
			if err != nil {
				return nil, err
			}
			n.Items = append(n.Items, k, val)
		}
		return n, nil

	case "Error":
		return &node{
			Type: tagError,
			ID:   id,
			Str:  obj.Get("message").String(),
			Keys: []string{obj.Get("name").String()},
		}, nil

	default:
		keys := obj.Keys()
		n := &node{Type: tagObject, ID: id, Keys: make([]string, 0, len(keys)), Items: make([]*node, 0, len(keys))}
		for _, k := range keys {
			val := obj.Get(k)
			if _, ok := goja.AssertFunction(val); ok {
				return nil, fmt.Errorf("%w: function at property %s", ErrDataClone, strconv.Quote(k))
			}
			item, err := w.write(val, depth+1)
			if err != nil {
				return nil, err
			}
			n.Keys = append(n.Keys, k)
			n.Items = append(n.Items, item)
		}
		return n, nil
	}
}

// from materializes the entries of an iterable via Array.from.
func (w *jsWriter) from(obj *goja.Object) ([]goja.Value, error) {
	if w.arrayFrom == nil {
		fn, ok := goja.AssertFunction(w.vm.Get("Array").ToObject(w.vm).Get("from"))
		if !ok {
			return nil, fmt.Errorf("%w: Array.from unavailable", ErrDataClone)
		}
		w.arrayFrom = fn
	}
	res, err := w.arrayFrom(goja.Undefined(), obj)
	if err != nil {
		return nil, err
	}
	arr := res.ToObject(w.vm)
	length := arr.Get("length").ToInteger()
	out := make([]goja.Value, 0, length)
	for i := int64(0); i < length; i++ {
		out = append(out, arr.Get(strconv.FormatInt(i, 10)))
	}
	return out, nil
}

func writePrimitive(v goja.Value) (*node, error) {
	switch x := v.Export().(type) {
	case bool:
		return &node{Type: tagBool, Bool: x}, nil
	case int64:
		return &node{Type: tagNumber, Num: float64(x)}, nil
	case float64:
		return numberNode(x), nil
	case string:
		return &node{Type: tagString, Str: x}, nil
	case *big.Int:
		return nil, fmt.Errorf("%w: bigint", ErrDataClone)
	default:
		return nil, fmt.Errorf("%w: unsupported primitive %T", ErrDataClone, x)
	}
}

type jsReader struct {
	vm   *goja.Runtime
	refs map[int]*goja.Object
}

func (r *jsReader) register(id int, obj *goja.Object) {
	if id != 0 {
		r.refs[id] = obj
	}
}

func (r *jsReader) construct(name string, args ...goja.Value) (*goja.Object, error) {
	return r.vm.New(r.vm.Get(name), args...)
}

func (r *jsReader) read(n *node, depth int) (goja.Value, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", ErrMalformed)
	}
	if depth > maxDepth {
		return nil, fmt.Errorf("%w: nesting too deep", ErrMalformed)
	}

	switch n.Type {
	case tagUndefined:
		return goja.Undefined(), nil
	case tagNull:
		return goja.Null(), nil
	case tagBool:
		return r.vm.ToValue(n.Bool), nil
	case tagNumber:
		f, err := n.number()
		if err != nil {
			return nil, err
		}
		return r.vm.ToValue(f), nil
	case tagString:
		return r.vm.ToValue(n.Str), nil

	case tagRef:
		obj, ok := r.refs[n.ID]
		if !ok {
			return nil, fmt.Errorf("%w: dangling reference %d", ErrMalformed, n.ID)
		}
		return obj, nil

	case tagArray:
		arr := r.vm.NewArray()
		r.register(n.ID, arr)
		for i, item := range n.Items {
			v, err := r.read(item, depth+1)
			if err != nil {
				return nil, err
			}
			if err := arr.Set(strconv.Itoa(i), v); err != nil {
				return nil, err
			}
		}
		return arr, nil

	case tagObject:
		if err := n.fields(); err != nil {
			return nil, err
		}
		obj := r.vm.NewObject()
		r.register(n.ID, obj)
		for i, k := range n.Keys {
			v, err := r.read(n.Items[i], depth+1)
			if err != nil {
				return nil, err
			}
			if err := obj.Set(k, v); err != nil {
				return nil, err
			}
		}
		return obj, nil

	case tagDate:
		ms, err := n.number()
		if err != nil {
			return nil, err
		}
		obj, err := r.construct("Date", r.vm.ToValue(ms))
		if err != nil {
			return nil, err
		}
		r.register(n.ID, obj)
		return obj, nil

	case tagMap, tagSet:
		name, method := "Map", "set"
		if n.Type == tagSet {
			name, method = "Set", "add"
		} else if err := n.entries(); err != nil {
			return nil, err
		}
		obj, err := r.construct(name)
		if err != nil {
			return nil, err
		}
		r.register(n.ID, obj)
		add, ok := goja.AssertFunction(obj.Get(method))
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s unavailable", ErrMalformed, name, method)
		}
		step := 1
		if n.Type == tagMap {
			step = 2
		}
		for i := 0; i < len(n.Items); i += step {
			args := make([]goja.Value, step)
			for j := range step {
				v, err := r.read(n.Items[i+j], depth+1)
				if err != nil {
					return nil, err
				}
				args[j] = v
			}
			if _, err := add(obj, args...); err != nil {
				return nil, err
			}
		}
		return obj, nil

	case tagError:
		obj, err := r.construct("Error", r.vm.ToValue(n.Str))
		if err != nil {
			return nil, err
		}
		if len(n.Keys) > 0 && n.Keys[0] != "Error" {
			if err := obj.Set("name", n.Keys[0]); err != nil {
				return nil, err
			}
		}
		r.register(n.ID, obj)
		return obj, nil

	default:
		return nil, fmt.Errorf("%w: unknown tag %s", ErrMalformed, strconv.Quote(n.Type))
	}
}
