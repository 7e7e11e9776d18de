package graph

import (
	"fmt"
	"reflect"
	"strings"
)

type mergeMode int

const (
	mergeOverwrite mergeMode = iota
	mergeAppend
	mergePath
)

type schemaField struct {
	index int
	key   string
	mode  mergeMode
}

// StructSchema merges partial state deltas into a struct state by key.
//
// Keys are the json tag names of the exported fields (the Go field name when
// untagged). Merge rules come from the `graph` tag:
//
//	Messages []Message `json:"messages" graph:"append"` // concatenated
//	Path     []string  `json:"processing_path" graph:"path"`  // engine-owned audit trail
//	Answer   string    `json:"answer"`                 // overwritten when non-zero
//
// A zero value in a delta means "not written" and leaves the state untouched.
// A node therefore cannot reset a plain field to its zero value (an empty
// string, 0 or false); states that need a reset should model it with a
// non-zero value such as a pointer field or an explicit "none" constant.
type StructSchema[S any] struct {
	typ    reflect.Type
	fields []schemaField
	byKey  map[string]schemaField
	path   int
}

// NewStructSchema builds the schema for struct type S.
func NewStructSchema[S any]() (*StructSchema[S], error) {
	var zero S
	typ := reflect.TypeOf(zero)
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("state type %v must be a struct", typ)
	}

	s := &StructSchema[S]{
		typ:   typ,
		byKey: make(map[string]schemaField),
		path:  -1,
	}

	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		key := fieldKey(f)
		if key == "-" {
			continue
		}

		field := schemaField{index: i, key: key}
		switch tag := f.Tag.Get("graph"); tag {
		case "":
		case "append":
			if f.Type.Kind() != reflect.Slice {
				return nil, fmt.Errorf("field %s: append merge requires a slice, got %v", f.Name, f.Type)
			}
			field.mode = mergeAppend
		case "path":
			if f.Type != reflect.TypeOf([]string(nil)) {
				return nil, fmt.Errorf("field %s: path field must be []string, got %v", f.Name, f.Type)
			}
			if s.path >= 0 {
				return nil, fmt.Errorf("field %s: only one path field is allowed", f.Name)
			}
			field.mode = mergePath
			s.path = i
		default:
			return nil, fmt.Errorf("field %s: unknown graph tag %q", f.Name, tag)
		}

		if _, dup := s.byKey[key]; dup {
			return nil, fmt.Errorf("field %s: duplicate state key %q", f.Name, key)
		}
		s.fields = append(s.fields, field)
		s.byKey[key] = field
	}

	return s, nil
}

func fieldKey(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" {
		return f.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return f.Name
	}
	return name
}

// HasKey reports whether key names a state field.
func (s *StructSchema[S]) HasKey(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

// PathKey returns the key of the processing-path field, or "" when S has none.
func (s *StructSchema[S]) PathKey() string {
	if s.path < 0 {
		return ""
	}
	return fieldKey(s.typ.Field(s.path))
}

// Keys returns the keys a delta writes, in field order.
func (s *StructSchema[S]) Keys(delta S) []string {
	v := reflect.ValueOf(delta)
	var keys []string
	for _, f := range s.fields {
		if !v.Field(f.index).IsZero() {
			keys = append(keys, f.key)
		}
	}
	return keys
}

// Merge applies delta to state and returns the result. Neither argument is modified.
func (s *StructSchema[S]) Merge(state, delta S) S {
	out := s.Clone(state)
	dst := reflect.ValueOf(&out).Elem()
	src := reflect.ValueOf(delta)

	for _, f := range s.fields {
		dv := src.Field(f.index)
		if dv.IsZero() {
			continue
		}
		sv := dst.Field(f.index)
		switch f.mode {
		case mergeAppend, mergePath:
			sv.Set(reflect.AppendSlice(sv, dv))
		default:
			sv.Set(dv)
		}
	}
	return out
}

// RecordVisit appends node to the processing path of state.
func (s *StructSchema[S]) RecordVisit(state S, node string) S {
	if s.path < 0 {
		return state
	}
	out := s.Clone(state)
	pv := reflect.ValueOf(&out).Elem().Field(s.path)
	pv.Set(reflect.Append(pv, reflect.ValueOf(node)))
	return out
}

// Path returns the processing path recorded in state.
func (s *StructSchema[S]) Path(state S) []string {
	if s.path < 0 {
		return nil
	}
	return reflect.ValueOf(state).Field(s.path).Interface().([]string)
}

// Clone copies the top-level slices and maps of state so neither the caller
// nor a node can alias the engine's copy.
func (s *StructSchema[S]) Clone(state S) S {
	out := state
	v := reflect.ValueOf(&out).Elem()
	for _, f := range s.fields {
		fv := v.Field(f.index)
		switch fv.Kind() {
		case reflect.Slice:
			if fv.IsNil() {
				continue
			}
			c := reflect.MakeSlice(fv.Type(), fv.Len(), fv.Len())
			reflect.Copy(c, fv)
			fv.Set(c)
		case reflect.Map:
			if fv.IsNil() {
				continue
			}
			c := reflect.MakeMapWithSize(fv.Type(), fv.Len())
			iter := fv.MapRange()
			for iter.Next() {
				c.SetMapIndex(iter.Key(), iter.Value())
			}
			fv.Set(c)
		}
	}
	return out
}
