/*
Copyright 2019 The edgeOn Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

   http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mapper

import (
	"fmt"
	"reflect"
	"strings"
)

// Field describes one twin property of a configuration type.
type Field struct {
	Name string
	Kind Kind
	// Type is the declared Go type; a pointer type for nullable fields.
	Type     reflect.Type
	Nullable bool
	ReadOnly bool
	Shared   bool

	index    []int
	slot     reflect.Value
	computed func(target interface{}) interface{}
	coerce   coerceFunc
}

// Writable reports whether inbound updates may assign the field.
func (f *Field) Writable() bool {
	return !f.ReadOnly && f.computed == nil
}

func (f *Field) elemType() reflect.Type {
	if f.Nullable {
		return f.Type.Elem()
	}
	return f.Type
}

// location returns the settable value backing the field.
func (f *Field) location(target reflect.Value) reflect.Value {
	if f.Shared {
		return f.slot
	}
	return target.FieldByIndex(f.index)
}

// assign coerces raw and stores it.
func (f *Field) assign(target reflect.Value, raw interface{}) error {
	var v reflect.Value
	if reflect.TypeOf(raw) == f.Type {
		v = cloneSlice(reflect.ValueOf(raw))
	} else {
		elem, err := f.coerce(raw, f.elemType())
		if err != nil {
			return &CoercionError{Field: f.Name, Kind: f.Kind, Value: raw, Err: err}
		}
		v = elem
		if f.Nullable {
			v = reflect.New(elem.Type())
			v.Elem().Set(elem)
		}
	}

	f.location(target).Set(v)
	return nil
}

// value returns the current value for export. Slices are copied so an
// exported bag never aliases the configuration object.
func (f *Field) value(target reflect.Value, iface interface{}) interface{} {
	if f.computed != nil {
		return f.computed(iface)
	}

	v := f.location(target)
	if f.Nullable {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Slice && v.IsNil() {
		return nil
	}
	return cloneSlice(v).Interface()
}

// cloneSlice copies a slice value so the twin and a bag never share storage.
// Other kinds are returned as is.
func cloneSlice(v reflect.Value) reflect.Value {
	if v.Kind() != reflect.Slice || v.IsNil() {
		return v
	}
	c := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
	reflect.Copy(c, v)
	return c
}

// Schema is the descriptor table of a configuration type. It is built once,
// usually into a package variable next to the type, and is read-only
// after registration of shared and computed fields.
type Schema struct {
	typ    reflect.Type
	fields []*Field
	byName map[string]*Field
}

// NewSchema walks the exported fields of sample's struct type.
//
// The struct tag `twin:"Name,readonly"` renames a field and/or marks it
// export-only; `twin:"-"` leaves the field out. Pointer fields are
// nullable. Promoted fields of embedded structs are included, except those
// reached through an embedded pointer.
func NewSchema(sample interface{}) (*Schema, error) {
	t := reflect.TypeOf(sample)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema sample must be a struct, got %T", sample)
	}

	s := &Schema{typ: t, byName: make(map[string]*Field)}
	for _, sf := range reflect.VisibleFields(t) {
		if sf.Anonymous || !sf.IsExported() || throughPointer(t, sf.Index) {
			continue
		}

		name, readOnly, skip := parseTag(sf)
		if skip {
			continue
		}

		f, err := describe(name, sf.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %v", t.Name(), sf.Name, err)
		}
		f.ReadOnly = readOnly
		f.index = sf.Index
		if err := s.add(f); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// MustSchema is NewSchema that panics on error, for package level
// variables.
func MustSchema(sample interface{}) *Schema {
	s, err := NewSchema(sample)
	if err != nil {
		panic(err)
	}
	return s
}

// Shared registers a process-wide field backed by the variable ptr points
// to. Every instance reads and writes that single variable. Shared panics
// if ptr is not a non-nil pointer to a supported type or the name is taken.
func (s *Schema) Shared(name string, ptr interface{}) *Schema {
	pv := reflect.ValueOf(ptr)
	if pv.Kind() != reflect.Ptr || pv.IsNil() {
		panic(fmt.Sprintf("shared field %s: need a non-nil pointer, got %T", name, ptr))
	}

	f, err := describe(name, pv.Type().Elem())
	if err != nil {
		panic(fmt.Sprintf("shared field %s: %v", name, err))
	}
	f.Shared = true
	f.slot = pv.Elem()
	if err := s.add(f); err != nil {
		panic(err.Error())
	}
	return s
}

// Computed registers an export-only field whose value is produced by fn
// from the target passed to Export.
func (s *Schema) Computed(name string, fn func(target interface{}) interface{}) *Schema {
	if fn == nil {
		panic(fmt.Sprintf("computed field %s: nil getter", name))
	}
	f := &Field{Name: name, ReadOnly: true, computed: fn}
	if err := s.add(f); err != nil {
		panic(err.Error())
	}
	return s
}

// Type returns the configuration struct type.
func (s *Schema) Type() reflect.Type {
	return s.typ
}

// Fields returns the descriptors in export order: struct fields in
// declaration order, then shared and computed fields in registration order.
func (s *Schema) Fields() []*Field {
	fields := make([]*Field, len(s.fields))
	copy(fields, s.fields)
	return fields
}

// Field returns the descriptor named name.
func (s *Schema) Field(name string) (*Field, bool) {
	f, exist := s.byName[name]
	return f, exist
}

// New returns a pointer to a fresh zero value of the configuration type.
func (s *Schema) New() interface{} {
	return reflect.New(s.typ).Interface()
}

func (s *Schema) add(f *Field) error {
	if _, exist := s.byName[f.Name]; exist {
		return fmt.Errorf("%s: duplicate twin property %q", s.typ.Name(), f.Name)
	}
	s.fields = append(s.fields, f)
	s.byName[f.Name] = f
	return nil
}

// target checks that v points to the schema type.
func (s *Schema) target(v interface{}) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Type() != s.typ {
		return reflect.Value{}, fmt.Errorf("%w: want *%s, got %T", ErrTarget, s.typ.Name(), v)
	}
	return rv.Elem(), nil
}

func describe(name string, t reflect.Type) (*Field, error) {
	f := &Field{Name: name, Type: t}
	if t.Kind() == reflect.Ptr {
		f.Nullable = true
		t = t.Elem()
	}

	f.Kind = kindOf(t)
	coerce, err := coercerFor(f.Kind, t)
	if err != nil {
		return nil, err
	}
	f.coerce = coerce
	return f, nil
}

func parseTag(sf reflect.StructField) (name string, readOnly, skip bool) {
	tag := sf.Tag.Get("twin")
	if tag == "-" {
		return "", false, true
	}

	parts := strings.Split(tag, ",")
	name = sf.Name
	if parts[0] != "" {
		name = parts[0]
	}
	for _, opt := range parts[1:] {
		if opt == "readonly" {
			readOnly = true
		}
	}
	return name, readOnly, false
}

func throughPointer(t reflect.Type, index []int) bool {
	for i := range index[:len(index)-1] {
		ft := t.FieldByIndex(index[:i+1]).Type
		if ft.Kind() == reflect.Ptr {
			return true
		}
	}
	return false
}
