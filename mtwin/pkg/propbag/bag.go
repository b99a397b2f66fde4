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

// Package propbag holds the property bag exchanged with the cloud twin: an
// ordered mapping from property name to a loosely typed value.
//
// Values are one of nil, string, bool, a Go number or json.Number,
// time.Time, a nested *Bag (document) or []interface{} (array).
package propbag

import (
	"errors"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v2"
)

// json keeps numbers as json.Number so integers and floats survive decoding.
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Bag is an ordered name -> value mapping. Iteration follows insertion
// order; replacing an existing value keeps its position.
type Bag struct {
	keys   []string
	values map[string]interface{}
}

// New returns an empty bag.
func New() *Bag {
	return &Bag{values: make(map[string]interface{})}
}

// FromMap builds a bag from m. Go maps have no order, so keys are sorted.
func FromMap(m map[string]interface{}) *Bag {
	b := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, normalize(m[k]))
	}
	return b
}

// Set stores value under name.
func (b *Bag) Set(name string, value interface{}) {
	if b.values == nil {
		b.values = make(map[string]interface{})
	}
	if _, exist := b.values[name]; !exist {
		b.keys = append(b.keys, name)
	}
	b.values[name] = value
}

// Get returns the value stored under name. A present nil value returns
// (nil, true).
func (b *Bag) Get(name string) (interface{}, bool) {
	if b == nil {
		return nil, false
	}
	v, exist := b.values[name]
	return v, exist
}

// Contains reports whether name has an entry, nil or not.
func (b *Bag) Contains(name string) bool {
	_, exist := b.Get(name)
	return exist
}

// Delete removes name from the bag.
func (b *Bag) Delete(name string) {
	if _, exist := b.values[name]; !exist {
		return
	}
	delete(b.values, name)
	for i, k := range b.keys {
		if k == name {
			b.keys = append(b.keys[:i], b.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (b *Bag) Len() int {
	if b == nil {
		return 0
	}
	return len(b.keys)
}

// Keys returns a copy of the entry names in insertion order.
func (b *Bag) Keys() []string {
	if b == nil {
		return nil
	}
	keys := make([]string, len(b.keys))
	copy(keys, b.keys)
	return keys
}

// Range calls fn for every entry in order until fn returns false.
func (b *Bag) Range(fn func(name string, value interface{}) bool) {
	if b == nil {
		return
	}
	for _, k := range b.keys {
		if !fn(k, b.values[k]) {
			return
		}
	}
}

// Clone returns a copy of the bag. Nested bags and arrays are copied too.
func (b *Bag) Clone() *Bag {
	nb := New()
	b.Range(func(name string, value interface{}) bool {
		nb.Set(name, cloneValue(value))
		return true
	})
	return nb
}

// Section returns the nested document stored under name.
func (b *Bag) Section(name string) (*Bag, bool) {
	v, exist := b.Get(name)
	if !exist || v == nil {
		return nil, false
	}
	switch doc := v.(type) {
	case *Bag:
		return doc, true
	case map[string]interface{}:
		return FromMap(doc), true
	case yaml.MapSlice:
		return fromMapSlice(doc), true
	}
	return nil, false
}

// ToMap converts the bag, and every nested bag, to plain maps.
func (b *Bag) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, b.Len())
	b.Range(func(name string, value interface{}) bool {
		m[name] = plain(value)
		return true
	})
	return m
}

func (b *Bag) String() string {
	data, err := b.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid bag: %v>", err)
	}
	return string(data)
}

// MarshalJSON writes the entries as a JSON object in insertion order.
func (b *Bag) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, k := range b.keys {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(k)
		stream.WriteVal(b.values[k])
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, stream.Error
	}

	return append([]byte(nil), stream.Buffer()...), nil
}

// UnmarshalJSON replaces the bag content with the JSON object in data,
// keeping the document order. Nested objects become *Bag values.
func (b *Bag) UnmarshalJSON(data []byte) error {
	iter := jsoniter.ParseBytes(json, data)
	if iter.WhatIsNext() == jsoniter.NilValue {
		*b = *New()
		return nil
	}
	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return errors.New("property bag must be a JSON object")
	}

	nb := readBag(iter)
	if iter.Error != nil {
		return iter.Error
	}
	*b = *nb
	return nil
}

func readBag(iter *jsoniter.Iterator) *Bag {
	b := New()
	iter.ReadMapCB(func(it *jsoniter.Iterator, key string) bool {
		b.Set(key, readValue(it))
		return it.Error == nil
	})
	return b
}

func readValue(iter *jsoniter.Iterator) interface{} {
	switch iter.WhatIsNext() {
	case jsoniter.ObjectValue:
		return readBag(iter)
	case jsoniter.ArrayValue:
		items := make([]interface{}, 0)
		iter.ReadArrayCB(func(it *jsoniter.Iterator) bool {
			items = append(items, readValue(it))
			return it.Error == nil
		})
		return items
	case jsoniter.NilValue:
		iter.ReadNil()
		return nil
	default:
		return iter.Read()
	}
}

// MarshalYAML writes the entries as an ordered YAML mapping.
func (b *Bag) MarshalYAML() (interface{}, error) {
	ms := make(yaml.MapSlice, 0, b.Len())
	b.Range(func(name string, value interface{}) bool {
		ms = append(ms, yaml.MapItem{Key: name, Value: value})
		return true
	})
	return ms, nil
}

// UnmarshalYAML replaces the bag content with a YAML mapping, keeping the
// document order.
func (b *Bag) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var ms yaml.MapSlice
	if err := unmarshal(&ms); err != nil {
		return err
	}
	*b = *fromMapSlice(ms)
	return nil
}

func fromMapSlice(ms yaml.MapSlice) *Bag {
	b := New()
	for _, item := range ms {
		b.Set(fmt.Sprint(item.Key), normalize(item.Value))
	}
	return b
}

// normalize turns decoder specific containers into *Bag and []interface{}.
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case yaml.MapSlice:
		return fromMapSlice(val)
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			m[fmt.Sprint(k)] = item
		}
		return FromMap(m)
	case map[string]interface{}:
		return FromMap(val)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = normalize(item)
		}
		return items
	}
	return v
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case *Bag:
		return val.Clone()
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = cloneValue(item)
		}
		return items
	case []string:
		return append([]string(nil), val...)
	}
	return v
}

func plain(v interface{}) interface{} {
	switch val := v.(type) {
	case *Bag:
		return val.ToMap()
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = plain(item)
		}
		return items
	}
	return v
}
