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
	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

// Mapper applies property bags onto configuration objects and exports
// them back. It keeps no state between calls; shared fields are the only
// state it touches, and callers serialize passes that may write them.
//
// Names are matched case-sensitively against bag entries. Key-value
// sources decide their own key matching.
type Mapper struct {
	schema   *Schema
	fallback string
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithFallbackSection makes ApplyBag look a field up in the nested
// document named section when the bag has no top-level entry for it.
func WithFallbackSection(section string) Option {
	return func(m *Mapper) {
		m.fallback = section
	}
}

// New returns a mapper for the configuration type described by schema.
func New(schema *Schema, opts ...Option) *Mapper {
	m := &Mapper{schema: schema}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Schema returns the descriptor table the mapper works with.
func (m *Mapper) Schema() *Schema {
	return m.schema
}

// ApplyBag assigns every writable field that has a non-nil entry in bag.
// Unknown entries are ignored and read-only fields are never written.
// The first value that cannot be coerced stops the pass with a
// *CoercionError; fields assigned before it keep their new values.
func (m *Mapper) ApplyBag(bag *propbag.Bag, target interface{}) error {
	tv, err := m.schema.target(target)
	if err != nil {
		return err
	}

	var section *propbag.Bag
	if m.fallback != "" {
		section, _ = bag.Section(m.fallback)
	}

	for _, f := range m.schema.fields {
		if !f.Writable() {
			continue
		}
		raw, exist := bag.Get(f.Name)
		if !exist && section != nil {
			raw, exist = section.Get(f.Name)
		}
		if !exist || raw == nil {
			continue
		}
		if err := f.assign(tv, raw); err != nil {
			return err
		}
	}
	return nil
}

// ApplySource is ApplyBag for string values read from a key-value source.
func (m *Mapper) ApplySource(src Source, target interface{}) error {
	tv, err := m.schema.target(target)
	if err != nil {
		return err
	}

	for _, f := range m.schema.fields {
		if !f.Writable() {
			continue
		}
		raw, exist := src.Lookup(f.Name)
		if !exist {
			continue
		}
		if err := f.assign(tv, raw); err != nil {
			return err
		}
	}
	return nil
}

// Export returns a new bag with one entry per field, nil values included,
// in schema order.
func (m *Mapper) Export(target interface{}) (*propbag.Bag, error) {
	tv, err := m.schema.target(target)
	if err != nil {
		return nil, err
	}

	bag := propbag.New()
	for _, f := range m.schema.fields {
		bag.Set(f.Name, f.value(tv, target))
	}
	return bag, nil
}
