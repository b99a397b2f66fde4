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
	"github.com/spf13/viper"
)

// Source supplies plain string values by property name, the way a local
// configuration store does.
type Source interface {
	Lookup(name string) (string, bool)
}

// MapSource is an in-memory Source with exact key matching.
type MapSource map[string]string

func (m MapSource) Lookup(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

// ViperSource reads a section of a viper configuration. Viper keys are
// case-insensitive, so is the lookup.
//
// Scalars come back as viper renders them to strings; a YAML float such as
// 9.99 therefore goes through the comma-decimal parser like any other
// string. Lists and maps are handed over as JSON text.
type ViperSource struct {
	v       *viper.Viper
	section string
}

// NewViperSource returns a source over section of v; an empty section reads
// top-level keys.
func NewViperSource(v *viper.Viper, section string) *ViperSource {
	return &ViperSource{v: v, section: section}
}

func (s *ViperSource) Lookup(name string) (string, bool) {
	key := name
	if s.section != "" {
		key = s.section + "." + name
	}
	if !s.v.IsSet(key) {
		return "", false
	}

	switch val := s.v.Get(key).(type) {
	case nil:
		return "", false
	case []interface{}, map[string]interface{}:
		data, err := json.Marshal(val)
		if err != nil {
			return "", false
		}
		return string(data), true
	}
	return s.v.GetString(key), true
}
