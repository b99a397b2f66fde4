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
	"reflect"
	"time"

	"github.com/shopspring/decimal"
)

//go:generate stringer -type=Kind -trimprefix=Kind

// Kind is the declared kind of a twin field. Every kind has one coercion
// function, picked when the schema is built.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindInt
	KindUint
	KindFloat
	KindDecimal
	KindBool
	KindTime
	KindDuration
	KindEnum
	KindStringList
	KindList
	KindDocument
)

// Enum is implemented by named integer types that are used as enumeration
// fields. Member names are matched case-insensitively.
type Enum interface {
	EnumMembers() map[string]int64
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	durationType = reflect.TypeOf(time.Duration(0))
	decimalType  = reflect.TypeOf(decimal.Decimal{})
	enumType     = reflect.TypeOf((*Enum)(nil)).Elem()
)

// kindOf classifies a non-pointer field type.
func kindOf(t reflect.Type) Kind {
	switch t {
	case timeType:
		return KindTime
	case durationType:
		return KindDuration
	case decimalType:
		return KindDecimal
	}

	if t.Implements(enumType) {
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return KindEnum
		}
		return KindInvalid
	}

	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return KindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return KindUint
	case reflect.Float32, reflect.Float64:
		return KindFloat
	case reflect.Slice:
		if t.Elem().Kind() == reflect.String {
			return KindStringList
		}
		return KindList
	case reflect.Array:
		return KindList
	case reflect.Struct, reflect.Map:
		return KindDocument
	}
	return KindInvalid
}
