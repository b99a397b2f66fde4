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
	"errors"
	"fmt"
)

var (
	// ErrFormat marks a string value that is not written the way the field
	// kind expects: a malformed number, boolean, time or enum member.
	ErrFormat = errors.New("invalid format")
	// ErrConversion marks a value that has no conversion to the field kind.
	ErrConversion = errors.New("invalid conversion")
	// ErrOverflow marks a number that does not fit the field type.
	ErrOverflow = errors.New("value out of range")
	// ErrTarget is returned when the target is not a non-nil pointer to the
	// schema's struct type.
	ErrTarget = errors.New("invalid target")
)

// CoercionError reports a value that could not be applied to a field.
type CoercionError struct {
	Field string
	Kind  Kind
	Value interface{}
	Err   error
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("property %s: cannot apply %#v to %s field: %v", e.Field, e.Value, e.Kind, e.Err)
}

func (e *CoercionError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err comes from a malformed inbound value.
func IsFormatError(err error) bool {
	return errors.Is(err, ErrFormat)
}
