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
	encjson "encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// coerceFunc converts a raw inbound value to t, the non-pointer field type.
type coerceFunc func(raw interface{}, t reflect.Type) (reflect.Value, error)

// timeLayouts are tried in order for string time values. Layouts without
// zone information are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func coercerFor(kind Kind, t reflect.Type) (coerceFunc, error) {
	var fn coerceFunc
	switch kind {
	case KindString:
		fn = coerceString
	case KindInt:
		fn = coerceInt
	case KindUint:
		fn = coerceUint
	case KindFloat:
		fn = coerceFloat
	case KindDecimal:
		fn = coerceDecimal
	case KindBool:
		fn = coerceBool
	case KindTime:
		fn = coerceTime
	case KindDuration:
		fn = coerceDuration
	case KindEnum:
		fn = enumCoercer(reflect.Zero(t).Interface().(Enum).EnumMembers())
	case KindStringList:
		fn = coerceStringList
	case KindList:
		fn = coerceList
	case KindDocument:
		fn = coerceDocument
	default:
		return nil, fmt.Errorf("unsupported field type %s", t)
	}

	return func(raw interface{}, t reflect.Type) (reflect.Value, error) {
		if reflect.TypeOf(raw) == t {
			return cloneSlice(reflect.ValueOf(raw)), nil
		}
		return fn(raw, t)
	}, nil
}

func conversionError(raw interface{}, t reflect.Type) error {
	return fmt.Errorf("%w: %T to %s", ErrConversion, raw, t)
}

func coerceString(raw interface{}, t reflect.Type) (reflect.Value, error) {
	s, ok := scalarString(raw)
	if !ok {
		return reflect.Value{}, conversionError(raw, t)
	}
	return reflect.ValueOf(s).Convert(t), nil
}

// scalarString renders scalar values the invariant way.
func scalarString(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case string:
		return v, true
	case encjson.Number:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	case time.Time:
		return v.Format(time.RFC3339Nano), true
	case decimal.Decimal:
		return v.String(), true
	case fmt.Stringer:
		return v.String(), true
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32), true
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64), true
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), true
	}
	return "", false
}

// number is a non-string numeric input read without any culture.
type number struct {
	isFloat bool
	neg     bool
	u       uint64
	f       float64
}

func numberOf(raw interface{}) (number, bool, error) {
	if n, ok := raw.(encjson.Number); ok {
		if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return intNumber(i), true, nil
		}
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return number{u: u}, true, nil
		}
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil {
			return number{}, true, fmt.Errorf("%w: %q is not a number", ErrFormat, n)
		}
		return number{isFloat: true, f: f}, true, nil
	}
	if d, ok := raw.(decimal.Decimal); ok {
		f, _ := d.Float64()
		return number{isFloat: true, f: f}, true, nil
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return intNumber(rv.Int()), true, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return number{u: rv.Uint()}, true, nil
	case reflect.Float32, reflect.Float64:
		return number{isFloat: true, f: rv.Float()}, true, nil
	case reflect.Bool:
		if rv.Bool() {
			return number{u: 1}, true, nil
		}
		return number{}, true, nil
	}
	return number{}, false, nil
}

func intNumber(i int64) number {
	if i < 0 {
		return number{neg: true, u: uint64(-(i + 1)) + 1}
	}
	return number{u: uint64(i)}
}

func (n number) float() float64 {
	if n.isFloat {
		return n.f
	}
	if n.neg {
		return -float64(n.u)
	}
	return float64(n.u)
}

// integral rounds floats half to even, as a generic numeric conversion does.
func (n number) integral() (number, error) {
	if !n.isFloat {
		return n, nil
	}
	f := math.RoundToEven(n.f)
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= 1<<64 {
		return number{}, fmt.Errorf("%w: %v", ErrOverflow, n.f)
	}
	if f < 0 {
		return number{neg: true, u: uint64(-f)}, nil
	}
	return number{u: uint64(f)}, nil
}

func (n number) int64() (int64, error) {
	n, err := n.integral()
	if err != nil {
		return 0, err
	}
	if n.neg {
		if n.u > 1<<63 {
			return 0, fmt.Errorf("%w: -%d", ErrOverflow, n.u)
		}
		return -int64(n.u - 1) - 1, nil
	}
	if n.u > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d", ErrOverflow, n.u)
	}
	return int64(n.u), nil
}

func (n number) uint64() (uint64, error) {
	n, err := n.integral()
	if err != nil {
		return 0, err
	}
	if n.neg && n.u != 0 {
		return 0, fmt.Errorf("%w: -%d", ErrOverflow, n.u)
	}
	return n.u, nil
}

func coerceInt(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var i int64
	if s, ok := raw.(string); ok {
		v, err := Dutch.ParseInt(s, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		i = v
	} else {
		n, ok, err := numberOf(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if !ok {
			return reflect.Value{}, conversionError(raw, t)
		}
		if i, err = n.int64(); err != nil {
			return reflect.Value{}, err
		}
	}

	v := reflect.New(t).Elem()
	if v.OverflowInt(i) {
		return reflect.Value{}, fmt.Errorf("%w: %d does not fit %s", ErrOverflow, i, t)
	}
	v.SetInt(i)
	return v, nil
}

func coerceUint(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var u uint64
	if s, ok := raw.(string); ok {
		v, err := Dutch.ParseUint(s, 64)
		if err != nil {
			return reflect.Value{}, err
		}
		u = v
	} else {
		n, ok, err := numberOf(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if !ok {
			return reflect.Value{}, conversionError(raw, t)
		}
		if u, err = n.uint64(); err != nil {
			return reflect.Value{}, err
		}
	}

	v := reflect.New(t).Elem()
	if v.OverflowUint(u) {
		return reflect.Value{}, fmt.Errorf("%w: %d does not fit %s", ErrOverflow, u, t)
	}
	v.SetUint(u)
	return v, nil
}

func coerceFloat(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var f float64
	if s, ok := raw.(string); ok {
		v, err := Dutch.ParseFloat(s, t.Bits())
		if err != nil {
			return reflect.Value{}, err
		}
		f = v
	} else {
		n, ok, err := numberOf(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if !ok {
			return reflect.Value{}, conversionError(raw, t)
		}
		f = n.float()
	}

	v := reflect.New(t).Elem()
	if v.OverflowFloat(f) {
		return reflect.Value{}, fmt.Errorf("%w: %v does not fit %s", ErrOverflow, f, t)
	}
	v.SetFloat(f)
	return v, nil
}

func coerceDecimal(raw interface{}, t reflect.Type) (reflect.Value, error) {
	switch v := raw.(type) {
	case string:
		d, err := Dutch.ParseDecimal(v)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	case encjson.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q is not a number", ErrFormat, v)
		}
		return reflect.ValueOf(d), nil
	}

	n, ok, err := numberOf(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	if !ok {
		return reflect.Value{}, conversionError(raw, t)
	}
	if n.isFloat {
		return reflect.ValueOf(decimal.NewFromFloat(n.f)), nil
	}
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(n.u), 0)
	if n.neg {
		d = d.Neg()
	}
	return reflect.ValueOf(d), nil
}

func coerceBool(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var b bool
	if s, ok := raw.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			b = true
		case "false":
			b = false
		default:
			return reflect.Value{}, fmt.Errorf("%w: %q is not a boolean", ErrFormat, s)
		}
	} else {
		n, ok, err := numberOf(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		if !ok {
			return reflect.Value{}, conversionError(raw, t)
		}
		b = n.float() != 0
	}

	v := reflect.New(t).Elem()
	v.SetBool(b)
	return v, nil
}

func coerceTime(raw interface{}, t reflect.Type) (reflect.Value, error) {
	s, ok := raw.(string)
	if !ok {
		return reflect.Value{}, conversionError(raw, t)
	}

	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return reflect.ValueOf(ts), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: %q is not a time", ErrFormat, s)
}

func coerceDuration(raw interface{}, t reflect.Type) (reflect.Value, error) {
	if s, ok := raw.(string); ok {
		d, err := parseDuration(strings.TrimSpace(s))
		if err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %q is not a duration", ErrFormat, s)
		}
		return reflect.ValueOf(d), nil
	}

	n, ok, err := numberOf(raw)
	if err != nil {
		return reflect.Value{}, err
	}
	if !ok {
		return reflect.Value{}, conversionError(raw, t)
	}
	i, err := n.int64()
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(time.Duration(i)), nil
}

// parseDuration accepts Go duration syntax ("1m30s") and clock notation
// ("01:30:00" or "00:00:01.5").
func parseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad duration %q", s)
	}
	h, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, err
	}
	m, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil || m > 59 {
		return 0, fmt.Errorf("bad minutes in %q", s)
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || sec < 0 || sec >= 60 {
		return 0, fmt.Errorf("bad seconds in %q", s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), nil
}

func enumCoercer(members map[string]int64) coerceFunc {
	return func(raw interface{}, t reflect.Type) (reflect.Value, error) {
		if s, ok := raw.(string); ok {
			if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
				name := strings.TrimSpace(s)
				for member, value := range members {
					if strings.EqualFold(member, name) {
						return enumValue(value, t)
					}
				}
				return reflect.Value{}, fmt.Errorf("%w: %q is not a member of %s", ErrFormat, s, t)
			}
		}

		v, err := coerceInt(raw, reflect.TypeOf(int64(0)))
		if err != nil {
			return reflect.Value{}, err
		}
		return enumValue(v.Int(), t)
	}
}

func enumValue(i int64, t reflect.Type) (reflect.Value, error) {
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if i < 0 || v.OverflowUint(uint64(i)) {
			return reflect.Value{}, fmt.Errorf("%w: %d does not fit %s", ErrOverflow, i, t)
		}
		v.SetUint(uint64(i))
	default:
		if v.OverflowInt(i) {
			return reflect.Value{}, fmt.Errorf("%w: %d does not fit %s", ErrOverflow, i, t)
		}
		v.SetInt(i)
	}
	return v, nil
}

// coerceStringList accepts a structured array, a string holding a JSON
// array of strings, or any other string as a one-element list. A string
// that only looks like a JSON array but does not parse as one is kept
// whole as a single item.
func coerceStringList(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var list []string
	switch v := raw.(type) {
	case []string:
		list = append([]string{}, v...)
	case []interface{}:
		list = make([]string, len(v))
		for i, item := range v {
			list[i] = itemString(item)
		}
	case string:
		list = []string{v}
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			var parsed []string
			if err := json.UnmarshalFromString(trimmed, &parsed); err == nil {
				list = parsed
				if list == nil {
					list = []string{}
				}
			}
		}
	default:
		rv := reflect.ValueOf(raw)
		switch {
		case rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array:
			list = make([]string, rv.Len())
			for i := range list {
				list[i] = itemString(rv.Index(i).Interface())
			}
		default:
			s, ok := scalarString(raw)
			if !ok {
				return reflect.Value{}, conversionError(raw, t)
			}
			list = []string{s}
		}
	}
	return reflect.ValueOf(list).Convert(t), nil
}

func itemString(item interface{}) string {
	if item == nil {
		return ""
	}
	if s, ok := scalarString(item); ok {
		return s
	}
	if data, err := json.Marshal(item); err == nil {
		return string(data)
	}
	return fmt.Sprint(item)
}

// coerceList deserializes a structured array, or a string holding a JSON
// array, into a slice or array type.
func coerceList(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var data []byte
	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
			return reflect.Value{}, conversionError(raw, t)
		}
		data = []byte(trimmed)
	default:
		kind := reflect.ValueOf(raw).Kind()
		if kind != reflect.Slice && kind != reflect.Array {
			return reflect.Value{}, conversionError(raw, t)
		}
		var err error
		if data, err = json.Marshal(raw); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
		}
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return ptr.Elem(), nil
}

// coerceDocument deserializes a nested document into a struct or map
// type. Struct fields match document keys by json tag or, without tag,
// case-insensitively by name.
func coerceDocument(raw interface{}, t reflect.Type) (reflect.Value, error) {
	var input interface{}
	switch v := raw.(type) {
	case *propbag.Bag:
		input = v.ToMap()
	case map[string]interface{}:
		input = v
	case string:
		trimmed := strings.TrimSpace(v)
		if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
			return reflect.Value{}, conversionError(raw, t)
		}
		ptr := reflect.New(t)
		if err := json.UnmarshalFromString(trimmed, ptr.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		return ptr.Elem(), nil
	default:
		return reflect.Value{}, conversionError(raw, t)
	}

	ptr := reflect.New(t)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           ptr.Interface(),
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return reflect.Value{}, err
	}
	if err := decoder.Decode(input); err != nil {
		return reflect.Value{}, fmt.Errorf("%w: %v", ErrConversion, err)
	}
	return ptr.Elem(), nil
}
