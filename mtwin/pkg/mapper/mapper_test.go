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
	"bytes"
	encjson "encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwzl/edgeTwin/mtwin/pkg/propbag"
)

type Mode int

const (
	ModeOff Mode = iota
	ModeAuto
	ModeManual
)

func (Mode) EnumMembers() map[string]int64 {
	return map[string]int64{"Off": 0, "Auto": 1, "Manual": 2}
}

type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type testTwin struct {
	StringProperty     string
	IntProperty        int
	DoubleProperty     float64
	BoolProperty       bool
	DateTimeProperty   time.Time
	StringListProperty []string
	ReadOnlyProperty   string `twin:",readonly"`
	NullableInt        *int
	Price              decimal.Decimal
	Mode               Mode
	Ports              []int
	Endpoint           Endpoint
	Timeout            time.Duration
	Small              int8
	Count              uint16
	Ignored            string `twin:"-"`
}

var staticProperty = "Static"

var testSchema = MustSchema(testTwin{}).
	Shared("StaticProperty", &staticProperty).
	Computed("PropertyWithoutSetter", func(interface{}) interface{} { return "NoSetter" })

func newTestTwin() *testTwin {
	return &testTwin{
		StringProperty:     "DefaultString",
		IntProperty:        42,
		DoubleProperty:     3.14,
		BoolProperty:       true,
		StringListProperty: []string{"Default1", "Default2"},
		ReadOnlyProperty:   "ReadOnly",
	}
}

func setup(t *testing.T, opts ...Option) (*Mapper, *testTwin) {
	t.Helper()
	staticProperty = "Static"
	return New(testSchema, opts...), newTestTwin()
}

func bagOf(kv ...interface{}) *propbag.Bag {
	b := propbag.New()
	for i := 0; i < len(kv); i += 2 {
		b.Set(kv[i].(string), kv[i+1])
	}
	return b
}

func TestApplyBagUpdatesProperties(t *testing.T) {
	m, twin := setup(t)
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := m.ApplyBag(bagOf(
		"StringProperty", "UpdatedString",
		"IntProperty", 100,
		"DoubleProperty", 6.28,
		"BoolProperty", false,
		"DateTimeProperty", date,
	), twin)
	require.NoError(t, err)

	assert.Equal(t, "UpdatedString", twin.StringProperty)
	assert.Equal(t, 100, twin.IntProperty)
	assert.Equal(t, 6.28, twin.DoubleProperty)
	assert.False(t, twin.BoolProperty)
	assert.Equal(t, date, twin.DateTimeProperty)
}

func TestApplyBagUpdatesSharedProperty(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplyBag(bagOf("StaticProperty", "UpdatedStatic", "StringProperty", "UpdatedString"), twin)
	require.NoError(t, err)

	assert.Equal(t, "UpdatedStatic", staticProperty)
	assert.Equal(t, "UpdatedString", twin.StringProperty)

	other, err := m.Export(newTestTwin())
	require.NoError(t, err)
	v, _ := other.Get("StaticProperty")
	assert.Equal(t, "UpdatedStatic", v)
}

func TestApplyBagSkipsNullAndMissing(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplyBag(bagOf("StringProperty", nil, "StaticProperty", nil, "IntProperty", 200), twin)
	require.NoError(t, err)

	assert.Equal(t, "DefaultString", twin.StringProperty)
	assert.Equal(t, "Static", staticProperty)
	assert.Equal(t, 200, twin.IntProperty)
	assert.Equal(t, 3.14, twin.DoubleProperty)
}

func TestApplyBagIgnoresUnknownProperty(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplyBag(bagOf("NonExistentProperty", "SomeValue", "StringProperty", "UpdatedString", "$version", 4), twin)
	require.NoError(t, err)
	assert.Equal(t, "UpdatedString", twin.StringProperty)
}

func TestApplyBagNeverWritesReadOnly(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplyBag(bagOf("ReadOnlyProperty", "NewValue", "PropertyWithoutSetter", "Other", "Ignored", "x"), twin)
	require.NoError(t, err)
	assert.Equal(t, "ReadOnly", twin.ReadOnlyProperty)
	assert.Empty(t, twin.Ignored)

	out, err := m.Export(twin)
	require.NoError(t, err)
	v, _ := out.Get("PropertyWithoutSetter")
	assert.Equal(t, "NoSetter", v)
}

func TestApplyBagEmptyLeavesDefaults(t *testing.T) {
	m, twin := setup(t)

	require.NoError(t, m.ApplyBag(propbag.New(), twin))
	assert.Equal(t, newTestTwin(), twin)
	assert.Equal(t, "Static", staticProperty)
}

func TestApplyBagConvertsStrings(t *testing.T) {
	m, twin := setup(t)

	require.NoError(t, m.ApplyBag(bagOf("IntProperty", "123", "BoolProperty", " False "), twin))
	assert.Equal(t, 123, twin.IntProperty)
	assert.False(t, twin.BoolProperty)

	require.NoError(t, m.ApplyBag(bagOf("BoolProperty", "true"), twin))
	assert.True(t, twin.BoolProperty)
}

func TestApplyBagInvalidConversion(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplyBag(bagOf("IntProperty", "NotANumber"), twin)
	require.Error(t, err)
	assert.True(t, IsFormatError(err))

	var ce *CoercionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "IntProperty", ce.Field)
	assert.Equal(t, KindInt, ce.Kind)
	assert.Equal(t, "NotANumber", ce.Value)
	assert.Equal(t, 42, twin.IntProperty)
}

func TestApplyBagStopsAtFirstFailureWithoutRollback(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplyBag(bagOf(
		"DoubleProperty", "1,5",
		"IntProperty", "oops",
		"StringProperty", "applied",
	), twin)
	require.Error(t, err)

	// declaration order: StringProperty, IntProperty, DoubleProperty
	assert.Equal(t, "applied", twin.StringProperty)
	assert.Equal(t, 42, twin.IntProperty)
	assert.Equal(t, 3.14, twin.DoubleProperty)
}

func TestApplyBagNumericConvention(t *testing.T) {
	tests := []struct {
		name  string
		field string
		raw   interface{}
		check func(t *testing.T, twin *testTwin)
		err   error
	}{
		{name: "comma decimal", field: "DoubleProperty", raw: "3,14",
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 3.14, twin.DoubleProperty) }},
		{name: "grouped", field: "DoubleProperty", raw: "1.234,5",
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 1234.5, twin.DoubleProperty) }},
		{name: "dot is a group separator", field: "DoubleProperty", raw: "12.34",
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 1234.0, twin.DoubleProperty) }},
		{name: "negative", field: "DoubleProperty", raw: " -2,5 ",
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, -2.5, twin.DoubleProperty) }},
		{name: "exponent", field: "DoubleProperty", raw: "1,5e3",
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 1500.0, twin.DoubleProperty) }},
		{name: "json number is invariant", field: "DoubleProperty", raw: encjson.Number("6.28"),
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 6.28, twin.DoubleProperty) }},
		{name: "decimal", field: "Price", raw: "12,50",
			check: func(t *testing.T, twin *testTwin) { assert.True(t, decimal.RequireFromString("12.5").Equal(twin.Price)) }},
		{name: "decimal from float", field: "Price", raw: 0.1,
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, "0.1", twin.Price.String()) }},
		{name: "float rounds half to even", field: "IntProperty", raw: 2.5,
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 2, twin.IntProperty) }},
		{name: "float rounds up", field: "IntProperty", raw: 3.5,
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 4, twin.IntProperty) }},
		{name: "unsigned", field: "Count", raw: "65535",
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, uint16(65535), twin.Count) }},
		{name: "integer rejects separators", field: "IntProperty", raw: "12.34", err: ErrFormat},
		{name: "integer rejects comma", field: "IntProperty", raw: "1,0", err: ErrFormat},
		{name: "float rejects garbage", field: "DoubleProperty", raw: "3,1,4", err: ErrFormat},
		{name: "empty", field: "DoubleProperty", raw: "", err: ErrFormat},
		{name: "int8 overflow", field: "Small", raw: "300", err: ErrOverflow},
		{name: "unsigned negative", field: "Count", raw: "-1", err: ErrOverflow},
		{name: "float overflow", field: "Small", raw: 1e300, err: ErrOverflow},
		{name: "bool to int", field: "IntProperty", raw: true,
			check: func(t *testing.T, twin *testTwin) { assert.Equal(t, 1, twin.IntProperty) }},
		{name: "document to int", field: "IntProperty", raw: propbag.New(), err: ErrConversion},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, twin := setup(t)
			err := m.ApplyBag(bagOf(test.field, test.raw), twin)
			if test.err != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, test.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			test.check(t, twin)
		})
	}
}

func TestApplyBagStringList(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
		want []string
	}{
		{name: "structured array", raw: []interface{}{"item1", "item2", "item3"}, want: []string{"item1", "item2", "item3"}},
		{name: "json string", raw: `["value1","value2"]`, want: []string{"value1", "value2"}},
		{name: "padded json string", raw: `  ["a"]  `, want: []string{"a"}},
		{name: "plain string", raw: "hello", want: []string{"hello"}},
		{name: "unterminated", raw: "[not json", want: []string{"[not json"}},
		{name: "bracketed garbage", raw: "[not json]", want: []string{"[not json]"}},
		{name: "mixed json array", raw: `["a", 1]`, want: []string{`["a", 1]`}},
		{name: "empty json array", raw: "[]", want: []string{}},
		{name: "untyped items", raw: []interface{}{"a", nil, encjson.Number("3"), true}, want: []string{"a", "", "3", "true"}},
		{name: "string slice", raw: []string{"x"}, want: []string{"x"}},
		{name: "scalar", raw: 7, want: []string{"7"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m, twin := setup(t)
			require.NoError(t, m.ApplyBag(bagOf("StringListProperty", test.raw), twin))
			assert.Equal(t, test.want, twin.StringListProperty)
		})
	}
}

func TestApplyBagCopiesSlices(t *testing.T) {
	m, twin := setup(t)
	src := []string{"a", "b"}
	require.NoError(t, m.ApplyBag(bagOf("StringListProperty", src), twin))

	src[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, twin.StringListProperty)
}

func TestApplyBagEnum(t *testing.T) {
	tests := []struct {
		raw  interface{}
		want Mode
		err  error
	}{
		{raw: "manual", want: ModeManual},
		{raw: " AUTO ", want: ModeAuto},
		{raw: "2", want: ModeManual},
		{raw: encjson.Number("1"), want: ModeAuto},
		{raw: 2, want: ModeManual},
		{raw: ModeAuto, want: ModeAuto},
		{raw: "Bogus", err: ErrFormat},
	}

	for _, test := range tests {
		m, twin := setup(t)
		err := m.ApplyBag(bagOf("Mode", test.raw), twin)
		if test.err != nil {
			assert.True(t, errors.Is(err, test.err), "raw %v: got %v", test.raw, err)
			continue
		}
		require.NoError(t, err, "raw %v", test.raw)
		assert.Equal(t, test.want, twin.Mode, "raw %v", test.raw)
	}
}

func TestApplyBagNullable(t *testing.T) {
	m, twin := setup(t)

	require.NoError(t, m.ApplyBag(bagOf("NullableInt", nil), twin))
	assert.Nil(t, twin.NullableInt)

	require.NoError(t, m.ApplyBag(bagOf("NullableInt", "7"), twin))
	require.NotNil(t, twin.NullableInt)
	assert.Equal(t, 7, *twin.NullableInt)

	eight := 8
	require.NoError(t, m.ApplyBag(bagOf("NullableInt", &eight), twin))
	assert.Same(t, &eight, twin.NullableInt)
}

func TestApplyBagDocumentsAndArrays(t *testing.T) {
	m, twin := setup(t)

	var endpoint propbag.Bag
	require.NoError(t, endpoint.UnmarshalJSON([]byte(`{"host":"broker.local","port":8883}`)))

	err := m.ApplyBag(bagOf(
		"Endpoint", &endpoint,
		"Ports", []interface{}{encjson.Number("1883"), encjson.Number("8883")},
		"Timeout", "00:01:30",
	), twin)
	require.NoError(t, err)
	assert.Equal(t, Endpoint{Host: "broker.local", Port: 8883}, twin.Endpoint)
	assert.Equal(t, []int{1883, 8883}, twin.Ports)
	assert.Equal(t, 90*time.Second, twin.Timeout)

	require.NoError(t, m.ApplyBag(bagOf("Ports", "[1, 2]", "Endpoint", `{"host":"h"}`, "Timeout", "2m"), twin))
	assert.Equal(t, []int{1, 2}, twin.Ports)
	assert.Equal(t, Endpoint{Host: "h"}, twin.Endpoint)
	assert.Equal(t, 2*time.Minute, twin.Timeout)

	err = m.ApplyBag(bagOf("Ports", "80"), twin)
	assert.True(t, errors.Is(err, ErrConversion), "got %v", err)

	err = m.ApplyBag(bagOf("Ports", []interface{}{"x"}), twin)
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
}

func TestApplyBagMatchesNamesCaseSensitively(t *testing.T) {
	m, twin := setup(t)

	require.NoError(t, m.ApplyBag(bagOf("stringproperty", "lower"), twin))
	assert.Equal(t, "DefaultString", twin.StringProperty)

	require.NoError(t, m.ApplyBag(bagOf("StringProperty", "exact"), twin))
	assert.Equal(t, "exact", twin.StringProperty)
}

func TestApplyBagFallbackSection(t *testing.T) {
	m, twin := setup(t, WithFallbackSection("deployment"))

	err := m.ApplyBag(bagOf(
		"StringProperty", "top",
		"deployment", bagOf("StringProperty", "nested", "IntProperty", "5"),
	), twin)
	require.NoError(t, err)
	assert.Equal(t, "top", twin.StringProperty)
	assert.Equal(t, 5, twin.IntProperty)

	plain, twin := setup(t)
	require.NoError(t, plain.ApplyBag(bagOf("deployment", bagOf("IntProperty", "5")), twin))
	assert.Equal(t, 42, twin.IntProperty)
}

func TestApplyBagRejectsWrongTarget(t *testing.T) {
	m, twin := setup(t)

	assert.True(t, errors.Is(m.ApplyBag(propbag.New(), *twin), ErrTarget))
	assert.True(t, errors.Is(m.ApplyBag(propbag.New(), (*testTwin)(nil)), ErrTarget))
	_, err := m.Export(&Endpoint{})
	assert.True(t, errors.Is(err, ErrTarget))
}

func TestExportReturnsEveryField(t *testing.T) {
	m, twin := setup(t)
	twin.StringProperty = "TestString"
	twin.IntProperty = 555
	twin.DoubleProperty = 5.55
	twin.BoolProperty = false
	twin.DateTimeProperty = time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)
	staticProperty = "TestStatic"

	bag, err := m.Export(twin)
	require.NoError(t, err)

	want := map[string]interface{}{
		"StringProperty":        "TestString",
		"IntProperty":           555,
		"DoubleProperty":        5.55,
		"BoolProperty":          false,
		"DateTimeProperty":      time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC),
		"ReadOnlyProperty":      "ReadOnly",
		"PropertyWithoutSetter": "NoSetter",
		"StaticProperty":        "TestStatic",
	}
	for name, value := range want {
		got, ok := bag.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, value, got, name)
	}

	assert.Equal(t, []string{
		"StringProperty", "IntProperty", "DoubleProperty", "BoolProperty", "DateTimeProperty",
		"StringListProperty", "ReadOnlyProperty", "NullableInt", "Price", "Mode", "Ports",
		"Endpoint", "Timeout", "Small", "Count", "StaticProperty", "PropertyWithoutSetter",
	}, bag.Keys())
}

func TestExportIncludesNilValues(t *testing.T) {
	m, twin := setup(t)
	twin.StringListProperty = nil

	bag, err := m.Export(twin)
	require.NoError(t, err)

	v, ok := bag.Get("NullableInt")
	assert.True(t, ok)
	assert.Nil(t, v)
	v, ok = bag.Get("StringListProperty")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestExportReturnsNewBagEachTime(t *testing.T) {
	m, twin := setup(t)

	first, err := m.Export(twin)
	require.NoError(t, err)
	second, err := m.Export(twin)
	require.NoError(t, err)
	require.NotSame(t, first, second)

	first.Set("StringProperty", "changed")
	list, _ := first.Get("StringListProperty")
	list.([]string)[0] = "changed"

	v, _ := second.Get("StringProperty")
	assert.Equal(t, "DefaultString", v)
	assert.Equal(t, []string{"Default1", "Default2"}, twin.StringListProperty)
}

func TestApplyThenExportRoundTrip(t *testing.T) {
	m, twin := setup(t)

	var in propbag.Bag
	require.NoError(t, in.UnmarshalJSON([]byte(`{
		"StringProperty": "RoundTripString",
		"IntProperty": 777,
		"DoubleProperty": "6,28",
		"BoolProperty": true,
		"DateTimeProperty": "2024-03-15T00:00:00Z",
		"StringListProperty": ["a", "b"],
		"Mode": "Auto",
		"StaticProperty": "RoundTripStatic"
	}`)))
	require.NoError(t, m.ApplyBag(&in, twin))

	out, err := m.Export(twin)
	require.NoError(t, err)

	want := map[string]interface{}{
		"StringProperty":     "RoundTripString",
		"IntProperty":        777,
		"DoubleProperty":     6.28,
		"BoolProperty":       true,
		"DateTimeProperty":   time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		"StringListProperty": []string{"a", "b"},
		"Mode":               ModeAuto,
		"StaticProperty":     "RoundTripStatic",
	}
	for name, value := range want {
		got, _ := out.Get(name)
		assert.Equal(t, value, got, name)
	}
}

func TestApplySource(t *testing.T) {
	m, twin := setup(t)

	err := m.ApplySource(MapSource{
		"StringProperty":     "ConfigString",
		"IntProperty":        "999",
		"DoubleProperty":     "9,99",
		"BoolProperty":       "false",
		"DateTimeProperty":   "2023-12-25T00:00:00",
		"StringListProperty": "single",
		"StaticProperty":     "ConfigStatic",
		"ReadOnlyProperty":   "NewValue",
	}, twin)
	require.NoError(t, err)

	assert.Equal(t, "ConfigString", twin.StringProperty)
	assert.Equal(t, 999, twin.IntProperty)
	assert.Equal(t, 9.99, twin.DoubleProperty)
	assert.False(t, twin.BoolProperty)
	assert.Equal(t, time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC), twin.DateTimeProperty)
	assert.Equal(t, []string{"single"}, twin.StringListProperty)
	assert.Equal(t, "ConfigStatic", staticProperty)
	assert.Equal(t, "ReadOnly", twin.ReadOnlyProperty)
}

func TestApplySourceSkipsMissingAndFails(t *testing.T) {
	m, twin := setup(t)

	require.NoError(t, m.ApplySource(MapSource{"IntProperty": "500"}, twin))
	assert.Equal(t, "DefaultString", twin.StringProperty)
	assert.Equal(t, "Static", staticProperty)
	assert.Equal(t, 500, twin.IntProperty)

	err := m.ApplySource(MapSource{"IntProperty": "NotANumber"}, twin)
	assert.True(t, IsFormatError(err))
	assert.Equal(t, 500, twin.IntProperty)
}

func TestApplyViperSource(t *testing.T) {
	m, twin := setup(t)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
ModuleTwin:
  stringproperty: FromViper
  IntProperty: "888"
  DoubleProperty: "8,88"
  DateTimeProperty: "2024-04-20T12:30:45"
  StringListProperty:
    - a
    - b
  StaticProperty: ConfigStaticRoundTrip
`)))

	require.NoError(t, m.ApplySource(NewViperSource(v, "ModuleTwin"), twin))
	assert.Equal(t, "FromViper", twin.StringProperty)
	assert.Equal(t, 888, twin.IntProperty)
	assert.Equal(t, 8.88, twin.DoubleProperty)
	assert.Equal(t, time.Date(2024, 4, 20, 12, 30, 45, 0, time.UTC), twin.DateTimeProperty)
	assert.Equal(t, []string{"a", "b"}, twin.StringListProperty)
	assert.Equal(t, "ConfigStaticRoundTrip", staticProperty)
	assert.True(t, twin.BoolProperty)
}
