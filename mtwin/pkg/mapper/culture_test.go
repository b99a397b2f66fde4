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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestDutchParseFloat(t *testing.T) {
	valid := map[string]float64{
		"3,14":       3.14,
		"1.234,5":    1234.5,
		"1.234.567":  1234567,
		"12.34":      1234,
		"-0,5":       -0.5,
		"+7":         7,
		",5":         0.5,
		"2,":         2,
		"1,5E-2":     0.015,
		" 42 ":       42,
		"1.000,25e1": 10002.5,
	}
	for in, want := range valid {
		got, err := Dutch.ParseFloat(in, 64)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}

	for _, in := range []string{"", "abc", "1,2,3", ".5", "1e", "1e+", "1,5e3x", "--1", "1 000", "NaN", "Inf"} {
		_, err := Dutch.ParseFloat(in, 64)
		assert.True(t, errors.Is(err, ErrFormat), "%q: %v", in, err)
	}

	_, err := Dutch.ParseFloat("1e400", 64)
	assert.True(t, errors.Is(err, ErrOverflow))
}

func TestDutchParseInt(t *testing.T) {
	v, err := Dutch.ParseInt(" -123 ", 64)
	require.NoError(t, err)
	assert.Equal(t, int64(-123), v)

	for _, in := range []string{"12.34", "1,0", "1.000", "", "-", "1e3", "+-1"} {
		_, err := Dutch.ParseInt(in, 64)
		assert.True(t, errors.Is(err, ErrFormat), "%q: %v", in, err)
	}

	_, err = Dutch.ParseInt("128", 8)
	assert.True(t, errors.Is(err, ErrOverflow))
}

func TestDutchParseUint(t *testing.T) {
	v, err := Dutch.ParseUint("-0", 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	v, err = Dutch.ParseUint("+18446744073709551615", 64)
	require.NoError(t, err)
	assert.Equal(t, uint64(18446744073709551615), v)

	_, err = Dutch.ParseUint("-3", 64)
	assert.True(t, errors.Is(err, ErrOverflow))
}

func TestDutchParseDecimal(t *testing.T) {
	d, err := Dutch.ParseDecimal("1.234,50")
	require.NoError(t, err)
	assert.Equal(t, "1234.5", d.String())

	_, err = Dutch.ParseDecimal("1,5e3")
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestCultureString(t *testing.T) {
	assert.Equal(t, "nl-NL", Dutch.String())
}

func TestCultureOf(t *testing.T) {
	assert.Equal(t, ',', Dutch.Decimal)
	assert.Equal(t, '.', Dutch.Group)

	us, err := CultureOf(language.AmericanEnglish)
	require.NoError(t, err)
	assert.Equal(t, '.', us.Decimal)
	assert.Equal(t, ',', us.Group)

	v, err := us.ParseFloat("1,234.5", 64)
	require.NoError(t, err)
	assert.InDelta(t, 1234.5, v, 1e-9)

	_, err = us.ParseFloat("3,14.1", 64)
	assert.NoError(t, err)
	_, err = Dutch.ParseFloat("3,14.1", 64)
	assert.True(t, errors.Is(err, ErrFormat))
}
