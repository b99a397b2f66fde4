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
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Culture describes how numbers are written in inbound string values.
type Culture struct {
	Tag     language.Tag
	Decimal rune
	Group   rune
}

// Dutch is the numeric convention for every string value the mapper parses,
// whatever the host locale is: "3,14" is 3.14, "1.234,5" is 1234.5 and
// "12.34" reads as 1234.
//
// The convention matches the deployment the twins were first written for.
var Dutch = MustCulture(language.MustParse("nl-NL"))

// CultureOf reads the decimal and group separators of tag from the CLDR
// number data.
func CultureOf(tag language.Tag) (Culture, error) {
	p := message.NewPrinter(tag)
	c := Culture{Tag: tag}

	// "1", group, "234", group, "567"
	grouped := []rune(p.Sprintf("%d", 1234567))
	if len(grouped) != 9 || grouped[0] != '1' {
		return Culture{}, fmt.Errorf("culture %s: unexpected grouping %q", tag, string(grouped))
	}
	c.Group = grouped[1]

	// "1", decimal, "5"
	fraction := []rune(p.Sprintf("%.1f", 1.5))
	if len(fraction) != 3 || fraction[0] != '1' || fraction[2] != '5' {
		return Culture{}, fmt.Errorf("culture %s: unexpected fraction %q", tag, string(fraction))
	}
	c.Decimal = fraction[1]

	if c.Group == c.Decimal || unicode.IsDigit(c.Group) || unicode.IsDigit(c.Decimal) {
		return Culture{}, fmt.Errorf("culture %s: ambiguous separators %q and %q", tag, c.Group, c.Decimal)
	}
	return c, nil
}

// MustCulture is CultureOf that panics on error.
func MustCulture(tag language.Tag) Culture {
	c, err := CultureOf(tag)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Culture) String() string {
	return c.Tag.String()
}

// ParseInt parses an optionally signed run of digits. Neither group nor
// decimal separators are accepted.
func (c Culture) ParseInt(s string, bitSize int) (int64, error) {
	n, err := c.integer(s)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(n, 10, bitSize)
	return v, c.numError(s, err)
}

// ParseUint is ParseInt for unsigned fields. A leading '-' is only
// accepted for zero.
func (c Culture) ParseUint(s string, bitSize int) (uint64, error) {
	n, err := c.integer(s)
	if err != nil {
		return 0, err
	}
	n = strings.TrimPrefix(n, "+")
	if strings.HasPrefix(n, "-") {
		if strings.Trim(n[1:], "0") != "" {
			return 0, fmt.Errorf("%w: %q is negative", ErrOverflow, s)
		}
		n = "0"
	}
	v, err := strconv.ParseUint(n, 10, bitSize)
	return v, c.numError(s, err)
}

// ParseFloat parses a number with group separators in the integral part,
// one decimal separator and an optional exponent.
func (c Culture) ParseFloat(s string, bitSize int) (float64, error) {
	n, err := c.normalize(s, true)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(n, bitSize)
	return v, c.numError(s, err)
}

// ParseDecimal is ParseFloat without exponent, for fixed-point fields.
func (c Culture) ParseDecimal(s string) (decimal.Decimal, error) {
	n, err := c.normalize(s, false)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number in %s", ErrFormat, s, c)
	}
	return d, nil
}

func (c Culture) integer(s string) (string, error) {
	t := strings.TrimSpace(s)
	digits := strings.TrimLeft(t, "+-")
	if len(t)-len(digits) > 1 || digits == "" {
		return "", fmt.Errorf("%w: %q is not an integer in %s", ErrFormat, s, c)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q is not an integer in %s", ErrFormat, s, c)
		}
	}
	return t, nil
}

// normalize rewrites s into the invariant form strconv understands.
func (c Culture) normalize(s string, exponent bool) (string, error) {
	bad := fmt.Errorf("%w: %q is not a number in %s", ErrFormat, s, c)
	t := strings.TrimSpace(s)

	var b strings.Builder
	if t != "" && (t[0] == '-' || t[0] == '+') {
		b.WriteByte(t[0])
		t = t[1:]
	}

	digits := 0
	seenDecimal := false
	for i, r := range t {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == c.Group && !seenDecimal && digits > 0:
			// group separators are dropped
		case r == c.Decimal && !seenDecimal:
			b.WriteByte('.')
			seenDecimal = true
		case (r == 'e' || r == 'E') && exponent && digits > 0:
			exp := t[i+1:]
			if exp != "" && (exp[0] == '-' || exp[0] == '+') {
				exp = exp[1:]
			}
			if exp == "" || strings.IndexFunc(exp, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
				return "", bad
			}
			b.WriteString(t[i:])
			return b.String(), nil
		default:
			return "", bad
		}
	}
	if digits == 0 {
		return "", bad
	}
	return b.String(), nil
}

func (c Culture) numError(s string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return fmt.Errorf("%w: %q", ErrOverflow, s)
	}
	return fmt.Errorf("%w: %q is not a number in %s", ErrFormat, s, c)
}
