package derive

import (
	"strings"
	"unicode"

	"github.com/cockroachdb/apd/v3"
)

// decimalCtx is used for every derived computation.
var decimalCtx = apd.BaseContext.WithPrecision(34)

// ParseNumber reads the leading decimal number of s and returns zero when
// there is none, so "12.5 sqft" is 12.5 and "abc" is 0. Exponents and
// thousands separators are not part of a number.
func ParseNumber(s string) *apd.Decimal {
	prefix := numericPrefix(s)
	if prefix == "" {
		return apd.New(0, 0)
	}
	d, _, err := apd.NewFromString(prefix)
	if err != nil {
		return apd.New(0, 0)
	}
	return d
}

// numericPrefix returns the longest leading [sign]digits[.digits] run of s
// after leading whitespace, normalised so apd can parse it. It returns ""
// when no digit is found.
func numericPrefix(s string) string {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	var b strings.Builder
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		if s[i] == '-' {
			b.WriteByte('-')
		}
		i++
	}
	digits := 0
	intStart := b.Len()
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		b.WriteByte(s[i])
		i++
		digits++
	}
	if b.Len() == intStart {
		b.WriteByte('0')
	}
	if i < len(s) && s[i] == '.' {
		i++
		frac := 0
		for j := i; j < len(s) && s[j] >= '0' && s[j] <= '9'; j++ {
			if frac == 0 {
				b.WriteByte('.')
			}
			b.WriteByte(s[j])
			frac++
		}
		digits += frac
	}
	if digits == 0 {
		return ""
	}
	return b.String()
}

// FormatPositive renders d as a plain decimal string without trailing zeros
// or exponent. Zero and negative values render as "".
func FormatPositive(d *apd.Decimal) string {
	if d == nil || d.Form != apd.Finite || d.Sign() <= 0 {
		return ""
	}
	var r apd.Decimal
	r.Reduce(d)
	return r.Text('f')
}

func mul(x, y *apd.Decimal) *apd.Decimal {
	var out apd.Decimal
	if _, err := decimalCtx.Mul(&out, x, y); err != nil {
		return apd.New(0, 0)
	}
	return &out
}

func sum(xs ...*apd.Decimal) *apd.Decimal {
	total := apd.New(0, 0)
	for _, x := range xs {
		var next apd.Decimal
		if _, err := decimalCtx.Add(&next, total, x); err != nil {
			continue
		}
		total = &next
	}
	return total
}
