// Package format holds the value formatters shared by the on-screen table,
// the spreadsheet export and the print builders.
package format

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// DefaultCurrency is the ISO code used when none is configured.
const DefaultCurrency = "AED"

// Money formats amounts as "<CODE> 1,234.50".
type Money struct {
	code string
}

// NewMoney validates the ISO currency code and builds a formatter.
func NewMoney(code string) (Money, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("format: currency %q: %w", code, err)
	}
	return Money{code: unit.String()}, nil
}

// DefaultMoney returns the AED formatter.
func DefaultMoney() Money {
	m, _ := NewMoney(DefaultCurrency)
	return m
}

// Code returns the ISO currency code.
func (m Money) Code() string {
	return m.code
}

// Format renders the amount rounded to two places with thousands separators.
func (m Money) Format(v decimal.Decimal) string {
	return m.code + " " + m.Number(v)
}

// Number renders the amount without the currency code. It formats from the
// decimal string so large amounts keep every digit.
func (m Money) Number(v decimal.Decimal) string {
	v = v.Round(2)
	if v.IsZero() {
		// avoid "-0.00"
		v = decimal.Zero
	}
	fixed := v.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + group(whole) + "." + frac
}

// group inserts thousands separators into a run of digits.
func group(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	b.Grow(len(digits) + len(digits)/3)
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatAny parses v as money and formats it. ok is false when v holds no amount.
func (m Money) FormatAny(v any) (string, bool) {
	d, ok := ParseMoney(v)
	if !ok {
		return "", false
	}
	return m.Format(d), true
}

// ParseMoney accepts numbers and numeric strings such as "1,234.50" or
// "AED 1,234.50". Empty values and non-numeric strings report false.
func ParseMoney(v any) (decimal.Decimal, bool) {
	switch t := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return t, true
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, false
		}
		return *t, true
	case float64:
		return decimal.NewFromFloat(t), true
	case float32:
		return decimal.NewFromFloat32(t), true
	case int:
		return decimal.NewFromInt(int64(t)), true
	case int32:
		return decimal.NewFromInt32(t), true
	case int64:
		return decimal.NewFromInt(t), true
	case json.Number:
		return parseMoneyString(t.String())
	case string:
		return parseMoneyString(t)
	case *string:
		if t == nil {
			return decimal.Zero, false
		}
		return parseMoneyString(*t)
	default:
		return decimal.Zero, false
	}
}

func parseMoneyString(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	s = strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsSpace(r)
	})
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}
