package domain

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/guregu/null/v6"
)

// Finite wraps f, mapping NaN and ±Inf to null. Derived columns never
// store non-finite values.
func Finite(f float64) null.Float {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}

// Div returns num/den, or null when either side is missing or den is zero.
func Div(num, den null.Float) null.Float {
	if !num.Valid || !den.Valid || den.Float64 == 0 {
		return null.Float{}
	}
	return Finite(num.Float64 / den.Float64)
}

// Mul returns a*b, or null when either side is missing.
func Mul(a, b null.Float) null.Float {
	if !a.Valid || !b.Valid {
		return null.Float{}
	}
	return Finite(a.Float64 * b.Float64)
}

// Sub returns a-b, or null when either side is missing.
func Sub(a, b null.Float) null.Float {
	if !a.Valid || !b.Valid {
		return null.Float{}
	}
	return Finite(a.Float64 - b.Float64)
}

// Scale multiplies a by a constant.
func Scale(a null.Float, k float64) null.Float {
	if !a.Valid {
		return null.Float{}
	}
	return Finite(a.Float64 * k)
}

// CleanNumeric strips everything that cannot be part of a decimal number.
// Parentheses mark a negative value, as in accounting notation.
func CleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if negative && out != "" && !strings.HasPrefix(out, "-") {
		out = "-" + out
	}
	return out
}

// ParseFloat parses a scraped numeric cell. Whitespace-only, dash and
// NaN cells are null.
func ParseFloat(s string) null.Float {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || trimmed == "-" || strings.EqualFold(trimmed, "nan") {
		return null.Float{}
	}
	cleaned := CleanNumeric(trimmed)
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return null.Float{}
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return null.Float{}
	}
	return Finite(f)
}

// ParseInt parses a scraped integer cell, truncating any fraction.
func ParseInt(s string) null.Int {
	f := ParseFloat(s)
	if !f.Valid {
		return null.Int{}
	}
	return null.IntFrom(int64(math.Round(f.Float64)))
}

// StripDigits keeps only the ASCII digits of s.
func StripDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
