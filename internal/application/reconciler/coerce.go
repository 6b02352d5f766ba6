package reconciler

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CoerceFloat parses v as a float, returning 0 for anything unusable.
// Strings may carry a currency symbol or a decimal comma ("1.234,56 €").
func CoerceFloat(v interface{}) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		f = parseAmountText(n)
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// CoerceAmount is CoerceFloat restricted to non-negative values
func CoerceAmount(v interface{}) float64 {
	f := CoerceFloat(v)
	if f < 0 {
		return 0
	}
	return f
}

// CoerceString renders scalars as text; null and containers become ""
func CoerceString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// parseAmountText reads a plain number as is. Otherwise it takes the span
// from the first to the last digit, which must hold only digits, separators
// and grouping spaces, so "Total: 12,50 EUR" parses and "2 x 5" does not.
func parseAmountText(s string) float64 {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}

	start := strings.IndexFunc(s, isDigit)
	if start < 0 {
		return 0
	}
	end := strings.LastIndexFunc(s, isDigit) + 1
	negative := strings.HasSuffix(strings.TrimSpace(s[:start]), "-")

	var core strings.Builder
	for _, r := range s[start:end] {
		switch {
		case isDigit(r), r == '.', r == ',':
			core.WriteRune(r)
		case r == ' ', r == '\u00a0', r == '\u202f', r == '\'':
			// grouping
		default:
			return 0
		}
	}
	s = core.String()

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		// the later separator is the decimal one
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if negative {
		f = -f
	}
	return f
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
