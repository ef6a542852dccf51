package util

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrNotNumeric is returned when a value cannot be read as a number.
var ErrNotNumeric = errors.New("value is not numeric")

// ParseNumber reads a decoded JSON value as a float64.
// Handles float64, the integer kinds, json.Number and numeric strings
// (surrounding whitespace, thousands separators and a leading "$" are
// ignored). nil and blank strings report ok=false with no error: they are
// absent, not zero. Anything else returns ErrNotNumeric.
func ParseNumber(v any) (value float64, ok bool, err error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return checkFinite(n)
	case float32:
		return checkFinite(float64(n))
	case int:
		return float64(n), true, nil
	case int32:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, ErrNotNumeric
		}
		return checkFinite(f)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false, nil
		}
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, ErrNotNumeric
		}
		return checkFinite(f)
	default:
		return 0, false, ErrNotNumeric
	}
}

func checkFinite(f float64) (float64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, ErrNotNumeric
	}
	return f, true, nil
}

// ToInt64 rounds a float64 to the nearest int64.
func ToInt64(f float64) int64 {
	return int64(math.Round(f))
}

// ToString renders a decoded JSON value for diagnostics.
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "<unprintable>"
		}
		return string(b)
	}
}
