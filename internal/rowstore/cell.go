package rowstore

import (
	"encoding/json"
	"math"
	"strconv"
)

// CellText renders a cell the way a loosely typed client would turn it into
// a string: integral numbers lose their fraction, strings pass through.
func CellText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return formatNumber(f)
		}
		return x.String()
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		text, err := MarshalText(x)
		if err != nil {
			return ""
		}
		return string(text)
	}
}

func formatNumber(f float64) string {
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// StrictEqual compares two cells without type coercion: a number never
// equals a string, even when they print the same.
func StrictEqual(a, b any) bool {
	if an, ok := number(a); ok {
		bn, ok := number(b)
		return ok && an == bn
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	default:
		return false
	}
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Truthy reports whether v counts as present: empty strings, zero, false and
// nil do not.
func Truthy(v any) bool {
	if n, ok := number(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	default:
		return true
	}
}

// normalizeCell maps values a sheet cannot hold onto ones it can: nil
// becomes an empty cell and nested values become JSON text.
func normalizeCell(v any) any {
	switch v.(type) {
	case nil:
		return ""
	case map[string]any, []any, *Record:
		text, err := MarshalText(v)
		if err != nil {
			return ""
		}
		return string(text)
	default:
		return v
	}
}
