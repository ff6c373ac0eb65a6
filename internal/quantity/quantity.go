// Package quantity canonicalizes loosely-typed quantities and amounts coming
// from request payloads (JSON numbers, numeric strings, absent values).
package quantity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/Kerhoff/giftpool/internal/apperr"
)

// DefaultQuantity is used wherever a quantity is optional.
const DefaultQuantity = 1

// Normalize floors v to a positive integer. Absent, non-numeric, non-finite or
// sub-1 input yields def. Values above math.MaxInt32 are clamped so they still
// fail availability checks downstream.
func Normalize(v any, def int) int {
	f, ok := toFloat(v)
	if !ok {
		return def
	}
	f = math.Floor(f)
	if f < 1 {
		return def
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(f)
}

// Require parses an explicit quantity. The floor of v must be >= 1, or >= 0
// when allowZero is set (clearing a field).
func Require(v any, field string, allowZero bool) (int, error) {
	n, err := require(v, field, allowZero, math.MaxInt32)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RequireAmount parses an explicit amount in minor currency units.
func RequireAmount(v any, field string, allowZero bool) (int64, error) {
	return require(v, field, allowZero, float64(math.MaxInt64/2))
}

// Optional is Require for fields that may be omitted. An absent value yields
// nil without error.
func Optional(v any, field string, allowZero bool) (*int, error) {
	if !Present(v) {
		return nil, nil
	}
	n, err := Require(v, field, allowZero)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// OptionalAmount is RequireAmount for fields that may be omitted.
func OptionalAmount(v any, field string, allowZero bool) (*int64, error) {
	if !Present(v) {
		return nil, nil
	}
	n, err := RequireAmount(v, field, allowZero)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Present reports whether v carries a value at all. Empty strings count as
// absent.
func Present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case json.Number:
		return strings.TrimSpace(string(x)) != ""
	case *int:
		return x != nil
	case *int64:
		return x != nil
	case *float64:
		return x != nil
	}
	return true
}

func require(v any, field string, allowZero bool, limit float64) (int64, error) {
	if !Present(v) {
		return 0, apperr.Validation("%s is required", field)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, apperr.Validation("%s must be a number", field)
	}
	f = math.Floor(f)
	minimum := 1.0
	if allowZero {
		minimum = 0
	}
	if f < minimum {
		if allowZero {
			return 0, apperr.Validation("%s must be zero or greater", field)
		}
		return 0, apperr.Validation("%s must be at least 1", field)
	}
	if f > limit {
		return 0, apperr.Validation("%s is too large", field)
	}
	return int64(f), nil
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, false
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case *int:
		if x == nil {
			return 0, false
		}
		f = float64(*x)
	case *int64:
		if x == nil {
			return 0, false
		}
		f = float64(*x)
	case *float64:
		if x == nil {
			return 0, false
		}
		f = *x
	case json.Number:
		p, err := strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
		if err != nil {
			return 0, false
		}
		f = p
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = p
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
