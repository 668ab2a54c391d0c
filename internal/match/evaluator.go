package match

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluate applies one comparison operator to a resolved entity value and
// an expected operand. It returns whether the criterion matched plus a
// human-readable explanation for the audit trail.
//
// Data-shape mismatches (absent field, non-numeric operand for an ordered
// comparison, wrong operand shape for contains/in) are modeled as
// non-matches with an explanatory note; this function never errors. One
// malformed entity must not abort the rest of a batch.
func Evaluate(actual interface{}, present bool, op domain.Operator, expected interface{}) (bool, string) {
	if !present {
		return false, "field not present on entity"
	}

	switch op {
	case domain.OpGreaterThan, domain.OpLessThan, domain.OpGreaterEqual, domain.OpLessEqual:
		return evaluateOrdered(actual, op, expected)

	case domain.OpEqual:
		if looseEqual(actual, expected) {
			return true, fmt.Sprintf("value %v equals %v", actual, expected)
		}
		return false, fmt.Sprintf("value %v does not equal %v", actual, expected)

	case domain.OpContains:
		return evaluateContains(actual, expected)

	case domain.OpIn:
		return evaluateIn(actual, expected)
	}

	return false, fmt.Sprintf("unknown operator %q", op)
}

// evaluateOrdered handles gt/lt/gte/lte. Both operands must coerce to
// numeric; anything else is a non-match.
func evaluateOrdered(actual interface{}, op domain.Operator, expected interface{}) (bool, string) {
	a, ok := Numeric(actual)
	if !ok {
		return false, fmt.Sprintf("value %v is not numeric", actual)
	}
	e, ok := Numeric(expected)
	if !ok {
		return false, fmt.Sprintf("expected operand %v is not numeric", expected)
	}

	var matched bool
	switch op {
	case domain.OpGreaterThan:
		matched = a > e
	case domain.OpLessThan:
		matched = a < e
	case domain.OpGreaterEqual:
		matched = a >= e
	case domain.OpLessEqual:
		matched = a <= e
	}

	if matched {
		return true, fmt.Sprintf("value %v satisfies %s %v", actual, op, expected)
	}
	return false, fmt.Sprintf("value %v does not satisfy %s %v", actual, op, expected)
}

// evaluateContains checks case-insensitive substring containment when the
// actual value is a string, or membership when it is a list.
func evaluateContains(actual, expected interface{}) (bool, string) {
	if items, ok := toSlice(actual); ok {
		for _, item := range items {
			if looseEqual(item, expected) {
				return true, fmt.Sprintf("list contains %v", expected)
			}
		}
		return false, fmt.Sprintf("list does not contain %v", expected)
	}

	haystack, ok := actual.(string)
	if !ok {
		return false, fmt.Sprintf("value %v is not a string or list", actual)
	}
	needle, ok := expected.(string)
	if !ok {
		return false, fmt.Sprintf("expected operand %v is not a string", expected)
	}

	if strings.Contains(strings.ToLower(haystack), strings.ToLower(needle)) {
		return true, fmt.Sprintf("%q contains %q", haystack, needle)
	}
	return false, fmt.Sprintf("%q does not contain %q", haystack, needle)
}

// evaluateIn checks membership of the actual value in the expected list.
func evaluateIn(actual, expected interface{}) (bool, string) {
	items, ok := toSlice(expected)
	if !ok {
		return false, fmt.Sprintf("expected operand %v is not a list", expected)
	}

	for _, item := range items {
		if looseEqual(actual, item) {
			return true, fmt.Sprintf("value %v is in %v", actual, items)
		}
	}
	return false, fmt.Sprintf("value %v is not in %v", actual, items)
}

// looseEqual is structural equality with numeric-type normalization, so
// 60 equals 60.0 regardless of decoder-dependent Go types.
func looseEqual(a, b interface{}) bool {
	af, aok := Numeric(a)
	bf, bok := Numeric(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// Numeric coerces the numeric shapes produced by JSON/YAML decoders and
// numeric strings to float64.
func Numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// toSlice normalizes the list shapes produced by JSON/YAML decoders.
func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []string:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []int:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}
