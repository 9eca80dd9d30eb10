package condition

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// toFloat64 coerces a numeric value to float64. Numeral strings are accepted
// as a best-effort cast so that "42" compares equal to 42.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// looseEqual compares two values: numeric types (including numeral strings)
// are compared by value, booleans by identity, everything else by string form.
func looseEqual(left, right any) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return math.Abs(lf-rf) < 1e-9
	}
	if lb, ok := left.(bool); ok {
		if rb, ok := right.(bool); ok {
			return lb == rb
		}
		return false
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

// orderedCompare applies gt/gte/lt/lte. Non-numeric operands fall back to
// lexicographic string comparison when both sides are strings; anything that
// still cannot be compared is a non-match, never an error.
func orderedCompare(op Operator, left, right any) bool {
	lf, lok := toFloat64(left)
	rf, rok := toFloat64(right)
	if lok && rok {
		return applyOrdered(op, compareFloat(lf, rf))
	}
	ls, lok2 := left.(string)
	rs, rok2 := right.(string)
	if lok2 && rok2 {
		return applyOrdered(op, strings.Compare(ls, rs))
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func applyOrdered(op Operator, cmp int) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// containsOp: substring check for strings, membership check for sequences.
func containsOp(left, right any) bool {
	if ls, ok := left.(string); ok {
		return strings.Contains(ls, fmt.Sprintf("%v", right))
	}
	if seq, ok := asSlice(left); ok {
		for _, item := range seq {
			if looseEqual(item, right) {
				return true
			}
		}
	}
	return false
}

// inOp: the field value must be a member of the list carried by the condition.
// A non-list value is a non-match (validation rejects it at save time).
func inOp(left, right any) bool {
	seq, ok := asSlice(right)
	if !ok {
		return false
	}
	for _, item := range seq {
		if looseEqual(left, item) {
			return true
		}
	}
	return false
}

// asSlice normalizes []any and typed slices into []any.
func asSlice(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
