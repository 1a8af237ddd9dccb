// internal/condition/operators.go
package condition

import (
	"strings"
)

/*
 * Operator comparison logic.
 *
 * Implements the seven allow-listed operators. The present operator is
 * handled in evaluate.go because it alone distinguishes "field missing" from
 * "field null"; everything here assumes a resolved, non-null value.
 *
 * String comparison is exact and case-sensitive (no locale-aware collation).
 * Numeric equality normalizes float64/int/int64 mixing for JSON
 * compatibility. Negated operators (not_equals, not_contains) still return
 * false for type mismatches: a non-string value neither contains nor
 * not-contains anything (fail-closed, mirrors the missing-field rule).
 */

// compare applies a leaf operator to a resolved payload value and the rule's
// literal. Unknown operators return false; Parse prevents them from being
// representable in the first place.
func compare(op Operator, value, target any) bool {
	switch op {
	case OpEquals:
		return compareEqual(value, target)
	case OpNotEquals:
		return comparable2(value, target) && !compareEqual(value, target)
	case OpContains:
		return compareString(value, target, strings.Contains)
	case OpNotContains:
		return bothStrings(value, target) && !strings.Contains(value.(string), target.(string))
	case OpStartsWith:
		return compareString(value, target, strings.HasPrefix)
	case OpEndsWith:
		return compareString(value, target, strings.HasSuffix)
	default:
		return false
	}
}

// compareEqual performs equality comparison with numeric type coercion.
// Handles float64/int/int64 mixing for JSON compatibility.
func compareEqual(a, b any) bool {
	if na, nb, ok := asNumbers(a, b); ok {
		return na == nb
	}
	return a == b
}

// comparable2 reports whether two values belong to the same comparison
// domain (both numeric, both strings, or both booleans). not_equals on
// incomparable values evaluates false rather than trivially true.
func comparable2(a, b any) bool {
	if _, _, ok := asNumbers(a, b); ok {
		return true
	}
	if bothStrings(a, b) {
		return true
	}
	_, aok := a.(bool)
	_, bok := b.(bool)
	return aok && bok
}

// compareString applies fn when both operands are strings, false otherwise.
func compareString(value, target any, fn func(s, sub string) bool) bool {
	vs, ok1 := value.(string)
	ts, ok2 := target.(string)
	if !ok1 || !ok2 {
		return false
	}
	return fn(vs, ts)
}

func bothStrings(a, b any) bool {
	_, ok1 := a.(string)
	_, ok2 := b.(string)
	return ok1 && ok2
}

// asNumbers attempts to convert both values to float64 for numeric comparison.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

// toFloat64 converts value to float64 if it's a numeric type.
// Handles float64, int, int64 from JSON unmarshaling and Go literals.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
