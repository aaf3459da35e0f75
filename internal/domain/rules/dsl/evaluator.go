package dsl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// FieldSource is any record the evaluator can read fields from. ok is
// false only for names the record does not know at all; a known-but-unset
// field returns (nil, true).
type FieldSource interface {
	Field(name string) (any, bool)
}

// MapSource adapts a plain map to FieldSource.
type MapSource map[string]any

func (m MapSource) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// EvaluateRule reports whether the rule matches the record. Inactive rules
// never match. Conditions are DNF: any AND block satisfies the rule.
func EvaluateRule(rule *CategorizationRule, record FieldSource) bool {
	if !rule.IsActive {
		return false
	}
	for _, block := range rule.Conditions.Blocks {
		if evaluateAndBlock(block, record) {
			return true
		}
	}
	return false
}

func evaluateAndBlock(block AndBlock, record FieldSource) bool {
	for _, cond := range block.Conditions {
		if !evaluateFilter(cond, record) {
			return false
		}
	}
	return true
}

func evaluateFilter(expr FilterExpression, record FieldSource) bool {
	value, known := record.Field(expr.Field)
	if !known {
		value = nil
	}
	op := expr.Op

	// Null checks are defined on the absent/empty sentinel.
	switch op.Kind {
	case OpNull:
		return isNullValue(value)
	case OpNnull:
		return !isNullValue(value)
	}

	// Every other operator treats a missing field as no-match.
	if value == nil {
		return false
	}
	str := stringify(value)

	switch op.Kind {
	case OpEq:
		return strEquals(str, op.Args[0], op.CaseSensitive)
	case OpNeq:
		return !strEquals(str, op.Args[0], op.CaseSensitive)
	case OpGt:
		return compareValues(str, op.Args[0]) > 0
	case OpLt:
		return compareValues(str, op.Args[0]) < 0
	case OpGte:
		return compareValues(str, op.Args[0]) >= 0
	case OpLte:
		return compareValues(str, op.Args[0]) <= 0
	case OpBetween:
		return compareValues(str, op.Args[0]) >= 0 && compareValues(str, op.Args[1]) <= 0
	case OpCon:
		return containsAny(str, op.Args, op.CaseSensitive)
	case OpNoc:
		return !containsAny(str, op.Args, op.CaseSensitive)
	case OpSw:
		return hasAffix(str, op.Args[0], op.CaseSensitive, strings.HasPrefix)
	case OpEw:
		return hasAffix(str, op.Args[0], op.CaseSensitive, strings.HasSuffix)
	case OpRegex:
		return regexMatch(str, op.Args[0], op.CaseSensitive)
	case OpIn:
		return inList(str, op.Args, op.CaseSensitive)
	case OpNin:
		return !inList(str, op.Args, op.CaseSensitive)
	}
	return false
}

func isNullValue(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

// stringify renders a field value for string operators. Decimals print in
// plain notation so "500.00" style arguments compare predictably.
func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case decimal.Decimal:
		return v.String()
	case *decimal.Decimal:
		if v == nil {
			return ""
		}
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func strEquals(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func containsAny(haystack string, needles []string, caseSensitive bool) bool {
	if !caseSensitive {
		haystack = strings.ToLower(haystack)
	}
	for _, needle := range needles {
		if !caseSensitive {
			needle = strings.ToLower(needle)
		}
		if strings.Contains(haystack, needle) {
			return true
		}
	}
	return false
}

func hasAffix(s, affix string, caseSensitive bool, match func(string, string) bool) bool {
	if !caseSensitive {
		return match(strings.ToLower(s), strings.ToLower(affix))
	}
	return match(s, affix)
}

// regexMatch compiles the pattern per call; a partial match suffices.
// Invalid patterns evaluate false rather than failing the run.
func regexMatch(s, pattern string, caseSensitive bool) bool {
	if !caseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

func inList(value string, values []string, caseSensitive bool) bool {
	for _, candidate := range values {
		if strEquals(value, candidate, caseSensitive) {
			return true
		}
	}
	return false
}

// compareValues tries fixed-point decimal comparison first and falls back
// to lexicographic ordering when either side is not numeric.
func compareValues(a, b string) int {
	da, errA := decimal.NewFromString(a)
	db, errB := decimal.NewFromString(b)
	if errA == nil && errB == nil {
		return da.Cmp(db)
	}
	return strings.Compare(a, b)
}
