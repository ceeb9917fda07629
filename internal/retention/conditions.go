// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"fmt"
	"strconv"
	"strings"
)

// matchesConditions reports whether a record's field map satisfies
// every condition. An empty condition list matches everything.
func matchesConditions(fields map[string]interface{}, conditions []Condition) bool {
	for _, c := range conditions {
		if !matchesCondition(fields, c) {
			return false
		}
	}
	return true
}

func matchesCondition(fields map[string]interface{}, c Condition) bool {
	value, present := fields[c.Field]

	switch c.Operator {
	case OpExists:
		return present
	case OpEquals:
		return present && compareValues(value, c.Value) == 0
	case OpNotEquals:
		// An absent field is not equal to anything.
		return !present || compareValues(value, c.Value) != 0
	case OpGreaterThan:
		return present && compareValues(value, c.Value) > 0
	case OpLessThan:
		return present && compareValues(value, c.Value) < 0
	case OpContains:
		if !present {
			return false
		}
		return strings.Contains(
			strings.ToLower(asString(value)),
			strings.ToLower(asString(c.Value)))
	default:
		return false
	}
}

// compareValues compares two loosely typed values. Both numeric
// compares numerically; otherwise string comparison. Returns a value
// outside {-1, 0, 1} range semantics only through sign.
func compareValues(a, b interface{}) int {
	an, aok := asFloat(a)
	bn, bok := asFloat(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(asString(a), asString(b))
}

// asFloat coerces JSON-decoded scalars to float64.
func asFloat(v interface{}) (float64, bool) {
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
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// asString renders a loosely typed value for string comparison.
func asString(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
