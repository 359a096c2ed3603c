// Package campaign evaluates tenant campaign rules against incoming events
// and executes their effects.
package campaign

import (
	"strconv"
	"strings"

	"github.com/questforge-labs/questforge/internal/models"
)

// Matches reports whether a rule's condition group admits the envelope.
// A group with no conditions always matches.
func Matches(rule *models.CampaignRule, env *models.Envelope) bool {
	group := rule.Conditions
	if len(group.Conditions) == 0 {
		return true
	}

	if group.Logic == models.LogicOr {
		for _, cond := range group.Conditions {
			if evalCondition(cond, env) {
				return true
			}
		}
		return false
	}

	// AND is the default.
	for _, cond := range group.Conditions {
		if !evalCondition(cond, env) {
			return false
		}
	}
	return true
}

// evalCondition compares one event attribute. A missing attribute makes the
// condition false for every operator, not_equals included: an absent field
// asserts nothing.
func evalCondition(cond models.Condition, env *models.Envelope) bool {
	actual, ok := lookupField(cond.Field, env)
	if !ok || actual == nil {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		return looseEqual(actual, cond.Value)
	case models.OpNotEquals:
		return !looseEqual(actual, cond.Value)
	case models.OpGreaterThan, models.OpGreaterOrEqual, models.OpLessThan, models.OpLessOrEqual:
		a, aok := asFloat(actual)
		b, bok := asFloat(cond.Value)
		if !aok || !bok {
			return false
		}
		switch cond.Operator {
		case models.OpGreaterThan:
			return a > b
		case models.OpGreaterOrEqual:
			return a >= b
		case models.OpLessThan:
			return a < b
		default:
			return a <= b
		}
	case models.OpContains:
		return contains(actual, cond.Value)
	default:
		return false
	}
}

// lookupField resolves a condition field against the envelope. "event" and
// "userId" address the envelope itself; everything else is a property key.
func lookupField(field string, env *models.Envelope) (any, bool) {
	switch field {
	case "event":
		return env.Event, true
	case "userId":
		if env.UserID == "" {
			return nil, false
		}
		return env.UserID, true
	}
	raw, ok := env.Properties[field]
	return raw, ok
}

// looseEqual compares with the numeric coercion JSON payloads need:
// 5, 5.0 and "5" are all equal.
func looseEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ab == bb
		}
	}
	return false
}

// contains matches substrings on strings and membership on arrays.
func contains(haystack, needle any) bool {
	switch h := haystack.(type) {
	case string:
		if n, ok := needle.(string); ok {
			return strings.Contains(h, n)
		}
		return false
	case []any:
		for _, elem := range h {
			if looseEqual(elem, needle) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func asFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
