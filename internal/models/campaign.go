package models

import (
	"encoding/json"
	"fmt"
)

// LogicOp joins the conditions of a group.
type LogicOp string

const (
	LogicAnd LogicOp = "AND"
	LogicOr  LogicOp = "OR"
)

// ParseLogicOp validates a stored logic tag.
func ParseLogicOp(s string) (LogicOp, error) {
	switch LogicOp(s) {
	case LogicAnd, LogicOr:
		return LogicOp(s), nil
	default:
		return "", fmt.Errorf("unknown condition logic %q", s)
	}
}

// Operator is the closed set of condition operators. Unknown operators are
// rejected when definitions are loaded, not at evaluation time.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpGreaterThan    Operator = "greater_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessThan       Operator = "less_than"
	OpLessOrEqual    Operator = "less_or_equal"
	OpContains       Operator = "contains"
)

// ParseOperator validates a stored operator tag.
func ParseOperator(s string) (Operator, error) {
	switch Operator(s) {
	case OpEquals, OpNotEquals, OpGreaterThan, OpGreaterOrEqual, OpLessThan, OpLessOrEqual, OpContains:
		return Operator(s), nil
	default:
		return "", fmt.Errorf("unknown condition operator %q", s)
	}
}

// Condition compares one event attribute against a literal.
// A missing field makes the condition false, never an error.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// ConditionGroup is a one-level boolean tree over conditions.
// Groups are not nested in the current model.
type ConditionGroup struct {
	Logic      LogicOp     `json:"logic"`
	Conditions []Condition `json:"conditions"`
}

// EffectType is the closed set of rule effect tags.
type EffectType string

const (
	EffectAddLoyaltyPoints EffectType = "add_loyalty_points"
	EffectUpgradeTier      EffectType = "upgrade_tier"

	// Cart-path effects are recognized but deferred to the synchronous
	// checkout collaborator; the executor reports them as deferred.
	EffectApplyDiscount EffectType = "apply_discount"
	EffectAddItem       EffectType = "add_item"
	EffectRemoveItem    EffectType = "remove_item"
	EffectSetShipping   EffectType = "set_shipping"
	EffectApplyCoupon   EffectType = "apply_coupon"
	EffectRejectCoupon  EffectType = "reject_coupon"
)

// ParseEffectType validates a stored effect tag.
func ParseEffectType(s string) (EffectType, error) {
	switch EffectType(s) {
	case EffectAddLoyaltyPoints, EffectUpgradeTier,
		EffectApplyDiscount, EffectAddItem, EffectRemoveItem,
		EffectSetShipping, EffectApplyCoupon, EffectRejectCoupon:
		return EffectType(s), nil
	default:
		return "", fmt.Errorf("unknown effect type %q", s)
	}
}

// Deferred reports whether the effect belongs to the synchronous cart path
// rather than this asynchronous engine.
func (t EffectType) Deferred() bool {
	switch t {
	case EffectAddLoyaltyPoints, EffectUpgradeTier:
		return false
	default:
		return true
	}
}

// Effect is one side effect attached to a campaign rule.
type Effect struct {
	Type   EffectType     `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// PointsParam returns the integer "points" parameter, or 0.
func (e Effect) PointsParam() int64 {
	if raw, ok := e.Params["points"]; ok {
		if f, ok := toFloat(raw); ok {
			return int64(f)
		}
	}
	return 0
}

// StringParam returns a string parameter, or "".
func (e Effect) StringParam(key string) string {
	if raw, ok := e.Params[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

// CampaignRule is one reactive rule of a campaign. An empty EventTypes set
// means the rule is evaluated for every event of the tenant.
type CampaignRule struct {
	ID         string         `json:"id"`
	CampaignID string         `json:"campaign_id"`
	ProjectID  string         `json:"project_id"`
	Active     bool           `json:"active"`
	Priority   int            `json:"priority"`
	EventTypes []string       `json:"event_types,omitempty"`
	Conditions ConditionGroup `json:"conditions"`
	Effects    []Effect       `json:"effects"`
}

// MatchesEventType reports whether the rule's event filter admits the
// given event name. An empty filter admits everything.
func (r *CampaignRule) MatchesEventType(event string) bool {
	if len(r.EventTypes) == 0 {
		return true
	}
	for _, t := range r.EventTypes {
		if t == event {
			return true
		}
	}
	return false
}

// ValidateRule rejects unknown operator, logic, and effect tags at load
// time so evaluation never sees an unparseable rule.
func ValidateRule(r *CampaignRule) error {
	if _, err := ParseLogicOp(string(r.Conditions.Logic)); err != nil && len(r.Conditions.Conditions) > 0 {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	for _, c := range r.Conditions.Conditions {
		if _, err := ParseOperator(string(c.Operator)); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	for _, e := range r.Effects {
		if _, err := ParseEffectType(string(e.Type)); err != nil {
			return fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// UnmarshalRuleJSON decodes and validates a stored rule row's JSONB columns.
func UnmarshalRuleJSON(rule *CampaignRule, conditionsJSON, effectsJSON []byte) error {
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &rule.Conditions); err != nil {
			return fmt.Errorf("rule %s: unmarshal conditions: %w", rule.ID, err)
		}
	}
	if len(effectsJSON) > 0 {
		if err := json.Unmarshal(effectsJSON, &rule.Effects); err != nil {
			return fmt.Errorf("rule %s: unmarshal effects: %w", rule.ID, err)
		}
	}
	return ValidateRule(rule)
}
