package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOperator(t *testing.T) {
	for _, valid := range []string{"equals", "not_equals", "greater_than", "greater_or_equal", "less_than", "less_or_equal", "contains"} {
		_, err := ParseOperator(valid)
		assert.NoError(t, err, valid)
	}

	_, err := ParseOperator("regex_match")
	assert.Error(t, err)
}

func TestParseEffectType(t *testing.T) {
	ef, err := ParseEffectType("add_loyalty_points")
	require.NoError(t, err)
	assert.False(t, ef.Deferred())

	ef, err = ParseEffectType("apply_discount")
	require.NoError(t, err)
	assert.True(t, ef.Deferred(), "cart-path effects are deferred")

	_, err = ParseEffectType("launch_missiles")
	assert.Error(t, err)
}

func TestCampaignRule_MatchesEventType(t *testing.T) {
	rule := &CampaignRule{EventTypes: []string{"purchase.completed", "signup"}}
	assert.True(t, rule.MatchesEventType("signup"))
	assert.False(t, rule.MatchesEventType("login"))

	matchAll := &CampaignRule{}
	assert.True(t, matchAll.MatchesEventType("anything.at.all"))
}

func TestUnmarshalRuleJSON_RejectsUnknownTags(t *testing.T) {
	rule := &CampaignRule{ID: "r1"}
	conditions := []byte(`{"logic":"AND","conditions":[{"field":"plan","operator":"fuzzy_match","value":"pro"}]}`)
	effects := []byte(`[{"type":"add_loyalty_points","params":{"points":10}}]`)

	err := UnmarshalRuleJSON(rule, conditions, effects)
	assert.ErrorContains(t, err, "unknown condition operator")
}

func TestUnmarshalRuleJSON_Valid(t *testing.T) {
	rule := &CampaignRule{ID: "r1"}
	conditions := []byte(`{"logic":"OR","conditions":[{"field":"plan","operator":"equals","value":"pro"}]}`)
	effects := []byte(`[{"type":"upgrade_tier","params":{"tierId":"gold"}}]`)

	require.NoError(t, UnmarshalRuleJSON(rule, conditions, effects))
	assert.Equal(t, LogicOr, rule.Conditions.Logic)
	assert.Equal(t, EffectUpgradeTier, rule.Effects[0].Type)
	assert.Equal(t, "gold", rule.Effects[0].StringParam("tierId"))
}

func TestCommissionPlan_Commission(t *testing.T) {
	percentage := &CommissionPlan{Type: PlanPercentage, Value: 1000} // 10% in basis points
	assert.Equal(t, int64(500), percentage.Commission(5000))
	assert.Equal(t, int64(0), percentage.Commission(4)) // integer floor

	fixed := &CommissionPlan{Type: PlanFixed, Value: 250}
	assert.Equal(t, int64(250), fixed.Commission(5000))
	assert.Equal(t, int64(250), fixed.Commission(1))
}
