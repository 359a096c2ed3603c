package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/questforge-labs/questforge/internal/models"
)

// fileDoc is the YAML shape of a definitions file for local development:
// the whole tenant catalog in one document, served by a StaticCatalog.
type fileDoc struct {
	ProjectID       string           `yaml:"project_id"`
	CampaignRules   []fileRule       `yaml:"campaign_rules"`
	Badges          []fileBadge      `yaml:"badges"`
	Quests          []fileQuest      `yaml:"quests"`
	StreakRules     []fileStreakRule `yaml:"streak_rules"`
	CommissionPlans []filePlan       `yaml:"commission_plans"`
	Tiers           []fileTier       `yaml:"tiers"`
}

type fileRule struct {
	ID         string          `yaml:"id"`
	CampaignID string          `yaml:"campaign_id"`
	Priority   int             `yaml:"priority"`
	EventTypes []string        `yaml:"event_types"`
	Logic      string          `yaml:"logic"`
	Conditions []fileCondition `yaml:"conditions"`
	Effects    []fileEffect    `yaml:"effects"`
}

type fileCondition struct {
	Field    string `yaml:"field"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
}

type fileEffect struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

type fileBadge struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	Category      string  `yaml:"category"`
	RuleType      string  `yaml:"rule_type"`
	TriggerMetric string  `yaml:"trigger_metric"`
	Threshold     float64 `yaml:"threshold"`
	Rarity        string  `yaml:"rarity"`
	Hidden        bool    `yaml:"hidden"`
}

type fileQuest struct {
	ID            string     `yaml:"id"`
	Name          string     `yaml:"name"`
	RewardXP      int64      `yaml:"reward_xp"`
	RewardBadgeID string     `yaml:"reward_badge_id"`
	Steps         []fileStep `yaml:"steps"`
}

type fileStep struct {
	ID            string `yaml:"id"`
	EventName     string `yaml:"event_name"`
	RequiredCount int    `yaml:"required_count"`
}

type fileStreakRule struct {
	ID                    string                `yaml:"id"`
	EventType             string                `yaml:"event_type"`
	Frequency             string                `yaml:"frequency"`
	Milestones            []fileStreakMilestone `yaml:"milestones"`
	DefaultFreezeCount    int                   `yaml:"default_freeze_count"`
	TimezoneOffsetMinutes int                   `yaml:"timezone_offset_minutes"`
}

type fileStreakMilestone struct {
	Day      int    `yaml:"day"`
	RewardXP int64  `yaml:"reward_xp"`
	BadgeID  string `yaml:"badge_id"`
}

type filePlan struct {
	ID       string `yaml:"id"`
	Type     string `yaml:"type"`
	Value    int64  `yaml:"value"`
	Currency string `yaml:"currency"`
	Default  bool   `yaml:"default"`
}

type fileTier struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name"`
	MinPoints int64  `yaml:"min_points"`
	Rank      int    `yaml:"rank"`
}

// LoadStatic reads a YAML definitions file into a StaticCatalog. Invalid
// campaign rules fail the load outright; a dev file should be fixed, not
// silently filtered the way stored rows are.
func LoadStatic(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	if doc.ProjectID == "" {
		return nil, fmt.Errorf("catalog file %s: project_id is required", path)
	}

	cat := &StaticCatalog{}

	for _, fr := range doc.CampaignRules {
		rule := &models.CampaignRule{
			ID:         fr.ID,
			CampaignID: fr.CampaignID,
			ProjectID:  doc.ProjectID,
			Active:     true,
			Priority:   fr.Priority,
			EventTypes: fr.EventTypes,
			Conditions: models.ConditionGroup{Logic: models.LogicOp(fr.Logic)},
		}
		for _, fc := range fr.Conditions {
			rule.Conditions.Conditions = append(rule.Conditions.Conditions, models.Condition{
				Field:    fc.Field,
				Operator: models.Operator(fc.Operator),
				Value:    fc.Value,
			})
		}
		for _, fe := range fr.Effects {
			rule.Effects = append(rule.Effects, models.Effect{
				Type:   models.EffectType(fe.Type),
				Params: fe.Params,
			})
		}
		if err := models.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("catalog file %s: %w", path, err)
		}
		cat.Rules = append(cat.Rules, rule)
	}

	for _, fb := range doc.Badges {
		visibility := models.BadgePublic
		if fb.Hidden {
			visibility = models.BadgeHidden
		}
		cat.Badges = append(cat.Badges, &models.BadgeDefinition{
			ID:            fb.ID,
			ProjectID:     doc.ProjectID,
			Name:          fb.Name,
			Category:      fb.Category,
			RuleType:      models.BadgeRuleType(fb.RuleType),
			TriggerMetric: fb.TriggerMetric,
			Threshold:     fb.Threshold,
			Rarity:        fb.Rarity,
			Visibility:    visibility,
			Active:        true,
		})
	}

	for _, fq := range doc.Quests {
		cat.Quests = append(cat.Quests, &models.QuestDefinition{
			ID:            fq.ID,
			ProjectID:     doc.ProjectID,
			Name:          fq.Name,
			RewardXP:      fq.RewardXP,
			RewardBadgeID: fq.RewardBadgeID,
			Active:        true,
		})
		for i, fs := range fq.Steps {
			required := fs.RequiredCount
			if required <= 0 {
				required = 1
			}
			cat.Steps = append(cat.Steps, &models.QuestStep{
				ID:            fs.ID,
				QuestID:       fq.ID,
				EventName:     fs.EventName,
				RequiredCount: required,
				OrderIndex:    i,
			})
		}
	}

	for _, fr := range doc.StreakRules {
		frequency := models.StreakFrequency(fr.Frequency)
		if frequency == "" {
			frequency = models.FrequencyDaily
		}
		rule := &models.StreakRule{
			ID:                    fr.ID,
			ProjectID:             doc.ProjectID,
			EventType:             fr.EventType,
			Frequency:             frequency,
			DefaultFreezeCount:    fr.DefaultFreezeCount,
			TimezoneOffsetMinutes: fr.TimezoneOffsetMinutes,
			Active:                true,
		}
		for _, fm := range fr.Milestones {
			rule.Milestones = append(rule.Milestones, models.StreakMilestone{
				Day:      fm.Day,
				RewardXP: fm.RewardXP,
				BadgeID:  fm.BadgeID,
			})
		}
		cat.StreakRules = append(cat.StreakRules, rule)
	}

	for _, fp := range doc.CommissionPlans {
		cat.Plans = append(cat.Plans, &models.CommissionPlan{
			ID:        fp.ID,
			ProjectID: doc.ProjectID,
			Type:      models.CommissionPlanType(fp.Type),
			Value:     fp.Value,
			Currency:  fp.Currency,
			IsDefault: fp.Default,
		})
	}

	for _, ft := range doc.Tiers {
		cat.TierList = append(cat.TierList, &models.Tier{
			ID:        ft.ID,
			ProjectID: doc.ProjectID,
			Name:      ft.Name,
			MinPoints: ft.MinPoints,
			Rank:      ft.Rank,
		})
	}

	return cat, nil
}
