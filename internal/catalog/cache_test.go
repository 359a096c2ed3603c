package catalog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/models"
)

// stubSource counts loads so tests can assert cache behavior.
type stubSource struct {
	rules     []*models.CampaignRule
	plan      *models.CommissionPlan
	tiers     []*models.Tier
	loadCount int
}

func (s *stubSource) RulesForEvent(ctx context.Context, projectID, eventName string) ([]*models.CampaignRule, error) {
	s.loadCount++
	return s.rules, nil
}

func (s *stubSource) BadgesForMetric(ctx context.Context, projectID, metric string) ([]*models.BadgeDefinition, error) {
	s.loadCount++
	return nil, nil
}

func (s *stubSource) StepsForEvent(ctx context.Context, projectID, eventName string) ([]*models.QuestStep, error) {
	s.loadCount++
	return nil, nil
}

func (s *stubSource) Quest(ctx context.Context, projectID, questID string) (*models.QuestDefinition, []*models.QuestStep, error) {
	s.loadCount++
	return nil, nil, nil
}

func (s *stubSource) StreakRulesForEvent(ctx context.Context, projectID, eventType string) ([]*models.StreakRule, error) {
	s.loadCount++
	return nil, nil
}

func (s *stubSource) CommissionPlan(ctx context.Context, projectID, planID string) (*models.CommissionPlan, error) {
	s.loadCount++
	return s.plan, nil
}

func (s *stubSource) DefaultCommissionPlan(ctx context.Context, projectID string) (*models.CommissionPlan, error) {
	s.loadCount++
	return s.plan, nil
}

func (s *stubSource) Tiers(ctx context.Context, projectID string) ([]*models.Tier, error) {
	s.loadCount++
	return s.tiers, nil
}

func (s *stubSource) Tier(ctx context.Context, projectID, tierID string) (*models.Tier, error) {
	s.loadCount++
	for _, tier := range s.tiers {
		if tier.ID == tierID {
			return tier, nil
		}
	}
	return nil, nil
}

func setupCache(t *testing.T, source Catalog) (*CachedCatalog, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := logging.New(slog.LevelError, "text")
	return NewCachedCatalog(source, client, time.Minute, logger), mr
}

func TestCachedCatalog_RulesForEvent_ReadThrough(t *testing.T) {
	source := &stubSource{rules: []*models.CampaignRule{
		{ID: "r1", ProjectID: "proj_1", Priority: 10, Active: true},
	}}
	cache, _ := setupCache(t, source)
	ctx := context.Background()

	rules, err := cache.RulesForEvent(ctx, "proj_1", "purchase.completed")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 1, source.loadCount)

	// Second read is served from the cache.
	rules, err = cache.RulesForEvent(ctx, "proj_1", "purchase.completed")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, 1, source.loadCount)

	// A different event name is a different cache entry.
	_, err = cache.RulesForEvent(ctx, "proj_1", "signup")
	require.NoError(t, err)
	assert.Equal(t, 2, source.loadCount)
}

func TestCachedCatalog_TTLExpiry(t *testing.T) {
	source := &stubSource{tiers: []*models.Tier{{ID: "t1", MinPoints: 0}}}
	cache, mr := setupCache(t, source)
	ctx := context.Background()

	_, err := cache.Tiers(ctx, "proj_1")
	require.NoError(t, err)
	_, err = cache.Tiers(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, 1, source.loadCount)

	mr.FastForward(2 * time.Minute)

	_, err = cache.Tiers(ctx, "proj_1")
	require.NoError(t, err)
	assert.Equal(t, 2, source.loadCount, "expired entry reloads from the source")
}

func TestCachedCatalog_NegativePlanCached(t *testing.T) {
	source := &stubSource{plan: nil}
	cache, _ := setupCache(t, source)
	ctx := context.Background()

	plan, err := cache.DefaultCommissionPlan(ctx, "proj_1")
	require.NoError(t, err)
	assert.Nil(t, plan)

	plan, err = cache.DefaultCommissionPlan(ctx, "proj_1")
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Equal(t, 1, source.loadCount, "a missing plan is cached too")
}

func TestCachedCatalog_RedisDownFallsThrough(t *testing.T) {
	source := &stubSource{tiers: []*models.Tier{{ID: "t1"}}}
	cache, mr := setupCache(t, source)
	mr.Close()
	ctx := context.Background()

	tiers, err := cache.Tiers(ctx, "proj_1")
	require.NoError(t, err, "cache failure must not fail the read")
	require.Len(t, tiers, 1)

	tiers, err = cache.Tiers(ctx, "proj_1")
	require.NoError(t, err)
	require.Len(t, tiers, 1)
	assert.Equal(t, 2, source.loadCount, "every read goes to the source while redis is down")
}

func TestCachedCatalog_QuestBundle(t *testing.T) {
	source := &stubSource{}
	cache, _ := setupCache(t, source)
	ctx := context.Background()

	quest, steps, err := cache.Quest(ctx, "proj_1", "quest-1")
	require.NoError(t, err)
	assert.Nil(t, quest)
	assert.Nil(t, steps)
}
