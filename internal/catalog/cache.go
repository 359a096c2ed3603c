package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/questforge-labs/questforge/common/logging"
	"github.com/questforge-labs/questforge/internal/models"
)

// DefaultCacheTTL bounds how stale a cached definition may be.
const DefaultCacheTTL = 30 * time.Second

// CachedCatalog is a read-through Redis cache in front of another Catalog.
// Redis failures degrade to direct source reads; the cache is never a
// correctness dependency.
type CachedCatalog struct {
	source Catalog
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedCatalog(source Catalog, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedCatalog{source: source, redis: redisClient, ttl: ttl, logger: logger}
}

// readThrough returns the cached value under key, or loads it from the
// source and caches the result. Cached "null" is a valid negative entry.
func readThrough[T any](ctx context.Context, c *CachedCatalog, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	data, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var value T
		if err := json.Unmarshal([]byte(data), &value); err == nil {
			return value, nil
		}
		// Corrupt entry, fall through to the source.
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "catalog cache read failed", "key", key, logging.FieldError, err)
	}

	value, err := load(ctx)
	if err != nil {
		return zero, err
	}

	encoded, err := json.Marshal(value)
	if err == nil {
		if err := c.redis.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "catalog cache write failed", "key", key, logging.FieldError, err)
		}
	}
	return value, nil
}

func cacheKey(parts ...string) string {
	key := "catalog"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

func (c *CachedCatalog) RulesForEvent(ctx context.Context, projectID, eventName string) ([]*models.CampaignRule, error) {
	return readThrough(ctx, c, cacheKey("rules", projectID, eventName), func(ctx context.Context) ([]*models.CampaignRule, error) {
		return c.source.RulesForEvent(ctx, projectID, eventName)
	})
}

func (c *CachedCatalog) BadgesForMetric(ctx context.Context, projectID, metric string) ([]*models.BadgeDefinition, error) {
	return readThrough(ctx, c, cacheKey("badges", projectID, metric), func(ctx context.Context) ([]*models.BadgeDefinition, error) {
		return c.source.BadgesForMetric(ctx, projectID, metric)
	})
}

func (c *CachedCatalog) StepsForEvent(ctx context.Context, projectID, eventName string) ([]*models.QuestStep, error) {
	return readThrough(ctx, c, cacheKey("steps", projectID, eventName), func(ctx context.Context) ([]*models.QuestStep, error) {
		return c.source.StepsForEvent(ctx, projectID, eventName)
	})
}

// questWithSteps lets a quest definition and its steps share one cache entry.
type questWithSteps struct {
	Quest *models.QuestDefinition `json:"quest"`
	Steps []*models.QuestStep     `json:"steps"`
}

func (c *CachedCatalog) Quest(ctx context.Context, projectID, questID string) (*models.QuestDefinition, []*models.QuestStep, error) {
	bundle, err := readThrough(ctx, c, cacheKey("quest", projectID, questID), func(ctx context.Context) (*questWithSteps, error) {
		quest, steps, err := c.source.Quest(ctx, projectID, questID)
		if err != nil {
			return nil, err
		}
		return &questWithSteps{Quest: quest, Steps: steps}, nil
	})
	if err != nil || bundle == nil {
		return nil, nil, err
	}
	return bundle.Quest, bundle.Steps, nil
}

func (c *CachedCatalog) StreakRulesForEvent(ctx context.Context, projectID, eventType string) ([]*models.StreakRule, error) {
	return readThrough(ctx, c, cacheKey("streaks", projectID, eventType), func(ctx context.Context) ([]*models.StreakRule, error) {
		return c.source.StreakRulesForEvent(ctx, projectID, eventType)
	})
}

func (c *CachedCatalog) CommissionPlan(ctx context.Context, projectID, planID string) (*models.CommissionPlan, error) {
	return readThrough(ctx, c, cacheKey("plan", projectID, planID), func(ctx context.Context) (*models.CommissionPlan, error) {
		return c.source.CommissionPlan(ctx, projectID, planID)
	})
}

func (c *CachedCatalog) DefaultCommissionPlan(ctx context.Context, projectID string) (*models.CommissionPlan, error) {
	return readThrough(ctx, c, cacheKey("plan", projectID, "default"), func(ctx context.Context) (*models.CommissionPlan, error) {
		return c.source.DefaultCommissionPlan(ctx, projectID)
	})
}

func (c *CachedCatalog) Tiers(ctx context.Context, projectID string) ([]*models.Tier, error) {
	return readThrough(ctx, c, cacheKey("tiers", projectID), func(ctx context.Context) ([]*models.Tier, error) {
		return c.source.Tiers(ctx, projectID)
	})
}

func (c *CachedCatalog) Tier(ctx context.Context, projectID, tierID string) (*models.Tier, error) {
	return readThrough(ctx, c, cacheKey("tier", projectID, tierID), func(ctx context.Context) (*models.Tier, error) {
		return c.source.Tier(ctx, projectID, tierID)
	})
}
