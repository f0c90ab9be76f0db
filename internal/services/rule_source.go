package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-feedback/internal/cache"
	"github.com/miradorstack/mirador-feedback/internal/models"
)

// RuleStore persists feedback loop rules.
type RuleStore interface {
	SaveRule(ctx context.Context, rule models.FeedbackLoopRule) error
	ListRules(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error)
}

// RuleSource serves the enabled rules of a tenant, caching them between ingestions.
// Writes go through Save so the cached list is invalidated.
type RuleSource struct {
	store  RuleStore
	cache  cache.Provider
	ttl    time.Duration
	logger *slog.Logger
}

// NewRuleSource constructs a rule source. A nil provider disables caching.
func NewRuleSource(store RuleStore, provider cache.Provider, ttl time.Duration, logger *slog.Logger) *RuleSource {
	if provider == nil {
		provider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleSource{store: store, cache: provider, ttl: ttl, logger: logger}
}

func enabledRulesKey(tenantID string) string {
	return "feedback:rules:enabled:" + tenantID
}

// Enabled returns the tenant's enabled rules in creation order.
func (s *RuleSource) Enabled(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error) {
	key := enabledRulesKey(tenantID)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var rules []models.FeedbackLoopRule
		if err := json.Unmarshal(raw, &rules); err == nil {
			return rules, nil
		}
		s.logger.Warn("discarding undecodable rule cache entry", slog.String("tenant_id", tenantID))
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("rule cache read failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
	}

	all, err := s.store.ListRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	rules := make([]models.FeedbackLoopRule, 0, len(all))
	for _, rule := range all {
		if rule.Enabled {
			rules = append(rules, rule)
		}
	}

	if raw, err := json.Marshal(rules); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("rule cache write failed", slog.String("tenant_id", tenantID), slog.String("error", err.Error()))
		}
	}
	return rules, nil
}

// All returns every rule of the tenant, bypassing the cache.
func (s *RuleSource) All(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error) {
	return s.store.ListRules(ctx, tenantID)
}

// Save persists a rule and drops the tenant's cached list.
func (s *RuleSource) Save(ctx context.Context, rule models.FeedbackLoopRule) error {
	if err := s.store.SaveRule(ctx, rule); err != nil {
		return err
	}
	if err := s.cache.Del(ctx, enabledRulesKey(rule.TenantID)); err != nil {
		s.logger.Warn("rule cache invalidation failed", slog.String("tenant_id", rule.TenantID), slog.String("error", err.Error()))
	}
	return nil
}
