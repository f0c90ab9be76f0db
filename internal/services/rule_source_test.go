package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/repo"
)

type countingRuleStore struct {
	*repo.BadgerStore
	lists atomic.Int32
}

func (s *countingRuleStore) ListRules(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error) {
	s.lists.Add(1)
	return s.BadgerStore.ListRules(ctx, tenantID)
}

func TestRuleSourceCachesAndInvalidates(t *testing.T) {
	badgerStore, err := repo.OpenBadgerStore(repo.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })
	store := &countingRuleStore{BadgerStore: badgerStore}
	source := NewRuleSource(store, newTestCache(t), time.Minute, nil)
	ctx := context.Background()

	require.NoError(t, source.Save(ctx, models.FeedbackLoopRule{ID: "r1", TenantID: "t", Name: "on", Enabled: true}))
	require.NoError(t, source.Save(ctx, models.FeedbackLoopRule{ID: "r2", TenantID: "t", Name: "off"}))

	rules, err := source.Enabled(ctx, "t")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	_, err = source.Enabled(ctx, "t")
	require.NoError(t, err)
	require.Equal(t, int32(1), store.lists.Load())

	require.NoError(t, source.Save(ctx, models.FeedbackLoopRule{ID: "r3", TenantID: "t", Name: "new", Enabled: true}))
	rules, err = source.Enabled(ctx, "t")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	require.Equal(t, int32(2), store.lists.Load())

	all, err := source.All(ctx, "t")
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRuleSourceWithoutCache(t *testing.T) {
	badgerStore, err := repo.OpenBadgerStore(repo.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })
	store := &countingRuleStore{BadgerStore: badgerStore}
	source := NewRuleSource(store, nil, time.Minute, nil)

	for i := 0; i < 3; i++ {
		_, err := source.Enabled(context.Background(), "t")
		require.NoError(t, err)
	}
	require.Equal(t, int32(3), store.lists.Load())
}
