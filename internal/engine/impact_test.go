package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestImpactScoreLowSeverityFloor(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cluster := models.ErrorCluster{
		Severity:         models.SeverityInfo,
		ErrorCount:       1,
		AffectedServices: []string{"search"},
		FirstOccurrence:  now,
	}

	score := ImpactScore(cluster, now)

	assert.LessOrEqual(t, score, 10)
	assert.Equal(t, models.ImpactMinimal, BusinessImpactFor(score))
}

func TestImpactScoreCapsEachComponent(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cluster := models.ErrorCluster{
		Severity:         models.SeverityCritical,
		ErrorCount:       1_000_000,
		AffectedServices: []string{"a", "b", "c", "d", "e", "f", "g"},
		FirstOccurrence:  now.Add(-30 * 24 * time.Hour),
	}

	assert.Equal(t, 100, ImpactScore(cluster, now))
}

func TestImpactScoreComponents(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cluster := models.ErrorCluster{
		Severity:         models.SeverityMedium,
		ErrorCount:       150,
		AffectedServices: []string{"checkout", "payments"},
		FirstOccurrence:  now.Add(-3 * time.Hour),
	}

	// 20 severity + 15 frequency + 10 breadth + 3 duration
	assert.Equal(t, 48, ImpactScore(cluster, now))
}

func TestImpactScoreBounds(t *testing.T) {
	now := time.Now()
	severities := []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow, models.SeverityInfo, ""}
	for _, sev := range severities {
		for _, count := range []int{0, 1, 99, 1000, 1 << 30} {
			for services := 0; services < 8; services++ {
				cluster := models.ErrorCluster{
					Severity:         sev,
					ErrorCount:       count,
					AffectedServices: make([]string, services),
					FirstOccurrence:  now.Add(-time.Duration(services) * 7 * time.Hour),
				}
				score := ImpactScore(cluster, now)
				assert.GreaterOrEqual(t, score, 0)
				assert.LessOrEqual(t, score, 100)
			}
		}
	}
}

func TestBusinessImpactTiers(t *testing.T) {
	cases := map[int]models.BusinessImpact{
		100: models.ImpactCritical,
		80:  models.ImpactCritical,
		79:  models.ImpactHigh,
		60:  models.ImpactHigh,
		59:  models.ImpactMedium,
		40:  models.ImpactMedium,
		39:  models.ImpactLow,
		20:  models.ImpactLow,
		19:  models.ImpactMinimal,
		0:   models.ImpactMinimal,
	}
	for score, want := range cases {
		assert.Equal(t, want, BusinessImpactFor(score), "score %d", score)
	}
}

func TestRecommendCoOccurring(t *testing.T) {
	cluster := models.ErrorCluster{
		ErrorCount:       250,
		AffectedServices: []string{"checkout", "payments", "inventory"},
	}

	recs := Recommend(cluster, 85)

	require.Len(t, recs, 4)
	for i, rec := range recs {
		assert.Equal(t, i+1, rec.Priority)
		assert.NotEmpty(t, rec.Reasoning)
	}
}

func TestRecommendSkipsCoverageWhenTestExists(t *testing.T) {
	cluster := models.ErrorCluster{ErrorCount: 3, AffectedServices: []string{"checkout"}, RegressionTestID: "test-1"}
	assert.Empty(t, Recommend(cluster, 10))
}

func TestAnalyze(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	analyzer := NewImpactAnalyzer(fixedNow(now))
	cluster := models.ErrorCluster{
		ID:               "cluster-1",
		TenantID:         "tenant-a",
		Severity:         models.SeverityCritical,
		ErrorCount:       200,
		AffectedServices: []string{"checkout"},
		FirstOccurrence:  now.Add(-2 * time.Hour),
	}

	analysis := analyzer.Analyze(cluster)

	// 40 + 20 + 5 + 2
	assert.Equal(t, 67, analysis.ImpactScore)
	assert.Equal(t, models.ImpactHigh, analysis.BusinessImpact)
	assert.Equal(t, 140, analysis.EstimatedUsersAffected)
	assert.Equal(t, []string{"checkout"}, analysis.AffectedFeatures)
	assert.Equal(t, "cluster-1", analysis.ErrorClusterID)
	assert.Equal(t, now, analysis.CreatedAt)
	require.Len(t, analysis.Recommendations, 2)
	assert.Equal(t, 2, analysis.Recommendations[0].Priority)
	assert.Equal(t, 4, analysis.Recommendations[1].Priority)
}
