package engine

import (
	"math"
	"time"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/utils"
)

var severityWeights = map[models.Severity]float64{
	models.SeverityCritical: 40,
	models.SeverityHigh:     30,
	models.SeverityMedium:   20,
	models.SeverityLow:      10,
	models.SeverityInfo:     5,
}

const (
	maxFrequencyWeight = 30
	maxBreadthWeight   = 20
	maxDurationWeight  = 10
	usersPerError      = 0.7
)

// ImpactAnalyzer scores clusters from their current snapshot. It makes no external calls.
type ImpactAnalyzer struct {
	now func() time.Time
}

// NewImpactAnalyzer constructs an ImpactAnalyzer; now defaults to time.Now.
func NewImpactAnalyzer(now func() time.Time) *ImpactAnalyzer {
	if now == nil {
		now = time.Now
	}
	return &ImpactAnalyzer{now: now}
}

// ImpactScore sums the severity, frequency, breadth and duration weights, each capped
// independently, then rounds and clamps to [0,100].
func ImpactScore(cluster models.ErrorCluster, now time.Time) int {
	score := severityWeights[cluster.Severity]
	score += math.Min(maxFrequencyWeight, float64(cluster.ErrorCount)/10)
	score += math.Min(maxBreadthWeight, float64(len(cluster.AffectedServices))*5)
	if !cluster.FirstOccurrence.IsZero() && now.After(cluster.FirstOccurrence) {
		score += math.Min(maxDurationWeight, utils.HoursBetween(cluster.FirstOccurrence, now))
	}
	rounded := int(math.Round(score))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}

// BusinessImpactFor maps a score onto its business impact tier.
func BusinessImpactFor(score int) models.BusinessImpact {
	switch {
	case score >= 80:
		return models.ImpactCritical
	case score >= 60:
		return models.ImpactHigh
	case score >= 40:
		return models.ImpactMedium
	case score >= 20:
		return models.ImpactLow
	default:
		return models.ImpactMinimal
	}
}

// Recommend evaluates each recommendation rule independently; several may apply.
// The result is ordered by priority.
func Recommend(cluster models.ErrorCluster, score int) []models.Recommendation {
	recs := make([]models.Recommendation, 0, 4)
	if score >= 70 {
		recs = append(recs, models.Recommendation{
			Priority:  1,
			Action:    "Immediate investigation required",
			Reasoning: "High impact score indicates significant user/business impact",
		})
	}
	if cluster.ErrorCount > 100 {
		recs = append(recs, models.Recommendation{
			Priority:  2,
			Action:    "Generate regression tests",
			Reasoning: "High occurrence count suggests reproducible issue",
		})
	}
	if len(cluster.AffectedServices) > 2 {
		recs = append(recs, models.Recommendation{
			Priority:  3,
			Action:    "Review service dependencies",
			Reasoning: "Multiple services affected may indicate cascading failure",
		})
	}
	if cluster.RegressionTestID == "" {
		recs = append(recs, models.Recommendation{
			Priority:  4,
			Action:    "Create automated test coverage",
			Reasoning: "No regression test exists to prevent recurrence",
		})
	}
	return recs
}

// Analyze builds an impact snapshot for the cluster. The caller assigns the id and
// persists the result.
func (a *ImpactAnalyzer) Analyze(cluster models.ErrorCluster) models.ImpactAnalysis {
	now := a.now()
	score := ImpactScore(cluster, now)
	features := append([]string(nil), cluster.AffectedServices...)
	if features == nil {
		features = []string{}
	}
	return models.ImpactAnalysis{
		TenantID:               cluster.TenantID,
		ErrorClusterID:         cluster.ID,
		ImpactScore:            score,
		BusinessImpact:         BusinessImpactFor(score),
		EstimatedUsersAffected: int(math.Round(float64(cluster.ErrorCount) * usersPerError)),
		AffectedFeatures:       features,
		Recommendations:        Recommend(cluster, score),
		CreatedAt:              now.UTC(),
	}
}
