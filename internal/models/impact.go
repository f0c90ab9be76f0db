package models

import "time"

// BusinessImpact is the tier derived from an impact score.
type BusinessImpact string

const (
	ImpactMinimal  BusinessImpact = "minimal"
	ImpactLow      BusinessImpact = "low"
	ImpactMedium   BusinessImpact = "medium"
	ImpactHigh     BusinessImpact = "high"
	ImpactCritical BusinessImpact = "critical"
)

// Recommendation is a ranked follow-up suggested by impact analysis.
type Recommendation struct {
	Priority  int    `json:"priority"`
	Action    string `json:"action"`
	Reasoning string `json:"reasoning"`
}

// ImpactAnalysis is a point-in-time scoring snapshot for a cluster.
type ImpactAnalysis struct {
	ID                     string           `json:"id"`
	TenantID               string           `json:"tenantId"`
	ErrorClusterID         string           `json:"errorClusterId"`
	ImpactScore            int              `json:"impactScore"`
	BusinessImpact         BusinessImpact   `json:"businessImpact"`
	EstimatedUsersAffected int              `json:"estimatedUsersAffected"`
	AffectedFeatures       []string         `json:"affectedFeatures"`
	Recommendations        []Recommendation `json:"recommendations"`
	CreatedAt              time.Time        `json:"createdAt"`
}
