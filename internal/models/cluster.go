package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ClusterStatus tracks operator triage of a cluster.
type ClusterStatus string

const (
	ClusterStatusNew           ClusterStatus = "new"
	ClusterStatusAcknowledged  ClusterStatus = "acknowledged"
	ClusterStatusInvestigating ClusterStatus = "investigating"
	ClusterStatusResolved      ClusterStatus = "resolved"
	ClusterStatusIgnored       ClusterStatus = "ignored"
)

// ParseClusterStatus accepts the known statuses plus "triaged" as an alias of acknowledged.
func ParseClusterStatus(value string) (ClusterStatus, error) {
	switch s := ClusterStatus(strings.ToLower(strings.TrimSpace(value))); s {
	case ClusterStatusNew, ClusterStatusAcknowledged, ClusterStatusInvestigating, ClusterStatusResolved, ClusterStatusIgnored:
		return s, nil
	case "triaged":
		return ClusterStatusAcknowledged, nil
	}
	return "", NewValidationError("status", "unknown cluster status "+value)
}

// ErrorCluster aggregates every occurrence sharing a fingerprint within a tenant.
type ErrorCluster struct {
	ID                string        `json:"id"`
	TenantID          string        `json:"tenantId"`
	Name              string        `json:"name"`
	Fingerprint       string        `json:"fingerprint"`
	ErrorType         string        `json:"errorType"`
	PrimaryMessage    string        `json:"primaryMessage"`
	Severity          Severity      `json:"severity"`
	Status            ClusterStatus `json:"status"`
	AffectedServices  []string      `json:"affectedServices"`
	AffectedEndpoints []string      `json:"affectedEndpoints"`
	ErrorCount        int           `json:"errorCount"`
	FirstOccurrence   time.Time     `json:"firstOccurrence"`
	LastOccurrence    time.Time     `json:"lastOccurrence"`
	ResolvedAt        *time.Time    `json:"resolvedAt,omitempty"`
	RegressionTestID  string        `json:"regressionTestId,omitempty"`
	JiraTicketID      string        `json:"jiraTicketId,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// NewClusterFromEvent seeds a cluster from the founding event of a fingerprint.
func NewClusterFromEvent(id, fingerprint string, ev ErrorEvent, now time.Time) ErrorCluster {
	c := ErrorCluster{
		ID:                id,
		TenantID:          ev.TenantID,
		Name:              ev.ErrorType + ": " + truncateRunes(ev.Message, 50),
		Fingerprint:       fingerprint,
		ErrorType:         ev.ErrorType,
		PrimaryMessage:    ev.Message,
		Severity:          ev.Severity,
		Status:            ClusterStatusNew,
		AffectedServices:  []string{},
		AffectedEndpoints: []string{},
		ErrorCount:        ev.OccurrenceCount,
		FirstOccurrence:   ev.FirstSeen,
		LastOccurrence:    ev.LastSeen,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	c.AffectedServices = addUnique(c.AffectedServices, ev.Service)
	c.AffectedEndpoints = addUnique(c.AffectedEndpoints, ev.Endpoint)
	return c
}

// Absorb merges an additional occurrence into the cluster. The count only grows and the
// occurrence window only widens, so the result does not depend on arrival order.
func (c *ErrorCluster) Absorb(ev ErrorEvent, now time.Time) {
	count := ev.OccurrenceCount
	if count < 1 {
		count = 1
	}
	c.ErrorCount += count
	if ev.LastSeen.After(c.LastOccurrence) {
		c.LastOccurrence = ev.LastSeen
	}
	if !ev.FirstSeen.IsZero() && (c.FirstOccurrence.IsZero() || ev.FirstSeen.Before(c.FirstOccurrence)) {
		c.FirstOccurrence = ev.FirstSeen
	}
	c.AffectedServices = addUnique(c.AffectedServices, ev.Service)
	c.AffectedEndpoints = addUnique(c.AffectedEndpoints, ev.Endpoint)
	c.UpdatedAt = now
}

// SetStatus applies an operator status change, stamping ResolvedAt on resolution.
func (c *ErrorCluster) SetStatus(status ClusterStatus, now time.Time) {
	c.Status = status
	c.UpdatedAt = now
	if status == ClusterStatusResolved {
		resolved := now
		c.ResolvedAt = &resolved
	} else {
		c.ResolvedAt = nil
	}
}

// ClusterFilter narrows cluster listings.
type ClusterFilter struct {
	TenantID string
	Status   ClusterStatus
	Severity Severity
	Limit    int
}

func addUnique(values []string, value string) []string {
	if value == "" {
		return values
	}
	for _, v := range values {
		if v == value {
			return values
		}
	}
	return append(values, value)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
