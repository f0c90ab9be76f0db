package models

import (
	"strings"
	"time"
)

// ErrorSource identifies the monitoring system that reported an error.
type ErrorSource string

const (
	SourceSentry          ErrorSource = "sentry"
	SourceDatadog         ErrorSource = "datadog"
	SourceNewRelic        ErrorSource = "new_relic"
	SourceApplicationLogs ErrorSource = "application_logs"
	SourceCustomWebhook   ErrorSource = "custom_webhook"
	SourceCustom          ErrorSource = "custom"
)

// Valid reports whether the source is one of the known monitoring systems.
func (s ErrorSource) Valid() bool {
	switch s {
	case SourceSentry, SourceDatadog, SourceNewRelic, SourceApplicationLogs, SourceCustomWebhook, SourceCustom:
		return true
	}
	return false
}

// Severity captures impact levels reported with an error.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Valid reports whether the severity is a known level.
func (s Severity) Valid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// ErrorEvent is one raw observation ingested from a monitoring system.
type ErrorEvent struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenantId"`
	Source          ErrorSource    `json:"source"`
	ExternalID      string         `json:"externalId"`
	ErrorType       string         `json:"errorType"`
	Message         string         `json:"message"`
	StackTrace      string         `json:"stackTrace,omitempty"`
	Severity        Severity       `json:"severity"`
	Environment     string         `json:"environment"`
	Service         string         `json:"service"`
	Endpoint        string         `json:"endpoint,omitempty"`
	UserID          string         `json:"userId,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	FirstSeen       time.Time      `json:"firstSeen"`
	LastSeen        time.Time      `json:"lastSeen"`
	OccurrenceCount int            `json:"occurrenceCount"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// IngestRequest carries the canonical fields accepted by the ingestion gateway.
type IngestRequest struct {
	TenantID        string
	Source          ErrorSource
	ExternalID      string
	ErrorType       string
	Message         string
	StackTrace      string
	Severity        Severity
	Environment     string
	Service         string
	Endpoint        string
	UserID          string
	Metadata        map[string]any
	FirstSeen       time.Time
	LastSeen        time.Time
	OccurrenceCount int
}

// Normalize fills defaults and trims whitespace. It must run before Validate.
func (r *IngestRequest) Normalize(now time.Time) {
	r.TenantID = strings.TrimSpace(r.TenantID)
	r.ErrorType = strings.TrimSpace(r.ErrorType)
	r.Service = strings.TrimSpace(r.Service)
	r.Environment = strings.TrimSpace(r.Environment)
	r.Endpoint = strings.TrimSpace(r.Endpoint)
	r.Severity = Severity(strings.ToLower(strings.TrimSpace(string(r.Severity))))
	if r.Source == "" {
		r.Source = SourceCustom
	}
	if r.Environment == "" {
		r.Environment = "production"
	}
	if r.OccurrenceCount <= 0 {
		r.OccurrenceCount = 1
	}
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	if r.LastSeen.IsZero() {
		r.LastSeen = now
	}
	if r.FirstSeen.IsZero() || r.FirstSeen.After(r.LastSeen) {
		r.FirstSeen = r.LastSeen
	}
}

// Validate rejects requests that cannot be ingested.
func (r IngestRequest) Validate() error {
	switch {
	case r.TenantID == "":
		return NewValidationError("tenantId", "is required")
	case !r.Source.Valid():
		return NewValidationError("source", "unknown source "+string(r.Source))
	case r.ErrorType == "":
		return NewValidationError("errorType", "is required")
	case strings.TrimSpace(r.Message) == "":
		return NewValidationError("message", "is required")
	case !r.Severity.Valid():
		return NewValidationError("severity", "unknown severity "+string(r.Severity))
	case r.Service == "":
		return NewValidationError("service", "is required")
	}
	return nil
}
