package api

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

func TestSentrySeverity(t *testing.T) {
	cases := map[string]models.Severity{
		"fatal":   models.SeverityCritical,
		"error":   models.SeverityHigh,
		"warning": models.SeverityMedium,
		"low":     models.SeverityLow,
		"info":    models.SeverityInfo,
		"debug":   models.SeverityMedium,
		"":        models.SeverityMedium,
	}
	for level, want := range cases {
		assert.Equal(t, want, sentrySeverity(level), level)
	}
}

func TestSentryToIngestDefaults(t *testing.T) {
	req, err := SentryToIngest([]byte(`{"tenantId":"tenant-body","message":"boom"}`), "")
	require.NoError(t, err)

	assert.Equal(t, "tenant-body", req.TenantID)
	assert.Equal(t, "Unknown", req.ErrorType)
	assert.Equal(t, "boom", req.Message)
	assert.Equal(t, models.SeverityMedium, req.Severity)
	assert.Equal(t, "production", req.Environment)
	assert.Equal(t, "unknown", req.Service)
	assert.Empty(t, req.StackTrace)
	assert.True(t, req.FirstSeen.IsZero())
}

func TestSentryToIngestHeaderWins(t *testing.T) {
	req, err := SentryToIngest([]byte(`{"tenantId":"tenant-body","event":{"timestamp":"2024-05-01T10:00:00Z"}}`), "tenant-header")
	require.NoError(t, err)
	assert.Equal(t, "tenant-header", req.TenantID)
	assert.Equal(t, "Unknown error", req.Message)
	assert.Equal(t, 2024, req.FirstSeen.Year())
}

func TestSentryToIngestRejectsInvalidJSON(t *testing.T) {
	_, err := SentryToIngest([]byte(`[`), "tenant")
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
}

func TestRuleRequestToModel(t *testing.T) {
	var req RuleRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "legacy",
		"actions": ["generate_regression_test", "page_oncall"],
		"actionConfig": {"testFramework": "cypress"},
		"enabled": false,
		"fireMode": "fire_every_match"
	}`), &req))
	require.NoError(t, validateRequest(req))

	rule, err := req.toModel("tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", rule.TenantID)
	assert.False(t, rule.Enabled)
	assert.Equal(t, models.FireEveryMatch, rule.FireMode)
	assert.Equal(t, models.FrameworkCypress, rule.ActionConfig.RegressionTest.Framework)
	assert.Equal(t, models.ActionKind("page_oncall"), rule.Actions[1])
}

func TestValidateRequestUsesJSONNames(t *testing.T) {
	err := validateRequest(regressionTestRequest{TenantID: "t"})
	var validation *models.ValidationError
	require.True(t, errors.As(err, &validation))
	assert.Equal(t, "errorClusterId", validation.Field)
}
