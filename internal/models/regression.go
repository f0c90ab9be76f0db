package models

import "time"

// RegressionTestStatus tracks review of a generated test.
type RegressionTestStatus string

const (
	RegressionTestDraft    RegressionTestStatus = "draft"
	RegressionTestApproved RegressionTestStatus = "approved"
)

const (
	// GeneratedByModel marks test code returned by the test generator.
	GeneratedByModel = "model"
	// GeneratedByTemplate marks test code rendered from a local template.
	GeneratedByTemplate = "template"
)

// TestScenario summarises what a regression test exercises.
type TestScenario struct {
	Name       string   `json:"name"`
	Steps      []string `json:"steps"`
	Assertions []string `json:"assertions"`
}

// RegressionTest is a generated artifact guarding against a cluster recurring.
type RegressionTest struct {
	ID             string               `json:"id"`
	TenantID       string               `json:"tenantId"`
	ErrorClusterID string               `json:"errorClusterId"`
	Name           string               `json:"name"`
	Description    string               `json:"description"`
	Framework      TestFramework        `json:"framework"`
	TestCode       string               `json:"testCode"`
	Scenarios      []TestScenario       `json:"scenarios"`
	Status         RegressionTestStatus `json:"status"`
	GeneratedBy    string               `json:"generatedBy"`
	ApprovedBy     string               `json:"approvedBy,omitempty"`
	CreatedAt      time.Time            `json:"createdAt"`
	UpdatedAt      time.Time            `json:"updatedAt"`
}

// RegressionTestRequest asks for a test to be generated for a cluster.
type RegressionTestRequest struct {
	TenantID       string
	ErrorClusterID string
	Framework      TestFramework
}

// Validate checks the request shape. An empty framework selects the default.
func (r RegressionTestRequest) Validate() error {
	switch {
	case r.TenantID == "":
		return NewValidationError("tenantId", "is required")
	case r.ErrorClusterID == "":
		return NewValidationError("errorClusterId", "is required")
	case r.Framework != "" && !r.Framework.Valid():
		return NewValidationError("framework", "unknown framework "+string(r.Framework))
	}
	return nil
}

// TestGenerationRequest is the context payload sent to the test generator.
type TestGenerationRequest struct {
	TenantID          string        `json:"tenantId"`
	ErrorType         string        `json:"errorType"`
	ErrorMessage      string        `json:"errorMessage"`
	AffectedServices  []string      `json:"affectedServices"`
	AffectedEndpoints []string      `json:"affectedEndpoints"`
	Framework         TestFramework `json:"framework"`
}
