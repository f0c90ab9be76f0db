package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActionKind names a remediation step a rule can trigger.
type ActionKind string

const (
	ActionGenerateRegressionTest ActionKind = "generate_regression_test"
	ActionCreateJiraTicket       ActionKind = "create_jira_ticket"
	ActionNotifyTeam             ActionKind = "notify_team"
)

// Known reports whether the executor has an implementation for the action.
// Unknown kinds are still accepted and recorded as skipped.
func (k ActionKind) Known() bool {
	switch k {
	case ActionGenerateRegressionTest, ActionCreateJiraTicket, ActionNotifyTeam:
		return true
	}
	return false
}

// FireMode decides whether a rule may fire more than once for the same cluster.
type FireMode string

const (
	FireOnce       FireMode = "fire_once"
	FireEveryMatch FireMode = "fire_every_match"
)

// RuleTrigger lists the predicates that must all hold for a rule to fire.
// Empty predicates are ignored.
type RuleTrigger struct {
	Severity            []Severity `json:"errorSeverity,omitempty" yaml:"errorSeverity"`
	ErrorCountThreshold int        `json:"errorCountThreshold,omitempty" yaml:"errorCountThreshold"`
	Services            []string   `json:"services,omitempty" yaml:"services"`
}

// FeedbackLoopRule is a tenant-scoped reaction policy.
type FeedbackLoopRule struct {
	ID           string       `json:"id" yaml:"id"`
	TenantID     string       `json:"tenantId" yaml:"tenantId"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description,omitempty" yaml:"description"`
	Trigger      RuleTrigger  `json:"trigger" yaml:"trigger"`
	Actions      []ActionKind `json:"actions" yaml:"actions"`
	ActionConfig ActionConfig `json:"actionConfig" yaml:"actionConfig"`
	Enabled      bool         `json:"enabled" yaml:"-"`
	FireMode     FireMode     `json:"fireMode" yaml:"fireMode"`
	CreatedAt    time.Time    `json:"createdAt" yaml:"-"`
	UpdatedAt    time.Time    `json:"updatedAt" yaml:"-"`
}

// Validate checks rule shape before it is stored.
func (r FeedbackLoopRule) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return NewValidationError("tenantId", "is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if len(r.Actions) == 0 {
		return NewValidationError("actions", "must contain at least one action")
	}
	for _, a := range r.Actions {
		if strings.TrimSpace(string(a)) == "" {
			return NewValidationError("actions", "must not contain empty action names")
		}
	}
	if r.Trigger.ErrorCountThreshold < 0 {
		return NewValidationError("trigger.errorCountThreshold", "must not be negative")
	}
	for _, s := range r.Trigger.Severity {
		if !s.Valid() {
			return NewValidationError("trigger.errorSeverity", "unknown severity "+string(s))
		}
	}
	switch r.FireMode {
	case FireOnce, FireEveryMatch:
	default:
		return NewValidationError("fireMode", "unknown fire mode "+string(r.FireMode))
	}
	return r.ActionConfig.Validate()
}

// TestFramework selects the regression test template and generator target.
type TestFramework string

const (
	FrameworkPlaywright TestFramework = "playwright"
	FrameworkCypress    TestFramework = "cypress"
	FrameworkJest       TestFramework = "jest"
	FrameworkPytest     TestFramework = "pytest"
	FrameworkGo         TestFramework = "go"
)

// Valid reports whether a template exists for the framework.
func (f TestFramework) Valid() bool {
	switch f {
	case FrameworkPlaywright, FrameworkCypress, FrameworkJest, FrameworkPytest, FrameworkGo:
		return true
	}
	return false
}

// ActionConfig holds the typed configuration for each action a rule may run.
// On the wire it is an object keyed by action name.
type ActionConfig struct {
	RegressionTest RegressionTestConfig `json:"generate_regression_test" yaml:"generate_regression_test"`
	Ticket         TicketConfig         `json:"create_jira_ticket" yaml:"create_jira_ticket"`
	Notify         NotifyConfig         `json:"notify_team" yaml:"notify_team"`
}

// RegressionTestConfig configures generate_regression_test.
type RegressionTestConfig struct {
	Framework TestFramework `json:"framework,omitempty" yaml:"framework"`
	// TemplateFallback stores a template test when the generator fails instead of
	// failing the action.
	TemplateFallback bool `json:"templateFallback,omitempty" yaml:"templateFallback"`
}

// TicketConfig configures create_jira_ticket.
type TicketConfig struct {
	Project string   `json:"project,omitempty" yaml:"project"`
	Labels  []string `json:"labels,omitempty" yaml:"labels"`
}

// NotifyConfig configures notify_team.
type NotifyConfig struct {
	Channel string `json:"channel,omitempty" yaml:"channel"`
}

// Validate checks every configured action variant.
func (c ActionConfig) Validate() error {
	if c.RegressionTest.Framework != "" && !c.RegressionTest.Framework.Valid() {
		return NewValidationError("actionConfig.generate_regression_test.framework", "unknown framework "+string(c.RegressionTest.Framework))
	}
	for _, l := range c.Ticket.Labels {
		if strings.TrimSpace(l) == "" {
			return NewValidationError("actionConfig.create_jira_ticket.labels", "must not contain empty labels")
		}
	}
	return nil
}

// DecodeActionConfig decodes the wire form of a rule's action configuration. Entries are
// keyed by action name; the flat "testFramework" key is accepted for older rule payloads.
// Keys for actions without configuration are ignored.
func DecodeActionConfig(raw map[string]json.RawMessage) (ActionConfig, error) {
	var cfg ActionConfig
	for key, value := range raw {
		var err error
		switch ActionKind(key) {
		case ActionGenerateRegressionTest:
			err = json.Unmarshal(value, &cfg.RegressionTest)
		case ActionCreateJiraTicket:
			err = json.Unmarshal(value, &cfg.Ticket)
		case ActionNotifyTeam:
			err = json.Unmarshal(value, &cfg.Notify)
		default:
			if key == "testFramework" {
				var fw string
				err = json.Unmarshal(value, &fw)
				if err == nil && cfg.RegressionTest.Framework == "" {
					cfg.RegressionTest.Framework = TestFramework(fw)
				}
			}
		}
		if err != nil {
			return ActionConfig{}, NewValidationError("actionConfig."+key, fmt.Sprintf("invalid shape: %v", err))
		}
	}
	return cfg, cfg.Validate()
}
