package models

import "time"

// ActionStatus tracks a single action inside an execution.
type ActionStatus string

const (
	ActionPending    ActionStatus = "pending"
	ActionInProgress ActionStatus = "in_progress"
	ActionCompleted  ActionStatus = "completed"
	ActionFailed     ActionStatus = "failed"
)

// ExecutionStatus tracks an execution as a whole.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionPartial   ExecutionStatus = "partial"
	ExecutionFailed    ExecutionStatus = "failed"
)

// Terminal reports whether the execution can no longer change.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionPartial || s == ExecutionFailed
}

// ActionResult is the outcome payload of a completed action.
type ActionResult struct {
	TestID      string `json:"testId,omitempty"`
	Framework   string `json:"framework,omitempty"`
	GeneratedBy string `json:"generatedBy,omitempty"`
	TicketID    string `json:"ticketId,omitempty"`
	TicketURL   string `json:"ticketUrl,omitempty"`
	Notified    bool   `json:"notified,omitempty"`
	Skipped     bool   `json:"skipped,omitempty"`
}

// TriggeredAction records one action of an execution.
type TriggeredAction struct {
	Action      ActionKind    `json:"action"`
	Status      ActionStatus  `json:"status"`
	Result      *ActionResult `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   *time.Time    `json:"startedAt,omitempty"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// FeedbackLoopExecution is one firing of a rule against a cluster.
type FeedbackLoopExecution struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenantId"`
	RuleID           string            `json:"ruleId"`
	ErrorClusterID   string            `json:"errorClusterId"`
	TriggeredActions []TriggeredAction `json:"triggeredActions"`
	Status           ExecutionStatus   `json:"status"`
	CreatedAt        time.Time         `json:"createdAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

// Aggregate derives the terminal status from the per-action outcomes:
// completed when every action completed, partial when some did, failed otherwise.
func (e FeedbackLoopExecution) Aggregate() ExecutionStatus {
	completed, failed := 0, 0
	for _, a := range e.TriggeredActions {
		switch a.Status {
		case ActionCompleted:
			completed++
		case ActionFailed:
			failed++
		}
	}
	switch {
	case completed == len(e.TriggeredActions):
		return ExecutionCompleted
	case completed > 0:
		return ExecutionPartial
	default:
		return ExecutionFailed
	}
}
