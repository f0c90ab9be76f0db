package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/mirador-feedback/internal/metrics"
	"github.com/miradorstack/mirador-feedback/internal/models"
)

const tracerName = "github.com/miradorstack/mirador-feedback/internal/engine"

// ErrAlreadyFired is returned by Start when a fire-once rule already ran for the cluster.
var ErrAlreadyFired = errors.New("rule already fired for cluster")

// ExecutorConfig bounds each external action call.
type ExecutorConfig struct {
	TicketTimeout time.Duration
	NotifyTimeout time.Duration
}

// ExecutorDeps are the collaborators an executor drives. Nil integrations make the
// corresponding action fail with a descriptive error.
type ExecutorDeps struct {
	Store      ExecutionStore
	Regression *RegressionTestGenerator
	Ticketer   Ticketer
	Tickets    TicketLinker
	Notifier   Notifier
}

// Executor runs a rule's actions in order against a cluster and records every
// transition. A failing action never stops the actions after it.
type Executor struct {
	store   ExecutionStore
	actions map[models.ActionKind]Action
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewExecutor constructs an executor with the closed set of supported actions.
func NewExecutor(deps ExecutorDeps, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	actions := map[models.ActionKind]Action{
		models.ActionGenerateRegressionTest: regressionTestAction{generator: deps.Regression},
		models.ActionCreateJiraTicket:       ticketAction{ticketer: deps.Ticketer, links: deps.Tickets, timeout: cfg.TicketTimeout},
		models.ActionNotifyTeam:             notifyAction{notifier: deps.Notifier, timeout: cfg.NotifyTimeout},
	}
	return &Executor{
		store:   deps.Store,
		actions: actions,
		logger:  logger,
		tracer:  otel.Tracer(tracerName),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start persists a running execution with every action pending. The returned record is
// visible to readers before any action runs. Fire-once rules claim the (rule, cluster)
// pair with the same write; a second Start for the pair returns ErrAlreadyFired.
func (e *Executor) Start(ctx context.Context, rule models.FeedbackLoopRule, cluster models.ErrorCluster) (models.FeedbackLoopExecution, error) {
	actions := make([]models.TriggeredAction, 0, len(rule.Actions))
	for _, kind := range rule.Actions {
		actions = append(actions, models.TriggeredAction{Action: kind, Status: models.ActionPending})
	}
	exec := models.FeedbackLoopExecution{
		ID:               uuid.NewString(),
		TenantID:         cluster.TenantID,
		RuleID:           rule.ID,
		ErrorClusterID:   cluster.ID,
		TriggeredActions: actions,
		Status:           models.ExecutionRunning,
		CreatedAt:        e.now(),
	}
	if rule.FireMode == models.FireEveryMatch {
		if err := e.store.CreateExecution(ctx, exec); err != nil {
			return models.FeedbackLoopExecution{}, fmt.Errorf("create execution: %w", err)
		}
		return exec, nil
	}
	claimed, err := e.store.ClaimExecution(ctx, exec)
	if err != nil {
		return models.FeedbackLoopExecution{}, fmt.Errorf("claim execution: %w", err)
	}
	if !claimed {
		return models.FeedbackLoopExecution{}, ErrAlreadyFired
	}
	return exec, nil
}

// Run executes the pending actions of exec sequentially and returns the terminal record.
func (e *Executor) Run(ctx context.Context, exec models.FeedbackLoopExecution, rule models.FeedbackLoopRule, cluster models.ErrorCluster) models.FeedbackLoopExecution {
	ctx, span := e.tracer.Start(ctx, "feedback.execution", trace.WithAttributes(
		attribute.String("execution.id", exec.ID),
		attribute.String("rule.id", rule.ID),
		attribute.String("cluster.id", cluster.ID),
	))
	defer span.End()

	actx := ActionContext{Rule: rule, Cluster: &cluster}
	for i := range exec.TriggeredActions {
		ta := &exec.TriggeredActions[i]
		started := e.now()
		ta.Status = models.ActionInProgress
		ta.StartedAt = &started
		e.persist(ctx, exec)

		result, err := e.runAction(ctx, e.actionFor(ta.Action), actx)
		completed := e.now()
		ta.CompletedAt = &completed
		if err != nil {
			ta.Status = models.ActionFailed
			ta.Error = err.Error()
			if result != (models.ActionResult{}) {
				ta.Result = &result
			}
			e.logger.Warn("feedback action failed",
				slog.String("execution_id", exec.ID),
				slog.String("action", string(ta.Action)),
				slog.String("error", err.Error()),
			)
		} else {
			ta.Status = models.ActionCompleted
			ta.Result = &result
		}
		metrics.ObserveAction(string(ta.Action), string(ta.Status), completed.Sub(started))
		e.persist(ctx, exec)
	}

	exec.Status = exec.Aggregate()
	finished := e.now()
	exec.CompletedAt = &finished
	e.persist(ctx, exec)
	metrics.ObserveExecution(string(exec.Status))
	span.SetAttributes(attribute.String("execution.status", string(exec.Status)))
	if exec.Status != models.ExecutionCompleted {
		span.SetStatus(codes.Error, string(exec.Status))
	}
	e.logger.Info("feedback execution finished",
		slog.String("execution_id", exec.ID),
		slog.String("rule_id", rule.ID),
		slog.String("cluster_id", cluster.ID),
		slog.String("status", string(exec.Status)),
	)
	return exec
}

// Execute starts and runs an execution in one call.
func (e *Executor) Execute(ctx context.Context, rule models.FeedbackLoopRule, cluster models.ErrorCluster) (models.FeedbackLoopExecution, error) {
	exec, err := e.Start(ctx, rule, cluster)
	if err != nil {
		return models.FeedbackLoopExecution{}, err
	}
	return e.Run(ctx, exec, rule, cluster), nil
}

func (e *Executor) actionFor(kind models.ActionKind) Action {
	if a, ok := e.actions[kind]; ok {
		return a
	}
	return skipAction{kind: kind}
}

func (e *Executor) runAction(ctx context.Context, action Action, actx ActionContext) (result models.ActionResult, err error) {
	ctx, span := e.tracer.Start(ctx, "feedback.action", trace.WithAttributes(
		attribute.String("action", string(action.Kind())),
	))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return action.Execute(ctx, actx)
}

func (e *Executor) persist(ctx context.Context, exec models.FeedbackLoopExecution) {
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("persist execution failed",
			slog.String("execution_id", exec.ID),
			slog.String("error", err.Error()),
		)
	}
}
