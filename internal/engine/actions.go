package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// ActionContext is the state shared by the actions of one execution. Cluster is updated
// in place so later actions see artifacts produced by earlier ones.
type ActionContext struct {
	Rule    models.FeedbackLoopRule
	Cluster *models.ErrorCluster
}

// Action is one remediation step of a rule.
type Action interface {
	Kind() models.ActionKind
	Execute(ctx context.Context, actx ActionContext) (models.ActionResult, error)
}

var (
	errRegressionDisabled   = errors.New("regression test generation not configured")
	errTicketingDisabled    = errors.New("ticketing integration not configured")
	errNotificationDisabled = errors.New("notification integration not configured")
)

type regressionTestAction struct {
	generator *RegressionTestGenerator
}

func (regressionTestAction) Kind() models.ActionKind { return models.ActionGenerateRegressionTest }

func (a regressionTestAction) Execute(ctx context.Context, actx ActionContext) (models.ActionResult, error) {
	if a.generator == nil {
		return models.ActionResult{}, errRegressionDisabled
	}
	cfg := actx.Rule.ActionConfig.RegressionTest
	test, err := a.generator.Generate(ctx, *actx.Cluster, cfg.Framework, cfg.TemplateFallback)
	if err != nil {
		return models.ActionResult{}, err
	}
	actx.Cluster.RegressionTestID = test.ID
	return models.ActionResult{
		TestID:      test.ID,
		Framework:   string(test.Framework),
		GeneratedBy: test.GeneratedBy,
	}, nil
}

// defaultTicketLabels apply when a rule configures no labels.
var defaultTicketLabels = []string{"auto-generated", "regression"}

type ticketAction struct {
	ticketer Ticketer
	links    TicketLinker
	timeout  time.Duration
}

func (ticketAction) Kind() models.ActionKind { return models.ActionCreateJiraTicket }

func (a ticketAction) Execute(ctx context.Context, actx ActionContext) (models.ActionResult, error) {
	if a.ticketer == nil {
		return models.ActionResult{}, errTicketingDisabled
	}
	cluster := actx.Cluster
	cfg := actx.Rule.ActionConfig.Ticket

	labels := cfg.Labels
	if len(labels) == 0 {
		labels = defaultTicketLabels
	}

	callCtx, cancel := withOptionalTimeout(ctx, a.timeout)
	defer cancel()
	ticket, err := a.ticketer.CreateTicket(callCtx, models.TicketRequest{
		TenantID:    cluster.TenantID,
		Project:     cfg.Project,
		Summary:     TicketSummary(*cluster),
		Description: TicketDescription(*cluster),
		Priority:    TicketPriority(cluster.Severity),
		Labels:      append([]string(nil), labels...),
	})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("create ticket: %w", err)
	}
	if ticket.ID == "" {
		return models.ActionResult{}, errors.New("create ticket: empty ticket id")
	}
	// The ticket exists once CreateTicket succeeds, so a failed link still reports it.
	cluster.JiraTicketID = ticket.ID
	result := models.ActionResult{TicketID: ticket.ID, TicketURL: ticket.URL}
	if a.links != nil {
		if err := a.links.LinkTicket(ctx, cluster.ID, ticket.ID); err != nil {
			return result, fmt.Errorf("link ticket %s: %w", ticket.ID, err)
		}
	}
	return result, nil
}

// TicketSummary renders the one-line ticket title for a cluster.
func TicketSummary(cluster models.ErrorCluster) string {
	return fmt.Sprintf("[Auto] %s: %s", cluster.ErrorType, truncate(cluster.PrimaryMessage, 100))
}

// TicketPriority maps cluster severity to the issue tracker priority.
func TicketPriority(severity models.Severity) string {
	if severity == models.SeverityCritical {
		return "Highest"
	}
	return "High"
}

// TicketDescription renders the ticket body for a cluster.
func TicketDescription(cluster models.ErrorCluster) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error Cluster: %s\n", cluster.ID)
	fmt.Fprintf(&b, "Severity: %s\n", cluster.Severity)
	fmt.Fprintf(&b, "Error Count: %d\n", cluster.ErrorCount)
	fmt.Fprintf(&b, "Affected Services: %s\n", strings.Join(cluster.AffectedServices, ", "))
	fmt.Fprintf(&b, "First Seen: %s\n", cluster.FirstOccurrence.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Last Seen: %s\n", cluster.LastOccurrence.UTC().Format(time.RFC3339))
	if cluster.RegressionTestID != "" {
		fmt.Fprintf(&b, "Regression Test: %s\n", cluster.RegressionTestID)
	}
	b.WriteString("\nError Message:\n")
	b.WriteString(cluster.PrimaryMessage)
	return b.String()
}

type notifyAction struct {
	notifier Notifier
	timeout  time.Duration
}

func (notifyAction) Kind() models.ActionKind { return models.ActionNotifyTeam }

func (a notifyAction) Execute(ctx context.Context, actx ActionContext) (models.ActionResult, error) {
	if a.notifier == nil {
		return models.ActionResult{}, errNotificationDisabled
	}
	cluster := actx.Cluster
	callCtx, cancel := withOptionalTimeout(ctx, a.timeout)
	defer cancel()
	err := a.notifier.Notify(callCtx, models.Notification{
		TenantID: cluster.TenantID,
		Type:     "error_alert",
		Channel:  actx.Rule.ActionConfig.Notify.Channel,
		Data: models.NotificationData{
			ClusterID: cluster.ID,
			ErrorType: cluster.ErrorType,
			Severity:  cluster.Severity,
			Count:     cluster.ErrorCount,
		},
	})
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("notify team: %w", err)
	}
	return models.ActionResult{Notified: true}, nil
}

// skipAction stands in for action names the executor does not implement.
type skipAction struct {
	kind models.ActionKind
}

func (a skipAction) Kind() models.ActionKind { return a.kind }

func (skipAction) Execute(context.Context, ActionContext) (models.ActionResult, error) {
	return models.ActionResult{Skipped: true}, nil
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
