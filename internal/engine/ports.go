package engine

import (
	"context"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// TestGenerator produces regression test source for a cluster.
type TestGenerator interface {
	GenerateTest(ctx context.Context, req models.TestGenerationRequest) (string, error)
}

// Ticketer opens tickets in the issue tracker.
type Ticketer interface {
	CreateTicket(ctx context.Context, req models.TicketRequest) (models.Ticket, error)
}

// Notifier delivers team alerts.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// RegressionTestStore persists generated tests and links them to their cluster.
type RegressionTestStore interface {
	SaveRegressionTest(ctx context.Context, test models.RegressionTest) error
	LinkRegressionTest(ctx context.Context, clusterID, testID string) error
}

// TicketLinker records a created ticket on its cluster.
type TicketLinker interface {
	LinkTicket(ctx context.Context, clusterID, ticketID string) error
}

// ExecutionStore persists execution records. Every state transition is written through
// UpdateExecution so readers can observe progress. ClaimExecution creates the record only
// if the rule has not fired for the cluster before, recording the firing in the same write.
type ExecutionStore interface {
	CreateExecution(ctx context.Context, exec models.FeedbackLoopExecution) error
	ClaimExecution(ctx context.Context, exec models.FeedbackLoopExecution) (bool, error)
	UpdateExecution(ctx context.Context, exec models.FeedbackLoopExecution) error
}
