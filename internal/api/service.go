package api

import (
	"context"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/services"
)

// FeedbackService is the surface the HTTP and gRPC transports expose.
type FeedbackService interface {
	IngestError(ctx context.Context, req models.IngestRequest) (services.IngestResult, error)
	GetCluster(ctx context.Context, id string) (models.ErrorCluster, error)
	ListClusters(ctx context.Context, filter models.ClusterFilter) ([]models.ErrorCluster, error)
	UpdateClusterStatus(ctx context.Context, id, status string) (models.ErrorCluster, error)
	GenerateRegressionTest(ctx context.Context, req models.RegressionTestRequest) (models.RegressionTest, error)
	GetRegressionTest(ctx context.Context, id string) (models.RegressionTest, error)
	ApproveRegressionTest(ctx context.Context, id, approvedBy string) (models.RegressionTest, error)
	CreateRule(ctx context.Context, rule models.FeedbackLoopRule) (models.FeedbackLoopRule, error)
	ListRules(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error)
	AnalyzeImpact(ctx context.Context, clusterID string) (models.ImpactAnalysis, error)
	ListAnalyses(ctx context.Context, clusterID string) ([]models.ImpactAnalysis, error)
	GetExecution(ctx context.Context, id string) (models.FeedbackLoopExecution, error)
	ListExecutions(ctx context.Context, clusterID string) ([]models.FeedbackLoopExecution, error)
}

var _ FeedbackService = (*services.FeedbackService)(nil)
