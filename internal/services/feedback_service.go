package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/miradorstack/mirador-feedback/internal/engine"
	"github.com/miradorstack/mirador-feedback/internal/metrics"
	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/repo"
	"github.com/miradorstack/mirador-feedback/internal/utils"
)

// Store is the persistence surface the feedback service needs.
type Store interface {
	RuleStore

	SaveEvent(ctx context.Context, ev models.ErrorEvent) error
	UpsertCluster(ctx context.Context, fingerprint string, ev models.ErrorEvent) (models.ErrorCluster, bool, error)
	GetCluster(ctx context.Context, id string) (models.ErrorCluster, error)
	ListClusters(ctx context.Context, filter models.ClusterFilter) ([]models.ErrorCluster, error)
	UpdateClusterStatus(ctx context.Context, id string, status models.ClusterStatus) (models.ErrorCluster, error)
	GetExecution(ctx context.Context, id string) (models.FeedbackLoopExecution, error)
	ListExecutions(ctx context.Context, clusterID string) ([]models.FeedbackLoopExecution, error)
	GetRegressionTest(ctx context.Context, id string) (models.RegressionTest, error)
	ApproveRegressionTest(ctx context.Context, id, approvedBy string) (models.RegressionTest, error)
	SaveAnalysis(ctx context.Context, analysis models.ImpactAnalysis) error
	ListAnalyses(ctx context.Context, clusterID string) ([]models.ImpactAnalysis, error)
}

// Options wires a FeedbackService.
type Options struct {
	Logger     *slog.Logger
	Store      Store
	Rules      *RuleSource
	Executor   *engine.Executor
	Regression *engine.RegressionTestGenerator
	Analyzer   *engine.ImpactAnalyzer
	Scheduler  engine.Scheduler
}

// IngestResult describes what a single ingestion did.
type IngestResult struct {
	Event      models.ErrorEvent
	Cluster    models.ErrorCluster
	Created    bool
	Executions []string
}

// FeedbackService is the ingestion gateway and query facade of the feedback loop.
type FeedbackService struct {
	logger     *slog.Logger
	store      Store
	rules      *RuleSource
	executor   *engine.Executor
	regression *engine.RegressionTestGenerator
	analyzer   *engine.ImpactAnalyzer
	scheduler  engine.Scheduler
	latencies  *utils.LatencyTracker
	tracer     trace.Tracer
	now        func() time.Time
}

// NewFeedbackService constructs the service facade.
func NewFeedbackService(opts Options) *FeedbackService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rules := opts.Rules
	if rules == nil && opts.Store != nil {
		rules = NewRuleSource(opts.Store, nil, 0, logger)
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = engine.NewGoroutineScheduler(0, logger)
	}
	analyzer := opts.Analyzer
	if analyzer == nil {
		analyzer = engine.NewImpactAnalyzer(nil)
	}
	return &FeedbackService{
		logger:     logger,
		store:      opts.Store,
		rules:      rules,
		executor:   opts.Executor,
		regression: opts.Regression,
		analyzer:   analyzer,
		scheduler:  scheduler,
		latencies:  utils.NewLatencyTracker(1024),
		tracer:     otel.Tracer("github.com/miradorstack/mirador-feedback/internal/services"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// IngestError validates and persists an error report, clusters it and fires matching
// rules. Fired executions are handed to the scheduler and not awaited.
func (s *FeedbackService) IngestError(ctx context.Context, req models.IngestRequest) (IngestResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "feedback.ingest", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("source", string(req.Source)),
	))
	defer span.End()

	result, err := s.ingest(ctx, req)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.ObserveIngest(string(req.Source), duration, metrics.OutcomeError)
		return IngestResult{}, err
	}
	span.SetAttributes(
		attribute.String("cluster.id", result.Cluster.ID),
		attribute.Bool("cluster.created", result.Created),
		attribute.Int("executions", len(result.Executions)),
	)
	metrics.ObserveIngest(string(result.Event.Source), duration, metrics.OutcomeSuccess)
	s.latencies.Observe(duration)
	if total := s.latencies.Total(); total%100 == 0 {
		s.logger.Info("ingestion latency", slog.Duration("p95", s.latencies.Percentile(95)), slog.Int("samples", s.latencies.Count()))
	}
	return result, nil
}

func (s *FeedbackService) ingest(ctx context.Context, req models.IngestRequest) (IngestResult, error) {
	now := s.now()
	req.Normalize(now)
	if err := req.Validate(); err != nil {
		return IngestResult{}, err
	}

	ev := models.ErrorEvent{
		ID:              uuid.NewString(),
		TenantID:        req.TenantID,
		Source:          req.Source,
		ExternalID:      req.ExternalID,
		ErrorType:       req.ErrorType,
		Message:         req.Message,
		StackTrace:      req.StackTrace,
		Severity:        req.Severity,
		Environment:     req.Environment,
		Service:         req.Service,
		Endpoint:        req.Endpoint,
		UserID:          req.UserID,
		Metadata:        req.Metadata,
		FirstSeen:       req.FirstSeen,
		LastSeen:        req.LastSeen,
		OccurrenceCount: req.OccurrenceCount,
		CreatedAt:       now,
	}
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return IngestResult{}, utils.NewAppError("ingest", "persist error event", err)
	}

	cluster, created, err := s.clusterError(ctx, ev)
	if err != nil {
		return IngestResult{}, utils.NewAppError("ingest", "cluster error event", err)
	}

	return IngestResult{
		Event:      ev,
		Cluster:    cluster,
		Created:    created,
		Executions: s.fireRules(ctx, cluster),
	}, nil
}

// clusterError creates or merges the cluster owning the event's fingerprint.
func (s *FeedbackService) clusterError(ctx context.Context, ev models.ErrorEvent) (models.ErrorCluster, bool, error) {
	fingerprint := engine.Fingerprint(ev)
	cluster, created, err := s.store.UpsertCluster(ctx, fingerprint, ev)
	if err != nil {
		return models.ErrorCluster{}, false, err
	}
	metrics.ObserveCluster(created)
	s.logger.Debug("error clustered",
		slog.String("tenant_id", ev.TenantID),
		slog.String("cluster_id", cluster.ID),
		slog.Bool("created", created),
		slog.Int("error_count", cluster.ErrorCount),
	)
	return cluster, created, nil
}

// fireRules starts an execution for every matching rule. Failures are logged; the event
// is already persisted so they never fail ingestion.
func (s *FeedbackService) fireRules(ctx context.Context, cluster models.ErrorCluster) []string {
	if s.executor == nil || s.rules == nil {
		return nil
	}
	rules, err := s.rules.Enabled(ctx, cluster.TenantID)
	if err != nil {
		s.logger.Error("load feedback rules failed", slog.String("tenant_id", cluster.TenantID), slog.String("error", err.Error()))
		return nil
	}

	var started []string
	for _, rule := range engine.MatchingRules(rules, cluster) {
		exec, err := s.executor.Start(ctx, rule, cluster)
		if errors.Is(err, engine.ErrAlreadyFired) {
			continue
		}
		if err != nil {
			s.logger.Error("start execution failed", slog.String("rule_id", rule.ID), slog.String("error", err.Error()))
			continue
		}
		s.scheduler.Go("execution "+exec.ID, func(taskCtx context.Context) {
			s.executor.Run(taskCtx, exec, rule, cluster)
		})
		started = append(started, exec.ID)
		s.logger.Info("feedback rule fired",
			slog.String("rule_id", rule.ID),
			slog.String("cluster_id", cluster.ID),
			slog.String("execution_id", exec.ID),
		)
	}
	return started
}

// GetCluster loads a cluster.
func (s *FeedbackService) GetCluster(ctx context.Context, id string) (models.ErrorCluster, error) {
	return s.store.GetCluster(ctx, id)
}

// ListClusters lists a tenant's clusters.
func (s *FeedbackService) ListClusters(ctx context.Context, filter models.ClusterFilter) ([]models.ErrorCluster, error) {
	if strings.TrimSpace(filter.TenantID) == "" {
		return nil, models.NewValidationError("tenantId", "is required")
	}
	if filter.Status != "" {
		status, err := models.ParseClusterStatus(string(filter.Status))
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if filter.Severity != "" && !filter.Severity.Valid() {
		return nil, models.NewValidationError("severity", "unknown severity "+string(filter.Severity))
	}
	if filter.Limit < 0 {
		return nil, models.NewValidationError("limit", "must not be negative")
	}
	return s.store.ListClusters(ctx, filter)
}

// UpdateClusterStatus applies an operator triage decision.
func (s *FeedbackService) UpdateClusterStatus(ctx context.Context, id, status string) (models.ErrorCluster, error) {
	parsed, err := models.ParseClusterStatus(status)
	if err != nil {
		return models.ErrorCluster{}, err
	}
	cluster, err := s.store.UpdateClusterStatus(ctx, id, parsed)
	if err != nil {
		return models.ErrorCluster{}, err
	}
	s.logger.Info("cluster status updated", slog.String("cluster_id", id), slog.String("status", string(parsed)))
	return cluster, nil
}

// GenerateRegressionTest generates a test for a cluster on request. A failing generator
// falls back to the framework template.
func (s *FeedbackService) GenerateRegressionTest(ctx context.Context, req models.RegressionTestRequest) (models.RegressionTest, error) {
	if err := req.Validate(); err != nil {
		return models.RegressionTest{}, err
	}
	if s.regression == nil {
		return models.RegressionTest{}, utils.NewAppError("generate regression test", "regression test generation not configured", nil)
	}
	cluster, err := s.clusterForTenant(ctx, req.TenantID, req.ErrorClusterID)
	if err != nil {
		return models.RegressionTest{}, err
	}
	return s.regression.Generate(ctx, cluster, req.Framework, true)
}

// GetRegressionTest loads a generated test.
func (s *FeedbackService) GetRegressionTest(ctx context.Context, id string) (models.RegressionTest, error) {
	return s.store.GetRegressionTest(ctx, id)
}

// ApproveRegressionTest marks a draft test approved.
func (s *FeedbackService) ApproveRegressionTest(ctx context.Context, id, approvedBy string) (models.RegressionTest, error) {
	if strings.TrimSpace(approvedBy) == "" {
		return models.RegressionTest{}, models.NewValidationError("approvedBy", "is required")
	}
	return s.store.ApproveRegressionTest(ctx, id, strings.TrimSpace(approvedBy))
}

// CreateRule validates and stores a new rule. Missing ids and fire modes are defaulted.
func (s *FeedbackService) CreateRule(ctx context.Context, rule models.FeedbackLoopRule) (models.FeedbackLoopRule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.FireMode == "" {
		rule.FireMode = models.FireOnce
	}
	if err := rule.Validate(); err != nil {
		return models.FeedbackLoopRule{}, err
	}
	now := s.now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.rules.Save(ctx, rule); err != nil {
		return models.FeedbackLoopRule{}, fmt.Errorf("save rule: %w", err)
	}
	s.logger.Info("feedback rule created", slog.String("tenant_id", rule.TenantID), slog.String("rule_id", rule.ID))
	return rule, nil
}

// SeedRules upserts rules from a seed pack. Rules without an id get one derived from
// tenant and name, so reseeding on restart updates rules instead of duplicating them.
func (s *FeedbackService) SeedRules(ctx context.Context, rules []models.FeedbackLoopRule) (int, error) {
	existing := make(map[string]map[string]models.FeedbackLoopRule)
	seeded := 0
	for _, rule := range rules {
		if rule.ID == "" {
			rule.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(rule.TenantID+"/"+rule.Name)).String()
		}
		if err := rule.Validate(); err != nil {
			return seeded, err
		}
		byID, ok := existing[rule.TenantID]
		if !ok {
			current, err := s.rules.All(ctx, rule.TenantID)
			if err != nil {
				return seeded, fmt.Errorf("list rules: %w", err)
			}
			byID = make(map[string]models.FeedbackLoopRule, len(current))
			for _, r := range current {
				byID[r.ID] = r
			}
			existing[rule.TenantID] = byID
		}

		now := s.now()
		rule.CreatedAt = now
		if prev, ok := byID[rule.ID]; ok {
			rule.CreatedAt = prev.CreatedAt
		}
		rule.UpdatedAt = now
		if err := s.rules.Save(ctx, rule); err != nil {
			return seeded, fmt.Errorf("save rule %s: %w", rule.ID, err)
		}
		seeded++
	}
	return seeded, nil
}

// ListRules returns every rule of a tenant.
func (s *FeedbackService) ListRules(ctx context.Context, tenantID string) ([]models.FeedbackLoopRule, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, models.NewValidationError("tenantId", "is required")
	}
	return s.rules.All(ctx, tenantID)
}

// AnalyzeImpact scores a cluster and appends the analysis to its history.
func (s *FeedbackService) AnalyzeImpact(ctx context.Context, clusterID string) (models.ImpactAnalysis, error) {
	start := time.Now()
	cluster, err := s.store.GetCluster(ctx, clusterID)
	if err != nil {
		return models.ImpactAnalysis{}, err
	}
	analysis := s.analyzer.Analyze(cluster)
	analysis.ID = uuid.NewString()
	if err := s.store.SaveAnalysis(ctx, analysis); err != nil {
		return models.ImpactAnalysis{}, fmt.Errorf("save impact analysis: %w", err)
	}
	metrics.ObserveAnalysis(time.Since(start))
	return analysis, nil
}

// ListAnalyses returns a cluster's analysis history.
func (s *FeedbackService) ListAnalyses(ctx context.Context, clusterID string) ([]models.ImpactAnalysis, error) {
	if _, err := s.store.GetCluster(ctx, clusterID); err != nil {
		return nil, err
	}
	return s.store.ListAnalyses(ctx, clusterID)
}

// GetExecution loads an execution.
func (s *FeedbackService) GetExecution(ctx context.Context, id string) (models.FeedbackLoopExecution, error) {
	return s.store.GetExecution(ctx, id)
}

// ListExecutions returns a cluster's executions.
func (s *FeedbackService) ListExecutions(ctx context.Context, clusterID string) ([]models.FeedbackLoopExecution, error) {
	if _, err := s.store.GetCluster(ctx, clusterID); err != nil {
		return nil, err
	}
	return s.store.ListExecutions(ctx, clusterID)
}

// clusterForTenant hides clusters of other tenants behind the not-found error.
func (s *FeedbackService) clusterForTenant(ctx context.Context, tenantID, clusterID string) (models.ErrorCluster, error) {
	cluster, err := s.store.GetCluster(ctx, clusterID)
	if err != nil {
		return models.ErrorCluster{}, err
	}
	if cluster.TenantID != tenantID {
		return models.ErrorCluster{}, fmt.Errorf("cluster %s: %w", clusterID, repo.ErrNotFound)
	}
	return cluster, nil
}
