package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-feedback/internal/cache"
	"github.com/miradorstack/mirador-feedback/internal/engine"
	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/repo"
)

type blockingGenerator struct{}

func (blockingGenerator) GenerateTest(ctx context.Context, _ models.TestGenerationRequest) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type staticGenerator struct {
	code string
	err  error
}

func (g staticGenerator) GenerateTest(context.Context, models.TestGenerationRequest) (string, error) {
	return g.code, g.err
}

type fakeTicketer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeTicketer) CreateTicket(context.Context, models.TicketRequest) (models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return models.Ticket{ID: "OPS-1"}, nil
}

type fakeNotifier struct {
	sent atomic.Int32
}

func (f *fakeNotifier) Notify(context.Context, models.Notification) error {
	f.sent.Add(1)
	return nil
}

type serviceFixture struct {
	service   *FeedbackService
	store     *repo.BadgerStore
	scheduler *engine.GoroutineScheduler
	ticketer  *fakeTicketer
	notifier  *fakeNotifier
}

func newServiceFixture(t *testing.T, gen engine.TestGenerator, genTimeout time.Duration) *serviceFixture {
	t.Helper()
	store, err := repo.OpenBadgerStore(repo.InMemoryBadgerConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	f := &serviceFixture{
		store:     store,
		scheduler: engine.NewGoroutineScheduler(4, nil),
		ticketer:  &fakeTicketer{},
		notifier:  &fakeNotifier{},
	}
	regression := engine.NewRegressionTestGenerator(gen, store, genTimeout, nil)
	executor := engine.NewExecutor(engine.ExecutorDeps{
		Store:      store,
		Regression: regression,
		Ticketer:   f.ticketer,
		Tickets:    store,
		Notifier:   f.notifier,
	}, engine.ExecutorConfig{TicketTimeout: time.Second, NotifyTimeout: time.Second}, nil)

	f.service = NewFeedbackService(Options{
		Store:      store,
		Rules:      NewRuleSource(store, newTestCache(t), time.Minute, nil),
		Executor:   executor,
		Regression: regression,
		Scheduler:  f.scheduler,
	})
	return f
}

func newTestCache(t *testing.T) *cache.MemoryProvider {
	t.Helper()
	provider, err := cache.NewMemoryProvider(64)
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func (f *serviceFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.scheduler.Wait(ctx))
}

func timeoutRequest(message string) models.IngestRequest {
	return models.IngestRequest{
		TenantID:  "tenant-a",
		Source:    models.SourceSentry,
		ErrorType: "TimeoutError",
		Message:   message,
		Severity:  models.SeverityCritical,
		Service:   "checkout",
		Endpoint:  "/api/pay",
	}
}

func TestIngestGroupsMessagesDifferingOnlyInIDs(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()

	messages := []string{
		"Request 3f2b1c9e-8d4a-4b7f-9a1e-2c3d4e5f6a7b timed out after 30000ms",
		"Request a1b2c3d4-e5f6-4a7b-8c9d-0e1f2a3b4c5d timed out after 30000ms",
		"Request 00000000-1111-4222-8333-444455556666 timed out after 30000ms",
	}
	var clusterID string
	for i, msg := range messages {
		result, err := f.service.IngestError(ctx, timeoutRequest(msg))
		require.NoError(t, err)
		require.Equal(t, i == 0, result.Created)
		if clusterID == "" {
			clusterID = result.Cluster.ID
		}
		require.Equal(t, clusterID, result.Cluster.ID)
	}

	clusters, err := f.service.ListClusters(ctx, models.ClusterFilter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	require.Equal(t, 3, clusters[0].ErrorCount)
	require.Equal(t, messages[0], clusters[0].PrimaryMessage)
}

func TestIngestRejectsInvalidRequests(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()

	req := timeoutRequest("boom")
	req.Severity = "catastrophic"
	_, err := f.service.IngestError(ctx, req)
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "severity", validation.Field)

	clusters, err := f.service.ListClusters(ctx, models.ClusterFilter{TenantID: "tenant-a"})
	require.NoError(t, err)
	require.Empty(t, clusters)
}

type failingEventStore struct {
	*repo.BadgerStore
	upserts atomic.Int32
}

func (s *failingEventStore) SaveEvent(context.Context, models.ErrorEvent) error {
	return errors.New("disk full")
}

func (s *failingEventStore) UpsertCluster(ctx context.Context, fp string, ev models.ErrorEvent) (models.ErrorCluster, bool, error) {
	s.upserts.Add(1)
	return s.BadgerStore.UpsertCluster(ctx, fp, ev)
}

func TestIngestPersistenceFailureSkipsClustering(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	store := &failingEventStore{BadgerStore: f.store}
	service := NewFeedbackService(Options{Store: store})

	_, err := service.IngestError(context.Background(), timeoutRequest("boom"))
	require.ErrorContains(t, err, "disk full")
	require.Zero(t, store.upserts.Load())
}

func TestRuleFiresAtThresholdOnce(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, models.FeedbackLoopRule{
		TenantID: "tenant-a",
		Name:     "hot errors",
		Enabled:  true,
		Trigger:  models.RuleTrigger{ErrorCountThreshold: 50},
		Actions:  []models.ActionKind{models.ActionNotifyTeam},
	})
	require.NoError(t, err)

	req := timeoutRequest("boom")
	req.OccurrenceCount = 49
	result, err := f.service.IngestError(ctx, req)
	require.NoError(t, err)
	require.Empty(t, result.Executions)

	req.OccurrenceCount = 1
	result, err = f.service.IngestError(ctx, req)
	require.NoError(t, err)
	require.Equal(t, 50, result.Cluster.ErrorCount)
	require.Len(t, result.Executions, 1)

	result, err = f.service.IngestError(ctx, req)
	require.NoError(t, err)
	require.Empty(t, result.Executions)

	f.wait(t)
	require.Equal(t, int32(1), f.notifier.sent.Load())

	execs, err := f.service.ListExecutions(ctx, result.Cluster.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, models.ExecutionCompleted, execs[0].Status)
}

type flakyExecutionStore struct {
	*repo.BadgerStore
	claimFailures atomic.Int32
}

func (s *flakyExecutionStore) ClaimExecution(ctx context.Context, exec models.FeedbackLoopExecution) (bool, error) {
	if s.claimFailures.Add(-1) >= 0 {
		return false, errors.New("value log write failed")
	}
	return s.BadgerStore.ClaimExecution(ctx, exec)
}

func TestFireOnceRuleRetriesAfterFailedStart(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()
	store := &flakyExecutionStore{BadgerStore: f.store}
	store.claimFailures.Store(1)
	executor := engine.NewExecutor(engine.ExecutorDeps{Store: store, Notifier: f.notifier}, engine.ExecutorConfig{}, nil)
	service := NewFeedbackService(Options{
		Store:     store,
		Rules:     NewRuleSource(store, newTestCache(t), time.Minute, nil),
		Executor:  executor,
		Scheduler: f.scheduler,
	})

	_, err := service.CreateRule(ctx, models.FeedbackLoopRule{
		TenantID: "tenant-a",
		Name:     "checkout errors",
		Enabled:  true,
		Trigger:  models.RuleTrigger{Services: []string{"checkout"}},
		Actions:  []models.ActionKind{models.ActionNotifyTeam},
	})
	require.NoError(t, err)

	result, err := service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)
	require.Empty(t, result.Executions)

	result, err = service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)

	result, err = service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)
	require.Empty(t, result.Executions)

	f.wait(t)
	require.Equal(t, int32(1), f.notifier.sent.Load())
	execs, err := service.ListExecutions(ctx, result.Cluster.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
}

func TestRuleFireEveryMatch(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, models.FeedbackLoopRule{
		TenantID: "tenant-a",
		Name:     "every checkout error",
		Enabled:  true,
		FireMode: models.FireEveryMatch,
		Trigger:  models.RuleTrigger{Services: []string{"checkout"}},
		Actions:  []models.ActionKind{models.ActionNotifyTeam},
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		result, err := f.service.IngestError(ctx, timeoutRequest("boom"))
		require.NoError(t, err)
		require.Len(t, result.Executions, 1)
	}

	other := timeoutRequest("boom")
	other.Service = "search"
	result, err := f.service.IngestError(ctx, other)
	require.NoError(t, err)
	require.Empty(t, result.Executions)

	f.wait(t)
	require.Equal(t, int32(3), f.notifier.sent.Load())
}

func TestDisabledAndForeignRulesDoNotFire(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, models.FeedbackLoopRule{TenantID: "tenant-a", Name: "off", Enabled: false, Actions: []models.ActionKind{models.ActionNotifyTeam}})
	require.NoError(t, err)
	_, err = f.service.CreateRule(ctx, models.FeedbackLoopRule{TenantID: "tenant-b", Name: "other tenant", Enabled: true, Actions: []models.ActionKind{models.ActionNotifyTeam}})
	require.NoError(t, err)

	result, err := f.service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)
	require.Empty(t, result.Executions)

	rules, err := f.service.ListRules(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestGeneratorTimeoutYieldsPartialExecution(t *testing.T) {
	f := newServiceFixture(t, blockingGenerator{}, 20*time.Millisecond)
	ctx := context.Background()

	_, err := f.service.CreateRule(ctx, models.FeedbackLoopRule{
		TenantID: "tenant-a",
		Name:     "critical",
		Enabled:  true,
		Trigger:  models.RuleTrigger{Severity: []models.Severity{models.SeverityCritical}},
		Actions:  []models.ActionKind{models.ActionGenerateRegressionTest, models.ActionCreateJiraTicket},
	})
	require.NoError(t, err)

	result, err := f.service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	f.wait(t)

	exec, err := f.service.GetExecution(ctx, result.Executions[0])
	require.NoError(t, err)
	require.Equal(t, models.ExecutionPartial, exec.Status)
	require.Equal(t, models.ActionFailed, exec.TriggeredActions[0].Status)
	require.Equal(t, models.ActionCompleted, exec.TriggeredActions[1].Status)
	require.Equal(t, "OPS-1", exec.TriggeredActions[1].Result.TicketID)

	cluster, err := f.service.GetCluster(ctx, result.Cluster.ID)
	require.NoError(t, err)
	require.Equal(t, "OPS-1", cluster.JiraTicketID)
	require.Empty(t, cluster.RegressionTestID)
}

func TestCreateRuleValidation(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	_, err := f.service.CreateRule(context.Background(), models.FeedbackLoopRule{TenantID: "tenant-a", Name: "no actions"})
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)

	rule, err := f.service.CreateRule(context.Background(), models.FeedbackLoopRule{TenantID: "tenant-a", Name: "ok", Actions: []models.ActionKind{"page_oncall"}})
	require.NoError(t, err)
	require.NotEmpty(t, rule.ID)
	require.Equal(t, models.FireOnce, rule.FireMode)
}

func TestUpdateClusterStatus(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()
	result, err := f.service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)

	cluster, err := f.service.UpdateClusterStatus(ctx, result.Cluster.ID, "triaged")
	require.NoError(t, err)
	require.Equal(t, models.ClusterStatusAcknowledged, cluster.Status)

	_, err = f.service.UpdateClusterStatus(ctx, result.Cluster.ID, "closed")
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.service.UpdateClusterStatus(ctx, "missing", "resolved")
	require.ErrorIs(t, err, repo.ErrNotFound)

	_, err = f.service.ListClusters(ctx, models.ClusterFilter{})
	require.ErrorAs(t, err, &validation)
}

func TestAnalyzeImpact(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()

	_, err := f.service.AnalyzeImpact(ctx, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)

	result, err := f.service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)

	analysis, err := f.service.AnalyzeImpact(ctx, result.Cluster.ID)
	require.NoError(t, err)
	require.NotEmpty(t, analysis.ID)
	require.Equal(t, result.Cluster.ID, analysis.ErrorClusterID)
	require.GreaterOrEqual(t, analysis.ImpactScore, 40)

	_, err = f.service.AnalyzeImpact(ctx, result.Cluster.ID)
	require.NoError(t, err)
	history, err := f.service.ListAnalyses(ctx, result.Cluster.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	_, err = f.service.ListAnalyses(ctx, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestGenerateRegressionTestOnDemand(t *testing.T) {
	f := newServiceFixture(t, staticGenerator{err: errors.New("model offline")}, time.Second)
	ctx := context.Background()
	result, err := f.service.IngestError(ctx, timeoutRequest("boom"))
	require.NoError(t, err)

	test, err := f.service.GenerateRegressionTest(ctx, models.RegressionTestRequest{
		TenantID:       "tenant-a",
		ErrorClusterID: result.Cluster.ID,
		Framework:      models.FrameworkPytest,
	})
	require.NoError(t, err)
	require.Equal(t, models.GeneratedByTemplate, test.GeneratedBy)
	require.Equal(t, models.RegressionTestDraft, test.Status)

	approved, err := f.service.ApproveRegressionTest(ctx, test.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.RegressionTestApproved, approved.Status)

	_, err = f.service.ApproveRegressionTest(ctx, test.ID, " ")
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)

	_, err = f.service.GenerateRegressionTest(ctx, models.RegressionTestRequest{TenantID: "tenant-b", ErrorClusterID: result.Cluster.ID})
	require.ErrorIs(t, err, repo.ErrNotFound)

	cluster, err := f.service.GetCluster(ctx, result.Cluster.ID)
	require.NoError(t, err)
	require.Equal(t, test.ID, cluster.RegressionTestID)
}

func TestSeedRulesIsIdempotent(t *testing.T) {
	f := newServiceFixture(t, nil, time.Second)
	ctx := context.Background()
	pack := []models.FeedbackLoopRule{{
		TenantID: "tenant-a",
		Name:     "critical ticket",
		Trigger:  models.RuleTrigger{Severity: []models.Severity{models.SeverityCritical}},
		Actions:  []models.ActionKind{models.ActionCreateJiraTicket},
		Enabled:  true,
		FireMode: models.FireOnce,
	}}

	n, err := f.service.SeedRules(ctx, pack)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	first, err := f.service.ListRules(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = f.service.SeedRules(ctx, pack)
	require.NoError(t, err)
	second, err := f.service.ListRules(ctx, "tenant-a")
	require.NoError(t, err)
	require.Len(t, second, 1)
	require.Equal(t, first[0].ID, second[0].ID)
	require.True(t, first[0].CreatedAt.Equal(second[0].CreatedAt))

	_, err = f.service.SeedRules(ctx, []models.FeedbackLoopRule{{TenantID: "tenant-a", Name: "empty"}})
	var validation *models.ValidationError
	require.ErrorAs(t, err, &validation)
}
