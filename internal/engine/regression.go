package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-feedback/internal/models"
)

// ErrGeneratorUnavailable is returned when no test generator is configured and the
// caller did not allow a template fallback.
var ErrGeneratorUnavailable = errors.New("test generator not configured")

// RegressionTestGenerator turns a cluster into a stored draft regression test.
type RegressionTestGenerator struct {
	generator TestGenerator
	store     RegressionTestStore
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewRegressionTestGenerator wires the generator. generator may be nil, in which case
// only template fallback is available.
func NewRegressionTestGenerator(generator TestGenerator, store RegressionTestStore, timeout time.Duration, logger *slog.Logger) *RegressionTestGenerator {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegressionTestGenerator{
		generator: generator,
		store:     store,
		timeout:   timeout,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Generate asks the generator for test code, stores the test as a draft and links it
// to the cluster. With fallback set, a generator failure renders a local template.
func (g *RegressionTestGenerator) Generate(ctx context.Context, cluster models.ErrorCluster, framework models.TestFramework, fallback bool) (models.RegressionTest, error) {
	if framework == "" {
		framework = models.FrameworkPlaywright
	}

	code, generatedBy, err := g.generate(ctx, cluster, framework)
	if err != nil {
		if !fallback {
			return models.RegressionTest{}, fmt.Errorf("generate test code: %w", err)
		}
		g.logger.Warn("test generation failed, using template",
			slog.String("cluster_id", cluster.ID),
			slog.String("framework", string(framework)),
			slog.String("error", err.Error()),
		)
		code, generatedBy = RenderTemplate(framework, cluster), models.GeneratedByTemplate
	}

	now := g.now()
	test := models.RegressionTest{
		ID:             uuid.NewString(),
		TenantID:       cluster.TenantID,
		ErrorClusterID: cluster.ID,
		Name:           "Regression: " + cluster.ErrorType,
		Description:    "Auto-generated test to catch: " + cluster.PrimaryMessage,
		Framework:      framework,
		TestCode:       code,
		Scenarios:      ExtractScenarios(cluster),
		Status:         models.RegressionTestDraft,
		GeneratedBy:    generatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := g.store.SaveRegressionTest(ctx, test); err != nil {
		return models.RegressionTest{}, fmt.Errorf("save regression test: %w", err)
	}
	if err := g.store.LinkRegressionTest(ctx, cluster.ID, test.ID); err != nil {
		return models.RegressionTest{}, fmt.Errorf("link regression test: %w", err)
	}
	return test, nil
}

func (g *RegressionTestGenerator) generate(ctx context.Context, cluster models.ErrorCluster, framework models.TestFramework) (string, string, error) {
	if g.generator == nil {
		return "", "", ErrGeneratorUnavailable
	}
	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	code, err := g.generator.GenerateTest(callCtx, models.TestGenerationRequest{
		TenantID:          cluster.TenantID,
		ErrorType:         cluster.ErrorType,
		ErrorMessage:      cluster.PrimaryMessage,
		AffectedServices:  cluster.AffectedServices,
		AffectedEndpoints: cluster.AffectedEndpoints,
		Framework:         framework,
	})
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(code) == "" {
		return "", "", errors.New("test generator returned empty code")
	}
	return code, models.GeneratedByModel, nil
}
