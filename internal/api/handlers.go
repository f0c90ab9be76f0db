package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/miradorstack/mirador-feedback/internal/models"
	"github.com/miradorstack/mirador-feedback/internal/utils"
)

// Handlers serves the HTTP API on top of the feedback service.
type Handlers struct {
	svc    FeedbackService
	logger *slog.Logger
}

// NewHandlers constructs the HTTP handlers.
func NewHandlers(svc FeedbackService, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{svc: svc, logger: logger}
}

func (h *Handlers) ok(c *gin.Context, code int, data any) {
	c.JSON(code, gin.H{"success": true, "data": data})
}

func (h *Handlers) fail(c *gin.Context, err error) {
	code, msg := httpError(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(code, gin.H{"success": false, "error": msg})
}

// bind reads and validates a JSON body.
func bind(c *gin.Context, out any) error {
	body, err := c.GetRawData()
	if err != nil {
		return models.NewValidationError("body", "unreadable")
	}
	if err := decodeJSON(body, out); err != nil {
		return err
	}
	return validateRequest(out)
}

// Health reports liveness.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   utils.ServiceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// IngestError accepts a canonical error report.
func (h *Handlers) IngestError(c *gin.Context) {
	var req IngestErrorRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.svc.IngestError(c.Request.Context(), req.toModel())
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, result.Event)
}

// IngestSentry accepts a Sentry issue webhook.
func (h *Handlers) IngestSentry(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.fail(c, models.NewValidationError("body", "unreadable"))
		return
	}
	req, err := SentryToIngest(body, c.GetHeader("X-Tenant-ID"))
	if err != nil {
		h.fail(c, err)
		return
	}
	result, err := h.svc.IngestError(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, result.Event)
}

// ListClusters lists a tenant's clusters filtered by status and severity.
func (h *Handlers) ListClusters(c *gin.Context) {
	filter := models.ClusterFilter{
		TenantID: c.Param("tenantId"),
		Status:   models.ClusterStatus(c.Query("status")),
		Severity: models.Severity(c.Query("severity")),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(c, models.NewValidationError("limit", "must be an integer"))
			return
		}
		filter.Limit = limit
	}
	clusters, err := h.svc.ListClusters(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, clusters)
}

// GetCluster fetches one cluster.
func (h *Handlers) GetCluster(c *gin.Context) {
	cluster, err := h.svc.GetCluster(c.Request.Context(), c.Param("clusterId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, cluster)
}

// UpdateClusterStatus triages, resolves or ignores a cluster.
func (h *Handlers) UpdateClusterStatus(c *gin.Context) {
	var req statusRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	cluster, err := h.svc.UpdateClusterStatus(c.Request.Context(), c.Param("clusterId"), req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, cluster)
}

// AnalyzeImpact scores a cluster and records the analysis.
func (h *Handlers) AnalyzeImpact(c *gin.Context) {
	analysis, err := h.svc.AnalyzeImpact(c.Request.Context(), c.Param("clusterId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, analysis)
}

// ListAnalyses returns a cluster's analysis history.
func (h *Handlers) ListAnalyses(c *gin.Context) {
	analyses, err := h.svc.ListAnalyses(c.Request.Context(), c.Param("clusterId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, analyses)
}

// ListExecutions returns a cluster's rule executions.
func (h *Handlers) ListExecutions(c *gin.Context) {
	execs, err := h.svc.ListExecutions(c.Request.Context(), c.Param("clusterId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, execs)
}

// GetExecution fetches one execution.
func (h *Handlers) GetExecution(c *gin.Context) {
	exec, err := h.svc.GetExecution(c.Request.Context(), c.Param("executionId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, exec)
}

// GenerateRegressionTest generates a regression test for a cluster.
func (h *Handlers) GenerateRegressionTest(c *gin.Context) {
	var req regressionTestRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	test, err := h.svc.GenerateRegressionTest(c.Request.Context(), models.RegressionTestRequest{
		TenantID:       req.TenantID,
		ErrorClusterID: req.ErrorClusterID,
		Framework:      models.TestFramework(req.Framework),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, test)
}

// GetRegressionTest fetches one regression test.
func (h *Handlers) GetRegressionTest(c *gin.Context) {
	test, err := h.svc.GetRegressionTest(c.Request.Context(), c.Param("testId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, test)
}

// ApproveRegressionTest approves a draft regression test.
func (h *Handlers) ApproveRegressionTest(c *gin.Context) {
	var req approveRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	test, err := h.svc.ApproveRegressionTest(c.Request.Context(), c.Param("testId"), req.ApprovedBy)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, test)
}

// CreateRule stores a feedback loop rule for the tenant in the path.
func (h *Handlers) CreateRule(c *gin.Context) {
	var req RuleRequest
	if err := bind(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	rule, err := req.toModel(c.Param("tenantId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	created, err := h.svc.CreateRule(c.Request.Context(), rule)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, created)
}

// ListRules lists a tenant's rules.
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.svc.ListRules(c.Request.Context(), c.Param("tenantId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, rules)
}
