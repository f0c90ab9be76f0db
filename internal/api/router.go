package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/miradorstack/mirador-feedback/internal/utils"
)

// RouterConfig tunes the HTTP router.
type RouterConfig struct {
	// RateLimitPerMinute caps requests per client IP on /api/v1. Zero disables limiting.
	RateLimitPerMinute int
	RateLimitBurst     int
	Logger             *slog.Logger
}

// NewRouter builds the HTTP API.
func NewRouter(svc FeedbackService, cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := NewHandlers(svc, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(utils.ServiceName))
	router.Use(requestLogger(logger))

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	if cfg.RateLimitPerMinute > 0 {
		v1.Use(newIPRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst).middleware())
	}

	v1.POST("/errors", h.IngestError)
	v1.POST("/webhooks/sentry", h.IngestSentry)

	v1.GET("/tenants/:tenantId/clusters", h.ListClusters)
	v1.GET("/clusters/:clusterId", h.GetCluster)
	v1.PATCH("/clusters/:clusterId/status", h.UpdateClusterStatus)
	v1.POST("/clusters/:clusterId/analyze", h.AnalyzeImpact)
	v1.GET("/clusters/:clusterId/analyses", h.ListAnalyses)
	v1.GET("/clusters/:clusterId/executions", h.ListExecutions)

	v1.POST("/regression-tests", h.GenerateRegressionTest)
	v1.GET("/regression-tests/:testId", h.GetRegressionTest)
	v1.POST("/regression-tests/:testId/approve", h.ApproveRegressionTest)

	v1.POST("/tenants/:tenantId/feedback-rules", h.CreateRule)
	v1.GET("/tenants/:tenantId/feedback-rules", h.ListRules)

	v1.GET("/executions/:executionId", h.GetExecution)

	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// ipRateLimiter keeps one token bucket per client IP.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	reset    time.Time
}

func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	if burst <= 0 {
		burst = max(perMinute/10, 1)
	}
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		reset:    time.Now().Add(time.Hour),
	}
}

func (l *ipRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop idle buckets periodically so the map stays bounded.
	if time.Now().After(l.reset) {
		l.limiters = make(map[string]*rate.Limiter)
		l.reset = time.Now().Add(time.Hour)
	}
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

func (l *ipRateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.get(c.ClientIP()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"success": false, "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
