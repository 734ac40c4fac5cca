package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/service"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// ChangeFeedHandler serves the change feed cursor
type ChangeFeedHandler struct {
	changes *service.ChangeFeedService
}

// NewChangeFeedHandler creates a new change feed handler
func NewChangeFeedHandler(changes *service.ChangeFeedService) *ChangeFeedHandler {
	return &ChangeFeedHandler{changes: changes}
}

// RegisterRoutes registers the handler's routes
func (h *ChangeFeedHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/changes", RequireCapability(auth.JobsRead), h.Changes)
}

// Changes returns the events committed after the given sequence
func (h *ChangeFeedHandler) Changes(c *gin.Context) {
	var after uint64
	if raw := c.Query("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			WriteError(c, NewValidationError("after must be a sequence number"))
			return
		}
		after = v
	}
	n, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	page, err := h.changes.Changes(c.Request.Context(), after, n)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MetricsHandler handles metrics and health requests
type MetricsHandler struct {
	metrics *metrics.Metrics
	checks  map[string]HealthCheck
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(m *metrics.Metrics, checks map[string]HealthCheck) *MetricsHandler {
	return &MetricsHandler{metrics: m, checks: checks}
}

// HandleGetMetrics returns all metrics
func (h *MetricsHandler) HandleGetMetrics(c *gin.Context) {
	h.metrics.SetGauge(metrics.GaugeGoroutines, int64(runtime.NumGoroutine()))
	c.JSON(http.StatusOK, h.metrics.GetAllMetrics())
}

// HandleGetHealthCheck pings every dependency and reports the overall status
func (h *MetricsHandler) HandleGetHealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	for name, check := range h.checks {
		err := check(ctx)
		if err != nil {
			log.Warn().Err(err).Str("component", name).Msg("health check failed")
		}
		h.metrics.SetHealth(name, err == nil)
	}

	healthChecks := h.metrics.GetHealthChecks()
	healthy := h.metrics.Healthy()

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"status":  healthy,
		"details": healthChecks,
	})
}
