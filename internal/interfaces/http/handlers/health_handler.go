// Package handlers holds the ops server's HTTP handlers.
package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
)

// DefaultReadinessTimeout bounds one readiness probe across all components.
const DefaultReadinessTimeout = 5 * time.Second

// HealthRecorder receives the outcome of each component probe.
type HealthRecorder interface {
	SetHealth(component string, up bool)
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checks   map[string]bootstrap.HealthCheck
	recorder HealthRecorder
	logger   logging.Logger
	version  string
	startAt  time.Time
	timeout  time.Duration
}

// NewHealthHandler probes checks on readiness.  recorder may be nil.
func NewHealthHandler(version string, checks map[string]bootstrap.HealthCheck, recorder HealthRecorder, logger logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HealthHandler{
		checks:   checks,
		recorder: recorder,
		logger:   logger,
		version:  version,
		startAt:  time.Now(),
		timeout:  DefaultReadinessTimeout,
	}
}

// RegisterRoutes mounts /healthz and /readyz.
func (h *HealthHandler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

type ReadinessResponse struct {
	Status     string                    `json:"status"`
	Components map[string]ComponentCheck `json:"components,omitempty"`
}

type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Liveness reports that the process is serving.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:  "alive",
		Version: h.version,
		Uptime:  time.Since(h.startAt).Truncate(time.Second).String(),
	})
}

// Readiness probes every component and answers 503 when any is down.
func (h *HealthHandler) Readiness(c *gin.Context) {
	if len(h.checks) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	components := h.checkAll(ctx)

	var down []string
	for name, cc := range components {
		if cc.Status != "healthy" {
			down = append(down, name)
		}
	}

	if len(down) == 0 {
		c.JSON(http.StatusOK, ReadinessResponse{Status: "ready", Components: components})
		return
	}
	sort.Strings(down)
	h.logger.Warn("readiness probe failed", logging.Strings("components", down))
	c.JSON(http.StatusServiceUnavailable, ReadinessResponse{Status: "not_ready", Components: components})
}

func (h *HealthHandler) checkAll(ctx context.Context) map[string]ComponentCheck {
	results := make(map[string]ComponentCheck, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, check := range h.checks {
		wg.Add(1)
		go func(name string, check bootstrap.HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := check(ctx)

			cc := ComponentCheck{
				Status:  "healthy",
				Latency: time.Since(start).Truncate(time.Microsecond).String(),
			}
			if err != nil {
				cc.Status = "unhealthy"
				cc.Error = err.Error()
			}
			if h.recorder != nil {
				h.recorder.SetHealth(name, err == nil)
			}

			mu.Lock()
			results[name] = cc
			mu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}
