// Package http serves the worker's ops endpoints: liveness, readiness and
// Prometheus metrics.
package http

import (
	"github.com/gin-gonic/gin"

	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/fragrance-etl/internal/interfaces/http/handlers"
	"github.com/turtacn/fragrance-etl/internal/interfaces/http/middleware"
)

type RouterConfig struct {
	// Mode is the gin mode (debug, release, test); empty keeps gin's.
	Mode    string
	Version string

	Checks map[string]bootstrap.HealthCheck

	// Infrastructure
	Logger    logging.Logger
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
}

// RouterConfigFrom wires the probes and metrics of infra.
func RouterConfigFrom(infra *bootstrap.Infrastructure, version string) RouterConfig {
	return RouterConfig{
		Mode:      infra.Config.Server.Mode,
		Version:   version,
		Checks:    infra.HealthChecks(),
		Logger:    infra.Logger,
		Collector: infra.Collector,
		Metrics:   infra.Metrics,
	}
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), middleware.DefaultLoggingConfig()))

	var recorder handlers.HealthRecorder
	if cfg.Metrics != nil {
		r.Use(middleware.RequestMetrics(cfg.Metrics))
		recorder = cfg.Metrics
	}

	handlers.NewHealthHandler(cfg.Version, cfg.Checks, recorder, cfg.Logger).RegisterRoutes(r)

	if cfg.Collector != nil {
		r.GET("/metrics", gin.WrapH(cfg.Collector.Handler()))
	}
	return r
}
