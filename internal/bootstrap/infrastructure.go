// Package bootstrap opens the configured infrastructure and assembles the
// catalog pipeline shared by fragctl and the worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/turtacn/fragrance-etl/internal/config"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/neo4j"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/postgres"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/database/redis"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/search/opensearch"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/storage/minio"
)

// Options selects which dependencies Open connects.  MinIO and metrics are
// opened whenever they are enabled since sources may live in a bucket.
type Options struct {
	// Store connects Postgres and the Redis lookup tier.
	Store bool
	// Sinks connects the enabled search, graph and event sinks.
	Sinks bool
	// Search connects OpenSearch even when Sinks is false.
	Search bool
	// Producer connects Kafka even when Sinks is false.
	Producer bool
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Infrastructure holds the connected clients.  Disabled components are nil.
type Infrastructure struct {
	Config *config.Config
	Logger logging.Logger

	Postgres   *postgres.Connection
	Redis      *redis.Client
	MinIO      *minio.Client
	Producer   *kafka.Producer
	OpenSearch *opensearch.Client
	Neo4j      *neo4j.Driver

	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics
}

// Open connects every enabled component opts asks for.  Any enabled
// component that cannot connect fails startup; the clients opened so far are
// closed.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger, opts Options) (*Infrastructure, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	infra := &Infrastructure{Config: cfg, Logger: logger}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfigFrom(cfg.Metrics), logger)
		if err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
		infra.Collector = collector
		infra.Metrics = prometheus.NewAppMetrics(collector)
	}

	if opts.Store {
		pg, err := postgres.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		infra.Postgres = pg

		if cfg.Redis.Enabled {
			rc, err := redis.NewClient(ctx, cfg.Redis, logger)
			if err != nil {
				infra.Close()
				return nil, fmt.Errorf("redis: %w", err)
			}
			infra.Redis = rc
		}
	}

	if cfg.MinIO.Enabled {
		mc, err := minio.NewClient(ctx, minio.ConfigFrom(cfg.MinIO), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("minio: %w", err)
		}
		infra.MinIO = mc
	}

	if cfg.Kafka.Enabled && (opts.Sinks || opts.Producer) {
		p, err := kafka.NewProducer(kafka.ProducerConfigFrom(cfg.Kafka), logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("kafka: %w", err)
		}
		infra.Producer = p
	}

	if cfg.OpenSearch.Enabled && (opts.Sinks || opts.Search) {
		osc, err := opensearch.NewClient(ctx, cfg.OpenSearch, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("opensearch: %w", err)
		}
		infra.OpenSearch = osc
	}

	if cfg.Neo4j.Enabled && opts.Sinks {
		d, err := neo4j.NewDriver(ctx, cfg.Neo4j, logger)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("neo4j: %w", err)
		}
		infra.Neo4j = d
	}

	logger.Info("infrastructure initialized", logging.Strings("components", infra.Components()))
	return infra, nil
}

// Components names the connected components.
func (i *Infrastructure) Components() []string {
	var out []string
	if i.Postgres != nil {
		out = append(out, "postgres")
	}
	if i.Redis != nil {
		out = append(out, "redis")
	}
	if i.MinIO != nil {
		out = append(out, "minio")
	}
	if i.Producer != nil {
		out = append(out, "kafka")
	}
	if i.OpenSearch != nil {
		out = append(out, "opensearch")
	}
	if i.Neo4j != nil {
		out = append(out, "neo4j")
	}
	if i.Metrics != nil {
		out = append(out, "metrics")
	}
	return out
}

// HealthChecks returns a probe per connected component, keyed by name.
func (i *Infrastructure) HealthChecks() map[string]HealthCheck {
	checks := make(map[string]HealthCheck)
	if i.Postgres != nil {
		checks["postgres"] = i.Postgres.HealthCheck
	}
	if i.Redis != nil {
		checks["redis"] = i.Redis.Ping
	}
	if i.MinIO != nil {
		checks["minio"] = func(ctx context.Context) error {
			_, err := i.MinIO.HealthCheck(ctx)
			return err
		}
	}
	if i.OpenSearch != nil {
		checks["opensearch"] = i.OpenSearch.Ping
	}
	if i.Neo4j != nil {
		checks["neo4j"] = i.Neo4j.HealthCheck
	}
	return checks
}

// Close releases every connected client.  Errors are logged.
func (i *Infrastructure) Close() {
	closeQuietly := func(name string, fn func() error) {
		if err := fn(); err != nil {
			i.Logger.Warn("close failed", logging.String("component", name), logging.Err(err))
		}
	}
	if i.Producer != nil {
		closeQuietly("kafka", i.Producer.Close)
	}
	if i.OpenSearch != nil {
		closeQuietly("opensearch", i.OpenSearch.Close)
	}
	if i.Neo4j != nil {
		closeQuietly("neo4j", func() error { return i.Neo4j.Close(context.Background()) })
	}
	if i.Redis != nil {
		closeQuietly("redis", i.Redis.Close)
	}
	if i.Postgres != nil {
		closeQuietly("postgres", i.Postgres.Close)
	}
}
