package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/turtacn/fragrance-etl/internal/bootstrap"
	"github.com/turtacn/fragrance-etl/internal/config"
	"github.com/turtacn/fragrance-etl/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/fragrance-etl/internal/interfaces/worker"

	redisclient "github.com/turtacn/fragrance-etl/internal/infrastructure/database/redis"
	kafkaclient "github.com/turtacn/fragrance-etl/internal/infrastructure/messaging/kafka"
	opshttp "github.com/turtacn/fragrance-etl/internal/interfaces/http"
)

var version = "dev"

const (
	defaultStartupTimeout = time.Minute
	defaultDrainTimeout   = 5 * time.Minute

	// The run lock is kept alive by its watchdog; a crashed holder frees it
	// after importLockTTL.  A waiting worker retries for about ten minutes.
	importLockTTL        = time.Minute
	importLockRetryDelay = 2 * time.Second
	importLockRetries    = 300
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: FRAGETL_* env only)")
	replication := flag.Int("replication", 1, "replication factor of topics created at startup")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogger(logging.LogConfig{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		OutputPaths: cfg.Log.OutputPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer logger.Sync()

	if *configPath != "" {
		watchLogLevel(*configPath, logger)
	}

	if !cfg.Kafka.Enabled {
		logger.Error("kafka is disabled; the worker has nothing to consume")
		os.Exit(1)
	}

	logger.Info("starting fragrance-etl worker",
		logging.String("version", version),
		logging.String("topic", cfg.Kafka.ImportRequestedTopic),
		logging.String("group", cfg.Kafka.GroupID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize infrastructure
	startCtx, startCancel := context.WithTimeout(ctx, defaultStartupTimeout)
	infra, err := bootstrap.Open(startCtx, cfg, logger, bootstrap.Options{Store: true, Sinks: true, Producer: true})
	if err != nil {
		startCancel()
		logger.Error("failed to initialize infrastructure", logging.Err(err))
		os.Exit(1)
	}
	defer infra.Close()

	if err := ensureTopics(startCtx, cfg, *replication, logger); err != nil {
		startCancel()
		logger.Error("failed to provision topics", logging.Err(err))
		os.Exit(1)
	}

	handler := buildImportHandler(infra, infra.BuildPipeline(startCtx, false), logger)
	startCancel()

	// Create Kafka consumer
	consumer, err := kafkaclient.NewConsumer(kafkaclient.ConsumerConfigFrom(cfg.Kafka), logger)
	if err != nil {
		logger.Error("failed to create Kafka consumer", logging.Err(err))
		os.Exit(1)
	}
	consumer.Subscribe(cfg.Kafka.ImportRequestedTopic, handler.Handle)

	// Start ops server
	opsSrv := opshttp.NewServer(cfg.Server, opshttp.NewRouter(opshttp.RouterConfigFrom(infra, version)), logger)
	srvErr := make(chan error, 1)
	go func() { srvErr <- opsSrv.Start() }()

	if err := consumer.Start(ctx); err != nil {
		logger.Error("failed to start Kafka consumer", logging.Err(err))
		os.Exit(1)
	}
	logger.Info("worker started", logging.Strings("components", infra.Components()))

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", logging.String("signal", sig.String()))
	case err := <-srvErr:
		if err != nil {
			logger.Error("ops server failed", logging.Err(err))
		}
	}

	// Initiate graceful shutdown; an in-flight import sees ctx cancelled.
	cancel()

	done := make(chan struct{})
	go func() {
		if err := consumer.Close(); err != nil {
			logger.Error("consumer close error", logging.Err(err))
		}
		close(done)
	}()

	select {
	case <-done:
		logger.Info("consumer drained", logging.Int64("processed", consumer.Processed()))
	case <-time.After(defaultDrainTimeout):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	if err := opsSrv.Stop(context.Background()); err != nil {
		logger.Error("ops server shutdown error", logging.Err(err))
	}

	logger.Info("fragrance-etl worker stopped")
}

// watchLogLevel applies log.level edits of the config file without a restart.
func watchLogLevel(configPath string, logger logging.Logger) {
	config.Watch(configPath, func(c *config.Config) {
		changed, err := logging.SetLevel(logger, c.Log.Level)
		if err != nil {
			logger.Warn("ignoring log level change", logging.Err(err))
			return
		}
		if changed {
			logger.Info("log level changed", logging.String("level", c.Log.Level))
		}
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", logging.Err(err))
	})
}

func ensureTopics(ctx context.Context, cfg *config.Config, replication int, logger logging.Logger) error {
	tm, err := kafkaclient.NewTopicManager(cfg.Kafka.Brokers, logger)
	if err != nil {
		return err
	}
	defer tm.Close()
	return tm.EnsureTopics(ctx, kafkaclient.DefaultTopics(cfg.Kafka.RunCompletedTopic, cfg.Kafka.ImportRequestedTopic, replication))
}

func buildImportHandler(infra *bootstrap.Infrastructure, runner worker.Runner, logger logging.Logger) *worker.ImportHandler {
	var opts []worker.ImportOption
	if infra.Redis != nil {
		mutex := redisclient.NewMutex(infra.Redis, infra.Config.Redis.KeyPrefix, worker.ImportLockName, logger,
			redisclient.WithLockTTL(importLockTTL),
			redisclient.WithWatchdog(0),
			redisclient.WithRetryDelay(importLockRetryDelay),
			redisclient.WithRetryCount(importLockRetries))
		opts = append(opts, worker.WithLock(mutex))
	} else {
		logger.Warn("redis disabled; imports are not serialized across workers")
	}
	if infra.Metrics != nil {
		opts = append(opts, worker.WithRecorder(infra.Metrics))
	}
	return worker.NewImportHandler(runner, logger, opts...)
}
