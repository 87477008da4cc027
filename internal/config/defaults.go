package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultDelimiter         = ";"
	DefaultBatchSize         = 100
	DefaultLookupConcurrency = 8
	DefaultModelVersion      = 1
	DefaultSlowStage         = 30 * time.Second
	DefaultReportDir         = "reports"
	DefaultReportMaxGroups   = 100

	DefaultThreshold         = 400
	DefaultFallbackThreshold = 10
	DefaultMinEligible       = 50
	DefaultGenderScore       = 0.5

	DefaultWeightObscurity  = 0.40
	DefaultWeightGender     = 0.30
	DefaultWeightNoteCount  = 0.15
	DefaultWeightNoteRarity = 0.15

	DefaultDBHost          = "localhost"
	DefaultDBPort          = 5432
	DefaultDBName          = "fragrances"
	DefaultDBMaxOpenConns  = 10
	DefaultDBMaxIdleConns  = 5
	DefaultDBConnLifetime  = 30 * time.Minute
	DefaultMigrationPath   = "migrations"
	DefaultStatementTimout = 60 * time.Second

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "fragetl:lookup:"
	DefaultRedisTTL       = 24 * time.Hour

	DefaultMinIOEndpoint     = "localhost:9000"
	DefaultMinIOReportBucket = "etl-reports"

	DefaultKafkaBroker          = "localhost:9092"
	DefaultKafkaGroupID         = "fragetl-worker"
	DefaultRunCompletedTopic    = "catalog.run.completed"
	DefaultImportRequestedTopic = "catalog.import.requested"
	DefaultKafkaWriteTimeout    = 10 * time.Second

	DefaultOpenSearchIndex    = "perfumes-autocomplete"
	DefaultOpenSearchBulkSize = 500

	DefaultNeo4jURI = "bolt://localhost:7687"

	DefaultMetricsNamespace = "fragetl"

	DefaultServerPort            = 8081
	DefaultServerMode            = "release"
	DefaultServerShutdownTimeout = 15 * time.Second
)

// ApplyDefaults fills zero-value fields in cfg.  Explicit values always win.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	p := &cfg.Pipeline
	if p.Source.Delimiter == "" {
		p.Source.Delimiter = DefaultDelimiter
	}
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.LookupConcurrency == 0 {
		p.LookupConcurrency = DefaultLookupConcurrency
	}
	if p.ModelVersion == 0 {
		p.ModelVersion = DefaultModelVersion
	}
	if p.SlowStage == 0 {
		p.SlowStage = DefaultSlowStage
	}
	if p.Report.Dir == "" {
		p.Report.Dir = DefaultReportDir
	}
	if p.Report.MaxGroups == 0 {
		p.Report.MaxGroups = DefaultReportMaxGroups
	}

	// ── Scoring ───────────────────────────────────────────────────────────────
	s := &p.Scoring
	if s.Threshold == 0 {
		s.Threshold = DefaultThreshold
	}
	if s.FallbackThreshold == 0 {
		s.FallbackThreshold = DefaultFallbackThreshold
	}
	if s.MinEligible == 0 {
		s.MinEligible = DefaultMinEligible
	}
	if s.GenderDefault == nil {
		g := DefaultGenderScore
		s.GenderDefault = &g
	}
	// Weights are applied as a set; a partially written block is left for
	// Validate to reject.
	if s.Weights == (WeightsConfig{}) {
		s.Weights = WeightsConfig{
			Obscurity:  DefaultWeightObscurity,
			Gender:     DefaultWeightGender,
			NoteCount:  DefaultWeightNoteCount,
			NoteRarity: DefaultWeightNoteRarity,
		}
	}

	// ── Database ──────────────────────────────────────────────────────────────
	d := &cfg.Database
	if d.Host == "" {
		d.Host = DefaultDBHost
	}
	if d.Port == 0 {
		d.Port = DefaultDBPort
	}
	if d.DBName == "" {
		d.DBName = DefaultDBName
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}
	if d.MaxOpenConns == 0 {
		d.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = DefaultDBConnLifetime
	}
	if d.StatementTimeout == 0 {
		d.StatementTimeout = DefaultStatementTimout
	}
	if d.MigrationPath == "" {
		d.MigrationPath = DefaultMigrationPath
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = DefaultRedisTTL
	}

	// ── MinIO ─────────────────────────────────────────────────────────────────
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.ReportBucket == "" {
		cfg.MinIO.ReportBucket = DefaultMinIOReportBucket
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.RunCompletedTopic == "" {
		cfg.Kafka.RunCompletedTopic = DefaultRunCompletedTopic
	}
	if cfg.Kafka.ImportRequestedTopic == "" {
		cfg.Kafka.ImportRequestedTopic = DefaultImportRequestedTopic
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}

	// ── OpenSearch ────────────────────────────────────────────────────────────
	if cfg.OpenSearch.Index == "" {
		cfg.OpenSearch.Index = DefaultOpenSearchIndex
	}
	if cfg.OpenSearch.BulkSize == 0 {
		cfg.OpenSearch.BulkSize = DefaultOpenSearchBulkSize
	}

	// ── Neo4j ─────────────────────────────────────────────────────────────────
	if cfg.Neo4j.URI == "" {
		cfg.Neo4j.URI = DefaultNeo4jURI
	}

	// ── Metrics / server ──────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
}
