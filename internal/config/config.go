// Package config defines the configuration structures of the catalog ETL.
// No I/O lives here; loading is in loader.go and defaults in defaults.go.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// LogConfig mirrors logging.LogConfig.
type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Format      string   `mapstructure:"format"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// SourceConfig describes how the catalog CSV is read.
type SourceConfig struct {
	// Location is a local path or s3://bucket/key.  May be overridden on the
	// command line.
	Location     string `mapstructure:"location"`
	Delimiter    string `mapstructure:"delimiter"`
	DecimalComma bool   `mapstructure:"decimal_comma"`
	// FillUnknown replaces empty Brand/Name/Concentration/Manufacturer with
	// "Unknown" at load time.
	FillUnknown bool `mapstructure:"fill_unknown"`
}

// WeightsConfig holds the composite score weights.
type WeightsConfig struct {
	Obscurity  float64 `mapstructure:"obscurity"`
	Gender     float64 `mapstructure:"gender"`
	NoteCount  float64 `mapstructure:"note_count"`
	NoteRarity float64 `mapstructure:"note_rarity"`
}

// Sum returns the total weight.
func (w WeightsConfig) Sum() float64 {
	return w.Obscurity + w.Gender + w.NoteCount + w.NoteRarity
}

// ScoringConfig holds the eligibility gate and score weights.  A nil
// GenderDefault selects DefaultGenderScore; zero is a valid setting.
type ScoringConfig struct {
	Threshold         int           `mapstructure:"threshold"`
	FallbackThreshold int           `mapstructure:"fallback_threshold"`
	MinEligible       int           `mapstructure:"min_eligible"`
	GenderDefault     *float64      `mapstructure:"gender_default"`
	Weights           WeightsConfig `mapstructure:"weights"`
}

// NotesConfig holds the note-cleaning vocabulary.  Empty lists select the
// built-in vocabulary of the perfume package.
type NotesConfig struct {
	Qualifiers []string `mapstructure:"qualifiers"`
	Prefixes   []string `mapstructure:"prefixes"`
}

// ReportConfig controls the dedup exclusion report.
type ReportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Dir       string `mapstructure:"dir"`
	MaxGroups int    `mapstructure:"max_groups"`
}

// PipelineConfig holds the ETL tunables.
type PipelineConfig struct {
	Source            SourceConfig  `mapstructure:"source"`
	Scoring           ScoringConfig `mapstructure:"scoring"`
	Notes             NotesConfig   `mapstructure:"notes"`
	Report            ReportConfig  `mapstructure:"report"`
	BatchSize         int           `mapstructure:"batch_size"`
	LookupConcurrency int           `mapstructure:"lookup_concurrency"`
	ModelVersion      int           `mapstructure:"model_version"`
	SlowStage         time.Duration `mapstructure:"slow_stage"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MigrationPath    string        `mapstructure:"migration_path"`
}

// RedisConfig holds the lookup cache tier parameters.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	PoolSize  int           `mapstructure:"pool_size"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// MinIOConfig holds object storage parameters.
type MinIOConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UseSSL       bool   `mapstructure:"use_ssl"`
	Region       string `mapstructure:"region"`
	ReportBucket string `mapstructure:"report_bucket"`
}

// KafkaConfig holds event transport parameters.
type KafkaConfig struct {
	Enabled              bool          `mapstructure:"enabled"`
	Brokers              []string      `mapstructure:"brokers"`
	GroupID              string        `mapstructure:"group_id"`
	RunCompletedTopic    string        `mapstructure:"run_completed_topic"`
	ImportRequestedTopic string        `mapstructure:"import_requested_topic"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
}

// OpenSearchConfig holds the autocomplete index parameters.
type OpenSearchConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	BulkSize  int      `mapstructure:"bulk_size"`
}

// Neo4jConfig holds the catalog graph parameters.
type Neo4jConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URI      string `mapstructure:"uri"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// ServerConfig holds the worker's ops HTTP server parameters.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Neo4j      Neo4jConfig      `mapstructure:"neo4j"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Server     ServerConfig     `mapstructure:"server"`
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	p := c.Pipeline
	if len([]rune(p.Source.Delimiter)) != 1 {
		return fmt.Errorf("config: pipeline.source.delimiter must be a single character, got %q", p.Source.Delimiter)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("config: pipeline.batch_size must be positive")
	}
	if p.LookupConcurrency <= 0 {
		return fmt.Errorf("config: pipeline.lookup_concurrency must be positive")
	}
	if p.ModelVersion <= 0 {
		return fmt.Errorf("config: pipeline.model_version must be positive")
	}

	s := p.Scoring
	if s.FallbackThreshold > s.Threshold {
		return fmt.Errorf("config: scoring.fallback_threshold (%d) exceeds threshold (%d)", s.FallbackThreshold, s.Threshold)
	}
	if g := s.GenderDefault; g != nil && (*g < 0 || *g > 1) {
		return fmt.Errorf("config: scoring.gender_default must be within [0,1]")
	}
	w := s.Weights
	if w.Obscurity < 0 || w.Gender < 0 || w.NoteCount < 0 || w.NoteRarity < 0 {
		return fmt.Errorf("config: scoring.weights must be non-negative")
	}
	if math.Abs(w.Sum()-1) > 1e-6 {
		return fmt.Errorf("config: scoring.weights must sum to 1, got %.4f", w.Sum())
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers required when kafka is enabled")
		}
		if strings.TrimSpace(c.Kafka.RunCompletedTopic) == "" {
			return fmt.Errorf("config: kafka.run_completed_topic required when kafka is enabled")
		}
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.ReportBucket == "") {
		return fmt.Errorf("config: minio.endpoint and minio.report_bucket required when minio is enabled")
	}
	if c.OpenSearch.Enabled && len(c.OpenSearch.Addresses) == 0 {
		return fmt.Errorf("config: opensearch.addresses required when opensearch is enabled")
	}
	if c.Neo4j.Enabled && c.Neo4j.URI == "" {
		return fmt.Errorf("config: neo4j.uri required when neo4j is enabled")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port out of range")
	}
	return nil
}
