package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "FRAGETL"

// envKeys are bound explicitly so that FRAGETL_* variables resolve even when
// the key is absent from the config file.
var envKeys = []string{
	"log.level", "log.format",
	"pipeline.source.location", "pipeline.source.delimiter",
	"pipeline.batch_size", "pipeline.lookup_concurrency", "pipeline.model_version",
	"pipeline.report.dir",
	"database.host", "database.port", "database.user", "database.password",
	"database.db_name", "database.ssl_mode", "database.migration_path",
	"redis.enabled", "redis.addr", "redis.password", "redis.db",
	"minio.enabled", "minio.endpoint", "minio.access_key", "minio.secret_key", "minio.report_bucket",
	"kafka.enabled", "kafka.brokers", "kafka.group_id",
	"opensearch.enabled", "opensearch.addresses", "opensearch.username", "opensearch.password",
	"neo4j.enabled", "neo4j.uri", "neo4j.user", "neo4j.password",
	"metrics.enabled", "server.port",
}

// newViper builds a Viper instance with YAML type, FRAGETL_ env prefix and
// "." → "_" key mapping (database.host → FRAGETL_DATABASE_HOST).
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Booleans whose zero value is not the default.
	v.SetDefault("pipeline.source.decimal_comma", true)
	v.SetDefault("pipeline.source.fill_unknown", true)
	v.SetDefault("pipeline.report.enabled", true)
	v.SetDefault("metrics.enabled", true)
	return v
}

// Load reads the YAML file at configPath, merges FRAGETL_* overrides, applies
// defaults and validates.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from FRAGETL_* variables and defaults only.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// LoadOrEnv loads configPath when non-empty and falls back to LoadFromEnv.
func LoadOrEnv(configPath string) (*Config, error) {
	if configPath == "" {
		return LoadFromEnv()
	}
	return Load(configPath)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// Watch re-parses configPath on every write and hands the new Config to
// onChange.  Invalid revisions are reported to onError and otherwise
// ignored.  The worker uses it to hot-swap the log level.
func Watch(configPath string, onChange func(*Config), onError func(error)) {
	v := newViper()
	v.SetConfigFile(configPath)
	_ = v.ReadInConfig()

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}

// MustLoad is Load that panics on error.  main() only.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
