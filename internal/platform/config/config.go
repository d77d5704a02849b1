// Package config loads lineage configuration from an optional YAML file with
// LINEAGE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DevSigningKey is accepted only when Environment is "development".
const DevSigningKey = "dev-secret-key-change-in-production"

type Config struct {
	Environment string     `mapstructure:"environment"`
	Server      Server     `mapstructure:"server"`
	Auth        Auth       `mapstructure:"auth"`
	Database    Database   `mapstructure:"database"`
	Redis       Redis      `mapstructure:"redis"`
	Kafka       Kafka      `mapstructure:"kafka"`
	Audit       Audit      `mapstructure:"audit"`
	Duplicates  Duplicates `mapstructure:"duplicates"`
	RateLimit   RateLimit  `mapstructure:"rate_limit"`
	Log         Log        `mapstructure:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `mapstructure:"addr"`
	AdminToken      string        `mapstructure:"admin_token"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type Auth struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	Issuer        string `mapstructure:"issuer"`
	Audience      string `mapstructure:"audience"`
}

// Database selects postgres when URL is set; otherwise stores are in memory.
type Database struct {
	URL            string        `mapstructure:"url"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	TxTimeout      time.Duration `mapstructure:"tx_timeout"`
	MigrateOnStart bool          `mapstructure:"migrate_on_start"`
}

type Redis struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Kafka configures the audit outbox relay. Empty Brokers disables it.
type Kafka struct {
	Brokers       []string      `mapstructure:"brokers"`
	AuditTopic    string        `mapstructure:"audit_topic"`
	Partitions    int32         `mapstructure:"partitions"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
	RelayBatch    int           `mapstructure:"relay_batch"`
}

type Audit struct {
	BufferSize       int           `mapstructure:"buffer_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseBackoff      time.Duration `mapstructure:"base_backoff"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

type Duplicates struct {
	MaxScanPersons int           `mapstructure:"max_scan_persons"`
	ScanWorkers    int           `mapstructure:"scan_workers"`
	SummaryTTL     time.Duration `mapstructure:"summary_ttl"`
}

// RateLimit caps authenticated requests per caller and window. Limits are
// per request class; scans have their own, tighter budget.
type RateLimit struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
	Read    int           `mapstructure:"read"`
	Write   int           `mapstructure:"write"`
	Scan    int           `mapstructure:"scan"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("auth.jwt_signing_key", DevSigningKey)
	v.SetDefault("auth.issuer", "lineage")
	v.SetDefault("auth.audience", "lineage-api")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.tx_timeout", 5*time.Second)
	v.SetDefault("database.migrate_on_start", false)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.audit_topic", "lineage.audit")
	v.SetDefault("kafka.partitions", 3)
	v.SetDefault("kafka.relay_interval", 2*time.Second)
	v.SetDefault("kafka.relay_batch", 100)

	v.SetDefault("audit.buffer_size", 1024)
	v.SetDefault("audit.max_attempts", 3)
	v.SetDefault("audit.base_backoff", 50*time.Millisecond)
	v.SetDefault("audit.failure_threshold", 5)
	v.SetDefault("audit.cooldown", 30*time.Second)

	v.SetDefault("duplicates.max_scan_persons", 5000)
	v.SetDefault("duplicates.scan_workers", 4)
	v.SetDefault("duplicates.summary_ttl", time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.read", 300)
	v.SetDefault("rate_limit.write", 60)
	v.SetDefault("rate_limit.scan", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. path may name a config file; when empty,
// ./config.yaml is used if present.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LINEAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot run safely.
func (c Config) Validate() error {
	if c.Auth.JWTSigningKey == "" {
		return errors.New("auth.jwt_signing_key is required")
	}
	if c.Auth.JWTSigningKey == DevSigningKey && c.Environment != "development" {
		return errors.New("auth.jwt_signing_key must be set outside development")
	}
	if c.Duplicates.ScanWorkers <= 0 {
		return errors.New("duplicates.scan_workers must be positive")
	}
	if c.Duplicates.MaxScanPersons <= 1 {
		return errors.New("duplicates.max_scan_persons must be greater than 1")
	}
	if c.RateLimit.Enabled && (c.RateLimit.Window <= 0 || c.RateLimit.Read <= 0 || c.RateLimit.Write <= 0 || c.RateLimit.Scan <= 0) {
		return errors.New("rate_limit window and limits must be positive when enabled")
	}
	if len(c.Kafka.Brokers) > 0 && c.Database.URL == "" {
		return errors.New("kafka audit relay requires database.url")
	}
	return nil
}
