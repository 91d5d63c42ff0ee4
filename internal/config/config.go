// Package config provides configuration management for the ISERN collaboration graph.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dport96/ISERN-Graph/internal/matching"
	"github.com/dport96/ISERN-Graph/internal/names"
	"github.com/dport96/ISERN-Graph/internal/observability"
	"github.com/dport96/ISERN-Graph/internal/roster"
	"github.com/dport96/ISERN-Graph/internal/similarity"
)

// EnvPrefix is the prefix of every environment variable the loader reads.
const EnvPrefix = "ISERN"

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the ISERN graph tooling.
type Config struct {
	// Server contains HTTP API settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Matching contains name similarity and match decision settings.
	Matching MatchingConfig `mapstructure:"matching"`
	// Roster contains the member roster location and founder set.
	Roster RosterConfig `mapstructure:"roster"`
	// Discovery contains collaboration discovery settings.
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	// Sources contains publication source configurations.
	Sources SourcesConfig `mapstructure:"sources"`
	// Events contains Kafka settings for run lifecycle events.
	Events EventsConfig `mapstructure:"events"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP API port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 10).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 1).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// MatchingConfig holds the tunables of the similarity engine and the match decision.
type MatchingConfig struct {
	// Threshold is the minimum fused score for two names to denote the same person.
	Threshold float64 `mapstructure:"threshold"`
	// Weights are the fusion weights of the four similarity signals.
	Weights similarity.Weights `mapstructure:"weights"`
	// Phonetic selects the surname encoder (soundex, metaphone, nysiis).
	Phonetic string `mapstructure:"phonetic"`
	// Nicknames adds nickname -> canonical given name pairs to the built-in table.
	Nicknames map[string]string `mapstructure:"nicknames"`
}

// RosterConfig locates the member roster.
type RosterConfig struct {
	// Path is the roster file (JSON or YAML).
	Path string `mapstructure:"path"`
	// Founders are the member IDs or display names at ISERN distance 0.
	Founders []string `mapstructure:"founders"`
}

// DiscoveryConfig holds collaboration discovery settings.
type DiscoveryConfig struct {
	// Workers is the number of members queried concurrently.
	Workers int `mapstructure:"workers"`
	// RequireAuthorMatch skips publications on which no author resolves to the queried member.
	RequireAuthorMatch bool `mapstructure:"require_author_match"`
	// RecordContext keeps unresolved coauthors as non-member context nodes.
	RecordContext bool `mapstructure:"record_context"`
	// MaxPublications caps publications consumed per member (0 means no cap).
	MaxPublications int `mapstructure:"max_publications"`
	// TopK is the length of the centrality rankings in the network summary.
	TopK int `mapstructure:"top_k"`
}

// SourcesConfig holds publication source configurations.
type SourcesConfig struct {
	// DBLP contains DBLP search API settings.
	DBLP DBLPConfig `mapstructure:"dblp"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex OpenAlexConfig `mapstructure:"openalex"`
	// Static contains the offline publication file settings.
	Static StaticConfig `mapstructure:"static"`
	// Breaker tunes the per-source circuit breakers of the remote sources.
	Breaker BreakerConfig `mapstructure:"breaker"`
}

// BreakerConfig holds circuit breaker settings shared by the remote sources.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"`
}

// DBLPConfig holds DBLP settings.
type DBLPConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	MaxResults   int           `mapstructure:"max_results"`
	MaxVariants  int           `mapstructure:"max_variants"`
	AuthorSearch bool          `mapstructure:"author_search"`
}

// OpenAlexConfig holds OpenAlex settings.
type OpenAlexConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	// Email joins the OpenAlex polite pool (e.g. ISERN_SOURCES_OPENALEX_EMAIL).
	Email      string        `mapstructure:"email"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	MaxResults int           `mapstructure:"max_results"`
	MaxAuthors int           `mapstructure:"max_authors"`
}

// StaticConfig points at a JSON or YAML publication list.
type StaticConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// EventsConfig holds Kafka publisher settings for run lifecycle events.
type EventsConfig struct {
	// Enabled controls whether run events are published.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// Topic receives run.started, run.completed and run.failed events.
	Topic string `mapstructure:"topic"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// Observability converts the logging section to the logger's own config type.
func (c LoggingConfig) Observability() observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:      c.Level,
		Format:     c.Format,
		Output:     c.Output,
		AddSource:  c.AddSource,
		TimeFormat: c.TimeFormat,
	}
}

// Similarity converts the matching section into an engine configuration.
func (c MatchingConfig) Similarity() similarity.Config {
	return similarity.Config{
		Weights:   c.Weights,
		Phonetic:  similarity.PhoneticAlgorithm(c.Phonetic),
		Nicknames: names.NewNicknames(c.Nicknames),
	}
}

// Load loads configuration from environment variables and config files found in the
// default search paths.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration like Load but reads path when it is non-empty. A missing
// explicit file is an error; a missing file in the search paths is not.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/isern-graph")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Config file not found is OK, we'll use env vars and defaults
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields that AutomaticEnv does not bind because no default
// or file key exists for them.
func loadSecrets(cfg *Config) {
	if pw := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); pw != "" {
		cfg.Database.Password = pw
	}
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "isern")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "isern_graph")
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "isern")

	// Matching defaults
	w := similarity.DefaultWeights()
	v.SetDefault("matching.threshold", 0.85)
	v.SetDefault("matching.weights.phonetic", w.Phonetic)
	v.SetDefault("matching.weights.edit_distance", w.EditDistance)
	v.SetDefault("matching.weights.token_set", w.TokenSet)
	v.SetDefault("matching.weights.initials", w.Initials)
	v.SetDefault("matching.phonetic", string(similarity.PhoneticSoundex))

	// Roster defaults
	v.SetDefault("roster.path", "isern_members.json")
	v.SetDefault("roster.founders", roster.DefaultFounders)

	// Discovery defaults
	v.SetDefault("discovery.workers", 4)
	v.SetDefault("discovery.require_author_match", true)
	v.SetDefault("discovery.record_context", true)
	v.SetDefault("discovery.max_publications", 0)
	v.SetDefault("discovery.top_k", 10)

	// Source defaults - DBLP
	v.SetDefault("sources.dblp.enabled", true)
	v.SetDefault("sources.dblp.base_url", "https://dblp.org")
	v.SetDefault("sources.dblp.timeout", "30s")
	v.SetDefault("sources.dblp.rate_limit", 1.0) // the public mirror throttles bursts
	v.SetDefault("sources.dblp.max_results", 1000)
	v.SetDefault("sources.dblp.max_variants", 6)
	v.SetDefault("sources.dblp.author_search", true)

	// Source defaults - OpenAlex
	v.SetDefault("sources.openalex.enabled", false)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.email", "")
	v.SetDefault("sources.openalex.timeout", "30s")
	v.SetDefault("sources.openalex.rate_limit", 10.0)
	v.SetDefault("sources.openalex.max_results", 500)
	v.SetDefault("sources.openalex.max_authors", 3)

	// Source defaults - static file
	v.SetDefault("sources.static.enabled", false)
	v.SetDefault("sources.static.path", "")

	v.SetDefault("sources.breaker.failure_threshold", 5)
	v.SetDefault("sources.breaker.cooldown", "1m")

	// Events defaults
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "isern.runs")
	v.SetDefault("events.batch_size", 100)
	v.SetDefault("events.batch_timeout", "10ms")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server port
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	// Validate database config
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate matching config
	if err := matching.ValidateThreshold(c.Matching.Threshold); err != nil {
		return fmt.Errorf("matching threshold: %w", err)
	}
	if err := c.Matching.Weights.Validate(); err != nil {
		return fmt.Errorf("matching weights: %w", err)
	}
	if _, err := similarity.ParsePhoneticAlgorithm(c.Matching.Phonetic); err != nil {
		return fmt.Errorf("matching phonetic: %w", err)
	}

	// Validate discovery config
	if c.Discovery.Workers <= 0 {
		return fmt.Errorf("discovery workers must be positive")
	}
	if c.Discovery.MaxPublications < 0 {
		return fmt.Errorf("discovery max_publications must not be negative")
	}

	// Validate sources
	if c.Sources.Static.Enabled && c.Sources.Static.Path == "" {
		return fmt.Errorf("static source path is required when the static source is enabled")
	}
	if c.Sources.DBLP.Enabled && c.Sources.DBLP.RateLimit <= 0 {
		return fmt.Errorf("dblp rate_limit must be positive")
	}
	if c.Sources.OpenAlex.Enabled && c.Sources.OpenAlex.RateLimit <= 0 {
		return fmt.Errorf("openalex rate_limit must be positive")
	}
	if c.Sources.Breaker.Cooldown < 0 {
		return fmt.Errorf("sources breaker cooldown must not be negative")
	}

	// Validate events
	if c.Events.Enabled && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		return fmt.Errorf("events brokers and topic are required when events are enabled")
	}

	return nil
}
