package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sonopix/features"
	"sonopix/pkg/carrier"
	"sonopix/pkg/imagecodec"
	"sonopix/pkg/progress"

	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Config holds application configuration for the sonopix CLI and server
type Config struct {
	// Service identification
	Service ServiceConfig `mapstructure:"service"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Pipeline configuration
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Carrier sizing
	Carrier carrier.Layout `mapstructure:"carrier"`

	// Asynchronous job configuration
	Jobs JobsConfig `mapstructure:"jobs"`

	// Database configuration (audit log)
	Database DatabaseConfig `mapstructure:"database"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Security configuration
	Security SecurityConfig `mapstructure:"security"`

	// Observability configuration
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ServiceConfig identifies the service
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // dev, staging, production
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	GracefulStop   time.Duration `mapstructure:"graceful_stop"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	TLS            TLSConfig     `mapstructure:"tls"`
}

// TLSConfig holds TLS/SSL settings
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// PipelineConfig holds progress weighting and output settings
type PipelineConfig struct {
	EncryptWeights progress.Plan `mapstructure:"encrypt_weights"`
	DecryptWeights progress.Plan `mapstructure:"decrypt_weights"`
	Format         string        `mapstructure:"format"` // png, bmp, qoi
	StrictDecode   bool          `mapstructure:"strict_decode"`
}

// JobsConfig holds asynchronous job settings
type JobsConfig struct {
	Store         string        `mapstructure:"store"` // memory, redis
	TTL           time.Duration `mapstructure:"ttl"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Redis         RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres; empty disables the audit log
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, stderr, file path
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	RateLimiting RateLimitConfig `mapstructure:"rate_limiting"`
	CORS         CORSConfig      `mapstructure:"cors"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	RequestsPerMin int  `mapstructure:"requests_per_min"`
	Burst          int  `mapstructure:"burst"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposeHeaders    []string      `mapstructure:"expose_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"` // Prometheus endpoint
	Path    string `mapstructure:"path"`
}

// TracingConfig holds distributed tracing settings
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Provider    string `mapstructure:"provider"` // otlp
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// Load loads configuration from multiple sources with precedence:
// 1. Command line flags (highest priority)
// 2. Environment variables
// 3. Config file
// 4. Default values (lowest priority)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sonopix")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/sonopix/")
		v.AddConfigPath("$HOME/.sonopix")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SONOPIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	applyFeatureFlags(&cfg)

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables and defaults
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func weightDefaults(plan progress.Plan) []map[string]interface{} {
	return lo.Map(plan, func(w progress.Weight, _ int) map[string]interface{} {
		return map[string]interface{}{"stage": string(w.Stage), "weight": w.Weight}
	})
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Service defaults
	v.SetDefault("service.name", "sonopix")
	v.SetDefault("service.version", "1.0.0")
	v.SetDefault("service.environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "300s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.graceful_stop", "30s")
	v.SetDefault("server.max_upload_bytes", 256<<20)
	v.SetDefault("server.tls.enabled", false)

	// Pipeline defaults
	v.SetDefault("pipeline.encrypt_weights", weightDefaults(progress.DefaultEncryptPlan()))
	v.SetDefault("pipeline.decrypt_weights", weightDefaults(progress.DefaultDecryptPlan()))
	v.SetDefault("pipeline.format", string(imagecodec.FormatPNG))
	v.SetDefault("pipeline.strict_decode", false)

	// Carrier defaults
	layout := carrier.DefaultLayout()
	v.SetDefault("carrier.min_side", layout.MinSide)
	v.SetDefault("carrier.row_alignment", layout.RowAlignment)
	v.SetDefault("carrier.side_multiplier", layout.SideMultiplier)
	v.SetDefault("carrier.max_pixels", layout.MaxPixels)

	// Jobs defaults
	v.SetDefault("jobs.store", "memory")
	v.SetDefault("jobs.ttl", "1h")
	v.SetDefault("jobs.max_concurrent", 4)
	v.SetDefault("jobs.redis.address", "localhost:6379")
	v.SetDefault("jobs.redis.db", 0)
	v.SetDefault("jobs.redis.prefix", "sonopix:jobs:")

	// Database defaults; the audit log stays off until a driver is set
	v.SetDefault("database.driver", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "sonopix")
	v.SetDefault("database.user", "sonopix")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "5m")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	// Security defaults
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_min", 30)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.cors.enabled", true)
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "DELETE", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"Content-Type"})
	v.SetDefault("security.cors.expose_headers", []string{"Content-Disposition", "X-Sonopix-Format"})

	// Observability defaults
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.address", ":9090")
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.tracing.enabled", false)
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name is required")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if cfg.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}

	if cfg.Server.TLS.Enabled {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
		}
		if !fileExists(cfg.Server.TLS.CertFile) {
			return fmt.Errorf("TLS certificate file not found: %s", cfg.Server.TLS.CertFile)
		}
		if !fileExists(cfg.Server.TLS.KeyFile) {
			return fmt.Errorf("TLS key file not found: %s", cfg.Server.TLS.KeyFile)
		}
	}

	if err := cfg.Pipeline.EncryptWeights.Validate(); err != nil {
		return fmt.Errorf("pipeline.encrypt_weights: %w", err)
	}
	if err := cfg.Pipeline.DecryptWeights.Validate(); err != nil {
		return fmt.Errorf("pipeline.decrypt_weights: %w", err)
	}
	if _, err := imagecodec.ParseFormat(cfg.Pipeline.Format); err != nil {
		return fmt.Errorf("pipeline.format: %w", err)
	}

	if err := cfg.Carrier.Validate(); err != nil {
		return fmt.Errorf("carrier: %w", err)
	}

	switch cfg.Jobs.Store {
	case "memory":
	case "redis":
		if cfg.Jobs.Redis.Address == "" {
			return fmt.Errorf("jobs.redis.address is required when jobs.store is redis")
		}
	default:
		return fmt.Errorf("jobs.store must be memory or redis, got %q", cfg.Jobs.Store)
	}
	if cfg.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be at least 1")
	}

	if cfg.Database.Driver != "" {
		if cfg.Database.Driver != "postgres" {
			return fmt.Errorf("database.driver %q is not supported", cfg.Database.Driver)
		}
		if cfg.Database.Host == "" {
			return fmt.Errorf("database.host is required when database is configured")
		}
		if cfg.Database.Database == "" {
			return fmt.Errorf("database.database is required when database is configured")
		}
	}

	return nil
}

// GetDatabaseURL constructs a database connection URL from the config
func (c *Config) GetDatabaseURL() string {
	if c.Database.Driver == "" {
		return ""
	}

	return fmt.Sprintf("%s://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.Driver,
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetFormat returns the parsed default artifact format
func (c *Config) GetFormat() (imagecodec.Format, error) {
	return imagecodec.ParseFormat(c.Pipeline.Format)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Service.Environment == "development" || c.Service.Environment == "dev"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Service.Environment == "production" || c.Service.Environment == "prod"
}

// MaskSensitive returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitive() *Config {
	masked := *c
	masked.Database.Password = "***"
	masked.Jobs.Redis.Password = "***"
	return &masked
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	expandedPath := os.ExpandEnv(path)
	if !filepath.IsAbs(expandedPath) {
		return false
	}
	_, err := os.Stat(expandedPath)
	return err == nil
}

// applyFeatureFlags applies build-time feature flags to override configuration
func applyFeatureFlags(cfg *Config) {
	// Disable metrics if not enabled via feature flag
	if !features.ShouldEnableMetrics() {
		cfg.Observability.Metrics.Enabled = false
	}

	// Disable observability/tracing if not enabled via feature flag
	if !features.ShouldEnableObservability() {
		cfg.Observability.Tracing.Enabled = false
		cfg.Observability.Metrics.Enabled = false
	}

	// Apply short timeouts for demo/dev builds
	if features.ShouldUseShortTimeouts() {
		cfg.Server.ReadTimeout = 10 * time.Second
		cfg.Server.WriteTimeout = 30 * time.Second
		cfg.Server.IdleTimeout = 30 * time.Second
		cfg.Server.GracefulStop = 5 * time.Second
		cfg.Jobs.TTL = 10 * time.Minute
	}

	// Apply rate limiting if enabled
	if features.ShouldEnableRateLimiting() {
		cfg.Security.RateLimiting.Enabled = true
	}

	// Keep job state in process unless the redis-jobs build flag is set
	if !features.ShouldUseRedisJobs() {
		cfg.Jobs.Store = "memory"
		cfg.Jobs.Redis.Address = ""
		cfg.Jobs.Redis.Password = ""
	}

	// The audit log needs both a database and the audit feature
	if !features.ShouldEnableAudit() {
		cfg.Database.Driver = ""
	}
}
