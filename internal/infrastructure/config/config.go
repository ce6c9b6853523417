package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Auth        AuthConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
	Dispatcher  DispatcherConfig
	Sync        SyncConfig
	Credential  CredentialConfig
	Shopify     StorefrontConfig
	WooCommerce StorefrontConfig
	Warehouse   WarehouseConfig
	Policy      PolicyConfig
	Webhook     WebhookConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings. When disabled, locks fall back to in-process.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
}

// AuthConfig holds operator API authentication settings
type AuthConfig struct {
	Enabled        bool
	OperatorSecret string
	Issuer         string
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	DBSlowQueryThresh time.Duration
}

// ProfilingConfig holds Pyroscope continuous profiling configuration
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	// cpu, alloc_objects, alloc_space, inuse_objects, inuse_space, goroutines, mutex, block
	ProfileTypes         []string
	MutexProfileFraction int
	BlockProfileRate     int
	// SpanProfiles links CPU samples to trace spans; needs telemetry enabled
	SpanProfiles bool
}

// DispatcherConfig holds job queue worker settings
type DispatcherConfig struct {
	Enabled             bool
	BatchSize           int
	PollInterval        time.Duration
	StaleAfter          time.Duration // active jobs older than this are requeued
	MaintenanceInterval time.Duration
	CompletedRetention  time.Duration
	FailureBufferSize   int
}

// SyncConfig holds resolver and pipeline settings
type SyncConfig struct {
	ConflictWindow        time.Duration
	EchoWindow            time.Duration
	SharedTiePolicy       string // manual, keep_local, accept_incoming
	PipelineMaxRetries    int
	WarehousePollInterval time.Duration
	// PipelineLeaseTTL bounds how long a crashed instance keeps a pipeline claimed
	PipelineLeaseTTL time.Duration
	// PipelineRecoveryInterval is how often unclaimed IN_PROGRESS pipelines are picked up
	PipelineRecoveryInterval time.Duration
}

// CredentialConfig holds OAuth settings of the warehouse account
type CredentialConfig struct {
	TokenURL      string
	ClientID      string
	ClientSecret  string
	EncryptionKey string // base64, 32 bytes
	RefreshMargin time.Duration
	LockTTL       time.Duration
	LockWait      time.Duration
}

// StorefrontConfig holds settings for one storefront platform API
type StorefrontConfig struct {
	BaseURL           string
	APIToken          string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// WarehouseConfig holds settings for the fulfillment warehouse API
type WarehouseConfig struct {
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
}

// PolicyConfig points at the reviewable policy file
type PolicyConfig struct {
	TestOrderPolicyPath string
	Watch               bool
}

// WebhookConfig holds storefront webhook intake settings
type WebhookConfig struct {
	DedupeTTL         time.Duration // how long a delivery id is remembered
	RequestsPerSecond float64       // per channel
	Burst             int
}

// Load loads configuration from TOML file and environment variables
// Priority (highest to lowest):
// 1. Environment variables with SYNC_ prefix (e.g., SYNC_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
		},
		Auth: AuthConfig{
			Enabled:        v.GetBool("auth.enabled"),
			OperatorSecret: v.GetString("auth.operator_secret"),
			Issuer:         v.GetString("auth.issuer"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_thresh"),
		},
		Profiling: ProfilingConfig{
			Enabled:              v.GetBool("profiling.enabled"),
			ServerAddress:        v.GetString("profiling.server_address"),
			ApplicationName:      v.GetString("profiling.application_name"),
			BasicAuthUser:        v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword:    v.GetString("profiling.basic_auth_password"),
			ProfileTypes:         v.GetStringSlice("profiling.profile_types"),
			MutexProfileFraction: v.GetInt("profiling.mutex_profile_fraction"),
			BlockProfileRate:     v.GetInt("profiling.block_profile_rate"),
			SpanProfiles:         v.GetBool("profiling.span_profiles"),
		},
		Dispatcher: DispatcherConfig{
			Enabled:             !v.IsSet("dispatcher.enabled") || v.GetBool("dispatcher.enabled"),
			BatchSize:           v.GetInt("dispatcher.batch_size"),
			PollInterval:        v.GetDuration("dispatcher.poll_interval"),
			StaleAfter:          v.GetDuration("dispatcher.stale_after"),
			MaintenanceInterval: v.GetDuration("dispatcher.maintenance_interval"),
			CompletedRetention:  v.GetDuration("dispatcher.completed_retention"),
			FailureBufferSize:   v.GetInt("dispatcher.failure_buffer_size"),
		},
		Sync: SyncConfig{
			ConflictWindow:           v.GetDuration("sync.conflict_window"),
			EchoWindow:               v.GetDuration("sync.echo_window"),
			SharedTiePolicy:          v.GetString("sync.shared_tie_policy"),
			PipelineMaxRetries:       v.GetInt("sync.pipeline_max_retries"),
			WarehousePollInterval:    v.GetDuration("sync.warehouse_poll_interval"),
			PipelineLeaseTTL:         v.GetDuration("sync.pipeline_lease_ttl"),
			PipelineRecoveryInterval: v.GetDuration("sync.pipeline_recovery_interval"),
		},
		Credential: CredentialConfig{
			TokenURL:      v.GetString("credential.token_url"),
			ClientID:      v.GetString("credential.client_id"),
			ClientSecret:  v.GetString("credential.client_secret"),
			EncryptionKey: v.GetString("credential.encryption_key"),
			RefreshMargin: v.GetDuration("credential.refresh_margin"),
			LockTTL:       v.GetDuration("credential.lock_ttl"),
			LockWait:      v.GetDuration("credential.lock_wait"),
		},
		Shopify:     loadStorefront(v, "shopify"),
		WooCommerce: loadStorefront(v, "woocommerce"),
		Warehouse: WarehouseConfig{
			BaseURL:           v.GetString("warehouse.base_url"),
			RequestsPerSecond: v.GetFloat64("warehouse.requests_per_second"),
			Timeout:           v.GetDuration("warehouse.timeout"),
		},
		Policy: PolicyConfig{
			TestOrderPolicyPath: v.GetString("policy.test_order_policy_path"),
			Watch:               v.GetBool("policy.watch"),
		},
		Webhook: WebhookConfig{
			DedupeTTL:         v.GetDuration("webhook.dedupe_ttl"),
			RequestsPerSecond: v.GetFloat64("webhook.requests_per_second"),
			Burst:             v.GetInt("webhook.burst"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func loadStorefront(v *viper.Viper, name string) StorefrontConfig {
	return StorefrontConfig{
		BaseURL:           v.GetString(name + ".base_url"),
		APIToken:          v.GetString(name + ".api_token"),
		RequestsPerSecond: v.GetFloat64(name + ".requests_per_second"),
		Timeout:           v.GetDuration(name + ".timeout"),
	}
}

// applyDefaults sets default values for empty configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "syncbridge"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "syncbridge"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 5 << 20
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "syncbridge"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "syncbridge"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.Telemetry.ServiceName
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
	if cfg.Dispatcher.BatchSize == 0 {
		cfg.Dispatcher.BatchSize = 10
	}
	if cfg.Dispatcher.PollInterval == 0 {
		cfg.Dispatcher.PollInterval = 2 * time.Second
	}
	if cfg.Dispatcher.StaleAfter == 0 {
		cfg.Dispatcher.StaleAfter = 15 * time.Minute
	}
	if cfg.Dispatcher.MaintenanceInterval == 0 {
		cfg.Dispatcher.MaintenanceInterval = time.Minute
	}
	if cfg.Dispatcher.CompletedRetention == 0 {
		cfg.Dispatcher.CompletedRetention = 7 * 24 * time.Hour
	}
	if cfg.Dispatcher.FailureBufferSize == 0 {
		cfg.Dispatcher.FailureBufferSize = 1000
	}
	if cfg.Sync.ConflictWindow == 0 {
		cfg.Sync.ConflictWindow = 5 * time.Minute
	}
	if cfg.Sync.EchoWindow == 0 {
		cfg.Sync.EchoWindow = 5 * time.Minute
	}
	if cfg.Sync.SharedTiePolicy == "" {
		cfg.Sync.SharedTiePolicy = "manual"
	}
	if cfg.Sync.PipelineMaxRetries == 0 {
		cfg.Sync.PipelineMaxRetries = 3
	}
	if cfg.Sync.PipelineLeaseTTL == 0 {
		cfg.Sync.PipelineLeaseTTL = time.Minute
	}
	if cfg.Sync.PipelineRecoveryInterval == 0 {
		cfg.Sync.PipelineRecoveryInterval = 2 * time.Minute
	}
	if cfg.Sync.WarehousePollInterval == 0 {
		cfg.Sync.WarehousePollInterval = 5 * time.Minute
	}
	if cfg.Webhook.DedupeTTL == 0 {
		cfg.Webhook.DedupeTTL = 24 * time.Hour
	}
	if cfg.Webhook.RequestsPerSecond == 0 {
		cfg.Webhook.RequestsPerSecond = 20
	}
	if cfg.Webhook.Burst == 0 {
		cfg.Webhook.Burst = 40
	}
	if cfg.Credential.RefreshMargin == 0 {
		cfg.Credential.RefreshMargin = time.Minute
	}
	if cfg.Credential.LockTTL == 0 {
		cfg.Credential.LockTTL = 30 * time.Second
	}
	if cfg.Credential.LockWait == 0 {
		cfg.Credential.LockWait = 35 * time.Second
	}
	for _, sf := range []*StorefrontConfig{&cfg.Shopify, &cfg.WooCommerce} {
		if sf.RequestsPerSecond == 0 {
			sf.RequestsPerSecond = 2
		}
		if sf.Timeout == 0 {
			sf.Timeout = 20 * time.Second
		}
	}
	if cfg.Warehouse.RequestsPerSecond == 0 {
		cfg.Warehouse.RequestsPerSecond = 5
	}
	if cfg.Warehouse.Timeout == 0 {
		cfg.Warehouse.Timeout = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	switch c.Sync.SharedTiePolicy {
	case "manual", "keep_local", "accept_incoming":
	default:
		return fmt.Errorf("sync.shared_tie_policy must be manual, keep_local or accept_incoming, got %q", c.Sync.SharedTiePolicy)
	}
	if c.Dispatcher.BatchSize <= 0 {
		return fmt.Errorf("dispatcher.batch_size must be positive")
	}
	if c.Credential.LockWait < c.Credential.LockTTL {
		return fmt.Errorf("credential.lock_wait must not be shorter than credential.lock_ttl")
	}

	if c.Credential.EncryptionKey != "" {
		if _, err := c.Credential.Key(); err != nil {
			return err
		}
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Credential.EncryptionKey == "" {
			return fmt.Errorf("credential.encryption_key is required in production")
		}
		if c.Auth.Enabled && len(c.Auth.OperatorSecret) < 32 {
			return fmt.Errorf("auth.operator_secret must be at least 32 characters in production")
		}
	}

	return nil
}

// Key decodes the credential encryption key
func (c CredentialConfig) Key() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("credential.encryption_key must be base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
