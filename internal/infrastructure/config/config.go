package config

import (
	"errors"
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
	Carrier     CarrierConfig
	Renderer    RendererConfig
	Labels      LabelsConfig
	Calibration CalibrationConfig
	Scheduler   SchedulerConfig
	Queue       QueueConfig
	Outbox      OutboxConfig
	Storage     StorageConfig
	Telemetry   TelemetryConfig
	Profiling   ProfilingConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// IsProduction reports whether the app runs in production mode.
func (a AppConfig) IsProduction() bool {
	return a.Env == "production"
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres or sqlite
	Path            string // sqlite file path
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
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
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int

	// PollRate and PollBurst throttle each printer agent polling
	// /print-jobs/next (requests per second).
	PollRate  float64
	PollBurst int
}

// CarrierStore binds a store to its carrier API token
type CarrierStore struct {
	StoreID int64  `mapstructure:"store_id"`
	Token   string `mapstructure:"token"`
}

// CarrierConfig configures the marketplace/carrier API client
type CarrierConfig struct {
	BaseURL        string
	Timeout        time.Duration
	PageDelay      time.Duration // fixed delay before every page and detail fetch
	PendingStatus  int           // order status id listed by reconciliation
	MaxRetries     int
	RetryBaseDelay time.Duration
	Stores         []CarrierStore
}

// Tokens maps each configured store to its API token
func (c CarrierConfig) Tokens() map[int64]string {
	tokens := make(map[int64]string, len(c.Stores))
	for _, s := range c.Stores {
		tokens[s.StoreID] = s.Token
	}
	return tokens
}

// RendererConfig configures the external ZPL rendering service
type RendererConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LabelsConfig holds artifact directories and compose limits
type LabelsConfig struct {
	LabelsRoot           string
	PDFRoot              string
	ImagesRoot           string
	ZPLRoot              string
	MaxConcurrentCompose int
	RetentionDays        int
}

// StoreCalibration is one per-store calibration override
type StoreCalibration struct {
	StoreID                  int64   `mapstructure:"store_id"`
	ShippingLabelScaleFactor float64 `mapstructure:"shipping_label_scale_factor"`
	BitmapScaleFactor        float64 `mapstructure:"bitmap_scale_factor"`
}

// CalibrationConfig holds default and per-store scale factors
type CalibrationConfig struct {
	ShippingLabelScaleFactor float64
	BitmapScaleFactor        float64
	Stores                   []StoreCalibration
}

// SchedulerConfig holds background task configuration
type SchedulerConfig struct {
	AutoStart              bool
	ReconciliationInterval time.Duration
	CleanupInterval        time.Duration
}

// QueueConfig selects the print queue backend
type QueueConfig struct {
	Backend  string // memory or redis
	RedisKey string
}

// OutboxConfig holds outbox worker configuration
type OutboxConfig struct {
	Enabled          bool
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupRetention time.Duration
}

// StorageConfig configures the optional S3 mirror of artifacts
type StorageConfig struct {
	Enabled      bool
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	DBTraceEnabled    bool
	// LogsEnabled also ships log entries to the collector. Needs Enabled.
	LogsEnabled bool
}

// ProfilingConfig configures continuous profiling with Pyroscope
type ProfilingConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	// ProfileTypes lists the enabled profiles: cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex, block.
	ProfileTypes []string
	// SpanProfiles links CPU profiles to trace spans. Needs telemetry.
	SpanProfiles bool
}

// Load loads configuration from config.toml and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with SHIP_ prefix (e.g. SHIP_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("SHIP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
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
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:  v.GetInt("http.max_header_bytes"),
			PollRate:        v.GetFloat64("http.poll_rate"),
			PollBurst:       v.GetInt("http.poll_burst"),
		},
		Carrier: CarrierConfig{
			BaseURL:        v.GetString("carrier.base_url"),
			Timeout:        v.GetDuration("carrier.timeout"),
			PageDelay:      v.GetDuration("carrier.page_delay"),
			PendingStatus:  v.GetInt("carrier.pending_status"),
			MaxRetries:     v.GetInt("carrier.max_retries"),
			RetryBaseDelay: v.GetDuration("carrier.retry_base_delay"),
		},
		Renderer: RendererConfig{
			BaseURL: v.GetString("renderer.base_url"),
			Timeout: v.GetDuration("renderer.timeout"),
		},
		Labels: LabelsConfig{
			LabelsRoot:           v.GetString("labels.labels_root"),
			PDFRoot:              v.GetString("labels.pdf_root"),
			ImagesRoot:           v.GetString("labels.images_root"),
			ZPLRoot:              v.GetString("labels.zpl_root"),
			MaxConcurrentCompose: v.GetInt("labels.max_concurrent_compose"),
			RetentionDays:        v.GetInt("labels.retention_days"),
		},
		Calibration: CalibrationConfig{
			ShippingLabelScaleFactor: v.GetFloat64("calibration.shipping_label_scale_factor"),
			BitmapScaleFactor:        v.GetFloat64("calibration.bitmap_scale_factor"),
		},
		Scheduler: SchedulerConfig{
			AutoStart:              v.GetBool("scheduler.auto_start"),
			ReconciliationInterval: v.GetDuration("scheduler.reconciliation_interval"),
			CleanupInterval:        v.GetDuration("scheduler.cleanup_interval"),
		},
		Queue: QueueConfig{
			Backend:  v.GetString("queue.backend"),
			RedisKey: v.GetString("queue.redis_key"),
		},
		Outbox: OutboxConfig{
			Enabled:          v.GetBool("outbox.enabled"),
			BatchSize:        v.GetInt("outbox.batch_size"),
			PollInterval:     v.GetDuration("outbox.poll_interval"),
			MaxRetries:       v.GetInt("outbox.max_retries"),
			CleanupRetention: v.GetDuration("outbox.cleanup_retention"),
		},
		Storage: StorageConfig{
			Enabled:      v.GetBool("storage.enabled"),
			Endpoint:     v.GetString("storage.endpoint"),
			Region:       v.GetString("storage.region"),
			Bucket:       v.GetString("storage.bucket"),
			AccessKey:    v.GetString("storage.access_key"),
			SecretKey:    v.GetString("storage.secret_key"),
			UsePathStyle: v.GetBool("storage.use_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
		},
		Profiling: ProfilingConfig{
			Enabled:           v.GetBool("profiling.enabled"),
			ServerAddress:     v.GetString("profiling.server_address"),
			ApplicationName:   v.GetString("profiling.application_name"),
			BasicAuthUser:     v.GetString("profiling.basic_auth_user"),
			BasicAuthPassword: v.GetString("profiling.basic_auth_password"),
			ProfileTypes:      v.GetStringSlice("profiling.profile_types"),
			SpanProfiles:      v.GetBool("profiling.span_profiles"),
		},
	}

	// Arrays of tables are only available from the config file.
	if err := v.UnmarshalKey("carrier.stores", &cfg.Carrier.Stores); err != nil {
		return nil, fmt.Errorf("invalid carrier.stores: %w", err)
	}
	if err := v.UnmarshalKey("calibration.stores", &cfg.Calibration.Stores); err != nil {
		return nil, fmt.Errorf("invalid calibration.stores: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "shipping-labels"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "shipping.db"
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
		cfg.Database.DBName = "shipping"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
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
	// composing a label can take several seconds on cold renderer calls
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 2 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 30 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.PollRate == 0 {
		cfg.HTTP.PollRate = 2
	}
	if cfg.HTTP.PollBurst == 0 {
		cfg.HTTP.PollBurst = 5
	}

	if cfg.Carrier.BaseURL == "" {
		cfg.Carrier.BaseURL = "https://www.bling.com.br/Api/v3"
	}
	if cfg.Carrier.Timeout == 0 {
		cfg.Carrier.Timeout = 30 * time.Second
	}
	if cfg.Carrier.PageDelay == 0 {
		cfg.Carrier.PageDelay = time.Second
	}
	if cfg.Carrier.MaxRetries == 0 {
		cfg.Carrier.MaxRetries = 3
	}
	if cfg.Carrier.RetryBaseDelay == 0 {
		cfg.Carrier.RetryBaseDelay = 3 * time.Second
	}

	if cfg.Renderer.BaseURL == "" {
		cfg.Renderer.BaseURL = "http://api.labelary.com"
	}
	if cfg.Renderer.Timeout == 0 {
		cfg.Renderer.Timeout = 30 * time.Second
	}

	if cfg.Labels.LabelsRoot == "" {
		cfg.Labels.LabelsRoot = "data/labels"
	}
	if cfg.Labels.PDFRoot == "" {
		cfg.Labels.PDFRoot = "data/pdf"
	}
	if cfg.Labels.ImagesRoot == "" {
		cfg.Labels.ImagesRoot = "data/images"
	}
	if cfg.Labels.ZPLRoot == "" {
		cfg.Labels.ZPLRoot = "data/zpl"
	}
	if cfg.Labels.MaxConcurrentCompose == 0 {
		cfg.Labels.MaxConcurrentCompose = 2
	}
	if cfg.Labels.RetentionDays == 0 {
		cfg.Labels.RetentionDays = 90
	}

	if cfg.Calibration.ShippingLabelScaleFactor == 0 {
		cfg.Calibration.ShippingLabelScaleFactor = 1.08
	}
	if cfg.Calibration.BitmapScaleFactor == 0 {
		cfg.Calibration.BitmapScaleFactor = 0.98
	}

	if cfg.Scheduler.ReconciliationInterval == 0 {
		cfg.Scheduler.ReconciliationInterval = 10 * time.Minute
	}
	if cfg.Scheduler.CleanupInterval == 0 {
		cfg.Scheduler.CleanupInterval = 24 * time.Hour
	}

	if cfg.Queue.Backend == "" {
		cfg.Queue.Backend = "memory"
	}
	if cfg.Queue.RedisKey == "" {
		cfg.Queue.RedisKey = "shipping:print_jobs"
	}

	if cfg.Outbox.BatchSize == 0 {
		cfg.Outbox.BatchSize = 20
	}
	if cfg.Outbox.PollInterval == 0 {
		cfg.Outbox.PollInterval = 2 * time.Second
	}
	if cfg.Outbox.MaxRetries == 0 {
		cfg.Outbox.MaxRetries = 5
	}
	if cfg.Outbox.CleanupRetention == 0 {
		cfg.Outbox.CleanupRetention = 7 * 24 * time.Hour
	}

	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.App.Name
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}

	if cfg.Profiling.ApplicationName == "" {
		cfg.Profiling.ApplicationName = cfg.App.Name
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_space", "inuse_space", "goroutines"}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("queue.backend must be memory or redis, got %q", c.Queue.Backend)
	}

	if c.Calibration.ShippingLabelScaleFactor < 0 || c.Calibration.BitmapScaleFactor < 0 {
		return fmt.Errorf("calibration factors cannot be negative")
	}
	for _, s := range c.Calibration.Stores {
		if s.StoreID == 0 {
			return fmt.Errorf("calibration.stores entry without store_id")
		}
		if s.ShippingLabelScaleFactor < 0 || s.BitmapScaleFactor < 0 {
			return fmt.Errorf("calibration for store %d cannot be negative", s.StoreID)
		}
	}
	for _, s := range c.Carrier.Stores {
		if s.StoreID == 0 || s.Token == "" {
			return fmt.Errorf("carrier.stores entries need store_id and token")
		}
	}

	if c.Labels.MaxConcurrentCompose < 1 {
		return fmt.Errorf("labels.max_concurrent_compose must be positive")
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage is enabled")
	}

	if c.App.IsProduction() {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "sqlite" {
			return fmt.Errorf("database.driver sqlite is not allowed in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		return fmt.Errorf("profiling.server_address is required when profiling is enabled")
	}

	return nil
}

// DSN returns the postgres connection string with properly escaped values
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
