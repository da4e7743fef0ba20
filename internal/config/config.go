package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	Redis         RedisConfig         `yaml:"redis"`
	NATS          NATSConfig          `yaml:"nats"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
	Logging       LoggingConfig       `yaml:"logging"`
	App           AppConfig           `yaml:"app"`
	Worker        WorkerConfig        `yaml:"worker"`
	Queue         QueueSettings       `yaml:"queue"`
	Sessions      SessionsConfig      `yaml:"sessions"`
	Proxy         ProxyConfig         `yaml:"proxy"`
	Platforms     PlatformsConfig     `yaml:"platforms"`
	Authenticator AuthenticatorConfig `yaml:"authenticator"`
	AutoApply     AutoApplyConfig     `yaml:"autoapply"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	RoutingKey string           `yaml:"routing_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
	DeadLetter string `yaml:"dead_letter"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int  `yaml:"prefetch_count"`
	AutoAck       bool `yaml:"auto_ack"`
	Exclusive     bool `yaml:"exclusive"`
}

// RedisConfig holds the cache connection. An empty URL selects the in-process cache.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	KeyPrefix    string        `yaml:"key_prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// NATSConfig holds the history event stream connection
type NATSConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Subject string        `yaml:"subject"`
	Timeout time.Duration `yaml:"timeout"`
}

// TelemetryConfig holds tracing settings
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	CollectorURL string  `yaml:"collector_url"`
	SampleRatio  float64 `yaml:"sample_ratio"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level            string `yaml:"level"`
	Format           string `yaml:"format"`
	Output           string `yaml:"output"`
	EnableCaller     bool   `yaml:"enable_caller"`
	EnableStackTrace bool   `yaml:"enable_stack_trace"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID                string        `yaml:"id"`
	Concurrency       int           `yaml:"concurrency"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	PollBatchSize     int           `yaml:"poll_batch_size"`
}

// QueueSettings holds the scraper job retry policy
type QueueSettings struct {
	MaxRetries    int           `yaml:"max_retries"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	RetentionDays int           `yaml:"retention_days"`
	StaleAfter    time.Duration `yaml:"stale_after"`
}

// SessionsConfig holds session lifetimes. Expiry keys are platform names.
type SessionsConfig struct {
	DefaultExpiry time.Duration            `yaml:"default_expiry"`
	Expiry        map[string]time.Duration `yaml:"expiry"`
	RetentionDays int                      `yaml:"retention_days"`
	ProxyCountry  string                   `yaml:"proxy_country"`
	LowestTier    string                   `yaml:"lowest_tier"`
}

// PlatformExpiry converts the expiry map to platform keys. Call after validation.
func (c SessionsConfig) PlatformExpiry() map[domain.Platform]time.Duration {
	out := make(map[domain.Platform]time.Duration, len(c.Expiry))
	for name, d := range c.Expiry {
		if p, err := domain.ParsePlatform(name); err == nil {
			out[p] = d
		}
	}
	return out
}

// ProxyConfig holds the proxy provider settings
type ProxyConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ProviderURL     string        `yaml:"provider_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	Static          []string      `yaml:"static"`
}

// PlatformConfig holds one job portal's endpoints
type PlatformConfig struct {
	BaseURL  string        `yaml:"base_url"`
	LoginURL string        `yaml:"login_url"`
	Timeout  time.Duration `yaml:"timeout"`
	PageSize int           `yaml:"page_size"`
}

// PlatformsConfig holds the endpoints of every supported portal
type PlatformsConfig struct {
	LinkedIn PlatformConfig `yaml:"linkedin"`
	InfoJobs PlatformConfig `yaml:"infojobs"`
	Catho    PlatformConfig `yaml:"catho"`
	Indeed   PlatformConfig `yaml:"indeed"`
}

// AuthenticatorConfig points at the browser automation sidecar
type AuthenticatorConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// WeightsConfig holds the listing scoring weights
type WeightsConfig struct {
	Keywords float64 `yaml:"keywords"`
	Location float64 `yaml:"location"`
	Industry float64 `yaml:"industry"`
	JobType  float64 `yaml:"job_type"`
}

// AutoApplyConfig holds orchestrator settings
type AutoApplyConfig struct {
	SearchWindow  string        `yaml:"search_window"`
	SearchLimit   int           `yaml:"search_limit"`
	ActionTimeout time.Duration `yaml:"action_timeout"`
	CancelTTL     time.Duration `yaml:"cancel_ttl"`
	Weights       WeightsConfig `yaml:"weights"`
}

// SchedulerConfig holds cron specs of the periodic tasks. An empty spec disables the task.
type SchedulerConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SessionSweep  string `yaml:"session_sweep"`
	SessionPurge  string `yaml:"session_purge"`
	JobCleanup    string `yaml:"job_cleanup"`
	StaleRecovery string `yaml:"stale_recovery"`
	ProxyRefresh  string `yaml:"proxy_refresh"`
	DailyReset    string `yaml:"daily_reset"`
	MonthlyReset  string `yaml:"monthly_reset"`
	AutoApply     string `yaml:"auto_apply"`
}

// Specs returns the non-empty cron specs keyed by task name
func (c SchedulerConfig) Specs() map[string]string {
	all := map[string]string{
		"session_sweep":  c.SessionSweep,
		"session_purge":  c.SessionPurge,
		"job_cleanup":    c.JobCleanup,
		"stale_recovery": c.StaleRecovery,
		"proxy_refresh":  c.ProxyRefresh,
		"daily_reset":    c.DailyReset,
		"monthly_reset":  c.MonthlyReset,
		"auto_apply":     c.AutoApply,
	}
	out := make(map[string]string, len(all))
	for name, spec := range all {
		if spec != "" {
			out[name] = spec
		}
	}
	return out
}

// Load reads and parses the configuration file. ${VAR} references are expanded from the environment.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// ValidateAPIConfig checks the sections the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateInfrastructure(); err != nil {
		return err
	}

	return c.validateEngine()
}

// ValidateWorkerConfig checks the sections the worker service needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateInfrastructure(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.JobTimeout <= 0 {
		return fmt.Errorf("worker job_timeout must be greater than 0")
	}

	if c.Worker.HeartbeatInterval <= 0 {
		return fmt.Errorf("worker heartbeat_interval must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("worker poll_interval must be greater than 0")
	}

	if err := c.validateEngine(); err != nil {
		return err
	}

	if c.Scheduler.Enabled {
		for name, spec := range c.Scheduler.Specs() {
			if _, err := cron.ParseStandard(spec); err != nil {
				return fmt.Errorf("invalid scheduler %s spec %q: %w", name, spec, err)
			}
		}
	}

	return nil
}

func (c *Config) validateInfrastructure() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Name == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}

	if c.Telemetry.Enabled && c.Telemetry.CollectorURL == "" {
		return fmt.Errorf("telemetry collector_url is required when telemetry is enabled")
	}

	return nil
}

func (c *Config) validateEngine() error {
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue max_retries must not be negative")
	}

	if c.Queue.BaseDelay < 0 || c.Queue.MaxDelay < 0 {
		return fmt.Errorf("queue delays must not be negative")
	}

	for name, d := range c.Sessions.Expiry {
		if _, err := domain.ParsePlatform(name); err != nil {
			return fmt.Errorf("invalid sessions expiry key: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("sessions expiry for %s must be greater than 0", name)
		}
	}

	switch domain.SubscriptionTier(c.Sessions.LowestTier) {
	case "", domain.TierFree, domain.TierBasic, domain.TierPro, domain.TierEnterprise:
	default:
		return fmt.Errorf("invalid sessions lowest_tier: %q", c.Sessions.LowestTier)
	}

	if c.Proxy.Enabled && c.Proxy.ProviderURL == "" && len(c.Proxy.Static) == 0 {
		return fmt.Errorf("proxy provider_url or static list is required when proxy is enabled")
	}

	switch domain.DateWindow(c.AutoApply.SearchWindow) {
	case "", domain.DateWindowAny, domain.DateWindowPastDay, domain.DateWindowPastWeek, domain.DateWindowPastMonth:
	default:
		return fmt.Errorf("invalid autoapply search_window: %q", c.AutoApply.SearchWindow)
	}

	w := c.AutoApply.Weights
	if w.Keywords < 0 || w.Location < 0 || w.Industry < 0 || w.JobType < 0 {
		return fmt.Errorf("autoapply weights must not be negative")
	}

	return nil
}
