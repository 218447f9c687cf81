// Package config loads and validates webstack service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	DB       DBConfig       `mapstructure:"db"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Ahrefs   AhrefsConfig   `mapstructure:"ahrefs"`
	Google   GoogleConfig   `mapstructure:"google"`
	Bron     BronConfig     `mapstructure:"bron"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Health   HealthConfig   `mapstructure:"health"`
	Audit    AuditConfig    `mapstructure:"audit"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// AuthConfig defines API authentication material. The API key guards
// operational endpoints, the JWT secret verifies dashboard sessions.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	AutoMigrate  bool   `mapstructure:"auto_migrate"`
}

// HTTPConfig configures outbound HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// CheckoutConfig holds Stripe credentials and redirect targets.
type CheckoutConfig struct {
	SecretKey  string `mapstructure:"secret_key"`
	BaseURL    string `mapstructure:"base_url"`
	SuccessURL string `mapstructure:"success_url"`
	CancelURL  string `mapstructure:"cancel_url"`
}

// AhrefsConfig holds the Ahrefs API token injected into metric lookups.
type AhrefsConfig struct {
	APIToken string `mapstructure:"api_token"`
	BaseURL  string `mapstructure:"base_url"`
}

// GoogleConfig covers both Business Profile and Search Console proxies.
// Access tokens are minted server-side from the refresh token so browser
// clients never see Google credentials.
type GoogleConfig struct {
	ClientID             string `mapstructure:"client_id"`
	ClientSecret         string `mapstructure:"client_secret"`
	RefreshToken         string `mapstructure:"refresh_token"`
	TokenURL             string `mapstructure:"token_url"`
	BusinessBaseURL      string `mapstructure:"business_base_url"`
	SearchConsoleBaseURL string `mapstructure:"search_console_base_url"`
}

// BronConfig configures the BRON link-building upstream and the local
// session bridge in front of it.
type BronConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	SessionTTLMinutes int    `mapstructure:"session_ttl_minutes"`
}

// CacheConfig bounds the keyword metrics cache.
type CacheConfig struct {
	KeywordTTLHours   int `mapstructure:"keyword_ttl_hours"`
	KeywordMaxDomains int `mapstructure:"keyword_max_domains"`
}

// HealthConfig drives the background monitor.
type HealthConfig struct {
	IntervalSeconds     int                 `mapstructure:"interval_seconds"`
	ProbeTimeoutSeconds int                 `mapstructure:"probe_timeout_seconds"`
	FailureThreshold    int                 `mapstructure:"failure_threshold"`
	CooldownSeconds     int                 `mapstructure:"cooldown_seconds"`
	Checks              []HealthCheckConfig `mapstructure:"checks"`
}

// HealthCheckConfig declares one monitored endpoint and the remedy to
// run once its consecutive-failure count crosses the threshold.
type HealthCheckConfig struct {
	Name         string `mapstructure:"name"`
	URL          string `mapstructure:"url"`
	Method       string `mapstructure:"method"`
	ExpectStatus int    `mapstructure:"expect_status"`
	Remedy       string `mapstructure:"remedy"`
}

// AuditConfig governs the site audit dispatcher and worker pool.
type AuditConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	QueueDepth      int     `mapstructure:"queue_depth"`
	MaxPagesDefault int     `mapstructure:"max_pages_default"`
	MaxDepthDefault int     `mapstructure:"max_depth_default"`
	PerHostRPS      float64 `mapstructure:"per_host_rps"`
	PerHostBurst    int     `mapstructure:"per_host_burst"`
	UserAgent       string  `mapstructure:"user_agent"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	RenderSettleMs  int  `mapstructure:"render_settle_ms"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig sets the snapshot blob backend.
type StorageConfig struct {
	Provider    string `mapstructure:"provider"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	LocalDir    string `mapstructure:"local_dir"`
	Prefix      string `mapstructure:"prefix"`
	ContentType string `mapstructure:"content_type"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Remedy names accepted by health check configuration. An empty remedy
// means the monitor raises alerts without attempting repair.
const (
	RemedyCacheClear   = "cache_clear"
	RemedyRetryBackoff = "retry_backoff"
	RemedyTokenRefresh = "token_refresh"
	RemedyCooldown     = "cooldown"
)

func knownRemedy(name string) bool {
	switch name {
	case "", RemedyCacheClear, RemedyRetryBackoff, RemedyTokenRefresh, RemedyCooldown:
		return true
	}
	return false
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WEBSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	normalizeRemedies(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_retries", 2)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 2000)
	v.SetDefault("checkout.base_url", "https://api.stripe.com")
	v.SetDefault("ahrefs.base_url", "https://api.ahrefs.com")
	v.SetDefault("google.token_url", "https://oauth2.googleapis.com/token")
	v.SetDefault("google.business_base_url", "https://mybusinessbusinessinformation.googleapis.com")
	v.SetDefault("google.search_console_base_url", "https://searchconsole.googleapis.com")
	v.SetDefault("bron.base_url", "https://api.bron.org")
	v.SetDefault("bron.session_ttl_minutes", 30)
	v.SetDefault("cache.keyword_ttl_hours", 24)
	v.SetDefault("cache.keyword_max_domains", 10)
	v.SetDefault("health.interval_seconds", 60)
	v.SetDefault("health.probe_timeout_seconds", 10)
	v.SetDefault("health.failure_threshold", 3)
	v.SetDefault("health.cooldown_seconds", 5)
	v.SetDefault("audit.concurrency", 4)
	v.SetDefault("audit.queue_depth", 64)
	v.SetDefault("audit.max_pages_default", 10)
	v.SetDefault("audit.max_depth_default", 1)
	v.SetDefault("audit.per_host_rps", 1.0)
	v.SetDefault("audit.per_host_burst", 1)
	v.SetDefault("audit.user_agent", "webstack-audit-bot/0.1")
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.render_settle_ms", 2000)
	v.SetDefault("headless.promotion_threshold", 60)
	v.SetDefault("storage.provider", "memory")
	v.SetDefault("storage.prefix", "snapshots")
	v.SetDefault("storage.content_type", "text/html; charset=utf-8")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("db.driver must be postgres or sqlite, got %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Cache.KeywordTTLHours <= 0 {
		return fmt.Errorf("cache.keyword_ttl_hours must be > 0")
	}
	if c.Cache.KeywordMaxDomains <= 0 {
		return fmt.Errorf("cache.keyword_max_domains must be > 0")
	}
	if c.Bron.SessionTTLMinutes <= 0 {
		return fmt.Errorf("bron.session_ttl_minutes must be > 0")
	}
	if c.Health.IntervalSeconds <= 0 {
		return fmt.Errorf("health.interval_seconds must be > 0")
	}
	if c.Health.FailureThreshold <= 0 {
		return fmt.Errorf("health.failure_threshold must be > 0")
	}
	for _, chk := range c.Health.Checks {
		if chk.Name == "" || chk.URL == "" {
			return fmt.Errorf("health.checks entries need both name and url")
		}
		if !knownRemedy(chk.Remedy) {
			return fmt.Errorf("health.checks[%s].remedy %q is not recognized", chk.Name, chk.Remedy)
		}
	}
	if c.Audit.Concurrency <= 0 {
		return fmt.Errorf("audit.concurrency must be > 0")
	}
	if c.Audit.QueueDepth <= 0 {
		return fmt.Errorf("audit.queue_depth must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Provider {
	case "memory", "local", "gcs":
	default:
		return fmt.Errorf("storage.provider must be memory, local, or gcs, got %q", c.Storage.Provider)
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set when provider is gcs")
	}
	if c.Storage.Provider == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir must be set when provider is local")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// HTTPTimeout converts the outbound client timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// KeywordTTL is how long cached keyword metrics stay fresh.
func (c Config) KeywordTTL() time.Duration {
	return time.Duration(c.Cache.KeywordTTLHours) * time.Hour
}

// BronSessionTTL is the bridge session lifetime.
func (c Config) BronSessionTTL() time.Duration {
	return time.Duration(c.Bron.SessionTTLMinutes) * time.Minute
}

// HealthInterval is the monitor poll cadence.
func (c Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalSeconds) * time.Second
}

// ProbeTimeout bounds a single health probe.
func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Health.ProbeTimeoutSeconds) * time.Second
}

// Cooldown is the pause applied by the cooldown remedy.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Health.CooldownSeconds) * time.Second
}

func normalizeRemedies(c *Config) {
	for i := range c.Health.Checks {
		c.Health.Checks[i].Remedy = strings.ToLower(strings.TrimSpace(c.Health.Checks[i].Remedy))
		if c.Health.Checks[i].Method == "" {
			c.Health.Checks[i].Method = "GET"
		}
		if c.Health.Checks[i].ExpectStatus == 0 {
			c.Health.Checks[i].ExpectStatus = 200
		}
	}
}
