package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/jwalitptl/roshita-planner/pkg/roshita"
	"github.com/jwalitptl/roshita-planner/pkg/security"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Roshita   roshita.Config  `mapstructure:"roshita"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Audit     AuditConfig     `mapstructure:"audit"`
	Email     EmailConfig     `mapstructure:"email"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Security  SecurityConfig  `mapstructure:"security"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	Mode            string        `mapstructure:"mode"`
}

type SessionConfig struct {
	// Store is "memory" or "redis".
	Store           string        `mapstructure:"store"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	DefaultLanguage string        `mapstructure:"default_language"`
	RefreshLeeway   time.Duration `mapstructure:"refresh_leeway"`
	// EncryptionKey seals tokens at rest in the redis store. Hex or base64,
	// 16, 24 or 32 bytes. Empty leaves them in clear.
	EncryptionKey string `mapstructure:"encryption_key"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type DatabaseConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"sslmode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type PlannerConfig struct {
	PageSize     int           `mapstructure:"page_size"`
	MaxPages     int           `mapstructure:"max_pages"`
	ListCacheTTL time.Duration `mapstructure:"list_cache_ttl"`
	WizardTTL    time.Duration `mapstructure:"wizard_ttl"`
	// HospitalCacheTTL caches the hospital catalog shared by all users.
	HospitalCacheTTL time.Duration `mapstructure:"hospital_cache_ttl"`
}

type AuditConfig struct {
	Remote          bool          `mapstructure:"remote"`
	Database        bool          `mapstructure:"database"`
	Broker          bool          `mapstructure:"broker"`
	Channel         string        `mapstructure:"channel"`
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// envOverrides are read from PLANNER_* variables and win over the file.
type envOverrides struct {
	ServerPort       int    `envconfig:"SERVER_PORT"`
	RoshitaBaseURL   string `envconfig:"ROSHITA_BASE_URL"`
	SessionStore     string `envconfig:"SESSION_STORE"`
	SessionKey       string `envconfig:"SESSION_ENCRYPTION_KEY"`
	RedisURL         string `envconfig:"REDIS_URL"`
	DatabaseEnabled  *bool  `envconfig:"DATABASE_ENABLED"`
	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	DatabasePort     int    `envconfig:"DATABASE_PORT"`
	DatabaseUser     string `envconfig:"DATABASE_USER"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	DatabaseName     string `envconfig:"DATABASE_NAME"`
	EmailPassword    string `envconfig:"EMAIL_PASSWORD"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
}

const envPrefix = "planner"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 0)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.mode", "release")

	v.SetDefault("roshita.base_url", roshita.DefaultBaseURL)
	v.SetDefault("roshita.timeout", 15*time.Second)
	v.SetDefault("roshita.log_action_path", roshita.DefaultLogActionPath)
	v.SetDefault("roshita.max_failures", 5)
	v.SetDefault("roshita.breaker_timeout", 30*time.Second)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.cleanup_interval", 10*time.Minute)
	v.SetDefault("session.default_language", "ar")
	v.SetDefault("session.refresh_leeway", 30*time.Second)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("planner.page_size", 5)
	v.SetDefault("planner.max_pages", 100)
	v.SetDefault("planner.list_cache_ttl", time.Minute)
	v.SetDefault("planner.wizard_ttl", 30*time.Minute)
	v.SetDefault("planner.hospital_cache_ttl", 10*time.Minute)

	v.SetDefault("audit.remote", true)
	v.SetDefault("audit.database", false)
	v.SetDefault("audit.broker", false)
	v.SetDefault("audit.channel", "planner.audit")
	v.SetDefault("audit.retention_days", 90)
	v.SetDefault("audit.cleanup_interval", 24*time.Hour)
	v.SetDefault("audit.retry_attempts", 3)
	v.SetDefault("audit.retry_delay", 2*time.Second)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.port", 587)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 20.0)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("security.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "roshita_planner")
}

// LoadConfig reads config.yml from path (or the usual locations when path is
// empty), then applies PLANNER_* environment overrides. A missing file is
// not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app/config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	env.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (e envOverrides) apply(cfg *Config) {
	if e.ServerPort != 0 {
		cfg.Server.Port = e.ServerPort
	}
	if e.RoshitaBaseURL != "" {
		cfg.Roshita.BaseURL = e.RoshitaBaseURL
	}
	if e.SessionStore != "" {
		cfg.Session.Store = e.SessionStore
	}
	if e.SessionKey != "" {
		cfg.Session.EncryptionKey = e.SessionKey
	}
	if e.RedisURL != "" {
		cfg.Redis.URL = e.RedisURL
	}
	if e.DatabaseEnabled != nil {
		cfg.Database.Enabled = *e.DatabaseEnabled
	}
	if e.DatabaseHost != "" {
		cfg.Database.Host = e.DatabaseHost
	}
	if e.DatabasePort != 0 {
		cfg.Database.Port = e.DatabasePort
	}
	if e.DatabaseUser != "" {
		cfg.Database.User = e.DatabaseUser
	}
	if e.DatabasePassword != "" {
		cfg.Database.Password = e.DatabasePassword
	}
	if e.DatabaseName != "" {
		cfg.Database.Name = e.DatabaseName
	}
	if e.EmailPassword != "" {
		cfg.Email.Password = e.EmailPassword
	}
	if e.LogLevel != "" {
		cfg.Log.Level = e.LogLevel
	}
}

func (c *Config) Validate() error {
	var problems []string

	switch c.Session.Store {
	case "memory", "redis":
	default:
		problems = append(problems, fmt.Sprintf("session.store must be memory or redis, got %q", c.Session.Store))
	}
	switch c.Session.DefaultLanguage {
	case "ar", "en":
	default:
		problems = append(problems, fmt.Sprintf("session.default_language must be ar or en, got %q", c.Session.DefaultLanguage))
	}
	if c.Planner.PageSize <= 0 {
		problems = append(problems, "planner.page_size must be positive")
	}
	if c.Planner.MaxPages <= 0 {
		problems = append(problems, "planner.max_pages must be positive")
	}
	if c.Session.EncryptionKey != "" {
		if _, err := security.ParseKey(c.Session.EncryptionKey); err != nil {
			problems = append(problems, "session.encryption_key: "+err.Error())
		}
	}
	if c.Audit.Database && !c.Database.Enabled {
		problems = append(problems, "audit.database requires database.enabled")
	}
	if c.Audit.Broker && c.Audit.Channel == "" {
		problems = append(problems, "audit.broker requires audit.channel")
	}
	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		problems = append(problems, "email.enabled requires email.host and email.from")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.Session.Store == "redis" || c.Audit.Broker
}
