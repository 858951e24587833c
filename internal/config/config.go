package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Sending  SendingConfig  `yaml:"sending"`
	SES      SESConfig      `yaml:"ses"`
	Audit    AuditConfig    `yaml:"audit"`
	Import   ImportConfig   `yaml:"import"`
	Authz    AuthzConfig    `yaml:"authz"`
	Log      LogConfig      `yaml:"log"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
	// ShowPII disables redaction of emails and phone numbers. Local use only.
	ShowPII bool `yaml:"show_pii"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                int      `yaml:"port"`
	Host                string   `yaml:"host"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	ReadTimeoutSeconds  int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int      `yaml:"write_timeout_seconds"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// ReadTimeout returns the read timeout as a duration
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout as a duration
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL settings. An empty URL runs the server on
// the in-memory repositories.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds Redis settings. An empty URL disables the Redis window
// counter and the Redis dispatch lock.
type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"window_key"`
}

// SendingConfig holds campaign dispatch settings.
type SendingConfig struct {
	HourlyCap        int    `yaml:"hourly_cap"`
	DailyCap         int    `yaml:"daily_cap"`
	DefaultBatchSize int    `yaml:"default_batch_size"`
	StrictDispatch   bool   `yaml:"strict_dispatch"`
	LockTTLSeconds   int    `yaml:"lock_ttl_seconds"`
	Transport        string `yaml:"transport"` // "ses" or "log"
	FromName         string `yaml:"from_name"`
	FromEmail        string `yaml:"from_email"`
	ReplyTo          string `yaml:"reply_to"`
}

// LockTTL returns the dispatch lock TTL as a duration
func (c SendingConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// SESConfig holds AWS SES API configuration
type SESConfig struct {
	Region         string `yaml:"region"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuditConfig selects the audit sink.
type AuditConfig struct {
	Sink        string `yaml:"sink"` // "log", "sqs" or "none"
	SQSQueueURL string `yaml:"sqs_queue_url"`
	Region      string `yaml:"region"`
}

// ImportConfig holds bulk import settings.
type ImportConfig struct {
	MaxRows  int    `yaml:"max_rows"`
	S3Region string `yaml:"s3_region"`
}

// AuthzConfig maps roles to permitted actions. "*" grants everything.
type AuthzConfig struct {
	Roles map[string][]string `yaml:"roles"`
}

// DefaultRoles is used when no roles are configured.
func DefaultRoles() map[string][]string {
	return map[string][]string{
		"admin": {"*"},
		"sales": {
			"contact:write", "contact:import", "activity:write", "segment:write",
		},
		"marketing": {
			"segment:write", "template:write", "campaign:write", "campaign:send",
		},
		// The marketing site posts website form leads.
		"site":   {"contact:write"},
		"viewer": {},
	}
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 60
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Sending.HourlyCap == 0 {
		cfg.Sending.HourlyCap = 20
	}
	if cfg.Sending.DailyCap == 0 {
		cfg.Sending.DailyCap = 50
	}
	if cfg.Sending.DefaultBatchSize == 0 {
		cfg.Sending.DefaultBatchSize = 10
	}
	if cfg.Sending.LockTTLSeconds == 0 {
		cfg.Sending.LockTTLSeconds = 120
	}
	if cfg.Sending.Transport == "" {
		cfg.Sending.Transport = "log"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-west-2"
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.Audit.Sink == "" {
		cfg.Audit.Sink = "log"
	}
	if cfg.Audit.Region == "" {
		cfg.Audit.Region = cfg.SES.Region
	}
	if cfg.Import.MaxRows == 0 {
		cfg.Import.MaxRows = 5000
	}
	if cfg.Import.S3Region == "" {
		cfg.Import.S3Region = cfg.SES.Region
	}
	if len(cfg.Authz.Roles) == 0 {
		cfg.Authz.Roles = DefaultRoles()
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.SES.AccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.SES.SecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.SES.Region = region
	}
	if v := os.Getenv("SENDING_TRANSPORT"); v != "" {
		cfg.Sending.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("SENDING_FROM_EMAIL"); v != "" {
		cfg.Sending.FromEmail = v
	}
	if v := envInt("SENDING_HOURLY_CAP"); v > 0 {
		cfg.Sending.HourlyCap = v
	}
	if v := envInt("SENDING_DAILY_CAP"); v > 0 {
		cfg.Sending.DailyCap = v
	}
	if v := os.Getenv("SENDING_STRICT_DISPATCH"); v != "" {
		cfg.Sending.StrictDispatch, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("AUDIT_SQS_QUEUE_URL"); v != "" {
		cfg.Audit.SQSQueueURL = v
		cfg.Audit.Sink = "sqs"
	}
	if v := envInt("IMPORT_MAX_ROWS"); v > 0 {
		cfg.Import.MaxRows = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := envInt("PORT"); v > 0 {
		cfg.Server.Port = v
	}

	return cfg, nil
}

func envInt(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return 0
	}
	return n
}
