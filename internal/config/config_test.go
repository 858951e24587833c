package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins: ["https://www.example-builders.com"]

database:
  url: "postgres://localhost/crm?sslmode=disable"
  max_open_conns: 20

sending:
  hourly_cap: 30
  daily_cap: 120
  default_batch_size: 5
  strict_dispatch: true
  transport: ses
  from_name: "Example Builders"
  from_email: "hello@example-builders.com"

audit:
  sink: sqs
  sqs_queue_url: "https://sqs.us-west-2.amazonaws.com/123/crm-audit"

authz:
  roles:
    owner: ["*"]
    estimator: ["contact:write"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, []string{"https://www.example-builders.com"}, cfg.Server.AllowedOrigins)

	assert.Equal(t, "postgres://localhost/crm?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)

	assert.Equal(t, 30, cfg.Sending.HourlyCap)
	assert.Equal(t, 120, cfg.Sending.DailyCap)
	assert.Equal(t, 5, cfg.Sending.DefaultBatchSize)
	assert.True(t, cfg.Sending.StrictDispatch)
	assert.Equal(t, "ses", cfg.Sending.Transport)

	assert.Equal(t, "sqs", cfg.Audit.Sink)
	assert.Equal(t, map[string][]string{"owner": {"*"}, "estimator": {"contact:write"}}, cfg.Authz.Roles)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 20, cfg.Sending.HourlyCap)
	assert.Equal(t, 50, cfg.Sending.DailyCap)
	assert.Equal(t, 10, cfg.Sending.DefaultBatchSize)
	assert.False(t, cfg.Sending.StrictDispatch)
	assert.Equal(t, "log", cfg.Sending.Transport)
	assert.Equal(t, "log", cfg.Audit.Sink)
	assert.Equal(t, "us-west-2", cfg.SES.Region)
	assert.Equal(t, "us-west-2", cfg.Import.S3Region)
	assert.Equal(t, 5000, cfg.Import.MaxRows)
	assert.Equal(t, DefaultRoles(), cfg.Authz.Roles)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  url: "postgres://file/crm"
sending:
  hourly_cap: 10
`)

	t.Setenv("DATABASE_URL", "postgres://env/crm")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("SENDING_HOURLY_CAP", "25")
	t.Setenv("SENDING_STRICT_DISPATCH", "true")
	t.Setenv("AUDIT_SQS_QUEUE_URL", "https://sqs.example/q")
	t.Setenv("AWS_SES_REGION", "eu-west-1")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/crm", cfg.Database.URL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 25, cfg.Sending.HourlyCap)
	assert.True(t, cfg.Sending.StrictDispatch)
	assert.Equal(t, "sqs", cfg.Audit.Sink)
	assert.Equal(t, "https://sqs.example/q", cfg.Audit.SQSQueueURL)
	assert.Equal(t, "eu-west-1", cfg.SES.Region)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestDurations(t *testing.T) {
	assert.Equal(t, 45*time.Second, SESConfig{TimeoutSeconds: 45}.Timeout())
	assert.Equal(t, 2*time.Minute, SendingConfig{LockTTLSeconds: 120}.LockTTL())
	assert.Equal(t, 5*time.Minute, DatabaseConfig{ConnMaxLifetimeMinutes: 5}.ConnMaxLifetime())
}

func TestGetHost(t *testing.T) {
	t.Setenv("ECS_CONTAINER_METADATA_URI", "")
	t.Setenv("AWS_EXECUTION_ENV", "")
	t.Setenv("SERVER_HOST", "")
	assert.Equal(t, "localhost", ServerConfig{Host: "localhost"}.GetHost())

	t.Setenv("SERVER_HOST", "10.0.0.5")
	assert.Equal(t, "10.0.0.5", ServerConfig{Host: "localhost"}.GetHost())
}
