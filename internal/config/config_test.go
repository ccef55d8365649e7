package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, 4, cfg.Crawler.Workers)
	require.Equal(t, 50, cfg.Crawler.MaxPagesDefault)
	require.Equal(t, 5*time.Minute, cfg.JobBudget())
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, "crawl_jobs", cfg.DB.JobsTable)
	require.Equal(t, time.Hour, cfg.DB.MaxConnLifetime)
	require.True(t, cfg.Progress.Enabled)
	require.Equal(t, 256, cfg.Progress.Batch.MaxEvents)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
crawler:
  workers: 6
  user_agent: real-agent
  ignore_robots: true
  max_pages_default: 20
  max_pages_limit: 200
  budget_seconds: 120
classify:
  max_service_pages: 5
http:
  timeout_seconds: 45
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
storage:
  archive_pages: true
  backend: local
  local:
    base_dir: /tmp/pages
db:
  dsn: postgres://localhost/crawler
  max_conn_lifetime: 30m
pubsub:
  project_id: proj
  topic_name: crawl-finished
logging:
  development: false
  level: warn
progress:
  batch:
    max_wait_ms: 100
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.True(t, cfg.Auth.Enabled)
	require.Equal(t, "secret", cfg.Auth.APIKey)
	require.Equal(t, 6, cfg.Crawler.Workers)
	require.True(t, cfg.Crawler.IgnoreRobots)
	require.Equal(t, 2*time.Minute, cfg.JobBudget())
	require.Equal(t, 5, cfg.Classify.MaxServicePages)
	require.Equal(t, 20, cfg.Classify.MaxBlogArticles)
	require.Equal(t, 45*time.Second, cfg.FetchTimeout())
	require.Equal(t, "/tmp/pages", cfg.Storage.Local.BaseDir)
	require.Equal(t, 30*time.Minute, cfg.DB.MaxConnLifetime)
	require.Equal(t, "crawl-finished", cfg.PubSub.TopicName)
	require.Equal(t, "warn", cfg.Logging.Level)
	require.Equal(t, 100, cfg.Progress.Batch.MaxWaitMs)
	require.Equal(t, 256, cfg.Progress.Batch.MaxEvents)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_CRAWLER_WORKERS", "9")
	t.Setenv("CRAWLER_STORAGE_BACKEND", "gcs")
	t.Setenv("CRAWLER_STORAGE_BUCKET", "pages-bucket")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Crawler.Workers)
	require.Equal(t, "gcs", cfg.Storage.Backend)
	require.Equal(t, "pages-bucket", cfg.Storage.Bucket)
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Workers: 1, MaxPagesDefault: 10, MaxPagesLimit: 100, BudgetSeconds: 60},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Storage: StorageConfig{Backend: "memory"},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "invalid workers", mutate: func(c *Config) { c.Crawler.Workers = 0 }, want: "crawler.workers"},
		{name: "negative queue depth", mutate: func(c *Config) { c.Crawler.QueueDepth = -1 }, want: "crawler.queue_depth"},
		{name: "limit below default", mutate: func(c *Config) { c.Crawler.MaxPagesLimit = 5 }, want: "crawler.max_pages_limit"},
		{name: "no budget", mutate: func(c *Config) { c.Crawler.BudgetSeconds = 0 }, want: "crawler.budget_seconds"},
		{name: "invalid timeout", mutate: func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, want: "http.timeout_seconds"},
		{
			name: "headless missing max parallel",
			mutate: func(c *Config) {
				c.Headless.Enabled = true
				c.Headless.MaxParallel = 0
			},
			want: "headless.max_parallel",
		},
		{name: "rate limit without rps", mutate: func(c *Config) { c.RateLimit.Enabled = true }, want: "rate_limit.default_rps"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "s3" }, want: "storage.backend"},
		{
			name: "gcs without bucket",
			mutate: func(c *Config) {
				c.Storage.ArchivePages = true
				c.Storage.Backend = "gcs"
			},
			want: "storage.bucket",
		},
		{name: "topic without project", mutate: func(c *Config) { c.PubSub.TopicName = "t" }, want: "pubsub.project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
