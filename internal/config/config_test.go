package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFiles_Defaults(t *testing.T) {
	t.Setenv("PROJECT_ID", "demo-project")

	cfg, err := LoadFiles("", "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, LLMVertex, cfg.LLM.Backend)
	assert.Equal(t, 5, cfg.Ingest.CommitAttempts)
	assert.Equal(t, 60*time.Second, cfg.Chat.Timeout)
	assert.Equal(t, "demo-project", cfg.GCP.ProjectID)
}

func TestLoadFiles_YAMLThenEnv(t *testing.T) {
	yamlPath := writeFile(t, "explorer.yaml", `
server:
  addr: ":9000"
  password: secret
store:
  backend: badger
  badgerDir: /tmp/trials
llm:
  backend: openai
  model: gpt-4o-mini
ingest:
  backoff: 2s
  parallelism: 4
chat:
  maxRows: 50
logLevel: debug
`)
	t.Setenv("QUERY_MAX_ROWS", "75")
	t.Setenv("APP_PASSWORD", "from-env")

	cfg, err := LoadFiles(yamlPath, "")
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Server.Password)
	assert.Equal(t, StoreBadger, cfg.Store.Backend)
	assert.Equal(t, "/tmp/trials", cfg.Store.BadgerDir)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 2*time.Second, cfg.Ingest.Backoff)
	assert.Equal(t, 4, cfg.Ingest.Parallelism)
	assert.Equal(t, 3, cfg.Ingest.ExtractAttempts)
	assert.Equal(t, 75, cfg.Chat.MaxRows)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadFiles_DotEnv(t *testing.T) {
	envPath := writeFile(t, ".env", "LLM_BACKEND=openai\nLLM_MODEL=local-model\nOPENAI_BASE_URL=http://localhost:11434/v1\n")
	t.Setenv("LLM_MODEL", "explicit-model")
	t.Cleanup(func() {
		os.Unsetenv("LLM_BACKEND")
		os.Unsetenv("OPENAI_BASE_URL")
	})

	cfg, err := LoadFiles("", envPath)
	require.NoError(t, err)
	assert.Equal(t, LLMOpenAI, cfg.LLM.Backend)
	assert.Equal(t, "explicit-model", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.LLM.BaseURL)
}

func TestLoadFiles_MissingEnvFileIgnored(t *testing.T) {
	t.Setenv("PROJECT_ID", "p")
	_, err := LoadFiles("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoadFiles_Errors(t *testing.T) {
	t.Setenv("PROJECT_ID", "p")

	_, err := LoadFiles(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	_, err = LoadFiles(writeFile(t, "bad.yaml", "store: [unclosed"), "")
	assert.Error(t, err)

	t.Setenv("EXTRACT_TIMEOUT", "soon")
	_, err = LoadFiles("", "")
	assert.ErrorContains(t, err, "EXTRACT_TIMEOUT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"memory vertex", func(c *Config) { c.GCP.ProjectID = "p" }, true},
		{"vertex without project", func(c *Config) {}, false},
		{"gcs without bucket", func(c *Config) { c.GCP.ProjectID = "p"; c.Store.Backend = StoreGCS }, false},
		{"unknown store", func(c *Config) { c.GCP.ProjectID = "p"; c.Store.Backend = "s3" }, false},
		{"unknown llm", func(c *Config) { c.LLM.Backend = "bard" }, false},
		{"openai", func(c *Config) { c.LLM.Backend = LLMOpenAI }, true},
		{"firestore without project", func(c *Config) {
			c.LLM.Backend = LLMOpenAI
			c.GCP.FirestoreCollection = "trials"
		}, false},
		{"zero attempts", func(c *Config) { c.GCP.ProjectID = "p"; c.Ingest.CommitAttempts = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoadFiles_StoreOnlyValidation(t *testing.T) {
	// Read-only tools load without any completion backend configured.
	t.Setenv("PROJECT_ID", "")
	cfg, err := LoadFiles("", "")
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	t.Setenv("STORE_BACKEND", StoreGCS)
	_, err = LoadFiles("", "")
	assert.Error(t, err)
}

func TestSlogLevelFallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}
