// Package config loads runtime settings for the explorer binaries.
//
// Values are resolved in order: built-in defaults, an optional YAML file named by
// EXPLORER_CONFIG, a .env file, then individual environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/gcp"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configPathEnv  = "EXPLORER_CONFIG"
	defaultEnvFile = ".env"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreGCS    = "gcs"
)

// LLM backends.
const (
	LLMVertex = "vertex"
	LLMOpenAI = "openai"
)

// Config holds every setting shared by the server, the functions and the CLI.
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Store    StoreConfig  `yaml:"store"`
	GCP      GCPConfig    `yaml:"gcp"`
	LLM      LLMConfig    `yaml:"llm"`
	Ingest   IngestConfig `yaml:"ingest"`
	Chat     ChatConfig   `yaml:"chat"`
	LogLevel string       `yaml:"logLevel"`
}

// ServerConfig describes the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Password is the single shared password. Empty disables auth.
	Password  string `yaml:"password"`
	BodyLimit string `yaml:"bodyLimit"`
}

// StoreConfig selects the object store backend.
type StoreConfig struct {
	Backend   string `yaml:"backend"`
	Bucket    string `yaml:"bucket"`
	BadgerDir string `yaml:"badgerDir"`
}

// GCPConfig carries project-level settings for Vertex AI and Firestore.
type GCPConfig struct {
	ProjectID string `yaml:"projectId"`
	Region    string `yaml:"region"`
	// FirestoreCollection enables status tracking when set.
	FirestoreCollection string `yaml:"firestoreCollection"`
}

// LLMConfig describes the completion backend.
type LLMConfig struct {
	Backend     string  `yaml:"backend"`
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"apiKey"`
	BaseURL     string  `yaml:"baseUrl"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// IngestConfig tunes the ingestion pipeline and extractor.
type IngestConfig struct {
	CommitAttempts     int           `yaml:"commitAttempts"`
	ExtractAttempts    int           `yaml:"extractAttempts"`
	Backoff            time.Duration `yaml:"backoff"`
	ExtractTimeout     time.Duration `yaml:"extractTimeout"`
	Parallelism        int           `yaml:"parallelism"`
	SectionParallelism int           `yaml:"sectionParallelism"`
	ChunkSize          int           `yaml:"chunkSize"`
}

// ChatConfig tunes the chat service and query engine.
type ChatConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	TopK    int           `yaml:"topK"`
	MaxRows int           `yaml:"maxRows"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:      ":8080",
			BodyLimit: "64M",
		},
		Store: StoreConfig{
			Backend:   StoreMemory,
			BadgerDir: "./data/store",
		},
		GCP: GCPConfig{
			Region: "us-central1",
		},
		LLM: LLMConfig{
			Backend:   LLMVertex,
			Model:     gcp.DefaultVertexModel,
			MaxTokens: 4096,
		},
		Ingest: IngestConfig{
			CommitAttempts:     5,
			ExtractAttempts:    3,
			Backoff:            500 * time.Millisecond,
			ExtractTimeout:     5 * time.Minute,
			Parallelism:        1,
			SectionParallelism: 3,
			ChunkSize:          64000,
		},
		Chat: ChatConfig{
			Timeout: 60 * time.Second,
			TopK:    5,
			MaxRows: 200,
		},
		LogLevel: "info",
	}
}

// Load resolves the configuration from EXPLORER_CONFIG, ./.env and the environment.
func Load() (*Config, error) {
	return LoadFiles(os.Getenv(configPathEnv), defaultEnvFile)
}

// LoadFiles resolves the configuration from an optional YAML file and an optional
// dotenv file. Missing files are skipped.
func LoadFiles(yamlPath, envPath string) (*Config, error) {
	cfg := Default()

	if yamlPath != "" {
		raw, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", yamlPath, err)
		}
	}

	if envPath != "" {
		// godotenv never overwrites variables that are already set.
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envPath, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateStore(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	c.Server.Addr = gcp.GetEnv("LISTEN_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.Password = gcp.GetEnv("APP_PASSWORD", c.Server.Password)

	c.Store.Backend = gcp.GetEnv("STORE_BACKEND", c.Store.Backend)
	c.Store.Bucket = gcp.GetEnv("BUCKET_NAME", c.Store.Bucket)
	c.Store.BadgerDir = gcp.GetEnv("BADGER_DIR", c.Store.BadgerDir)

	c.GCP.ProjectID = gcp.GetEnv("PROJECT_ID", c.GCP.ProjectID)
	c.GCP.Region = gcp.GetEnv("VERTEX_AI_REGION", c.GCP.Region)
	c.GCP.FirestoreCollection = gcp.GetEnv("FIRESTORE_COLLECTION", c.GCP.FirestoreCollection)

	c.LLM.Backend = gcp.GetEnv("LLM_BACKEND", c.LLM.Backend)
	c.LLM.Model = gcp.GetEnv("LLM_MODEL", c.LLM.Model)
	c.LLM.APIKey = gcp.GetEnv("OPENAI_API_KEY", c.LLM.APIKey)
	c.LLM.BaseURL = gcp.GetEnv("OPENAI_BASE_URL", c.LLM.BaseURL)

	c.LogLevel = gcp.GetEnv("LOG_LEVEL", c.LogLevel)

	var errs []error
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setInt("COMMIT_ATTEMPTS", &c.Ingest.CommitAttempts)
	setInt("EXTRACT_ATTEMPTS", &c.Ingest.ExtractAttempts)
	setDuration("RETRY_BACKOFF", &c.Ingest.Backoff)
	setDuration("EXTRACT_TIMEOUT", &c.Ingest.ExtractTimeout)
	setInt("INGEST_PARALLELISM", &c.Ingest.Parallelism)
	setDuration("CHAT_TIMEOUT", &c.Chat.Timeout)
	setInt("QUERY_MAX_ROWS", &c.Chat.MaxRows)
	return errors.Join(errs...)
}

// ValidateStore checks the settings needed to open the object store. Read-only
// tools need nothing more.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case StoreMemory:
	case StoreBadger:
		if c.Store.BadgerDir == "" {
			return fmt.Errorf("store backend %q requires a badger directory", c.Store.Backend)
		}
	case StoreGCS:
		if c.Store.Bucket == "" {
			return fmt.Errorf("store backend %q requires BUCKET_NAME", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if c.Ingest.CommitAttempts < 1 || c.Ingest.ExtractAttempts < 1 {
		return fmt.Errorf("commit and extract attempts must be at least 1")
	}
	return nil
}

// Validate checks every setting, including the completion backend.
func (c *Config) Validate() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	switch c.LLM.Backend {
	case LLMVertex:
		if c.GCP.ProjectID == "" {
			return fmt.Errorf("llm backend %q requires PROJECT_ID", c.LLM.Backend)
		}
	case LLMOpenAI:
		if c.LLM.Model == "" {
			return fmt.Errorf("llm backend %q requires a model", c.LLM.Backend)
		}
	default:
		return fmt.Errorf("unknown llm backend %q", c.LLM.Backend)
	}

	if c.GCP.FirestoreCollection != "" && c.GCP.ProjectID == "" {
		return fmt.Errorf("firestore tracking requires PROJECT_ID")
	}
	return nil
}

// SlogLevel parses LogLevel, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
