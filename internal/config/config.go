package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/language"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required unless a custom translator is wired)
// - LLM_API_URL: API endpoint URL (default: https://openrouter.ai/api/v1)
// - LLM_MODEL: Model name to use (default: openai/gpt-4o-mini)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8192)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.7)
// - LLM_TIMEOUT: Request timeout in seconds (default: 300)
//
// Pipeline Configuration:
// - MAX_CHUNK_TOKENS: Token budget per chunk (default: 8000)
// - OVERLAP_SENTENCES: Sentences carried between chunks (default: 2)
// - MAX_RETRIES: Translation attempts per chunk (default: 3)
// - RETRY_INITIAL_DELAY_MS: First backoff delay in milliseconds (default: 1000)
// - CHUNK_TIMEOUT: Per-chunk wall clock timeout in seconds (default: 300)
// - SOURCE_LANG: Default source language (default: en, auto-detected when empty)
// - TARGET_LANG: Target language tag (default: zh)
//
// Store Configuration:
// - JOB_TTL_MINUTES: Job record time-to-live (default: 30)
// - JOB_MAX_ENTRIES: Job store capacity (default: 100)
//
// Persistence Configuration:
// - DATA_DIR: Snapshot directory (default: data)
// - SNAPSHOT_INTERVAL: Snapshot save interval in seconds (default: 30)
// - TASK_RETENTION_DAYS: Retention window for terminal jobs (default: 7)
//
// Server Configuration:
// - HTTP_ADDR: Listen address (default: :5000)
// - ACCESS_KEYS: Comma separated access keys, empty disables auth
// - LOG_LEVEL: debug|info|warn|error (default: info)
//
// Notion Configuration:
// - NOTION_API_KEY, NOTION_PARENT_PAGE_ID: publishing target, empty disables publishing

type Config struct {
	LLM         LLMConfig         `json:"llm"`
	Pipeline    PipelineConfig    `json:"pipeline"`
	Store       StoreConfig       `json:"store"`
	Persistence PersistenceConfig `json:"persistence"`
	Server      ServerConfig      `json:"server"`
	Notion      NotionConfig      `json:"notion"`
}

// LLMConfig holds the configuration for the LLM translation client
// Supports any OpenAI-compatible provider (OpenRouter, OpenAI, etc.)
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
}

// PipelineConfig holds splitting and retry settings for the job worker
type PipelineConfig struct {
	MaxChunkTokens    int           `json:"max_chunk_tokens"`
	OverlapSentences  int           `json:"overlap_sentences"`
	MaxRetries        int           `json:"max_retries"`
	RetryInitialDelay time.Duration `json:"retry_initial_delay"`
	ChunkTimeout      time.Duration `json:"chunk_timeout"`
	SourceLanguage    string        `json:"source_language"`
	TargetLanguage    language.Tag  `json:"target_language"`
}

// StoreConfig bounds the in-memory job store
type StoreConfig struct {
	TTL        time.Duration `json:"ttl"`
	MaxEntries int           `json:"max_entries"`
}

// PersistenceConfig controls on-disk snapshots
type PersistenceConfig struct {
	DataDir          string        `json:"data_dir"`
	SnapshotInterval time.Duration `json:"snapshot_interval"`
	Retention        time.Duration `json:"retention"`
}

// ServerConfig holds the HTTP server configuration
type ServerConfig struct {
	Addr       string   `json:"addr"`
	AccessKeys []string `json:"access_keys"`
	LogLevel   string   `json:"log_level"`
}

// NotionConfig holds the configuration for the Notion publisher
type NotionConfig struct {
	APIKey       string `json:"api_key"`
	ParentPageID string `json:"parent_page_id"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
// A local .env file is loaded first when present.
func NewFromEnv(opts ...Option) (*Config, error) {
	_ = godotenv.Load()

	targetLang, err := language.Parse(getEnvString("TARGET_LANG", "zh"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANG: %w", err)
	}

	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://openrouter.ai/api/v1"),
			Model:       getEnvString("LLM_MODEL", "openai/gpt-4o-mini"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8192),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.7),
			Timeout:     getEnvInt("LLM_TIMEOUT", 300),
		},
		Pipeline: PipelineConfig{
			MaxChunkTokens:    getEnvInt("MAX_CHUNK_TOKENS", 8000),
			OverlapSentences:  getEnvInt("OVERLAP_SENTENCES", 2),
			MaxRetries:        getEnvInt("MAX_RETRIES", 3),
			RetryInitialDelay: time.Duration(getEnvInt("RETRY_INITIAL_DELAY_MS", 1000)) * time.Millisecond,
			ChunkTimeout:      time.Duration(getEnvInt("CHUNK_TIMEOUT", 300)) * time.Second,
			SourceLanguage:    getEnvString("SOURCE_LANG", "en"),
			TargetLanguage:    targetLang,
		},
		Store: StoreConfig{
			TTL:        time.Duration(getEnvInt("JOB_TTL_MINUTES", 30)) * time.Minute,
			MaxEntries: getEnvInt("JOB_MAX_ENTRIES", 100),
		},
		Persistence: PersistenceConfig{
			DataDir:          getEnvString("DATA_DIR", "data"),
			SnapshotInterval: time.Duration(getEnvInt("SNAPSHOT_INTERVAL", 30)) * time.Second,
			Retention:        time.Duration(getEnvInt("TASK_RETENTION_DAYS", 7)) * 24 * time.Hour,
		},
		Server: ServerConfig{
			Addr:       getEnvString("HTTP_ADDR", ":5000"),
			AccessKeys: splitKeys(getEnvString("ACCESS_KEYS", "")),
			LogLevel:   getEnvString("LOG_LEVEL", "info"),
		},
		Notion: NotionConfig{
			APIKey:       getEnvString("NOTION_API_KEY", ""),
			ParentPageID: getEnvString("NOTION_PARENT_PAGE_ID", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Pipeline.MaxChunkTokens <= 0 {
		return fmt.Errorf("MAX_CHUNK_TOKENS must be positive")
	}
	if c.Pipeline.MaxRetries <= 0 {
		return fmt.Errorf("MAX_RETRIES must be positive")
	}
	if c.Store.MaxEntries <= 0 {
		return fmt.Errorf("JOB_MAX_ENTRIES must be positive")
	}
	if c.Persistence.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	return nil
}

func splitKeys(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if k := strings.TrimSpace(p); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
