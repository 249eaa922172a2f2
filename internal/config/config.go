// Package config loads and validates answervet configuration.
// Configuration lives in .answervet/config.yaml with environment overrides
// for secrets and deployment-specific endpoints.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all answervet configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM capability backend
	LLM LLMConfig `yaml:"llm"`

	// Answer workflow settings
	Workflow WorkflowConfig `yaml:"workflow"`

	// Link verification settings
	Links LinksConfig `yaml:"links"`

	// Batch engine settings
	Batch BatchConfig `yaml:"batch"`

	// Audit store
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation/validation capability backend.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// WorkflowConfig configures the per-question answer workflow.
type WorkflowConfig struct {
	MaxAttempts      int    `yaml:"max_attempts"`
	CharLimit        int    `yaml:"char_limit"`
	ValidateTimeout  string `yaml:"validate_timeout"`
	GenerateTimeout  string `yaml:"generate_timeout"`
}

// LinksConfig configures link verification.
type LinksConfig struct {
	ProbeTimeout     string `yaml:"probe_timeout"`     // reachability probe
	FetchTimeout     string `yaml:"fetch_timeout"`     // content fetch for relevance
	RelevanceTimeout string `yaml:"relevance_timeout"` // relevance LLM call
	MaxContentBytes  int64  `yaml:"max_content_bytes"`
	UseBrowser       bool   `yaml:"use_browser"` // rod-rendered fetch for script-heavy pages
	UserAgent        string `yaml:"user_agent"`
}

// BatchConfig configures the parallel batch engine.
type BatchConfig struct {
	Workers int `yaml:"workers"`
}

// StoreConfig configures the SQLite audit store.
type StoreConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures categorized file logging.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"` // debug, info, warn, error
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "answervet",
		Version: "1.0.0",

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-3-flash-preview",
			Timeout:  "120s",
		},

		Workflow: WorkflowConfig{
			MaxAttempts:     3,
			CharLimit:       2000,
			ValidateTimeout: "90s",
			GenerateTimeout: "120s",
		},

		Links: LinksConfig{
			ProbeTimeout:     "10s",
			FetchTimeout:     "30s",
			RelevanceTimeout: "60s",
			MaxContentBytes:  2 << 20,
			UseBrowser:       false,
			UserAgent:        "Mozilla/5.0 (compatible; answervet/1.0)",
		},

		Batch: BatchConfig{
			Workers: 3,
		},

		Store: StoreConfig{
			Enabled:      true,
			DatabasePath: ".answervet/audit.db",
		},

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields defaults; environment overrides always apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.LLM.Provider == "" {
			c.LLM.Provider = "gemini"
		}
	}
	if model := os.Getenv("ANSWERVET_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if path := os.Getenv("ANSWERVET_DB"); path != "" {
		c.Store.DatabasePath = path
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Workflow.MaxAttempts < 1 {
		return fmt.Errorf("workflow.max_attempts must be >= 1, got %d", c.Workflow.MaxAttempts)
	}
	if c.Workflow.CharLimit < 1 {
		return fmt.Errorf("workflow.char_limit must be >= 1, got %d", c.Workflow.CharLimit)
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be >= 1, got %d", c.Batch.Workers)
	}
	return nil
}

// parseDuration parses a duration string, falling back to a default.
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// LLMTimeout returns the LLM call timeout as a duration.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 120*time.Second)
}

// GenerateTimeout returns the generation call timeout.
func (c *Config) GenerateTimeout() time.Duration {
	return parseDuration(c.Workflow.GenerateTimeout, 120*time.Second)
}

// ValidateTimeout returns the factual validation call timeout.
func (c *Config) ValidateTimeout() time.Duration {
	return parseDuration(c.Workflow.ValidateTimeout, 90*time.Second)
}

// ProbeTimeout returns the link reachability probe timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return parseDuration(c.Links.ProbeTimeout, 10*time.Second)
}

// FetchTimeout returns the link content fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return parseDuration(c.Links.FetchTimeout, 30*time.Second)
}

// RelevanceTimeout returns the relevance judgment call timeout.
func (c *Config) RelevanceTimeout() time.Duration {
	return parseDuration(c.Links.RelevanceTimeout, 60*time.Second)
}
