// Package config handles Docent configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/docent/config.yaml, /etc/docent/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "docent", "config.yaml"))
	}

	paths = append(paths, "/etc/docent/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Docent configuration.
type Config struct {
	Listen        ListenConfig   `yaml:"listen"`
	Provider      ProviderConfig `yaml:"provider"`
	KnowledgeBase KBConfig       `yaml:"knowledge_base"`
	DataDir       string         `yaml:"data_dir"`
	LogLevel      string         `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8080
}

// ProviderConfig defines the completion provider connection.
// Any OpenAI-compatible endpoint works (OpenAI, OpenRouter, Ollama's
// /v1 compatibility layer).
type ProviderConfig struct {
	BaseURL string `yaml:"base_url"` // Default: https://api.openai.com/v1
	// APIKey supports ${ENV_VAR} expansion so the key can live in the
	// environment rather than the config file.
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"` // Per-request timeout (default 60)
}

// Timeout returns the provider request timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

// KBConfig defines the knowledge base settings.
type KBConfig struct {
	// Dir is the directory containing knowledge articles
	// (.txt, .md, .html files). Created if missing.
	Dir string `yaml:"dir"`
}

// Load reads and parses the config file at path, applies environment
// variable expansion to secret fields, and fills defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.Provider.APIKey = os.ExpandEnv(cfg.Provider.APIKey)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "https://api.openai.com/v1"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "gpt-4-turbo-preview"
	}
	if c.Provider.TimeoutSec == 0 {
		c.Provider.TimeoutSec = 60
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.KnowledgeBase.Dir == "" {
		c.KnowledgeBase.Dir = "knowledge"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port %d", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DatabasePath returns the sqlite database location under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "docent.db")
}
