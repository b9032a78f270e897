// Package config provides configuration loading and structs for the
// Kensaku server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool               `yaml:"debug"`
	Server      ServerConfig       `yaml:"server"`
	Storage     StorageConfig      `yaml:"storage"`
	Embedding   EmbeddingConfig    `yaml:"embedding"`
	Search      SearchConfig       `yaml:"search"`
	Fusion      FusionConfig       `yaml:"fusion"`
	Collections []CollectionConfig `yaml:"collections"`
	Watch       WatchConfig        `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the identity database and vector files.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
	VectorPath   string `yaml:"vector_path"`
}

// EmbeddingConfig holds settings for the OpenAI-compatible embedding API.
type EmbeddingConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
}

// SearchConfig holds similarity engine settings.
type SearchConfig struct {
	// Engine selects the scan implementation: "scan" or "parallel".
	Engine       string `yaml:"engine"`
	Workers      int    `yaml:"workers"`
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
}

// FusionConfig holds retrieval fusion settings.
type FusionConfig struct {
	Items           int     `yaml:"items"`
	Lang            string  `yaml:"lang"`
	Threshold       float64 `yaml:"threshold"`
	TitleCollection string  `yaml:"title_collection"`
	ChunkCollection string  `yaml:"chunk_collection"`
	TitleOverfetch  int     `yaml:"title_overfetch"`
	ChunkOverfetch  int     `yaml:"chunk_overfetch"`
}

// CollectionConfig declares one vector collection to serve.
type CollectionConfig struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Dimension int    `yaml:"dimension"`
}

// WatchConfig holds vector file watch settings.
type WatchConfig struct {
	Enabled  bool `yaml:"enabled"`
	// DebounceMillis coalesces bursts of file events into one reload.
	DebounceMillis int `yaml:"debounce_millis"`
}

// Load reads and parses the config file at path, expands paths, and
// applies defaults. Returns an error if the file cannot be read, parsed,
// or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorPath = expandPath(cfg.Storage.VectorPath, configDir)
	for i := range cfg.Collections {
		cfg.Collections[i].Path = expandPath(cfg.Collections[i].Path, configDir)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Collections))
	for _, c := range cfg.Collections {
		if c.Name == "" {
			return fmt.Errorf("collection with empty name")
		}
		if c.Path == "" {
			return fmt.Errorf("collection %q has no path", c.Name)
		}
		if c.Dimension <= 0 {
			return fmt.Errorf("collection %q has invalid dimension %d", c.Name, c.Dimension)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("duplicate collection name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
