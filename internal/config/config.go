// Package config provides configuration loading and structs for the sokkuri services.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/sokkuri/internal/errs"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for both the backend server and the
// embedding service. It is built once at startup and passed explicitly
// into each component.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Embedder  ServerConfig    `yaml:"embedder"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP listen settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds object store (MinIO / S3-compatible) settings.
// UserBucket holds user-uploaded screenshots; ProcessedBucket holds
// derived, preprocessed copies.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKey       string `yaml:"access_key"`
	SecretKey       string `yaml:"secret_key"`
	Secure          bool   `yaml:"secure"`
	UserBucket      string `yaml:"user_bucket"`
	ProcessedBucket string `yaml:"processed_bucket"`
}

// IndexConfig holds vector index (Qdrant) settings. Dimensions and
// Distance define the collection schema validated at startup.
type IndexConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Dimensions int    `yaml:"dimensions"`
	Distance   string `yaml:"distance"`
}

// EmbeddingConfig holds settings for both sides of the embedding boundary:
// ServiceURL is used by the backend client; the remaining fields configure
// the embedding service's ONNX engine and its admission queue.
type EmbeddingConfig struct {
	ServiceURL          string `yaml:"service_url"`
	ModelPath           string `yaml:"model_path"`
	ModelName           string `yaml:"model_name"`
	Device              string `yaml:"device"`
	Dimensions          int    `yaml:"dimensions"`
	InputSize           int    `yaml:"input_size"`
	MaxConcurrent       int    `yaml:"max_concurrent"`
	QueueTimeoutSeconds int    `yaml:"queue_timeout_seconds"`
}

// QueueTimeout returns the admission queue wait bound.
func (e *EmbeddingConfig) QueueTimeout() time.Duration {
	return time.Duration(e.QueueTimeoutSeconds) * time.Second
}

// SearchConfig holds similarity resolution settings. DefaultTopK and
// PrefetchMultiplier have no defaults on purpose: leaving them unset is a
// startup error, never a silent per-request fallback.
type SearchConfig struct {
	DefaultTopK        int `yaml:"default_top_k"`
	PrefetchMultiplier int `yaml:"prefetch_multiplier"`
	TargetWidth        int `yaml:"target_width"`
}

// WatchConfig holds drop-directory watcher settings. The watcher is
// disabled when Directory is empty.
type WatchConfig struct {
	Directory       string   `yaml:"directory"`
	Extensions      []string `yaml:"extensions"`
	IngestPerSecond float64  `yaml:"ingest_per_second"`
}

// Load reads and parses the config file at path, applies defaults, and
// expands paths. Call Validate before serving traffic.
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
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if cfg.Watch.Directory != "" {
		cfg.Watch.Directory = expandPath(cfg.Watch.Directory, configDir)
	}

	return &cfg, nil
}

// Validate checks every required backend setting and reports all missing or
// invalid ones at once. A non-nil result is a fatal startup configuration error.
func (c *Config) Validate() error {
	var missing []string
	missing = append(missing, c.storageMissing()...)
	if c.Storage.UserBucket == "" {
		missing = append(missing, "storage.user_bucket")
	}
	if c.Storage.ProcessedBucket == "" {
		missing = append(missing, "storage.processed_bucket")
	}
	if c.Index.URL == "" {
		missing = append(missing, "index.url")
	}
	if c.Index.Collection == "" {
		missing = append(missing, "index.collection")
	}
	if c.Index.Dimensions <= 0 {
		missing = append(missing, "index.dimensions (positive int)")
	}
	if c.Embedding.ServiceURL == "" {
		missing = append(missing, "embedding.service_url")
	}
	if c.Search.DefaultTopK <= 0 {
		missing = append(missing, "search.default_top_k (positive int)")
	}
	if c.Search.PrefetchMultiplier <= 0 {
		missing = append(missing, "search.prefetch_multiplier (positive int)")
	}
	if len(missing) > 0 {
		return errs.Newf(errs.KindConfig, "config.Validate",
			"missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateEmbedder checks the subset of settings the embedding service
// needs; it does not require backend-only keys such as the index URL.
func (c *Config) ValidateEmbedder() error {
	missing := c.storageMissing()
	if c.Embedding.ModelPath == "" {
		missing = append(missing, "embedding.model_path")
	}
	if c.Embedding.Dimensions <= 0 {
		missing = append(missing, "embedding.dimensions (positive int)")
	}
	if len(missing) > 0 {
		return errs.Newf(errs.KindConfig, "config.ValidateEmbedder",
			"missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) storageMissing() []string {
	var missing []string
	if c.Storage.Endpoint == "" {
		missing = append(missing, "storage.endpoint")
	}
	if c.Storage.AccessKey == "" {
		missing = append(missing, "storage.access_key")
	}
	if c.Storage.SecretKey == "" {
		missing = append(missing, "storage.secret_key")
	}
	return missing
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home directory.
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
