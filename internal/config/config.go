// Package config provides configuration loading for docidx.
package config

import (
	"fmt"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Redis      RedisConfig      `koanf:"redis"`
	Qdrant     QdrantConfig     `koanf:"qdrant"`
	Storage    StorageConfig    `koanf:"storage"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LogConfig configures the root logger.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, console
}

// RedisConfig configures the record store backend.
type RedisConfig struct {
	Addr        string   `koanf:"addr"`
	Password    Secret   `koanf:"password"`
	DB          int      `koanf:"db"`
	DialTimeout Duration `koanf:"dial_timeout"`
}

// QdrantConfig configures the search index backend. Provider "memory"
// swaps in the in-process adapter for local development.
type QdrantConfig struct {
	Provider       string   `koanf:"provider"` // qdrant, memory
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	APIKey         Secret   `koanf:"api_key"`
	UseTLS         bool     `koanf:"use_tls"`
	ConnectTimeout Duration `koanf:"connect_timeout"`
}

// StorageConfig configures the raw document store. Provider "memory"
// swaps in the in-process store for local development.
type StorageConfig struct {
	Provider  string `koanf:"provider"` // minio, memory
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey Secret `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// EmbeddingsConfig configures the embedding backend. Provider "fake"
// produces deterministic local vectors for development and tests.
type EmbeddingsConfig struct {
	Provider   string `koanf:"provider"` // openai, fake
	BaseURL    string `koanf:"base_url"`
	Model      string `koanf:"model"`
	APIKey     Secret `koanf:"api_key"`
	Dimensions int    `koanf:"dimensions"`
}

// PipelineConfig configures document chunking.
type PipelineConfig struct {
	ChunkSize    int `koanf:"chunk_size"`
	ChunkOverlap int `koanf:"chunk_overlap"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = Duration(5 * time.Second)
	}

	if cfg.Qdrant.Provider == "" {
		cfg.Qdrant.Provider = "qdrant"
	}
	if cfg.Qdrant.Host == "" {
		cfg.Qdrant.Host = "localhost"
	}
	if cfg.Qdrant.Port == 0 {
		cfg.Qdrant.Port = 6334
	}
	if cfg.Qdrant.ConnectTimeout == 0 {
		cfg.Qdrant.ConnectTimeout = Duration(5 * time.Second)
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "minio"
	}
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = "localhost:9000"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "documents"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "openai"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.Dimensions == 0 {
		cfg.Embeddings.Dimensions = 1536
	}

	if cfg.Pipeline.ChunkSize == 0 {
		cfg.Pipeline.ChunkSize = 1000
	}
	if cfg.Pipeline.ChunkOverlap == 0 {
		cfg.Pipeline.ChunkOverlap = 100
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level invalid: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format invalid: %q", c.Log.Format)
	}

	switch c.Qdrant.Provider {
	case "qdrant", "memory":
	default:
		return fmt.Errorf("qdrant.provider invalid: %q", c.Qdrant.Provider)
	}

	switch c.Storage.Provider {
	case "minio", "memory":
	default:
		return fmt.Errorf("storage.provider invalid: %q", c.Storage.Provider)
	}

	switch c.Embeddings.Provider {
	case "openai", "fake":
	default:
		return fmt.Errorf("embeddings.provider invalid: %q", c.Embeddings.Provider)
	}

	if c.Pipeline.ChunkSize <= 0 {
		return fmt.Errorf("pipeline.chunk_size must be positive: %d", c.Pipeline.ChunkSize)
	}
	if c.Pipeline.ChunkOverlap < 0 || c.Pipeline.ChunkOverlap >= c.Pipeline.ChunkSize {
		return fmt.Errorf("pipeline.chunk_overlap must be in [0, chunk_size): %d", c.Pipeline.ChunkOverlap)
	}

	return nil
}
