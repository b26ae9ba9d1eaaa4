package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "qdrant", cfg.Qdrant.Provider)
	assert.Equal(t, 6334, cfg.Qdrant.Port)
	assert.Equal(t, "minio", cfg.Storage.Provider)
	assert.Equal(t, "documents", cfg.Storage.Bucket)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, 1536, cfg.Embeddings.Dimensions)
	assert.Equal(t, 1000, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 100, cfg.Pipeline.ChunkOverlap)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
log:
  level: debug
  format: console
redis:
  addr: redis.internal:6379
  password: hunter2
qdrant:
  provider: memory
pipeline:
  chunk_size: 500
  chunk_overlap: 50
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password.Value())
	assert.Equal(t, "memory", cfg.Qdrant.Provider)
	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 50, cfg.Pipeline.ChunkOverlap)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0600))

	t.Setenv("DOCIDX_SERVER_PORT", "7070")
	t.Setenv("DOCIDX_QDRANT_API_KEY", "qd-secret")
	t.Setenv("DOCIDX_STORAGE_ACCESS_KEY", "minioadmin")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "qd-secret", cfg.Qdrant.APIKey.Value())
	assert.Equal(t, "minioadmin", cfg.Storage.AccessKey)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_OversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	big := make([]byte, maxConfigFileSize+1)
	require.NoError(t, os.WriteFile(path, big, 0600))

	_, err := Load(path)
	require.ErrorContains(t, err, "too large")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Qdrant.Provider = "pinecone"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Embeddings.Provider = "cohere"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Pipeline.ChunkOverlap = cfg.Pipeline.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(struct {
		Password Secret `json:"password"`
	}{Password: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"[REDACTED]"}`, string(data))

	empty := Secret("")
	assert.Equal(t, "", empty.String())
	assert.False(t, empty.IsSet())
}

func TestDuration_UnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
