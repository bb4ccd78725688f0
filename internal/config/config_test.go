package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultChunkSize, cfg.RAG.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.RAG.ChunkOverlap)
	assert.Equal(t, DefaultTopK, cfg.RAG.TopK)
	assert.Equal(t, []string{"pdf"}, cfg.RAG.AllowedTypes)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultDimension, cfg.EmbedLLM.Dimension)
	assert.Equal(t, 30*time.Second, cfg.EmbedLLM.Timeout)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  driver: postgres
  dsn: postgres://localhost/study
embed_llm:
  provider: hash
  dimension: 64
  timeout: 5s
rag:
  chunk_size: 500
  allowed_types: [pdf, md]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	t.Setenv("CORS_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("DATABASE_DSN", "postgres://override/study")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://override/study", cfg.Database.DSN)
	assert.Equal(t, "hash", cfg.EmbedLLM.Provider)
	assert.Equal(t, 64, cfg.EmbedLLM.Dimension)
	assert.Equal(t, 5*time.Second, cfg.EmbedLLM.Timeout)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 100, cfg.RAG.ChunkOverlap)
	assert.Equal(t, []string{"pdf", "md"}, cfg.RAG.AllowedTypes)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestLoadConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rag: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
