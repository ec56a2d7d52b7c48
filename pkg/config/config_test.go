package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Create temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  provider: "ollama"
  base_url: "http://localhost:11434"
  model: "mistral"
  max_tokens: 1000
  temperature: 0.5

embedding:
  provider: "ollama"
  model: "nomic-embed-text:latest"
  dimension: 768
  max_batch_size: 16
  rate_limit: 2.0
  max_attempts: 3

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  vector_dim: 768
  batch_size: 50

chunker:
  chunk_size: 500
  chunk_overlap: 100

retrieval:
  top_k: 5
  min_score: 0.2

ingest:
  id_mode: "content"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	// Verify loaded values
	assert.Equal(t, "http://localhost:11434", config.LLM.BaseURL)
	assert.Equal(t, "mistral", config.LLM.Model)
	assert.Equal(t, 1000, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, 768, config.Embedding.Dimension)
	assert.Equal(t, 16, config.Embedding.MaxBatchSize)
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, 500, config.Chunker.ChunkSize)
	assert.Equal(t, 5, config.Retrieval.TopK)
	assert.Equal(t, "content", config.Ingest.IDMode)

	// Unset values pick up defaults
	assert.Equal(t, ":8080", config.Server.Addr)
	assert.Equal(t, "ollama", config.Embedding.Provider)
}

func TestConfigDefaults(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, "reference", config.Ingest.IDMode)
	assert.Equal(t, 768, config.Database.VectorDim)
	assert.Equal(t, 1000, config.Chunker.ChunkSize)
	assert.Equal(t, 200, config.Chunker.ChunkOverlap)
	assert.Equal(t, 8, config.Retrieval.TopK)

	errs := config.Validate()
	assert.Empty(t, errs)
}

func TestConfigValidation(t *testing.T) {
	config := &Config{}
	applyDefaults(config)

	config.LLM.Provider = "gemini"  // unknown
	config.LLM.MaxTokens = 5000     // out of range
	config.LLM.Temperature = 3.0    // out of range
	config.Embedding.Dimension = -1 // invalid
	config.Ingest.IDMode = "random" // invalid

	errs := config.Validate()
	require.Len(t, errs, 5)

	fields := make([]string, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.Field)
	}
	assert.Contains(t, fields, "llm.provider")
	assert.Contains(t, fields, "llm.max_tokens")
	assert.Contains(t, fields, "llm.temperature")
	assert.Contains(t, fields, "embedding.dimension")
	assert.Contains(t, fields, "ingest.id_mode")
}

func TestEnvironmentOverrides(t *testing.T) {
	os.Setenv("OLLAMA_BASE_URL", "http://env-ollama:11434")
	os.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	defer func() {
		os.Unsetenv("OLLAMA_BASE_URL")
		os.Unsetenv("DATABASE_URL")
	}()

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "http://env-ollama:11434", config.LLM.BaseURL)
	assert.Equal(t, "http://env-ollama:11434", config.Embedding.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
}
