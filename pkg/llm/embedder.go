package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"
)

// EmbedderConfig configures an Ollama-backed embedding provider.
type EmbedderConfig struct {
	Model        string
	BaseURL      string // Ollama server URL
	MaxBatchSize int
}

// OllamaEmbedder produces fixed-dimension embeddings through a local
// Ollama server.
type OllamaEmbedder struct {
	config EmbedderConfig
	llm    *ollama.LLM
}

func NewOllamaEmbedder(config EmbedderConfig) (*OllamaEmbedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 32
	}

	llm, err := ollama.New(
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &OllamaEmbedder{
		config: config,
		llm:    llm,
	}, nil
}

func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := e.llm.CreateEmbedding(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ollama embedding: %w", err)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedding: got %d vectors for %d texts", len(embeddings), len(texts))
	}
	return embeddings, nil
}

func (e *OllamaEmbedder) MaxBatchSize() int {
	return e.config.MaxBatchSize
}
