package llm

import (
	"fmt"

	"github.com/xhad/ask/internal/types"
	"github.com/xhad/ask/pkg/config"
)

// NewEmbedder selects an embedding provider from configuration. Provider
// identity is decided exactly once, here; nothing downstream branches on
// it.
func NewEmbedder(cfg config.EmbeddingConfig) (types.Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllamaEmbedder(EmbedderConfig{
			Model:        cfg.Model,
			BaseURL:      cfg.BaseURL,
			MaxBatchSize: cfg.MaxBatchSize,
		})
	case "openai":
		return NewOpenAIEmbedder(cfg.Model, cfg.MaxBatchSize)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// NewGenerator selects a generation provider from configuration.
func NewGenerator(cfg config.LLMConfig) (types.Generator, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewChatEngine(ChatConfig{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			BaseURL:     cfg.BaseURL,
		})
	case "openai":
		return NewOpenAIGenerator(ChatConfig{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
