package types

import (
	"context"

	"github.com/xhad/ask/internal/models"
)

// Extractor turns a source reference (file path or URL) into plain text.
type Extractor interface {
	Extract(ctx context.Context, source string) (string, error)
}

// Embedder is a remote or local embedding provider. Vectors are
// fixed-dimension per model; batches must not exceed MaxBatchSize.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	MaxBatchSize() int
}

// VectorStore owns the index lifecycle and namespace-scoped persistence.
// Query returns raw matches; normalization into models.RetrievalResult is
// the retrieval engine's job.
type VectorStore interface {
	EnsureIndex(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, vectors []models.Vector, namespace string) error
	Query(ctx context.Context, embedding []float32, namespace string, filter map[string]string, topK int) ([]Match, error)
	DeleteFrom(ctx context.Context, namespace string, fromOrdinal int) error
	DeleteNamespace(ctx context.Context, namespace string) error
	Close()
}

// Match is the store's raw response row, before normalization.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]interface{}
}

// Generator produces untrusted free text from a prompt. Output may or may
// not honor the prompt's JSON contract.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
