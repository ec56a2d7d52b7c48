package retrieval

import (
	"context"
	"fmt"

	"github.com/xhad/ask/internal/models"
	"github.com/xhad/ask/internal/types"
	"github.com/xhad/ask/pkg/embed"
)

// Engine embeds a question and returns normalized, score-filtered
// matches from one document's namespace. It does not re-rank: result
// order is whatever the store returned.
type Engine struct {
	embeddings *embed.Service
	store      types.VectorStore
}

func NewEngine(embeddings *embed.Service, store types.VectorStore) *Engine {
	return &Engine{
		embeddings: embeddings,
		store:      store,
	}
}

// Search retrieves the topK most similar chunks for the question within
// the namespace, dropping matches scored below minScore.
func (e *Engine) Search(ctx context.Context, question, namespace string, topK int, filter map[string]string, minScore float32) ([]models.RetrievalResult, error) {
	vector, err := e.embeddings.Vector(ctx, question)
	if err != nil {
		return nil, err
	}

	matches, err := e.store.Query(ctx, vector, namespace, filter, topK)
	if err != nil {
		return nil, err
	}

	results := make([]models.RetrievalResult, 0, len(matches))
	for _, m := range matches {
		if m.Score < minScore {
			continue
		}
		results = append(results, normalize(m))
	}
	return results, nil
}

// normalize collapses the store's raw match into the canonical result
// shape. Metadata values may arrive as differing concrete types
// depending on how they round-tripped through the store, so each field
// is coerced here and nowhere else.
func normalize(m types.Match) models.RetrievalResult {
	result := models.RetrievalResult{
		ID:    m.ID,
		Score: m.Score,
	}

	if v, ok := m.Metadata["text"].(string); ok {
		result.Text = v
	}
	if v, ok := m.Metadata["source"].(string); ok {
		result.Source = v
	}

	switch v := m.Metadata["chunk_index"].(type) {
	case int:
		result.Ordinal = v
	case int64:
		result.Ordinal = int(v)
	case float64:
		result.Ordinal = int(v)
	case string:
		fmt.Sscanf(v, "%d", &result.Ordinal)
	}

	return result
}
