package pipeline

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/xhad/ask/internal/models"
	"github.com/xhad/ask/internal/types"
	"github.com/xhad/ask/pkg/heuristic"
	"github.com/xhad/ask/pkg/prompt"
)

// Searcher is the retrieval surface the synthesizer needs.
type Searcher interface {
	Search(ctx context.Context, question, namespace string, topK int, filter map[string]string, minScore float32) ([]models.RetrievalResult, error)
}

type AnswererConfig struct {
	TopK     int
	MinScore float32
	MaxLines int // heuristic answer lines per question
	IDMode   IDMode
}

// Answerer orchestrates retrieval, generation, contract validation and
// the heuristic fallback. Its contract with callers: the answer slice
// always has exactly one entry per question.
type Answerer struct {
	config    AnswererConfig
	searcher  Searcher
	generator types.Generator
}

func NewAnswerer(searcher Searcher, generator types.Generator, config AnswererConfig) *Answerer {
	if config.TopK == 0 {
		config.TopK = 8
	}
	if config.MaxLines == 0 {
		config.MaxLines = 2
	}
	if config.IDMode == "" {
		config.IDMode = IDByReference
	}
	return &Answerer{
		config:    config,
		searcher:  searcher,
		generator: generator,
	}
}

// Answer answers every question against one document. Generation
// failures and contract violations are absorbed by the per-question
// heuristic fallback; only retrieval failures surface, because there is
// nothing beneath the heuristic layer to fall back to.
func (a *Answerer) Answer(ctx context.Context, document string, questions []string, topK int) ([]string, error) {
	if len(questions) == 0 {
		return []string{}, nil
	}
	if topK <= 0 {
		topK = a.config.TopK
	}

	runID := uuid.NewString()[:8]
	namespace := namespaceFor(a.config.IDMode, document)

	// One coarse retrieval pass shared across all questions.
	combined := strings.Join(questions, " ")
	shared, err := a.searcher.Search(ctx, combined, namespace, topK, nil, a.config.MinScore)
	if err != nil {
		return nil, err
	}

	if a.generator != nil {
		raw, genErr := a.generator.Generate(ctx, prompt.Build(shared, questions))
		if genErr != nil {
			log.Printf("answer %s: generation failed, using heuristic fallback: %v", runID, genErr)
		} else if answers, ok := parseAnswers(raw, len(questions)); ok {
			return answers, nil
		} else {
			log.Printf("answer %s: generator output violated the answer contract, using heuristic fallback", runID)
		}
	}

	// Finer per-question retrieval feeding the extractive heuristic.
	answers := make([]string, 0, len(questions))
	for _, q := range questions {
		results, err := a.searcher.Search(ctx, q, namespace, topK, nil, a.config.MinScore)
		if err != nil {
			return nil, err
		}
		answers = append(answers, heuristic.Extract(q, results, a.config.MaxLines))
	}
	return answers, nil
}

// parseAnswers validates the generator's output against the strict
// contract: a JSON object whose "answers" key holds exactly one string
// per question, in question order. ok == false routes the caller to the
// fallback path.
func parseAnswers(raw string, questionCount int) ([]string, bool) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var payload struct {
		Answers []string `json:"answers"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, false
	}
	if len(payload.Answers) != questionCount {
		return nil, false
	}
	return payload.Answers, true
}
