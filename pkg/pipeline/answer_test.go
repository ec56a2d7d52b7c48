package pipeline_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ask/internal/models"
	"github.com/xhad/ask/pkg/pipeline"
)

type fakeSearcher struct {
	results    []models.RetrievalResult
	err        error
	namespaces []string
	queries    []string
}

func (f *fakeSearcher) Search(ctx context.Context, question, namespace string, topK int, filter map[string]string, minScore float32) ([]models.RetrievalResult, error) {
	f.namespaces = append(f.namespaces, namespace)
	f.queries = append(f.queries, question)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeGenerator struct {
	output string
	err    error
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.output, nil
}

func policyResults() []models.RetrievalResult {
	return []models.RetrievalResult{
		{ID: "a", Score: 0.9, Text: "Grace period of thirty days is allowed for premium payment."},
		{ID: "b", Score: 0.7, Text: "The policy covers hospitalization expenses."},
	}
}

func TestAnswerReturnsGeneratedAnswersVerbatim(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	generator := &fakeGenerator{output: `{"answers": ["Thirty days.", "Yes, it is covered."]}`}
	a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "https://example.com/policy.pdf",
		[]string{"What is the grace period?", "Is hospitalization covered?"}, 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"Thirty days.", "Yes, it is covered."}, answers)
	// The success path retrieves once, shared across questions.
	assert.Len(t, searcher.queries, 1)
	assert.Contains(t, searcher.queries[0], "What is the grace period?")
	assert.Contains(t, searcher.queries[0], "Is hospitalization covered?")
}

func TestAnswerAcceptsFencedJSON(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	generator := &fakeGenerator{output: "```json\n{\"answers\": [\"Thirty days.\"]}\n```"}
	a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "doc", []string{"q"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Thirty days."}, answers)
}

func TestAnswerFallsBackOnGarbageOutput(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	generator := &fakeGenerator{output: "not json"}
	a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

	questions := []string{"What is the grace period for premium payment?", "Is hospitalization covered?"}
	answers, err := a.Answer(context.Background(), "doc", questions, 0)
	require.NoError(t, err)

	require.Len(t, answers, len(questions))
	// Shared pass plus one per-question fallback retrieval each.
	assert.Len(t, searcher.queries, 3)
}

func TestAnswerFallsBackOnWrongAnswerCount(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	generator := &fakeGenerator{output: `{"answers": ["only one"]}`}
	a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "doc", []string{"q1", "q2"}, 0)
	require.NoError(t, err)
	assert.Len(t, answers, 2)
}

func TestAnswerFallsBackOnWrongElementType(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	generator := &fakeGenerator{output: `{"answers": [1, 2]}`}
	a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "doc", []string{"q1", "q2"}, 0)
	require.NoError(t, err)
	assert.Len(t, answers, 2)
}

func TestAnswerFallsBackOnGenerationError(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	generator := &fakeGenerator{err: errors.New("provider exploded")}
	a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "doc",
		[]string{"What is the grace period for premium payment?"}, 0)
	require.NoError(t, err)
	require.Len(t, answers, 1)
	assert.NotEmpty(t, answers[0])
}

func TestAnswerHeuristicPathWithGenerationDisabled(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	a := pipeline.NewAnswerer(searcher, nil, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "doc",
		[]string{"What is the grace period for premium payment?"}, 0)
	require.NoError(t, err)

	require.Len(t, answers, 1)
	lower := strings.ToLower(answers[0])
	assert.Contains(t, lower, "grace period")
	assert.Contains(t, lower, "thirty days")
}

func TestAnswerLengthInvariantAcrossQuestionCounts(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		searcher := &fakeSearcher{results: policyResults()}
		generator := &fakeGenerator{output: "garbage"}
		a := pipeline.NewAnswerer(searcher, generator, pipeline.AnswererConfig{})

		questions := make([]string, n)
		for i := range questions {
			questions[i] = "What is covered?"
		}

		answers, err := a.Answer(context.Background(), "doc", questions, 0)
		require.NoError(t, err)
		assert.Len(t, answers, n)
	}
}

func TestAnswerEmptyQuestions(t *testing.T) {
	searcher := &fakeSearcher{}
	a := pipeline.NewAnswerer(searcher, nil, pipeline.AnswererConfig{})

	answers, err := a.Answer(context.Background(), "doc", nil, 0)
	require.NoError(t, err)
	assert.Empty(t, answers)
	assert.Empty(t, searcher.queries)
}

func TestAnswerRetrievalOutageIsFatal(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("store unreachable")}
	a := pipeline.NewAnswerer(searcher, nil, pipeline.AnswererConfig{})

	_, err := a.Answer(context.Background(), "doc", []string{"q"}, 0)
	assert.Error(t, err)
}

func TestAnswerNamespaceDerivedFromReference(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	a := pipeline.NewAnswerer(searcher, nil, pipeline.AnswererConfig{IDMode: pipeline.IDByReference})

	_, err := a.Answer(context.Background(), "https://example.com/policy.pdf", []string{"q"}, 0)
	require.NoError(t, err)

	expected := pipeline.ContentID(pipeline.IDByReference, "https://example.com/policy.pdf", "")
	require.NotEmpty(t, searcher.namespaces)
	assert.Equal(t, expected, searcher.namespaces[0])
}

func TestAnswerContentModeUsesHandleAsNamespace(t *testing.T) {
	searcher := &fakeSearcher{results: policyResults()}
	a := pipeline.NewAnswerer(searcher, nil, pipeline.AnswererConfig{IDMode: pipeline.IDByContent})

	_, err := a.Answer(context.Background(), "deadbeefdeadbeef", []string{"q"}, 0)
	require.NoError(t, err)

	require.NotEmpty(t, searcher.namespaces)
	assert.Equal(t, "deadbeefdeadbeef", searcher.namespaces[0])
}
