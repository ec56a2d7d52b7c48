package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/ask/internal/models"
	"github.com/xhad/ask/pkg/prompt"
)

func TestBuildNumbersQuestions(t *testing.T) {
	p := prompt.Build(nil, []string{"What is the grace period?", "Is maternity covered?"})

	assert.Contains(t, p, "1. What is the grace period?")
	assert.Contains(t, p, "2. Is maternity covered?")
}

func TestBuildPresentsExcerptsInOrder(t *testing.T) {
	results := []models.RetrievalResult{
		{Text: "Most relevant excerpt.", Score: 0.9},
		{Text: "Less relevant excerpt.", Score: 0.5},
	}

	p := prompt.Build(results, []string{"q"})

	first := strings.Index(p, "Most relevant excerpt.")
	second := strings.Index(p, "Less relevant excerpt.")
	assert.Greater(t, first, -1)
	assert.Greater(t, second, first)
}

func TestBuildStatesContract(t *testing.T) {
	p := prompt.Build(nil, []string{"q"})

	assert.Contains(t, p, `"answers"`)
	assert.Contains(t, p, "JSON format ONLY")
	assert.Contains(t, p, prompt.NotFoundPhrase)
}

func TestBuildDeterministic(t *testing.T) {
	results := []models.RetrievalResult{{Text: "excerpt one"}, {Text: "excerpt two"}}
	questions := []string{"first?", "second?"}

	assert.Equal(t, prompt.Build(results, questions), prompt.Build(results, questions))
}
