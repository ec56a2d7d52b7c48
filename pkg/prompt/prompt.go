// Package prompt assembles generation requests. Building is pure and
// deterministic so the same context and questions always produce the
// same prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/xhad/ask/internal/models"
)

// NotFoundPhrase is the exact answer the generator must use for
// questions the excerpts cannot answer.
const NotFoundPhrase = "I could not find this information in the document."

// Build renders retrieved context and questions into a prompt with a
// strict output contract: a single JSON object whose only key "answers"
// holds one string per question, in question order. Results must be
// ordered most relevant first; that order is presented as-is.
func Build(results []models.RetrievalResult, questions []string) string {
	var excerpts strings.Builder
	for i, r := range results {
		if i > 0 {
			excerpts.WriteString("\n\n")
		}
		excerpts.WriteString(r.Text)
	}

	var numbered strings.Builder
	for i, q := range questions {
		if i > 0 {
			numbered.WriteString("\n")
		}
		fmt.Fprintf(&numbered, "%d. %s", i+1, q)
	}

	return strings.TrimSpace(fmt.Sprintf(`
You are a helpful, expert assistant answering questions strictly based on the provided document excerpts below.

Please provide clear, concise, and natural-sounding one-line answers for each question. Use your understanding to summarize and rephrase the relevant information accurately - do NOT just copy-paste raw text fragments.

Answer using ONLY the information contained in the excerpts, which are ordered from most relevant to least relevant.

If the answer is not explicitly found in the excerpts, respond exactly with:
%q

Do NOT add explanations or extra details beyond the answer.

Return your answers in the following JSON format ONLY (no extra text):

{
  "answers": [
    "Answer to question 1",
    "Answer to question 2",
    ...
  ]
}

Questions:
%s

Excerpts:
%s
`, NotFoundPhrase, numbered.String(), excerpts.String()))
}
