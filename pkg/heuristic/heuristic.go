// Package heuristic answers a question by keyword overlap against
// retrieved chunks. It is deterministic, never fails, and backs the
// generation pipeline when the generator is unavailable or breaks its
// output contract.
package heuristic

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/xhad/ask/internal/models"
)

// NoInformation is returned when retrieval produced nothing usable.
const NoInformation = "Could not find relevant information in the document."

var (
	tokenRe      = regexp.MustCompile(`[a-zA-Z0-9]+`)
	lineSplitRe  = regexp.MustCompile(`[.\n]`)
	digitRe      = regexp.MustCompile(`\b\d+\b`)
	whitespaceRe = regexp.MustCompile(`\s{2,}`)
)

// Extract picks up to maxLines of the retrieved text that best match the
// question's keywords and joins them into one answer. Lines earn +1.0
// per distinct question token they contain and +0.3 for containing a
// number; numeric details are disproportionately relevant in structured
// documents.
func Extract(question string, results []models.RetrievalResult, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 2
	}

	if len(results) == 0 {
		return NoInformation
	}

	var texts []string
	for _, r := range results {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	corpus := strings.Join(texts, "\n")
	if strings.TrimSpace(corpus) == "" {
		return NoInformation
	}

	tokens := tokenize(question)

	var lines []string
	for _, ln := range lineSplitRe.Split(corpus, -1) {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	if len(lines) == 0 {
		return NoInformation
	}

	type scored struct {
		line  string
		score float64
	}
	candidates := make([]scored, len(lines))
	for i, ln := range lines {
		candidates[i] = scored{line: ln, score: scoreLine(tokens, ln)}
	}

	// Ties keep their original relative order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	var top []string
	for _, c := range candidates {
		if len(top) == maxLines {
			break
		}
		if c.score > 0 {
			top = append(top, c.line)
		}
	}

	if len(top) == 0 {
		// Nothing matched; fall back to the best-ranked chunk's text.
		first := results[0].Text
		if len(first) > 300 {
			cut := 300
			for cut > 0 && !utf8.RuneStart(first[cut]) {
				cut--
			}
			return first[:cut] + "..."
		}
		return first
	}

	answer := strings.Join(top, "; ")
	answer = whitespaceRe.ReplaceAllString(answer, " ")
	return strings.TrimSpace(answer)
}

// tokenize returns the distinct lowercase alphanumeric tokens of the
// question that are long enough to be meaningful.
func tokenize(question string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, t := range tokenRe.FindAllString(strings.ToLower(question), -1) {
		if len(t) > 2 {
			tokens[t] = struct{}{}
		}
	}
	return tokens
}

func scoreLine(tokens map[string]struct{}, line string) float64 {
	text := strings.ToLower(line)

	var score float64
	for t := range tokens {
		if strings.Contains(text, t) {
			score += 1.0
		}
	}
	if digitRe.MatchString(text) {
		score += 0.3
	}
	return score
}
