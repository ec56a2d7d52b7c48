package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/ask/internal/models"
)

type Config struct {
	ChunkSize    int // target segment size in characters
	ChunkOverlap int // characters shared between consecutive segments
}

// Chunker splits normalized text into overlapping segments. Splitting is
// pure and deterministic: the same text and config always produce the
// same chunks, which is what makes re-ingestion idempotent.
type Chunker struct {
	config Config
}

func NewWithConfig(config Config) Chunker {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkOverlap == 0 {
		config.ChunkOverlap = 200
	}
	if config.ChunkOverlap >= config.ChunkSize {
		config.ChunkOverlap = config.ChunkSize / 4
	}

	return Chunker{config: config}
}

// Chunk splits text into non-empty segments of roughly ChunkSize
// characters, preferring to cut on a paragraph break, then a line break,
// then a sentence terminator, then whitespace, and finally hard-cutting
// at ChunkSize when no boundary exists in the window. Consecutive
// segments overlap by ChunkOverlap characters. Every segment is a
// verbatim span of the source; only trailing whitespace is dropped, and
// the next segment starts at or before the previous segment's end, so
// the segments together cover the whole text.
func (c *Chunker) Chunk(text string) []models.Chunk {
	var chunks []models.Chunk
	ordinal := 0

	start := 0
	for start < len(text) {
		end := start + c.config.ChunkSize
		if end >= len(text) {
			end = len(text)
		} else {
			end = c.cutPoint(text, start, end)
		}

		// Trailing whitespace at the cut belongs to the overlap region
		// and is re-covered by the next segment's span.
		segEnd := end
		for segEnd > start && isSpace(text[segEnd-1]) {
			segEnd--
		}

		if segment := text[start:segEnd]; strings.TrimSpace(segment) != "" {
			chunks = append(chunks, models.Chunk{Ordinal: ordinal, Text: segment})
			ordinal++
		}

		if end == len(text) {
			break
		}
		if segEnd == start {
			// Whitespace-only window; skip it without emitting.
			start = end
			continue
		}

		next := end - c.config.ChunkOverlap
		if next <= start {
			next = end
		}
		if next > segEnd {
			// Never start past the emitted span, or trimming would
			// open a gap in coverage.
			next = segEnd
		}
		for next > 0 && !utf8.RuneStart(text[next]) {
			next--
		}
		start = next
	}

	return chunks
}

// cutPoint picks the best boundary in (start, limit], walking the
// preference ladder. A boundary inside the overlap region is rejected
// in favor of a finer rung: cutting there would hand the next segment
// nothing but the previous segment's tail. Returned positions always
// land on a rune boundary.
func (c *Chunker) cutPoint(text string, start, limit int) int {
	window := text[start:limit]
	minCut := c.config.ChunkOverlap + 1

	// Paragraph break
	if idx := strings.LastIndex(window, "\n\n"); idx > 0 && idx+2 >= minCut {
		return start + idx + 2
	}

	// Line break
	if idx := strings.LastIndex(window, "\n"); idx > 0 && idx+1 >= minCut {
		return start + idx + 1
	}

	// Sentence terminator followed by a space
	best := -1
	for _, ender := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(window, ender); idx > best {
			best = idx
		}
	}
	if best > 0 && best+2 >= minCut {
		return start + best + 2
	}

	// Whitespace
	if idx := strings.LastIndexByte(window, ' '); idx > 0 && idx+1 >= minCut {
		return start + idx + 1
	}

	// Hard cut, nudged back onto a rune boundary. ChunkOverlap is
	// always below ChunkSize, so the hard cut clears the overlap region.
	for limit > start && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return limit
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
