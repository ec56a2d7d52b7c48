package models

// Document is one uploaded source and its extracted plain text.
// ContentID doubles as the vector store namespace for the document.
type Document struct {
	ContentID string
	Source    string
	Text      string
	Metadata  map[string]interface{}
}

// Chunk is one overlapping segment of a document's text. Ordinal is the
// chunk's position within the document and is stable across re-ingestion
// of identical content.
type Chunk struct {
	Ordinal int
	Text    string
}

// Vector binds an embedding to the chunk it was computed from.
type Vector struct {
	ID        string
	Ordinal   int
	Text      string
	Embedding []float32
	Source    string
}

// RetrievalResult is the canonical read-only projection of a stored
// vector plus its similarity score. Every component downstream of the
// store adapter consumes this shape and nothing else.
type RetrievalResult struct {
	ID      string
	Score   float32
	Text    string
	Ordinal int
	Source  string
}
