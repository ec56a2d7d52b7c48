package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/xhad/ask/internal/models"
	"github.com/xhad/ask/internal/types"
	"github.com/xhad/ask/pkg/chunker"
	"github.com/xhad/ask/pkg/embed"
	"github.com/xhad/ask/pkg/extract"
	"github.com/xhad/ask/pkg/store"
)

// Ingestor drives extraction, chunking, embedding and storage for one
// document. Chunk ids are deterministic, so re-ingesting identical
// content overwrites the same rows on every call.
type Ingestor struct {
	extractor  types.Extractor
	chunker    chunker.Chunker
	embeddings *embed.Service
	store      types.VectorStore
	idMode     IDMode
}

func NewIngestor(extractor types.Extractor, ch chunker.Chunker, embeddings *embed.Service, vs types.VectorStore, idMode IDMode) *Ingestor {
	if idMode == "" {
		idMode = IDByReference
	}
	return &Ingestor{
		extractor:  extractor,
		chunker:    ch,
		embeddings: embeddings,
		store:      vs,
		idMode:     idMode,
	}
}

// Ingest extracts, chunks, embeds and stores one document and returns
// its content id, which is also its retrieval namespace. A failed
// ingestion writes nothing beyond batches that had already committed.
func (ing *Ingestor) Ingest(ctx context.Context, source string) (string, error) {
	runID := uuid.NewString()[:8]

	text, err := ing.extractor.Extract(ctx, source)
	if err != nil {
		return "", err
	}

	doc := models.Document{
		ContentID: ContentID(ing.idMode, source, text),
		Source:    source,
		Text:      text,
	}
	contentID := doc.ContentID

	chunks := ing.chunker.Chunk(doc.Text)
	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: document produced no chunks", extract.ErrExtraction)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := ing.embeddings.Vectors(ctx, texts)
	if err != nil {
		return "", err
	}

	vectors := make([]models.Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = models.Vector{
			ID:        store.VectorID(contentID, c.Ordinal),
			Ordinal:   c.Ordinal,
			Text:      c.Text,
			Embedding: embeddings[i],
			Source:    contentID,
		}
	}

	if err := ing.store.Upsert(ctx, vectors, contentID); err != nil {
		return "", err
	}

	// A shrunken document leaves stale rows past the new chunk count;
	// clear them so old content cannot surface in retrieval.
	if err := ing.store.DeleteFrom(ctx, contentID, len(chunks)); err != nil {
		return "", err
	}

	log.Printf("ingest %s: stored %d chunks from %s under %s", runID, len(chunks), doc.Source, contentID)
	return contentID, nil
}

// Handle returns the document handle a caller should keep for later
// answering or purging: the source reference in reference mode, the
// content id in content mode. Passing anything else to Answer or Purge
// resolves to a namespace nothing was stored under.
func (ing *Ingestor) Handle(source, contentID string) string {
	if ing.idMode == IDByContent {
		return contentID
	}
	return source
}

// Purge removes every stored vector for a document. In reference mode
// document is the source reference; in content mode it is the content id
// returned by Ingest.
func (ing *Ingestor) Purge(ctx context.Context, document string) error {
	return ing.store.DeleteNamespace(ctx, namespaceFor(ing.idMode, document))
}
