// Package ingest turns source documents into indexed, searchable chunks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/enquiro/internal/storage"
)

// DocumentStore persists ingested documents. Implemented by storage.Store.
type DocumentStore interface {
	SaveDocument(doc storage.Document) error
}

// ChunkIndexer adds chunks to the vector index. Implemented by
// search.Index.
type ChunkIndexer interface {
	Add(ctx context.Context, id, docID, content string) error
}

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200

	// Bound embedding concurrency to avoid overwhelming the backend.
	indexConcurrency = 4
)

// Options tune chunking. Zero values use defaults.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// Result summarizes one ingestion.
type Result struct {
	DocumentID string
	Title      string
	Chunks     int
	Elapsed    time.Duration
}

// Ingestor extracts, chunks, stores, and indexes documents.
type Ingestor struct {
	store   DocumentStore
	index   ChunkIndexer
	size    int
	overlap int
}

func NewIngestor(store DocumentStore, index ChunkIndexer, opts Options) *Ingestor {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		opts.ChunkOverlap = defaultChunkOverlap
	}
	return &Ingestor{
		store:   store,
		index:   index,
		size:    opts.ChunkSize,
		overlap: opts.ChunkOverlap,
	}
}

// IngestFile extracts a file and runs IngestText on the result. PDF files
// go through text extraction; anything else is read as plain text by the
// caller beforehand.
func (in *Ingestor) IngestFile(ctx context.Context, path string) (*Result, error) {
	text, err := ExtractPDF(path)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return in.IngestText(ctx, title, text, path)
}

// IngestText persists the document and indexes its chunks. Chunks are
// embedded concurrently; the first embedding failure aborts the batch.
func (in *Ingestor) IngestText(ctx context.Context, title, text, source string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("ingest: empty document %q", title)
	}

	start := time.Now()
	docID := uuid.NewString()

	if err := in.store.SaveDocument(storage.Document{
		ID:      docID,
		Title:   title,
		Content: text,
		Source:  source,
	}); err != nil {
		return nil, fmt.Errorf("ingest: saving document: %w", err)
	}

	chunks := Chunk(text, in.size, in.overlap)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			id := fmt.Sprintf("%s-%d", docID, i)
			if err := in.index.Add(gCtx, id, docID, chunk); err != nil {
				return fmt.Errorf("indexing chunk %d: %w", i, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("ingest %q: %w", title, err)
	}

	res := &Result{
		DocumentID: docID,
		Title:      title,
		Chunks:     len(chunks),
		Elapsed:    time.Since(start),
	}
	slog.Info("document ingested", "document_id", docID, "title", title,
		"chunks", res.Chunks, "elapsed", res.Elapsed)
	return res, nil
}
