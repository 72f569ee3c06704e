package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const collectionName = "documents"

// Embedder turns text into a vector. Implemented by model.Pool.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Result is one scored semantic-search hit.
type Result struct {
	ID         string
	DocumentID string
	Content    string
	Score      float64
	CreatedAt  time.Time
}

// Index is an embedded vector index over ingested document chunks.
// chromem-go keeps everything in process; embeddings come from the
// credential pool so index operations share the rotation discipline of
// every other model call.
type Index struct {
	embedder Embedder

	mu  sync.Mutex
	col *chromem.Collection
}

// NewIndex creates an empty in-process index.
func NewIndex(embedder Embedder) (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	return &Index{embedder: embedder, col: col}, nil
}

// Add embeds content and stores it under id. docID links the chunk back to
// its source document.
func (ix *Index) Add(ctx context.Context, id, docID, content string) error {
	embedding, err := ix.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("embedding chunk: %w", err)
	}

	doc := chromem.Document{
		ID:        id,
		Content:   content,
		Embedding: embedding,
		Metadata: map[string]string{
			"document_id": docID,
			"created_at":  strconv.FormatInt(time.Now().Unix(), 10),
		},
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("adding document: %w", err)
	}
	return nil
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.col.Count()
}

// Query embeds the query text and returns the topK most similar chunks,
// re-ordered with a mild recency boost so fresh material outranks stale
// material of comparable similarity.
func (ix *Index) Query(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		topK = 5
	}

	embedding, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	ix.mu.Lock()
	count := ix.col.Count()
	if count == 0 {
		ix.mu.Unlock()
		return nil, nil
	}
	// Over-fetch so the recency rerank has candidates to promote.
	fetch := topK * 2
	if fetch > count {
		fetch = count
	}
	hits, err := ix.col.QueryEmbedding(ctx, embedding, fetch, nil, nil)
	ix.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		r := Result{
			ID:         h.ID,
			DocumentID: h.Metadata["document_id"],
			Content:    h.Content,
			Score:      float64(h.Similarity),
		}
		if ts, err := strconv.ParseInt(h.Metadata["created_at"], 10, 64); err == nil {
			r.CreatedAt = time.Unix(ts, 0)
		}
		results = append(results, r)
	}

	rerankByRecency(results, time.Now())

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Half-life of the recency boost.
const recencyHalfLife = 30 * 24 * time.Hour

// recencyWeight is the fraction of the final score contributed by age;
// similarity carries the rest.
const recencyWeight = 0.15

// rerankByRecency sorts results by a blend of similarity and chunk age.
// Chunks with no recorded timestamp get no boost.
func rerankByRecency(results []Result, now time.Time) {
	score := func(r Result) float64 {
		if r.CreatedAt.IsZero() {
			return (1 - recencyWeight) * r.Score
		}
		age := now.Sub(r.CreatedAt)
		if age < 0 {
			age = 0
		}
		halfLives := float64(age) / float64(recencyHalfLife)
		recency := math.Pow(0.5, halfLives)
		return (1-recencyWeight)*r.Score + recencyWeight*recency
	}
	sort.SliceStable(results, func(i, j int) bool {
		return score(results[i]) > score(results[j])
	})
}
