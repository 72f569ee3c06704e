package search

import (
	"context"
	"testing"
	"time"
)

// fakeEmbedder maps known phrases to fixed unit vectors so similarity is
// deterministic without a live embedding backend.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func TestIndexAddAndQuery(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"payments in europe":  {1, 0, 0},
		"gardening tips":      {0, 1, 0},
		"european payments q": {0.95, 0.3, 0},
	}}
	ix, err := NewIndex(emb)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := ix.Add(ctx, "c1", "d1", "payments in europe"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := ix.Add(ctx, "c2", "d2", "gardening tips"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if ix.Count() != 2 {
		t.Fatalf("count = %d, want 2", ix.Count())
	}

	results, err := ix.Query(ctx, "european payments q", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].ID != "c1" || results[0].DocumentID != "d1" {
		t.Errorf("top hit = %+v, want chunk c1", results[0])
	}
	if results[0].Score <= 0 {
		t.Errorf("score = %v, want > 0", results[0].Score)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	ix, err := NewIndex(&fakeEmbedder{})
	if err != nil {
		t.Fatal(err)
	}
	results, err := ix.Query(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want none", results)
	}
}

func TestRerankByRecencyPromotesFresh(t *testing.T) {
	now := time.Now()
	results := []Result{
		{ID: "stale", Score: 0.80, CreatedAt: now.Add(-360 * 24 * time.Hour)},
		{ID: "fresh", Score: 0.78, CreatedAt: now.Add(-time.Hour)},
	}
	rerankByRecency(results, now)
	if results[0].ID != "fresh" {
		t.Errorf("order = [%s %s], want fresh first", results[0].ID, results[1].ID)
	}

	// A decisive similarity lead still wins over freshness.
	results = []Result{
		{ID: "stale", Score: 0.95, CreatedAt: now.Add(-360 * 24 * time.Hour)},
		{ID: "fresh", Score: 0.40, CreatedAt: now.Add(-time.Hour)},
	}
	rerankByRecency(results, now)
	if results[0].ID != "stale" {
		t.Errorf("order = [%s %s], want stale first", results[0].ID, results[1].ID)
	}
}
