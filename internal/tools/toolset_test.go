package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/kalambet/enquiro/internal/search"
)

type stubSearcher struct {
	results []search.Result
	err     error
	lastQ   string
	lastK   int
}

func (s *stubSearcher) Query(_ context.Context, query string, topK int) ([]search.Result, error) {
	s.lastQ, s.lastK = query, topK
	return s.results, s.err
}

func TestSemanticSearchFormatsResults(t *testing.T) {
	idx := &stubSearcher{results: []search.Result{
		{ID: "a", Content: "alpha chunk", Score: 0.91},
		{ID: "b", Content: "beta chunk", Score: 0.77},
	}}
	tool := NewSemanticSearch(idx)

	out, err := tool.Run(context.Background(), `{"query": "alpha", "top_k": 2}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if idx.lastQ != "alpha" || idx.lastK != 2 {
		t.Fatalf("passed query %q top_k %d", idx.lastQ, idx.lastK)
	}
	if !strings.Contains(out, "alpha chunk") || !strings.Contains(out, "beta chunk") {
		t.Fatalf("output missing results: %q", out)
	}
}

func TestSemanticSearchBareStringArgs(t *testing.T) {
	idx := &stubSearcher{}
	tool := NewSemanticSearch(idx)

	out, err := tool.Run(context.Background(), "plain question")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if idx.lastQ != "plain question" {
		t.Fatalf("query = %q", idx.lastQ)
	}
	if out != "no matching documents found" {
		t.Fatalf("output = %q", out)
	}
}

func TestSemanticSearchEmptyQuery(t *testing.T) {
	tool := NewSemanticSearch(&stubSearcher{})
	if _, err := tool.Run(context.Background(), `{"query": ""}`); err == nil {
		t.Fatal("expected error for empty query")
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, body := range []string{"first", "second"} {
		if _, err := db.Exec(`INSERT INTO notes (body) VALUES (?)`, body); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	return db
}

func TestRunQuerySelect(t *testing.T) {
	tool := NewRunQuery(openTestDB(t))

	out, err := tool.Run(context.Background(), `{"sql": "SELECT body FROM notes ORDER BY id"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 || rows[0]["body"] != "first" || rows[1]["body"] != "second" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestRunQueryRejectsWrites(t *testing.T) {
	tool := NewRunQuery(openTestDB(t))

	for _, stmt := range []string{
		"DELETE FROM notes",
		"DROP TABLE notes",
		"  update notes set body = 'x'",
	} {
		if _, err := tool.Run(context.Background(), stmt); err == nil {
			t.Errorf("statement %q: expected rejection", stmt)
		}
	}
}

func TestGenerateDocumentWritesFile(t *testing.T) {
	dir := t.TempDir()
	tool := NewGenerateDocument(dir)

	out, err := tool.Run(context.Background(), `{"title": "Quarterly Summary", "content": "all good"}`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var payload struct {
		FilePath string `json:"file_path"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if filepath.Dir(payload.FilePath) != dir {
		t.Fatalf("file written outside output dir: %s", payload.FilePath)
	}
	if !strings.HasPrefix(filepath.Base(payload.FilePath), "quarterly-summary-") {
		t.Fatalf("unexpected file name: %s", payload.FilePath)
	}
	data, err := os.ReadFile(payload.FilePath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "# Quarterly Summary") || !strings.Contains(string(data), "all good") {
		t.Fatalf("content = %q", data)
	}
}

func TestGenerateDocumentEmptyContent(t *testing.T) {
	tool := NewGenerateDocument(t.TempDir())
	if _, err := tool.Run(context.Background(), `{"title": "x", "content": "  "}`); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestRegistryDescribeAndLookup(t *testing.T) {
	reg := NewRegistry(
		Tool{Name: "alpha", Description: "first tool"},
		Tool{Name: "beta", Description: "second tool"},
	)
	if _, ok := reg.Get("alpha"); !ok {
		t.Fatal("alpha not registered")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Fatal("unexpected lookup hit")
	}
	desc := reg.Describe()
	if !strings.Contains(desc, "alpha: first tool") || !strings.Contains(desc, "beta: second tool") {
		t.Fatalf("describe = %q", desc)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Fatalf("names = %v", names)
	}
}
