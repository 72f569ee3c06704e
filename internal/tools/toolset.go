package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/enquiro/internal/search"
)

// Searcher is the slice of the vector index the semantic_search tool needs.
type Searcher interface {
	Query(ctx context.Context, query string, topK int) ([]search.Result, error)
}

const (
	maxQueryRows      = 50
	searchResultLimit = 5
)

// NewSemanticSearch returns a tool that retrieves indexed document chunks
// relevant to a free-text query.
func NewSemanticSearch(idx Searcher) Tool {
	return Tool{
		Name:        "semantic_search",
		Description: `search ingested documents by meaning; args: {"query": "...", "top_k": 5}`,
		Run: func(ctx context.Context, args string) (string, error) {
			var req struct {
				Query string `json:"query"`
				TopK  int    `json:"top_k"`
			}
			if err := json.Unmarshal([]byte(args), &req); err != nil {
				// Tolerate a bare string query.
				req.Query = strings.TrimSpace(args)
			}
			if req.Query == "" {
				return "", fmt.Errorf("semantic_search: empty query")
			}
			if req.TopK <= 0 || req.TopK > searchResultLimit {
				req.TopK = searchResultLimit
			}

			results, err := idx.Query(ctx, req.Query, req.TopK)
			if err != nil {
				return "", fmt.Errorf("semantic_search: %w", err)
			}
			if len(results) == 0 {
				return "no matching documents found", nil
			}

			var sb strings.Builder
			for i, res := range results {
				fmt.Fprintf(&sb, "[%d] (score %.3f) %s\n", i+1, res.Score, res.Content)
			}
			return strings.TrimRight(sb.String(), "\n"), nil
		},
	}
}

// NewRunQuery returns a tool that executes a read-only SQL query against
// the message and document store. Only SELECT statements are accepted.
func NewRunQuery(db *sql.DB) Tool {
	return Tool{
		Name:        "run_query",
		Description: `run a read-only SQL SELECT against the local store; args: {"sql": "SELECT ..."}`,
		Run: func(ctx context.Context, args string) (string, error) {
			var req struct {
				SQL string `json:"sql"`
			}
			if err := json.Unmarshal([]byte(args), &req); err != nil {
				req.SQL = args
			}
			stmt := strings.TrimSpace(req.SQL)
			if stmt == "" {
				return "", fmt.Errorf("run_query: empty statement")
			}
			if !strings.EqualFold(firstWord(stmt), "select") {
				return "", fmt.Errorf("run_query: only SELECT statements are allowed")
			}

			rows, err := db.QueryContext(ctx, stmt)
			if err != nil {
				return "", fmt.Errorf("run_query: %w", err)
			}
			defer rows.Close()

			cols, err := rows.Columns()
			if err != nil {
				return "", fmt.Errorf("run_query: %w", err)
			}

			var out []map[string]any
			for rows.Next() {
				if len(out) >= maxQueryRows {
					break
				}
				vals := make([]any, len(cols))
				ptrs := make([]any, len(cols))
				for i := range vals {
					ptrs[i] = &vals[i]
				}
				if err := rows.Scan(ptrs...); err != nil {
					return "", fmt.Errorf("run_query: scan: %w", err)
				}
				row := make(map[string]any, len(cols))
				for i, col := range cols {
					row[col] = normalizeSQLValue(vals[i])
				}
				out = append(out, row)
			}
			if err := rows.Err(); err != nil {
				return "", fmt.Errorf("run_query: %w", err)
			}

			data, err := json.Marshal(out)
			if err != nil {
				return "", fmt.Errorf("run_query: encode: %w", err)
			}
			return string(data), nil
		},
	}
}

// NewGenerateDocument returns a tool that writes a markdown report into
// outputDir and reports the resulting path back to the caller.
func NewGenerateDocument(outputDir string) Tool {
	return Tool{
		Name:        "generate_document",
		Description: `write a markdown report file; args: {"title": "...", "content": "..."}; returns {"file_path": "..."}`,
		Run: func(ctx context.Context, args string) (string, error) {
			var req struct {
				Title   string `json:"title"`
				Content string `json:"content"`
			}
			if err := json.Unmarshal([]byte(args), &req); err != nil {
				return "", fmt.Errorf("generate_document: decode args: %w", err)
			}
			if strings.TrimSpace(req.Content) == "" {
				return "", fmt.Errorf("generate_document: empty content")
			}
			if req.Title == "" {
				req.Title = "report"
			}

			if err := os.MkdirAll(outputDir, 0o755); err != nil {
				return "", fmt.Errorf("generate_document: %w", err)
			}
			name := fmt.Sprintf("%s-%s.md", slugify(req.Title), uuid.NewString()[:8])
			path := filepath.Join(outputDir, name)

			body := fmt.Sprintf("# %s\n\n_%s_\n\n%s\n", req.Title,
				time.Now().Format("2006-01-02 15:04"), req.Content)
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				return "", fmt.Errorf("generate_document: write: %w", err)
			}
			slog.Debug("document generated", "path", path)

			payload, err := json.Marshal(map[string]string{"file_path": path})
			if err != nil {
				return "", fmt.Errorf("generate_document: encode: %w", err)
			}
			return string(payload), nil
		},
	}
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteRune('-')
		}
	}
	slug := strings.Trim(sb.String(), "-")
	if slug == "" {
		return "report"
	}
	if len(slug) > 40 {
		slug = slug[:40]
	}
	return slug
}
