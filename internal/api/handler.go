// Package api exposes the conversational runtime over HTTP and MCP.
package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/enquiro/internal/ingest"
	"github.com/kalambet/enquiro/internal/personalize"
	"github.com/kalambet/enquiro/internal/storage"
	"github.com/kalambet/enquiro/internal/turn"
)

const maxRequestBodySize = 1 << 20  // 1MB
const maxIngestBodySize = 10 << 20 // 10MB

// TurnHandler processes one chat exchange. Implemented by
// turn.Orchestrator.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, threadID, message, role string) (*turn.Result, error)
}

// Ingestor ingests documents. Implemented by ingest.Ingestor.
type Ingestor interface {
	IngestText(ctx context.Context, title, text, source string) (*ingest.Result, error)
}

// ProfileSource reads personalization profiles. Implemented by
// personalize.Engine.
type ProfileSource interface {
	Snapshot(userID string) (*personalize.Profile, error)
}

// DocumentLister lists ingested documents. Implemented by storage.Store.
type DocumentLister interface {
	ListDocuments(limit int) ([]storage.Document, error)
}

// Deps wires the HTTP layer to the runtime.
type Deps struct {
	Turns     TurnHandler
	Ingestor  Ingestor
	Profiles  ProfileSource
	Documents DocumentLister
	Token     string // empty disables bearer auth
}

// NewHandler builds the HTTP router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/v1/chat", handleChat(deps))
		r.Post("/v1/ingest", handleIngest(deps))
		r.Get("/v1/profile/{user_id}", handleGetProfile(deps))
		r.Get("/v1/documents", handleListDocuments(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	UserID   string `json:"user_id"`
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
	Role     string `json:"role"`
}

// ChatResponse mirrors the orchestrator result.
type ChatResponse struct {
	ThreadID string      `json:"thread_id"`
	Response ChatReply   `json:"response"`
	Role     string      `json:"role"`
	Timings  ChatTimings `json:"node_timings"`
}

type ChatReply struct {
	Message  string `json:"message"`
	FileName string `json:"file_name,omitempty"`
	FilePath string `json:"file_path,omitempty"`
}

type ChatTimings struct {
	SetupSeconds float64 `json:"setup_time"`
	TotalSeconds float64 `json:"total_time"`
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		res, err := deps.Turns.HandleTurn(r.Context(), req.UserID, req.ThreadID, req.Message, req.Role)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "turn failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ChatResponse{
			ThreadID: res.ThreadID,
			Response: ChatReply{
				Message:  res.Message,
				FileName: res.FileName,
				FilePath: res.FilePath,
			},
			Role: res.Role,
			Timings: ChatTimings{
				SetupSeconds: res.SetupTime.Seconds(),
				TotalSeconds: res.TotalTime.Seconds(),
			},
		})
	}
}

// IngestRequest is the body of POST /v1/ingest. Type "text" takes content
// verbatim; "pdf" expects base64-encoded file bytes.
type IngestRequest struct {
	Title   string `json:"title"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Source  string `json:"source"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		text := req.Content
		if req.Type == "pdf" {
			decoded, err := base64.StdEncoding.DecodeString(req.Content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
				return
			}
			extracted, err := extractPDFBytes(decoded)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "pdf extraction failed: %v", err)
				return
			}
			text = extracted
		}

		if req.Title == "" {
			req.Title = "untitled"
		}
		res, err := deps.Ingestor.IngestText(r.Context(), req.Title, text, req.Source)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "ingest failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     res.DocumentID,
			"title":  res.Title,
			"chunks": res.Chunks,
		})
	}
}

// extractPDFBytes round-trips through a temp file; the PDF reader needs
// random access.
func extractPDFBytes(data []byte) (string, error) {
	f, err := os.CreateTemp("", "enquiro-ingest-*.pdf")
	if err != nil {
		return "", err
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return ingest.ExtractPDF(path)
}

func handleGetProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		p, err := deps.Profiles.Snapshot(userID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "profile not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load profile: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p)
	}
}

// DocumentSummary is one entry of GET /v1/documents. Content is omitted;
// full text is reachable through the search and query tools.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		docs, err := deps.Documents.ListDocuments(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}

		out := make([]DocumentSummary, 0, len(docs))
		for _, d := range docs {
			out = append(out, DocumentSummary{
				ID:        d.ID,
				Title:     d.Title,
				Source:    d.Source,
				CreatedAt: d.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
