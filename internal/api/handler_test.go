package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kalambet/enquiro/internal/ingest"
	"github.com/kalambet/enquiro/internal/personalize"
	"github.com/kalambet/enquiro/internal/storage"
	"github.com/kalambet/enquiro/internal/turn"
)

// --- mocks ---

type mockTurns struct {
	result *turn.Result
	err    error
	gotReq []string
}

func (m *mockTurns) HandleTurn(_ context.Context, userID, threadID, message, role string) (*turn.Result, error) {
	m.gotReq = []string{userID, threadID, message, role}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockIngestor struct {
	result  *ingest.Result
	err     error
	gotText string
}

func (m *mockIngestor) IngestText(_ context.Context, title, text, source string) (*ingest.Result, error) {
	m.gotText = text
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &ingest.Result{DocumentID: "doc-1", Title: title, Chunks: 2}, nil
}

type mockProfiles struct {
	profile *personalize.Profile
	err     error
}

func (m *mockProfiles) Snapshot(string) (*personalize.Profile, error) {
	return m.profile, m.err
}

type mockDocs struct {
	docs []storage.Document
	err  error
}

func (m *mockDocs) ListDocuments(limit int) ([]storage.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	if len(m.docs) > limit {
		return m.docs[:limit], nil
	}
	return m.docs, nil
}

func testDeps() Deps {
	return Deps{
		Turns: &mockTurns{result: &turn.Result{
			ThreadID:  "t1",
			Message:   "hello back",
			Role:      "general user",
			SetupTime: 5 * time.Millisecond,
			TotalTime: 50 * time.Millisecond,
		}},
		Ingestor:  &mockIngestor{},
		Profiles:  &mockProfiles{profile: personalize.NewProfile("general user")},
		Documents: &mockDocs{},
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// --- tests ---

func TestHealthz(t *testing.T) {
	h := NewHandler(testDeps())
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestChatHappyPath(t *testing.T) {
	deps := testDeps()
	turns := deps.Turns.(*mockTurns)
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", ChatRequest{
		UserID: "u1", ThreadID: "t1", Message: "hi", Role: "engineer",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp ChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.ThreadID != "t1" || resp.Response.Message != "hello back" || resp.Role != "general user" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Timings.TotalSeconds <= 0 {
		t.Fatalf("timings = %+v", resp.Timings)
	}
	want := []string{"u1", "t1", "hi", "engineer"}
	for i, v := range want {
		if turns.gotReq[i] != v {
			t.Fatalf("forwarded request = %v, want %v", turns.gotReq, want)
		}
	}
}

func TestChatValidation(t *testing.T) {
	h := NewHandler(testDeps())

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", ChatRequest{Message: "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/chat", ChatRequest{UserID: "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing message: status = %d", rec.Code)
	}
}

func TestChatTurnFailure(t *testing.T) {
	deps := testDeps()
	deps.Turns = &mockTurns{err: errors.New("registry broken")}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/v1/chat", ChatRequest{UserID: "u1", Message: "hi"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestIngestText(t *testing.T) {
	deps := testDeps()
	ing := deps.Ingestor.(*mockIngestor)
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodPost, "/v1/ingest", IngestRequest{
		Title: "notes", Content: "some text", Source: "upload",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ing.gotText != "some text" {
		t.Fatalf("ingested text = %q", ing.gotText)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp["id"] != "doc-1" || resp["chunks"] != float64(2) {
		t.Fatalf("response = %v", resp)
	}
}

func TestIngestValidation(t *testing.T) {
	h := NewHandler(testDeps())

	rec := doJSON(t, h, http.MethodPost, "/v1/ingest", IngestRequest{Title: "x"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing content: status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/ingest", IngestRequest{
		Type: "pdf", Content: "not base64!!",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad base64: status = %d", rec.Code)
	}
}

func TestGetProfile(t *testing.T) {
	h := NewHandler(testDeps())

	rec := doJSON(t, h, http.MethodGet, "/v1/profile/u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var p personalize.Profile
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if p.Role != "general user" {
		t.Fatalf("profile = %+v", p)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	deps := testDeps()
	deps.Profiles = &mockProfiles{err: storage.ErrNotFound}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/v1/profile/u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListDocuments(t *testing.T) {
	deps := testDeps()
	deps.Documents = &mockDocs{docs: []storage.Document{
		{ID: "d1", Title: "first"},
		{ID: "d2", Title: "second"},
	}}
	h := NewHandler(deps)

	rec := doJSON(t, h, http.MethodGet, "/v1/documents?limit=1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var docs []DocumentSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &docs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "d1" {
		t.Fatalf("docs = %+v", docs)
	}
}

func TestBearerAuth(t *testing.T) {
	deps := testDeps()
	deps.Token = "secret"
	h := NewHandler(deps)

	// Health stays open.
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}

	// API routes require the token.
	rec = doJSON(t, h, http.MethodPost, "/v1/chat", ChatRequest{UserID: "u1", Message: "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(ChatRequest{UserID: "u1", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", &buf)
	req.Header.Set("Authorization", "Bearer secret")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, body %s", rec2.Code, rec2.Body)
	}
}
