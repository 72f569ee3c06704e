package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// --- Mock backend ---

type mockBackend struct {
	mu    sync.Mutex
	calls []string // api keys in call order

	// respond maps an api key to its outcome; keys absent from the map succeed.
	respond map[string]error
}

func newMockBackend(respond map[string]error) *mockBackend {
	return &mockBackend{respond: respond}
}

func (m *mockBackend) Complete(ctx context.Context, apiKey string, req Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, apiKey)
	err := m.respond[apiKey]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &Response{Message: Message{Role: "assistant", Content: "ok from " + apiKey}}, nil
}

func (m *mockBackend) StreamComplete(ctx context.Context, apiKey string, req Request, fn func(Chunk) error) error {
	m.mu.Lock()
	m.calls = append(m.calls, apiKey)
	err := m.respond[apiKey]
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if err := fn(Chunk{Delta: "ok"}); err != nil {
		return err
	}
	return fn(Chunk{Done: true})
}

func (m *mockBackend) Embed(ctx context.Context, apiKey string, text string) ([]float32, error) {
	m.mu.Lock()
	m.calls = append(m.calls, apiKey)
	err := m.respond[apiKey]
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return []float32{0.1, 0.2}, nil
}

func (m *mockBackend) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func quotaErr() error     { return &APIError{Status: 429, Code: "RESOURCE_EXHAUSTED", Message: "quota"} }
func fatalErr() error     { return &APIError{Status: 403, Code: "PERMISSION_DENIED", Message: "denied"} }
func transientErr() error { return &APIError{Status: 503, Code: "UNAVAILABLE", Message: "overloaded"} }

// --- Classification ---

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"api 429", quotaErr(), ClassQuota},
		{"api 400", &APIError{Status: 400, Code: "INVALID_ARGUMENT"}, ClassFatal},
		{"api 403", fatalErr(), ClassFatal},
		{"api 404", &APIError{Status: 404, Code: "NOT_FOUND"}, ClassFatal},
		{"api 500", &APIError{Status: 500, Code: "INTERNAL"}, ClassTransient},
		{"api 503", transientErr(), ClassTransient},
		{"api 504", &APIError{Status: 504, Code: "DEADLINE_EXCEEDED"}, ClassTransient},
		{"text 429", errors.New("got 429 from upstream"), ClassQuota},
		{"text RESOURCE_EXHAUSTED", errors.New("RESOURCE_EXHAUSTED: per-minute quota"), ClassQuota},
		{"text FAILED_PRECONDITION", errors.New("FAILED_PRECONDITION: key disabled"), ClassFatal},
		{"text UNAVAILABLE", errors.New("UNAVAILABLE: try later"), ClassTransient},
		{"wrapped api error", fmt.Errorf("call failed: %w", quotaErr()), ClassQuota},
		{"unrecognized", errors.New("connection reset by peer"), ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// --- Rotation ---

func TestInvokeSuccessKeepsIndex(t *testing.T) {
	backend := newMockBackend(nil)
	pool, err := NewPool(backend, []string{"k1", "k2"})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := pool.Invoke(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Message.Content != "ok from k1" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if got := pool.current.Load(); got != 0 {
		t.Errorf("current index = %d, want 0 (success never advances)", got)
	}
}

func TestInvokeRotatesOnQuota(t *testing.T) {
	backend := newMockBackend(map[string]error{"k1": quotaErr()})
	pool, _ := NewPool(backend, []string{"k1", "k2", "k3"})

	resp, err := pool.Invoke(context.Background(), Request{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if resp.Message.Content != "ok from k2" {
		t.Errorf("content = %q, want answer from k2", resp.Message.Content)
	}
	if got := pool.current.Load(); got != 1 {
		t.Errorf("current index = %d, want 1", got)
	}

	// Next caller starts from the rotated index.
	if _, err := pool.Invoke(context.Background(), Request{}); err != nil {
		t.Fatalf("second invoke: %v", err)
	}
	backend.mu.Lock()
	last := backend.calls[len(backend.calls)-1]
	backend.mu.Unlock()
	if last != "k2" {
		t.Errorf("second call used %q, want k2", last)
	}
}

func TestInvokeFatalAbortsAfterOneAttempt(t *testing.T) {
	backend := newMockBackend(map[string]error{
		"k1": fatalErr(),
		"k2": fatalErr(),
		"k3": fatalErr(),
	})
	pool, _ := NewPool(backend, []string{"k1", "k2", "k3"})

	_, err := pool.Invoke(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if backend.callCount() != 1 {
		t.Errorf("attempts = %d, want 1 (no rotation on fatal)", backend.callCount())
	}

	var poolErr *PoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("error type = %T, want *PoolError", err)
	}
	if poolErr.Attempts != 1 {
		t.Errorf("PoolError.Attempts = %d, want 1", poolErr.Attempts)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Errorf("expected wrapped 403 APIError, got %v", err)
	}
}

func TestInvokeTransientExhaustsAllCredentials(t *testing.T) {
	backend := newMockBackend(map[string]error{
		"k1": transientErr(),
		"k2": transientErr(),
		"k3": transientErr(),
	})
	pool, _ := NewPool(backend, []string{"k1", "k2", "k3"})

	_, err := pool.Invoke(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if backend.callCount() != 3 {
		t.Errorf("attempts = %d, want 3 (one per credential)", backend.callCount())
	}

	var poolErr *PoolError
	if !errors.As(err, &poolErr) {
		t.Fatalf("error type = %T, want *PoolError", err)
	}
	if poolErr.Attempts != 3 {
		t.Errorf("PoolError.Attempts = %d, want 3", poolErr.Attempts)
	}
}

func TestInvokeUnknownErrorDoesNotRotate(t *testing.T) {
	backend := newMockBackend(map[string]error{"k1": errors.New("connection reset by peer")})
	pool, _ := NewPool(backend, []string{"k1", "k2"})

	_, err := pool.Invoke(context.Background(), Request{})
	if err == nil {
		t.Fatal("expected error")
	}
	if backend.callCount() != 1 {
		t.Errorf("attempts = %d, want 1 (conservative default)", backend.callCount())
	}
	if got := pool.current.Load(); got != 0 {
		t.Errorf("current index = %d, want 0", got)
	}
}

func TestStreamRotatesBeforeFirstChunk(t *testing.T) {
	backend := newMockBackend(map[string]error{"k1": quotaErr()})
	pool, _ := NewPool(backend, []string{"k1", "k2"})

	var got string
	err := pool.Stream(context.Background(), Request{}, func(c Chunk) error {
		got += c.Delta
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if got != "ok" {
		t.Errorf("streamed = %q", got)
	}
}

type midStreamBackend struct {
	mockBackend
}

func (m *midStreamBackend) StreamComplete(ctx context.Context, apiKey string, req Request, fn func(Chunk) error) error {
	m.mu.Lock()
	m.calls = append(m.calls, apiKey)
	m.mu.Unlock()
	if err := fn(Chunk{Delta: "partial"}); err != nil {
		return err
	}
	return transientErr()
}

func TestStreamNoRestartAfterDelivery(t *testing.T) {
	backend := &midStreamBackend{}
	pool, _ := NewPool(backend, []string{"k1", "k2"})

	err := pool.Stream(context.Background(), Request{}, func(Chunk) error { return nil })
	if err == nil {
		t.Fatal("expected error")
	}
	if backend.callCount() != 1 {
		t.Errorf("attempts = %d, want 1 (no retry after chunks were delivered)", backend.callCount())
	}
	var poolErr *PoolError
	if errors.As(err, &poolErr) {
		t.Errorf("mid-stream failure must surface the raw error, got %v", err)
	}
}

func TestConcurrentInvokesShareIndex(t *testing.T) {
	backend := newMockBackend(map[string]error{"k1": quotaErr()})
	pool, _ := NewPool(backend, []string{"k1", "k2"})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := pool.Invoke(context.Background(), Request{}); err != nil {
				t.Errorf("invoke: %v", err)
			}
		}()
	}
	wg.Wait()

	// After a k1 quota failure every caller must converge on k2.
	if got := pool.current.Load(); got != 1 {
		t.Errorf("current index = %d, want 1", got)
	}
}

func TestNewPoolRequiresCredentials(t *testing.T) {
	if _, err := NewPool(newMockBackend(nil), nil); err == nil {
		t.Fatal("expected error for empty credential list")
	}
}
