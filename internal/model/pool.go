package model

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// Backend is a generative-model endpoint invoked with one credential per
// call. Implemented by Client; tests supply mocks.
type Backend interface {
	Complete(ctx context.Context, apiKey string, req Request) (*Response, error)
	StreamComplete(ctx context.Context, apiKey string, req Request, fn func(Chunk) error) error
	Embed(ctx context.Context, apiKey string, text string) ([]float32, error)
}

// Pool wraps a Backend with credential rotation across a fixed ordered key
// list. The current index is a process-wide shared cell: a credential found
// exhausted by one caller is not retried first by the next. The cell is read
// and advanced without a lock — concurrent callers may interleave advances
// and occasionally skip a still-valid key, which costs an extra rotation but
// never a wrong response.
type Pool struct {
	backend Backend
	keys    []string
	current atomic.Int64
}

// NewPool creates a Pool over the given ordered credentials.
func NewPool(backend Backend, keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, errors.New("at least one credential is required")
	}
	return &Pool{backend: backend, keys: keys}, nil
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Invoke performs a chat completion, rotating credentials per failure class.
// Attempts are bounded by pool size; the returned *PoolError wraps the last
// underlying error when no attempt succeeds.
func (p *Pool) Invoke(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	err := p.withRotation(ctx, func(key string) error {
		var callErr error
		resp, callErr = p.backend.Complete(ctx, key, req.withDefaults())
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream performs a streamed completion with the same rotation algorithm.
// Rotation only covers attempts that fail before any chunk is delivered;
// once fn has observed output, a failure aborts without retry so the caller
// never sees a restarted stream.
func (p *Pool) Stream(ctx context.Context, req Request, fn func(Chunk) error) error {
	delivered := false
	wrapped := func(c Chunk) error {
		delivered = true
		return fn(c)
	}
	return p.withRotation(ctx, func(key string) error {
		err := p.backend.StreamComplete(ctx, key, req.withDefaults(), wrapped)
		if err != nil && delivered {
			return &abortError{err: err}
		}
		return err
	})
}

// Embed returns an embedding vector, rotating credentials like Invoke.
func (p *Pool) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := p.withRotation(ctx, func(key string) error {
		var callErr error
		vec, callErr = p.backend.Embed(ctx, key, text)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// abortError marks a failure that must not trigger rotation regardless of class.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

func (p *Pool) withRotation(ctx context.Context, call func(key string) error) error {
	size := len(p.keys)
	idx := int(p.current.Load()) % size
	var lastErr error
	attempts := 0

	for range size {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := call(p.keys[idx])
		if err == nil {
			return nil
		}
		lastErr = err

		var abort *abortError
		if errors.As(err, &abort) {
			return abort.err
		}

		class := Classify(err)
		slog.Warn("model call failed", "key_index", idx, "class", class.String(), "error", err)

		if class == ClassFatal || class == ClassUnknown {
			break
		}
		if attempts == size {
			break
		}

		// Shared advance: read-modify-write without CAS, tolerated race.
		idx = (idx + 1) % size
		p.current.Store(int64(idx))
		slog.Info("rotating credential", "key_index", idx)
	}

	return &PoolError{Attempts: attempts, Last: lastErr}
}

func (r Request) withDefaults() Request {
	if r.Temperature == 0 {
		r.Temperature = 0.3
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 2000
	}
	return r
}
