package model

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	streamingTimeout = 300 * time.Second
)

// Client talks to a Gemini-style generative REST API. One API key per call;
// credential selection belongs to the Pool.
type Client struct {
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

// NewClient creates a backend client for the given base URL and model names.
func NewClient(baseURL, chatModel, embedModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: streamingTimeout},
	}
}

// --- wire types ---

type generateRequest struct {
	Contents          []content       `json:"contents"`
	SystemInstruction *content        `json:"systemInstruction,omitempty"`
	GenerationConfig  *generateConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

type embedRequest struct {
	Content content `json:"content"`
}

type embedResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

// Complete implements Backend.
func (c *Client) Complete(ctx context.Context, apiKey string, req Request) (*Response, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model(req))
	body, err := c.do(ctx, apiKey, url, buildGenerateRequest(req), defaultTimeout)
	if err != nil {
		return nil, err
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("response contains no candidates")
	}

	cand := parsed.Candidates[0]
	var text strings.Builder
	for _, p := range cand.Content.Parts {
		text.WriteString(p.Text)
	}
	return &Response{
		Message:      Message{Role: "assistant", Content: text.String()},
		FinishReason: cand.FinishReason,
	}, nil
}

// StreamComplete implements Backend. Chunks are delivered as SSE events and
// forwarded to fn; a final Chunk with Done set follows the last event.
func (c *Client) StreamComplete(ctx context.Context, apiKey string, req Request, fn func(Chunk) error) error {
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.model(req))

	rc, err := c.doStream(ctx, apiKey, url, buildGenerateRequest(req))
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var parsed generateResponse
		if err := json.Unmarshal([]byte(data), &parsed); err != nil {
			continue
		}
		for _, cand := range parsed.Candidates {
			for _, p := range cand.Content.Parts {
				if p.Text == "" {
					continue
				}
				if err := fn(Chunk{Delta: p.Text}); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}

	return fn(Chunk{Done: true})
}

// Embed implements Backend.
func (c *Client) Embed(ctx context.Context, apiKey string, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/models/%s:embedContent", c.baseURL, c.embedModel)
	req := embedRequest{Content: content{Parts: []part{{Text: text}}}}

	body, err := c.do(ctx, apiKey, url, req, defaultTimeout)
	if err != nil {
		return nil, err
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	if len(parsed.Embedding.Values) == 0 {
		return nil, fmt.Errorf("embedding response contains no values")
	}
	return parsed.Embedding.Values, nil
}

func (c *Client) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return c.chatModel
}

func buildGenerateRequest(req Request) generateRequest {
	out := generateRequest{
		GenerationConfig: &generateConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.System != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		out.Contents = append(out.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	return out
}

func (c *Client) do(ctx context.Context, apiKey, url string, payload any, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.postJSON(ctx, apiKey, url, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, parseAPIError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) doStream(ctx context.Context, apiKey, url string, payload any) (io.ReadCloser, error) {
	reqCtx, cancel := context.WithTimeout(ctx, streamingTimeout)

	resp, err := c.postJSON(reqCtx, apiKey, url, payload)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		return nil, parseAPIError(resp.StatusCode, body)
	}

	// Wrap the body so the timeout context cancel fires when the caller closes it.
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (c *Client) postJSON(ctx context.Context, apiKey, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// parseAPIError converts an error response body to a typed *APIError so the
// Pool can classify it by status code instead of sniffing text.
func parseAPIError(status int, body []byte) error {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return &APIError{Status: status, Code: parsed.Error.Status, Message: parsed.Error.Message}
	}
	return &APIError{Status: status, Message: strings.TrimSpace(string(body))}
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
