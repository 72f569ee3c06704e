package model

// Message is a chat message exchanged with the generative backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one chat completion request. System carries the dynamic
// context block; Messages carry the conversation window.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Response is a completed (non-streamed) model response.
type Response struct {
	Message      Message
	FinishReason string
}

// Chunk is one partial response from a streamed invocation.
type Chunk struct {
	Delta string
	Done  bool
}
