package shared

import "encoding/json"

// Part is a single text fragment of a conversation turn
type Part struct {
	Text string `json:"text"`
}

// Turn is one prior message of the conversation. Role is "user" or "model".
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionBody is the outbound OpenAI compatible request
type CompletionBody struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float32       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

// Response is one streamed chat completion chunk
type Response struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Model   string          `json:"model"`
	Choices []Choice        `json:"choices"`
	Error   json.RawMessage `json:"error,omitempty"`
}

type Choice struct {
	Delta Delta `json:"delta"`
}

type Delta struct {
	Content string `json:"content"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type RateLimitResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// Vital is a single web-vitals beacon
type Vital struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	ID     string  `json:"id,omitempty"`
	Page   string  `json:"page,omitempty"`
	Rating string  `json:"rating,omitempty"`
}
