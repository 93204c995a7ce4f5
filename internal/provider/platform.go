// Package provider implements the HTTP transport to OpenAI-compatible
// model platforms. It deals in raw request/response shapes only; the
// tool-calling protocol lives in internal/model.
package provider

import (
	"context"

	"siriuschat/internal/message"
)

// Payload is one chat-completions request body.
type Payload struct {
	Model            string           `json:"model"`
	Messages         []message.Turn   `json:"messages"`
	MaxTokens        int              `json:"max_tokens"`
	Stop             []string         `json:"stop,omitempty"`
	Temperature      float64          `json:"temperature"`
	TopP             float64          `json:"top_p"`
	FrequencyPenalty float64          `json:"frequency_penalty"`
	PresencePenalty  float64          `json:"presence_penalty"`
	N                int              `json:"n"`
	ResponseFormat   *ResponseFormat  `json:"response_format,omitempty"`
	Tools            []map[string]any `json:"tools,omitempty"`

	// Extra carries provider-specific fields (extended reasoning
	// toggles and similar) merged into the top level of the body.
	Extra map[string]any `json:"-"`
}

type ResponseFormat struct {
	Type string `json:"type"`
}

// Completion is the provider response. At least one choice is expected;
// its message carries either final content or tool-call requests.
type Completion struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

type Choice struct {
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

type AssistantMessage struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls"`
}

type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Platform sends one completion request and returns the raw response.
type Platform interface {
	Complete(ctx context.Context, p Payload) (*Completion, error)
	Name() string
}
