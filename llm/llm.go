// Package llm defines the provider-neutral completion interface. Providers
// (Anthropic today) live in subpackages and adapt these types to their SDK.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a provider-issued request to run one tool. Arguments is the
// provider's JSON object, verbatim.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one turn of the conversation sent to the provider. Tool results
// carry ToolCallID and RoleTool; assistant turns may carry ToolCalls.
type Message struct {
	Role       Role
	Content    *string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Tool describes one callable tool advertised to the provider. InputSchema
// is a JSON Schema object.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Config holds sampling knobs. Nil knobs are omitted from the provider
// request. Extra carries provider-specific keys the core does not model.
type Config struct {
	Temperature      *float64
	MaxTokens        *int64
	TopP             *float64
	TopK             *int64
	Stop             []string
	FrequencyPenalty *float64
	PresencePenalty  *float64
	Extra            map[string]any
}

// Usage counts tokens consumed by one completion call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Request is one completion call.
type Request struct {
	Model    string
	System   string
	Messages []Message
	Tools    []Tool
	Config   Config

	// Timeout bounds each attempt, not the whole retry loop.
	Timeout time.Duration

	// MaxRetries is the total number of attempts for transient failures.
	MaxRetries int
}

// Response is the provider's reply: text, tool calls, or both.
type Response struct {
	Content   *string
	ToolCalls []ToolCall
	Usage     Usage
}

// Provider turns a Request into a Response. Implementations handle their own
// retry and timeout policy from the request fields.
type Provider interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}
