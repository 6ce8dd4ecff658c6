// Package tool defines the tool-calling surface of a turn: the Tool
// interface, an in-process Registry, and an Executor that runs a batch of
// provider-issued calls in parallel while preserving call order.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is one callable capability advertised to the completion provider.
type Tool interface {
	// Name is the identifier the provider calls the tool by.
	Name() string

	// Description tells the provider when to use the tool.
	Description() string

	// InputSchema is a JSON Schema object describing the arguments.
	InputSchema() json.RawMessage

	// Execute runs the tool. arguments is the provider's JSON object,
	// verbatim. The returned string becomes the tool result message.
	Execute(ctx context.Context, arguments string) (string, error)
}

// Provider supplies tools for a turn. Implementations may be static (a
// Registry) or dynamic (an MCP server session).
type Provider interface {
	// Tools lists the tools to advertise.
	Tools(ctx context.Context) ([]Tool, error)

	// Execute runs one tool by name.
	Execute(ctx context.Context, name, arguments string) (string, error)
}

// Call is one provider-issued tool invocation.
type Call struct {
	ID        string
	Name      string
	Arguments string
}

// Result is the outcome of one call. Err is set for failures; Content holds
// the tool output otherwise.
type Result struct {
	CallID  string
	Name    string
	Content string
	Err     error
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName        string
	ToolDescription string
	Schema          json.RawMessage
	Fn              func(ctx context.Context, arguments string) (string, error)
}

// Name implements Tool.
func (f *Func) Name() string { return f.ToolName }

// Description implements Tool.
func (f *Func) Description() string { return f.ToolDescription }

// InputSchema implements Tool.
func (f *Func) InputSchema() json.RawMessage {
	if f.Schema == nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return f.Schema
}

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, arguments string) (string, error) {
	if f.Fn == nil {
		return "", fmt.Errorf("tool %s has no implementation", f.ToolName)
	}
	return f.Fn(ctx, arguments)
}
