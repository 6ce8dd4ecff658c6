package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/youssefsiam38/immagent/llm"
)

func strPtr(s string) *string { return &s }

func TestConvertMessagesGroupsToolResults(t *testing.T) {
	messages := []llm.Message{
		{Role: llm.RoleUser, Content: strPtr("go")},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "a", Arguments: `{"x":1}`},
			{ID: "c2", Name: "b", Arguments: `{}`},
		}},
		{Role: llm.RoleTool, ToolCallID: "c1", Content: strPtr("r1")},
		{Role: llm.RoleTool, ToolCallID: "c2", Content: strPtr("r2")},
		{Role: llm.RoleAssistant, Content: strPtr("done")},
	}

	params, err := convertMessages(messages)
	if err != nil {
		t.Fatalf("convertMessages failed: %v", err)
	}

	// user, assistant, one grouped user turn with both results, assistant
	if len(params) != 4 {
		t.Fatalf("got %d params, want 4", len(params))
	}
	if params[2].Role != anthropic.MessageParamRoleUser {
		t.Errorf("tool results must be sent as a user turn, got %s", params[2].Role)
	}
	if len(params[2].Content) != 2 {
		t.Errorf("grouped turn has %d blocks, want 2", len(params[2].Content))
	}
}

func TestConvertMessagesRejectsBadArguments(t *testing.T) {
	_, err := convertMessages([]llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c1", Name: "a", Arguments: `{not json`},
		}},
	})
	if err == nil {
		t.Error("invalid tool call arguments must fail conversion")
	}
}

func TestConvertTools(t *testing.T) {
	tools, err := convertTools([]llm.Tool{
		{
			Name:        "search",
			Description: "finds things",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}`),
		},
		{Name: "noop", Description: "does nothing"},
	})
	if err != nil {
		t.Fatalf("convertTools failed: %v", err)
	}

	if len(tools) != 2 {
		t.Fatalf("got %d tools, want 2", len(tools))
	}
	search := tools[0].OfTool
	if search.Name != "search" {
		t.Errorf("name = %q", search.Name)
	}
	if len(search.InputSchema.Required) != 1 || search.InputSchema.Required[0] != "q" {
		t.Errorf("required = %v", search.InputSchema.Required)
	}
	props, ok := search.InputSchema.Properties.(map[string]any)
	if !ok || props["q"] == nil {
		t.Errorf("properties = %v", search.InputSchema.Properties)
	}

	// A tool without a schema still gets an object schema.
	if tools[1].OfTool.InputSchema.Properties == nil {
		t.Error("missing schema must default to empty properties")
	}
}

func TestBuildParams(t *testing.T) {
	req := &llm.Request{
		Model:  "claude-3-5-haiku-20241022",
		System: "be terse",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: strPtr("hi")},
		},
		Config: llm.Config{
			Temperature: floatPtr(0.4),
			MaxTokens:   int64Ptr(512),
			Stop:        []string{"STOP"},
		},
	}

	params, err := buildParams(req)
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}

	if params.MaxTokens != 512 {
		t.Errorf("MaxTokens = %d", params.MaxTokens)
	}
	if len(params.System) != 1 || params.System[0].Text != "be terse" {
		t.Error("system prompt not set")
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.4 {
		t.Errorf("Temperature = %+v", params.Temperature)
	}
	if len(params.StopSequences) != 1 {
		t.Errorf("StopSequences = %v", params.StopSequences)
	}
}

func TestBuildParamsDefaultMaxTokens(t *testing.T) {
	params, err := buildParams(&llm.Request{Model: "m"})
	if err != nil {
		t.Fatalf("buildParams failed: %v", err)
	}
	if params.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want %d", params.MaxTokens, DefaultMaxTokens)
	}
}

func floatPtr(f float64) *float64 { return &f }
func int64Ptr(i int64) *int64     { return &i }
