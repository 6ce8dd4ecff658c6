package hooks

import (
	"context"
	"log"

	"github.com/google/uuid"
)

// LoggingHooks provides built-in logging hooks for observability.
type LoggingHooks struct {
	logger *log.Logger
}

// NewLoggingHooks creates logging hooks with the provided logger.
func NewLoggingHooks(logger *log.Logger) *LoggingHooks {
	return &LoggingHooks{logger: logger}
}

// DefaultLoggingHooks creates logging hooks with the default logger.
func DefaultLoggingHooks() *LoggingHooks {
	return &LoggingHooks{logger: log.Default()}
}

// RegisterAll attaches every logging hook to the registry.
func (h *LoggingHooks) RegisterAll(r *Registry) {
	r.OnBeforeAdvance(h.BeforeAdvance)
	r.OnAfterAdvance(h.AfterAdvance)
	r.OnBeforeCompletion(h.BeforeCompletion)
	r.OnAfterCompletion(h.AfterCompletion)
	r.OnToolCall(h.ToolCall)
	r.OnBeforeSave(h.BeforeSave)
}

// BeforeAdvance logs the start of a turn.
func (h *LoggingHooks) BeforeAdvance(ctx context.Context, agentID uuid.UUID, input string) error {
	preview := input
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	h.logger.Printf("[ImmAgent] Advancing agent %s: %s", agentID, preview)
	return nil
}

// AfterAdvance logs the new agent version.
func (h *LoggingHooks) AfterAdvance(ctx context.Context, agentID, newAgentID uuid.UUID) error {
	h.logger.Printf("[ImmAgent] Agent %s advanced to %s", agentID, newAgentID)
	return nil
}

// BeforeCompletion logs each completion request.
func (h *LoggingHooks) BeforeCompletion(ctx context.Context, agentID uuid.UUID, model string, messageCount int) error {
	h.logger.Printf("[ImmAgent] Sending %d messages to %s for agent %s", messageCount, model, agentID)
	return nil
}

// AfterCompletion logs token usage.
func (h *LoggingHooks) AfterCompletion(ctx context.Context, agentID uuid.UUID, inputTokens, outputTokens int) error {
	h.logger.Printf("[ImmAgent] Completion for agent %s: %d input tokens, %d output tokens", agentID, inputTokens, outputTokens)
	return nil
}

// ToolCall logs tool execution.
func (h *LoggingHooks) ToolCall(ctx context.Context, toolName, arguments, output string, err error) error {
	if err != nil {
		h.logger.Printf("[ImmAgent] Tool '%s' failed: %v", toolName, err)
		return nil
	}
	preview := output
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	h.logger.Printf("[ImmAgent] Tool '%s' succeeded: %s", toolName, preview)
	return nil
}

// BeforeSave logs bundle sizes.
func (h *LoggingHooks) BeforeSave(ctx context.Context, assetCount int) error {
	h.logger.Printf("[ImmAgent] Saving bundle with %d assets", assetCount)
	return nil
}
