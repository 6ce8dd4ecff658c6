package immagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/youssefsiam38/immagent/llm"
	"github.com/youssefsiam38/immagent/retry"
	"github.com/youssefsiam38/immagent/tool"
)

// Advance processes one user turn: the input is sent to the completion
// provider together with the agent's system prompt and full history, tool
// calls are executed until the provider stops requesting them (bounded by
// WithMaxToolRounds), and everything new is persisted atomically as a fresh
// conversation snapshot plus a child agent version.
//
// The input agent is never modified; on failure nothing is persisted and the
// agent remains the latest version.
func (s *Store) Advance(ctx context.Context, agent *Agent, input string, opts ...AdvanceOption) (*Agent, error) {
	if agent == nil {
		return nil, invalid("agent", "must not be nil")
	}
	if strings.TrimSpace(input) == "" {
		return nil, invalid("input", "must not be blank")
	}
	if s.provider == nil {
		return nil, ErrNoProvider
	}

	o := newAdvanceOptions(s.tools)
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxToolRounds < 1 {
		return nil, invalid("max tool rounds", "must be at least 1")
	}
	if o.maxRetries < 1 {
		return nil, invalid("max retries", "must be at least 1")
	}
	if o.timeout <= 0 {
		return nil, invalid("timeout", "must be positive")
	}

	if err := s.hooks.TriggerBeforeAdvance(ctx, agent.ID, input); err != nil {
		return nil, fmt.Errorf("before-advance hook failed: %w", err)
	}

	prompt, err := s.getText(ctx, agent.SystemPromptID)
	if err != nil {
		return nil, err
	}
	conversation, err := s.getConversation(ctx, agent.ConversationID)
	if err != nil {
		return nil, err
	}
	previous, err := s.getMessages(ctx, conversation.MessageIDs)
	if err != nil {
		return nil, err
	}

	history := make([]llm.Message, 0, len(previous)+1)
	for _, msg := range previous {
		history = append(history, toLLMMessage(msg))
	}

	var tools []llm.Tool
	if o.toolProvider != nil {
		available, err := o.toolProvider.Tools(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tools: %w", err)
		}
		for _, t := range available {
			tools = append(tools, llm.Tool{
				Name:        t.Name(),
				Description: t.Description(),
				InputSchema: t.InputSchema(),
			})
		}
	}

	config := toLLMConfig(agent.ModelConfig.Merge(o.override))

	userMsg := NewUserMessage(input)
	newMessages := []*Message{userMsg}
	history = append(history, toLLMMessage(userMsg))

	for round := 0; round < o.maxToolRounds; round++ {
		if err := s.hooks.TriggerBeforeCompletion(ctx, agent.ID, agent.Model, len(history)); err != nil {
			return nil, fmt.Errorf("before-completion hook failed: %w", err)
		}

		response, err := s.provider.Complete(ctx, &llm.Request{
			Model:      agent.Model,
			System:     prompt.Content,
			Messages:   history,
			Tools:      tools,
			Config:     config,
			Timeout:    o.timeout,
			MaxRetries: o.maxRetries,
		})
		if err != nil {
			return nil, &LLMError{Transient: retry.IsRecoverable(err), Err: err}
		}

		if err := s.hooks.TriggerAfterCompletion(ctx, agent.ID, response.Usage.InputTokens, response.Usage.OutputTokens); err != nil {
			return nil, fmt.Errorf("after-completion hook failed: %w", err)
		}

		assistant := NewAssistantMessage(response.Content, fromLLMToolCalls(response.ToolCalls))
		if response.Usage.InputTokens > 0 || response.Usage.OutputTokens > 0 {
			assistant.InputTokens = Ptr(response.Usage.InputTokens)
			assistant.OutputTokens = Ptr(response.Usage.OutputTokens)
		}
		newMessages = append(newMessages, assistant)
		history = append(history, toLLMMessage(assistant))

		if len(response.ToolCalls) == 0 || o.toolProvider == nil {
			break
		}

		calls := make([]tool.Call, len(response.ToolCalls))
		for i, call := range response.ToolCalls {
			calls[i] = tool.Call{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
		}

		// Calls run concurrently; results come back in call order so the
		// persisted history is deterministic.
		results := tool.ExecuteAll(ctx, o.toolProvider, calls)
		for i, result := range results {
			content := result.Content
			if result.Err != nil {
				// A failed tool becomes information for the model, not a
				// failed turn.
				content = "Error: " + result.Err.Error()
			}
			if err := s.hooks.TriggerToolCall(ctx, result.Name, calls[i].Arguments, content, result.Err); err != nil {
				return nil, fmt.Errorf("tool-call hook failed: %w", err)
			}
			toolMsg := NewToolResultMessage(result.CallID, content)
			newMessages = append(newMessages, toolMsg)
			history = append(history, toLLMMessage(toolMsg))
		}
	}

	messageIDs := make([]uuid.UUID, len(newMessages))
	for i, msg := range newMessages {
		messageIDs[i] = msg.ID
	}
	newConversation := conversation.WithMessages(messageIDs...)
	newAgent := agent.evolve(newConversation)

	bundle := &Bundle{
		Messages:      newMessages,
		Conversations: []*Conversation{newConversation},
		Agents:        []*Agent{newAgent},
	}
	if err := s.saveBundle(ctx, bundle); err != nil {
		return nil, err
	}

	if err := s.hooks.TriggerAfterAdvance(ctx, agent.ID, newAgent.ID); err != nil {
		return nil, fmt.Errorf("after-advance hook failed: %w", err)
	}

	return newAgent, nil
}

// toLLMMessage maps a persisted message onto the provider-neutral shape.
func toLLMMessage(msg *Message) llm.Message {
	out := llm.Message{
		Role:       llm.Role(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	for _, call := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        call.ID,
			Name:      call.Name,
			Arguments: call.Arguments,
		})
	}
	return out
}

func fromLLMToolCalls(calls []llm.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]ToolCall, len(calls))
	for i, call := range calls {
		out[i] = ToolCall{ID: call.ID, Name: call.Name, Arguments: call.Arguments}
	}
	return out
}

func toLLMConfig(config ModelConfig) llm.Config {
	return llm.Config{
		Temperature:      config.Temperature,
		MaxTokens:        config.MaxTokens,
		TopP:             config.TopP,
		TopK:             config.TopK,
		Stop:             config.Stop,
		FrequencyPenalty: config.FrequencyPenalty,
		PresencePenalty:  config.PresencePenalty,
		Extra:            config.Extra,
	}
}
