// Package hooks lets callers observe the turn lifecycle: advance start and
// end, completion calls, tool executions, and bundle saves. A hook returning
// an error aborts the operation that triggered it.
package hooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// BeforeAdvanceHook is called before a turn starts.
type BeforeAdvanceHook func(ctx context.Context, agentID uuid.UUID, input string) error

// AfterAdvanceHook is called after a turn produced a new agent version.
type AfterAdvanceHook func(ctx context.Context, agentID, newAgentID uuid.UUID) error

// BeforeCompletionHook is called before each completion request.
type BeforeCompletionHook func(ctx context.Context, agentID uuid.UUID, model string, messageCount int) error

// AfterCompletionHook is called after each completion response.
type AfterCompletionHook func(ctx context.Context, agentID uuid.UUID, inputTokens, outputTokens int) error

// ToolCallHook is called after each tool execution, successful or not.
type ToolCallHook func(ctx context.Context, toolName, arguments, output string, err error) error

// BeforeSaveHook is called before a bundle is written.
type BeforeSaveHook func(ctx context.Context, assetCount int) error

// Registry holds all registered hooks.
type Registry struct {
	mu               sync.RWMutex
	beforeAdvance    []BeforeAdvanceHook
	afterAdvance     []AfterAdvanceHook
	beforeCompletion []BeforeCompletionHook
	afterCompletion  []AfterCompletionHook
	toolCall         []ToolCallHook
	beforeSave       []BeforeSaveHook
}

// NewRegistry creates an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// OnBeforeAdvance registers a hook called before a turn starts.
func (r *Registry) OnBeforeAdvance(hook BeforeAdvanceHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeAdvance = append(r.beforeAdvance, hook)
}

// OnAfterAdvance registers a hook called after a turn completes.
func (r *Registry) OnAfterAdvance(hook AfterAdvanceHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterAdvance = append(r.afterAdvance, hook)
}

// OnBeforeCompletion registers a hook called before each completion request.
func (r *Registry) OnBeforeCompletion(hook BeforeCompletionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeCompletion = append(r.beforeCompletion, hook)
}

// OnAfterCompletion registers a hook called after each completion response.
func (r *Registry) OnAfterCompletion(hook AfterCompletionHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.afterCompletion = append(r.afterCompletion, hook)
}

// OnToolCall registers a hook called after each tool execution.
func (r *Registry) OnToolCall(hook ToolCallHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toolCall = append(r.toolCall, hook)
}

// OnBeforeSave registers a hook called before each bundle save.
func (r *Registry) OnBeforeSave(hook BeforeSaveHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.beforeSave = append(r.beforeSave, hook)
}

// TriggerBeforeAdvance calls all registered before-advance hooks.
func (r *Registry) TriggerBeforeAdvance(ctx context.Context, agentID uuid.UUID, input string) error {
	r.mu.RLock()
	hooks := make([]BeforeAdvanceHook, len(r.beforeAdvance))
	copy(hooks, r.beforeAdvance)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, agentID, input); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterAdvance calls all registered after-advance hooks.
func (r *Registry) TriggerAfterAdvance(ctx context.Context, agentID, newAgentID uuid.UUID) error {
	r.mu.RLock()
	hooks := make([]AfterAdvanceHook, len(r.afterAdvance))
	copy(hooks, r.afterAdvance)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, agentID, newAgentID); err != nil {
			return err
		}
	}
	return nil
}

// TriggerBeforeCompletion calls all registered before-completion hooks.
func (r *Registry) TriggerBeforeCompletion(ctx context.Context, agentID uuid.UUID, model string, messageCount int) error {
	r.mu.RLock()
	hooks := make([]BeforeCompletionHook, len(r.beforeCompletion))
	copy(hooks, r.beforeCompletion)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, agentID, model, messageCount); err != nil {
			return err
		}
	}
	return nil
}

// TriggerAfterCompletion calls all registered after-completion hooks.
func (r *Registry) TriggerAfterCompletion(ctx context.Context, agentID uuid.UUID, inputTokens, outputTokens int) error {
	r.mu.RLock()
	hooks := make([]AfterCompletionHook, len(r.afterCompletion))
	copy(hooks, r.afterCompletion)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, agentID, inputTokens, outputTokens); err != nil {
			return err
		}
	}
	return nil
}

// TriggerToolCall calls all registered tool-call hooks.
func (r *Registry) TriggerToolCall(ctx context.Context, toolName, arguments, output string, err error) error {
	r.mu.RLock()
	hooks := make([]ToolCallHook, len(r.toolCall))
	copy(hooks, r.toolCall)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if hookErr := hook(ctx, toolName, arguments, output, err); hookErr != nil {
			return hookErr
		}
	}
	return nil
}

// TriggerBeforeSave calls all registered before-save hooks.
func (r *Registry) TriggerBeforeSave(ctx context.Context, assetCount int) error {
	r.mu.RLock()
	hooks := make([]BeforeSaveHook, len(r.beforeSave))
	copy(hooks, r.beforeSave)
	r.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, assetCount); err != nil {
			return err
		}
	}
	return nil
}
