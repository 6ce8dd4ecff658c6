package immagent

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors
var (
	// ErrAgentNotFound is returned when an agent does not exist
	ErrAgentNotFound = errors.New("agent not found")

	// ErrConversationNotFound is returned when a conversation does not exist
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrSystemPromptNotFound is returned when a system prompt text asset
	// does not exist
	ErrSystemPromptNotFound = errors.New("system prompt not found")

	// ErrMessageNotFound is returned when a message does not exist
	ErrMessageNotFound = errors.New("message not found")

	// ErrNoProvider is returned by Advance when the store has no completion
	// provider configured
	ErrNoProvider = errors.New("no completion provider configured")

	// ErrToolNotFound is returned when a tool cannot be found
	ErrToolNotFound = errors.New("tool not found")

	// ErrPoolExhausted is returned when a database connection cannot be
	// acquired before the driver or context deadline
	ErrPoolExhausted = errors.New("connection pool exhausted")
)

// NotFoundError reports a missing asset of a specific kind. It unwraps to
// the matching sentinel so callers can use errors.Is.
type NotFoundError struct {
	Kind string // "agent", "conversation", "system prompt", "message"
	ID   uuid.UUID
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Unwrap maps the kind to its sentinel error
func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "agent":
		return ErrAgentNotFound
	case "conversation":
		return ErrConversationNotFound
	case "system prompt":
		return ErrSystemPromptNotFound
	case "message":
		return ErrMessageNotFound
	}
	return nil
}

func notFound(kind string, id uuid.UUID) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ValidationError reports a malformed input rejected before any I/O.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// LLMError reports a failed completion call. Transient is true when the
// failure category is retryable (network, provider 5xx, rate limit) and
// retries were exhausted; false for permanent failures (auth, invalid
// request, content policy).
type LLMError struct {
	Transient bool
	Err       error
}

// Error implements the error interface
func (e *LLMError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("llm error (%s): %v", kind, e.Err)
}

// Unwrap returns the underlying error
func (e *LLMError) Unwrap() error {
	return e.Err
}

// ToolError reports a failed tool execution. The advance engine converts it
// to a textual tool-result message; it never reaches Advance callers.
type ToolError struct {
	Tool string
	Err  error
}

// Error implements the error interface
func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying error
func (e *ToolError) Unwrap() error {
	return e.Err
}

// IntegrityError reports a relational constraint violation that escaped
// validation.
type IntegrityError struct {
	Detail string
	Err    error
}

// Error implements the error interface
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %s", e.Detail)
}

// Unwrap returns the underlying error
func (e *IntegrityError) Unwrap() error {
	return e.Err
}
