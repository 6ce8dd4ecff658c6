package immagent

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ToolCall is a tool invocation requested by the assistant. It is embedded
// in a Message rather than being an asset of its own.
//
// Arguments is the provider's raw JSON argument string, preserved verbatim
// so round-tripping through the database never re-serializes it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is an immutable message in a conversation.
type Message struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Role      Role      `json:"role"`

	// Content is nil when the assistant responded with tool calls only.
	Content *string `json:"content,omitempty"`

	// ToolCalls is set on assistant messages that request tool use.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID references the originating call on role=tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// Usage counters, set on assistant messages when the provider reports
	// them.
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{
		ID:        NewID(),
		CreatedAt: Now(),
		Role:      RoleUser,
		Content:   &content,
	}
}

// NewAssistantMessage creates an assistant message. Content may be nil when
// the response consists of tool calls only.
func NewAssistantMessage(content *string, toolCalls []ToolCall) *Message {
	return &Message{
		ID:        NewID(),
		CreatedAt: Now(),
		Role:      RoleAssistant,
		Content:   content,
		ToolCalls: toolCalls,
	}
}

// NewToolResultMessage creates a role=tool message carrying the result of
// the tool call identified by toolCallID.
func NewToolResultMessage(toolCallID, content string) *Message {
	return &Message{
		ID:         NewID(),
		CreatedAt:  Now(),
		Role:       RoleTool,
		Content:    &content,
		ToolCallID: toolCallID,
	}
}

// AssetID implements Asset.
func (m *Message) AssetID() uuid.UUID { return m.ID }

// AssetCreatedAt implements Asset.
func (m *Message) AssetCreatedAt() time.Time { return m.CreatedAt }

// Text returns the message content, or "" if the content is nil.
func (m *Message) Text() string {
	return Deref(m.Content)
}

// Conversation is an immutable ordered snapshot of message IDs. Appending a
// turn yields a new Conversation with a new UUID; the message IDs of the
// previous snapshot form a prefix of the new one.
type Conversation struct {
	ID         uuid.UUID   `json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	MessageIDs []uuid.UUID `json:"message_ids"`
}

// NewConversation creates a conversation over the given message IDs.
func NewConversation(messageIDs ...uuid.UUID) *Conversation {
	ids := make([]uuid.UUID, len(messageIDs))
	copy(ids, messageIDs)
	return &Conversation{
		ID:         NewID(),
		CreatedAt:  Now(),
		MessageIDs: ids,
	}
}

// WithMessages returns a new conversation with the given message IDs
// appended. The receiver is not modified.
func (c *Conversation) WithMessages(messageIDs ...uuid.UUID) *Conversation {
	ids := make([]uuid.UUID, 0, len(c.MessageIDs)+len(messageIDs))
	ids = append(ids, c.MessageIDs...)
	ids = append(ids, messageIDs...)
	return &Conversation{
		ID:         NewID(),
		CreatedAt:  Now(),
		MessageIDs: ids,
	}
}

// AssetID implements Asset.
func (c *Conversation) AssetID() uuid.UUID { return c.ID }

// AssetCreatedAt implements Asset.
func (c *Conversation) AssetCreatedAt() time.Time { return c.CreatedAt }
