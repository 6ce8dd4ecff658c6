package immagent

import (
	"testing"

	"github.com/google/uuid"
)

func TestConversationWithMessagesPreservesPrefix(t *testing.T) {
	m1 := NewUserMessage("hello")
	m2 := NewAssistantMessage(Ptr("hi"), nil)
	base := NewConversation(m1.ID, m2.ID)

	m3 := NewUserMessage("more")
	next := base.WithMessages(m3.ID)

	if next.ID == base.ID {
		t.Error("WithMessages must mint a new ID")
	}
	if len(base.MessageIDs) != 2 {
		t.Errorf("base conversation changed: %d ids", len(base.MessageIDs))
	}
	if len(next.MessageIDs) != 3 {
		t.Fatalf("next conversation has %d ids, want 3", len(next.MessageIDs))
	}
	for i, id := range base.MessageIDs {
		if next.MessageIDs[i] != id {
			t.Errorf("prefix broken at %d", i)
		}
	}
	if next.MessageIDs[2] != m3.ID {
		t.Error("appended message missing")
	}
}

func TestNewConversationCopiesInput(t *testing.T) {
	m1 := NewUserMessage("a")
	ids := []uuid.UUID{m1.ID}
	conv := NewConversation(ids...)
	ids[0] = NewID()
	if conv.MessageIDs[0] != m1.ID {
		t.Error("conversation shares the caller's slice")
	}
}

func TestMessageText(t *testing.T) {
	msg := NewAssistantMessage(nil, []ToolCall{{ID: "t1", Name: "f", Arguments: "{}"}})
	if msg.Text() != "" {
		t.Errorf("Text() = %q, want empty", msg.Text())
	}
	if msg.Content != nil {
		t.Error("tool-only assistant message should have nil content")
	}

	user := NewUserMessage("hello")
	if user.Text() != "hello" {
		t.Errorf("Text() = %q, want hello", user.Text())
	}
}

func TestNewToolResultMessage(t *testing.T) {
	msg := NewToolResultMessage("call_1", "result")
	if msg.Role != RoleTool {
		t.Errorf("Role = %s, want tool", msg.Role)
	}
	if msg.ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %s, want call_1", msg.ToolCallID)
	}
	if msg.Text() != "result" {
		t.Errorf("Text() = %q, want result", msg.Text())
	}
}
