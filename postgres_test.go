package immagent

import (
	"context"
	"errors"
	"testing"

	"github.com/youssefsiam38/immagent/internal/testutil"
)

// newPostgresStore connects to DATABASE_URL, initializes the schema, and
// truncates tables. Skips when DATABASE_URL is unset.
func newPostgresStore(t *testing.T, opts ...StoreOption) *Store {
	t.Helper()

	db := testutil.NewTestDB(t)
	store := New(NewPostgresBackend(db.Pool), opts...)

	ctx := context.Background()
	if err := store.InitSchema(ctx); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}
	if err := db.CleanTables(ctx); err != nil {
		t.Fatalf("CleanTables failed: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPostgresAgentRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	agent, err := store.CreateAgent(ctx, "pg-agent", "prompt text", "test-model", ModelConfig{
		Temperature: Ptr(0.3),
		Extra:       map[string]any{"custom": "value"},
	})
	if err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	store.ClearCache()

	loaded, err := store.LoadAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if loaded.Name != "pg-agent" || loaded.Model != "test-model" {
		t.Errorf("loaded = %q/%q", loaded.Name, loaded.Model)
	}
	if !loaded.CreatedAt.Equal(agent.CreatedAt) {
		t.Errorf("CreatedAt changed across reload: %v != %v", loaded.CreatedAt, agent.CreatedAt)
	}
	if loaded.ModelConfig.Temperature == nil || *loaded.ModelConfig.Temperature != 0.3 {
		t.Error("model config temperature lost")
	}
	if loaded.ModelConfig.Extra["custom"] != "value" {
		t.Error("model config extra keys lost")
	}

	prompt, err := store.SystemPrompt(ctx, loaded)
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if prompt.Content != "prompt text" {
		t.Errorf("prompt = %q", prompt.Content)
	}
}

func TestPostgresMetadataRoundTrip(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	root, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})
	tagged, err := store.WithMetadata(ctx, root, AgentUpdate{
		Metadata: map[string]any{"owner": "billing", "priority": float64(3)},
	})
	if err != nil {
		t.Fatalf("WithMetadata failed: %v", err)
	}

	store.ClearCache()

	loaded, err := store.LoadAgent(ctx, tagged.ID)
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if loaded.Metadata["owner"] != "billing" || loaded.Metadata["priority"] != float64(3) {
		t.Errorf("metadata = %v", loaded.Metadata)
	}

	// An untagged agent reloads with nil metadata, not an empty map.
	reloadedRoot, err := store.LoadAgent(ctx, root.ID)
	if err != nil {
		t.Fatalf("LoadAgent(root) failed: %v", err)
	}
	if reloadedRoot.Metadata != nil {
		t.Errorf("root metadata = %v, want nil", reloadedRoot.Metadata)
	}
}

func TestPostgresMessagePersistence(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	agent, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})

	user := NewUserMessage("hello")
	assistant := NewAssistantMessage(nil, []ToolCall{
		{ID: "call_abc", Name: "lookup", Arguments: `{"q":"x"}`},
	})
	assistant.InputTokens = Ptr(12)
	assistant.OutputTokens = Ptr(7)
	result := NewToolResultMessage("call_abc", "found it")

	conv, _ := store.getConversation(ctx, agent.ConversationID)
	next := conv.WithMessages(user.ID, assistant.ID, result.ID)
	child := &Agent{
		ID:             NewID(),
		CreatedAt:      Now(),
		Name:           agent.Name,
		SystemPromptID: agent.SystemPromptID,
		ParentID:       Ptr(agent.ID),
		ConversationID: next.ID,
		Model:          agent.Model,
	}
	err := store.saveBundle(ctx, &Bundle{
		Messages:      []*Message{user, assistant, result},
		Conversations: []*Conversation{next},
		Agents:        []*Agent{child},
	})
	if err != nil {
		t.Fatalf("saveBundle failed: %v", err)
	}

	store.ClearCache()

	loaded, err := store.LoadAgent(ctx, child.ID)
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	messages, err := store.GetMessages(ctx, loaded)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("history has %d messages, want 3", len(messages))
	}
	if messages[1].ToolCalls[0].Arguments != `{"q":"x"}` {
		t.Errorf("tool call arguments = %q", messages[1].ToolCalls[0].Arguments)
	}
	if messages[1].Content != nil {
		t.Error("tool-only assistant message content should stay nil")
	}
	if Deref(messages[1].InputTokens) != 12 || Deref(messages[1].OutputTokens) != 7 {
		t.Error("usage counters lost")
	}
	if messages[2].ToolCallID != "call_abc" {
		t.Errorf("tool call id = %q", messages[2].ToolCallID)
	}
}

func TestPostgresLineage(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	root, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})
	v2, _ := store.WithMetadata(ctx, root, AgentUpdate{Name: Ptr("b")})
	v3, _ := store.WithMetadata(ctx, v2, AgentUpdate{Name: Ptr("c")})

	store.ClearCache()

	chain, err := store.GetLineage(ctx, v3)
	if err != nil {
		t.Fatalf("GetLineage failed: %v", err)
	}
	if len(chain) != 3 {
		t.Fatalf("lineage length = %d, want 3", len(chain))
	}
	if chain[0].ID != root.ID || chain[1].ID != v2.ID || chain[2].ID != v3.ID {
		t.Error("lineage must run root-first")
	}
}

func TestPostgresDeleteAndGC(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	keep, _ := store.CreateAgent(ctx, "keep", "keep prompt", "m", ModelConfig{})
	doomed, _ := store.CreateAgent(ctx, "doomed", "doomed prompt", "m", ModelConfig{})
	child, _ := store.WithMetadata(ctx, doomed, AgentUpdate{Name: Ptr("orphan")})

	if err := store.DeleteAgent(ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}
	if _, err := store.LoadAgent(ctx, doomed.ID); !errors.Is(err, ErrAgentNotFound) {
		t.Error("deleted agent still loadable")
	}

	orphan, err := store.LoadAgent(ctx, child.ID)
	if err != nil {
		t.Fatalf("LoadAgent(child) failed: %v", err)
	}
	if !orphan.IsRoot() {
		t.Error("orphaned child must become a root")
	}

	// Its lineage ends at the severed parent.
	chain, err := store.GetLineage(ctx, orphan)
	if err != nil {
		t.Fatalf("GetLineage(orphan) failed: %v", err)
	}
	if len(chain) != 1 || chain[0].ID != orphan.ID {
		t.Errorf("orphan lineage = %d agents, want just the orphan", len(chain))
	}

	// The orphan still pins the shared prompt and conversation, so GC
	// removes nothing yet.
	result, err := store.GC(ctx)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("GC removed %d assets while orphan pins them", result.Total())
	}

	if err := store.DeleteAgent(ctx, orphan.ID); err != nil {
		t.Fatalf("DeleteAgent(orphan) failed: %v", err)
	}
	result, err = store.GC(ctx)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if result.Conversations != 1 || result.TextAssets != 1 {
		t.Errorf("GC = %+v, want 1 conversation and 1 text asset", result)
	}

	if _, err := store.SystemPrompt(ctx, keep); err != nil {
		t.Errorf("survivor's prompt was collected: %v", err)
	}
}

func TestPostgresListAndFind(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	store.CreateAgent(ctx, "alpha", "p", "m", ModelConfig{})
	store.CreateAgent(ctx, "Alphabet", "p", "m", ModelConfig{})
	store.CreateAgent(ctx, "beta", "p", "m", ModelConfig{})

	filtered, err := store.ListAgents(ctx, ListOptions{Name: "alpha"})
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("ILIKE filter matched %d, want 2", len(filtered))
	}

	found, err := store.FindByName(ctx, "alpha")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("exact match found %d, want 1", len(found))
	}

	count, err := store.CountAgents(ctx, "")
	if err != nil {
		t.Fatalf("CountAgents failed: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
}

func TestPostgresSaveBundleIdempotent(t *testing.T) {
	store := newPostgresStore(t)
	ctx := context.Background()

	agent, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})

	// Re-saving the same graph is a no-op thanks to insert-or-ignore.
	if err := store.Save(ctx, agent); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	count, _ := store.CountAgents(ctx, "")
	if count != 1 {
		t.Errorf("agent count = %d, want 1", count)
	}
}
