package immagent

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func newTestStore(opts ...StoreOption) *Store {
	return NewMemoryStore(opts...)
}

func TestCreateAgent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	agent, err := store.CreateAgent(ctx, "assistant", "You are helpful.", "claude-3-5-haiku-20241022", ModelConfig{})
	if err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	if !agent.IsRoot() {
		t.Error("new agent should be a root")
	}

	prompt, err := store.SystemPrompt(ctx, agent)
	if err != nil {
		t.Fatalf("SystemPrompt failed: %v", err)
	}
	if prompt.Content != "You are helpful." {
		t.Errorf("prompt = %q", prompt.Content)
	}

	messages, err := store.GetMessages(ctx, agent)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("new agent has %d messages, want 0", len(messages))
	}
}

func TestCreateAgentValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	cases := []struct {
		name         string
		agentName    string
		systemPrompt string
		model        string
	}{
		{"blank name", "  ", "prompt", "model"},
		{"blank prompt", "a", "", "model"},
		{"blank model", "a", "prompt", "\t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.CreateAgent(ctx, tc.agentName, tc.systemPrompt, tc.model, ModelConfig{})
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestLoadAgentNotFound(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	_, err := store.LoadAgent(ctx, NewID())
	if !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("got %v, want ErrAgentNotFound", err)
	}
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("got %T, want *NotFoundError", err)
	}
}

func TestLoadAgentUsesIdentityCache(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	agent, err := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})
	if err != nil {
		t.Fatalf("CreateAgent failed: %v", err)
	}

	loaded, err := store.LoadAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("LoadAgent failed: %v", err)
	}
	if loaded != agent {
		t.Error("LoadAgent should return the cached instance")
	}

	store.ClearCache()
	reloaded, err := store.LoadAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("LoadAgent after ClearCache failed: %v", err)
	}
	if reloaded == agent {
		t.Error("after ClearCache a fresh instance is expected")
	}
	if reloaded.ID != agent.ID || reloaded.Name != agent.Name {
		t.Error("reloaded agent differs from original")
	}
}

func TestLoadAgents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	a, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})
	b, _ := store.CreateAgent(ctx, "b", "p", "m", ModelConfig{})

	agents, err := store.LoadAgents(ctx, []uuid.UUID{b.ID, a.ID})
	if err != nil {
		t.Fatalf("LoadAgents failed: %v", err)
	}
	if len(agents) != 2 || agents[0].ID != b.ID || agents[1].ID != a.ID {
		t.Error("LoadAgents must preserve input order")
	}

	if _, err := store.LoadAgents(ctx, []uuid.UUID{a.ID, NewID()}); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("got %v, want ErrAgentNotFound", err)
	}
}

func TestCloneIsSibling(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	root, _ := store.CreateAgent(ctx, "orig", "p", "m", ModelConfig{})

	clone, err := store.Clone(ctx, root, "copy")
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}

	if clone.ID == root.ID {
		t.Error("clone must have a new ID")
	}
	if clone.Name != "copy" {
		t.Errorf("clone name = %q", clone.Name)
	}
	if clone.ParentID != nil {
		t.Error("clone of a root must be a root, not a child")
	}
	if clone.ConversationID != root.ConversationID {
		t.Error("clone must share the conversation")
	}

	// Clone keeps the name when none is given.
	clone2, err := store.Clone(ctx, root, "")
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if clone2.Name != "orig" {
		t.Errorf("clone2 name = %q, want orig", clone2.Name)
	}

	// Clone carries metadata.
	tagged, _ := store.WithMetadata(ctx, root, AgentUpdate{Metadata: map[string]any{"env": "prod"}})
	clone3, err := store.Clone(ctx, tagged, "")
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if clone3.Metadata["env"] != "prod" {
		t.Errorf("clone3 metadata = %v", clone3.Metadata)
	}
}

func TestWithMetadataIsChild(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	root, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})

	child, err := store.WithMetadata(ctx, root, AgentUpdate{
		Name:     Ptr("renamed"),
		Model:    Ptr("m2"),
		Metadata: map[string]any{"team": "search", "tier": 2},
	})
	if err != nil {
		t.Fatalf("WithMetadata failed: %v", err)
	}

	if child.ParentID == nil || *child.ParentID != root.ID {
		t.Error("WithMetadata must produce a child of the input agent")
	}
	if child.Name != "renamed" || child.Model != "m2" {
		t.Errorf("child = %q/%q", child.Name, child.Model)
	}
	if child.Metadata["team"] != "search" {
		t.Errorf("child metadata = %v", child.Metadata)
	}
	if child.ConversationID != root.ConversationID {
		t.Error("metadata change must not touch the conversation")
	}

	// Metadata carries over to further versions unless replaced.
	grandchild, err := store.WithMetadata(ctx, child, AgentUpdate{Name: Ptr("again")})
	if err != nil {
		t.Fatalf("WithMetadata failed: %v", err)
	}
	if grandchild.Metadata["team"] != "search" {
		t.Errorf("grandchild metadata = %v, want carried over", grandchild.Metadata)
	}

	if _, err := store.WithMetadata(ctx, root, AgentUpdate{Name: Ptr("  ")}); err == nil {
		t.Error("blank name update must be rejected")
	}
}

func TestGetLineage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	root, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})
	v2, _ := store.WithMetadata(ctx, root, AgentUpdate{Name: Ptr("b")})
	v3, _ := store.WithMetadata(ctx, v2, AgentUpdate{Name: Ptr("c")})

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

func TestDeleteAgentResetsChildren(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	root, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})
	child, _ := store.WithMetadata(ctx, root, AgentUpdate{Name: Ptr("b")})

	if err := store.DeleteAgent(ctx, root.ID); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}

	if _, err := store.LoadAgent(ctx, root.ID); !errors.Is(err, ErrAgentNotFound) {
		t.Error("deleted agent still loadable")
	}

	reloaded, err := store.LoadAgent(ctx, child.ID)
	if err != nil {
		t.Fatalf("LoadAgent(child) failed: %v", err)
	}
	if !reloaded.IsRoot() {
		t.Error("orphaned child must become a root")
	}

	// The orphan's lineage terminates cleanly at the severed parent.
	chain, err := store.GetLineage(ctx, reloaded)
	if err != nil {
		t.Fatalf("GetLineage(orphan) failed: %v", err)
	}
	if len(chain) != 1 || chain[0].ID != child.ID {
		t.Errorf("orphan lineage = %d agents, want just the orphan", len(chain))
	}

	if err := store.DeleteAgent(ctx, root.ID); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("second delete: got %v, want ErrAgentNotFound", err)
	}
}

func TestGCRemovesUnreachable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	keep, _ := store.CreateAgent(ctx, "keep", "keep prompt", "m", ModelConfig{})
	doomed, _ := store.CreateAgent(ctx, "doomed", "doomed prompt", "m", ModelConfig{})

	if err := store.DeleteAgent(ctx, doomed.ID); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}

	result, err := store.GC(ctx)
	if err != nil {
		t.Fatalf("GC failed: %v", err)
	}
	if result.Conversations != 1 {
		t.Errorf("collected %d conversations, want 1", result.Conversations)
	}
	if result.TextAssets != 1 {
		t.Errorf("collected %d text assets, want 1", result.TextAssets)
	}

	// The surviving agent's graph is intact.
	if _, err := store.SystemPrompt(ctx, keep); err != nil {
		t.Errorf("survivor's prompt was collected: %v", err)
	}
	if _, err := store.GetMessages(ctx, keep); err != nil {
		t.Errorf("survivor's conversation was collected: %v", err)
	}

	// A second pass finds nothing.
	result, err = store.GC(ctx)
	if err != nil {
		t.Fatalf("second GC failed: %v", err)
	}
	if result.Total() != 0 {
		t.Errorf("second GC removed %d assets, want 0", result.Total())
	}
}

func TestListAgents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.CreateAgent(ctx, "alpha", "p", "m", ModelConfig{})
	store.CreateAgent(ctx, "beta", "p", "m", ModelConfig{})
	store.CreateAgent(ctx, "Alphabet", "p", "m", ModelConfig{})

	all, err := store.ListAgents(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("listed %d agents, want 3", len(all))
	}

	filtered, err := store.ListAgents(ctx, ListOptions{Name: "alpha"})
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Errorf("filter matched %d agents, want 2 (substring, case-insensitive)", len(filtered))
	}

	count, err := store.CountAgents(ctx, "alpha")
	if err != nil {
		t.Fatalf("CountAgents failed: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}

	limited, err := store.ListAgents(ctx, ListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit/offset returned %d agents, want 1", len(limited))
	}
}

func TestFindByName(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	store.CreateAgent(ctx, "exact", "p", "m", ModelConfig{})
	store.CreateAgent(ctx, "exact", "p", "m", ModelConfig{})
	store.CreateAgent(ctx, "Exact", "p", "m", ModelConfig{})

	found, err := store.FindByName(ctx, "exact")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("found %d agents, want 2 (exact match is case-sensitive)", len(found))
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore()

	agent, _ := store.CreateAgent(ctx, "a", "p", "m", ModelConfig{})

	if err := store.Save(ctx, agent); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(ctx, agent); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	count, _ := store.CountAgents(ctx, "")
	if count != 1 {
		t.Errorf("agent count = %d after re-save, want 1", count)
	}
}
