package immagent

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryBackend is an in-process Backend for tests and ephemeral use. It
// mirrors the persistent backend's semantics, including deep-copy on read so
// callers cannot mutate stored state.
type MemoryBackend struct {
	mu            sync.RWMutex
	texts         map[uuid.UUID]*TextAsset
	messages      map[uuid.UUID]*Message
	conversations map[uuid.UUID]*Conversation
	agents        map[uuid.UUID]*Agent
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		texts:         make(map[uuid.UUID]*TextAsset),
		messages:      make(map[uuid.UUID]*Message),
		conversations: make(map[uuid.UUID]*Conversation),
		agents:        make(map[uuid.UUID]*Agent),
	}
}

// InitSchema is a no-op for the in-memory backend.
func (b *MemoryBackend) InitSchema(ctx context.Context) error {
	return nil
}

func copyMessage(msg *Message) *Message {
	out := *msg
	if msg.ToolCalls != nil {
		out.ToolCalls = append([]ToolCall(nil), msg.ToolCalls...)
	}
	if msg.Content != nil {
		out.Content = Ptr(*msg.Content)
	}
	if msg.InputTokens != nil {
		out.InputTokens = Ptr(*msg.InputTokens)
	}
	if msg.OutputTokens != nil {
		out.OutputTokens = Ptr(*msg.OutputTokens)
	}
	return &out
}

func copyConversation(conv *Conversation) *Conversation {
	out := *conv
	out.MessageIDs = append([]uuid.UUID(nil), conv.MessageIDs...)
	return &out
}

func copyAgent(agent *Agent) *Agent {
	out := *agent
	if agent.ParentID != nil {
		out.ParentID = Ptr(*agent.ParentID)
	}
	if agent.Metadata != nil {
		metadata := make(map[string]any, len(agent.Metadata))
		for k, v := range agent.Metadata {
			metadata[k] = v
		}
		out.Metadata = metadata
	}
	return &out
}

// GetText retrieves a text asset by ID, or (nil, nil) if absent.
func (b *MemoryBackend) GetText(ctx context.Context, id uuid.UUID) (*TextAsset, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	text, ok := b.texts[id]
	if !ok {
		return nil, nil
	}
	out := *text
	return &out, nil
}

// GetMessage retrieves a message by ID, or (nil, nil) if absent.
func (b *MemoryBackend) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	msg, ok := b.messages[id]
	if !ok {
		return nil, nil
	}
	return copyMessage(msg), nil
}

// GetMessages returns the found subset of ids in input order.
func (b *MemoryBackend) GetMessages(ctx context.Context, ids []uuid.UUID) ([]*Message, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	messages := make([]*Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := b.messages[id]; ok {
			messages = append(messages, copyMessage(msg))
		}
	}
	return messages, nil
}

// GetConversation retrieves a conversation by ID, or (nil, nil) if absent.
func (b *MemoryBackend) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	conv, ok := b.conversations[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(conv), nil
}

// GetAgent retrieves an agent by ID, or (nil, nil) if absent.
func (b *MemoryBackend) GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	agent, ok := b.agents[id]
	if !ok {
		return nil, nil
	}
	return copyAgent(agent), nil
}

// GetAgents returns the found subset of ids in input order.
func (b *MemoryBackend) GetAgents(ctx context.Context, ids []uuid.UUID) ([]*Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	agents := make([]*Agent, 0, len(ids))
	for _, id := range ids {
		if agent, ok := b.agents[id]; ok {
			agents = append(agents, copyAgent(agent))
		}
	}
	return agents, nil
}

// SaveBundle stores every asset atomically under one lock. Existing IDs are
// left untouched, matching the persistent backend's insert-or-ignore.
func (b *MemoryBackend) SaveBundle(ctx context.Context, bundle *Bundle) error {
	if bundle == nil || bundle.Empty() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, text := range bundle.Texts {
		if _, ok := b.texts[text.ID]; !ok {
			stored := *text
			b.texts[text.ID] = &stored
		}
	}
	for _, msg := range bundle.Messages {
		if _, ok := b.messages[msg.ID]; !ok {
			b.messages[msg.ID] = copyMessage(msg)
		}
	}
	for _, conv := range bundle.Conversations {
		if _, ok := b.conversations[conv.ID]; !ok {
			b.conversations[conv.ID] = copyConversation(conv)
		}
	}
	for _, agent := range bundle.Agents {
		if _, ok := b.agents[agent.ID]; !ok {
			b.agents[agent.ID] = copyAgent(agent)
		}
	}
	return nil
}

// DeleteAgent removes one agent version, resetting its children to roots.
func (b *MemoryBackend) DeleteAgent(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.agents[id]; !ok {
		return nil, notFound("agent", id)
	}

	var children []uuid.UUID
	for _, agent := range b.agents {
		if agent.ParentID != nil && *agent.ParentID == id {
			agent.ParentID = nil
			children = append(children, agent.ID)
		}
	}
	delete(b.agents, id)
	return children, nil
}

// GC removes unreachable assets with the same single-pass semantics as the
// persistent backend.
func (b *MemoryBackend) GC(ctx context.Context) (GCResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result GCResult

	liveConversations := make(map[uuid.UUID]bool, len(b.agents))
	livePrompts := make(map[uuid.UUID]bool, len(b.agents))
	for _, agent := range b.agents {
		liveConversations[agent.ConversationID] = true
		livePrompts[agent.SystemPromptID] = true
	}

	liveMessages := make(map[uuid.UUID]bool)
	for id := range liveConversations {
		if conv, ok := b.conversations[id]; ok {
			for _, msgID := range conv.MessageIDs {
				liveMessages[msgID] = true
			}
		}
	}

	for id := range b.messages {
		if !liveMessages[id] {
			delete(b.messages, id)
			result.Messages++
		}
	}
	for id := range b.conversations {
		if !liveConversations[id] {
			delete(b.conversations, id)
			result.Conversations++
		}
	}
	for id := range b.texts {
		if !livePrompts[id] {
			delete(b.texts, id)
			result.TextAssets++
		}
	}
	return result, nil
}

// Lineage walks parent pointers iteratively and returns the chain
// root-first.
func (b *MemoryBackend) Lineage(ctx context.Context, id uuid.UUID) ([]*Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var chain []*Agent
	current := id
	for {
		agent, ok := b.agents[current]
		if !ok {
			return nil, notFound("agent", current)
		}
		chain = append(chain, copyAgent(agent))
		if agent.ParentID == nil {
			break
		}
		current = *agent.ParentID
	}

	// Reverse to root-first.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

func (b *MemoryBackend) matching(name string) []*Agent {
	agents := make([]*Agent, 0, len(b.agents))
	needle := strings.ToLower(name)
	for _, agent := range b.agents {
		if name != "" && !strings.Contains(strings.ToLower(agent.Name), needle) {
			continue
		}
		agents = append(agents, agent)
	}
	return agents
}

// ListAgents returns agents newest first, optionally filtered by a
// case-insensitive name substring.
func (b *MemoryBackend) ListAgents(ctx context.Context, opts ListOptions) ([]*Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	agents := b.matching(opts.Name)
	sort.Slice(agents, func(i, j int) bool {
		if !agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].CreatedAt.After(agents[j].CreatedAt)
		}
		return agents[i].ID.String() > agents[j].ID.String()
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if opts.Offset >= len(agents) {
		return nil, nil
	}
	agents = agents[opts.Offset:]
	if len(agents) > limit {
		agents = agents[:limit]
	}

	out := make([]*Agent, len(agents))
	for i, agent := range agents {
		out[i] = copyAgent(agent)
	}
	return out, nil
}

// CountAgents counts agents matching the ListAgents name filter.
func (b *MemoryBackend) CountAgents(ctx context.Context, name string) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.matching(name))), nil
}

// FindByName returns agents whose name matches exactly, newest first.
func (b *MemoryBackend) FindByName(ctx context.Context, name string) ([]*Agent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var agents []*Agent
	for _, agent := range b.agents {
		if agent.Name == name {
			agents = append(agents, copyAgent(agent))
		}
	}
	sort.Slice(agents, func(i, j int) bool {
		if !agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].CreatedAt.After(agents[j].CreatedAt)
		}
		return agents[i].ID.String() > agents[j].ID.String()
	})
	return agents, nil
}

// Close is a no-op for the in-memory backend.
func (b *MemoryBackend) Close() {}
