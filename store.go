package immagent

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/youssefsiam38/immagent/hooks"
	"github.com/youssefsiam38/immagent/llm"
	"github.com/youssefsiam38/immagent/tool"
)

// Store is the façade over one asset graph: typed loads through the identity
// cache, agent lifecycle operations, and the Advance turn loop.
//
// A Store is safe for concurrent use.
type Store struct {
	backend  Backend
	cache    Cache
	provider llm.Provider
	tools    tool.Provider
	hooks    *hooks.Registry
}

// New creates a Store over an existing backend.
func New(backend Backend, opts ...StoreOption) *Store {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	var cache Cache
	if _, ok := backend.(*MemoryBackend); ok {
		cache = NewStrongCache()
	} else {
		cache = NewLRUCache(o.cacheSize)
	}

	registry := o.hooks
	if registry == nil {
		registry = hooks.NewRegistry()
	}

	return &Store{
		backend:  backend,
		cache:    cache,
		provider: o.provider,
		tools:    o.toolProvider,
		hooks:    registry,
	}
}

// Connect opens a PostgreSQL-backed store.
func Connect(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if o.minConns > 0 {
		config.MinConns = o.minConns
	}
	if o.maxConns > 0 {
		config.MaxConns = o.maxConns
	}
	if o.maxConnIdleTime > 0 {
		config.MaxConnIdleTime = o.maxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(NewPostgresBackend(pool), opts...), nil
}

// NewMemoryStore creates a store with no persistence, for tests and
// ephemeral agents.
func NewMemoryStore(opts ...StoreOption) *Store {
	return New(NewMemoryBackend(), opts...)
}

// InitSchema creates the database schema. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	return s.backend.InitSchema(ctx)
}

// Backend exposes the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Hooks returns the store's hook registry.
func (s *Store) Hooks() *hooks.Registry {
	return s.hooks
}

// ClearCache drops every cached asset. Subsequent reads hit the backend.
func (s *Store) ClearCache() {
	s.cache.Clear()
}

// Close releases the backend's resources.
func (s *Store) Close() {
	s.backend.Close()
}

// canonicalAgent returns the cached instance for agent's ID if present,
// caching agent otherwise. Assets are immutable, so the cached instance is
// interchangeable and keeps identity stable across loads.
func (s *Store) canonicalAgent(agent *Agent) *Agent {
	if cached, ok := s.cache.Get(agent.ID); ok {
		if a, ok := cached.(*Agent); ok {
			return a
		}
	}
	s.cache.Put(agent)
	return agent
}

func (s *Store) getText(ctx context.Context, id uuid.UUID) (*TextAsset, error) {
	if cached, ok := s.cache.Get(id); ok {
		if text, ok := cached.(*TextAsset); ok {
			return text, nil
		}
	}
	text, err := s.backend.GetText(ctx, id)
	if err != nil {
		return nil, err
	}
	if text == nil {
		return nil, notFound("system prompt", id)
	}
	s.cache.Put(text)
	return text, nil
}

func (s *Store) getMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	if cached, ok := s.cache.Get(id); ok {
		if msg, ok := cached.(*Message); ok {
			return msg, nil
		}
	}
	msg, err := s.backend.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, notFound("message", id)
	}
	s.cache.Put(msg)
	return msg, nil
}

// getMessages loads messages in order, serving cached entries and batching
// the rest into one backend call.
func (s *Store) getMessages(ctx context.Context, ids []uuid.UUID) ([]*Message, error) {
	messages := make([]*Message, len(ids))
	var missing []uuid.UUID
	for i, id := range ids {
		if cached, ok := s.cache.Get(id); ok {
			if msg, ok := cached.(*Message); ok {
				messages[i] = msg
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		loaded, err := s.backend.GetMessages(ctx, missing)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]*Message, len(loaded))
		for _, msg := range loaded {
			s.cache.Put(msg)
			byID[msg.ID] = msg
		}
		for i, id := range ids {
			if messages[i] != nil {
				continue
			}
			msg, ok := byID[id]
			if !ok {
				return nil, notFound("message", id)
			}
			messages[i] = msg
		}
	}

	return messages, nil
}

func (s *Store) getConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	if cached, ok := s.cache.Get(id); ok {
		if conv, ok := cached.(*Conversation); ok {
			return conv, nil
		}
	}
	conv, err := s.backend.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, notFound("conversation", id)
	}
	s.cache.Put(conv)
	return conv, nil
}

func (s *Store) getAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	if cached, ok := s.cache.Get(id); ok {
		if agent, ok := cached.(*Agent); ok {
			return agent, nil
		}
	}
	agent, err := s.backend.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, notFound("agent", id)
	}
	s.cache.Put(agent)
	return agent, nil
}

// CreateAgent creates and persists a root agent with a fresh system prompt
// and an empty conversation.
func (s *Store) CreateAgent(ctx context.Context, name, systemPrompt, model string, config ModelConfig) (*Agent, error) {
	if strings.TrimSpace(name) == "" {
		return nil, invalid("name", "must not be blank")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, invalid("system prompt", "must not be blank")
	}
	if strings.TrimSpace(model) == "" {
		return nil, invalid("model", "must not be blank")
	}

	prompt := NewTextAsset(systemPrompt)
	conversation := NewConversation()
	agent := &Agent{
		ID:             NewID(),
		CreatedAt:      Now(),
		Name:           name,
		SystemPromptID: prompt.ID,
		ConversationID: conversation.ID,
		Model:          model,
		ModelConfig:    config,
	}

	bundle := &Bundle{
		Texts:         []*TextAsset{prompt},
		Conversations: []*Conversation{conversation},
		Agents:        []*Agent{agent},
	}
	if err := s.saveBundle(ctx, bundle); err != nil {
		return nil, err
	}
	return agent, nil
}

// saveBundle fires the before-save hook, persists the bundle, and caches
// every asset.
func (s *Store) saveBundle(ctx context.Context, bundle *Bundle) error {
	if err := s.hooks.TriggerBeforeSave(ctx, bundle.Size()); err != nil {
		return fmt.Errorf("before-save hook failed: %w", err)
	}
	if err := s.backend.SaveBundle(ctx, bundle); err != nil {
		return err
	}
	for _, text := range bundle.Texts {
		s.cache.Put(text)
	}
	for _, msg := range bundle.Messages {
		s.cache.Put(msg)
	}
	for _, conv := range bundle.Conversations {
		s.cache.Put(conv)
	}
	for _, agent := range bundle.Agents {
		s.cache.Put(agent)
	}
	return nil
}

// Save persists an agent together with everything it references: its system
// prompt, conversation, and messages. Assets already stored are untouched,
// so re-saving is a cheap no-op.
func (s *Store) Save(ctx context.Context, agent *Agent) error {
	if agent == nil {
		return invalid("agent", "must not be nil")
	}

	prompt, err := s.getText(ctx, agent.SystemPromptID)
	if err != nil {
		return err
	}
	conversation, err := s.getConversation(ctx, agent.ConversationID)
	if err != nil {
		return err
	}
	messages, err := s.getMessages(ctx, conversation.MessageIDs)
	if err != nil {
		return err
	}

	bundle := &Bundle{
		Texts:         []*TextAsset{prompt},
		Messages:      messages,
		Conversations: []*Conversation{conversation},
		Agents:        []*Agent{agent},
	}
	return s.saveBundle(ctx, bundle)
}

// LoadAgent retrieves an agent version by ID.
func (s *Store) LoadAgent(ctx context.Context, id uuid.UUID) (*Agent, error) {
	return s.getAgent(ctx, id)
}

// LoadAgents retrieves several agent versions in one backend round trip,
// returned in input order. Fails if any ID is missing.
func (s *Store) LoadAgents(ctx context.Context, ids []uuid.UUID) ([]*Agent, error) {
	agents := make([]*Agent, len(ids))
	var missing []uuid.UUID
	for i, id := range ids {
		if cached, ok := s.cache.Get(id); ok {
			if agent, ok := cached.(*Agent); ok {
				agents[i] = agent
				continue
			}
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		loaded, err := s.backend.GetAgents(ctx, missing)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]*Agent, len(loaded))
		for _, agent := range loaded {
			s.cache.Put(agent)
			byID[agent.ID] = agent
		}
		for i, id := range ids {
			if agents[i] != nil {
				continue
			}
			agent, ok := byID[id]
			if !ok {
				return nil, notFound("agent", id)
			}
			agents[i] = agent
		}
	}

	return agents, nil
}

// SystemPrompt retrieves the agent's system prompt text.
func (s *Store) SystemPrompt(ctx context.Context, agent *Agent) (*TextAsset, error) {
	return s.getText(ctx, agent.SystemPromptID)
}

// GetMessages retrieves the agent's full message history in conversation
// order.
func (s *Store) GetMessages(ctx context.Context, agent *Agent) ([]*Message, error) {
	conversation, err := s.getConversation(ctx, agent.ConversationID)
	if err != nil {
		return nil, err
	}
	return s.getMessages(ctx, conversation.MessageIDs)
}

// GetLineage returns the agent's version chain from the root to the agent
// itself.
func (s *Store) GetLineage(ctx context.Context, agent *Agent) ([]*Agent, error) {
	chain, err := s.backend.Lineage(ctx, agent.ID)
	if err != nil {
		return nil, err
	}
	for i, a := range chain {
		chain[i] = s.canonicalAgent(a)
	}
	return chain, nil
}

// Clone creates a sibling of agent: a new version sharing agent's parent,
// conversation, prompt, model, and config. An empty newName keeps the name.
func (s *Store) Clone(ctx context.Context, agent *Agent, newName string) (*Agent, error) {
	name := agent.Name
	if newName != "" {
		if strings.TrimSpace(newName) == "" {
			return nil, invalid("name", "must not be blank")
		}
		name = newName
	}

	clone := &Agent{
		ID:             NewID(),
		CreatedAt:      Now(),
		Name:           name,
		SystemPromptID: agent.SystemPromptID,
		ParentID:       agent.ParentID,
		ConversationID: agent.ConversationID,
		Model:          agent.Model,
		Metadata:       agent.Metadata,
		ModelConfig:    agent.ModelConfig,
	}
	if err := s.saveBundle(ctx, &Bundle{Agents: []*Agent{clone}}); err != nil {
		return nil, err
	}
	return clone, nil
}

// WithMetadata creates a child of agent with the given fields changed. The
// child shares agent's conversation; only metadata differs.
func (s *Store) WithMetadata(ctx context.Context, agent *Agent, update AgentUpdate) (*Agent, error) {
	name := agent.Name
	if update.Name != nil {
		if strings.TrimSpace(*update.Name) == "" {
			return nil, invalid("name", "must not be blank")
		}
		name = *update.Name
	}
	model := agent.Model
	if update.Model != nil {
		if strings.TrimSpace(*update.Model) == "" {
			return nil, invalid("model", "must not be blank")
		}
		model = *update.Model
	}
	config := agent.ModelConfig
	if update.ModelConfig != nil {
		config = *update.ModelConfig
	}
	metadata := agent.Metadata
	if update.Metadata != nil {
		metadata = update.Metadata
	}

	parent := agent.ID
	child := &Agent{
		ID:             NewID(),
		CreatedAt:      Now(),
		Name:           name,
		SystemPromptID: agent.SystemPromptID,
		ParentID:       &parent,
		ConversationID: agent.ConversationID,
		Model:          model,
		Metadata:       metadata,
		ModelConfig:    config,
	}
	if err := s.saveBundle(ctx, &Bundle{Agents: []*Agent{child}}); err != nil {
		return nil, err
	}
	return child, nil
}

// DeleteAgent removes one agent version. Its children become roots; their
// other assets stay until GC.
func (s *Store) DeleteAgent(ctx context.Context, id uuid.UUID) error {
	children, err := s.backend.DeleteAgent(ctx, id)
	if err != nil {
		return err
	}
	s.cache.Forget(id)
	// Cached children still carry the old parent pointer.
	for _, childID := range children {
		s.cache.Forget(childID)
	}
	return nil
}

// GC removes every asset no longer reachable from an agent and reports what
// was removed. The cache is cleared so stale copies of collected assets
// cannot be served.
func (s *Store) GC(ctx context.Context) (GCResult, error) {
	result, err := s.backend.GC(ctx)
	if err != nil {
		return result, err
	}
	s.cache.Clear()
	return result, nil
}

// ListAgents returns agent versions newest first.
func (s *Store) ListAgents(ctx context.Context, opts ListOptions) ([]*Agent, error) {
	agents, err := s.backend.ListAgents(ctx, opts)
	if err != nil {
		return nil, err
	}
	for i, agent := range agents {
		agents[i] = s.canonicalAgent(agent)
	}
	return agents, nil
}

// CountAgents counts agent versions matching the ListAgents name filter.
func (s *Store) CountAgents(ctx context.Context, name string) (int64, error) {
	return s.backend.CountAgents(ctx, name)
}

// FindByName returns agent versions whose name matches exactly, newest
// first.
func (s *Store) FindByName(ctx context.Context, name string) ([]*Agent, error) {
	agents, err := s.backend.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	for i, agent := range agents {
		agents[i] = s.canonicalAgent(agent)
	}
	return agents, nil
}
