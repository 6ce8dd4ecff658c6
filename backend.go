package immagent

import (
	"context"

	"github.com/google/uuid"
)

// Bundle is the set of new assets emitted by one turn (or by CreateAgent),
// saved atomically. Slices are ordered so that dependencies precede their
// referents: texts, then messages, then conversations, then agents.
type Bundle struct {
	Texts         []*TextAsset
	Messages      []*Message
	Conversations []*Conversation
	Agents        []*Agent
}

// Empty reports whether the bundle contains no assets.
func (b *Bundle) Empty() bool {
	return len(b.Texts) == 0 && len(b.Messages) == 0 &&
		len(b.Conversations) == 0 && len(b.Agents) == 0
}

// Size returns the total number of assets in the bundle.
func (b *Bundle) Size() int {
	return len(b.Texts) + len(b.Messages) + len(b.Conversations) + len(b.Agents)
}

// GCResult counts the assets removed by one GC pass.
type GCResult struct {
	Messages      int64 `json:"messages"`
	Conversations int64 `json:"conversations"`
	TextAssets    int64 `json:"text_assets"`
}

// Total returns the total number of removed assets.
func (r GCResult) Total() int64 {
	return r.Messages + r.Conversations + r.TextAssets
}

// ListOptions controls ListAgents pagination and filtering.
type ListOptions struct {
	// Limit caps the number of returned agents. Defaults to 100.
	Limit int

	// Offset skips that many agents.
	Offset int

	// Name, if non-empty, filters by case-insensitive substring match.
	// The value is used as an ILIKE pattern fragment, so % and _ act as
	// wildcards.
	Name string
}

// Backend is the authoritative storage behind a Store. Implementations are
// safe for concurrent use. Lookups return (nil, nil) for missing rows; only
// driver failures produce errors.
type Backend interface {
	// InitSchema creates tables and indices. Idempotent.
	InitSchema(ctx context.Context) error

	GetText(ctx context.Context, id uuid.UUID) (*TextAsset, error)
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	// GetMessages returns the found subset of ids, in input order.
	GetMessages(ctx context.Context, ids []uuid.UUID) ([]*Message, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	GetAgent(ctx context.Context, id uuid.UUID) (*Agent, error)
	// GetAgents returns the found subset of ids, in input order.
	GetAgents(ctx context.Context, ids []uuid.UUID) ([]*Agent, error)

	// SaveBundle inserts every asset in one transaction with
	// ON CONFLICT (id) DO NOTHING semantics.
	SaveBundle(ctx context.Context, bundle *Bundle) error

	// DeleteAgent removes one agent row and returns the IDs of children
	// whose parent pointer was reset to null.
	DeleteAgent(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)

	// GC removes, in one transaction: messages not referenced by any
	// conversation still referenced by an agent; conversations not
	// referenced by any agent; text assets not referenced as any agent's
	// system prompt.
	GC(ctx context.Context) (GCResult, error)

	// Lineage returns the chain from root to id. Fails with a
	// NotFoundError when id is absent or an intermediate parent pointer
	// dangles.
	Lineage(ctx context.Context, id uuid.UUID) ([]*Agent, error)

	// ListAgents returns agents ordered by created_at descending.
	ListAgents(ctx context.Context, opts ListOptions) ([]*Agent, error)

	// CountAgents counts agents matching the same filter as ListAgents.
	CountAgents(ctx context.Context, name string) (int64, error)

	// FindByName returns agents whose name matches exactly
	// (case-sensitive), newest first.
	FindByName(ctx context.Context, name string) ([]*Agent, error)

	// Close releases backend resources.
	Close()
}
