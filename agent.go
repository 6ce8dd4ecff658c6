package immagent

import (
	"time"

	"github.com/google/uuid"
)

// Agent is one immutable version of a conversational agent. Every state
// transition (a processed turn, a metadata change) creates a new Agent with
// a new UUID; ParentID links back to the previous version, forming the
// agent's lineage.
type Agent struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Name is a human-readable label. Not unique.
	Name string `json:"name"`

	// SystemPromptID references the TextAsset holding the system prompt.
	SystemPromptID uuid.UUID `json:"system_prompt_id"`

	// ParentID references the previous version; nil for roots.
	ParentID *uuid.UUID `json:"parent_id,omitempty"`

	// ConversationID references the Conversation snapshot.
	ConversationID uuid.UUID `json:"conversation_id"`

	// Model is an opaque provider-routing string,
	// e.g. "claude-3-5-haiku-20241022".
	Model string `json:"model"`

	// Metadata carries free-form key-value data attached by the caller.
	Metadata map[string]any `json:"metadata,omitempty"`

	// ModelConfig holds the sampling knobs applied on every turn.
	ModelConfig ModelConfig `json:"model_config"`
}

// AssetID implements Asset.
func (a *Agent) AssetID() uuid.UUID { return a.ID }

// AssetCreatedAt implements Asset.
func (a *Agent) AssetCreatedAt() time.Time { return a.CreatedAt }

// IsRoot reports whether this version has no parent.
func (a *Agent) IsRoot() bool {
	return a.ParentID == nil
}

// evolve creates the next version of the agent, pointing at a new
// conversation. The child links back to the receiver via ParentID.
func (a *Agent) evolve(conversation *Conversation) *Agent {
	parent := a.ID
	return &Agent{
		ID:             NewID(),
		CreatedAt:      Now(),
		Name:           a.Name,
		SystemPromptID: a.SystemPromptID,
		ParentID:       &parent,
		ConversationID: conversation.ID,
		Model:          a.Model,
		Metadata:       a.Metadata,
		ModelConfig:    a.ModelConfig,
	}
}

// AgentUpdate describes the fields WithMetadata may alter on the emitted
// child version. Nil fields are carried over unchanged.
type AgentUpdate struct {
	Name        *string
	Model       *string
	Metadata    map[string]any
	ModelConfig *ModelConfig
}
