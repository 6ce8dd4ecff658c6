package immagent

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates the identity for a new asset.
func NewID() uuid.UUID {
	return uuid.New()
}

// Now returns the creation timestamp for a new asset. Truncated to
// microseconds, the precision TIMESTAMPTZ stores, so a reloaded asset
// compares equal to the in-memory original.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// Asset is implemented by every immutable value in the persisted graph:
// text assets, messages, conversations, and agents. Once constructed an
// asset's fields never change; any modification produces a new asset with a
// new UUID.
type Asset interface {
	AssetID() uuid.UUID
	AssetCreatedAt() time.Time
}

// TextAsset is an immutable piece of free text referenced by UUID.
// System prompts are stored as text assets.
type TextAsset struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`
}

// NewTextAsset creates a text asset with a fresh ID and timestamp.
func NewTextAsset(content string) *TextAsset {
	return &TextAsset{
		ID:        NewID(),
		CreatedAt: Now(),
		Content:   content,
	}
}

// AssetID implements Asset.
func (t *TextAsset) AssetID() uuid.UUID { return t.ID }

// AssetCreatedAt implements Asset.
func (t *TextAsset) AssetCreatedAt() time.Time { return t.CreatedAt }

// Ptr returns a pointer to the given value.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the value pointed to by p, or the zero value if p is nil.
func Deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
