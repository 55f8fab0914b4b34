package types

import (
	"strings"
	"time"
)

// Entity is a named concept, person, place, or organization extracted from
// memory content. Entities share one embedding space with memories: their
// vector is the embedding of CanonicalText, produced by the same embedder.
//
// Entities are linked to memories many-to-many via Memory.EntityIDs. They are
// deduplicated only within a single extraction batch; cross-run merging is
// deliberately not performed.
type Entity struct {
	ID          string    `json:"id"`                    // Opaque identifier, assigned at first observation in a batch
	Name        string    `json:"name"`                  // Display name
	Type        string    `json:"type"`                  // Free-form category (person, organization, tool, ...)
	Description string    `json:"description,omitempty"` // Optional human-readable description
	CreatedAt   time.Time `json:"created_at"`            // Creation timestamp (shared with the batch)
	Vector      []float32 `json:"vector,omitempty"`      // Embedding of CanonicalText
}

// CanonicalText returns the string whose embedding represents this entity.
// Name and type always contribute; the description is appended when present
// so richer entities occupy more specific positions in the embedding space.
func (e *Entity) CanonicalText() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteString(" (")
	b.WriteString(e.Type)
	b.WriteString(")")
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	}
	return b.String()
}

// NormalizeName returns the batch-dedup key for an entity name:
// whitespace-trimmed and lowercased.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
