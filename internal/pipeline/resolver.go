package pipeline

import (
	"time"

	"github.com/mimi-ai/mimi/internal/llm"
	"github.com/mimi-ai/mimi/pkg/types"
)

// entityResolver deduplicates extraction candidates within one batch and
// assigns identity. Two candidates whose normalized names match (trimmed,
// case-insensitive) resolve to the same entity; their descriptions merge with
// the more complete one winning. No cross-run resolution is performed here.
type entityResolver struct {
	createdAt time.Time
	byName    map[string]int
	entities  []types.Entity
}

func newEntityResolver(createdAt time.Time) *entityResolver {
	return &entityResolver{
		createdAt: createdAt,
		byName:    make(map[string]int),
	}
}

// resolve returns the entity ID for a candidate, creating a new entity on
// first observation and merging into the existing one on a name match.
func (r *entityResolver) resolve(cand llm.EntityCandidate) string {
	key := types.NormalizeName(cand.Name)

	if idx, ok := r.byName[key]; ok {
		existing := &r.entities[idx]
		// Prefer the longer description; first-seen name casing and type win.
		if len(cand.Description) > len(existing.Description) {
			existing.Description = cand.Description
		}
		return existing.ID
	}

	entity := types.Entity{
		ID:          NewEntityID(),
		Name:        cand.Name,
		Type:        cand.Type,
		Description: cand.Description,
		CreatedAt:   r.createdAt,
	}
	r.byName[key] = len(r.entities)
	r.entities = append(r.entities, entity)
	return entity.ID
}

// resolved returns the deduplicated entities in first-observation order.
// The slice aliases the resolver's backing store; callers embed in place.
func (r *entityResolver) resolved() []types.Entity {
	return r.entities
}
