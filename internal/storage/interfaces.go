// Package storage defines the gateway contract the pipeline and search
// engines depend on, plus the option and error types shared by its backends.
//
// The interfaces are intentionally small so backends can be implemented
// independently: a pgvector-backed store for deployments with PostgreSQL and
// an embedded CGO-free store for local use. Both rank by cosine similarity.
package storage

import (
	"context"

	"github.com/mimi-ai/mimi/pkg/types"
)

// Gateway is the storage collaborator for memories, entities, and their
// links. It must make concurrent access safe; callers tolerate slightly
// stale reads (a delete racing a search is acceptable).
type Gateway interface {
	// UpsertBatch persists all memories and entities produced by one pipeline
	// run as a single batch. Memory→entity links are taken from each memory's
	// EntityIDs. Re-applying the same batch is safe (upsert semantics).
	UpsertBatch(ctx context.Context, memories []types.Memory, entities []types.Entity) error

	// VectorSearch returns up to opts.Limit memories ranked by similarity to
	// the query vector, restricted to memories whose metadata matches every
	// key/value pair in opts.Filter (logical AND). Similarity is cosine,
	// normalized to [0,1], higher is better.
	VectorSearch(ctx context.Context, query []float32, opts VectorSearchOptions) ([]Candidate, error)

	// GetMemory retrieves a memory by ID. Returns ErrNotFound if absent.
	GetMemory(ctx context.Context, id string) (*types.Memory, error)

	// GetEntity retrieves an entity by ID. Returns ErrNotFound if absent.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// FindEntities returns entities whose name matches the query: exact
	// case-insensitive matches and substring containment in either direction.
	// Results are ordered by creation time descending so callers can apply
	// the most-recent-wins tie-break.
	FindEntities(ctx context.Context, name string) ([]types.Entity, error)

	// DeleteMemory removes a memory and its entity links by ID.
	// Returns ErrNotFound if the memory does not exist.
	DeleteMemory(ctx context.Context, id string) error

	// Close releases any resources held by the gateway.
	Close() error
}
