package storage

import (
	"errors"

	"github.com/mimi-ai/mimi/pkg/types"
)

var (
	// ErrNotFound indicates that the requested memory or entity was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch indicates a vector whose length differs from the
	// dimension already stored for this deployment.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Candidate is one vector-search hit: a memory together with its raw
// similarity score. The hybrid search engine layers boosts on top.
type Candidate struct {
	Memory types.Memory

	// Similarity is cosine similarity normalized to [0,1], higher is better.
	Similarity float64
}

// VectorSearchOptions bounds and filters a vector search.
type VectorSearchOptions struct {
	// Limit is the maximum number of candidates to return (default 10, max 500).
	// Callers performing reranking over-fetch by passing a multiple of their
	// final result limit.
	Limit int

	// Filter restricts results to memories whose metadata contains every
	// listed key with exactly the listed value. Nil or empty means no filter.
	Filter map[string]string
}

// Normalize applies defaults and caps to the options.
func (o *VectorSearchOptions) Normalize() {
	if o.Limit < 1 {
		o.Limit = 10
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
}
