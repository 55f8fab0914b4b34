// Package search implements the hybrid search engine: vector similarity
// through the storage gateway, recomputed into a composite relevance score
// that blends base similarity with an entity-graph adjacency boost.
package search

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/mimi-ai/mimi/internal/llm"
	"github.com/mimi-ai/mimi/internal/storage"
	"github.com/mimi-ai/mimi/pkg/types"
)

// DefaultBoost is the entity-focus score increment applied when none is
// configured. It should exceed the typical similarity gap between neighboring
// results so a matched-entity memory outranks an unmatched one of comparable
// base similarity, without overtaking dramatically better matches.
const DefaultBoost = 0.15

// Options tunes the search engine. The zero value gets defaults.
type Options struct {
	// Boost is the additive score increment for memories linked to the
	// resolved focus entity. Nil means DefaultBoost; an explicit zero
	// disables boosting; negative values are clamped to zero.
	Boost *float64

	// OverFetch is the candidate multiplier applied to the result limit
	// before reranking (default 4, minimum fetch 20).
	OverFetch int
}

// Engine answers search queries. It must be constructed with the same
// embedder the pipeline used to produce stored vectors; that consistency is
// a deployment invariant this component cannot verify beyond dimension
// matching, which the gateway performs.
type Engine struct {
	gateway   storage.Gateway
	embedder  llm.Provider
	boost     float64
	overFetch int
}

// Query describes one search invocation.
type Query struct {
	// Phrase is the text to match semantically. Required.
	Phrase string

	// EntityFocus optionally names an entity; memories linked to it receive
	// the boost. An unresolvable focus degrades to an unboosted search.
	EntityFocus string

	// Filters restricts results to memories whose metadata contains every
	// listed key/value pair (logical AND).
	Filters map[string]string

	// Limit is the maximum number of results (default 10).
	Limit int
}

// New creates a search engine over the given gateway and shared embedder.
func New(gateway storage.Gateway, embedder llm.Provider, opts Options) (*Engine, error) {
	if gateway == nil {
		return nil, fmt.Errorf("search: storage gateway is required")
	}
	if !embedder.CanEmbed() {
		return nil, fmt.Errorf("search: provider %q cannot embed", embedder.Name)
	}
	boost := DefaultBoost
	if opts.Boost != nil {
		boost = *opts.Boost
		if boost < 0 {
			boost = 0
		}
	}
	if opts.OverFetch < 1 {
		opts.OverFetch = 4
	}
	return &Engine{
		gateway:   gateway,
		embedder:  embedder,
		boost:     boost,
		overFetch: opts.OverFetch,
	}, nil
}

// Search embeds the phrase, runs a filtered over-fetched vector search, and
// reranks candidates with the entity-focus boost. Results are ordered by
// final score descending, ties broken by creation time descending (most
// recent wins), truncated to the limit.
func (e *Engine) Search(ctx context.Context, q Query) ([]types.SearchResult, error) {
	if strings.TrimSpace(q.Phrase) == "" {
		return nil, fmt.Errorf("search: phrase is required")
	}
	if q.Limit < 1 {
		q.Limit = 10
	}

	vector, err := e.embedder.Embedder.Embed(ctx, q.Phrase)
	if err != nil {
		return nil, fmt.Errorf("search: embed phrase: %w", err)
	}

	// Over-fetch so boosting has candidates to reorder beyond the cut line.
	fetchLimit := q.Limit * e.overFetch
	if fetchLimit < 20 {
		fetchLimit = 20
	}

	candidates, err := e.gateway.VectorSearch(ctx, vector, storage.VectorSearchOptions{
		Limit:  fetchLimit,
		Filter: q.Filters,
	})
	if err != nil {
		return nil, fmt.Errorf("search: vector search: %w", err)
	}

	focusID := ""
	if q.EntityFocus != "" && e.boost > 0 {
		focusID = e.resolveFocus(ctx, q.EntityFocus)
	}

	results := make([]types.SearchResult, 0, len(candidates))
	for _, cand := range candidates {
		result := types.SearchResult{
			Memory:     cand.Memory,
			BaseScore:  cand.Similarity,
			FinalScore: cand.Similarity,
		}
		if focusID != "" && cand.Memory.HasEntity(focusID) {
			result.Boost = e.boost
			result.FinalScore = result.BaseScore + result.Boost
		}
		results = append(results, result)
	}

	slices.SortStableFunc(results, func(a, b types.SearchResult) int {
		if a.FinalScore != b.FinalScore {
			if a.FinalScore > b.FinalScore {
				return -1
			}
			return 1
		}
		// Tie-break: most recent memory wins.
		return b.Memory.CreatedAt.Compare(a.Memory.CreatedAt)
	})

	if len(results) > q.Limit {
		results = results[:q.Limit]
	}

	return results, nil
}

// resolveFocus maps an entity-focus string to an entity ID. Exact
// case-insensitive name matches win; otherwise the first fuzzy match
// (substring containment either direction) is used. The gateway returns
// matches newest-first, which implements the most-recent-wins tie-break.
// No match returns "" and the search proceeds unboosted.
func (e *Engine) resolveFocus(ctx context.Context, focus string) string {
	matches, err := e.gateway.FindEntities(ctx, focus)
	if err != nil {
		log.Printf("search: entity focus lookup %q failed: %v", focus, err)
		return ""
	}
	if len(matches) == 0 {
		return ""
	}

	want := types.NormalizeName(focus)
	for _, ent := range matches {
		if types.NormalizeName(ent.Name) == want {
			return ent.ID
		}
	}
	return matches[0].ID
}
