package types

// SearchResult pairs a matched memory with its score decomposition. It is
// ephemeral query output, never persisted.
type SearchResult struct {
	Memory Memory `json:"memory"`

	// BaseScore is the raw vector-similarity score from the storage gateway,
	// monotonic with match quality (higher is better).
	BaseScore float64 `json:"base_score"`

	// Boost is the additive increment applied when the memory links to the
	// resolved focus entity; zero otherwise.
	Boost float64 `json:"boost"`

	// FinalScore is BaseScore + Boost and determines result order.
	FinalScore float64 `json:"final_score"`
}

// Boosted reports whether an entity-focus boost was applied to this result.
func (r *SearchResult) Boosted() bool {
	return r.Boost > 0
}
