package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// LocalEmbedder is a deterministic, offline embedding generator. It hashes
// word-level tokens into a fixed number of buckets and L2-normalizes the
// result, so identical text always yields identical vectors and the
// dimension never changes across runs. Retrieval quality is far below a
// learned model; the point is a dependency-free provider with stable
// dimensions for local use and for tests.
type LocalEmbedder struct {
	dim int
}

// DefaultLocalDimension is the vector size used when none is configured.
const DefaultLocalDimension = 256

// NewLocalEmbedder creates a local embedder with the given dimension.
// Non-positive dimensions fall back to DefaultLocalDimension.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = DefaultLocalDimension
	}
	return &LocalEmbedder{dim: dim}
}

// Embed returns the hashed bag-of-words embedding of text.
// The error return exists only to satisfy EmbeddingGenerator; embedding
// never fails for non-empty input.
func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		// Low bits pick the bucket, the parity bit picks the sign. Signed
		// hashing keeps unrelated tokens from accumulating in one direction.
		bucket := int(sum % uint32(e.dim))
		if sum&0x80000000 != 0 {
			vec[bucket] -= 1
		} else {
			vec[bucket] += 1
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}

// GetModel returns a synthetic model identifier including the dimension.
func (e *LocalEmbedder) GetModel() string {
	return fmt.Sprintf("local-hash-%d", e.dim)
}

// Compile-time assertion.
var _ EmbeddingGenerator = (*LocalEmbedder)(nil)
