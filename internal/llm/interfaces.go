// Package llm provides the generation and embedding capability clients the
// pipeline consumes: Ollama, OpenAI, and Anthropic adapters plus a
// deterministic local embedder. Every network call is wrapped with circuit
// breaker protection and per-provider rate limiting, and entity-extraction
// responses are parsed with a tolerant JSON-array extractor.
package llm

import (
	"context"
	"errors"
)

// ErrProvider wraps any transport, auth, or quota failure from a generation
// or embedding call. Callers decide whether it is fatal (raw-memory
// embedding) or isolated (extraction and derivation steps).
var ErrProvider = errors.New("provider call failed")

// TextGenerator is the interface for LLM text completion.
// All pipeline prompts use single-string completion style (not chat).
type TextGenerator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}

// EmbeddingGenerator is the interface for generating vector embeddings.
// Implementations must return the same dimension for every input.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// Provider bundles the capabilities one configured provider offers. Either
// field may be nil: Anthropic has no embedding endpoint, the local provider
// has no generator.
type Provider struct {
	// Name is the configuration name of the provider ("local", "openai", ...).
	Name string

	// Generator is the text-completion capability, nil if unsupported.
	Generator TextGenerator

	// Embedder is the embedding capability, nil if unsupported.
	Embedder EmbeddingGenerator
}

// CanGenerate reports whether the provider offers text completion.
func (p Provider) CanGenerate() bool { return p.Generator != nil }

// CanEmbed reports whether the provider offers embeddings.
func (p Provider) CanEmbed() bool { return p.Embedder != nil }
