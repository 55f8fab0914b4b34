package llm

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoEmbedder indicates no configured provider offers embeddings.
	ErrNoEmbedder = errors.New("no embedding-capable provider configured")

	// ErrNoGenerator indicates no configured provider offers text generation.
	ErrNoGenerator = errors.New("no generation-capable provider configured")
)

// ProviderSpec describes one configured provider in configuration order.
// Kind selects the client implementation; Name is the user-facing handle
// referenced by pipeline steps and the embedder selection rule.
type ProviderSpec struct {
	Name              string        // configuration name, e.g. "local", "openai"
	Kind              string        // ollama, openai, anthropic, local
	APIKey            string        // hosted providers only
	Model             string        // completion model override
	EmbeddingModel    string        // embedding model override (openai)
	BaseURL           string        // endpoint override
	Dimension         int           // local embedder vector size
	Timeout           time.Duration // per-call timeout
	RequestsPerSecond float64       // provider rate limit, 0 = unlimited
}

// NewProvider builds the client(s) for one provider spec.
// Unknown kinds are a configuration error and fail construction.
func NewProvider(spec ProviderSpec) (Provider, error) {
	guard := GuardConfig{RequestsPerSecond: spec.RequestsPerSecond}

	switch spec.Kind {
	case "ollama", "":
		client := NewOllamaClient(OllamaConfig{
			BaseURL: spec.BaseURL,
			Model:   spec.Model,
			Timeout: spec.Timeout,
			Guard:   guard,
		})
		return Provider{Name: spec.Name, Generator: client, Embedder: client}, nil

	case "openai":
		client := NewOpenAIClient(OpenAIConfig{
			APIKey:         spec.APIKey,
			Model:          spec.Model,
			EmbeddingModel: spec.EmbeddingModel,
			BaseURL:        spec.BaseURL,
			Timeout:        spec.Timeout,
			Guard:          guard,
		})
		return Provider{Name: spec.Name, Generator: client, Embedder: client}, nil

	case "anthropic":
		client := NewAnthropicClient(AnthropicConfig{
			APIKey:  spec.APIKey,
			Model:   spec.Model,
			BaseURL: spec.BaseURL,
			Timeout: spec.Timeout,
			Guard:   guard,
		})
		return Provider{Name: spec.Name, Generator: client}, nil

	case "local":
		return Provider{Name: spec.Name, Embedder: NewLocalEmbedder(spec.Dimension)}, nil

	default:
		return Provider{}, fmt.Errorf("unsupported provider kind: %q", spec.Kind)
	}
}

// NewProviders builds every configured provider, preserving configuration
// order. Order matters: it drives embedder and generator selection.
func NewProviders(specs []ProviderSpec) ([]Provider, error) {
	providers := make([]Provider, 0, len(specs))
	for _, spec := range specs {
		p, err := NewProvider(spec)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", spec.Name, err)
		}
		providers = append(providers, p)
	}
	return providers, nil
}

// SelectEmbedder picks the one embedder used for every vector produced by a
// deployment. A provider named "local" wins when present (dimension
// stability across runs); otherwise the first embedding-capable provider in
// configuration order is used.
func SelectEmbedder(providers []Provider) (Provider, error) {
	for _, p := range providers {
		if p.Name == "local" && p.CanEmbed() {
			return p, nil
		}
	}
	for _, p := range providers {
		if p.CanEmbed() {
			return p, nil
		}
	}
	return Provider{}, ErrNoEmbedder
}

// SelectGenerator picks a generation provider, preferring one whose name
// differs from excludeName (so an embedding-dedicated provider is not also
// asked to generate text) and falling back to the excluded provider when it
// is the only generation-capable one.
func SelectGenerator(providers []Provider, excludeName string) (Provider, error) {
	for _, p := range providers {
		if p.Name != excludeName && p.CanGenerate() {
			return p, nil
		}
	}
	for _, p := range providers {
		if p.CanGenerate() {
			return p, nil
		}
	}
	return Provider{}, ErrNoGenerator
}

// FindProvider returns the provider with the given configuration name.
func FindProvider(providers []Provider, name string) (Provider, bool) {
	for _, p := range providers {
		if p.Name == name {
			return p, true
		}
	}
	return Provider{}, false
}
