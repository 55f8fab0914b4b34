package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mimi-ai/mimi/internal/llm"
)

// Pipeline is the parsed YAML pipeline definition: an ordered provider list
// and an ordered derivation step list. Order is meaningful — it drives
// embedder/generator selection and the order of returned memories.
type Pipeline struct {
	Providers []ProviderEntry `yaml:"providers"`
	Steps     []Step          `yaml:"steps"`
}

// ProviderEntry is one provider in the YAML definition.
type ProviderEntry struct {
	Name              string  `yaml:"name"`
	Kind              string  `yaml:"kind"`
	Model             string  `yaml:"model,omitempty"`
	EmbeddingModel    string  `yaml:"embedding_model,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty"`
	APIKey            string  `yaml:"api_key,omitempty"`
	APIKeyEnv         string  `yaml:"api_key_env,omitempty"` // name of env var holding the key
	Dimension         int     `yaml:"dimension,omitempty"`   // local embedder only
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"`
}

// Step is one configured derivation step: a named (provider, prompt) pair.
// Steps run against the original input in configuration order.
type Step struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	Prompt   string `yaml:"prompt"`
}

// generationKinds lists provider kinds that support text completion.
var generationKinds = map[string]bool{
	"ollama":    true,
	"openai":    true,
	"anthropic": true,
	"":          true, // empty kind defaults to ollama
}

// embeddingKinds lists provider kinds that support embeddings.
var embeddingKinds = map[string]bool{
	"ollama": true,
	"openai": true,
	"local":  true,
	"":       true,
}

// LoadPipeline reads and validates the YAML pipeline definition at path.
func LoadPipeline(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read pipeline file %s: %w", path, err)
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse pipeline file %s: %w", path, err)
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("config: pipeline file %s: %w", path, err)
	}

	return &p, nil
}

// Validate checks the pipeline definition for the errors that must surface
// before any pipeline run starts: missing providers, duplicate names, steps
// referencing unknown or generation-incapable providers.
func (p *Pipeline) Validate() error {
	if len(p.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}

	providerKinds := make(map[string]string, len(p.Providers))
	for i, entry := range p.Providers {
		if entry.Name == "" {
			return fmt.Errorf("provider %d: name is required", i)
		}
		if _, dup := providerKinds[entry.Name]; dup {
			return fmt.Errorf("duplicate provider name %q", entry.Name)
		}
		if !generationKinds[entry.Kind] && !embeddingKinds[entry.Kind] {
			return fmt.Errorf("provider %q: unsupported kind %q", entry.Name, entry.Kind)
		}
		providerKinds[entry.Name] = entry.Kind
	}

	hasEmbedder := false
	for _, entry := range p.Providers {
		if embeddingKinds[entry.Kind] {
			hasEmbedder = true
			break
		}
	}
	if !hasEmbedder {
		return fmt.Errorf("no embedding-capable provider configured")
	}

	stepNames := make(map[string]bool, len(p.Steps))
	for i, step := range p.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i)
		}
		if stepNames[step.Name] {
			return fmt.Errorf("duplicate step name %q", step.Name)
		}
		stepNames[step.Name] = true

		if step.Prompt == "" {
			return fmt.Errorf("step %q: prompt is required", step.Name)
		}
		kind, ok := providerKinds[step.Provider]
		if !ok {
			return fmt.Errorf("step %q: unknown provider %q", step.Name, step.Provider)
		}
		if !generationKinds[kind] {
			return fmt.Errorf("step %q: provider %q (kind %s) cannot generate text", step.Name, step.Provider, kind)
		}
	}

	return nil
}

// ProviderSpecs converts the YAML provider entries into llm.ProviderSpec
// values, resolving API keys from the environment when api_key_env is set
// and applying the shared per-call timeout.
func (p *Pipeline) ProviderSpecs(stepTimeout time.Duration) []llm.ProviderSpec {
	specs := make([]llm.ProviderSpec, 0, len(p.Providers))
	for _, entry := range p.Providers {
		apiKey := entry.APIKey
		if apiKey == "" && entry.APIKeyEnv != "" {
			apiKey = os.Getenv(entry.APIKeyEnv)
		}
		specs = append(specs, llm.ProviderSpec{
			Name:              entry.Name,
			Kind:              entry.Kind,
			APIKey:            apiKey,
			Model:             entry.Model,
			EmbeddingModel:    entry.EmbeddingModel,
			BaseURL:           entry.BaseURL,
			Dimension:         entry.Dimension,
			Timeout:           stepTimeout,
			RequestsPerSecond: entry.RequestsPerSecond,
		})
	}
	return specs
}
