package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopGenerator struct{}

func (nopGenerator) Complete(context.Context, string) (string, error) { return "", nil }
func (nopGenerator) GetModel() string                                 { return "nop" }

func TestNewProviderKinds(t *testing.T) {
	tests := []struct {
		kind        string
		canGenerate bool
		canEmbed    bool
	}{
		{"ollama", true, true},
		{"", true, true}, // empty kind defaults to ollama
		{"openai", true, true},
		{"anthropic", true, false},
		{"local", false, true},
	}

	for _, tt := range tests {
		p, err := NewProvider(ProviderSpec{Name: "p", Kind: tt.kind})
		require.NoError(t, err, "kind %q", tt.kind)
		assert.Equal(t, tt.canGenerate, p.CanGenerate(), "kind %q generate", tt.kind)
		assert.Equal(t, tt.canEmbed, p.CanEmbed(), "kind %q embed", tt.kind)
	}

	_, err := NewProvider(ProviderSpec{Name: "p", Kind: "bard"})
	assert.Error(t, err)
}

func TestSelectEmbedderPrefersLocal(t *testing.T) {
	providers := []Provider{
		{Name: "openai", Generator: nopGenerator{}, Embedder: NewLocalEmbedder(8)},
		{Name: "local", Embedder: NewLocalEmbedder(8)},
	}

	embedder, err := SelectEmbedder(providers)
	require.NoError(t, err)
	assert.Equal(t, "local", embedder.Name)
}

func TestSelectEmbedderFallsBackToFirstCapable(t *testing.T) {
	providers := []Provider{
		{Name: "claude", Generator: nopGenerator{}},
		{Name: "openai", Generator: nopGenerator{}, Embedder: NewLocalEmbedder(8)},
		{Name: "ollama", Generator: nopGenerator{}, Embedder: NewLocalEmbedder(8)},
	}

	embedder, err := SelectEmbedder(providers)
	require.NoError(t, err)
	assert.Equal(t, "openai", embedder.Name)

	_, err = SelectEmbedder([]Provider{{Name: "claude", Generator: nopGenerator{}}})
	assert.ErrorIs(t, err, ErrNoEmbedder)
}

func TestSelectGeneratorAvoidsEmbedderWhenPossible(t *testing.T) {
	providers := []Provider{
		{Name: "ollama", Generator: nopGenerator{}, Embedder: NewLocalEmbedder(8)},
		{Name: "claude", Generator: nopGenerator{}},
	}

	gen, err := SelectGenerator(providers, "ollama")
	require.NoError(t, err)
	assert.Equal(t, "claude", gen.Name)

	// The excluded provider is still better than nothing.
	gen, err = SelectGenerator(providers[:1], "ollama")
	require.NoError(t, err)
	assert.Equal(t, "ollama", gen.Name)

	_, err = SelectGenerator([]Provider{{Name: "local", Embedder: NewLocalEmbedder(8)}}, "")
	assert.ErrorIs(t, err, ErrNoGenerator)
}

func TestFindProvider(t *testing.T) {
	providers := []Provider{{Name: "a"}, {Name: "b"}}

	p, ok := FindProvider(providers, "b")
	assert.True(t, ok)
	assert.Equal(t, "b", p.Name)

	_, ok = FindProvider(providers, "c")
	assert.False(t, ok)
}
