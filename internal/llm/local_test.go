package llm

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, err := e.Embed(context.Background(), "Alice prefers tabs over spaces")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Alice prefers tabs over spaces")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must embed identically")
}

func TestLocalEmbedderDimension(t *testing.T) {
	e := NewLocalEmbedder(128)

	for _, text := range []string{"short", "a considerably longer piece of text with many more tokens", ""} {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		assert.Len(t, vec, 128)
	}

	assert.Equal(t, "local-hash-128", e.GetModel())
}

func TestLocalEmbedderDefaultsDimension(t *testing.T) {
	e := NewLocalEmbedder(0)
	vec, err := e.Embed(context.Background(), "anything")
	require.NoError(t, err)
	assert.Len(t, vec, DefaultLocalDimension)
}

func TestLocalEmbedderUnitNorm(t *testing.T) {
	e := NewLocalEmbedder(64)
	vec, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalEmbedderDistinguishesTexts(t *testing.T) {
	e := NewLocalEmbedder(64)

	a, err := e.Embed(context.Background(), "databases and indexing strategies")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "hiking in the alps last summer")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}
