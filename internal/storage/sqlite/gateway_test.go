package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimi-ai/mimi/internal/storage"
	"github.com/mimi-ai/mimi/pkg/types"
)

func openTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func testMemory(id string, vector []float32) types.Memory {
	return types.Memory{
		ID:        id,
		Content:   "content of " + id,
		Kind:      types.KindRaw,
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Vector:    vector,
	}
}

func TestUpsertBatchAndGetMemory(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	entity := types.Entity{
		ID:        "ent:1",
		Name:      "Alice",
		Type:      "person",
		CreatedAt: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Vector:    []float32{1, 0, 0},
	}
	memory := testMemory("mem:1", []float32{0, 1, 0})
	memory.Metadata = map[string]string{"project": "demo"}
	memory.EntityIDs = []string{"ent:1"}

	require.NoError(t, g.UpsertBatch(ctx, []types.Memory{memory}, []types.Entity{entity}))

	got, err := g.GetMemory(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, memory.Content, got.Content)
	assert.Equal(t, types.KindRaw, got.Kind)
	assert.Equal(t, map[string]string{"project": "demo"}, got.Metadata)
	assert.Equal(t, []string{"ent:1"}, got.EntityIDs)
	assert.Equal(t, []float32{0, 1, 0}, got.Vector)
	assert.True(t, got.CreatedAt.Equal(memory.CreatedAt))

	gotEnt, err := g.GetEntity(ctx, "ent:1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", gotEnt.Name)
	assert.Equal(t, []float32{1, 0, 0}, gotEnt.Vector)
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	memory := testMemory("mem:1", []float32{0, 1, 0})
	require.NoError(t, g.UpsertBatch(ctx, []types.Memory{memory}, nil))

	memory.Content = "updated content"
	require.NoError(t, g.UpsertBatch(ctx, []types.Memory{memory}, nil))

	got, err := g.GetMemory(ctx, "mem:1")
	require.NoError(t, err)
	assert.Equal(t, "updated content", got.Content)
}

func TestUpsertBatchRejectsMissingVector(t *testing.T) {
	g := openTestGateway(t)

	err := g.UpsertBatch(context.Background(), []types.Memory{testMemory("mem:1", nil)}, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestDimensionEnforcedAcrossBatches(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	require.NoError(t, g.UpsertBatch(ctx, []types.Memory{testMemory("mem:1", []float32{1, 0, 0})}, nil))

	err := g.UpsertBatch(ctx, []types.Memory{testMemory("mem:2", []float32{1, 0, 0, 0})}, nil)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

	_, err = g.VectorSearch(ctx, []float32{1, 0}, storage.VectorSearchOptions{})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestDimensionMismatchWithinBatch(t *testing.T) {
	g := openTestGateway(t)

	err := g.UpsertBatch(context.Background(), []types.Memory{
		testMemory("mem:1", []float32{1, 0}),
		testMemory("mem:2", []float32{1, 0, 0}),
	}, nil)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestVectorSearchRanksBySimilarity(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	memories := []types.Memory{
		testMemory("mem:east", []float32{1, 0, 0}),
		testMemory("mem:north", []float32{0, 1, 0}),
		testMemory("mem:west", []float32{-1, 0, 0}),
	}
	require.NoError(t, g.UpsertBatch(ctx, memories, nil))

	candidates, err := g.VectorSearch(ctx, []float32{1, 0, 0}, storage.VectorSearchOptions{Limit: 3})
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, "mem:east", candidates[0].Memory.ID)
	assert.Equal(t, "mem:north", candidates[1].Memory.ID)
	assert.Equal(t, "mem:west", candidates[2].Memory.ID)

	// Cosine similarity normalized to [0,1]: identical 1, orthogonal 0.5,
	// opposite 0.
	assert.InDelta(t, 1.0, candidates[0].Similarity, 1e-9)
	assert.InDelta(t, 0.5, candidates[1].Similarity, 1e-9)
	assert.InDelta(t, 0.0, candidates[2].Similarity, 1e-9)
}

func TestVectorSearchMetadataFilter(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	a := testMemory("mem:a", []float32{1, 0, 0})
	a.Metadata = map[string]string{"project": "demo", "userId": "u1"}
	b := testMemory("mem:b", []float32{1, 0, 0})
	b.Metadata = map[string]string{"project": "other"}
	c := testMemory("mem:c", []float32{1, 0, 0})

	require.NoError(t, g.UpsertBatch(ctx, []types.Memory{a, b, c}, nil))

	candidates, err := g.VectorSearch(ctx, []float32{1, 0, 0}, storage.VectorSearchOptions{
		Filter: map[string]string{"project": "demo"},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "mem:a", candidates[0].Memory.ID)

	// Every filter key must match.
	candidates, err = g.VectorSearch(ctx, []float32{1, 0, 0}, storage.VectorSearchOptions{
		Filter: map[string]string{"project": "demo", "userId": "u2"},
	})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestVectorSearchLimit(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	var memories []types.Memory
	for i := 0; i < 5; i++ {
		memories = append(memories, testMemory("mem:"+string(rune('a'+i)), []float32{1, float32(i), 0}))
	}
	require.NoError(t, g.UpsertBatch(ctx, memories, nil))

	candidates, err := g.VectorSearch(ctx, []float32{1, 0, 0}, storage.VectorSearchOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, candidates, 2)
}

func TestFindEntitiesFuzzyAndOrdered(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	entities := []types.Entity{
		{ID: "ent:old", Name: "Alice", Type: "person", CreatedAt: base, Vector: []float32{1, 0, 0}},
		{ID: "ent:new", Name: "Alice Smith", Type: "person", CreatedAt: base.Add(time.Hour), Vector: []float32{0, 1, 0}},
		{ID: "ent:bob", Name: "Bob", Type: "person", CreatedAt: base, Vector: []float32{0, 0, 1}},
	}
	require.NoError(t, g.UpsertBatch(ctx, nil, entities))

	// Exact (case-insensitive) and substring matches, newest first.
	found, err := g.FindEntities(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "ent:new", found[0].ID)
	assert.Equal(t, "ent:old", found[1].ID)

	// Containment works in the other direction too: the query may extend
	// the stored name. Both Alices are substrings of this query.
	found, err = g.FindEntities(ctx, "alice smith from accounting")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "ent:new", found[0].ID)

	found, err = g.FindEntities(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestVectorSearchReturnsEntityLinks(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	entity := types.Entity{ID: "ent:1", Name: "Alice", Type: "person",
		CreatedAt: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), Vector: []float32{0, 1, 0}}
	linked := testMemory("mem:linked", []float32{1, 0, 0})
	linked.EntityIDs = []string{"ent:1"}
	// Enough low-similarity filler that the limit cuts it off.
	memories := []types.Memory{linked}
	for i := 0; i < 4; i++ {
		memories = append(memories, testMemory("mem:far"+string(rune('a'+i)), []float32{-1, 0, float32(i)}))
	}
	require.NoError(t, g.UpsertBatch(ctx, memories, []types.Entity{entity}))

	candidates, err := g.VectorSearch(ctx, []float32{1, 0, 0}, storage.VectorSearchOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "mem:linked", candidates[0].Memory.ID)
	assert.Equal(t, []string{"ent:1"}, candidates[0].Memory.EntityIDs,
		"surviving candidates must carry their entity links")
}

func TestDeleteMemory(t *testing.T) {
	g := openTestGateway(t)
	ctx := context.Background()

	memory := testMemory("mem:1", []float32{1, 0, 0})
	memory.EntityIDs = []string{"ent:1"}
	entity := types.Entity{ID: "ent:1", Name: "Alice", Type: "person", CreatedAt: memory.CreatedAt, Vector: []float32{0, 1, 0}}
	require.NoError(t, g.UpsertBatch(ctx, []types.Memory{memory}, []types.Entity{entity}))

	require.NoError(t, g.DeleteMemory(ctx, "mem:1"))

	_, err := g.GetMemory(ctx, "mem:1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// The entity survives; only the link is cascaded away.
	_, err = g.GetEntity(ctx, "ent:1")
	assert.NoError(t, err)

	assert.ErrorIs(t, g.DeleteMemory(ctx, "mem:1"), storage.ErrNotFound)
}

func TestGetMemoryNotFound(t *testing.T) {
	g := openTestGateway(t)

	_, err := g.GetMemory(context.Background(), "mem:absent")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = g.GetEntity(context.Background(), "ent:absent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
