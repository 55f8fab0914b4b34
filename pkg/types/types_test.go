package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindForStep(t *testing.T) {
	assert.Equal(t, KindEpisodic, KindForStep("episodic"))
	assert.Equal(t, KindSemantic, KindForStep("semantic"))
	assert.Equal(t, KindProcedural, KindForStep("procedural"))
	assert.Equal(t, KindSemantic, KindForStep("weekly-digest"), "unrecognized names fall back to semantic")
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "alice", NormalizeName("  Alice "))
	assert.Equal(t, NormalizeName("ALICE"), NormalizeName("alice"))
	assert.NotEqual(t, NormalizeName("alice"), NormalizeName("alice smith"))
}

func TestCanonicalText(t *testing.T) {
	e := Entity{Name: "Alice", Type: "person"}
	assert.Equal(t, "Alice (person)", e.CanonicalText())

	e.Description = "a colleague"
	assert.Equal(t, "Alice (person): a colleague", e.CanonicalText())
}

func TestHasEntity(t *testing.T) {
	m := Memory{EntityIDs: []string{"ent:1", "ent:2"}}
	assert.True(t, m.HasEntity("ent:2"))
	assert.False(t, m.HasEntity("ent:3"))
	assert.False(t, (&Memory{}).HasEntity("ent:1"))
}
