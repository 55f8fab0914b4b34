package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/mimi-ai/mimi/internal/config"
	"github.com/mimi-ai/mimi/internal/llm"
	"github.com/mimi-ai/mimi/pkg/types"
)

// End-to-end run with a local embedder and a scripted generator: one
// derivation step plus entity extraction, the shape of a real deployment.
func TestProcessEndToEnd(t *testing.T) {
	providers := []llm.Provider{
		localProvider(),
		generatorProvider("openai", func(prompt string) (string, error) {
			if strings.Contains(prompt, "entities") {
				return `[{"name": "Bob", "type": "person", "description": "met at the park"}]`, nil
			}
			return "Met Bob at the park on Tuesday afternoon.", nil
		}),
	}
	steps := []config.Step{
		{Name: "episodic", Provider: "openai", Prompt: "extract events"},
	}
	engine, err := New(providers, steps, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	batch, err := engine.Process(context.Background(), "Met Bob at the park on Tuesday.", map[string]string{"project": "x"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(batch.Memories) != 2 {
		t.Fatalf("got %d memories, want [raw, episodic]", len(batch.Memories))
	}
	raw, episodic := batch.Memories[0], batch.Memories[1]
	if raw.Kind != types.KindRaw || episodic.Kind != types.KindEpisodic {
		t.Fatalf("kinds = %q, %q", raw.Kind, episodic.Kind)
	}

	if len(batch.Entities) != 1 || batch.Entities[0].Name != "Bob" {
		t.Fatalf("entities = %+v, want one Bob", batch.Entities)
	}
	bob := batch.Entities[0]
	if len(raw.EntityIDs) != 1 || raw.EntityIDs[0] != bob.ID {
		t.Errorf("raw.EntityIDs = %v, want [%s]", raw.EntityIDs, bob.ID)
	}

	// Every vector in the batch shares the embedder's dimension.
	for _, m := range batch.Memories {
		if len(m.Vector) != testDim {
			t.Errorf("memory %s dimension = %d", m.ID, len(m.Vector))
		}
	}
	if len(bob.Vector) != testDim {
		t.Errorf("entity dimension = %d", len(bob.Vector))
	}

	if failed := batch.Report.FailedSteps(); len(failed) != 0 {
		t.Errorf("unexpected failed steps: %v", failed)
	}
}
