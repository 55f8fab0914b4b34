// Package types defines the persisted data model shared by the pipeline,
// search, and storage layers: memories, entities, and search results.
package types

import "time"

// MemoryKind classifies what a memory holds. Raw is reserved for the
// unmodified input text; the remaining kinds are produced by derivation steps.
type MemoryKind string

const (
	// KindRaw is the unmodified input, produced exactly once per pipeline run.
	KindRaw MemoryKind = "raw"

	// KindEpisodic holds event-like derivations (what happened, when).
	KindEpisodic MemoryKind = "episodic"

	// KindSemantic holds fact-like derivations. It is also the fallback kind
	// for derivation steps whose name is not a recognized kind.
	KindSemantic MemoryKind = "semantic"

	// KindProcedural holds how-to derivations (instructions, procedures).
	KindProcedural MemoryKind = "procedural"
)

// KnownKind reports whether s names one of the recognized memory kinds.
func KnownKind(s string) bool {
	switch MemoryKind(s) {
	case KindRaw, KindEpisodic, KindSemantic, KindProcedural:
		return true
	}
	return false
}

// KindForStep maps a derivation step name to the kind its memories carry.
// Recognized kind names map to themselves; anything else falls back to
// semantic, with the step name preserved in metadata by the pipeline.
func KindForStep(stepName string) MemoryKind {
	if KnownKind(stepName) {
		return MemoryKind(stepName)
	}
	return KindSemantic
}

// Well-known metadata keys. Metadata is open-ended pass-through data; these
// are the only keys the system itself reads or writes.
const (
	// MetaSourceStep records which derivation step produced a memory.
	MetaSourceStep = "sourceStep"

	// MetaProject tags a memory with a caller-supplied project name.
	MetaProject = "project"

	// MetaUserID tags a memory with a caller-supplied user identifier.
	MetaUserID = "userId"

	// MetaSourceFile records the file an imported memory came from.
	MetaSourceFile = "sourceFile"
)

// Memory is a single embedded unit of stored content.
//
// A memory is created once by a pipeline run and never mutated after
// persistence except by explicit delete. All memories produced by one
// Process call share the same CreatedAt timestamp.
type Memory struct {
	ID        string            `json:"id"`                  // Opaque unique identifier, assigned at creation
	Content   string            `json:"content"`             // Text payload
	Kind      MemoryKind        `json:"kind"`                // raw, episodic, semantic, procedural
	CreatedAt time.Time         `json:"created_at"`          // Fixed per pipeline run
	Metadata  map[string]string `json:"metadata,omitempty"`  // Caller-supplied tags, pass-through
	Vector    []float32         `json:"vector,omitempty"`    // Embedding of Content
	EntityIDs []string          `json:"entity_ids,omitempty"` // Entities mentioned in or derived with this memory
}

// HasEntity reports whether the memory links to the given entity ID.
func (m *Memory) HasEntity(entityID string) bool {
	for _, id := range m.EntityIDs {
		if id == entityID {
			return true
		}
	}
	return false
}
