// Package sqlite implements the storage gateway on an embedded SQLite
// database (modernc.org/sqlite, CGO-free). Vectors are stored as JSON and
// ranked by cosine similarity in Go, which is plenty for the single-user
// local deployments this engine targets; larger corpora belong on the
// postgres engine.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/mimi-ai/mimi/internal/storage"
	"github.com/mimi-ai/mimi/pkg/types"
)

// Gateway is a SQLite-backed storage gateway.
type Gateway struct {
	db *sql.DB
}

// Compile-time assertion.
var _ storage.Gateway = (*Gateway)(nil)

// Open opens (creating if needed) the database at path and applies the
// schema. The busy timeout keeps concurrent CLI invocations from failing
// immediately on a locked database.
func Open(path string) (*Gateway, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	g := &Gateway{db: db}
	if err := g.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// ensureSchema creates the tables on first use.
func (g *Gateway) ensureSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		metadata   TEXT,
		vector     TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entities (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		description TEXT,
		created_at  TIMESTAMP NOT NULL,
		vector      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memory_entities (
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		position  INTEGER NOT NULL,
		PRIMARY KEY (memory_id, entity_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := g.db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return nil
}

// UpsertBatch persists one pipeline run's memories and entities in a single
// transaction. It enforces the deployment-wide embedding dimension: the first
// batch fixes it, later batches with a different dimension are rejected.
func (g *Gateway) UpsertBatch(ctx context.Context, memories []types.Memory, entities []types.Entity) error {
	if len(memories) == 0 && len(entities) == 0 {
		return nil
	}

	dim, err := batchDimension(memories, entities)
	if err != nil {
		return err
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := g.checkDimension(ctx, tx, dim); err != nil {
		return err
	}

	for _, entity := range entities {
		vec, err := json.Marshal(entity.Vector)
		if err != nil {
			return fmt.Errorf("sqlite: marshal entity vector: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (id, name, type, description, created_at, vector)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				type = excluded.type,
				description = excluded.description,
				vector = excluded.vector
		`, entity.ID, entity.Name, entity.Type, entity.Description, entity.CreatedAt, string(vec))
		if err != nil {
			return fmt.Errorf("sqlite: upsert entity %s: %w", entity.ID, err)
		}
	}

	for _, memory := range memories {
		vec, err := json.Marshal(memory.Vector)
		if err != nil {
			return fmt.Errorf("sqlite: marshal memory vector: %w", err)
		}
		meta, err := json.Marshal(memory.Metadata)
		if err != nil {
			return fmt.Errorf("sqlite: marshal memory metadata: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, content, kind, created_at, metadata, vector)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				kind = excluded.kind,
				metadata = excluded.metadata,
				vector = excluded.vector
		`, memory.ID, memory.Content, string(memory.Kind), memory.CreatedAt, string(meta), string(vec))
		if err != nil {
			return fmt.Errorf("sqlite: upsert memory %s: %w", memory.ID, err)
		}

		// Rewrite the link set so re-applied batches stay consistent.
		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entities WHERE memory_id = ?`, memory.ID); err != nil {
			return fmt.Errorf("sqlite: clear links for %s: %w", memory.ID, err)
		}
		for pos, entityID := range memory.EntityIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO memory_entities (memory_id, entity_id, position) VALUES (?, ?, ?)
			`, memory.ID, entityID, pos)
			if err != nil {
				return fmt.Errorf("sqlite: link %s -> %s: %w", memory.ID, entityID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit batch: %w", err)
	}
	return nil
}

// checkDimension enforces the one-embedding-space invariant inside the batch
// transaction. The first write records the dimension in the meta table.
func (g *Gateway) checkDimension(ctx context.Context, tx *sql.Tx, dim int) error {
	var stored string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedding_dimension'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('embedding_dimension', ?)`, strconv.Itoa(dim))
		if err != nil {
			return fmt.Errorf("sqlite: record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("sqlite: read dimension: %w", err)
	}

	if stored != strconv.Itoa(dim) {
		return fmt.Errorf("%w: store has dimension %s, batch has %d", storage.ErrDimensionMismatch, stored, dim)
	}
	return nil
}

// batchDimension returns the single vector dimension used across the batch,
// or an error when vectors disagree or are missing.
func batchDimension(memories []types.Memory, entities []types.Entity) (int, error) {
	dim := 0
	check := func(vec []float32, what, id string) error {
		if len(vec) == 0 {
			return fmt.Errorf("%w: %s %s has no vector", storage.ErrInvalidInput, what, id)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return fmt.Errorf("%w: %s %s has dimension %d, batch has %d", storage.ErrDimensionMismatch, what, id, len(vec), dim)
		}
		return nil
	}
	for _, m := range memories {
		if err := check(m.Vector, "memory", m.ID); err != nil {
			return 0, err
		}
	}
	for _, e := range entities {
		if err := check(e.Vector, "entity", e.ID); err != nil {
			return 0, err
		}
	}
	return dim, nil
}

// VectorSearch loads candidate memories and ranks them by cosine similarity
// in Go. Metadata filtering happens after JSON decoding, before ranking.
func (g *Gateway) VectorSearch(ctx context.Context, query []float32, opts storage.VectorSearchOptions) ([]storage.Candidate, error) {
	opts.Normalize()

	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidInput)
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT id, content, kind, created_at, metadata, vector FROM memories
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []storage.Candidate
	for rows.Next() {
		memory, vector, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		if !matchesFilter(memory.Metadata, opts.Filter) {
			continue
		}
		if len(vector) != len(query) {
			return nil, fmt.Errorf("%w: stored vector has dimension %d, query has %d",
				storage.ErrDimensionMismatch, len(vector), len(query))
		}
		memory.Vector = vector
		candidates = append(candidates, storage.Candidate{
			Memory:     memory,
			Similarity: cosineSimilarity01(query, vector),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: vector search rows: %w", err)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > opts.Limit {
		candidates = candidates[:opts.Limit]
	}

	// Entity links are loaded only for the memories that survived the cut,
	// not for every row scanned.
	for i := range candidates {
		if err := g.loadEntityIDs(ctx, &candidates[i].Memory); err != nil {
			return nil, err
		}
	}
	return candidates, nil
}

// GetMemory retrieves a memory by ID, including its entity links.
func (g *Gateway) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, content, kind, created_at, metadata, vector FROM memories WHERE id = ?
	`, id)

	memory, vector, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	memory.Vector = vector
	if err := g.loadEntityIDs(ctx, &memory); err != nil {
		return nil, err
	}
	return &memory, nil
}

// GetEntity retrieves an entity by ID.
func (g *Gateway) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	var entity types.Entity
	var description sql.NullString
	var vecJSON string
	err := g.db.QueryRowContext(ctx, `
		SELECT id, name, type, description, created_at, vector FROM entities WHERE id = ?
	`, id).Scan(&entity.ID, &entity.Name, &entity.Type, &description, &entity.CreatedAt, &vecJSON)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get entity %s: %w", id, err)
	}
	if description.Valid {
		entity.Description = description.String
	}
	if err := json.Unmarshal([]byte(vecJSON), &entity.Vector); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal entity vector: %w", err)
	}
	return &entity, nil
}

// FindEntities returns entities matching the name exactly (case-insensitive)
// or by substring containment in either direction, newest first.
func (g *Gateway) FindEntities(ctx context.Context, name string) ([]types.Entity, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, type, description, created_at, vector FROM entities
		WHERE lower(name) = lower(?)
		   OR instr(lower(name), lower(?)) > 0
		   OR instr(lower(?), lower(name)) > 0
		ORDER BY created_at DESC
	`, name, name, name)
	if err != nil {
		return nil, fmt.Errorf("sqlite: find entities %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []types.Entity
	for rows.Next() {
		var entity types.Entity
		var description sql.NullString
		var vecJSON string
		if err := rows.Scan(&entity.ID, &entity.Name, &entity.Type, &description, &entity.CreatedAt, &vecJSON); err != nil {
			return nil, fmt.Errorf("sqlite: scan entity: %w", err)
		}
		if description.Valid {
			entity.Description = description.String
		}
		if err := json.Unmarshal([]byte(vecJSON), &entity.Vector); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal entity vector: %w", err)
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: find entities rows: %w", err)
	}
	return entities, nil
}

// DeleteMemory removes a memory; its links go with it via ON DELETE CASCADE.
func (g *Gateway) DeleteMemory(ctx context.Context, id string) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete memory %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: delete memory %s: %w", id, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close releases the database handle.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// loadEntityIDs populates a memory's EntityIDs in stored link order.
func (g *Gateway) loadEntityIDs(ctx context.Context, memory *types.Memory) error {
	rows, err := g.db.QueryContext(ctx, `
		SELECT entity_id FROM memory_entities WHERE memory_id = ? ORDER BY position
	`, memory.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load links for %s: %w", memory.ID, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var entityID string
		if err := rows.Scan(&entityID); err != nil {
			return fmt.Errorf("sqlite: scan link: %w", err)
		}
		memory.EntityIDs = append(memory.EntityIDs, entityID)
	}
	return rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemory scans one memory row; the column order must match the SELECT
// lists above. The vector is returned separately so callers can decide
// whether to attach it.
func scanMemory(row rowScanner) (types.Memory, []float32, error) {
	var memory types.Memory
	var kind string
	var metaJSON, vecJSON sql.NullString

	err := row.Scan(&memory.ID, &memory.Content, &kind, &memory.CreatedAt, &metaJSON, &vecJSON)
	if err != nil {
		return memory, nil, err
	}
	memory.Kind = types.MemoryKind(kind)

	if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
		if err := json.Unmarshal([]byte(metaJSON.String), &memory.Metadata); err != nil {
			return memory, nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
		}
	}

	var vector []float32
	if vecJSON.Valid {
		if err := json.Unmarshal([]byte(vecJSON.String), &vector); err != nil {
			return memory, nil, fmt.Errorf("sqlite: unmarshal vector: %w", err)
		}
	}
	return memory, vector, nil
}

// matchesFilter reports whether metadata contains every filter key with
// exactly the filter value (logical AND). An empty filter matches everything.
func matchesFilter(metadata, filter map[string]string) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// cosineSimilarity01 computes cosine similarity between two equal-length
// vectors, normalized from [-1,1] to [0,1] so higher is better and scores
// compose cleanly with additive boosts.
func cosineSimilarity01(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
