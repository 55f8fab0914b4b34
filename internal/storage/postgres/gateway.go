// Package postgres implements the storage gateway on PostgreSQL with the
// pgvector extension. Similarity ranking and metadata filtering both happen
// in the database, so this backend scales past the embedded store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/mimi-ai/mimi/internal/storage"
	"github.com/mimi-ai/mimi/pkg/types"
)

// Gateway is a PostgreSQL/pgvector-backed storage gateway.
type Gateway struct {
	db *sql.DB
}

// Compile-time assertion.
var _ storage.Gateway = (*Gateway)(nil)

// Open connects with the given DSN, verifies connectivity, and applies the
// schema (including CREATE EXTENSION vector, which requires the extension to
// be installed on the server).
func Open(ctx context.Context, dsn string) (*Gateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	g := &Gateway{db: db}
	if err := g.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// ensureSchema creates the extension and tables on first use. The vector
// columns are dimension-less; the deployment dimension is recorded in the
// meta table on first write and enforced on every batch. An ANN index over a
// dimension-less column is not possible, so index creation is left to the
// operator once the dimension is known:
//
//	CREATE INDEX ON memories USING hnsw ((embedding::vector(N)) vector_cosine_ops);
func (g *Gateway) ensureSchema(ctx context.Context) error {
	const schema = `
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS memories (
		id         TEXT PRIMARY KEY,
		content    TEXT NOT NULL,
		kind       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		metadata   JSONB NOT NULL DEFAULT '{}',
		embedding  vector NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entities (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		type        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		embedding   vector NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memory_entities (
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		entity_id TEXT NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
		position  INTEGER NOT NULL,
		PRIMARY KEY (memory_id, entity_id)
	);

	CREATE INDEX IF NOT EXISTS idx_entities_name_lower ON entities (lower(name));
	CREATE INDEX IF NOT EXISTS idx_memories_metadata ON memories USING gin (metadata);
	CREATE INDEX IF NOT EXISTS idx_memories_created ON memories (created_at);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := g.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

// UpsertBatch persists one pipeline run's memories and entities in a single
// transaction, enforcing the deployment-wide embedding dimension.
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
		return fmt.Errorf("postgres: begin batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := g.checkDimension(ctx, tx, dim); err != nil {
		return err
	}

	for _, entity := range entities {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO entities (id, name, type, description, created_at, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				type = EXCLUDED.type,
				description = EXCLUDED.description,
				embedding = EXCLUDED.embedding
		`, entity.ID, entity.Name, entity.Type, entity.Description, entity.CreatedAt,
			pgvector.NewVector(entity.Vector))
		if err != nil {
			return fmt.Errorf("postgres: upsert entity %s: %w", entity.ID, err)
		}
	}

	for _, memory := range memories {
		meta, err := json.Marshal(memory.Metadata)
		if err != nil {
			return fmt.Errorf("postgres: marshal memory metadata: %w", err)
		}
		if memory.Metadata == nil {
			meta = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO memories (id, content, kind, created_at, metadata, embedding)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				kind = EXCLUDED.kind,
				metadata = EXCLUDED.metadata,
				embedding = EXCLUDED.embedding
		`, memory.ID, memory.Content, string(memory.Kind), memory.CreatedAt, meta,
			pgvector.NewVector(memory.Vector))
		if err != nil {
			return fmt.Errorf("postgres: upsert memory %s: %w", memory.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM memory_entities WHERE memory_id = $1`, memory.ID); err != nil {
			return fmt.Errorf("postgres: clear links for %s: %w", memory.ID, err)
		}
		for pos, entityID := range memory.EntityIDs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO memory_entities (memory_id, entity_id, position) VALUES ($1, $2, $3)
			`, memory.ID, entityID, pos)
			if err != nil {
				return fmt.Errorf("postgres: link %s -> %s: %w", memory.ID, entityID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit batch: %w", err)
	}
	return nil
}

// checkDimension enforces the one-embedding-space invariant inside the batch
// transaction.
func (g *Gateway) checkDimension(ctx context.Context, tx *sql.Tx, dim int) error {
	var stored string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'embedding_dimension' FOR UPDATE`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('embedding_dimension', $1) ON CONFLICT (key) DO NOTHING`,
			strconv.Itoa(dim))
		if err != nil {
			return fmt.Errorf("postgres: record dimension: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("postgres: read dimension: %w", err)
	}

	if stored != strconv.Itoa(dim) {
		return fmt.Errorf("%w: store has dimension %s, batch has %d", storage.ErrDimensionMismatch, stored, dim)
	}
	return nil
}

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

// VectorSearch ranks memories by cosine distance in the database. pgvector's
// <=> operator yields cosine distance in [0,2]; 1 - distance/2 maps it to the
// [0,1] similarity the gateway contract requires.
func (g *Gateway) VectorSearch(ctx context.Context, query []float32, opts storage.VectorSearchOptions) ([]storage.Candidate, error) {
	opts.Normalize()

	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", storage.ErrInvalidInput)
	}

	filter, err := json.Marshal(opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("postgres: marshal filter: %w", err)
	}
	if opts.Filter == nil {
		filter = []byte("{}")
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT m.id, m.content, m.kind, m.created_at, m.metadata,
		       1 - (m.embedding <=> $1) / 2 AS similarity,
		       COALESCE(array_agg(me.entity_id ORDER BY me.position)
		                FILTER (WHERE me.entity_id IS NOT NULL), '{}') AS entity_ids
		FROM memories m
		LEFT JOIN memory_entities me ON me.memory_id = m.id
		WHERE m.metadata @> $2
		GROUP BY m.id
		ORDER BY m.embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(query), filter, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var candidates []storage.Candidate
	for rows.Next() {
		var (
			memory     types.Memory
			kind       string
			metaJSON   []byte
			similarity float64
			entityIDs  []byte
		)
		if err := rows.Scan(&memory.ID, &memory.Content, &kind, &memory.CreatedAt, &metaJSON, &similarity, &entityIDs); err != nil {
			return nil, fmt.Errorf("postgres: scan candidate: %w", err)
		}
		memory.Kind = types.MemoryKind(kind)
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &memory.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
			}
		}
		memory.EntityIDs = parseTextArray(string(entityIDs))
		candidates = append(candidates, storage.Candidate{Memory: memory, Similarity: similarity})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: vector search rows: %w", err)
	}
	return candidates, nil
}

// GetMemory retrieves a memory by ID, including its entity links and vector.
func (g *Gateway) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	var (
		memory   types.Memory
		kind     string
		metaJSON []byte
		vec      pgvector.Vector
	)
	err := g.db.QueryRowContext(ctx, `
		SELECT id, content, kind, created_at, metadata, embedding FROM memories WHERE id = $1
	`, id).Scan(&memory.ID, &memory.Content, &kind, &memory.CreatedAt, &metaJSON, &vec)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get memory %s: %w", id, err)
	}
	memory.Kind = types.MemoryKind(kind)
	memory.Vector = vec.Slice()
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &memory.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
		}
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT entity_id FROM memory_entities WHERE memory_id = $1 ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("postgres: load links for %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var entityID string
		if err := rows.Scan(&entityID); err != nil {
			return nil, fmt.Errorf("postgres: scan link: %w", err)
		}
		memory.EntityIDs = append(memory.EntityIDs, entityID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load links rows: %w", err)
	}
	return &memory, nil
}

// GetEntity retrieves an entity by ID.
func (g *Gateway) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	var entity types.Entity
	var vec pgvector.Vector
	err := g.db.QueryRowContext(ctx, `
		SELECT id, name, type, description, created_at, embedding FROM entities WHERE id = $1
	`, id).Scan(&entity.ID, &entity.Name, &entity.Type, &entity.Description, &entity.CreatedAt, &vec)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get entity %s: %w", id, err)
	}
	entity.Vector = vec.Slice()
	return &entity, nil
}

// FindEntities returns entities matching the name exactly (case-insensitive)
// or by substring containment in either direction, newest first.
func (g *Gateway) FindEntities(ctx context.Context, name string) ([]types.Entity, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, name, type, description, created_at, embedding FROM entities
		WHERE lower(name) = lower($1)
		   OR position(lower($1) IN lower(name)) > 0
		   OR position(lower(name) IN lower($1)) > 0
		ORDER BY created_at DESC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("postgres: find entities %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	var entities []types.Entity
	for rows.Next() {
		var entity types.Entity
		var vec pgvector.Vector
		if err := rows.Scan(&entity.ID, &entity.Name, &entity.Type, &entity.Description, &entity.CreatedAt, &vec); err != nil {
			return nil, fmt.Errorf("postgres: scan entity: %w", err)
		}
		entity.Vector = vec.Slice()
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: find entities rows: %w", err)
	}
	return entities, nil
}

// DeleteMemory removes a memory; its links go with it via ON DELETE CASCADE.
func (g *Gateway) DeleteMemory(ctx context.Context, id string) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete memory %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: delete memory %s: %w", id, err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Close releases the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// parseTextArray decodes a one-dimensional Postgres text[] literal of
// identifier-safe values ({a,b,c}). IDs contain no commas, quotes, or braces,
// so the simple split is sufficient.
func parseTextArray(literal string) []string {
	if len(literal) < 2 || literal == "{}" {
		return nil
	}
	inner := literal[1 : len(literal)-1]
	if inner == "" {
		return nil
	}
	var ids []string
	start := 0
	for i := 0; i <= len(inner); i++ {
		if i == len(inner) || inner[i] == ',' {
			ids = append(ids, inner[start:i])
			start = i + 1
		}
	}
	return ids
}
