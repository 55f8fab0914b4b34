package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest clears all gateway tables, including the recorded embedding
// dimension, so every integration test starts from an empty store. Defined in
// the postgres package for access to the unexported db field; exported so the
// postgres_test package can call it.
func (g *Gateway) TruncateForTest(ctx context.Context) error {
	_, err := g.db.ExecContext(ctx, "TRUNCATE TABLE memories, entities, memory_entities, meta")
	if err != nil {
		return fmt.Errorf("postgres: truncate test tables: %w", err)
	}
	return nil
}
