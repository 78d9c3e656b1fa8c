// Package jobs holds maintenance routines run on a schedule from the server
// process. Batches and their rows are reconciliation history and are never
// deleted; only derived artifacts (poll tasks, payload archives) get pruned.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/channelsync/inventory-service/internal/storage"
)

// CleanupAbandonedBatches fails batches stuck in a non-terminal state far
// past any plausible report generation time. Without this a lost report
// handle would leave a batch in processing forever.
func CleanupAbandonedBatches(ctx context.Context, age time.Duration) (int, error) {
	pool := getPool()
	cutoff := time.Now().Add(-age)

	result, err := pool.Exec(ctx, `
		UPDATE inventory_batches
		SET status = 'failed',
		    last_error = 'abandoned: no terminal poll observed before retention cutoff',
		    updated_at = NOW()
		WHERE status IN ('requested', 'processing') AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire abandoned batches: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// CleanupPayloadArchives deletes archived raw payloads older than the
// retention window. Batches and rows stay; only the raw report bodies go.
func CleanupPayloadArchives(ctx context.Context, archive storage.Storage, age time.Duration) (int, error) {
	cutoff := time.Now().Add(-age)

	keys, err := archive.List(ctx, "payloads/")
	if err != nil {
		return 0, fmt.Errorf("failed to list archived payloads: %w", err)
	}

	deleted := 0
	for _, key := range keys {
		info, err := archive.GetInfo(ctx, key)
		if err != nil {
			continue
		}
		if info.ModifiedAt.Before(cutoff) {
			if err := archive.Delete(ctx, key); err != nil {
				return deleted, fmt.Errorf("failed to delete archived payload %s: %w", key, err)
			}
			deleted++
		}
	}
	return deleted, nil
}

// getPool returns the database connection pool
// This is a bridge to the database package to avoid circular dependencies
func getPool() *pgxpool.Pool {
	return dbPoolGetter()
}

// dbPoolGetter is a function that returns the database pool
// This will be set by the database package initialization
var dbPoolGetter func() *pgxpool.Pool

// RegisterDBPoolGetter registers the database pool getter function
// This should be called from the database package initialization
func RegisterDBPoolGetter(getter func() *pgxpool.Pool) {
	dbPoolGetter = getter
}
