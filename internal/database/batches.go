package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/channelsync/inventory-service/internal/pkg/cuid2"
)

// BatchRepo provides persistence for batches and their inventory rows
type BatchRepo struct {
	pool *pgxpool.Pool
}

// NewBatchRepo creates a batch repository backed by the given pool
func NewBatchRepo(pool *pgxpool.Pool) *BatchRepo {
	return &BatchRepo{pool: pool}
}

const batchColumns = `
	id, channel, marketplace_id, snapshot_kind, report_handle, status,
	row_count, matched_count, unmatched_count, last_error, raw_status_payload,
	requested_at, completed_at, created_at, updated_at
`

func scanBatch(row pgx.Row) (*Batch, error) {
	var b Batch
	err := row.Scan(
		&b.ID, &b.Channel, &b.MarketplaceID, &b.SnapshotKind, &b.ReportHandle, &b.Status,
		&b.RowCount, &b.MatchedCount, &b.UnmatchedCount, &b.LastError, &b.RawStatusPayload,
		&b.RequestedAt, &b.CompletedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBatch inserts a new batch in 'requested' state and returns it
func (r *BatchRepo) CreateBatch(ctx context.Context, channel, marketplaceID, snapshotKind string, reportHandle string) (*Batch, error) {
	id := cuid2.GeneratePrefixedId("batch", cuid2.PrefixedIdOptions{TimeSortable: true})

	batch, err := scanBatch(r.pool.QueryRow(ctx, `
		INSERT INTO inventory_batches (
			id, channel, marketplace_id, snapshot_kind, report_handle, status,
			row_count, matched_count, unmatched_count, requested_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 'requested', 0, 0, 0, NOW(), NOW(), NOW())
		RETURNING `+batchColumns,
		id, channel, marketplaceID, snapshotKind, reportHandle))
	if err != nil {
		return nil, fmt.Errorf("failed to insert batch: %w", err)
	}
	return batch, nil
}

// GetBatch loads a batch by id
func (r *BatchRepo) GetBatch(ctx context.Context, id string) (*Batch, error) {
	batch, err := scanBatch(r.pool.QueryRow(ctx,
		`SELECT `+batchColumns+` FROM inventory_batches WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("batch %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return batch, nil
}

// ListBatches returns the most recent batches, optionally filtered by channel
func (r *BatchRepo) ListBatches(ctx context.Context, channel string, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + batchColumns + ` FROM inventory_batches`
	args := []any{}
	if channel != "" {
		query += ` WHERE channel = $1`
		args = append(args, channel)
	}
	query += fmt.Sprintf(` ORDER BY requested_at DESC LIMIT %d`, limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := make([]Batch, 0)
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

// LatestBatchWithRows returns the most recent completed batch that has rows,
// which is the one operator views default to.
func (r *BatchRepo) LatestBatchWithRows(ctx context.Context, channel, marketplaceID string) (*Batch, error) {
	batch, err := scanBatch(r.pool.QueryRow(ctx, `
		SELECT `+batchColumns+`
		FROM inventory_batches
		WHERE channel = $1 AND marketplace_id = $2 AND row_count > 0
		ORDER BY requested_at DESC
		LIMIT 1
	`, channel, marketplaceID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest batch: %w", err)
	}
	return batch, nil
}

// SetProcessing moves a requested batch to processing. No-op on any other state.
func (r *BatchRepo) SetProcessing(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE inventory_batches
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'requested'
	`, id)
	return err
}

// UpdatePollPayload records the latest raw status payload from the external
// job without touching rows or counts.
func (r *BatchRepo) UpdatePollPayload(ctx context.Context, id string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE inventory_batches
		SET raw_status_payload = $2, updated_at = NOW()
		WHERE id = $1
	`, id, payload)
	return err
}

// MarkFailed transitions a batch to terminal 'failed', recording the external
// error message and payload verbatim. Terminal states are never overwritten.
func (r *BatchRepo) MarkFailed(ctx context.Context, id string, message string, payload []byte) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE inventory_batches
		SET status = 'failed',
		    last_error = $2,
		    raw_status_payload = COALESCE($3, raw_status_payload),
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, id, message, payload)
	return err
}

// InsertRowsAndComplete writes a batch's ingested rows and its terminal
// 'completed' status in one transaction, so a batch can never appear
// completed with zero rows after an interrupted ingestion. Counts are set by
// counting the persisted rows, never by running tally.
func (r *BatchRepo) InsertRowsAndComplete(ctx context.Context, batchID string, inventoryRows []InventoryRow, payload []byte) (BatchCounts, error) {
	var counts BatchCounts

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to begin ingestion transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, row := range inventoryRows {
		_, err := tx.Exec(ctx, `
			INSERT INTO inventory_rows (
				id, batch_id, external_sku, normalized_sku, asin, fnsku, location_code,
				available_qty, inbound_qty, reserved_qty, match_status, variant_id,
				error_flags, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		`, row.ID, batchID, row.ExternalSku, row.NormalizedSku, row.Asin, row.Fnsku, row.LocationCode,
			row.AvailableQty, row.InboundQty, row.ReservedQty, row.MatchStatus, row.VariantID,
			row.ErrorFlags)
		if err != nil {
			return counts, fmt.Errorf("failed to insert inventory row %s: %w", row.ID, err)
		}
	}

	counts, err = recountBatchTx(ctx, tx, batchID)
	if err != nil {
		return counts, err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE inventory_batches
		SET status = 'completed',
		    row_count = $2,
		    matched_count = $3,
		    unmatched_count = $4,
		    raw_status_payload = COALESCE($5, raw_status_payload),
		    last_error = NULL,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed')
	`, batchID, counts.RowCount, counts.MatchedCount, counts.UnmatchedCount, payload)
	if err != nil {
		return counts, fmt.Errorf("failed to complete batch %s: %w", batchID, err)
	}
	if tag.RowsAffected() == 0 {
		return counts, fmt.Errorf("batch %s is already terminal, refusing to re-ingest", batchID)
	}

	if err := tx.Commit(ctx); err != nil {
		return counts, fmt.Errorf("failed to commit ingestion for batch %s: %w", batchID, err)
	}
	return counts, nil
}

// RecountBatch recomputes the batch's row/matched/unmatched counts from the
// persisted rows and stores them. Called after every rematch.
func (r *BatchRepo) RecountBatch(ctx context.Context, batchID string) (BatchCounts, error) {
	var counts BatchCounts

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return counts, fmt.Errorf("failed to begin recount transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	counts, err = recountBatchTx(ctx, tx, batchID)
	if err != nil {
		return counts, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE inventory_batches
		SET row_count = $2, matched_count = $3, unmatched_count = $4, updated_at = NOW()
		WHERE id = $1
	`, batchID, counts.RowCount, counts.MatchedCount, counts.UnmatchedCount)
	if err != nil {
		return counts, fmt.Errorf("failed to store recounted totals for %s: %w", batchID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return counts, fmt.Errorf("failed to commit recount for %s: %w", batchID, err)
	}
	return counts, nil
}

func recountBatchTx(ctx context.Context, tx pgx.Tx, batchID string) (BatchCounts, error) {
	var counts BatchCounts
	err := tx.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE match_status = 'matched'),
		       COUNT(*) FILTER (WHERE match_status = 'unmatched')
		FROM inventory_rows
		WHERE batch_id = $1
	`, batchID).Scan(&counts.RowCount, &counts.MatchedCount, &counts.UnmatchedCount)
	if err != nil {
		return counts, fmt.Errorf("failed to recount rows for batch %s: %w", batchID, err)
	}
	return counts, nil
}

const rowColumns = `
	id, batch_id, external_sku, normalized_sku, asin, fnsku, location_code,
	available_qty, inbound_qty, reserved_qty, match_status, variant_id,
	error_flags, created_at, updated_at
`

func scanInventoryRow(row pgx.Row) (*InventoryRow, error) {
	var ir InventoryRow
	err := row.Scan(
		&ir.ID, &ir.BatchID, &ir.ExternalSku, &ir.NormalizedSku, &ir.Asin, &ir.Fnsku, &ir.LocationCode,
		&ir.AvailableQty, &ir.InboundQty, &ir.ReservedQty, &ir.MatchStatus, &ir.VariantID,
		&ir.ErrorFlags, &ir.CreatedAt, &ir.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ir, nil
}

// ListRows returns a page of a batch's rows, optionally only unmatched ones
func (r *BatchRepo) ListRows(ctx context.Context, batchID string, unmatchedOnly bool, limit, offset int) ([]InventoryRow, int, error) {
	if limit <= 0 {
		limit = 50
	}

	filter := ``
	if unmatchedOnly {
		filter = ` AND match_status = 'unmatched'`
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM inventory_rows WHERE batch_id = $1`+filter, batchID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count rows for batch %s: %w", batchID, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+rowColumns+`
		FROM inventory_rows
		WHERE batch_id = $1`+filter+`
		ORDER BY external_sku, id
		LIMIT $2 OFFSET $3
	`, batchID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list rows for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	result := make([]InventoryRow, 0, limit)
	for rows.Next() {
		ir, err := scanInventoryRow(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *ir)
	}
	return result, total, rows.Err()
}

// AllRows loads every row of a batch, for rollup aggregation and exports
func (r *BatchRepo) AllRows(ctx context.Context, batchID string) ([]InventoryRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+rowColumns+`
		FROM inventory_rows
		WHERE batch_id = $1
		ORDER BY external_sku, id
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rows for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	result := make([]InventoryRow, 0)
	for rows.Next() {
		ir, err := scanInventoryRow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ir)
	}
	return result, rows.Err()
}

// RowMatchStates returns the match-relevant fields of a batch's rows.
// When normalizedSku is non-empty only rows with that lookup key are returned.
func (r *BatchRepo) RowMatchStates(ctx context.Context, batchID string, normalizedSku string) ([]RowMatchState, error) {
	query := `
		SELECT id, normalized_sku, match_status, variant_id
		FROM inventory_rows
		WHERE batch_id = $1
	`
	args := []any{batchID}
	if normalizedSku != "" {
		query += ` AND normalized_sku = $2`
		args = append(args, normalizedSku)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load row match states for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	states := make([]RowMatchState, 0)
	for rows.Next() {
		var s RowMatchState
		if err := rows.Scan(&s.ID, &s.NormalizedSku, &s.MatchStatus, &s.VariantID); err != nil {
			return nil, err
		}
		states = append(states, s)
	}
	return states, rows.Err()
}

// ApplyRowMatches writes recomputed match classifications. Match status and
// variant id are the only row fields ever mutated after ingestion.
func (r *BatchRepo) ApplyRowMatches(ctx context.Context, updates []RowMatchUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, u := range updates {
		batch.Queue(`
			UPDATE inventory_rows
			SET match_status = $2, variant_id = $3, updated_at = NOW()
			WHERE id = $1
		`, u.ID, u.MatchStatus, u.VariantID)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range updates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to apply row match update: %w", err)
		}
	}
	return nil
}

// RowErrorSummary returns per-flag counts of flagged rows in a batch
func (r *BatchRepo) RowErrorSummary(ctx context.Context, batchID string) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT flag, COUNT(*)
		FROM inventory_rows, UNNEST(error_flags) AS flag
		WHERE batch_id = $1
		GROUP BY flag
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize row errors for batch %s: %w", batchID, err)
	}
	defer rows.Close()

	summary := make(map[string]int)
	for rows.Next() {
		var flag string
		var count int
		if err := rows.Scan(&flag, &count); err != nil {
			return nil, err
		}
		summary[flag] = count
	}
	return summary, rows.Err()
}

// ServiceStats is a service-wide snapshot of batch and row totals
type ServiceStats struct {
	TotalBatches    int        `json:"totalBatches"`
	ProcessingCount int        `json:"processingCount"`
	CompletedCount  int        `json:"completedCount"`
	FailedCount     int        `json:"failedCount"`
	TotalRows       int        `json:"totalRows"`
	UnmatchedRows   int        `json:"unmatchedRows"`
	LastCompletedAt *time.Time `json:"lastCompletedAt"`
}

// Stats computes service-wide batch and row totals
func (r *BatchRepo) Stats(ctx context.Context) (*ServiceStats, error) {
	var s ServiceStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('requested', 'processing')),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       MAX(completed_at) FILTER (WHERE status = 'completed')
		FROM inventory_batches
	`).Scan(&s.TotalBatches, &s.ProcessingCount, &s.CompletedCount, &s.FailedCount, &s.LastCompletedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to compute batch stats: %w", err)
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE match_status = 'unmatched')
		FROM inventory_rows
	`).Scan(&s.TotalRows, &s.UnmatchedRows)
	if err != nil {
		return nil, fmt.Errorf("failed to compute row stats: %w", err)
	}
	return &s, nil
}
