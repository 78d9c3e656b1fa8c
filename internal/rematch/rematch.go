// Package rematch reclassifies already persisted inventory rows against the
// current active mappings, without re-downloading anything from the channel.
package rematch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/ingest"
	"github.com/channelsync/inventory-service/internal/mappings"
	"github.com/channelsync/inventory-service/internal/metrics"
	"github.com/channelsync/inventory-service/internal/types"
)

// RowStore is the slice of batch persistence the rematch engine needs
type RowStore interface {
	GetBatch(ctx context.Context, id string) (*database.Batch, error)
	RowMatchStates(ctx context.Context, batchID string, normalizedSku string) ([]database.RowMatchState, error)
	ApplyRowMatches(ctx context.Context, updates []database.RowMatchUpdate) error
	RecountBatch(ctx context.Context, batchID string) (database.BatchCounts, error)
}

// MappingSource provides the active mapping snapshot rows are rematched against
type MappingSource interface {
	ActiveSkuMap(ctx context.Context, channel, marketplaceID string) (map[string]string, error)
}

// Result summarizes one rematch run
type Result struct {
	BatchID      string               `json:"batchId"`
	RowsExamined int                  `json:"rowsExamined"`
	RowsChanged  int                  `json:"rowsChanged"`
	Counts       database.BatchCounts `json:"counts"`
}

// Engine recomputes row classifications. Running it twice against the same
// mappings changes nothing the second time; classification is a pure function
// of normalized SKU and the mapping snapshot.
type Engine struct {
	rows     RowStore
	mappings MappingSource
}

// NewEngine creates a rematch engine
func NewEngine(rows RowStore, mappings MappingSource) *Engine {
	return &Engine{rows: rows, mappings: mappings}
}

// RematchExternalSku reclassifies only the rows of one batch whose normalized
// SKU equals the given external SKU's normalization. This is the fast path
// after an operator maps a single SKU; the rest of the batch is untouched.
func (e *Engine) RematchExternalSku(ctx context.Context, batchID, externalSku string) (*Result, error) {
	normalized := mappings.NormalizeExternalSku(externalSku)
	if normalized == "" {
		return nil, fmt.Errorf("external SKU is required")
	}
	return e.run(ctx, batchID, normalized, "sku")
}

// RematchBatch reclassifies every row of a batch
func (e *Engine) RematchBatch(ctx context.Context, batchID string) (*Result, error) {
	return e.run(ctx, batchID, "", "batch")
}

func (e *Engine) run(ctx context.Context, batchID, normalizedSku, scope string) (*Result, error) {
	start := time.Now()

	batch, err := e.rows.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != string(types.BatchCompleted) {
		return nil, fmt.Errorf("batch %s has no ingested rows to rematch (status %s)", batchID, batch.Status)
	}

	skuMap, err := e.mappings.ActiveSkuMap(ctx, batch.Channel, batch.MarketplaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping snapshot: %w", err)
	}

	states, err := e.rows.RowMatchStates(ctx, batchID, normalizedSku)
	if err != nil {
		return nil, err
	}

	updates := make([]database.RowMatchUpdate, 0)
	for _, state := range states {
		status, variantID := ingest.MatchRow(state.NormalizedSku, skuMap)
		if string(status) == state.MatchStatus && equalPtr(variantID, state.VariantID) {
			continue
		}
		updates = append(updates, database.RowMatchUpdate{
			ID:          state.ID,
			MatchStatus: string(status),
			VariantID:   variantID,
		})
	}

	if len(updates) > 0 {
		if err := e.rows.ApplyRowMatches(ctx, updates); err != nil {
			return nil, fmt.Errorf("failed to apply rematch updates for batch %s: %w", batchID, err)
		}
	}

	// Counts are always recomputed from the rows, even when nothing changed.
	counts, err := e.rows.RecountBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	metrics.RematchedRows.WithLabelValues(batch.Channel).Add(float64(len(updates)))
	metrics.RematchDuration.WithLabelValues(scope).Observe(time.Since(start).Seconds())

	log.Info().
		Str("batch_id", batchID).
		Str("scope", scope).
		Int("rows_examined", len(states)).
		Int("rows_changed", len(updates)).
		Int("matched", counts.MatchedCount).
		Int("unmatched", counts.UnmatchedCount).
		Msg("Rematch finished")

	return &Result{
		BatchID:      batchID,
		RowsExamined: len(states),
		RowsChanged:  len(updates),
		Counts:       counts,
	}, nil
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
