package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/metrics"
	"github.com/channelsync/inventory-service/internal/types"
)

// MappingSnapshotSource provides the active mapping snapshot a batch is
// classified against
type MappingSnapshotSource interface {
	ActiveSkuMap(ctx context.Context, channel, marketplaceID string) (map[string]string, error)
}

// RowWriter persists a batch's rows and its completion atomically
type RowWriter interface {
	InsertRowsAndComplete(ctx context.Context, batchID string, rows []database.InventoryRow, payload []byte) (database.BatchCounts, error)
}

// Service runs the ingestion step for a completed external report
type Service struct {
	mappings MappingSnapshotSource
	rows     RowWriter
}

// NewService creates an ingestion service
func NewService(mappings MappingSnapshotSource, rows RowWriter) *Service {
	return &Service{mappings: mappings, rows: rows}
}

// IngestBatch classifies every downloaded row against one consistent mapping
// snapshot and lands rows, counts and the completed status in a single
// transaction. Malformed rows are stored flagged, never dropped; only the
// database write can fail the ingestion.
func (s *Service) IngestBatch(ctx context.Context, batch *database.Batch, rawRows []types.RawRow, payload []byte) (database.BatchCounts, error) {
	start := time.Now()

	skuMap, err := s.mappings.ActiveSkuMap(ctx, batch.Channel, batch.MarketplaceID)
	if err != nil {
		return database.BatchCounts{}, fmt.Errorf("failed to load mapping snapshot: %w", err)
	}

	kind := types.SnapshotKind(batch.SnapshotKind)
	inventoryRows := make([]database.InventoryRow, 0, len(rawRows))
	flagged := 0
	for _, raw := range rawRows {
		row := BuildRow(raw, kind, skuMap)
		row.BatchID = batch.ID
		if row.HasErrors() {
			flagged++
		}
		inventoryRows = append(inventoryRows, row)
	}

	counts, err := s.rows.InsertRowsAndComplete(ctx, batch.ID, inventoryRows, payload)
	if err != nil {
		return counts, err
	}

	metrics.RowsIngested.WithLabelValues(batch.Channel).Add(float64(counts.RowCount))
	metrics.IngestDuration.WithLabelValues(batch.Channel).Observe(time.Since(start).Seconds())

	log.Info().
		Str("batch_id", batch.ID).
		Str("channel", batch.Channel).
		Str("marketplace_id", batch.MarketplaceID).
		Int("rows", counts.RowCount).
		Int("matched", counts.MatchedCount).
		Int("unmatched", counts.UnmatchedCount).
		Int("flagged", flagged).
		Dur("duration", time.Since(start)).
		Msg("Batch ingested")

	return counts, nil
}
