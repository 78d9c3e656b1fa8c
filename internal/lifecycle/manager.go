// Package lifecycle drives a batch through its states: requested, processing
// and exactly one of completed or failed. Terminal states are never left.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/channel"
	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/metrics"
	"github.com/channelsync/inventory-service/internal/storage"
	"github.com/channelsync/inventory-service/internal/types"
)

// BatchStore is the slice of batch persistence the manager needs
type BatchStore interface {
	CreateBatch(ctx context.Context, channel, marketplaceID, snapshotKind string, reportHandle string) (*database.Batch, error)
	GetBatch(ctx context.Context, id string) (*database.Batch, error)
	SetProcessing(ctx context.Context, id string) error
	UpdatePollPayload(ctx context.Context, id string, payload []byte) error
	MarkFailed(ctx context.Context, id string, message string, payload []byte) error
}

// Ingestor lands a completed report's rows and the batch completion
type Ingestor interface {
	IngestBatch(ctx context.Context, batch *database.Batch, rows []types.RawRow, payload []byte) (database.BatchCounts, error)
}

// Manager owns batch state transitions. All status writes to a batch go
// through here or through the ingestor's completing transaction.
type Manager struct {
	batches  BatchStore
	ingestor Ingestor
	reports  channel.ReportAPI
	archive  storage.Storage
}

// NewManager creates a lifecycle manager
func NewManager(batches BatchStore, ingestor Ingestor, reports channel.ReportAPI) *Manager {
	return &Manager{batches: batches, ingestor: ingestor, reports: reports}
}

// SetArchive enables raw payload archiving on terminal polls. Archiving is
// best effort; a storage failure never blocks a batch transition.
func (m *Manager) SetArchive(archive storage.Storage) {
	m.archive = archive
}

func (m *Manager) archivePayload(ctx context.Context, batch *database.Batch, payload []byte) {
	if m.archive == nil || len(payload) == 0 {
		return
	}

	now := time.Now()
	key := storage.BuildPayloadKey(batch.Channel, now, batch.ID)
	meta := &storage.Metadata{
		ContentType: "application/json",
		Channel:     batch.Channel,
		BatchID:     batch.ID,
		FetchedAt:   now,
	}
	if batch.ReportHandle != nil {
		meta.ReportHandle = *batch.ReportHandle
	}
	if err := m.archive.Put(ctx, key, payload, meta); err != nil {
		log.Warn().Err(err).Str("batch_id", batch.ID).Str("key", key).Msg("Failed to archive report payload")
	}
}

// RequestSnapshot asks the channel for a new inventory report and records the
// batch. When the channel rejects the request no batch is created at all;
// there is nothing to poll, so nothing to track.
func (m *Manager) RequestSnapshot(ctx context.Context, channelKey, marketplaceID string, kind types.SnapshotKind) (*database.Batch, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("unsupported snapshot kind %q", kind)
	}

	handle, err := m.reports.RequestReport(ctx, channel.ReportParams{
		Channel:       channelKey,
		MarketplaceID: marketplaceID,
		SnapshotKind:  kind,
	})
	if err != nil {
		return nil, fmt.Errorf("channel rejected snapshot request: %w", err)
	}

	batch, err := m.batches.CreateBatch(ctx, channelKey, marketplaceID, string(kind), string(handle))
	if err != nil {
		return nil, err
	}

	metrics.BatchesRequested.WithLabelValues(channelKey).Inc()
	log.Info().
		Str("batch_id", batch.ID).
		Str("channel", channelKey).
		Str("marketplace_id", marketplaceID).
		Str("snapshot_kind", string(kind)).
		Str("report_handle", string(handle)).
		Msg("Snapshot requested")

	return batch, nil
}

// PollOnce observes the external report once and advances the batch if the
// observation warrants it. On a terminal batch this answers from stored state
// without touching the channel, so polling a finished batch is always safe.
// A transport failure is returned as an error and leaves the batch untouched;
// the batch fails only when the external job reports failure or when a
// downloaded report cannot be ingested.
func (m *Manager) PollOnce(ctx context.Context, batchID string) (*types.PollResult, error) {
	batch, err := m.batches.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if types.BatchStatus(batch.Status).IsTerminal() {
		return storedResult(batch), nil
	}
	if batch.ReportHandle == nil || *batch.ReportHandle == "" {
		return nil, fmt.Errorf("batch %s has no report handle to poll", batchID)
	}

	status, err := m.reports.FetchReportStatus(ctx, channel.ReportHandle(*batch.ReportHandle))
	if err != nil {
		metrics.PollsPerformed.WithLabelValues(batch.Channel, "transport_error").Inc()
		return nil, fmt.Errorf("poll of batch %s failed: %w", batchID, err)
	}

	switch status.State {
	case channel.ReportProcessing:
		metrics.PollsPerformed.WithLabelValues(batch.Channel, "processing").Inc()
		if batch.Status == string(types.BatchRequested) {
			if err := m.batches.SetProcessing(ctx, batchID); err != nil {
				return nil, err
			}
		}
		if err := m.batches.UpdatePollPayload(ctx, batchID, status.RawPayload); err != nil {
			return nil, err
		}
		return &types.PollResult{
			BatchID: batchID,
			Status:  types.BatchProcessing,
			Message: status.Message,
		}, nil

	case channel.ReportCompleted:
		counts, err := m.ingestor.IngestBatch(ctx, batch, status.Rows, status.RawPayload)
		if err != nil {
			// The download succeeded, so this failure is terminal. The raw
			// payload is kept with the batch for offline diagnosis.
			ingestErr := fmt.Errorf("ingestion of batch %s failed: %w", batchID, err)
			if markErr := m.batches.MarkFailed(ctx, batchID, ingestErr.Error(), status.RawPayload); markErr != nil {
				return nil, markErr
			}
			m.archivePayload(ctx, batch, status.RawPayload)
			metrics.BatchesCompleted.WithLabelValues(batch.Channel, string(types.BatchFailed)).Inc()
			log.Error().
				Err(err).
				Str("batch_id", batchID).
				Str("channel", batch.Channel).
				Msg("Ingestion failed after successful download")
			return nil, ingestErr
		}
		m.archivePayload(ctx, batch, status.RawPayload)
		metrics.PollsPerformed.WithLabelValues(batch.Channel, "completed").Inc()
		metrics.BatchesCompleted.WithLabelValues(batch.Channel, string(types.BatchCompleted)).Inc()
		return &types.PollResult{
			BatchID:        batchID,
			Status:         types.BatchCompleted,
			RowCount:       counts.RowCount,
			MatchedCount:   counts.MatchedCount,
			UnmatchedCount: counts.UnmatchedCount,
		}, nil

	case channel.ReportFailed:
		// The channel's failure message is stored verbatim; it is the only
		// diagnostic an operator will ever get for this batch.
		if err := m.batches.MarkFailed(ctx, batchID, status.Message, status.RawPayload); err != nil {
			return nil, err
		}
		m.archivePayload(ctx, batch, status.RawPayload)
		metrics.PollsPerformed.WithLabelValues(batch.Channel, "failed").Inc()
		metrics.BatchesCompleted.WithLabelValues(batch.Channel, string(types.BatchFailed)).Inc()
		log.Warn().
			Str("batch_id", batchID).
			Str("channel", batch.Channel).
			Str("message", status.Message).
			Msg("External report failed")
		return &types.PollResult{
			BatchID: batchID,
			Status:  types.BatchFailed,
			Message: status.Message,
		}, nil
	}

	return nil, fmt.Errorf("unexpected report state %q for batch %s", status.State, batchID)
}

func storedResult(batch *database.Batch) *types.PollResult {
	result := &types.PollResult{
		BatchID:        batch.ID,
		Status:         types.BatchStatus(batch.Status),
		RowCount:       batch.RowCount,
		MatchedCount:   batch.MatchedCount,
		UnmatchedCount: batch.UnmatchedCount,
	}
	if batch.LastError != nil {
		result.Message = *batch.LastError
	}
	return result
}
