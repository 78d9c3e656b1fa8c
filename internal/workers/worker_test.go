package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/channelsync/inventory-service/internal/channel"
	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/lifecycle"
	"github.com/channelsync/inventory-service/internal/types"
)

type stubQueue struct {
	mu          sync.Mutex
	tasks       []database.PollTask
	rescheduled int
	completed   []string
}

func (q *stubQueue) ClaimDue(ctx context.Context, workerID string, maxTasks int) ([]database.PollTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	claimed := q.tasks
	q.tasks = nil
	return claimed, nil
}

func (q *stubQueue) Reschedule(ctx context.Context, taskID string, nextPollAt time.Time, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rescheduled++
	return nil
}

func (q *stubQueue) Complete(ctx context.Context, taskID string, message string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, taskID)
	return nil
}

type stubBatchStore struct {
	batch *database.Batch
}

func (s *stubBatchStore) CreateBatch(ctx context.Context, channelKey, marketplaceID, snapshotKind, reportHandle string) (*database.Batch, error) {
	return s.batch, nil
}
func (s *stubBatchStore) GetBatch(ctx context.Context, id string) (*database.Batch, error) {
	return s.batch, nil
}
func (s *stubBatchStore) SetProcessing(ctx context.Context, id string) error { return nil }
func (s *stubBatchStore) UpdatePollPayload(ctx context.Context, id string, payload []byte) error {
	return nil
}
func (s *stubBatchStore) MarkFailed(ctx context.Context, id string, message string, payload []byte) error {
	return nil
}

type stubIngestor struct{}

func (s *stubIngestor) IngestBatch(ctx context.Context, batch *database.Batch, rows []types.RawRow, payload []byte) (database.BatchCounts, error) {
	return database.BatchCounts{}, nil
}

// blockingReportAPI parks FetchReportStatus until release is closed so a test
// can hold a poll in flight deliberately.
type blockingReportAPI struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingReportAPI) RequestReport(ctx context.Context, params channel.ReportParams) (channel.ReportHandle, error) {
	return "rpt_abc", nil
}

func (b *blockingReportAPI) FetchReportStatus(ctx context.Context, handle channel.ReportHandle) (*channel.ReportStatus, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return &channel.ReportStatus{State: channel.ReportProcessing, Message: "still generating"}, nil
}

func TestStopWaitsForInFlightPoll(t *testing.T) {
	store := &stubBatchStore{batch: &database.Batch{
		ID:            "batch_1",
		Channel:       "amazon-sc",
		MarketplaceID: "ATVPDKIKX0DER",
		SnapshotKind:  string(types.KindMarketplaceTotals),
		ReportHandle:  types.StringPtr("rpt_abc"),
		Status:        string(types.BatchProcessing),
	}}
	api := &blockingReportAPI{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	manager := lifecycle.NewManager(store, &stubIngestor{}, api)

	queue := &stubQueue{tasks: []database.PollTask{{
		ID:       "task_1",
		BatchID:  "batch_1",
		Status:   "claimed",
		Deadline: time.Now().Add(time.Hour),
	}}}

	worker := New(queue, manager, PollWorkerConfig{
		WorkerID:   "test",
		NumWorkers: 1,
		MaxTasks:   1,
		PollDelay:  5 * time.Millisecond,
	})
	worker.Start(context.Background())

	<-api.entered

	stopped := make(chan struct{})
	go func() {
		worker.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a poll was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(api.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight poll finished")
	}

	queue.mu.Lock()
	defer queue.mu.Unlock()
	assert.Equal(t, 1, queue.rescheduled, "the in-flight task must be rescheduled before shutdown completes")
}
