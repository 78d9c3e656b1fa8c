package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupQueueTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	if testing.Short() {
		t.Skip("skipping database test in short mode (requires Docker)")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start postgres container")

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	config, err := pgxpool.ParseConfig(connStr)
	require.NoError(t, err)

	pool, err := pgxpool.NewWithConfig(ctx, config)
	require.NoError(t, err, "Failed to create connection pool")

	err = runQueueTestMigrations(ctx, pool)
	require.NoError(t, err, "Failed to run migrations")

	cleanup := func() {
		pool.Close()
		testcontainers.TerminateContainer(container)
	}

	return pool, cleanup
}

func runQueueTestMigrations(ctx context.Context, db *pgxpool.Pool) error {
	schema := `
	CREATE TABLE IF NOT EXISTS poll_tasks (
		id TEXT PRIMARY KEY,
		batch_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempt INTEGER NOT NULL DEFAULT 0,
		next_poll_at TIMESTAMPTZ NOT NULL,
		deadline TIMESTAMPTZ NOT NULL,
		claimed_by TEXT,
		claimed_at TIMESTAMPTZ,
		last_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_poll_tasks_open_batch
		ON poll_tasks(batch_id) WHERE status <> 'done';

	CREATE INDEX IF NOT EXISTS idx_poll_tasks_due
		ON poll_tasks(next_poll_at) WHERE status = 'pending';
	`
	_, err := db.Exec(ctx, schema)
	return err
}

func TestSchedulePollDeduplicatesPerBatch(t *testing.T) {
	pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	queue := New(pool)
	deadline := time.Now().Add(2 * time.Hour)

	first, err := queue.SchedulePoll(ctx, "batch_1", time.Now(), deadline)
	require.NoError(t, err)
	assert.Equal(t, "pending", first.Status)

	// Scheduling the same batch again returns the existing open task.
	second, err := queue.SchedulePoll(ctx, "batch_1", time.Now().Add(time.Minute), deadline)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different batch gets its own task.
	other, err := queue.SchedulePoll(ctx, "batch_2", time.Now(), deadline)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestClaimDueSkipsFutureAndClaimedTasks(t *testing.T) {
	pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	queue := New(pool)
	deadline := time.Now().Add(2 * time.Hour)

	due, err := queue.SchedulePoll(ctx, "batch_due", time.Now().Add(-time.Second), deadline)
	require.NoError(t, err)
	_, err = queue.SchedulePoll(ctx, "batch_future", time.Now().Add(time.Hour), deadline)
	require.NoError(t, err)

	claimed, err := queue.ClaimDue(ctx, "worker-1", 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "only the due task is claimable")
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, "claimed", claimed[0].Status)
	require.NotNil(t, claimed[0].ClaimedBy)
	assert.Equal(t, "worker-1", *claimed[0].ClaimedBy)

	// A second worker sees nothing.
	again, err := queue.ClaimDue(ctx, "worker-2", 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRescheduleReturnsTaskToPending(t *testing.T) {
	pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	queue := New(pool)
	deadline := time.Now().Add(2 * time.Hour)

	_, err := queue.SchedulePoll(ctx, "batch_1", time.Now().Add(-time.Second), deadline)
	require.NoError(t, err)

	claimed, err := queue.ClaimDue(ctx, "worker-1", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	err = queue.Reschedule(ctx, claimed[0].ID, time.Now().Add(-time.Second), "still processing")
	require.NoError(t, err)

	task, err := queue.GetTask(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", task.Status)
	assert.Equal(t, 1, task.Attempt)
	assert.Nil(t, task.ClaimedBy)
	require.NotNil(t, task.LastMessage)
	assert.Equal(t, "still processing", *task.LastMessage)

	reclaimed, err := queue.ClaimDue(ctx, "worker-2", 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)
}

func TestCompleteFreesTheBatchForANewTask(t *testing.T) {
	pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	queue := New(pool)
	deadline := time.Now().Add(2 * time.Hour)

	first, err := queue.SchedulePoll(ctx, "batch_1", time.Now(), deadline)
	require.NoError(t, err)

	require.NoError(t, queue.Complete(ctx, first.ID, "batch completed"))

	done, err := queue.GetTask(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", done.Status)

	// With no open task left, the batch can be scheduled again.
	fresh, err := queue.SchedulePoll(ctx, "batch_1", time.Now(), deadline)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)
}

func TestReleaseStaleClaims(t *testing.T) {
	pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	queue := New(pool)
	deadline := time.Now().Add(2 * time.Hour)

	_, err := queue.SchedulePoll(ctx, "batch_1", time.Now().Add(-time.Second), deadline)
	require.NoError(t, err)

	claimed, err := queue.ClaimDue(ctx, "worker-dead", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// maxClaimAge 0 releases everything currently claimed, the startup
	// recovery path.
	released, err := queue.ReleaseStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	task, err := queue.GetTask(ctx, claimed[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "pending", task.Status)
	assert.Nil(t, task.ClaimedBy)

	// A recent claim survives a sweep with a real age threshold.
	reclaimed, err := queue.ClaimDue(ctx, "worker-live", 1)
	require.NoError(t, err)
	require.Len(t, reclaimed, 1)

	released, err = queue.ReleaseStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, released)
}

func TestCleanupFinishedKeepsOpenTasks(t *testing.T) {
	pool, cleanup := setupQueueTestDB(t)
	defer cleanup()
	ctx := context.Background()

	queue := New(pool)
	deadline := time.Now().Add(2 * time.Hour)

	done, err := queue.SchedulePoll(ctx, "batch_done", time.Now(), deadline)
	require.NoError(t, err)
	require.NoError(t, queue.Complete(ctx, done.ID, ""))

	open, err := queue.SchedulePoll(ctx, "batch_open", time.Now(), deadline)
	require.NoError(t, err)

	deleted, err := queue.CleanupFinished(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = queue.GetTask(ctx, open.ID)
	require.NoError(t, err, "open tasks must survive cleanup")
}
