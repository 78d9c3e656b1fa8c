// Package taskqueue is a Postgres-backed queue of scheduled batch polls.
// Workers claim due tasks with SKIP LOCKED so multiple instances can poll
// concurrently without ever double-claiming a batch.
package taskqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/pkg/cuid2"
)

type Queue struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

const taskColumns = `
	id, batch_id, status, attempt, next_poll_at, deadline,
	claimed_by, claimed_at, last_message, created_at, updated_at
`

func scanTask(row pgx.Row) (*database.PollTask, error) {
	var t database.PollTask
	err := row.Scan(
		&t.ID, &t.BatchID, &t.Status, &t.Attempt, &t.NextPollAt, &t.Deadline,
		&t.ClaimedBy, &t.ClaimedAt, &t.LastMessage, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// SchedulePoll enqueues background polling for a batch. At most one open task
// exists per batch; scheduling an already-tracked batch returns the existing
// task, so the request endpoint can always call this unconditionally.
func (q *Queue) SchedulePoll(ctx context.Context, batchID string, firstPollAt, deadline time.Time) (*database.PollTask, error) {
	id := cuid2.GeneratePrefixedId("task", cuid2.PrefixedIdOptions{TimeSortable: true})

	tag, err := q.pool.Exec(ctx, `
		INSERT INTO poll_tasks (id, batch_id, status, attempt, next_poll_at, deadline, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, $3, $4, NOW(), NOW())
		ON CONFLICT (batch_id) WHERE status <> 'done' DO NOTHING
	`, id, batchID, firstPollAt, deadline)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule poll for batch %s: %w", batchID, err)
	}

	if tag.RowsAffected() == 0 {
		return q.openTaskForBatch(ctx, batchID)
	}
	return q.GetTask(ctx, id)
}

// GetTask returns one task by id
func (q *Queue) GetTask(ctx context.Context, id string) (*database.PollTask, error) {
	task, err := scanTask(q.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM poll_tasks WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to load poll task %s: %w", id, err)
	}
	return task, nil
}

func (q *Queue) openTaskForBatch(ctx context.Context, batchID string) (*database.PollTask, error) {
	task, err := scanTask(q.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM poll_tasks
		WHERE batch_id = $1 AND status <> 'done'
	`, batchID))
	if err != nil {
		return nil, fmt.Errorf("failed to load open poll task for batch %s: %w", batchID, err)
	}
	return task, nil
}

// ClaimDue atomically claims up to maxTasks due pending tasks for a worker
func (q *Queue) ClaimDue(ctx context.Context, workerID string, maxTasks int) ([]database.PollTask, error) {
	if maxTasks <= 0 {
		maxTasks = 1
	}

	rows, err := q.pool.Query(ctx, `
		UPDATE poll_tasks
		SET status = 'claimed', claimed_by = $1, claimed_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM poll_tasks
			WHERE status = 'pending' AND next_poll_at <= NOW()
			ORDER BY next_poll_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+taskColumns,
		workerID, maxTasks)
	if err != nil {
		return nil, fmt.Errorf("failed to claim poll tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]database.PollTask, 0, maxTasks)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Reschedule returns a claimed task to pending for another poll later
func (q *Queue) Reschedule(ctx context.Context, taskID string, nextPollAt time.Time, message string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE poll_tasks
		SET status = 'pending', attempt = attempt + 1, next_poll_at = $2,
		    last_message = NULLIF($3, ''), claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, taskID, nextPollAt, message)
	if err != nil {
		return fmt.Errorf("failed to reschedule poll task %s: %w", taskID, err)
	}
	return nil
}

// Complete marks a task done. Done tasks are retained until cleanup.
func (q *Queue) Complete(ctx context.Context, taskID string, message string) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE poll_tasks
		SET status = 'done', last_message = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $1
	`, taskID, message)
	if err != nil {
		return fmt.Errorf("failed to complete poll task %s: %w", taskID, err)
	}
	return nil
}

// ReleaseStale returns tasks claimed longer than maxClaimAge ago to pending.
// Covers workers that died mid-poll; the poll itself is idempotent so a
// re-poll of the same batch is harmless.
func (q *Queue) ReleaseStale(ctx context.Context, maxClaimAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxClaimAge)
	tag, err := q.pool.Exec(ctx, `
		UPDATE poll_tasks
		SET status = 'pending', claimed_by = NULL, claimed_at = NULL, updated_at = NOW()
		WHERE status = 'claimed' AND claimed_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale poll tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CleanupFinished deletes done tasks older than the retention window
func (q *Queue) CleanupFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	tag, err := q.pool.Exec(ctx, `
		DELETE FROM poll_tasks
		WHERE status = 'done' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up finished poll tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
