// Package workers runs background polling of requested batches so callers do
// not have to hold a connection open while a report generates.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/database"
	"github.com/channelsync/inventory-service/internal/lifecycle"
	"github.com/channelsync/inventory-service/internal/metrics"
)

type PollWorkerConfig struct {
	WorkerID   string
	NumWorkers int
	MaxTasks   int
	PollDelay  time.Duration
}

// TaskQueue is the slice of the poll queue the worker drives
type TaskQueue interface {
	ClaimDue(ctx context.Context, workerID string, maxTasks int) ([]database.PollTask, error)
	Reschedule(ctx context.Context, taskID string, nextPollAt time.Time, message string) error
	Complete(ctx context.Context, taskID string, message string) error
}

// PollWorker claims due poll tasks and drives each one poll step forward.
// The task's own next_poll_at carries the escalating backoff between polls;
// PollDelay only paces how often the queue is checked for due work.
type PollWorker struct {
	queue    TaskQueue
	manager  *lifecycle.Manager
	config   PollWorkerConfig
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func New(queue TaskQueue, manager *lifecycle.Manager, config PollWorkerConfig) *PollWorker {
	return &PollWorker{
		queue:    queue,
		manager:  manager,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

func (w *PollWorker) Start(ctx context.Context) {
	log.Info().
		Str("component", "poll_worker").
		Str("worker_id", w.config.WorkerID).
		Int("num_workers", w.config.NumWorkers).
		Msg("Starting poll workers")

	// The WaitGroup tracks the loops, not individual tasks; adding per task
	// would race Stop's Wait when the counter passes through zero.
	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go func(workerNum int) {
			defer w.wg.Done()
			w.workerLoop(ctx, workerNum)
		}(i)
	}
}

func (w *PollWorker) Stop() {
	close(w.stopChan)
	log.Info().
		Str("component", "poll_worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Poll worker stopping, waiting for in-flight polls")
	w.wg.Wait()
	log.Info().
		Str("component", "poll_worker").
		Str("worker_id", w.config.WorkerID).
		Msg("Poll worker stopped")
}

func (w *PollWorker) workerLoop(ctx context.Context, workerNum int) {
	workerID := fmt.Sprintf("%s-%d", w.config.WorkerID, workerNum)

	ticker := time.NewTicker(w.config.PollDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.processDueTasks(ctx, workerID)
		}
	}
}

func (w *PollWorker) processDueTasks(ctx context.Context, workerID string) {
	tasks, err := w.queue.ClaimDue(ctx, workerID, w.config.MaxTasks)
	if err != nil {
		log.Error().Err(err).Msg("Failed to claim poll tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	metrics.PollTasksInFlight.Add(float64(len(tasks)))
	defer metrics.PollTasksInFlight.Sub(float64(len(tasks)))

	for _, task := range tasks {
		w.processTask(ctx, workerID, task)
	}
}

func (w *PollWorker) processTask(ctx context.Context, workerID string, task database.PollTask) {
	result, err := w.manager.PollOnce(ctx, task.BatchID)
	if err != nil {
		// Transport trouble. The batch is untouched; try again later.
		w.rescheduleOrGiveUp(ctx, task, err.Error())
		log.Warn().
			Err(err).
			Str("worker_id", workerID).
			Str("task_id", task.ID).
			Str("batch_id", task.BatchID).
			Int("attempt", task.Attempt+1).
			Msg("Background poll failed, rescheduling")
		return
	}

	if result.Status.IsTerminal() {
		if err := w.queue.Complete(ctx, task.ID, string(result.Status)); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to complete poll task")
		}
		log.Info().
			Str("worker_id", workerID).
			Str("task_id", task.ID).
			Str("batch_id", task.BatchID).
			Str("status", string(result.Status)).
			Int("rows", result.RowCount).
			Msg("Background polling finished")
		return
	}

	w.rescheduleOrGiveUp(ctx, task, result.Message)
}

// rescheduleOrGiveUp schedules the next poll with escalating backoff, or
// closes the task once its deadline has passed. Giving up never touches the
// batch; it stays in processing and a new task can pick it up again.
func (w *PollWorker) rescheduleOrGiveUp(ctx context.Context, task database.PollTask, message string) {
	next := time.Now().Add(lifecycle.Delay(task.Attempt + 1))
	if next.After(task.Deadline) {
		if err := w.queue.Complete(ctx, task.ID, "gave up, batch still processing"); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to close expired poll task")
			return
		}
		log.Info().
			Str("task_id", task.ID).
			Str("batch_id", task.BatchID).
			Int("attempts", task.Attempt+1).
			Msg("Poll task deadline reached, batch still processing")
		return
	}
	if err := w.queue.Reschedule(ctx, task.ID, next, message); err != nil {
		log.Error().Err(err).Str("task_id", task.ID).Msg("Failed to reschedule poll task")
	}
}
