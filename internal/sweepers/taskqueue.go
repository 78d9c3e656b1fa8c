// Package sweepers contains periodic maintenance loops.
package sweepers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/channelsync/inventory-service/internal/taskqueue"
)

// PollTaskSweeper periodically releases poll tasks stuck in claimed state,
// left behind by workers that died mid-poll
type PollTaskSweeper struct {
	queue       *taskqueue.Queue
	logger      *zerolog.Logger
	interval    time.Duration
	maxClaimAge time.Duration
	stopChan    chan struct{}
}

// NewPollTaskSweeper creates a sweeper for poll queue maintenance
func NewPollTaskSweeper(queue *taskqueue.Queue, logger *zerolog.Logger, interval, maxClaimAge time.Duration) *PollTaskSweeper {
	return &PollTaskSweeper{
		queue:       queue,
		logger:      logger,
		interval:    interval,
		maxClaimAge: maxClaimAge,
		stopChan:    make(chan struct{}),
	}
}

// Start begins the periodic recovery sweep
func (s *PollTaskSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("max_claim_age", s.maxClaimAge).
		Msg("Starting poll task sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Poll task sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Poll task sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if err := s.ReleaseStaleClaims(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to release stale poll tasks")
			}
		}
	}
}

// Stop signals the sweeper to stop
func (s *PollTaskSweeper) Stop() {
	close(s.stopChan)
}

// ReleaseStaleClaims returns long-claimed tasks to the pending pool
func (s *PollTaskSweeper) ReleaseStaleClaims(ctx context.Context) error {
	released, err := s.queue.ReleaseStale(ctx, s.maxClaimAge)
	if err != nil {
		return err
	}
	if released > 0 {
		s.logger.Info().
			Int("released", released).
			Msg("Released stale poll task claims")
	}
	return nil
}
