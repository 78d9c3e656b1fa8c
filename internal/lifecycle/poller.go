package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/channelsync/inventory-service/internal/types"
)

// pollSchedule is the escalating delay before each successive poll. Past the
// end of the schedule the last value holds; external report jobs routinely
// take minutes, so there is no point hammering the status endpoint.
var pollSchedule = []time.Duration{
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	15 * time.Second,
	20 * time.Second,
}

// DefaultMaxWallClock bounds a single poll loop invocation. A loop that gives
// up does not fail the batch; the batch stays in processing and can be polled
// again later.
const DefaultMaxWallClock = 10 * time.Minute

// Delay returns the wait before poll attempt n (zero-based)
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(pollSchedule) {
		return pollSchedule[len(pollSchedule)-1]
	}
	return pollSchedule[attempt]
}

// RunPollLoop polls a batch until it reaches a terminal state or maxWallClock
// elapses. Transport errors are tolerated and polling continues; they only
// surface if the loop's budget runs out without a single successful poll.
// When the budget runs out the last known result is returned with the batch
// legitimately still in processing.
func (m *Manager) RunPollLoop(ctx context.Context, batchID string, maxWallClock time.Duration) (*types.PollResult, error) {
	if maxWallClock <= 0 {
		maxWallClock = DefaultMaxWallClock
	}
	deadline := time.Now().Add(maxWallClock)

	var last *types.PollResult
	var lastErr error

	for attempt := 0; ; attempt++ {
		wait := Delay(attempt)
		if time.Now().Add(wait).After(deadline) {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return last, ctx.Err()
		case <-timer.C:
		}

		result, err := m.PollOnce(ctx, batchID)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			lastErr = err
			log.Warn().
				Err(err).
				Str("batch_id", batchID).
				Int("attempt", attempt+1).
				Msg("Poll attempt failed, will retry")
			continue
		}

		last = result
		lastErr = nil
		if result.Status.IsTerminal() {
			return result, nil
		}
	}

	if last == nil {
		return nil, lastErr
	}
	log.Info().
		Str("batch_id", batchID).
		Dur("max_wall_clock", maxWallClock).
		Msg("Poll loop budget exhausted, batch still processing")
	return last, nil
}
