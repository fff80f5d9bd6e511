package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// one purge at a time across the whole engine, plus a pacing limiter for
// the per-message fallback
type purger struct {
	sem     *semaphore.Weighted
	limiter *rate.Limiter
	sleep   func(time.Duration)
}

func newPurger() *purger {
	return &purger{
		sem:     semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		sleep:   time.Sleep,
	}
}

// purgeMessages removes the given messages from a channel: bulk first, then
// one by one with pacing when bulk is rejected. Missing messages are
// skipped; rate limits back the loop off without aborting it.
func (e *Engine) purgeMessages(ctx context.Context, channelID string, messageIDs []string, reason string) {
	if len(messageIDs) == 0 {
		return
	}

	if err := e.purge.sem.Acquire(ctx, 1); err != nil {
		return
	}
	err := e.Platform.BulkDeleteMessages(ctx, channelID, messageIDs)
	e.purge.sem.Release(1)
	if err == nil {
		purgeMessageCount.WithLabelValues("bulk").Add(float64(len(messageIDs)))
		return
	}
	e.Logger.Debug("bulk delete rejected, falling back to per-message deletes",
		"channel", channelID, "count", len(messageIDs), "reason", reason, "err", err)

	for _, id := range messageIDs {
		if err := e.purge.limiter.Wait(ctx); err != nil {
			return
		}
		err := e.Platform.DeleteMessage(ctx, channelID, id)
		switch {
		case err == nil:
			purgeMessageCount.WithLabelValues("single").Inc()
		case errors.Is(err, ErrNotFound):
			continue
		case errors.Is(err, ErrRateLimited):
			e.purge.sleep(2 * time.Second)
		default:
			e.Logger.Debug("deleting message failed", "channel", channelID, "message", id, "err", err)
		}
	}
}

// purgeTracked purges per-channel groups of tracked messages in the
// background.
func (e *Engine) purgeTracked(byChannel map[string][]string, reason string) {
	for channelID, ids := range byChannel {
		channelID, ids := channelID, ids
		e.Escalator.spawn(func() {
			e.purgeMessages(context.Background(), channelID, ids, reason)
		})
	}
}
