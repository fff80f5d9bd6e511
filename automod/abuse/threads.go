package abuse

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/warden-bot/warden/automod/keyedlock"
	"github.com/warden-bot/warden/automod/linkdetect"
)

const (
	maxThreads = 7
	threadTTL  = 20 * time.Minute
)

// ThreadResult carries the tracked thread IDs so the caller can delete them,
// and the matched link when the violation came from an advertising thread
// name rather than creation rate.
type ThreadResult struct {
	ThreadIDs []string
	LinkMatch string
}

// ThreadDetector flags users who open threads faster than any honest
// conversation needs, or whose thread names carry invite links.
type ThreadDetector struct {
	Logger *slog.Logger
	Links  *linkdetect.Detector
	locks  *keyedlock.Manager
	state  *expirable.LRU[string, []string]
}

func NewThreadDetector(logger *slog.Logger, links *linkdetect.Detector, locks *keyedlock.Manager) *ThreadDetector {
	return &ThreadDetector{
		Logger: logger,
		Links:  links,
		locks:  locks,
		state:  expirable.NewLRU[string, []string](trackedUsers, nil, threadTTL),
	}
}

// Check records the new thread and reports a violation when the user hit the
// creation cap or the thread name advertises a link. State is dropped on
// violation; the caller deletes the returned threads.
func (d *ThreadDetector) Check(ctx context.Context, userID, threadID, threadName string) (*ThreadResult, bool) {
	release := d.locks.Acquire(userID)
	defer release()

	threads, _ := d.state.Get(userID)
	if len(threads) > maxThreads {
		threads = threads[len(threads)-maxThreads:]
	}
	threads = append(threads, threadID)
	d.state.Add(userID, threads)

	if len(threads) >= maxThreads {
		d.state.Remove(userID)
		return &ThreadResult{ThreadIDs: threads}, true
	}

	if match, ok := d.Links.Detect(ctx, threadName); ok {
		d.state.Remove(userID)
		return &ThreadResult{ThreadIDs: threads, LinkMatch: match}, true
	}

	return nil, false
}

// Reset drops a user's thread state.
func (d *ThreadDetector) Reset(userID string) {
	release := d.locks.Acquire(userID)
	defer release()
	d.state.Remove(userID)
}
