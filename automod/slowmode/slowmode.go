// Package slowmode adapts per-channel slowmode delay to message throughput:
// bursts raise the delay immediately, quiet periods lower it one tier at a
// time after a hold, so a channel never oscillates between settings.
package slowmode

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// level maps a message count inside the window to a slowmode delay and the
// minimum time that delay is held before stepping down.
type level struct {
	threshold int
	delay     int
	hold      time.Duration
}

var levels = []level{
	{threshold: 40, delay: 30, hold: 600 * time.Second},
	{threshold: 30, delay: 15, hold: 300 * time.Second},
	{threshold: 15, delay: 3, hold: 120 * time.Second},
}

const (
	window       = 10 * time.Second
	evalInterval = 5 * time.Second
)

// ChannelEditor is the platform surface the controller acts through.
type ChannelEditor interface {
	SlowmodeDelay(channelID string) (seconds int, ok bool)
	SetSlowmodeDelay(ctx context.Context, channelID string, seconds int, reason string) error
}

type channelState struct {
	delay int
	since time.Time
}

// Controller tracks per-channel activity and drives slowmode transitions.
type Controller struct {
	Logger *slog.Logger
	Editor ChannelEditor

	mu       sync.Mutex
	activity map[string][]time.Time
	state    map[string]channelState

	now func() time.Time
}

func NewController(logger *slog.Logger, editor ChannelEditor) *Controller {
	return &Controller{
		Logger:   logger,
		Editor:   editor,
		activity: make(map[string][]time.Time),
		state:    make(map[string]channelState),
		now:      time.Now,
	}
}

// RecordMessage notes one message in channelID. Cheap; called for every
// message the engine sees.
func (c *Controller) RecordMessage(channelID string) {
	now := c.now()
	c.mu.Lock()
	c.activity[channelID] = append(c.activity[channelID], now)
	c.mu.Unlock()
}

// Run re-evaluates all tracked channels until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(evalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.evaluate(ctx)
		}
	}
}

func (c *Controller) evaluate(ctx context.Context) {
	now := c.now()

	c.mu.Lock()
	counts := make(map[string]int, len(c.activity))
	for id, times := range c.activity {
		i := 0
		for i < len(times) && now.Sub(times[i]) > window {
			i++
		}
		times = times[i:]
		c.activity[id] = times
		counts[id] = len(times)
	}
	c.mu.Unlock()

	for id, count := range counts {
		c.evaluateChannel(ctx, id, count, now)
	}
}

func (c *Controller) evaluateChannel(ctx context.Context, channelID string, count int, now time.Time) {
	current, ok := c.Editor.SlowmodeDelay(channelID)
	if !ok {
		return
	}

	target := 0
	for _, lv := range levels {
		if count >= lv.threshold {
			target = lv.delay
			break
		}
	}

	if target > current {
		err := c.Editor.SetSlowmodeDelay(ctx, channelID, target, "raising slowmode, channel activity spiked")
		if err != nil {
			c.Logger.Warn("raising slowmode failed", "channel", channelID, "err", err)
			return
		}
		c.Logger.Info("slowmode raised", "channel", channelID, "delay", target, "messages", count)
		c.state[channelID] = channelState{delay: target, since: now}
		return
	}

	if current > target {
		last, tracked := c.state[channelID]
		if !tracked {
			// delay set by a moderator or before restart; leave it alone
			return
		}
		if last.delay != current {
			// delay changed outside the controller, restamp and wait
			c.state[channelID] = channelState{delay: current, since: now}
			return
		}
		if now.Sub(last.since) < holdFor(last.delay) {
			return
		}

		next := target
		for _, lv := range levels {
			if lv.delay < last.delay && lv.delay >= target {
				next = lv.delay
				break
			}
		}

		err := c.Editor.SetSlowmodeDelay(ctx, channelID, next, "lowering slowmode, channel activity settled")
		if err != nil {
			c.Logger.Warn("lowering slowmode failed", "channel", channelID, "err", err)
			return
		}
		c.Logger.Info("slowmode lowered", "channel", channelID, "delay", next)
		if next > 0 {
			c.state[channelID] = channelState{delay: next, since: now}
		} else {
			delete(c.state, channelID)
		}
	}

	if count == 0 && current == 0 {
		c.mu.Lock()
		if len(c.activity[channelID]) == 0 {
			delete(c.activity, channelID)
		}
		c.mu.Unlock()
		delete(c.state, channelID)
	}
}

func holdFor(delay int) time.Duration {
	for _, lv := range levels {
		if lv.delay == delay {
			return lv.hold
		}
	}
	return 120 * time.Second
}
