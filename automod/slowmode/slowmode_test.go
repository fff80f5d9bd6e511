package slowmode

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEditor struct {
	delays map[string]int
	sets   int
}

func (f *fakeEditor) SlowmodeDelay(channelID string) (int, bool) {
	d, ok := f.delays[channelID]
	return d, ok
}

func (f *fakeEditor) SetSlowmodeDelay(ctx context.Context, channelID string, seconds int, reason string) error {
	f.delays[channelID] = seconds
	f.sets++
	return nil
}

func testController() (*Controller, *fakeEditor, *time.Time) {
	ed := &fakeEditor{delays: map[string]int{"c1": 0}}
	c := NewController(slog.Default(), ed)
	now := time.Now()
	c.now = func() time.Time { return now }
	return c, ed, &now
}

func burst(c *Controller, channelID string, n int) {
	for i := 0; i < n; i++ {
		c.RecordMessage(channelID)
	}
}

func TestEscalationTopTier(t *testing.T) {
	c, ed, _ := testController()
	burst(c, "c1", 45)
	c.evaluate(context.Background())
	assert.Equal(t, 30, ed.delays["c1"])
}

func TestEscalationLowTier(t *testing.T) {
	c, ed, _ := testController()
	burst(c, "c1", 16)
	c.evaluate(context.Background())
	assert.Equal(t, 3, ed.delays["c1"])
}

func TestBelowThresholdNoChange(t *testing.T) {
	c, ed, _ := testController()
	burst(c, "c1", 10)
	c.evaluate(context.Background())
	assert.Equal(t, 0, ed.delays["c1"])
	assert.Zero(t, ed.sets)
}

func TestDeescalationStepsOneTierAfterHold(t *testing.T) {
	c, ed, now := testController()
	ctx := context.Background()

	burst(c, "c1", 45)
	c.evaluate(ctx)
	require.Equal(t, 30, ed.delays["c1"])

	// activity dies down but the hold has not elapsed
	*now = now.Add(300 * time.Second)
	c.evaluate(ctx)
	assert.Equal(t, 30, ed.delays["c1"])

	// past the 600s hold: one tier down, not straight to zero
	*now = now.Add(301 * time.Second)
	c.evaluate(ctx)
	assert.Equal(t, 15, ed.delays["c1"])

	*now = now.Add(301 * time.Second)
	c.evaluate(ctx)
	assert.Equal(t, 3, ed.delays["c1"])

	*now = now.Add(121 * time.Second)
	c.evaluate(ctx)
	assert.Equal(t, 0, ed.delays["c1"])
}

func TestRenewedBurstResetsHold(t *testing.T) {
	c, ed, now := testController()
	ctx := context.Background()

	burst(c, "c1", 45)
	c.evaluate(ctx)
	require.Equal(t, 30, ed.delays["c1"])

	*now = now.Add(599 * time.Second)
	burst(c, "c1", 45)
	c.evaluate(ctx)
	assert.Equal(t, 30, ed.delays["c1"])

	// the channel is still busy past the hold, so no step down
	*now = now.Add(2 * time.Second)
	c.evaluate(ctx)
	assert.Equal(t, 30, ed.delays["c1"])
}

func TestModeratorOverrideLeftAlone(t *testing.T) {
	c, ed, now := testController()
	ctx := context.Background()

	burst(c, "c1", 45)
	c.evaluate(ctx)
	require.Equal(t, 30, ed.delays["c1"])

	// a moderator raises the delay by hand; the controller restamps and
	// does not fight it
	ed.delays["c1"] = 60
	*now = now.Add(700 * time.Second)
	c.evaluate(ctx)
	assert.Equal(t, 60, ed.delays["c1"])
}

func TestPreexistingDelayUntouched(t *testing.T) {
	c, ed, _ := testController()
	ed.delays["c1"] = 10

	burst(c, "c1", 1)
	c.evaluate(context.Background())
	assert.Equal(t, 10, ed.delays["c1"])
	assert.Zero(t, ed.sets)
}

func TestIdleChannelDropped(t *testing.T) {
	c, _, now := testController()
	ctx := context.Background()

	burst(c, "c1", 5)
	*now = now.Add(30 * time.Second)
	c.evaluate(ctx)

	c.mu.Lock()
	_, tracked := c.activity["c1"]
	c.mu.Unlock()
	assert.False(t, tracked)
}

func TestUnknownChannelSkipped(t *testing.T) {
	c, ed, _ := testController()
	burst(c, "c2", 50)
	c.evaluate(context.Background())
	assert.Zero(t, ed.sets)
}
