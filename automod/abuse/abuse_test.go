package abuse

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-bot/warden/automod/keyedlock"
	"github.com/warden-bot/warden/automod/linkdetect"
)

func locks() *keyedlock.Manager {
	return keyedlock.New(40 * time.Minute)
}

func TestSameTargetMentionSpam(t *testing.T) {
	d := NewMentionDetector(slog.Default(), locks())

	for i := 0; i < 9; i++ {
		_, ok := d.Check("u1", MentionMessage{
			ID: fmt.Sprintf("m%d", i), ChannelID: "c1", UserMentions: []string{"victim"},
		})
		require.False(t, ok, "fired early at message %d", i)
	}
	msgs, ok := d.Check("u1", MentionMessage{
		ID: "m9", ChannelID: "c1", UserMentions: []string{"victim"},
	})
	require.True(t, ok)
	assert.Len(t, msgs, 10)
}

func TestDistinctTargetMentionSpam(t *testing.T) {
	d := NewMentionDetector(slog.Default(), locks())

	var fired bool
	for i := 0; i < 5; i++ {
		_, fired = d.Check("u1", MentionMessage{
			ID: fmt.Sprintf("m%d", i), ChannelID: "c1",
			UserMentions: []string{fmt.Sprintf("target%d", i)},
		})
	}
	assert.True(t, fired, "five distinct targets should trip the limit")
}

func TestReplyTargetMentionDoesNotCount(t *testing.T) {
	d := NewMentionDetector(slog.Default(), locks())

	for i := 0; i < 20; i++ {
		_, ok := d.Check("u1", MentionMessage{
			ID: fmt.Sprintf("m%d", i), ChannelID: "c1",
			UserMentions:  []string{"friend"},
			ReplyTargetID: "friend",
		})
		assert.False(t, ok, "replying with a ping is normal conversation")
	}
}

func TestEveryoneAndHereCountAsTargets(t *testing.T) {
	d := NewMentionDetector(slog.Default(), locks())

	var fired bool
	for i := 0; i < 10; i++ {
		_, fired = d.Check("u1", MentionMessage{
			ID: fmt.Sprintf("m%d", i), ChannelID: "c1", Content: "hey @everyone look",
		})
	}
	assert.True(t, fired)
}

func TestRoleMentionsCount(t *testing.T) {
	d := NewMentionDetector(slog.Default(), locks())

	var fired bool
	for i := 0; i < 5; i++ {
		_, fired = d.Check("u1", MentionMessage{
			ID: fmt.Sprintf("m%d", i), ChannelID: "c1",
			RoleMentions: []string{fmt.Sprintf("role%d", i)},
		})
	}
	assert.True(t, fired)
}

func TestThreadCreationFlood(t *testing.T) {
	d := NewThreadDetector(slog.Default(), linkdetect.NewDetector(slog.Default(), nil), locks())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, ok := d.Check(ctx, "u1", fmt.Sprintf("t%d", i), "help with my homework")
		require.False(t, ok, "fired early at thread %d", i)
	}
	res, ok := d.Check(ctx, "u1", "t6", "help with my homework")
	require.True(t, ok)
	assert.Len(t, res.ThreadIDs, 7)
	assert.Empty(t, res.LinkMatch)

	// state dropped, the next thread starts a fresh window
	_, ok = d.Check(ctx, "u1", "t7", "another question")
	assert.False(t, ok)
}

func TestThreadNameWithInviteLink(t *testing.T) {
	d := NewThreadDetector(slog.Default(), linkdetect.NewDetector(slog.Default(), nil), locks())

	res, ok := d.Check(context.Background(), "u1", "t1", "join discord.gg/evil123 now")
	require.True(t, ok)
	assert.NotEmpty(t, res.LinkMatch)
	assert.Equal(t, []string{"t1"}, res.ThreadIDs)
}

func TestAttachmentFlood(t *testing.T) {
	d := NewAttachmentDetector(slog.Default(), locks())

	_, ok := d.Check("u1", AttachmentMessage{ID: "m1", ChannelID: "c1", Attachments: 1})
	assert.False(t, ok)
	_, ok = d.Check("u1", AttachmentMessage{ID: "m2", ChannelID: "c1", Attachments: 1})
	assert.False(t, ok)
	msgs, ok := d.Check("u1", AttachmentMessage{ID: "m3", ChannelID: "c2", Attachments: 1})
	require.True(t, ok)
	assert.Len(t, msgs, 3)
}

func TestAttachmentBurstInOneMessage(t *testing.T) {
	d := NewAttachmentDetector(slog.Default(), locks())

	_, ok := d.Check("u1", AttachmentMessage{ID: "m1", ChannelID: "c1", Attachments: 3})
	assert.True(t, ok)
}

func TestMessagesWithoutAttachmentsAreTrackedButFree(t *testing.T) {
	d := NewAttachmentDetector(slog.Default(), locks())

	for i := 0; i < 10; i++ {
		msgs, ok := d.Check("u1", AttachmentMessage{ID: fmt.Sprintf("m%d", i), ChannelID: "c1"})
		assert.False(t, ok)
		assert.Len(t, msgs, i+1)
	}
}

func TestDetectorResets(t *testing.T) {
	md := NewMentionDetector(slog.Default(), locks())
	for i := 0; i < 9; i++ {
		md.Check("u1", MentionMessage{ID: fmt.Sprintf("m%d", i), UserMentions: []string{"victim"}})
	}
	md.Reset("u1")
	_, ok := md.Check("u1", MentionMessage{ID: "m9", UserMentions: []string{"victim"}})
	assert.False(t, ok)

	ad := NewAttachmentDetector(slog.Default(), locks())
	ad.Check("u1", AttachmentMessage{ID: "m1", Attachments: 2})
	ad.Reset("u1")
	_, ok = ad.Check("u1", AttachmentMessage{ID: "m2", Attachments: 1})
	assert.False(t, ok)
}
