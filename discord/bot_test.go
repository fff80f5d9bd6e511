package discord

import (
	"errors"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-bot/warden/automod/engine"
)

func bareSession() *discordgo.Session {
	return &discordgo.Session{State: discordgo.NewState()}
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))

	unknownMsg := &discordgo.RESTError{
		Message: &discordgo.APIErrorMessage{Code: discordgo.ErrCodeUnknownMessage, Message: "Unknown Message"},
	}
	assert.ErrorIs(t, mapErr(unknownMsg), engine.ErrNotFound)

	notFound := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusNotFound}}
	assert.ErrorIs(t, mapErr(notFound), engine.ErrNotFound)

	limited := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}
	assert.ErrorIs(t, mapErr(limited), engine.ErrRateLimited)

	forbidden := &discordgo.RESTError{Response: &http.Response{StatusCode: http.StatusForbidden}}
	assert.ErrorIs(t, mapErr(forbidden), engine.ErrForbidden)

	plain := errors.New("dial timeout")
	assert.Equal(t, plain, mapErr(plain))
}

func TestChunkIDs(t *testing.T) {
	ids := make([]string, 250)
	for i := range ids {
		ids[i] = "m"
	}
	chunks := chunkIDs(ids, 100)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)

	assert.Len(t, chunkIDs([]string{"a"}, 100), 1)
	assert.Empty(t, chunkIDs(nil, 100))
}

func TestBuildMessageEvent(t *testing.T) {
	bot := NewBot(bareSession(), nil, nil, nil)

	msg := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Type:      discordgo.MessageTypeDefault,
		Author:    &discordgo.User{ID: "u1", Username: "spammer"},
		Content:   "hello",
		Mentions:  []*discordgo.User{{ID: "v1"}, {ID: "v2"}},
		MentionRoles: []string{
			"r1",
		},
		ReferencedMessage: &discordgo.Message{Author: &discordgo.User{ID: "v1"}},
		Attachments: []*discordgo.MessageAttachment{
			{Filename: "notes.txt", URL: "https://cdn.example/notes.txt", Size: 12, ContentType: "text/plain"},
		},
		Embeds: []*discordgo.MessageEmbed{{Title: "come over", Description: "best server"}},
		Activity: &discordgo.MessageActivity{
			Type:    discordgo.MessageActivityTypeListen,
			PartyID: "spotify:abc",
		},
	}

	evt := bot.buildMessageEvent(bot.Session, msg)
	assert.Equal(t, "g1", evt.GuildID)
	assert.Equal(t, "u1", evt.Author.ID)
	assert.False(t, evt.IsSystem)
	assert.Equal(t, []string{"v1", "v2"}, evt.Mentions)
	assert.Equal(t, []string{"r1"}, evt.RoleMentions)
	assert.Equal(t, "v1", evt.ReplyTargetID)
	require.Len(t, evt.Attachments, 1)
	assert.Equal(t, "text/plain", evt.Attachments[0].ContentType)
	require.Len(t, evt.Embeds, 1)
	assert.Equal(t, "come over", evt.Embeds[0].Title)
	require.NotNil(t, evt.Activity)
	assert.Equal(t, "spotify:abc", evt.Activity.PartyID)
}

func TestBuildMessageEventInteractionAuthor(t *testing.T) {
	bot := NewBot(bareSession(), nil, nil, nil)

	msg := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Author:    &discordgo.User{ID: "app1", Bot: true},
		Interaction: &discordgo.MessageInteraction{
			User: &discordgo.User{ID: "u1", Username: "runner"},
		},
	}

	evt := bot.buildMessageEvent(bot.Session, msg)
	assert.Equal(t, "u1", evt.Author.ID)
	assert.True(t, evt.Author.FromInteraction)
}

func TestBuildMessageEventAutomodSystem(t *testing.T) {
	bot := NewBot(bareSession(), nil, nil, nil)

	msg := &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Type:      messageTypeAutoModerationAction,
		Author:    &discordgo.User{ID: "system", Bot: true},
	}

	evt := bot.buildMessageEvent(bot.Session, msg)
	assert.True(t, evt.IsSystem)
	assert.True(t, evt.IsAutomod)
}

func TestUnchangedEditSkipped(t *testing.T) {
	platform := engine.NewTestPlatform()
	eng := engine.NewTestEngine(platform, nil)
	session := bareSession()
	bot := NewBot(session, eng, nil, nil)

	before := &discordgo.Message{ID: "m1", Content: "join discord.gg/evil123 now"}
	update := &discordgo.MessageUpdate{
		Message:      &discordgo.Message{ID: "m1", GuildID: "guild1", ChannelID: "c1", Author: &discordgo.User{ID: "u1"}, Content: "join discord.gg/evil123 now"},
		BeforeUpdate: before,
	}
	bot.onMessageUpdate(session, update)
	assert.Zero(t, platform.MessageDeleteCount("c1"))
}
