package engine

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors the platform adapter maps API failures onto, so the engine
// can branch without knowing transport details.
var (
	ErrNotFound    = errors.New("platform object not found")
	ErrRateLimited = errors.New("platform rate limited")
	ErrForbidden   = errors.New("missing platform permissions")
)

// AuditActor is a user pulled out of the guild audit log.
type AuditActor struct {
	ID       string
	Username string
	Bot      bool
}

// Platform is everything the engine does to the chat platform. The discord
// package implements it; tests substitute a recorder.
type Platform interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// BulkDeleteMessages removes up to 100 recent messages in one call.
	BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	DeleteThread(ctx context.Context, threadID, reason string) error
	DeleteChannel(ctx context.Context, channelID, reason string) error

	TimeoutUser(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	BanUser(ctx context.Context, guildID, userID string, deleteMessageSeconds int, reason string) error

	// SendUserNotice DMs the user; SendChannelNotice posts in the channel
	// where the violation happened, mentioning the user.
	SendUserNotice(ctx context.Context, userID, title, body string) error
	SendChannelNotice(ctx context.Context, channelID, userID, title, body string) error
	SendAuditLog(ctx context.Context, title, body string) error

	// SetGuildLockdown pauses invites and DMs until the given time.
	SetGuildLockdown(ctx context.Context, guildID string, until time.Time) error

	// ChannelDeleteActors resolves who deleted a channel from the audit log.
	ChannelDeleteActors(ctx context.Context, guildID, channelID string) ([]AuditActor, error)
	// BotAdder resolves who recently added the given bot to the guild.
	BotAdder(ctx context.Context, guildID, botID string) (*AuditActor, error)

	ReadAttachment(ctx context.Context, url string, limit int64) ([]byte, error)

	// slowmode surface, shared with slowmode.ChannelEditor
	SlowmodeDelay(channelID string) (int, bool)
	SetSlowmodeDelay(ctx context.Context, channelID string, seconds int, reason string) error
}
