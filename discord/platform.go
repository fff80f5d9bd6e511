// Package discord adapts the moderation engine to Discord through a
// discordgo session: outbound moderation actions on one side, gateway
// events translated into engine events on the other.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/warden-bot/warden/automod/engine"
)

// Platform implements engine.Platform against the Discord REST API.
type Platform struct {
	Session *discordgo.Session
	Logger  *slog.Logger

	// LogChannelID receives the audit notifications.
	LogChannelID string

	http *http.Client
}

func NewPlatform(session *discordgo.Session, logger *slog.Logger, logChannelID string) *Platform {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = nil
	return &Platform{
		Session:      session,
		Logger:       logger,
		LogChannelID: logChannelID,
		http:         rc.StandardClient(),
	}
}

// mapErr folds discordgo failures onto the engine's sentinel errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %s", engine.ErrRateLimited, err.Error())
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownMessage, discordgo.ErrCodeUnknownChannel,
				discordgo.ErrCodeUnknownInvite, discordgo.ErrCodeUnknownUser:
				return fmt.Errorf("%w: %s", engine.ErrNotFound, restErr.Message.Message)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", engine.ErrNotFound, err.Error())
			case http.StatusTooManyRequests:
				return fmt.Errorf("%w: %s", engine.ErrRateLimited, err.Error())
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", engine.ErrForbidden, err.Error())
			}
		}
	}
	return err
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return mapErr(p.Session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// BulkDeleteMessages deletes in chunks of 100, the API's per-call cap.
func (p *Platform) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	for _, chunk := range chunkIDs(messageIDs, 100) {
		if len(chunk) == 1 {
			if err := p.DeleteMessage(ctx, channelID, chunk[0]); err != nil {
				return err
			}
			continue
		}
		if err := mapErr(p.Session.ChannelMessagesBulkDelete(channelID, chunk, discordgo.WithContext(ctx))); err != nil {
			return err
		}
	}
	return nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}

func (p *Platform) DeleteThread(ctx context.Context, threadID, reason string) error {
	_, err := p.Session.ChannelDelete(threadID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapErr(err)
}

func (p *Platform) DeleteChannel(ctx context.Context, channelID, reason string) error {
	_, err := p.Session.ChannelDelete(channelID, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapErr(err)
}

func (p *Platform) TimeoutUser(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	err := p.Session.GuildMemberTimeout(guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapErr(err)
}

func (p *Platform) BanUser(ctx context.Context, guildID, userID string, deleteMessageSeconds int, reason string) error {
	// the REST helper takes whole days
	days := (deleteMessageSeconds + 86399) / 86400
	if days > 7 {
		days = 7
	}
	err := p.Session.GuildBanCreateWithReason(guildID, userID, reason, days, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (p *Platform) SendUserNotice(ctx context.Context, userID, title, body string) error {
	ch, err := p.Session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return mapErr(err)
	}
	_, err = p.Session.ChannelMessageSendEmbed(ch.ID, noticeEmbed(title, body), discordgo.WithContext(ctx))
	return mapErr(err)
}

func (p *Platform) SendChannelNotice(ctx context.Context, channelID, userID, title, body string) error {
	_, err := p.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: "<@" + userID + ">",
		Embeds:  []*discordgo.MessageEmbed{noticeEmbed(title, body)},
	}, discordgo.WithContext(ctx))
	return mapErr(err)
}

func (p *Platform) SendAuditLog(ctx context.Context, title, body string) error {
	if p.LogChannelID == "" {
		return nil
	}
	_, err := p.Session.ChannelMessageSendEmbed(p.LogChannelID, noticeEmbed(title, body), discordgo.WithContext(ctx))
	return mapErr(err)
}

func noticeEmbed(title, body string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
		Color:       0xED4245,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
}

// SetGuildLockdown pauses invites and direct messages through the guild
// incident-actions endpoint, which discordgo has no helper for yet.
func (p *Platform) SetGuildLockdown(ctx context.Context, guildID string, until time.Time) error {
	endpoint := discordgo.EndpointGuild(guildID) + "/incident-actions"
	payload := struct {
		InvitesDisabledUntil string `json:"invites_disabled_until"`
		DMsDisabledUntil     string `json:"dms_disabled_until"`
	}{
		InvitesDisabledUntil: until.UTC().Format(time.RFC3339),
		DMsDisabledUntil:     until.UTC().Format(time.RFC3339),
	}
	_, err := p.Session.RequestWithBucketID("PUT", endpoint, payload, endpoint, discordgo.WithContext(ctx))
	return mapErr(err)
}

// ChannelDeleteActors pulls recent channel-delete audit entries for the
// given channel and resolves them to users.
func (p *Platform) ChannelDeleteActors(ctx context.Context, guildID, channelID string) ([]engine.AuditActor, error) {
	audit, err := p.Session.GuildAuditLog(guildID, "", "",
		int(discordgo.AuditLogActionChannelDelete), 10, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}

	users := make(map[string]*discordgo.User, len(audit.Users))
	for _, u := range audit.Users {
		users[u.ID] = u
	}

	var actors []engine.AuditActor
	for _, entry := range audit.AuditLogEntries {
		if entry.TargetID != channelID {
			continue
		}
		actor := engine.AuditActor{ID: entry.UserID}
		if u, ok := users[entry.UserID]; ok {
			actor.Username = u.Username
			actor.Bot = u.Bot
		}
		actors = append(actors, actor)
	}
	return actors, nil
}

// BotAdder resolves who added the given bot to the guild, if that happened
// recently enough to still matter.
func (p *Platform) BotAdder(ctx context.Context, guildID, botID string) (*engine.AuditActor, error) {
	audit, err := p.Session.GuildAuditLog(guildID, "", "",
		int(discordgo.AuditLogActionBotAdd), 25, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapErr(err)
	}

	users := make(map[string]*discordgo.User, len(audit.Users))
	for _, u := range audit.Users {
		users[u.ID] = u
	}

	for _, entry := range audit.AuditLogEntries {
		if entry.TargetID != botID {
			continue
		}
		when, err := discordgo.SnowflakeTimestamp(entry.ID)
		if err != nil || time.Since(when) > 3*24*time.Hour {
			continue
		}
		actor := &engine.AuditActor{ID: entry.UserID}
		if u, ok := users[entry.UserID]; ok {
			actor.Username = u.Username
			actor.Bot = u.Bot
		}
		return actor, nil
	}
	return nil, nil
}

func (p *Platform) ReadAttachment(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, engine.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("attachment fetch status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func (p *Platform) SlowmodeDelay(channelID string) (int, bool) {
	ch, err := p.Session.State.Channel(channelID)
	if err != nil {
		return 0, false
	}
	return ch.RateLimitPerUser, true
}

func (p *Platform) SetSlowmodeDelay(ctx context.Context, channelID string, seconds int, reason string) error {
	_, err := p.Session.ChannelEdit(channelID, &discordgo.ChannelEdit{
		RateLimitPerUser: &seconds,
	}, discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
	return mapErr(err)
}
