package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/warden-bot/warden/automod/engine"
)

// messageTypeAutoModerationAction is Discord message type 24
// (AUTO_MODERATION_ACTION), which discordgo does not define.
const messageTypeAutoModerationAction discordgo.MessageType = 24

// Bot translates gateway events into engine events. It owns no moderation
// state of its own.
type Bot struct {
	Session *discordgo.Session
	Engine  *engine.Engine
	Logger  *slog.Logger

	// WhitelistRoleIDs promote members to the veteran tier regardless of
	// tenure.
	WhitelistRoleIDs []string
}

func NewBot(session *discordgo.Session, eng *engine.Engine, logger *slog.Logger, whitelistRoleIDs []string) *Bot {
	return &Bot{
		Session:          session,
		Engine:           eng,
		Logger:           logger,
		WhitelistRoleIDs: whitelistRoleIDs,
	}
}

// RegisterHandlers attaches all gateway handlers to the session. Call before
// opening the connection.
func (b *Bot) RegisterHandlers() {
	b.Session.AddHandler(b.onMessageCreate)
	b.Session.AddHandler(b.onMessageUpdate)
	b.Session.AddHandler(b.onThreadCreate)
	b.Session.AddHandler(b.onChannelCreate)
	b.Session.AddHandler(b.onChannelUpdate)
	b.Session.AddHandler(b.onChannelDelete)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.GuildID == "" || m.Author == nil {
		return
	}
	evt := b.buildMessageEvent(s, m.Message)
	if err := b.Engine.ProcessMessage(context.Background(), evt); err != nil {
		b.Logger.Error("message processing failed", "message", m.ID, "err", err)
	}
}

func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.GuildID == "" || m.Author == nil {
		return
	}
	// embed unfurls and pin flags come through as updates too; only an
	// actual content change re-enters moderation
	if m.BeforeUpdate != nil && m.BeforeUpdate.Content == m.Content {
		return
	}
	evt := b.buildMessageEvent(s, m.Message)
	if err := b.Engine.ProcessMessage(context.Background(), evt); err != nil {
		b.Logger.Error("edited message processing failed", "message", m.ID, "err", err)
	}
}

func (b *Bot) buildMessageEvent(s *discordgo.Session, m *discordgo.Message) *engine.MessageEvent {
	author := b.userMeta(s, m.GuildID, m.ChannelID, m.Author, m.Member)
	if m.Interaction != nil && m.Interaction.User != nil {
		// the visible author is the application; moderation targets whoever
		// ran the command
		author = b.userMeta(s, m.GuildID, m.ChannelID, m.Interaction.User, nil)
		author.FromInteraction = true
	}

	evt := &engine.MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		MessageID: m.ID,
		Author:    author,
		Content:   m.Content,
		IsSystem:  m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply,
		IsAutomod: m.Type == messageTypeAutoModerationAction,
	}

	if ch, err := s.State.Channel(m.ChannelID); err == nil {
		evt.ChannelName = ch.Name
		evt.ChannelIsText = ch.Type == discordgo.ChannelTypeGuildText
		if ch.ParentID != "" {
			if parent, err := s.State.Channel(ch.ParentID); err == nil {
				evt.ChannelIsForum = parent.Type == discordgo.ChannelTypeGuildForum
			}
		}
	}

	for _, u := range m.Mentions {
		evt.Mentions = append(evt.Mentions, u.ID)
	}
	evt.RoleMentions = append(evt.RoleMentions, m.MentionRoles...)
	if m.ReferencedMessage != nil && m.ReferencedMessage.Author != nil {
		evt.ReplyTargetID = m.ReferencedMessage.Author.ID
	}

	for _, a := range m.Attachments {
		evt.Attachments = append(evt.Attachments, engine.Attachment{
			Filename:    a.Filename,
			URL:         a.URL,
			Size:        a.Size,
			ContentType: a.ContentType,
		})
	}
	for _, em := range m.Embeds {
		evt.Embeds = append(evt.Embeds, engine.Embed{Title: em.Title, Description: em.Description})
	}
	for _, st := range m.StickerItems {
		evt.Stickers = append(evt.Stickers, engine.Sticker{ID: st.ID, Name: st.Name})
	}
	if m.Activity != nil {
		evt.Activity = &engine.Activity{
			Type:    int(m.Activity.Type),
			PartyID: m.Activity.PartyID,
		}
	}
	// TODO: surface message polls once the SDK exposes them on Message

	return evt
}

func (b *Bot) userMeta(s *discordgo.Session, guildID, channelID string, u *discordgo.User, member *discordgo.Member) engine.UserMeta {
	meta := engine.UserMeta{
		ID:       u.ID,
		Username: u.Username,
		Bot:      u.Bot,
	}

	if member == nil {
		if m, err := s.State.Member(guildID, u.ID); err == nil {
			member = m
		}
	}
	if member != nil {
		meta.JoinedAt = member.JoinedAt
		for _, roleID := range member.Roles {
			for _, wl := range b.WhitelistRoleIDs {
				if roleID == wl {
					meta.Whitelisted = true
				}
			}
		}
	}

	if perms, err := s.State.UserChannelPermissions(u.ID, channelID); err == nil {
		meta.CanManageMessages = perms&discordgo.PermissionManageMessages != 0
	}
	return meta
}

func (b *Bot) onThreadCreate(s *discordgo.Session, t *discordgo.ThreadCreate) {
	if t.GuildID == "" || !t.NewlyCreated || t.OwnerID == "" {
		return
	}

	owner := engine.UserMeta{ID: t.OwnerID}
	if member, err := s.State.Member(t.GuildID, t.OwnerID); err == nil && member.User != nil {
		owner = b.userMeta(s, t.GuildID, t.ParentID, member.User, member)
	} else if member, err := s.GuildMember(t.GuildID, t.OwnerID); err == nil && member.User != nil {
		owner = b.userMeta(s, t.GuildID, t.ParentID, member.User, member)
	}

	evt := &engine.ThreadEvent{
		GuildID:  t.GuildID,
		ThreadID: t.ID,
		Name:     t.Name,
		Owner:    owner,
	}
	if err := b.Engine.ProcessThread(context.Background(), evt); err != nil {
		b.Logger.Error("thread processing failed", "thread", t.ID, "err", err)
	}
}

func (b *Bot) onChannelCreate(s *discordgo.Session, c *discordgo.ChannelCreate) {
	if c.GuildID == "" {
		return
	}
	b.processChannel(s, c.Channel, false)
}

func (b *Bot) onChannelUpdate(s *discordgo.Session, c *discordgo.ChannelUpdate) {
	if c.GuildID == "" {
		return
	}
	if c.BeforeUpdate != nil && c.BeforeUpdate.Name == c.Name {
		return
	}
	b.processChannel(s, c.Channel, true)
}

func (b *Bot) processChannel(s *discordgo.Session, c *discordgo.Channel, renamed bool) {
	evt := &engine.ChannelEvent{
		GuildID:     c.GuildID,
		ChannelID:   c.ID,
		Name:        c.Name,
		IsVoice:     c.Type == discordgo.ChannelTypeGuildVoice,
		NameChanged: renamed,
		Members:     b.voiceMembers(s, c.GuildID, c.ID),
	}
	if err := b.Engine.ProcessChannel(context.Background(), evt); err != nil {
		b.Logger.Error("channel processing failed", "channel", c.ID, "err", err)
	}
}

func (b *Bot) voiceMembers(s *discordgo.Session, guildID, channelID string) []engine.UserMeta {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return nil
	}
	var members []engine.UserMeta
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID {
			continue
		}
		member, err := s.State.Member(guildID, vs.UserID)
		if err != nil || member.User == nil {
			members = append(members, engine.UserMeta{ID: vs.UserID})
			continue
		}
		members = append(members, b.userMeta(s, guildID, channelID, member.User, member))
	}
	return members
}

func (b *Bot) onChannelDelete(s *discordgo.Session, c *discordgo.ChannelDelete) {
	if c.GuildID == "" {
		return
	}
	// the audit log entry can lag the gateway event
	time.Sleep(2 * time.Second)
	evt := &engine.ChannelDeleteEvent{
		GuildID:   c.GuildID,
		ChannelID: c.ID,
		Name:      c.Name,
	}
	if err := b.Engine.ProcessChannelDelete(context.Background(), evt); err != nil {
		b.Logger.Error("channel delete processing failed", "channel", c.ID, "err", err)
	}
}
