// Package engine is the moderation runtime: it takes platform events,
// buckets the author into a priority tier, runs the detector pipeline
// cheapest-first, and escalates whatever fires.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/warden-bot/warden/automod/abuse"
	"github.com/warden-bot/warden/automod/anomaly"
	"github.com/warden-bot/warden/automod/cachestore"
	"github.com/warden-bot/warden/automod/countstore"
	"github.com/warden-bot/warden/automod/flood"
	"github.com/warden-bot/warden/automod/keyedlock"
	"github.com/warden-bot/warden/automod/linkdetect"
	"github.com/warden-bot/warden/automod/slowmode"
)

const (
	attachmentScanLimit = 1_000_000
	attachmentNulLimit  = 100

	// brand-new accounts posting files right away get the bulk-upload check
	freshMemberWindow = 7 * time.Minute
)

// Engine wires the detectors, the escalation policy, and the platform
// adapter together. All mutable state lives in the injected stores.
type Engine struct {
	Logger   *slog.Logger
	Config   Config
	Platform Platform

	Links       *linkdetect.Detector
	Invites     *linkdetect.InviteResolver
	Flood       *flood.Detector
	Mentions    *abuse.MentionDetector
	Threads     *abuse.ThreadDetector
	Attachments *abuse.AttachmentDetector
	Slowmode    *slowmode.Controller
	Escalator   *ViolationEscalator
	Lockdown    *LockdownPolicy

	// dedupe store for platform automod firings
	Cache cachestore.CacheStore

	userLocks    *keyedlock.Manager
	messageLocks *keyedlock.Manager
	guildLocks   *keyedlock.Manager

	purge *purger
	now   func() time.Time
}

// New assembles a fully wired engine around the given platform adapter and
// invite lookup API.
func New(logger *slog.Logger, cfg Config, platform Platform, inviteAPI linkdetect.InviteAPI) *Engine {
	userLocks := keyedlock.New(time.Hour)
	messageLocks := keyedlock.New(40 * time.Minute)
	guildLocks := keyedlock.New(2 * time.Hour)

	redirects := linkdetect.NewRedirectResolver(cachestore.NewMemCacheStore(5000, 5*time.Minute), logger)
	links := linkdetect.NewDetector(logger, redirects)
	invites := linkdetect.NewInviteResolver(inviteAPI, cachestore.NewMemCacheStore(20000, 20*time.Minute), logger)

	lockdown := NewLockdownPolicy(logger, platform, guildLocks)
	hits := countstore.NewMemCountStore(20000, time.Hour)
	escalator := NewViolationEscalator(logger, platform, lockdown, hits, userLocks, guildLocks, cfg.SoftHitLimit)

	return &Engine{
		Logger:       logger,
		Config:       cfg,
		Platform:     platform,
		Links:        links,
		Invites:      invites,
		Flood:        flood.NewDetector(logger, messageLocks),
		Mentions:     abuse.NewMentionDetector(logger, messageLocks),
		Threads:      abuse.NewThreadDetector(logger, links, messageLocks),
		Attachments:  abuse.NewAttachmentDetector(logger, messageLocks),
		Slowmode:     slowmode.NewController(logger, platform),
		Escalator:    escalator,
		Lockdown:     lockdown,
		Cache:        cachestore.NewMemCacheStore(20000, 20*time.Minute),
		userLocks:    userLocks,
		messageLocks: messageLocks,
		guildLocks:   guildLocks,
		purge:        newPurger(),
		now:          time.Now,
	}
}

// Run drives the background loops (lock sweeps, slowmode re-evaluation)
// until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go e.userLocks.Run(ctx)
	go e.messageLocks.Run(ctx)
	go e.guildLocks.Run(ctx)
	e.Slowmode.Run(ctx)
}

func (e *Engine) priority(u *UserMeta, channelID string) Priority {
	if u.CanManageMessages {
		return PriorityTrusted
	}
	if u.FromInteraction {
		return PriorityNew
	}
	if channelID != "" && e.Config.isAdsChannel(channelID) {
		return PriorityTrusted
	}
	if !u.JoinedAt.IsZero() {
		tenure := e.now().Sub(u.JoinedAt)
		if tenure > e.Config.VeteranTenure {
			return PriorityVeteran
		}
		if u.Whitelisted {
			return PriorityVeteran
		}
		if tenure < e.Config.NewMemberTenure {
			return PriorityNew
		}
	}
	return PriorityNormal
}

type messageCheck struct {
	name string
	// the check runs for this tier and anything less trusted
	min Priority
	fn  func(ctx context.Context, evt *MessageEvent) (bool, error)
}

// ProcessMessage handles a created message, or an edit whose content
// changed. A detector error is logged and skipped; the first violation
// short-circuits the rest of the pipeline.
func (e *Engine) ProcessMessage(ctx context.Context, evt *MessageEvent) error {
	defer func() {
		if r := recover(); r != nil {
			eventErrorCount.WithLabelValues("message").Inc()
			e.Logger.Error("moderation event panic", "err", r, "message", evt.MessageID)
		}
	}()
	start := time.Now()
	defer func() {
		eventProcessDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	}()
	eventProcessCount.WithLabelValues("message").Inc()

	if evt.GuildID != e.Config.GuildID {
		return nil
	}
	if evt.IsSystem && evt.IsAutomod {
		return e.ProcessAutomodAction(ctx, evt.GuildID, evt.MessageID)
	}
	if evt.Author.Bot && !evt.Author.FromInteraction {
		return nil
	}

	pri := e.priority(&evt.Author, evt.ChannelID)
	if pri == PriorityTrusted {
		return nil
	}

	if evt.ChannelIsText {
		e.Slowmode.RecordMessage(evt.ChannelID)
	}

	checks := []messageCheck{
		{"activity-ad", PriorityVeteran, e.checkActivityAd},
		{"attachment-scan", PriorityVeteran, e.checkAttachmentContent},
		{"poll-scan", PriorityVeteran, e.checkPoll},
		{"mention-abuse", PriorityNew, e.checkMentionAbuse},
		{"link-ad", PriorityNormal, e.checkLinks},
		{"invite-codes", PriorityNew, e.checkInviteCodes},
		{"flood", PriorityNew, e.checkFlood},
		{"structural-anomaly", PriorityNormal, e.checkAnomaly},
		{"attachment-flood", PriorityNew, e.checkAttachmentFlood},
	}

	for _, c := range checks {
		if pri < c.min {
			continue
		}
		hit, err := c.fn(ctx, evt)
		if err != nil {
			e.Logger.Error("detector failed", "detector", c.name, "message", evt.MessageID, "err", err)
			continue
		}
		if hit {
			return nil
		}
	}
	return nil
}

func (e *Engine) checkActivityAd(ctx context.Context, evt *MessageEvent) (bool, error) {
	a := evt.Activity
	if a == nil || a.Type != 3 {
		return false, nil
	}
	if strings.HasPrefix(a.PartyID, "spotify:") {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ChannelID,
		ChannelName: evt.ChannelName,
		User:        evt.Author,
		MessageID:   evt.MessageID,
		Title:       "advertising via activity",
		Reason:      "advertising through an embedded activity invitation",
		Extra:       fmt.Sprintf("activity type: %d\nparty id: %s", a.Type, a.PartyID),
		AuditReason: "activity advertising",
		ForceBan:    true,
	})
	return true, nil
}

func (e *Engine) checkAttachmentContent(ctx context.Context, evt *MessageEvent) (bool, error) {
	for _, a := range evt.Attachments {
		if !textLikeContentType(a.ContentType) {
			continue
		}
		data, err := e.Platform.ReadAttachment(ctx, a.URL, attachmentScanLimit)
		if err != nil {
			attachmentScanCount.WithLabelValues("error").Inc()
			e.Logger.Debug("attachment read failed", "url", a.URL, "err", err)
			continue
		}
		if nulCount(data) > attachmentNulLimit {
			attachmentScanCount.WithLabelValues("binary").Inc()
			continue
		}
		content := string(data)

		match, ok := e.Links.Detect(ctx, content)
		if !ok {
			attachmentScanCount.WithLabelValues("clean").Inc()
			continue
		}
		attachmentScanCount.WithLabelValues("matched").Inc()

		e.Escalator.RecordViolation(ctx, &Violation{
			GuildID:     evt.GuildID,
			ChannelID:   evt.ChannelID,
			ChannelName: evt.ChannelName,
			User:        evt.Author,
			MessageID:   evt.MessageID,
			Title:       "advertising inside a file",
			Reason:      "advertising in an attached file",
			Extra: fmt.Sprintf("match:\n%s\n\nfile: %s (%d bytes, %s)\ncontent preview:\n%s",
				match, a.Filename, a.Size, a.ContentType, preview(content)),
			AuditReason: "advertising in attachment",
			ForceBan:    true,
		})
		return true, nil
	}
	return false, nil
}

func (e *Engine) checkPoll(ctx context.Context, evt *MessageEvent) (bool, error) {
	if evt.Poll == nil {
		return false, nil
	}
	pollText := ComposePollContent(evt.Poll)
	match, ok := e.Links.Detect(ctx, pollText)
	if !ok {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ChannelID,
		ChannelName: evt.ChannelName,
		User:        evt.Author,
		MessageID:   evt.MessageID,
		Title:       "advertising inside a poll",
		Reason:      "advertising in an attached poll",
		Extra:       fmt.Sprintf("match:\n%s\n\npoll:\n%s", match, pollText),
		AuditReason: "advertising in poll",
		ForceBan:    true,
	})
	return true, nil
}

func (e *Engine) checkMentionAbuse(ctx context.Context, evt *MessageEvent) (bool, error) {
	if evt.Content == "" {
		return false, nil
	}
	tracked, abusive := e.Mentions.Check(evt.Author.ID, abuse.MentionMessage{
		ID:            evt.MessageID,
		ChannelID:     evt.ChannelID,
		Content:       evt.Content,
		UserMentions:  evt.Mentions,
		RoleMentions:  evt.RoleMentions,
		ReplyTargetID: evt.ReplyTargetID,
	})
	if !abusive {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ChannelID,
		ChannelName: evt.ChannelName,
		User:        evt.Author,
		MessageID:   evt.MessageID,
		Title:       "mention abuse",
		Reason:      "mention abuse",
		Extra:       "message preview:\n" + preview(evt.Content),
		AuditReason: "mention abuse by a new member",
		ForceMute:   true,
	})
	e.purgeTracked(groupTracked(tracked), "mention abuse")
	e.Mentions.Reset(evt.Author.ID)
	return true, nil
}

func (e *Engine) checkLinks(ctx context.Context, evt *MessageEvent) (bool, error) {
	composed := ComposeRecordContent(evt)
	match, ok := e.Links.Detect(ctx, composed)
	if !ok {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:           evt.GuildID,
		ChannelID:         evt.ChannelID,
		ChannelName:       evt.ChannelName,
		User:              evt.Author,
		MessageID:         evt.MessageID,
		IsSystem:          evt.IsSystem,
		Title:             "advertising in a message",
		Reason:            "advertising in message text",
		Extra:             fmt.Sprintf("match:\n%s\n\nmessage preview:\n%s", match, preview(composed)),
		AuditReason:       "advertising in message",
		SkipChannelNotice: evt.ChannelIsForum,
	})
	return true, nil
}

func (e *Engine) checkInviteCodes(ctx context.Context, evt *MessageEvent) (bool, error) {
	composed := ComposeRecordContent(evt)
	res, ok := e.Invites.CheckText(ctx, composed, e.Config.GuildID)
	if !ok {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ChannelID,
		ChannelName: evt.ChannelName,
		User:        evt.Author,
		MessageID:   evt.MessageID,
		IsSystem:    evt.IsSystem,
		Title:       "invite link in a message",
		Reason:      "invite link in a message",
		Extra: fmt.Sprintf("code: %s\nresolves to: %s (%s)\nmembers: %d\nfrom cache: %t\n\nmessage preview:\n%s",
			res.Code, res.GuildName, res.GuildID, res.MemberCount, res.FromCache, preview(composed)),
		AuditReason:       "invite link in message",
		SkipChannelNotice: evt.ChannelIsForum,
	})
	return true, nil
}

func (e *Engine) checkFlood(ctx context.Context, evt *MessageEvent) (bool, error) {
	composed := ComposeRecordContent(evt)
	res, ok := e.Flood.Check(evt.Author.ID, flood.Record{
		ID:        evt.MessageID,
		ChannelID: evt.ChannelID,
		Content:   composed,
	})
	if !ok {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ChannelID,
		ChannelName: evt.ChannelName,
		User:        evt.Author,
		MessageID:   evt.MessageID,
		Title:       "flood",
		Reason:      "message flood",
		Extra:       "message preview:\n" + preview(res.Content),
		AuditReason: "flood by a new member",
		ForceMute:   true,
	})

	byChannel := make(map[string][]string)
	for _, rec := range res.Records {
		byChannel[rec.ChannelID] = append(byChannel[rec.ChannelID], rec.ID)
	}
	e.purgeTracked(byChannel, "flood by a new member")
	return true, nil
}

func (e *Engine) checkAnomaly(ctx context.Context, evt *MessageEvent) (bool, error) {
	if evt.Content == "" && len(evt.Embeds) == 0 {
		return false, nil
	}
	text := evt.Content
	for _, em := range evt.Embeds {
		if em.Title != "" {
			text += "\ntitle: " + em.Title
		}
		if em.Description != "" {
			text += "\ndescription: " + em.Description
		}
	}
	reason, ok := anomaly.Check(text)
	if !ok {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:           evt.GuildID,
		ChannelID:         evt.ChannelID,
		ChannelName:       evt.ChannelName,
		User:              evt.Author,
		MessageID:         evt.MessageID,
		IsSystem:          evt.IsSystem,
		Title:             "chat spam",
		Reason:            "chat clutter (" + reason + ")",
		Extra:             "message preview:\n" + preview(text),
		AuditReason:       "chat spam",
		SkipChannelNotice: evt.ChannelIsForum,
	})
	return true, nil
}

func (e *Engine) checkAttachmentFlood(ctx context.Context, evt *MessageEvent) (bool, error) {
	if len(evt.Attachments) == 0 {
		return false, nil
	}
	if evt.Author.JoinedAt.IsZero() || e.now().Sub(evt.Author.JoinedAt) >= freshMemberWindow {
		return false, nil
	}
	tracked, flooding := e.Attachments.Check(evt.Author.ID, abuse.AttachmentMessage{
		ID:          evt.MessageID,
		ChannelID:   evt.ChannelID,
		Attachments: len(evt.Attachments),
	})
	if !flooding {
		return false, nil
	}

	e.Escalator.RecordViolation(ctx, &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ChannelID,
		ChannelName: evt.ChannelName,
		User:        evt.Author,
		MessageID:   evt.MessageID,
		Title:       "attachment flood",
		Reason:      "bulk file uploads right after joining",
		AuditReason: "attachment flood by a new member",
		ForceMute:   true,
	})
	e.purgeTracked(groupTracked(tracked), "attachment flood")
	e.Attachments.Reset(evt.Author.ID)
	return true, nil
}

// ProcessThread moderates a newly created thread.
func (e *Engine) ProcessThread(ctx context.Context, evt *ThreadEvent) error {
	defer func() {
		if r := recover(); r != nil {
			eventErrorCount.WithLabelValues("thread").Inc()
			e.Logger.Error("moderation event panic", "err", r, "thread", evt.ThreadID)
		}
	}()
	eventProcessCount.WithLabelValues("thread").Inc()

	if evt.GuildID != e.Config.GuildID || evt.Owner.Bot {
		return nil
	}
	pri := e.priority(&evt.Owner, "")
	if pri < PriorityNormal {
		return nil
	}

	res, ok := e.Threads.Check(ctx, evt.Owner.ID, evt.ThreadID, evt.Name)
	if !ok {
		return nil
	}

	v := &Violation{
		GuildID:     evt.GuildID,
		ChannelID:   evt.ThreadID,
		ChannelName: evt.Name,
		User:        evt.Owner,
		Title:       "thread flood",
		Reason:      "flood through thread creation",
		Extra:       "thread name:\n#" + evt.Name,
		AuditReason: "thread flood",
		ForceBan:    true,
	}
	if res.LinkMatch != "" {
		v.Title = "advertising in a thread name"
		v.Reason = "advertising through thread creation"
		v.Extra = "match:\n" + res.LinkMatch + "\n\n" + v.Extra
		v.AuditReason = "advertising in thread name"
	}
	e.Escalator.RecordViolation(ctx, v)

	for _, id := range res.ThreadIDs {
		id := id
		e.Escalator.spawn(func() {
			err := e.Platform.DeleteThread(context.Background(), id, v.AuditReason)
			if err != nil && !IsNotFound(err) {
				e.Logger.Debug("deleting thread failed", "thread", id, "err", err)
			}
		})
	}
	return nil
}

// ProcessChannel moderates voice channel names on create and rename.
func (e *Engine) ProcessChannel(ctx context.Context, evt *ChannelEvent) error {
	defer func() {
		if r := recover(); r != nil {
			eventErrorCount.WithLabelValues("channel").Inc()
			e.Logger.Error("moderation event panic", "err", r, "channel", evt.ChannelID)
		}
	}()
	eventProcessCount.WithLabelValues("channel").Inc()

	if evt.GuildID != e.Config.GuildID || !evt.IsVoice {
		return nil
	}

	if match, ok := e.Links.Detect(ctx, evt.Name); ok {
		for _, m := range evt.Members {
			e.Escalator.RecordViolation(ctx, &Violation{
				GuildID:           evt.GuildID,
				ChannelID:         evt.ChannelID,
				ChannelName:       evt.Name,
				User:              m,
				Title:             "advertising in a voice channel name",
				Reason:            "advertising through a voice channel name",
				Extra:             fmt.Sprintf("match:\n%s\n\nchannel name:\n%s", match, evt.Name),
				AuditReason:       "advertising in voice channel name",
				ForceMute:         true,
				SkipChannelNotice: true,
			})
		}
		e.deleteChannelAsync(evt.ChannelID, "advertising in voice channel name")
		return nil
	}

	if res, ok := e.Invites.CheckText(ctx, evt.Name, e.Config.GuildID); ok {
		for _, m := range evt.Members {
			e.Escalator.RecordViolation(ctx, &Violation{
				GuildID:     evt.GuildID,
				ChannelID:   evt.ChannelID,
				ChannelName: evt.Name,
				User:        m,
				Title:       "invite link in a voice channel name",
				Reason:      "invite link in a voice channel name",
				Extra: fmt.Sprintf("code: %s\nresolves to: %s (%s)\nmembers: %d",
					res.Code, res.GuildName, res.GuildID, res.MemberCount),
				AuditReason:       "invite link in voice channel name",
				ForceMute:         true,
				SkipChannelNotice: true,
			})
		}
		if evt.NameChanged {
			e.deleteChannelAsync(evt.ChannelID, "invite link in voice channel name")
		}
	}
	return nil
}

func (e *Engine) deleteChannelAsync(channelID, reason string) {
	e.Escalator.spawn(func() {
		err := e.Platform.DeleteChannel(context.Background(), channelID, reason)
		if err != nil && !IsNotFound(err) {
			e.Logger.Warn("deleting channel failed", "channel", channelID, "err", err)
		}
	})
}

// ProcessAutomodAction treats the platform's own automod firing as a raid
// signal: deduplicated per message, it pulls the lockdown trigger.
func (e *Engine) ProcessAutomodAction(ctx context.Context, guildID, messageID string) error {
	eventProcessCount.WithLabelValues("automod-action").Inc()

	if guildID != e.Config.GuildID {
		return nil
	}

	var seen bool
	e.messageLocks.With(messageID, func() {
		v, err := e.Cache.Get(ctx, "automod-event", messageID)
		if err == nil && v != "" {
			seen = true
			return
		}
		e.Cache.Set(ctx, "automod-event", messageID, "1")
	})
	if seen {
		return nil
	}

	e.Lockdown.Trigger(ctx, guildID, "platform automod action, suspected raid")
	return nil
}

// ProcessChannelDelete bans whoever deleted a protected channel, resolving
// the actor (and, for bot actors, whoever added the bot) from the audit log.
func (e *Engine) ProcessChannelDelete(ctx context.Context, evt *ChannelDeleteEvent) error {
	defer func() {
		if r := recover(); r != nil {
			eventErrorCount.WithLabelValues("channel-delete").Inc()
			e.Logger.Error("moderation event panic", "err", r, "channel", evt.ChannelID)
		}
	}()
	eventProcessCount.WithLabelValues("channel-delete").Inc()

	if evt.GuildID != e.Config.GuildID || !e.Config.isProtectedChannel(evt.ChannelID) {
		return nil
	}

	actors, err := e.Platform.ChannelDeleteActors(ctx, evt.GuildID, evt.ChannelID)
	if err != nil {
		e.Logger.Error("resolving channel delete actor failed", "channel", evt.ChannelID, "err", err)
	}

	resolved := make([]AuditActor, 0, len(actors)+1)
	for _, a := range actors {
		resolved = append(resolved, a)
		if a.Bot {
			adder, err := e.Platform.BotAdder(ctx, evt.GuildID, a.ID)
			if err != nil {
				e.Logger.Warn("resolving bot adder failed", "bot", a.ID, "err", err)
				continue
			}
			if adder != nil {
				resolved = append(resolved, *adder)
			}
		}
	}

	if len(resolved) == 0 {
		e.Platform.SendAuditLog(ctx, "protected channel deleted",
			fmt.Sprintf("protected channel #%s (%s) was deleted, but the actor could not be resolved\npossible server crash attempt", evt.Name, evt.ChannelID))
		return nil
	}

	reason := fmt.Sprintf("deleted protected channel #%s (%s)", evt.Name, evt.ChannelID)
	for _, actor := range resolved {
		if err := e.Platform.BanUser(ctx, evt.GuildID, actor.ID, 0, reason); err != nil {
			e.Logger.Error("banning channel deleter failed", "user", actor.ID, "err", err)
			continue
		}
		e.Platform.SendAuditLog(ctx, "protected channel deleted",
			fmt.Sprintf("user @%s (%s) was banned\nreason: %s\npossible server crash attempt", actor.Username, actor.ID, reason))
	}
	return nil
}

func textLikeContentType(ct string) bool {
	if ct == "" {
		return false
	}
	for _, prefix := range []string{"text/", "application/json", "application/xml", "application/x-yaml", "application/yaml"} {
		if strings.Contains(ct, prefix) {
			return true
		}
	}
	return false
}

func nulCount(data []byte) int {
	n := 0
	for _, b := range data {
		if b == 0 {
			n++
		}
	}
	return n
}

func groupTracked(tracked []abuse.TrackedMessage) map[string][]string {
	byChannel := make(map[string][]string)
	for _, m := range tracked {
		byChannel[m.ChannelID] = append(byChannel[m.ChannelID], m.ID)
	}
	return byChannel
}

func preview(s string) string {
	runes := []rune(s)
	if len(runes) > 300 {
		runes = runes[:300]
	}
	return strings.ReplaceAll(string(runes), "`", "'")
}
