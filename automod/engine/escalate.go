package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/spaolacci/murmur3"

	"github.com/warden-bot/warden/automod/countstore"
	"github.com/warden-bot/warden/automod/keyedlock"
)

const (
	violationWindow = 5 * time.Minute
	violationLimit  = 10

	muteDuration = time.Hour
	// ban also wipes the user's recent history server-side
	banDeleteSeconds = 216000

	noticeDedupeTTL = time.Minute
	noticeDedupeMax = 10
)

// Violation is one detected offense, ready for escalation.
type Violation struct {
	GuildID     string
	ChannelID   string
	ChannelName string
	User        UserMeta

	Title string
	// Reason is the short human-readable cause shown in notices.
	Reason string
	// Extra is appended to the audit notification only.
	Extra string
	// AuditReason goes into the platform's own audit log for the action.
	AuditReason string

	// MessageID is the offending message, when there is one.
	MessageID string
	IsSystem  bool

	ForceMute bool
	ForceBan  bool

	// forums cannot take a plain channel notice
	SkipChannelNotice bool
}

// ViolationEscalator turns violations into punishments: track hits per user
// inside a rolling hour, delete-only while the user is under the soft limit,
// mute past it, ban for the kinds that warrant it. It also feeds the guild's
// violation-rate window and pulls the lockdown trigger on a spike.
type ViolationEscalator struct {
	Logger   *slog.Logger
	Platform Platform
	Lockdown *LockdownPolicy

	SoftHitLimit int

	Hits       countstore.CountStore
	UserLocks  *keyedlock.Manager
	GuildLocks *keyedlock.Manager

	violations *expirable.LRU[string, []time.Time]
	sentHashes *expirable.LRU[string, []uint64]

	now   func() time.Time
	spawn func(fn func())
}

func NewViolationEscalator(logger *slog.Logger, platform Platform, lockdown *LockdownPolicy, hits countstore.CountStore, userLocks, guildLocks *keyedlock.Manager, softHitLimit int) *ViolationEscalator {
	esc := &ViolationEscalator{
		Logger:       logger,
		Platform:     platform,
		Lockdown:     lockdown,
		SoftHitLimit: softHitLimit,
		Hits:         hits,
		UserLocks:    userLocks,
		GuildLocks:   guildLocks,
		violations:   expirable.NewLRU[string, []time.Time](64, nil, violationWindow),
		sentHashes:   expirable.NewLRU[string, []uint64](20000, nil, noticeDedupeTTL),
		now:          time.Now,
	}
	esc.spawn = esc.goSafe
	return esc
}

func (esc *ViolationEscalator) goSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				esc.Logger.Error("panic in moderation side effect", "err", r)
			}
		}()
		fn()
	}()
}

// RecordViolation applies the escalation policy for one violation. It
// blocks for the state bookkeeping and the mute/ban call; notifications and
// message deletion run in the background.
func (esc *ViolationEscalator) RecordViolation(ctx context.Context, v *Violation) {
	esc.recordGuildViolation(ctx, v.GuildID)

	// system messages never earn the sender a hit, only the cleanup
	if v.IsSystem {
		if v.MessageID != "" {
			esc.spawn(func() { esc.deleteMessage(v.ChannelID, v.MessageID) })
		}
		return
	}

	var hits int
	esc.UserLocks.With(v.User.ID, func() {
		var err error
		hits, err = esc.Hits.Increment(ctx, "violations", v.User.ID)
		if err != nil {
			esc.Logger.Error("incrementing violation hits failed", "user", v.User.ID, "err", err)
			hits = esc.SoftHitLimit + 1
		}
	})

	soft := hits <= esc.SoftHitLimit && !v.ForceMute && !v.ForceBan
	violationCount.WithLabelValues(v.Title, severityLabel(soft, v.ForceBan)).Inc()

	esc.Logger.Info("violation recorded",
		"user", v.User.ID, "username", v.User.Username, "title", v.Title,
		"hits", hits, "soft", soft, "forceMute", v.ForceMute, "forceBan", v.ForceBan)

	auditBody, userBody := esc.renderNotices(v, soft)

	esc.spawn(func() {
		if esc.recentlySent(v.User.ID, auditBody) {
			return
		}
		if err := esc.Platform.SendAuditLog(context.Background(), v.Title, auditBody); err != nil {
			esc.Logger.Warn("audit notification failed", "err", err)
		}
	})
	esc.spawn(func() {
		if esc.recentlySent(v.User.ID, "[dm]\n"+userBody) {
			return
		}
		if err := esc.Platform.SendUserNotice(context.Background(), v.User.ID, v.Title, userBody); err != nil {
			esc.Logger.Debug("user notice failed", "user", v.User.ID, "err", err)
		}
	})
	if !v.SkipChannelNotice {
		esc.spawn(func() {
			if esc.recentlySent(v.User.ID, userBody) {
				return
			}
			if err := esc.Platform.SendChannelNotice(context.Background(), v.ChannelID, v.User.ID, v.Title, userBody); err != nil {
				esc.Logger.Debug("channel notice failed", "channel", v.ChannelID, "err", err)
			}
		})
	}

	if v.MessageID != "" && !v.ForceBan {
		esc.spawn(func() { esc.deleteMessage(v.ChannelID, v.MessageID) })
	}

	switch {
	case v.ForceBan:
		if err := esc.Platform.BanUser(ctx, v.GuildID, v.User.ID, banDeleteSeconds, v.AuditReason); err != nil {
			esc.Logger.Error("ban failed", "user", v.User.ID, "err", err)
		}
		esc.Hits.Reset(ctx, "violations", v.User.ID)
	case !soft:
		until := esc.now().Add(muteDuration)
		if err := esc.Platform.TimeoutUser(ctx, v.GuildID, v.User.ID, until, v.AuditReason); err != nil {
			esc.Logger.Error("mute failed", "user", v.User.ID, "err", err)
		}
		esc.Hits.Reset(ctx, "violations", v.User.ID)
	}
}

// recordGuildViolation maintains the guild's 5-minute violation window and
// triggers lockdown once it overflows.
func (esc *ViolationEscalator) recordGuildViolation(ctx context.Context, guildID string) {
	var overflow bool
	esc.GuildLocks.With(guildID, func() {
		now := esc.now()
		times, _ := esc.violations.Get(guildID)
		kept := times[:0]
		for _, t := range times {
			if now.Sub(t) <= violationWindow {
				kept = append(kept, t)
			}
		}
		kept = append(kept, now)
		esc.violations.Add(guildID, kept)
		overflow = len(kept) >= violationLimit
	})
	if overflow {
		esc.spawn(func() {
			esc.Lockdown.Trigger(context.Background(), guildID, "violation rate spike")
		})
	}
}

func (esc *ViolationEscalator) deleteMessage(channelID, messageID string) {
	err := esc.Platform.DeleteMessage(context.Background(), channelID, messageID)
	if err != nil && !IsNotFound(err) {
		esc.Logger.Debug("deleting message failed", "channel", channelID, "message", messageID, "err", err)
	}
}

// recentlySent reports whether an identical notice went out for this user
// inside the dedupe window, recording it otherwise.
func (esc *ViolationEscalator) recentlySent(userID, content string) bool {
	h := murmur3.Sum64([]byte(content))

	var dup bool
	esc.UserLocks.With(userID, func() {
		hashes, _ := esc.sentHashes.Get(userID)
		for _, seen := range hashes {
			if seen == h {
				dup = true
				return
			}
		}
		hashes = append(hashes, h)
		if len(hashes) > noticeDedupeMax {
			hashes = hashes[len(hashes)-noticeDedupeMax:]
		}
		esc.sentHashes.Add(userID, hashes)
	})
	return dup
}

func (esc *ViolationEscalator) renderNotices(v *Violation, soft bool) (auditBody, userBody string) {
	var action, punishment string
	switch {
	case v.ForceBan:
		action = fmt.Sprintf("user @%s (%s) was banned", v.User.Username, v.User.ID)
		punishment = "you have been banned"
	case soft:
		action = fmt.Sprintf("message from @%s (%s) was removed", v.User.Username, v.User.ID)
		punishment = "no penalty beyond the message removal"
	default:
		action = fmt.Sprintf("user @%s (%s) was muted for 1 hour", v.User.Username, v.User.ID)
		punishment = "you have been muted for 1 hour"
	}

	auditBody = fmt.Sprintf("%s\nreason: %s\nchannel: #%s (%s)", action, v.Reason, v.ChannelName, v.ChannelID)
	if v.Extra != "" {
		auditBody += "\n\n" + v.Extra
	}

	footer := "if you believe this is a mistake, contact the moderators"
	if soft && !v.ForceBan {
		footer = "if you believe this is a mistake, you can ignore this notice"
	}
	userBody = fmt.Sprintf("trigger: %s\n%s\n\n%s", v.Reason, punishment, footer)
	return auditBody, userBody
}

func severityLabel(soft, ban bool) string {
	switch {
	case ban:
		return "ban"
	case soft:
		return "soft"
	default:
		return "mute"
	}
}

// IsNotFound reports whether err came from the platform confirming the
// object no longer exists.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
