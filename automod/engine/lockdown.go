package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/warden-bot/warden/automod/keyedlock"
)

const (
	lockdownDuration = 2 * time.Hour
	lockdownCooldown = 45 * time.Minute
)

type lockdownState struct {
	lockdownUntil time.Time
	cooldownUntil time.Time
}

// LockdownPolicy drives the guild-wide raid response: pause invites and DMs
// for two hours when violations spike. Re-triggering during an active
// lockdown extends it; a 45-minute cooldown after each trigger stops a
// burst of violations from stacking extensions instantly.
type LockdownPolicy struct {
	Logger     *slog.Logger
	Platform   Platform
	GuildLocks *keyedlock.Manager

	state *expirable.LRU[string, lockdownState]
	now   func() time.Time
}

func NewLockdownPolicy(logger *slog.Logger, platform Platform, guildLocks *keyedlock.Manager) *LockdownPolicy {
	return &LockdownPolicy{
		Logger:     logger,
		Platform:   platform,
		GuildLocks: guildLocks,
		state:      expirable.NewLRU[string, lockdownState](64, nil, lockdownDuration+lockdownCooldown),
		now:        time.Now,
	}
}

// Trigger applies or extends the lockdown for guildID.
func (p *LockdownPolicy) Trigger(ctx context.Context, guildID, reason string) {
	p.GuildLocks.With(guildID, func() {
		now := p.now()
		st, _ := p.state.Get(guildID)

		if now.Before(st.cooldownUntil) {
			return
		}

		fresh := !now.Before(st.lockdownUntil)
		if fresh {
			st.lockdownUntil = now.Add(lockdownDuration)
		} else {
			st.lockdownUntil = st.lockdownUntil.Add(lockdownDuration)
		}

		if err := p.Platform.SetGuildLockdown(ctx, guildID, st.lockdownUntil); err != nil {
			p.Logger.Error("applying guild lockdown failed", "guild", guildID, "err", err)
			return
		}
		lockdownCount.WithLabelValues(boolLabel(!fresh)).Inc()
		p.Logger.Warn("guild lockdown applied",
			"guild", guildID, "until", st.lockdownUntil, "extended", !fresh, "reason", reason)

		if fresh {
			err := p.Platform.SendAuditLog(ctx, "guild lockdown",
				"invites and direct messages paused for 2 hours, cause: "+reason)
			if err != nil {
				p.Logger.Warn("lockdown announcement failed", "err", err)
			}
		}

		st.cooldownUntil = now.Add(lockdownCooldown)
		p.state.Add(guildID, st)
	})
}

// Active reports whether guildID is currently locked down.
func (p *LockdownPolicy) Active(guildID string) bool {
	st, ok := p.state.Get(guildID)
	return ok && p.now().Before(st.lockdownUntil)
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
