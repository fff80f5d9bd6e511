package engine

import "time"

// Config is the static per-deployment moderation policy.
type Config struct {
	// GuildID is the single guild this engine moderates; events from
	// anywhere else are dropped.
	GuildID string

	// AdsChannelIDs are channels where advertising is allowed, so posts
	// there are treated as trusted.
	AdsChannelIDs []string

	// ProtectedChannelIDs trigger the anti-crash ban when deleted.
	ProtectedChannelIDs []string

	// SoftHitLimit is the number of violation hits in the rolling hour
	// that only cost the user their message. One more and the mute starts.
	SoftHitLimit int

	// VeteranTenure promotes members to the veteran tier.
	VeteranTenure time.Duration
	// NewMemberTenure keeps members in the new tier.
	NewMemberTenure time.Duration
}

// DefaultConfig returns the policy tuned for a single high-traffic guild.
func DefaultConfig(guildID string) Config {
	return Config{
		GuildID:         guildID,
		SoftHitLimit:    2,
		VeteranTenure:   14 * 24 * time.Hour,
		NewMemberTenure: 2 * 24 * time.Hour,
	}
}

func (c *Config) isAdsChannel(channelID string) bool {
	for _, id := range c.AdsChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}

func (c *Config) isProtectedChannel(channelID string) bool {
	for _, id := range c.ProtectedChannelIDs {
		if id == channelID {
			return true
		}
	}
	return false
}
