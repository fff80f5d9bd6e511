package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/warden-bot/warden/automod/engine"
	"github.com/warden-bot/warden/automod/linkdetect"
)

// InviteAPI implements linkdetect.InviteAPI against the Discord invite
// endpoint, with approximate member counts included.
type InviteAPI struct {
	Session *discordgo.Session
}

func (a *InviteAPI) LookupInvite(ctx context.Context, code string) (*linkdetect.InviteInfo, error) {
	inv, err := a.Session.InviteWithCounts(code, discordgo.WithContext(ctx))
	if err != nil {
		err = mapErr(err)
		if errors.Is(err, engine.ErrNotFound) {
			return nil, linkdetect.ErrInviteNotFound
		}
		return nil, fmt.Errorf("invite lookup: %w", err)
	}
	// group DM invites carry no guild; nothing for the resolver to judge
	if inv.Guild == nil {
		return nil, linkdetect.ErrInviteNotFound
	}
	return &linkdetect.InviteInfo{
		Code:        inv.Code,
		GuildID:     inv.Guild.ID,
		GuildName:   inv.Guild.Name,
		MemberCount: inv.ApproximateMemberCount,
	}, nil
}
