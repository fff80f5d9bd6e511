package linkdetect

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/warden-bot/warden/automod/cachestore"
)

// ErrInviteNotFound is returned by InviteAPI implementations when the
// platform confirms the code does not resolve. Any other error is treated as
// transient and never cached.
var ErrInviteNotFound = errors.New("invite code not found")

// InviteAPI is the platform invite-lookup surface.
type InviteAPI interface {
	LookupInvite(ctx context.Context, code string) (*InviteInfo, error)
}

type InviteInfo struct {
	Code        string `json:"code"`
	GuildID     string `json:"guild_id"`
	GuildName   string `json:"guild_name"`
	MemberCount int    `json:"member_count"`
}

// Resolution is the cached outcome for a single candidate code.
type Resolution struct {
	Code        string `json:"code"`
	Valid       bool   `json:"valid"`
	GuildID     string `json:"guild_id,omitempty"`
	GuildName   string `json:"guild_name,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
	FromCache   bool   `json:"-"`
}

const maxCandidates = 5

var (
	// a plausible invite code carries both letters and digits; pure words
	// and pure numbers are filtered below
	candidateToken = regexp.MustCompile(`[A-Za-z0-9-]{6,25}`)

	hexBlob   = regexp.MustCompile(`^[0-9a-f]{16,}$`)
	pureDigit = regexp.MustCompile(`^[0-9-]+$`)
	pureAlpha = regexp.MustCompile(`^[A-Za-z-]+$`)

	// ordinary vocabulary stems; a word with a number bolted on is chat
	// filler, not an invite code ("minecraft2", "privet123")
	vocabStems = map[string]bool{
		"youtube": true, "minecraft": true, "windows": true, "iphone": true,
		"discord": true, "telegram": true, "server": true, "update": true,
		"privet": true, "spasibo": true, "poka": true, "kanal": true,
	}
)

// InviteResolver validates candidate codes against the platform API with a
// TTL memo distinguishing confirmed-valid from confirmed-invalid outcomes.
type InviteResolver struct {
	API    InviteAPI
	Cache  cachestore.CacheStore
	Logger *slog.Logger
}

func NewInviteResolver(api InviteAPI, cache cachestore.CacheStore, logger *slog.Logger) *InviteResolver {
	return &InviteResolver{API: api, Cache: cache, Logger: logger}
}

// ExtractCandidates pulls plausible invite-code tokens out of raw text,
// deduplicated case-insensitively and capped at maxCandidates.
func ExtractCandidates(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tok := range candidateToken.FindAllString(raw, -1) {
		lower := strings.ToLower(tok)
		if seen[lower] {
			continue
		}
		if !plausibleCode(lower) {
			continue
		}
		seen[lower] = true
		out = append(out, tok)
		if len(out) >= maxCandidates {
			break
		}
	}
	return out
}

func plausibleCode(lower string) bool {
	if pureDigit.MatchString(lower) || pureAlpha.MatchString(lower) {
		return false
	}
	if hexBlob.MatchString(lower) {
		return false
	}
	if strings.Count(lower, "-") >= 3 {
		return false
	}
	// date-shaped tokens like 2024-01-31
	if len(lower) == 10 && lower[4] == '-' && lower[7] == '-' {
		return false
	}
	if vocabStems[strings.TrimRight(lower, "0123456789-")] {
		return false
	}
	return true
}

// CheckText extracts candidates from raw and resolves them until one points
// at a foreign guild. A resolution pointing at homeGuildID is not a
// violation. Transient API errors count as "no match" for that candidate.
func (r *InviteResolver) CheckText(ctx context.Context, raw, homeGuildID string) (*Resolution, bool) {
	for _, cand := range ExtractCandidates(raw) {
		res, ok := r.resolve(ctx, cand)
		if !ok || !res.Valid {
			continue
		}
		if res.GuildID == homeGuildID {
			continue
		}
		return res, true
	}
	return nil, false
}

func (r *InviteResolver) resolve(ctx context.Context, code string) (*Resolution, bool) {
	key := strings.ToLower(code)

	if res, ok := cachestore.GetJSON[Resolution](ctx, r.Cache, "invite", key); ok {
		res.FromCache = true
		return res, true
	}

	info, err := r.API.LookupInvite(ctx, code)
	switch {
	case err == nil:
		res := &Resolution{
			Code:        code,
			Valid:       true,
			GuildID:     info.GuildID,
			GuildName:   info.GuildName,
			MemberCount: info.MemberCount,
		}
		r.memoize(ctx, key, res)
		return res, true
	case errors.Is(err, ErrInviteNotFound):
		res := &Resolution{Code: code, Valid: false}
		r.memoize(ctx, key, res)
		return res, true
	default:
		// transient: do not cache, do not conclude anything
		r.Logger.Debug("invite lookup failed", "code", code, "err", err)
		return nil, false
	}
}

func (r *InviteResolver) memoize(ctx context.Context, key string, res *Resolution) {
	if err := cachestore.SetJSON(ctx, r.Cache, "invite", key, res); err != nil {
		r.Logger.Warn("caching invite resolution failed", "code", key, "err", err)
	}
}
