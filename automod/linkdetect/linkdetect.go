// Package linkdetect finds disguised server-invite links in free-form text:
// literal URLs, shortener redirects, Unicode-obfuscated domain fragments, and
// fuzzy look-alike domains.
package linkdetect

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/warden-bot/warden/automod/normalize"
)

var (
	// explicit invite URLs; cheap and never a false positive
	explicitInvitePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?discord\.gg/[\w-]+`),
		regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?discord(?:app)?\.com/invite/[\w-]+`),
		regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?t\.me/\S+`),
		regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?telegram\.(?:me|org)\b`),
	}

	// based on: https://stackoverflow.com/a/48769624, with no trailing period allowed
	urlRegex = regexp.MustCompile(`(?:(?:https?|ftp)://)[\w/\-?=%.]+\.[\w/\-&?=%.]*[\w/\-&?=%]+`)

	// domain-shaped candidates inside compact (separator-free) text
	compactDomainRegex = regexp.MustCompile(`([a-z0-9]+)(gg|com|app|net|org|me)`)

	// media hosts that legitimately contain "discordapp"
	cdnHosts = []string{
		"cdn.discordapp.com",
		"media.discordapp.net",
		"images-ext-1.discordapp.net",
	}
)

const (
	fuzzyDomainMinLen    = 6
	fuzzyDomainThreshold = 85
)

// Detector runs the link strategies in cost order. Redirects is optional;
// when nil the redirect-chain strategy is skipped.
type Detector struct {
	Logger    *slog.Logger
	Redirects *RedirectResolver
}

func NewDetector(logger *slog.Logger, redirects *RedirectResolver) *Detector {
	return &Detector{Logger: logger, Redirects: redirects}
}

// Detect reports a human-readable description of the first matching strategy.
// It never fails on malformed input; network trouble during redirect
// resolution just means that URL contributes no match.
func (d *Detector) Detect(ctx context.Context, raw string) (string, bool) {
	if raw == "" {
		return "", false
	}

	// 1. literal invite URLs
	for _, p := range explicitInvitePatterns {
		if m := p.FindString(raw); m != "" {
			return m, true
		}
	}

	// 2. shortener cloaking: follow bare URLs and re-check the final hop
	if d.Redirects != nil {
		for _, u := range urlRegex.FindAllString(raw, -1) {
			final, ok := d.Redirects.FinalURL(ctx, u)
			if !ok || final == u {
				continue
			}
			for _, p := range explicitInvitePatterns {
				if m := p.FindString(final); m != "" {
					return fmt.Sprintf("%s (via %s)", m, u), true
				}
			}
		}
	}

	// 3. obfuscated domain fragments in the normalized compact text
	norm := normalize.Normalize(raw)
	if m, ok := d.matchCompact(raw, norm.Compact); ok {
		return m, true
	}

	// 4. fuzzy domain look-alikes
	if m, ok := d.matchFuzzyDomains(raw, norm.Compact); ok {
		return m, true
	}

	return "", false
}

func (d *Detector) matchCompact(raw, compact string) (string, bool) {
	rawFlat := strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	sameServerLink := strings.Contains(rawFlat, "/channels/")

	if strings.Contains(compact, "discordgg") && !naturalLanguageContext(raw) {
		return "discord.gg", true
	}
	if strings.Contains(compact, "discordcom") && !sameServerLink {
		// bare discord.com is only an invite when invite-ish wording rides along
		if hasInviteWord(compact) && !naturalLanguageContext(raw) {
			return "discord.com", true
		}
	}
	if strings.Contains(compact, "discordappcom") {
		mediaOnly := false
		for _, h := range cdnHosts {
			if strings.Contains(rawFlat, h) {
				mediaOnly = true
				break
			}
		}
		if !mediaOnly || hasInviteWord(compact) {
			if !naturalLanguageContext(raw) {
				return "discordapp.com", true
			}
		}
	}

	if strings.Contains(compact, "telegramme") {
		return "telegram.me", true
	}
	if strings.Contains(compact, "telegramorg") {
		return "telegram.org", true
	}
	if strings.Contains(rawFlat, "t.me/") {
		return "t.me", true
	}
	return "", false
}

func (d *Detector) matchFuzzyDomains(raw, compact string) (string, bool) {
	rawFlat := strings.ToLower(strings.ReplaceAll(raw, " ", ""))
	for _, m := range compactDomainRegex.FindAllStringSubmatch(compact, -1) {
		cand, left := m[0], m[1]
		if len(left) < fuzzyDomainMinLen {
			continue
		}
		// the plain word is not a link
		if left == "discord" {
			continue
		}
		if fuzzy.PartialRatio(left, "discord") < fuzzyDomainThreshold {
			continue
		}
		if strings.Contains(cand, "cdndiscordapp") || strings.Contains(cand, "mediadiscordapp") ||
			strings.Contains(cand, "imagesext1discordapp") {
			if !hasInviteWord(compact) {
				continue
			}
		}
		if strings.Contains(rawFlat, "/channels/") {
			continue
		}
		return fmt.Sprintf("look-alike domain (%s)", cand), true
	}
	return "", false
}

// hasInviteWord looks for "invite" (or a close misspelling) in compact text.
func hasInviteWord(compact string) bool {
	if strings.Contains(compact, "invite") {
		return true
	}
	return len(compact) >= 6 && fuzzy.PartialRatio("invite", compact) >= fuzzyDomainThreshold
}

// naturalLanguageContext suppresses compact-fragment matches when the literal
// word "discord" sits inside an ordinary sentence: surrounded by clause
// punctuation or non-Latin prose. A fully obfuscated match has no literal
// "discord" in the raw text, so the guard never fires for it.
func naturalLanguageContext(raw string) bool {
	lower := strings.ToLower(raw)
	idx := strings.Index(lower, "discord")
	if idx < 0 {
		return false
	}
	start := idx - 20
	if start < 0 {
		start = 0
	}
	end := idx + len("discord") + 20
	if end > len(lower) {
		end = len(lower)
	}
	window := lower[start:end]

	// a real link form in the window overrides the guard
	if strings.Contains(window, "discord.gg") || strings.Contains(window, "discord.com") ||
		strings.Contains(window, "discordapp.com") {
		return false
	}

	for _, p := range []string{", ", ". ", "! ", "? ", "; "} {
		if strings.Contains(window, p) {
			return true
		}
	}
	cyr := 0
	for _, r := range window {
		if unicode.Is(unicode.Cyrillic, r) {
			cyr++
		}
	}
	return cyr >= 3
}
