// Package normalize canonicalizes adversarial Unicode text to comparable
// ASCII. The goal is that "ｄｉｓｃｏｒｄ.gg", "𝕕𝕚𝕤𝕔𝕠𝕣𝕕 gg" and a Cyrillic
// look-alike all collapse to the same compact form a substring check can see.
package normalize

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/unicode/runenames"
)

// NormalizedText is a pure function of the raw input. Spaced keeps word
// boundaries (single spaces); Compact strips them entirely.
type NormalizedText struct {
	Compact string
	Spaced  string
}

var (
	whitespaceRun = regexp.MustCompile(`\s+`)

	// characters treated as plain separators before the name-lookup fallback
	separators = " \t\r\n./\\|_•·-:"
)

func isZeroWidth(r rune) bool {
	return (r >= 0x200B && r <= 0x200F) || r == 0xFEFF || r == 0x2060
}

func isVariationSelector(r rune) bool {
	return r >= 0xFE00 && r <= 0xFE0F
}

// Normalize maps arbitrary Unicode to NormalizedText. Total and idempotent:
// Normalize(Normalize(x).Spaced).Spaced == Normalize(x).Spaced.
func Normalize(raw string) NormalizedText {
	// percent-encoded payloads ("%64iscord") decode before anything else
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}

	stripped := strings.Map(func(r rune) rune {
		if isZeroWidth(r) || isVariationSelector(r) {
			return -1
		}
		return r
	}, raw)

	folded := norm.NFKC.String(stripped)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		b.WriteString(mapRune(r))
	}

	spaced := strings.TrimSpace(whitespaceRun.ReplaceAllString(b.String(), " "))
	compact := strings.ReplaceAll(spaced, " ", "")
	return NormalizedText{Compact: compact, Spaced: spaced}
}

// mapRune reduces a single (already NFKC-folded) rune to its ASCII reading,
// or a space when it has none.
func mapRune(r rune) string {
	if r >= 'a' && r <= 'z' {
		return string(r)
	}
	if r >= 'A' && r <= 'Z' {
		return string(r + ('a' - 'A'))
	}
	if s, ok := obfuscationMap[r]; ok {
		return s
	}
	if r >= '0' && r <= '9' {
		return string(r)
	}
	if strings.ContainsRune(separators, r) {
		return " "
	}

	// decompose and take an ASCII base letter if there is one (é -> e)
	if d := norm.NFKD.String(string(r)); d != "" {
		base := rune(d[0])
		if base >= 'a' && base <= 'z' {
			return string(base)
		}
		if base >= 'A' && base <= 'Z' {
			return string(base + ('a' - 'A'))
		}
	}

	if unicode.IsDigit(r) {
		return " "
	}

	// last resort: a single-letter token somewhere in the character name
	// ("COMBINING LATIN SMALL LETTER A" -> a)
	for _, tok := range strings.Fields(runenames.Name(r)) {
		if len(tok) == 1 && tok[0] >= 'A' && tok[0] <= 'Z' {
			return string(tok[0] + ('a' - 'A'))
		}
	}

	return " "
}
