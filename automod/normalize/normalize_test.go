package normalize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotence(t *testing.T) {
	inputs := []string{
		"",
		"hello world",
		"ＤＩＳＣＯＲＤ.ＧＧ/abc",
		"𝕕𝕚𝕤𝕔𝕠𝕣𝕕 𝕘𝕘",
		"🇩 🇮 🇸 🇨 🇴 🇷 🇩",
		"сообщение на русском языке",
		"d​i​s​c​o​r​d",
		"mixed ｔｅｘｔ with 𝐛𝐨𝐥𝐝 and Ⓒⓘⓡⓒⓛⓔⓓ",
		"naïve café déjà vu",
		"1337 $peak",
		strings.Repeat("ab ", 100),
	}
	for _, in := range inputs {
		first := Normalize(in)
		second := Normalize(first.Spaced)
		assert.Equal(t, first, second, "input %q", in)
	}
}

func TestCyrillicHomoglyphInvite(t *testing.T) {
	// every vowel and the d/c replaced with Cyrillic look-alikes
	raw := "join дiscоrд.gg/evil now"
	n := Normalize(raw)
	assert.Contains(t, n.Compact, "discordgg", "compact: %q", n.Compact)
}

func TestObfuscationVariants(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"fullwidth", "ｄｉｓｃｏｒｄ．ｇｇ", "discordgg"},
		{"mathematical bold", "𝐝𝐢𝐬𝐜𝐨𝐫𝐝", "discord"},
		{"double struck", "𝕕𝕚𝕤𝕔𝕠𝕣𝕕", "discord"},
		{"circled", "ⓓⓘⓢⓒⓞⓡⓓ", "discord"},
		{"squared", "🄳🄸🅂🄲🄾🅁🄳", "discord"},
		{"regional indicators", "🇩🇮🇸🇨🇴🇷🇩", "discord"},
		{"spaced out", "d i s c o r d . g g", "discordgg"},
		{"zero width", "d​isc‌ord.g\uFEFFg", "discordgg"},
		{"leet", "d1sc0rd", "discord"},
		{"percent encoded", "%64iscord.gg", "discordgg"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in).Compact)
		})
	}
}

func TestSpacedCollapsesSeparators(t *testing.T) {
	n := Normalize("one___two...three|four")
	assert.Equal(t, "one two three four", n.Spaced)
	assert.Equal(t, "onetwothreefour", n.Compact)
}

func TestPlainTextSurvives(t *testing.T) {
	n := Normalize("Just an ordinary sentence, nothing to see here")
	assert.Equal(t, "just an ordinary sentence nothing to see here", n.Spaced)
}

func TestNeverPanicsOnGarbage(t *testing.T) {
	inputs := []string{
		string([]byte{0xff, 0xfe, 0x00, 0x41}),
		"%zz%%%",
		strings.Repeat("\U0001F600", 50),
		"��",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() { Normalize(in) })
	}
}
