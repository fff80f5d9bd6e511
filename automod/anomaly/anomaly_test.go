package anomaly

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharacterRunFlood(t *testing.T) {
	reason, ok := Check(strings.Repeat(".", 1000))
	require.True(t, ok)
	assert.Equal(t, "repeated character run", reason)

	// whitespace runs are not abuse
	_, ok = Check("first" + strings.Repeat(" ", 28) + "last")
	assert.False(t, ok)
}

func TestDominantCharacter(t *testing.T) {
	reason, ok := Check(strings.Repeat("aaaaabb", 6))
	require.True(t, ok)
	assert.Equal(t, "dominant character", reason)
}

func TestBacktickFlood(t *testing.T) {
	_, ok := Check(strings.Repeat("`a", 160))
	assert.True(t, ok)
}

func TestBlankLineFlood(t *testing.T) {
	msg := "a" + strings.Repeat("\n", 10) + "b\n"
	reason, ok := Check(msg)
	require.True(t, ok)
	assert.Equal(t, "blank line flood", reason)
}

func TestCodeFenceRepeatedLines(t *testing.T) {
	msg := "```\n" + strings.Repeat("spam line\n", 45) + "```"
	reason, ok := Check(msg)
	require.True(t, ok)
	assert.Equal(t, "repeated lines in code block", reason)
}

func TestLegitimateCodeBlockPasses(t *testing.T) {
	msg := "```go\nfunc main() {\n\tfmt.Println(\"hello\")\n\tfor i := 0; i < 10; i++ {\n\t\tprocess(i)\n\t}\n}\n```"
	_, ok := Check(msg)
	assert.False(t, ok)
}

func TestInvisiblePadding(t *testing.T) {
	msg := strings.Repeat("a​", 35)
	reason, ok := Check(msg)
	require.True(t, ok)
	assert.Equal(t, "invisible character padding", reason)
}

func TestEmojiFlood(t *testing.T) {
	msg := strings.Repeat("\U0001F600\U0001F601", 25)
	reason, ok := Check(msg)
	require.True(t, ok)
	assert.Equal(t, "emoji flood", reason)
}

func TestLinkFlood(t *testing.T) {
	msg := "http://a.com http://b.com http://c.com http://d.com http://e.com"
	reason, ok := Check(msg)
	require.True(t, ok)
	assert.Equal(t, "link flood", reason)

	_, ok = Check("see http://a.com and http://b.com plus maybe http://c.com later")
	assert.False(t, ok)
}

func TestRepeatedWord(t *testing.T) {
	reason, ok := Check(strings.Repeat("spam ", 14))
	require.True(t, ok)
	assert.Equal(t, "repeated word", reason)
}

func TestRepeatedPhrase(t *testing.T) {
	msg := strings.Repeat("Join the mega server now!!! - ", 10)
	reason, ok := Check(msg)
	require.True(t, ok)
	assert.Equal(t, "repeated phrase", reason)
}

func TestAlternatingSymbols(t *testing.T) {
	reason, ok := Check(strings.Repeat("|-", 12))
	require.True(t, ok)
	assert.Equal(t, "alternating symbol pattern", reason)
}

func TestSpecialCharacterRun(t *testing.T) {
	_, ok := Check("look at this !@#$%^&*()_+!@#$%")
	assert.True(t, ok)
}

func TestSeparatorFlood(t *testing.T) {
	pad := "this sentence exists so the message counts as long form text and the adaptive thresholds apply here "
	reason, ok := Check(pad + strings.Repeat("=", 22))
	require.True(t, ok)
	assert.Equal(t, "separator flood", reason)
}

func TestChaoticSymbols(t *testing.T) {
	reason, ok := Check(strings.Repeat("#@! $%^ ", 8))
	require.True(t, ok)
	assert.Equal(t, "chaotic symbols", reason)
}

func TestOrdinaryProsePasses(t *testing.T) {
	for _, msg := range []string{
		"lol",
		"hey everyone, the event starts at nine tomorrow, bring your own snacks",
		"Честно говоря, вчерашний матч был одним из лучших за весь сезон, особенно вторая половина",
		strings.Repeat("the quick brown fox jumps over a lazy dog and keeps running through the field ", 3),
		"ok",
		"",
	} {
		reason, ok := Check(msg)
		assert.False(t, ok, "false positive on %q: %s", msg, reason)
	}
}
