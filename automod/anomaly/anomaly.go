// Package anomaly flags structurally abusive message content: walls of
// repeated characters, invisible-character padding, decoration floods, and
// similar patterns that carry no conversational value. Thresholds scale with
// message length so long legitimate prose and code stay clear.
package anomaly

import (
	"regexp"
	"strings"
)

var (
	emojiRegex = regexp.MustCompile(`[\x{1F600}-\x{1F64F}\x{1F300}-\x{1F5FF}\x{1F680}-\x{1F6FF}\x{1F1E0}-\x{1F1FF}\x{2702}-\x{27B0}\x{24C2}-\x{1F251}]`)
	linkRegex  = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+)`)
	wordRegex  = regexp.MustCompile(`[\p{L}\p{N}_]{3,}`)
	shortWords = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

	specialCharClass = `[!@#$%^&*()_+=\[\]{}|\\:;"'<>,.?/~` + "`" + `-]`
	specialRunShort  = regexp.MustCompile(specialCharClass + `{15,}`)
	specialRunLong   = regexp.MustCompile(specialCharClass + `{25,}`)

	alternatingRegex = regexp.MustCompile(`(.\|){10,}|(\|-){10,}`)
	separatorRegex   = regexp.MustCompile(`[.]{20,}|[-]{20,}|[_]{20,}|[=]{20,}|[+]{20,}`)

	// runs of letters, digits, and whitespace are "readable"; what remains
	// after stripping them measures how much of the text is noise
	readableRegex = regexp.MustCompile(`[a-zA-Z0-9а-яА-ЯёЁ\s]+`)

	chaoticSpecial = regexp.MustCompile(`[^a-zA-Zа-яА-ЯёЁ0-9\s]`)

	blankLineRegex = regexp.MustCompile(`^[\s` + "`" + `\x{200B}-\x{200F}\x{FEFF}]*$`)
)

func isZeroWidth(r rune) bool {
	return (r >= 0x200B && r <= 0x200F) || r == 0xFEFF || r == 0x2060
}

// Check reports whether text is structurally anomalous and, when it is, a
// short reason suitable for audit logs. It is pure and never errors.
func Check(text string) (string, bool) {
	runes := []rune(text)
	n := len(runes)
	if n < 3 {
		return "", false
	}

	maxRun, maxNonSpaceRun, tickRun := runStats(runes)
	if maxRun >= 50 {
		return "repeated character run", true
	}
	adaptiveRun := 25
	if n >= 100 {
		adaptiveRun = 30
	}
	if maxNonSpaceRun >= adaptiveRun {
		return "repeated character run", true
	}

	if n > 30 {
		if reason, ok := dominantChar(runes, n); ok {
			return reason, ok
		}
	}

	tickCount := strings.Count(text, "`")
	if n < 100 {
		if tickCount >= 60 || tickRun >= 20 {
			return "backtick flood", true
		}
	} else if tickCount >= 150 || tickRun >= 30 {
		return "backtick flood", true
	}

	lines := strings.Split(text, "\n")
	if len(lines) >= 10 {
		blank := 0
		for _, l := range lines {
			if blankLineRegex.MatchString(l) {
				blank++
			}
		}
		threshold := 0.70
		if len(lines) >= 30 {
			threshold = 0.75
		}
		if float64(blank)/float64(len(lines)) >= threshold {
			return "blank line flood", true
		}
	}

	if reason, ok := codeFenceSpam(text); ok {
		return reason, ok
	}

	if n > 4000 {
		noise := len([]rune(readableRegex.ReplaceAllString(text, "")))
		if float64(noise)/float64(n) >= 0.75 {
			return "unreadable content", true
		}
	}

	invisible := 0
	for _, r := range runes {
		if isZeroWidth(r) {
			invisible++
		}
	}
	if (n < 100 && invisible > 30) || invisible > 100 {
		return "invisible character padding", true
	}

	if n > 20 {
		emoji := len(emojiRegex.FindAllString(text, -1))
		ratio := float64(emoji) / float64(n)
		if n < 100 {
			if emoji > 40 || (ratio > 0.65 && emoji > 15) {
				return "emoji flood", true
			}
		} else if emoji > 80 || (ratio > 0.6 && emoji > 30) {
			return "emoji flood", true
		}
	}

	links := len(linkRegex.FindAllString(text, -1))
	if (n < 100 && links >= 5) || links >= 10 {
		return "link flood", true
	}

	if n > 50 {
		if reason, ok := repeatedWord(text, n); ok {
			return reason, ok
		}
	}
	if n > 80 {
		if reason, ok := repeatedPhrase(runes, n); ok {
			return reason, ok
		}
	}

	if alternatingRegex.MatchString(text) {
		return "alternating symbol pattern", true
	}
	if n < 100 {
		if specialRunShort.MatchString(text) {
			return "special character run", true
		}
	} else if specialRunLong.MatchString(text) {
		return "special character run", true
	}
	if separatorRegex.MatchString(text) {
		return "separator flood", true
	}

	if n > 50 {
		if len(shortWords.FindAllString(text, -1)) < 3 {
			special := len(chaoticSpecial.FindAllString(text, -1))
			if float64(special)/float64(n) > 0.6 {
				return "chaotic symbols", true
			}
		}
	}

	return "", false
}

// runStats returns the longest run of any rune, the longest run excluding
// whitespace, and the longest backtick run, in one pass.
func runStats(runes []rune) (maxRun, maxNonSpace, tickRun int) {
	var prev rune = -1
	run := 0
	for _, r := range runes {
		if r == prev {
			run++
		} else {
			prev = r
			run = 1
		}
		if run > maxRun {
			maxRun = run
		}
		if run > maxNonSpace && r != ' ' && r != '\n' && r != '\t' {
			maxNonSpace = run
		}
		if r == '`' && run > tickRun {
			tickRun = run
		}
	}
	return maxRun, maxNonSpace, tickRun
}

func dominantChar(runes []rune, n int) (string, bool) {
	freq := make(map[rune]int)
	for _, r := range runes {
		switch r {
		case ' ', '\n', '\t', '\r':
			continue
		}
		freq[r]++
	}
	dominant := 0
	for _, c := range freq {
		if c > dominant {
			dominant = c
		}
	}
	if dominant == 0 {
		return "", false
	}

	ratio := float64(dominant) / float64(n)
	switch {
	case n < 100:
		if ratio >= 0.70 {
			return "dominant character", true
		}
	case n < 500:
		if ratio >= 0.75 {
			return "dominant character", true
		}
	default:
		if ratio >= 0.80 {
			return "dominant character", true
		}
	}
	if n < 100 && dominant >= 50 {
		return "dominant character", true
	}
	if dominant >= 300 {
		return "dominant character", true
	}
	return "", false
}

// codeFenceSpam looks inside large fenced blocks for a single line repeated
// enough to be padding rather than code.
func codeFenceSpam(text string) (string, bool) {
	if strings.Count(text, "```") < 2 {
		return "", false
	}
	parts := strings.Split(text, "```")
	for i := 1; i < len(parts); i += 2 {
		code := strings.TrimSpace(parts[i])
		if len([]rune(code)) < 10 {
			continue
		}
		codeLines := strings.Split(code, "\n")
		if len([]rune(code)) <= 2000 && len(codeLines) <= 40 {
			continue
		}
		freq := make(map[string]int)
		most := 0
		for _, l := range codeLines {
			freq[l]++
			if freq[l] > most {
				most = freq[l]
			}
		}
		if most > 15 {
			return "repeated lines in code block", true
		}
	}
	return "", false
}

func repeatedWord(text string, n int) (string, bool) {
	words := wordRegex.FindAllString(strings.ToLower(text), -1)
	if len(words) <= 10 {
		return "", false
	}
	freq := make(map[string]int)
	most := 0
	for _, w := range words {
		freq[w]++
		if freq[w] > most {
			most = freq[w]
		}
	}
	ratio := float64(most) / float64(len(words))
	if n < 100 {
		if most > 12 && ratio > 0.45 {
			return "repeated word", true
		}
	} else if most > 30 && ratio > 0.4 {
		return "repeated word", true
	}
	return "", false
}

// repeatedPhrase slides fixed-size windows over the text and counts exact
// window repeats, catching copy-pasted fragments that word counting misses.
func repeatedPhrase(runes []rune, n int) (string, bool) {
	phraseLens := []int{15, 25, 35}
	minRepeats := 4
	if n >= 200 {
		phraseLens = []int{20, 30, 40}
		minRepeats = 8
	}
	for _, pl := range phraseLens {
		if n < pl*3 {
			continue
		}
		step := pl / 3
		if step < 5 {
			step = 5
		}
		freq := make(map[string]int)
		most := 0
		for i := 0; i < n-pl; i += step {
			p := string(runes[i : i+pl])
			freq[p]++
			if freq[p] > most {
				most = freq[p]
			}
		}
		if most >= minRepeats {
			return "repeated phrase", true
		}
	}
	return "", false
}
