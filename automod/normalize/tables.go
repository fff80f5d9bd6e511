package normalize

// Static obfuscation tables mapping look-alike code points to the ASCII
// letters they imitate. NFKC already folds most compatibility characters
// (fullwidth, mathematical styles); the tables below cover what NFKC leaves
// alone, plus common manual substitutions.

// Cyrillic letters that render close enough to Latin to pass as them.
var homoglyphs = map[rune]string{
	'а': "a", 'е': "e", 'о': "o", 'р': "p",
	'с': "c", 'х': "x", 'у': "y", 'к': "k",
	'м': "m", 'т': "t", 'в': "b", 'н': "h",
	'д': "d", 'г': "g", 'б': "b",
}

// Leetspeak digit and symbol substitutions.
var leet = map[rune]string{
	'0': "o", '1': "i", '3': "e", '4': "a",
	'5': "s", '7': "t", '@': "a", '$': "s",
}

// Emoji that stand in for single letters and are not decomposed by NFKC.
var emojiLetters = map[rune]string{
	'❌': "x", '⭕': "o",
}

// Squared-letter abbreviation emoji with multi-letter readings.
var squaredAbbrev = map[rune]string{
	'🆎': "ab", '🆑': "cl", '🆒': "cool", '🆓': "free",
	'🆔': "id", '🆕': "new", '🆖': "ng", '🆗': "ok",
	'🆘': "sos", '🆙': "up", '🆚': "vs",
}

// obfuscationMap is the combined lookup used by the per-rune mapper.
var obfuscationMap = buildObfuscationMap()

func buildObfuscationMap() map[rune]string {
	m := make(map[rune]string, 512)

	// fullwidth latin, in case input dodges the NFKC pass
	for i := 0; i < 26; i++ {
		m[rune(0xFF21+i)] = string(rune('a' + i))
		m[rune(0xFF41+i)] = string(rune('a' + i))
	}

	// mathematical alphanumeric symbols: bold, italic, bold-italic, script,
	// fraktur, double-struck, sans-serif (+bold/italic), monospace. Each
	// style is an upper/lower pair of 26-letter runs; reserved gaps in the
	// script/fraktur/double-struck blocks simply never occur as input.
	for _, base := range []rune{
		0x1D400, 0x1D41A, 0x1D434, 0x1D44E, 0x1D468, 0x1D482,
		0x1D49C, 0x1D4B6, 0x1D4D0, 0x1D4EA, 0x1D504, 0x1D51E,
		0x1D538, 0x1D552, 0x1D5A0, 0x1D5BA, 0x1D5D4, 0x1D5EE,
		0x1D608, 0x1D622, 0x1D63C, 0x1D656, 0x1D670, 0x1D68A,
	} {
		for i := 0; i < 26; i++ {
			m[base+rune(i)] = string(rune('a' + i))
		}
	}

	// enclosed alphanumerics: circled, parenthesized-squared, negative
	// circled, squared, negative squared
	for _, base := range []rune{0x24B6, 0x24D0, 0x1F110, 0x1F130, 0x1F150, 0x1F170} {
		for i := 0; i < 26; i++ {
			m[base+rune(i)] = string(rune('a' + i))
		}
	}

	// regional indicators 🇦..🇿
	for i := 0; i < 26; i++ {
		m[rune(0x1F1E6+i)] = string(rune('a' + i))
	}

	for k, v := range homoglyphs {
		m[k] = v
	}
	for k, v := range leet {
		m[k] = v
	}
	for k, v := range emojiLetters {
		m[k] = v
	}
	for k, v := range squaredAbbrev {
		m[k] = v
	}
	return m
}
