package caption

import "strings"

// WrapText breaks text into lines of at most cols columns. Wrapping prefers
// whitespace boundaries; a word longer than a full line is hard-broken.
// Text without any whitespace (character-tokenized languages) wraps at rune
// boundaries. Empty text yields no lines.
func WrapText(text string, cols int) []string {
	if cols < 1 {
		cols = 1
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var lines []string
	for _, word := range strings.Fields(text) {
		runes := []rune(word)

		// Hard-break oversized words.
		for len(runes) > cols {
			lines = append(lines, string(runes[:cols]))
			runes = runes[cols:]
		}
		word = string(runes)
		if word == "" {
			continue
		}

		if n := len(lines); n > 0 {
			candidate := lines[n-1] + " " + word
			if lineWidthOf(candidate) <= cols {
				lines[n-1] = candidate
				continue
			}
		}
		lines = append(lines, word)
	}
	return lines
}

// lineWidthOf counts the rune width of a line.
func lineWidthOf(s string) int {
	return len([]rune(s))
}
