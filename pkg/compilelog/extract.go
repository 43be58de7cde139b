package compilelog

import (
	"strings"
)

// NoOutputMessage is returned by ExtractErrorLines for empty input.
const NoOutputMessage = "No compilation output received"

// ExtractErrorLines cleans decoded compiler output and keeps only the lines
// that mention an error.
//
// Control characters are stripped and the text trimmed. Lines containing the
// literal "error" or "Error" are kept in their original order, each trimmed;
// when no line matches, the whole cleaned text is returned. Applying it to its
// own output yields the same result.
func ExtractErrorLines(text string) string {
	if text == "" {
		return NoOutputMessage
	}

	cleaned := strings.TrimSpace(stripControl(text))
	if cleaned == "" {
		return NoOutputMessage
	}

	var matched []string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "error") || strings.Contains(line, "Error") {
			matched = append(matched, line)
		}
	}

	if len(matched) == 0 {
		return cleaned
	}
	return strings.Join(matched, "\n")
}

// stripControl removes NUL and the C0/C1 control ranges while keeping tab,
// line feed and carriage return.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r <= 0x08, r == 0x0B, r == 0x0C, r >= 0x0E && r <= 0x1F, r >= 0x7F && r <= 0x9F:
			return -1
		}
		return r
	}, s)
}
