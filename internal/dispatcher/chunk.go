package dispatcher

import (
	"strings"
	"unicode/utf8"
)

// MaxMessageBytes is the platform's text message limit.
const MaxMessageBytes = 4096

// splitText cuts text on line boundaries into chunks of at most limit bytes.
// Lines longer than limit are cut at a rune boundary.
func splitText(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageBytes
	}
	if len(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)
	emit := func() {
		if chunk := strings.TrimRight(current.String(), "\n"); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			emit()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if current.Len()+len(line) > limit {
			emit()
		}
		current.WriteString(line)
	}
	emit()

	return chunks
}
