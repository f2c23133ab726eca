package summary

import (
	"strings"
	"unicode/utf8"
)

// SlackMaxMessageLength is Slack's practical limit for one message body.
const SlackMaxMessageLength = 4000

// CheckSlackLength reports whether text fits in a single Slack message.
func CheckSlackLength(text string) bool {
	return utf8.RuneCountInString(text) <= SlackMaxMessageLength
}

// SplitForSlack splits text into chunks of at most max characters, breaking
// on blank lines, then on newlines, then anywhere. Separators at chunk
// boundaries are dropped; blank chunks are omitted.
func SplitForSlack(text string, max int) []string {
	if max <= 0 {
		max = SlackMaxMessageLength
	}
	var out []string
	for _, c := range split(text, max, []string{"\n\n", "\n"}) {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}

func split(text string, max int, seps []string) []string {
	if utf8.RuneCountInString(text) <= max {
		return []string{text}
	}
	if len(seps) == 0 {
		return hardSplit(text, max)
	}

	sep := seps[0]
	var (
		chunks []string
		cur    string
		has    bool
	)
	flush := func() {
		if has {
			chunks = append(chunks, cur)
		}
		cur, has = "", false
	}

	for _, part := range strings.Split(text, sep) {
		if utf8.RuneCountInString(part) > max {
			flush()
			chunks = append(chunks, split(part, max, seps[1:])...)
			continue
		}
		candidate := part
		if has {
			candidate = cur + sep + part
		}
		if utf8.RuneCountInString(candidate) <= max {
			cur, has = candidate, true
			continue
		}
		flush()
		cur, has = part, true
	}
	flush()
	return chunks
}

func hardSplit(text string, max int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/max+1)
	for len(runes) > max {
		chunks = append(chunks, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
