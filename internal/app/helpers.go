package app

import (
	"sort"
	"strings"

	"voice-agent/internal/store"
)

// truncateEllipsis caps s at max runes, appending an ellipsis when trimmed.
func truncateEllipsis(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

// truncateRunes caps s at max runes with no marker; used for titles.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sortMessagesByTime returns a copy sorted ascending by timestamp, with the
// message ID as a stable tiebreaker. Append order is left untouched.
func sortMessagesByTime(msgs []*store.Message) []*store.Message {
	out := make([]*store.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
