package chat

import "strings"

// SentinelTitle marks a session that has not received its first user message yet.
const SentinelTitle = "new chat"

const titlePrefixLen = 30

// Session is one independent conversation thread with its own ordered log.
type Session struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// Collection is the persisted shape: all sessions in creation order plus
// the currently active selection.
type Collection struct {
	Sessions []Session `json:"sessions"`
	ActiveID string    `json:"activeId,omitempty"`
}

// DeriveTitle builds a session title from the first user message: a
// truncated prefix of the text plus an ellipsis marker. Derivation happens
// once per session; the result is immutable afterward.
func DeriveTitle(text string) string {
	trimmed := strings.TrimSpace(text)
	runes := []rune(trimmed)
	if len(runes) > titlePrefixLen {
		runes = runes[:titlePrefixLen]
	}
	return string(runes) + "..."
}
