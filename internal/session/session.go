// Package session provides the per-session conversation state and its
// Redis-backed store.
//
// A session is a small JSON document keyed by a client-supplied opaque
// identifier. It holds the detected reply language and a bounded message
// history. Sessions expire on a sliding TTL: every load or save refreshes the
// expiry, so active conversations survive while idle ones age out.
//
// The store is deliberately fail-soft. Redis being down must never fail a
// turn: loads behave as absence, saves are dropped, and a warning is logged.
// The turn then proceeds without history and without a cached language.
package session

import "time"

// Message roles. Tool calls and tool results never enter persisted history;
// they exist only inside a single turn's orchestration.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted history entry.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts"`
}

// Session is the per-session document stored under "sessions:<id>".
type Session struct {
	CreatedAt time.Time `json:"createdAt"`
	Language  string    `json:"language,omitempty"`
	Messages  []Message `json:"messages"`
}

// New returns an empty session created now.
func New() *Session {
	return &Session{
		CreatedAt: time.Now().UTC(),
		Messages:  []Message{},
	}
}

// Append adds a user/assistant exchange to the history and trims it to max
// entries, dropping the oldest first.
func (s *Session) Append(userText, assistantText string, max int) {
	now := time.Now().UTC()
	s.Messages = append(s.Messages,
		Message{Role: RoleUser, Content: userText, TS: now},
		Message{Role: RoleAssistant, Content: assistantText, TS: now},
	)
	if max > 0 && len(s.Messages) > max {
		s.Messages = s.Messages[len(s.Messages)-max:]
	}
}
