package context

import (
	"context"

	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// Trimmer bounds a session's history before it is persisted.
type Trimmer struct {
	MaxMessages int
}

// Trim clears image payloads (leaving a marker in the text), keeps the last
// MaxMessages entries and drops leading tool fragments. The input is not
// modified.
func (t *Trimmer) Trim(messages []history.Message) []history.Message {
	stripped := StripImages(messages)
	if t.MaxMessages > 0 && len(stripped) > t.MaxMessages {
		stripped = stripped[len(stripped)-t.MaxMessages:]
	}
	return StripLeadingFragments(stripped)
}

// Persist trims messages and saves them under key.
func (t *Trimmer) Persist(ctx context.Context, s Saver, key string, messages []history.Message) ([]history.Message, error) {
	trimmed := t.Trim(messages)
	if err := s.Save(ctx, key, trimmed); err != nil {
		return nil, err
	}
	return trimmed, nil
}

// StripImages returns a copy of messages without image payloads. A user
// message that carried images gets the user image marker appended; an
// assistant message that carried generated images gets the assistant marker.
func StripImages(messages []history.Message) []history.Message {
	out := make([]history.Message, len(messages))
	for i, m := range messages {
		if len(m.Images) > 0 {
			switch {
			case m.Role == history.RoleUser:
				m.Text += " " + history.UserImageMarker
			case m.Role == history.RoleAssistant && len(m.ToolImagesMeta) > 0:
				m.Text += " " + history.AssistantImageMarker
			}
		}
		m.Images = nil
		out[i] = m
	}
	return out
}
