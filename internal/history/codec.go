package history

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates encoded messages inside a session record. Compact JSON
// never contains a raw newline, so it cannot occur inside an entry.
const Delimiter = "\n\n"

// wireMessage is the persisted shape of a Message. Pointer and raw fields
// let the decoder tell missing fields apart from empty ones.
type wireMessage struct {
	ID             json.RawMessage `json:"id,omitempty"`
	Role           *string         `json:"role,omitempty"`
	Username       *string         `json:"username,omitempty"`
	Text           *string         `json:"text,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	ReplyToID      json.RawMessage `json:"reply_to_id"`
	Images         []string        `json:"images"`
	ToolCallID     string          `json:"tool_call_id,omitempty"`
	ToolCalls      []ToolCall      `json:"tool_calls,omitempty"`
	ToolImagesMeta []ImageMeta     `json:"tool_images_meta,omitempty"`
}

// Encode serializes messages into one session record.
func Encode(messages []Message) (string, error) {
	parts := make([]string, 0, len(messages))
	for i, m := range messages {
		b, err := json.Marshal(toWire(m))
		if err != nil {
			return "", fmt.Errorf("encode message %d: %w", i, err)
		}
		parts = append(parts, string(b))
	}
	return strings.Join(parts, Delimiter), nil
}

// Decode parses a session record. It never fails: segments that are not
// JSON objects are wrapped as legacy user messages and missing fields are
// backfilled.
func Decode(record string) []Message {
	if strings.TrimSpace(record) == "" {
		return nil
	}
	segments := strings.Split(record, Delimiter)
	out := make([]Message, 0, len(segments))
	for i, seg := range segments {
		if strings.TrimSpace(seg) == "" {
			continue
		}
		m, ok := decodeSegment(seg, i)
		if !ok {
			m = legacyMessage(seg, i)
		}
		out = append(out, m)
	}
	return out
}

func toWire(m Message) wireMessage {
	id, _ := json.Marshal(m.ID)
	role := m.Role
	username := m.Username
	text := m.Text
	w := wireMessage{
		ID:             id,
		Role:           &role,
		Username:       &username,
		Text:           &text,
		ReplyToID:      json.RawMessage("null"),
		Images:         m.Images,
		ToolCallID:     m.ToolCallID,
		ToolCalls:      m.ToolCalls,
		ToolImagesMeta: m.ToolImagesMeta,
	}
	if m.ReplyToID != "" {
		w.ReplyToID, _ = json.Marshal(m.ReplyToID)
	}
	if w.Images == nil {
		w.Images = []string{}
	}
	return w
}

func decodeSegment(seg string, position int) (Message, bool) {
	trimmed := strings.TrimSpace(seg)
	if !strings.HasPrefix(trimmed, "{") {
		return Message{}, false
	}
	var w wireMessage
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return Message{}, false
	}

	m := Message{
		ID:             scalarString(w.ID),
		Role:           DefaultRole,
		Username:       DefaultUsername,
		ReplyToID:      scalarString(w.ReplyToID),
		ToolCallID:     w.ToolCallID,
		ToolCalls:      w.ToolCalls,
		ToolImagesMeta: w.ToolImagesMeta,
	}
	if m.ID == "" {
		m.ID = LegacyIDPrefix + strconv.Itoa(position)
	}
	if w.Role != nil && *w.Role != "" {
		m.Role = *w.Role
	}
	if w.Username != nil && *w.Username != "" {
		m.Username = *w.Username
	}
	if w.Text != nil {
		m.Text = *w.Text
	} else {
		m.Text = contentText(w.Content)
	}
	if len(w.Images) > 0 {
		m.Images = w.Images
	}
	if len(m.ToolCalls) == 0 {
		m.ToolCalls = nil
	}
	if len(m.ToolImagesMeta) == 0 {
		m.ToolImagesMeta = nil
	}
	m.ReplyToID = ReplyTarget(m.ID, m.ReplyToID)
	return m, true
}

func legacyMessage(raw string, position int) Message {
	return Message{
		ID:       LegacyIDPrefix + strconv.Itoa(position),
		Role:     RoleUser,
		Username: DefaultUsername,
		Text:     raw,
	}
}

// scalarString reads an id that older encodings wrote as either a JSON
// string or a number.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// contentText extracts text from a completion-style content field, which is
// either a string or a list of typed parts.
func contentText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
