package commander

import (
	"context"
	"unicode/utf16"
)

// Transport delivers replies to a chat and fetches attachments.
type Transport interface {
	SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error
	SendPhoto(ctx context.Context, chatID int64, data []byte, mimeType, caption string, replyTo int64) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Update represents an incoming webhook update.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message represents a source message.
type Message struct {
	MessageID            int64       `json:"message_id"`
	Date                 int64       `json:"date"`
	Chat                 Chat        `json:"chat"`
	From                 *User       `json:"from,omitempty"`
	ReplyToMessage       *Message    `json:"reply_to_message,omitempty"`
	ForwardFromMessageID *int64      `json:"forward_from_message_id,omitempty"`
	Text                 *string     `json:"text,omitempty"`
	Caption              *string     `json:"caption,omitempty"`
	Entities             []Entity    `json:"entities,omitempty"`
	CaptionEntities      []Entity    `json:"caption_entities,omitempty"`
	Sticker              *Sticker    `json:"sticker,omitempty"`
	Photo                []PhotoSize `json:"photo,omitempty"`
}

// Chat identifies a conversation.
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Entity marks a span of a message's text. Offset and Length count UTF-16
// code units.
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	User   *User  `json:"user,omitempty"`
}

type Sticker struct {
	FileID string `json:"file_id,omitempty"`
	Emoji  string `json:"emoji,omitempty"`
}

type PhotoSize struct {
	FileID   string `json:"file_id"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FileSize int64  `json:"file_size,omitempty"`
}

// TextValue returns the message text or "".
func (m *Message) TextValue() string {
	if m == nil || m.Text == nil {
		return ""
	}
	return *m.Text
}

// CaptionValue returns the photo caption or "".
func (m *Message) CaptionValue() string {
	if m == nil || m.Caption == nil {
		return ""
	}
	return *m.Caption
}

// EntityText returns the substring of text covered by e. Out-of-range
// entities yield "".
func EntityText(text string, e Entity) string {
	units := utf16.Encode([]rune(text))
	if e.Offset < 0 || e.Length < 0 || e.Offset+e.Length > len(units) {
		return ""
	}
	return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
}
