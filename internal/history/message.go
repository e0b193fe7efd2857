package history

import "strconv"

// Role values of a stored message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Defaults used when backfilling records written by older encodings.
const (
	DefaultUsername = "legacy_user"
	DefaultRole     = RoleUser
	LegacyIDPrefix  = "legacy-"
)

// Markers appended to a message's text when its image bytes are dropped
// before persistence.
const (
	UserImageMarker      = "[User attached an image]"
	AssistantImageMarker = "[Assistant generated an image]"
)

// ToolCall is a tool invocation requested by the model. It is stored and
// replayed verbatim.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the function name and its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ImageMeta describes an image generated during a turn. Bytes are not kept.
type ImageMeta struct {
	Prompt   string `json:"prompt"`
	MimeType string `json:"mime_type"`
}

// Message is the canonical unit of a chat's conversation history.
//
// ReplyToID is empty when the message does not reply to anything. A nil
// Images slice is the empty sequence.
type Message struct {
	ID             string
	Role           string
	Username       string
	Text           string
	ReplyToID      string
	Images         []string
	ToolCallID     string
	ToolCalls      []ToolCall
	ToolImagesMeta []ImageMeta
}

// HasToolCalls reports whether m is an assistant message that requested tools.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// SelfContained reports whether a history may start at m: a user message or
// an assistant message without pending tool calls.
func (m Message) SelfContained() bool {
	return m.Role != RoleTool && !m.HasToolCalls()
}

// SessionKey renders the store key of the chat session (chatID, botID).
func SessionKey(chatID, botID int64) string {
	return strconv.FormatInt(chatID, 10) + "_" + strconv.FormatInt(botID, 10)
}

// ReplyTarget returns replyTo unless it points at id itself.
func ReplyTarget(id, replyTo string) string {
	if replyTo == id {
		return ""
	}
	return replyTo
}
