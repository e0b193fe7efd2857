package context

import "github.com/stupiduntilnot/chatrelay/internal/history"

// Message roles understood by completion services.
const (
	RoleSystem    = "system"
	RoleUser      = history.RoleUser
	RoleAssistant = history.RoleAssistant
	RoleTool      = history.RoleTool
)

// Message is a model-agnostic chat message used across the context pipeline.
// Images are data URIs attached after the text content.
type Message struct {
	Role       string
	Content    string
	Images     []string
	ToolCalls  []history.ToolCall
	ToolCallID string
}
