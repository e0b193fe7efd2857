package context

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// ToolInstruction is the default system directive for tool usage.
const ToolInstruction = "TOOL USAGE INSTRUCTIONS: If any member of the chat asks to create, draw or render an image or a picture in any language, always call the `generate_image` tool and do not describe the JSON yourself or answer with some text. Otherwise return concise, human-friendly answers without technical prefixes. "

const defaultMimeType = "image/png"

// Assembly is the result of assembling a turn's context.
type Assembly struct {
	// Window is the stored history that survived compression and filtering.
	// It is the prefix of the sequence persisted after the turn.
	Window []history.Message
	// Messages is the ordered list sent to the model.
	Messages []Message
}

// StandardAssembler builds the model context from system turns, the bounded
// stored history and the incoming message.
type StandardAssembler struct {
	SystemPrompt    string
	StylePrompt     string
	ToolInstruction string
	MimeType        string
	Compressor      Compressor
	Now             func() time.Time
	Logger          *slog.Logger
}

// Assemble builds the final message list: system turns + history + incoming.
func (a *StandardAssembler) Assemble(stored []history.Message, incoming history.Message) Assembly {
	window := stored
	if a.Compressor != nil {
		window = a.Compressor.Compress(window)
	}
	window = FilterToolMessages(window, a.Logger)

	messages := make([]Message, 0, 3+len(window)+1)
	messages = append(messages, a.systemTurns()...)
	for _, m := range window {
		messages = append(messages, a.render(m, false))
	}
	messages = append(messages, a.render(incoming, true))
	return Assembly{Window: window, Messages: messages}
}

func (a *StandardAssembler) systemTurns() []Message {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	instruction := a.ToolInstruction
	if instruction == "" {
		instruction = ToolInstruction
	}

	turns := make([]Message, 0, 3)
	if a.SystemPrompt != "" {
		turns = append(turns, Message{Role: RoleSystem, Content: a.SystemPrompt})
	}
	stamp := now().UTC().Format("2006-01-02 15:04:05") + " UTC"
	turns = append(turns,
		Message{Role: RoleSystem, Content: fmt.Sprintf("Current date and time (UTC): %s. Use this to keep your answers time-aware.", stamp)},
		Message{Role: RoleSystem, Content: instruction},
	)
	return turns
}

func (a *StandardAssembler) render(m history.Message, incoming bool) Message {
	if m.Role == history.RoleTool {
		return Message{Role: RoleTool, Content: m.Text, ToolCallID: m.ToolCallID}
	}
	if m.HasToolCalls() {
		return Message{Role: RoleAssistant, Content: m.Text, ToolCalls: m.ToolCalls}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "@%s said (message %s)", m.Username, m.ID)
	if reply := history.ReplyTarget(m.ID, m.ReplyToID); reply != "" {
		fmt.Fprintf(&b, " in reply to message %s", reply)
	}
	b.WriteString(":\n")
	b.WriteString(m.Text)
	if incoming && a.StylePrompt != "" {
		b.WriteString("\n")
		b.WriteString(a.StylePrompt)
	}

	out := Message{Role: m.Role, Content: b.String()}
	if out.Role == "" {
		out.Role = RoleUser
	}
	mime := a.MimeType
	if mime == "" {
		mime = defaultMimeType
	}
	for _, img := range m.Images {
		out.Images = append(out.Images, "data:"+mime+";base64,"+img)
	}
	return out
}
