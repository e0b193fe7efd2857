package context

import (
	"log/slog"

	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// FilterToolMessages removes tool exchanges the completion service would
// reject. A tool message survives only when its tool_call_id belongs to the
// nearest preceding assistant tool-call message with nothing but tool
// messages in between. An assistant tool-call message survives only when
// every one of its calls is answered; otherwise it is dropped together with
// its partial answers.
func FilterToolMessages(messages []history.Message, logger *slog.Logger) []history.Message {
	if logger == nil {
		logger = slog.Default()
	}
	out := make([]history.Message, 0, len(messages))
	for i := 0; i < len(messages); i++ {
		m := messages[i]
		switch {
		case m.HasToolCalls():
			answers, complete := collectAnswers(m, messages[i+1:], logger)
			if !complete {
				logger.Warn("dropping_unanswered_tool_calls", "message_id", m.ID, "calls", len(m.ToolCalls), "answered", len(answers))
			} else {
				out = append(out, m)
				out = append(out, answers...)
			}
			i += countTools(messages[i+1:])
		case m.Role == history.RoleTool:
			logger.Warn("dropping_orphaned_tool_message", "message_id", m.ID, "tool_call_id", m.ToolCallID)
		default:
			out = append(out, m)
		}
	}
	return out
}

// collectAnswers returns the valid tool messages that directly follow call
// and whether every call id got an answer.
func collectAnswers(call history.Message, rest []history.Message, logger *slog.Logger) ([]history.Message, bool) {
	pending := make(map[string]bool, len(call.ToolCalls))
	for _, tc := range call.ToolCalls {
		if tc.ID != "" {
			pending[tc.ID] = true
		}
	}
	var answers []history.Message
	answered := map[string]bool{}
	for _, m := range rest {
		if m.Role != history.RoleTool {
			break
		}
		if !pending[m.ToolCallID] || answered[m.ToolCallID] {
			logger.Warn("dropping_orphaned_tool_message", "message_id", m.ID, "tool_call_id", m.ToolCallID)
			continue
		}
		answered[m.ToolCallID] = true
		answers = append(answers, m)
	}
	return answers, len(pending) > 0 && len(answered) == len(pending)
}

func countTools(rest []history.Message) int {
	n := 0
	for _, m := range rest {
		if m.Role != history.RoleTool {
			break
		}
		n++
	}
	return n
}

// StripLeadingFragments drops tool messages and assistant tool-call messages
// from the head so the history starts at a self-contained message.
func StripLeadingFragments(messages []history.Message) []history.Message {
	for len(messages) > 0 && !messages[0].SelfContained() {
		messages = messages[1:]
	}
	return messages
}
