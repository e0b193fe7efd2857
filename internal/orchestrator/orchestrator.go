package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	ctxpkg "github.com/stupiduntilnot/chatrelay/internal/context"
	"github.com/stupiduntilnot/chatrelay/internal/db"
	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/model"
	"github.com/stupiduntilnot/chatrelay/internal/tool"
)

// DefaultImageCaption captions a generated image whose prompt is empty.
const DefaultImageCaption = "Here is your image."

// HistoryStore loads and saves chat sessions.
type HistoryStore interface {
	ctxpkg.Provider
	ctxpkg.Saver
}

// DefaultBotName is the username stored on assistant and tool entries when
// none is configured. An empty username would not survive a reload.
const DefaultBotName = "assistant"

// EventLogger records turn events. Implementations must not fail the turn.
type EventLogger interface {
	LogEvent(parentID *int64, eventType string, payload map[string]any) *int64
}

type Options struct {
	Provider  model.Provider
	Store     HistoryStore
	Assembler ctxpkg.Assembler
	Trimmer   *ctxpkg.Trimmer
	Registry  *tool.Registry
	Runner    *tool.Runner
	Events    EventLogger
	BotName   string
	MimeType  string
	Logger    *slog.Logger
	// NewID returns a unique token for turns whose incoming message has no id.
	NewID func() string
}

// Orchestrator runs one completion cycle per turn: assemble, call the
// model, execute requested tools, call the model again and persist.
type Orchestrator struct {
	opts Options
}

func New(opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
	}
	if opts.BotName == "" {
		opts.BotName = DefaultBotName
	}
	if opts.MimeType == "" {
		opts.MimeType = "image/png"
	}
	if opts.Trimmer == nil {
		opts.Trimmer = &ctxpkg.Trimmer{}
	}
	if opts.Runner == nil {
		opts.Runner = tool.NewRunner(opts.Registry)
	}
	return &Orchestrator{opts: opts}
}

type toolRound struct {
	records []history.Message
	images  []*tool.Image
}

// Complete answers incoming within the session key. It returns the
// assistant record, whose Images hold the generated images base64 encoded.
// History is persisted only after the whole cycle succeeded.
func (o *Orchestrator) Complete(ctx context.Context, incoming history.Message, key string) (history.Message, error) {
	stored := o.opts.Store.Load(ctx, key)
	asm := o.opts.Assembler.Assemble(stored, incoming)
	o.event(ctx, db.EventContextAssembled, map[string]any{
		"chat_key": key,
		"stored":   len(stored),
		"window":   len(asm.Window),
		"messages": len(asm.Messages),
	})

	first, err := o.opts.Provider.ChatCompletion(ctx, model.Request{
		Messages: asm.Messages,
		Tools:    o.opts.Registry.Specs(),
	})
	if err != nil {
		return history.Message{}, fmt.Errorf("completion: %w", err)
	}

	base := incoming.ID
	if base == "" {
		base = o.opts.NewID()
	}

	final := first
	var round toolRound
	if len(first.ToolCalls) > 0 {
		round = o.runTools(ctx, base, first)
		followUp := make([]ctxpkg.Message, 0, len(asm.Messages)+1+len(first.ToolCalls))
		followUp = append(followUp, asm.Messages...)
		followUp = append(followUp, ctxpkg.Message{Role: ctxpkg.RoleAssistant, Content: first.Content, ToolCalls: first.ToolCalls})
		for _, r := range round.records[1:] {
			followUp = append(followUp, ctxpkg.Message{Role: ctxpkg.RoleTool, Content: r.Text, ToolCallID: r.ToolCallID})
		}
		final, err = o.opts.Provider.ChatCompletion(ctx, model.Request{Messages: followUp})
		if err != nil {
			return history.Message{}, fmt.Errorf("follow-up completion: %w", err)
		}
		if len(final.ToolCalls) > 0 {
			o.opts.Logger.Warn("nested_tool_calls_ignored", "chat_key", key, "calls", len(final.ToolCalls))
		}
	}

	assistantID := base + "-assistant"
	replyTo := history.ReplyTarget(assistantID, incoming.ID)
	assistant := history.Message{
		ID:        assistantID,
		Role:      history.RoleAssistant,
		Username:  o.opts.BotName,
		Text:      CleanAnswer(final.Content),
		ReplyToID: replyTo,
	}
	for _, img := range round.images {
		mimeType := img.MimeType
		if mimeType == "" {
			mimeType = o.opts.MimeType
		}
		assistant.Images = append(assistant.Images, base64.StdEncoding.EncodeToString(img.Data))
		assistant.ToolImagesMeta = append(assistant.ToolImagesMeta, history.ImageMeta{
			Prompt:   StripPrefix(img.Prompt),
			MimeType: mimeType,
		})
	}

	sequence := make([]history.Message, 0, len(asm.Window)+2+len(round.records)+len(round.images))
	sequence = append(sequence, asm.Window...)
	sequence = append(sequence, incoming)
	sequence = append(sequence, round.records...)
	sequence = append(sequence, assistant)
	for i, meta := range assistant.ToolImagesMeta {
		sequence = append(sequence, history.Message{
			ID:        assistantID + "-image-" + strconv.Itoa(i),
			Role:      history.RoleAssistant,
			Username:  o.opts.BotName,
			Text:      ImageCaption(meta.Prompt) + " " + history.AssistantImageMarker,
			ReplyToID: replyTo,
		})
	}

	saved, err := o.opts.Trimmer.Persist(ctx, o.opts.Store, key, sequence)
	if err != nil {
		return history.Message{}, fmt.Errorf("persist history: %w", err)
	}
	o.event(ctx, db.EventHistorySaved, map[string]any{"chat_key": key, "messages": len(saved)})
	return assistant, nil
}

// runTools executes every requested call. The first record is the
// assistant tool-call message, followed by one tool message per call.
func (o *Orchestrator) runTools(ctx context.Context, base string, resp model.CompletionResponse) toolRound {
	round := toolRound{records: make([]history.Message, 0, 1+len(resp.ToolCalls))}
	round.records = append(round.records, history.Message{
		ID:        base + "-tool-calls",
		Role:      history.RoleAssistant,
		Username:  o.opts.BotName,
		Text:      resp.Content,
		ToolCalls: resp.ToolCalls,
	})

	for i, tc := range resp.ToolCalls {
		o.event(ctx, db.EventToolCallStarted, map[string]any{"tool_call_id": tc.ID, "tool_name": tc.Function.Name})
		result, err := o.opts.Runner.RunOne(ctx, tool.Call{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
		if err != nil {
			o.opts.Logger.Warn("tool_call_failed", "tool_name", tc.Function.Name, "tool_call_id", tc.ID, "error", err)
			result = tool.Failed(err.Error())
		}
		if result.Status == tool.StatusFailed {
			o.event(ctx, db.EventToolCallFailed, map[string]any{"tool_call_id": tc.ID, "tool_name": tc.Function.Name, "reason": result.Reason})
		} else {
			o.event(ctx, db.EventToolCallDone, map[string]any{"tool_call_id": tc.ID, "tool_name": tc.Function.Name, "status": result.Status})
		}
		if result.Image != nil {
			round.images = append(round.images, result.Image)
		}
		round.records = append(round.records, history.Message{
			ID:         base + "-tool-" + strconv.Itoa(i),
			Role:       history.RoleTool,
			Username:   o.opts.BotName,
			Text:       result.Content(),
			ToolCallID: tc.ID,
		})
	}
	return round
}

func (o *Orchestrator) event(ctx context.Context, eventType string, payload map[string]any) {
	if o.opts.Events == nil {
		return
	}
	o.opts.Events.LogEvent(db.EventParent(ctx), eventType, payload)
}

// ImageCaption is the caption sent and stored with a generated image.
func ImageCaption(prompt string) string {
	if c := strings.TrimSpace(prompt); c != "" {
		return c
	}
	return DefaultImageCaption
}
