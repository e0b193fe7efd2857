// Package relay handles one inbound update end to end: filtering, session
// reset, normalization, the reply decision, completion and delivery.
package relay

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
	ctxpkg "github.com/stupiduntilnot/chatrelay/internal/context"
	"github.com/stupiduntilnot/chatrelay/internal/db"
	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/normalize"
	"github.com/stupiduntilnot/chatrelay/internal/orchestrator"
	"github.com/stupiduntilnot/chatrelay/internal/policy"
)

// SessionStore is the history surface the processor needs.
type SessionStore interface {
	ctxpkg.Provider
	ctxpkg.Saver
	Reset(ctx context.Context, key string) error
}

// Completer produces the assistant answer for a turn and persists it.
type Completer interface {
	Complete(ctx context.Context, incoming history.Message, key string) (history.Message, error)
}

type Options struct {
	BotID      int64
	ModelName  string
	Policy     *policy.Policy
	Normalizer *normalize.Normalizer
	Store      SessionStore
	Trimmer    *ctxpkg.Trimmer
	Completer  Completer
	Transport  commander.Transport
	Events     orchestrator.EventLogger
	Logger     *slog.Logger
}

type Processor struct {
	opts Options
}

func New(opts Options) *Processor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Trimmer == nil {
		opts.Trimmer = &ctxpkg.Trimmer{}
	}
	return &Processor{opts: opts}
}

// Process handles u. Ignored updates return nil. A returned error means the
// turn failed; nothing was sent and the session was left unchanged.
func (p *Processor) Process(ctx context.Context, u commander.Update) error {
	if !p.opts.Policy.Accept(u) {
		return nil
	}
	msg := u.Message
	chatID := msg.Chat.ID
	if !p.opts.Policy.Allowed(chatID) {
		p.opts.Logger.Debug("chat_not_allowed", "chat_id", chatID)
		return nil
	}
	key := history.SessionKey(chatID, p.opts.BotID)

	if p.opts.Policy.IsReset(msg) {
		if err := p.opts.Store.Reset(ctx, key); err != nil {
			return err
		}
		p.event(nil, db.EventSessionReset, map[string]any{"chat_key": key})
		p.opts.Logger.Info("session_reset", "chat_key", key)
		return nil
	}

	incoming := p.opts.Normalizer.Normalize(ctx, msg)
	if incoming == nil {
		return nil
	}

	if !p.opts.Policy.ShouldReply(msg) {
		return p.listen(ctx, key, *incoming)
	}
	return p.reply(ctx, chatID, msg.MessageID, key, *incoming)
}

// listen appends incoming to the session without answering.
func (p *Processor) listen(ctx context.Context, key string, incoming history.Message) error {
	stored := p.opts.Store.Load(ctx, key)
	sequence := append(stored, incoming)
	if _, err := p.opts.Trimmer.Persist(ctx, p.opts.Store, key, sequence); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (p *Processor) reply(ctx context.Context, chatID, messageID int64, key string, incoming history.Message) error {
	turnID := p.event(nil, db.EventTurnStarted, map[string]any{
		"chat_key":   key,
		"message_id": incoming.ID,
		"model_name": p.opts.ModelName,
	})
	ctx = db.WithEventParent(ctx, turnID)
	started := time.Now()

	answer, err := p.opts.Completer.Complete(ctx, incoming, key)
	if err != nil {
		p.event(turnID, db.EventTurnFailed, map[string]any{"chat_key": key, "error": err.Error()})
		p.opts.Logger.Error("turn_failed", "chat_key", key, "error", err)
		return err
	}
	p.event(turnID, db.EventTurnCompleted, map[string]any{
		"chat_key":   key,
		"latency_ms": time.Since(started).Milliseconds(),
		"images":     len(answer.Images),
	})

	sent := p.deliver(ctx, chatID, messageID, answer)
	p.event(turnID, db.EventReplySent, map[string]any{"chat_id": chatID, "deliveries": sent})
	return nil
}

// deliver sends the answer text and every generated image. Delivery errors
// are logged and do not fail the turn.
func (p *Processor) deliver(ctx context.Context, chatID, replyTo int64, answer history.Message) int {
	sent := 0
	if answer.Text != "" {
		if err := p.opts.Transport.SendMessage(ctx, chatID, answer.Text, replyTo); err != nil {
			p.opts.Logger.Error("send_message_failed", "chat_id", chatID, "error", err)
		} else {
			sent++
		}
	}
	for i, encoded := range answer.Images {
		data, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			p.opts.Logger.Error("image_decode_failed", "chat_id", chatID, "index", i, "error", err)
			continue
		}
		var meta history.ImageMeta
		if i < len(answer.ToolImagesMeta) {
			meta = answer.ToolImagesMeta[i]
		}
		caption := orchestrator.ImageCaption(meta.Prompt)
		if err := p.opts.Transport.SendPhoto(ctx, chatID, data, meta.MimeType, caption, replyTo); err != nil {
			p.opts.Logger.Error("send_photo_failed", "chat_id", chatID, "index", i, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func (p *Processor) event(parentID *int64, eventType string, payload map[string]any) *int64 {
	if p.opts.Events == nil {
		return nil
	}
	return p.opts.Events.LogEvent(parentID, eventType, payload)
}
