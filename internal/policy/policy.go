package policy

import (
	"math/rand/v2"
	"strings"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
)

// GroupAnonymousBot is the sender Telegram uses for anonymous group admins.
const GroupAnonymousBot = "GroupAnonymousBot"

// RandomSource yields uniform draws in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

type Options struct {
	BotID        int64
	BotName      string
	Frequency    float64
	AllowedChats []int64
	ResetCommand string
	Rand         RandomSource
}

// Policy decides which updates the relay handles and when it answers.
// It is read-only after construction.
type Policy struct {
	botID        int64
	mention      string
	frequency    float64
	allowed      map[int64]bool
	resetCommand string
	rand         RandomSource
}

func New(opts Options) *Policy {
	p := &Policy{
		botID:        opts.BotID,
		frequency:    opts.Frequency,
		allowed:      make(map[int64]bool, len(opts.AllowedChats)),
		resetCommand: strings.TrimSpace(opts.ResetCommand),
		rand:         opts.Rand,
	}
	if opts.BotName != "" {
		p.mention = "@" + opts.BotName
	}
	for _, id := range opts.AllowedChats {
		p.allowed[id] = true
	}
	if p.rand == nil {
		p.rand = globalRand{}
	}
	return p
}

// Accept reports whether u is a message the relay should look at: not from
// another bot (anonymous admins excepted) and not a channel forward.
func (p *Policy) Accept(u commander.Update) bool {
	m := u.Message
	if m == nil {
		return false
	}
	if m.From != nil && m.From.IsBot && m.From.Username != GroupAnonymousBot {
		return false
	}
	return m.ForwardFromMessageID == nil
}

// Allowed reports whether chatID is on the allow-list.
func (p *Policy) Allowed(chatID int64) bool {
	return p.allowed[chatID]
}

// IsReset reports whether m is the reset command: its first entity is a
// bot command and its text contains "/<reset command>".
func (p *Policy) IsReset(m *commander.Message) bool {
	if m == nil || p.resetCommand == "" || len(m.Entities) == 0 {
		return false
	}
	if m.Entities[0].Type != "bot_command" {
		return false
	}
	return strings.Contains(m.TextValue(), "/"+p.resetCommand)
}

// ShouldReply decides whether the bot answers m. Replies to the bot,
// mentions in any entity and anonymous-admin messages always trigger; other
// messages trigger with probability Frequency.
func (p *Policy) ShouldReply(m *commander.Message) bool {
	if m == nil {
		return false
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil && r.From.ID == p.botID {
		return true
	}
	if p.mentions(m.TextValue(), m.Entities) || p.mentions(m.CaptionValue(), m.CaptionEntities) {
		return true
	}
	if m.From != nil && m.From.ID == m.Chat.ID {
		return true
	}
	return p.rand.Float64() < p.frequency
}

func (p *Policy) mentions(text string, entities []commander.Entity) bool {
	for _, e := range entities {
		switch e.Type {
		case "mention":
			if p.mention != "" && strings.EqualFold(commander.EntityText(text, e), p.mention) {
				return true
			}
		case "text_mention":
			if e.User != nil && e.User.ID == p.botID {
				return true
			}
		}
	}
	return false
}
