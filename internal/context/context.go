package context

import (
	"context"

	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// Provider retrieves a chat session's stored history.
type Provider interface {
	Load(ctx context.Context, key string) []history.Message
}

// Saver persists a chat session's history, replacing what was stored.
type Saver interface {
	Save(ctx context.Context, key string, messages []history.Message) error
}

// Compressor reduces a list of messages to fit within constraints.
type Compressor interface {
	Compress(messages []history.Message) []history.Message
}

// Assembler turns stored history and the incoming message into the message
// list sent to the model.
type Assembler interface {
	Assemble(stored []history.Message, incoming history.Message) Assembly
}
