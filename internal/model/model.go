package model

import (
	"context"

	ctxpkg "github.com/stupiduntilnot/chatrelay/internal/context"
	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// ToolSpec describes a callable tool offered to the model. Parameters is a
// JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is one completion call. A request without tools must not let the
// model call any.
type Request struct {
	Messages []ctxpkg.Message
	Tools    []ToolSpec
}

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	ToolCalls    []history.ToolCall
	InputTokens  int
	OutputTokens int
}

// Provider is the model provider abstraction used by the orchestrator.
type Provider interface {
	ChatCompletion(ctx context.Context, req Request) (CompletionResponse, error)
}
