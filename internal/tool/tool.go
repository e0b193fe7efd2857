package tool

import (
	"context"
	"encoding/json"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

// Tool is the common abstraction for tools the model may call.
type Tool interface {
	Name() string
	Spec() model.ToolSpec
	Validate(raw json.RawMessage) error
	Execute(ctx context.Context, raw json.RawMessage) (Result, error)
}
