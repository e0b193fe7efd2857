package openai

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	ctxpkg "github.com/stupiduntilnot/chatrelay/internal/context"
	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/model"
)

// EmptyResponse is returned as content when the model produced neither text
// nor tool calls.
const EmptyResponse = "(empty model response)"

// Sampling holds the tunable request parameters.
type Sampling struct {
	Temperature      float32
	MaxTokens        int
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
}

// Client is an OpenAI chat completions client.
type Client struct {
	client   *goopenai.Client
	model    string
	sampling Sampling
}

// NewClient creates an OpenAI client. An empty baseURL uses the public API.
func NewClient(apiKey, baseURL, model string, timeout time.Duration, sampling Sampling) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{
		client:   goopenai.NewClientWithConfig(cfg),
		model:    model,
		sampling: sampling,
	}
}

// ChatCompletion sends a chat completion request and returns a CompletionResponse.
func (c *Client) ChatCompletion(ctx context.Context, req model.Request) (model.CompletionResponse, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            toMessages(req.Messages),
		Temperature:         nonZero(c.sampling.Temperature),
		MaxCompletionTokens: c.sampling.MaxTokens,
		TopP:                nonZero(c.sampling.TopP),
		PresencePenalty:     c.sampling.PresencePenalty,
		FrequencyPenalty:    c.sampling.FrequencyPenalty,
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toTools(req.Tools)
		chatReq.ToolChoice = "auto"
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("openai chat completion failed: %w", err)
	}

	result := model.CompletionResponse{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	if len(resp.Choices) == 0 {
		result.Content = EmptyResponse
		return result, nil
	}
	msg := resp.Choices[0].Message
	result.Content = strings.TrimSpace(msg.Content)
	for _, tc := range msg.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, history.ToolCall{
			ID:   tc.ID,
			Type: string(tc.Type),
			Function: history.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			},
		})
	}
	if result.Content == "" && len(result.ToolCalls) == 0 {
		result.Content = EmptyResponse
	}
	return result, nil
}

func toMessages(messages []ctxpkg.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := goopenai.ChatCompletionMessage{
			Role:       m.Role,
			ToolCallID: m.ToolCallID,
		}
		if len(m.Images) > 0 {
			msg.MultiContent = append(msg.MultiContent, goopenai.ChatMessagePart{
				Type: goopenai.ChatMessagePartTypeText,
				Text: m.Content,
			})
			for _, uri := range m.Images {
				msg.MultiContent = append(msg.MultiContent, goopenai.ChatMessagePart{
					Type:     goopenai.ChatMessagePartTypeImageURL,
					ImageURL: &goopenai.ChatMessageImageURL{URL: uri},
				})
			}
		} else {
			msg.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			typ := goopenai.ToolType(tc.Type)
			if typ == "" {
				typ = goopenai.ToolTypeFunction
			}
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: typ,
				Function: goopenai.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toTools(specs []model.ToolSpec) []goopenai.Tool {
	out := make([]goopenai.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

// nonZero keeps an explicit zero on the wire. go-openai omits zero-valued
// sampling fields, which would fall back to the vendor default of 1.
// Zero penalties match the vendor default, so they are left as is.
func nonZero(v float32) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}
