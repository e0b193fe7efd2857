package dummy

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	cmdpkg "github.com/stupiduntilnot/chatrelay/internal/commander"
	"github.com/stupiduntilnot/chatrelay/internal/history"
	modelpkg "github.com/stupiduntilnot/chatrelay/internal/model"
	"github.com/stupiduntilnot/chatrelay/internal/tool"
)

type action struct {
	kind string
	arg  string
}

func parseScript(script string) ([]action, error) {
	if strings.TrimSpace(script) == "" {
		return []action{{kind: "ok"}}, nil
	}
	parts := strings.Split(script, ",")
	actions := make([]action, 0, len(parts))
	for _, p := range parts {
		token := strings.TrimSpace(p)
		if token == "" {
			continue
		}
		if token == "ok" {
			actions = append(actions, action{kind: "ok"})
			continue
		}
		matched := false
		for _, kind := range []string{"err", "sleep", "msg", "msgb64", "image"} {
			if strings.HasPrefix(token, kind+":") {
				actions = append(actions, action{kind: kind, arg: strings.TrimPrefix(token, kind+":")})
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("invalid dummy action: %s", token)
		}
	}
	if len(actions) == 0 {
		actions = append(actions, action{kind: "ok"})
	}
	return actions, nil
}

type scriptRunner struct {
	actions []action
	index   int
}

func newRunner(script string) (*scriptRunner, error) {
	actions, err := parseScript(script)
	if err != nil {
		return nil, err
	}
	return &scriptRunner{actions: actions}, nil
}

func (r *scriptRunner) next() action {
	if len(r.actions) == 0 {
		return action{kind: "ok"}
	}
	if r.index >= len(r.actions) {
		return r.actions[len(r.actions)-1]
	}
	a := r.actions[r.index]
	r.index++
	return a
}

func sleepFor(arg string) {
	ms, _ := strconv.Atoi(arg)
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// Provider is a scripted completion provider. The image action answers with
// a generate_image tool call; the follow-up request (sent without tools)
// then gets a fixed text answer without consuming the script.
type Provider struct {
	mu      sync.Mutex
	model   string
	script  *scriptRunner
	calls   int
	pending bool
}

func NewProvider(model, script string) (*Provider, error) {
	runner, err := newRunner(script)
	if err != nil {
		return nil, err
	}
	return &Provider{model: model, script: runner}, nil
}

func (p *Provider) ChatCompletion(_ context.Context, req modelpkg.Request) (modelpkg.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pending && len(req.Tools) == 0 {
		p.pending = false
		return modelpkg.CompletionResponse{Content: "dummy-image-ok", InputTokens: 1, OutputTokens: 1}, nil
	}
	p.pending = false

	a := p.script.next()
	switch a.kind {
	case "ok":
		return modelpkg.CompletionResponse{
			Content:      emptyAs(a.arg, "dummy-ok"),
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	case "err":
		return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider error class=%s", emptyAs(a.arg, "provider_api"))
	case "sleep":
		sleepFor(a.arg)
		return modelpkg.CompletionResponse{
			Content:      "dummy-after-sleep",
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	case "msg":
		return modelpkg.CompletionResponse{
			Content:      a.arg,
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	case "msgb64":
		raw, err := base64.StdEncoding.DecodeString(a.arg)
		if err != nil {
			return modelpkg.CompletionResponse{}, fmt.Errorf("dummy provider msgb64 decode failed: %w", err)
		}
		return modelpkg.CompletionResponse{
			Content:      string(raw),
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	case "image":
		if len(req.Tools) == 0 {
			return modelpkg.CompletionResponse{Content: "dummy-image-unavailable", InputTokens: 1, OutputTokens: 1}, nil
		}
		p.calls++
		p.pending = true
		return modelpkg.CompletionResponse{
			ToolCalls:    []history.ToolCall{imageCall("dummy_call_"+strconv.Itoa(p.calls), a.arg)},
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	default:
		return modelpkg.CompletionResponse{
			Content:      "dummy-ok",
			InputTokens:  1,
			OutputTokens: 1,
		}, nil
	}
}

// imageCall builds a generate_image call from "<prompt>[|<aspect ratio>]".
func imageCall(id, arg string) history.ToolCall {
	prompt, ratio, _ := strings.Cut(arg, "|")
	args := map[string]string{"prompt": emptyAs(prompt, "dummy image")}
	if ratio != "" {
		args["aspect_ratio"] = ratio
	}
	raw, _ := json.Marshal(args)
	return history.ToolCall{
		ID:       id,
		Type:     "function",
		Function: history.FunctionCall{Name: tool.ImageToolName, Arguments: string(raw)},
	}
}

// Sent is one delivery recorded by Transport.
type Sent struct {
	ChatID   int64
	Text     string
	Photo    []byte
	MimeType string
	ReplyTo  int64
}

// Transport records deliveries instead of sending them. The send script
// controls each delivery's outcome (ok, err:, sleep:).
type Transport struct {
	mu   sync.Mutex
	send *scriptRunner
	sent []Sent
	file []byte
}

func NewTransport(sendScript string) (*Transport, error) {
	send, err := newRunner(sendScript)
	if err != nil {
		return nil, err
	}
	return &Transport{send: send, file: []byte("dummy-file")}, nil
}

func (t *Transport) SendMessage(_ context.Context, chatID int64, text string, replyTo int64) error {
	return t.record(Sent{ChatID: chatID, Text: text, ReplyTo: replyTo})
}

func (t *Transport) SendPhoto(_ context.Context, chatID int64, data []byte, mimeType, caption string, replyTo int64) error {
	return t.record(Sent{ChatID: chatID, Text: caption, Photo: data, MimeType: mimeType, ReplyTo: replyTo})
}

func (t *Transport) DownloadFile(_ context.Context, fileID string) ([]byte, error) {
	if fileID == "" {
		return nil, fmt.Errorf("dummy transport: empty file id")
	}
	return t.file, nil
}

func (t *Transport) record(s Sent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	a := t.send.next()
	switch a.kind {
	case "err":
		return fmt.Errorf("dummy transport send error class=%s", emptyAs(a.arg, "transport_api"))
	case "sleep":
		sleepFor(a.arg)
	}
	t.sent = append(t.sent, s)
	return nil
}

// Sent returns a copy of the recorded deliveries.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

var _ cmdpkg.Transport = (*Transport)(nil)

// ImageGenerator returns the same bytes for every prompt.
type ImageGenerator struct {
	Data     []byte
	MimeType string
}

func NewImageGenerator() *ImageGenerator {
	// 1x1 transparent PNG.
	data, _ := base64.StdEncoding.DecodeString("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg==")
	return &ImageGenerator{Data: data, MimeType: "image/png"}
}

func (g *ImageGenerator) GenerateImage(_ context.Context, prompt, _ string) ([]byte, string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, "", fmt.Errorf("dummy image generator: empty prompt")
	}
	return g.Data, g.MimeType, nil
}

func emptyAs(v string, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
