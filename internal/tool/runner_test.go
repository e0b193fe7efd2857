package tool

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRunner_RunOne_Success(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(NewImageTool(&stubGenerator{data: []byte("png"), mime: "image/png"}, "", quietLogger())); err != nil {
		t.Fatal(err)
	}
	r := NewRunner(reg)
	raw, _ := json.Marshal(map[string]any{"prompt": "a cat", "aspect_ratio": "16:9"})
	res, err := r.RunOne(context.Background(), Call{ID: "c1", Name: ImageToolName, Arguments: raw})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if res.Status != StatusImageGenerated {
		t.Fatalf("expected generated result: %+v", res)
	}
}

func TestRunner_RunOne_UnknownTool(t *testing.T) {
	r := NewRunner(NewRegistry())
	_, err := r.RunOne(context.Background(), Call{Name: "unknown", Arguments: json.RawMessage(`{}`)})
	if err == nil {
		t.Fatal("expected unknown tool error")
	}
}

func TestRunner_RunOne_InvalidArguments(t *testing.T) {
	reg := NewRegistry()
	_ = reg.Register(NewImageTool(&stubGenerator{}, "", quietLogger()))
	r := NewRunner(reg)
	for _, raw := range []string{`{}`, `{"prompt":"  "}`, `not json`} {
		if _, err := r.RunOne(context.Background(), Call{Name: ImageToolName, Arguments: json.RawMessage(raw)}); err == nil {
			t.Errorf("expected validation error for %s", raw)
		}
	}
}

func TestRunner_NotInitialized(t *testing.T) {
	var r *Runner
	if _, err := r.RunOne(context.Background(), Call{Name: "x"}); err == nil {
		t.Fatal("expected error from nil runner")
	}
}
