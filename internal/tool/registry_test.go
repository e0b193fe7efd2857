package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stupiduntilnot/chatrelay/internal/model"
)

type mockTool struct {
	name string
}

func (m *mockTool) Name() string { return m.name }

func (m *mockTool) Spec() model.ToolSpec { return model.ToolSpec{Name: m.name} }

func (m *mockTool) Validate(raw json.RawMessage) error { return nil }

func (m *mockTool) Execute(ctx context.Context, raw json.RawMessage) (Result, error) {
	return Result{Status: "ok"}, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	mt := &mockTool{name: "echo"}
	if err := r.Register(mt); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, ok := r.Get("echo")
	if !ok {
		t.Fatal("expected tool echo")
	}
	if got.Name() != "echo" {
		t.Fatalf("expected echo, got %s", got.Name())
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockTool{name: "echo"}); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register(&mockTool{name: "echo"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_SpecsSorted(t *testing.T) {
	r := NewRegistry()
	_ = r.Register(&mockTool{name: "zeta"})
	_ = r.Register(NewImageTool(nil, "", nil))

	specs := r.Specs()
	if len(specs) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != ImageToolName || specs[1].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", specs)
	}
	if specs[0].Parameters["type"] != "object" {
		t.Fatalf("unexpected schema: %+v", specs[0].Parameters)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(nil); err == nil {
		t.Fatal("expected nil tool error")
	}
	if err := r.Register(&mockTool{name: "   "}); err == nil {
		t.Fatal("expected empty-name error")
	}
}
