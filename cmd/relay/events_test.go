package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stupiduntilnot/chatrelay/internal/db"
)

// testDB creates a temporary SQLite database with schema initialized.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	if err := db.InitSchema(database); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// seedTurn inserts a realistic turn tree and returns the root event ID.
//
// Tree structure:
//
//	turn.started               id=1
//	├── context.assembled      id=2
//	├── tool_call.started      id=3
//	├── tool_call.completed    id=4
//	├── history.saved          id=5
//	├── turn.completed         id=6
//	└── reply.sent             id=7
func seedTurn(t *testing.T, database *sql.DB) int64 {
	t.Helper()

	turnID, _ := db.LogEvent(database, nil, db.EventTurnStarted, map[string]any{"chat_key": "42_7", "model_name": "gpt-4o-mini"})
	db.LogEvent(database, &turnID, db.EventContextAssembled, map[string]any{"chat_key": "42_7", "window": 4})
	db.LogEvent(database, &turnID, db.EventToolCallStarted, map[string]any{"tool_name": "generate_image", "tool_call_id": "call_1"})
	db.LogEvent(database, &turnID, db.EventToolCallDone, map[string]any{"tool_name": "generate_image", "status": "image_generated"})
	db.LogEvent(database, &turnID, db.EventHistorySaved, map[string]any{"chat_key": "42_7", "messages": 9})
	db.LogEvent(database, &turnID, db.EventTurnCompleted, map[string]any{"latency_ms": 1820, "images": 1})
	db.LogEvent(database, &turnID, db.EventReplySent, map[string]any{"chat_id": 42, "deliveries": 2})
	return turnID
}

func TestLatestTurnRoot(t *testing.T) {
	database := testDB(t)
	seedTurn(t, database)
	second := seedTurn(t, database)
	db.LogEvent(database, nil, db.EventSessionReset, map[string]any{"chat_key": "42_7"})

	got, err := latestTurnRoot(database)
	if err != nil {
		t.Fatal(err)
	}
	if got != second {
		t.Errorf("expected latest turn id=%d, got %d", second, got)
	}
}

func TestLatestTurnRoot_NoEvents(t *testing.T) {
	database := testDB(t)
	if _, err := latestTurnRoot(database); err == nil {
		t.Fatal("expected error for empty database")
	}
}

func TestQuerySubtree(t *testing.T) {
	database := testDB(t)
	rootID := seedTurn(t, database)
	seedTurn(t, database)

	events, err := querySubtree(database, rootID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 7 {
		t.Errorf("expected 7 events, got %d", len(events))
	}
}

func TestBuildTree(t *testing.T) {
	database := testDB(t)
	rootID := seedTurn(t, database)

	events, _ := querySubtree(database, rootID)
	root := buildTree(events, rootID)
	if root == nil {
		t.Fatal("root is nil")
	}
	if root.EventType != db.EventTurnStarted {
		t.Errorf("expected turn.started, got %s", root.EventType)
	}
	if len(root.Children) != 6 {
		t.Errorf("expected 6 children, got %d", len(root.Children))
	}
	for i := 1; i < len(root.Children); i++ {
		if root.Children[i-1].ID > root.Children[i].ID {
			t.Errorf("children not sorted by id")
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ev := &Event{
		ID:        42,
		Timestamp: 1739781001,
		EventType: "turn.started",
		Payload:   sql.NullString{String: `{"chat_key":"42_7","latency_ms":15}`, Valid: true},
	}

	line := formatEvent(ev, false)
	for _, want := range []string{"[42]", "2025-02-17", "turn.started", "chat_key=42_7", "latency_ms=15"} {
		if !strings.Contains(line, want) {
			t.Errorf("expected %q in output: %s", want, line)
		}
	}
	if strings.Contains(formatEvent(ev, true), "chat_key") {
		t.Errorf("expected no payload with noPayload")
	}
}

func TestFormatEvent_NullPayload(t *testing.T) {
	ev := &Event{ID: 1, Timestamp: 1739781001, EventType: "session.reset"}
	if line := formatEvent(ev, false); !strings.HasSuffix(line, "session.reset") {
		t.Errorf("unexpected line: %s", line)
	}
}

func TestFormatValue(t *testing.T) {
	if v := formatValue(float64(42)); v != "42" {
		t.Errorf("expected 42, got %s", v)
	}
	if v := formatValue(0.5); v != "0.5" {
		t.Errorf("expected 0.5, got %s", v)
	}
	if v := formatValue(strings.Repeat("a", 100)); !strings.Contains(v, "...") {
		t.Errorf("expected truncation: %s", v)
	}
}

func TestRenderEvents_Tree(t *testing.T) {
	database := testDB(t)
	seedTurn(t, database)

	var buf bytes.Buffer
	if err := renderEvents(&buf, database, 0, false, treeOptions{}); err != nil {
		t.Fatal(err)
	}
	output := buf.String()
	for _, want := range []string{"turn.started", "context.assembled", "tool_call.completed", "reply.sent"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output:\n%s", want, output)
		}
	}
	if !strings.Contains(output, "├──") || !strings.Contains(output, "└──") {
		t.Errorf("expected tree characters in output:\n%s", output)
	}
}

func TestRenderEvents_DepthLimit1(t *testing.T) {
	database := testDB(t)
	seedTurn(t, database)

	var buf bytes.Buffer
	if err := renderEvents(&buf, database, 0, false, treeOptions{maxDepth: 1}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "[...]") {
		t.Errorf("expected root + [...], got:\n%s", buf.String())
	}
}

func TestRenderEvents_JSON(t *testing.T) {
	database := testDB(t)
	rootID := seedTurn(t, database)

	var buf bytes.Buffer
	if err := renderEvents(&buf, database, rootID, true, treeOptions{noPayload: true}); err != nil {
		t.Fatal(err)
	}
	var je jsonEvent
	if err := json.Unmarshal(buf.Bytes(), &je); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, buf.String())
	}
	if je.EventType != db.EventTurnStarted || len(je.Children) != 6 {
		t.Errorf("unexpected tree: %+v", je)
	}
	if strings.Contains(buf.String(), `"chat_key"`) {
		t.Errorf("expected no payload in output:\n%s", buf.String())
	}
}

func TestRenderEvents_UnknownID(t *testing.T) {
	database := testDB(t)
	seedTurn(t, database)
	if err := renderEvents(&bytes.Buffer{}, database, 999, false, treeOptions{}); err == nil {
		t.Fatal("expected error for unknown event id")
	}
}
