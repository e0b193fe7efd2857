package context

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"testing"

	"github.com/stupiduntilnot/chatrelay/internal/history"
)

type recordingSaver struct {
	key   string
	saved []history.Message
	err   error
}

func (s *recordingSaver) Save(_ context.Context, key string, msgs []history.Message) error {
	if s.err != nil {
		return s.err
	}
	s.key = key
	s.saved = msgs
	return nil
}

func TestTrimmerBoundAndCleanHead(t *testing.T) {
	var msgs []history.Message
	for i := 0; i < 7; i++ {
		msgs = append(msgs, userMsg(fmt.Sprint(i)))
	}
	msgs = append(msgs, callMsg("c", "a"), toolMsg("t", "a"), userMsg("last"))

	for _, n := range []int{1, 2, 3, 4, 5, 20} {
		out := (&Trimmer{MaxMessages: n}).Trim(msgs)
		if len(out) > n {
			t.Fatalf("n=%d: expected at most %d messages, got %d", n, n, len(out))
		}
		if len(out) > 0 && !out[0].SelfContained() {
			t.Fatalf("n=%d: head is not self-contained: %+v", n, out[0])
		}
	}
	// Window of 2 starts at the tool message and trims down to the last user message.
	assertIDs(t, (&Trimmer{MaxMessages: 2}).Trim(msgs), "last")
	assertIDs(t, (&Trimmer{MaxMessages: 3}).Trim(msgs), "last")
}

func TestStripImagesMarkers(t *testing.T) {
	in := []history.Message{
		{ID: "1", Role: history.RoleUser, Text: "look", Images: []string{"AAA"}},
		{ID: "2", Role: history.RoleUser, Text: "", Images: []string{"AAA"}},
		{ID: "3", Role: history.RoleAssistant, Text: "here", Images: []string{"BBB"}, ToolImagesMeta: []history.ImageMeta{{Prompt: "cat", MimeType: "image/png"}}},
		{ID: "4", Role: history.RoleAssistant, Text: "plain"},
	}
	out := StripImages(in)
	want := []string{"look [User attached an image]", " [User attached an image]", "here [Assistant generated an image]", "plain"}
	for i, m := range out {
		if m.Text != want[i] {
			t.Errorf("message %d: expected text %q, got %q", i, want[i], m.Text)
		}
		if m.Images != nil {
			t.Errorf("message %d: images not stripped", i)
		}
	}
	if !slices.Equal(in[0].Images, []string{"AAA"}) {
		t.Fatalf("input must not be mutated, got %v", in[0].Images)
	}
}

func TestTrimmerPersist(t *testing.T) {
	s := &recordingSaver{}
	saved, err := (&Trimmer{MaxMessages: 2}).Persist(context.Background(), s, "42_7", []history.Message{userMsg("1"), userMsg("2"), userMsg("3")})
	if err != nil {
		t.Fatal(err)
	}
	if s.key != "42_7" {
		t.Fatalf("expected key 42_7, got %q", s.key)
	}
	assertIDs(t, s.saved, "2", "3")
	if !reflect.DeepEqual(s.saved, saved) {
		t.Fatalf("returned messages differ from saved: %+v vs %+v", saved, s.saved)
	}

	boom := errors.New("down")
	_, err = (&Trimmer{MaxMessages: 2}).Persist(context.Background(), &recordingSaver{err: boom}, "k", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected %v, got %v", boom, err)
	}
}
