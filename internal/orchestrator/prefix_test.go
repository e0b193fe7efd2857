package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStripPrefix(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Hello there", "Hello there"},
		{"[msg:123] Hello", "Hello"},
		{"[MSG:abc]   Hello", "Hello"},
		{"@assistant said (message 5-assistant): Hi", "Hi"},
		{"@ann: sure thing", "sure thing"},
		{"Assistant reply: here it is", "here it is"},
		{"Ответ бота: привет", "привет"},
		{"@bot reply to 12: ok", "ok"},
		{"  \n Plain answer with: colon", "Plain answer with: colon"},
		{"Note: see below", "Note: see below"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StripPrefix(tc.in), tc.in)
	}
}

func TestCleanAnswerRemovesMarkers(t *testing.T) {
	got := CleanAnswer("@assistant said (message 1): Nice cat [User attached an image] [Assistant generated an image]")
	require.Equal(t, "Nice cat", got)
}

func TestImageCaption(t *testing.T) {
	require.Equal(t, "a cat", ImageCaption("  a cat "))
	require.Equal(t, DefaultImageCaption, ImageCaption("  "))
}
