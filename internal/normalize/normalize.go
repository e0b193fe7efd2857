// Package normalize converts transport messages into canonical history
// messages.
package normalize

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strconv"
	"strings"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
	"github.com/stupiduntilnot/chatrelay/internal/history"
)

// PhotoPlaceholder is the text of a photo sent without a caption.
const PhotoPlaceholder = "Image shared without caption"

// UnknownUsername is used when the sender has neither username nor first name.
const UnknownUsername = "unknown_user"

// FileFetcher downloads an attachment by its transport file id.
type FileFetcher interface {
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

type Normalizer struct {
	botName string
	files   FileFetcher
	logger  *slog.Logger
}

func New(botName string, files FileFetcher, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{botName: botName, files: files, logger: logger}
}

// Normalize returns the canonical user message for msg, or nil when msg
// carries nothing the relay understands.
func (n *Normalizer) Normalize(ctx context.Context, msg *commander.Message) *history.Message {
	if msg == nil {
		return nil
	}
	text, ok := extractText(msg)
	if !ok {
		return nil
	}
	if n.botName != "" {
		text = strings.ReplaceAll(text, "@"+n.botName, "")
	}

	id := strconv.FormatInt(msg.MessageID, 10)
	out := &history.Message{
		ID:       id,
		Role:     history.RoleUser,
		Username: username(msg.From),
		Text:     strings.TrimSpace(text),
	}
	if msg.ReplyToMessage != nil {
		out.ReplyToID = history.ReplyTarget(id, strconv.FormatInt(msg.ReplyToMessage.MessageID, 10))
	}
	if img := n.fetchLargestPhoto(ctx, msg.Photo); img != "" {
		out.Images = []string{img}
	}
	return out
}

func extractText(msg *commander.Message) (string, bool) {
	switch {
	case msg.Text != nil:
		return *msg.Text, true
	case msg.Sticker != nil && msg.Sticker.Emoji != "":
		return msg.Sticker.Emoji, true
	case len(msg.Photo) > 0:
		if msg.Caption != nil {
			return *msg.Caption, true
		}
		return PhotoPlaceholder, true
	}
	return "", false
}

func username(u *commander.User) string {
	switch {
	case u == nil:
		return UnknownUsername
	case u.Username != "":
		return u.Username
	case u.FirstName != "":
		return u.FirstName
	}
	return UnknownUsername
}

// fetchLargestPhoto downloads the biggest photo size and returns it base64
// encoded. Failures are logged and yield "".
func (n *Normalizer) fetchLargestPhoto(ctx context.Context, sizes []commander.PhotoSize) string {
	if len(sizes) == 0 || n.files == nil {
		return ""
	}
	best := sizes[0]
	for _, s := range sizes[1:] {
		if s.Width*s.Height >= best.Width*best.Height {
			best = s
		}
	}
	if best.FileID == "" {
		return ""
	}
	data, err := n.files.DownloadFile(ctx, best.FileID)
	if err != nil {
		n.logger.Warn("photo_download_failed", "file_id", best.FileID, "error", err)
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}
