package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

const (
	maxMessageChars = 3900
	maxCaptionChars = 1000
	maxFileBytes    = 20 << 20
	parseModeMDV2   = "MarkdownV2"
)

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	fileBase   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Telegram client for the bot token against the given
// API base URL (e.g. "https://api.telegram.org").
func NewClient(baseURL, token string, requestTimeout time.Duration, logger *slog.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiBase:  baseURL + "/bot" + token,
		fileBase: baseURL + "/file/bot" + token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

// Response is the generic Telegram API response wrapper.
type Response struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// RequestError is a Telegram API call that was answered with ok=false or a
// non-2xx status.
type RequestError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("telegram %s failed: status=%d description=%s", e.Method, e.StatusCode, e.Description)
}

// IsMarkdownParseError reports whether err is Telegram rejecting MarkdownV2.
func IsMarkdownParseError(err error) bool {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	desc := strings.ToLower(reqErr.Description)
	return strings.Contains(desc, "can't parse entities") || strings.Contains(desc, "can't parse entity")
}

type sendMessageRequest struct {
	ChatID           int64  `json:"chat_id"`
	Text             string `json:"text"`
	ParseMode        string `json:"parse_mode,omitempty"`
	ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
}

// SendMessage sends a MarkdownV2 text message replying to replyTo (0 for
// none). When Telegram cannot parse the formatted text it is resent as
// plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, replyTo int64) error {
	limited := truncate(text, maxMessageChars)
	req := sendMessageRequest{
		ChatID:           chatID,
		Text:             FormatMarkdownV2(limited),
		ParseMode:        parseModeMDV2,
		ReplyToMessageID: replyTo,
	}
	err := c.postJSON(ctx, "sendMessage", req, nil)
	if err == nil || !IsMarkdownParseError(err) {
		return err
	}
	c.logger.Warn("telegram_markdown_rejected", "method", "sendMessage", "error", err)
	req.Text = limited
	req.ParseMode = ""
	return c.postJSON(ctx, "sendMessage", req, nil)
}

// SendPhoto uploads data as a photo with a MarkdownV2 caption.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, data []byte, mimeType, caption string, replyTo int64) error {
	limited := truncate(caption, maxCaptionChars)
	err := c.sendPhoto(ctx, chatID, data, mimeType, FormatMarkdownV2(limited), parseModeMDV2, replyTo)
	if err == nil || !IsMarkdownParseError(err) {
		return err
	}
	c.logger.Warn("telegram_markdown_rejected", "method", "sendPhoto", "error", err)
	return c.sendPhoto(ctx, chatID, data, mimeType, limited, "", replyTo)
}

func (c *Client) sendPhoto(ctx context.Context, chatID int64, data []byte, mimeType, caption, parseMode string, replyTo int64) error {
	if mimeType == "" {
		mimeType = "image/png"
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = w.WriteField("caption", caption)
		if parseMode != "" {
			_ = w.WriteField("parse_mode", parseMode)
		}
	}
	if replyTo != 0 {
		_ = w.WriteField("reply_to_message_id", strconv.FormatInt(replyTo, 10))
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename="image.%s"`, extension(mimeType)))
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create photo part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write photo part: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/sendPhoto", &body)
	if err != nil {
		return fmt.Errorf("failed to create sendPhoto request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, "sendPhoto", nil)
}

type fileResult struct {
	FilePath string `json:"file_path"`
}

// DownloadFile resolves fileID with getFile and downloads its content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	var file fileResult
	if err := c.postJSON(ctx, "getFile", map[string]string{"file_id": fileID}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("telegram getFile returned no file_path for %s", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileBase+"/"+file.FilePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create file request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram file download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("telegram file download status=%d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	if len(data) > maxFileBytes {
		return nil, fmt.Errorf("telegram file %s exceeds %d bytes", fileID, maxFileBytes)
	}
	return data, nil
}

func (c *Client) postJSON(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/"+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var tgResp Response
	if err := json.Unmarshal(body, &tgResp); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &RequestError{Method: method, StatusCode: resp.StatusCode, Description: truncate(string(body), 400)}
		}
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if !tgResp.OK || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RequestError{Method: method, StatusCode: resp.StatusCode, Description: tgResp.Description}
	}
	if out != nil {
		if err := json.Unmarshal(tgResp.Result, out); err != nil {
			return fmt.Errorf("failed to parse %s result: %w", method, err)
		}
	}
	return nil
}

func extension(mimeType string) string {
	if i := strings.LastIndex(mimeType, "/"); i >= 0 && i < len(mimeType)-1 {
		return mimeType[i+1:]
	}
	return "png"
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
