package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gin-gonic/gin"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
)

type recordingProcessor struct {
	updates []commander.Update
	err     error
	ctxErr  error
}

func (p *recordingProcessor) Process(ctx context.Context, u commander.Update) error {
	p.updates = append(p.updates, u)
	p.ctxErr = ctx.Err()
	return p.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func init() {
	gin.SetMode(gin.TestMode)
}

const sampleUpdate = `{"update_id":5,"message":{"message_id":11,"chat":{"id":42,"type":"group"},"from":{"id":100,"is_bot":false,"username":"ann"},"text":"hi"}}`

func postWebhook(t *testing.T, r http.Handler, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestWebhookProcessesUpdate(t *testing.T) {
	p := &recordingProcessor{}
	r := newRouter(p, "s3cret", quietLogger())

	rec := postWebhook(t, r, sampleUpdate, "s3cret")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(p.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(p.updates))
	}
	if p.updates[0].Message.Chat.ID != 42 || p.updates[0].Message.TextValue() != "hi" {
		t.Fatalf("unexpected update %+v", p.updates[0])
	}
	if p.ctxErr != nil {
		t.Fatalf("processing context already done: %v", p.ctxErr)
	}
}

func TestWebhookRejectsWrongSecret(t *testing.T) {
	p := &recordingProcessor{}
	r := newRouter(p, "s3cret", quietLogger())

	rec := postWebhook(t, r, sampleUpdate, "nope")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(p.updates) != 0 {
		t.Fatalf("expected no processing, got %d updates", len(p.updates))
	}
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	p := &recordingProcessor{err: errors.New("completion: upstream 500")}
	r := newRouter(p, "", quietLogger())

	rec := postWebhook(t, r, sampleUpdate, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "error") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}

	rec = postWebhook(t, r, "{not json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for undecodable body, got %d", rec.Code)
	}
	if len(p.updates) != 1 {
		t.Fatalf("expected 1 processed update, got %d", len(p.updates))
	}
}

func TestHealthz(t *testing.T) {
	r := newRouter(&recordingProcessor{}, "", quietLogger())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"status":"ok"}` {
		t.Fatalf("unexpected healthz response %d %s", rec.Code, rec.Body.String())
	}
}

func assertLambda(t *testing.T, resp events.APIGatewayProxyResponse, err error, status int, body string) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != status {
		t.Fatalf("expected status %d, got %d", status, resp.StatusCode)
	}
	if body != "" && resp.Body != body {
		t.Fatalf("expected body %q, got %q", body, resp.Body)
	}
}

func TestLambdaHandler(t *testing.T) {
	p := &recordingProcessor{}
	h := newLambdaHandler(p, "", quietLogger())
	ctx := context.Background()

	resp, err := h(ctx, events.APIGatewayProxyRequest{Body: sampleUpdate})
	assertLambda(t, resp, err, http.StatusOK, "Success")
	if len(p.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(p.updates))
	}

	resp, err = h(ctx, events.APIGatewayProxyRequest{Body: "garbage"})
	assertLambda(t, resp, err, http.StatusOK, "Error")

	p.err = errors.New("boom")
	resp, err = h(ctx, events.APIGatewayProxyRequest{Body: sampleUpdate})
	assertLambda(t, resp, err, http.StatusOK, "Error")
}

func TestLambdaHandlerBase64Body(t *testing.T) {
	p := &recordingProcessor{}
	h := newLambdaHandler(p, "", quietLogger())
	body := "eyJ1cGRhdGVfaWQiOjF9" // {"update_id":1}
	resp, err := h(context.Background(), events.APIGatewayProxyRequest{Body: body, IsBase64Encoded: true})
	assertLambda(t, resp, err, http.StatusOK, "Success")
	if p.updates[0].UpdateID != 1 {
		t.Fatalf("expected update 1, got %d", p.updates[0].UpdateID)
	}
}

func TestLambdaHandlerChecksSecret(t *testing.T) {
	p := &recordingProcessor{}
	h := newLambdaHandler(p, "s3cret", quietLogger())
	ctx := context.Background()

	resp, err := h(ctx, events.APIGatewayProxyRequest{Body: sampleUpdate})
	assertLambda(t, resp, err, http.StatusUnauthorized, "")

	resp, err = h(ctx, events.APIGatewayProxyRequest{
		Body:    sampleUpdate,
		Headers: map[string]string{secretHeader: "wrong"},
	})
	assertLambda(t, resp, err, http.StatusUnauthorized, "")
	if len(p.updates) != 0 {
		t.Fatalf("expected no processing, got %d updates", len(p.updates))
	}

	resp, err = h(ctx, events.APIGatewayProxyRequest{
		Body:    sampleUpdate,
		Headers: map[string]string{"x-telegram-bot-api-secret-token": "s3cret"},
	})
	assertLambda(t, resp, err, http.StatusOK, "Success")
	if len(p.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(p.updates))
	}
}
