package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupRelayEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_TOKEN", "test-token")
	t.Setenv("OPENAI_KEY", "test-key")
	t.Setenv("BOT_ID", "7")
	t.Setenv("ALLOWED_CHATS", "42, -100123")
	t.Setenv("RELAY_MODEL_PROVIDER", "openai")
	t.Setenv("RELAY_TRANSPORT", "telegram")
}

func TestLoad_Defaults(t *testing.T) {
	setupRelayEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation err: %v", err)
	}
	if cfg.BotID != 7 || cfg.BotName != "assistant" {
		t.Fatalf("unexpected bot identity: %d %q", cfg.BotID, cfg.BotName)
	}
	if len(cfg.AllowedChats) != 2 || cfg.AllowedChats[0] != 42 || cfg.AllowedChats[1] != -100123 {
		t.Fatalf("unexpected allowed chats: %v", cfg.AllowedChats)
	}
	if cfg.ContextLen != 20 || cfg.MaxTokens != 1024 || cfg.Temperature != 1 || cfg.TopP != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StoreBackend != BackendSQLite || cfg.HTTPTimeout != 30*time.Second || cfg.StoreTimeout != 10*time.Second {
		t.Fatalf("unexpected store defaults: %+v", cfg)
	}
	if cfg.ResetCommand != "reset" || cfg.ImageMimeType != "image/png" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.env")
	content := "BOT_ID=9\nCHATRELAY_TEST_ONLY=1\nFREQUENCY=0.25\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_ID", "7")
	t.Setenv("FREQUENCY", "")
	os.Unsetenv("FREQUENCY")
	t.Cleanup(func() { os.Unsetenv("CHATRELAY_TEST_ONLY") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if cfg.BotID != 7 {
		t.Fatalf("environment must win over the env file, got BOT_ID=%d", cfg.BotID)
	}
	if cfg.Frequency != 0.25 {
		t.Fatalf("expected FREQUENCY from env file, got %v", cfg.Frequency)
	}
}

func TestLoad_MissingEnvFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected error for missing env file")
	}
}

func TestLoad_InvalidNumber(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("CONTEXT_LENGTH", "twenty")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "CONTEXT_LENGTH") {
		t.Fatalf("expected CONTEXT_LENGTH error, got %v", err)
	}
}

func TestLoad_InvalidAllowedChats(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("ALLOWED_CHATS", "42,abc")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "ALLOWED_CHATS") {
		t.Fatalf("expected ALLOWED_CHATS error, got %v", err)
	}
}

func TestLoad_StoreBackendRequirements(t *testing.T) {
	cases := []struct {
		backend string
		wantKey string
	}{
		{"postgres", "STORE_DSN"},
		{"mysql", "STORE_DSN"},
		{"dynamodb", "DYNAMODB_TABLE_NAME"},
		{"cassandra", "STORE_BACKEND"},
	}
	for _, tc := range cases {
		setupRelayEnv(t)
		t.Setenv("STORE_BACKEND", tc.backend)
		_, err := Load("")
		if err == nil || !strings.Contains(err.Error(), tc.wantKey) {
			t.Fatalf("%s: expected %s error, got %v", tc.backend, tc.wantKey, err)
		}
	}
}

func TestValidate_RequiresCredentials(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("TELEGRAM_TOKEN", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "TELEGRAM_TOKEN") {
		t.Fatalf("expected TELEGRAM_TOKEN error, got %v", err)
	}

	t.Setenv("RELAY_TRANSPORT", "dummy")
	t.Setenv("OPENAI_KEY", "")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "OPENAI_KEY") {
		t.Fatalf("expected OPENAI_KEY error, got %v", err)
	}
}

func TestValidate_Ranges(t *testing.T) {
	setupRelayEnv(t)
	t.Setenv("FREQUENCY", "1.5")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "FREQUENCY") {
		t.Fatalf("expected FREQUENCY error, got %v", err)
	}

	t.Setenv("FREQUENCY", "0.1")
	t.Setenv("ALLOWED_CHATS", "")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "ALLOWED_CHATS") {
		t.Fatalf("expected ALLOWED_CHATS error, got %v", err)
	}
}

func TestValidate_DummyStackNeedsNoCredentials(t *testing.T) {
	t.Setenv("BOT_ID", "7")
	t.Setenv("ALLOWED_CHATS", "1")
	t.Setenv("RELAY_MODEL_PROVIDER", "dummy")
	t.Setenv("RELAY_TRANSPORT", "DUMMY")
	t.Setenv("TELEGRAM_TOKEN", "")
	t.Setenv("OPENAI_KEY", "")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation err: %v", err)
	}
}
