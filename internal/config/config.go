package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
	BackendMemory   = "memory"
)

// Config holds configuration for the relay process.
type Config struct {
	TelegramToken         string
	TelegramAPIBase       string
	TelegramWebhookSecret string

	BotID        int64
	BotName      string
	Frequency    float64
	AllowedChats []int64
	ResetCommand string
	ContextLen   int

	OpenAIKey        string
	OpenAIModel      string
	OpenAIBaseURL    string
	SystemPrompt     string
	StylePrompt      string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	PresencePenalty  float64
	FrequencyPenalty float64

	GeminiAPIKey     string
	GeminiImageModel string
	GeminiBaseURL    string
	ImageMimeType    string

	ModelProvider       string
	Transport           string
	DummyProviderScript string

	StoreBackend   string
	DBPath         string
	StoreDSN       string
	RedisAddr      string
	RedisPassword  string
	RedisKeyPrefix string
	DynamoTable    string
	AWSRegion      string

	HTTPTimeout  time.Duration
	StoreTimeout time.Duration
	ListenAddr   string
	LogLevel     string
	LogFormat    string
}

var defaults = map[string]any{
	"TELEGRAM_API_BASE":     "https://api.telegram.org",
	"BOT_NAME":              "assistant",
	"FREQUENCY":             0,
	"RESET_COMMAND":         "reset",
	"CONTEXT_LENGTH":        20,
	"OPENAI_MODEL":          "gpt-4o-mini",
	"TEMPERATURE":           1,
	"MAX_TOKENS":            1024,
	"TOP_P":                 1,
	"PRESENCE_PENALTY":      0,
	"FREQUENCY_PENALTY":     0,
	"GEMINI_IMAGE_MODEL":    "gemini-2.5-flash-image",
	"GEMINI_BASE_URL":       "https://generativelanguage.googleapis.com",
	"IMAGE_MIME_TYPE":       "image/png",
	"RELAY_MODEL_PROVIDER":  "openai",
	"RELAY_TRANSPORT":       "telegram",
	"DUMMY_PROVIDER_SCRIPT": "ok",
	"STORE_BACKEND":         BackendSQLite,
	"DB_PATH":               "./chatrelay.db",
	"REDIS_ADDR":            "localhost:6379",
	"REDIS_KEY_PREFIX":      "chatrelay:",
	"HTTP_TIMEOUT_SECONDS":  30,
	"STORE_TIMEOUT_SECONDS": 10,
	"LISTEN_ADDR":           ":8080",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "text",
}

// Load reads configuration from the environment. envFile, when set, is
// loaded first and must exist; otherwise an optional ./.env is read.
// Variables already present in the environment win over file values.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()

	p := parser{v: v}
	cfg := Config{
		TelegramToken:         p.str("TELEGRAM_TOKEN"),
		TelegramAPIBase:       strings.TrimRight(p.str("TELEGRAM_API_BASE"), "/"),
		TelegramWebhookSecret: p.str("TELEGRAM_WEBHOOK_SECRET"),

		BotID:        p.int64Val("BOT_ID"),
		BotName:      p.str("BOT_NAME"),
		Frequency:    p.floatVal("FREQUENCY"),
		AllowedChats: p.ids("ALLOWED_CHATS"),
		ResetCommand: p.str("RESET_COMMAND"),
		ContextLen:   p.intVal("CONTEXT_LENGTH"),

		OpenAIKey:        p.str("OPENAI_KEY"),
		OpenAIModel:      p.str("OPENAI_MODEL"),
		OpenAIBaseURL:    p.str("OPENAI_BASE_URL"),
		SystemPrompt:     v.GetString("SYSTEM_PROMPT"),
		StylePrompt:      v.GetString("STYLE_PROMPT"),
		Temperature:      p.floatVal("TEMPERATURE"),
		MaxTokens:        p.intVal("MAX_TOKENS"),
		TopP:             p.floatVal("TOP_P"),
		PresencePenalty:  p.floatVal("PRESENCE_PENALTY"),
		FrequencyPenalty: p.floatVal("FREQUENCY_PENALTY"),

		GeminiAPIKey:     p.str("GEMINI_API_KEY"),
		GeminiImageModel: p.str("GEMINI_IMAGE_MODEL"),
		GeminiBaseURL:    strings.TrimRight(p.str("GEMINI_BASE_URL"), "/"),
		ImageMimeType:    p.str("IMAGE_MIME_TYPE"),

		ModelProvider:       strings.ToLower(p.str("RELAY_MODEL_PROVIDER")),
		Transport:           strings.ToLower(p.str("RELAY_TRANSPORT")),
		DummyProviderScript: p.str("DUMMY_PROVIDER_SCRIPT"),

		StoreBackend:   strings.ToLower(p.str("STORE_BACKEND")),
		DBPath:         p.str("DB_PATH"),
		StoreDSN:       p.str("STORE_DSN"),
		RedisAddr:      p.str("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisKeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		DynamoTable:    p.str("DYNAMODB_TABLE_NAME"),
		AWSRegion:      p.str("AWS_REGION"),

		HTTPTimeout:  p.seconds("HTTP_TIMEOUT_SECONDS"),
		StoreTimeout: p.seconds("STORE_TIMEOUT_SECONDS"),
		ListenAddr:   p.str("LISTEN_ADDR"),
		LogLevel:     p.str("LOG_LEVEL"),
		LogFormat:    p.str("LOG_FORMAT"),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.validateStore(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings needed to relay updates. Store-only commands
// do not need it.
func (c Config) Validate() error {
	if c.BotID == 0 {
		return fmt.Errorf("BOT_ID is required in environment")
	}
	switch c.Transport {
	case "telegram":
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_TOKEN is required in environment when RELAY_TRANSPORT=telegram")
		}
	case "dummy":
	default:
		return fmt.Errorf("RELAY_TRANSPORT must be telegram or dummy, got %q", c.Transport)
	}
	switch c.ModelProvider {
	case "openai":
		if c.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_KEY is required in environment when RELAY_MODEL_PROVIDER=openai")
		}
	case "dummy":
	default:
		return fmt.Errorf("RELAY_MODEL_PROVIDER must be openai or dummy, got %q", c.ModelProvider)
	}
	if len(c.AllowedChats) == 0 {
		return fmt.Errorf("ALLOWED_CHATS must list at least one chat id")
	}
	if c.Frequency < 0 || c.Frequency > 1 {
		return fmt.Errorf("FREQUENCY must be within [0, 1], got %v", c.Frequency)
	}
	if c.ContextLen <= 0 {
		return fmt.Errorf("CONTEXT_LENGTH must be > 0")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("MAX_TOKENS must be > 0")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT_SECONDS must be > 0")
	}
	return nil
}

func (c Config) validateStore() error {
	switch c.StoreBackend {
	case BackendSQLite, BackendMemory, BackendRedis:
	case BackendPostgres, BackendMySQL:
		if c.StoreDSN == "" {
			return fmt.Errorf("STORE_DSN is required when STORE_BACKEND=%s", c.StoreBackend)
		}
	case BackendDynamoDB:
		if c.DynamoTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE_NAME is required when STORE_BACKEND=dynamodb")
		}
	default:
		return fmt.Errorf("STORE_BACKEND %q is not supported", c.StoreBackend)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT_SECONDS must be > 0")
	}
	return nil
}

// parser reads typed values and keeps the first error, naming the key.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
}

func (p *parser) intVal(key string) int {
	raw := p.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
	}
	return n
}

func (p *parser) int64Val(key string) int64 {
	raw := p.str(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		p.fail(key, raw, err)
	}
	return n
}

func (p *parser) floatVal(key string) float64 {
	raw := p.str(key)
	if raw == "" {
		return 0
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
	}
	return f
}

func (p *parser) seconds(key string) time.Duration {
	return time.Duration(p.intVal(key)) * time.Second
}

func (p *parser) ids(key string) []int64 {
	raw := p.str(key)
	if raw == "" {
		return nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			p.fail(key, raw, err)
			return nil
		}
		out = append(out, id)
	}
	return out
}
