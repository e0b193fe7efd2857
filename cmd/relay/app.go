package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stupiduntilnot/chatrelay/internal/commander"
	"github.com/stupiduntilnot/chatrelay/internal/config"
	ctxpkg "github.com/stupiduntilnot/chatrelay/internal/context"
	"github.com/stupiduntilnot/chatrelay/internal/db"
	"github.com/stupiduntilnot/chatrelay/internal/dummy"
	"github.com/stupiduntilnot/chatrelay/internal/gemini"
	"github.com/stupiduntilnot/chatrelay/internal/history"
	"github.com/stupiduntilnot/chatrelay/internal/kv"
	"github.com/stupiduntilnot/chatrelay/internal/logutil"
	modelpkg "github.com/stupiduntilnot/chatrelay/internal/model"
	"github.com/stupiduntilnot/chatrelay/internal/normalize"
	"github.com/stupiduntilnot/chatrelay/internal/openai"
	"github.com/stupiduntilnot/chatrelay/internal/orchestrator"
	"github.com/stupiduntilnot/chatrelay/internal/policy"
	"github.com/stupiduntilnot/chatrelay/internal/relay"
	"github.com/stupiduntilnot/chatrelay/internal/telegram"
	toolpkg "github.com/stupiduntilnot/chatrelay/internal/tool"
)

// sessions bundles the event log database and the history store.
type sessions struct {
	database *sql.DB
	backend  kv.Store
	store    *history.Store
	events   *db.EventLog
}

func (s *sessions) Close() error {
	var errs []error
	if s.backend != nil {
		errs = append(errs, s.backend.Close())
	}
	if s.database != nil {
		errs = append(errs, s.database.Close())
	}
	return errors.Join(errs...)
}

// openSessions opens the SQLite event log and the configured history
// backend. The sqlite backend shares the event log database.
func openSessions(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sessions, error) {
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	s := &sessions{database: database, events: &db.EventLog{DB: database, Logger: logger}}

	openCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		s.backend = kv.NewSQLStore(database, kv.SQLite)
	case config.BackendMemory:
		s.backend = kv.NewMemoryStore()
	case config.BackendRedis:
		s.backend, err = kv.OpenRedis(openCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix)
	case config.BackendDynamoDB:
		s.backend, err = kv.OpenDynamo(openCtx, cfg.DynamoTable, cfg.AWSRegion)
	case config.BackendPostgres, config.BackendMySQL:
		dialect, _ := kv.DialectByName(cfg.StoreBackend)
		s.backend, err = kv.OpenSQL(openCtx, dialect, cfg.StoreDSN)
	default:
		err = fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		database.Close()
		return nil, err
	}
	s.store = history.NewStore(s.backend, cfg.StoreTimeout, logger)
	return s, nil
}

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	sessions  *sessions
	processor *relay.Processor
}

func (a *app) Close() error {
	return a.sessions.Close()
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	logger, err := logutil.New(cfg.LogLevel, cfg.LogFormat, nil)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

// buildApp wires every relay component from cfg.
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := openSessions(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	transport, err := newTransport(cfg, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to init transport: %w", err)
	}
	provider, err := newModelProvider(cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to init model provider: %w", err)
	}

	gen, err := newImageGenerator(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to init image generator: %w", err)
	}
	registry := toolpkg.NewRegistry()
	if gen != nil {
		if err := registry.Register(toolpkg.NewImageTool(gen, cfg.ImageMimeType, logger)); err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to register tool %s: %w", toolpkg.ImageToolName, err)
		}
	} else {
		logger.Warn("image_tool_disabled", "reason", "GEMINI_API_KEY not set")
	}

	trimmer := &ctxpkg.Trimmer{MaxMessages: cfg.ContextLen}
	orch := orchestrator.New(orchestrator.Options{
		Provider: provider,
		Store:    s.store,
		Assembler: &ctxpkg.StandardAssembler{
			SystemPrompt:    cfg.SystemPrompt,
			StylePrompt:     cfg.StylePrompt,
			ToolInstruction: ctxpkg.ToolInstruction,
			MimeType:        cfg.ImageMimeType,
			Compressor:      &ctxpkg.SimpleCompressor{MaxMessages: cfg.ContextLen},
			Logger:          logger,
		},
		Trimmer:  trimmer,
		Registry: registry,
		Runner:   toolpkg.NewRunner(registry),
		Events:   s.events,
		BotName:  cfg.BotName,
		MimeType: cfg.ImageMimeType,
		Logger:   logger,
	})

	processor := relay.New(relay.Options{
		BotID:     cfg.BotID,
		ModelName: cfg.OpenAIModel,
		Policy: policy.New(policy.Options{
			BotID:        cfg.BotID,
			BotName:      cfg.BotName,
			Frequency:    cfg.Frequency,
			AllowedChats: cfg.AllowedChats,
			ResetCommand: cfg.ResetCommand,
		}),
		Normalizer: normalize.New(cfg.BotName, transport, logger),
		Store:      s.store,
		Trimmer:    trimmer,
		Completer:  orch,
		Transport:  transport,
		Events:     s.events,
		Logger:     logger,
	})
	return &app{cfg: cfg, logger: logger, sessions: s, processor: processor}, nil
}

func newTransport(cfg config.Config, logger *slog.Logger) (commander.Transport, error) {
	switch cfg.Transport {
	case "telegram":
		return telegram.NewClient(cfg.TelegramAPIBase, cfg.TelegramToken, cfg.HTTPTimeout, logger), nil
	case "dummy":
		return dummy.NewTransport("ok")
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func newModelProvider(cfg config.Config) (modelpkg.Provider, error) {
	switch cfg.ModelProvider {
	case "openai":
		return openai.NewClient(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.HTTPTimeout, openai.Sampling{
			Temperature:      float32(cfg.Temperature),
			MaxTokens:        cfg.MaxTokens,
			TopP:             float32(cfg.TopP),
			PresencePenalty:  float32(cfg.PresencePenalty),
			FrequencyPenalty: float32(cfg.FrequencyPenalty),
		}), nil
	case "dummy":
		return dummy.NewProvider(cfg.OpenAIModel, cfg.DummyProviderScript)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.ModelProvider)
	}
}

// newImageGenerator returns nil when image generation is not configured.
func newImageGenerator(ctx context.Context, cfg config.Config) (toolpkg.ImageGenerator, error) {
	if cfg.GeminiAPIKey != "" {
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiImageModel, cfg.HTTPTimeout)
	}
	if cfg.ModelProvider == "dummy" {
		return dummy.NewImageGenerator(), nil
	}
	return nil, nil
}
