package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chatrelay/chatrelay/internal/action"
	"github.com/chatrelay/chatrelay/internal/assistant"
	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/contact"
	"github.com/chatrelay/chatrelay/internal/conversation"
	"github.com/chatrelay/chatrelay/internal/db"
	"github.com/chatrelay/chatrelay/internal/dedup"
	"github.com/chatrelay/chatrelay/internal/handlers"
	"github.com/chatrelay/chatrelay/internal/ingest"
	"github.com/chatrelay/chatrelay/internal/ledger"
	"github.com/chatrelay/chatrelay/internal/ledger/sheets"
	"github.com/chatrelay/chatrelay/internal/logger"
	"github.com/chatrelay/chatrelay/internal/media"
	"github.com/chatrelay/chatrelay/internal/message"
	"github.com/chatrelay/chatrelay/internal/run"
	"github.com/chatrelay/chatrelay/internal/server"
	"github.com/chatrelay/chatrelay/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBPool,
			provideLedger,
			provideContactService,
			provideConversationService,
			provideMessageService,
			provideDedupStore,
			provideWhatsAppClient,
			provideAssistantClient,
			provideActionRegistry,
			provideMediaBridge,
			provideRunEngine,
			provideProcessor,
			handlers.NewPingHandler,
			provideWebhookHandler,
			handlers.NewChatStatusHandler,
			handlers.NewActionsHandler,
			handlers.NewMessagesHandler,
			provideServer,
		),
		fx.Invoke(
			loadActionCatalog,
			startServer,
		),
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	pool, err := db.Connect(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideLedger(log *slog.Logger, cfg config.Config) (ledger.Ledger, error) {
	if cfg.Sheets.SpreadsheetID == "" {
		log.Info("sheets ledger not configured, mirroring disabled")
		return ledger.Nop{}, nil
	}
	client, err := sheets.New(context.Background(), log, cfg.Sheets)
	if err != nil {
		return nil, fmt.Errorf("sheets ledger: %w", err)
	}
	return client, nil
}

func provideContactService(log *slog.Logger, pool *pgxpool.Pool) *contact.Service {
	return contact.NewService(log, pool)
}

func provideConversationService(log *slog.Logger, pool *pgxpool.Pool, led ledger.Ledger) *conversation.Service {
	return conversation.NewService(log, pool, led)
}

func provideMessageService(log *slog.Logger, pool *pgxpool.Pool, led ledger.Ledger) *message.Service {
	return message.NewService(log, pool, led)
}

func provideDedupStore(cfg config.Config) *dedup.Store {
	return dedup.NewStore(time.Duration(cfg.Dedup.WindowMinutes)*time.Minute, cfg.Dedup.MaxEntries)
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) (*whatsapp.Client, error) {
	return whatsapp.NewClient(log, cfg.WhatsApp)
}

func provideAssistantClient(log *slog.Logger, cfg config.Config) (*assistant.Client, error) {
	return assistant.NewClient(log, cfg.OpenAI)
}

func provideActionRegistry(log *slog.Logger, pool *pgxpool.Pool) *action.Registry {
	return action.NewRegistry(log, pool)
}

func provideMediaBridge(log *slog.Logger, wa *whatsapp.Client, ai *assistant.Client) *media.Bridge {
	return media.NewBridge(log, wa, ai)
}

func provideRunEngine(log *slog.Logger, ai *assistant.Client, registry *action.Registry, cfg config.Config) (*run.Engine, error) {
	return run.NewEngine(log, ai, registry, cfg.OpenAI)
}

func provideProcessor(
	log *slog.Logger,
	contacts *contact.Service,
	conversations *conversation.Service,
	messages *message.Service,
	engine *run.Engine,
	bridge *media.Bridge,
	wa *whatsapp.Client,
	store *dedup.Store,
) *ingest.Processor {
	return ingest.NewProcessor(log, contacts, conversations, messages, engine, bridge, wa, store)
}

func provideWebhookHandler(log *slog.Logger, wa *whatsapp.Client, processor *ingest.Processor) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, wa, processor)
}

func provideServer(
	log *slog.Logger,
	cfg config.Config,
	pingHandler *handlers.PingHandler,
	webhookHandler *handlers.WebhookHandler,
	chatStatusHandler *handlers.ChatStatusHandler,
	actionsHandler *handlers.ActionsHandler,
	messagesHandler *handlers.MessagesHandler,
) *server.Server {
	return server.NewServer(cfg.Server.Addr, log, pingHandler, webhookHandler, chatStatusHandler, actionsHandler, messagesHandler)
}

func loadActionCatalog(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, registry *action.Registry, conversations *conversation.Service, wa *whatsapp.Client) {
	lc.Append(fx.Hook{OnStart: func(ctx context.Context) error {
		action.RegisterBuiltins(registry, log, conversations, wa, cfg.WhatsApp.AdminNumber)
		if err := registry.LoadCatalog(ctx); err != nil {
			return fmt.Errorf("load action catalog: %w", err)
		}
		return nil
	}})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
