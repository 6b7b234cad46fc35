package telegram

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mymmrac/telego"
	"golang.org/x/time/rate"

	"github.com/codex-k8s/telegram-poller/internal/config"
	"github.com/codex-k8s/telegram-poller/internal/i18n"
	applog "github.com/codex-k8s/telegram-poller/internal/log"
	"github.com/codex-k8s/telegram-poller/internal/offsets"
	"github.com/codex-k8s/telegram-poller/internal/polling"
	"github.com/codex-k8s/telegram-poller/internal/telegram/handlers"
	"github.com/codex-k8s/telegram-poller/internal/telegram/updates"
)

// Service wires the bot, the update source and the update handler together.
type Service struct {
	bot     *telego.Bot
	source  updates.Source
	polling *updates.LongPolling
	handler *handlers.Handler
	store   *offsets.FileStore
	log     *slog.Logger
}

// New creates a new Telegram service. In long-polling mode the stored offset, if any, becomes the
// poller's starting point.
func New(cfg config.Config, bundle i18n.Bundle, messages map[string]i18n.Messages, log *slog.Logger) (*Service, error) {
	bot, err := newBot(cfg, log)
	if err != nil {
		return nil, err
	}

	var transcriber handlers.Transcriber
	if cfg.OpenAIAPIKey != "" {
		transcriber = handlers.NewOpenAITranscriber(cfg.OpenAIAPIKey, cfg.STTModel, cfg.STTTimeout, log)
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.ReplyRate), max(1, int(cfg.ReplyRate)))
	handler := handlers.NewHandler(bot, messages, bundle.Lang, cfg.AllowedChatIDs, transcriber, limiter, log)

	s := &Service{bot: bot, handler: handler, log: log}

	if cfg.WebhookEnabled() {
		s.source = updates.NewWebhook(bot, handler, cfg.WebhookURL, cfg.WebhookSecret, cfg.AllowedUpdates, log)
		return s, nil
	}

	offset := 0
	if cfg.OffsetFile != "" {
		s.store = offsets.NewFileStore(cfg.OffsetFile)
		if offset, err = s.store.Load(); err != nil {
			return nil, err
		}
	}
	pollCfg := polling.DefaultConfig()
	pollCfg.Interval = cfg.PollingInterval
	pollCfg.Params = polling.Params{
		Offset:         offset,
		Limit:          cfg.PollingLimit,
		Timeout:        cfg.PollingTimeout,
		AllowedUpdates: cfg.AllowedUpdates,
	}
	pollCfg.BadRejectionRecovery = cfg.BadRejectionRecovery
	pollCfg.Hooks = newHooks(s.store, log)
	lp, err := updates.NewLongPolling(bot, handler, pollCfg, log)
	if err != nil {
		return nil, err
	}
	handler.SetStatusSource(lp)
	s.source = lp
	s.polling = lp
	return s, nil
}

// Start begins receiving Telegram updates.
func (s *Service) Start(ctx context.Context) error {
	return s.source.Start(ctx)
}

// Stop shuts down update processing and flushes the polling offset. A graceful polling stop
// that outlives ctx is turned into a cancellation.
func (s *Service) Stop(ctx context.Context) error {
	err := s.source.Stop(ctx)
	if s.polling != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		s.log.Warn("Graceful polling stop timed out, cancelling", "error", err)
		err = s.polling.StopNow(context.WithoutCancel(ctx), "shutdown timeout")
	}
	if s.polling != nil && s.store != nil {
		if saveErr := s.store.Save(s.polling.State().Offset); saveErr != nil {
			err = errors.Join(err, saveErr)
		}
	}
	return err
}

// WebhookHandler returns the webhook HTTP handler if enabled.
func (s *Service) WebhookHandler() http.Handler {
	return s.source.Handler()
}

// Polling returns the long-polling source, or nil in webhook mode.
func (s *Service) Polling() *updates.LongPolling {
	return s.polling
}

// newBot builds the Bot API client on net/http, whose requests are bound to their context, so
// cancelling a run aborts the in-flight getUpdates.
func newBot(cfg config.Config, log *slog.Logger) (*telego.Bot, error) {
	opts := []telego.BotOption{
		telego.WithLogger(telegoLogger{log: log}),
		telego.WithHTTPClient(&http.Client{}),
	}
	if cfg.APIServer != "" {
		opts = append(opts, telego.WithAPIServer(cfg.APIServer))
	}
	return telego.NewBot(cfg.Token, opts...)
}

func newHooks(store *offsets.FileStore, log *slog.Logger) polling.Hooks {
	return polling.Hooks{
		OnStarted: func() {
			log.Debug("Polling hook: started")
		},
		OnStopped: func(reason string) {
			log.Debug("Polling hook: stopped", "reason", reason)
		},
		OnRestart: func() {
			log.Info("Polling restart requested")
		},
		OnError: func(err error) {
			var procErr *polling.ProcessingError
			if errors.As(err, &procErr) {
				log.Warn("Update processing failed", "update_id", procErr.UpdateID, "error", procErr.Err)
				return
			}
			log.Warn("Fetching updates failed", "error", err)
		},
		OnFatal: func(err error) {
			log.Log(context.Background(), applog.LevelFatal, "Polling offset recovery failed", "error", err)
		},
		OnOffset: func(offset int) {
			if store == nil {
				return
			}
			if err := store.Save(offset); err != nil {
				log.Error("Failed to persist polling offset", "error", err, "offset", offset, "path", store.Path())
			}
		},
	}
}
