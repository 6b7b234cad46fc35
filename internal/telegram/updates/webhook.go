package updates

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/mymmrac/telego"

	"github.com/codex-k8s/telegram-poller/internal/polling"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookClient is the part of the Bot API the webhook source needs. *telego.Bot implements it.
type WebhookClient interface {
	SetWebhook(ctx context.Context, params *telego.SetWebhookParams) error
	DeleteWebhook(ctx context.Context, params *telego.DeleteWebhookParams) error
}

// Webhook delivers Telegram updates via HTTP webhook.
type Webhook struct {
	client         WebhookClient
	processor      polling.Processor
	url            string
	secret         string
	allowedUpdates []string
	closed         atomic.Bool
	log            *slog.Logger
}

// NewWebhook creates a new webhook source.
func NewWebhook(client WebhookClient, processor polling.Processor, url, secret string, allowedUpdates []string, log *slog.Logger) *Webhook {
	return &Webhook{
		client:         client,
		processor:      processor,
		url:            url,
		secret:         secret,
		allowedUpdates: allowedUpdates,
		log:            log,
	}
}

// Start sets webhook on Telegram side.
func (w *Webhook) Start(ctx context.Context) error {
	params := &telego.SetWebhookParams{
		URL:            w.url,
		SecretToken:    w.secret,
		AllowedUpdates: w.allowedUpdates,
	}
	if err := w.client.SetWebhook(ctx, params); err != nil {
		return err
	}
	w.closed.Store(false)
	w.log.Info("Telegram updates started via webhook", "url", w.url)
	return nil
}

// Stop removes the webhook. Pending updates stay queued for the next consumer.
func (w *Webhook) Stop(ctx context.Context) error {
	w.closed.Store(true)
	return w.client.DeleteWebhook(ctx, &telego.DeleteWebhookParams{})
}

// Handler returns HTTP handler for Telegram webhook updates. A processing failure answers 500
// so Telegram redelivers the update.
func (w *Webhook) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if w.closed.Load() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if subtle.ConstantTimeCompare([]byte(r.Header.Get(secretHeader)), []byte(w.secret)) != 1 {
			w.log.Warn("Webhook secret mismatch")
			rw.WriteHeader(http.StatusUnauthorized)
			return
		}
		defer r.Body.Close()
		var update telego.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			w.log.Error("Failed to decode webhook update", "error", err)
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := w.processor.ProcessUpdate(r.Context(), update); err != nil {
			w.log.Error("Webhook update processing failed", "error", err, "update_id", update.UpdateID)
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		rw.WriteHeader(http.StatusOK)
	})
}
