package updates

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/codex-k8s/telegram-poller/internal/polling"
)

// ShutdownReason is reported to OnStopped when the service stops the poller.
const ShutdownReason = "shutdown"

// LongPolling delivers Telegram updates via the polling loop.
type LongPolling struct {
	poller *polling.Poller
	log    *slog.Logger
}

// NewLongPolling creates a long polling source around a stopped poller.
func NewLongPolling(client polling.Client, processor polling.Processor, cfg polling.Config, log *slog.Logger) (*LongPolling, error) {
	poller, err := polling.New(client, processor, cfg, log)
	if err != nil {
		return nil, err
	}
	return &LongPolling{poller: poller, log: log}, nil
}

// Start launches the polling loop. Starting an active source is a no-op.
func (l *LongPolling) Start(ctx context.Context) error {
	if err := l.poller.Start(ctx, polling.StartOptions{}); err != nil {
		return err
	}
	l.log.Info("Telegram updates started via long polling", "offset", l.poller.Offset())
	return nil
}

// Restart cancels the current run, if any, and launches a fresh one.
func (l *LongPolling) Restart(ctx context.Context) error {
	return l.poller.Start(ctx, polling.StartOptions{Restart: true})
}

// Stop lets the in-flight batch finish and waits for the loop until ctx is done.
func (l *LongPolling) Stop(ctx context.Context) error {
	return l.StopWith(ctx, polling.StopOptions{Reason: ShutdownReason})
}

// StopNow cancels the loop without waiting for the in-flight batch.
func (l *LongPolling) StopNow(ctx context.Context, reason string) error {
	return l.StopWith(ctx, polling.StopOptions{Cancel: true, Reason: reason})
}

// StopWith stops the loop with explicit options.
func (l *LongPolling) StopWith(ctx context.Context, opts polling.StopOptions) error {
	return l.poller.Stop(ctx, opts)
}

// State returns a snapshot of the poller.
func (l *LongPolling) State() polling.State {
	return l.poller.State()
}

// Handler is not used for long polling.
func (l *LongPolling) Handler() http.Handler {
	return nil
}
