package updates

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/telegram-poller/internal/polling"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeWebhookClient struct {
	set     *telego.SetWebhookParams
	deleted *telego.DeleteWebhookParams
}

func (c *fakeWebhookClient) SetWebhook(_ context.Context, params *telego.SetWebhookParams) error {
	c.set = params
	return nil
}

func (c *fakeWebhookClient) DeleteWebhook(_ context.Context, params *telego.DeleteWebhookParams) error {
	c.deleted = params
	return nil
}

type recordingProcessor struct {
	mu  sync.Mutex
	ids []int
	err error
}

func (p *recordingProcessor) ProcessUpdate(_ context.Context, update telego.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, update.UpdateID)
	return p.err
}

func (p *recordingProcessor) IDs() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.ids...)
}

func postUpdate(t *testing.T, h http.Handler, secret, body string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(secretHeader, secret)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestWebhookStartStop(t *testing.T) {
	client := &fakeWebhookClient{}
	w := NewWebhook(client, &recordingProcessor{}, "https://bot.example/hook", "s3cret", []string{"message"}, discardLogger())

	require.NoError(t, w.Start(context.Background()))
	require.Equal(t, "https://bot.example/hook", client.set.URL)
	require.Equal(t, "s3cret", client.set.SecretToken)
	require.Equal(t, []string{"message"}, client.set.AllowedUpdates)

	require.NoError(t, w.Stop(context.Background()))
	require.NotNil(t, client.deleted)
	require.False(t, client.deleted.DropPendingUpdates)
	require.Equal(t, http.StatusServiceUnavailable, postUpdate(t, w.Handler(), "s3cret", `{"update_id":1}`))
}

func TestWebhookHandler(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		body    string
		procErr error
		want    int
		wantIDs []int
	}{
		{name: "processed", secret: "s3cret", body: `{"update_id":7}`, want: http.StatusOK, wantIDs: []int{7}},
		{name: "wrong secret", secret: "nope", body: `{"update_id":7}`, want: http.StatusUnauthorized},
		{name: "missing secret", body: `{"update_id":7}`, want: http.StatusUnauthorized},
		{name: "bad json", secret: "s3cret", body: `{`, want: http.StatusBadRequest},
		{name: "processing failure", secret: "s3cret", body: `{"update_id":8}`, procErr: errors.New("send failed"), want: http.StatusInternalServerError, wantIDs: []int{8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &recordingProcessor{err: tt.procErr}
			w := NewWebhook(&fakeWebhookClient{}, proc, "https://bot.example/hook", "s3cret", nil, discardLogger())

			require.Equal(t, tt.want, postUpdate(t, w.Handler(), tt.secret, tt.body))
			require.Equal(t, tt.wantIDs, proc.IDs())
		})
	}
}

func TestWebhookRejectsGet(t *testing.T) {
	w := NewWebhook(&fakeWebhookClient{}, &recordingProcessor{}, "https://bot.example/hook", "s3cret", nil, discardLogger())
	rec := httptest.NewRecorder()
	w.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/telegram/webhook", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type scriptedClient struct {
	mu      sync.Mutex
	batches [][]telego.Update
}

func (c *scriptedClient) GetUpdates(_ context.Context, _ *telego.GetUpdatesParams) ([]telego.Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.batches) == 0 {
		return nil, nil
	}
	next := c.batches[0]
	c.batches = c.batches[1:]
	return next, nil
}

func (c *scriptedClient) DeleteWebhook(context.Context, *telego.DeleteWebhookParams) error {
	return nil
}

func TestLongPollingLifecycle(t *testing.T) {
	proc := &recordingProcessor{}
	var stopped []string
	var mu sync.Mutex
	client := &scriptedClient{batches: [][]telego.Update{{{UpdateID: 1}, {UpdateID: 2}}}}
	lp, err := NewLongPolling(client, proc, polling.Config{
		Interval: 5 * time.Millisecond,
		Hooks: polling.Hooks{OnStopped: func(reason string) {
			mu.Lock()
			defer mu.Unlock()
			stopped = append(stopped, reason)
		}},
	}, discardLogger())
	require.NoError(t, err)
	require.Nil(t, lp.Handler())

	require.NoError(t, lp.Start(context.Background()))
	require.Eventually(t, func() bool { return lp.State().Offset == 3 }, 2*time.Second, 2*time.Millisecond)
	require.Equal(t, []int{1, 2}, proc.IDs())
	require.True(t, lp.State().Active)

	previous := lp.State().RunID
	require.NoError(t, lp.Restart(context.Background()))
	require.NotEqual(t, previous, lp.State().RunID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, lp.Stop(ctx))
	require.False(t, lp.State().Active)
	require.Equal(t, 3, lp.State().Offset)

	require.NoError(t, lp.Start(context.Background()))
	require.NoError(t, lp.StopNow(context.Background(), "operator"))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"polling restart", ShutdownReason, "operator"}, stopped)
}

func TestNewLongPollingRequiresClient(t *testing.T) {
	_, err := NewLongPolling(nil, &recordingProcessor{}, polling.Config{}, discardLogger())
	require.ErrorIs(t, err, polling.ErrNoClient)
}
