package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/telegram-poller/internal/config"
	applog "github.com/codex-k8s/telegram-poller/internal/log"
	"github.com/codex-k8s/telegram-poller/internal/offsets"
	"github.com/codex-k8s/telegram-poller/internal/polling"
	"github.com/codex-k8s/telegram-poller/internal/telegram/updates"
)

var testToken = "123456789:" + strings.Repeat("A", 35)

func TestCancelAbortsInFlightGetUpdates(t *testing.T) {
	received := make(chan struct{}, 1)
	aborted := make(chan struct{})
	var abortOnce sync.Once
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !strings.HasSuffix(r.URL.Path, "/getUpdates") {
			_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
			return
		}
		select {
		case received <- struct{}{}:
		default:
		}
		select {
		case <-r.Context().Done():
			abortOnce.Do(func() { close(aborted) })
		case <-time.After(3 * time.Second):
			_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
		}
	}))
	defer srv.Close()

	logger := applog.NewWithWriter(io.Discard, "info", "text")
	bot, err := newBot(config.Config{Token: testToken, APIServer: srv.URL}, logger)
	require.NoError(t, err)
	noop := polling.ProcessorFunc(func(context.Context, telego.Update) error { return nil })
	lp, err := updates.NewLongPolling(bot, noop, polling.Config{Params: polling.Params{Timeout: 30}}, logger)
	require.NoError(t, err)

	require.NoError(t, lp.Start(context.Background()))
	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("getUpdates never reached the server")
	}

	require.NoError(t, lp.StopNow(context.Background(), "test"))
	select {
	case <-aborted:
	case <-time.After(time.Second):
		t.Fatal("cancel did not abort the in-flight getUpdates")
	}
	require.False(t, lp.State().Active)
}

func TestHooksPersistOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "offset.yaml")
	store := offsets.NewFileStore(path)
	hooks := newHooks(store, applog.NewWithWriter(&bytes.Buffer{}, "debug", "text"))

	hooks.OnOffset(41)
	hooks.OnOffset(42)

	got, err := offsets.NewFileStore(path).Load()
	require.NoError(t, err)
	require.Equal(t, 42, got)
}

func TestHooksWithoutStore(t *testing.T) {
	var buf bytes.Buffer
	hooks := newHooks(nil, applog.NewWithWriter(&buf, "debug", "text"))

	hooks.OnOffset(7)
	hooks.OnStarted()
	hooks.OnRestart()
	hooks.OnStopped("shutdown")

	out := buf.String()
	require.Contains(t, out, "Polling restart requested")
	require.Contains(t, out, `level=DEBUG msg="Polling hook: stopped" reason=shutdown`)
	require.NotContains(t, out, "level=INFO msg=\"Polling stopped\"")
	require.NotContains(t, out, "Failed to persist")
}

func TestHooksLogErrors(t *testing.T) {
	var buf bytes.Buffer
	hooks := newHooks(nil, applog.NewWithWriter(&buf, "debug", "text"))

	hooks.OnError(&polling.ProcessingError{UpdateID: 9, Err: errors.New("blocked")})
	hooks.OnError(&polling.FetchError{Err: errors.New("bad gateway")})
	hooks.OnFatal(&polling.FatalError{
		Cause:       &polling.ProcessingError{UpdateID: 9, Err: errors.New("blocked")},
		RecoveryErr: fmt.Errorf("timeout"),
	})

	out := buf.String()
	require.Contains(t, out, "Update processing failed")
	require.Contains(t, out, "update_id=9")
	require.Contains(t, out, "Fetching updates failed")
	require.Contains(t, out, "level=FATAL")
}
