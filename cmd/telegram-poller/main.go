package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/codex-k8s/telegram-poller/internal/config"
	httpapi "github.com/codex-k8s/telegram-poller/internal/http"
	"github.com/codex-k8s/telegram-poller/internal/i18n"
	"github.com/codex-k8s/telegram-poller/internal/log"
	"github.com/codex-k8s/telegram-poller/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := log.New(cfg.LogLevel, cfg.LogFormat).With("service", cfg.ServiceName)
	bundle, err := i18n.Load(cfg.Lang)
	if err != nil {
		logger.Error("failed to load i18n", "error", err)
		os.Exit(1)
	}
	messages, err := i18n.LoadAll()
	if err != nil {
		logger.Error("failed to load i18n", "error", err)
		os.Exit(1)
	}

	service, err := telegram.New(cfg, bundle, messages, logger)
	if err != nil {
		logger.Error("failed to init telegram service", "error", err)
		os.Exit(1)
	}

	server := httpapi.New(cfg.HTTPAddr(), logger)
	if webhook := service.WebhookHandler(); webhook != nil {
		server.Handle("/webhook", webhook)
	}
	if lp := service.Polling(); lp != nil {
		httpapi.NewPollingHandler(lp, cfg.ShutdownTimeout, logger).Register(server)
		server.SetReadyCheck(func() bool { return lp.State().Active })
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := service.Start(baseCtx); err != nil {
		logger.Error("failed to start telegram updates", "error", err)
		os.Exit(1)
	}
	server.SetReady(true)

	g, gCtx := errgroup.WithContext(baseCtx)

	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("shutdown requested", "signal", sig.String())
		case <-gCtx.Done():
			logger.Info("shutting down after failure")
		}

		server.SetReady(false)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		if err := service.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop telegram updates", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "error", err)
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("telegram-poller stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("telegram-poller stopped")
}
