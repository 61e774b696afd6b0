package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/season-rank/app/api"
	"github.com/lysyi3m/season-rank/app/cfg"
	"github.com/lysyi3m/season-rank/app/refresh"
	"github.com/lysyi3m/season-rank/app/tasks"
)

func main() {
	appConfig, err := cfg.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if appConfig == nil {
		return
	}

	setupLogging(appConfig.Debug)

	slog.Info("Starting Season Rank server", "version", appConfig.Version, "data_dir", appConfig.DataDir)

	components, err := refresh.Build(appConfig)
	if err != nil {
		slog.Error("Failed to initialize refresh components", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(appConfig.DataDir, 0755); err != nil {
		slog.Error("Failed to create data directory", "path", appConfig.DataDir, "error", err)
		os.Exit(1)
	}

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if appConfig.OverridesFile != "" {
		watcher := refresh.NewOverridesWatcher(appConfig.OverridesFile, components.Refresher)
		if err := watcher.Start(watchCtx); err != nil {
			slog.Warn("Overrides hot reload disabled", "path", appConfig.OverridesFile, "error", err)
		}
	}

	scheduler := tasks.NewScheduler(components.Refresher, components.Lock, tasks.Schedule{
		Hour:    appConfig.RefreshHour,
		Minute:  appConfig.RefreshMinute,
		OnStart: appConfig.RefreshOnStart,
	})
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "refresh_at", fmt.Sprintf("%02d:%02d", appConfig.RefreshHour, appConfig.RefreshMinute), "timezone", appConfig.Timezone)

	handler := api.NewHandler(components.Store, components.Refresher, scheduler)
	var limiter *api.RateLimiter
	if appConfig.RateLimit > 0 {
		limiter = api.NewRateLimiter(appConfig.RateLimit, appConfig.RateBurst)
	}
	server := api.NewServer(handler, appConfig.APIAccessKey, limiter)

	httpServer := &http.Server{
		Addr:         ":" + appConfig.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appConfig.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}
