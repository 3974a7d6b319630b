package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unifeed/internal/aggregate"
	"unifeed/internal/blob"
	"unifeed/internal/config"
	"unifeed/internal/notify"
	"unifeed/internal/publish"
	"unifeed/internal/reader"
	"unifeed/internal/registry"
	feedserver "unifeed/internal/server/feed"
)

var (
	configPath = flag.String("config", "config.toml", "Path to configuration file")
	runOnce    = flag.Bool("once", false, "Run a single aggregation cycle and exit")
	serve      = flag.Bool("serve", true, "Serve the published feed over HTTP")
	logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	setupLogging(*logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func run(ctx context.Context) error {
	slog.Info("Loading configuration", "path", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	creds := config.LoadCredentials()

	store, err := blob.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close(context.Background())

	decisions := registry.New(cfg, creds).Resolve()

	orchestrator := aggregate.NewOrchestrator(decisions, aggregate.Options{
		Limit:            cfg.Feed.Limit,
		PerSourceTimeout: config.Duration(cfg.Feed.PerSourceTimeout),
		TotalBudget:      config.Duration(cfg.Feed.TotalBudget),
	})
	publisher := publish.New(store, cfg.Storage.Container, cfg.Storage.LatestKey)

	var notifier aggregate.Notifier
	if creds.DiscordToken != "" && cfg.Notify.ChannelID != "" {
		discord, err := notify.NewDiscordNotifier(creds.DiscordToken, cfg.Notify.ChannelID)
		if err != nil {
			return fmt.Errorf("failed to initialize notifier: %w", err)
		}
		notifier = discord
	}

	runner := aggregate.NewRunner(orchestrator, publisher, notifier, config.Duration(cfg.Feed.Interval))

	if *runOnce || cfg.Feed.RunOnce {
		return runner.RunOnce(ctx)
	}

	if *serve {
		feedReader := reader.New(store, cfg.Storage.Container, cfg.Storage.LatestKey, config.Duration(cfg.Server.CacheTTL))
		server := feedserver.New(feedserver.Config{Port: cfg.Server.Port}, feedReader)
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start feed server: %w", err)
		}
		defer server.Shutdown(context.Background())
	}

	errChan := make(chan error, 1)
	go func() {
		if err := runner.Start(ctx); err != nil && err != context.Canceled {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := runner.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	slog.Info("Stopped")
	return nil
}
