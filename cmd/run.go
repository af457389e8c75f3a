package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nextlevelbuilder/gosentinel/internal/bot"
	"github.com/nextlevelbuilder/gosentinel/internal/config"
	"github.com/nextlevelbuilder/gosentinel/internal/confstore"
)

func runBot() {
	// .env is optional; containers usually inject the real environment.
	godotenv.Load()

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !verbose {
		if lvl := config.ParseLogLevel(cfg.LogLevel); lvl != logLevel {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
				Level: lvl,
			})))
		}
	}

	_, statErr := os.Stat(cfgPath)
	if os.IsNotExist(statErr) {
		if canAutoOnboard() {
			// Docker / CI: env vars describe the gateway → write config.json
			// non-interactively and keep going.
			if !runAutoOnboard(cfgPath) {
				os.Exit(1)
			}
			if cfg, err = config.Load(cfgPath); err != nil {
				slog.Error("failed to reload config", "error", err)
				os.Exit(1)
			}
		} else if cfg.OneBot.WSURL == "" && cfg.OneBot.ListenAddr == "" {
			fmt.Println("No configuration found. Starting setup wizard...")
			fmt.Println()
			runOnboard()
			return
		}
	}

	for _, w := range cfg.Warnings() {
		slog.Warn(w)
	}

	store := confstore.Open(confstore.DefaultPath())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := store.Watch(ctx); err != nil {
			slog.Warn("config store watch failed", "error", err)
		}
	}()

	b := bot.New(cfg, store)
	slog.Info("gosentinel starting",
		"version", Version,
		"ws_url", cfg.OneBot.WSURL,
		"listen_addr", cfg.OneBot.ListenAddr,
		"monitor_groups", len(cfg.AntiRecall.MonitorGroups),
		"superusers", len(cfg.Superusers),
	)
	if err := b.Run(ctx); err != nil {
		slog.Error("bot error", "error", err)
		os.Exit(1)
	}
	slog.Info("graceful shutdown complete")
}
