package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kestrel-forensics/kestrel/internal/api"
	"github.com/kestrel-forensics/kestrel/internal/bus"
	"github.com/kestrel-forensics/kestrel/internal/casefile"
	"github.com/kestrel-forensics/kestrel/internal/config"
	"github.com/kestrel-forensics/kestrel/internal/ingest"
	"github.com/kestrel-forensics/kestrel/internal/parser"
	"github.com/kestrel-forensics/kestrel/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("kestrel starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Case file
	kase := casefile.Default()
	if cfg.CaseFile != "" {
		var err error
		kase, err = casefile.Load(cfg.CaseFile)
		if err != nil {
			slog.Error("failed to load case file", "path", cfg.CaseFile, "error", err)
			os.Exit(1)
		}
		slog.Info("case loaded", "name", kase.Name, "tags", len(kase.Tags))
	} else {
		slog.Warn("no case file configured — owner heuristics only, default tag palette")
	}

	// Database (optional — the tool works standalone without persistence)
	var db *store.Store
	if cfg.DatabaseURL != "" {
		var err error
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			slog.Error("failed to ensure schema", "error", err)
			os.Exit(1)
		}
		if err := db.SeedTags(ctx, kase.Tags); err != nil {
			slog.Error("failed to seed tags", "error", err)
			os.Exit(1)
		}
		slog.Info("database connected")
	} else {
		slog.Warn("DATABASE_URL not set — persistence and tagging disabled")
	}

	// NATS (optional)
	var events *bus.Client
	if cfg.NatsURL != "" {
		var err error
		events, err = bus.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer events.Close()
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS_URL not set — ingest events disabled")
	}

	// Parser registry from the case owners
	registry := parser.DefaultRegistry(kase.ParserOwners())

	// Ingest runner
	inbox := cfg.Inbox
	if kase.Inbox != "" {
		inbox = kase.Inbox
	}
	runner := ingest.NewRunner(ingest.Config{
		CaseName: kase.Name,
		Inbox:    inbox,
	}, registry, db, events, slog.Default())

	// Process anything already waiting, then watch for new drops.
	if inbox != "" {
		if _, err := runner.Run(ctx); err != nil && err != context.Canceled {
			slog.Error("initial inbox sweep failed", "error", err)
		}
		go func() {
			if err := runner.Watch(ctx); err != nil && err != context.Canceled {
				slog.Error("inbox watcher stopped", "error", err)
			}
		}()
	} else {
		slog.Warn("no inbox configured — ingest via API only")
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, registry, runner, db)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("kestrel ready", "port", cfg.Port, "case", kase.Name)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("kestrel stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
