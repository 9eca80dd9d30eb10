package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/nexcrm/automation/internal/action"
	"github.com/nexcrm/automation/internal/api"
	"github.com/nexcrm/automation/internal/config"
	"github.com/nexcrm/automation/internal/engine"
	"github.com/nexcrm/automation/internal/rule"
)

func main() {
	cfgPath := flag.String("config", "configs/engine.yaml", "Path to engine YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	// ── Rule store ────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(cfg.Storage)
	if err != nil {
		slog.Error("failed to open rule store", "driver", cfg.Storage.Driver, "err", err)
		os.Exit(1)
	}
	defer closeStore()

	reg, err := rule.NewRegistry(store)
	if err != nil {
		slog.Error("failed to load rules", "err", err)
		os.Exit(1)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	table := action.DefaultTable(action.LocalCollaborators(logger))
	eng := engine.New(cfg.Engine, reg, table, logger)
	eng.Start(ctx)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		eng.ApplyConf(newCfg.Engine)
		slog.Info("engine settings hot-reloaded")
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(eng)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	eng.Shutdown()
	cancel()
	slog.Info("goodbye")
}

// openStore picks the rule store backend from config. The memory store is
// the default for local development.
func openStore(cfg config.StorageConf) (rule.Store, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		return rule.NewMemoryStore(), func() {}, nil
	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, nil, err
		}
		return rule.NewPostgresStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
