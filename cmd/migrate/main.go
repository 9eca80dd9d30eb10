package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

func main() {
	databaseURL := flag.String("database", "", "Postgres URL (or DATABASE_URL env)")
	migrationsPath := flag.String("path", "migrations", "Path to migrations directory")
	command := flag.String("command", "up", "Migration command: up, down, version, force")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	url := *databaseURL
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		logger.Error("database URL is required (use -database or DATABASE_URL)")
		os.Exit(1)
	}

	m, err := migrate.New(fmt.Sprintf("file://%s", *migrationsPath), url)
	if err != nil {
		logger.Error("failed to create migration instance", "err", err)
		os.Exit(1)
	}
	defer m.Close()

	switch *command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("database is up to date")
			return
		}
		if err != nil {
			logger.Error("migration failed", "err", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			logger.Error("rollback failed", "err", err)
			os.Exit(1)
		}
		logger.Info("rollback complete")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			logger.Error("failed to read version", "err", err)
			os.Exit(1)
		}
		logger.Info("migration state", "version", version, "dirty", dirty)

	case "force":
		if flag.NArg() < 1 {
			logger.Error("force requires a version argument")
			os.Exit(1)
		}
		var version int
		if _, err := fmt.Sscanf(flag.Arg(0), "%d", &version); err != nil {
			logger.Error("invalid version number", "err", err)
			os.Exit(1)
		}
		if err := m.Force(version); err != nil {
			logger.Error("force failed", "err", err)
			os.Exit(1)
		}
		logger.Info("version forced", "version", version)

	default:
		logger.Error("unknown command", "command", *command)
		os.Exit(1)
	}
}
