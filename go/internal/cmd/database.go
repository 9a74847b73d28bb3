package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/mcdev12/buzzroom/go/internal/dbconfig"
	"github.com/mcdev12/buzzroom/go/internal/room/store"
	"github.com/rs/zerolog/log"
)

// checkDatabase fails fast on an unreachable database before the pool and
// the listener start retrying in the background.
func checkDatabase(ctx context.Context, cfg dbconfig.Config) error {
	database, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	defer database.Close()

	if err := database.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func setupPostgresStore(ctx context.Context, cfg dbconfig.Config) (*store.PostgresStore, error) {
	if err := checkDatabase(ctx, cfg); err != nil {
		return nil, err
	}

	s, err := store.NewPostgresStore(ctx, store.DefaultPostgresConfig(cfg.DSN()))
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user", cfg.User).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("connected to database")
	return s, nil
}
