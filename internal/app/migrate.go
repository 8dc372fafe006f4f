package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v4/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/recollector/auth-service/internal/migrations"
	"github.com/recollector/auth-service/internal/utils"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations points goose at the embedded SQL files and applies every
// pending migration on db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Migrate opens a database/sql handle over the pool's connection config,
// since goose does not speak pgxpool, and runs the migrations through it.
func (a *App) Migrate(ctx context.Context) error {
	db := stdlib.OpenDB(*a.DB.Config().ConnConfig)
	defer db.Close()

	utils.Logger.Info("Applying database migrations")
	if err := RunMigrations(ctx, db); err != nil {
		return err
	}
	utils.Logger.Info("Database migrations up to date")
	return nil
}
