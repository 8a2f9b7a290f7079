package database

import (
	"context"
	"errors"
	"fmt"

	"bus-booking/pkg/database/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies the embedded goose migrations to the pool behind db.
func Migrate(ctx context.Context, db PgxIface) error {
	pooled, ok := db.(interface{ Pool() *pgxpool.Pool })
	if !ok {
		return errors.New("migrate: database handle does not expose a pgx pool")
	}

	sqlDB := stdlib.OpenDBFromPool(pooled.Pool())
	defer sqlDB.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
