package repository

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yuresilva1/inss-study-hub/internal/config"
	"github.com/yuresilva1/inss-study-hub/internal/database"
)

// Handle is an opened Store with its connection's lifecycle.
type Handle struct {
	Store Store
	Ping  func(ctx context.Context) error
	Close func()
}

// Open connects the Store selected by cfg.DBDriver.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Handle, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		db, err := database.NewSQLiteDB(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Store: NewSQLiteStore(db),
			Ping:  db.PingContext,
			Close: func() { db.Close() },
		}, nil
	case config.DriverPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &Handle{
			Store: NewPostgresStore(pool),
			Ping:  pool.Ping,
			Close: pool.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
}
