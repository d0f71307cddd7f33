// Package backend opens a store.Store for a configured driver.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aridsondez/queuestore/internal/queue/store"
	"github.com/aridsondez/queuestore/internal/queue/store/postgres"
	"github.com/aridsondez/queuestore/internal/queue/store/sqlstore"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Config selects and connects a backend.
type Config struct {
	Driver         string
	DSN            string
	CreateSchema   bool
	ConnectTimeout time.Duration
	Logger         zerolog.Logger
}

// Open connects to the configured datastore, wraps the store with metrics
// and runs Init. The returned store owns the connection; release it with Close.
func Open(ctx context.Context, cfg Config) (store.Store, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	log := cfg.Logger.With().Str("component", "store").Str("driver", cfg.Driver).Logger()

	var s store.Store
	switch cfg.Driver {
	case DriverPostgres:
		pool, err := pgxpool.New(connectCtx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		if err := pool.Ping(connectCtx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("pgx ping: %w", err)
		}
		s = postgres.New(pool, postgres.WithLogger(log))
	case DriverMySQL:
		db, err := sqlstore.OpenMySQL(connectCtx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s = sqlstore.New(db, sqlstore.MySQL, sqlstore.WithLogger(log))
	case DriverSQLite:
		db, err := sqlstore.OpenSQLite(connectCtx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		s = sqlstore.New(db, sqlstore.SQLite, sqlstore.WithLogger(log))
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	s = store.Instrument(s)
	if err := s.Init(ctx, cfg.CreateSchema); err != nil {
		_ = s.Close(ctx, false)
		return nil, fmt.Errorf("init store: %w", err)
	}
	log.Info().Bool("create_schema", cfg.CreateSchema).Msg("store ready")
	return s, nil
}
