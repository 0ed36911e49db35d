package db

import (
	"context"
	"fmt"

	pgxzero "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
)

// PoolConfig carries the pool tuning knobs read from config.
type PoolConfig struct {
	DatabaseURL string
	Schema      string
	MaxConns    int32
	MinConns    int32
	TraceSQL    bool
}

// NewPool opens a pgx pool whose connections resolve unqualified names
// against the dispensing schema first.
func NewPool(ctx context.Context, pc PoolConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	if err := ValidateSchemaName(pc.Schema); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(pc.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = pc.Schema + ", public"

	if pc.TraceSQL {
		sqlLogger := logger.With().Str("component", "pgx").Logger()
		cfg.ConnConfig.Tracer = &tracelog.TraceLog{
			Logger:   pgxzero.NewLogger(sqlLogger),
			LogLevel: traceLevel(logger.GetLevel()),
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// traceLevel maps the process log level onto pgx's tracelog levels.
func traceLevel(level zerolog.Level) tracelog.LogLevel {
	switch level {
	case zerolog.TraceLevel:
		return tracelog.LogLevelTrace
	case zerolog.DebugLevel:
		return tracelog.LogLevelDebug
	case zerolog.InfoLevel:
		return tracelog.LogLevelInfo
	case zerolog.WarnLevel:
		return tracelog.LogLevelWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return tracelog.LogLevelError
	default:
		return tracelog.LogLevelNone
	}
}
