package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthReport is the body of GET /health/db.
type HealthReport struct {
	Status        string     `json:"status"`
	Schema        string     `json:"schema"`
	SchemaVersion int64      `json:"schema_version"`
	Error         string     `json:"error,omitempty"`
	Pool          *PoolStats `json:"pool,omitempty"`
}

// HealthHandler reads the applied migration version, which doubles as a
// round-trip check. stats may be nil.
func HealthHandler(q DB, schema string, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		report := HealthReport{Status: "healthy", Schema: schema}
		if stats != nil {
			report.Pool = stats()
		}

		err := q.QueryRow(ctx,
			`SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version WHERE is_applied`,
		).Scan(&report.SchemaVersion)
		if err != nil {
			report.Status = "unhealthy"
			report.Error = err.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}

		return c.JSON(http.StatusOK, report)
	}
}
