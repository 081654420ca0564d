package postgres

import (
	"context"
	"fmt"
	"time"

	"ropa-suggestions/internal/config"
	"ropa-suggestions/internal/infra/metrics"

	"github.com/jackc/pgx/v4/pgxpool"
)

// Connect returns a live pool for cfg.URL.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.ConnectConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.Connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// ReportPoolStats publishes pool gauges every interval until ctx is done.
func ReportPoolStats(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		st := pool.Stat()
		metrics.SetDBPoolStats(st.TotalConns(), st.IdleConns(), st.AcquiredConns())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
