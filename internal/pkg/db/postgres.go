// Package db owns the PostgreSQL pool and the embedded schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"habit-quest/internal/config"
)

const (
	applicationName   = "questd"
	healthCheckPeriod = 30 * time.Second
	pingTimeout       = 2 * time.Second
)

// Pool is the shared pgx pool used by every repository.
type Pool struct {
	*pgxpool.Pool
}

// Option adjusts the pool config before connecting.
type Option func(*pgxpool.Config)

// WithTimeZone pins the session time zone so CURRENT_DATE and timestamp
// casts agree with the zone used for day and week boundaries.
func WithTimeZone(loc *time.Location) Option {
	return func(pc *pgxpool.Config) {
		if loc != nil && loc != time.Local {
			pc.ConnConfig.RuntimeParams["timezone"] = loc.String()
		}
	}
}

// PoolConfig builds the pgxpool config for cfg. Zero durations fall back to
// the pool defaults of the service.
func PoolConfig(cfg *config.DatabaseConfig, opts ...Option) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if cfg.PoolSize > 0 {
		pc.MaxConns = int32(cfg.PoolSize)
	}
	pc.MinConns = max(pc.MaxConns/4, 1)

	pc.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, 10*time.Second)
	pc.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, time.Hour)
	pc.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, 30*time.Minute)
	pc.HealthCheckPeriod = healthCheckPeriod
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName

	for _, opt := range opts {
		opt(pc)
	}
	return pc, nil
}

// NewPool connects and pings before returning.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*Pool, error) {
	pc, err := PoolConfig(cfg, opts...)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("host", pc.ConnConfig.Host).
		Uint16("port", pc.ConnConfig.Port).
		Str("database", pc.ConnConfig.Database).
		Int32("max_conns", pc.MaxConns).
		Str("timezone", pc.ConnConfig.RuntimeParams["timezone"]).
		Msg("connecting to postgres")

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().Msg("postgres connected")
	return &Pool{Pool: pool}, nil
}

func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("postgres pool closed")
	}
}

// Stats feeds the pool gauges in the metrics package.
func (p *Pool) Stats() *pgxpool.Stat {
	return p.Pool.Stat()
}

// HealthCheck backs /healthz.
func (p *Pool) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Pool.Ping(ctx)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
