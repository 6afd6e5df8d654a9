package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habit-quest/internal/model"
)

const runColumns = `run_date::text, status, punished_users, habits_reset, temporals_deleted, started_at, finished_at`

// MaintenanceRepository persists the per-date guard of the nightly job.
type MaintenanceRepository struct {
	pool *pgxpool.Pool
}

// NewMaintenanceRepository creates a new MaintenanceRepository instance.
func NewMaintenanceRepository(pool *pgxpool.Pool) *MaintenanceRepository {
	return &MaintenanceRepository{pool: pool}
}

func scanRun(row pgx.Row) (*model.MaintenanceRun, error) {
	var run model.MaintenanceRun
	err := row.Scan(
		&run.RunDate,
		&run.Status,
		&run.PunishedUsers,
		&run.HabitsReset,
		&run.TemporalsGone,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Claim takes ownership of runDate. A date is claimable when it has no row
// yet or its previous run failed; running and done dates are not.
func (r *MaintenanceRepository) Claim(ctx context.Context, runDate string, startedAt time.Time) (bool, error) {
	const query = `
		INSERT INTO maintenance_runs (run_date, status, started_at)
		VALUES ($1::date, 'running', $2)
		ON CONFLICT (run_date) DO UPDATE SET
			status = 'running', started_at = EXCLUDED.started_at, finished_at = NULL,
			punished_users = 0, habits_reset = 0, temporals_deleted = 0
		WHERE maintenance_runs.status = 'failed'
	`
	tag, err := r.pool.Exec(ctx, query, runDate, startedAt)
	if err != nil {
		return false, fmt.Errorf("failed to claim maintenance run: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Finish records the outcome of a claimed run.
func (r *MaintenanceRepository) Finish(ctx context.Context, run *model.MaintenanceRun) error {
	const query = `
		UPDATE maintenance_runs
		SET status = $2, punished_users = $3, habits_reset = $4, temporals_deleted = $5, finished_at = $6
		WHERE run_date = $1::date
	`
	tag, err := r.pool.Exec(ctx, query, run.RunDate, run.Status, run.PunishedUsers, run.HabitsReset,
		run.TemporalsGone, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to finish maintenance run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Get returns the run for a date.
func (r *MaintenanceRepository) Get(ctx context.Context, runDate string) (*model.MaintenanceRun, error) {
	const query = `SELECT ` + runColumns + ` FROM maintenance_runs WHERE run_date = $1::date`

	run, err := scanRun(r.pool.QueryRow(ctx, query, runDate))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get maintenance run: %w", err)
	}
	return run, nil
}

// Recent lists the latest runs, newest first.
func (r *MaintenanceRepository) Recent(ctx context.Context, limit int) ([]*model.MaintenanceRun, error) {
	const query = `SELECT ` + runColumns + ` FROM maintenance_runs ORDER BY run_date DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list maintenance runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.MaintenanceRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan maintenance run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating maintenance runs: %w", err)
	}
	return runs, nil
}
