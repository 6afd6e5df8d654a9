package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habit-quest/internal/model"
)

// LogEntry is an additive change to one user's daily log.
type LogEntry struct {
	Snapshots []model.MissionSnapshot
	Completed int // added to missionStats.completed
	Coins     int64
	XP        int64
	Lives     int64
}

// DailyLogRepository handles per-day audit logs. All writes are single
// upserts so concurrent completions and the nightly job never lose updates.
type DailyLogRepository struct {
	pool *pgxpool.Pool
}

// NewDailyLogRepository creates a new DailyLogRepository instance.
func NewDailyLogRepository(pool *pgxpool.Pool) *DailyLogRepository {
	return &DailyLogRepository{pool: pool}
}

// Append upserts the (user, date) log, appending snapshots and adding the counters.
// missions_total is refreshed from the user's daily missions.
func (r *DailyLogRepository) Append(ctx context.Context, userID int64, date string, e LogEntry) error {
	const query = `
		INSERT INTO daily_logs (user_id, log_date, missions_completed, missions_total, list_completed,
			gains_coins, gains_xp, gains_lives, updated_at)
		VALUES ($1, $2::date, $3,
			(SELECT COUNT(*) FROM missions WHERE user_id = $1 AND frequency = 'daily'),
			$4::jsonb, $5, $6, $7, NOW())
		ON CONFLICT (user_id, log_date) DO UPDATE SET
			missions_completed = daily_logs.missions_completed + EXCLUDED.missions_completed,
			missions_total = EXCLUDED.missions_total,
			list_completed = daily_logs.list_completed || EXCLUDED.list_completed,
			gains_coins = daily_logs.gains_coins + EXCLUDED.gains_coins,
			gains_xp = daily_logs.gains_xp + EXCLUDED.gains_xp,
			gains_lives = daily_logs.gains_lives + EXCLUDED.gains_lives,
			updated_at = NOW()
	`

	snapshots := e.Snapshots
	if snapshots == nil {
		snapshots = []model.MissionSnapshot{}
	}

	_, err := r.pool.Exec(ctx, query, userID, date, e.Completed, snapshots, e.Coins, e.XP, e.Lives)
	if err != nil {
		return fmt.Errorf("failed to append daily log: %w", err)
	}
	return nil
}

// AddCalories records calories reported by the nutrition module.
func (r *DailyLogRepository) AddCalories(ctx context.Context, userID int64, date string, calories int64) error {
	const query = `
		INSERT INTO daily_logs (user_id, log_date, calories, updated_at)
		VALUES ($1, $2::date, $3, NOW())
		ON CONFLICT (user_id, log_date) DO UPDATE SET
			calories = daily_logs.calories + EXCLUDED.calories,
			updated_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, userID, date, calories); err != nil {
		return fmt.Errorf("failed to add calories: %w", err)
	}
	return nil
}

// Get returns the log for (user, date). Returns ErrDailyLogNotFound if none was written yet.
func (r *DailyLogRepository) Get(ctx context.Context, userID int64, date string) (*model.DailyLog, error) {
	const query = `
		SELECT user_id, log_date::text, missions_completed, missions_total, list_completed,
			gains_coins, gains_xp, gains_lives, calories, updated_at
		FROM daily_logs
		WHERE user_id = $1 AND log_date = $2::date
	`

	var l model.DailyLog
	err := r.pool.QueryRow(ctx, query, userID, date).Scan(
		&l.UserID,
		&l.Date,
		&l.MissionStats.Completed,
		&l.MissionStats.Total,
		&l.MissionStats.ListCompleted,
		&l.Gains.Coins,
		&l.Gains.XP,
		&l.Gains.Lives,
		&l.Calories,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDailyLogNotFound
		}
		return nil, fmt.Errorf("failed to get daily log: %w", err)
	}
	return &l, nil
}
