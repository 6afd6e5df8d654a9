package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"habit-quest/internal/model"
)

// ActivityRepository records workouts and aggregates member activity for
// weekly clan events.
type ActivityRepository struct {
	pool *pgxpool.Pool
}

// NewActivityRepository creates a new ActivityRepository instance.
func NewActivityRepository(pool *pgxpool.Pool) *ActivityRepository {
	return &ActivityRepository{pool: pool}
}

// AddWorkoutSet stores one lifted set.
func (r *ActivityRepository) AddWorkoutSet(ctx context.Context, set *model.WorkoutSet) (*model.WorkoutSet, error) {
	const query = `
		INSERT INTO workout_sets (user_id, exercise, weight, reps, performed_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, user_id, exercise, weight, reps, performed_at
	`

	var out model.WorkoutSet
	err := r.pool.QueryRow(ctx, query, set.UserID, set.Exercise, set.Weight, set.Reps, set.PerformedAt).Scan(
		&out.ID,
		&out.UserID,
		&out.Exercise,
		&out.Weight,
		&out.Reps,
		&out.PerformedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add workout set: %w", err)
	}
	return &out, nil
}

// Contributions sums each current clan member's metric since the event
// start. Timestamped sources use since; date-keyed logs count from sinceDate.
// Members with no activity are absent from the result.
func (r *ActivityRepository) Contributions(ctx context.Context, clanID string, metric model.EventType, since time.Time, sinceDate string) (map[int64]int64, error) {
	var query string
	args := []any{clanID}

	switch metric {
	case model.EventVolume:
		query = `
			SELECT ws.user_id, COALESCE(SUM(ws.weight * ws.reps), 0)::bigint
			FROM workout_sets ws
			JOIN clan_members cm ON cm.user_id = ws.user_id
			WHERE cm.clan_id = $1::uuid AND ws.performed_at >= $2
			GROUP BY ws.user_id
		`
		args = append(args, since)
	case model.EventCalories:
		query = `
			SELECT dl.user_id, COALESCE(SUM(dl.calories), 0)::bigint
			FROM daily_logs dl
			JOIN clan_members cm ON cm.user_id = dl.user_id
			WHERE cm.clan_id = $1::uuid AND dl.log_date >= $2::date
			GROUP BY dl.user_id
		`
		args = append(args, sinceDate)
	case model.EventXP:
		query = `
			SELECT dl.user_id, COALESCE(SUM(dl.gains_xp), 0)::bigint
			FROM daily_logs dl
			JOIN clan_members cm ON cm.user_id = dl.user_id
			WHERE cm.clan_id = $1::uuid AND dl.log_date >= $2::date
			GROUP BY dl.user_id
		`
		args = append(args, sinceDate)
	case model.EventMissions:
		query = `
			SELECT dl.user_id, COUNT(*)::bigint
			FROM daily_logs dl
			JOIN clan_members cm ON cm.user_id = dl.user_id
			CROSS JOIN LATERAL jsonb_array_elements(dl.list_completed) AS entry
			WHERE cm.clan_id = $1::uuid AND dl.log_date >= $2::date
				AND COALESCE((entry->>'failed')::boolean, FALSE) = FALSE
			GROUP BY dl.user_id
		`
		args = append(args, sinceDate)
	default:
		return nil, fmt.Errorf("unknown event metric %q", metric)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", metric, err)
	}
	defer rows.Close()

	totals := make(map[int64]int64)
	for rows.Next() {
		var userID, total int64
		if err := rows.Scan(&userID, &total); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		totals[userID] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contributions: %w", err)
	}
	return totals, nil
}
