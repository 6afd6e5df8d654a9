package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habit-quest/internal/model"
)

// EventProgressRepository stores the per-week personal event track.
type EventProgressRepository struct {
	pool *pgxpool.Pool
}

// NewEventProgressRepository creates a new EventProgressRepository instance.
func NewEventProgressRepository(pool *pgxpool.Pool) *EventProgressRepository {
	return &EventProgressRepository{pool: pool}
}

func scanProgress(row pgx.Row) (*model.UserEventProgress, error) {
	var p model.UserEventProgress
	if err := row.Scan(&p.UserID, &p.PeriodID, &p.Points, &p.ClaimedRewards, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddPoints upserts the (user, period) row and adds points atomically.
func (r *EventProgressRepository) AddPoints(ctx context.Context, userID int64, periodID string, points int64) (*model.UserEventProgress, error) {
	const query = `
		INSERT INTO user_event_progress (user_id, period_id, points, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, period_id) DO UPDATE SET
			points = user_event_progress.points + EXCLUDED.points,
			updated_at = NOW()
		RETURNING user_id, period_id, points, claimed_rewards, updated_at
	`
	p, err := scanProgress(r.pool.QueryRow(ctx, query, userID, periodID, points))
	if err != nil {
		return nil, fmt.Errorf("failed to add event points: %w", err)
	}
	return p, nil
}

// Get returns the (user, period) progress, or an empty record when none exists.
func (r *EventProgressRepository) Get(ctx context.Context, userID int64, periodID string) (*model.UserEventProgress, error) {
	const query = `
		SELECT user_id, period_id, points, claimed_rewards, updated_at
		FROM user_event_progress
		WHERE user_id = $1 AND period_id = $2
	`
	p, err := scanProgress(r.pool.QueryRow(ctx, query, userID, periodID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.UserEventProgress{UserID: userID, PeriodID: periodID, ClaimedRewards: []int{}}, nil
		}
		return nil, fmt.Errorf("failed to get event progress: %w", err)
	}
	return p, nil
}

// MarkClaimed appends milestone to the claimed set if the user has at least
// minPoints and has not claimed it yet. It reports whether the claim was recorded.
func (r *EventProgressRepository) MarkClaimed(ctx context.Context, userID int64, periodID string, milestone int, minPoints int64) (bool, error) {
	const query = `
		UPDATE user_event_progress
		SET claimed_rewards = array_append(claimed_rewards, $3::int), updated_at = NOW()
		WHERE user_id = $1 AND period_id = $2 AND points >= $4
			AND NOT ($3::int = ANY(claimed_rewards))
	`
	tag, err := r.pool.Exec(ctx, query, userID, periodID, milestone, minPoints)
	if err != nil {
		return false, fmt.Errorf("failed to mark milestone claimed: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UnmarkClaimed removes milestone from the claimed set.
func (r *EventProgressRepository) UnmarkClaimed(ctx context.Context, userID int64, periodID string, milestone int) error {
	const query = `
		UPDATE user_event_progress
		SET claimed_rewards = array_remove(claimed_rewards, $3::int), updated_at = NOW()
		WHERE user_id = $1 AND period_id = $2
	`
	if _, err := r.pool.Exec(ctx, query, userID, periodID, milestone); err != nil {
		return fmt.Errorf("failed to unmark milestone: %w", err)
	}
	return nil
}
