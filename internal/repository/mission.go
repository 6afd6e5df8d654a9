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

const missionColumns = `id::text, user_id, title, frequency, kind, difficulty, target, progress, completed,
	xp_reward, coin_reward, game_coin_reward, last_updated, created_at`

// MissionRepository handles mission persistence.
type MissionRepository struct {
	pool *pgxpool.Pool
}

// NewMissionRepository creates a new MissionRepository instance.
func NewMissionRepository(pool *pgxpool.Pool) *MissionRepository {
	return &MissionRepository{pool: pool}
}

func scanMission(row pgx.Row) (*model.Mission, error) {
	var m model.Mission
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Title,
		&m.Frequency,
		&m.Kind,
		&m.Difficulty,
		&m.Target,
		&m.Progress,
		&m.Completed,
		&m.XPReward,
		&m.CoinReward,
		&m.GameCoinReward,
		&m.LastUpdated,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collectMissions(rows pgx.Rows) ([]*model.Mission, error) {
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		missions = append(missions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating missions: %w", err)
	}
	return missions, nil
}

// Create inserts a mission. ID and timestamps must already be set.
func (r *MissionRepository) Create(ctx context.Context, m *model.Mission) error {
	const query = `
		INSERT INTO missions (id, user_id, title, frequency, kind, difficulty, target, progress, completed,
			xp_reward, coin_reward, game_coin_reward, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := r.pool.Exec(ctx, query,
		m.ID, m.UserID, m.Title, m.Frequency, m.Kind, m.Difficulty, m.Target, m.Progress, m.Completed,
		m.XPReward, m.CoinReward, m.GameCoinReward, m.LastUpdated, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create mission: %w", err)
	}
	return nil
}

// GetByID retrieves a mission. Returns ErrMissionNotFound if absent.
func (r *MissionRepository) GetByID(ctx context.Context, id string) (*model.Mission, error) {
	const query = `SELECT ` + missionColumns + ` FROM missions WHERE id = $1::uuid`

	m, err := scanMission(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMissionNotFound
		}
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	return m, nil
}

// ListByUser returns the user's missions, newest first.
func (r *MissionRepository) ListByUser(ctx context.Context, userID int64) ([]*model.Mission, error) {
	const query = `
		SELECT ` + missionColumns + `
		FROM missions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	return collectMissions(rows)
}

// CompareAndSwap writes a new (progress, completed) pair only if the stored
// pair still equals the expected one. It reports whether the row changed.
func (r *MissionRepository) CompareAndSwap(ctx context.Context, id string, expect, next model.MissionState, at time.Time) (bool, error) {
	const query = `
		UPDATE missions
		SET progress = $4, completed = $5, last_updated = $6
		WHERE id = $1::uuid AND progress = $2 AND completed = $3
	`
	tag, err := r.pool.Exec(ctx, query, id, expect.Progress, expect.Completed, next.Progress, next.Completed, at)
	if err != nil {
		return false, fmt.Errorf("failed to update mission state: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Advance adds one step to an open mission, completing it when it reaches
// its target. Returns nil without error when the mission is no longer open.
func (r *MissionRepository) Advance(ctx context.Context, id string, at time.Time) (*model.Mission, error) {
	const query = `
		UPDATE missions
		SET progress = progress + 1,
			completed = progress + 1 >= target,
			last_updated = $2
		WHERE id = $1::uuid AND NOT completed AND progress < target
		RETURNING ` + missionColumns

	m, err := scanMission(r.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to advance mission: %w", err)
	}
	return m, nil
}

// ListOpenByTitle returns the user's incomplete missions titled title, other than excludeID.
func (r *MissionRepository) ListOpenByTitle(ctx context.Context, userID int64, title, excludeID string) ([]*model.Mission, error) {
	const query = `
		SELECT ` + missionColumns + `
		FROM missions
		WHERE user_id = $1 AND title = $2 AND id <> $3::uuid AND NOT completed
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, userID, title, excludeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions by title: %w", err)
	}
	return collectMissions(rows)
}

// ListOpenByFrequencies returns every incomplete mission with one of the
// given frequencies, grouped by owner.
func (r *MissionRepository) ListOpenByFrequencies(ctx context.Context, freqs []model.Frequency) ([]*model.Mission, error) {
	const query = `
		SELECT ` + missionColumns + `
		FROM missions
		WHERE frequency = ANY($1) AND NOT completed
		ORDER BY user_id, created_at
	`
	rows, err := r.pool.Query(ctx, query, frequencyStrings(freqs))
	if err != nil {
		return nil, fmt.Errorf("failed to list open missions: %w", err)
	}
	return collectMissions(rows)
}

// ResetHabits reopens every habit mission of the frequency.
func (r *MissionRepository) ResetHabits(ctx context.Context, freq model.Frequency, at time.Time) (int64, error) {
	const query = `
		UPDATE missions
		SET completed = FALSE, progress = 0, last_updated = $2
		WHERE frequency = $1 AND kind = 'habit'
	`
	tag, err := r.pool.Exec(ctx, query, string(freq), at)
	if err != nil {
		return 0, fmt.Errorf("failed to reset %s habits: %w", freq, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteTemporals removes every temporal mission of the frequency.
func (r *MissionRepository) DeleteTemporals(ctx context.Context, freq model.Frequency) (int64, error) {
	const query = `DELETE FROM missions WHERE frequency = $1 AND kind = 'temporal'`

	tag, err := r.pool.Exec(ctx, query, string(freq))
	if err != nil {
		return 0, fmt.Errorf("failed to delete %s temporals: %w", freq, err)
	}
	return tag.RowsAffected(), nil
}

// Delete removes a mission. Returns ErrMissionNotFound if absent.
func (r *MissionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM missions WHERE id = $1::uuid`, id)
	if err != nil {
		return fmt.Errorf("failed to delete mission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMissionNotFound
	}
	return nil
}

func frequencyStrings(freqs []model.Frequency) []string {
	out := make([]string, len(freqs))
	for i, f := range freqs {
		out[i] = string(f)
	}
	return out
}
