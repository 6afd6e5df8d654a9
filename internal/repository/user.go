package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habit-quest/internal/model"
)

const userColumns = `u.id, u.username, u.level, u.current_xp, u.next_level_xp, u.coins, u.game_coins,
	u.hp, u.max_hp, cm.clan_id::text, COALESCE(cm.rank, 0), u.created_at, u.updated_at`

// UserRepository handles user data persistence.
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Level,
		&user.CurrentXP,
		&user.NextLevelXP,
		&user.Coins,
		&user.GameCoins,
		&user.HP,
		&user.MaxHP,
		&user.ClanID,
		&user.ClanRank,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a level-1 user with full HP.
func (r *UserRepository) Create(ctx context.Context, id int64, username string) (*model.User, error) {
	const query = `
		WITH u AS (
			INSERT INTO users (id, username, created_at, updated_at)
			VALUES ($1, $2, NOW(), NOW())
			RETURNING *
		)
		SELECT ` + userColumns + `
		FROM u LEFT JOIN clan_members cm ON cm.user_id = u.id
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, username))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user with their clan membership.
// Returns ErrUserNotFound if the user does not exist.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users u LEFT JOIN clan_members cm ON cm.user_id = u.id
		WHERE u.id = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetOrCreate retrieves a user, creating one if it doesn't exist.
func (r *UserRepository) GetOrCreate(ctx context.Context, id int64, username string) (*model.User, bool, error) {
	user, err := r.GetByID(ctx, id)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	user, err = r.Create(ctx, id, username)
	if err != nil {
		// Another request may have created the user concurrently.
		user, err = r.GetByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return user, false, nil
	}
	return user, true, nil
}

// ApplyProgress locks the user row, lets mutate change the progression
// fields, writes them back and adds the returned power delta to the user's
// clan, all in one transaction.
func (r *UserRepository) ApplyProgress(ctx context.Context, id int64, mutate func(u *model.User) (int64, error)) (*model.User, error) {
	const selectQuery = `
		SELECT ` + userColumns + `
		FROM users u LEFT JOIN clan_members cm ON cm.user_id = u.id
		WHERE u.id = $1
		FOR UPDATE OF u
	`
	const updateQuery = `
		UPDATE users
		SET level = $2, current_xp = $3, next_level_xp = $4, coins = $5,
			game_coins = $6, hp = $7, max_hp = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	const powerQuery = `
		UPDATE clans SET total_power = GREATEST(total_power + $2, 0)
		WHERE id = (SELECT clan_id FROM clan_members WHERE user_id = $1)
	`

	var user *model.User
	err := WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		user, err = scanUser(tx.QueryRow(ctx, selectQuery, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		powerDelta, err := mutate(user)
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, updateQuery, user.ID, user.Level, user.CurrentXP, user.NextLevelXP,
			user.Coins, user.GameCoins, user.HP, user.MaxHP).Scan(&user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update user progress: %w", err)
		}

		if powerDelta != 0 {
			if _, err := tx.Exec(ctx, powerQuery, user.ID, powerDelta); err != nil {
				return fmt.Errorf("failed to sync clan power: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// DamageHP subtracts damage from the user's HP, floored at zero, in a single statement.
func (r *UserRepository) DamageHP(ctx context.Context, id int64, damage int) (*model.User, error) {
	const query = `
		WITH u AS (
			UPDATE users
			SET hp = GREATEST(hp - $2, 0), updated_at = NOW()
			WHERE id = $1
			RETURNING *
		)
		SELECT ` + userColumns + `
		FROM u LEFT JOIN clan_members cm ON cm.user_id = u.id
	`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, damage))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to damage user: %w", err)
	}
	return user, nil
}

// GetTopUsers retrieves the top N users by level and experience.
func (r *UserRepository) GetTopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users u LEFT JOIN clan_members cm ON cm.user_id = u.id
		ORDER BY u.level DESC, u.current_xp DESC, u.id
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get top users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// UpdateUsername updates a user's display name.
func (r *UserRepository) UpdateUsername(ctx context.Context, id int64, username string) error {
	const query = `UPDATE users SET username = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, username)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
