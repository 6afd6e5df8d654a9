package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habit-quest/internal/model"
	"habit-quest/internal/progression"
)

const clanColumns = `c.id::text, c.name, c.description, c.leader_id, c.min_level, c.total_power,
	(SELECT COUNT(*) FROM clan_members m WHERE m.clan_id = c.id), c.event_start, c.event_type, c.created_at`

// LeaveResult describes what happened to the clan when a member left.
type LeaveResult struct {
	ClanID      string `json:"clanId"`
	Dissolved   bool   `json:"dissolved"`
	NewLeaderID int64  `json:"newLeaderId,omitempty"` // zero unless leadership passed on
}

// ClanRepository handles clans, the membership index and event claims.
// Membership and power changes run in transactions that lock the user row
// before the clan row, the same order progress updates use.
type ClanRepository struct {
	pool *pgxpool.Pool
}

// NewClanRepository creates a new ClanRepository instance.
func NewClanRepository(pool *pgxpool.Pool) *ClanRepository {
	return &ClanRepository{pool: pool}
}

func scanClan(row pgx.Row) (*model.Clan, error) {
	var c model.Clan
	var eventStart *time.Time
	var eventType string
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Description,
		&c.LeaderID,
		&c.MinLevel,
		&c.TotalPower,
		&c.MemberCount,
		&eventStart,
		&eventType,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if eventStart != nil {
		c.WeeklyEvent.StartDate = *eventStart
	}
	c.WeeklyEvent.Type = model.EventType(eventType)
	return &c, nil
}

// Create inserts the clan and makes leader its first member.
func (r *ClanRepository) Create(ctx context.Context, clan *model.Clan) (*model.Clan, error) {
	const insertClan = `
		INSERT INTO clans (id, name, description, leader_id, min_level, total_power, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
	`
	const insertMember = `
		INSERT INTO clan_members (user_id, clan_id, rank, joined_at)
		VALUES ($1, $2::uuid, $3, $4)
	`

	err := WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		level, err := lockUserLevel(ctx, tx, clan.LeaderID)
		if err != nil {
			return err
		}
		if _, err := memberOf(ctx, tx, clan.LeaderID); err == nil {
			return ErrAlreadyInClan
		} else if !errors.Is(err, ErrNotClanMember) {
			return err
		}

		clan.TotalPower = progression.MemberPower(level)
		_, err = tx.Exec(ctx, insertClan, clan.ID, clan.Name, clan.Description, clan.LeaderID,
			clan.MinLevel, clan.TotalPower, clan.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrClanNameTaken
			}
			return fmt.Errorf("failed to create clan: %w", err)
		}

		if _, err := tx.Exec(ctx, insertMember, clan.LeaderID, clan.ID, model.RankLeader, clan.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyInClan
			}
			return fmt.Errorf("failed to add clan leader: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	clan.MemberCount = 1
	return clan, nil
}

// GetByID retrieves a clan. Returns ErrClanNotFound if absent.
func (r *ClanRepository) GetByID(ctx context.Context, id string) (*model.Clan, error) {
	const query = `SELECT ` + clanColumns + ` FROM clans c WHERE c.id = $1::uuid`

	clan, err := scanClan(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClanNotFound
		}
		return nil, fmt.Errorf("failed to get clan: %w", err)
	}
	return clan, nil
}

// Search lists clans whose name contains query, strongest first.
func (r *ClanRepository) Search(ctx context.Context, query string, limit, offset int) ([]*model.Clan, error) {
	const sql = `
		SELECT ` + clanColumns + `
		FROM clans c
		WHERE $1 = '' OR c.name ILIKE '%' || $1 || '%'
		ORDER BY c.total_power DESC, c.name
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, sql, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to search clans: %w", err)
	}
	defer rows.Close()

	var clans []*model.Clan
	for rows.Next() {
		clan, err := scanClan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan clan: %w", err)
		}
		clans = append(clans, clan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clans: %w", err)
	}
	return clans, nil
}

// Members lists a clan's members by rank, then level.
func (r *ClanRepository) Members(ctx context.Context, clanID string) ([]*model.ClanMember, error) {
	const query = `
		SELECT cm.clan_id::text, cm.user_id, u.username, u.level, cm.rank, cm.joined_at
		FROM clan_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.clan_id = $1::uuid
		ORDER BY cm.rank DESC, u.level DESC, cm.joined_at
	`
	rows, err := r.pool.Query(ctx, query, clanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clan members: %w", err)
	}
	defer rows.Close()

	var members []*model.ClanMember
	for rows.Next() {
		var m model.ClanMember
		if err := rows.Scan(&m.ClanID, &m.UserID, &m.Username, &m.Level, &m.Rank, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan clan member: %w", err)
		}
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clan members: %w", err)
	}
	return members, nil
}

// Membership returns the user's clan membership. Returns ErrNotClanMember if none.
func (r *ClanRepository) Membership(ctx context.Context, userID int64) (*model.ClanMember, error) {
	return memberOf(ctx, r.pool, userID)
}

// Join adds the user to the clan and adds 100 × level to its power.
func (r *ClanRepository) Join(ctx context.Context, clanID string, userID int64, maxMembers int) error {
	const insertMember = `
		INSERT INTO clan_members (user_id, clan_id, rank, joined_at)
		VALUES ($1, $2::uuid, $3, NOW())
	`
	return WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		level, err := lockUserLevel(ctx, tx, userID)
		if err != nil {
			return err
		}
		clan, err := lockClan(ctx, tx, clanID)
		if err != nil {
			return err
		}
		if _, err := memberOf(ctx, tx, userID); err == nil {
			return ErrAlreadyInClan
		} else if !errors.Is(err, ErrNotClanMember) {
			return err
		}
		if clan.MemberCount >= maxMembers {
			return ErrClanFull
		}
		if level < clan.MinLevel {
			return ErrLevelTooLow
		}

		if _, err := tx.Exec(ctx, insertMember, userID, clanID, model.RankMember); err != nil {
			if isUniqueViolation(err) {
				return ErrAlreadyInClan
			}
			return fmt.Errorf("failed to join clan: %w", err)
		}
		return addPower(ctx, tx, clanID, progression.MemberPower(level))
	})
}

// Leave removes the user from their clan. A departing leader either
// dissolves the clan (last member) or hands leadership to the remaining
// member with the highest rank, then level.
func (r *ClanRepository) Leave(ctx context.Context, userID int64) (*LeaveResult, error) {
	const successorQuery = `
		SELECT cm.user_id
		FROM clan_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.clan_id = $1::uuid
		ORDER BY cm.rank DESC, u.level DESC, cm.joined_at
		LIMIT 1
	`

	var result LeaveResult
	err := WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		level, err := lockUserLevel(ctx, tx, userID)
		if err != nil {
			return err
		}
		member, err := memberOf(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.ClanID = member.ClanID

		if _, err := lockClan(ctx, tx, member.ClanID); err != nil {
			return err
		}
		if err := removeMember(ctx, tx, member.ClanID, userID, level); err != nil {
			return err
		}
		if member.Rank != model.RankLeader {
			return nil
		}

		var successor int64
		err = tx.QueryRow(ctx, successorQuery, member.ClanID).Scan(&successor)
		if errors.Is(err, pgx.ErrNoRows) {
			result.Dissolved = true
			if _, err := tx.Exec(ctx, `DELETE FROM clans WHERE id = $1::uuid`, member.ClanID); err != nil {
				return fmt.Errorf("failed to dissolve clan: %w", err)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to pick successor: %w", err)
		}

		result.NewLeaderID = successor
		return setLeader(ctx, tx, member.ClanID, successor)
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Kick removes target from actor's clan. The actor must hold a strictly higher rank.
func (r *ClanRepository) Kick(ctx context.Context, actorID, targetID int64) error {
	return WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		level, err := lockUserLevel(ctx, tx, targetID)
		if err != nil {
			return err
		}
		actor, target, err := pairInClan(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		if actor.Rank <= target.Rank {
			return ErrRankTooLow
		}
		return removeMember(ctx, tx, actor.ClanID, targetID, level)
	})
}

// SetRank changes target's rank. Only the leader may do so; promoting to
// leader hands over leadership and demotes the actor to officer.
func (r *ClanRepository) SetRank(ctx context.Context, actorID, targetID int64, rank int) error {
	const updateRank = `UPDATE clan_members SET rank = $2 WHERE user_id = $1`

	return WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		actor, _, err := pairInClan(ctx, tx, actorID, targetID)
		if err != nil {
			return err
		}
		if actor.Rank != model.RankLeader {
			return ErrRankTooLow
		}
		if rank == model.RankLeader {
			if _, err := tx.Exec(ctx, updateRank, actorID, model.RankOfficer); err != nil {
				return fmt.Errorf("failed to demote leader: %w", err)
			}
			return setLeader(ctx, tx, actor.ClanID, targetID)
		}
		if _, err := tx.Exec(ctx, updateRank, targetID, rank); err != nil {
			return fmt.Errorf("failed to set rank: %w", err)
		}
		return nil
	})
}

// RolloverEvent replaces the clan's event window if its stored start still
// equals prevStart (nil for never started). Claims of other periods are
// dropped with it. It reports whether this call performed the rollover.
func (r *ClanRepository) RolloverEvent(ctx context.Context, clanID string, prevStart *time.Time, start time.Time, eventType model.EventType) (bool, error) {
	const update = `
		UPDATE clans SET event_start = $3, event_type = $4
		WHERE id = $1::uuid AND event_start IS NOT DISTINCT FROM $2
	`
	const purge = `DELETE FROM clan_event_claims WHERE clan_id = $1::uuid AND period_start <> $2`

	var swapped bool
	err := WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, update, clanID, prevStart, start, string(eventType))
		if err != nil {
			return fmt.Errorf("failed to roll over clan event: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		swapped = true
		if _, err := tx.Exec(ctx, purge, clanID, start); err != nil {
			return fmt.Errorf("failed to purge old claims: %w", err)
		}
		return nil
	})
	return swapped, err
}

// Claims lists the claims recorded for the clan's event period.
func (r *ClanRepository) Claims(ctx context.Context, clanID string, periodStart time.Time) ([]model.EventClaim, error) {
	const query = `
		SELECT clan_id::text, user_id, tier, period_start, claimed_at
		FROM clan_event_claims
		WHERE clan_id = $1::uuid AND period_start = $2
		ORDER BY claimed_at
	`
	rows, err := r.pool.Query(ctx, query, clanID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	claims := []model.EventClaim{}
	for rows.Next() {
		var c model.EventClaim
		if err := rows.Scan(&c.ClanID, &c.UserID, &c.Tier, &c.PeriodStart, &c.ClaimedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating claims: %w", err)
	}
	return claims, nil
}

// InsertClaim records a claim if the clan's stored period is still
// claim.PeriodStart. The primary key rejects duplicates with ErrClaimExists.
func (r *ClanRepository) InsertClaim(ctx context.Context, claim model.EventClaim) error {
	const query = `
		INSERT INTO clan_event_claims (clan_id, user_id, tier, period_start, claimed_at)
		SELECT c.id, $2, $3, $4, $5
		FROM clans c
		WHERE c.id = $1::uuid AND c.event_start = $4
	`
	tag, err := r.pool.Exec(ctx, query, claim.ClanID, claim.UserID, claim.Tier, claim.PeriodStart, claim.ClaimedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrClaimExists
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodMismatch
	}
	return nil
}

// DeleteClaim removes a claim whose reward could not be applied.
func (r *ClanRepository) DeleteClaim(ctx context.Context, claim model.EventClaim) error {
	const query = `
		DELETE FROM clan_event_claims
		WHERE clan_id = $1::uuid AND user_id = $2 AND tier = $3 AND period_start = $4
	`
	if _, err := r.pool.Exec(ctx, query, claim.ClanID, claim.UserID, claim.Tier, claim.PeriodStart); err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func memberOf(ctx context.Context, q querier, userID int64) (*model.ClanMember, error) {
	const query = `
		SELECT cm.clan_id::text, cm.user_id, u.username, u.level, cm.rank, cm.joined_at
		FROM clan_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.user_id = $1
	`
	var m model.ClanMember
	err := q.QueryRow(ctx, query, userID).Scan(&m.ClanID, &m.UserID, &m.Username, &m.Level, &m.Rank, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotClanMember
		}
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return &m, nil
}

func lockClan(ctx context.Context, tx pgx.Tx, clanID string) (*model.Clan, error) {
	const query = `SELECT ` + clanColumns + ` FROM clans c WHERE c.id = $1::uuid FOR UPDATE OF c`

	clan, err := scanClan(tx.QueryRow(ctx, query, clanID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClanNotFound
		}
		return nil, fmt.Errorf("failed to lock clan: %w", err)
	}
	return clan, nil
}

// lockUserLevel locks the user row so level-ups cannot race the power delta.
func lockUserLevel(ctx context.Context, tx pgx.Tx, userID int64) (int, error) {
	var level int
	err := tx.QueryRow(ctx, `SELECT level FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to lock user: %w", err)
	}
	return level, nil
}

func pairInClan(ctx context.Context, tx pgx.Tx, actorID, targetID int64) (*model.ClanMember, *model.ClanMember, error) {
	actor, err := memberOf(ctx, tx, actorID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := lockClan(ctx, tx, actor.ClanID); err != nil {
		return nil, nil, err
	}
	target, err := memberOf(ctx, tx, targetID)
	if errors.Is(err, ErrNotClanMember) {
		return nil, nil, ErrDifferentClan
	}
	if err != nil {
		return nil, nil, err
	}
	if target.ClanID != actor.ClanID {
		return nil, nil, ErrDifferentClan
	}
	return actor, target, nil
}

func removeMember(ctx context.Context, tx pgx.Tx, clanID string, userID int64, level int) error {
	if _, err := tx.Exec(ctx, `DELETE FROM clan_members WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to remove clan member: %w", err)
	}
	return addPower(ctx, tx, clanID, -progression.MemberPower(level))
}

func addPower(ctx context.Context, tx pgx.Tx, clanID string, delta int64) error {
	const query = `UPDATE clans SET total_power = GREATEST(total_power + $2, 0) WHERE id = $1::uuid`
	if _, err := tx.Exec(ctx, query, clanID, delta); err != nil {
		return fmt.Errorf("failed to update clan power: %w", err)
	}
	return nil
}

func setLeader(ctx context.Context, tx pgx.Tx, clanID string, userID int64) error {
	if _, err := tx.Exec(ctx, `UPDATE clan_members SET rank = $2 WHERE user_id = $1`, userID, model.RankLeader); err != nil {
		return fmt.Errorf("failed to promote leader: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE clans SET leader_id = $2 WHERE id = $1::uuid`, clanID, userID); err != nil {
		return fmt.Errorf("failed to set clan leader: %w", err)
	}
	return nil
}
