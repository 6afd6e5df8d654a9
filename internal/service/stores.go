package service

import (
	"context"
	"time"

	"habit-quest/internal/model"
	"habit-quest/internal/repository"
)

// The store interfaces below are satisfied by the repository package.

// UserStore persists users. ApplyProgress must run mutate and the clan power
// delta it returns atomically.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetOrCreate(ctx context.Context, id int64, username string) (*model.User, bool, error)
	ApplyProgress(ctx context.Context, id int64, mutate func(u *model.User) (int64, error)) (*model.User, error)
	DamageHP(ctx context.Context, id int64, damage int) (*model.User, error)
	GetTopUsers(ctx context.Context, limit int) ([]*model.User, error)
	UpdateUsername(ctx context.Context, id int64, username string) error
}

// MissionStore persists missions.
type MissionStore interface {
	Create(ctx context.Context, m *model.Mission) error
	GetByID(ctx context.Context, id string) (*model.Mission, error)
	ListByUser(ctx context.Context, userID int64) ([]*model.Mission, error)
	CompareAndSwap(ctx context.Context, id string, expect, next model.MissionState, at time.Time) (bool, error)
	Advance(ctx context.Context, id string, at time.Time) (*model.Mission, error)
	ListOpenByTitle(ctx context.Context, userID int64, title, excludeID string) ([]*model.Mission, error)
	Delete(ctx context.Context, id string) error
}

// ExpiryStore is the bulk mission access of the nightly job.
type ExpiryStore interface {
	ListOpenByFrequencies(ctx context.Context, freqs []model.Frequency) ([]*model.Mission, error)
	ResetHabits(ctx context.Context, freq model.Frequency, at time.Time) (int64, error)
	DeleteTemporals(ctx context.Context, freq model.Frequency) (int64, error)
}

// DailyLogStore persists per-day logs with additive upserts.
type DailyLogStore interface {
	Append(ctx context.Context, userID int64, date string, e repository.LogEntry) error
	AddCalories(ctx context.Context, userID int64, date string, calories int64) error
	Get(ctx context.Context, userID int64, date string) (*model.DailyLog, error)
}

// ClanStore persists clans, the membership index and event claims.
type ClanStore interface {
	Create(ctx context.Context, clan *model.Clan) (*model.Clan, error)
	GetByID(ctx context.Context, id string) (*model.Clan, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*model.Clan, error)
	Members(ctx context.Context, clanID string) ([]*model.ClanMember, error)
	Membership(ctx context.Context, userID int64) (*model.ClanMember, error)
	Join(ctx context.Context, clanID string, userID int64, maxMembers int) error
	Leave(ctx context.Context, userID int64) (*repository.LeaveResult, error)
	Kick(ctx context.Context, actorID, targetID int64) error
	SetRank(ctx context.Context, actorID, targetID int64, rank int) error
	RolloverEvent(ctx context.Context, clanID string, prevStart *time.Time, start time.Time, eventType model.EventType) (bool, error)
	Claims(ctx context.Context, clanID string, periodStart time.Time) ([]model.EventClaim, error)
	InsertClaim(ctx context.Context, claim model.EventClaim) error
	DeleteClaim(ctx context.Context, claim model.EventClaim) error
}

// ActivityStore records workouts and aggregates weekly contributions.
type ActivityStore interface {
	AddWorkoutSet(ctx context.Context, set *model.WorkoutSet) (*model.WorkoutSet, error)
	Contributions(ctx context.Context, clanID string, metric model.EventType, since time.Time, sinceDate string) (map[int64]int64, error)
}

// EventProgressStore persists the personal weekly event track.
type EventProgressStore interface {
	AddPoints(ctx context.Context, userID int64, periodID string, points int64) (*model.UserEventProgress, error)
	Get(ctx context.Context, userID int64, periodID string) (*model.UserEventProgress, error)
	MarkClaimed(ctx context.Context, userID int64, periodID string, milestone int, minPoints int64) (bool, error)
	UnmarkClaimed(ctx context.Context, userID int64, periodID string, milestone int) error
}

// RunStore is the nightly job's per-date guard.
type RunStore interface {
	Claim(ctx context.Context, runDate string, startedAt time.Time) (bool, error)
	Finish(ctx context.Context, run *model.MaintenanceRun) error
	Get(ctx context.Context, runDate string) (*model.MaintenanceRun, error)
	Recent(ctx context.Context, limit int) ([]*model.MaintenanceRun, error)
}

var (
	_ UserStore          = (*repository.UserRepository)(nil)
	_ MissionStore       = (*repository.MissionRepository)(nil)
	_ ExpiryStore        = (*repository.MissionRepository)(nil)
	_ DailyLogStore      = (*repository.DailyLogRepository)(nil)
	_ ClanStore          = (*repository.ClanRepository)(nil)
	_ ActivityStore      = (*repository.ActivityRepository)(nil)
	_ EventProgressStore = (*repository.EventProgressRepository)(nil)
	_ RunStore           = (*repository.MaintenanceRepository)(nil)
)
