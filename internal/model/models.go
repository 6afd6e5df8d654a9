// Package model defines the persisted records of the habit-quest engine.
package model

import "time"

// Frequency is a mission's reset cadence.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// Kind separates recurring habits from one-shot temporal missions.
type Kind string

const (
	KindHabit    Kind = "habit"    // resets every period
	KindTemporal Kind = "temporal" // deleted once its period expires
)

// Difficulty drives rewards and the penalty for missing a mission.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyEpic   Difficulty = "epic"
)

// IsValid reports whether f is a known frequency.
func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	}
	return false
}

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	return k == KindHabit || k == KindTemporal
}

// IsValid reports whether d is a known difficulty.
func (d Difficulty) IsValid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyEpic:
		return true
	}
	return false
}

// Frequencies lists every frequency in cadence order.
func Frequencies() []Frequency {
	return []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly}
}

// Rewards is the xp/coin bundle granted for a completion or claim.
type Rewards struct {
	XP        int64 `json:"xp"`
	Coins     int64 `json:"coins"`
	GameCoins int64 `json:"gameCoins"`
}

// Mission is a user-owned recurring or one-off task.
// Invariant: Progress <= Target, and Completed implies Progress == Target.
type Mission struct {
	ID             string     `db:"id" json:"id"`
	UserID         int64      `db:"user_id" json:"userId"`
	Title          string     `db:"title" json:"title"`
	Frequency      Frequency  `db:"frequency" json:"frequency"`
	Kind           Kind       `db:"kind" json:"kind"`
	Difficulty     Difficulty `db:"difficulty" json:"difficulty"`
	Target         int        `db:"target" json:"target"`
	Progress       int        `db:"progress" json:"progress"`
	Completed      bool       `db:"completed" json:"completed"`
	XPReward       int64      `db:"xp_reward" json:"xpReward"`
	CoinReward     int64      `db:"coin_reward" json:"coinReward"`
	GameCoinReward int64      `db:"game_coin_reward" json:"gameCoinReward"`
	LastUpdated    time.Time  `db:"last_updated" json:"lastUpdated"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// Rewards returns the bundle granted when the mission completes.
func (m *Mission) Rewards() Rewards {
	return Rewards{XP: m.XPReward, Coins: m.CoinReward, GameCoins: m.GameCoinReward}
}

// State returns the mission's (progress, completed) pair.
func (m *Mission) State() MissionState {
	return MissionState{Progress: m.Progress, Completed: m.Completed}
}

// MissionState is the compare-and-set unit of a mission transition.
type MissionState struct {
	Progress  int
	Completed bool
}

// MissionSnapshot is one entry of DailyLog.missionStats.listCompleted.
// Failure snapshots carry Failed=true and the HP lost.
type MissionSnapshot struct {
	Title      string     `json:"title"`
	Frequency  Frequency  `json:"frequency"`
	Difficulty Difficulty `json:"difficulty"`
	Kind       Kind       `json:"kind"`
	XP         int64      `json:"xp,omitempty"`
	Coins      int64      `json:"coins,omitempty"`
	GameCoins  int64      `json:"gameCoins,omitempty"`
	Failed     bool       `json:"failed,omitempty"`
	HPLoss     int        `json:"hpLoss,omitempty"`
	At         time.Time  `json:"at"`
}

// MissionStats is the mission section of a daily log.
type MissionStats struct {
	Completed     int               `json:"completed"`
	Total         int               `json:"total"`
	ListCompleted []MissionSnapshot `json:"listCompleted"`
}

// Gains sums what a user gained (or lost) on one day.
type Gains struct {
	Coins int64 `json:"coins"`
	XP    int64 `json:"xp"`
	Lives int64 `json:"lives"`
}

// DailyLog is unique per (user, calendar date).
type DailyLog struct {
	UserID       int64        `db:"user_id" json:"userId"`
	Date         string       `db:"log_date" json:"date"` // YYYY-MM-DD
	MissionStats MissionStats `json:"missionStats"`
	Gains        Gains        `json:"gains"`
	Calories     int64        `db:"calories" json:"calories"`
	UpdatedAt    time.Time    `db:"updated_at" json:"updatedAt"`
}

// Clan ranks. A member can only kick members of strictly lower rank.
const (
	RankMember  = 1
	RankOfficer = 2
	RankLeader  = 3
)

// User holds the progression state of a player.
type User struct {
	ID          int64     `db:"id" json:"id"`
	Username    string    `db:"username" json:"username"`
	Level       int       `db:"level" json:"level"`
	CurrentXP   int64     `db:"current_xp" json:"currentXP"`
	NextLevelXP int64     `db:"next_level_xp" json:"nextLevelXP"`
	Coins       int64     `db:"coins" json:"coins"`
	GameCoins   int64     `db:"game_coins" json:"gameCoins"`
	HP          int       `db:"hp" json:"hp"`
	MaxHP       int       `db:"max_hp" json:"maxHP"`
	ClanID      *string   `json:"clanId,omitempty"`   // from clan_members
	ClanRank    int       `json:"clanRank,omitempty"` // from clan_members
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// InClan reports whether the user currently belongs to a clan.
func (u *User) InClan() bool {
	return u.ClanID != nil && *u.ClanID != ""
}

// EventType is the metric a weekly clan event measures.
type EventType string

const (
	EventVolume   EventType = "volume"
	EventMissions EventType = "missions"
	EventCalories EventType = "calories"
	EventXP       EventType = "xp"
)

// WeeklyEvent is the clan's stored event window. A zero StartDate means the
// clan has never rolled over.
type WeeklyEvent struct {
	StartDate time.Time    `json:"startDate"`
	Type      EventType    `json:"type"`
	Claims    []EventClaim `json:"claims"`
}

// EventClaim records that a user took a tier reward in one event period.
type EventClaim struct {
	ClanID      string    `db:"clan_id" json:"-"`
	UserID      int64     `db:"user_id" json:"userId"`
	Tier        int       `db:"tier" json:"tier"`
	PeriodStart time.Time `db:"period_start" json:"-"`
	ClaimedAt   time.Time `db:"claimed_at" json:"claimedAt"`
}

// Clan is a team of up to ten users.
type Clan struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	LeaderID    int64       `db:"leader_id" json:"leaderId"`
	MinLevel    int         `db:"min_level" json:"minLevel"`
	TotalPower  int64       `db:"total_power" json:"totalPower"`
	MemberCount int         `json:"memberCount"`
	WeeklyEvent WeeklyEvent `json:"weeklyEvent"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// ClanMember is one row of the membership index.
type ClanMember struct {
	ClanID   string    `db:"clan_id" json:"clanId"`
	UserID   int64     `db:"user_id" json:"userId"`
	Username string    `json:"username"`
	Level    int       `json:"level"`
	Rank     int       `db:"rank" json:"rank"`
	JoinedAt time.Time `db:"joined_at" json:"joinedAt"`
}

// UserEventProgress accumulates event-track points for one ISO week.
type UserEventProgress struct {
	UserID         int64     `db:"user_id" json:"userId"`
	PeriodID       string    `db:"period_id" json:"periodId"` // YYYY-Www
	Points         int64     `db:"points" json:"points"`
	ClaimedRewards []int     `db:"claimed_rewards" json:"claimedRewards"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// WorkoutSet is a lifted set feeding the volume metric.
type WorkoutSet struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"userId"`
	Exercise    string    `db:"exercise" json:"exercise"`
	Weight      int64     `db:"weight" json:"weight"`
	Reps        int       `db:"reps" json:"reps"`
	PerformedAt time.Time `db:"performed_at" json:"performedAt"`
}

// Maintenance run statuses.
const (
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// MaintenanceRun is the persisted guard for one nightly run date.
type MaintenanceRun struct {
	RunDate       string     `db:"run_date" json:"runDate"`
	Status        string     `db:"status" json:"status"`
	PunishedUsers int        `db:"punished_users" json:"punishedUsers"`
	HabitsReset   int64      `db:"habits_reset" json:"habitsReset"`
	TemporalsGone int64      `db:"temporals_deleted" json:"temporalsDeleted"`
	StartedAt     time.Time  `db:"started_at" json:"startedAt"`
	FinishedAt    *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
}
