package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"habit-quest/internal/metrics"
	"habit-quest/internal/model"
	"habit-quest/internal/progression"
)

// RewardResult is what a ledger operation did to the user.
type RewardResult struct {
	User         *model.User   `json:"user"`
	LeveledUp    bool          `json:"leveledUp"`
	LevelsGained int           `json:"levelsGained"`
	Rewards      model.Rewards `json:"rewards"`
}

// Ledger applies xp and currency to users, runs the level-up loop and keeps
// clan power in sync with member levels.
type Ledger struct {
	users UserStore
}

// NewLedger creates a new Ledger.
func NewLedger(users UserStore) *Ledger {
	return &Ledger{users: users}
}

// AddRewards adds the (non-negative) rewards to the user and levels them up.
// When levels are gained and the user is in a clan, the clan gains
// 100 power per level in the same atomic store operation.
func (l *Ledger) AddRewards(ctx context.Context, userID int64, rewards model.Rewards) (*RewardResult, error) {
	rewards = progression.SanitizeRewards(rewards)

	var gained int
	user, err := l.users.ApplyProgress(ctx, userID, func(u *model.User) (int64, error) {
		u.CurrentXP += rewards.XP
		u.Coins += rewards.Coins
		u.GameCoins += rewards.GameCoins
		gained = progression.ApplyLevelUps(u)
		return clanPowerDelta(u, gained), nil
	})
	if err != nil {
		return nil, translate(err, "add rewards")
	}

	l.logLevelUp(user, gained)
	return &RewardResult{User: user, LeveledUp: gained > 0, LevelsGained: gained, Rewards: rewards}, nil
}

// EnsureLevelConsistency re-runs the level-up loop without adding anything.
// It repairs users whose XP was pushed past the threshold by other writers.
func (l *Ledger) EnsureLevelConsistency(ctx context.Context, userID int64) (*RewardResult, error) {
	var gained int
	user, err := l.users.ApplyProgress(ctx, userID, func(u *model.User) (int64, error) {
		gained = progression.ApplyLevelUps(u)
		return clanPowerDelta(u, gained), nil
	})
	if err != nil {
		return nil, translate(err, "ensure level consistency")
	}

	l.logLevelUp(user, gained)
	return &RewardResult{User: user, LeveledUp: gained > 0, LevelsGained: gained}, nil
}

func clanPowerDelta(u *model.User, gained int) int64 {
	if gained == 0 || !u.InClan() {
		return 0
	}
	return progression.PowerDelta(gained)
}

func (l *Ledger) logLevelUp(u *model.User, gained int) {
	if gained == 0 {
		return
	}
	metrics.RecordLevelUps(gained)
	log.Info().
		Int64("user_id", u.ID).
		Int("level", u.Level).
		Int("levels_gained", gained).
		Bool("in_clan", u.InClan()).
		Msg("user leveled up")
}
