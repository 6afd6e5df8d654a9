// Package progression holds the pure rules of the engine: the level curve,
// reward and penalty tables, calendar period math and the weekly event table.
// Nothing here touches storage.
package progression

import "habit-quest/internal/model"

const (
	// XPPerLevel is the slope of the level curve.
	XPPerLevel = 100

	// PowerPerLevel is how much clan power each member level is worth.
	PowerPerLevel = 100

	// DefaultMaxHP is the HP pool of a new user.
	DefaultMaxHP = 100
)

// NextLevelXP returns the XP needed to leave the given level.
// This linear rule is the only level curve in the codebase.
func NextLevelXP(level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(level) * XPPerLevel
}

// ApplyLevelUps runs the level-up loop on u in place and returns the number of
// levels gained. After it returns, u.CurrentXP < u.NextLevelXP.
func ApplyLevelUps(u *model.User) int {
	if u.Level < 1 {
		u.Level = 1
	}
	if u.MaxHP <= 0 {
		u.MaxHP = DefaultMaxHP
	}
	if u.NextLevelXP <= 0 {
		u.NextLevelXP = NextLevelXP(u.Level)
	}

	gained := 0
	for u.CurrentXP >= u.NextLevelXP {
		u.CurrentXP -= u.NextLevelXP
		u.Level++
		u.NextLevelXP = NextLevelXP(u.Level)
		u.HP = u.MaxHP
		gained++
	}
	return gained
}

// PowerDelta is the clan power change for levels gained (or lost, if negative).
func PowerDelta(levels int) int64 {
	return int64(levels) * PowerPerLevel
}

// MemberPower is what a member of the given level contributes to clan power.
func MemberPower(level int) int64 {
	return int64(level) * PowerPerLevel
}

// SanitizeRewards zeroes negative deltas.
func SanitizeRewards(r model.Rewards) model.Rewards {
	if r.XP < 0 {
		r.XP = 0
	}
	if r.Coins < 0 {
		r.Coins = 0
	}
	if r.GameCoins < 0 {
		r.GameCoins = 0
	}
	return r
}
