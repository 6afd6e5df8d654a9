package progression

import (
	"fmt"

	"habit-quest/internal/model"
)

type rewardBase struct {
	xp, coins, gameCoins int64
}

var difficultyBase = map[model.Difficulty]rewardBase{
	model.DifficultyEasy:   {xp: 10, coins: 5, gameCoins: 0},
	model.DifficultyMedium: {xp: 20, coins: 10, gameCoins: 1},
	model.DifficultyHard:   {xp: 35, coins: 20, gameCoins: 2},
	model.DifficultyEpic:   {xp: 60, coins: 40, gameCoins: 5},
}

var frequencyMultiplier = map[model.Frequency]int64{
	model.FrequencyDaily:   1,
	model.FrequencyWeekly:  5,
	model.FrequencyMonthly: 20,
	model.FrequencyYearly:  200,
}

// Missing a mission costs more HP the easier it was.
var hpDamage = map[model.Difficulty]int{
	model.DifficultyEasy:   5,
	model.DifficultyMedium: 3,
	model.DifficultyHard:   1,
	model.DifficultyEpic:   0,
}

var eventPoints = map[model.Difficulty]int64{
	model.DifficultyEasy:   1,
	model.DifficultyMedium: 2,
	model.DifficultyHard:   3,
	model.DifficultyEpic:   5,
}

// MissionRewards derives the rewards frozen into a mission at creation.
func MissionRewards(d model.Difficulty, f model.Frequency) (model.Rewards, error) {
	base, ok := difficultyBase[d]
	if !ok {
		return model.Rewards{}, fmt.Errorf("invalid difficulty: %q", d)
	}
	mult, ok := frequencyMultiplier[f]
	if !ok {
		return model.Rewards{}, fmt.Errorf("invalid frequency: %q", f)
	}
	return model.Rewards{
		XP:        base.xp * mult,
		Coins:     base.coins * mult,
		GameCoins: base.gameCoins * mult,
	}, nil
}

// HPDamage is the HP lost when a mission of difficulty d expires incomplete.
func HPDamage(d model.Difficulty) int {
	return hpDamage[d]
}

// EventPoints is what a completion adds to the user's event-track progress.
func EventPoints(d model.Difficulty) int64 {
	return eventPoints[d]
}
