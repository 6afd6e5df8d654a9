package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"habit-quest/internal/model"
)

func TestNextLevelXP(t *testing.T) {
	tests := []struct {
		level    int
		expected int64
	}{
		{0, 100},
		{1, 100},
		{2, 200},
		{10, 1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NextLevelXP(tt.level), "level %d", tt.level)
	}
}

func TestApplyLevelUps_MultipleLevels(t *testing.T) {
	u := &model.User{Level: 1, CurrentXP: 350, NextLevelXP: 100, HP: 20, MaxHP: 100}

	gained := ApplyLevelUps(u)

	// 350 - 100 (L1) - 200 (L2) = 50 at level 3
	assert.Equal(t, 2, gained)
	assert.Equal(t, 3, u.Level)
	assert.Equal(t, int64(50), u.CurrentXP)
	assert.Equal(t, int64(300), u.NextLevelXP)
	assert.Equal(t, 100, u.HP)
}

func TestApplyLevelUps_NoLevelKeepsHP(t *testing.T) {
	u := &model.User{Level: 4, CurrentXP: 399, NextLevelXP: 400, HP: 7, MaxHP: 100}

	assert.Equal(t, 0, ApplyLevelUps(u))
	assert.Equal(t, 4, u.Level)
	assert.Equal(t, 7, u.HP)
}

// TestApplyLevelUpsProperty checks the loop post-condition and that no XP is
// created or lost: the thresholds consumed plus the remainder equal the input.
func TestApplyLevelUpsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		level := rapid.IntRange(1, 60).Draw(t, "level")
		startXP := rapid.Int64Range(0, NextLevelXP(level)-1).Draw(t, "startXP")
		gain := rapid.Int64Range(0, 200000).Draw(t, "gain")

		u := &model.User{Level: level, CurrentXP: startXP + gain, NextLevelXP: NextLevelXP(level), MaxHP: 100}
		gained := ApplyLevelUps(u)

		if u.CurrentXP >= u.NextLevelXP {
			t.Fatalf("post-condition violated: currentXP=%d nextLevelXP=%d", u.CurrentXP, u.NextLevelXP)
		}
		if u.Level != level+gained {
			t.Fatalf("level %d != start %d + gained %d", u.Level, level, gained)
		}

		var consumed int64
		for l := level; l < u.Level; l++ {
			consumed += NextLevelXP(l)
		}
		if consumed+u.CurrentXP != startXP+gain {
			t.Fatalf("xp not conserved: consumed=%d remainder=%d input=%d", consumed, u.CurrentXP, startXP+gain)
		}
	})
}

func TestPowerDelta(t *testing.T) {
	assert.Equal(t, int64(300), PowerDelta(3))
	assert.Equal(t, int64(-200), PowerDelta(-2))
	assert.Equal(t, int64(700), MemberPower(7))
}

func TestSanitizeRewards(t *testing.T) {
	r := SanitizeRewards(model.Rewards{XP: -5, Coins: 3, GameCoins: -1})
	assert.Equal(t, model.Rewards{XP: 0, Coins: 3, GameCoins: 0}, r)
}
