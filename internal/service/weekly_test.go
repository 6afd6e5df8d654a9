package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-quest/internal/model"
	"habit-quest/internal/progression"
)

// flatEvents gives every event type a goal of 300 so tier targets do not
// depend on which type the rotation picks for the test week.
func flatEvents(t *testing.T) *progression.Registry {
	t.Helper()
	reg := progression.NewRegistry()
	for _, typ := range []model.EventType{model.EventVolume, model.EventMissions, model.EventCalories, model.EventXP} {
		require.NoError(t, reg.Register(progression.EventDefinition{Type: typ, Name: string(typ), Unit: "pts", Goal: 300}))
	}
	return reg
}

func newWeeklyEnv(t *testing.T) (*testEnv, string) {
	t.Helper()
	env := newTestEnv(t, wednesday)
	env.weekly = NewWeeklyEvents(env.db.Clans(), env.db.Activity(), env.ledger, flatEvents(t), env.clock)

	for _, id := range []int64{1, 2, 3} {
		env.db.AddUser(id)
	}
	ctx := context.Background()
	clan, err := env.clans.Create(ctx, 1, NewClan{Name: "Night Owls"})
	require.NoError(t, err)
	require.NoError(t, env.clans.Join(ctx, 2, clan.ID))
	require.NoError(t, env.clans.Join(ctx, 3, clan.ID))
	return env, clan.ID
}

func TestWeeklyEvents_GetMyClanRollsOver(t *testing.T) {
	env, clanID := newWeeklyEnv(t)
	ctx := context.Background()
	env.db.SetContribution(clanID, 1, 40)
	env.db.SetContribution(clanID, 2, 120)
	env.db.SetContribution(clanID, 3, 75)

	view, err := env.weekly.GetMyClan(ctx, 2)
	require.NoError(t, err)

	monday := time.Date(2026, time.October, 12, 4, 0, 0, 0, time.UTC)
	assert.True(t, view.Event.StartDate.Equal(monday))
	assert.True(t, view.Event.EndDate.Equal(monday.AddDate(0, 0, 7)))
	assert.Equal(t, progression.EventTypeFor(monday), view.Event.Type)
	assert.Equal(t, int64(235), view.Event.Total)
	assert.Equal(t, int64(300), view.Event.Goal)

	require.Len(t, view.Members, 3)
	assert.Equal(t, int64(2), view.Members[0].UserID)
	assert.Equal(t, int64(3), view.Members[1].UserID)
	assert.Equal(t, int64(1), view.Members[2].UserID)

	require.Len(t, view.Event.Tiers, 5)
	assert.True(t, view.Event.Tiers[0].Reached)
	assert.Equal(t, int64(150), view.Event.Tiers[1].Target)
	assert.True(t, view.Event.Tiers[1].Reached)
	assert.False(t, view.Event.Tiers[2].Reached)

	stored := env.db.Clan(clanID).WeeklyEvent
	assert.True(t, stored.StartDate.Equal(monday))

	// A second read in the same week keeps the stored window.
	_, err = env.weekly.GetMyClan(ctx, 1)
	require.NoError(t, err)
	assert.True(t, env.db.Clan(clanID).WeeklyEvent.StartDate.Equal(monday))
}

func TestWeeklyEvents_ClaimTierThreshold(t *testing.T) {
	env, clanID := newWeeklyEnv(t)
	ctx := context.Background()
	_, err := env.weekly.GetMyClan(ctx, 1)
	require.NoError(t, err)

	env.db.SetContribution(clanID, 1, 299)
	_, err = env.weekly.ClaimEventReward(ctx, 2, 3)
	assert.ErrorIs(t, err, ErrGoalNotReached)

	env.db.SetContribution(clanID, 2, 1)
	res, err := env.weekly.ClaimEventReward(ctx, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, model.Rewards{XP: 300, Coins: 150, GameCoins: 3}, res.Rewards)
	assert.True(t, res.LeveledUp)

	_, err = env.weekly.ClaimEventReward(ctx, 2, 3)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	// Other members and lower tiers are independent claims.
	_, err = env.weekly.ClaimEventReward(ctx, 3, 3)
	require.NoError(t, err)
	_, err = env.weekly.ClaimEventReward(ctx, 2, 1)
	require.NoError(t, err)

	user := env.db.User(2)
	assert.Equal(t, int64(175), user.Coins)
}

func TestWeeklyEvents_ClaimValidation(t *testing.T) {
	env, _ := newWeeklyEnv(t)
	env.db.AddUser(9)
	ctx := context.Background()

	_, err := env.weekly.ClaimEventReward(ctx, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidTier)
	_, err = env.weekly.ClaimEventReward(ctx, 1, 6)
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = env.weekly.ClaimEventReward(ctx, 9, 1)
	assert.ErrorIs(t, err, ErrNotInClan)
}

func TestWeeklyEvents_ClaimRejectedAfterReset(t *testing.T) {
	env, clanID := newWeeklyEnv(t)
	ctx := context.Background()
	env.db.SetContribution(clanID, 1, 1000)

	// The stored window was never initialised.
	_, err := env.weekly.ClaimEventReward(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrEventReset)

	_, err = env.weekly.GetMyClan(ctx, 1)
	require.NoError(t, err)
	_, err = env.weekly.ClaimEventReward(ctx, 1, 1)
	require.NoError(t, err)

	// Next Monday 04:00 the stored window is stale until someone reloads.
	env.clock.Set(time.Date(2026, time.October, 19, 4, 0, 0, 0, time.UTC))
	_, err = env.weekly.ClaimEventReward(ctx, 1, 1)
	assert.ErrorIs(t, err, ErrEventReset)

	view, err := env.weekly.GetMyClan(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, view.Event.Claims)

	_, err = env.weekly.ClaimEventReward(ctx, 1, 1)
	require.NoError(t, err)
}

func TestWeeklyEvents_ClaimReleasedWhenRewardFails(t *testing.T) {
	env, clanID := newWeeklyEnv(t)
	ctx := context.Background()
	env.db.SetContribution(clanID, 1, 1000)
	_, err := env.weekly.GetMyClan(ctx, 1)
	require.NoError(t, err)

	env.db.FailApply = errors.New("write timeout")
	_, err = env.weekly.ClaimEventReward(ctx, 1, 2)
	require.Error(t, err)

	claims, err := env.db.Clans().Claims(ctx, clanID, env.weekly.CurrentWeekStart())
	require.NoError(t, err)
	assert.Empty(t, claims)

	env.db.FailApply = nil
	_, err = env.weekly.ClaimEventReward(ctx, 1, 2)
	require.NoError(t, err)
}

func TestWeeklyEvents_ConcurrentRolloverSingleWinner(t *testing.T) {
	env, clanID := newWeeklyEnv(t)
	ctx := context.Background()

	a, b := env.db.Clan(clanID), env.db.Clan(clanID)
	start := env.weekly.CurrentWeekStart()

	first, err := env.weekly.rollover(ctx, a, start)
	require.NoError(t, err)
	assert.True(t, first.WeeklyEvent.StartDate.Equal(start))

	// A caller holding the pre-rollover snapshot loses the compare-and-set
	// and reloads the winner's window.
	second, err := env.weekly.rollover(ctx, b, start)
	require.NoError(t, err)
	assert.True(t, second.WeeklyEvent.StartDate.Equal(start))
}
