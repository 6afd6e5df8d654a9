package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-quest/internal/model"
)

func TestEventTrack_PointsFromCompletions(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()

	hard := env.createMission(t, 1, NewMission{Title: "Deadlift", Difficulty: model.DifficultyHard})
	epic := env.createMission(t, 1, NewMission{Title: "Marathon", Difficulty: model.DifficultyEpic, Kind: model.KindTemporal})

	res, err := env.missions.Complete(ctx, hard.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.EventPoints)
	_, err = env.missions.Complete(ctx, epic.ID, 1)
	require.NoError(t, err)

	view, err := env.track.Progress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2026-W42", view.PeriodID)
	assert.Equal(t, int64(8), view.Points)
	require.Len(t, view.Milestones, 3)
	assert.False(t, view.Milestones[0].Reached)
}

func TestEventTrack_ClaimMilestone(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()

	_, err := env.track.ClaimMilestone(ctx, 1, 15)
	assert.ErrorIs(t, err, ErrInvalidMilestone)

	_, err = env.track.ClaimMilestone(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrMilestoneLocked)

	_, err = env.db.EventProgress().AddPoints(ctx, 1, "2026-W42", 12)
	require.NoError(t, err)

	res, err := env.track.ClaimMilestone(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.User.CurrentXP)

	_, err = env.track.ClaimMilestone(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	view, err := env.track.Progress(ctx, 1)
	require.NoError(t, err)
	assert.True(t, view.Milestones[0].Claimed)
	assert.False(t, view.Milestones[1].Claimed)
}

func TestEventTrack_ClaimReleasedWhenRewardFails(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()
	_, err := env.db.EventProgress().AddPoints(ctx, 1, "2026-W42", 40)
	require.NoError(t, err)

	env.db.FailApply = errors.New("boom")
	_, err = env.track.ClaimMilestone(ctx, 1, 30)
	require.Error(t, err)

	env.db.FailApply = nil
	_, err = env.track.ClaimMilestone(ctx, 1, 30)
	require.NoError(t, err)
}
