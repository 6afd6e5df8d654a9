package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"habit-quest/internal/model"
	"habit-quest/internal/service"
)

func TestParseMissionArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    service.NewMission
		wantErr bool
	}{
		{
			name: "habit with defaults",
			args: []string{"daily", "easy", "Drink", "water"},
			want: service.NewMission{Title: "Drink water", Frequency: model.FrequencyDaily, Difficulty: model.DifficultyEasy, Kind: model.KindHabit, Target: 1},
		},
		{
			name: "temporal with target",
			args: []string{"Weekly", "HARD", "temporal", "x3", "Run", "5k"},
			want: service.NewMission{Title: "Run 5k", Frequency: model.FrequencyWeekly, Difficulty: model.DifficultyHard, Kind: model.KindTemporal, Target: 3},
		},
		{
			name: "flags in any order",
			args: []string{"monthly", "epic", "x10", "habit", "Read"},
			want: service.NewMission{Title: "Read", Frequency: model.FrequencyMonthly, Difficulty: model.DifficultyEpic, Kind: model.KindHabit, Target: 10},
		},
		{
			name: "x0 is part of the title",
			args: []string{"daily", "easy", "x0", "push-ups"},
			want: service.NewMission{Title: "x0 push-ups", Frequency: model.FrequencyDaily, Difficulty: model.DifficultyEasy, Kind: model.KindHabit, Target: 1},
		},
		{name: "too few args", args: []string{"daily", "easy"}, wantErr: true},
		{name: "bad frequency", args: []string{"hourly", "easy", "Stretch"}, wantErr: true},
		{name: "bad difficulty", args: []string{"daily", "brutal", "Stretch"}, wantErr: true},
		{name: "flags only", args: []string{"daily", "easy", "temporal", "x2"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMissionArgs(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPickMission(t *testing.T) {
	missions := []*model.Mission{
		{ID: "6f1c2c4e-0000-4000-8000-000000000001", Title: "A"},
		{ID: "6f1c2c4e-0000-4000-8000-000000000002", Title: "B"},
	}

	m, err := pickMission(missions, "2")
	require.NoError(t, err)
	assert.Equal(t, "B", m.Title)

	m, err = pickMission(missions, "6f1c2c4e-0000-4000-8000-000000000001")
	require.NoError(t, err)
	assert.Equal(t, "A", m.Title)

	for _, ref := range []string{"0", "3", "-1", "nope"} {
		_, err := pickMission(missions, ref)
		assert.ErrorIs(t, err, errBadMissionRef, ref)
	}
}

func TestFormatCompletion(t *testing.T) {
	m := &model.Mission{Title: "Floss", Target: 3, Progress: 1}

	msg := formatCompletion(&service.CompletionResult{Outcome: service.OutcomeProgress, Mission: m})
	assert.Equal(t, "➕ Floss: 1/3", msg)

	msg = formatCompletion(&service.CompletionResult{Outcome: service.OutcomeAlreadyCompleted, Mission: m})
	assert.Contains(t, msg, "already done")

	msg = formatCompletion(&service.CompletionResult{
		Outcome:      service.OutcomeCompleted,
		Mission:      m,
		User:         &model.User{Level: 4},
		LeveledUp:    true,
		Rewards:      model.Rewards{XP: 40, Coins: 10},
		SynergyCount: 2,
		EventPoints:  3,
	})
	assert.Contains(t, msg, "+40 XP, +10 coins")
	assert.Contains(t, msg, "level 4")
	assert.Contains(t, msg, "2 related")
	assert.Contains(t, msg, "+3 event points")
}

func TestFormatDailyLog(t *testing.T) {
	dl := &model.DailyLog{
		Date: "2026-10-13",
		MissionStats: model.MissionStats{
			Completed: 1,
			Total:     2,
			ListCompleted: []model.MissionSnapshot{
				{Title: "Read", XP: 20, At: time.Now()},
				{Title: "Floss", Difficulty: model.DifficultyHard, Failed: true, HPLoss: 5},
			},
		},
		Gains:    model.Gains{XP: 20, Coins: 5, Lives: -5},
		Calories: 1800,
	}

	msg := formatDailyLog(dl)
	assert.Contains(t, msg, "XP +20")
	assert.Contains(t, msg, "Lives -5")
	assert.Contains(t, msg, "1800 kcal")
	assert.Contains(t, msg, "✓ Read (+20 XP)")
	assert.Contains(t, msg, "✗ Floss (hard, -5 HP)")
}

func TestFormatTop(t *testing.T) {
	msg := formatTop([]*model.User{
		{ID: 1, Username: "ana", Level: 5},
		{ID: 2, Level: 3},
		{ID: 3, Username: "cy", Level: 2},
		{ID: 4, Username: "dee", Level: 1},
	})
	assert.Contains(t, msg, "🥇 @ana: level 5")
	assert.Contains(t, msg, "🥈 @user2")
	assert.Contains(t, msg, "4. @dee")
}
