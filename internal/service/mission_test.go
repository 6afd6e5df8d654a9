package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/progression"
	"habit-quest/internal/repository"
	"habit-quest/internal/service/servicetest"
)

// wednesday is a fixed instant in the middle of an event week.
var wednesday = time.Date(2026, time.October, 14, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db          *servicetest.DB
	clock       *clock.Fixed
	ledger      *Ledger
	missions    *MissionService
	track       *EventTrack
	weekly      *WeeklyEvents
	clans       *ClanService
	maintenance *Maintenance
	accounts    *AccountService
}

func newTestEnv(t *testing.T, now time.Time) *testEnv {
	t.Helper()

	db := servicetest.New()
	clk := clock.NewFixed(now)
	ledger := NewLedger(db.Users())

	env := &testEnv{
		db:          db,
		clock:       clk,
		ledger:      ledger,
		missions:    NewMissionService(db.Missions(), db.Logs(), ledger, clk),
		track:       NewEventTrack(db.EventProgress(), ledger, clk),
		weekly:      NewWeeklyEvents(db.Clans(), db.Activity(), ledger, progression.DefaultEvents, clk),
		clans:       NewClanService(db.Clans(), clk, 10),
		maintenance: NewMaintenance(db.Missions(), db.Users(), db.Logs(), db.Runs(), clk),
		accounts:    NewAccountService(db.Users(), db.Logs(), db.Activity(), ledger, clk),
	}
	env.missions.Subscribe(NewSynergy(db.Missions()))
	env.missions.Subscribe(env.track)
	return env
}

func (e *testEnv) createMission(t *testing.T, userID int64, in NewMission) *model.Mission {
	t.Helper()
	if in.Frequency == "" {
		in.Frequency = model.FrequencyDaily
	}
	if in.Kind == "" {
		in.Kind = model.KindHabit
	}
	if in.Difficulty == "" {
		in.Difficulty = model.DifficultyEasy
	}
	m, err := e.missions.Create(context.Background(), userID, in)
	require.NoError(t, err)
	return m
}

func TestNextTransition(t *testing.T) {
	now := wednesday
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name    string
		mission model.Mission
		want    Transition
		wantErr error
	}{
		{
			name:    "single step completes",
			mission: model.Mission{Kind: model.KindHabit, Target: 1},
			want:    Transition{Outcome: OutcomeCompleted, Next: model.MissionState{Progress: 1, Completed: true}},
		},
		{
			name:    "early step is progress only",
			mission: model.Mission{Kind: model.KindHabit, Target: 5, Progress: 1},
			want:    Transition{Outcome: OutcomeProgress, Next: model.MissionState{Progress: 2}},
		},
		{
			name:    "reaching target minus one completes",
			mission: model.Mission{Kind: model.KindHabit, Target: 5, Progress: 3},
			want:    Transition{Outcome: OutcomeCompleted, Next: model.MissionState{Progress: 5, Completed: true}},
		},
		{
			name:    "target two completes on first step",
			mission: model.Mission{Kind: model.KindTemporal, Target: 2},
			want:    Transition{Outcome: OutcomeCompleted, Next: model.MissionState{Progress: 2, Completed: true}},
		},
		{
			name:    "habit completed today is idempotent",
			mission: model.Mission{Kind: model.KindHabit, Target: 1, Progress: 1, Completed: true, LastUpdated: now.Add(-time.Hour)},
			want:    Transition{Outcome: OutcomeAlreadyCompleted, Next: model.MissionState{Progress: 1, Completed: true}},
		},
		{
			name:    "habit completed yesterday restarts",
			mission: model.Mission{Kind: model.KindHabit, Target: 4, Progress: 4, Completed: true, LastUpdated: yesterday},
			want:    Transition{Outcome: OutcomeProgress, Next: model.MissionState{Progress: 1}},
		},
		{
			name:    "completed temporal is rejected",
			mission: model.Mission{Kind: model.KindTemporal, Target: 1, Progress: 1, Completed: true, LastUpdated: yesterday},
			wantErr: ErrMissionAlreadyCompleted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextTransition(&tt.mission, now, time.UTC)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Completion always lands on progress == target, one step before the target
// for multi-step missions.
func TestNextTransitionBoundaryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := rapid.IntRange(1, 200).Draw(t, "target")
		m := &model.Mission{Kind: model.KindTemporal, Target: target}

		calls := 0
		for {
			calls++
			tr, err := NextTransition(m, wednesday, time.UTC)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Next.Progress > target {
				t.Fatalf("progress %d exceeds target %d", tr.Next.Progress, target)
			}
			m.Progress, m.Completed = tr.Next.Progress, tr.Next.Completed
			if tr.Outcome == OutcomeCompleted {
				break
			}
			if calls > target {
				t.Fatalf("mission with target %d never completed", target)
			}
		}

		if m.Progress != target {
			t.Fatalf("completed with progress %d, want %d", m.Progress, target)
		}
		if want := max(1, target-1); calls != want {
			t.Fatalf("target %d completed after %d calls, want %d", target, calls, want)
		}
	})
}

func TestMissionService_Create(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()

	m, err := env.missions.Create(ctx, 1, NewMission{
		Title:      "  Run 5k  ",
		Frequency:  model.FrequencyWeekly,
		Kind:       model.KindHabit,
		Difficulty: model.DifficultyMedium,
	})
	require.NoError(t, err)
	assert.Equal(t, "Run 5k", m.Title)
	assert.Equal(t, 1, m.Target)
	assert.Equal(t, model.Rewards{XP: 100, Coins: 50, GameCoins: 5}, m.Rewards())
	assert.NotNil(t, env.db.Mission(m.ID))

	invalid := []NewMission{
		{Title: "", Frequency: model.FrequencyDaily, Kind: model.KindHabit, Difficulty: model.DifficultyEasy},
		{Title: "x", Frequency: "hourly", Kind: model.KindHabit, Difficulty: model.DifficultyEasy},
		{Title: "x", Frequency: model.FrequencyDaily, Kind: "chore", Difficulty: model.DifficultyEasy},
		{Title: "x", Frequency: model.FrequencyDaily, Kind: model.KindHabit, Difficulty: "trivial"},
		{Title: "x", Frequency: model.FrequencyDaily, Kind: model.KindHabit, Difficulty: model.DifficultyEasy, Target: -1},
		{Title: "x", Frequency: model.FrequencyDaily, Kind: model.KindHabit, Difficulty: model.DifficultyEasy, Target: maxMissionTarget + 1},
	}
	for _, in := range invalid {
		_, err := env.missions.Create(ctx, 1, in)
		assert.Equal(t, KindValidation, KindOf(err), "input %+v", in)
	}
}

func TestMissionService_CompleteSingleStep(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()
	m := env.createMission(t, 1, NewMission{Title: "Stretch"})

	res, err := env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.True(t, res.Mission.Completed)
	assert.Equal(t, model.Rewards{XP: 10, Coins: 5}, res.Rewards)
	assert.Equal(t, int64(10), res.User.CurrentXP)
	assert.Equal(t, int64(1), res.EventPoints)

	// A second call on the same day changes nothing.
	res, err = env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyCompleted, res.Outcome)
	assert.Equal(t, int64(10), env.db.User(1).CurrentXP)

	dl, err := env.db.Logs().Get(ctx, 1, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, 1, dl.MissionStats.Completed)
	assert.Equal(t, 1, dl.MissionStats.Total)
	assert.Equal(t, int64(10), dl.Gains.XP)
	require.Len(t, dl.MissionStats.ListCompleted, 1)
	assert.Equal(t, "Stretch", dl.MissionStats.ListCompleted[0].Title)

	// The next day the habit can be completed again.
	env.clock.Advance(24 * time.Hour)
	res, err = env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, int64(20), env.db.User(1).CurrentXP)
}

func TestMissionService_CompleteMultiStep(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()
	m := env.createMission(t, 1, NewMission{Title: "Pushups", Kind: model.KindTemporal, Target: 3})

	res, err := env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProgress, res.Outcome)
	assert.Equal(t, 1, res.Mission.Progress)
	assert.Nil(t, res.User)
	assert.Zero(t, env.db.User(1).CurrentXP)

	res, err = env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 3, env.db.Mission(m.ID).Progress)
	assert.Equal(t, int64(10), env.db.User(1).CurrentXP)

	_, err = env.missions.Complete(ctx, m.ID, 1)
	assert.ErrorIs(t, err, ErrMissionAlreadyCompleted)
}

func TestMissionService_CompleteRewardFailureCanBeRetried(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()
	m := env.createMission(t, 1, NewMission{Title: "Read"})
	twin := env.createMission(t, 1, NewMission{Title: "Read", Frequency: model.FrequencyWeekly})

	env.db.FailApply = errors.New("connection reset")
	_, err := env.missions.Complete(ctx, m.ID, 1)
	require.Error(t, err)

	assert.False(t, env.db.Mission(m.ID).Completed)
	assert.Zero(t, env.db.Mission(m.ID).Progress)
	assert.False(t, env.db.Mission(twin.ID).Completed)
	_, err = env.db.Logs().Get(ctx, 1, "2026-10-14")
	assert.ErrorIs(t, err, repository.ErrDailyLogNotFound)

	env.db.FailApply = nil
	res, err := env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, int64(10), env.db.User(1).CurrentXP)
	assert.Equal(t, int64(5), env.db.User(1).Coins)

	dl, err := env.db.Logs().Get(ctx, 1, "2026-10-14")
	require.NoError(t, err)
	assert.Equal(t, int64(10), dl.Gains.XP)
	assert.Len(t, dl.MissionStats.ListCompleted, 1)
}

func TestNextTransition_TargetTwoCompletesOnFirstCall(t *testing.T) {
	m := &model.Mission{Kind: model.KindTemporal, Target: 2}
	tr, err := NextTransition(m, wednesday, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, tr.Outcome)
	assert.Equal(t, model.MissionState{Progress: 2, Completed: true}, tr.Next)
}

func TestMissionService_CompleteRejections(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	env.db.AddUser(2)
	ctx := context.Background()
	m := env.createMission(t, 1, NewMission{Title: "Read"})

	_, err := env.missions.Complete(ctx, "not-a-uuid", 1)
	assert.ErrorIs(t, err, ErrMissionNotFound)

	_, err = env.missions.Complete(ctx, "1b4e28ba-2fa1-11d2-883f-0016d3cca427", 1)
	assert.ErrorIs(t, err, ErrMissionNotFound)

	_, err = env.missions.Complete(ctx, m.ID, 2)
	assert.ErrorIs(t, err, ErrNotMissionOwner)
	assert.Equal(t, KindUnauthorized, KindOf(err))
	assert.False(t, env.db.Mission(m.ID).Completed)
}

func TestMissionService_ConcurrentCompletionRewardsOnce(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	m := env.createMission(t, 1, NewMission{Title: "Meditate", Kind: model.KindTemporal})

	var wg sync.WaitGroup
	var mu sync.Mutex
	completed := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.missions.Complete(context.Background(), m.ID, 1)
			if err == nil && res.Outcome == OutcomeCompleted {
				mu.Lock()
				completed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, completed)
	assert.Equal(t, int64(10), env.db.User(1).CurrentXP)
}

func TestMissionService_Synergy(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()

	primary := env.createMission(t, 1, NewMission{Title: "Gym"})
	weekly := env.createMission(t, 1, NewMission{Title: "Gym", Frequency: model.FrequencyWeekly, Target: 3})
	monthly := env.createMission(t, 1, NewMission{Title: "Gym", Frequency: model.FrequencyMonthly})
	other := env.createMission(t, 1, NewMission{Title: "Swim"})

	res, err := env.missions.Complete(ctx, primary.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SynergyCount)

	assert.Equal(t, 1, env.db.Mission(weekly.ID).Progress)
	assert.False(t, env.db.Mission(weekly.ID).Completed)
	assert.True(t, env.db.Mission(monthly.ID).Completed)
	assert.Zero(t, env.db.Mission(other.ID).Progress)

	// Synergy grants no rewards of its own.
	assert.Equal(t, int64(10), env.db.User(1).CurrentXP)
}

func TestMissionService_SynergyFailureIsIsolated(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()

	primary := env.createMission(t, 1, NewMission{Title: "Walk"})
	broken := env.createMission(t, 1, NewMission{Title: "Walk", Frequency: model.FrequencyWeekly})
	healthy := env.createMission(t, 1, NewMission{Title: "Walk", Frequency: model.FrequencyMonthly})
	env.db.FailAdvance[broken.ID] = true

	res, err := env.missions.Complete(ctx, primary.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.SynergyCount)
	assert.True(t, env.db.Mission(healthy.ID).Completed)
}

func TestMissionService_IncrementProgress(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	ctx := context.Background()
	m := env.createMission(t, 1, NewMission{Title: "Pages", Kind: model.KindTemporal, Target: 4})

	got, err := env.missions.IncrementProgress(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Progress)

	got, err = env.missions.IncrementProgress(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Progress)

	_, err = env.missions.IncrementProgress(ctx, m.ID, 1)
	assert.ErrorIs(t, err, ErrFinalStepNeedsComplete)
	assert.Zero(t, env.db.User(1).CurrentXP)

	res, err := env.missions.Complete(ctx, m.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, 4, res.Mission.Progress)
}

func TestMissionService_ListAndDelete(t *testing.T) {
	env := newTestEnv(t, wednesday)
	env.db.AddUser(1)
	env.db.AddUser(2)
	ctx := context.Background()

	empty, err := env.missions.List(ctx, 1)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	first := env.createMission(t, 1, NewMission{Title: "First"})
	env.clock.Advance(time.Minute)
	second := env.createMission(t, 1, NewMission{Title: "Second"})

	list, err := env.missions.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	assert.ErrorIs(t, env.missions.Delete(ctx, first.ID, 2), ErrNotMissionOwner)
	require.NoError(t, env.missions.Delete(ctx, first.ID, 1))
	assert.Nil(t, env.db.Mission(first.ID))
}
