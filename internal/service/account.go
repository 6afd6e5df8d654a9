package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/progression"
	"habit-quest/internal/repository"
)

const (
	maxExerciseLength = 64
	maxWorkoutWeight  = 1000
	maxWorkoutReps    = 1000
	maxDailyCalories  = 20000
	defaultTopLimit   = 10
	maxTopLimit       = 100
)

// AccountService handles user accounts, day logs and activity tracking.
type AccountService struct {
	users    UserStore
	logs     DailyLogStore
	activity ActivityStore
	ledger   *Ledger
	clock    clock.Clock
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(users UserStore, logs DailyLogStore, activity ActivityStore, ledger *Ledger, clk clock.Clock) *AccountService {
	return &AccountService{users: users, logs: logs, activity: activity, ledger: ledger, clock: clk}
}

// EnsureUser returns the user, creating it on first contact.
func (s *AccountService) EnsureUser(ctx context.Context, userID int64, username string) (*model.User, bool, error) {
	user, created, err := s.users.GetOrCreate(ctx, userID, username)
	if err != nil {
		return nil, false, translate(err, "ensure user")
	}

	if !created && username != "" && user.Username != username {
		if err := s.users.UpdateUsername(ctx, userID, username); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("failed to update username")
		} else {
			user.Username = username
		}
	}
	if created {
		log.Info().Int64("user_id", userID).Str("username", username).Msg("user created")
	}
	return user, created, nil
}

// Profile returns the user after repairing any pending level-ups.
func (s *AccountService) Profile(ctx context.Context, userID int64) (*model.User, error) {
	res, err := s.ledger.EnsureLevelConsistency(ctx, userID)
	if err != nil {
		return nil, err
	}
	return res.User, nil
}

// DailyLog returns the user's log for date (YYYY-MM-DD, empty for today).
// A day without activity yields an empty log rather than an error.
func (s *AccountService) DailyLog(ctx context.Context, userID int64, date string) (*model.DailyLog, error) {
	if date == "" {
		date = progression.DateKey(s.clock.Now())
	} else if _, err := progression.ParseDateKey(date, s.clock.Location()); err != nil {
		return nil, Validationf("invalid date %q, expected YYYY-MM-DD", date)
	}

	dl, err := s.logs.Get(ctx, userID, date)
	if errors.Is(err, repository.ErrDailyLogNotFound) {
		return &model.DailyLog{
			UserID:       userID,
			Date:         date,
			MissionStats: model.MissionStats{ListCompleted: []model.MissionSnapshot{}},
		}, nil
	}
	if err != nil {
		return nil, translate(err, "get daily log")
	}
	return dl, nil
}

// LogWorkout records a lifted set. Its volume counts toward the clan's
// volume event.
func (s *AccountService) LogWorkout(ctx context.Context, userID int64, exercise string, weight int64, reps int) (*model.WorkoutSet, error) {
	exercise = strings.TrimSpace(exercise)
	switch {
	case exercise == "":
		return nil, Validationf("exercise is required")
	case len(exercise) > maxExerciseLength:
		return nil, Validationf("exercise must be at most %d characters", maxExerciseLength)
	case weight < 0 || weight > maxWorkoutWeight:
		return nil, Validationf("weight must be between 0 and %d", maxWorkoutWeight)
	case reps < 1 || reps > maxWorkoutReps:
		return nil, Validationf("reps must be between 1 and %d", maxWorkoutReps)
	}

	set, err := s.activity.AddWorkoutSet(ctx, &model.WorkoutSet{
		UserID:      userID,
		Exercise:    exercise,
		Weight:      weight,
		Reps:        reps,
		PerformedAt: s.clock.Now(),
	})
	if err != nil {
		return nil, translate(err, "log workout")
	}
	return set, nil
}

// LogCalories adds burned calories to today's log.
func (s *AccountService) LogCalories(ctx context.Context, userID int64, calories int64) error {
	if calories <= 0 || calories > maxDailyCalories {
		return Validationf("calories must be between 1 and %d", maxDailyCalories)
	}
	if err := s.logs.AddCalories(ctx, userID, progression.DateKey(s.clock.Now()), calories); err != nil {
		return translate(err, "log calories")
	}
	return nil
}

// TopUsers returns the leaderboard by level then xp.
func (s *AccountService) TopUsers(ctx context.Context, limit int) ([]*model.User, error) {
	if limit <= 0 {
		limit = defaultTopLimit
	}
	if limit > maxTopLimit {
		limit = maxTopLimit
	}
	users, err := s.users.GetTopUsers(ctx, limit)
	if err != nil {
		return nil, translate(err, "get top users")
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}
