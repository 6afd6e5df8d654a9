package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"habit-quest/internal/metrics"
	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/pkg/lock"
	"habit-quest/internal/progression"
	"habit-quest/internal/repository"
)

const (
	maxTitleLength   = 120
	maxMissionTarget = 1000
	missionLockWait  = 5 * time.Second
)

// Outcome is the shape of a completion call result.
type Outcome string

const (
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeProgress         Outcome = "progress"
	OutcomeCompleted        Outcome = "completed"
)

// Transition is the pure result of applying one completion step to a mission.
type Transition struct {
	Outcome Outcome
	Next    model.MissionState
}

// NextTransition decides what a completion call does to m at now. Habit
// missions completed on an earlier day start a new period first. A step that
// brings progress to target-1 or beyond completes the mission, so a mission
// with target 2 completes on its first call.
func NextTransition(m *model.Mission, now time.Time, loc *time.Location) (Transition, error) {
	state := m.State()

	if state.Completed {
		if m.Kind == model.KindTemporal {
			return Transition{}, ErrMissionAlreadyCompleted
		}
		if progression.SameDay(m.LastUpdated, now, loc) {
			return Transition{Outcome: OutcomeAlreadyCompleted, Next: state}, nil
		}
		state = model.MissionState{}
	}

	if m.Target > 1 {
		if next := state.Progress + 1; next < m.Target-1 {
			return Transition{Outcome: OutcomeProgress, Next: model.MissionState{Progress: next}}, nil
		}
	}

	return Transition{Outcome: OutcomeCompleted, Next: model.MissionState{Progress: m.Target, Completed: true}}, nil
}

// CompletionEvent is emitted after a mission transitions to completed.
type CompletionEvent struct {
	Mission *model.Mission
	At      time.Time
}

// CompletionEffect reports what a handler did in response to a completion.
type CompletionEffect struct {
	Synergy     int
	EventPoints int64
}

// CompletionHandler reacts to completed missions. Handlers are best-effort:
// their errors are logged and never undo the completion.
type CompletionHandler interface {
	OnMissionCompleted(ctx context.Context, ev CompletionEvent) (CompletionEffect, error)
}

// CompletionResult is returned by Complete.
type CompletionResult struct {
	Outcome      Outcome        `json:"outcome"`
	Mission      *model.Mission `json:"mission"`
	User         *model.User    `json:"user,omitempty"`
	LeveledUp    bool           `json:"leveledUp"`
	Rewards      model.Rewards  `json:"rewards"`
	SynergyCount int            `json:"synergyCount"`
	EventPoints  int64          `json:"eventPoints"`
}

// NewMission is the input of Create.
type NewMission struct {
	Title      string           `json:"title"`
	Frequency  model.Frequency  `json:"frequency"`
	Kind       model.Kind       `json:"kind"`
	Difficulty model.Difficulty `json:"difficulty"`
	Target     int              `json:"target"`
}

// MissionService implements the mission lifecycle.
type MissionService struct {
	missions MissionStore
	logs     DailyLogStore
	ledger   *Ledger
	clock    clock.Clock
	locks    *lock.KeyLock[string]
	handlers []CompletionHandler
}

// NewMissionService creates a new MissionService instance.
func NewMissionService(missions MissionStore, logs DailyLogStore, ledger *Ledger, clk clock.Clock) *MissionService {
	return &MissionService{
		missions: missions,
		logs:     logs,
		ledger:   ledger,
		clock:    clk,
		locks:    lock.New[string](),
	}
}

// Subscribe registers a handler for completion events. Not safe to call
// concurrently with Complete.
func (s *MissionService) Subscribe(h CompletionHandler) {
	s.handlers = append(s.handlers, h)
}

// Create validates the input and stores a mission with rewards derived from
// difficulty and frequency.
func (s *MissionService) Create(ctx context.Context, userID int64, in NewMission) (*model.Mission, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, Validationf("title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return nil, Validationf("title must be at most %d characters", maxTitleLength)
	}
	if !in.Frequency.IsValid() {
		return nil, Validationf("invalid frequency %q", in.Frequency)
	}
	if !in.Kind.IsValid() {
		return nil, Validationf("invalid kind %q", in.Kind)
	}
	if in.Target == 0 {
		in.Target = 1
	}
	if in.Target < 1 || in.Target > maxMissionTarget {
		return nil, Validationf("target must be between 1 and %d", maxMissionTarget)
	}

	rewards, err := progression.MissionRewards(in.Difficulty, in.Frequency)
	if err != nil {
		return nil, Validationf("%v", err)
	}

	now := s.clock.Now()
	m := &model.Mission{
		ID:             uuid.NewString(),
		UserID:         userID,
		Title:          title,
		Frequency:      in.Frequency,
		Kind:           in.Kind,
		Difficulty:     in.Difficulty,
		Target:         in.Target,
		XPReward:       rewards.XP,
		CoinReward:     rewards.Coins,
		GameCoinReward: rewards.GameCoins,
		LastUpdated:    now,
		CreatedAt:      now,
	}
	if err := s.missions.Create(ctx, m); err != nil {
		return nil, translate(err, "create mission")
	}

	log.Info().
		Int64("user_id", userID).
		Str("mission_id", m.ID).
		Str("frequency", string(m.Frequency)).
		Str("kind", string(m.Kind)).
		Msg("mission created")
	return m, nil
}

// List returns the user's missions, newest first.
func (s *MissionService) List(ctx context.Context, userID int64) ([]*model.Mission, error) {
	missions, err := s.missions.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "list missions")
	}
	if missions == nil {
		missions = []*model.Mission{}
	}
	return missions, nil
}

// Complete records one completion step for the mission.
func (s *MissionService) Complete(ctx context.Context, missionID string, requesterID int64) (*CompletionResult, error) {
	if _, err := uuid.Parse(missionID); err != nil {
		return nil, ErrMissionNotFound
	}

	var result *CompletionResult
	err := s.locks.WithLockContext(ctx, missionID, missionLockWait, func() error {
		var err error
		result, err = s.complete(ctx, missionID, requesterID)
		return err
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, ErrMissionChanged
	}
	if err != nil {
		return nil, err
	}

	metrics.RecordMissionOutcome(string(result.Outcome))
	return result, nil
}

func (s *MissionService) complete(ctx context.Context, missionID string, requesterID int64) (*CompletionResult, error) {
	m, err := s.owned(ctx, missionID, requesterID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tr, err := NextTransition(m, now, s.clock.Location())
	if err != nil {
		return nil, err
	}
	if tr.Outcome == OutcomeAlreadyCompleted {
		return &CompletionResult{Outcome: tr.Outcome, Mission: m}, nil
	}

	prev, prevUpdated := m.State(), m.LastUpdated
	swapped, err := s.missions.CompareAndSwap(ctx, m.ID, prev, tr.Next, now)
	if err != nil {
		return nil, translate(err, "update mission")
	}
	if !swapped {
		return nil, ErrMissionChanged
	}
	m.Progress, m.Completed, m.LastUpdated = tr.Next.Progress, tr.Next.Completed, now

	if tr.Outcome == OutcomeProgress {
		return &CompletionResult{Outcome: OutcomeProgress, Mission: m}, nil
	}

	reward, err := s.ledger.AddRewards(ctx, m.UserID, m.Rewards())
	if err != nil {
		s.revert(ctx, m, tr.Next, prev, prevUpdated)
		return nil, err
	}

	s.recordCompletion(ctx, m, now)
	effect := s.emit(ctx, CompletionEvent{Mission: m, At: now})

	log.Info().
		Int64("user_id", m.UserID).
		Str("mission_id", m.ID).
		Int("synergy", effect.Synergy).
		Bool("leveled_up", reward.LeveledUp).
		Msg("mission completed")

	return &CompletionResult{
		Outcome:      OutcomeCompleted,
		Mission:      m,
		User:         reward.User,
		LeveledUp:    reward.LeveledUp,
		Rewards:      reward.Rewards,
		SynergyCount: effect.Synergy,
		EventPoints:  effect.EventPoints,
	}, nil
}

// revert puts the mission back to its pre-completion state so the caller can
// retry after a failed reward grant.
func (s *MissionService) revert(ctx context.Context, m *model.Mission, from, to model.MissionState, at time.Time) {
	swapped, err := s.missions.CompareAndSwap(ctx, m.ID, from, to, at)
	if err == nil && swapped {
		m.Progress, m.Completed, m.LastUpdated = to.Progress, to.Completed, at
		return
	}
	log.Error().Err(err).Str("mission_id", m.ID).Bool("swapped", swapped).Msg("failed to revert mission after reward failure")
}

// recordCompletion appends the reward snapshot to today's daily log.
func (s *MissionService) recordCompletion(ctx context.Context, m *model.Mission, now time.Time) {
	entry := repository.LogEntry{
		Snapshots: []model.MissionSnapshot{{
			Title:      m.Title,
			Frequency:  m.Frequency,
			Difficulty: m.Difficulty,
			Kind:       m.Kind,
			XP:         m.XPReward,
			Coins:      m.CoinReward,
			GameCoins:  m.GameCoinReward,
			At:         now,
		}},
		Coins: m.CoinReward,
		XP:    m.XPReward,
	}
	if m.Frequency == model.FrequencyDaily {
		entry.Completed = 1
	}

	if err := s.logs.Append(ctx, m.UserID, progression.DateKey(now), entry); err != nil {
		log.Error().Err(err).Int64("user_id", m.UserID).Str("mission_id", m.ID).Msg("failed to record completion in daily log")
	}
}

func (s *MissionService) emit(ctx context.Context, ev CompletionEvent) CompletionEffect {
	var total CompletionEffect
	for _, h := range s.handlers {
		effect, err := h.OnMissionCompleted(ctx, ev)
		if err != nil {
			log.Warn().Err(err).Str("mission_id", ev.Mission.ID).Msg("completion handler failed")
		}
		total.Synergy += effect.Synergy
		total.EventPoints += effect.EventPoints
	}
	return total
}

// IncrementProgress adds one step without rewards. The step that would reach
// the completion boundary must go through Complete instead.
func (s *MissionService) IncrementProgress(ctx context.Context, missionID string, requesterID int64) (*model.Mission, error) {
	if _, err := uuid.Parse(missionID); err != nil {
		return nil, ErrMissionNotFound
	}

	var out *model.Mission
	err := s.locks.WithLockContext(ctx, missionID, missionLockWait, func() error {
		m, err := s.owned(ctx, missionID, requesterID)
		if err != nil {
			return err
		}
		if m.Completed {
			return ErrMissionAlreadyCompleted
		}
		next := model.MissionState{Progress: m.Progress + 1}
		if next.Progress >= m.Target-1 {
			return ErrFinalStepNeedsComplete
		}

		now := s.clock.Now()
		swapped, err := s.missions.CompareAndSwap(ctx, m.ID, m.State(), next, now)
		if err != nil {
			return translate(err, "increment progress")
		}
		if !swapped {
			return ErrMissionChanged
		}
		m.Progress, m.LastUpdated = next.Progress, now
		out = m
		return nil
	})
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, ErrMissionChanged
	}
	return out, err
}

// Delete removes a mission owned by requester.
func (s *MissionService) Delete(ctx context.Context, missionID string, requesterID int64) error {
	if _, err := uuid.Parse(missionID); err != nil {
		return ErrMissionNotFound
	}
	m, err := s.owned(ctx, missionID, requesterID)
	if err != nil {
		return err
	}
	if err := s.missions.Delete(ctx, m.ID); err != nil {
		return translate(err, "delete mission")
	}
	log.Info().Int64("user_id", requesterID).Str("mission_id", m.ID).Msg("mission deleted")
	return nil
}

func (s *MissionService) owned(ctx context.Context, missionID string, requesterID int64) (*model.Mission, error) {
	m, err := s.missions.GetByID(ctx, missionID)
	if err != nil {
		return nil, translate(err, "get mission")
	}
	if m.UserID != requesterID {
		return nil, ErrNotMissionOwner
	}
	return m, nil
}
