package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"

	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/progression"
)

// MilestoneView is one step of the personal event track as seen by its owner.
type MilestoneView struct {
	Points  int64         `json:"points"`
	Reward  model.Rewards `json:"reward"`
	Reached bool          `json:"reached"`
	Claimed bool          `json:"claimed"`
}

// EventTrackView is the user's progress for the current ISO week.
type EventTrackView struct {
	PeriodID   string          `json:"periodId"`
	Points     int64           `json:"points"`
	Milestones []MilestoneView `json:"milestones"`
}

// EventTrack is the personal weekly points track fed by mission completions.
type EventTrack struct {
	progress EventProgressStore
	ledger   *Ledger
	clock    clock.Clock
}

// NewEventTrack creates a new EventTrack.
func NewEventTrack(progress EventProgressStore, ledger *Ledger, clk clock.Clock) *EventTrack {
	return &EventTrack{progress: progress, ledger: ledger, clock: clk}
}

// OnMissionCompleted implements CompletionHandler.
func (t *EventTrack) OnMissionCompleted(ctx context.Context, ev CompletionEvent) (CompletionEffect, error) {
	points := progression.EventPoints(ev.Mission.Difficulty)
	if points == 0 {
		return CompletionEffect{}, nil
	}
	if _, err := t.progress.AddPoints(ctx, ev.Mission.UserID, progression.PeriodID(ev.At), points); err != nil {
		return CompletionEffect{}, fmt.Errorf("add event points: %w", err)
	}
	return CompletionEffect{EventPoints: points}, nil
}

// Progress returns the user's track for the current period.
func (t *EventTrack) Progress(ctx context.Context, userID int64) (*EventTrackView, error) {
	periodID := progression.PeriodID(t.clock.Now())
	p, err := t.progress.Get(ctx, userID, periodID)
	if err != nil {
		return nil, translate(err, "get event progress")
	}

	view := &EventTrackView{PeriodID: periodID, Points: p.Points}
	for _, m := range progression.Milestones() {
		view.Milestones = append(view.Milestones, MilestoneView{
			Points:  m.Points,
			Reward:  m.Reward,
			Reached: p.Points >= m.Points,
			Claimed: slices.Contains(p.ClaimedRewards, int(m.Points)),
		})
	}
	return view, nil
}

// ClaimMilestone grants a reached milestone once per period.
func (t *EventTrack) ClaimMilestone(ctx context.Context, userID int64, points int64) (*RewardResult, error) {
	milestone, ok := progression.MilestoneFor(points)
	if !ok {
		return nil, ErrInvalidMilestone
	}

	periodID := progression.PeriodID(t.clock.Now())
	marked, err := t.progress.MarkClaimed(ctx, userID, periodID, int(milestone.Points), milestone.Points)
	if err != nil {
		return nil, translate(err, "claim milestone")
	}
	if !marked {
		p, err := t.progress.Get(ctx, userID, periodID)
		if err != nil {
			return nil, translate(err, "get event progress")
		}
		if slices.Contains(p.ClaimedRewards, int(milestone.Points)) {
			return nil, ErrAlreadyClaimed
		}
		return nil, ErrMilestoneLocked
	}

	result, err := t.ledger.AddRewards(ctx, userID, milestone.Reward)
	if err != nil {
		if undoErr := t.progress.UnmarkClaimed(ctx, userID, periodID, int(milestone.Points)); undoErr != nil {
			err = errors.Join(err, undoErr)
		}
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Str("period_id", periodID).
		Int64("milestone", milestone.Points).
		Msg("event milestone claimed")
	return result, nil
}
