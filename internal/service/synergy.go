package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"habit-quest/internal/metrics"
)

// Synergy advances the owner's other incomplete missions that share the
// completed mission's title by one step each.
type Synergy struct {
	missions MissionStore
}

// NewSynergy creates the synergy completion handler.
func NewSynergy(missions MissionStore) *Synergy {
	return &Synergy{missions: missions}
}

// OnMissionCompleted implements CompletionHandler. A failure on one mission
// does not stop the others.
func (s *Synergy) OnMissionCompleted(ctx context.Context, ev CompletionEvent) (CompletionEffect, error) {
	m := ev.Mission
	twins, err := s.missions.ListOpenByTitle(ctx, m.UserID, m.Title, m.ID)
	if err != nil {
		return CompletionEffect{}, fmt.Errorf("list synergy missions: %w", err)
	}

	advanced := 0
	for _, twin := range twins {
		updated, err := s.missions.Advance(ctx, twin.ID, ev.At)
		if err != nil {
			log.Warn().Err(err).Str("mission_id", twin.ID).Msg("synergy step failed")
			continue
		}
		if updated == nil {
			continue
		}
		advanced++
		if updated.Completed {
			log.Debug().Str("mission_id", updated.ID).Msg("mission completed by synergy")
		}
	}

	metrics.RecordSynergy(advanced)
	return CompletionEffect{Synergy: advanced}, nil
}
