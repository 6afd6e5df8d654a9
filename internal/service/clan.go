package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/repository"
)

const (
	minClanNameLength  = 3
	maxClanNameLength  = 32
	maxDescription     = 280
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// NewClan is the input of ClanService.Create.
type NewClan struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	MinLevel    int    `json:"minLevel"`
}

// ClanPage is one page of clan search results.
type ClanPage struct {
	Clans  []*model.Clan `json:"clans"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ClanService handles clan membership.
type ClanService struct {
	clans      ClanStore
	clock      clock.Clock
	maxMembers int
}

// NewClanService creates a new ClanService instance.
func NewClanService(clans ClanStore, clk clock.Clock, maxMembers int) *ClanService {
	return &ClanService{clans: clans, clock: clk, maxMembers: maxMembers}
}

// Create founds a clan led by userID.
func (s *ClanService) Create(ctx context.Context, userID int64, in NewClan) (*model.Clan, error) {
	name := strings.TrimSpace(in.Name)
	if n := utf8.RuneCountInString(name); n < minClanNameLength || n > maxClanNameLength {
		return nil, Validationf("clan name must be %d to %d characters", minClanNameLength, maxClanNameLength)
	}
	desc := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(desc) > maxDescription {
		return nil, Validationf("description must be at most %d characters", maxDescription)
	}
	if in.MinLevel == 0 {
		in.MinLevel = 1
	}
	if in.MinLevel < 1 {
		return nil, Validationf("minimum level must be positive")
	}

	clan, err := s.clans.Create(ctx, &model.Clan{
		ID:          uuid.NewString(),
		Name:        name,
		Description: desc,
		LeaderID:    userID,
		MinLevel:    in.MinLevel,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return nil, translate(err, "create clan")
	}

	log.Info().Int64("user_id", userID).Str("clan_id", clan.ID).Str("name", clan.Name).Msg("clan created")
	return clan, nil
}

// Get returns a clan by id.
func (s *ClanService) Get(ctx context.Context, clanID string) (*model.Clan, error) {
	if _, err := uuid.Parse(clanID); err != nil {
		return nil, ErrClanNotFound
	}
	clan, err := s.clans.GetByID(ctx, clanID)
	if err != nil {
		return nil, translate(err, "get clan")
	}
	return clan, nil
}

// Members lists the clan's members.
func (s *ClanService) Members(ctx context.Context, clanID string) ([]*model.ClanMember, error) {
	members, err := s.clans.Members(ctx, clanID)
	if err != nil {
		return nil, translate(err, "list members")
	}
	return members, nil
}

// Search ranks clans by total power, optionally filtered by name.
func (s *ClanService) Search(ctx context.Context, query string, limit, offset int) (*ClanPage, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	if offset < 0 {
		offset = 0
	}

	clans, err := s.clans.Search(ctx, strings.TrimSpace(query), limit, offset)
	if err != nil {
		return nil, translate(err, "search clans")
	}
	if clans == nil {
		clans = []*model.Clan{}
	}
	return &ClanPage{Clans: clans, Limit: limit, Offset: offset}, nil
}

// Join adds the user to a clan.
func (s *ClanService) Join(ctx context.Context, userID int64, clanID string) error {
	if _, err := uuid.Parse(clanID); err != nil {
		return ErrClanNotFound
	}
	if err := s.clans.Join(ctx, clanID, userID, s.maxMembers); err != nil {
		return translate(err, "join clan")
	}
	log.Info().Int64("user_id", userID).Str("clan_id", clanID).Msg("user joined clan")
	return nil
}

// Leave removes the user from their clan.
func (s *ClanService) Leave(ctx context.Context, userID int64) (*repository.LeaveResult, error) {
	res, err := s.clans.Leave(ctx, userID)
	if err != nil {
		return nil, translate(err, "leave clan")
	}

	event := log.Info().Int64("user_id", userID).Str("clan_id", res.ClanID)
	switch {
	case res.Dissolved:
		event.Msg("clan dissolved")
	case res.NewLeaderID != 0:
		event.Int64("new_leader_id", res.NewLeaderID).Msg("clan leader left, leadership passed on")
	default:
		event.Msg("user left clan")
	}
	return res, nil
}

// Kick removes target from the actor's clan.
func (s *ClanService) Kick(ctx context.Context, actorID, targetID int64) error {
	if actorID == targetID {
		return Validationf("use leave to exit your own clan")
	}
	if err := s.clans.Kick(ctx, actorID, targetID); err != nil {
		return translate(err, "kick member")
	}
	log.Info().Int64("user_id", actorID).Int64("target_id", targetID).Msg("member kicked")
	return nil
}

// SetRank changes a member's rank. Only the leader may do this.
func (s *ClanService) SetRank(ctx context.Context, actorID, targetID int64, rank int) error {
	if rank < model.RankMember || rank > model.RankLeader {
		return Validationf("rank must be between %d and %d", model.RankMember, model.RankLeader)
	}
	if actorID == targetID {
		return Validationf("cannot change your own rank")
	}
	if err := s.clans.SetRank(ctx, actorID, targetID, rank); err != nil {
		return translate(err, "set rank")
	}
	log.Info().Int64("user_id", actorID).Int64("target_id", targetID).Int("rank", rank).Msg("member rank changed")
	return nil
}
