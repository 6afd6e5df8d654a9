package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"habit-quest/internal/metrics"
	"habit-quest/internal/model"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/progression"
)

// MemberContribution is a clan member with their share of the active event.
type MemberContribution struct {
	model.ClanMember
	WeeklyContribution int64 `json:"weeklyContribution"`
}

// TierView is one event tier as seen by the requesting member.
type TierView struct {
	Level   int           `json:"level"`
	Target  int64         `json:"target"`
	Reward  model.Rewards `json:"reward"`
	Reached bool          `json:"reached"`
	Claimed bool          `json:"claimed"`
}

// EventView is the active weekly event of a clan.
type EventView struct {
	Type      model.EventType    `json:"type"`
	Name      string             `json:"name"`
	Unit      string             `json:"unit"`
	StartDate time.Time          `json:"startDate"`
	EndDate   time.Time          `json:"endDate"`
	Goal      int64              `json:"goal"`
	Total     int64              `json:"total"`
	Tiers     []TierView         `json:"tiers"`
	Claims    []model.EventClaim `json:"claims"`
}

// ClanView is the response of GetMyClan.
type ClanView struct {
	Clan    *model.Clan          `json:"clan"`
	Members []MemberContribution `json:"members"`
	Event   EventView            `json:"event"`
}

// WeeklyEvents computes rotating clan events and grants tier rewards.
type WeeklyEvents struct {
	clans    ClanStore
	activity ActivityStore
	ledger   *Ledger
	events   *progression.Registry
	clock    clock.Clock
}

// NewWeeklyEvents creates a new WeeklyEvents engine.
func NewWeeklyEvents(clans ClanStore, activity ActivityStore, ledger *Ledger, events *progression.Registry, clk clock.Clock) *WeeklyEvents {
	return &WeeklyEvents{clans: clans, activity: activity, ledger: ledger, events: events, clock: clk}
}

// CurrentWeekStart is the start of the event period containing now.
func (w *WeeklyEvents) CurrentWeekStart() time.Time {
	return progression.WeekStart(w.clock.Now())
}

// GetMyClan loads the user's clan, rolling its event window over when the
// stored period is stale, and ranks members by weekly contribution.
func (w *WeeklyEvents) GetMyClan(ctx context.Context, userID int64) (*ClanView, error) {
	member, err := w.clans.Membership(ctx, userID)
	if err != nil {
		return nil, translate(err, "get membership")
	}
	clan, err := w.clans.GetByID(ctx, member.ClanID)
	if err != nil {
		return nil, translate(err, "get clan")
	}

	weekStart := w.CurrentWeekStart()
	clan, err = w.rollover(ctx, clan, weekStart)
	if err != nil {
		return nil, err
	}

	def, ok := w.events.Get(clan.WeeklyEvent.Type)
	if !ok {
		return nil, fmt.Errorf("get event: unknown event type %q", clan.WeeklyEvent.Type)
	}

	members, err := w.clans.Members(ctx, clan.ID)
	if err != nil {
		return nil, translate(err, "list members")
	}
	contributions, err := w.activity.Contributions(ctx, clan.ID, def.Type, weekStart, progression.DateKey(weekStart))
	if err != nil {
		return nil, translate(err, "aggregate contributions")
	}
	claims, err := w.clans.Claims(ctx, clan.ID, weekStart)
	if err != nil {
		return nil, translate(err, "list claims")
	}
	clan.WeeklyEvent.Claims = claims

	ranked := make([]MemberContribution, 0, len(members))
	var total int64
	for _, m := range members {
		c := contributions[m.UserID]
		total += c
		ranked = append(ranked, MemberContribution{ClanMember: *m, WeeklyContribution: c})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeeklyContribution > ranked[j].WeeklyContribution
	})

	return &ClanView{
		Clan:    clan,
		Members: ranked,
		Event:   w.eventView(def, weekStart, total, claims, userID),
	}, nil
}

// rollover replaces a stale event window with the current one. Concurrent
// callers race on a compare-and-set of the stored start date; the loser
// re-reads the winner's state.
func (w *WeeklyEvents) rollover(ctx context.Context, clan *model.Clan, weekStart time.Time) (*model.Clan, error) {
	stored := clan.WeeklyEvent.StartDate
	if !stored.IsZero() && stored.Equal(weekStart) {
		return clan, nil
	}

	var prev *time.Time
	if !stored.IsZero() {
		prev = &stored
	}
	eventType := progression.EventTypeFor(weekStart)

	swapped, err := w.clans.RolloverEvent(ctx, clan.ID, prev, weekStart, eventType)
	if err != nil {
		return nil, translate(err, "roll over event")
	}
	if swapped {
		log.Info().
			Str("clan_id", clan.ID).
			Time("week_start", weekStart).
			Str("event_type", string(eventType)).
			Msg("clan event rolled over")
		clan.WeeklyEvent = model.WeeklyEvent{StartDate: weekStart, Type: eventType, Claims: []model.EventClaim{}}
		return clan, nil
	}

	fresh, err := w.clans.GetByID(ctx, clan.ID)
	if err != nil {
		return nil, translate(err, "reload clan")
	}
	return fresh, nil
}

func (w *WeeklyEvents) eventView(def progression.EventDefinition, weekStart time.Time, total int64, claims []model.EventClaim, userID int64) EventView {
	view := EventView{
		Type:      def.Type,
		Name:      def.Name,
		Unit:      def.Unit,
		StartDate: weekStart,
		EndDate:   progression.WeekEnd(weekStart),
		Goal:      def.Goal,
		Total:     total,
		Claims:    claims,
	}
	for _, tier := range progression.Tiers() {
		target := tier.Target(def.Goal)
		view.Tiers = append(view.Tiers, TierView{
			Level:   tier.Level,
			Target:  target,
			Reward:  tier.Reward,
			Reached: total >= target,
			Claimed: hasClaim(claims, userID, tier.Level),
		})
	}
	return view
}

// ClaimEventReward grants tier's reward to the user if their clan's total
// for the current period has reached the tier target. Each (user, tier) can
// be claimed once per period.
func (w *WeeklyEvents) ClaimEventReward(ctx context.Context, userID int64, tierLevel int) (*RewardResult, error) {
	result, err := w.claim(ctx, userID, tierLevel)
	status := "ok"
	if err != nil {
		status = KindOf(err).String()
	}
	metrics.RecordEventClaim(tierLevel, status)
	return result, err
}

func (w *WeeklyEvents) claim(ctx context.Context, userID int64, tierLevel int) (*RewardResult, error) {
	tier, ok := progression.TierFor(tierLevel)
	if !ok {
		return nil, ErrInvalidTier
	}

	member, err := w.clans.Membership(ctx, userID)
	if err != nil {
		return nil, translate(err, "get membership")
	}
	clan, err := w.clans.GetByID(ctx, member.ClanID)
	if err != nil {
		return nil, translate(err, "get clan")
	}

	now := w.clock.Now()
	weekStart := progression.WeekStart(now)
	if !clan.WeeklyEvent.StartDate.Equal(weekStart) {
		return nil, ErrEventReset
	}

	claims, err := w.clans.Claims(ctx, clan.ID, weekStart)
	if err != nil {
		return nil, translate(err, "list claims")
	}
	if hasClaim(claims, userID, tier.Level) {
		return nil, ErrAlreadyClaimed
	}

	def, ok := w.events.Get(clan.WeeklyEvent.Type)
	if !ok {
		return nil, fmt.Errorf("get event: unknown event type %q", clan.WeeklyEvent.Type)
	}
	contributions, err := w.activity.Contributions(ctx, clan.ID, def.Type, weekStart, progression.DateKey(weekStart))
	if err != nil {
		return nil, translate(err, "aggregate contributions")
	}
	var total int64
	for _, c := range contributions {
		total += c
	}
	if total < tier.Target(def.Goal) {
		return nil, ErrGoalNotReached
	}

	claim := model.EventClaim{
		ClanID:      clan.ID,
		UserID:      userID,
		Tier:        tier.Level,
		PeriodStart: weekStart,
		ClaimedAt:   now,
	}
	if err := w.clans.InsertClaim(ctx, claim); err != nil {
		return nil, translate(err, "record claim")
	}

	result, err := w.ledger.AddRewards(ctx, userID, tier.Reward)
	if err != nil {
		if undoErr := w.clans.DeleteClaim(ctx, claim); undoErr != nil {
			log.Error().Err(undoErr).Int64("user_id", userID).Int("tier", tier.Level).Msg("failed to release claim after reward failure")
		}
		return nil, err
	}

	log.Info().
		Int64("user_id", userID).
		Str("clan_id", clan.ID).
		Int("tier", tier.Level).
		Int64("total", total).
		Msg("event reward claimed")
	return result, nil
}

func hasClaim(claims []model.EventClaim, userID int64, tier int) bool {
	return slices.ContainsFunc(claims, func(c model.EventClaim) bool {
		return c.UserID == userID && c.Tier == tier
	})
}
