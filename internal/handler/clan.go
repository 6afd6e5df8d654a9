package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"habit-quest/internal/model"
	"habit-quest/internal/service"
)

// ClanHandler handles clan and event commands.
type ClanHandler struct {
	accounts *service.AccountService
	clans    *service.ClanService
	weekly   *service.WeeklyEvents
	track    *service.EventTrack
}

// NewClanHandler creates a new ClanHandler.
func NewClanHandler(accounts *service.AccountService, clans *service.ClanService, weekly *service.WeeklyEvents, track *service.EventTrack) *ClanHandler {
	return &ClanHandler{accounts: accounts, clans: clans, weekly: weekly, track: track}
}

// HandleClan handles /clan. Loading the clan rolls its weekly event over.
func (h *ClanHandler) HandleClan(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	view, err := h.weekly.GetMyClan(context.Background(), sender.ID)
	if err != nil {
		return replyError(c, err, "Could not load your clan")
	}
	return c.Reply(formatClanView(view))
}

// HandleClans handles /clans [query].
func (h *ClanHandler) HandleClans(c tele.Context) error {
	page, err := h.clans.Search(context.Background(), strings.Join(c.Args(), " "), 10, 0)
	if err != nil {
		return replyError(c, err, "Could not search clans")
	}
	if len(page.Clans) == 0 {
		return c.Reply("🛡 No clans found. Create one with /clan_create <name>")
	}

	lines := []string{"🛡 Clans", divider}
	for i, cl := range page.Clans {
		lines = append(lines, fmt.Sprintf("%d. %s ⚡%d (min level %d)\n   /clan_join %s", i+1, cl.Name, cl.TotalPower, cl.MinLevel, cl.ID))
	}
	return c.Reply(joinLines(lines...))
}

// HandleCreate handles /clan_create <name> [min_level].
func (h *ClanHandler) HandleCreate(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) == 0 {
		return usage(c, "/clan_create <name> [min_level]")
	}
	in := service.NewClan{MinLevel: 1}
	if len(args) > 1 {
		if n, err := strconv.Atoi(args[len(args)-1]); err == nil {
			in.MinLevel = n
			args = args[:len(args)-1]
		}
	}
	in.Name = strings.Join(args, " ")

	if _, _, err := h.accounts.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return replyError(c, err, "Could not create the clan")
	}
	clan, err := h.clans.Create(ctx, sender.ID, in)
	if err != nil {
		return replyError(c, err, "Could not create the clan")
	}
	return c.Reply(fmt.Sprintf("🛡 Clan %s founded. Share /clan_join %s", clan.Name, clan.ID))
}

// HandleJoin handles /clan_join <id>.
func (h *ClanHandler) HandleJoin(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return usage(c, "/clan_join <clan id>")
	}
	if _, _, err := h.accounts.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return replyError(c, err, "Could not join the clan")
	}
	if err := h.clans.Join(ctx, sender.ID, args[0]); err != nil {
		return replyError(c, err, "Could not join the clan")
	}
	return c.Reply("🤝 Welcome to the clan! Check /clan")
}

// HandleLeave handles /clan_leave.
func (h *ClanHandler) HandleLeave(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	res, err := h.clans.Leave(context.Background(), sender.ID)
	if err != nil {
		return replyError(c, err, "Could not leave the clan")
	}
	switch {
	case res.Dissolved:
		return c.Reply("👋 You were the last member. The clan is dissolved.")
	case res.NewLeaderID != 0:
		return c.Reply(fmt.Sprintf("👋 You left the clan. Leadership passed to %d.", res.NewLeaderID))
	default:
		return c.Reply("👋 You left the clan.")
	}
}

// HandleClaim handles /claim <tier>.
func (h *ClanHandler) HandleClaim(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) != 1 {
		return usage(c, "/claim <tier 1-5>")
	}
	tier, err := strconv.Atoi(args[0])
	if err != nil {
		return usage(c, "/claim <tier 1-5>")
	}

	res, err := h.weekly.ClaimEventReward(context.Background(), sender.ID, tier)
	if err != nil {
		return replyError(c, err, "Could not claim the reward")
	}
	return c.Reply(formatReward(fmt.Sprintf("Tier %d reward claimed", tier), res))
}

// HandleEvent handles /event [points]. With an argument it claims the
// milestone worth that many points.
func (h *ClanHandler) HandleEvent(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if args := c.Args(); len(args) == 1 {
		points, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return usage(c, "/event [milestone points]")
		}
		res, err := h.track.ClaimMilestone(ctx, sender.ID, points)
		if err != nil {
			return replyError(c, err, "Could not claim the milestone")
		}
		return c.Reply(formatReward(fmt.Sprintf("Milestone %d claimed", points), res))
	}

	view, err := h.track.Progress(ctx, sender.ID)
	if err != nil {
		return replyError(c, err, "Could not load the event track")
	}
	return c.Reply(formatEventTrack(view))
}

func formatClanView(v *service.ClanView) string {
	ev := v.Event
	lines := []string{
		fmt.Sprintf("🛡 %s ⚡%d", v.Clan.Name, v.Clan.TotalPower),
		divider,
		fmt.Sprintf("🏁 %s: %d/%d %s (until %s)", ev.Name, ev.Total, ev.Goal, ev.Unit, ev.EndDate.Format("Mon 02 Jan 15:04")),
	}
	for _, t := range ev.Tiers {
		mark := "🔒"
		switch {
		case t.Claimed:
			mark = "✅"
		case t.Reached:
			mark = "🎁"
		}
		lines = append(lines, fmt.Sprintf("  %s Tier %d: %d (+%d XP, +%d coins)", mark, t.Level, t.Target, t.Reward.XP, t.Reward.Coins))
	}
	lines = append(lines, divider)
	for _, m := range v.Members {
		lines = append(lines, fmt.Sprintf("%s @%s L%d: %d", rankIcon(m.Rank), m.Username, m.Level, m.WeeklyContribution))
	}
	return joinLines(lines...)
}

func rankIcon(rank int) string {
	switch rank {
	case model.RankLeader:
		return "👑"
	case model.RankOfficer:
		return "⚔️"
	default:
		return "🗡"
	}
}

func formatEventTrack(v *service.EventTrackView) string {
	lines := []string{fmt.Sprintf("🎟 Event track %s: %d points", v.PeriodID, v.Points), divider}
	for _, m := range v.Milestones {
		mark := "🔒"
		switch {
		case m.Claimed:
			mark = "✅"
		case m.Reached:
			mark = fmt.Sprintf("🎁 /event %d", m.Points)
		}
		lines = append(lines, fmt.Sprintf("%d pts: +%d XP, +%d coins %s", m.Points, m.Reward.XP, m.Reward.Coins, mark))
	}
	return joinLines(lines...)
}

func formatReward(title string, res *service.RewardResult) string {
	msg := fmt.Sprintf("🎁 %s: +%d XP, +%d coins", title, res.Rewards.XP, res.Rewards.Coins)
	if res.LeveledUp {
		msg += fmt.Sprintf("\n⬆️ Level up! You are now level %d", res.User.Level)
	}
	return msg
}
