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

// AccountHandler handles profile, log and leaderboard commands.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// HandleStart handles /start. It creates the user on first contact.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	user, created, err := h.accounts.EnsureUser(ctx, sender.ID, displayName(sender))
	if err != nil {
		return replyError(c, err, "Could not create your account, try again later")
	}

	if created {
		return c.Reply(joinLines(
			fmt.Sprintf("🎉 Welcome @%s! Your quest begins at level %d.", user.Username, user.Level),
			"",
			"/add <frequency> <difficulty> [temporal] [xN] <title> - new mission",
			"/missions - list missions",
			"/done <n> - complete a mission",
			"/me - profile",
			"/log [date] - daily log",
			"/clans - browse clans",
			"/event - weekly event track",
		))
	}
	return c.Reply(fmt.Sprintf("👋 Welcome back @%s! Level %d, %d/%d XP.",
		user.Username, user.Level, user.CurrentXP, user.NextLevelXP))
}

// HandleMe handles /me.
func (h *AccountHandler) HandleMe(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if _, _, err := h.accounts.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return replyError(c, err, "Could not load your profile")
	}
	user, err := h.accounts.Profile(ctx, sender.ID)
	if err != nil {
		return replyError(c, err, "Could not load your profile")
	}
	return c.Reply(formatProfile(user))
}

// HandleLog handles /log [YYYY-MM-DD].
func (h *AccountHandler) HandleLog(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	date := ""
	if args := c.Args(); len(args) > 0 {
		date = args[0]
	}
	dl, err := h.accounts.DailyLog(context.Background(), sender.ID, date)
	if err != nil {
		return replyError(c, err, "Could not load the daily log")
	}
	return c.Reply(formatDailyLog(dl))
}

// HandleWorkout handles /workout <exercise> <weight> <reps>.
func (h *AccountHandler) HandleWorkout(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	args := c.Args()
	if len(args) < 3 {
		return usage(c, "/workout <exercise> <weight> <reps>")
	}
	weight, err := strconv.ParseInt(args[len(args)-2], 10, 64)
	if err != nil {
		return usage(c, "/workout <exercise> <weight> <reps>")
	}
	reps, err := strconv.Atoi(args[len(args)-1])
	if err != nil {
		return usage(c, "/workout <exercise> <weight> <reps>")
	}
	exercise := strings.Join(args[:len(args)-2], " ")

	set, err := h.accounts.LogWorkout(context.Background(), sender.ID, exercise, weight, reps)
	if err != nil {
		return replyError(c, err, "Could not log the workout")
	}
	return c.Reply(fmt.Sprintf("🏋️ %s: %d × %d = %d volume", set.Exercise, set.Weight, set.Reps, set.Weight*int64(set.Reps)))
}

// HandleTop handles /top.
func (h *AccountHandler) HandleTop(c tele.Context) error {
	users, err := h.accounts.TopUsers(context.Background(), 10)
	if err != nil {
		return replyError(c, err, "Could not load the leaderboard")
	}
	if len(users) == 0 {
		return c.Reply("📊 No players yet")
	}
	return c.Reply(formatTop(users))
}

func formatProfile(u *model.User) string {
	lines := []string{
		"📊 Profile",
		divider,
		fmt.Sprintf("👤 @%s", u.Username),
		fmt.Sprintf("⭐ Level %d (%d/%d XP)", u.Level, u.CurrentXP, u.NextLevelXP),
		fmt.Sprintf("❤️ HP %d/%d", u.HP, u.MaxHP),
		fmt.Sprintf("💰 %d coins, %d game coins", u.Coins, u.GameCoins),
	}
	if u.InClan() {
		lines = append(lines, fmt.Sprintf("🛡 Clan rank %d", u.ClanRank))
	}
	return joinLines(append(lines, divider)...)
}

func formatDailyLog(dl *model.DailyLog) string {
	lines := []string{
		fmt.Sprintf("📅 %s", dl.Date),
		divider,
		fmt.Sprintf("✅ Completed %d (daily missions: %d)", dl.MissionStats.Completed, dl.MissionStats.Total),
		fmt.Sprintf("⭐ XP %s  💰 Coins %s  ❤️ Lives %s", signed(dl.Gains.XP), signed(dl.Gains.Coins), signed(dl.Gains.Lives)),
	}
	if dl.Calories > 0 {
		lines = append(lines, fmt.Sprintf("🍎 %d kcal", dl.Calories))
	}
	for _, s := range dl.MissionStats.ListCompleted {
		if s.Failed {
			lines = append(lines, fmt.Sprintf("  ✗ %s (%s, -%d HP)", s.Title, s.Difficulty, s.HPLoss))
			continue
		}
		lines = append(lines, fmt.Sprintf("  ✓ %s (+%d XP)", s.Title, s.XP))
	}
	return joinLines(lines...)
}

func formatTop(users []*model.User) string {
	medals := []string{"🥇", "🥈", "🥉"}
	lines := []string{fmt.Sprintf("🏆 Top %d", len(users)), divider}
	for i, u := range users {
		rank := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		name := u.Username
		if name == "" {
			name = fmt.Sprintf("user%d", u.ID)
		}
		lines = append(lines, fmt.Sprintf("%s @%s: level %d (%d XP)", rank, name, u.Level, u.CurrentXP))
	}
	return joinLines(append(lines, divider)...)
}
