package handler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"habit-quest/internal/model"
	"habit-quest/internal/service"
)

const addUsage = "/add <daily|weekly|monthly|yearly> <easy|medium|hard|epic> [temporal] [xN] <title>"

var errBadMissionRef = errors.New("unknown mission number")

// MissionHandler handles mission commands. Missions are addressed by their
// position in /missions or by id.
type MissionHandler struct {
	accounts *service.AccountService
	missions *service.MissionService
}

// NewMissionHandler creates a new MissionHandler.
func NewMissionHandler(accounts *service.AccountService, missions *service.MissionService) *MissionHandler {
	return &MissionHandler{accounts: accounts, missions: missions}
}

// HandleList handles /missions.
func (h *MissionHandler) HandleList(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	missions, err := h.missions.List(context.Background(), sender.ID)
	if err != nil {
		return replyError(c, err, "Could not load your missions")
	}
	if len(missions) == 0 {
		return c.Reply("📋 No missions yet. Try " + addUsage)
	}
	return c.Reply(formatMissions(missions))
}

// HandleAdd handles /add.
func (h *MissionHandler) HandleAdd(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	in, err := parseMissionArgs(c.Args())
	if err != nil {
		return usage(c, addUsage)
	}
	if _, _, err := h.accounts.EnsureUser(ctx, sender.ID, displayName(sender)); err != nil {
		return replyError(c, err, "Could not create the mission")
	}

	m, err := h.missions.Create(ctx, sender.ID, in)
	if err != nil {
		return replyError(c, err, "Could not create the mission")
	}
	return c.Reply(fmt.Sprintf("📝 %s (%s %s, target %d): +%d XP, +%d coins",
		m.Title, m.Frequency, m.Difficulty, m.Target, m.XPReward, m.CoinReward))
}

// HandleDone handles /done <n>.
func (h *MissionHandler) HandleDone(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	m, err := h.resolve(ctx, sender.ID, c.Args())
	if err != nil {
		return h.replyResolveError(c, err, "/done <n>")
	}
	res, err := h.missions.Complete(ctx, m.ID, sender.ID)
	if err != nil {
		return replyError(c, err, "Could not complete the mission")
	}
	return c.Reply(formatCompletion(res))
}

// HandleDelete handles /del <n>.
func (h *MissionHandler) HandleDelete(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	m, err := h.resolve(ctx, sender.ID, c.Args())
	if err != nil {
		return h.replyResolveError(c, err, "/del <n>")
	}
	if err := h.missions.Delete(ctx, m.ID, sender.ID); err != nil {
		return replyError(c, err, "Could not delete the mission")
	}
	return c.Reply("🗑 Deleted " + m.Title)
}

func (h *MissionHandler) resolve(ctx context.Context, userID int64, args []string) (*model.Mission, error) {
	if len(args) != 1 {
		return nil, errBadMissionRef
	}
	missions, err := h.missions.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return pickMission(missions, args[0])
}

func (h *MissionHandler) replyResolveError(c tele.Context, err error, format string) error {
	if errors.Is(err, errBadMissionRef) {
		return usage(c, format+" (numbers from /missions)")
	}
	return replyError(c, err, "Could not load your missions")
}

// pickMission finds a mission by 1-based list position or id.
func pickMission(missions []*model.Mission, ref string) (*model.Mission, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(missions) {
			return nil, errBadMissionRef
		}
		return missions[n-1], nil
	}
	for _, m := range missions {
		if m.ID == ref {
			return m, nil
		}
	}
	return nil, errBadMissionRef
}

// parseMissionArgs reads frequency and difficulty, then the optional kind
// and xN target flags, then the title.
func parseMissionArgs(args []string) (service.NewMission, error) {
	in := service.NewMission{Kind: model.KindHabit, Target: 1}
	if len(args) < 3 {
		return in, errors.New("missing arguments")
	}

	in.Frequency = model.Frequency(strings.ToLower(args[0]))
	in.Difficulty = model.Difficulty(strings.ToLower(args[1]))
	if !in.Frequency.IsValid() || !in.Difficulty.IsValid() {
		return in, errors.New("invalid frequency or difficulty")
	}

	rest := args[2:]
	for len(rest) > 0 {
		tok := strings.ToLower(rest[0])
		if kind := model.Kind(tok); kind.IsValid() {
			in.Kind = kind
		} else if n, ok := parseTarget(tok); ok {
			in.Target = n
		} else {
			break
		}
		rest = rest[1:]
	}

	in.Title = strings.Join(rest, " ")
	if in.Title == "" {
		return in, errors.New("missing title")
	}
	return in, nil
}

func parseTarget(tok string) (int, bool) {
	if !strings.HasPrefix(tok, "x") {
		return 0, false
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func formatMissions(missions []*model.Mission) string {
	lines := []string{"📋 Missions", divider}
	for i, m := range missions {
		mark := "⬜"
		if m.Completed {
			mark = "✅"
		}
		progress := ""
		if m.Target > 1 {
			progress = fmt.Sprintf(" [%d/%d]", m.Progress, m.Target)
		}
		kind := ""
		if m.Kind == model.KindTemporal {
			kind = " ⏳"
		}
		lines = append(lines, fmt.Sprintf("%d. %s %s%s (%s, %s)%s", i+1, mark, m.Title, progress, m.Frequency, m.Difficulty, kind))
	}
	return joinLines(lines...)
}

func formatCompletion(res *service.CompletionResult) string {
	m := res.Mission
	switch res.Outcome {
	case service.OutcomeAlreadyCompleted:
		return fmt.Sprintf("✔️ %s is already done for this period", m.Title)
	case service.OutcomeProgress:
		return fmt.Sprintf("➕ %s: %d/%d", m.Title, m.Progress, m.Target)
	}

	lines := []string{fmt.Sprintf("🎯 %s completed! +%d XP, +%d coins", m.Title, res.Rewards.XP, res.Rewards.Coins)}
	if res.LeveledUp && res.User != nil {
		lines = append(lines, fmt.Sprintf("⬆️ Level up! You are now level %d", res.User.Level))
	}
	if res.SynergyCount > 0 {
		lines = append(lines, fmt.Sprintf("🔗 Synergy advanced %d related mission(s)", res.SynergyCount))
	}
	if res.EventPoints > 0 {
		lines = append(lines, fmt.Sprintf("🎟 +%d event points", res.EventPoints))
	}
	return joinLines(lines...)
}
