package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"habit-quest/internal/service"
)

// AdminHandler handles operator commands.
type AdminHandler struct {
	maintenance *service.Maintenance
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(maintenance *service.Maintenance) *AdminHandler {
	return &AdminHandler{maintenance: maintenance}
}

// HandleMaintenance handles /maintenance [runs]. It runs the nightly job
// now, or lists recent runs.
func (h *AdminHandler) HandleMaintenance(c tele.Context) error {
	ctx := context.Background()
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	if args := c.Args(); len(args) == 1 && args[0] == "runs" {
		runs, err := h.maintenance.LastRuns(ctx, 5)
		if err != nil {
			return replyError(c, err, "Could not list maintenance runs")
		}
		if len(runs) == 0 {
			return c.Reply("🛠 No maintenance runs yet")
		}
		lines := []string{"🛠 Recent runs", divider}
		for _, r := range runs {
			lines = append(lines, fmt.Sprintf("%s %s: %d punished, %d reset, %d deleted",
				r.RunDate, r.Status, r.PunishedUsers, r.HabitsReset, r.TemporalsGone))
		}
		return c.Reply(joinLines(lines...))
	}

	log.Info().
		Int64("admin_id", sender.ID).
		Str("operation", "maintenance").
		Msg("Admin operation executed")

	run, err := h.maintenance.Run(ctx, service.TriggerBot)
	if errors.Is(err, service.ErrMaintenanceAlreadyRan) {
		return c.Reply("⏭ " + service.PublicMessage(err))
	}
	if err != nil {
		return replyError(c, err, "Maintenance failed, check the logs")
	}
	return c.Reply(fmt.Sprintf("🛠 Maintenance %s for %s: %d punished, %d habits reset, %d temporal missions deleted",
		run.Status, run.RunDate, run.PunishedUsers, run.HabitsReset, run.TemporalsGone))
}
