// Package handler provides Telegram bot command handlers.
package handler

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"habit-quest/internal/service"
)

const divider = "━━━━━━━━━━━━━━━"

// displayName picks the Telegram username, falling back to the first name.
func displayName(u *tele.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.FirstName
}

// replyError answers with the business message of err. Internal failures
// are logged and replaced with fallback.
func replyError(c tele.Context, err error, fallback string) error {
	if service.KindOf(err) == service.KindInternal {
		event := log.Error().Err(err).Str("command", c.Text())
		if sender := c.Sender(); sender != nil {
			event = event.Int64("user_id", sender.ID)
		}
		event.Msg("Command failed")
		return c.Reply("❌ " + fallback)
	}
	return c.Reply("❌ " + service.PublicMessage(err))
}

func usage(c tele.Context, format string) error {
	return c.Reply("Usage: " + format)
}

func joinLines(lines ...string) string {
	return strings.Join(lines, "\n")
}

func signed(n int64) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}
