// Package bot wires the Telegram front end to the habit-quest services.
package bot

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"habit-quest/internal/config"
	"habit-quest/internal/handler"
	"habit-quest/internal/service"
)

// Bot wraps the telebot instance with application dependencies.
type Bot struct {
	bot     *tele.Bot
	cfg     *config.Config
	private *PrivateUsers

	accountHandler *handler.AccountHandler
	missionHandler *handler.MissionHandler
	clanHandler    *handler.ClanHandler
	adminHandler   *handler.AdminHandler
}

// Dependencies holds all the dependencies needed by the bot handlers.
type Dependencies struct {
	Config      *config.Config
	Accounts    *service.AccountService
	Missions    *service.MissionService
	Clans       *service.ClanService
	Weekly      *service.WeeklyEvents
	Track       *service.EventTrack
	Maintenance *service.Maintenance
}

// New creates a new Bot instance with the given dependencies.
func New(deps *Dependencies) (*Bot, error) {
	if deps.Config.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	pref := tele.Settings{
		Token:  deps.Config.Bot.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c tele.Context) {
			log.Error().Err(err).Msg("Telegram handler error")
		},
	}

	teleBot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:            teleBot,
		cfg:            deps.Config,
		private:        NewPrivateUsers(),
		accountHandler: handler.NewAccountHandler(deps.Accounts),
		missionHandler: handler.NewMissionHandler(deps.Accounts, deps.Missions),
		clanHandler:    handler.NewClanHandler(deps.Accounts, deps.Clans, deps.Weekly, deps.Track),
		adminHandler:   handler.NewAdminHandler(deps.Maintenance),
	}

	b.registerMiddleware()
	b.registerHandlers()

	return b, nil
}

func (b *Bot) registerMiddleware() {
	b.bot.Use(RecoveryMiddleware())
	b.bot.Use(WhitelistMiddleware(b.cfg, b.private))
	b.bot.Use(LoggingMiddleware())
}

func (b *Bot) registerHandlers() {
	// Account
	b.bot.Handle("/start", b.accountHandler.HandleStart)
	b.bot.Handle("/me", b.accountHandler.HandleMe)
	b.bot.Handle("/log", b.accountHandler.HandleLog)
	b.bot.Handle("/workout", b.accountHandler.HandleWorkout)
	b.bot.Handle("/top", b.accountHandler.HandleTop)

	// Missions
	b.bot.Handle("/missions", b.missionHandler.HandleList)
	b.bot.Handle("/add", b.missionHandler.HandleAdd)
	b.bot.Handle("/done", b.missionHandler.HandleDone)
	b.bot.Handle("/del", b.missionHandler.HandleDelete)

	// Clans and events
	b.bot.Handle("/clan", b.clanHandler.HandleClan)
	b.bot.Handle("/clans", b.clanHandler.HandleClans)
	b.bot.Handle("/clan_create", b.clanHandler.HandleCreate)
	b.bot.Handle("/clan_join", b.clanHandler.HandleJoin)
	b.bot.Handle("/clan_leave", b.clanHandler.HandleLeave)
	b.bot.Handle("/claim", b.clanHandler.HandleClaim)
	b.bot.Handle("/event", b.clanHandler.HandleEvent)

	adminGroup := b.bot.Group()
	adminGroup.Use(AdminMiddleware(b.cfg))
	adminGroup.Handle("/maintenance", b.adminHandler.HandleMaintenance)
}

// Start polls for updates until Stop is called.
func (b *Bot) Start() {
	log.Info().Str("bot", b.bot.Me.Username).Msg("Starting bot...")
	b.bot.Start()
}

// Stop stops the bot gracefully.
func (b *Bot) Stop() {
	log.Info().Msg("Stopping bot...")
	b.bot.Stop()
}
