package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"habit-quest/internal/config"
	"habit-quest/internal/pkg/clock"
	"habit-quest/internal/pkg/db"
	"habit-quest/internal/progression"
	"habit-quest/internal/repository"
	"habit-quest/internal/service"
)

type rootOptions struct {
	configDir string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "questd",
		Short:         "Habit-quest progression server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "config", "directory holding config.yaml")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newMaintenanceCmd(opts),
	)
	return cmd
}

// loadConfig reads the configuration and sets up the global logger.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configDir)
	if err != nil {
		return nil, err
	}
	if err := setupLogger(cfg.Log); err != nil {
		return nil, err
	}
	log.Info().Msg("Configuration loaded successfully")
	return cfg, nil
}

func setupLogger(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("invalid log.level %q: %w", cfg.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return nil
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	return nil
}

// app is the fully wired service graph.
type app struct {
	accounts    *service.AccountService
	missions    *service.MissionService
	clans       *service.ClanService
	weekly      *service.WeeklyEvents
	track       *service.EventTrack
	maintenance *service.Maintenance
}

func newApp(cfg *config.Config, pool *db.Pool) (*app, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	clk := clock.System(loc)

	users := repository.NewUserRepository(pool.Pool)
	missionRepo := repository.NewMissionRepository(pool.Pool)
	logs := repository.NewDailyLogRepository(pool.Pool)
	clanRepo := repository.NewClanRepository(pool.Pool)
	activity := repository.NewActivityRepository(pool.Pool)
	progress := repository.NewEventProgressRepository(pool.Pool)
	runs := repository.NewMaintenanceRepository(pool.Pool)

	ledger := service.NewLedger(users)
	track := service.NewEventTrack(progress, ledger, clk)
	missions := service.NewMissionService(missionRepo, logs, ledger, clk)
	missions.Subscribe(service.NewSynergy(missionRepo))
	missions.Subscribe(track)

	return &app{
		accounts:    service.NewAccountService(users, logs, activity, ledger, clk),
		missions:    missions,
		clans:       service.NewClanService(clanRepo, clk, cfg.Clan.MaxMembers),
		weekly:      service.NewWeeklyEvents(clanRepo, activity, ledger, progression.DefaultEvents, clk),
		track:       track,
		maintenance: service.NewMaintenance(missionRepo, users, logs, runs, clk),
	}, nil
}

// openDB connects to postgres and optionally applies migrations.
func openDB(ctx context.Context, cfg *config.Config, migrate bool) (*db.Pool, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, &cfg.Database, db.WithTimeZone(loc))
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if migrate {
		if err := db.Migrate(ctx, pool.Pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}
	return pool, nil
}
