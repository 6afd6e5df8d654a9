package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"habit-quest/internal/api"
	"habit-quest/internal/bot"
	"habit-quest/internal/config"
	"habit-quest/internal/metrics"
	"habit-quest/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the Telegram bot and the maintenance scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations before starting")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, migrate bool) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := openDB(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer pool.Close()
	metrics.RegisterPool(pool.Stats)

	a, err := newApp(cfg, pool)
	if err != nil {
		return err
	}

	var sched *scheduler.Scheduler
	if cfg.Maintenance.Enabled {
		if sched, err = newScheduler(cfg, a); err != nil {
			return err
		}
	} else {
		log.Warn().Msg("Maintenance scheduler disabled")
	}

	var telegramBot *bot.Bot
	if cfg.Bot.Enabled {
		telegramBot, err = bot.New(&bot.Dependencies{
			Config:      cfg,
			Accounts:    a.accounts,
			Missions:    a.missions,
			Clans:       a.clans,
			Weekly:      a.weekly,
			Track:       a.track,
			Maintenance: a.maintenance,
		})
		if err != nil {
			return err
		}
	}

	srv := api.NewServer(cfg.HTTP, api.NewRouter(api.Deps{
		Accounts:          a.accounts,
		Missions:          a.missions,
		Clans:             a.clans,
		Weekly:            a.weekly,
		Track:             a.track,
		Maintenance:       a.maintenance,
		Health:            pool,
		MaintenanceSecret: cfg.Maintenance.Secret,
		RateLimit:         cfg.HTTP.RateLimit,
	}))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if sched != nil {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	if telegramBot != nil {
		g.Go(func() error {
			telegramBot.Start()
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			telegramBot.Stop()
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Shutdown complete")
	return err
}

func newScheduler(cfg *config.Config, a *app) (*scheduler.Scheduler, error) {
	loc, err := cfg.App.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(a.maintenance, cfg.Maintenance.Schedule, loc,
		scheduler.WithCatchUp(cfg.Maintenance.CatchUp))
}
