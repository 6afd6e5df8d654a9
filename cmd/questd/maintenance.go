package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"habit-quest/internal/service"
)

func newMaintenanceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "Nightly maintenance job",
	}
	cmd.AddCommand(newMaintenanceRunCmd(opts), newMaintenanceRunsCmd(opts))
	return cmd
}

func newMaintenanceRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run today's maintenance once, unless it already ran",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			pool, err := openDB(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool)
			if err != nil {
				return err
			}
			run, err := a.maintenance.Run(cmd.Context(), service.TriggerCLI)
			if errors.Is(err, service.ErrMaintenanceAlreadyRan) {
				log.Info().Msg("Maintenance already ran today, nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			return printJSON(run)
		},
	}
}

func newMaintenanceRunsCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent maintenance runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			pool, err := openDB(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(cfg, pool)
			if err != nil {
				return err
			}
			runs, err := a.maintenance.LastRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(runs)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
