package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	v1 "github.com/gosuda/fuelops/internal/api/v1"
	"github.com/gosuda/fuelops/internal/api/ws"
	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/server"
)

var serveFlags struct {
	listenAddress string
	noSchedule    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API and the archival scheduler",
	Long: `Start the HTTP admin API (/api/v1/archival/*, /healthz, /metrics,
/ws/archival) and the cron trigger that runs archival on FUELOPS_ARCHIVAL_SCHEDULE.

Examples:
  # Serve with the monthly schedule
  fuelops serve

  # API only, no scheduled runs
  fuelops serve --no-schedule`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&serveFlags.listenAddress, "listen", "l", "", "override listen address")
	serveCmd.Flags().BoolVar(&serveFlags.noSchedule, "no-schedule", false, "disable scheduled runs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	if serveFlags.listenAddress != "" {
		cfg.Server.Addr = serveFlags.listenAddress
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if a.policyFile != nil {
		go func() {
			if watchErr := a.policyFile.Watch(ctx); watchErr != nil {
				log.Error().Err(watchErr).Msg("retention policy watcher stopped")
			}
		}()
	}

	schedule := cfg.Archival.Schedule
	if serveFlags.noSchedule {
		schedule = ""
	}
	scheduler := archival.NewScheduler(a.orchestrator, schedule, runOptions(cfg.Archival))
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	var hub *ws.Hub
	health := []server.Pinger{a.store}
	if a.pubsub != nil {
		hub = ws.NewHub(a.pubsub)
		health = append(health, a.pubsub)
	}

	srv := server.New(ctx, cfg, v1.ArchivalDeps{
		Runner:     a.orchestrator,
		Restorer:   a.restorer,
		Stats:      a.stats,
		Jobs:       a.store.Jobs(),
		Schedule:   scheduler,
		RunContext: ctx,
	}, hub, health...)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
