package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/di"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/events"
	workflowhandlers "github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/modules/workflow/handlers"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/scheduler"
	"github.com/positivetechnologylab/ptl-iccad-contest-2023/internal/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	var port int

	c := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, run streams and scheduled sweeps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := a.setup()
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Port = port
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			container, err := di.Wire(ctx, cfg, di.Options{RunHistory: true}, log)
			if err != nil {
				return err
			}
			defer container.Close()

			// Runs left "running" by a previous process can never finish
			if err := scheduler.RecoverInterrupted(ctx, container.RunRepo, log); err != nil {
				return err
			}

			// Noise model files may be regenerated while serving
			container.NoiseCache.OnChange(func(name string) {
				container.EventManager.EmitTyped("noise", "", &events.NoiseModelReloadedData{Name: name})
			})
			go func() {
				if err := container.NoiseCache.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Warn().Err(err).Msg("Noise model watcher stopped")
				}
			}()

			sched := scheduler.New(log)
			jobs, err := di.RegisterJobs(ctx, container, sched, cfg, log)
			if err != nil {
				return err
			}
			sched.Start()

			workflowHandler := workflowhandlers.NewHandler(ctx, container.Workflow, container.EventBus, log)
			srv := server.New(server.Config{
				Log:          log,
				RunsDB:       container.RunsDB,
				Config:       cfg,
				Port:         cfg.Port,
				DevMode:      cfg.DevMode,
				Workflow:     workflowHandler,
				Runs:         container.Workflow,
				EventBus:     container.EventBus,
				EventManager: container.EventManager,
			})
			srv.SetJobs(jobs.All()...)
			srv.SetSchedules(sched)

			serveErr := make(chan error, 1)
			go func() {
				if err := srv.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			select {
			case <-ctx.Done():
			case err := <-serveErr:
				if err != nil {
					log.Error().Err(err).Msg("HTTP server failed")
					cancel()
					stopScheduler(sched, log)
					workflowHandler.Wait()
					return err
				}
			}

			log.Info().Msg("Shutting down")
			cancel()
			stopScheduler(sched, log)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Server forced to shutdown")
			}

			// In-flight runs observe the cancelled context and record themselves as failed
			workflowHandler.Wait()
			log.Info().Msg("Server stopped")
			return nil
		},
	}

	c.Flags().IntVar(&port, "port", 0, "override PORT")
	return c
}

// stopScheduler waits briefly for running jobs. Sweeps observe the
// cancelled serve context, so they end at their next run boundary.
func stopScheduler(sched *scheduler.Scheduler, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("Scheduled jobs did not finish before shutdown")
	}
}
