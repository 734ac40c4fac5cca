package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"example.com/premeepro/production/internal/api"
	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/db"
	"example.com/premeepro/production/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the HTTP API server. With changefeed.inline set the change feed relay runs in the same process.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(cfg, "production-api")
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.ensureBootstrapKey(ctx); err != nil {
		return err
	}

	if cfg.ChangeFeed.Inline {
		a.jobs.SetWaker(a.relay)
		a.relay.Start()
		defer a.relay.Stop()
	}

	checks := map[string]api.HealthCheck{
		metrics.HealthDatabase: func(ctx context.Context) error { return db.Ping(ctx, a.db) },
		metrics.HealthCache:    a.cache.Ping,
		metrics.HealthSearch:   a.index.Ping,
	}

	server := api.NewServer(cfg.Server, api.Services{
		Jobs:          a.jobs,
		Templates:     a.templates,
		StepData:      a.stepData,
		Notifications: a.notifications,
		Changes:       a.changes,
	}, auth.NewAuthenticator(a.store.APIKeys), a.metrics, a.tracer, checks)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for termination signal or a listener failure
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}

	if shutdownErr := server.Shutdown(context.Background()); shutdownErr != nil {
		log.Error().Err(shutdownErr).Msg("Server shutdown error")
	}

	log.Info().Msg("API server stopped")
	return err
}
