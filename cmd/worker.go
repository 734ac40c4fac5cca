package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/premeepro/production/config"
	"example.com/premeepro/production/internal/service"
	"example.com/premeepro/production/internal/tracing"
)

const reindexBatchSize = 200

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker. It ingests orders from Azure Service Bus, reindexes
jobs, prunes read notifications and, unless changefeed.inline is set, relays the change feed.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// scheduledJob is one periodic task of the worker
type scheduledJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

// scheduledJobs lists the worker's periodic tasks. The relay sweep is left out when the
// API servers relay the change feed themselves.
func scheduledJobs(cfg config.Config, a *app, intake *service.OrderIntakeService) []scheduledJob {
	var jobs []scheduledJob

	if !cfg.ChangeFeed.Inline {
		jobs = append(jobs, scheduledJob{
			name:     "changefeed-relay",
			interval: cfg.ChangeFeed.PollInterval,
			run: func(ctx context.Context) error {
				// drain the backlog, one batch at a time
				for {
					n, err := a.relay.ProcessBatch(ctx)
					if err != nil || n < cfg.ChangeFeed.BatchSize {
						return err
					}
				}
			},
		})
	}

	return append(jobs,
		scheduledJob{
			name:     "order-intake",
			interval: cfg.Worker.IntakeInterval,
			run: func(ctx context.Context) error {
				res, err := intake.Poll(ctx, cfg.Worker.IntakeBatchSize)
				if res.Received > 0 {
					log.Info().
						Int("received", res.Received).
						Int("created", res.Created).
						Int("duplicate", res.Duplicate).
						Int("rejected", res.Rejected).
						Int("retried", res.Retried).
						Msg("Processed orders")
				}
				return err
			},
		},
		scheduledJob{
			name:     "job-reindex",
			interval: cfg.Worker.ReindexInterval,
			run: func(ctx context.Context) error {
				n, err := a.projector.Reindex(ctx, reindexBatchSize)
				log.Info().Int("indexed", n).Msg("Reindexed jobs")
				return err
			},
		},
		scheduledJob{
			name:     "notification-prune",
			interval: cfg.Worker.PruneInterval,
			run: func(ctx context.Context) error {
				retention := time.Duration(cfg.Notifications.RetentionDays) * 24 * time.Hour
				_, err := a.notifications.PruneRead(ctx, retention)
				return err
			},
		},
	)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(cfg, "production-worker")
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.ChangeFeed.Inline {
		log.Info().Msg("Change feed is relayed by the API servers, relay sweep disabled")
	}

	intake := service.NewOrderIntakeService(a.bus, cfg.Azure.OrdersQueueName, a.store.Jobs, a.jobs, a.metrics)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "failed to create scheduler")
	}

	for _, j := range scheduledJobs(cfg, a, intake) {
		if j.interval <= 0 {
			log.Warn().Str("job", j.name).Msg("Scheduled job disabled")
			continue
		}
		j := j
		_, err := scheduler.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() {
				err := tracing.Background(ctx, a.tracer, "worker/"+j.name, j.run)
				if err != nil && ctx.Err() == nil {
					log.Error().Err(err).Str("job", j.name).Msg("Scheduled job failed")
				}
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to schedule %s", j.name)
		}
		log.Info().Str("job", j.name).Dur("interval", j.interval).Msg("Scheduled job")
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}
