package cmd

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/premeepro/production/config"
	"example.com/premeepro/production/internal/auth"
	"example.com/premeepro/production/internal/cache"
	"example.com/premeepro/production/internal/changefeed"
	"example.com/premeepro/production/internal/db"
	"example.com/premeepro/production/internal/engine"
	"example.com/premeepro/production/internal/messaging"
	"example.com/premeepro/production/internal/metrics"
	"example.com/premeepro/production/internal/notify"
	"example.com/premeepro/production/internal/repository"
	"example.com/premeepro/production/internal/search"
	"example.com/premeepro/production/internal/service"
	"example.com/premeepro/production/internal/tracing"
)

const closeTimeout = 10 * time.Second

// app holds the dependencies shared by the long running commands
type app struct {
	cfg     config.Config
	db      *gorm.DB
	store   *repository.Store
	metrics *metrics.Metrics
	cache   *cache.RedisCache
	index   search.JobIndex
	bus     messaging.Client
	tracer  tracing.Tracer

	jobs          *service.JobService
	templates     *service.TemplateService
	stepData      *service.StepDataService
	notifications *service.NotificationService
	changes       *service.ChangeFeedService

	dispatcher *notify.AsyncDispatcher
	projector  *changefeed.Projector
	relay      *changefeed.Relay
}

// newApp connects to every dependency. Only the database is required; the cache, the
// search index and tracing degrade to disabled when they cannot be reached.
func newApp(cfg config.Config, source string) (*app, error) {
	m := metrics.NewMetrics()

	gdb, err := db.Connect(cfg.DB, m)
	if err != nil {
		return nil, err
	}

	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
		redisCache, _ = cache.NewRedisCache(config.RedisConfig{Enabled: false})
	}

	index, err := search.NewJobIndex(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		index = search.NoopIndex{}
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.NewNoopTracer()
	}

	bus, err := messaging.NewClient(cfg.Azure, source, m)
	if err != nil {
		_ = db.Close(gdb)
		return nil, errors.Wrap(err, "failed to initialize message bus")
	}

	store := repository.NewStore(gdb)
	a := &app{
		cfg:     cfg,
		db:      gdb,
		store:   store,
		metrics: m,
		cache:   redisCache,
		index:   index,
		bus:     bus,
		tracer:  tracer,
	}

	a.jobs = service.NewJobService(store, store.Repositories, engine.New(), redisCache, index, m)
	a.templates = service.NewTemplateService(store, store.Repositories)
	a.stepData = service.NewStepDataService(store.Repositories)
	a.notifications = service.NewNotificationService(store.Repositories)
	a.changes = service.NewChangeFeedService(store.Events)

	next := notify.NewDispatcher(store.Notifications, store.APIKeys, bus, notify.Options{
		Queue:      cfg.Azure.NotificationsQueueName,
		InAppLimit: cfg.Notifications.InAppLimit,
		MaxRetries: cfg.Azure.MaxRetries,
		Roles:      cfg.Notifications.Recipients,
	}, m)
	a.dispatcher = notify.NewAsyncDispatcher(next, cfg.Notifications.Workers, cfg.Notifications.QueueSize, m)

	a.projector = changefeed.NewProjector(store.Jobs, store.JobSteps, redisCache, index)
	a.relay = changefeed.NewRelay(store, store.Events, a.projector, bus, a.dispatcher, changefeed.Options{
		Queue:        cfg.Azure.EventsQueueName,
		BatchSize:    cfg.ChangeFeed.BatchSize,
		MaxAttempts:  cfg.ChangeFeed.MaxAttempts,
		MaxRetries:   cfg.Azure.MaxRetries,
		PollInterval: cfg.ChangeFeed.PollInterval,
		Tracer:       tracer,
	}, m)

	return a, nil
}

// ensureBootstrapKey creates the configured admin key on first start
func (a *app) ensureBootstrapKey(ctx context.Context) error {
	created, err := auth.EnsureBootstrapKey(ctx, a.store.APIKeys, a.cfg.Auth.BootstrapName, a.cfg.Auth.BootstrapKey)
	if err != nil {
		return err
	}
	if created {
		log.Info().Str("name", a.cfg.Auth.BootstrapName).Msg("Created bootstrap admin key")
	}
	return nil
}

// close releases every dependency; the dispatcher is drained first
func (a *app) close() {
	a.dispatcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := a.bus.Close(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to close message bus")
	}
	if err := a.cache.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close Redis cache")
	}
	a.tracer.Close()
	if err := db.Close(a.db); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}
