// Package app wires configuration, persistence, and services into a running
// application. The CLI and the worker both build a Container and pick the
// pieces they need.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	autoServices "github.com/funnelworks/funnel/internal/automations/application/services"
	"github.com/funnelworks/funnel/internal/automations/infrastructure/webhook"
	"github.com/funnelworks/funnel/internal/notifications"
	"github.com/funnelworks/funnel/internal/poller"
	scoringServices "github.com/funnelworks/funnel/internal/scoring/application/services"
	"github.com/funnelworks/funnel/internal/scoring/infrastructure/lock"
	seqServices "github.com/funnelworks/funnel/internal/sequences/application/services"
	"github.com/funnelworks/funnel/internal/sequences/infrastructure/email"
	"github.com/funnelworks/funnel/internal/shared/infrastructure/database"
	"github.com/funnelworks/funnel/internal/shared/infrastructure/eventbus"
	"github.com/funnelworks/funnel/internal/shared/infrastructure/migrations"
	"github.com/funnelworks/funnel/pkg/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Container holds the wired application.
type Container struct {
	Config *config.Config
	Logger *slog.Logger
	Driver database.Driver

	Repos     *Repositories
	Publisher eventbus.Publisher
	Notifier  notifications.Notifier

	Aggregator *scoringServices.ScoreAggregator
	Stepper    *seqServices.Stepper
	Evaluator  *autoServices.Evaluator
	Poller     *poller.Poller

	sqliteDB    *sql.DB
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
}

// New builds the application from configuration. The database driver is
// detected from the URL; an empty URL runs fully local on SQLite.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
		Driver: database.DetectDriver(cfg.DatabaseURL),
	}

	if err := c.initStorage(ctx); err != nil {
		return nil, err
	}
	if err := c.initMessaging(ctx); err != nil {
		c.Close()
		return nil, err
	}

	locker, err := c.initLocker(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Notifier = notifications.NewStoreNotifier(c.Repos.Notifications)

	c.Aggregator = scoringServices.NewScoreAggregator(
		c.Repos.Scores,
		c.Repos.Contacts,
		c.Repos.Activities,
		c.Repos.Tasks,
		scoringServices.NewSignalExtractor(),
		locker,
		c.Publisher,
		c.Notifier,
		scoringServices.AggregatorConfig{LockTTL: cfg.ScoreLockTTL},
		logger,
	)

	c.Stepper = seqServices.NewStepper(
		c.Repos.Enrollments,
		c.Repos.Steps,
		c.Repos.Messages,
		c.Repos.Contacts,
		c.emailSender(),
		c.Publisher,
		seqServices.StepperConfig{BatchSize: cfg.SequenceBatchSize, Lease: cfg.ClaimLease},
		logger,
	)

	executor := autoServices.NewActionExecutor(
		c.Repos.Tasks,
		c.Repos.Deals,
		c.Notifier,
		webhook.NewHTTPPoster(webhook.DefaultHTTPPosterConfig(), logger),
	)
	c.Evaluator = autoServices.NewEvaluator(
		c.Repos.Rules,
		c.Repos.Executions,
		c.Repos.Contacts,
		c.Repos.Deals,
		c.Repos.Tasks,
		executor,
		autoServices.EvaluatorConfig{
			DealStageWindow:     cfg.DealStageWindow,
			DefaultInactiveDays: cfg.InactiveContactDays,
		},
		logger,
	)

	c.Poller = poller.New(c.Stepper, c.Evaluator, c.Repos.Rules, poller.Config{
		PollInterval:       cfg.PollInterval,
		SequencesEnabled:   cfg.SequencesEnabled,
		AutomationsEnabled: cfg.AutomationsEnabled,
	}, logger)

	return c, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	switch c.Driver {
	case database.DriverSQLite:
		db, err := database.OpenSQLite(ctx, c.Config.DatabaseURL)
		if err != nil {
			return err
		}
		if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
			_ = db.Close()
			return err
		}
		c.sqliteDB = db
		c.Repos = newSQLiteRepositories(db)

	case database.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, c.Config.DatabaseURL, 0)
		if err != nil {
			return err
		}
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			pool.Close()
			return err
		}
		c.pgPool = pool
		c.Repos = newPostgresRepositories(pool)

	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}

	c.Logger.Info("storage initialized", "driver", c.Driver)
	return nil
}

func (c *Container) initMessaging(ctx context.Context) error {
	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using noop publisher", "error", err)
		c.Publisher = eventbus.NewNoopPublisher(c.Logger)
		return nil
	}
	c.Publisher = publisher
	return nil
}

func (c *Container) initLocker(ctx context.Context) (scoringServices.EntityLocker, error) {
	if c.Config.RedisURL == "" {
		return lock.NewLocalLocker(), nil
	}

	opts, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	locker := lock.NewRedisLocker(client)
	if err := locker.Ping(ctx); err != nil {
		_ = client.Close()
		if !c.Config.IsDevelopment() {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.Logger.Warn("Redis not available, using in-process lock", "error", err)
		return lock.NewLocalLocker(), nil
	}
	c.redisClient = client
	return locker, nil
}

func (c *Container) emailSender() seqServices.EmailSender {
	if c.Config.EmailAPIKey == "" {
		return email.NewLogSender(c.Logger)
	}
	senderConfig := email.DefaultHTTPSenderConfig()
	senderConfig.BaseURL = c.Config.EmailAPIURL
	senderConfig.APIKey = c.Config.EmailAPIKey
	senderConfig.FromAddress = c.Config.EmailFromAddr
	return email.NewHTTPSender(senderConfig, c.Logger)
}

// Ping verifies the storage backend is reachable.
func (c *Container) Ping(ctx context.Context) error {
	if c.pgPool != nil {
		return c.pgPool.Ping(ctx)
	}
	if c.sqliteDB != nil {
		return c.sqliteDB.PingContext(ctx)
	}
	return fmt.Errorf("no database connection")
}

// Close releases every connection the container owns.
func (c *Container) Close() {
	if c.Publisher != nil {
		if err := c.Publisher.Close(); err != nil {
			c.Logger.Warn("failed to close publisher", "error", err)
		}
	}
	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}
	if c.sqliteDB != nil {
		_ = c.sqliteDB.Close()
	}
	if c.pgPool != nil {
		c.pgPool.Close()
	}
}
