package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	notificationCommands "github.com/felixgeelhaar/tracklane/internal/notifications/application/commands"
	notificationQueries "github.com/felixgeelhaar/tracklane/internal/notifications/application/queries"
	notificationServices "github.com/felixgeelhaar/tracklane/internal/notifications/application/services"
	"github.com/felixgeelhaar/tracklane/internal/notifications/application/subscribers"
	notificationDomain "github.com/felixgeelhaar/tracklane/internal/notifications/domain"
	"github.com/felixgeelhaar/tracklane/internal/notifications/infrastructure/redisrelay"
	notificationWS "github.com/felixgeelhaar/tracklane/internal/notifications/infrastructure/websocket"
	"github.com/felixgeelhaar/tracklane/internal/presence"
	recurrenceCommands "github.com/felixgeelhaar/tracklane/internal/recurrence/application/commands"
	recurrenceQueries "github.com/felixgeelhaar/tracklane/internal/recurrence/application/queries"
	recurrenceServices "github.com/felixgeelhaar/tracklane/internal/recurrence/application/services"
	recurrenceDomain "github.com/felixgeelhaar/tracklane/internal/recurrence/domain"
	"github.com/felixgeelhaar/tracklane/internal/recurrence/infrastructure/taskstore"
	sharedApplication "github.com/felixgeelhaar/tracklane/internal/shared/application"
	"github.com/felixgeelhaar/tracklane/internal/shared/clock"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/migrations"
	"github.com/felixgeelhaar/tracklane/internal/shared/infrastructure/outbox"
	taskQueries "github.com/felixgeelhaar/tracklane/internal/tasks/application/queries"
	taskDomain "github.com/felixgeelhaar/tracklane/internal/tasks/domain"
	"github.com/felixgeelhaar/tracklane/pkg/config"
	"github.com/felixgeelhaar/tracklane/pkg/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// backlogLimit caps how many unread notifications are replayed on connect.
const backlogLimit = 100

// Container holds all application dependencies.
type Container struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *observability.InMemoryMetrics
	Health   *observability.HealthRegistry
	Clock    clock.Clock
	Location *time.Location

	// Infrastructure
	DBConn      database.Connection
	DBDriver    database.Driver
	RedisClient *redis.Client

	// Repositories
	RuleRepo         recurrenceDomain.Repository
	TaskRepo         taskDomain.Repository
	NotificationRepo notificationDomain.Repository
	OutboxRepo       outbox.Repository
	UnitOfWork       sharedApplication.UnitOfWork

	// Events
	EventPublisher  eventbus.Publisher
	InProcessBus    *eventbus.InProcessBus
	OutboxProcessor *outbox.Processor

	// Live delivery
	Presence   *presence.Registry
	Hub        *notificationWS.Hub
	Dispatcher *notificationServices.Dispatcher
	Notifier   notificationServices.Notifier
	Relay      *redisrelay.Subscriber

	// Recurrence handlers
	CreateRuleHandler    *recurrenceCommands.CreateRuleHandler
	UpdateRuleHandler    *recurrenceCommands.UpdateRuleHandler
	DeleteRuleHandler    *recurrenceCommands.DeleteRuleHandler
	SetRuleActiveHandler *recurrenceCommands.SetRuleActiveHandler
	GetRuleHandler       *recurrenceQueries.GetRuleHandler
	ListRulesHandler     *recurrenceQueries.ListRulesHandler

	RuleScheduler *recurrenceServices.RuleScheduler
	SweepRunner   *recurrenceServices.SweepRunner

	// Task handlers
	ListTasksHandler *taskQueries.ListTasksHandler

	// Notification handlers
	CreateNotificationHandler *notificationCommands.CreateNotificationHandler
	MarkReadHandler           *notificationCommands.MarkReadHandler
	MarkAllReadHandler        *notificationCommands.MarkAllReadHandler
	ListNotificationsHandler  *notificationQueries.ListNotificationsHandler
	CountUnreadHandler        *notificationQueries.CountUnreadHandler
	TaskGeneratedConsumer     *subscribers.TaskGeneratedConsumer

	brokered bool
	consumer eventbus.Consumer
}

// NewContainer creates a new dependency injection container. The database
// backend is chosen from DATABASE_DRIVER (or detected from DATABASE_URL) and
// migrated before any repository is built.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location()
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		Metrics:  observability.NewInMemoryMetrics(),
		Health:   observability.NewHealthRegistry(),
		Clock:    clock.NewSystem(loc),
		Location: loc,
	}

	if err := c.initDatabase(ctx); err != nil {
		return nil, err
	}
	if err := c.initRepositories(); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.initRedis(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.initPublisher(); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.initDelivery()
	c.initHandlers()

	return c, nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.Driver(c.Config.DatabaseDriver),
		URL:        c.Config.DatabaseURL,
		SQLitePath: c.Config.SQLitePath,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBConn = conn
	c.DBDriver = conn.Driver()

	if err := runMigrations(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}
	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))

	c.Logger.Info("database connected", "driver", c.DBDriver)
	return nil
}

func runMigrations(ctx context.Context, conn database.Connection) error {
	switch conn.Driver() {
	case database.DriverSQLite:
		dber, ok := conn.(interface{ DB() *sql.DB })
		if !ok {
			return fmt.Errorf("connection does not provide a SQLite database")
		}
		if err := migrations.RunSQLiteMigrations(ctx, dber.DB()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	case database.DriverPostgres:
		pooler, ok := conn.(interface{ Pool() *pgxpool.Pool })
		if !ok {
			return fmt.Errorf("connection does not provide a PostgreSQL pool")
		}
		if err := migrations.RunPostgresMigrations(ctx, pooler.Pool()); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	default:
		return fmt.Errorf("unsupported driver: %s", conn.Driver())
	}
	return nil
}

func (c *Container) initRepositories() error {
	factory := NewRepositoryFactory(c.DBConn)

	var err error
	if c.RuleRepo, err = factory.RuleRepository(); err != nil {
		return fmt.Errorf("failed to create rule repository: %w", err)
	}
	if c.TaskRepo, err = factory.TaskRepository(); err != nil {
		return fmt.Errorf("failed to create task repository: %w", err)
	}
	if c.NotificationRepo, err = factory.NotificationRepository(); err != nil {
		return fmt.Errorf("failed to create notification repository: %w", err)
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return fmt.Errorf("failed to create outbox repository: %w", err)
	}
	if c.UnitOfWork, err = factory.UnitOfWork(); err != nil {
		return fmt.Errorf("failed to create unit of work: %w", err)
	}
	return nil
}

// initRedis connects to Redis when configured. In development an unreachable
// server only disables the relay.
func (c *Container) initRedis(ctx context.Context) error {
	if c.Config.RedisURL == "" {
		return nil
	}
	opt, err := redis.ParseURL(c.Config.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		if c.Config.IsDevelopment() {
			c.Logger.Warn("redis not available, notifications stay on this node", "error", err)
			return nil
		}
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	c.RedisClient = client
	c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}))
	c.Logger.Info("redis connected")
	return nil
}

// initPublisher selects where the outbox publishes: RabbitMQ behind a circuit
// breaker when a broker is configured, otherwise the in-process bus.
func (c *Container) initPublisher() error {
	c.InProcessBus = eventbus.NewInProcessBus(c.Logger)

	var publisher eventbus.Publisher = c.InProcessBus
	brokered := false
	if c.Config.RabbitMQURL != "" {
		rabbit, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
		switch {
		case err == nil:
			publisher = rabbit
			brokered = true
		case c.Config.IsDevelopment():
			c.Logger.Warn("RabbitMQ not available, using in-process bus", "error", err)
		default:
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
	}
	c.brokered = brokered
	if brokered && c.Config.PublisherBreakerEnabled {
		breakerCfg := eventbus.DefaultBreakerConfig()
		if c.Config.PublisherBreakerThreshold > 0 {
			breakerCfg.FailureThreshold = uint32(c.Config.PublisherBreakerThreshold)
		}
		if c.Config.PublisherBreakerTimeout > 0 {
			breakerCfg.Timeout = c.Config.PublisherBreakerTimeout
		}
		publisher = eventbus.NewBreakerPublisher(publisher, breakerCfg, c.Logger)
	}
	c.EventPublisher = publisher

	processorCfg := outbox.DefaultProcessorConfig()
	if c.Config.OutboxPollInterval > 0 {
		processorCfg.PollInterval = c.Config.OutboxPollInterval
	}
	if c.Config.OutboxBatchSize > 0 {
		processorCfg.BatchSize = c.Config.OutboxBatchSize
	}
	if c.Config.OutboxMaxRetries > 0 {
		processorCfg.MaxRetries = c.Config.OutboxMaxRetries
	}
	if c.Config.OutboxCleanupInterval > 0 {
		processorCfg.CleanupInterval = c.Config.OutboxCleanupInterval
	}
	processorCfg.Retention = c.Config.OutboxRetention()
	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, publisher, processorCfg, c.Logger,
		outbox.WithMetrics(c.Metrics), outbox.WithClock(c.Clock.Now))
	return nil
}

func (c *Container) initDelivery() {
	c.Presence = presence.NewRegistry()
	c.Hub = notificationWS.NewHub(c.Presence, notificationWS.HubConfig{
		SendBuffer:   c.Config.WSSendBuffer,
		WriteTimeout: c.Config.WSWriteTimeout,
		PingInterval: c.Config.WSPingInterval,
	}, c.Logger, c.Metrics)
	c.Dispatcher = notificationServices.NewDispatcher(c.Presence, c.Hub, c.Config.DispatchSendTimeout, c.Logger, c.Metrics)

	c.Notifier = c.Dispatcher
	if c.Config.UsesRedisRelay() && c.RedisClient != nil {
		c.Notifier = redisrelay.NewPublisher(c.RedisClient, c.Config.NotifyChannel, c.Logger)
		c.Relay = redisrelay.NewSubscriber(c.RedisClient, c.Config.NotifyChannel, c.Dispatcher, c.Logger)
	}
}

func (c *Container) initHandlers() {
	c.CreateRuleHandler = recurrenceCommands.NewCreateRuleHandler(c.RuleRepo, c.OutboxRepo, c.UnitOfWork, c.Clock)
	c.UpdateRuleHandler = recurrenceCommands.NewUpdateRuleHandler(c.RuleRepo, c.OutboxRepo, c.UnitOfWork, c.Clock)
	c.DeleteRuleHandler = recurrenceCommands.NewDeleteRuleHandler(c.RuleRepo, c.OutboxRepo, c.UnitOfWork, c.Clock)
	c.SetRuleActiveHandler = recurrenceCommands.NewSetRuleActiveHandler(c.RuleRepo, c.OutboxRepo, c.UnitOfWork, c.Clock)
	c.GetRuleHandler = recurrenceQueries.NewGetRuleHandler(c.RuleRepo, c.Location)
	c.ListRulesHandler = recurrenceQueries.NewListRulesHandler(c.RuleRepo, c.Location)

	store := taskstore.New(c.RuleRepo, c.TaskRepo, c.OutboxRepo, c.UnitOfWork, c.Clock, c.Config.SweepBatchSize, c.Logger)
	c.RuleScheduler = recurrenceServices.NewRuleScheduler(store, c.Location, c.Config.SweepWorkers, c.Logger, c.Metrics)
	c.SweepRunner = recurrenceServices.NewSweepRunner(c.RuleScheduler, c.Clock, c.Config.SweepSchedule, c.Logger)

	c.ListTasksHandler = taskQueries.NewListTasksHandler(c.TaskRepo)

	c.CreateNotificationHandler = notificationCommands.NewCreateNotificationHandler(
		c.NotificationRepo, c.OutboxRepo, c.UnitOfWork, c.Notifier, c.Clock, c.Metrics,
	)
	c.MarkReadHandler = notificationCommands.NewMarkReadHandler(c.NotificationRepo, c.OutboxRepo, c.UnitOfWork, c.Clock)
	c.MarkAllReadHandler = notificationCommands.NewMarkAllReadHandler(c.NotificationRepo, c.Clock)
	c.ListNotificationsHandler = notificationQueries.NewListNotificationsHandler(c.NotificationRepo)
	c.CountUnreadHandler = notificationQueries.NewCountUnreadHandler(c.NotificationRepo)

	c.TaskGeneratedConsumer = subscribers.NewTaskGeneratedConsumer(c.CreateNotificationHandler, c.Location, c.Logger)
	c.InProcessBus.RegisterConsumer(c.TaskGeneratedConsumer)
}

// Backlog returns the unread replay source for the websocket handler.
func (c *Container) Backlog() notificationWS.BacklogSource {
	return notificationWS.RepositoryBacklog{Repo: c.NotificationRepo, Limit: backlogLimit}
}

// EventConsumer returns the consumer feeding domain events to subscribers.
// With a broker configured it dials a RabbitMQ consumer on first use;
// otherwise events already reach subscribers through the in-process bus.
func (c *Container) EventConsumer() (eventbus.Consumer, error) {
	if c.consumer != nil {
		return c.consumer, nil
	}
	if !c.brokered {
		c.consumer = c.InProcessBus
		return c.consumer, nil
	}
	consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
		URL:    c.Config.RabbitMQURL,
		Logger: c.Logger,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create event consumer: %w", err)
	}
	consumer.RegisterConsumer(c.TaskGeneratedConsumer)
	c.consumer = consumer
	return c.consumer, nil
}

// DefaultUserID parses the configured CLI identity.
func (c *Container) DefaultUserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Config.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid TRACKLANE_USER_ID %q: %w", c.Config.UserID, err)
	}
	return id, nil
}

// Close releases all resources in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error

	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.Dispatcher != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.Dispatcher.Drain(drainCtx); err != nil {
			c.Logger.Warn("notification deliveries still running at shutdown", "error", err)
		}
		cancel()
	}
	if c.consumer != nil && c.brokered {
		if err := c.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event consumer: %w", err))
		}
	}
	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event publisher: %w", err))
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}
