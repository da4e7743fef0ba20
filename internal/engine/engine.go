// Package engine builds the clients, repositories and services shared by the
// API and worker processes from one loaded configuration.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/autoapply-be/internal/autoapply"
	"github.com/cuongbtq/autoapply-be/internal/cache"
	"github.com/cuongbtq/autoapply-be/internal/config"
	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/internal/events"
	"github.com/cuongbtq/autoapply-be/internal/platform"
	"github.com/cuongbtq/autoapply-be/internal/platform/catho"
	"github.com/cuongbtq/autoapply-be/internal/platform/indeed"
	"github.com/cuongbtq/autoapply-be/internal/platform/infojobs"
	"github.com/cuongbtq/autoapply-be/internal/platform/linkedin"
	"github.com/cuongbtq/autoapply-be/internal/proxy"
	"github.com/cuongbtq/autoapply-be/internal/queue"
	"github.com/cuongbtq/autoapply-be/internal/session"
	"github.com/cuongbtq/autoapply-be/internal/storage/postgres"
	"github.com/cuongbtq/autoapply-be/shared/postgresql"
	"github.com/cuongbtq/autoapply-be/shared/rabbitmq"
	"github.com/cuongbtq/autoapply-be/shared/redis"
	"github.com/cuongbtq/autoapply-be/shared/telemetry"
)

// Engine holds every long-lived component. Optional parts (Redis, Events,
// Proxies) are nil when disabled in the configuration.
type Engine struct {
	Logger *slog.Logger

	DB     *postgresql.Client
	Rabbit *rabbitmq.Client
	Redis  *redis.Client
	Events *events.Publisher

	Cache     cache.Cache
	Proxies   *proxy.Pool
	Adapters  *platform.Registry
	Sessions  *session.Store
	Jobs      *queue.Queue
	Configs   *postgres.ConfigRepository
	History   *postgres.HistoryRepository
	Canceller *autoapply.Canceller
	AutoApply *autoapply.Orchestrator

	shutdownTracer func(context.Context) error
}

// New connects to every configured backend and wires the services.
// On error, whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (e *Engine, err error) {
	e = &Engine{Logger: logger}
	defer func() {
		if err != nil {
			e.Close(context.Background())
			e = nil
		}
	}()

	e.shutdownTracer, err = telemetry.InitTracer(ctx, &telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		CollectorURL:   cfg.Telemetry.CollectorURL,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	if e.DB, err = initPostgreSQL(&cfg.Database, cfg.App.Name, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err = e.DB.Migrate(ctx); err != nil {
			return nil, err
		}
	}

	if e.Rabbit, err = initRabbitMQ(&cfg.RabbitMQ, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	logger.Info("RabbitMQ connection established")

	if err = e.initCache(ctx, &cfg.Redis); err != nil {
		return nil, err
	}

	var publisher autoapply.Publisher
	if cfg.NATS.Enabled {
		e.Events, err = events.NewPublisher(events.Config{
			URL:     cfg.NATS.URL,
			Subject: cfg.NATS.Subject,
			Timeout: cfg.NATS.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize NATS publisher: %w", err)
		}
		publisher = e.Events
	}

	if err = e.initProxies(ctx, &cfg.Proxy); err != nil {
		return nil, err
	}

	if err = e.wireServices(cfg, publisher); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) initCache(ctx context.Context, cfg *config.RedisConfig) error {
	if cfg.URL == "" {
		e.Logger.Warn("Redis not configured, using in-process cache; cancel requests only reach runs in this process")
		e.Cache = cache.NewMemory()
		return nil
	}

	client, err := redis.NewClient(ctx, &redis.Config{
		URL:          cfg.URL,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}, e.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	e.Redis = client
	e.Cache = cache.NewRedis(client.GetClient(), cfg.KeyPrefix)
	return nil
}

func (e *Engine) initProxies(ctx context.Context, cfg *config.ProxyConfig) error {
	if !cfg.Enabled {
		return nil
	}

	var provider proxy.Provider
	if cfg.ProviderURL != "" {
		provider = proxy.NewCachedProvider(
			proxy.NewHTTPProvider(cfg.ProviderURL, cfg.APIKey, cfg.Timeout),
			e.Cache, cfg.CacheTTL, e.Logger,
		)
	}
	e.Proxies = proxy.NewPool(provider, cfg.RefreshInterval, e.Logger)

	for _, raw := range cfg.Static {
		px, err := proxy.ParseURL(raw)
		if err != nil {
			return fmt.Errorf("invalid static proxy: %w", err)
		}
		e.Proxies.Add(*px)
	}
	if provider != nil {
		e.Proxies.Refresh(ctx)
	}

	e.Logger.Info("Proxy pool ready", slog.Int("size", e.Proxies.Size()))
	return nil
}

func (e *Engine) wireServices(cfg *config.Config, publisher autoapply.Publisher) error {
	queueCfg := queue.Config{
		MaxRetries: cfg.Queue.MaxRetries,
		BaseDelay:  cfg.Queue.BaseDelay,
		MaxDelay:   cfg.Queue.MaxDelay,
	}
	if err := queueCfg.Validate(); err != nil {
		return err
	}


	sessionRepo := postgres.NewSessionRepository(e.DB)
	e.Configs = postgres.NewConfigRepository(e.DB)
	e.History = postgres.NewHistoryRepository(e.DB)

	// adapters report back to the session store, and the store logs in through
	// the adapters, so the registry is filled after the store exists
	e.Adapters = platform.NewRegistry()

	var proxySource session.ProxySource
	var proxyReporter platform.ProxyReporter
	if e.Proxies != nil {
		proxySource = e.Proxies
		proxyReporter = e.Proxies
	}

	e.Sessions = session.NewStore(
		sessionRepo,
		postgres.NewUserRepository(e.DB),
		proxySource,
		e.Adapters,
		session.Config{
			Expiry:        cfg.Sessions.PlatformExpiry(),
			DefaultExpiry: cfg.Sessions.DefaultExpiry,
			ProxyCountry:  cfg.Sessions.ProxyCountry,
			LowestTier:    domain.SubscriptionTier(cfg.Sessions.LowestTier),
		},
		e.Logger.With(slog.String("component", "sessions")),
	)

	var auth platform.Authenticator
	if cfg.Authenticator.URL != "" {
		auth = platform.NewRemoteAuthenticator(cfg.Authenticator.URL, cfg.Authenticator.Timeout)
	}
	registerAdapters(e.Adapters, &cfg.Platforms, e.Sessions, proxyReporter, auth, e.Logger)

	e.Jobs = queue.New(postgres.NewJobRepository(e.DB), e.Rabbit, queueCfg, e.Logger.With(slog.String("component", "queue")))

	e.Canceller = autoapply.NewCanceller(e.Cache, cfg.AutoApply.CancelTTL)

	e.AutoApply = autoapply.New(autoapply.Dependencies{
		Configs:   e.Configs,
		Sessions:  e.Sessions,
		Adapters:  e.Adapters,
		Jobs:      e.Jobs,
		Documents: postgres.NewDocumentRepository(e.DB),
		JobBoard:  postgres.NewJobBoard(e.DB),
		Recorder:  autoapply.NewRecorder(e.History, publisher, e.Logger),
		Canceller: e.Canceller,
	}, autoapply.Config{
		Weights: autoapply.Weights{
			Keywords: cfg.AutoApply.Weights.Keywords,
			Location: cfg.AutoApply.Weights.Location,
			Industry: cfg.AutoApply.Weights.Industry,
			JobType:  cfg.AutoApply.Weights.JobType,
		},
		SearchWindow:  domain.DateWindow(strings.ToUpper(cfg.AutoApply.SearchWindow)),
		SearchLimit:   cfg.AutoApply.SearchLimit,
		ActionTimeout: cfg.AutoApply.ActionTimeout,
	}, e.Logger.With(slog.String("component", "autoapply")))
	return nil
}

func registerAdapters(r *platform.Registry, cfg *config.PlatformsConfig, sessions platform.SessionReporter, proxies platform.ProxyReporter, auth platform.Authenticator, logger *slog.Logger) {
	r.Register(linkedin.New(linkedin.Config(cfg.LinkedIn), sessions, proxies, auth, logger))
	r.Register(infojobs.New(infojobs.Config(cfg.InfoJobs), sessions, proxies, auth, logger))
	r.Register(catho.New(catho.Config(cfg.Catho), sessions, proxies, auth, logger))
	r.Register(indeed.New(indeed.Config(cfg.Indeed), sessions, proxies, auth, logger))
}

// Close stops in-flight auto-apply runs, waiting for them until ctx is done,
// then releases every connection.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.AutoApply != nil {
		if err := e.AutoApply.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.Events != nil {
		e.Events.Close()
	}
	if e.Redis != nil {
		if err := e.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if e.Rabbit != nil {
		if err := e.Rabbit.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rabbitmq: %w", err))
		}
	}
	if e.DB != nil {
		if err := e.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if e.shutdownTracer != nil {
		if err := e.shutdownTracer(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer: %w", err))
		}
	}
	return errors.Join(errs...)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, appName string, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		ApplicationName: appName,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ initializes the RabbitMQ client
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	rabbitConfig := &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterQueue:    cfg.Queue.DeadLetter,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}
