// Package app builds the store, queue and services from configuration.
// Both binaries share it.
package app

import (
	"context"
	"fmt"

	"resortbook/internal/config"
	"resortbook/internal/database"
	"resortbook/internal/domain"
	"resortbook/internal/events"
	"resortbook/internal/locking"
	"resortbook/internal/logging"
	"resortbook/internal/metrics"
	"resortbook/internal/models"
	"resortbook/internal/notify"
	"resortbook/internal/pgstore"
	"resortbook/internal/repository"
	"resortbook/internal/service"
	"resortbook/internal/slots"
	"resortbook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Store is what every backend offers on top of domain.Store.
type Store interface {
	domain.Store
	domain.NotificationStore
	domain.OutboxInspector
	GetAccommodation(ctx context.Context, id int64) (*models.Accommodation, error)
	Close() error
}

type App struct {
	Config     *config.Config
	Logger     *zerolog.Logger
	Store      Store
	Redis      *redis.Client
	EventBus   *events.EventBus
	Catalog    *slots.Catalog
	Locker     domain.UnitLocker
	Dispatcher *worker.Dispatcher

	Availability *service.AvailabilityService
	Approval     *service.ApprovalService
	Bookings     *service.BookingService
	Calendar     *service.CalendarService
}

func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	store, err := openStore(ctx, cfg, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Store: store}

	a.Redis = initRedis(ctx, cfg, logger)
	a.Locker = newLocker(cfg, a.Redis, logger)

	a.Catalog, err = slots.FromConfig(cfg.Slots)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build slot catalog: %w", err)
	}

	notifier, err := newNotifier(cfg, logging.Component(logger, "notifier"))
	if err != nil {
		a.Close()
		return nil, err
	}

	a.EventBus = events.NewEventBus()
	a.EventBus.OnError(func(eventType string, err error) {
		logger.Warn().Err(err).Str("event_type", eventType).Msg("event handler failed")
	})
	metrics.Subscribe(a.EventBus)

	n := cfg.Notifications
	retry := worker.RetryPolicy{
		MaxRetries:    n.Retry.MaxRetries,
		InitialDelay:  n.Retry.InitialDelay,
		MaxDelay:      n.Retry.MaxDelay,
		BackoffFactor: n.Retry.BackoffFactor,
	}
	limiter := rate.NewLimiter(rate.Limit(n.RateLimit.RPS), n.RateLimit.Burst)
	a.Dispatcher = worker.NewDispatcher(store, notifier, a.Redis, retry, limiter, logging.Component(logger, "dispatcher")).
		WithPolling(n.PollInterval, n.BatchSize)

	svcLogger := logging.Component(logger, "service")
	a.Availability = service.NewAvailabilityService(store, a.EventBus, svcLogger)
	a.Approval = service.NewApprovalService(store, a.Locker, a.Dispatcher, a.EventBus, svcLogger)
	a.Bookings = service.NewBookingService(store, a.Catalog, a.Availability, a.EventBus, svcLogger)
	a.Calendar = service.NewCalendarService(store, svcLogger)

	return a, nil
}

// Close releases the store and the Redis client.
func (a *App) Close() {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close store")
		}
	}
	if err := repository.Close(a.Redis); err != nil {
		a.Logger.Warn().Err(err).Msg("close redis")
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := database.NewDB(cfg.Database.Path, logger)
		if err != nil {
			logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
			return nil, err
		}
		return db, nil
	case "postgres":
		pg, err := pgstore.Open(ctx, cfg.Database.Postgres.DSN, cfg.Database.Postgres.MaxConnections, logger)
		if err != nil {
			logger.Error().Err(err).Msg("init postgres")
			return nil, err
		}
		return pg, nil
	case "memory":
		logger.Warn().Msg("using in-memory store, bookings are lost on exit")
		return repository.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	client, err := repository.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}
	if client != nil {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func newLocker(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) domain.UnitLocker {
	if cfg.Approval.LockBackend != "redis" || client == nil {
		return locking.NewMemoryLocker()
	}
	primary := locking.NewRedisLocker(client, cfg.Approval.LockTTL, cfg.Approval.LockWait)
	return locking.NewFailoverLocker(primary, locking.NewMemoryLocker(), logging.Component(logger, "locker"))
}

func newNotifier(cfg *config.Config, logger *zerolog.Logger) (domain.Notifier, error) {
	logNotifier := notify.NewLogNotifier(logger)
	switch cfg.Notifications.Transport {
	case "log":
		return logNotifier, nil
	case "telegram":
		tg := cfg.Notifications.Telegram
		tgNotifier, err := notify.DialTelegram(tg.BotToken, tg.ChatID, tg.Debug)
		if err != nil {
			return nil, err
		}
		return notify.Multi{tgNotifier, logNotifier}, nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Notifications.Transport)
	}
}
