// Package runtime assembles the extractor from its configuration.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-extractor/internal/adapters/driven/auth"
	"github.com/custodia-labs/sercha-extractor/internal/adapters/driven/events"
	"github.com/custodia-labs/sercha-extractor/internal/adapters/driven/postgres"
	postgresqueue "github.com/custodia-labs/sercha-extractor/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/custodia-labs/sercha-extractor/internal/adapters/driven/queue/redis"
	redisadapter "github.com/custodia-labs/sercha-extractor/internal/adapters/driven/redis"
	"github.com/custodia-labs/sercha-extractor/internal/adapters/driven/truto"
	"github.com/custodia-labs/sercha-extractor/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-extractor/internal/config"
	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extractor/internal/core/services"
	"github.com/custodia-labs/sercha-extractor/internal/metadata"
	"github.com/custodia-labs/sercha-extractor/internal/normalisers"
)

// Backends are the connections Services are assembled over. Redis is optional.
type Backends struct {
	DB    *postgres.DB
	Redis *redis.Client
}

// Connect opens Postgres (initialising the schema) and, when configured, Redis.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	dbConfig := postgres.DefaultConfig(cfg.DatabaseURL)
	dbConfig.MaxOpenConns = cfg.DBMaxOpenConns
	dbConfig.MaxIdleConns = cfg.DBMaxIdleConns
	dbConfig.ConnMaxLifetime = cfg.DBConnMaxLifetime
	dbConfig.ConnMaxIdleTime = cfg.DBConnMaxIdleTime
	db, err := postgres.Connect(ctx, dbConfig)
	if err != nil {
		return nil, err
	}
	logger.Info("postgres connected and schema initialized")

	b := &Backends{DB: db}
	if cfg.RedisURL == "" {
		return b, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	b.Redis = redis.NewClient(opts)
	if err := b.Redis.Ping(ctx).Err(); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("redis connected")
	return b, nil
}

// Close closes every open connection
func (b *Backends) Close() {
	if b.Redis != nil {
		_ = b.Redis.Close()
	}
	if b.DB != nil {
		_ = b.DB.Close()
	}
}

// Services holds the wired extractor components.
type Services struct {
	Extraction *services.ExtractionService
	TaskQueue  driven.TaskQueue
	Lock       driven.DistributedLock
	Scheduler  *services.Scheduler // nil when disabled
	Auth       driven.AuthAdapter

	// Checks are the health checks exposed by the API
	Checks map[string]http.Pinger

	// Backend names, for startup logging
	QueueBackend string
	StateBackend string
	EventSink    string
}

// NewServices wires every component over the given backends. Redis-backed
// adapters are preferred whenever a Redis client is present; Postgres is
// the fallback for the queue and lock.
func NewServices(cfg *config.Config, b *Backends, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Services{
		Auth:   auth.NewAdapter(cfg.JWTSecret),
		Checks: make(map[string]http.Pinger),
	}
	if b.DB != nil {
		s.Checks["postgres"] = b.DB
	}

	// ===== Task queue and lock =====
	if b.Redis != nil {
		queue, err := redisqueue.NewQueue(b.Redis, consumerName())
		if err != nil {
			return nil, fmt.Errorf("failed to create task queue: %w", err)
		}
		lock := redisadapter.NewLock(b.Redis)
		s.TaskQueue, s.Lock, s.QueueBackend = queue, lock, "redis"
		s.Checks["redis"] = lock
	} else {
		if b.DB == nil {
			return nil, fmt.Errorf("%w: a postgres or redis backend is required", domain.ErrInvalidInput)
		}
		s.TaskQueue = postgresqueue.NewQueue(b.DB.DB)
		s.Lock = postgres.NewAdvisoryLock(b.DB)
		s.QueueBackend = "postgres"
	}

	// ===== Sync state =====
	var store driven.SyncStateStore
	if cfg.UsesRedisState() && b.Redis != nil {
		store, s.StateBackend = redisadapter.NewSyncStateStore(b.Redis), "redis"
	} else {
		if b.DB == nil {
			return nil, fmt.Errorf("%w: postgres is required for sync state", domain.ErrInvalidInput)
		}
		store, s.StateBackend = postgres.NewSyncStateStore(b.DB), "postgres"
	}

	// ===== Event channel =====
	sink, err := newEventSink(cfg, b)
	if err != nil {
		return nil, err
	}
	s.EventSink = cfg.EventSink
	emitter := events.NewLoggingEmitter(sink, logger)

	// ===== Upstream and destinations =====
	client := truto.NewClient(&truto.Config{
		BaseURL:             cfg.TrutoBaseURL,
		Token:               cfg.TrutoToken,
		IntegratedAccountID: cfg.TrutoIntegratedAccountID,
		UnifiedModel:        cfg.TrutoUnifiedModel,
		Timeout:             cfg.TrutoTimeout,
		RequestsPerSecond:   cfg.TrutoRequestsPerSecond,
		Burst:               cfg.TrutoBurst,
	})
	fetchers := services.NewUpstreamFetchers(client, driven.ListRequest{IgnoreRemoteData: true})
	repos := postgres.NewRepositoryProvider(b.DB, string(domain.EntityTypeUsers), services.MetadataItemType)

	s.Extraction = services.NewExtractionService(services.ExtractionServiceConfig{
		Fetchers:            fetchers,
		Repos:               repos,
		Normalisers:         normalisers.DefaultRegistry(),
		Store:               store,
		Emitter:             emitter,
		SyncUnits:           cfg.SyncUnits,
		Metadata:            metadata.ExternalDomain(),
		ResetPolicy:         cfg.ResetPolicy,
		RateLimitPolicy:     cfg.RateLimitPolicy,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		PushConcurrency:     cfg.PushConcurrency,
		CheckpointMargin:    cfg.CheckpointMargin,
		Logger:              logger,
	})

	// ===== Scheduler =====
	if cfg.SchedulerEnabled && cfg.ScheduleInterval > 0 {
		schedules := make([]*domain.ScheduledTask, 0, len(cfg.SyncUnits))
		for _, u := range cfg.SyncUnits {
			schedules = append(schedules, domain.NewScheduledTask(u.ID, cfg.ScheduleInterval))
		}
		s.Scheduler = services.NewScheduler(services.SchedulerConfig{
			TaskQueue:    s.TaskQueue,
			Lock:         s.Lock,
			Schedules:    schedules,
			Logger:       logger,
			PollInterval: cfg.SchedulerPollInterval,
		})
	}

	return s, nil
}

// newEventSink builds the configured event destination. The log sink
// returns nil so the logging emitter only logs.
func newEventSink(cfg *config.Config, b *Backends) (driven.EventEmitter, error) {
	switch cfg.EventSink {
	case config.EventSinkCallback:
		return events.NewCallbackEmitter(events.CallbackConfig{
			URL:     cfg.CallbackURL,
			Token:   cfg.CallbackToken,
			Timeout: cfg.CallbackTimeout,
		})
	case config.EventSinkRedis:
		if b.Redis == nil {
			return nil, fmt.Errorf("%w: redis event sink needs a redis connection", domain.ErrInvalidInput)
		}
		return redisadapter.NewEventStream(b.Redis, redisadapter.EventStreamConfig{Stream: cfg.EventStream}), nil
	default:
		return nil, nil
	}
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
