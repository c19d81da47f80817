package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/salonbook/salonbook/libs/config"
	"github.com/salonbook/salonbook/libs/db"
	"github.com/salonbook/salonbook/libs/grpcx"
	"github.com/salonbook/salonbook/libs/httpx"
	"github.com/salonbook/salonbook/libs/kafkax"
	otelx "github.com/salonbook/salonbook/libs/otel"
	"github.com/salonbook/salonbook/libs/redisx"
	"github.com/salonbook/salonbook/libs/runtime"
	"github.com/salonbook/salonbook/services/booking-service/internal/booking"
	"github.com/salonbook/salonbook/services/booking-service/internal/grpcserver"
	"github.com/salonbook/salonbook/services/booking-service/internal/handlers"
	"github.com/salonbook/salonbook/services/booking-service/internal/locking"
	"github.com/salonbook/salonbook/services/booking-service/internal/outbox"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage/gormstore"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage/memory"
	"github.com/salonbook/salonbook/services/booking-service/internal/storage/postgres"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"
)

func runServer(ctx context.Context) error {
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))

	port, err := config.Port("PORT", "8083")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	store, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	checks := []runtime.ReadyCheck{{Name: "store", Check: store.Ping}}

	var rdb *redis.Client
	redisClient := func() (*redis.Client, error) {
		if rdb != nil {
			return rdb, nil
		}
		url, err := config.RequiredString("REDIS_URL")
		if err != nil {
			return nil, err
		}
		rdb, err = redisx.Open(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
		return rdb, nil
	}
	defer func() {
		if rdb != nil {
			_ = rdb.Close()
		}
	}()

	lockWait, err := config.Duration("LOCK_WAIT", 2*time.Second)
	if err != nil {
		return err
	}
	var locker locking.Locker
	switch driver := config.String("LOCK_DRIVER", "local"); driver {
	case "local":
		locker = locking.NewLocalLocker(lockWait)
	case "redis":
		lease, err := config.Duration("LOCK_LEASE", 10*time.Second)
		if err != nil {
			return err
		}
		client, err := redisClient()
		if err != nil {
			return err
		}
		locker = locking.NewRedisLocker(client, locking.RedisOptions{Wait: lockWait, Lease: lease})
	default:
		return fmt.Errorf("LOCK_DRIVER must be local or redis (got %q)", driver)
	}

	engineCfg, err := engineConfig()
	if err != nil {
		return err
	}
	engine := booking.New(store, locker, logger, engineCfg)

	rateLimit, err := rateLimitMiddleware(logger, redisClient)
	if err != nil {
		return err
	}

	brokers := config.String("KAFKA_BROKERS", "")
	var publisher *outbox.Publisher
	if list := kafkax.SplitBrokers(brokers); len(list) > 0 {
		pollEvery, err := config.Duration("OUTBOX_POLL_EVERY", 2*time.Second)
		if err != nil {
			return err
		}
		batchSize, err := config.Int("OUTBOX_BATCH_SIZE", 50)
		if err != nil {
			return err
		}
		writer := outbox.NewKafkaWriter(list)
		defer writer.Close()
		publisher = outbox.NewPublisher(store, writer, logger, outbox.PublisherConfig{
			PollEvery: pollEvery,
			BatchSize: batchSize,
		})
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set; appointment events stay in the outbox")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.New(engine, logger).Register(mux)

	bodyLimit, err := config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	if err != nil {
		return err
	}
	reqTimeout, err := config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	if err != nil {
		return err
	}
	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ORIGINS"),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key", "X-Request-Id", handlers.HeaderActorRole, handlers.HeaderActorID},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(int64(bodyLimit)),
		httpx.WithTimeout(reqTimeout),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	health := grpcserver.NewHealth(logger, checks...)
	grpcserver.Register(grpcSrv, health)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return health.Run(gctx, 5*time.Second)
	})
	if publisher != nil {
		g.Go(func() error {
			return publisher.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "err", err)
		}
		grpcSrv.GracefulStop()
		logger.Info("servers stopped")
		return nil
	})
	return g.Wait()
}

func openStore(ctx context.Context, logger *slog.Logger) (storage.Store, error) {
	switch driver := config.String("STORE_DRIVER", "postgres"); driver {
	case "postgres":
		pool, err := openPool(ctx)
		if err != nil {
			return nil, fmt.Errorf("db connection failed: %w", err)
		}
		applied, err := db.NewMigrator(pool, postgres.Migrations()).Up(ctx)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info("store ready", "driver", driver, "migrations_applied", applied)
		return postgres.New(pool), nil
	case "sqlite", "gorm-postgres":
		cfg := gormstore.Config{Driver: "sqlite", MaxOpenConns: 1, LogLevel: gormlogger.Warn}
		if driver == "sqlite" {
			cfg.DSN = config.String("SQLITE_PATH", "booking.db")
		} else {
			dsn, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return nil, err
			}
			cfg.Driver, cfg.DSN, cfg.MaxOpenConns = "postgres", dsn, 10
		}
		store, err := gormstore.Open(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.AutoMigrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("store ready", "driver", driver)
		return store, nil
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be postgres, sqlite, gorm-postgres or memory (got %q)", driver)
	}
}

func engineConfig() (booking.Config, error) {
	granularity, err := config.Int("SLOT_GRANULARITY_MINUTES", 15)
	if err != nil {
		return booking.Config{}, err
	}
	attempts, err := config.Int("BOOKING_MAX_ATTEMPTS", 3)
	if err != nil {
		return booking.Config{}, err
	}
	loc, err := time.LoadLocation(config.String("SALON_TIMEZONE", "Local"))
	if err != nil {
		return booking.Config{}, fmt.Errorf("SALON_TIMEZONE: %w", err)
	}
	return booking.Config{Granularity: granularity, MaxAttempts: attempts, Location: loc}, nil
}

func rateLimitMiddleware(logger *slog.Logger, redisClient func() (*redis.Client, error)) (httpx.Middleware, error) {
	rps, err := config.Float("RATE_LIMIT_RPS", 10)
	if err != nil {
		return nil, err
	}
	burst, err := config.Int("RATE_LIMIT_BURST", 20)
	if err != nil {
		return nil, err
	}
	switch backend := config.String("RATE_LIMIT_BACKEND", "local"); backend {
	case "off":
		return nil, nil
	case "local":
		return httpx.NewRateLimiter(rps, burst).Middleware(), nil
	case "redis":
		client, err := redisClient()
		if err != nil {
			return nil, err
		}
		window := time.Minute
		limit := int(rps * window.Seconds())
		return httpx.NewRedisRateLimiter(client, limit, window, "booking:rl").Middleware(logger, true), nil
	default:
		return nil, fmt.Errorf("RATE_LIMIT_BACKEND must be local, redis or off (got %q)", backend)
	}
}
