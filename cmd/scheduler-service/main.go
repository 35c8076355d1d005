package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/glowbook-hq/glowbook/internal/consumer"
	"github.com/glowbook-hq/glowbook/internal/crm"
	"github.com/glowbook-hq/glowbook/internal/handlers"
	"github.com/glowbook-hq/glowbook/internal/inbox"
	"github.com/glowbook-hq/glowbook/internal/outbox"
	"github.com/glowbook-hq/glowbook/internal/scheduler"
	"github.com/glowbook-hq/glowbook/internal/storage"
	"github.com/glowbook-hq/glowbook/libs/config"
	"github.com/glowbook-hq/glowbook/libs/db"
	"github.com/glowbook-hq/glowbook/libs/httpx"
	"github.com/glowbook-hq/glowbook/libs/kafkax"
	otelx "github.com/glowbook-hq/glowbook/libs/otel"
	"github.com/glowbook-hq/glowbook/libs/runtime"
)

func main() {
	service := config.String("SERVICE_NAME", "scheduler-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

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

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL, db.Options{
		MaxConns: int32(config.Int("DB_MAX_CONNS", 10)),
		MinConns: int32(config.Int("DB_MIN_CONNS", 1)),
	})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "UTC"))
	if err != nil {
		logger.Error("invalid business timezone", "err", err)
		panic(err)
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()
	}

	baseDirectory := storage.NewDirectory(pool)
	var directory scheduler.Directory = baseDirectory
	var cache *storage.CachedDirectory
	if rdb != nil {
		ttl := time.Duration(config.Int("DIRECTORY_CACHE_TTL_SECONDS", 300)) * time.Second
		cache = storage.NewCachedDirectory(baseDirectory, rdb, ttl, logger)
		directory = cache
	}

	outboxRepo := outbox.NewRepository(pool)
	appointments := storage.NewAppointmentRepository(pool, outboxRepo)

	brokers := config.String("KAFKA_BROKERS", "")
	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   brokers,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	if cache != nil && strings.TrimSpace(brokers) != "" {
		inboxRepo := inbox.NewRepository(pool)
		directoryConsumer := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "scheduler-service"),
			Topic:   config.String("KAFKA_CONSUME_TOPIC", consumer.TopicDirectoryUpdated),
		}, consumer.DirectoryUpdateHandler(cache, logger))
		go directoryConsumer.Run(ctx)
	}

	crmProvider, err := crm.NewProvider(logger, config.String("CRM_GRPC_ADDR", ""))
	if err != nil {
		logger.Error("crm provider init failed", "err", err)
		crmProvider = crm.NoopProvider{}
	}

	schedulerService := scheduler.New(scheduler.Config{
		StepMinutes:    config.Int("SLOT_STEP_MINUTES", 15),
		BufferMinutes:  config.Int("SLOT_BUFFER_MINUTES", 0),
		MaxAdvanceDays: config.Int("MAX_ADVANCE_DAYS", 90),
		AutoConfirm:    config.Bool("AUTO_CONFIRM_BOOKINGS", false),
	}, directory, appointments, crmProvider, logger).
		WithNow(scheduler.WallClock(loc))

	bookingHandler := handlers.NewBookingHandler(schedulerService, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	bookingHandler.Register(mux)

	middleware := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(int64(config.Int("MAX_BODY_BYTES", 1<<20))),
		httpx.WithTimeout(time.Duration(config.Int("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second),
	}
	if origins := config.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		middleware = append(middleware, httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Idempotency-Key"},
		}))
	}
	limit := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, limit, time.Minute, service)
		middleware = append(middleware, limiter.Middleware(logger, true))
	} else {
		middleware = append(middleware, httpx.NewRateLimiter(limit, time.Minute).Middleware())
	}

	httpHandler := httpx.Chain(mux, middleware...)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduler")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
