package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/furniture-reservation/internal/cache"
	"github.com/iliyamo/furniture-reservation/internal/config"
	"github.com/iliyamo/furniture-reservation/internal/database"
	"github.com/iliyamo/furniture-reservation/internal/handler"
	"github.com/iliyamo/furniture-reservation/internal/logger"
	"github.com/iliyamo/furniture-reservation/internal/middleware"
	"github.com/iliyamo/furniture-reservation/internal/queue"
	"github.com/iliyamo/furniture-reservation/internal/repository"
	"github.com/iliyamo/furniture-reservation/internal/router"
	"github.com/iliyamo/furniture-reservation/internal/service"
)

func main() {
	_ = godotenv.Load()

	boot, _ := zap.NewProduction()
	cfg := config.Load(boot)
	if err := logger.Init(logger.Options{
		Development: cfg.Development(),
		FilePath:    cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	}); err != nil {
		boot.Fatal("logger init", zap.Error(err))
	}
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg, log)
	defer store.Close()

	rdb := config.NewRedisClient(cfg.Redis, log)
	if rdb != nil {
		defer rdb.Close()
	}

	var events service.EventPublisher = queue.Nop{}
	if cfg.Rabbit.Enabled {
		pub := queue.NewPublisher(cfg.Rabbit.URL, cfg.Rabbit.Queue, log)
		defer pub.Close()
		events = pub
		if cfg.Rabbit.Audit {
			go func() {
				if err := queue.StartAuditConsumer(ctx, cfg.Rabbit.URL, cfg.Rabbit.Queue, logger.Named("audit")); err != nil {
					log.Error("audit consumer stopped", zap.Error(err))
				}
			}()
		}
	}

	var invalidator service.CacheInvalidator
	if rdb != nil && cfg.Cache.Enabled {
		invalidator = cache.NewPrefixInvalidator(rdb, cfg.Cache.Prefix, log)
	}

	retry := service.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: cfg.Retry.InitialInterval,
		MaxInterval:     cfg.Retry.MaxInterval,
		VersionRetries:  cfg.Retry.VersionRetries,
	}
	catalog := service.NewCatalogService(store, invalidator, log)
	reservations := service.NewReservationService(store, events, invalidator, retry, log)
	payments := service.NewPaymentService(store, events, retry, log)

	if cfg.Reconcile.Enabled {
		rec := service.NewReconciler(store, events, cfg.Reconcile.Grace, cfg.Reconcile.Batch, log)
		go rec.Run(ctx, cfg.Reconcile.Interval)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(
		echomw.Recover(),
		middleware.RequestLogger(log),
		middleware.Metrics(),
		middleware.NewTokenBucket(cfg.RateLimit, rdb, log),
	)

	mw := router.Middleware{
		JWTSecret: cfg.JWTSecret,
		Cache:     middleware.NewRedisCache(cfg.Cache, rdb, log),
	}
	if rdb != nil && cfg.Idempotency.Enabled {
		idem := cache.NewIdempotencyStore(rdb, cfg.Idempotency.Prefix, cfg.Idempotency.TTL, cfg.Idempotency.LockTTL)
		mw.Idempotency = middleware.Idempotency(idem, log)
	}

	var health echo.HandlerFunc
	if db != nil {
		health = handler.Health(db)
	}
	router.Register(e, router.Handlers{
		Health:       health,
		Catalog:      handler.NewCatalogHandler(catalog, cfg.RequestTimeout, log),
		Reservations: handler.NewReservationHandler(reservations, cfg.RequestTimeout, log),
		Payments:     handler.NewPaymentHandler(payments, cfg.RequestTimeout, log),
	}, mw)

	go func() {
		addr := ":" + cfg.Port
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("storage", cfg.StorageDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("server stopped")
}

// openStore returns the configured store; db is nil for the memory driver.
func openStore(ctx context.Context, cfg config.Config, log *zap.Logger) (repository.Store, *sql.DB) {
	if cfg.StorageDriver != config.DriverMySQL {
		log.Warn("using in-memory storage; data is lost on restart")
		return repository.NewMemoryStore(), nil
	}
	db, err := database.Open(database.Options{
		User:            cfg.DB.User,
		Pass:            cfg.DB.Pass,
		Host:            cfg.DB.Host,
		Port:            cfg.DB.Port,
		Name:            cfg.DB.Name,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal("mysql connect", zap.Error(err))
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, db, log); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
	}
	return repository.NewSQLStore(db), db
}
