package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gearrent/internal/api"
	"gearrent/internal/config"
	"gearrent/internal/database"
	"gearrent/internal/domain"
	"gearrent/internal/events"
	"gearrent/internal/lock"
	"gearrent/internal/logging"
	"gearrent/internal/metrics"
	"gearrent/internal/pricing"
	"gearrent/internal/repository"
	"gearrent/internal/retry"
	"gearrent/internal/service"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

type catalogStore interface {
	domain.Store
	SeedCatalog(ctx context.Context, catalog *config.Catalog) error
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := initStore(cfg, &logger)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	if err := seedCatalog(ctx, cfg, store, &logger); err != nil {
		return err
	}

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	locker := initLocker(cfg, redisClient, &logger)

	pricingCfg, err := cfg.Pricing.ToPricing()
	if err != nil {
		return fmt.Errorf("pricing config: %w", err)
	}
	calc, err := pricing.NewCalculator(pricingCfg)
	if err != nil {
		return fmt.Errorf("pricing config: %w", err)
	}

	bus := events.NewEventBus()
	bus.Subscribe(events.AllEvents, logging.EventHandler(&logger))

	policy := retry.Policy{
		MaxRetries:   cfg.Locking.Retry.MaxRetries,
		InitialDelay: cfg.Locking.Retry.InitialDelay,
		MaxDelay:     cfg.Locking.Retry.MaxDelay,
	}
	desk := service.NewRentalDesk(store, locker, calc, bus, policy, nil, &logger)
	httpServer := api.NewHTTPServer(cfg.API, desk, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// initStore returns the SQLite database as well when that driver is selected.
func initStore(cfg *config.Config, logger *zerolog.Logger) (catalogStore, *database.DB, error) {
	if cfg.Database.Driver == config.DatabaseMemory {
		logger.Warn().Msg("using in-memory store, bookings are lost on restart")
		return repository.NewMemoryStore(), nil, nil
	}

	db, err := database.NewDB(cfg.Database, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, nil, err
	}
	return db, db, nil
}

func seedCatalog(ctx context.Context, cfg *config.Config, store catalogStore, logger *zerolog.Logger) error {
	catalogPath := os.Getenv("CATALOG_PATH")
	if catalogPath == "" {
		catalogPath = cfg.CatalogPath
	}
	if catalogPath == "" {
		logger.Warn().Msg("no catalog configured, using stored reference data")
		return nil
	}

	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("load catalog")
		return err
	}
	return store.SeedCatalog(ctx, catalog)
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := lock.NewRedisClient(cfg.Redis)
	if err := lock.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing with in-process locks")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.Locker {
	local := lock.NewKeyedMutex()
	if cfg.Locking.Backend != config.LockBackendRedis || redisClient == nil {
		return local
	}
	primary := lock.NewRedisLocker(redisClient, cfg.Locking.TTL, cfg.Locking.PollInterval, logger)
	return lock.NewFailoverLocker(primary, local, logger)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
