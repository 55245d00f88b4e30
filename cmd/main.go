package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"storefront/internal/api"
	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/consumer"
	"storefront/internal/database"
	"storefront/internal/repository"
	"storefront/internal/service"
	"storefront/migrations"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Str("component", "main").Logger()

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	strategy, err := service.ParseStrategy(cfg.Order.Strategy)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid ORDER_STRATEGY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Open(ctx, cfg.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer pool.Close()

	if err := migrations.AutoMigrate(ctx, pool.DB(), cfg.DB.MigrateRetries); err != nil {
		logger.Fatal().Err(err).Msg("Failed to migrate tables")
	}

	// interfaces stay nil when Redis is disabled
	var productCache service.ProductCache
	var guard api.SubmissionGuard
	if rdb := cache.NewClient(ctx, cfg.Redis); rdb != nil {
		defer rdb.Close()
		productCache = cache.NewProductCache(rdb, cfg.Redis.CacheTTL)
		guard = cache.NewSubmissionGuard(rdb, cfg.Redis.SubmissionTTL)
	}

	productRepo := repository.NewProductRepository(pool.DB())
	orderRepo := repository.NewOrderRepository(pool)

	catalogService := service.NewCatalogService(productRepo, productCache)

	opts := []service.OrderOption{service.WithTimeout(cfg.Order.Timeout)}
	if productCache != nil {
		opts = append(opts, service.WithCacheEviction(productCache))
	}

	var kafkaWriter *kafka.Writer
	if cfg.Kafka.Enabled() {
		kafkaWriter = config.NewKafkaWriter(cfg.Kafka)
		opts = append(opts, service.WithEvents(kafkaWriter))

		if productCache != nil {
			reader := config.NewKafkaReader(cfg.Kafka)
			go consumer.NewConsumer(reader, catalogService).Run(ctx)
		}
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not set, order events disabled")
	}

	orderService := service.NewOrderService(orderRepo, strategy, opts...)

	if productCache != nil {
		if n, err := catalogService.PreWarmCache(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to pre-warm product cache")
		} else {
			logger.Info().Msgf("Pre-warmed %d products", n)
		}
	}

	e, err := api.NewRouter(api.RouterConfig{
		Catalog:   catalogService,
		Orders:    orderService,
		Guard:     guard,
		BasePath:  cfg.BasePath,
		Admin:     cfg.Admin,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build router")
	}

	go func() {
		logger.Info().Msgf("Storefront listening on %s (strategy %s)", cfg.HTTPAddr, strategy)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}
	if kafkaWriter != nil {
		if err := kafkaWriter.Close(); err != nil {
			logger.Error().Err(err).Msg("Error closing Kafka writer")
		}
	}
}
