package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	cartcache "github.com/ironico1809/tienda-backend/internal/cart/cache"
	cartrepo "github.com/ironico1809/tienda-backend/internal/cart/repository"
	cartservice "github.com/ironico1809/tienda-backend/internal/cart/service"
	"github.com/ironico1809/tienda-backend/internal/catalog"
	"github.com/ironico1809/tienda-backend/internal/checkout/publisher"
	checkoutrepo "github.com/ironico1809/tienda-backend/internal/checkout/repository"
	checkoutservice "github.com/ironico1809/tienda-backend/internal/checkout/service"
	"github.com/ironico1809/tienda-backend/internal/httpapi"
	notifyconsumer "github.com/ironico1809/tienda-backend/internal/notify/consumer"
	notifyrepo "github.com/ironico1809/tienda-backend/internal/notify/repository"
	"github.com/ironico1809/tienda-backend/internal/payments"
	salesrepo "github.com/ironico1809/tienda-backend/internal/sales/repository"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func envUint(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseUint(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	httpPort := getEnv("HTTP_PORT", "8080")
	requestTimeout := 5 * time.Second

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catalog (SQLite)
	catalogRepo, err := catalog.NewRepository(getEnv("CATALOG_DB_PATH", "./tienda.db"))
	if err != nil {
		logger.Fatal("failed to open catalog database", zap.Error(err))
	}
	defer catalogRepo.Close()
	if err := catalogRepo.RunMigrations(getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations")); err != nil {
		logger.Fatal("failed to run catalog migrations", zap.Error(err))
	}
	pricing := catalog.DefaultPricing()

	// Cart storage (MongoDB)
	mongoDB, err := cartrepo.ConnectMongoDB(ctx, cartrepo.ConnectConfig{
		URI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		Database:       getEnv("MONGO_DB", "tienda"),
		ConnectTimeout: envDuration("MONGO_CONNECT_TIMEOUT", 10*time.Second),
		MaxPoolSize:    envUint("MONGO_MAX_POOL_SIZE", 100),
		MinPoolSize:    envUint("MONGO_MIN_POOL_SIZE", 10),
	})
	if err != nil {
		logger.Fatal("failed to connect to mongodb", zap.Error(err))
	}
	defer mongoDB.Client().Disconnect(context.Background())

	cartRepository := cartrepo.NewMongoRepository(mongoDB)
	if err := cartRepository.CreateIndexes(ctx); err != nil {
		logger.Fatal("failed to create cart indexes", zap.Error(err))
	}

	// Cart cache (Redis)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	cache := cartcache.NewRedisCache(redisClient, 15*time.Minute)

	cartService := cartservice.NewCartService(cartRepository, cache, catalogRepo, pricing, logger)

	// Sales, checkout and notifications share one Postgres instance.
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		logger.Fatal("invalid DB_PORT", zap.Error(err))
	}
	pgHost := getEnv("DB_HOST", "localhost")
	pgUser := getEnv("DB_USER", "postgres")
	pgPass := getEnv("DB_PASSWORD", "postgres")
	pgName := getEnv("DB_NAME", "tienda")

	salesCreds := &salesrepo.Credentials{
		Host: pgHost, Port: dbPort, User: pgUser, Password: pgPass, DBName: pgName,
		MigrationsDirPath: getEnv("SALES_MIGRATIONS_PATH", "./internal/sales/repository/migrations"),
	}
	salesRepository, err := salesrepo.NewRepository(salesCreds)
	if err != nil {
		logger.Fatal("failed to connect to sales database", zap.Error(err))
	}
	defer salesRepository.Close()
	if err := salesRepository.RunMigrations(salesCreds); err != nil {
		logger.Fatal("failed to run sales migrations", zap.Error(err))
	}

	checkoutCreds := &checkoutrepo.Credentials{
		Host: pgHost, Port: dbPort, User: pgUser, Password: pgPass, DBName: pgName,
		MigrationsDirPath: getEnv("CHECKOUT_MIGRATIONS_PATH", "./internal/checkout/repository/migrations"),
	}
	checkoutRepository, err := checkoutrepo.NewRepository(checkoutCreds)
	if err != nil {
		logger.Fatal("failed to connect to checkout database", zap.Error(err))
	}
	defer checkoutRepository.Close()
	if err := checkoutRepository.RunMigrations(checkoutCreds); err != nil {
		logger.Fatal("failed to run checkout migrations", zap.Error(err))
	}

	notifyCreds := &notifyrepo.Credentials{
		Host: pgHost, Port: dbPort, User: pgUser, Password: pgPass, DBName: pgName,
		MigrationsDirPath: getEnv("NOTIFY_MIGRATIONS_PATH", "./internal/notify/repository/migrations"),
	}
	notifyRepository, err := notifyrepo.NewRepository(notifyCreds)
	if err != nil {
		logger.Fatal("failed to connect to notify database", zap.Error(err))
	}
	defer notifyRepository.Close()
	if err := notifyRepository.RunMigrations(notifyCreds); err != nil {
		logger.Fatal("failed to run notify migrations", zap.Error(err))
	}

	// Payment provider client
	providerClient := payments.NewClient(
		getEnv("PAYMENT_PROVIDER_URL", "http://localhost:9090"),
		getEnv("PAYMENT_PROVIDER_API_KEY", ""),
		requestTimeout)

	checkoutService := checkoutservice.NewCheckoutService(
		checkoutRepository,
		cartService,
		salesRepository,
		catalogRepo,
		providerClient,
		checkoutservice.Config{
			FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
			Currency:    getEnv("CURRENCY", "usd"),
		},
		logger)

	// Background workers
	brokers := strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")

	poller := publisher.NewOutboxPoller(checkoutRepository, logger, brokers...)
	go poller.Run(ctx)

	consumer := notifyconsumer.NewConsumer(notifyRepository, logger, brokers...)
	defer consumer.Close()
	go consumer.Run(ctx)

	// HTTP surface
	verifier := parseTokens(getEnv("API_TOKENS", ""))
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Catalog:       httpapi.NewCatalogHandler(catalogRepo, pricing, requestTimeout),
		Cart:          httpapi.NewCartHandler(cartService, requestTimeout),
		Checkout:      httpapi.NewCheckoutHandler(checkoutService, requestTimeout),
		Sales:         httpapi.NewSalesHandler(salesRepository, requestTimeout),
		Notifications: httpapi.NewNotificationsHandler(notifyRepository, requestTimeout),
		Verifier:      verifier,
	})

	server := &http.Server{
		Addr:    ":" + httpPort,
		Handler: router,
	}

	go func() {
		logger.Info("http server listening", zap.String("port", httpPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// parseTokens reads "token:user,token:user" pairs from the environment.
func parseTokens(raw string) httpapi.StaticTokenVerifier {
	verifier := httpapi.StaticTokenVerifier{}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		verifier[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return verifier
}
