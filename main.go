package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-fulfillment/internal/api"
	"ms-fulfillment/internal/bookings"
	bookingsdb "ms-fulfillment/internal/bookings/db"
	bookingsredis "ms-fulfillment/internal/bookings/redis"
	"ms-fulfillment/internal/calendar"
	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/database/migrations"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/kafka"
	"ms-fulfillment/internal/lifecycle"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/orders"
	ordersdb "ms-fulfillment/internal/orders/db"
	"ms-fulfillment/internal/payment"
	"ms-fulfillment/internal/permissions"
	"ms-fulfillment/internal/sideeffects"
)

func connectPostgres(cfg config.DatabaseConfig, log *logger.Logger) *bun.DB {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	var sqldb *sql.DB
	var err error
	maxRetries := 5

	for i := 0; i < maxRetries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d/%d)", i+1, maxRetries))
		sqldb, err = sql.Open("postgres", dsn)
		if err == nil {
			err = sqldb.Ping()
			if err == nil {
				break
			}
		}
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v", err))
		if i < maxRetries-1 {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL after %d attempts: %v", maxRetries, err))
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New())
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Redis connection error: %v", err))
	}
	log.Info("DATABASE", fmt.Sprintf("Redis connection successful to %s", cfg.Addr))
	return client
}

func main() {
	log := logger.NewLogger()
	defer log.Close()

	log.Info("APP", "Starting Fulfillment Service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	ctx := context.Background()

	bunDB := connectPostgres(cfg.Database, log)
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, os.Getenv("MIGRATIONS_DIR"), log)
	if err := runner.MigrateUp(); err != nil {
		log.Fatal("MIGRATE", fmt.Sprintf("Failed to apply migrations: %v", err))
	}

	redisClient := connectRedis(ctx, cfg.Redis, log)
	defer redisClient.Close()

	var producer *kafka.Producer
	topics := sideeffects.Topics{
		Notifications: cfg.Kafka.Topics.Notifications,
		Alerts:        cfg.Kafka.Topics.Alerts,
	}
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers)
		if err := kafka.EnsureTopicsExist(cfg.Kafka.Brokers, []string{topics.Notifications, topics.Alerts}); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
		defer producer.Close()
	} else {
		log.Warn("KAFKA", "Kafka disabled, notifications will not be published")
	}

	gateway, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, log)
	if err != nil {
		log.Fatal("PAYMENT", fmt.Sprintf("Failed to initialize payment gateway: %v", err))
	}
	coordinator := payment.NewCoordinator(gateway, log)

	var publisher sideeffects.Publisher
	if producer != nil {
		publisher = producer
	}
	dispatcher := sideeffects.NewDispatcher(
		&sideeffects.BunAuditStore{Bun: bunDB},
		publisher,
		sideeffects.NewPickupCodeGenerator(cfg.PickupCode.Secret),
		topics,
		log,
	)
	defer dispatcher.Close()

	roleCache := permissions.NewRoleCache(cfg.Permissions.RoleCacheTTL, time.Now)
	resolver := permissions.NewResolver(&permissions.BunStore{Bun: bunDB}, roleCache, log)

	engine := lifecycle.NewEngine(log)
	ledger := inventory.NewLedger(bunDB, log)
	locks := bookingsredis.NewRedis(redisClient, cfg.Redis.ResourceLockTTL, log)
	calendarClient := calendar.NewClient(cfg.Calendar.BaseURL, cfg.Calendar.Timeout, log)

	orderService := orders.NewService(&ordersdb.DB{Bun: bunDB}, resolver, coordinator, dispatcher, engine, log)
	bookingService := bookings.NewService(&bookingsdb.DB{Bun: bunDB}, resolver, coordinator, dispatcher,
		engine, locks, calendarClient, log)

	handler := api.NewHandler(orderService, bookingService, ledger, resolver, log)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Fulfillment Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server shutdown failed: %v", err))
	} else {
		log.Info("HTTP", "Fulfillment Service shutdown complete")
	}
}
