/**
 * @description
 * This is the main entry point for the payment-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, external API clients, message brokers, repositories, the fraud
 * evaluator, the saga orchestrator, the outbox relay, and the HTTP server. It
 * wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/config, internal/fraud, internal/store: Internal packages.
 * - pkg/accountclient, pkg/legacyclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/ebanking/payment-service/internal/api"
	"github.com/ebanking/payment-service/internal/app"
	"github.com/ebanking/payment-service/internal/config"
	"github.com/ebanking/payment-service/internal/fraud"
	"github.com/ebanking/payment-service/internal/store"
	"github.com/ebanking/payment-service/pkg/accountclient"
	"github.com/ebanking/payment-service/pkg/legacyclient"
	rmrabbit "github.com/ebanking/payment-service/pkg/rabbitmq"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting payment-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	// Pool sizing tuned for sustained payment traffic.
	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer used by the outbox relay. A missing
	// broker at startup is tolerated: events stay PENDING until it returns.
	var producer rmrabbit.Publisher
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rmrabbit.EventProducerFallback{}
	} else {
		defer rabbitProducer.Close()
		producer = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external service clients.
	accountClient := accountclient.NewClient(cfg.AccountServiceURL, cfg.AccountServiceAPIKey)
	legacyClient := legacyclient.NewClient(cfg.LegacyAdapterURL, cfg.LegacyAdapterAPIKey)

	// Redis backs the per-account rate limiter. The service degrades to
	// unlimited throughput rather than refusing to boot without it.
	var redisClient *redis.Client
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; payment rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; payment rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient = redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; payment rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
				redisClient = nil
			} else {
				defer redisClient.Close()
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the fraud evaluator, the saga orchestrator and the payment service.
	evaluator := fraud.NewEvaluator(repository, repository)
	saga := app.NewSagaOrchestrator(repository, accountClient, legacyClient)
	paymentService := app.NewService(repository, evaluator, saga)

	var rateLimiter *app.RedisPaymentRateLimiter
	if redisClient != nil {
		rateLimiter = app.NewRedisPaymentRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Initialize the API handlers.
	paymentHandlers := api.NewPaymentHandlers(paymentService, rateLimiter, cfg.PaymentRateLimitPerMinute)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/", api.PaymentRoutes(paymentHandlers, cfg.JWKSURL))

	// Start the outbox relay on its sweep schedule.
	relay := app.NewRelay(repository, producer, cfg.EventsExchange, cfg.OutboxBatchSize, cfg.OutboxMaxRetries)
	scheduler := app.NewScheduler(relay, cfg.OutboxSweepSchedule)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"outbox scheduler start failed\" err=%v", err)
	}

	// Wire up the saga event consumer for deferred settlement outcomes.
	sagaConsumer := app.NewSagaEventConsumer(repository, saga)

	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer rabbitConsumer.Close()

	sagaBindings := map[string]func([]byte) bool{
		"saga.settlement.sent":   sagaConsumer.HandleMessage,
		"saga.settlement.failed": sagaConsumer.HandleMessage,
	}
	if err := rabbitConsumer.ConsumeWithBindings(cfg.EventsExchange, cfg.SagaEventQueue, sagaBindings); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"saga consumer start failed\" err=%v", err)
	}

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	// Let an in-flight outbox sweep finish before exiting.
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
