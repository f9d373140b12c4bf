/**
 * @description
 * This is the main entry point for the functions backend. It is responsible
 * for initializing the application, setting up dependencies, and starting
 * the HTTP server that hosts the provisioning, push, and contact endpoints.
 *
 * Key features:
 * - Loads configuration from environment variables.
 * - Establishes and manages a connection pool to the PostgreSQL database.
 * - Ensures the backing tables exist on startup (idempotent).
 * - Connects to RabbitMQ and Redis when configured; both are optional and
 *   the service degrades gracefully without them.
 * - Wires the identity-provider admin client, the push gateway client, the
 *   repositories, and the workflow services into the router.
 * - Schedules the follow-up sweeper and implements graceful shutdown.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: For database connection pooling.
 * - github.com/joho/godotenv: To load .env files for local development.
 * - github.com/redis/go-redis/v9: For the distributed referral rate limiter.
 * - The service's internal and pkg packages for everything else.
 */
package main

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/VineMe-App/vineme-backend/internal/api"
	"github.com/VineMe-App/vineme-backend/internal/app"
	"github.com/VineMe-App/vineme-backend/internal/config"
	"github.com/VineMe-App/vineme-backend/internal/store"
	"github.com/VineMe-App/vineme-backend/pkg/authadmin"
	"github.com/VineMe-App/vineme-backend/pkg/pushgateway"
	"github.com/VineMe-App/vineme-backend/pkg/rabbitmq"
)

func maskAMQPURLForLog(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil {
		return "<unparseable>"
	}
	if u.User != nil {
		u.User = url.UserPassword("****", "****")
	}
	return u.String()
}

func main() {
	// Load .env file for local development. In production, env vars are set directly.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load application configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	// If a platform-provided PORT is set (e.g., Railway/Render), prefer it
	if port := os.Getenv("PORT"); port != "" {
		cfg.ServerPort = port
	}

	// Establish database connection pool with better configuration
	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database URL: %v\n", err)
	}

	// Configure connection pool to prevent prepared statement conflicts
	dbConfig.MaxConns = 10
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v\n", err)
	}
	defer dbpool.Close()
	log.Println("Database connection established")

	// Set up repositories
	profileRepo := store.NewPostgresProfileRepository(dbpool)
	referralRepo := store.NewPostgresReferralRepository(dbpool)
	membershipRepo := store.NewPostgresMembershipRepository(dbpool)
	contactRepo := store.NewPostgresContactRepository(dbpool)
	deviceTokenRepo := store.NewPostgresDeviceTokenRepository(dbpool)

	// Ensure required tables exist (idempotent)
	ensureCtx, ensureCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer ensureCancel()
	if err := profileRepo.EnsureProfilesTable(ensureCtx); err != nil {
		log.Fatalf("Failed ensuring profiles table: %v", err)
	}
	if err := referralRepo.EnsureReferralsTable(ensureCtx); err != nil {
		log.Fatalf("Failed ensuring referrals table: %v", err)
	}
	if err := membershipRepo.EnsureMembershipsTable(ensureCtx); err != nil {
		log.Fatalf("Failed ensuring group_memberships table: %v", err)
	}
	if err := contactRepo.EnsureContactTables(ensureCtx); err != nil {
		log.Fatalf("Failed ensuring contact tables: %v", err)
	}
	if err := deviceTokenRepo.EnsureDeviceTokensTable(ensureCtx); err != nil {
		log.Fatalf("Failed ensuring device_tokens table: %v", err)
	}

	log.Printf("RABBITMQ_URL (masked)=%s", maskAMQPURLForLog(cfg.RabbitMQURL))

	// Set up RabbitMQ producer with bounded dial timeout; allow nil on failure
	var publisher app.EventPublisher
	if cfg.RabbitMQURL != "" {
		if p, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL); err != nil {
			log.Printf("WARNING: Failed to connect to RabbitMQ at startup: %v. Continuing without MQ.", err)
		} else {
			publisher = p
			defer p.Close()
			log.Println("RabbitMQ producer connected")
		}
	}

	// Set up the Redis-backed referral rate limiter; optional
	var limiter api.ReferralLimiter
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: Invalid REDIS_URL: %v. Continuing without referral rate limiting.", err)
		} else {
			redisClient := redis.NewClient(redisOpts)
			defer redisClient.Close()
			limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
			log.Println("Redis rate limiter configured")
		}
	}

	// External clients
	identityClient := authadmin.NewClient(cfg.SupabaseURL, cfg.ServiceRoleKey)
	pushClient := pushgateway.NewClient(cfg.ExpoPushURL)

	// Workflow services
	provisioningService := app.NewProvisioningService(
		profileRepo,
		referralRepo,
		membershipRepo,
		identityClient,
		publisher,
		cfg.AdminUserPageSize,
		cfg.AdminUserMaxPages,
		cfg.InviteRedirectURL,
	)
	contactService := app.NewContactAccessService(contactRepo, publisher)
	pushService := app.NewPushService(deviceTokenRepo, pushClient)

	// Schedule the follow-up sweeper for unplaced referred users
	sweeper := app.NewFollowUpSweeper(profileRepo, publisher, time.Duration(cfg.FollowUpAgeHours)*time.Hour)
	if err := sweeper.Start(cfg.FollowUpCronSpec); err != nil {
		log.Fatalf("Failed to start follow-up sweeper: %v", err)
	}
	defer sweeper.Stop()

	// Set up router and handlers
	handlers := api.NewFunctionHandlers(provisioningService, contactService, pushService, limiter, cfg.ReferralRatePerMinute)
	router := api.NewRouter(handlers, api.RouterConfig{
		Auth: api.AuthConfig{
			JWTSecret:        cfg.JWTSecret,
			ServiceRoleKey:   cfg.ServiceRoleKey,
			ExpectedAudience: "authenticated",
			ExpectedIssuer:   strings.TrimRight(cfg.SupabaseURL, "/") + "/auth/v1",
		},
		AllowedOrigins:       cfg.AllowedOrigins,
		RequestRatePerMinute: cfg.RequestRatePerMinute,
	})

	// Start the server
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %s\n", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}

	log.Println("Server gracefully stopped")
}
